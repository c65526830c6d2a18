// Package model はドメインモデルを定義する。
package model

import "time"

// User はサービス利用ユーザーを表す。
// PasswordHashにはbcryptハッシュを保持し、平文パスワードは保持しない。
type User struct {
	ID           int64
	Name         string
	Email        string
	PasswordHash []byte
}

// AuthToken は発行済みJWTの記録を表す。
// ユーザーごとに最大1件で、再認証時に置き換えられる。
type AuthToken struct {
	UserID    int64
	Token     string
	ExpiresAt time.Time
}
