// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, user, friend, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeUserNotFound      = "USER_NOT_FOUND"
	ErrCodeDuplicateUser     = "DUPLICATE_USER"
	ErrCodeInvalidPassword   = "INVALID_PASSWORD"
	ErrCodeInvalidExpiry     = "INVALID_EXPIRY"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeSelfFriendRequest = "SELF_FRIEND_REQUEST"
	ErrCodeAlreadyFriends    = "ALREADY_FRIENDS"
	ErrCodePendingRequest    = "PENDING_REQUEST"
	ErrCodeRequestNotFound   = "REQUEST_NOT_FOUND"
	ErrCodeInvalidDecision   = "INVALID_DECISION"
	ErrCodeEntryNotFound     = "ENTRY_NOT_FOUND"
)

// セッション分析のエラー種別。
// ErrSessionAlreadyEndedは二重終了の競合で敗れた側が観測するエラーで、
// 呼び出し側は成功済みのno-opとして扱う。
// ErrDayNotFoundは日次集計行が存在しない日にセッションを作成しようとした
// 契約違反を示し、通常運用では発生しない。
var (
	ErrSessionAlreadyEnded = errors.New("セッションはすでに終了しています")
	ErrDayNotFound         = errors.New("対象日の集計レコードが存在しません")
)

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError(userID int64) *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  fmt.Sprintf("指定されたユーザーが見つかりません: %d", userID),
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}

// NewDuplicateUserError はユーザー名またはメールアドレスの重複エラーを生成する。
func NewDuplicateUserError() *APIError {
	return &APIError{
		Code:     ErrCodeDuplicateUser,
		Message:  "同じ名前またはメールアドレスのユーザーがすでに存在します。",
		Category: "user",
		Action:   "別の名前・メールアドレスで登録してください。",
	}
}

// NewInvalidPasswordError はパスワード不一致エラーを生成する。
func NewInvalidPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  "パスワードが正しくありません。",
		Category: "auth",
		Action:   "パスワードを確認して再度お試しください。",
	}
}

// NewInvalidExpiryError はトークン有効期限が不正な場合のエラーを生成する。
func NewInvalidExpiryError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidExpiry,
		Message:  "無効な有効期限です。有効期限は現在から1時間以内の未来の時刻を指定してください。",
		Category: "validation",
		Action:   "有効期限を確認してください。",
	}
}

// NewUnauthorizedError は認証失敗エラーを生成する。
func NewUnauthorizedError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証が必要です。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}

// NewSelfFriendRequestError は自分自身へのフレンドリクエストエラーを生成する。
func NewSelfFriendRequestError() *APIError {
	return &APIError{
		Code:     ErrCodeSelfFriendRequest,
		Message:  "自分自身にフレンドリクエストを送ることはできません。",
		Category: "friend",
		Action:   "別のユーザーを指定してください。",
	}
}

// NewAlreadyFriendsError はすでにフレンドであるエラーを生成する。
func NewAlreadyFriendsError() *APIError {
	return &APIError{
		Code:     ErrCodeAlreadyFriends,
		Message:  "すでにフレンドです。",
		Category: "friend",
		Action:   "フレンド一覧を確認してください。",
	}
}

// NewPendingRequestError は未回答のリクエストが既に存在するエラーを生成する。
func NewPendingRequestError() *APIError {
	return &APIError{
		Code:     ErrCodePendingRequest,
		Message:  "未回答のフレンドリクエストがすでに存在します。",
		Category: "friend",
		Action:   "既存のリクエストに回答してください。",
	}
}

// NewRequestNotFoundError はフレンドリクエストが見つからないエラーを生成する。
func NewRequestNotFoundError(requestID int64) *APIError {
	return &APIError{
		Code:     ErrCodeRequestNotFound,
		Message:  fmt.Sprintf("指定されたフレンドリクエストが見つかりません: %d", requestID),
		Category: "friend",
		Action:   "リクエストIDを確認してください。",
	}
}

// NewInvalidDecisionError はリクエスト回答の値が不正なエラーを生成する。
func NewInvalidDecisionError(decision string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidDecision,
		Message:  fmt.Sprintf("無効な回答です: %s", decision),
		Category: "validation",
		Action:   "回答には accepted または declined を指定してください。",
	}
}

// NewEntryNotFoundError はリーダーボードエントリが見つからないエラーを生成する。
func NewEntryNotFoundError(userID int64) *APIError {
	return &APIError{
		Code:     ErrCodeEntryNotFound,
		Message:  fmt.Sprintf("指定されたユーザーのリーダーボードエントリが見つかりません: %d", userID),
		Category: "user",
		Action:   "ユーザーIDを確認してください。",
	}
}
