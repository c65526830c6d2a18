package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/geodle/internal/model"
)

// PostgresTokenRepo はPostgreSQLを使用した発行済みトークンリポジトリ。
type PostgresTokenRepo struct {
	db *sql.DB
}

// NewPostgresTokenRepo はPostgresTokenRepoを生成する。
func NewPostgresTokenRepo(db *sql.DB) *PostgresTokenRepo {
	return &PostgresTokenRepo{db: db}
}

// Replace はユーザーの既存トークンを削除し、新しいトークンを保存する。
// auths.user_idが主キーのため、ON CONFLICTによるUPSERTで実現する。
func (r *PostgresTokenRepo) Replace(ctx context.Context, token *model.AuthToken) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO auths (user_id, token, expires_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (user_id) DO UPDATE SET token = $2, expires_at = $3`,
		token.UserID, token.Token, token.ExpiresAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}
	return nil
}

// FindByUserID は指定ユーザーのトークンを取得する。見つからない場合はnilを返す。
func (r *PostgresTokenRepo) FindByUserID(ctx context.Context, userID int64) (*model.AuthToken, error) {
	token := &model.AuthToken{}
	err := r.db.QueryRowContext(ctx,
		`SELECT user_id, token, expires_at FROM auths WHERE user_id = $1`,
		userID,
	).Scan(&token.UserID, &token.Token, &token.ExpiresAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}

	token.ExpiresAt = token.ExpiresAt.UTC()
	return token, nil
}

// DeleteByUserID は指定ユーザーのトークンを削除する。
func (r *PostgresTokenRepo) DeleteByUserID(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM auths WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("トークンの削除に失敗しました: %w", err)
	}
	return nil
}

// DeleteExpired は期限切れトークンを一括削除し、削除件数を返す。
func (r *PostgresTokenRepo) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM auths WHERE expires_at < $1`,
		now.UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("期限切れトークンの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	return affected, nil
}

// compile-time interface check
var _ AuthTokenRepository = (*PostgresTokenRepo)(nil)
