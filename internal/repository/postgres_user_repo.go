package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/geodle/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// Create はユーザーを作成する。名前またはメールアドレスが重複する場合はnilを返す。
func (r *PostgresUserRepo) Create(ctx context.Context, name, email string, passwordHash []byte) (*model.User, error) {
	user := &model.User{
		Name:         name,
		Email:        email,
		PasswordHash: passwordHash,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO users (name, email, password_hash)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		name, email, passwordHash,
	).Scan(&user.ID)

	if err != nil {
		var pqErr *pq.Error
		// 23505 = unique_violation: 名前またはメールアドレスの重複
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, nil
		}
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}

	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id int64) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	return user, nil
}

// FindByName は指定名のユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByName(ctx context.Context, name string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, name, email, password_hash FROM users WHERE name = $1`,
		name,
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}

	return user, nil
}

// List は全ユーザーをID昇順で返す。
func (r *PostgresUserRepo) List(ctx context.Context) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, email, password_hash FROM users ORDER BY id`,
	)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash); err != nil {
			return nil, fmt.Errorf("ユーザーの読み取りに失敗しました: %w", err)
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ユーザー一覧の走査に失敗しました: %w", err)
	}

	return users, nil
}

// Update は指定フィールドのみを部分更新する。nilフィールドは変更しない。
func (r *PostgresUserRepo) Update(ctx context.Context, id int64, name, email *string) (*model.User, error) {
	user := &model.User{}
	err := r.db.QueryRowContext(ctx,
		`UPDATE users
		 SET name = COALESCE($2, name),
		     email = COALESCE($3, email)
		 WHERE id = $1
		 RETURNING id, name, email, password_hash`,
		id, nullString(name), nullString(email),
	).Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}

	return user, nil
}

// UpdatePassword はパスワードハッシュを更新する。
func (r *PostgresUserRepo) UpdatePassword(ctx context.Context, id int64, passwordHash []byte) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET password_hash = $2 WHERE id = $1`,
		id, passwordHash,
	)
	if err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}
	return nil
}

// DeleteByID は指定IDのユーザーを削除する。削除された場合trueを返す。
// auths、friend_requests、leaderboard_entriesはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id int64) (bool, error) {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return false, fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("削除件数の取得に失敗しました: %w", err)
	}

	return affected > 0, nil
}

// nullString は*stringをsql.NullStringに変換する。
func nullString(v *string) sql.NullString {
	if v == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *v, Valid: true}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
