package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/geodle/internal/model"
)

// PostgresFriendRepo はPostgreSQLを使用したフレンドリクエストリポジトリ。
type PostgresFriendRepo struct {
	db *sql.DB
}

// NewPostgresFriendRepo はPostgresFriendRepoを生成する。
func NewPostgresFriendRepo(db *sql.DB) *PostgresFriendRepo {
	return &PostgresFriendRepo{db: db}
}

// CreateRequest は新しいフレンドリクエストを作成する。
// 同じペアのリクエストがすでに存在する場合はnilを返す。
func (r *PostgresFriendRepo) CreateRequest(ctx context.Context, requestorID, requesteeID int64) (*model.FriendRequest, error) {
	req := &model.FriendRequest{
		RequestorID: requestorID,
		RequesteeID: requesteeID,
		Status:      model.FriendRequestPending,
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO friend_requests (requestor_id, requestee_id)
		 VALUES ($1, $2)
		 RETURNING id, sent_at`,
		requestorID, requesteeID,
	).Scan(&req.ID, &req.SentAt)

	if err != nil {
		var pqErr *pq.Error
		// 23505 = unique_violation: 同一ペアのリクエストが既存
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return nil, nil
		}
		return nil, fmt.Errorf("フレンドリクエストの作成に失敗しました: %w", err)
	}

	req.SentAt = req.SentAt.UTC()
	return req, nil
}

// FindRequestByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
func (r *PostgresFriendRepo) FindRequestByID(ctx context.Context, id int64) (*model.FriendRequest, error) {
	req, err := scanFriendRequest(r.db.QueryRowContext(ctx,
		`SELECT id, requestor_id, requestee_id, status, sent_at
		 FROM friend_requests
		 WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フレンドリクエストの取得に失敗しました: %w", err)
	}
	return req, nil
}

// UpdateStatus はリクエストの状態を更新する。
func (r *PostgresFriendRepo) UpdateStatus(ctx context.Context, id int64, status model.FriendRequestStatus) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE friend_requests SET status = $2 WHERE id = $1`,
		id, string(status),
	)
	if err != nil {
		return fmt.Errorf("フレンドリクエストの更新に失敗しました: %w", err)
	}
	return nil
}

// FindBetween は2ユーザー間のリクエストを方向を問わず検索する。
// statusが指定された場合はその状態のリクエストに限定する。見つからない場合はnilを返す。
func (r *PostgresFriendRepo) FindBetween(ctx context.Context, userID, otherID int64, status *model.FriendRequestStatus) (*model.FriendRequest, error) {
	query := `SELECT id, requestor_id, requestee_id, status, sent_at
	          FROM friend_requests
	          WHERE ((requestor_id = $1 AND requestee_id = $2)
	             OR (requestor_id = $2 AND requestee_id = $1))`
	args := []interface{}{userID, otherID}

	if status != nil {
		query += ` AND status = $3`
		args = append(args, string(*status))
	}
	query += ` ORDER BY sent_at DESC LIMIT 1`

	req, err := scanFriendRequest(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("フレンドリクエストの検索に失敗しました: %w", err)
	}
	return req, nil
}

// ListIncoming は指定ユーザー宛の未回答リクエストを送信日時降順で返す。
func (r *PostgresFriendRepo) ListIncoming(ctx context.Context, userID int64) ([]*model.FriendRequest, error) {
	return r.listRequests(ctx,
		`SELECT id, requestor_id, requestee_id, status, sent_at
		 FROM friend_requests
		 WHERE requestee_id = $1 AND status = 'pending'
		 ORDER BY sent_at DESC`,
		userID,
	)
}

// ListOutgoing は指定ユーザー発の未回答リクエストを送信日時降順で返す。
func (r *PostgresFriendRepo) ListOutgoing(ctx context.Context, userID int64) ([]*model.FriendRequest, error) {
	return r.listRequests(ctx,
		`SELECT id, requestor_id, requestee_id, status, sent_at
		 FROM friend_requests
		 WHERE requestor_id = $1 AND status = 'pending'
		 ORDER BY sent_at DESC`,
		userID,
	)
}

// ListFriends は指定ユーザーのフレンド（承認済みリクエストの相手）を返す。
func (r *PostgresFriendRepo) ListFriends(ctx context.Context, userID int64) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT u.id, u.name, u.email, u.password_hash
		 FROM friend_requests fr
		 JOIN users u ON u.id = CASE
		     WHEN fr.requestor_id = $1 THEN fr.requestee_id
		     ELSE fr.requestor_id
		 END
		 WHERE (fr.requestor_id = $1 OR fr.requestee_id = $1)
		   AND fr.status = 'accepted'
		 ORDER BY u.id`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("フレンド一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var friends []*model.User
	for rows.Next() {
		user := &model.User{}
		if err := rows.Scan(&user.ID, &user.Name, &user.Email, &user.PasswordHash); err != nil {
			return nil, fmt.Errorf("フレンドの読み取りに失敗しました: %w", err)
		}
		friends = append(friends, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フレンド一覧の走査に失敗しました: %w", err)
	}

	return friends, nil
}

// DeleteBetween は2ユーザー間のリクエストを方向を問わず削除する（フレンド解除）。
func (r *PostgresFriendRepo) DeleteBetween(ctx context.Context, userID, otherID int64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM friend_requests
		 WHERE (requestor_id = $1 AND requestee_id = $2)
		    OR (requestor_id = $2 AND requestee_id = $1)`,
		userID, otherID,
	)
	if err != nil {
		return fmt.Errorf("フレンド関係の削除に失敗しました: %w", err)
	}
	return nil
}

// listRequests はリクエスト一覧クエリの共通処理。
func (r *PostgresFriendRepo) listRequests(ctx context.Context, query string, args ...interface{}) ([]*model.FriendRequest, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("フレンドリクエスト一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var requests []*model.FriendRequest
	for rows.Next() {
		req, err := scanFriendRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("フレンドリクエストの読み取りに失敗しました: %w", err)
		}
		requests = append(requests, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("フレンドリクエスト一覧の走査に失敗しました: %w", err)
	}

	return requests, nil
}

// scanFriendRequest はフレンドリクエスト行を読み取る。
func scanFriendRequest(row rowScanner) (*model.FriendRequest, error) {
	req := &model.FriendRequest{}
	var status string

	if err := row.Scan(&req.ID, &req.RequestorID, &req.RequesteeID, &status, &req.SentAt); err != nil {
		return nil, err
	}

	req.Status = model.FriendRequestStatus(status)
	req.SentAt = req.SentAt.UTC()
	return req, nil
}

// compile-time interface check
var _ FriendshipRepository = (*PostgresFriendRepo)(nil)
