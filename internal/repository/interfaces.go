// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/hitoshi/geodle/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// Create はユーザーを作成する。名前またはメールアドレスが重複する場合はnilを返す。
	Create(ctx context.Context, name, email string, passwordHash []byte) (*model.User, error)

	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id int64) (*model.User, error)

	// FindByName は指定名のユーザーを取得する。見つからない場合はnilを返す。
	FindByName(ctx context.Context, name string) (*model.User, error)

	// List は全ユーザーを返す。
	List(ctx context.Context) ([]*model.User, error)

	// Update は指定フィールドのみを部分更新する。nilフィールドは変更しない。
	Update(ctx context.Context, id int64, name, email *string) (*model.User, error)

	// UpdatePassword はパスワードハッシュを更新する。
	UpdatePassword(ctx context.Context, id int64, passwordHash []byte) error

	// DeleteByID は指定IDのユーザーを削除する。削除された場合trueを返す。
	// auths、friend_requests、leaderboard_entriesはCASCADE削除される。
	DeleteByID(ctx context.Context, id int64) (bool, error)
}

// AuthTokenRepository は発行済みJWTの永続化インターフェース。
type AuthTokenRepository interface {
	// Replace はユーザーの既存トークンを削除し、新しいトークンを保存する。
	Replace(ctx context.Context, token *model.AuthToken) error

	// FindByUserID は指定ユーザーのトークンを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID int64) (*model.AuthToken, error)

	// DeleteByUserID は指定ユーザーのトークンを削除する。
	DeleteByUserID(ctx context.Context, userID int64) error

	// DeleteExpired は期限切れトークンを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// FriendshipRepository はフレンドリクエストとフレンド関係の永続化インターフェース。
type FriendshipRepository interface {
	// CreateRequest は新しいフレンドリクエストを作成する。
	// 同じペアのリクエストがすでに存在する場合はnilを返す。
	CreateRequest(ctx context.Context, requestorID, requesteeID int64) (*model.FriendRequest, error)

	// FindRequestByID は指定IDのリクエストを取得する。見つからない場合はnilを返す。
	FindRequestByID(ctx context.Context, id int64) (*model.FriendRequest, error)

	// UpdateStatus はリクエストの状態を更新する。
	UpdateStatus(ctx context.Context, id int64, status model.FriendRequestStatus) error

	// FindBetween は2ユーザー間のリクエストを方向を問わず検索する。
	// statusが指定された場合はその状態のリクエストに限定する。見つからない場合はnilを返す。
	FindBetween(ctx context.Context, userID, otherID int64, status *model.FriendRequestStatus) (*model.FriendRequest, error)

	// ListIncoming は指定ユーザー宛の未回答リクエストを返す。
	ListIncoming(ctx context.Context, userID int64) ([]*model.FriendRequest, error)

	// ListOutgoing は指定ユーザー発の未回答リクエストを返す。
	ListOutgoing(ctx context.Context, userID int64) ([]*model.FriendRequest, error)

	// ListFriends は指定ユーザーのフレンド（承認済みリクエストの相手）を返す。
	ListFriends(ctx context.Context, userID int64) ([]*model.User, error)

	// DeleteBetween は2ユーザー間のリクエストを方向を問わず削除する（フレンド解除）。
	DeleteBetween(ctx context.Context, userID, otherID int64) error
}

// LeaderboardRepository はリーダーボードエントリの永続化インターフェース。
type LeaderboardRepository interface {
	// EnsureEntry は指定ユーザーのエントリがなければゼロ値で作成する。冪等。
	EnsureEntry(ctx context.Context, userID int64) error

	// FindByUserID は指定ユーザーのエントリを取得する。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, userID int64) (*model.LeaderboardEntry, error)

	// Update はエントリの成績フィールドを更新する。
	Update(ctx context.Context, entry *model.LeaderboardEntry) error

	// ListTop は最長デイリーストリーク降順で上位エントリを返す。
	ListTop(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error)
}

// AnalyticsRepository はセッション分析のストア（Session Store）インターフェース。
// Open/Renew/Terminateの各操作は、日次集計のカウンタ更新とセッション行の
// 書き込みを1トランザクションで行う。直列化失敗は内部で規定回数リトライする。
type AnalyticsRepository interface {
	// EnsureDay は指定日の日次集計行を冪等に作成し、返す。
	EnsureDay(ctx context.Context, date time.Time) (*model.DayStats, error)

	// CreateSession はLiveセッションを挿入する。
	// 対象日の集計行が存在しない場合はmodel.ErrDayNotFoundを返す。
	CreateSession(ctx context.Context, userID *int64, date, start time.Time) (*model.AnalyticsSession, error)

	// OpenSession は1トランザクションで日次集計行の保証、Liveセッションの作成、
	// current_active_usersのインクリメント、max_active_usersの更新を行う。
	OpenSession(ctx context.Context, userID *int64, start time.Time) (*model.AnalyticsSession, error)

	// RenewSession は指定ユーザーの最新Liveセッションの見込みセッション長を
	// 「now + TTL - start」に更新し、日次集計のmax_session_lengthへ反映する。
	// Liveセッションが存在しない場合はnilを返す（エラーにしない）。
	RenewSession(ctx context.Context, userID int64, now time.Time, ttl time.Duration) (*model.AnalyticsSession, error)

	// TerminateSession は指定IDのセッションを終了する。
	// session_end/session_lengthの確定、current_active_usersのデクリメント
	// （0でクランプ）、min/maxの更新、meanの再計算を1トランザクションで行う。
	// すでに終了済みの場合はmodel.ErrSessionAlreadyEndedを返す。
	// セッションが存在しない場合はnilを返す。
	TerminateSession(ctx context.Context, sessionID int64, end time.Time) (*model.AnalyticsSession, error)

	// TerminateUserSession は指定ユーザーの最新Liveセッションを終了する。
	// Liveセッションが存在しない場合はnilを返す（冪等ログアウト）。
	TerminateUserSession(ctx context.Context, userID int64, end time.Time) (*model.AnalyticsSession, error)

	// FindSessionByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
	FindSessionByID(ctx context.Context, id int64) (*model.AnalyticsSession, error)

	// FindLiveSessionByUser は指定ユーザーの最新（session_start降順）の
	// Liveセッションを取得する。見つからない場合はnilを返す。
	FindLiveSessionByUser(ctx context.Context, userID int64) (*model.AnalyticsSession, error)

	// GetDay は指定日の日次集計を取得する。見つからない場合はnilを返す。
	GetDay(ctx context.Context, date time.Time) (*model.DayStats, error)

	// PercentileSessionLength はその日の終了済みセッション長のp分位点
	// （連続補間、pは0〜100）を返す。終了済みセッションがない場合は0を返す。
	PercentileSessionLength(ctx context.Context, date time.Time, p float64) (time.Duration, error)

	// ListStaleLiveSessions は開始からolderThanより前のLiveセッションを返す。
	// 外部の突き合わせジョブがTTL切れセッションを閉じるために使用する。
	ListStaleLiveSessions(ctx context.Context, olderThan time.Time, limit int) ([]*model.AnalyticsSession, error)
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
