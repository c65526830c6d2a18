package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/hitoshi/geodle/internal/model"
)

// maxTxRetries は直列化失敗時の最大試行回数。
const maxTxRetries = 3

// PostgresAnalyticsRepo はPostgreSQLを使用したセッション分析ストア。
// タイムスタンプは書き込み境界でUTCに正規化し、読み出し時もUTCに揃える。
// naiveなタイムスタンプがこの層より内側に入ることはない。
type PostgresAnalyticsRepo struct {
	db *sql.DB
}

// NewPostgresAnalyticsRepo はPostgresAnalyticsRepoを生成する。
func NewPostgresAnalyticsRepo(db *sql.DB) *PostgresAnalyticsRepo {
	return &PostgresAnalyticsRepo{db: db}
}

// EnsureDay は指定日の日次集計行を冪等に作成し、返す。
func (r *PostgresAnalyticsRepo) EnsureDay(ctx context.Context, date time.Time) (*model.DayStats, error) {
	day := model.DateOf(date)

	_, err := r.db.ExecContext(ctx,
		`INSERT INTO day_analytics (date) VALUES ($1) ON CONFLICT (date) DO NOTHING`,
		day,
	)
	if err != nil {
		return nil, fmt.Errorf("日次集計行の作成に失敗しました: %w", err)
	}

	return r.GetDay(ctx, day)
}

// CreateSession はLiveセッションを挿入する。
// 対象日の集計行が存在しない場合はmodel.ErrDayNotFoundを返す。
func (r *PostgresAnalyticsRepo) CreateSession(ctx context.Context, userID *int64, date, start time.Time) (*model.AnalyticsSession, error) {
	day := model.DateOf(date)
	session := &model.AnalyticsSession{
		UserID: userID,
		Date:   day,
		Start:  start.UTC(),
	}

	err := r.db.QueryRowContext(ctx,
		`INSERT INTO session_analytics (user_id, session_date, session_start)
		 VALUES ($1, $2, $3)
		 RETURNING id`,
		nullInt64(userID), day, session.Start,
	).Scan(&session.ID)

	if err != nil {
		var pqErr *pq.Error
		// 23503 = foreign_key_violation: 日次集計行が未作成のまま呼ばれた契約違反
		if errors.As(err, &pqErr) && pqErr.Code == "23503" {
			return nil, model.ErrDayNotFound
		}
		return nil, fmt.Errorf("セッションの作成に失敗しました: %w", err)
	}

	return session, nil
}

// OpenSession は1トランザクションで日次集計行の保証、Liveセッションの作成、
// current_active_usersのインクリメント、max_active_usersの更新を行う。
func (r *PostgresAnalyticsRepo) OpenSession(ctx context.Context, userID *int64, start time.Time) (*model.AnalyticsSession, error) {
	day := model.DateOf(start)
	session := &model.AnalyticsSession{
		UserID: userID,
		Date:   day,
		Start:  start.UTC(),
	}

	err := r.withTxRetry(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO day_analytics (date) VALUES ($1) ON CONFLICT (date) DO NOTHING`,
			day,
		); err != nil {
			return fmt.Errorf("日次集計行の作成に失敗しました: %w", err)
		}

		if err := tx.QueryRowContext(ctx,
			`INSERT INTO session_analytics (user_id, session_date, session_start)
			 VALUES ($1, $2, $3)
			 RETURNING id`,
			nullInt64(userID), day, session.Start,
		).Scan(&session.ID); err != nil {
			return fmt.Errorf("セッションの作成に失敗しました: %w", err)
		}

		// 同時アクセスのピークはGREATESTで単調に更新する
		if _, err := tx.ExecContext(ctx,
			`UPDATE day_analytics
			 SET current_active_users = current_active_users + 1,
			     max_active_users = GREATEST(max_active_users, current_active_users + 1)
			 WHERE date = $1`,
			day,
		); err != nil {
			return fmt.Errorf("アクティブユーザー数の更新に失敗しました: %w", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// RenewSession は指定ユーザーの最新Liveセッションの見込みセッション長を
// 「now + TTL - start」に更新する。session_endは変更しない。
// 見込み値が日次集計のmax_session_lengthを超える場合は反映する。
// Liveセッションが存在しない場合はnilを返す（エラーにしない）。
func (r *PostgresAnalyticsRepo) RenewSession(ctx context.Context, userID int64, now time.Time, ttl time.Duration) (*model.AnalyticsSession, error) {
	var session *model.AnalyticsSession

	err := r.withTxRetry(ctx, func(tx *sql.Tx) error {
		session = nil

		s, err := scanSession(tx.QueryRowContext(ctx,
			`SELECT id, user_id, session_date, session_start, session_end, session_length
			 FROM session_analytics
			 WHERE user_id = $1 AND session_end IS NULL
			 ORDER BY session_start DESC
			 LIMIT 1
			 FOR UPDATE`,
			userID,
		))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("Liveセッションの取得に失敗しました: %w", err)
		}

		// 見込みセッション長。終了時に確定値で上書きされる。
		projected := now.UTC().Add(ttl).Sub(s.Start)
		if _, err := tx.ExecContext(ctx,
			`UPDATE session_analytics SET session_length = $1 WHERE id = $2`,
			projected.Nanoseconds(), s.ID,
		); err != nil {
			return fmt.Errorf("見込みセッション長の更新に失敗しました: %w", err)
		}

		if _, err := tx.ExecContext(ctx,
			`UPDATE day_analytics
			 SET max_session_length = GREATEST(COALESCE(max_session_length, $1), $1)
			 WHERE date = $2`,
			projected.Nanoseconds(), s.Date,
		); err != nil {
			return fmt.Errorf("最長セッション長の更新に失敗しました: %w", err)
		}

		s.Length = &projected
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// TerminateSession は指定IDのセッションを終了する。
// すでに終了済みの場合はmodel.ErrSessionAlreadyEndedを返す。
// セッションが存在しない場合はnilを返す。
func (r *PostgresAnalyticsRepo) TerminateSession(ctx context.Context, sessionID int64, end time.Time) (*model.AnalyticsSession, error) {
	return r.terminate(ctx,
		`SELECT id, user_id, session_date, session_start, session_end, session_length
		 FROM session_analytics
		 WHERE id = $1
		 FOR UPDATE`,
		sessionID, end,
	)
}

// TerminateUserSession は指定ユーザーの最新Liveセッションを終了する。
// Liveセッションが存在しない場合はnilを返す（冪等ログアウト）。
func (r *PostgresAnalyticsRepo) TerminateUserSession(ctx context.Context, userID int64, end time.Time) (*model.AnalyticsSession, error) {
	session, err := r.terminate(ctx,
		`SELECT id, user_id, session_date, session_start, session_end, session_length
		 FROM session_analytics
		 WHERE user_id = $1 AND session_end IS NULL
		 ORDER BY session_start DESC
		 LIMIT 1
		 FOR UPDATE`,
		userID, end,
	)
	// 対象ユーザーにLiveセッションがない場合のAlreadyEndedはあり得ない
	// （session_end IS NULLで絞っているため）が、二重終了の競合で同じ行を
	// 取った場合に備えて同様に扱う。
	if errors.Is(err, model.ErrSessionAlreadyEnded) {
		return nil, err
	}
	return session, err
}

// terminate はロック付きで1セッションを選択し、終了処理と日次集計の更新を行う。
func (r *PostgresAnalyticsRepo) terminate(ctx context.Context, selectQuery string, arg int64, end time.Time) (*model.AnalyticsSession, error) {
	var session *model.AnalyticsSession

	err := r.withTxRetry(ctx, func(tx *sql.Tx) error {
		session = nil

		s, err := scanSession(tx.QueryRowContext(ctx, selectQuery, arg))
		if err == sql.ErrNoRows {
			return nil
		}
		if err != nil {
			return fmt.Errorf("セッションの取得に失敗しました: %w", err)
		}

		if s.End != nil {
			return model.ErrSessionAlreadyEnded
		}

		endUTC := end.UTC()
		length := endUTC.Sub(s.Start)

		if _, err := tx.ExecContext(ctx,
			`UPDATE session_analytics SET session_end = $1, session_length = $2 WHERE id = $3`,
			endUTC, length.Nanoseconds(), s.ID,
		); err != nil {
			return fmt.Errorf("セッションの終了に失敗しました: %w", err)
		}

		// current_active_usersは0でクランプし、min/maxを畳み込む
		if _, err := tx.ExecContext(ctx,
			`UPDATE day_analytics
			 SET current_active_users = GREATEST(current_active_users - 1, 0),
			     min_session_length = LEAST(COALESCE(min_session_length, $1), $1),
			     max_session_length = GREATEST(COALESCE(max_session_length, $1), $1)
			 WHERE date = $2`,
			length.Nanoseconds(), s.Date,
		); err != nil {
			return fmt.Errorf("日次集計の更新に失敗しました: %w", err)
		}

		// meanは終了済みセッション全体から再計算する。
		// インクリメンタル更新より1回あたりのコストは高いが、
		// 同時終了の競合下でも正しい値に収束する。
		if _, err := tx.ExecContext(ctx,
			`UPDATE day_analytics
			 SET mean_session_length = (
			     SELECT AVG(session_length)::BIGINT
			     FROM session_analytics
			     WHERE session_date = $1 AND session_end IS NOT NULL
			 )
			 WHERE date = $1`,
			s.Date,
		); err != nil {
			return fmt.Errorf("平均セッション長の再計算に失敗しました: %w", err)
		}

		s.End = &endUTC
		s.Length = &length
		session = s
		return nil
	})
	if err != nil {
		return nil, err
	}

	return session, nil
}

// FindSessionByID は指定IDのセッションを取得する。見つからない場合はnilを返す。
func (r *PostgresAnalyticsRepo) FindSessionByID(ctx context.Context, id int64) (*model.AnalyticsSession, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_date, session_start, session_end, session_length
		 FROM session_analytics
		 WHERE id = $1`,
		id,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの取得に失敗しました: %w", err)
	}
	return session, nil
}

// FindLiveSessionByUser は指定ユーザーの最新のLiveセッションを取得する。
// 見つからない場合はnilを返す。過去の障害で残った古いLive行があっても、
// 常に最も新しく開始された1件を対象にする。
func (r *PostgresAnalyticsRepo) FindLiveSessionByUser(ctx context.Context, userID int64) (*model.AnalyticsSession, error) {
	session, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT id, user_id, session_date, session_start, session_end, session_length
		 FROM session_analytics
		 WHERE user_id = $1 AND session_end IS NULL
		 ORDER BY session_start DESC
		 LIMIT 1`,
		userID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("Liveセッションの取得に失敗しました: %w", err)
	}
	return session, nil
}

// GetDay は指定日の日次集計を取得する。見つからない場合はnilを返す。
func (r *PostgresAnalyticsRepo) GetDay(ctx context.Context, date time.Time) (*model.DayStats, error) {
	day := &model.DayStats{}
	var minLen, maxLen, meanLen sql.NullInt64
	var d time.Time

	err := r.db.QueryRowContext(ctx,
		`SELECT date, min_session_length, max_session_length, mean_session_length,
		        current_active_users, max_active_users
		 FROM day_analytics
		 WHERE date = $1`,
		model.DateOf(date),
	).Scan(&d, &minLen, &maxLen, &meanLen, &day.CurrentActiveUsers, &day.MaxActiveUsers)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("日次集計の取得に失敗しました: %w", err)
	}

	day.Date = model.DateOf(d)
	day.MinSessionLength = nullDuration(minLen)
	day.MaxSessionLength = nullDuration(maxLen)
	day.MeanSessionLength = nullDuration(meanLen)

	return day, nil
}

// PercentileSessionLength はその日の終了済みセッション長のp分位点を返す。
// 終了済みセッションがない場合は0を返す。
func (r *PostgresAnalyticsRepo) PercentileSessionLength(ctx context.Context, date time.Time, p float64) (time.Duration, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT session_length
		 FROM session_analytics
		 WHERE session_date = $1 AND session_end IS NOT NULL
		 ORDER BY session_length`,
		model.DateOf(date),
	)
	if err != nil {
		return 0, fmt.Errorf("セッション長一覧の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var lengths []time.Duration
	for rows.Next() {
		var nanos int64
		if err := rows.Scan(&nanos); err != nil {
			return 0, fmt.Errorf("セッション長の読み取りに失敗しました: %w", err)
		}
		lengths = append(lengths, time.Duration(nanos))
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("セッション長一覧の走査に失敗しました: %w", err)
	}

	return Percentile(lengths, p), nil
}

// ListStaleLiveSessions は開始からolderThanより前のLiveセッションを返す。
func (r *PostgresAnalyticsRepo) ListStaleLiveSessions(ctx context.Context, olderThan time.Time, limit int) ([]*model.AnalyticsSession, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, session_date, session_start, session_end, session_length
		 FROM session_analytics
		 WHERE session_end IS NULL AND session_start < $1
		 ORDER BY session_start
		 LIMIT $2`,
		olderThan.UTC(), limit,
	)
	if err != nil {
		return nil, fmt.Errorf("停滞Liveセッションの取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var sessions []*model.AnalyticsSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("セッションの読み取りに失敗しました: %w", err)
		}
		sessions = append(sessions, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("セッション一覧の走査に失敗しました: %w", err)
	}

	return sessions, nil
}

// withTxRetry はトランザクション内でfnを実行する。
// 直列化失敗（40001）とデッドロック（40P01）はmaxTxRetries回まで透過的に再試行する。
func (r *PostgresAnalyticsRepo) withTxRetry(ctx context.Context, fn func(tx *sql.Tx) error) error {
	var lastErr error

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		tx, err := r.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("トランザクションの開始に失敗しました: %w", err)
		}

		if err := fn(tx); err != nil {
			tx.Rollback()
			if isRetryableTxError(err) {
				lastErr = err
				continue
			}
			return err
		}

		if err := tx.Commit(); err != nil {
			if isRetryableTxError(err) {
				lastErr = err
				continue
			}
			return fmt.Errorf("トランザクションのコミットに失敗しました: %w", err)
		}

		return nil
	}

	return fmt.Errorf("トランザクションの再試行回数を超えました: %w", lastErr)
}

// isRetryableTxError は再試行可能なトランザクションエラーかどうかを判定する。
func isRetryableTxError(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		// 40001 = serialization_failure, 40P01 = deadlock_detected
		return pqErr.Code == "40001" || pqErr.Code == "40P01"
	}
	return false
}

// rowScanner は*sql.Rowと*sql.Rowsの共通部分。
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// scanSession はセッション行を読み取り、タイムスタンプをUTCに正規化する。
func scanSession(row rowScanner) (*model.AnalyticsSession, error) {
	s := &model.AnalyticsSession{}
	var userID sql.NullInt64
	var end sql.NullTime
	var length sql.NullInt64
	var date time.Time

	if err := row.Scan(&s.ID, &userID, &date, &s.Start, &end, &length); err != nil {
		return nil, err
	}

	s.Date = model.DateOf(date)
	s.Start = s.Start.UTC()
	if userID.Valid {
		s.UserID = &userID.Int64
	}
	if end.Valid {
		t := end.Time.UTC()
		s.End = &t
	}
	s.Length = nullDuration(length)

	return s, nil
}

// nullInt64 は*int64をsql.NullInt64に変換する。
func nullInt64(v *int64) sql.NullInt64 {
	if v == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *v, Valid: true}
}

// nullDuration はナノ秒のNullInt64を*time.Durationに変換する。
func nullDuration(v sql.NullInt64) *time.Duration {
	if !v.Valid {
		return nil
	}
	d := time.Duration(v.Int64)
	return &d
}

// compile-time interface check
var _ AnalyticsRepository = (*PostgresAnalyticsRepo)(nil)
