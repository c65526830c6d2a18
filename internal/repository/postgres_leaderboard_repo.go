package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/geodle/internal/model"
)

// PostgresLeaderboardRepo はPostgreSQLを使用したリーダーボードリポジトリ。
type PostgresLeaderboardRepo struct {
	db *sql.DB
}

// NewPostgresLeaderboardRepo はPostgresLeaderboardRepoを生成する。
func NewPostgresLeaderboardRepo(db *sql.DB) *PostgresLeaderboardRepo {
	return &PostgresLeaderboardRepo{db: db}
}

// EnsureEntry は指定ユーザーのエントリがなければゼロ値で作成する。冪等。
func (r *PostgresLeaderboardRepo) EnsureEntry(ctx context.Context, userID int64) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO leaderboard_entries (user_id)
		 VALUES ($1)
		 ON CONFLICT (user_id) DO NOTHING`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("リーダーボードエントリの作成に失敗しました: %w", err)
	}
	return nil
}

// FindByUserID は指定ユーザーのエントリを取得する。見つからない場合はnilを返す。
func (r *PostgresLeaderboardRepo) FindByUserID(ctx context.Context, userID int64) (*model.LeaderboardEntry, error) {
	entry := &model.LeaderboardEntry{}
	err := r.db.QueryRowContext(ctx,
		`SELECT id, user_id, daily_streak, longest_daily_streak,
		        average_daily_guesses, average_daily_time, longest_survival_streak
		 FROM leaderboard_entries
		 WHERE user_id = $1`,
		userID,
	).Scan(
		&entry.ID, &entry.UserID,
		&entry.DailyStreak, &entry.LongestDailyStreak,
		&entry.AverageDailyGuesses, &entry.AverageDailyTime,
		&entry.LongestSurvivalStreak,
	)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("リーダーボードエントリの取得に失敗しました: %w", err)
	}

	return entry, nil
}

// Update はエントリの成績フィールドを更新する。
func (r *PostgresLeaderboardRepo) Update(ctx context.Context, entry *model.LeaderboardEntry) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE leaderboard_entries
		 SET daily_streak = $2,
		     longest_daily_streak = $3,
		     average_daily_guesses = $4,
		     average_daily_time = $5,
		     longest_survival_streak = $6
		 WHERE user_id = $1`,
		entry.UserID,
		entry.DailyStreak, entry.LongestDailyStreak,
		entry.AverageDailyGuesses, entry.AverageDailyTime,
		entry.LongestSurvivalStreak,
	)
	if err != nil {
		return fmt.Errorf("リーダーボードエントリの更新に失敗しました: %w", err)
	}
	return nil
}

// ListTop は最長デイリーストリーク降順で上位エントリを返す。
func (r *PostgresLeaderboardRepo) ListTop(ctx context.Context, limit, offset int) ([]*model.LeaderboardEntry, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, user_id, daily_streak, longest_daily_streak,
		        average_daily_guesses, average_daily_time, longest_survival_streak
		 FROM leaderboard_entries
		 ORDER BY longest_daily_streak DESC, id
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("リーダーボード上位の取得に失敗しました: %w", err)
	}
	defer rows.Close()

	var entries []*model.LeaderboardEntry
	for rows.Next() {
		entry := &model.LeaderboardEntry{}
		if err := rows.Scan(
			&entry.ID, &entry.UserID,
			&entry.DailyStreak, &entry.LongestDailyStreak,
			&entry.AverageDailyGuesses, &entry.AverageDailyTime,
			&entry.LongestSurvivalStreak,
		); err != nil {
			return nil, fmt.Errorf("リーダーボードエントリの読み取りに失敗しました: %w", err)
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("リーダーボード一覧の走査に失敗しました: %w", err)
	}

	return entries, nil
}

// compile-time interface check
var _ LeaderboardRepository = (*PostgresLeaderboardRepo)(nil)
