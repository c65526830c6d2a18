// Package leaderboard はゲーム成績のリーダーボードのドメインロジックを提供する。
package leaderboard

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/geodle/internal/model"
	"github.com/hitoshi/geodle/internal/repository"
)

// defaultLimit は上位一覧のデフォルト件数。
const defaultLimit = 10

// RankedEntry はリーダーボードエントリに順位とユーザー名を付与したもの。
type RankedEntry struct {
	Rank     int
	UserName string
	Entry    *model.LeaderboardEntry
}

// EntryUpdate はエントリ更新の入力。nilのフィールドは変更しない。
type EntryUpdate struct {
	DailyStreak           *int
	LongestDailyStreak    *int
	AverageDailyGuesses   *float64
	AverageDailyTime      *float64
	LongestSurvivalStreak *int
}

// Service はリーダーボードのサービス層。
type Service struct {
	lbRepo   repository.LeaderboardRepository
	userRepo repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(lbRepo repository.LeaderboardRepository, userRepo repository.UserRepository) *Service {
	return &Service{
		lbRepo:   lbRepo,
		userRepo: userRepo,
	}
}

// Get は指定ユーザーのエントリを取得する。
func (s *Service) Get(ctx context.Context, userID int64) (*model.LeaderboardEntry, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	entry, err := s.lbRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リーダーボードエントリの取得に失敗しました: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(userID)
	}

	return entry, nil
}

// Update は指定ユーザーのエントリを部分更新する。
// エントリが存在しない場合はゼロ値で作成してから更新する。
func (s *Service) Update(ctx context.Context, userID int64, update EntryUpdate) (*model.LeaderboardEntry, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(userID)
	}

	if err := s.lbRepo.EnsureEntry(ctx, userID); err != nil {
		return nil, fmt.Errorf("リーダーボードエントリの作成に失敗しました: %w", err)
	}

	entry, err := s.lbRepo.FindByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("リーダーボードエントリの取得に失敗しました: %w", err)
	}
	if entry == nil {
		return nil, model.NewEntryNotFoundError(userID)
	}

	if update.DailyStreak != nil {
		entry.DailyStreak = *update.DailyStreak
	}
	if update.LongestDailyStreak != nil {
		entry.LongestDailyStreak = *update.LongestDailyStreak
	}
	if update.AverageDailyGuesses != nil {
		entry.AverageDailyGuesses = *update.AverageDailyGuesses
	}
	if update.AverageDailyTime != nil {
		entry.AverageDailyTime = *update.AverageDailyTime
	}
	if update.LongestSurvivalStreak != nil {
		entry.LongestSurvivalStreak = *update.LongestSurvivalStreak
	}

	if err := s.lbRepo.Update(ctx, entry); err != nil {
		return nil, fmt.Errorf("リーダーボードエントリの更新に失敗しました: %w", err)
	}

	slog.Info("リーダーボードエントリを更新しました", slog.Int64("user_id", userID))

	return entry, nil
}

// Top は最長デイリーストリーク降順の上位一覧をユーザー名付きで返す。
// limitが0以下の場合はデフォルト件数を使用する。
func (s *Service) Top(ctx context.Context, limit, offset int) ([]RankedEntry, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, err := s.lbRepo.ListTop(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("リーダーボード上位の取得に失敗しました: %w", err)
	}

	ranked := make([]RankedEntry, len(entries))
	for i, entry := range entries {
		ranked[i] = RankedEntry{
			Rank:  offset + i + 1,
			Entry: entry,
		}

		user, err := s.userRepo.FindByID(ctx, entry.UserID)
		if err != nil {
			return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
		}
		if user != nil {
			ranked[i].UserName = user.Name
		}
	}

	return ranked, nil
}
