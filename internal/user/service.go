// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/geodle/internal/auth"
	"github.com/hitoshi/geodle/internal/model"
	"github.com/hitoshi/geodle/internal/repository"
)

// Service はユーザー管理のサービス層。
// 登録、取得、更新、削除のビジネスロジックを提供する。
type Service struct {
	userRepo        repository.UserRepository
	leaderboardRepo repository.LeaderboardRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(userRepo repository.UserRepository, leaderboardRepo repository.LeaderboardRepository) *Service {
	return &Service{
		userRepo:        userRepo,
		leaderboardRepo: leaderboardRepo,
	}
}

// Register は新規ユーザーを登録する。
// パスワードはbcryptでハッシュ化して保存し、リーダーボードエントリを
// ゼロ値で作成する。名前またはメールアドレスが重複する場合はエラー。
func (s *Service) Register(ctx context.Context, name, email, password string) (*model.User, error) {
	hash, err := auth.HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.userRepo.Create(ctx, name, email, hash)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの作成に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewDuplicateUserError()
	}

	if err := s.leaderboardRepo.EnsureEntry(ctx, user.ID); err != nil {
		return nil, fmt.Errorf("リーダーボードエントリの作成に失敗しました: %w", err)
	}

	slog.Info("ユーザーを登録しました",
		slog.Int64("user_id", user.ID),
		slog.String("name", user.Name),
	)

	return user, nil
}

// Get は指定IDのユーザーを取得する。
func (s *Service) Get(ctx context.Context, id int64) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return user, nil
}

// List は全ユーザーを返す。
func (s *Service) List(ctx context.Context) ([]*model.User, error) {
	users, err := s.userRepo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("ユーザー一覧の取得に失敗しました: %w", err)
	}
	return users, nil
}

// Update はユーザーの名前・メールアドレスを部分更新する。
// nilのフィールドは変更しない。
func (s *Service) Update(ctx context.Context, id int64, name, email *string) (*model.User, error) {
	user, err := s.userRepo.Update(ctx, id, name, email)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの更新に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError(id)
	}
	return user, nil
}

// ChangePassword は現在のパスワードを確認した上で新しいパスワードに変更する。
func (s *Service) ChangePassword(ctx context.Context, id int64, current, updated string) error {
	user, err := s.userRepo.FindByID(ctx, id)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError(id)
	}

	if err := auth.VerifyPassword(user.PasswordHash, current); err != nil {
		return model.NewInvalidPasswordError()
	}

	hash, err := auth.HashPassword(updated)
	if err != nil {
		return err
	}
	if err := s.userRepo.UpdatePassword(ctx, id, hash); err != nil {
		return fmt.Errorf("パスワードの更新に失敗しました: %w", err)
	}

	slog.Info("パスワードを変更しました", slog.Int64("user_id", id))
	return nil
}

// Delete はユーザーを削除する。
// 関連するトークン・フレンドリクエスト・リーダーボードエントリはCASCADE削除される。
func (s *Service) Delete(ctx context.Context, id int64) error {
	deleted, err := s.userRepo.DeleteByID(ctx, id)
	if err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}
	if !deleted {
		return model.NewUserNotFoundError(id)
	}

	slog.Info("ユーザーを削除しました", slog.Int64("user_id", id))
	return nil
}
