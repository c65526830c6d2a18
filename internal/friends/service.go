// Package friends はフレンドリクエストとフレンド関係のドメインロジックを提供する。
package friends

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hitoshi/geodle/internal/model"
	"github.com/hitoshi/geodle/internal/repository"
)

// Service はフレンド管理のサービス層。
type Service struct {
	friendRepo repository.FriendshipRepository
	userRepo   repository.UserRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(friendRepo repository.FriendshipRepository, userRepo repository.UserRepository) *Service {
	return &Service{
		friendRepo: friendRepo,
		userRepo:   userRepo,
	}
}

// SendRequest はフレンドリクエストを送信する。
// 自分自身への送信、すでにフレンドのユーザーへの送信、
// 未回答リクエストが存在するペアへの再送信はエラー。
func (s *Service) SendRequest(ctx context.Context, requestorID, requesteeID int64) (*model.FriendRequest, error) {
	if requestorID == requesteeID {
		return nil, model.NewSelfFriendRequestError()
	}

	requestee, err := s.userRepo.FindByID(ctx, requesteeID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if requestee == nil {
		return nil, model.NewUserNotFoundError(requesteeID)
	}

	accepted := model.FriendRequestAccepted
	existing, err := s.friendRepo.FindBetween(ctx, requestorID, requesteeID, &accepted)
	if err != nil {
		return nil, fmt.Errorf("フレンド関係の確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewAlreadyFriendsError()
	}

	pending := model.FriendRequestPending
	existing, err = s.friendRepo.FindBetween(ctx, requestorID, requesteeID, &pending)
	if err != nil {
		return nil, fmt.Errorf("フレンドリクエストの確認に失敗しました: %w", err)
	}
	if existing != nil {
		return nil, model.NewPendingRequestError()
	}

	req, err := s.friendRepo.CreateRequest(ctx, requestorID, requesteeID)
	if err != nil {
		return nil, fmt.Errorf("フレンドリクエストの作成に失敗しました: %w", err)
	}
	if req == nil {
		// 同時送信で先を越された場合
		return nil, model.NewPendingRequestError()
	}

	slog.Info("フレンドリクエストを送信しました",
		slog.Int64("requestor_id", requestorID),
		slog.Int64("requestee_id", requesteeID),
	)

	return req, nil
}

// Respond はフレンドリクエストに回答する。
// 回答できるのはリクエストの受信者のみ。decisionはacceptedまたはdeclined。
func (s *Service) Respond(ctx context.Context, userID, requestID int64, decision string) (*model.FriendRequest, error) {
	status := model.FriendRequestStatus(decision)
	if status != model.FriendRequestAccepted && status != model.FriendRequestDeclined {
		return nil, model.NewInvalidDecisionError(decision)
	}

	req, err := s.friendRepo.FindRequestByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("フレンドリクエストの取得に失敗しました: %w", err)
	}
	// 他人宛・回答済みのリクエストは存在しないものとして扱う
	if req == nil || req.RequesteeID != userID || req.Status != model.FriendRequestPending {
		return nil, model.NewRequestNotFoundError(requestID)
	}

	if err := s.friendRepo.UpdateStatus(ctx, requestID, status); err != nil {
		return nil, fmt.Errorf("フレンドリクエストの更新に失敗しました: %w", err)
	}

	req.Status = status

	slog.Info("フレンドリクエストに回答しました",
		slog.Int64("request_id", requestID),
		slog.String("decision", decision),
	)

	return req, nil
}

// ListFriends は指定ユーザーのフレンド一覧を返す。
func (s *Service) ListFriends(ctx context.Context, userID int64) ([]*model.User, error) {
	friends, err := s.friendRepo.ListFriends(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("フレンド一覧の取得に失敗しました: %w", err)
	}
	return friends, nil
}

// ListIncoming は指定ユーザー宛の未回答リクエストを返す。
func (s *Service) ListIncoming(ctx context.Context, userID int64) ([]*model.FriendRequest, error) {
	reqs, err := s.friendRepo.ListIncoming(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("受信リクエスト一覧の取得に失敗しました: %w", err)
	}
	return reqs, nil
}

// ListOutgoing は指定ユーザー発の未回答リクエストを返す。
func (s *Service) ListOutgoing(ctx context.Context, userID int64) ([]*model.FriendRequest, error) {
	reqs, err := s.friendRepo.ListOutgoing(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("送信リクエスト一覧の取得に失敗しました: %w", err)
	}
	return reqs, nil
}

// Unfriend はフレンド関係を解除する。
// 2ユーザー間のリクエストを方向を問わず削除する。冪等。
func (s *Service) Unfriend(ctx context.Context, userID, otherID int64) error {
	if err := s.friendRepo.DeleteBetween(ctx, userID, otherID); err != nil {
		return fmt.Errorf("フレンド関係の削除に失敗しました: %w", err)
	}

	slog.Info("フレンド関係を解除しました",
		slog.Int64("user_id", userID),
		slog.Int64("other_id", otherID),
	)
	return nil
}
