// Package auth はパスワード認証とJWTの発行・検証を提供する。
// トークンはユーザーごとに1つだけ有効で、再ログインで古いトークンは失効する。
package auth

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/geodle/internal/model"
	"github.com/hitoshi/geodle/internal/repository"
)

// maxTokenLifetime はトークン有効期限の上限。
// クライアントが指定する有効期限は現在から1時間以内でなければならない。
const maxTokenLifetime = time.Hour

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	userRepo  repository.UserRepository
	tokenRepo repository.AuthTokenRepository
	secret    []byte

	// テストで時刻を固定するためのフック
	now func() time.Time
}

// NewService はServiceを生成する。
func NewService(userRepo repository.UserRepository, tokenRepo repository.AuthTokenRepository, secret []byte) *Service {
	return &Service{
		userRepo:  userRepo,
		tokenRepo: tokenRepo,
		secret:    secret,
		now:       time.Now,
	}
}

// Login はユーザー名とパスワードで認証し、JWTを発行する。
// expiresAtがnilの場合は上限いっぱい（1時間後）を使用する。
// 発行したトークンはユーザーの既存トークンを置き換える。
func (s *Service) Login(ctx context.Context, name, password string, expiresAt *time.Time) (*model.AuthToken, *model.User, error) {
	now := s.now()

	expiry := now.Add(maxTokenLifetime)
	if expiresAt != nil {
		e := expiresAt.UTC()
		if !e.After(now) || e.After(now.Add(maxTokenLifetime)) {
			return nil, nil, model.NewInvalidExpiryError()
		}
		expiry = e
	}

	user, err := s.userRepo.FindByName(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, nil, model.NewUnauthorizedError()
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return nil, nil, model.NewInvalidPasswordError()
	}

	claims := jwt.RegisteredClaims{
		Subject:   strconv.FormatInt(user.ID, 10),
		ExpiresAt: jwt.NewNumericDate(expiry),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.New().String(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return nil, nil, fmt.Errorf("トークンの署名に失敗しました: %w", err)
	}

	token := &model.AuthToken{
		UserID:    user.ID,
		Token:     signed,
		ExpiresAt: expiry.UTC(),
	}
	if err := s.tokenRepo.Replace(ctx, token); err != nil {
		return nil, nil, fmt.Errorf("トークンの保存に失敗しました: %w", err)
	}

	slog.Info("ユーザーがログインしました",
		slog.Int64("user_id", user.ID),
		slog.Time("expires_at", token.ExpiresAt),
	)

	return token, user, nil
}

// Validate はJWTを検証し、対応するユーザーIDを返す。
// 署名・有効期限の検証に加え、保存済みトークンと一致することを確認する。
// 保存済みトークンが期限切れの場合は削除してから認証失敗を返す。
func (s *Service) Validate(ctx context.Context, tokenString string) (int64, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &jwt.RegisteredClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("予期しない署名方式です: %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil || !parsed.Valid {
		return 0, model.NewUnauthorizedError()
	}

	claims, ok := parsed.Claims.(*jwt.RegisteredClaims)
	if !ok {
		return 0, model.NewUnauthorizedError()
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil {
		return 0, model.NewUnauthorizedError()
	}

	stored, err := s.tokenRepo.FindByUserID(ctx, userID)
	if err != nil {
		return 0, fmt.Errorf("トークンの取得に失敗しました: %w", err)
	}
	if stored == nil || stored.Token != tokenString {
		// 再ログインで置き換えられた古いトークン
		return 0, model.NewUnauthorizedError()
	}

	if !stored.ExpiresAt.After(s.now()) {
		if err := s.tokenRepo.DeleteByUserID(ctx, userID); err != nil {
			return 0, fmt.Errorf("期限切れトークンの削除に失敗しました: %w", err)
		}
		return 0, model.NewUnauthorizedError()
	}

	return userID, nil
}

// Logout は指定ユーザーの発行済みトークンを破棄する。
func (s *Service) Logout(ctx context.Context, userID int64) error {
	if err := s.tokenRepo.DeleteByUserID(ctx, userID); err != nil {
		return fmt.Errorf("トークンの削除に失敗しました: %w", err)
	}

	slog.Info("ユーザーがログアウトしました", slog.Int64("user_id", userID))
	return nil
}

// HashPassword はパスワードをbcryptでハッシュ化する。
func HashPassword(password string) ([]byte, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("パスワードのハッシュ化に失敗しました: %w", err)
	}
	return hash, nil
}

// VerifyPassword はパスワードがハッシュと一致するかを確認する。
func VerifyPassword(hash []byte, password string) error {
	return bcrypt.CompareHashAndPassword(hash, []byte(password))
}
