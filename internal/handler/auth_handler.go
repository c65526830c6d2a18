package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/hitoshi/geodle/internal/middleware"
	"github.com/hitoshi/geodle/internal/model"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	// Login はユーザー名とパスワードで認証し、JWTを発行する。
	Login(ctx context.Context, name, password string, expiresAt *time.Time) (*model.AuthToken, *model.User, error)
	// Logout は指定ユーザーの発行済みトークンを破棄する。
	Logout(ctx context.Context, userID int64) error
}

// SessionTracker はログイン・ログアウトをセッション分析に通知するインターフェース。
type SessionTracker interface {
	// TrackActivity はアクティビティイベントとしてセッションを開始・延長する。
	TrackActivity(ctx context.Context, userID int64) (*model.AnalyticsSession, error)
	// TerminateByUser はユーザーのLiveセッションを終了する。
	TerminateByUser(ctx context.Context, userID int64) (*model.AnalyticsSession, error)
}

// LoginRecorder はログイン結果のメトリクスを記録するインターフェース。
type LoginRecorder interface {
	RecordLogin()
	RecordLoginFailure()
}

// AuthHandler は認証関連のHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	tracker  SessionTracker
	recorder LoginRecorder // nilの場合は記録しない
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, tracker SessionTracker, recorder LoginRecorder) *AuthHandler {
	return &AuthHandler{
		service:  service,
		tracker:  tracker,
		recorder: recorder,
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Name      string     `json:"name"`
	Password  string     `json:"password"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// loginResponse はログイン成功時のレスポンス。
type loginResponse struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	UserID    int64     `json:"user_id"`
}

// Login はパスワード認証を行いJWTを発行する。
// 認証成功はアクティビティイベントとしてセッション分析に通知する。
// POST /v2/authentications
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeInvalidRequestError(w)
		return
	}

	if req.Name == "" || req.Password == "" {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "ユーザー名とパスワードは必須です。",
			Category: "validation",
			Action:   "ユーザー名とパスワードを指定してください。",
		})
		return
	}

	token, user, err := h.service.Login(r.Context(), req.Name, req.Password, req.ExpiresAt)
	if err != nil {
		if h.recorder != nil {
			h.recorder.RecordLoginFailure()
		}
		handleServiceError(w, err)
		return
	}

	if h.recorder != nil {
		h.recorder.RecordLogin()
	}

	// ログイン自体もアクティビティイベントとして扱う
	if _, err := h.tracker.TrackActivity(r.Context(), user.ID); err != nil {
		slog.Error("ログイン時のアクティビティ追跡に失敗しました",
			slog.Int64("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	writeJSON(w, http.StatusCreated, loginResponse{
		Token:     token.Token,
		ExpiresAt: token.ExpiresAt,
		UserID:    token.UserID,
	})
}

// Logout はトークンを破棄し、Liveセッションを終了する。
// DELETE /v2/authentications
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeUnauthorizedError(w)
		return
	}

	if err := h.service.Logout(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	// ログアウトはセッション終了イベント
	if _, err := h.tracker.TerminateByUser(r.Context(), userID); err != nil {
		slog.Error("ログアウト時のセッション終了に失敗しました",
			slog.Int64("user_id", userID),
			slog.String("error", err.Error()),
		)
	}

	w.WriteHeader(http.StatusNoContent)
}
