package middleware

import (
	"context"
	"log/slog"
	"net/http"
)

// ActivityTracker はアクティビティイベントの通知先インターフェース。
// analytics.Serviceの部分集合として定義する。
type ActivityTracker interface {
	TrackActivity(ctx context.Context, userID int64) error
}

// NewActivityMiddleware は認証済みリクエストをアクティビティイベントとして
// 分析サービスに通知するミドルウェアを返す。トークン認証の後に配置する。
// 追跡の失敗はリクエスト自体を失敗させない（ログのみ）。
func NewActivityMiddleware(tracker ActivityTracker) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if userID, err := UserIDFromContext(r.Context()); err == nil {
				if err := tracker.TrackActivity(r.Context(), userID); err != nil {
					slog.Error("アクティビティの追跡に失敗しました",
						slog.Int64("user_id", userID),
						slog.String("error", err.Error()),
					)
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
