package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/hitoshi/geodle/internal/middleware"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	TokenValidator    middleware.TokenValidator
	ActivityTracker   middleware.ActivityTracker
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	Logger            *slog.Logger

	// サービス
	AuthService        AuthServiceInterface
	SessionTracker     SessionTracker
	LoginRecorder      LoginRecorder // nil可
	UserService        UserServiceInterface
	FriendsService     FriendsServiceInterface
	LeaderboardService LeaderboardServiceInterface
	AnalyticsService   AnalyticsServiceInterface

	// 運用エンドポイント
	MetricsHandler http.Handler // nil可
	HealthChecker  func() error // /healthzで実行。nil可
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → Logging → Recovery → SecurityHeaders → CORS
//	（認証が必要なルートはさらに TokenAuth → RateLimit(General) → Activity）
//
// ユーザー登録とログインは認証の外に置き、ログインにはIPキーのレート制限を適用する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.NewRequestIDMiddleware())
	if deps.Logger != nil {
		r.Use(middleware.NewLoggingMiddleware(deps.Logger))
	}
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.SessionTracker, deps.LoginRecorder)
	userHandler := NewUserHandler(deps.UserService)
	friendsHandler := NewFriendsHandler(deps.FriendsService)
	lbHandler := NewLeaderboardHandler(deps.LeaderboardService)
	analyticsHandler := NewAnalyticsHandler(deps.AnalyticsService)

	// --- 認証不要のルート ---

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		if deps.HealthChecker != nil {
			if err := deps.HealthChecker(); err != nil {
				http.Error(w, "unhealthy", http.StatusServiceUnavailable)
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	// ユーザー登録とログイン（ログインはIPキーのレート制限付き）
	r.Post("/v2/users", userHandler.Register)
	r.With(deps.RateLimiter.AuthMiddleware()).Post("/v2/authentications", authHandler.Login)

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: TokenAuth → RateLimit(General) → Activity
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTokenAuthMiddleware(deps.TokenValidator))
		r.Use(deps.RateLimiter.GeneralMiddleware())
		r.Use(middleware.NewActivityMiddleware(deps.ActivityTracker))

		// 認証
		r.Delete("/v2/authentications", authHandler.Logout)

		// ユーザー管理
		r.Route("/v2/users", func(r chi.Router) {
			r.Get("/", userHandler.List)
			r.Get("/me", userHandler.Me)
			r.Patch("/me", userHandler.UpdateMe)
			r.Put("/me/password", userHandler.ChangePassword)
			r.Delete("/me", userHandler.DeleteMe)
			r.Get("/{id}", userHandler.Get)
		})

		// フレンド管理
		r.Route("/v2/friend-requests", func(r chi.Router) {
			r.Post("/", friendsHandler.SendRequest)
			r.Get("/", friendsHandler.ListRequests)
			r.Patch("/{id}", friendsHandler.Respond)
		})
		r.Route("/v2/friends", func(r chi.Router) {
			r.Get("/", friendsHandler.ListFriends)
			r.Delete("/{id}", friendsHandler.Unfriend)
		})

		// リーダーボード
		r.Route("/v2/leaderboard", func(r chi.Router) {
			r.Get("/", lbHandler.Top)
			r.Get("/me", lbHandler.Me)
			r.Patch("/me", lbHandler.UpdateMe)
		})

		// セッション統計
		r.Get("/v2/analytics", analyticsHandler.Stats)
	})

	return r
}
