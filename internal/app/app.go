package app

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"

	"github.com/hitoshi/geodle/internal/analytics"
	"github.com/hitoshi/geodle/internal/auth"
	"github.com/hitoshi/geodle/internal/config"
	"github.com/hitoshi/geodle/internal/database"
	"github.com/hitoshi/geodle/internal/friends"
	"github.com/hitoshi/geodle/internal/handler"
	"github.com/hitoshi/geodle/internal/leaderboard"
	"github.com/hitoshi/geodle/internal/liveness"
	"github.com/hitoshi/geodle/internal/logger"
	"github.com/hitoshi/geodle/internal/metrics"
	"github.com/hitoshi/geodle/internal/middleware"
	"github.com/hitoshi/geodle/internal/repository"
	"github.com/hitoshi/geodle/internal/user"
	"github.com/hitoshi/geodle/internal/worker/cleanup"
	"github.com/hitoshi/geodle/internal/worker/reconcile"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// activityTracker はanalytics.Serviceをmiddleware.ActivityTrackerに合わせるアダプタ。
// ミドルウェアは更新後のセッションを必要としない。
type activityTracker struct {
	analytics *analytics.Service
}

func (a activityTracker) TrackActivity(ctx context.Context, userID int64) error {
	_, err := a.analytics.TrackActivity(ctx, userID)
	return err
}

// rateLimiterConfig はreq/min単位の設定値をrate.Limit（req/sec）に変換する。
func rateLimiterConfig(cfg *config.Config) middleware.RateLimiterConfig {
	rlCfg := middleware.DefaultRateLimiterConfig()
	rlCfg.GeneralRate = rate.Limit(float64(cfg.RateLimitGeneral) / 60.0)
	rlCfg.GeneralBurst = cfg.RateLimitGeneral
	rlCfg.AuthRate = rate.Limit(float64(cfg.RateLimitAuth) / 60.0)
	rlCfg.AuthBurst = cfg.RateLimitAuth
	return rlCfg
}

// runServe はAPIサーバーモードで起動する。
// DBとRedisへの接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established")

	// 2. Redis接続（アクティブ状態キャッシュ）
	cache, err := liveness.New(cfg.RedisURL, cfg.AuthTTL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cache.Close()

	slog.Info("redis connection established")

	// 3. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)
	friendRepo := repository.NewPostgresFriendRepo(db)
	lbRepo := repository.NewPostgresLeaderboardRepo(db)
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db)

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ドメインサービスの初期化
	authService := auth.NewService(userRepo, tokenRepo, []byte(cfg.JWTSecret))
	userService := user.NewService(userRepo, lbRepo)
	friendsService := friends.NewService(friendRepo, userRepo)
	lbService := leaderboard.NewService(lbRepo, userRepo)
	analyticsService := analytics.NewService(analyticsRepo, cache, cfg.AuthTTL, collector)

	// 6. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(rateLimiterConfig(cfg))
	defer rateLimiter.Stop()

	deps := &handler.RouterDeps{
		TokenValidator:    authService,
		ActivityTracker:   activityTracker{analytics: analyticsService},
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       rateLimiter,
		Logger:            slog.Default(),

		AuthService:        authService,
		SessionTracker:     analyticsService,
		LoginRecorder:      collector,
		UserService:        userService,
		FriendsService:     friendsService,
		LeaderboardService: lbService,
		AnalyticsService:   analyticsService,

		MetricsHandler: metrics.Handler(registry),
		HealthChecker: func() error {
			if err := db.Ping(); err != nil {
				return fmt.Errorf("database ping failed: %w", err)
			}
			ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			if err := cache.Ping(ctx); err != nil {
				return fmt.Errorf("redis ping failed: %w", err)
			}
			return nil
		},
	}

	router := handler.NewRouter(deps)

	// 7. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// グレースフルシャットダウンのためのシグナルハンドリング
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		slog.Info("API server starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server listen error", slog.String("error", err.Error()))
		}
	}()

	<-stop
	slog.Info("shutting down API server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("API server stopped gracefully")
	return nil
}

// runWorker はワーカーモードで起動する。
// DBとRedisへの接続を開き、セッション突き合わせジョブと
// トークンクリーンアップジョブを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}

	slog.Info("database connection established (worker)")

	// 2. Redis接続
	cache, err := liveness.New(cfg.RedisURL, cfg.AuthTTL)
	if err != nil {
		return fmt.Errorf("failed to connect to redis: %w", err)
	}
	defer cache.Close()

	// 3. リポジトリの初期化
	analyticsRepo := repository.NewPostgresAnalyticsRepo(db)
	tokenRepo := repository.NewPostgresTokenRepo(db)

	// 4. メトリクスの初期化
	registry := prometheus.NewRegistry()
	collector := metrics.NewCollector(registry)

	// 5. ジョブの初期化
	reconciler := reconcile.NewReconciler(
		analyticsRepo, cache, slog.Default(),
		cfg.AuthTTL, cfg.ReconcileBatchSize, collector,
	)
	cleanupJob := cleanup.NewCleanupJob(tokenRepo, slog.Default())

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-stop
		slog.Info("shutting down worker...")
		cancel()
	}()

	slog.Info("worker starting",
		slog.Duration("reconcile_interval", cfg.ReconcileInterval),
		slog.Duration("token_cleanup_interval", cfg.TokenCleanupInterval),
	)

	// トークンクリーンアップジョブをバックグラウンドで起動
	go func() {
		// 起動直後に1回実行
		if err := cleanupJob.Run(ctx); err != nil {
			slog.Error("cleanup job failed", slog.String("error", err.Error()))
		}
		cleanupJob.Start(ctx, cfg.TokenCleanupInterval)
	}()

	// 突き合わせジョブをメインgoroutineで実行（ブロッキング）
	reconciler.Start(ctx, cfg.ReconcileInterval)

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	if err := database.RunMigrations(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
