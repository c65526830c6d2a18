// Package reconcile はTTL切れセッションの突き合わせジョブを提供する。
// アクティブ状態のTTLが切れたまま残ったLiveセッションを定期的に検出し、
// 終了処理を行ってデータベースとキャッシュの整合性を保つ。
package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hitoshi/geodle/internal/model"
)

// SessionStore は突き合わせジョブが必要とするストア操作のインターフェース。
type SessionStore interface {
	// ListStaleLiveSessions は開始からolderThanより前のLiveセッションを返す。
	ListStaleLiveSessions(ctx context.Context, olderThan time.Time, limit int) ([]*model.AnalyticsSession, error)

	// TerminateSession は指定IDのセッションを終了する。
	TerminateSession(ctx context.Context, sessionID int64, end time.Time) (*model.AnalyticsSession, error)
}

// LivenessChecker はユーザーのアクティブ状態の照会インターフェース。
type LivenessChecker interface {
	IsActive(ctx context.Context, userID int64) (bool, error)
	CountActive(ctx context.Context) (int64, error)
}

// Recorder は突き合わせ結果のメトリクスを記録するインターフェース。
type Recorder interface {
	SessionReconciled()
	SetActiveUsers(count int)
}

// Reconciler はTTL切れセッションの突き合わせジョブ。
// 開始からTTL以上経過したLiveセッションを候補とし、ユーザーがもう
// アクティブでなければ見込みセッション長の時点で終了処理を行う。
type Reconciler struct {
	store     SessionStore
	liveness  LivenessChecker
	logger    *slog.Logger
	ttl       time.Duration
	batchSize int
	recorder  Recorder // nilの場合は記録しない

	// テストで時刻を固定するためのフック
	now func() time.Time
}

// NewReconciler はReconcilerの新しいインスタンスを生成する。
// batchSizeが0以下の場合はデフォルト値100を使用する。
func NewReconciler(
	store SessionStore,
	liveness LivenessChecker,
	logger *slog.Logger,
	ttl time.Duration,
	batchSize int,
	recorder Recorder,
) *Reconciler {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Reconciler{
		store:     store,
		liveness:  liveness,
		logger:    logger,
		ttl:       ttl,
		batchSize: batchSize,
		recorder:  recorder,
		now:       time.Now,
	}
}

// Start は指定間隔のティッカーで突き合わせジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (r *Reconciler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	r.logger.Info("セッション突き合わせジョブを開始しました",
		slog.Duration("interval", interval),
		slog.Duration("ttl", r.ttl),
		slog.Int("batch_size", r.batchSize),
	)

	// 起動直後に1回実行
	if err := r.RunOnce(ctx); err != nil {
		r.logger.Error("突き合わせサイクルの実行に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("セッション突き合わせジョブを停止しました")
			return
		case <-ticker.C:
			if err := r.RunOnce(ctx); err != nil {
				r.logger.Error("突き合わせサイクルの実行に失敗しました",
					slog.String("error", err.Error()),
				)
			}
		}
	}
}

// RunOnce はTTL切れの候補セッションを1バッチ分処理する。
// ユーザーがまだアクティブなセッション（長時間連続プレイ）は残す。
func (r *Reconciler) RunOnce(ctx context.Context) error {
	start := time.Now()
	now := r.now()

	sessions, err := r.store.ListStaleLiveSessions(ctx, now.Add(-r.ttl), r.batchSize)
	if err != nil {
		return err
	}

	closed := 0
	for _, session := range sessions {
		if session.UserID != nil {
			active, err := r.liveness.IsActive(ctx, *session.UserID)
			if err != nil {
				r.logger.Error("アクティブ状態の確認に失敗しました",
					slog.Int64("session_id", session.ID),
					slog.String("error", err.Error()),
				)
				continue
			}
			if active {
				// 開始は古いがまだ活動中のセッション
				continue
			}
		}

		// 延長時に記録された見込みセッション長を終了時刻として採用する。
		// 見込みがない・未来を指す場合は現在時刻で打ち切る。
		end := now
		if session.Length != nil {
			if projected := session.Start.Add(*session.Length); projected.Before(now) {
				end = projected
			}
		}

		if _, err := r.store.TerminateSession(ctx, session.ID, end); err != nil {
			if errors.Is(err, model.ErrSessionAlreadyEnded) {
				continue
			}
			r.logger.Error("セッションの終了処理に失敗しました",
				slog.Int64("session_id", session.ID),
				slog.String("error", err.Error()),
			)
			continue
		}

		closed++
		if r.recorder != nil {
			r.recorder.SessionReconciled()
		}
	}

	if r.recorder != nil {
		if count, err := r.liveness.CountActive(ctx); err == nil {
			r.recorder.SetActiveUsers(int(count))
		}
	}

	duration := time.Since(start)
	r.logger.Info("突き合わせサイクルが完了しました",
		slog.Int("candidate_count", len(sessions)),
		slog.Int("closed_count", closed),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}
