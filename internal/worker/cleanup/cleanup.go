// Package cleanup は期限切れ認証トークンの自動削除ジョブを提供する。
// 有効期限を過ぎたまま残ったトークン行を定期的に削除する。
// 期限切れトークンは検証時にも即時拒否されるため、このジョブは
// テーブル肥大化を防ぐための後始末にあたる。
package cleanup

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// TokenDeleter は期限切れトークンの一括削除インターフェース。
type TokenDeleter interface {
	// DeleteExpired は期限切れトークンを一括削除し、削除件数を返す。
	DeleteExpired(ctx context.Context, now time.Time) (int64, error)
}

// CleanupJob は期限切れトークンの自動削除ジョブ。
// 定期実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	tokens TokenDeleter
	logger *slog.Logger

	// テストで時刻を固定するためのフック
	now func() time.Time
}

// NewCleanupJob は新しいCleanupJobを生成する。
func NewCleanupJob(tokens TokenDeleter, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		tokens: tokens,
		logger: logger,
		now:    time.Now,
	}
}

// Run は期限切れトークンを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deletedCount, err := j.tokens.DeleteExpired(ctx, j.now())
	if err != nil {
		j.logger.Error("トークンクリーンアップジョブの実行に失敗しました",
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("トークンクリーンアップの実行に失敗: %w", err)
	}

	duration := time.Since(start)
	j.logger.Info("トークンクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deletedCount),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// Start は指定間隔のティッカーでクリーンアップジョブを起動する。
// コンテキストがキャンセルされるまで実行を継続する。
func (j *CleanupJob) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	j.logger.Info("トークンクリーンアップジョブを開始しました",
		slog.Duration("interval", interval),
	)

	for {
		select {
		case <-ctx.Done():
			j.logger.Info("トークンクリーンアップジョブを停止しました")
			return
		case <-ticker.C:
			// エラーはログ済みなので次のサイクルへ
			_ = j.Run(ctx)
		}
	}
}
