// Package analytics はセッション分析のドメインロジックを提供する。
// 認証成功をアクティビティイベントとして受け取り、セッションの開始・延長・
// 終了と日次統計のクエリを担う。
package analytics

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/geodle/internal/model"
	"github.com/hitoshi/geodle/internal/repository"
)

// LivenessCache はユーザーのアクティブ状態を照会・更新するインターフェース。
type LivenessCache interface {
	// MarkActive はユーザーをアクティブとして記録し、TTLを張り直す。
	MarkActive(ctx context.Context, userID int64) error

	// IsActive はユーザーがアクティブかどうかを返す。
	IsActive(ctx context.Context, userID int64) (bool, error)

	// Deactivate はユーザーのアクティブ状態を即時に取り消す。
	Deactivate(ctx context.Context, userID int64) error
}

// Recorder はセッションライフサイクルのメトリクスを記録するインターフェース。
type Recorder interface {
	SessionOpened()
	SessionRenewed()
	SessionTerminated(length time.Duration)
}

// Service はセッションライフサイクルのサービス層。
// アクティビティの追跡、セッションの終了、統計クエリを提供する。
type Service struct {
	store    repository.AnalyticsRepository
	cache    LivenessCache
	ttl      time.Duration
	recorder Recorder

	// テストで時刻を固定するためのフック
	now func() time.Time
}

// NewService はServiceの新しいインスタンスを生成する。
// recorderはnilでもよい（メトリクスを記録しない）。
func NewService(store repository.AnalyticsRepository, cache LivenessCache, ttl time.Duration, recorder Recorder) *Service {
	return &Service{
		store:    store,
		cache:    cache,
		ttl:      ttl,
		recorder: recorder,
		now:      time.Now,
	}
}

// TrackActivity はユーザーのアクティビティイベントを処理する。
// ユーザーがアクティブならLiveセッションの見込み長を延長し、
// 非アクティブなら新しいセッションを開く。どちらの場合も
// アクティブ状態のTTLを張り直す。
func (s *Service) TrackActivity(ctx context.Context, userID int64) (*model.AnalyticsSession, error) {
	now := s.now()

	active, err := s.cache.IsActive(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("アクティブ状態の確認に失敗しました: %w", err)
	}

	if active {
		session, err := s.store.RenewSession(ctx, userID, now, s.ttl)
		if err != nil {
			return nil, fmt.Errorf("セッションの延長に失敗しました: %w", err)
		}
		if session != nil {
			if err := s.cache.MarkActive(ctx, userID); err != nil {
				return nil, fmt.Errorf("アクティブ状態の更新に失敗しました: %w", err)
			}
			if s.recorder != nil {
				s.recorder.SessionRenewed()
			}
			return session, nil
		}
		// キャッシュ上はアクティブだがLive行がない（障害の残骸など）。
		// 新しいセッションを開いて自己修復する。
	}

	session, err := s.store.OpenSession(ctx, &userID, now)
	if err != nil {
		return nil, fmt.Errorf("セッションの開始に失敗しました: %w", err)
	}

	if err := s.cache.MarkActive(ctx, userID); err != nil {
		return nil, fmt.Errorf("アクティブ状態の更新に失敗しました: %w", err)
	}
	if s.recorder != nil {
		s.recorder.SessionOpened()
	}

	return session, nil
}

// Terminate は指定IDのセッションを終了する。
// すでに終了済みのセッションに対してはno-opとして成功を返す（冪等）。
// セッションが存在しない場合もnilを返す。
func (s *Service) Terminate(ctx context.Context, sessionID int64) (*model.AnalyticsSession, error) {
	session, err := s.store.TerminateSession(ctx, sessionID, s.now())
	if errors.Is(err, model.ErrSessionAlreadyEnded) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("セッションの終了に失敗しました: %w", err)
	}
	if session == nil {
		return nil, nil
	}

	if session.UserID != nil {
		if err := s.cache.Deactivate(ctx, *session.UserID); err != nil {
			return nil, fmt.Errorf("アクティブ状態の取り消しに失敗しました: %w", err)
		}
	}
	if s.recorder != nil && session.Length != nil {
		s.recorder.SessionTerminated(*session.Length)
	}

	return session, nil
}

// TerminateByUser は指定ユーザーの最新Liveセッションを終了する（ログアウト時）。
// Liveセッションがない場合もアクティブ状態の取り消しだけを行い成功を返す。
func (s *Service) TerminateByUser(ctx context.Context, userID int64) (*model.AnalyticsSession, error) {
	session, err := s.store.TerminateUserSession(ctx, userID, s.now())
	if err != nil && !errors.Is(err, model.ErrSessionAlreadyEnded) {
		return nil, fmt.Errorf("セッションの終了に失敗しました: %w", err)
	}

	if err := s.cache.Deactivate(ctx, userID); err != nil {
		return nil, fmt.Errorf("アクティブ状態の取り消しに失敗しました: %w", err)
	}
	if s.recorder != nil && session != nil && session.Length != nil {
		s.recorder.SessionTerminated(*session.Length)
	}

	return session, nil
}

// DayStats は指定日の統計を返す。
// 集計が存在しない日は日付以外がゼロ値のサマリを返す。
// 中央値と95パーセンタイルは終了済みセッション長から連続補間で計算する。
func (s *Service) DayStats(ctx context.Context, date time.Time) (*model.DayStatsSummary, error) {
	day := model.DateOf(date)
	summary := &model.DayStatsSummary{Date: day}

	stats, err := s.store.GetDay(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("日次集計の取得に失敗しました: %w", err)
	}
	if stats == nil {
		return summary, nil
	}

	if stats.MinSessionLength != nil {
		summary.Min = *stats.MinSessionLength
	}
	if stats.MaxSessionLength != nil {
		summary.Max = *stats.MaxSessionLength
	}
	if stats.MeanSessionLength != nil {
		summary.Mean = *stats.MeanSessionLength
	}
	summary.CurrentActiveUsers = stats.CurrentActiveUsers
	summary.MaxActiveUsers = stats.MaxActiveUsers

	median, err := s.store.PercentileSessionLength(ctx, day, 50)
	if err != nil {
		return nil, fmt.Errorf("中央値の計算に失敗しました: %w", err)
	}
	summary.Median = median

	p95, err := s.store.PercentileSessionLength(ctx, day, 95)
	if err != nil {
		return nil, fmt.Errorf("95パーセンタイルの計算に失敗しました: %w", err)
	}
	summary.P95 = p95

	return summary, nil
}

// RangeStats は指定日から今日までの日次統計の単純平均を返す。
// 集計が存在しない日はゼロ値として平均に含める。
// 除数は実際の暦日数（since〜今日、両端を含む）。
func (s *Service) RangeStats(ctx context.Context, since time.Time) (*model.RangeStatsSummary, error) {
	start := model.DateOf(since)
	today := model.DateOf(s.now())
	if start.After(today) {
		start = today
	}

	summary := &model.RangeStatsSummary{Since: start}

	var (
		sumMin, sumMax, sumMean, sumMedian, sumP95 time.Duration
		sumCurrent, sumMaxUsers                    int
	)

	for d := start; !d.After(today); d = d.AddDate(0, 0, 1) {
		daySummary, err := s.DayStats(ctx, d)
		if err != nil {
			return nil, err
		}

		sumMin += daySummary.Min
		sumMax += daySummary.Max
		sumMean += daySummary.Mean
		sumMedian += daySummary.Median
		sumP95 += daySummary.P95
		sumCurrent += daySummary.CurrentActiveUsers
		sumMaxUsers += daySummary.MaxActiveUsers
		summary.Days++
	}

	days := int64(summary.Days)
	summary.Min = time.Duration(int64(sumMin) / days)
	summary.Max = time.Duration(int64(sumMax) / days)
	summary.Mean = time.Duration(int64(sumMean) / days)
	summary.Median = time.Duration(int64(sumMedian) / days)
	summary.P95 = time.Duration(int64(sumP95) / days)
	summary.CurrentActiveUsers = float64(sumCurrent) / float64(days)
	summary.MaxActiveUsers = float64(sumMaxUsers) / float64(days)

	return summary, nil
}
