// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層やワーカーから利用する。
type MetricsCollector interface {
	SessionOpened()
	SessionRenewed()
	SessionTerminated(length time.Duration)
	SessionReconciled()
	RecordLogin()
	RecordLoginFailure()
	SetActiveUsers(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	sessionsOpened     prometheus.Counter
	sessionsRenewed    prometheus.Counter
	sessionsTerminated prometheus.Counter
	sessionsReconciled prometheus.Counter
	loginSuccess       prometheus.Counter
	loginFail          prometheus.Counter
	activeUsers        prometheus.Gauge
	sessionLength      prometheus.Histogram
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		sessionsOpened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geodle_sessions_opened_total",
			Help: "開始されたセッションの合計数",
		}),
		sessionsRenewed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geodle_sessions_renewed_total",
			Help: "延長されたセッションの合計数",
		}),
		sessionsTerminated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geodle_sessions_terminated_total",
			Help: "終了したセッションの合計数",
		}),
		sessionsReconciled: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geodle_sessions_reconciled_total",
			Help: "整合ワーカーによって終了処理されたセッションの合計数",
		}),
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geodle_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFail: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "geodle_login_fail_total",
			Help: "ログイン失敗の合計数",
		}),
		activeUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "geodle_active_users",
			Help: "現在アクティブなユーザー数",
		}),
		sessionLength: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name: "geodle_session_length_seconds",
			Help: "終了したセッションの長さ（秒）",
			// 5分TTL前提のセッション分布に合わせたバケット
			Buckets: []float64{60, 300, 600, 1800, 3600, 7200, 14400, 28800},
		}),
	}

	reg.MustRegister(
		c.sessionsOpened,
		c.sessionsRenewed,
		c.sessionsTerminated,
		c.sessionsReconciled,
		c.loginSuccess,
		c.loginFail,
		c.activeUsers,
		c.sessionLength,
	)

	return c
}

// SessionOpened はセッション開始を記録する。
func (c *Collector) SessionOpened() {
	c.sessionsOpened.Inc()
}

// SessionRenewed はセッション延長を記録する。
func (c *Collector) SessionRenewed() {
	c.sessionsRenewed.Inc()
}

// SessionTerminated はセッション終了とその長さを記録する。
func (c *Collector) SessionTerminated(length time.Duration) {
	c.sessionsTerminated.Inc()
	c.sessionLength.Observe(length.Seconds())
}

// SessionReconciled は整合ワーカーによるセッション終了処理を記録する。
func (c *Collector) SessionReconciled() {
	c.sessionsReconciled.Inc()
}

// RecordLogin はログイン成功を記録する。
func (c *Collector) RecordLogin() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure() {
	c.loginFail.Inc()
}

// SetActiveUsers は現在のアクティブユーザー数を設定する。
func (c *Collector) SetActiveUsers(count int) {
	c.activeUsers.Set(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
