// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラー、ミドルウェア、ゲートウェイクライアントから利用する。
type MetricsCollector interface {
	RecordLoginSuccess()
	RecordLoginFailure(reason string)
	RecordLogout()
	RecordSessionExpired()
	RecordGuardDecision(decision string)
	RecordHTTPStatus(statusCode int)
	RecordGatewayLatency(operation string, duration time.Duration)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	loginSuccess   prometheus.Counter
	loginFailure   *prometheus.CounterVec
	logout         prometheus.Counter
	sessionExpired prometheus.Counter
	guardDecisions *prometheus.CounterVec
	httpStatus     *prometheus.CounterVec
	gatewayLatency *prometheus.HistogramVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		loginSuccess: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourbook_login_success_total",
			Help: "ログイン成功の合計数",
		}),
		loginFailure: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourbook_login_failure_total",
			Help: "ログイン失敗の合計数（理由別）",
		}, []string{"reason"}),
		logout: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourbook_logout_total",
			Help: "ログアウトの合計数",
		}),
		sessionExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tourbook_session_expired_total",
			Help: "有効期限切れで破棄されたセッションの合計数",
		}),
		guardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourbook_route_guard_decisions_total",
			Help: "ルートガードの判定数（判定別）",
		}, []string{"decision"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tourbook_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "tourbook_gateway_latency_seconds",
			Help:    "認証ゲートウェイ呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
	}

	reg.MustRegister(
		c.loginSuccess,
		c.loginFailure,
		c.logout,
		c.sessionExpired,
		c.guardDecisions,
		c.httpStatus,
		c.gatewayLatency,
	)

	return c
}

// RecordLoginSuccess はログイン成功を記録する。
func (c *Collector) RecordLoginSuccess() {
	c.loginSuccess.Inc()
}

// RecordLoginFailure はログイン失敗を記録する。
func (c *Collector) RecordLoginFailure(reason string) {
	c.loginFailure.WithLabelValues(reason).Inc()
}

// RecordLogout はログアウトを記録する。
func (c *Collector) RecordLogout() {
	c.logout.Inc()
}

// RecordSessionExpired はセッションの期限切れを記録する。
func (c *Collector) RecordSessionExpired() {
	c.sessionExpired.Inc()
}

// RecordGuardDecision はルートガードの判定を記録する。
func (c *Collector) RecordGuardDecision(decision string) {
	c.guardDecisions.WithLabelValues(decision).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordGatewayLatency はゲートウェイ呼び出しのレイテンシを記録する。
func (c *Collector) RecordGatewayLatency(operation string, duration time.Duration) {
	c.gatewayLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
