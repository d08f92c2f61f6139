// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector はPrometheusメトリクスを収集する実装。
// APIクライアント、ストア、ダッシュボード、チャットの各計測インターフェースを満たす。
type Collector struct {
	apiRequests       *prometheus.CounterVec
	apiLatency        prometheus.Histogram
	storeErrors       *prometheus.CounterVec
	dashboardCount    *prometheus.GaugeVec
	dashboardFallback *prometheus.CounterVec
	chatAutoReplies   prometheus.Counter
	chatOnlineUsers   prometheus.Gauge
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pressdesk_api_requests_total",
			Help: "バックエンドAPI呼び出しの合計数（ステータス0は通信失敗）",
		}, []string{"method", "status"}),
		apiLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "pressdesk_api_request_duration_seconds",
			Help:    "バックエンドAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		storeErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pressdesk_store_errors_total",
			Help: "ストア操作の失敗数",
		}, []string{"kind", "action"}),
		dashboardCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "pressdesk_dashboard_count",
			Help: "ダッシュボードの直近の集計値",
		}, []string{"metric"}),
		dashboardFallback: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "pressdesk_dashboard_fallback_total",
			Help: "フォールバック値を使用した回数",
		}, []string{"metric"}),
		chatAutoReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "pressdesk_chat_auto_replies_total",
			Help: "配信された自動返信の合計数",
		}),
		chatOnlineUsers: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "pressdesk_chat_online_users",
			Help: "シミュレーション上のオンラインユーザー数",
		}),
	}

	reg.MustRegister(
		c.apiRequests,
		c.apiLatency,
		c.storeErrors,
		c.dashboardCount,
		c.dashboardFallback,
		c.chatAutoReplies,
		c.chatOnlineUsers,
	)

	return c
}

// RecordAPIRequest はAPI呼び出しの件数とレイテンシを記録する。
func (c *Collector) RecordAPIRequest(method string, statusCode int, duration time.Duration) {
	c.apiRequests.WithLabelValues(method, strconv.Itoa(statusCode)).Inc()
	c.apiLatency.Observe(duration.Seconds())
}

// RecordStoreError はストア操作の失敗を記録する。
func (c *Collector) RecordStoreError(kind, action string) {
	c.storeErrors.WithLabelValues(kind, action).Inc()
}

// SetDashboardCount はダッシュボードの集計値を記録する。
func (c *Collector) SetDashboardCount(metric string, value float64) {
	c.dashboardCount.WithLabelValues(metric).Set(value)
}

// RecordDashboardFallback はフォールバック値の使用を記録する。
func (c *Collector) RecordDashboardFallback(metric string) {
	c.dashboardFallback.WithLabelValues(metric).Inc()
}

// RecordAutoReply は自動返信の配信を記録する。
func (c *Collector) RecordAutoReply() {
	c.chatAutoReplies.Inc()
}

// SetOnlineUsers はオンラインユーザー数を記録する。
func (c *Collector) SetOnlineUsers(n int) {
	c.chatOnlineUsers.Set(float64(n))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
