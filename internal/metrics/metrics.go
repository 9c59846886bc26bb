// Package metrics は Prometheus メトリクスを定義します。
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	pageCounts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kagpatra",
			Name:      "page_counts_total",
			Help:      "Page count results by document kind and outcome (parsed, fallback, skipped)",
		},
		[]string{"kind", "outcome"},
	)

	parseDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "kagpatra",
			Name:      "pdf_parse_duration_seconds",
			Help:      "Duration of structural PDF parsing",
			Buckets:   prometheus.DefBuckets,
		},
	)

	estimates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kagpatra",
			Name:      "cost_estimates_total",
			Help:      "Cost estimates by color mode and page selection",
		},
		[]string{"color_mode", "page_selection"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "kagpatra",
			Name:      "http_requests_total",
			Help:      "HTTP requests by method, route and status",
		},
		[]string{"method", "path", "status"},
	)

	registerOnce sync.Once
)

// Register は全メトリクスをレジストリに登録します。複数回呼んでも一度だけ登録されます。
func Register(reg prometheus.Registerer) {
	registerOnce.Do(func() {
		reg.MustRegister(pageCounts, parseDuration, estimates, httpRequests)
	})
}

// ObservePageCount はページ数解析の結果を記録します。
func ObservePageCount(kind, outcome string) {
	pageCounts.WithLabelValues(kind, outcome).Inc()
}

// ObserveParseDuration はPDF解析時間を記録します。
func ObserveParseDuration(d time.Duration) {
	parseDuration.Observe(d.Seconds())
}

// ObserveEstimate は見積もり計算を記録します。
func ObserveEstimate(colorMode, pageSelection string) {
	estimates.WithLabelValues(colorMode, pageSelection).Inc()
}

// Middleware はルート単位のリクエスト数を記録します。
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}

// Handler は /metrics 用のハンドラーを返します。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
