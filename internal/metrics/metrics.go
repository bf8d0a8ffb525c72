package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	MessagesIngested = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alphafeed_messages_ingested_total", Help: "Chat updates seen by the ingestor, by outcome"},
		[]string{"outcome"},
	)
	SignalsExtracted = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alphafeed_signals_extracted_total", Help: "Signals produced, by source"},
		[]string{"source"},
	)
	PersistErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alphafeed_persist_errors_total", Help: "Best-effort writes that failed"},
		[]string{"kind"},
	)
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alphafeed_upstream_requests_total", Help: "Calls to market and chat providers"},
		[]string{"provider", "result"},
	)
	FeedFetches = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alphafeed_feed_fetches_total", Help: "Aggregated feed builds, by data quality"},
		[]string{"quality"},
	)
	WebhookQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{Name: "alphafeed_webhook_queue_depth", Help: "Decoded webhook updates waiting for a worker"},
	)
	HTTPRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "alphafeed_http_requests_total", Help: "HTTP requests served"},
		[]string{"method", "route", "status"},
	)
	HTTPDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{Name: "alphafeed_http_request_duration_seconds", Help: "HTTP request latency", Buckets: prometheus.DefBuckets},
		[]string{"method", "route"},
	)
)

func init() {
	prometheus.MustRegister(MessagesIngested, SignalsExtracted, PersistErrors, UpstreamRequests, FeedFetches, WebhookQueueDepth, HTTPRequests, HTTPDuration)
}

// Register mounts GET /metrics.
func Register(r *gin.Engine) {
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
}

// Middleware records count and latency per matched route. Unmatched paths
// share one label so scanners cannot blow up cardinality.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequests.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		HTTPDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

func Upstream(provider string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	UpstreamRequests.WithLabelValues(provider, result).Inc()
}
