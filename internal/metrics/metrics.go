package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	SessionsActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clippy_sessions_active",
		Help: "Current number of live sessions",
	})
	SessionsEvictedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clippy_sessions_evicted_total",
		Help: "Total number of sessions destroyed by the eviction sweeper",
	})
	WsConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "clippy_ws_connections",
		Help: "Current number of active websocket connections",
	})
	EventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "clippy_events_total",
		Help: "Total number of events broadcast to session members",
	}, []string{"type"})
	UploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "clippy_upload_bytes_total",
		Help: "Total bytes of uploaded file blocks",
	})
	HttpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})
	HttpRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "HTTP request duration in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})
)

func init() {
	prometheus.MustRegister(
		SessionsActive, SessionsEvictedTotal,
		WsConnections, EventsTotal, UploadBytesTotal,
		HttpRequestsTotal, HttpRequestDuration,
	)
}

// GinMiddleware 统计基础请求指标，供 Prometheus 拉取。
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		labels := prometheus.Labels{"method": c.Request.Method, "path": path, "status": status}
		HttpRequestsTotal.With(labels).Inc()
		HttpRequestDuration.With(labels).Observe(time.Since(start).Seconds())
	}
}
