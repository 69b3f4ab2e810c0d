package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	StoreWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edutest_store_writes_total",
			Help: "Shared store writes by key and result",
		},
		[]string{"key", "result"},
	)

	StoreRemoteUpdates = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edutest_store_remote_updates_total",
			Help: "Writes by other clients applied locally",
		},
		[]string{"key"},
	)

	Submissions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edutest_submissions_total",
			Help: "Persisted submissions by trigger",
		},
		[]string{"path"},
	)

	Feedback = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "edutest_feedback_total",
			Help: "Feedback attachment outcomes",
		},
		[]string{"result"},
	)

	ActiveSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edutest_active_sessions",
			Help: "Sessions currently in progress",
		},
	)

	DashboardClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "edutest_dashboard_clients",
			Help: "Connected live dashboard clients",
		},
	)
)

var registerOnce sync.Once

func Init() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			StoreWrites,
			StoreRemoteUpdates,
			Submissions,
			Feedback,
			ActiveSessions,
			DashboardClients,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
