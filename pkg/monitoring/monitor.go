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
			Name: "bridge_requests_total",
			Help: "Total number of requests served by the local bridge",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bridge_request_duration_seconds",
			Help:    "Duration of local bridge requests",
			Buckets: []float64{0.01, 0.05, 0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	UpstreamCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "backend_requests_total",
			Help: "Requests sent to the exam backend",
		},
		[]string{"method", "endpoint", "status"},
	)

	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "backend_request_duration_seconds",
			Help:    "Duration of requests sent to the exam backend",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	TokenRefreshCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "token_refresh_total",
			Help: "Access token refresh round trips by outcome",
		},
		[]string{"result"},
	)

	ExamSubmissionCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_submissions_total",
			Help: "Exam submissions by trigger and outcome",
		},
		[]string{"trigger", "result"},
	)

	StreamClients = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "exam_stream_clients",
			Help: "Websocket clients subscribed to exam sessions",
		},
	)

	StreamMessageCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "exam_stream_messages_total",
			Help: "Websocket messages by type and direction",
		},
		[]string{"type", "direction"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(UpstreamCounter)
		prometheus.MustRegister(UpstreamDuration)
		prometheus.MustRegister(TokenRefreshCounter)
		prometheus.MustRegister(ExamSubmissionCounter)
		prometheus.MustRegister(StreamClients)
		prometheus.MustRegister(StreamMessageCounter)
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

// ObserveUpstream 记录一次后端调用，status 为 0 表示网络错误
func ObserveUpstream(method, endpoint string, status int, started time.Time) {
	label := strconv.Itoa(status)
	if status == 0 {
		label = "error"
	}
	UpstreamCounter.WithLabelValues(method, endpoint, label).Inc()
	UpstreamDuration.WithLabelValues(method, endpoint).Observe(time.Since(started).Seconds())
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
