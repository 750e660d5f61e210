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

	ReviewActions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lsrw_review_actions_total",
			Help: "Review actions by type, skill module and outcome",
		},
		[]string{"action", "module", "result"},
	)

	CollaboratorDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "lsrw_collaborator_request_duration_seconds",
			Help:    "Duration of calls to the content/submission collaborator",
			Buckets: []float64{0.05, 0.1, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation", "result"},
	)

	ActiveRecordings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "lsrw_active_recordings",
			Help: "Feedback recording sessions currently capturing audio",
		},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(RequestCounter)
		prometheus.MustRegister(RequestDuration)
		prometheus.MustRegister(ReviewActions)
		prometheus.MustRegister(CollaboratorDuration)
		prometheus.MustRegister(ActiveRecordings)
	})
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveAction 记录一次发布/核验/点评操作
func ObserveAction(action, module string, err error) {
	ReviewActions.WithLabelValues(action, module, result(err)).Inc()
}

func ObserveCollaborator(operation string, start time.Time, err error) {
	CollaboratorDuration.WithLabelValues(operation, result(err)).Observe(time.Since(start).Seconds())
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
