package observability

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// HTTP request metrics
	RequestDuration *prometheus.HistogramVec
	RequestTotal    *prometheus.CounterVec

	// Ingestion metrics
	IngestTotal *prometheus.CounterVec

	// Delivery attempt metrics, by the outcome of the HTTP round trip
	// (SUCCESS/FAILED_ATTEMPT)
	DeliveryAttemptTotal    *prometheus.CounterVec
	DeliveryAttemptDuration *prometheus.HistogramVec
	RetryScheduledTotal     prometheus.Counter

	// Queue metrics
	QueueClaimedTotal  prometheus.Counter
	QueueReclaimedTotal prometheus.Counter

	// Retention metrics
	RetentionRowsDeletedTotal prometheus.Counter
}

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics(serviceName string) *Metrics {
	return &Metrics{
		RequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "http_request_duration_seconds",
			Help:        "HTTP request duration in seconds",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"method", "path", "status"}),

		RequestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name:        "http_requests_total",
			Help:        "Total number of HTTP requests",
			ConstLabels: prometheus.Labels{"service": serviceName},
		}, []string{"method", "path", "status"}),

		IngestTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "ingest_requests_total",
			Help: "Total inbound ingestion requests by outcome",
		}, []string{"outcome"}),

		DeliveryAttemptTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "webhook_delivery_attempts_total",
			Help: "Total webhook delivery attempts by outcome",
		}, []string{"status"}),

		DeliveryAttemptDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "webhook_delivery_attempt_duration_seconds",
			Help:    "Duration of a single outbound delivery attempt",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"status"}),

		RetryScheduledTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "webhook_retries_scheduled_total",
			Help: "Total retry tasks scheduled after a failed attempt",
		}),

		QueueClaimedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "delivery_queue_claimed_total",
			Help: "Total delivery tasks claimed by workers",
		}),

		QueueReclaimedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "delivery_queue_reclaimed_total",
			Help: "Total delivery tasks reclaimed after an expired worker claim",
		}),

		RetentionRowsDeletedTotal: promauto.NewCounter(prometheus.CounterOpts{
			Name: "webhook_log_retention_rows_deleted_total",
			Help: "Total attempt log rows deleted by the retention sweep",
		}),
	}
}

// MetricsMiddleware returns a Gin middleware that records HTTP request metrics.
func MetricsMiddleware(m *Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.RequestDuration.WithLabelValues(c.Request.Method, path, status).Observe(duration)
		m.RequestTotal.WithLabelValues(c.Request.Method, path, status).Inc()
	}
}

// PrometheusHandler returns a Gin handler that exposes Prometheus metrics.
func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
