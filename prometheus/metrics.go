package prometheus

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"crm-service/pkg/config"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	// HTTP request metrics
	HttpRequestsTotal   *prometheus.CounterVec
	HttpRequestDuration *prometheus.HistogramVec
	HttpStatusCategory  *prometheus.CounterVec

	// Authentication metrics
	LoginAttemptsCounter *prometheus.CounterVec

	// Database operation metrics
	DbOperationDuration *prometheus.HistogramVec

	// CRM metrics
	LeadOperationsCounter     *prometheus.CounterVec
	ActivityOperationsCounter *prometheus.CounterVec
	TaskOperationsCounter     *prometheus.CounterVec
	CatalogOperationsCounter  *prometheus.CounterVec
	RecordingBytesCounter     prometheus.Counter
)

// InitMetrics registers the service metrics with the default registry.
// Metrics are not recorded until InitMetrics has run.
func InitMetrics(cfg *config.Config) {
	once.Do(func() {
		prefix := cfg.Metrics.Prefix

		HttpRequestsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		)

		HttpRequestDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_http_request_duration_seconds",
				Help:    "Duration of HTTP requests in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		)

		HttpStatusCategory = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_http_status_category_total",
				Help: "Total number of responses by status category (2xx, 3xx, 4xx, 5xx)",
			},
			[]string{"category"},
		)

		LoginAttemptsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_login_attempts_total",
				Help: "Total number of login attempts by result",
			},
			[]string{"result"},
		)

		DbOperationDuration = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "_db_operation_duration_seconds",
				Help:    "Duration of database operations in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation_type"},
		)

		LeadOperationsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_lead_operations_total",
				Help: "Total number of lead operations",
			},
			[]string{"operation"},
		)

		ActivityOperationsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_activity_operations_total",
				Help: "Total number of activities added by type",
			},
			[]string{"activity_type"},
		)

		TaskOperationsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_task_operations_total",
				Help: "Total number of task operations",
			},
			[]string{"operation"},
		)

		CatalogOperationsCounter = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "_catalog_operations_total",
				Help: "Total number of product catalog operations",
			},
			[]string{"operation"},
		)

		RecordingBytesCounter = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: prefix + "_call_recording_bytes_total",
				Help: "Total size of stored call recordings",
			},
		)
	})
}

// MetricsMiddleware records request count, duration and status category
func MetricsMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			if HttpRequestsTotal == nil {
				return err
			}

			status := c.Response().Status
			if he, ok := err.(*echo.HTTPError); ok {
				status = he.Code
			}
			method := c.Request().Method
			path := c.Path()
			statusStr := strconv.Itoa(status)

			HttpRequestsTotal.WithLabelValues(method, path, statusStr).Inc()
			HttpRequestDuration.WithLabelValues(method, path, statusStr).Observe(time.Since(start).Seconds())
			HttpStatusCategory.WithLabelValues(statusStr[:1] + "xx").Inc()

			return err
		}
	}
}

// GetPrometheusHandler returns an HTTP handler for exposing Prometheus metrics
func GetPrometheusHandler() http.Handler {
	return promhttp.Handler()
}

// TrackDBOperation returns a function that records the duration of a database operation
func TrackDBOperation(operationType string) func(startTime time.Time) {
	return func(startTime time.Time) {
		if DbOperationDuration == nil {
			return
		}
		DbOperationDuration.WithLabelValues(operationType).Observe(time.Since(startTime).Seconds())
	}
}

// RecordLogin counts a login attempt by result
func RecordLogin(result string) {
	if LoginAttemptsCounter != nil {
		LoginAttemptsCounter.WithLabelValues(result).Inc()
	}
}

// RecordLeadOperation increments the counter for lead operations
func RecordLeadOperation(operation string) {
	if LeadOperationsCounter != nil {
		LeadOperationsCounter.WithLabelValues(operation).Inc()
	}
}

// RecordActivity increments the counter for added activities
func RecordActivity(activityType string) {
	if ActivityOperationsCounter != nil {
		ActivityOperationsCounter.WithLabelValues(activityType).Inc()
	}
}

// RecordTaskOperation increments the counter for task operations
func RecordTaskOperation(operation string) {
	if TaskOperationsCounter != nil {
		TaskOperationsCounter.WithLabelValues(operation).Inc()
	}
}

// RecordCatalogOperation increments the counter for catalog operations
func RecordCatalogOperation(operation string) {
	if CatalogOperationsCounter != nil {
		CatalogOperationsCounter.WithLabelValues(operation).Inc()
	}
}

// AddRecordingBytes adds the size of a stored recording
func AddRecordingBytes(n int64) {
	if RecordingBytesCounter != nil {
		RecordingBytesCounter.Add(float64(n))
	}
}
