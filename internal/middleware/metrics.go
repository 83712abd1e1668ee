package middleware

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	activeRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "http_active_requests",
			Help: "Number of in-flight HTTP requests",
		},
	)

	leadsSubmitted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "leads_submitted_total",
			Help: "Total number of leads accepted, by storage backend",
		},
		[]string{"backend"},
	)

	leadStatusChanges = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_status_changes_total",
			Help: "Total number of lead status updates, by new status",
		},
		[]string{"status"},
	)

	storeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lead_store_failures_total",
			Help: "Total number of failed storage operations",
		},
		[]string{"backend", "op"},
	)

	subscriberEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "subscriber_events_total",
			Help: "Total number of newsletter subscription events",
		},
		[]string{"event"},
	)

	activeBackend = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lead_store_backend",
			Help: "Storage backend chosen at startup (1 for the active one)",
		},
		[]string{"backend"},
	)
)

// Metrics records request counts and latency. Paths are route templates to keep
// label cardinality bounded.
func Metrics() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			activeRequests.Inc()
			defer activeRequests.Dec()

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}
			status := strconv.Itoa(c.Response().Status)

			httpRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			httpRequestDuration.WithLabelValues(c.Request().Method, path).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// PrometheusRecorder publishes business events as Prometheus counters.
type PrometheusRecorder struct{}

func (PrometheusRecorder) LeadSubmitted(backend string) {
	leadsSubmitted.WithLabelValues(backend).Inc()
}

func (PrometheusRecorder) LeadStatusChanged(status string) {
	leadStatusChanges.WithLabelValues(status).Inc()
}

func (PrometheusRecorder) BackendFailure(backend, op string) {
	storeFailures.WithLabelValues(backend, op).Inc()
}

func (PrometheusRecorder) SubscriberEvent(event string) {
	subscriberEvents.WithLabelValues(event).Inc()
}

// RecordBackend marks backend as the active store.
func RecordBackend(backend string) {
	activeBackend.Reset()
	activeBackend.WithLabelValues(backend).Set(1)
}
