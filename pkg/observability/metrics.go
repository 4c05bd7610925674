package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the form engine.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Authorization metrics
	AuthDecisionsTotal *prometheus.CounterVec

	// Store metrics
	StoreOperationsTotal   *prometheus.CounterVec
	StoreOperationDuration *prometheus.HistogramVec

	// Document pipeline metrics
	ValidationFailuresTotal *prometheus.CounterVec

	// Template import metrics
	ImportPhasesTotal   *prometheus.CounterVec
	ImportItemsTotal    *prometheus.CounterVec
	ImportPhaseDuration *prometheus.HistogramVec

	registry *prometheus.Registry
}

// NewMetrics creates and registers all Prometheus metrics. A nil registry
// creates a private one (useful in tests).
func NewMetrics(registry *prometheus.Registry) *Metrics {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formapi_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "resource", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formapi_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "resource"},
		),
		AuthDecisionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formapi_auth_decisions_total",
				Help: "Authorization decisions by entity type and outcome",
			},
			[]string{"entity", "method", "outcome"},
		),
		StoreOperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formapi_store_operations_total",
				Help: "Persistence gateway operations",
			},
			[]string{"collection", "operation", "status"},
		),
		StoreOperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formapi_store_operation_duration_seconds",
				Help:    "Persistence gateway operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"collection", "operation"},
		),
		ValidationFailuresTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formapi_validation_failures_total",
				Help: "Document validation failures per entity type",
			},
			[]string{"entity"},
		),
		ImportPhasesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formapi_import_phases_total",
				Help: "Template import phases by entity type and status",
			},
			[]string{"entity", "status"},
		),
		ImportItemsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "formapi_import_items_total",
				Help: "Template import items by entity type and outcome",
			},
			[]string{"entity", "outcome"},
		),
		ImportPhaseDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "formapi_import_phase_duration_seconds",
				Help:    "Template import phase duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"entity"},
		),
		registry: registry,
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.AuthDecisionsTotal,
		m.StoreOperationsTotal,
		m.StoreOperationDuration,
		m.ValidationFailuresTotal,
		m.ImportPhasesTotal,
		m.ImportItemsTotal,
		m.ImportPhaseDuration,
	)
	return m
}

// Handler returns the /metrics HTTP handler for this metric set.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one completed HTTP request.
func (m *Metrics) ObserveRequest(method, resource string, status int, elapsed time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, resource, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, resource).Observe(elapsed.Seconds())
}

// ObserveStoreOperation records one persistence gateway call.
func (m *Metrics) ObserveStoreOperation(collection, operation string, err error, elapsed time.Duration) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.StoreOperationsTotal.WithLabelValues(collection, operation, status).Inc()
	m.StoreOperationDuration.WithLabelValues(collection, operation).Observe(elapsed.Seconds())
}
