package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// PrometheusMetrics contains all Prometheus metrics for the ticket gate
type PrometheusMetrics struct {
	// Ticket lifecycle metrics
	TicketsIssuedTotal      *prometheus.CounterVec
	TicketsInvalidatedTotal prometheus.Counter
	VerificationsTotal      *prometheus.CounterVec
	RejectionsTotal         *prometheus.CounterVec
	IssueDuration           prometheus.Histogram
	VerifyDuration          prometheus.Histogram

	// Chain oracle metrics
	OracleRequestsTotal   *prometheus.CounterVec
	OracleRequestDuration *prometheus.HistogramVec
	OracleCacheHitsTotal  *prometheus.CounterVec

	// Storage metrics
	DatabaseOperationsTotal   *prometheus.CounterVec
	DatabaseOperationDuration *prometheus.HistogramVec

	// API metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Application health metrics
	ApplicationUptime prometheus.Gauge
	ComponentHealth   *prometheus.GaugeVec
	GoroutineCount    prometheus.Gauge
}

// NewPrometheusMetrics creates and registers all Prometheus metrics
func NewPrometheusMetrics() *PrometheusMetrics {
	return &PrometheusMetrics{
		TicketsIssuedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_tickets_issued_total",
				Help: "Total number of tickets issued",
			},
			[]string{"token_type"},
		),

		TicketsInvalidatedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gate_tickets_invalidated_total",
				Help: "Total number of tickets invalidated and reissued",
			},
		),

		VerificationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_verifications_total",
				Help: "Total number of door verification attempts",
			},
			[]string{"result"},
		),

		RejectionsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_rejections_total",
				Help: "Total number of rejected operations by rejection kind",
			},
			[]string{"operation", "kind"},
		),

		IssueDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gate_issue_duration_seconds",
				Help:    "Time spent issuing a ticket",
				Buckets: prometheus.DefBuckets,
			},
		),

		VerifyDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "gate_verify_duration_seconds",
				Help:    "Time spent verifying a ticket",
				Buckets: prometheus.DefBuckets,
			},
		),

		OracleRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_oracle_requests_total",
				Help: "Total number of chain oracle requests",
			},
			[]string{"chain_id", "method", "status"},
		),

		OracleRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gate_oracle_request_duration_seconds",
				Help:    "Duration of chain oracle requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"chain_id", "method"},
		),

		OracleCacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_oracle_cache_hits_total",
				Help: "ENS resolution cache hits and misses",
			},
			[]string{"result"},
		),

		DatabaseOperationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_database_operations_total",
				Help: "Total number of database operations",
			},
			[]string{"operation", "table", "status"},
		),

		DatabaseOperationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gate_database_operation_duration_seconds",
				Help:    "Duration of database operations",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"operation", "table"},
		),

		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gate_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gate_http_request_duration_seconds",
				Help:    "Duration of HTTP requests",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),

		ApplicationUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gate_application_uptime_seconds",
				Help: "Application uptime in seconds",
			},
		),

		ComponentHealth: promauto.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "gate_component_health",
				Help: "Health of application components (1 healthy, 0 unhealthy)",
			},
			[]string{"component"},
		),

		GoroutineCount: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "gate_goroutines",
				Help: "Number of running goroutines",
			},
		),
	}
}

// UpdateComponentHealth sets the health gauge of a component
func (m *PrometheusMetrics) UpdateComponentHealth(component string, healthy bool) {
	v := 0.0
	if healthy {
		v = 1.0
	}
	m.ComponentHealth.WithLabelValues(component).Set(v)
}

// UpdateRuntime refreshes runtime gauges
func (m *PrometheusMetrics) UpdateRuntime(startedAt time.Time) {
	m.ApplicationUptime.Set(time.Since(startedAt).Seconds())
	m.GoroutineCount.Set(float64(runtime.NumGoroutine()))
}
