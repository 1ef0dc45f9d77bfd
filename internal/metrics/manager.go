package metrics

import (
	"time"
)

// Manager is the application-facing wrapper around the Prometheus metrics
type Manager struct {
	prometheus *PrometheusMetrics
	startedAt  time.Time
}

// NewManager creates a metrics manager. Create at most one per process: the
// underlying collectors register with the default registry.
func NewManager() *Manager {
	return &Manager{
		prometheus: NewPrometheusMetrics(),
		startedAt:  time.Now(),
	}
}

// GetPrometheusMetrics exposes the raw collectors
func (m *Manager) GetPrometheusMetrics() *PrometheusMetrics {
	return m.prometheus
}

// RecordTicketIssued counts one issued ticket
func (m *Manager) RecordTicketIssued(tokenType string, duration time.Duration) {
	m.prometheus.TicketsIssuedTotal.WithLabelValues(tokenType).Inc()
	m.prometheus.IssueDuration.Observe(duration.Seconds())
}

// RecordTicketInvalidated counts one invalidation/reissue
func (m *Manager) RecordTicketInvalidated() {
	m.prometheus.TicketsInvalidatedTotal.Inc()
}

// RecordVerification counts one verification attempt
func (m *Manager) RecordVerification(result string, duration time.Duration) {
	m.prometheus.VerificationsTotal.WithLabelValues(result).Inc()
	m.prometheus.VerifyDuration.Observe(duration.Seconds())
}

// RecordRejection counts one typed rejection
func (m *Manager) RecordRejection(operation, kind string) {
	m.prometheus.RejectionsTotal.WithLabelValues(operation, kind).Inc()
}

// RecordOracleRequest counts one chain oracle call
func (m *Manager) RecordOracleRequest(chainID, method, status string, duration time.Duration) {
	m.prometheus.OracleRequestsTotal.WithLabelValues(chainID, method, status).Inc()
	m.prometheus.OracleRequestDuration.WithLabelValues(chainID, method).Observe(duration.Seconds())
}

// RecordCacheLookup counts one resolution-cache lookup
func (m *Manager) RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	m.prometheus.OracleCacheHitsTotal.WithLabelValues(result).Inc()
}

// RecordDatabaseOperation counts one database operation
func (m *Manager) RecordDatabaseOperation(operation, table, status string, duration time.Duration) {
	m.prometheus.DatabaseOperationsTotal.WithLabelValues(operation, table, status).Inc()
	m.prometheus.DatabaseOperationDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}

// RecordHTTPRequest counts one HTTP request
func (m *Manager) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	m.prometheus.HTTPRequestsTotal.WithLabelValues(method, path, status).Inc()
	m.prometheus.HTTPRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// UpdateSystemMetrics refreshes uptime and runtime gauges
func (m *Manager) UpdateSystemMetrics() {
	m.prometheus.UpdateRuntime(m.startedAt)
}
