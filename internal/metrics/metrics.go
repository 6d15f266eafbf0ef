// Package metrics holds the Prometheus collectors of the case store and the verification sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Result label values of StoreOperations.
const (
	ResultOK          = "ok"
	ResultNotFound    = "not_found"
	ResultInvalid     = "invalid_input"
	ResultUnavailable = "unavailable"
)

// Metrics tracks case store traffic, backend selection and verification outcomes.
type Metrics struct {
	StoreOperations  *prometheus.CounterVec
	StoreDuration    *prometheus.HistogramVec
	BackendSelected  *prometheus.GaugeVec
	SessionsStarted  prometheus.Counter
	SessionOutcomes  *prometheus.CounterVec
	ProtocolRejected *prometheus.CounterVec
}

// New creates the collectors and registers them with reg.
//
// Pass prometheus.DefaultRegisterer in production and a fresh prometheus.NewRegistry() in tests.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		StoreOperations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudalert_store_operations_total",
			Help: "Case store operations by backend, operation and result",
		}, []string{"backend", "operation", "result"}),
		StoreDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "fraudalert_store_operation_duration_seconds",
			Help:    "Duration of case store operations",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		}, []string{"backend", "operation"}),
		BackendSelected: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "fraudalert_store_backend_selected",
			Help: "Set to 1 for the backend chosen at startup",
		}, []string{"backend"}),
		SessionsStarted: factory.NewCounter(prometheus.CounterOpts{
			Name: "fraudalert_sessions_started_total",
			Help: "Total number of verification sessions started",
		}),
		SessionOutcomes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudalert_session_outcomes_total",
			Help: "Case statuses written by verification sessions",
		}, []string{"status"}),
		ProtocolRejected: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "fraudalert_protocol_rejections_total",
			Help: "Operations rejected because they were called out of order",
		}, []string{"operation"}),
	}
}

// ObserveStore records the duration and result of a store operation.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStore(backend, operation, result string, start time.Time) {
	m.StoreOperations.WithLabelValues(backend, operation, result).Inc()
	m.StoreDuration.WithLabelValues(backend, operation).Observe(time.Since(start).Seconds())
}

// SelectBackend marks backend as the one in use.
func (m *Metrics) SelectBackend(backend string) {
	m.BackendSelected.Reset()
	m.BackendSelected.WithLabelValues(backend).Set(1)
}

// IncrementSessionStarted records a new verification session.
func (m *Metrics) IncrementSessionStarted() {
	m.SessionsStarted.Inc()
}

// IncrementOutcome records a status written by a session.
func (m *Metrics) IncrementOutcome(status string) {
	m.SessionOutcomes.WithLabelValues(status).Inc()
}

// IncrementProtocolRejected records an out-of-order operation.
func (m *Metrics) IncrementProtocolRejected(operation string) {
	m.ProtocolRejected.WithLabelValues(operation).Inc()
}
