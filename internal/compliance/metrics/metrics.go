package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the compliance registry.
type Metrics struct {
	// Mutating operations by operation and outcome ("ok", "not_found", "conflict", "invalid", "error")
	Operations *prometheus.CounterVec

	// Compliance verdicts handed out by IsCompliant
	ComplianceChecks *prometheus.CounterVec

	// Maintenance-due verdicts handed out by NeedsMaintenance
	MaintenanceChecks *prometheus.CounterVec

	// Store round-trip latency by operation
	StoreLatency *prometheus.HistogramVec
}

// New creates a new Metrics instance registered on the default registry.
func New() *Metrics {
	return NewWithRegisterer(prometheus.DefaultRegisterer)
}

// NewWithRegisterer registers the metrics on reg. Tests pass a fresh
// prometheus.NewRegistry() to avoid duplicate registration panics.
func NewWithRegisterer(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Operations: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_operations_total",
			Help: "Total compliance registry mutations by operation and outcome",
		}, []string{"operation", "outcome"}),

		ComplianceChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_checks_total",
			Help: "Total compliance evaluations by verdict",
		}, []string{"verdict"}),

		MaintenanceChecks: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "compliance_maintenance_checks_total",
			Help: "Total maintenance-due evaluations by verdict",
		}, []string{"verdict"}),

		StoreLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "compliance_store_duration_seconds",
			Help:    "Duration of compliance store operations",
			Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"operation"}),
	}
}

// IncrementOperation records the outcome of a mutating operation.
func (m *Metrics) IncrementOperation(operation, outcome string) {
	if m != nil {
		m.Operations.WithLabelValues(operation, outcome).Inc()
	}
}

// IncrementComplianceCheck records an IsCompliant verdict.
func (m *Metrics) IncrementComplianceCheck(compliant bool) {
	if m != nil {
		m.ComplianceChecks.WithLabelValues(verdict(compliant, "compliant", "non_compliant")).Inc()
	}
}

// IncrementMaintenanceCheck records a NeedsMaintenance verdict.
func (m *Metrics) IncrementMaintenanceCheck(due bool) {
	if m != nil {
		m.MaintenanceChecks.WithLabelValues(verdict(due, "due", "not_due")).Inc()
	}
}

// ObserveStore records the duration of a store call.
// Call with time.Now() at the start of the operation.
func (m *Metrics) ObserveStore(operation string, start time.Time) {
	if m != nil {
		m.StoreLatency.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	}
}

func verdict(v bool, yes, no string) string {
	if v {
		return yes
	}
	return no
}
