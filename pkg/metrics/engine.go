package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// EngineMetrics counts reservation engine activity.
type EngineMetrics struct {
	movements   *prometheus.CounterVec
	transitions *prometheus.CounterVec
	rejections  *prometheus.CounterVec
	driftItems  prometheus.Gauge
}

// NewEngineMetrics registers the engine metrics on the provided registerer.
func NewEngineMetrics(reg prometheus.Registerer) *EngineMetrics {
	if reg == nil {
		return &EngineMetrics{}
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventrentals_stock_movements_total",
		Help: "Units moved through the stock ledger by movement kind.",
	}, []string{"kind"})
	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventrentals_lifecycle_transitions_total",
		Help: "Reservation and calendar lifecycle transitions.",
	}, []string{"transition"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "eventrentals_engine_rejections_total",
		Help: "Engine operations rejected, by operation and error code.",
	}, []string{"operation", "code"})
	driftItems := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "eventrentals_ledger_drift_items",
		Help: "Items whose stock does not match the sum of their movements.",
	})
	reg.MustRegister(movements, transitions, rejections, driftItems)
	return &EngineMetrics{
		movements:   movements,
		transitions: transitions,
		rejections:  rejections,
		driftItems:  driftItems,
	}
}

// AddMovement records qty units moved with the given kind.
func (m *EngineMetrics) AddMovement(kind string, qty int) {
	if m == nil || m.movements == nil || qty <= 0 {
		return
	}
	m.movements.WithLabelValues(normalizeLabel(kind)).Add(float64(qty))
}

// IncTransition counts one lifecycle transition (submitted, confirmed, ...).
func (m *EngineMetrics) IncTransition(transition string) {
	if m == nil || m.transitions == nil {
		return
	}
	m.transitions.WithLabelValues(normalizeLabel(transition)).Inc()
}

// IncRejection counts a failed engine operation.
func (m *EngineMetrics) IncRejection(operation, code string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(operation), normalizeLabel(code)).Inc()
}

// SetDriftItems publishes the result of the latest ledger reconciliation sweep.
func (m *EngineMetrics) SetDriftItems(count int) {
	if m == nil || m.driftItems == nil {
		return
	}
	m.driftItems.Set(float64(count))
}
