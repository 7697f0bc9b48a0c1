package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the patrol verification server.
type Metrics struct {
	marksRecorded  prometheus.Counter
	marksDuplicate prometheus.Counter
	finalized      *prometheus.CounterVec
	panicAlerts    prometheus.Counter
}

// New creates and registers the patrol metrics.
func New() *Metrics {
	return &Metrics{
		marksRecorded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_patrol_marks_recorded_total",
			Help: "Checkpoint marks accepted and persisted.",
		}),
		marksDuplicate: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_patrol_marks_duplicate_total",
			Help: "Mark submissions acknowledged as already-recorded replays.",
		}),
		finalized: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_patrol_executions_finalized_total",
			Help: "Executions finalized, by terminal state.",
		}, []string{"state"}),
		panicAlerts: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_patrol_panic_alerts_total",
			Help: "Panic alerts raised from the field.",
		}),
	}
}

// IncMarkRecorded counts an accepted checkpoint mark.
func (m *Metrics) IncMarkRecorded() {
	if m == nil {
		return
	}
	m.marksRecorded.Inc()
}

// IncMarkDuplicate counts a replayed mark acknowledged without re-counting.
func (m *Metrics) IncMarkDuplicate() {
	if m == nil {
		return
	}
	m.marksDuplicate.Inc()
}

// IncFinalized counts a finalized execution by terminal state.
func (m *Metrics) IncFinalized(state string) {
	if m == nil {
		return
	}
	m.finalized.WithLabelValues(state).Inc()
}

// IncPanicAlert counts a panic alert.
func (m *Metrics) IncPanicAlert() {
	if m == nil {
		return
	}
	m.panicAlerts.Inc()
}
