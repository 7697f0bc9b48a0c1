package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds Prometheus metrics for the clock-event recorder.
type Metrics struct {
	eventsAccepted *prometheus.CounterVec
	eventsRejected *prometheus.CounterVec
	geofenceDenied prometheus.Counter
}

// New creates and registers the recorder metrics.
func New() *Metrics {
	return &Metrics{
		eventsAccepted: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_clock_events_accepted_total",
			Help: "Clock events accepted, by event type.",
		}, []string{"type"}),
		eventsRejected: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "vigil_clock_events_rejected_total",
			Help: "Clock events rejected, by error code.",
		}, []string{"code"}),
		geofenceDenied: promauto.NewCounter(prometheus.CounterOpts{
			Name: "vigil_clock_events_geofence_denied_total",
			Help: "Clock events rejected for falling outside the site geofence.",
		}),
	}
}

// IncAccepted counts an accepted event.
func (m *Metrics) IncAccepted(eventType string) {
	if m == nil {
		return
	}
	m.eventsAccepted.WithLabelValues(eventType).Inc()
}

// IncRejected counts a rejected submission by error code.
func (m *Metrics) IncRejected(code string) {
	if m == nil {
		return
	}
	m.eventsRejected.WithLabelValues(code).Inc()
}

// IncGeofenceDenied counts an out-of-geofence rejection.
func (m *Metrics) IncGeofenceDenied() {
	if m == nil {
		return
	}
	m.geofenceDenied.Inc()
}
