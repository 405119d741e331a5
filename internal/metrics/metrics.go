// Package metrics exports scheduling engine outcomes as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// OutcomeOK labels successful operations.
const OutcomeOK = "ok"

// Recorder counts engine operations by outcome and tracks the live schedule size.
type Recorder struct {
	namespace string
	subsystem string
	registry  prometheus.Registerer

	operations *prometheus.CounterVec
	conflicts  prometheus.Counter
	liveEvents prometheus.Gauge
}

// NewRecorder registers the engine metrics on the configured registry,
// prometheus.DefaultRegisterer unless WithRegistry is given.
func NewRecorder(opts ...Option) *Recorder {
	r := &Recorder{
		namespace: "conference",
		subsystem: "scheduler",
		registry:  prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(r)
	}

	auto := promauto.With(r.registry)
	r.operations = auto.NewCounterVec(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "operations_total",
		Help:      "Engine operations by name and outcome",
	}, []string{"operation", "outcome"})

	r.conflicts = auto.NewCounter(prometheus.CounterOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "conflicts_total",
		Help:      "Conflicting events reported by rejected schedule and reschedule calls",
	})

	r.liveEvents = auto.NewGauge(prometheus.GaugeOpts{
		Namespace: r.namespace,
		Subsystem: r.subsystem,
		Name:      "live_events",
		Help:      "Events currently in the schedule",
	})

	return r
}

// RecordOutcome counts one call of operation. An empty kind means success.
func (r *Recorder) RecordOutcome(operation, kind string) {
	if kind == "" {
		kind = OutcomeOK
	}
	r.operations.WithLabelValues(operation, kind).Inc()
}

// RecordConflicts adds n reported conflicts.
func (r *Recorder) RecordConflicts(n int) {
	if n > 0 {
		r.conflicts.Add(float64(n))
	}
}

// SetLiveEvents records the current schedule size.
func (r *Recorder) SetLiveEvents(n int) {
	r.liveEvents.Set(float64(n))
}
