// Package metric provides Prometheus instrumentation for the rule
// engine.
package metric

import "github.com/prometheus/client_golang/prometheus"

// Engine holds the rule engine metrics.
type Engine struct {
	RuleApplications  *prometheus.CounterVec
	StatementsCreated *prometheus.CounterVec
	FixpointPasses    prometheus.Counter
	ApplyDuration     *prometheus.HistogramVec
}

// NewEngine creates the engine metrics, unregistered.
func NewEngine() *Engine {
	return &Engine{
		RuleApplications: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "noetic",
				Subsystem: "rules",
				Name:      "applications_total",
				Help:      "Total number of rule applications",
			},
			[]string{"rule"},
		),
		StatementsCreated: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "noetic",
				Subsystem: "rules",
				Name:      "statements_created_total",
				Help:      "Total number of statements created by rule consequences",
			},
			[]string{"rule"},
		),
		FixpointPasses: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "noetic",
				Subsystem: "rules",
				Name:      "fixpoint_passes_total",
				Help:      "Total number of fixpoint passes",
			},
		),
		ApplyDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "noetic",
				Subsystem: "rules",
				Name:      "apply_duration_seconds",
				Help:      "Rule application duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"rule"},
		),
	}
}

// Register adds all engine metrics to a registerer.
func (e *Engine) Register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{
		e.RuleApplications,
		e.StatementsCreated,
		e.FixpointPasses,
		e.ApplyDuration,
	} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
