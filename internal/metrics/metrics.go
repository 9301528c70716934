// Package metrics holds the engine's Prometheus instrumentation.
package metrics

import "github.com/prometheus/client_golang/prometheus"

type Metrics struct {
	Enrollments      *prometheus.CounterVec
	GoalsRecorded    *prometheus.CounterVec
	UnknownGoals     prometheus.Counter
	ReportsBuilt     prometheus.Counter
	AnalyticsDropped prometheus.Counter
}

// New registers the engine counters on the given registerer.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Enrollments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cohort_enrollments_total",
			Help: "First-time experiment enrollments by group.",
		}, []string{"group"}),
		GoalsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cohort_goals_recorded_total",
			Help: "Recorded goal conversions by goal type.",
		}, []string{"goal_type"}),
		UnknownGoals: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cohort_unknown_goals_total",
			Help: "Goal beacons naming an unregistered goal type.",
		}),
		ReportsBuilt: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cohort_engagement_reports_built_total",
			Help: "Daily engagement reports persisted.",
		}),
		AnalyticsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cohort_analytics_dropped_total",
			Help: "Analytics events dropped because the forward queue was full.",
		}),
	}
	reg.MustRegister(m.Enrollments, m.GoalsRecorded, m.UnknownGoals, m.ReportsBuilt, m.AnalyticsDropped)
	return m
}
