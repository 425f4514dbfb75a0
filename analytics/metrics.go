package analytics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters for the analytics path. Failures here never reach
// the caller, so the metrics ARE the failure signal.
var (
	metricFactsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_facts_applied_total",
		Help: "Facts whose deltas were applied to the roll-ups",
	})

	metricFactsDuplicate = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_facts_duplicate_total",
		Help: "Facts skipped because their id was already applied",
	})

	metricFactsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_facts_skipped_total",
		Help: "Facts excluded from roll-ups (missing id or non-numeric value)",
	})

	metricCorrections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "analytics_corrections_applied_total",
		Help: "Fact corrections compensated in the roll-ups",
	})

	metricApplyFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "analytics_apply_failures_total",
		Help: "Swallowed roll-up write failures, by keyspace",
	}, []string{"keyspace"})
)
