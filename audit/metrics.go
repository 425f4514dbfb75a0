package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus counters for the audit path. Registered once against the
// default registry; the api package exposes them on /metrics.
var (
	metricEventsRecorded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_events_recorded_total",
		Help: "Events durably appended to the audit ledger",
	})

	metricRecordFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_record_failures_total",
		Help: "RecordEvent calls that failed and propagated an error",
	})

	metricTipCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_tip_cache_hits_total",
		Help: "Chain-tip resolutions served by the tip cache",
	})

	metricTipCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "audit_tip_cache_misses_total",
		Help: "Chain-tip resolutions that fell back to the ledger store",
	})
)
