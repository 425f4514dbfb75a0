/*
store.go - Counter store contract for analytics roll-ups

PURPOSE:
  Defines the durable counter store the aggregator writes and the report
  surface reads. Two primitive families:

  CONDITIONAL INSERT (InsertFactOnce):
    Write-once-per-key. The first call for a fact id applies and returns
    true; every later call (including a retry of a call that already
    landed) returns false without touching the row. This is the
    aggregator's idempotency barrier.

  SIGNED ADDITIVE COUNTERS (Add*):
    Order-independent += on (sum_milli, count_grade) pairs. Deltas may
    be negative (compensating updates); concurrent deltas from unrelated
    facts must commute without external locking.

KEYSPACES (mirroring the analytics tables):
  stats_by_dim_year               (dim, dim_id, year)      dim: country|institution|system
  student_stats_by_country_year   (country, year, student_id)
  subject_stats_by_country_year   (country, year, subject_id)
  subject_stats_global            (k="ALL", subject_id)
  grade_hist_by_country_year      (country, year, bucket)

  All of these are derived views: rebuildable from the fact stream plus
  the LedgerEntry barrier, so losing them is recoverable.

SEE ALSO:
  - aggregator.go: The only writer
  - store/sqlite:  Production implementation
*/
package analytics

import "context"

// Dimension names for the generic (dim, dim_id, year) keyspace.
const (
	DimCountry     = "country"
	DimInstitution = "institution"
	DimSystem      = "system"
)

// GlobalKey partitions the single-row global subject keyspace.
const GlobalKey = "ALL"

// Stats is one (sum, count) counter pair. Average = Sum/SumScale/Count.
type Stats struct {
	SumMilli int64 `json:"sum_milli"`
	Count    int64 `json:"count"`
}

// Average returns the true mean of the counter, false when empty.
func (s Stats) Average() (float64, bool) {
	if s.Count == 0 {
		return 0, false
	}
	return float64(s.SumMilli) / SumScale / float64(s.Count), true
}

// StudentStats is one row of the student leaderboard keyspace.
type StudentStats struct {
	StudentID string `json:"student_id"`
	Stats
}

// SubjectStats is one row of a subject leaderboard keyspace.
type SubjectStats struct {
	SubjectID string `json:"subject_id"`
	Stats
}

// CounterStore is the durable roll-up store.
type CounterStore interface {
	// InsertFactOnce is the conditional insert on the fact id.
	// Returns applied=false when the entry already exists. Must be
	// safe to retry: a retry of an applied insert reports false, it
	// never duplicates the entry.
	InsertFactOnce(ctx context.Context, entry LedgerEntry) (applied bool, err error)

	// Signed additive counter updates, one per keyspace.
	AddDimYear(ctx context.Context, dim, dimID string, year int, sumDelta, countDelta int64) error
	AddStudent(ctx context.Context, country string, year int, studentID string, sumDelta, countDelta int64) error
	AddSubject(ctx context.Context, country string, year int, subjectID string, sumDelta, countDelta int64) error
	AddSubjectGlobal(ctx context.Context, subjectID string, sumDelta, countDelta int64) error
	AddHistogram(ctx context.Context, country string, year int, bucket int, countDelta int64) error

	// Reads for the report surface.
	DimYearStats(ctx context.Context, dim, dimID string, year int) (Stats, error)
	StudentStatsByCountryYear(ctx context.Context, country string, year int) ([]StudentStats, error)
	SubjectStatsByCountryYear(ctx context.Context, country string, year int) ([]SubjectStats, error)
	SubjectStatsGlobal(ctx context.Context) ([]SubjectStats, error)
	Histogram(ctx context.Context, country string, year int) (map[int]int64, error)

	// Reset drops every roll-up counter AND the idempotency barrier.
	// Only Rebuild calls this; the roll-ups are derived state.
	Reset(ctx context.Context) error
}
