/*
aggregator.go - Idempotent, self-compensating roll-up maintenance

PURPOSE:
  Applies grade facts to the analytics counters exactly once each, and
  compensates counters when a fact is corrected. The callers are the
  primary write paths (grade creation/correction); nothing here may ever
  fail them.

IDEMPOTENCE:
  Every application is gated on a conditional insert keyed by the fact
  id (the new fact's id for corrections). First insert wins and applies
  all deltas; duplicates and retries observe the existing entry and
  no-op. Arrival order is irrelevant.

CORRECTIONS:
  A correction is never a diff: the new fact's dimensions get +delta/+1
  and the old fact's dimensions get -delta/-1, each computed from its
  own snapshot. If the institution (or country, or subject) changed
  between the two, the contribution simply moves.

BEST-EFFORT CONTRACT:
  OnFactCreated and OnFactCorrected never return errors. Failures are
  narrowed to *ApplyError at the boundary, logged, and counted in the
  analytics_apply_failures_total metric. A partial multi-keyspace write
  can leave counters transiently diverged; they are derived views and
  Rebuild reconciles them from the fact stream.

SEE ALSO:
  - store.go: The counter primitives
  - rollup.go: Delta and bucket rules
*/
package analytics

import (
	"context"
	"log/slog"
	"time"
)

// Keyspace labels used in failure metrics and ApplyError.
const (
	keyspaceBarrier       = "grade_ledger_by_id"
	keyspaceDimYear       = "stats_by_dim_year"
	keyspaceStudent       = "student_stats_by_country_year"
	keyspaceSubject       = "subject_stats_by_country_year"
	keyspaceSubjectGlobal = "subject_stats_global"
	keyspaceHistogram     = "grade_hist_by_country_year"
)

// Config carries the optional knobs of an Aggregator.
type Config struct {
	// Pool bounds concurrent store calls. Nil means a default pool.
	Pool *Pool

	// Logger receives swallowed-failure notices. Nil means slog.Default.
	Logger *slog.Logger

	// Now overrides the clock, for tests. Nil means time.Now.
	Now func() time.Time
}

// Aggregator maintains the roll-up counters. Independent of the audit
// ledger; the two share only the idempotent-append pattern.
type Aggregator struct {
	store CounterStore
	pool  *Pool
	log   *slog.Logger
	now   func() time.Time
}

// NewAggregator builds an aggregator over the given counter store.
func NewAggregator(store CounterStore, cfg Config) *Aggregator {
	if cfg.Pool == nil {
		cfg.Pool = NewPool(DefaultPoolSize, DefaultCallTimeout)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Aggregator{
		store: store,
		pool:  cfg.Pool,
		log:   cfg.Logger,
		now:   cfg.Now,
	}
}

// OnFactCreated applies one new fact to every matching roll-up, exactly
// once per fact id. Never returns an error; see the best-effort contract
// in the file header.
func (a *Aggregator) OnFactCreated(ctx context.Context, fact FactSnapshot) {
	value, ok := a.admit(fact)
	if !ok {
		return
	}

	applied, err := a.insertBarrier(ctx, fact, value)
	if err != nil {
		a.swallow(&ApplyError{FactID: fact.ID, Keyspace: keyspaceBarrier, Err: err})
		return
	}
	if !applied {
		metricFactsDuplicate.Inc()
		return
	}

	a.applyDeltas(ctx, fact, value, +1)
	metricFactsApplied.Inc()
}

// OnFactCorrected compensates the roll-ups for a corrected fact: +deltas
// for the new snapshot, -deltas for the old one, dimensions computed
// independently per snapshot. Gated on the NEW fact's id, so a replayed
// correction is never partially re-applied. Never returns an error.
func (a *Aggregator) OnFactCorrected(ctx context.Context, oldFact, newFact FactSnapshot) {
	newValue, ok := a.admit(newFact)
	if !ok {
		return
	}
	oldValue, ok := NumericValue(oldFact.Value)
	if !ok {
		// The original never contributed; the correction reduces to
		// a plain creation of the new snapshot.
		a.OnFactCreated(ctx, newFact)
		return
	}

	applied, err := a.insertBarrier(ctx, newFact, newValue)
	if err != nil {
		a.swallow(&ApplyError{FactID: newFact.ID, Keyspace: keyspaceBarrier, Err: err})
		return
	}
	if !applied {
		metricFactsDuplicate.Inc()
		return
	}

	a.applyDeltas(ctx, newFact, newValue, +1)
	a.applyDeltas(ctx, oldFact, oldValue, -1)
	metricCorrections.Inc()
}

// Rebuild resets every roll-up and replays a fact stream through the
// normal idempotent path. Operator-invoked maintenance: unlike the On*
// entry points it reports errors. Facts already filtered out upstream
// (no id, non-numeric) are skipped exactly as live traffic would be.
func (a *Aggregator) Rebuild(ctx context.Context, facts []FactSnapshot) error {
	if err := a.store.Reset(ctx); err != nil {
		return err
	}
	for _, fact := range facts {
		a.OnFactCreated(ctx, fact)
	}
	return nil
}

// admit performs the shared entry checks: a usable id and a numeric
// value. Inadmissible facts are excluded from roll-ups by design, not
// failures.
func (a *Aggregator) admit(fact FactSnapshot) (float64, bool) {
	if fact.ID == "" {
		metricFactsSkipped.Inc()
		return 0, false
	}
	value, ok := NumericValue(fact.Value)
	if !ok {
		metricFactsSkipped.Inc()
		return 0, false
	}
	return value, true
}

// insertBarrier attempts the write-once ledger entry for a fact.
func (a *Aggregator) insertBarrier(ctx context.Context, fact FactSnapshot, value float64) (bool, error) {
	now := a.now().UTC()
	entry := LedgerEntry{
		FactID:        fact.ID,
		Country:       fact.NormalizedCountry(),
		Year:          fact.ResolveYear(now),
		StudentID:     fact.StudentID,
		InstitutionID: fact.InstitutionID,
		SubjectID:     fact.SubjectID,
		Value:         value,
		CreatedAt:     now,
	}

	var applied bool
	err := a.pool.Do(ctx, func(callCtx context.Context) error {
		var insertErr error
		applied, insertErr = a.store.InsertFactOnce(callCtx, entry)
		return insertErr
	})
	return applied, err
}

// applyDeltas fans one fact's contribution out to every matching
// keyspace with the given sign. Each keyspace is attempted even if an
// earlier one failed: counters commute, and a missed delta in one table
// is no reason to miss the rest.
func (a *Aggregator) applyDeltas(ctx context.Context, fact FactSnapshot, value float64, sign int64) {
	sumDelta := sign * ScaledDelta(value)
	countDelta := sign
	country := fact.NormalizedCountry()
	year := fact.ResolveYear(a.now())
	bucket := Bucket(value)

	if country != "" {
		a.add(ctx, fact.ID, keyspaceDimYear, func(c context.Context) error {
			return a.store.AddDimYear(c, DimCountry, country, year, sumDelta, countDelta)
		})
	}
	if fact.InstitutionID != "" {
		a.add(ctx, fact.ID, keyspaceDimYear, func(c context.Context) error {
			return a.store.AddDimYear(c, DimInstitution, fact.InstitutionID, year, sumDelta, countDelta)
		})
	}
	if fact.SystemID != "" {
		a.add(ctx, fact.ID, keyspaceDimYear, func(c context.Context) error {
			return a.store.AddDimYear(c, DimSystem, fact.SystemID, year, sumDelta, countDelta)
		})
	}
	if fact.StudentID != "" && country != "" {
		a.add(ctx, fact.ID, keyspaceStudent, func(c context.Context) error {
			return a.store.AddStudent(c, country, year, fact.StudentID, sumDelta, countDelta)
		})
	}
	if fact.SubjectID != "" {
		if country != "" {
			a.add(ctx, fact.ID, keyspaceSubject, func(c context.Context) error {
				return a.store.AddSubject(c, country, year, fact.SubjectID, sumDelta, countDelta)
			})
		}
		a.add(ctx, fact.ID, keyspaceSubjectGlobal, func(c context.Context) error {
			return a.store.AddSubjectGlobal(c, fact.SubjectID, sumDelta, countDelta)
		})
	}
	if country != "" {
		a.add(ctx, fact.ID, keyspaceHistogram, func(c context.Context) error {
			return a.store.AddHistogram(c, country, year, bucket, countDelta)
		})
	}
}

// add runs one counter update through the pool and swallows its failure.
func (a *Aggregator) add(ctx context.Context, factID, keyspace string, fn func(context.Context) error) {
	if err := a.pool.Do(ctx, fn); err != nil {
		a.swallow(&ApplyError{FactID: factID, Keyspace: keyspace, Err: err})
	}
}

// swallow is the best-effort boundary: structured log + metric, no
// propagation.
func (a *Aggregator) swallow(err *ApplyError) {
	metricApplyFailures.WithLabelValues(err.Keyspace).Inc()
	a.log.Warn("analytics apply failed",
		"fact_id", err.FactID,
		"keyspace", err.Keyspace,
		"error", err.Err)
}
