/*
ledger.go - Tamper-evident, hash-chained audit ledger

PURPOSE:
  Orchestrates Store + TipCache + the hash chain to append and read
  per-entity event histories. This is the ONLY writer of audit events.

APPEND SEQUENCE (RecordEvent):
  1. Take the partition lock (see CONCURRENCY below)
  2. Resolve previousHash: tip cache first, store on miss
  3. Stamp the event with the current UTC time and compute its hash
  4. Durably append (failure propagates - audit is not best-effort)
  5. Refresh the tip cache (failure logged, never propagated)

CONCURRENCY:
  Steps 2-4 are serialized per (entity_type, entity_id) with a partition
  mutex. Without it, two concurrent writers could both read the same tip
  and append sibling events pointing at one predecessor, forking the
  chain. Unrelated partitions never contend: each has its own lock, and
  a slow store call for entity A never delays entity B.

FAILURE SEMANTICS:
  - Durable append fails     -> *WriteError, propagated. The caller must
                                know the trail was not recorded.
  - Store read fails         -> *ReadError, propagated.
  - Tip cache get fails      -> treated as a miss.
  - Tip cache set fails      -> logged; the event is already durable.

SEE ALSO:
  - hash.go: Hash formula
  - verify.go: Independent chain verification
*/
package audit

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Default bounds for store interactions.
const (
	DefaultTipTTL = 30 * time.Minute

	// Tip resolution is an idempotent read, so it gets one bounded
	// retry. Writes are never retried here: retry policy for a failed
	// append belongs to the caller.
	tipReadAttempts = 2
)

// Config carries the optional knobs of a Ledger.
type Config struct {
	// TipTTL bounds tip-cache entries. Zero means DefaultTipTTL.
	TipTTL time.Duration

	// Logger receives cache degradation notices. Nil means slog.Default.
	Logger *slog.Logger
}

// Ledger appends and reads tamper-evident event histories.
type Ledger struct {
	store  Store
	cache  TipCache // nil = cold-cache mode, store is always consulted
	tipTTL time.Duration
	log    *slog.Logger

	mu    sync.Mutex
	locks map[Partition]*sync.Mutex
}

// NewLedger builds a ledger over the given store. cache may be nil;
// running without one is a normal (slower) operating mode.
func NewLedger(store Store, cache TipCache, cfg Config) *Ledger {
	if cfg.TipTTL <= 0 {
		cfg.TipTTL = DefaultTipTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Ledger{
		store:  store,
		cache:  cache,
		tipTTL: cfg.TipTTL,
		log:    cfg.Logger,
		locks:  make(map[Partition]*sync.Mutex),
	}
}

// RecordEvent appends one event to the partition's chain and returns it
// as written. Errors from the durable store always propagate; see the
// file header for the full failure contract.
func (l *Ledger) RecordEvent(ctx context.Context, entityType, entityID, action, actor string, payload any) (Event, error) {
	p := Partition{EntityType: entityType, EntityID: entityID}

	lock := l.partitionLock(p)
	lock.Lock()
	defer lock.Unlock()

	previousHash, err := l.resolveTip(ctx, p)
	if err != nil {
		metricRecordFailures.Inc()
		return Event{}, err
	}

	now := time.Now().UTC()
	data := EventData{
		EntityType: entityType,
		EntityID:   entityID,
		Action:     action,
		Actor:      actor,
		Payload:    payload,
		Timestamp:  now.Format(TimestampFormat),
	}

	hash, err := ComputeHash(data, previousHash)
	if err != nil {
		metricRecordFailures.Inc()
		return Event{}, err
	}

	event := Event{
		EntityType:   entityType,
		EntityID:     entityID,
		Action:       action,
		Actor:        actor,
		Payload:      payload,
		Timestamp:    now,
		PreviousHash: previousHash,
		Hash:         hash,
	}

	if err := l.store.Append(ctx, event); err != nil {
		metricRecordFailures.Inc()
		return Event{}, &WriteError{Partition: p, Err: err}
	}
	metricEventsRecorded.Inc()

	if l.cache != nil {
		if err := l.cache.Set(ctx, p.CacheKey(), hash, l.tipTTL); err != nil {
			// The event is durable; a stale tip only costs one
			// store read on the next append.
			l.log.Warn("audit tip cache set failed",
				"partition", p.String(), "error", err)
		}
	}

	return event, nil
}

// History returns up to limit events of a partition. order defaults to
// descending (most recent first); limit is clamped to [1, MaxHistoryLimit]
// with DefaultHistoryLimit for non-positive values.
func (l *Ledger) History(ctx context.Context, entityType, entityID string, order Order, limit int) ([]Event, error) {
	p := Partition{EntityType: entityType, EntityID: entityID}

	if order != OrderAsc {
		order = OrderDesc
	}
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	if limit > MaxHistoryLimit {
		limit = MaxHistoryLimit
	}

	events, err := l.store.Load(ctx, p, order, limit)
	if err != nil {
		return nil, &ReadError{Partition: p, Err: err}
	}
	return events, nil
}

// resolveTip returns the hash the next event must link to: the cached
// tip when fresh, otherwise the newest stored hash ("" for an empty
// partition). Caller holds the partition lock.
func (l *Ledger) resolveTip(ctx context.Context, p Partition) (string, error) {
	if l.cache != nil {
		value, found, err := l.cache.Get(ctx, p.CacheKey())
		if err != nil {
			// A broken cache is indistinguishable from a cold one.
			l.log.Warn("audit tip cache get failed",
				"partition", p.String(), "error", err)
		} else if found {
			metricTipCacheHits.Inc()
			return value, nil
		}
	}
	metricTipCacheMisses.Inc()

	var lastErr error
	for attempt := 0; attempt < tipReadAttempts; attempt++ {
		hash, err := l.store.LatestHash(ctx, p)
		if err == nil {
			return hash, nil
		}
		lastErr = err
	}
	return "", &ReadError{Partition: p, Err: lastErr}
}

// partitionLock returns the mutex serializing appends for p, creating it
// on first use. The map only ever grows; entries are a mutex each, paid
// once per distinct entity seen by this process.
func (l *Ledger) partitionLock(p Partition) *sync.Mutex {
	l.mu.Lock()
	defer l.mu.Unlock()
	lock, ok := l.locks[p]
	if !ok {
		lock = &sync.Mutex{}
		l.locks[p] = lock
	}
	return lock
}
