/*
store.go - Persistence interfaces consumed by the audit ledger

PURPOSE:
  Defines the two storage collaborators the Ledger orchestrates. Both are
  injected at construction; the ledger owns no connections and opens no
  clients of its own (lifecycle belongs to the process entry point).

APPEND-ONLY CONTRACT:
  Store has exactly one write operation, Append. There is no Update and
  no Delete, and implementations must not add them.

TIP CACHE:
  TipCache is an OPTIMIZATION, never a source of truth. A miss, an
  expired entry, or an entirely absent cache (nil) are all normal
  operating modes: the ledger falls back to Store.LatestHash. Cache
  errors on read are treated as misses; cache errors on write after a
  successful durable append are logged and dropped.

IMPLEMENTATIONS:
  - store/sqlite:      production Store
  - store/badgercache: production TipCache (BadgerDB, native TTL)
  - store/memory:      both, for tests and development

SEE ALSO:
  - ledger.go: The orchestrator
*/
package audit

import (
	"context"
	"time"
)

// Store is the durable, partition-ordered event store. Rows are keyed by
// (entity_type, entity_id) and clustered by timestamp descending.
type Store interface {
	// Append persists one event. This is the ONLY write operation.
	Append(ctx context.Context, e Event) error

	// Load returns up to limit events of a partition in the given
	// order. One bounded range read; the result is fully materialized.
	Load(ctx context.Context, p Partition, order Order, limit int) ([]Event, error)

	// LatestHash returns the hash of the newest event of a partition,
	// or "" if the partition is empty.
	LatestHash(ctx context.Context, p Partition) (string, error)
}

// TipCache holds the last known chain hash per partition, bounded by a
// TTL. Get returns found=false on a miss or expired entry.
type TipCache interface {
	Get(ctx context.Context, key string) (value string, found bool, err error)
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
}
