/*
types.go - Core types for the tamper-evident audit ledger

PURPOSE:
  Defines the AuditEvent record and the partition key used to address one
  entity's hash chain. Every mutation of a business entity (grade, student,
  institution, subject) produces one Event appended to that entity's chain.

CHAIN MODEL:
  Each partition (entity_type, entity_id) is an independent singly linked
  list. An event's PreviousHash points at the hash of the event appended
  just before it; the first event of a partition has PreviousHash = "".
  No ordering is guaranteed (or needed) across partitions.

IMMUTABILITY:
  Events are created once by Ledger.RecordEvent and never mutated or
  deleted. Corrections to a business fact are recorded as NEW events,
  never as edits to old ones.

SEE ALSO:
  - hash.go: How Hash and PreviousHash are computed
  - ledger.go: The orchestrator that appends events
*/
package audit

import "time"

// Order controls the direction of a history read.
type Order string

const (
	OrderAsc  Order = "asc"
	OrderDesc Order = "desc"
)

// History read bounds. Reads are always finite; callers asking for more
// than MaxHistoryLimit are clamped, callers asking for nothing get the
// default page.
const (
	DefaultHistoryLimit = 100
	MaxHistoryLimit     = 1000
)

// Partition identifies one entity's chain.
type Partition struct {
	EntityType string
	EntityID   string
}

// CacheKey is the tip-cache key for this partition.
// Format: audit_hash:{entity_type}:{entity_id}
func (p Partition) CacheKey() string {
	return "audit_hash:" + p.EntityType + ":" + p.EntityID
}

func (p Partition) String() string {
	return p.EntityType + "/" + p.EntityID
}

// Event is one immutable entry in an entity's audit chain.
type Event struct {
	EntityType string `json:"entity_type"`
	EntityID   string `json:"entity_id"`

	// Action is a free-form tag: CREATE, UPDATE, GRADE_CREATED,
	// TRAJECTORY_FAILED, ...
	Action string `json:"action"`

	// Actor identifies the writer: "system" or a user id.
	Actor string `json:"actor"`

	// Payload is an opaque, JSON-serializable snapshot. It is
	// canonicalized (stable key order) before hashing and before
	// persistence, so semantically equal payloads hash identically.
	Payload any `json:"payload"`

	// Timestamp is set by the writer at append time (UTC) and is the
	// clustering key of the partition.
	Timestamp time.Time `json:"timestamp"`

	// PreviousHash is the hash of the chain predecessor, "" for the
	// first event of a partition.
	PreviousHash string `json:"previous_hash,omitempty"`

	// Hash covers the event content and PreviousHash. See ComputeHash.
	Hash string `json:"hash"`
}

// Partition returns the chain this event belongs to.
func (e Event) Partition() Partition {
	return Partition{EntityType: e.EntityType, EntityID: e.EntityID}
}
