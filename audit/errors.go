/*
errors.go - Error taxonomy for the audit ledger

PURPOSE:
  All audit-path error types in one place. Audit failures are never
  swallowed: a caller that mutated an entity must know its trail was not
  recorded. Contrast with the analytics package, whose whole contract is
  best-effort.

ERROR CATEGORIES:
  1. Serialization - the payload cannot be canonicalized/hashed
  2. Write - the durable append failed (propagated, compliance-relevant)
  3. Read - the durable store could not serve a history/tip read

USAGE:
    if errors.Is(err, audit.ErrLedgerWrite) {
        // surface a 5xx; the mutation's audit trail was NOT recorded
    }
*/
package audit

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSerialization is returned when an event payload cannot be
	// canonicalized for hashing or persistence.
	ErrSerialization = errors.New("payload serialization failed")

	// ErrLedgerWrite is returned when the durable append fails. This is
	// always propagated to the caller.
	ErrLedgerWrite = errors.New("ledger write failed")

	// ErrLedgerRead is returned when the durable store cannot serve a
	// read (history or tip resolution).
	ErrLedgerRead = errors.New("ledger read failed")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SerializationError wraps the encoder failure for an unserializable payload.
type SerializationError struct {
	Err error
}

func (e *SerializationError) Error() string {
	return fmt.Sprintf("payload serialization failed: %v", e.Err)
}

func (e *SerializationError) Unwrap() error { return ErrSerialization }

// WriteError reports a failed durable append for a partition.
type WriteError struct {
	Partition Partition
	Err       error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ledger write failed for %s: %v", e.Partition, e.Err)
}

func (e *WriteError) Unwrap() error { return ErrLedgerWrite }

// ReadError reports a failed store read for a partition.
type ReadError struct {
	Partition Partition
	Err       error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("ledger read failed for %s: %v", e.Partition, e.Err)
}

func (e *ReadError) Unwrap() error { return ErrLedgerRead }
