/*
errors.go - Error types for the analytics aggregator

PURPOSE:
  The aggregator's public contract is "never raises": every failure is
  caught at the boundary, logged and metered instead of propagated.
  These types exist so that boundary catches something NARROW and
  structured rather than a blanket everything.

  Rebuild is the one exception: it is an operator-invoked maintenance
  operation and reports its errors normally.
*/
package analytics

import (
	"errors"
	"fmt"
)

var (
	// ErrApply is the sentinel under every swallowed roll-up failure.
	ErrApply = errors.New("analytics apply failed")
)

// ApplyError reports one failed counter update or barrier write. FactID
// identifies the fact, Keyspace the roll-up that missed its delta.
type ApplyError struct {
	FactID   string
	Keyspace string
	Err      error
}

func (e *ApplyError) Error() string {
	return fmt.Sprintf("analytics apply failed: fact %s keyspace %s: %v",
		e.FactID, e.Keyspace, e.Err)
}

func (e *ApplyError) Unwrap() error { return ErrApply }
