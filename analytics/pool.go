/*
pool.go - Bounded dispatch for blocking counter-store calls

PURPOSE:
  Every counter-store call is potentially blocking I/O. Dispatching each
  one on a bare goroutine would let a slow store absorb unbounded
  concurrency; calling the store raw would let one call hang forever.
  The Pool bounds both: at most `size` in-flight store calls process-wide
  and a per-call timeout, while keeping callers for unrelated facts from
  queueing behind each other longer than the semaphore requires.

  The caller still runs the work on its own goroutine (requests are
  already one goroutine each); the pool only gates admission and bounds
  duration.
*/
package analytics

import (
	"context"
	"time"

	"golang.org/x/sync/semaphore"
)

// Pool defaults, sized for a handful of counter tables behind one store.
const (
	DefaultPoolSize    = 16
	DefaultCallTimeout = 2 * time.Second
)

// Pool bounds concurrent store calls and their individual durations.
type Pool struct {
	sem     *semaphore.Weighted
	timeout time.Duration
}

// NewPool builds a pool admitting at most size concurrent calls, each
// bounded by timeout. Non-positive arguments fall back to the defaults.
func NewPool(size int64, timeout time.Duration) *Pool {
	if size <= 0 {
		size = DefaultPoolSize
	}
	if timeout <= 0 {
		timeout = DefaultCallTimeout
	}
	return &Pool{
		sem:     semaphore.NewWeighted(size),
		timeout: timeout,
	}
}

// Do runs fn under admission control with a per-call deadline. The error
// is fn's own, or the acquisition error if ctx ends while waiting.
func (p *Pool) Do(ctx context.Context, fn func(context.Context) error) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer p.sem.Release(1)

	callCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	return fn(callCtx)
}
