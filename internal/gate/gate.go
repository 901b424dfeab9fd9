// Package gate bounds concurrent GPU-bound stage execution with a counting
// semaphore. Acquisition is scoped: callers receive a release closure that is
// safe to defer and idempotent, so capacity cannot leak on any exit path.
package gate

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"autosub/internal/services"
)

// Gate is the GPU admission gate. The zero value is unusable; construct with
// New.
type Gate struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
	// timeout bounds a single acquisition. Zero waits until the context is
	// cancelled.
	timeout time.Duration
}

// New constructs a gate admitting at most slots concurrent holders. A
// non-positive slot count falls back to 1, the safe default for a single GPU.
func New(slots int64, timeout time.Duration) *Gate {
	if slots <= 0 {
		slots = 1
	}
	return &Gate{
		sem:      semaphore.NewWeighted(slots),
		capacity: slots,
		timeout:  timeout,
	}
}

// Acquire blocks until a slot is free, the optional timeout elapses, or the
// context is cancelled. On success it returns an idempotent release func the
// caller must defer. A timeout surfaces as services.ErrResourceUnavailable so
// the runner can mark the failure retryable.
func (g *Gate) Acquire(ctx context.Context) (func(), error) {
	acquireCtx := ctx
	var cancel context.CancelFunc
	if g.timeout > 0 {
		acquireCtx, cancel = context.WithTimeout(ctx, g.timeout)
		defer cancel()
	}

	if err := g.sem.Acquire(acquireCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, services.Wrap(services.ErrResourceUnavailable, "", "acquire gpu slot",
			"no GPU slot became free within the configured timeout", err)
	}

	g.inUse.Add(1)
	var once sync.Once
	release := func() {
		once.Do(func() {
			g.inUse.Add(-1)
			g.sem.Release(1)
		})
	}
	return release, nil
}

// InUse reports how many slots are currently held.
func (g *Gate) InUse() int64 {
	return g.inUse.Load()
}

// Capacity reports the configured slot count.
func (g *Gate) Capacity() int64 {
	return g.capacity
}
