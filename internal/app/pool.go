package app

import (
	"context"

	"golang.org/x/sync/semaphore"
)

// DefaultCallPoolSize is the number of concurrent remote calls allowed when
// no size is configured.
const DefaultCallPoolSize = 10

// CallPool bounds how many collaborator calls run at once across all writers
// sharing it. It holds no per-writer state.
type CallPool struct {
	sem  *semaphore.Weighted
	size int
}

// NewCallPool creates a pool with room for size concurrent calls.
func NewCallPool(size int) *CallPool {
	if size <= 0 {
		size = DefaultCallPoolSize
	}
	return &CallPool{
		sem:  semaphore.NewWeighted(int64(size)),
		size: size,
	}
}

// Size returns the configured pool size.
func (p *CallPool) Size() int {
	return p.size
}

// submit runs fn on its own goroutine once a slot is free.
// The slot is held until fn returns, even after the submitter stopped
// waiting, so a call stuck in uninterruptible I/O keeps counting against
// the pool.
func (p *CallPool) submit(ctx context.Context, fn func()) error {
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	go func() {
		defer p.sem.Release(1)
		fn()
	}()
	return nil
}
