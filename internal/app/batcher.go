package app

import (
	"time"

	"github.com/bft-labs/txnship/internal/domain"
)

// Batcher tracks the records written into the open transaction and decides
// when it should be committed.
type Batcher struct {
	batch         *domain.Batch
	maxEvents     int
	maxBytes      int
	flushInterval time.Duration
	lastFlush     time.Time
}

// NewBatcher creates a new batcher. A zero limit disables that trigger.
func NewBatcher(maxEvents, maxBytes int, flushInterval time.Duration) *Batcher {
	return &Batcher{
		batch:         domain.NewBatch(),
		maxEvents:     maxEvents,
		maxBytes:      maxBytes,
		flushInterval: flushInterval,
		lastFlush:     time.Now(),
	}
}

// Add records a written record.
// Returns true if the transaction is full after this add (size trigger).
func (b *Batcher) Add(rec domain.Record) bool {
	b.batch.Add(rec)

	if b.maxEvents > 0 && b.batch.Size() >= b.maxEvents {
		return true
	}
	return b.maxBytes > 0 && b.batch.TotalBytes >= b.maxBytes
}

// ShouldFlush returns true if the transaction has pending records and the
// flush interval has passed.
func (b *Batcher) ShouldFlush() bool {
	if b.batch.Empty() || b.flushInterval <= 0 {
		return false
	}
	return time.Since(b.lastFlush) >= b.flushInterval
}

// UntilFlush returns how long until the interval trigger fires, or
// fallback when nothing is pending.
func (b *Batcher) UntilFlush(fallback time.Duration) time.Duration {
	if b.batch.Empty() || b.flushInterval <= 0 {
		return fallback
	}
	d := b.flushInterval - time.Since(b.lastFlush)
	if d < 0 {
		return 0
	}
	if d < fallback {
		return d
	}
	return fallback
}

// Batch returns the current batch.
func (b *Batcher) Batch() *domain.Batch {
	return b.batch
}

// Reset clears the batch and restarts the interval.
func (b *Batcher) Reset() {
	b.batch.Reset()
	b.lastFlush = time.Now()
}

// HasPending returns true if there are uncommitted records.
func (b *Batcher) HasPending() bool {
	return !b.batch.Empty()
}
