package ports

import (
	"context"

	"github.com/bft-labs/txnship/internal/domain"
)

// RecordSource provides the records a pipeline stage writes.
type RecordSource interface {
	// Open prepares the source to resume after cp.
	// An empty checkpoint means start from the oldest available record.
	Open(ctx context.Context, cp domain.Checkpoint) error

	// Next returns the next record.
	// Returns domain.ErrEndOfSource when nothing is available right now.
	Next(ctx context.Context) (domain.Record, error)

	// Wait blocks until new records may be available or ctx is done.
	Wait(ctx context.Context) error

	// Ack acknowledges everything up to and including pos as committed.
	Ack(ctx context.Context, pos domain.Position) error

	// Close releases all resources held by the source.
	Close() error
}
