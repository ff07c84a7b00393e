package ports

import (
	"context"

	"github.com/bft-labs/txnship/internal/domain"
)

// CheckpointRepository persists the commit checkpoint for crash recovery.
type CheckpointRepository interface {
	// Load retrieves the last saved checkpoint.
	// Returns an empty checkpoint and nil error if none exists.
	// Returns an error only for actual read failures.
	Load(ctx context.Context) (domain.Checkpoint, error)

	// Save persists the checkpoint atomically.
	Save(ctx context.Context, cp domain.Checkpoint) error
}
