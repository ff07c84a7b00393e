package fs

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/goccy/go-json"

	"github.com/bft-labs/txnship/internal/domain"
)

const checkpointFileName = "checkpoint.json"

// CheckpointFileRepository implements ports.CheckpointRepository using a
// JSON file.
type CheckpointFileRepository struct {
	dir string
}

// NewCheckpointFileRepository creates a repository storing its file in dir.
func NewCheckpointFileRepository(dir string) *CheckpointFileRepository {
	return &CheckpointFileRepository{dir: dir}
}

// Load retrieves the last saved checkpoint from disk.
// Returns an empty checkpoint and nil error if no file exists.
func (r *CheckpointFileRepository) Load(ctx context.Context) (domain.Checkpoint, error) {
	data, err := os.ReadFile(r.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return domain.Checkpoint{}, nil
		}
		return domain.Checkpoint{}, err
	}

	var cp domain.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return domain.Checkpoint{}, fmt.Errorf("decode %s: %w", r.Path(), err)
	}
	return cp, nil
}

// Save persists the checkpoint atomically (temp file, then rename).
func (r *CheckpointFileRepository) Save(ctx context.Context, cp domain.Checkpoint) error {
	if err := os.MkdirAll(r.dir, 0o700); err != nil {
		return err
	}

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return err
	}

	path := r.Path()
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Path returns the full path to the checkpoint file.
func (r *CheckpointFileRepository) Path() string {
	return filepath.Join(r.dir, checkpointFileName)
}
