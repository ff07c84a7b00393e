package domain

import "time"

// Checkpoint is persisted after every committed transaction and tells the
// source where to resume.
type Checkpoint struct {
	Position Position `json:"position"`

	// LastTxnID is the last transaction committed for this position
	LastTxnID TxnID `json:"last_txn_id"`

	// Events is the total number of events committed so far
	Events int64 `json:"events"`

	// LastCommitAt is the time of the last successful commit
	LastCommitAt time.Time `json:"last_commit_at"`
}

// IsEmpty returns true if nothing was ever committed.
func (c Checkpoint) IsEmpty() bool {
	return c.LastCommitAt.IsZero() && c.Position == (Position{})
}

// UpdateAfterCommit advances the checkpoint past a committed transaction.
func (c *Checkpoint) UpdateAfterCommit(pos Position, txn TxnID, events int) {
	c.Position = pos
	c.LastTxnID = txn
	c.Events += int64(events)
	c.LastCommitAt = time.Now()
}
