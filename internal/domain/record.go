package domain

import "time"

// TxnID identifies a transaction within a transaction batch.
type TxnID int64

// NoTxn is reported when no transaction is current.
const NoTxn TxnID = -1

// Position locates a record in its source so consumption can resume after a
// restart or replay after a failed transaction.
type Position struct {
	// File is the spool file the record came from (file sources only)
	File string `json:"file,omitempty"`

	// Offset is the byte offset just past the record in File
	Offset int64 `json:"offset,omitempty"`

	// Sequence is the broker stream sequence (broker sources only)
	Sequence uint64 `json:"sequence,omitempty"`
}

// Record is a single serialized event destined for the storage service.
type Record struct {
	// Payload is the serialized event body
	Payload []byte

	// Position is the source position immediately after this record
	Position Position

	// ReceivedAt is when the source handed the record over
	ReceivedAt time.Time
}

// Size returns the payload length in bytes.
func (r Record) Size() int {
	return len(r.Payload)
}
