package ports

import (
	"context"

	"github.com/bft-labs/txnship/internal/domain"
)

// RecordWriter encodes serialized records into rows for one endpoint.
// One RecordWriter is created per writer and shared by all of its batches.
type RecordWriter interface {
	// EncodeRow turns a payload into column values in endpoint column order.
	EncodeRow(payload []byte) ([]any, error)
}

// Serializer knows a record format.
type Serializer interface {
	// CreateRecordWriter builds the RecordWriter for ep.
	CreateRecordWriter(ep domain.Endpoint) (RecordWriter, error)

	// Write writes rec into the current transaction of batch.
	Write(ctx context.Context, batch TransactionBatch, rec domain.Record) error
}
