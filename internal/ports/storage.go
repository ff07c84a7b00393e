package ports

import (
	"context"

	"github.com/bft-labs/txnship/internal/domain"
)

// ConnectOptions tunes how a connection is opened.
type ConnectOptions struct {
	// ProxyUser is the user the session acts on behalf of; empty means the
	// connector's own credentials
	ProxyUser string

	// AutoCreatePartitions lets the connector create missing containers
	// (database, partition) for the endpoint
	AutoCreatePartitions bool
}

// Connector opens sessions to storage endpoints.
type Connector interface {
	// Connect opens a new session to ep. It may block.
	// Errors should be marked with domain.ErrIO or domain.ErrStreaming.
	Connect(ctx context.Context, ep domain.Endpoint, opts ConnectOptions) (Connection, error)
}

// Connection is a live session to one endpoint.
type Connection interface {
	// FetchTransactionBatch reserves count transactions bound to w.
	// The returned batch has no current transaction yet.
	FetchTransactionBatch(ctx context.Context, count int, w RecordWriter) (TransactionBatch, error)

	// Close ends the session. Calling it twice must be harmless.
	Close(ctx context.Context) error
}

// TransactionBatch is a reserved group of transactions. At most one of them is
// current at any time.
type TransactionBatch interface {
	// BeginNextTransaction switches to the next reserved transaction.
	// It must not block on the network.
	BeginNextTransaction() error

	// Write appends one serialized record to the current transaction.
	Write(ctx context.Context, payload []byte) error

	// Commit commits the current transaction.
	Commit(ctx context.Context) error

	// Abort aborts the current transaction.
	Abort(ctx context.Context) error

	// Heartbeat keeps the current and remaining transactions alive.
	Heartbeat(ctx context.Context) error

	// Close releases the batch, aborting anything uncommitted.
	// Calling it twice must be harmless.
	Close(ctx context.Context) error

	// RemainingTransactions returns how many transactions have not been begun.
	RemainingTransactions() int

	// CurrentTxnID returns the current transaction, or domain.NoTxn.
	CurrentTxnID() domain.TxnID
}
