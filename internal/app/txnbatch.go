package app

import (
	"context"
	"errors"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// batchManager drives the transaction batch lifecycle for one writer.
type batchManager struct {
	exec         *Executor
	endpoint     domain.Endpoint
	txnsPerBatch int
	logger       ports.Logger
}

// acquire reserves a new batch and begins its first transaction.
// Every failure, deadline expiry included, is I/O class.
func (m *batchManager) acquire(ctx context.Context, conn ports.Connection, rw ports.RecordWriter) (ports.TransactionBatch, error) {
	batch, err := DoIO(ctx, m.exec, "fetch txn batch", func(ctx context.Context) (ports.TransactionBatch, error) {
		b, err := conn.FetchTransactionBatch(ctx, m.txnsPerBatch, rw)
		if err != nil {
			return nil, err
		}
		if err := b.BeginNextTransaction(); err != nil {
			_ = b.Close(ctx)
			return nil, err
		}
		return b, nil
	})
	if err != nil {
		return nil, err
	}
	m.logger.Info("acquired txn batch",
		ports.Txn(batch.CurrentTxnID()),
		ports.Int("remaining", batch.RemainingTransactions()),
	)
	return batch, nil
}

// commit commits the current transaction. Call failures come back as
// *domain.CommitFailure.
func (m *batchManager) commit(ctx context.Context, batch ports.TransactionBatch) error {
	txn := batch.CurrentTxnID()
	m.logger.Debug("committing txn", ports.Txn(txn))
	err := m.exec.Run(ctx, "commit", batch.Commit)
	if err != nil {
		if domain.IsCallFailure(err) {
			return &domain.CommitFailure{Endpoint: m.endpoint, TxnID: txn, Err: err}
		}
		return err
	}
	return nil
}

// abort aborts the current transaction, best effort.
func (m *batchManager) abort(ctx context.Context, batch ports.TransactionBatch) error {
	txn := batch.CurrentTxnID()
	m.logger.Warn("aborting txn", ports.Txn(txn))
	err := m.exec.Run(ctx, "abort", batch.Abort)
	return suppress(m.logger, "unable to abort txn", err, ports.Txn(txn))
}

// heartbeat keeps the batch's transactions alive, best effort.
func (m *batchManager) heartbeat(ctx context.Context, batch ports.TransactionBatch) error {
	m.logger.Debug("sending heartbeat", ports.Txn(batch.CurrentTxnID()))
	err := m.exec.Run(ctx, "heartbeat", batch.Heartbeat)
	return suppress(m.logger, "unable to send heartbeat", err, ports.Txn(batch.CurrentTxnID()))
}

// close releases the batch, best effort.
func (m *batchManager) close(ctx context.Context, batch ports.TransactionBatch) error {
	m.logger.Debug("closing txn batch", ports.Txn(batch.CurrentTxnID()))
	err := m.exec.Run(ctx, "close txn batch", batch.Close)
	return suppress(m.logger, "error closing txn batch", err, ports.Txn(batch.CurrentTxnID()))
}

// suppress logs and drops a failed best-effort call. Anything that is not a
// call failure (the caller's cancellation) is returned.
func suppress(logger ports.Logger, msg string, err error, fields ...ports.Field) error {
	if err == nil {
		return nil
	}
	var ce *domain.CallError
	if errors.As(err, &ce) {
		logger.Warn(msg, append(fields, ports.Err(err))...)
		return nil
	}
	return err
}
