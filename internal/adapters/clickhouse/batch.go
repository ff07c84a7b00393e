package clickhouse

import (
	"context"
	"fmt"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// TxnBatch implements ports.TransactionBatch. The mutex keeps a call that
// outlived its deadline from interleaving with the next one.
type TxnBatch struct {
	conn   *Connection
	writer ports.RecordWriter

	mu     sync.Mutex
	ids    []domain.TxnID
	next   int
	cur    domain.TxnID
	block  driver.Batch
	rows   int
	closed bool
}

// BeginNextTransaction switches to the next reserved id, dropping any
// unsent rows of the previous one.
func (b *TxnBatch) BeginNextTransaction() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("begin txn: %w: batch closed", domain.ErrStreaming)
	}
	if b.next >= len(b.ids) {
		return fmt.Errorf("begin txn: %w: no transactions left in batch", domain.ErrStreaming)
	}
	b.dropBlock()
	b.cur = b.ids[b.next]
	b.next++
	return nil
}

// Write encodes payload and appends it to the current transaction's block.
func (b *TxnBatch) Write(ctx context.Context, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("write: %w: batch closed", domain.ErrStreaming)
	}
	if b.cur == domain.NoTxn {
		return fmt.Errorf("write: %w: no current transaction", domain.ErrStreaming)
	}

	row, err := b.writer.EncodeRow(payload)
	if err != nil {
		return mark("encode row", err)
	}
	if b.block == nil {
		block, err := b.conn.sess.PrepareBatch(b.conn.base, b.conn.insertQuery)
		if err != nil {
			return mark("prepare insert", err)
		}
		b.block = block
	}
	if err := b.block.Append(row...); err != nil {
		return fmt.Errorf("append row: %w: %w", domain.ErrStreaming, err)
	}
	b.rows++
	return nil
}

// Commit sends the current transaction's rows. An empty transaction
// commits trivially.
func (b *TxnBatch) Commit(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return fmt.Errorf("commit: %w: batch closed", domain.ErrStreaming)
	}
	if b.block == nil {
		return nil
	}
	block := b.block
	b.block = nil
	b.rows = 0
	if err := block.Send(); err != nil {
		return mark("send block", err)
	}
	return nil
}

// Abort drops the current transaction's rows.
func (b *TxnBatch) Abort(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.block == nil {
		return nil
	}
	block := b.block
	b.block = nil
	b.rows = 0
	if err := block.Abort(); err != nil {
		return mark("abort block", err)
	}
	return nil
}

// Heartbeat pings the server so the session stays alive.
func (b *TxnBatch) Heartbeat(ctx context.Context) error {
	if err := b.conn.sess.Ping(ctx); err != nil {
		return mark("heartbeat", err)
	}
	return nil
}

// Close drops uncommitted rows. Closing twice is harmless.
func (b *TxnBatch) Close(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.dropBlock()
	b.closed = true
	return nil
}

func (b *TxnBatch) RemainingTransactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids) - b.next
}

func (b *TxnBatch) CurrentTxnID() domain.TxnID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

// PendingRows returns the rows written but not yet committed.
func (b *TxnBatch) PendingRows() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rows
}

func (b *TxnBatch) dropBlock() {
	if b.block != nil {
		_ = b.block.Abort()
		b.block = nil
		b.rows = 0
	}
}
