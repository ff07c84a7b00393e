package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// fakeHooks injects failures, hangs and panics into fake collaborators by
// operation name and counts every call.
type fakeHooks struct {
	mu     sync.Mutex
	calls  map[string]int
	errs   map[string]error
	budget map[string]int
	hangs  map[string]bool
	panics map[string]any
}

func newFakeHooks() *fakeHooks {
	return &fakeHooks{
		calls:  make(map[string]int),
		errs:   make(map[string]error),
		budget: make(map[string]int),
		hangs:  make(map[string]bool),
		panics: make(map[string]any),
	}
}

func (h *fakeHooks) fail(op string, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs[op] = err
}

// failN makes the next n calls of op fail with err.
func (h *fakeHooks) failN(op string, n int, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.errs[op] = err
	h.budget[op] = n
}

func (h *fakeHooks) hang(op string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.hangs[op] = true
}

func (h *fakeHooks) panicOn(op string, v any) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.panics[op] = v
}

func (h *fakeHooks) clear(op string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.errs, op)
	delete(h.budget, op)
	delete(h.hangs, op)
	delete(h.panics, op)
}

func (h *fakeHooks) count(op string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.calls[op]
}

// call records op and applies whatever was injected for it. A hanging op
// blocks until its context ends, like remote work that outlives a deadline.
func (h *fakeHooks) call(ctx context.Context, op string) error {
	h.mu.Lock()
	h.calls[op]++
	err := h.errs[op]
	if n, ok := h.budget[op]; ok && err != nil {
		if n <= 1 {
			delete(h.errs, op)
			delete(h.budget, op)
		} else {
			h.budget[op] = n - 1
		}
	}
	hang := h.hangs[op]
	p, doPanic := h.panics[op]
	h.mu.Unlock()

	if doPanic {
		panic(p)
	}
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

type fakeConnector struct {
	hooks *fakeHooks

	mu    sync.Mutex
	conns []*fakeConn
	opts  []ports.ConnectOptions
}

func (c *fakeConnector) Connect(ctx context.Context, ep domain.Endpoint, opts ports.ConnectOptions) (ports.Connection, error) {
	if err := c.hooks.call(ctx, "connect"); err != nil {
		return nil, err
	}
	conn := &fakeConn{hooks: c.hooks}
	c.mu.Lock()
	c.conns = append(c.conns, conn)
	c.opts = append(c.opts, opts)
	c.mu.Unlock()
	return conn, nil
}

type fakeConn struct {
	hooks *fakeHooks

	mu      sync.Mutex
	batches []*fakeBatch
	nextID  domain.TxnID
}

func (c *fakeConn) FetchTransactionBatch(ctx context.Context, count int, w ports.RecordWriter) (ports.TransactionBatch, error) {
	if err := c.hooks.call(ctx, "fetch"); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	b := &fakeBatch{hooks: c.hooks, writer: w, cur: domain.NoTxn}
	for i := 0; i < count; i++ {
		c.nextID++
		b.ids = append(b.ids, c.nextID)
	}
	c.batches = append(c.batches, b)
	return b, nil
}

func (c *fakeConn) Close(ctx context.Context) error {
	return c.hooks.call(ctx, "conn.close")
}

func (c *fakeConn) batchCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.batches)
}

func (c *fakeConn) batch(i int) *fakeBatch {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.batches[i]
}

type fakeBatch struct {
	hooks  *fakeHooks
	writer ports.RecordWriter

	mu        sync.Mutex
	ids       []domain.TxnID
	next      int
	cur       domain.TxnID
	rows      [][]any
	committed []domain.TxnID
}

func (b *fakeBatch) BeginNextTransaction() error {
	if err := b.hooks.call(context.Background(), "begin"); err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.next >= len(b.ids) {
		return errors.New("no transactions left in batch")
	}
	b.cur = b.ids[b.next]
	b.next++
	return nil
}

func (b *fakeBatch) Write(ctx context.Context, payload []byte) error {
	if err := b.hooks.call(ctx, "write"); err != nil {
		return err
	}
	row, err := b.writer.EncodeRow(payload)
	if err != nil {
		return err
	}
	b.mu.Lock()
	b.rows = append(b.rows, row)
	b.mu.Unlock()
	return nil
}

func (b *fakeBatch) Commit(ctx context.Context) error {
	if err := b.hooks.call(ctx, "commit"); err != nil {
		return err
	}
	b.mu.Lock()
	b.committed = append(b.committed, b.cur)
	b.mu.Unlock()
	return nil
}

func (b *fakeBatch) Abort(ctx context.Context) error {
	return b.hooks.call(ctx, "abort")
}

func (b *fakeBatch) Heartbeat(ctx context.Context) error {
	return b.hooks.call(ctx, "heartbeat")
}

func (b *fakeBatch) Close(ctx context.Context) error {
	return b.hooks.call(ctx, "batch.close")
}

func (b *fakeBatch) RemainingTransactions() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.ids) - b.next
}

func (b *fakeBatch) CurrentTxnID() domain.TxnID {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cur
}

type fakeSerializer struct {
	hooks *fakeHooks
}

func (s *fakeSerializer) CreateRecordWriter(ep domain.Endpoint) (ports.RecordWriter, error) {
	if err := s.hooks.call(context.Background(), "record_writer"); err != nil {
		return nil, err
	}
	return rawRowWriter{}, nil
}

func (s *fakeSerializer) Write(ctx context.Context, batch ports.TransactionBatch, rec domain.Record) error {
	return batch.Write(ctx, rec.Payload)
}

type rawRowWriter struct{}

func (rawRowWriter) EncodeRow(payload []byte) ([]any, error) {
	return []any{string(payload)}, nil
}

type fakeMetrics struct {
	writes  atomic.Int64
	closed  atomic.Int64
	failed  atomic.Int64
	batches atomic.Int64
	drained atomic.Int64
}

func (m *fakeMetrics) WriteAttempted()     { m.writes.Add(1) }
func (m *fakeMetrics) ConnectionClosed()   { m.closed.Add(1) }
func (m *fakeMetrics) ConnectionFailed()   { m.failed.Add(1) }
func (m *fakeMetrics) BatchCompleted()     { m.batches.Add(1) }
func (m *fakeMetrics) EventsDrained(n int) { m.drained.Add(int64(n)) }

// recordingLogger keeps every entry for assertions.
type recordingLogger struct {
	mu      sync.Mutex
	entries []logEntry
}

type logEntry struct {
	level  string
	msg    string
	fields []ports.Field
}

func (l *recordingLogger) add(level, msg string, fields []ports.Field) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, logEntry{level: level, msg: msg, fields: fields})
}

func (l *recordingLogger) Debug(msg string, fields ...ports.Field) { l.add("debug", msg, fields) }
func (l *recordingLogger) Info(msg string, fields ...ports.Field)  { l.add("info", msg, fields) }
func (l *recordingLogger) Warn(msg string, fields ...ports.Field)  { l.add("warn", msg, fields) }
func (l *recordingLogger) Error(msg string, fields ...ports.Field) { l.add("error", msg, fields) }

func (l *recordingLogger) has(level, msg string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, e := range l.entries {
		if e.level == level && e.msg == msg {
			return true
		}
	}
	return false
}

func testEndpoint() domain.Endpoint {
	return domain.NewEndpoint([]string{"127.0.0.1:9000"}, "logs", "events", []string{"body"}, nil)
}

func ioErr(msg string) error {
	return fmt.Errorf("%s: %w", msg, domain.ErrIO)
}
