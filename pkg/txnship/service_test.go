package txnship_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
	"github.com/bft-labs/txnship/pkg/txnship"
)

// memStore is an in-memory Connector that keeps committed rows.
type memStore struct {
	mu        sync.Mutex
	committed [][]any
	nextTxn   domain.TxnID
	failConn  error
}

func (m *memStore) Connect(ctx context.Context, ep domain.Endpoint, opts ports.ConnectOptions) (ports.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failConn != nil {
		return nil, m.failConn
	}
	return &memConn{store: m}, nil
}

func (m *memStore) rows() [][]any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([][]any(nil), m.committed...)
}

type memConn struct {
	store *memStore
}

func (c *memConn) FetchTransactionBatch(ctx context.Context, count int, w ports.RecordWriter) (ports.TransactionBatch, error) {
	c.store.mu.Lock()
	first := c.store.nextTxn
	c.store.nextTxn += domain.TxnID(count)
	c.store.mu.Unlock()
	return &memBatch{store: c.store, w: w, first: first, count: count, cur: -1}, nil
}

func (c *memConn) Close(context.Context) error { return nil }

type memBatch struct {
	store   *memStore
	w       ports.RecordWriter
	first   domain.TxnID
	count   int
	cur     int
	pending [][]any
}

func (b *memBatch) BeginNextTransaction() error {
	if b.cur+1 >= b.count {
		return errors.New("batch exhausted")
	}
	b.cur++
	b.pending = nil
	return nil
}

func (b *memBatch) Write(ctx context.Context, payload []byte) error {
	row, err := b.w.EncodeRow(payload)
	if err != nil {
		return err
	}
	b.pending = append(b.pending, row)
	return nil
}

func (b *memBatch) Commit(context.Context) error {
	b.store.mu.Lock()
	b.store.committed = append(b.store.committed, b.pending...)
	b.store.mu.Unlock()
	b.pending = nil
	return nil
}

func (b *memBatch) Abort(context.Context) error {
	b.pending = nil
	return nil
}

func (b *memBatch) Heartbeat(context.Context) error { return nil }
func (b *memBatch) Close(context.Context) error     { return nil }

func (b *memBatch) RemainingTransactions() int {
	return b.count - b.cur - 1
}

func (b *memBatch) CurrentTxnID() domain.TxnID {
	if b.cur < 0 {
		return domain.NoTxn
	}
	return b.first + domain.TxnID(b.cur)
}

type recordingHandler struct {
	txnship.BaseEventHandler

	mu      sync.Mutex
	states  []txnship.State
	commits []txnship.CommitEvent
}

func (h *recordingHandler) OnStateChange(ev txnship.StateChangeEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.states = append(h.states, ev.Current)
}

func (h *recordingHandler) OnCommit(ev txnship.CommitEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.commits = append(h.commits, ev)
}

func (h *recordingHandler) snapshot() ([]txnship.State, []txnship.CommitEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]txnship.State(nil), h.states...), append([]txnship.CommitEvent(nil), h.commits...)
}

func spoolConfig(t *testing.T) txnship.Config {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "0001.ndjson"), []byte(
		`{"id":1,"body":"a"}`+"\n"+
			`{"id":2,"body":"b"}`+"\n"+
			`{"id":3,"body":"c"}`+"\n"), 0o600))
	return txnship.Config{
		Addrs:          []string{"127.0.0.1:9000"},
		Table:          "events",
		Columns:        []string{"id", "body"},
		TxnsPerBatch:   2,
		CallTimeout:    time.Second,
		SpoolDir:       dir,
		MaxTxnEvents:   2,
		BackoffInitial: time.Millisecond,
		BackoffMax:     5 * time.Millisecond,
		Once:           true,
	}
}

func TestService_OnceDrainsSpool(t *testing.T) {
	cfg := spoolConfig(t)
	store := &memStore{}
	handler := &recordingHandler{}

	svc, err := txnship.New(cfg,
		txnship.WithConnector(store),
		txnship.WithEventHandler(handler),
	)
	require.NoError(t, err)
	assert.Equal(t, txnship.StateStopped, svc.Status())

	require.NoError(t, svc.Start(context.Background()))
	require.Eventually(t, func() bool {
		return svc.Status() == txnship.StateStopped
	}, 5*time.Second, 10*time.Millisecond)

	assert.Equal(t, [][]any{{int64(1), "a"}, {int64(2), "b"}, {int64(3), "c"}}, store.rows())

	states, commits := handler.snapshot()
	assert.Equal(t, []txnship.State{
		txnship.StateStarting, txnship.StateRunning, txnship.StateStopping, txnship.StateStopped,
	}, states)
	require.Len(t, commits, 2)
	assert.Equal(t, 2, commits[0].Events)
	assert.Equal(t, 1, commits[1].Events)

	cp := svc.Checkpoint()
	assert.Equal(t, int64(3), cp.Events)
	assert.Equal(t, "0001.ndjson", cp.Position.File)
	_, err = os.Stat(filepath.Join(cfg.SpoolDir, "checkpoint.json"))
	assert.NoError(t, err)
}

func TestService_RestartResumesFromCheckpoint(t *testing.T) {
	cfg := spoolConfig(t)
	store := &memStore{}

	svc, err := txnship.New(cfg, txnship.WithConnector(store))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))
	require.Eventually(t, func() bool {
		return svc.Status() == txnship.StateStopped
	}, 5*time.Second, 10*time.Millisecond)
	require.Len(t, store.rows(), 3)

	again, err := txnship.New(cfg, txnship.WithConnector(store))
	require.NoError(t, err)
	require.NoError(t, again.Start(context.Background()))
	require.Eventually(t, func() bool {
		return again.Status() == txnship.StateStopped
	}, 5*time.Second, 10*time.Millisecond)

	assert.Len(t, store.rows(), 3, "nothing is written twice")
}

func TestService_StartStop(t *testing.T) {
	cfg := spoolConfig(t)
	cfg.Once = false

	svc, err := txnship.New(cfg, txnship.WithConnector(&memStore{}))
	require.NoError(t, err)

	require.NoError(t, svc.Start(context.Background()))
	assert.ErrorIs(t, svc.Start(context.Background()), domain.ErrAlreadyRunning)

	require.Eventually(t, func() bool {
		return svc.Status() == txnship.StateRunning
	}, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, svc.Stop())
	assert.Equal(t, txnship.StateStopped, svc.Status())
	assert.ErrorIs(t, svc.Stop(), domain.ErrNotRunning)
}

func TestService_SetupFailureKeepsRunning(t *testing.T) {
	cfg := spoolConfig(t)
	cfg.ConnectAttempts = 2
	store := &memStore{failConn: fmt.Errorf("%w: connection refused", domain.ErrIO)}

	svc, err := txnship.New(cfg, txnship.WithConnector(store))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	// Setup failures are retried by the sink rather than crashing it.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, txnship.StateRunning, svc.Status())
	assert.Empty(t, store.rows())
	require.NoError(t, svc.Stop())
}

func TestService_RecoversOnceStorageComesBack(t *testing.T) {
	cfg := spoolConfig(t)
	cfg.ConnectAttempts = 1
	store := &memStore{failConn: fmt.Errorf("%w: connection refused", domain.ErrIO)}

	svc, err := txnship.New(cfg, txnship.WithConnector(store))
	require.NoError(t, err)
	require.NoError(t, svc.Start(context.Background()))

	time.Sleep(30 * time.Millisecond)
	store.mu.Lock()
	store.failConn = nil
	store.mu.Unlock()

	require.Eventually(t, func() bool {
		return svc.Status() == txnship.StateStopped
	}, 5*time.Second, 10*time.Millisecond)
	assert.Equal(t, [][]any{{int64(1), "a"}, {int64(2), "b"}, {int64(3), "c"}}, store.rows())
	assert.EqualValues(t, 3, svc.Checkpoint().Events)
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*txnship.Config)
	}{
		{"no table", func(c *txnship.Config) { c.Table = "" }},
		{"no address", func(c *txnship.Config) { c.Addrs = nil }},
		{"unknown serializer", func(c *txnship.Config) { c.Serializer = "avro" }},
		{"unknown source", func(c *txnship.Config) { c.Source = "kafka" }},
		{"spool without dir", func(c *txnship.Config) { c.SpoolDir = "" }},
		{"nats without stream", func(c *txnship.Config) {
			c.Source = txnship.SourceNATS
			c.NATS.URL = "nats://127.0.0.1:4222"
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := spoolConfig(t)
			tt.mutate(&cfg)
			_, err := txnship.New(cfg)
			assert.ErrorIs(t, err, domain.ErrInvalidConfig)
		})
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "Running", txnship.StateRunning.String())
	assert.Equal(t, "Crashed", txnship.StateCrashed.String())
}
