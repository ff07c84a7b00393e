package app

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// DefaultTxnsPerBatch is used when WriterConfig.TxnsPerBatch is not set.
const DefaultTxnsPerBatch = 100

// WriterConfig configures a Writer.
type WriterConfig struct {
	Endpoint domain.Endpoint

	// TxnsPerBatch is the number of transactions reserved per batch
	TxnsPerBatch int

	// CallTimeout bounds every remote call; <= 0 disables the deadline
	CallTimeout time.Duration

	AutoCreatePartitions bool
	ProxyUser            string
}

// WriterDeps are the collaborators of a Writer. Pool, Metrics and Logger
// are optional.
type WriterDeps struct {
	Pool       *CallPool
	Connector  ports.Connector
	Serializer ports.Serializer
	Metrics    ports.Metrics
	Logger     ports.Logger
}

// WriterStats is a snapshot of a writer's counters.
type WriterStats struct {
	Events           int64
	Bytes            int64
	BatchesCompleted int64
	TxnsCommitted    int64
	LastUsed         time.Time
}

// Writer streams records into one endpoint through a sequence of
// transaction batches. All methods are serialized; Stats, LastUsed, State
// and SetHeartbeatNeeded may be called from any goroutine.
type Writer struct {
	id       string
	endpoint domain.Endpoint
	cfg      WriterConfig

	serializer ports.Serializer
	exec       *Executor
	conns      *connectionManager
	batches    *batchManager
	metrics    ports.Metrics
	logger     ports.Logger

	mu           sync.Mutex
	conn         ports.Connection
	recordWriter ports.RecordWriter
	txnBatch     ports.TransactionBatch
	closed       bool

	state           atomic.Int32
	heartbeatNeeded atomic.Bool
	events          atomic.Int64
	bytes           atomic.Int64
	batchesDone     atomic.Int64
	txnsCommitted   atomic.Int64
	lastUsed        atomic.Int64
}

// NewWriter connects to cfg.Endpoint, builds the record writer and
// acquires the first transaction batch.
//
// Connection or record writer failures are returned as
// *domain.ConnectFailure. A failed batch acquisition is returned as an
// I/O-class *domain.CallError. On any failure after the connection was
// opened it is closed again, with close errors suppressed.
func NewWriter(ctx context.Context, cfg WriterConfig, deps WriterDeps) (*Writer, error) {
	if err := cfg.Endpoint.Validate(); err != nil {
		return nil, err
	}
	if deps.Connector == nil || deps.Serializer == nil {
		return nil, fmt.Errorf("%w: writer needs a connector and a serializer", domain.ErrInvalidConfig)
	}
	if cfg.TxnsPerBatch <= 0 {
		cfg.TxnsPerBatch = DefaultTxnsPerBatch
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}

	id := uuid.NewString()
	logger := withFields(deps.Logger,
		ports.String("writer_id", id),
		ports.Endpoint(cfg.Endpoint),
	)
	exec := NewExecutor(deps.Pool, cfg.CallTimeout, cfg.Endpoint, metrics)

	w := &Writer{
		id:         id,
		endpoint:   cfg.Endpoint,
		cfg:        cfg,
		serializer: deps.Serializer,
		exec:       exec,
		conns: &connectionManager{
			exec:      exec,
			connector: deps.Connector,
			endpoint:  cfg.Endpoint,
			opts: ports.ConnectOptions{
				ProxyUser:            cfg.ProxyUser,
				AutoCreatePartitions: cfg.AutoCreatePartitions,
			},
			metrics: metrics,
			logger:  logger,
		},
		batches: &batchManager{
			exec:         exec,
			endpoint:     cfg.Endpoint,
			txnsPerBatch: cfg.TxnsPerBatch,
			logger:       logger,
		},
		metrics: metrics,
		logger:  logger,
	}
	w.state.Store(int32(WriterConnecting))
	w.touch()

	logger.Info("connecting")
	conn, err := w.conns.connect(ctx)
	if err != nil {
		return nil, err
	}
	w.conn = conn

	rw, err := deps.Serializer.CreateRecordWriter(cfg.Endpoint)
	if err != nil {
		w.closeConnQuietly(ctx)
		return nil, &domain.ConnectFailure{Endpoint: cfg.Endpoint, Err: err}
	}
	w.recordWriter = rw

	batch, err := w.batches.acquire(ctx, conn, rw)
	if err != nil {
		w.closeConnQuietly(ctx)
		return nil, err
	}
	w.txnBatch = batch
	w.setState(WriterActive)
	return w, nil
}

// ID returns the writer's unique id, used in log entries.
func (w *Writer) ID() string {
	return w.id
}

// Endpoint returns the endpoint this writer streams into.
func (w *Writer) Endpoint() domain.Endpoint {
	return w.endpoint
}

// Write writes rec into the current transaction.
func (w *Writer) Write(ctx context.Context, rec domain.Record) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("write to %s: %w", w.endpoint, domain.ErrWriterClosed)
	}
	if w.txnBatch == nil {
		return fmt.Errorf("write to %s: %w", w.endpoint, domain.ErrNoActiveBatch)
	}

	batch := w.txnBatch
	txn := batch.CurrentTxnID()
	w.metrics.WriteAttempted()
	err := w.exec.Run(ctx, "write", func(ctx context.Context) error {
		return w.serializer.Write(ctx, batch, rec)
	})
	if err != nil {
		if domain.IsCallFailure(err) {
			return &domain.WriteFailure{Endpoint: w.endpoint, TxnID: txn, Err: err}
		}
		return err
	}
	w.events.Add(1)
	w.bytes.Add(int64(rec.Size()))
	return nil
}

// Flush commits the current transaction.
//
// A pending heartbeat request is served first. If the batch has no
// transactions left it is closed and counted as completed; with rollToNext
// a new batch is then acquired. Otherwise rollToNext begins the next
// transaction of the same batch.
func (w *Writer) Flush(ctx context.Context, rollToNext bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return fmt.Errorf("flush %s: %w", w.endpoint, domain.ErrWriterClosed)
	}

	if w.heartbeatNeeded.CompareAndSwap(true, false) {
		if err := w.heartbeatLocked(ctx); err != nil {
			return err
		}
	}
	w.touch()

	if w.txnBatch == nil {
		return fmt.Errorf("flush %s: %w", w.endpoint, domain.ErrNoActiveBatch)
	}

	w.setState(WriterRotating)
	if err := w.batches.commit(ctx, w.txnBatch); err != nil {
		w.setState(WriterActive)
		return err
	}
	w.txnsCommitted.Add(1)

	if w.txnBatch.RemainingTransactions() == 0 {
		err := w.batches.close(ctx, w.txnBatch)
		w.txnBatch = nil
		if err != nil {
			w.setState(WriterExhausted)
			return fmt.Errorf("%w: close txn batch: %w", domain.ErrRotation, err)
		}
		w.batchesDone.Add(1)
		w.metrics.BatchCompleted()
		w.setState(WriterExhausted)

		if !rollToNext {
			return nil
		}
		batch, err := w.batches.acquire(ctx, w.conn, w.recordWriter)
		if err != nil {
			return fmt.Errorf("%w: acquire txn batch: %w", domain.ErrRotation, err)
		}
		w.txnBatch = batch
		w.setState(WriterActive)
		return nil
	}

	if rollToNext {
		prev := w.txnBatch.CurrentTxnID()
		if err := w.txnBatch.BeginNextTransaction(); err != nil {
			w.setState(WriterActive)
			return fmt.Errorf("%w: begin txn after %d: %w", domain.ErrRotation, prev, err)
		}
		w.logger.Debug("switched to next txn",
			ports.Txn(w.txnBatch.CurrentTxnID()),
			ports.Int("remaining", w.txnBatch.RemainingTransactions()),
		)
	}
	w.setState(WriterActive)
	return nil
}

// Abort aborts the current transaction. Failures are logged; only
// cancellation of ctx is returned.
func (w *Writer) Abort(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		w.logger.Warn("abort on closed writer ignored")
		return nil
	}
	if w.txnBatch == nil {
		return nil
	}
	return w.batches.abort(ctx, w.txnBatch)
}

// Heartbeat keeps the current batch alive. Failures are logged; only
// cancellation of ctx is returned.
func (w *Writer) Heartbeat(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.heartbeatLocked(ctx)
}

func (w *Writer) heartbeatLocked(ctx context.Context) error {
	if w.closed {
		w.logger.Warn("heartbeat on closed writer ignored")
		return nil
	}
	if w.txnBatch == nil {
		return nil
	}
	return w.batches.heartbeat(ctx, w.txnBatch)
}

// SetHeartbeatNeeded asks the next Flush to heartbeat first.
// It never blocks.
func (w *Writer) SetHeartbeatNeeded() {
	w.heartbeatNeeded.Store(true)
}

// Close closes the current batch and then the connection. Failures are
// logged; only cancellation of ctx is returned, in which case the writer
// stays open. Close may be called more than once.
func (w *Writer) Close(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.txnBatch != nil {
		if err := w.batches.close(ctx, w.txnBatch); err != nil {
			return err
		}
	}
	if err := w.conns.close(ctx, w.conn); err != nil {
		return err
	}
	if !w.closed {
		w.logger.Info("writer closed",
			ports.Int64("events", w.events.Load()),
			ports.Int64("batches", w.batchesDone.Load()),
		)
	}
	w.closed = true
	w.setState(WriterClosed)
	return nil
}

// Closed reports whether Close has completed.
func (w *Writer) Closed() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closed
}

// State returns the current lifecycle state.
func (w *Writer) State() WriterState {
	return WriterState(w.state.Load())
}

// Stats returns a snapshot of the counters.
func (w *Writer) Stats() WriterStats {
	return WriterStats{
		Events:           w.events.Load(),
		Bytes:            w.bytes.Load(),
		BatchesCompleted: w.batchesDone.Load(),
		TxnsCommitted:    w.txnsCommitted.Load(),
		LastUsed:         w.LastUsed(),
	}
}

// ResetCounters zeroes the event, byte and batch counters.
func (w *Writer) ResetCounters() {
	w.events.Store(0)
	w.bytes.Store(0)
	w.batchesDone.Store(0)
}

// LastUsed returns when the writer last flushed, or when it was created.
func (w *Writer) LastUsed() time.Time {
	return time.Unix(0, w.lastUsed.Load())
}

// CurrentTxnID returns the current transaction, or domain.NoTxn when there
// is no batch.
func (w *Writer) CurrentTxnID() domain.TxnID {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.txnBatch == nil {
		return domain.NoTxn
	}
	return w.txnBatch.CurrentTxnID()
}

func (w *Writer) String() string {
	return fmt.Sprintf("writer %s -> %s (%s)", w.id, w.endpoint, w.State())
}

func (w *Writer) touch() {
	w.lastUsed.Store(time.Now().UnixNano())
}

func (w *Writer) setState(next WriterState) {
	prev := w.State()
	if !prev.canTransitionTo(next) {
		w.logger.Warn("unexpected writer state transition",
			ports.String("from", prev.String()),
			ports.String("to", next.String()),
		)
	}
	w.state.Store(int32(next))
}

func (w *Writer) closeConnQuietly(ctx context.Context) {
	if err := w.conns.close(ctx, w.conn); err != nil {
		w.logger.Warn("close after failed setup", ports.Err(err))
	}
}
