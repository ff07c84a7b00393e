package app

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/avast/retry-go/v4"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// Sink defaults.
const (
	DefaultPollInterval      = 500 * time.Millisecond
	DefaultHeartbeatInterval = 4 * time.Minute
	DefaultConnectAttempts   = 5
	closeTimeout             = 10 * time.Second
)

// SinkConfig contains configuration for the sink loop.
type SinkConfig struct {
	Writer WriterConfig

	// MaxTxnEvents and MaxTxnBytes commit the open transaction when reached
	MaxTxnEvents int
	MaxTxnBytes  int

	// FlushInterval commits a non-empty transaction after this long
	FlushInterval time.Duration

	// HeartbeatInterval is how often the writer is asked to heartbeat
	HeartbeatInterval time.Duration

	// IdleTimeout closes a writer that has not flushed for this long;
	// zero keeps it open
	IdleTimeout time.Duration

	// PollInterval bounds how long the sink waits on an empty source
	PollInterval time.Duration

	// ConnectAttempts is how many times writer creation is tried per round
	ConnectAttempts uint

	// BackoffInitial and BackoffMax bound the pause after a failed
	// transaction and between connect attempts
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Once stops the sink once the source is drained and committed
	Once bool
}

// SinkEventEmitter is called on commit success or transaction failure.
type SinkEventEmitter interface {
	OnCommit(txn domain.TxnID, events, bytes int, duration time.Duration)
	OnTxnFailure(err error, events int)
}

// Sink moves records from a source into transactional writes, committing
// and checkpointing as it goes. Delivery is at least once: after a failed
// transaction the source is reopened at the last checkpoint.
type Sink struct {
	config  SinkConfig
	source  ports.RecordSource
	repo    ports.CheckpointRepository
	deps    WriterDeps
	metrics ports.Metrics
	logger  ports.Logger
	emitter SinkEventEmitter
	batcher *Batcher

	writer     *Writer
	current    atomic.Pointer[Writer]
	checkpoint domain.Checkpoint
}

// NewSink creates a new sink with the given dependencies.
func NewSink(
	config SinkConfig,
	source ports.RecordSource,
	repo ports.CheckpointRepository,
	deps WriterDeps,
	logger ports.Logger,
	emitter SinkEventEmitter,
) *Sink {
	if config.PollInterval <= 0 {
		config.PollInterval = DefaultPollInterval
	}
	if config.ConnectAttempts == 0 {
		config.ConnectAttempts = DefaultConnectAttempts
	}
	if config.BackoffInitial <= 0 {
		config.BackoffInitial = DefaultBackoffInitial
	}
	if config.BackoffMax <= 0 {
		config.BackoffMax = DefaultBackoffMax
	}
	if logger == nil {
		logger = nopLogger{}
	}
	if deps.Logger == nil {
		deps.Logger = logger
	}
	if deps.Pool == nil {
		deps.Pool = NewCallPool(DefaultCallPoolSize)
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Sink{
		config:  config,
		source:  source,
		repo:    repo,
		deps:    deps,
		metrics: metrics,
		logger:  withFields(logger, ports.Endpoint(config.Writer.Endpoint)),
		emitter: emitter,
		batcher: NewBatcher(config.MaxTxnEvents, config.MaxTxnBytes, config.FlushInterval),
	}
}

// Checkpoint returns the last committed checkpoint.
func (s *Sink) Checkpoint() domain.Checkpoint {
	return s.checkpoint
}

// Run executes the main loop.
// It reads records, writes them into the current transaction and commits
// on size or interval triggers. Returns when the context is canceled, the
// source is drained in Once mode, or the source cannot be opened.
func (s *Sink) Run(ctx context.Context) error {
	cp, err := s.repo.Load(ctx)
	if err != nil {
		s.logger.Error("failed to load checkpoint", ports.Err(err))
		// Continue with empty checkpoint
	}
	s.checkpoint = cp

	if err := s.source.Open(ctx, cp); err != nil {
		return err
	}
	defer func() {
		if err := s.source.Close(); err != nil {
			s.logger.Warn("failed to close source", ports.Err(err))
		}
	}()
	defer s.closeWriter(ctx)

	hbCtx, stopHeartbeats := context.WithCancel(ctx)
	defer stopHeartbeats()
	go s.heartbeats(hbCtx)

	bo := newBackoff(s.config.BackoffInitial, s.config.BackoffMax)

	for {
		if err := ctx.Err(); err != nil {
			// Uncommitted records are replayed from the checkpoint next run.
			s.abortPending(ctx)
			return err
		}

		s.evictIdleWriter(ctx)

		rec, err := s.source.Next(ctx)
		if err != nil {
			if errors.Is(err, domain.ErrEndOfSource) {
				if s.batcher.HasPending() {
					s.commit(ctx, bo)
				}
				if s.config.Once && !s.batcher.HasPending() {
					return nil
				}
				s.waitForRecords(ctx)
				continue
			}
			if ctx.Err() != nil {
				continue
			}

			s.logger.Error("read error", ports.Err(err))
			_ = bo.Sleep(ctx)
			continue
		}

		if err := s.write(ctx, rec); err != nil {
			if ctx.Err() != nil {
				continue
			}
			s.fail(ctx, bo, err)
			continue
		}

		if s.batcher.Add(rec) || s.batcher.ShouldFlush() {
			s.commit(ctx, bo)
		}
	}
}

func (s *Sink) write(ctx context.Context, rec domain.Record) error {
	if err := s.ensureWriter(ctx); err != nil {
		return err
	}
	return s.writer.Write(ctx, rec)
}

// ensureWriter opens a writer if there is none, retrying connect failures.
func (s *Sink) ensureWriter(ctx context.Context) error {
	if s.writer != nil {
		return nil
	}
	w, err := retry.DoWithData(
		func() (*Writer, error) {
			return NewWriter(ctx, s.config.Writer, s.deps)
		},
		retry.Context(ctx),
		retry.Attempts(s.config.ConnectAttempts),
		retry.Delay(s.config.BackoffInitial),
		retry.MaxDelay(s.config.BackoffMax),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			return !errors.Is(err, domain.ErrInvalidConfig)
		}),
		retry.OnRetry(func(n uint, err error) {
			s.logger.Warn("writer setup failed, retrying",
				ports.Int("attempt", int(n)+1),
				ports.Err(err),
			)
		}),
	)
	if err != nil {
		return err
	}
	s.setWriter(w)
	s.logger.Info("writer opened", ports.String("writer_id", w.ID()))
	return nil
}

// commit commits the open transaction and advances the checkpoint.
func (s *Sink) commit(ctx context.Context, bo *backoff) {
	batch := s.batcher.Batch()
	if batch.Empty() || s.writer == nil {
		return
	}

	start := time.Now()
	txn := s.writer.CurrentTxnID()
	err := s.writer.Flush(ctx, true)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrRotation):
		// Committed, but the writer cannot take the next txn. The next
		// write reconnects.
		s.logger.Warn("txn batch rotation failed", ports.Err(err))
		s.closeWriter(ctx)
	case ctx.Err() != nil:
		return
	default:
		s.fail(ctx, bo, err)
		return
	}
	duration := time.Since(start)

	events, bytes := batch.Size(), batch.TotalBytes
	s.checkpoint.UpdateAfterCommit(batch.LastRecord().Position, txn, events)
	s.metrics.EventsDrained(events)

	if err := s.source.Ack(ctx, s.checkpoint.Position); err != nil {
		s.logger.Error("failed to ack source", ports.Err(err))
	}
	if err := s.repo.Save(ctx, s.checkpoint); err != nil {
		s.logger.Error("failed to save checkpoint", ports.Err(err))
	}

	s.logger.Info("committed txn",
		ports.Txn(txn),
		ports.Int("events", events),
		ports.Int("bytes", bytes),
		ports.Duration("duration", duration),
	)
	if s.emitter != nil {
		s.emitter.OnCommit(txn, events, bytes, duration)
	}

	s.batcher.Reset()
	bo.Reset()
}

// fail gives up on the open transaction and rewinds the source to the last
// checkpoint.
func (s *Sink) fail(ctx context.Context, bo *backoff, cause error) {
	pending := s.batcher.Batch().Size()
	s.logger.Error("txn failed, replaying from checkpoint",
		ports.Err(cause),
		ports.Int("events", pending),
	)
	if s.emitter != nil {
		s.emitter.OnTxnFailure(cause, pending)
	}

	s.abortPending(ctx)
	s.closeWriter(ctx)
	s.batcher.Reset()

	if err := bo.Sleep(ctx); err != nil {
		return
	}
	if err := s.source.Close(); err != nil {
		s.logger.Warn("failed to close source", ports.Err(err))
	}
	if err := s.source.Open(ctx, s.checkpoint); err != nil {
		s.logger.Error("failed to reopen source", ports.Err(err))
	}
}

func (s *Sink) abortPending(ctx context.Context) {
	if s.writer == nil || !s.batcher.HasPending() {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := s.writer.Abort(cctx); err != nil {
		s.logger.Warn("abort interrupted", ports.Err(err))
	}
}

// closeWriter closes the writer even when ctx is already done.
func (s *Sink) closeWriter(ctx context.Context) {
	if s.writer == nil {
		return
	}
	cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), closeTimeout)
	defer cancel()
	if err := s.writer.Close(cctx); err != nil {
		s.logger.Warn("writer close interrupted", ports.Err(err))
	}
	s.setWriter(nil)
}

// setWriter publishes w to the heartbeat goroutine.
func (s *Sink) setWriter(w *Writer) {
	s.writer = w
	s.current.Store(w)
}

func (s *Sink) requestHeartbeat() {
	if w := s.current.Load(); w != nil {
		w.SetHeartbeatNeeded()
	}
}

func (s *Sink) evictIdleWriter(ctx context.Context) {
	if s.writer == nil || s.config.IdleTimeout <= 0 || s.batcher.HasPending() {
		return
	}
	if time.Since(s.writer.LastUsed()) < s.config.IdleTimeout {
		return
	}
	s.logger.Info("closing idle writer", ports.Duration("idle_timeout", s.config.IdleTimeout))
	s.closeWriter(ctx)
}

func (s *Sink) waitForRecords(ctx context.Context) {
	wctx, cancel := context.WithTimeout(ctx, s.batcher.UntilFlush(s.config.PollInterval))
	defer cancel()
	if err := s.source.Wait(wctx); err != nil && wctx.Err() == nil {
		s.logger.Debug("source wait failed", ports.Err(err))
	}
}

// heartbeats asks the current writer to heartbeat on its next flush.
func (s *Sink) heartbeats(ctx context.Context) {
	interval := s.config.HeartbeatInterval
	if interval <= 0 {
		interval = DefaultHeartbeatInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.requestHeartbeat()
		}
	}
}
