package txnship

import (
	"context"
	"fmt"
	"sync"

	"github.com/bft-labs/txnship/internal/adapters/clickhouse"
	"github.com/bft-labs/txnship/internal/adapters/fs"
	logAdapter "github.com/bft-labs/txnship/internal/adapters/log"
	"github.com/bft-labs/txnship/internal/adapters/metrics"
	natsAdapter "github.com/bft-labs/txnship/internal/adapters/nats"
	"github.com/bft-labs/txnship/internal/adapters/serializer"
	"github.com/bft-labs/txnship/internal/app"
	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// Service streams records from a source into transactional ClickHouse
// writes. Use New() to create an instance, then Start() to begin.
type Service struct {
	config    Config
	lifecycle *app.Lifecycle
	sink      *app.Sink
	logger    ports.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
}

// New creates a Service in StateStopped.
// Returns an error wrapping domain.ErrInvalidConfig if the configuration is
// unusable.
func New(cfg Config, opts ...Option) (*Service, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	logger := o.logger
	if logger == nil {
		logger = logAdapter.NewNoopLogger()
	}
	emitter := &eventEmitterWrapper{handler: o.eventHandler}

	connector := o.connector
	if connector == nil {
		connector = clickhouse.NewConnector(clickhouse.Config{
			Username:    cfg.Username,
			Password:    cfg.Password,
			Secure:      cfg.Secure,
			DialTimeout: cfg.DialTimeout,
		})
	}

	ser := o.serializer
	if ser == nil {
		var err error
		ser, err = serializer.New(cfg.Serializer, serializer.Options{
			Delimiter:  cfg.Delimiter,
			FieldNames: cfg.FieldNames,
		})
		if err != nil {
			return nil, err
		}
	}

	source := o.source
	if source == nil {
		var err error
		if source, err = newSource(cfg, logger); err != nil {
			return nil, err
		}
	}

	repo := o.checkpoints
	if repo == nil {
		if cfg.StateDir == "" {
			return nil, fmt.Errorf("%w: state dir is required", domain.ErrInvalidConfig)
		}
		repo = fs.NewCheckpointFileRepository(cfg.StateDir)
	}

	var meter ports.Metrics = metrics.Noop{}
	if o.meterProvider != nil {
		m, err := metrics.NewMeter(o.meterProvider, cfg.Endpoint().String())
		if err != nil {
			return nil, fmt.Errorf("create meter: %w", err)
		}
		meter = m
	}

	deps := app.WriterDeps{
		Pool:       app.NewCallPool(cfg.CallPoolSize),
		Connector:  connector,
		Serializer: ser,
		Metrics:    meter,
		Logger:     logger,
	}

	return &Service{
		config:    cfg,
		lifecycle: app.NewLifecycle(logger, emitter),
		sink:      app.NewSink(cfg.sinkConfig(), source, repo, deps, logger, emitter),
		logger:    logger,
	}, nil
}

func newSource(cfg Config, logger ports.Logger) (ports.RecordSource, error) {
	switch cfg.Source {
	case SourceSpool:
		if cfg.SpoolDir == "" {
			return nil, fmt.Errorf("%w: spool dir is required", domain.ErrInvalidConfig)
		}
		return fs.NewSpoolSource(cfg.SpoolDir, cfg.RemoveCommitted, logger), nil
	case SourceNATS:
		if cfg.NATS.URL == "" || cfg.NATS.Stream == "" {
			return nil, fmt.Errorf("%w: nats url and stream are required", domain.ErrInvalidConfig)
		}
		return natsAdapter.NewSource(natsAdapter.Config{
			URL:     cfg.NATS.URL,
			Stream:  cfg.NATS.Stream,
			Subject: cfg.NATS.Subject,
			Durable: cfg.NATS.Durable,
		}, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown source %q", domain.ErrInvalidConfig, cfg.Source)
	}
}

// Start runs the sink in the background and returns immediately.
// Returns domain.ErrAlreadyRunning if the service is not stopped.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.lifecycle.CanStart() {
		return domain.ErrAlreadyRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStarting, "Start() called"); err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.lifecycle.SetCancel(cancel)

	s.lifecycle.Go(runCtx, "sink", func(ctx context.Context) error {
		if err := s.lifecycle.TransitionTo(app.StateRunning, "sink starting"); err != nil {
			return nil
		}
		if err := s.sink.Run(ctx); err != nil {
			return err
		}
		if s.config.Once {
			s.finish("source drained")
		}
		return nil
	})
	return nil
}

// finish stops a service whose sink returned on its own.
func (s *Service) finish(reason string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lifecycle.State() != app.StateRunning {
		return
	}
	s.logger.Info("sink finished", ports.String("reason", reason))
	_ = s.lifecycle.TransitionTo(app.StateStopping, reason)
	s.cancel()
	_ = s.lifecycle.TransitionTo(app.StateStopped, reason)
}

// Stop cancels the sink and waits for it to exit. Records of the open
// transaction are aborted and replayed from the checkpoint on the next Start.
// Returns domain.ErrShutdownTimeout if the sink does not exit in time.
func (s *Service) Stop() error {
	s.mu.Lock()
	if !s.lifecycle.CanStop() {
		s.mu.Unlock()
		return domain.ErrNotRunning
	}
	if err := s.lifecycle.TransitionTo(app.StateStopping, "Stop() called"); err != nil {
		s.mu.Unlock()
		return err
	}
	if s.cancel != nil {
		s.cancel()
	}
	s.mu.Unlock()

	err := s.lifecycle.WaitWithTimeout(app.ShutdownTimeout)
	if err != nil {
		_ = s.lifecycle.TransitionTo(app.StateCrashed, "shutdown timeout")
	} else {
		_ = s.lifecycle.TransitionTo(app.StateStopped, "graceful shutdown")
	}
	return err
}

// Status returns the current lifecycle state.
// Safe to call concurrently from any goroutine.
func (s *Service) Status() State {
	return convertState(s.lifecycle.State())
}

// LastError returns the error that crashed the service, if any.
func (s *Service) LastError() error {
	return s.lifecycle.LastError()
}

// Checkpoint returns the last committed position.
// Only meaningful once the service has stopped.
func (s *Service) Checkpoint() domain.Checkpoint {
	return s.sink.Checkpoint()
}
