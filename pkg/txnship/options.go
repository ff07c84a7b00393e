package txnship

import (
	"go.opentelemetry.io/otel/metric"

	"github.com/bft-labs/txnship/internal/ports"
)

// Re-exported ports so callers can supply their own implementations.
type (
	Logger               = ports.Logger
	LogField             = ports.Field
	Connector            = ports.Connector
	Serializer           = ports.Serializer
	RecordSource         = ports.RecordSource
	CheckpointRepository = ports.CheckpointRepository
)

// Option configures optional behavior of a Service.
type Option func(*options)

type options struct {
	logger        ports.Logger
	eventHandler  EventHandler
	meterProvider metric.MeterProvider
	connector     ports.Connector
	serializer    ports.Serializer
	source        ports.RecordSource
	checkpoints   ports.CheckpointRepository
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithEventHandler sets a handler for service events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithMeterProvider reports write and connection counters through mp.
func WithMeterProvider(mp metric.MeterProvider) Option {
	return func(o *options) {
		o.meterProvider = mp
	}
}

// WithConnector replaces the ClickHouse connector.
func WithConnector(c Connector) Option {
	return func(o *options) {
		o.connector = c
	}
}

// WithSerializer replaces the serializer chosen by Config.Serializer.
func WithSerializer(s Serializer) Option {
	return func(o *options) {
		o.serializer = s
	}
}

// WithSource replaces the source chosen by Config.Source.
func WithSource(src RecordSource) Option {
	return func(o *options) {
		o.source = src
	}
}

// WithCheckpointRepository replaces the checkpoint file in Config.StateDir.
func WithCheckpointRepository(repo CheckpointRepository) Option {
	return func(o *options) {
		o.checkpoints = repo
	}
}
