package txnship

import (
	"fmt"
	"time"

	"github.com/bft-labs/txnship/internal/app"
	"github.com/bft-labs/txnship/internal/domain"
)

// Source kinds.
const (
	SourceSpool = "spool"
	SourceNATS  = "nats"
)

// NATSConfig selects the JetStream stream and durable consumer to read.
type NATSConfig struct {
	URL     string
	Stream  string
	Subject string
	Durable string
}

// Config describes one sink: where records come from and which table they
// are committed to.
type Config struct {
	// Addrs are the ClickHouse native endpoints (host:port)
	Addrs     []string
	Database  string
	Table     string
	Columns   []string
	Partition []string

	Username    string
	Password    string
	Secure      bool
	DialTimeout time.Duration

	// ProxyUser, when set, replaces Username for every session
	ProxyUser string
	// AutoCreate creates the database when it does not exist
	AutoCreate bool

	TxnsPerBatch int
	CallTimeout  time.Duration
	CallPoolSize int

	// Serializer is "json" or "delimited"
	Serializer string
	Delimiter  string
	FieldNames []string

	// Source is SourceSpool or SourceNATS. Ignored when WithSource is used.
	Source          string
	SpoolDir        string
	RemoveCommitted bool
	NATS            NATSConfig

	// StateDir holds checkpoint.json
	StateDir string

	MaxTxnEvents      int
	MaxTxnBytes       int
	FlushInterval     time.Duration
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	PollInterval      time.Duration
	ConnectAttempts   uint
	BackoffInitial    time.Duration
	BackoffMax        time.Duration

	// Once drains what the source holds, commits it and stops
	Once bool
}

// SetDefaults fills zero values with defaults.
func (c *Config) SetDefaults() {
	if c.Database == "" {
		c.Database = "default"
	}
	if c.TxnsPerBatch <= 0 {
		c.TxnsPerBatch = app.DefaultTxnsPerBatch
	}
	if c.CallPoolSize <= 0 {
		c.CallPoolSize = app.DefaultCallPoolSize
	}
	if c.Serializer == "" {
		c.Serializer = "json"
	}
	if c.Source == "" {
		c.Source = SourceSpool
	}
	if c.StateDir == "" {
		c.StateDir = c.SpoolDir
	}
	if c.MaxTxnEvents <= 0 {
		c.MaxTxnEvents = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 5 * time.Second
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = app.DefaultHeartbeatInterval
	}
	if c.PollInterval <= 0 {
		c.PollInterval = app.DefaultPollInterval
	}
}

// Validate reports the first invalid setting, wrapped in
// domain.ErrInvalidConfig.
func (c *Config) Validate() error {
	if err := c.Endpoint().Validate(); err != nil {
		return err
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("%w: negative call timeout", domain.ErrInvalidConfig)
	}
	return nil
}

// Endpoint returns the storage endpoint the sink writes to.
func (c *Config) Endpoint() domain.Endpoint {
	return domain.NewEndpoint(c.Addrs, c.Database, c.Table, c.Columns, c.Partition)
}

func (c *Config) sinkConfig() app.SinkConfig {
	return app.SinkConfig{
		Writer: app.WriterConfig{
			Endpoint:             c.Endpoint(),
			TxnsPerBatch:         c.TxnsPerBatch,
			CallTimeout:          c.CallTimeout,
			AutoCreatePartitions: c.AutoCreate,
			ProxyUser:            c.ProxyUser,
		},
		MaxTxnEvents:      c.MaxTxnEvents,
		MaxTxnBytes:       c.MaxTxnBytes,
		FlushInterval:     c.FlushInterval,
		HeartbeatInterval: c.HeartbeatInterval,
		IdleTimeout:       c.IdleTimeout,
		PollInterval:      c.PollInterval,
		ConnectAttempts:   c.ConnectAttempts,
		BackoffInitial:    c.BackoffInitial,
		BackoffMax:        c.BackoffMax,
		Once:              c.Once,
	}
}
