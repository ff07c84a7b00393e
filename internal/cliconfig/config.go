package cliconfig

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// Source kinds accepted by the source setting.
const (
	SourceSpool = "spool"
	SourceNATS  = "nats"
)

// DefaultAddr is the ClickHouse native endpoint used when none is configured.
const DefaultAddr = "127.0.0.1:9000"

// Config holds CLI configuration for txnship.
type Config struct {
	Addrs     []string
	Database  string
	Table     string
	Columns   []string
	Partition []string

	Username    string
	Password    string
	Secure      bool
	DialTimeout time.Duration
	ProxyUser   string
	AutoCreate  bool

	TxnsPerBatch int
	CallTimeout  time.Duration
	CallPoolSize int

	Serializer string
	Delimiter  string
	FieldNames []string

	Source          string
	SpoolDir        string
	RemoveCommitted bool
	NATSURL         string
	NATSStream      string
	NATSSubject     string
	NATSDurable     string

	StateDir string

	MaxTxnEvents      int
	MaxTxnBytes       int
	FlushInterval     time.Duration
	HeartbeatInterval time.Duration
	IdleTimeout       time.Duration
	PollInterval      time.Duration
	ConnectAttempts   int
	BackoffInitial    time.Duration
	BackoffMax        time.Duration

	LogLevel  string
	LogFormat string
	LogFile   string

	MetricsEndpoint string
	MetricsInsecure bool
	MetricsInterval time.Duration

	Once bool
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() Config {
	return Config{
		Addrs:             []string{DefaultAddr},
		Database:          "default",
		DialTimeout:       10 * time.Second,
		TxnsPerBatch:      100,
		CallTimeout:       10 * time.Second,
		CallPoolSize:      10,
		Serializer:        "json",
		Delimiter:         ",",
		Source:            SourceSpool,
		NATSURL:           "nats://127.0.0.1:4222",
		NATSDurable:       "txnship",
		MaxTxnEvents:      1000,
		MaxTxnBytes:       8 << 20, // 8MB
		FlushInterval:     5 * time.Second,
		HeartbeatInterval: 4 * time.Minute,
		IdleTimeout:       0,
		PollInterval:      500 * time.Millisecond,
		ConnectAttempts:   5,
		BackoffInitial:    time.Second,
		BackoffMax:        time.Minute,
		LogLevel:          "info",
		LogFormat:         "console",
		MetricsInterval:   30 * time.Second,
		Password:          os.Getenv("TXNSHIP_PASSWORD"),
	}
}

// Validate checks the configuration for errors and sets derived defaults.
func (c *Config) Validate() error {
	c.Addrs = compact(c.Addrs)
	if len(c.Addrs) == 0 {
		c.Addrs = []string{DefaultAddr}
	}
	if c.Table == "" {
		return fmt.Errorf("table is required")
	}
	c.Columns = compact(c.Columns)
	if len(c.Columns) == 0 {
		return fmt.Errorf("columns are required")
	}

	switch c.Source {
	case SourceSpool:
		if c.SpoolDir == "" {
			return fmt.Errorf("spool-dir is required for the spool source")
		}
		if c.StateDir == "" {
			c.StateDir = c.SpoolDir
		}
	case SourceNATS:
		if c.NATSURL == "" || c.NATSStream == "" || c.NATSSubject == "" {
			return fmt.Errorf("nats-url, nats-stream and nats-subject are required for the nats source")
		}
		if c.StateDir == "" {
			if h, err := os.UserHomeDir(); err == nil {
				c.StateDir = filepath.Join(h, ".txnship", "state")
			} else {
				return fmt.Errorf("state-dir is required for the nats source")
			}
		}
	default:
		return fmt.Errorf("unknown source %q", c.Source)
	}

	switch c.Serializer {
	case "json":
	case "delimited":
		if c.Delimiter == "" {
			return fmt.Errorf("delimiter must not be empty")
		}
	default:
		return fmt.Errorf("unknown serializer %q", c.Serializer)
	}
	c.FieldNames = compact(c.FieldNames)

	if c.TxnsPerBatch <= 0 {
		return fmt.Errorf("txns-per-batch must be positive")
	}
	if c.CallTimeout < 0 {
		return fmt.Errorf("call-timeout must not be negative")
	}
	if c.CallPoolSize <= 0 {
		return fmt.Errorf("call-pool-size must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	if c.FlushInterval <= 0 {
		return fmt.Errorf("flush interval must be positive")
	}
	if c.MaxTxnEvents <= 0 {
		return fmt.Errorf("max-txn-events must be positive")
	}
	if c.ConnectAttempts <= 0 {
		c.ConnectAttempts = 1
	}

	return nil
}

// Masked returns a copy safe for logging.
func (c Config) Masked() Config {
	if c.Password != "" {
		c.Password = "*****"
	}
	return c
}

// splitList splits a comma separated value and drops empty entries.
func splitList(value string) []string {
	return compact(strings.Split(value, ","))
}

func compact(values []string) []string {
	out := values[:0:0]
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

// configSetter helps apply configuration values while respecting flag precedence.
// It only applies values if the corresponding flag hasn't been explicitly set.
type configSetter struct {
	changed map[string]bool
}

func newConfigSetter(changed map[string]bool) *configSetter {
	return &configSetter{changed: changed}
}

// setString sets a string value if not empty and flag not changed.
func (s *configSetter) setString(flag, value string, dst *string) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value
}

// setStrings sets a list value if not empty and flag not changed.
func (s *configSetter) setStrings(flag string, value []string, dst *[]string) {
	value = compact(value)
	if len(value) == 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setInt sets an int value if positive and flag not changed.
func (s *configSetter) setInt(flag string, value int, dst *int) {
	if value <= 0 || s.changed[flag] {
		return
	}
	*dst = value
}

// setDuration parses and sets a duration from string if valid and flag not changed.
func (s *configSetter) setDuration(flag, value string, dst *time.Duration) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	*dst = d
	return nil
}

// setBool sets a bool value from a pointer if not nil and flag not changed.
func (s *configSetter) setBool(flag string, value *bool, dst *bool) {
	if value == nil || s.changed[flag] {
		return
	}
	*dst = *value
}

// setIntFromString parses a string to int and sets the destination if valid.
// Used for environment variables that come as strings.
func (s *configSetter) setIntFromString(flag, value string, dst *int) error {
	if value == "" || s.changed[flag] {
		return nil
	}
	i, err := strconv.Atoi(value)
	if err != nil {
		return fmt.Errorf("parse %s: %w", flag, err)
	}
	if i <= 0 {
		return nil
	}
	*dst = i
	return nil
}

// setBoolFromString accepts "true" and "1" as true, anything else as false.
func (s *configSetter) setBoolFromString(flag, value string, dst *bool) {
	if value == "" || s.changed[flag] {
		return
	}
	*dst = value == "true" || value == "1"
}
