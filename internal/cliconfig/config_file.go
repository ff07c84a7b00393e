package cliconfig

import (
	"os"
	"path/filepath"
	"time"

	toml "github.com/pelletier/go-toml/v2"
)

// FileConfig mirrors Config but uses strings for durations to make TOML friendly.
type FileConfig struct {
	Addrs     []string `toml:"addrs"`
	Database  string   `toml:"database"`
	Table     string   `toml:"table"`
	Columns   []string `toml:"columns"`
	Partition []string `toml:"partition"`

	Username    string `toml:"username"`
	Password    string `toml:"password"`
	Secure      *bool  `toml:"secure"`
	DialTimeout string `toml:"dial_timeout"`
	ProxyUser   string `toml:"proxy_user"`
	AutoCreate  *bool  `toml:"auto_create"`

	TxnsPerBatch int    `toml:"txns_per_batch"`
	CallTimeout  string `toml:"call_timeout"`
	CallPoolSize int    `toml:"call_pool_size"`

	Serializer string   `toml:"serializer"`
	Delimiter  string   `toml:"delimiter"`
	FieldNames []string `toml:"field_names"`

	Source          string `toml:"source"`
	SpoolDir        string `toml:"spool_dir"`
	RemoveCommitted *bool  `toml:"remove_committed"`
	NATS            struct {
		URL     string `toml:"url"`
		Stream  string `toml:"stream"`
		Subject string `toml:"subject"`
		Durable string `toml:"durable"`
	} `toml:"nats"`

	StateDir string `toml:"state_dir"`

	MaxTxnEvents      int    `toml:"max_txn_events"`
	MaxTxnBytes       int    `toml:"max_txn_bytes"`
	FlushInterval     string `toml:"flush_interval"`
	HeartbeatInterval string `toml:"heartbeat_interval"`
	IdleTimeout       string `toml:"idle_timeout"`
	PollInterval      string `toml:"poll_interval"`
	ConnectAttempts   int    `toml:"connect_attempts"`
	BackoffInitial    string `toml:"backoff_initial"`
	BackoffMax        string `toml:"backoff_max"`

	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
		File   string `toml:"file"`
	} `toml:"log"`

	Metrics struct {
		Endpoint string `toml:"endpoint"`
		Insecure *bool  `toml:"insecure"`
		Interval string `toml:"interval"`
	} `toml:"metrics"`

	Once *bool `toml:"once"`
}

// LoadFileConfig reads and parses a TOML config file from the given path.
func LoadFileConfig(path string) (FileConfig, error) {
	var fc FileConfig
	b, err := os.ReadFile(path)
	if err != nil {
		return fc, err
	}
	if err := toml.Unmarshal(b, &fc); err != nil {
		return fc, err
	}
	return fc, nil
}

// DefaultConfigPath returns ~/.txnship/config.toml if the home directory is accessible.
func DefaultConfigPath() string {
	if h, err := os.UserHomeDir(); err == nil {
		return filepath.Join(h, ".txnship", "config.toml")
	}
	return ""
}

// ApplyFileConfig applies configuration from a file to the Config struct.
// It respects flags that have been explicitly set (changed map).
func ApplyFileConfig(cfg *Config, fc FileConfig, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setStrings("addrs", fc.Addrs, &cfg.Addrs)
	s.setString("database", fc.Database, &cfg.Database)
	s.setString("table", fc.Table, &cfg.Table)
	s.setStrings("columns", fc.Columns, &cfg.Columns)
	s.setStrings("partition", fc.Partition, &cfg.Partition)

	s.setString("username", fc.Username, &cfg.Username)
	s.setString("password", fc.Password, &cfg.Password)
	s.setString("proxy-user", fc.ProxyUser, &cfg.ProxyUser)
	s.setString("serializer", fc.Serializer, &cfg.Serializer)
	s.setString("delimiter", fc.Delimiter, &cfg.Delimiter)
	s.setStrings("field-names", fc.FieldNames, &cfg.FieldNames)

	s.setString("source", fc.Source, &cfg.Source)
	s.setString("spool-dir", fc.SpoolDir, &cfg.SpoolDir)
	s.setString("nats-url", fc.NATS.URL, &cfg.NATSURL)
	s.setString("nats-stream", fc.NATS.Stream, &cfg.NATSStream)
	s.setString("nats-subject", fc.NATS.Subject, &cfg.NATSSubject)
	s.setString("nats-durable", fc.NATS.Durable, &cfg.NATSDurable)
	s.setString("state-dir", fc.StateDir, &cfg.StateDir)

	s.setString("log-level", fc.Log.Level, &cfg.LogLevel)
	s.setString("log-format", fc.Log.Format, &cfg.LogFormat)
	s.setString("log-file", fc.Log.File, &cfg.LogFile)
	s.setString("metrics-endpoint", fc.Metrics.Endpoint, &cfg.MetricsEndpoint)

	durations := []struct {
		flag  string
		value string
		dst   *time.Duration
	}{
		{"dial-timeout", fc.DialTimeout, &cfg.DialTimeout},
		{"call-timeout", fc.CallTimeout, &cfg.CallTimeout},
		{"flush-interval", fc.FlushInterval, &cfg.FlushInterval},
		{"heartbeat-interval", fc.HeartbeatInterval, &cfg.HeartbeatInterval},
		{"idle-timeout", fc.IdleTimeout, &cfg.IdleTimeout},
		{"poll", fc.PollInterval, &cfg.PollInterval},
		{"backoff-initial", fc.BackoffInitial, &cfg.BackoffInitial},
		{"backoff-max", fc.BackoffMax, &cfg.BackoffMax},
		{"metrics-interval", fc.Metrics.Interval, &cfg.MetricsInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, d.value, d.dst); err != nil {
			return err
		}
	}

	s.setInt("txns-per-batch", fc.TxnsPerBatch, &cfg.TxnsPerBatch)
	s.setInt("call-pool-size", fc.CallPoolSize, &cfg.CallPoolSize)
	s.setInt("max-txn-events", fc.MaxTxnEvents, &cfg.MaxTxnEvents)
	s.setInt("max-txn-bytes", fc.MaxTxnBytes, &cfg.MaxTxnBytes)
	s.setInt("connect-attempts", fc.ConnectAttempts, &cfg.ConnectAttempts)

	s.setBool("secure", fc.Secure, &cfg.Secure)
	s.setBool("auto-create", fc.AutoCreate, &cfg.AutoCreate)
	s.setBool("remove-committed", fc.RemoveCommitted, &cfg.RemoveCommitted)
	s.setBool("metrics-insecure", fc.Metrics.Insecure, &cfg.MetricsInsecure)
	s.setBool("once", fc.Once, &cfg.Once)

	return nil
}

// FileExists checks if a file exists at the given path.
func FileExists(p string) bool {
	_, err := os.Stat(p)
	return err == nil
}
