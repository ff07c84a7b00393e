package cliconfig

import (
	"os"
	"time"
)

// ApplyEnvConfig applies configuration from environment variables (TXNSHIP_*).
// It respects flags that have been explicitly set (changed map).
// Returns error if any environment variable has an invalid format.
func ApplyEnvConfig(cfg *Config, changed map[string]bool) error {
	s := newConfigSetter(changed)

	s.setStrings("addrs", splitList(os.Getenv("TXNSHIP_ADDRS")), &cfg.Addrs)
	s.setString("database", os.Getenv("TXNSHIP_DATABASE"), &cfg.Database)
	s.setString("table", os.Getenv("TXNSHIP_TABLE"), &cfg.Table)
	s.setStrings("columns", splitList(os.Getenv("TXNSHIP_COLUMNS")), &cfg.Columns)
	s.setStrings("partition", splitList(os.Getenv("TXNSHIP_PARTITION")), &cfg.Partition)

	s.setString("username", os.Getenv("TXNSHIP_USERNAME"), &cfg.Username)
	s.setString("password", os.Getenv("TXNSHIP_PASSWORD"), &cfg.Password)
	s.setString("proxy-user", os.Getenv("TXNSHIP_PROXY_USER"), &cfg.ProxyUser)
	s.setString("serializer", os.Getenv("TXNSHIP_SERIALIZER"), &cfg.Serializer)
	s.setString("delimiter", os.Getenv("TXNSHIP_DELIMITER"), &cfg.Delimiter)
	s.setStrings("field-names", splitList(os.Getenv("TXNSHIP_FIELD_NAMES")), &cfg.FieldNames)

	s.setString("source", os.Getenv("TXNSHIP_SOURCE"), &cfg.Source)
	s.setString("spool-dir", os.Getenv("TXNSHIP_SPOOL_DIR"), &cfg.SpoolDir)
	s.setString("nats-url", os.Getenv("TXNSHIP_NATS_URL"), &cfg.NATSURL)
	s.setString("nats-stream", os.Getenv("TXNSHIP_NATS_STREAM"), &cfg.NATSStream)
	s.setString("nats-subject", os.Getenv("TXNSHIP_NATS_SUBJECT"), &cfg.NATSSubject)
	s.setString("nats-durable", os.Getenv("TXNSHIP_NATS_DURABLE"), &cfg.NATSDurable)
	s.setString("state-dir", os.Getenv("TXNSHIP_STATE_DIR"), &cfg.StateDir)

	s.setString("log-level", os.Getenv("TXNSHIP_LOG_LEVEL"), &cfg.LogLevel)
	s.setString("log-format", os.Getenv("TXNSHIP_LOG_FORMAT"), &cfg.LogFormat)
	s.setString("log-file", os.Getenv("TXNSHIP_LOG_FILE"), &cfg.LogFile)
	s.setString("metrics-endpoint", os.Getenv("TXNSHIP_METRICS_ENDPOINT"), &cfg.MetricsEndpoint)

	durations := []struct {
		flag string
		env  string
		dst  *time.Duration
	}{
		{"dial-timeout", "TXNSHIP_DIAL_TIMEOUT", &cfg.DialTimeout},
		{"call-timeout", "TXNSHIP_CALL_TIMEOUT", &cfg.CallTimeout},
		{"flush-interval", "TXNSHIP_FLUSH_INTERVAL", &cfg.FlushInterval},
		{"heartbeat-interval", "TXNSHIP_HEARTBEAT_INTERVAL", &cfg.HeartbeatInterval},
		{"idle-timeout", "TXNSHIP_IDLE_TIMEOUT", &cfg.IdleTimeout},
		{"poll", "TXNSHIP_POLL_INTERVAL", &cfg.PollInterval},
		{"backoff-initial", "TXNSHIP_BACKOFF_INITIAL", &cfg.BackoffInitial},
		{"backoff-max", "TXNSHIP_BACKOFF_MAX", &cfg.BackoffMax},
		{"metrics-interval", "TXNSHIP_METRICS_INTERVAL", &cfg.MetricsInterval},
	}
	for _, d := range durations {
		if err := s.setDuration(d.flag, os.Getenv(d.env), d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		flag string
		env  string
		dst  *int
	}{
		{"txns-per-batch", "TXNSHIP_TXNS_PER_BATCH", &cfg.TxnsPerBatch},
		{"call-pool-size", "TXNSHIP_CALL_POOL_SIZE", &cfg.CallPoolSize},
		{"max-txn-events", "TXNSHIP_MAX_TXN_EVENTS", &cfg.MaxTxnEvents},
		{"max-txn-bytes", "TXNSHIP_MAX_TXN_BYTES", &cfg.MaxTxnBytes},
		{"connect-attempts", "TXNSHIP_CONNECT_ATTEMPTS", &cfg.ConnectAttempts},
	}
	for _, i := range ints {
		if err := s.setIntFromString(i.flag, os.Getenv(i.env), i.dst); err != nil {
			return err
		}
	}

	s.setBoolFromString("secure", os.Getenv("TXNSHIP_SECURE"), &cfg.Secure)
	s.setBoolFromString("auto-create", os.Getenv("TXNSHIP_AUTO_CREATE"), &cfg.AutoCreate)
	s.setBoolFromString("remove-committed", os.Getenv("TXNSHIP_REMOVE_COMMITTED"), &cfg.RemoveCommitted)
	s.setBoolFromString("metrics-insecure", os.Getenv("TXNSHIP_METRICS_INSECURE"), &cfg.MetricsInsecure)
	s.setBoolFromString("once", os.Getenv("TXNSHIP_ONCE"), &cfg.Once)

	return nil
}
