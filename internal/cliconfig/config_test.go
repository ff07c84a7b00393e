package cliconfig

import (
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("TXNSHIP_PASSWORD", "")
	cfg := DefaultConfig()

	if len(cfg.Addrs) != 1 || cfg.Addrs[0] != DefaultAddr {
		t.Errorf("Addrs = %v, want [%v]", cfg.Addrs, DefaultAddr)
	}
	if cfg.TxnsPerBatch != 100 {
		t.Errorf("TxnsPerBatch = %v, want 100", cfg.TxnsPerBatch)
	}
	if cfg.CallPoolSize != 10 {
		t.Errorf("CallPoolSize = %v, want 10", cfg.CallPoolSize)
	}
	if cfg.PollInterval != 500*time.Millisecond {
		t.Errorf("PollInterval = %v, want 500ms", cfg.PollInterval)
	}
	if cfg.Source != SourceSpool {
		t.Errorf("Source = %v, want %v", cfg.Source, SourceSpool)
	}
	if cfg.Password != "" {
		t.Errorf("Password = %q, want empty", cfg.Password)
	}
}

func validConfig() Config {
	cfg := DefaultConfig()
	cfg.Table = "events"
	cfg.Columns = []string{"ts", "body"}
	cfg.SpoolDir = "/var/spool/txnship"
	return cfg
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid spool config", mutate: func(*Config) {}},
		{name: "missing table", mutate: func(c *Config) { c.Table = "" }, wantErr: "table"},
		{name: "blank columns", mutate: func(c *Config) { c.Columns = []string{" "} }, wantErr: "columns"},
		{name: "missing spool dir", mutate: func(c *Config) { c.SpoolDir = "" }, wantErr: "spool-dir"},
		{
			name: "nats without stream",
			mutate: func(c *Config) {
				c.Source = SourceNATS
				c.NATSSubject = "events"
			},
			wantErr: "nats-stream",
		},
		{name: "unknown source", mutate: func(c *Config) { c.Source = "kafka" }, wantErr: "unknown source"},
		{name: "unknown serializer", mutate: func(c *Config) { c.Serializer = "avro" }, wantErr: "unknown serializer"},
		{
			name: "delimited without delimiter",
			mutate: func(c *Config) {
				c.Serializer = "delimited"
				c.Delimiter = ""
			},
			wantErr: "delimiter",
		},
		{name: "zero txns per batch", mutate: func(c *Config) { c.TxnsPerBatch = 0 }, wantErr: "txns-per-batch"},
		{name: "negative call timeout", mutate: func(c *Config) { c.CallTimeout = -time.Second }, wantErr: "call-timeout"},
		{name: "zero pool size", mutate: func(c *Config) { c.CallPoolSize = 0 }, wantErr: "call-pool-size"},
		{name: "zero poll interval", mutate: func(c *Config) { c.PollInterval = 0 }, wantErr: "poll"},
		{name: "zero flush interval", mutate: func(c *Config) { c.FlushInterval = 0 }, wantErr: "flush"},
		{name: "zero max events", mutate: func(c *Config) { c.MaxTxnEvents = 0 }, wantErr: "max-txn-events"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()

			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
				return
			}
			if err == nil {
				t.Fatalf("Validate() expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_Derivations(t *testing.T) {
	t.Run("state dir defaults to spool dir", func(t *testing.T) {
		cfg := validConfig()
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if cfg.StateDir != cfg.SpoolDir {
			t.Errorf("StateDir = %v, want %v", cfg.StateDir, cfg.SpoolDir)
		}
	})

	t.Run("nats state dir under home", func(t *testing.T) {
		home := t.TempDir()
		t.Setenv("HOME", home)

		cfg := validConfig()
		cfg.Source = SourceNATS
		cfg.NATSStream = "EVENTS"
		cfg.NATSSubject = "events"
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if want := filepath.Join(home, ".txnship", "state"); cfg.StateDir != want {
			t.Errorf("StateDir = %v, want %v", cfg.StateDir, want)
		}
	})

	t.Run("empty addrs fall back to default", func(t *testing.T) {
		cfg := validConfig()
		cfg.Addrs = []string{"", " "}
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if len(cfg.Addrs) != 1 || cfg.Addrs[0] != DefaultAddr {
			t.Errorf("Addrs = %v, want [%v]", cfg.Addrs, DefaultAddr)
		}
	})

	t.Run("connect attempts at least one", func(t *testing.T) {
		cfg := validConfig()
		cfg.ConnectAttempts = 0
		if err := cfg.Validate(); err != nil {
			t.Fatalf("Validate() error = %v", err)
		}
		if cfg.ConnectAttempts != 1 {
			t.Errorf("ConnectAttempts = %v, want 1", cfg.ConnectAttempts)
		}
	})
}

func TestConfig_Masked(t *testing.T) {
	cfg := validConfig()
	cfg.Password = "hunter2"

	masked := cfg.Masked()
	if masked.Password != "*****" {
		t.Errorf("Masked().Password = %q", masked.Password)
	}
	if cfg.Password != "hunter2" {
		t.Errorf("Masked() modified the receiver")
	}
}
