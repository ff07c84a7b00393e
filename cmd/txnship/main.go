package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	pflag "github.com/spf13/pflag"

	logAdapter "github.com/bft-labs/txnship/internal/adapters/log"
	"github.com/bft-labs/txnship/internal/adapters/metrics"
	"github.com/bft-labs/txnship/internal/cliconfig"
	"github.com/bft-labs/txnship/pkg/txnship"
)

const longHelp = `Commit newline-delimited records into ClickHouse in transactions.

Highlights:
  - Reads a spool directory or a NATS JetStream consumer.
  - Commits in transactions and checkpoints after every commit, so nothing
    is lost or written twice across restarts.
  - Every remote call is bounded by a timeout; stuck calls never wedge the sink.
  - Configure via file ($HOME/.txnship/config.toml), TXNSHIP_* env, or flags.`

var exampleUsage = strings.TrimSpace(`
  txnship --table events --columns ts,body --spool-dir /var/spool/txnship
  txnship --config $HOME/.txnship/config.toml --once
  txnship --source nats --nats-stream EVENTS --nats-subject 'events.>' --table events --columns ts,body
`)

func getVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func main() {
	cfg := cliconfig.DefaultConfig()
	var cfgPath string

	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	root := &cobra.Command{
		Use:          "txnship",
		Short:        "Commit newline-delimited records into ClickHouse in transactions",
		Long:         longHelp,
		Example:      exampleUsage,
		Version:      fmt.Sprintf("%s %s/%s", getVersion(), runtime.GOOS, runtime.GOARCH),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgFile := cfgPath
			if cfgFile == "" {
				cfgFile = cliconfig.DefaultConfigPath()
			}

			changed := map[string]bool{}
			cmd.Flags().Visit(func(f *pflag.Flag) { changed[f.Name] = true })

			if cfgFile != "" && cliconfig.FileExists(cfgFile) {
				fc, err := cliconfig.LoadFileConfig(cfgFile)
				if err != nil {
					return fmt.Errorf("load config: %w", err)
				}
				if err := cliconfig.ApplyFileConfig(&cfg, fc, changed); err != nil {
					return err
				}
			}

			// Env overrides the file; flags override both via the changed map.
			if err := cliconfig.ApplyEnvConfig(&cfg, changed); err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}

			logger, closer, err := logAdapter.New(logAdapter.OutputConfig{
				Level:      cfg.LogLevel,
				Format:     cfg.LogFormat,
				File:       cfg.LogFile,
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 30,
			}, os.Stderr)
			if err != nil {
				return err
			}
			defer closer.Close()
			log = logger

			log.Info().Interface("config", cfg.Masked()).Msg("configuration")

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			opts := []txnship.Option{
				txnship.WithLogger(logAdapter.NewZerologAdapter(log)),
			}
			if cfg.MetricsEndpoint != "" {
				mp, err := metrics.Setup(ctx, metrics.ProviderConfig{
					ServiceName: "txnship",
					Version:     getVersion(),
					Endpoint:    cfg.MetricsEndpoint,
					Insecure:    cfg.MetricsInsecure,
					Interval:    cfg.MetricsInterval,
				})
				if err != nil {
					return fmt.Errorf("setup metrics: %w", err)
				}
				defer func() {
					shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
					defer done()
					if err := mp.Shutdown(shutdownCtx); err != nil {
						log.Warn().Err(err).Msg("metrics shutdown")
					}
				}()
				opts = append(opts, txnship.WithMeterProvider(mp))
			}

			svc, err := txnship.New(serviceConfig(cfg), opts...)
			if err != nil {
				return fmt.Errorf("create service: %w", err)
			}

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			if err := svc.Start(ctx); err != nil {
				return fmt.Errorf("start service: %w", err)
			}

			// Poll for completion (once mode or crash)
			doneCh := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-ctx.Done():
						return
					case <-ticker.C:
						status := svc.Status()
						if status == txnship.StateStopped || status == txnship.StateCrashed {
							close(doneCh)
							return
						}
					}
				}
			}()

			select {
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("received signal, stopping...")
			case <-doneCh:
				if svc.Status() == txnship.StateCrashed {
					return fmt.Errorf("service crashed: %w", svc.LastError())
				}
				log.Info().Int64("events", svc.Checkpoint().Events).Msg("source drained")
				return nil
			}

			if err := svc.Stop(); err != nil && !errors.Is(err, txnship.ErrNotRunning) {
				return fmt.Errorf("stop service: %w", err)
			}
			return nil
		},
	}

	f := root.Flags()
	f.StringVar(&cfgPath, "config", "", "path to config file (default: $HOME/.txnship/config.toml)")

	f.StringSliceVar(&cfg.Addrs, "addrs", cfg.Addrs, "ClickHouse native endpoints (host:port)")
	f.StringVar(&cfg.Database, "database", cfg.Database, "target database")
	f.StringVar(&cfg.Table, "table", cfg.Table, "target table")
	f.StringSliceVar(&cfg.Columns, "columns", cfg.Columns, "target columns in insert order")
	f.StringSliceVar(&cfg.Partition, "partition", cfg.Partition, "partition values of the endpoint")

	f.StringVar(&cfg.Username, "username", cfg.Username, "ClickHouse user")
	f.StringVar(&cfg.Password, "password", cfg.Password, "ClickHouse password (prefer TXNSHIP_PASSWORD)")
	f.BoolVar(&cfg.Secure, "secure", cfg.Secure, "connect with TLS")
	f.DurationVar(&cfg.DialTimeout, "dial-timeout", cfg.DialTimeout, "connection dial timeout")
	f.StringVar(&cfg.ProxyUser, "proxy-user", cfg.ProxyUser, "user to act on behalf of")
	f.BoolVar(&cfg.AutoCreate, "auto-create", cfg.AutoCreate, "create the database if it does not exist")

	f.IntVar(&cfg.TxnsPerBatch, "txns-per-batch", cfg.TxnsPerBatch, "transactions reserved per batch")
	f.DurationVar(&cfg.CallTimeout, "call-timeout", cfg.CallTimeout, "timeout of every remote call (0 disables)")
	f.IntVar(&cfg.CallPoolSize, "call-pool-size", cfg.CallPoolSize, "remote calls that may run at once")

	f.StringVar(&cfg.Serializer, "serializer", cfg.Serializer, "record format: json or delimited")
	f.StringVar(&cfg.Delimiter, "delimiter", cfg.Delimiter, "field separator of delimited records")
	f.StringSliceVar(&cfg.FieldNames, "field-names", cfg.FieldNames, "column of each delimited field (empty skips)")

	f.StringVar(&cfg.Source, "source", cfg.Source, "record source: spool or nats")
	f.StringVar(&cfg.SpoolDir, "spool-dir", cfg.SpoolDir, "directory of .ndjson spool files")
	f.BoolVar(&cfg.RemoveCommitted, "remove-committed", cfg.RemoveCommitted, "delete spool files once fully committed")
	f.StringVar(&cfg.NATSURL, "nats-url", cfg.NATSURL, "NATS server URL")
	f.StringVar(&cfg.NATSStream, "nats-stream", cfg.NATSStream, "JetStream stream name")
	f.StringVar(&cfg.NATSSubject, "nats-subject", cfg.NATSSubject, "subject filter of the consumer")
	f.StringVar(&cfg.NATSDurable, "nats-durable", cfg.NATSDurable, "durable consumer name")
	f.StringVar(&cfg.StateDir, "state-dir", cfg.StateDir, "checkpoint directory (defaults to spool-dir)")

	f.IntVar(&cfg.MaxTxnEvents, "max-txn-events", cfg.MaxTxnEvents, "records per transaction")
	f.IntVar(&cfg.MaxTxnBytes, "max-txn-bytes", cfg.MaxTxnBytes, "payload bytes per transaction (0 disables)")
	f.DurationVar(&cfg.FlushInterval, "flush-interval", cfg.FlushInterval, "commit an open transaction after this long")
	f.DurationVar(&cfg.HeartbeatInterval, "heartbeat-interval", cfg.HeartbeatInterval, "transaction heartbeat interval")
	f.DurationVar(&cfg.IdleTimeout, "idle-timeout", cfg.IdleTimeout, "close an unused writer after this long (0 disables)")
	f.DurationVar(&cfg.PollInterval, "poll", cfg.PollInterval, "poll interval when idle")
	f.IntVar(&cfg.ConnectAttempts, "connect-attempts", cfg.ConnectAttempts, "writer setup attempts before backing off")
	f.DurationVar(&cfg.BackoffInitial, "backoff-initial", cfg.BackoffInitial, "first backoff after a failed transaction")
	f.DurationVar(&cfg.BackoffMax, "backoff-max", cfg.BackoffMax, "maximum backoff")

	f.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level")
	f.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "log format: console or json")
	f.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "also write JSON logs to this rotated file")

	f.StringVar(&cfg.MetricsEndpoint, "metrics-endpoint", cfg.MetricsEndpoint, "OTLP/HTTP collector host:port (empty disables)")
	f.BoolVar(&cfg.MetricsInsecure, "metrics-insecure", cfg.MetricsInsecure, "push metrics without TLS")
	f.DurationVar(&cfg.MetricsInterval, "metrics-interval", cfg.MetricsInterval, "metrics push interval")
	if err := f.MarkHidden("metrics-interval"); err != nil {
		log.Info().Err(err).Msg("failed to hide metrics-interval flag")
	}

	f.BoolVar(&cfg.Once, "once", cfg.Once, "commit what the source holds and exit")

	if err := root.Execute(); err != nil {
		log.Error().Err(err).Msg("txnship")
		os.Exit(1)
	}
}

func serviceConfig(cfg cliconfig.Config) txnship.Config {
	return txnship.Config{
		Addrs:           cfg.Addrs,
		Database:        cfg.Database,
		Table:           cfg.Table,
		Columns:         cfg.Columns,
		Partition:       cfg.Partition,
		Username:        cfg.Username,
		Password:        cfg.Password,
		Secure:          cfg.Secure,
		DialTimeout:     cfg.DialTimeout,
		ProxyUser:       cfg.ProxyUser,
		AutoCreate:      cfg.AutoCreate,
		TxnsPerBatch:    cfg.TxnsPerBatch,
		CallTimeout:     cfg.CallTimeout,
		CallPoolSize:    cfg.CallPoolSize,
		Serializer:      cfg.Serializer,
		Delimiter:       cfg.Delimiter,
		FieldNames:      cfg.FieldNames,
		Source:          cfg.Source,
		SpoolDir:        cfg.SpoolDir,
		RemoveCommitted: cfg.RemoveCommitted,
		NATS: txnship.NATSConfig{
			URL:     cfg.NATSURL,
			Stream:  cfg.NATSStream,
			Subject: cfg.NATSSubject,
			Durable: cfg.NATSDurable,
		},
		StateDir:          cfg.StateDir,
		MaxTxnEvents:      cfg.MaxTxnEvents,
		MaxTxnBytes:       cfg.MaxTxnBytes,
		FlushInterval:     cfg.FlushInterval,
		HeartbeatInterval: cfg.HeartbeatInterval,
		IdleTimeout:       cfg.IdleTimeout,
		PollInterval:      cfg.PollInterval,
		ConnectAttempts:   uint(cfg.ConnectAttempts),
		BackoffInitial:    cfg.BackoffInitial,
		BackoffMax:        cfg.BackoffMax,
		Once:              cfg.Once,
	}
}
