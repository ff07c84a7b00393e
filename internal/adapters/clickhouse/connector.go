// Package clickhouse stores records in ClickHouse tables. Each transaction
// of a batch is one INSERT block; commit sends the block, abort drops it.
package clickhouse

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// session is the part of driver.Conn the adapter uses.
type session interface {
	Ping(ctx context.Context) error
	Exec(ctx context.Context, query string, args ...any) error
	PrepareBatch(ctx context.Context, query string, opts ...driver.PrepareBatchOption) (driver.Batch, error)
	Close() error
}

// Config holds the credentials and transport settings shared by all
// connections.
type Config struct {
	Username    string
	Password    string
	Secure      bool
	DialTimeout time.Duration
}

// Connector implements ports.Connector for ClickHouse.
type Connector struct {
	cfg  Config
	open func(*clickhouse.Options) (session, error)
}

// NewConnector creates a connector using the native protocol.
func NewConnector(cfg Config) *Connector {
	return &Connector{
		cfg: cfg,
		open: func(opts *clickhouse.Options) (session, error) {
			return clickhouse.Open(opts)
		},
	}
}

// Connect opens and pings a session to ep. With AutoCreatePartitions the
// database is created if missing.
func (c *Connector) Connect(ctx context.Context, ep domain.Endpoint, opts ports.ConnectOptions) (ports.Connection, error) {
	options := &clickhouse.Options{
		Addr:        ep.Addrs,
		Protocol:    clickhouse.Native,
		DialTimeout: c.cfg.DialTimeout,
		Auth: clickhouse.Auth{
			Username: c.cfg.Username,
			Password: c.cfg.Password,
		},
	}
	if opts.ProxyUser != "" {
		options.Auth.Username = opts.ProxyUser
	}
	// A missing database fails the handshake, so only bind to it when it
	// is not going to be created.
	if !opts.AutoCreatePartitions {
		options.Auth.Database = ep.Database
	}
	if c.cfg.Secure {
		options.TLS = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	sess, err := c.open(options)
	if err != nil {
		return nil, mark("open connection", err)
	}
	if err := sess.Ping(ctx); err != nil {
		_ = sess.Close()
		return nil, mark("ping", err)
	}
	if opts.AutoCreatePartitions && ep.Database != "" {
		if err := sess.Exec(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteIdent(ep.Database)); err != nil {
			_ = sess.Close()
			return nil, mark("create database", err)
		}
	}

	// Blocks outlive the call that prepared them, so they are bound to the
	// connection's own context.
	base, cancel := context.WithCancel(context.Background())
	return &Connection{
		sess:        sess,
		endpoint:    ep,
		insertQuery: insertQuery(ep),
		base:        base,
		cancel:      cancel,
	}, nil
}

// txnSeq hands out transaction ids unique within the process.
var txnSeq atomic.Int64

func init() {
	txnSeq.Store(time.Now().UnixMilli() * 1000)
}

// Connection implements ports.Connection.
type Connection struct {
	sess        session
	endpoint    domain.Endpoint
	insertQuery string
	base        context.Context
	cancel      context.CancelFunc

	closeOnce sync.Once
	closeErr  error
}

// FetchTransactionBatch reserves count transaction ids bound to w.
func (c *Connection) FetchTransactionBatch(ctx context.Context, count int, w ports.RecordWriter) (ports.TransactionBatch, error) {
	if err := c.base.Err(); err != nil {
		return nil, fmt.Errorf("fetch txn batch: %w: connection closed", domain.ErrIO)
	}
	if count <= 0 {
		return nil, fmt.Errorf("fetch txn batch: %w: count must be positive, got %d", domain.ErrStreaming, count)
	}
	last := txnSeq.Add(int64(count))
	ids := make([]domain.TxnID, count)
	for i := range ids {
		ids[i] = domain.TxnID(last - int64(count) + int64(i) + 1)
	}
	return &TxnBatch{conn: c, writer: w, ids: ids, cur: domain.NoTxn}, nil
}

// Close ends the session. Later calls return the first result.
func (c *Connection) Close(ctx context.Context) error {
	c.closeOnce.Do(func() {
		c.cancel()
		if err := c.sess.Close(); err != nil {
			c.closeErr = mark("close connection", err)
		}
	})
	return c.closeErr
}

func insertQuery(ep domain.Endpoint) string {
	cols := make([]string, len(ep.Columns))
	for i, c := range ep.Columns {
		cols[i] = quoteIdent(c)
	}
	table := quoteIdent(ep.Table)
	if ep.Database != "" {
		table = quoteIdent(ep.Database) + "." + table
	}
	return fmt.Sprintf("INSERT INTO %s (%s)", table, strings.Join(cols, ", "))
}

func quoteIdent(s string) string {
	return "`" + strings.ReplaceAll(s, "`", "``") + "`"
}

// mark tags err with its failure class: server exceptions are streaming
// failures, everything else is I/O.
func mark(op string, err error) error {
	var ex *clickhouse.Exception
	if errors.As(err, &ex) {
		return fmt.Errorf("%s: %w: %w", op, domain.ErrStreaming, err)
	}
	if errors.Is(err, domain.ErrStreaming) || errors.Is(err, domain.ErrIO) {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s: %w: %w", op, domain.ErrIO, err)
}
