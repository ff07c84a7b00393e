package app

import (
	"context"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// connectionManager opens and closes the session behind a writer.
type connectionManager struct {
	exec      *Executor
	connector ports.Connector
	endpoint  domain.Endpoint
	opts      ports.ConnectOptions
	metrics   ports.Metrics
	logger    ports.Logger
}

// connect opens a session through the executor. Call failures come back
// as *domain.ConnectFailure; cancellation and panics pass through.
func (m *connectionManager) connect(ctx context.Context) (ports.Connection, error) {
	conn, err := Do(ctx, m.exec, "connect", func(ctx context.Context) (ports.Connection, error) {
		return m.connector.Connect(ctx, m.endpoint, m.opts)
	})
	if err != nil {
		if domain.IsCallFailure(err) {
			return nil, &domain.ConnectFailure{Endpoint: m.endpoint, Err: err}
		}
		return nil, err
	}
	return conn, nil
}

// close closes conn. Failures are logged and dropped; only cancellation is
// returned.
func (m *connectionManager) close(ctx context.Context, conn ports.Connection) error {
	if conn == nil {
		return nil
	}
	m.logger.Info("closing connection")
	err := m.exec.Run(ctx, "close connection", conn.Close)
	if err != nil {
		return suppress(m.logger, "error closing connection", err)
	}
	m.metrics.ConnectionClosed()
	return nil
}
