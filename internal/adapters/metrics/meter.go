// Package metrics reports writer counters through OpenTelemetry.
package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/bft-labs/txnship"

// Meter implements ports.Metrics with OpenTelemetry counters. Every data
// point carries the endpoint it was recorded for.
type Meter struct {
	writeAttempts      metric.Int64Counter
	connectionsClosed  metric.Int64Counter
	connectionFailures metric.Int64Counter
	batchesCompleted   metric.Int64Counter
	eventsDrained      metric.Int64Counter

	attrs metric.MeasurementOption
}

// NewMeter creates the counters on mp for endpoint.
func NewMeter(mp metric.MeterProvider, endpoint string) (*Meter, error) {
	meter := mp.Meter(instrumentationName)
	m := &Meter{
		attrs: metric.WithAttributeSet(attribute.NewSet(attribute.String("endpoint", endpoint))),
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.writeAttempts, "txnship_write_attempts_total", "Records handed to a transaction"},
		{&m.connectionsClosed, "txnship_connections_closed_total", "Connections closed cleanly"},
		{&m.connectionFailures, "txnship_connection_failures_total", "Remote calls that timed out or failed"},
		{&m.batchesCompleted, "txnship_batches_completed_total", "Transaction batches exhausted and closed"},
		{&m.eventsDrained, "txnship_events_drained_total", "Records committed"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", c.name, err)
		}
		*c.dst = counter
	}
	return m, nil
}

func (m *Meter) WriteAttempted() {
	m.writeAttempts.Add(context.Background(), 1, m.attrs)
}

func (m *Meter) ConnectionClosed() {
	m.connectionsClosed.Add(context.Background(), 1, m.attrs)
}

func (m *Meter) ConnectionFailed() {
	m.connectionFailures.Add(context.Background(), 1, m.attrs)
}

func (m *Meter) BatchCompleted() {
	m.batchesCompleted.Add(context.Background(), 1, m.attrs)
}

func (m *Meter) EventsDrained(n int) {
	m.eventsDrained.Add(context.Background(), int64(n), m.attrs)
}

// Noop implements ports.Metrics by discarding everything.
type Noop struct{}

func (Noop) WriteAttempted()   {}
func (Noop) ConnectionClosed() {}
func (Noop) ConnectionFailed() {}
func (Noop) BatchCompleted()   {}
func (Noop) EventsDrained(int) {}
