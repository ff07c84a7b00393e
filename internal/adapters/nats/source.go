// Package nats reads records from a NATS JetStream stream.
package nats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// Source defaults.
const (
	DefaultFetchSize = 100
	DefaultFetchWait = time.Second
	DefaultAckWait   = time.Minute
)

// Config selects the stream and durable consumer to read.
type Config struct {
	URL     string
	Stream  string
	Subject string
	Durable string

	FetchSize int
	FetchWait time.Duration
	AckWait   time.Duration
}

// Source implements ports.RecordSource over a durable AckAll consumer.
// Messages stay unacknowledged until the transaction holding them commits.
type Source struct {
	cfg    Config
	logger ports.Logger

	nc       *nats.Conn
	consumer jetstream.Consumer

	// committed is the last stream sequence known to be committed
	committed uint64
	buffered  []jetstream.Msg
	unacked   []jetstream.Msg
}

// NewSource creates a source. Nothing is dialed until Open.
func NewSource(cfg Config, logger ports.Logger) *Source {
	if cfg.FetchSize <= 0 {
		cfg.FetchSize = DefaultFetchSize
	}
	if cfg.FetchWait <= 0 {
		cfg.FetchWait = DefaultFetchWait
	}
	if cfg.AckWait <= 0 {
		cfg.AckWait = DefaultAckWait
	}
	return &Source{cfg: cfg, logger: logger}
}

// Open connects and binds the durable consumer. Redeliveries at or below
// the checkpoint's sequence are acknowledged and skipped.
func (s *Source) Open(ctx context.Context, cp domain.Checkpoint) error {
	nc, err := nats.Connect(s.cfg.URL, nats.Name("txnship"))
	if err != nil {
		return fmt.Errorf("connect to nats: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return fmt.Errorf("create jetstream context: %w", err)
	}

	consumer, err := js.CreateOrUpdateConsumer(ctx, s.cfg.Stream, jetstream.ConsumerConfig{
		Durable:       s.cfg.Durable,
		FilterSubject: s.cfg.Subject,
		AckPolicy:     jetstream.AckAllPolicy,
		AckWait:       s.cfg.AckWait,
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("bind consumer %s on %s: %w", s.cfg.Durable, s.cfg.Stream, err)
	}

	s.nc = nc
	s.consumer = consumer
	s.committed = cp.Position.Sequence
	s.buffered = nil
	s.unacked = nil
	return nil
}

// Next returns the next message, fetching a new batch when the buffer is
// empty. Returns domain.ErrEndOfSource when the fetch came back empty.
func (s *Source) Next(ctx context.Context) (domain.Record, error) {
	for {
		if len(s.buffered) == 0 {
			if err := s.fetch(ctx); err != nil {
				return domain.Record{}, err
			}
		}

		msg := s.buffered[0]
		s.buffered = s.buffered[1:]

		md, err := msg.Metadata()
		if err != nil {
			return domain.Record{}, fmt.Errorf("message metadata: %w", err)
		}
		seq := md.Sequence.Stream
		if seq <= s.committed {
			// Committed before a crash but never acknowledged.
			if err := msg.Ack(); err != nil {
				s.logger.Warn("ack of committed redelivery failed", ports.Err(err))
			}
			continue
		}

		s.unacked = append(s.unacked, msg)
		return domain.Record{
			Payload:    msg.Data(),
			Position:   domain.Position{Sequence: seq},
			ReceivedAt: md.Timestamp,
		}, nil
	}
}

func (s *Source) fetch(ctx context.Context) error {
	if s.consumer == nil {
		return errors.New("nats source not open")
	}
	batch, err := s.consumer.Fetch(s.cfg.FetchSize, jetstream.FetchMaxWait(s.cfg.FetchWait))
	if err != nil {
		return fmt.Errorf("fetch: %w", err)
	}
	for msg := range batch.Messages() {
		if msg == nil {
			break
		}
		s.buffered = append(s.buffered, msg)
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if len(s.buffered) > 0 {
		return nil
	}
	if err := batch.Error(); err != nil && !errors.Is(err, nats.ErrTimeout) && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("fetch messages: %w", err)
	}
	return domain.ErrEndOfSource
}

// Wait returns at once; Next already long-polls the server.
func (s *Source) Wait(ctx context.Context) error {
	return ctx.Err()
}

// Ack acknowledges every delivered message up to pos.Sequence with a
// single AckAll on the last one.
func (s *Source) Ack(ctx context.Context, pos domain.Position) error {
	last := -1
	for i, msg := range s.unacked {
		md, err := msg.Metadata()
		if err != nil {
			continue
		}
		if md.Sequence.Stream <= pos.Sequence {
			last = i
		}
	}
	if pos.Sequence > s.committed {
		s.committed = pos.Sequence
	}
	if last < 0 {
		return nil
	}

	msg := s.unacked[last]
	err := retry.Do(
		func() error {
			return msg.Ack()
		},
		retry.Context(ctx),
		retry.Attempts(3),
		retry.DelayType(retry.FixedDelay),
	)
	if err != nil {
		return fmt.Errorf("acknowledge messages: %w", err)
	}
	s.unacked = s.unacked[last+1:]
	return nil
}

// Close asks the server to redeliver everything not yet acknowledged and
// drops the connection.
func (s *Source) Close() error {
	for _, msg := range append(s.unacked, s.buffered...) {
		if err := msg.Nak(); err != nil {
			s.logger.Debug("nak failed", ports.Err(err))
		}
	}
	s.unacked = nil
	s.buffered = nil
	if s.nc != nil {
		s.nc.Close()
		s.nc = nil
	}
	s.consumer = nil
	return nil
}
