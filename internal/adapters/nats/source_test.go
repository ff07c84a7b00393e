package nats_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	natsTest "github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/txnship/internal/adapters/log"
	natsSource "github.com/bft-labs/txnship/internal/adapters/nats"
	"github.com/bft-labs/txnship/internal/domain"
)

func setupNATSServer(t *testing.T) (*server.Server, jetstream.JetStream) {
	t.Helper()

	natsServer := natsTest.RunServer(&server.Options{
		Host:      "127.0.0.1",
		Port:      -1,
		NoLog:     true,
		NoSigs:    true,
		JetStream: true,
		StoreDir:  t.TempDir(),
	})
	t.Cleanup(natsServer.Shutdown)

	nc, err := nats.Connect(natsServer.ClientURL())
	require.NoError(t, err)
	t.Cleanup(nc.Close)

	js, err := jetstream.New(nc)
	require.NoError(t, err)

	_, err = js.CreateStream(context.Background(), jetstream.StreamConfig{
		Name:     "events",
		Subjects: []string{"events.>"},
		Storage:  jetstream.MemoryStorage,
	})
	require.NoError(t, err)
	return natsServer, js
}

func publish(t *testing.T, js jetstream.JetStream, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := js.Publish(context.Background(), "events.app", []byte(fmt.Sprintf(`{"n":%d}`, i)))
		require.NoError(t, err)
	}
}

func newSource(srv *server.Server) *natsSource.Source {
	return natsSource.NewSource(natsSource.Config{
		URL:       srv.ClientURL(),
		Stream:    "events",
		Subject:   "events.>",
		Durable:   "txnship",
		FetchSize: 10,
		FetchWait: 100 * time.Millisecond,
		AckWait:   30 * time.Second,
	}, log.NewNoopLogger())
}

func drain(t *testing.T, src *natsSource.Source) []domain.Record {
	t.Helper()
	var out []domain.Record
	for {
		rec, err := src.Next(context.Background())
		if err == domain.ErrEndOfSource {
			return out
		}
		require.NoError(t, err)
		out = append(out, rec)
	}
}

func TestSource_ReadAndAck(t *testing.T) {
	srv, js := setupNATSServer(t)
	publish(t, js, 5)

	src := newSource(srv)
	require.NoError(t, src.Open(context.Background(), domain.Checkpoint{}))

	recs := drain(t, src)
	require.Len(t, recs, 5)
	assert.EqualValues(t, 1, recs[0].Position.Sequence)
	assert.Equal(t, `{"n":4}`, string(recs[4].Payload))

	require.NoError(t, src.Ack(context.Background(), recs[4].Position))
	require.NoError(t, src.Close())

	// Everything was acknowledged, so a new session sees nothing.
	require.NoError(t, src.Open(context.Background(), domain.Checkpoint{}))
	assert.Empty(t, drain(t, src))
	require.NoError(t, src.Close())
}

func TestSource_CloseRedeliversUncommitted(t *testing.T) {
	srv, js := setupNATSServer(t)
	publish(t, js, 4)

	src := newSource(srv)
	require.NoError(t, src.Open(context.Background(), domain.Checkpoint{}))
	recs := drain(t, src)
	require.Len(t, recs, 4)
	require.NoError(t, src.Ack(context.Background(), recs[1].Position))
	require.NoError(t, src.Close())

	require.NoError(t, src.Open(context.Background(), domain.Checkpoint{Position: recs[1].Position}))
	var replayed []domain.Record
	require.Eventually(t, func() bool {
		replayed = append(replayed, drain(t, src)...)
		return len(replayed) == 2
	}, 5*time.Second, 50*time.Millisecond)
	assert.EqualValues(t, 3, replayed[0].Position.Sequence)
	require.NoError(t, src.Close())
}
