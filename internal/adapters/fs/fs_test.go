package fs

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/txnship/internal/adapters/log"
	"github.com/bft-labs/txnship/internal/domain"
)

func TestCheckpointFileRepository_RoundTrip(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "state")
	repo := NewCheckpointFileRepository(dir)

	cp, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.True(t, cp.IsEmpty())

	want := domain.Checkpoint{Position: domain.Position{File: "0001.ndjson", Offset: 42}, LastTxnID: 9, Events: 3}
	want.LastCommitAt = time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	require.NoError(t, repo.Save(context.Background(), want))

	got, err := repo.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, want.Position, got.Position)
	assert.Equal(t, want.LastTxnID, got.LastTxnID)
	assert.True(t, want.LastCommitAt.Equal(got.LastCommitAt))

	_, err = os.Stat(repo.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err))
}

func TestCheckpointFileRepository_Corrupt(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, checkpointFileName), []byte("{"), 0o600))

	_, err := NewCheckpointFileRepository(dir).Load(context.Background())
	assert.Error(t, err)
}

func writeSpool(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o600))
}

func appendSpool(t *testing.T, dir, name, content string) {
	t.Helper()
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	_, err = f.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
}

func readAll(t *testing.T, src *SpoolSource) []domain.Record {
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

func payloads(recs []domain.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = string(r.Payload)
	}
	return out
}

func TestSpoolSource_ReadsFilesInOrder(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, "0002.ndjson", "c\n")
	writeSpool(t, dir, "0001.ndjson", "a\n\nb\n")
	writeSpool(t, dir, "ignored.txt", "x\n")

	src := NewSpoolSource(dir, false, log.NewNoopLogger())
	require.NoError(t, src.Open(context.Background(), domain.Checkpoint{}))
	defer src.Close()

	recs := readAll(t, src)
	assert.Equal(t, []string{"a", "b", "c"}, payloads(recs))
	assert.Equal(t, domain.Position{File: "0001.ndjson", Offset: 5}, recs[1].Position)
	assert.Equal(t, domain.Position{File: "0002.ndjson", Offset: 2}, recs[2].Position)
}

func TestSpoolSource_PartialLineWaitsForNewline(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, "0001.ndjson", "a\nhal")

	src := NewSpoolSource(dir, false, log.NewNoopLogger())
	require.NoError(t, src.Open(context.Background(), domain.Checkpoint{}))
	defer src.Close()

	assert.Equal(t, []string{"a"}, payloads(readAll(t, src)))

	appendSpool(t, dir, "0001.ndjson", "f\n")
	assert.Equal(t, []string{"half"}, payloads(readAll(t, src)))
}

func TestSpoolSource_ResumesFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, "0001.ndjson", "a\nb\nc\n")

	src := NewSpoolSource(dir, false, log.NewNoopLogger())
	cp := domain.Checkpoint{Position: domain.Position{File: "0001.ndjson", Offset: 2}}
	require.NoError(t, src.Open(context.Background(), cp))
	defer src.Close()

	assert.Equal(t, []string{"b", "c"}, payloads(readAll(t, src)))
}

func TestSpoolSource_ReopenReplaysFromCheckpoint(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, "0001.ndjson", "a\nb\n")
	writeSpool(t, dir, "0002.ndjson", "c\n")

	tests := []struct {
		name string
		cp   domain.Checkpoint
		want []string
	}{
		{"empty checkpoint", domain.Checkpoint{}, []string{"a", "b", "c"}},
		{"mid file", domain.Checkpoint{Position: domain.Position{File: "0001.ndjson", Offset: 2}}, []string{"b", "c"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewSpoolSource(dir, false, log.NewNoopLogger())
			require.NoError(t, src.Open(context.Background(), tt.cp))
			defer src.Close()
			assert.Equal(t, tt.want, payloads(readAll(t, src)))

			require.NoError(t, src.Close())
			require.NoError(t, src.Open(context.Background(), tt.cp))
			assert.Equal(t, tt.want, payloads(readAll(t, src)))

			// Reopening without a Close in between behaves the same.
			require.NoError(t, src.Open(context.Background(), tt.cp))
			assert.Equal(t, tt.want, payloads(readAll(t, src)))
		})
	}
}

func TestSpoolSource_MissingCheckpointFileSkipsAhead(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, "0001.ndjson", "old\n")
	writeSpool(t, dir, "0003.ndjson", "new\n")

	src := NewSpoolSource(dir, false, log.NewNoopLogger())
	cp := domain.Checkpoint{Position: domain.Position{File: "0002.ndjson", Offset: 10}}
	require.NoError(t, src.Open(context.Background(), cp))
	defer src.Close()

	assert.Equal(t, []string{"new"}, payloads(readAll(t, src)))
}

func TestSpoolSource_AckRemovesCommittedFiles(t *testing.T) {
	dir := t.TempDir()
	writeSpool(t, dir, "0001.ndjson", "a\n")
	writeSpool(t, dir, "0002.ndjson", "b\n")

	src := NewSpoolSource(dir, true, log.NewNoopLogger())
	require.NoError(t, src.Open(context.Background(), domain.Checkpoint{}))
	defer src.Close()

	recs := readAll(t, src)
	require.NoError(t, src.Ack(context.Background(), recs[1].Position))

	names, err := spoolFiles(dir)
	require.NoError(t, err)
	assert.Equal(t, []string{"0002.ndjson"}, names)
}

func TestSpoolSource_WaitWakesOnWrite(t *testing.T) {
	dir := t.TempDir()
	src := NewSpoolSource(dir, false, log.NewNoopLogger())
	require.NoError(t, src.Open(context.Background(), domain.Checkpoint{}))
	defer src.Close()

	_, err := src.Next(context.Background())
	assert.ErrorIs(t, err, domain.ErrEndOfSource)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_ = os.WriteFile(filepath.Join(dir, "0001.ndjson"), []byte("a\n"), 0o600)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, src.Wait(ctx))
	require.Eventually(t, func() bool {
		rec, err := src.Next(context.Background())
		return err == nil && string(rec.Payload) == "a"
	}, time.Second, 10*time.Millisecond)
}

func TestSpoolSource_OpenMissingDir(t *testing.T) {
	src := NewSpoolSource(filepath.Join(t.TempDir(), "nope"), false, log.NewNoopLogger())
	assert.Error(t, src.Open(context.Background(), domain.Checkpoint{}))
}
