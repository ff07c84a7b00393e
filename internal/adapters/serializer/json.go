package serializer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// JSON serializes records that are JSON objects. Top-level keys are
// matched to columns case-insensitively; unknown keys are ignored and
// missing ones become NULL.
type JSON struct{}

// NewJSON creates a JSON serializer.
func NewJSON() *JSON {
	return &JSON{}
}

func (*JSON) CreateRecordWriter(ep domain.Endpoint) (ports.RecordWriter, error) {
	idx, err := columnIndex(ep)
	if err != nil {
		return nil, err
	}
	return &jsonRowWriter{columns: len(ep.Columns), index: idx}, nil
}

func (*JSON) Write(ctx context.Context, batch ports.TransactionBatch, rec domain.Record) error {
	return writeRaw(ctx, batch, rec)
}

type jsonRowWriter struct {
	columns int
	index   map[string]int
}

func (w *jsonRowWriter) EncodeRow(payload []byte) ([]any, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil {
		return nil, fmt.Errorf("%w: decode json record: %w", domain.ErrStreaming, err)
	}
	if obj == nil {
		return nil, fmt.Errorf("%w: json record is not an object", domain.ErrStreaming)
	}

	row := make([]any, w.columns)
	for k, v := range obj {
		i, ok := w.index[strings.ToLower(k)]
		if !ok {
			continue
		}
		row[i] = normalize(v)
	}
	return row, nil
}

// normalize converts decoded values into types the storage driver accepts.
// Nested objects and arrays are stored as their JSON text.
func normalize(v any) any {
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i
		}
		if f, err := t.Float64(); err == nil {
			return f
		}
		return t.String()
	case map[string]any, []any:
		b, err := json.Marshal(t)
		if err != nil {
			return nil
		}
		return string(b)
	default:
		return v
	}
}
