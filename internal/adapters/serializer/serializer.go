// Package serializer turns raw record payloads into column values for an
// endpoint.
package serializer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// Serializer names accepted by New.
const (
	NameJSON      = "json"
	NameDelimited = "delimited"
)

// Options configures the delimited serializer. JSON ignores it.
type Options struct {
	// Delimiter separates fields in a delimited record; defaults to ","
	Delimiter string

	// FieldNames maps field positions to column names; "" skips a field
	FieldNames []string
}

// New returns the serializer registered under name (case-insensitive).
func New(name string, opts Options) (ports.Serializer, error) {
	switch strings.ToLower(name) {
	case NameJSON:
		return NewJSON(), nil
	case NameDelimited:
		return NewDelimited(opts.Delimiter, opts.FieldNames)
	default:
		return nil, fmt.Errorf("%w: unknown serializer %q", domain.ErrInvalidConfig, name)
	}
}

// writeRaw hands the payload to the batch, which encodes it with the
// record writer it was fetched with.
func writeRaw(ctx context.Context, batch ports.TransactionBatch, rec domain.Record) error {
	return batch.Write(ctx, rec.Payload)
}

// columnIndex maps lower-cased column names to their position.
func columnIndex(ep domain.Endpoint) (map[string]int, error) {
	if len(ep.Columns) == 0 {
		return nil, fmt.Errorf("%w: endpoint %s has no columns", domain.ErrInvalidConfig, ep)
	}
	idx := make(map[string]int, len(ep.Columns))
	for i, c := range ep.Columns {
		idx[strings.ToLower(c)] = i
	}
	return idx, nil
}
