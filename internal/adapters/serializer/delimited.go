package serializer

import (
	"context"
	"fmt"
	"strings"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// DefaultDelimiter separates fields when none is configured.
const DefaultDelimiter = ","

// Delimited serializes records made of delimiter-separated text fields.
type Delimited struct {
	delimiter  string
	fieldNames []string
}

// NewDelimited creates a delimited serializer. fieldNames[i] is the column
// receiving the i-th field; an empty name drops that field.
func NewDelimited(delimiter string, fieldNames []string) (*Delimited, error) {
	if delimiter == "" {
		delimiter = DefaultDelimiter
	}
	if len(fieldNames) == 0 {
		return nil, fmt.Errorf("%w: delimited serializer needs field names", domain.ErrInvalidConfig)
	}
	return &Delimited{
		delimiter:  unescape(delimiter),
		fieldNames: append([]string(nil), fieldNames...),
	}, nil
}

func (d *Delimited) CreateRecordWriter(ep domain.Endpoint) (ports.RecordWriter, error) {
	idx, err := columnIndex(ep)
	if err != nil {
		return nil, err
	}

	// target[i] is the column of field i, or -1
	target := make([]int, len(d.fieldNames))
	for i, name := range d.fieldNames {
		name = strings.TrimSpace(name)
		if name == "" {
			target[i] = -1
			continue
		}
		col, ok := idx[strings.ToLower(name)]
		if !ok {
			return nil, fmt.Errorf("%w: field %q is not a column of %s", domain.ErrInvalidConfig, name, ep)
		}
		target[i] = col
	}
	return &delimitedRowWriter{delimiter: d.delimiter, target: target, columns: len(ep.Columns)}, nil
}

func (d *Delimited) Write(ctx context.Context, batch ports.TransactionBatch, rec domain.Record) error {
	return writeRaw(ctx, batch, rec)
}

type delimitedRowWriter struct {
	delimiter string
	target    []int
	columns   int
}

func (w *delimitedRowWriter) EncodeRow(payload []byte) ([]any, error) {
	fields := strings.Split(string(payload), w.delimiter)
	row := make([]any, w.columns)
	for i, f := range fields {
		if i >= len(w.target) {
			break
		}
		if col := w.target[i]; col >= 0 {
			row[col] = f
		}
	}
	return row, nil
}

// unescape accepts the usual escaped forms of non-printable separators.
func unescape(s string) string {
	switch s {
	case `\t`:
		return "\t"
	case `\001`, `\u0001`:
		return "\x01"
	}
	return s
}
