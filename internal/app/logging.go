package app

import "github.com/bft-labs/txnship/internal/ports"

// scopedLogger prepends fixed fields to every entry.
type scopedLogger struct {
	next   ports.Logger
	fields []ports.Field
}

func withFields(l ports.Logger, fields ...ports.Field) ports.Logger {
	if l == nil {
		l = nopLogger{}
	}
	return &scopedLogger{next: l, fields: fields}
}

func (l *scopedLogger) merge(fields []ports.Field) []ports.Field {
	out := make([]ports.Field, 0, len(l.fields)+len(fields))
	out = append(out, l.fields...)
	return append(out, fields...)
}

func (l *scopedLogger) Debug(msg string, fields ...ports.Field) {
	l.next.Debug(msg, l.merge(fields)...)
}

func (l *scopedLogger) Info(msg string, fields ...ports.Field) {
	l.next.Info(msg, l.merge(fields)...)
}

func (l *scopedLogger) Warn(msg string, fields ...ports.Field) {
	l.next.Warn(msg, l.merge(fields)...)
}

func (l *scopedLogger) Error(msg string, fields ...ports.Field) {
	l.next.Error(msg, l.merge(fields)...)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...ports.Field) {}
func (nopLogger) Info(string, ...ports.Field)  {}
func (nopLogger) Warn(string, ...ports.Field)  {}
func (nopLogger) Error(string, ...ports.Field) {}
