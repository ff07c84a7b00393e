package domain

import (
	"fmt"
	"strings"
)

// Endpoint identifies a target table, and optionally a static partition, in
// the remote storage service. Treat it as immutable once built.
type Endpoint struct {
	// Addrs lists host:port pairs of the storage service
	Addrs []string

	// Database is the database (schema) name
	Database string

	// Table is the destination table name
	Table string

	// Columns is the ordered column list rows are encoded into
	Columns []string

	// Partition holds static partition values, outermost first
	Partition []string
}

// NewEndpoint creates an Endpoint, copying the slices so later changes by the
// caller do not leak in.
func NewEndpoint(addrs []string, database, table string, columns, partition []string) Endpoint {
	return Endpoint{
		Addrs:     append([]string(nil), addrs...),
		Database:  database,
		Table:     table,
		Columns:   append([]string(nil), columns...),
		Partition: append([]string(nil), partition...),
	}
}

// QualifiedTable returns "database.table", or just the table when no
// database is set.
func (e Endpoint) QualifiedTable() string {
	if e.Database == "" {
		return e.Table
	}
	return e.Database + "." + e.Table
}

// Validate reports whether the endpoint has enough information to connect.
func (e Endpoint) Validate() error {
	if len(e.Addrs) == 0 {
		return fmt.Errorf("%w: endpoint has no address", ErrInvalidConfig)
	}
	if e.Table == "" {
		return fmt.Errorf("%w: endpoint has no table", ErrInvalidConfig)
	}
	return nil
}

// String renders the endpoint as db.table@addr[p1,p2].
func (e Endpoint) String() string {
	var b strings.Builder
	b.WriteString(e.QualifiedTable())
	if len(e.Addrs) > 0 {
		b.WriteString("@")
		b.WriteString(strings.Join(e.Addrs, ","))
	}
	if len(e.Partition) > 0 {
		b.WriteString("[")
		b.WriteString(strings.Join(e.Partition, ","))
		b.WriteString("]")
	}
	return b.String()
}
