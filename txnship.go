// Package txnship commits records into ClickHouse in transactions, resuming
// from a checkpoint after restarts and replaying failed transactions.
//
// Example usage:
//
//	svc, err := txnship.New(txnship.Config{
//	    Addrs:    []string{"127.0.0.1:9000"},
//	    Table:    "events",
//	    Columns:  []string{"ts", "body"},
//	    SpoolDir: "/var/spool/txnship",
//	    Once:     true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
package txnship

import (
	service "github.com/bft-labs/txnship/pkg/txnship"
)

// Config describes one sink. See pkg/txnship for the full option set.
type Config = service.Config

// Service is a running sink.
type Service = service.Service

// Option configures optional behavior of a Service.
type Option = service.Option

// New creates a Service in the stopped state.
func New(cfg Config, opts ...Option) (*Service, error) {
	return service.New(cfg, opts...)
}
