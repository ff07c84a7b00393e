// Package txnship provides an embeddable sink that commits records into
// ClickHouse in transactions.
//
// Records are read from a spool directory of newline-delimited files or a
// NATS JetStream consumer, written into the current transaction of a reserved
// transaction batch and committed when the transaction is full or stale.
// After every commit the position is checkpointed, so a restart resumes
// where the last commit left off and a failed transaction is replayed.
//
// # Basic Usage
//
//	cfg := txnship.Config{
//	    Addrs:    []string{"127.0.0.1:9000"},
//	    Table:    "events",
//	    Columns:  []string{"ts", "body"},
//	    SpoolDir: "/var/spool/txnship",
//	}
//
//	svc, err := txnship.New(cfg, txnship.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := svc.Start(ctx); err != nil {
//	    log.Fatal(err)
//	}
//
//	// ... run until shutdown signal ...
//
//	if err := svc.Stop(); err != nil {
//	    log.Printf("shutdown error: %v", err)
//	}
//
// # Remote Calls
//
// Every remote call runs on a bounded pool and is abandoned after
// Config.CallTimeout. A timed-out or failed call surfaces as a
// *domain.CallError classed as timeout, I/O or streaming. Heartbeats, aborts
// and closes never fail the caller; their errors are logged.
//
// # Lifecycle States
//
// A Service is in one of [StateStopped], [StateStarting], [StateRunning],
// [StateStopping] or [StateCrashed]. Use [Service.Status] to query it and
// [WithEventHandler] to be told about transitions and commits.
package txnship
