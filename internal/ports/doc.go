// Package ports defines the interfaces (ports) that connect the application
// layer to infrastructure adapters.
//
// The application core (internal/app) depends only on these interfaces.
// Adapters (internal/adapters) implement them with ClickHouse, NATS, the file
// system, OpenTelemetry and zerolog.
//
// # Port Interfaces
//
//   - [Connector], [Connection], [TransactionBatch]: The transactional
//     streaming session against the storage service
//   - [Serializer], [RecordWriter]: Encoding of records into rows
//   - [Metrics]: Fire-and-forget counters
//   - [RecordSource]: Where the pipeline stage pulls records from
//   - [CheckpointRepository]: Persists the source position after commits
//   - [Logger]: Structured logging abstraction
//
// Every method that may block on the network takes a context.Context. The
// core always calls them through its bounded call executor, which cancels
// that context when the call deadline passes; implementations should honor
// it where the underlying driver allows.
package ports
