// Package domain contains the core entities, value objects and error taxonomy
// of txnship.
//
// This package is the innermost layer. It has no dependencies on storage
// drivers, brokers or logging, and only describes what the rest of the code
// passes around.
//
// # Entities
//
//   - [Endpoint]: Target table (and static partition) in the storage service
//   - [Record]: One serialized event together with its source position
//   - [Batch]: Records accumulated for the current transaction
//   - [Checkpoint]: Persisted source position after the last commit
//
// # Errors
//
// Failures of remote calls are reported as [CallError] (timeout, I/O,
// streaming) and reclassified at each call site into [ConnectFailure],
// [WriteFailure] or [CommitFailure]. All of them work with errors.Is and
// errors.As.
package domain
