package ports

// Metrics receives fire-and-forget counters. Nothing the core does depends on
// what an implementation does with them.
type Metrics interface {
	// WriteAttempted counts a record write attempt.
	WriteAttempted()

	// ConnectionClosed counts a connection closed without error.
	ConnectionClosed()

	// ConnectionFailed counts a timed-out or failed remote call.
	ConnectionFailed()

	// BatchCompleted counts an exhausted and closed transaction batch.
	BatchCompleted()

	// EventsDrained counts records that were committed.
	EventsDrained(n int)
}
