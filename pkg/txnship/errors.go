package txnship

import "github.com/bft-labs/txnship/internal/domain"

// Errors returned by the service and surfaced in events. Match them with
// errors.Is.
var (
	ErrAlreadyRunning  = domain.ErrAlreadyRunning
	ErrNotRunning      = domain.ErrNotRunning
	ErrShutdownTimeout = domain.ErrShutdownTimeout
	ErrInvalidConfig   = domain.ErrInvalidConfig

	ErrTimeout   = domain.ErrTimeout
	ErrIO        = domain.ErrIO
	ErrStreaming = domain.ErrStreaming
	ErrConnect   = domain.ErrConnect
	ErrWrite     = domain.ErrWrite
	ErrCommit    = domain.ErrCommit
	ErrRotation  = domain.ErrRotation
)

// CallError describes a remote call that timed out or failed.
type CallError = domain.CallError
