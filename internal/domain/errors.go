package domain

import (
	"errors"
	"fmt"
	"time"
)

// Lifecycle and state errors. These are returned by the public API and can be
// checked with errors.Is.
var (
	// ErrAlreadyRunning is returned when Start() is called on a running instance.
	ErrAlreadyRunning = errors.New("txnship: already running")

	// ErrNotRunning is returned when Stop() is called on a stopped instance.
	ErrNotRunning = errors.New("txnship: not running")

	// ErrShutdownTimeout is returned when graceful shutdown times out.
	ErrShutdownTimeout = errors.New("txnship: shutdown timeout")

	// ErrInvalidConfig is returned when configuration validation fails.
	ErrInvalidConfig = errors.New("txnship: invalid configuration")

	// ErrWriterClosed is returned by Write and Flush after Close.
	ErrWriterClosed = errors.New("txnship: writer closed")

	// ErrNoActiveBatch is returned when the writer has no transaction batch,
	// which happens after a batch was exhausted without rolling or after a
	// failed rotation.
	ErrNoActiveBatch = errors.New("txnship: no active transaction batch")

	// ErrRotation is returned by Flush when the transaction committed but
	// the writer could not move on to the next one. The commit stands.
	ErrRotation = errors.New("txnship: txn committed, rotation failed")

	// ErrEndOfSource is returned by sources that have nothing more to read.
	ErrEndOfSource = errors.New("txnship: end of source")
)

// Failure classes. Collaborators mark their errors with ErrIO or ErrStreaming
// (fmt.Errorf("...: %w: %w", ErrIO, err)); the call executor reports them as
// a *CallError of the matching Kind.
var (
	// ErrTimeout matches a call that did not finish before its deadline.
	ErrTimeout = errors.New("call timed out")

	// ErrIO matches I/O-class failures.
	ErrIO = errors.New("i/o failure")

	// ErrStreaming matches protocol or service-class failures.
	ErrStreaming = errors.New("streaming failure")
)

// Call-site failures.
var (
	// ErrConnect matches any *ConnectFailure.
	ErrConnect = errors.New("connect failure")

	// ErrWrite matches any *WriteFailure.
	ErrWrite = errors.New("write failure")

	// ErrCommit matches any *CommitFailure.
	ErrCommit = errors.New("commit failure")
)

// Kind is the class of a failed bounded call.
type Kind uint8

const (
	KindTimeout Kind = iota + 1
	KindIO
	KindStreaming
)

// String returns a human-readable representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindTimeout:
		return "timeout"
	case KindIO:
		return "io"
	case KindStreaming:
		return "streaming"
	default:
		return "unknown"
	}
}

// CallError is returned by the call executor when a unit of work timed out
// or failed.
type CallError struct {
	Kind Kind

	// Op names the remote operation, e.g. "commit"
	Op string

	// Endpoint is the rendered endpoint the call was made against
	Endpoint string

	// Timeout is the deadline that applied to the call (0 means none)
	Timeout time.Duration

	// Err is the cause; nil for a plain timeout
	Err error
}

func (e *CallError) Error() string {
	switch {
	case e.Kind == KindTimeout:
		return fmt.Sprintf("%s on endpoint %s timed out after %s", e.Op, e.Endpoint, e.Timeout)
	case e.Err != nil:
		return fmt.Sprintf("%s on endpoint %s: %s: %v", e.Op, e.Endpoint, e.Kind, e.Err)
	default:
		return fmt.Sprintf("%s on endpoint %s: %s", e.Op, e.Endpoint, e.Kind)
	}
}

func (e *CallError) Unwrap() error { return e.Err }

// Is matches the class sentinels. An I/O-class timeout (batch acquisition)
// matches both ErrIO and ErrTimeout.
func (e *CallError) Is(target error) bool {
	switch target {
	case ErrTimeout:
		return e.Kind == KindTimeout || errors.Is(e.Err, ErrTimeout)
	case ErrIO:
		return e.Kind == KindIO
	case ErrStreaming:
		return e.Kind == KindStreaming
	}
	return false
}

// ConnectFailure is returned when a connection to an endpoint could not be
// established. It is fatal to writer construction.
type ConnectFailure struct {
	Endpoint Endpoint
	Err      error
}

func (e *ConnectFailure) Error() string {
	return fmt.Sprintf("failed connecting to endpoint %s: %v", e.Endpoint, e.Err)
}

func (e *ConnectFailure) Unwrap() error { return e.Err }

func (e *ConnectFailure) Is(target error) bool { return target == ErrConnect }

// WriteFailure is returned when a record could not be written into the
// current transaction. The transaction should be considered suspect.
type WriteFailure struct {
	Endpoint Endpoint
	TxnID    TxnID
	Err      error
}

func (e *WriteFailure) Error() string {
	return fmt.Sprintf("failed writing to %s, txn %d: %v", e.Endpoint, e.TxnID, e.Err)
}

func (e *WriteFailure) Unwrap() error { return e.Err }

func (e *WriteFailure) Is(target error) bool { return target == ErrWrite }

// CommitFailure is returned when the current transaction could not be
// committed. The batch should be considered suspect.
type CommitFailure struct {
	Endpoint Endpoint
	TxnID    TxnID
	Err      error
}

func (e *CommitFailure) Error() string {
	return fmt.Sprintf("commit of txn %d failed on endpoint %s: %v", e.TxnID, e.Endpoint, e.Err)
}

func (e *CommitFailure) Unwrap() error { return e.Err }

func (e *CommitFailure) Is(target error) bool { return target == ErrCommit }

// IsCallFailure reports whether err is a timeout, I/O or streaming failure
// of a bounded call, i.e. anything the call sites reclassify.
func IsCallFailure(err error) bool {
	var ce *CallError
	return errors.As(err, &ce)
}
