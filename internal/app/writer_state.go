package app

// WriterState is the lifecycle state of a Writer.
type WriterState int

const (
	WriterConnecting WriterState = iota
	WriterActive
	WriterRotating
	WriterExhausted
	WriterClosed
)

// String returns a human-readable representation of the state.
func (s WriterState) String() string {
	switch s {
	case WriterConnecting:
		return "Connecting"
	case WriterActive:
		return "Active"
	case WriterRotating:
		return "Rotating"
	case WriterExhausted:
		return "Exhausted"
	case WriterClosed:
		return "Closed"
	default:
		return "Unknown"
	}
}

// canTransitionTo reports whether moving from s to next is a legal step.
// Close is legal from everywhere, including Closed itself.
func (s WriterState) canTransitionTo(next WriterState) bool {
	if next == WriterClosed {
		return true
	}
	switch s {
	case WriterConnecting:
		return next == WriterActive
	case WriterActive:
		return next == WriterRotating || next == WriterActive
	case WriterRotating:
		return next == WriterActive || next == WriterExhausted
	case WriterExhausted:
		return next == WriterActive
	}
	return false
}
