package txnship

import (
	"time"

	"github.com/bft-labs/txnship/internal/app"
	"github.com/bft-labs/txnship/internal/domain"
)

// State is the lifecycle state of a Service.
type State int

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
	StateCrashed
)

func (s State) String() string {
	return toAppState(s).String()
}

// StateChangeEvent is emitted on every lifecycle transition.
type StateChangeEvent struct {
	Previous State
	Current  State
	Reason   string
}

// CommitEvent is emitted after a transaction commits and the checkpoint is
// saved.
type CommitEvent struct {
	TxnID    int64
	Events   int
	Bytes    int
	Duration time.Duration
}

// FailureEvent is emitted when a transaction is abandoned. Its records are
// replayed from the last checkpoint.
type FailureEvent struct {
	Error  error
	Events int
}

// EventHandler receives service events. Calls are synchronous with the sink
// loop and should return quickly.
type EventHandler interface {
	OnStateChange(StateChangeEvent)
	OnCommit(CommitEvent)
	OnFailure(FailureEvent)
}

// BaseEventHandler implements EventHandler with no-ops. Embed it to handle
// only some events.
type BaseEventHandler struct{}

func (BaseEventHandler) OnStateChange(StateChangeEvent) {}
func (BaseEventHandler) OnCommit(CommitEvent)           {}
func (BaseEventHandler) OnFailure(FailureEvent)         {}

// eventEmitterWrapper adapts EventHandler to the internal emitter interfaces.
type eventEmitterWrapper struct {
	handler EventHandler
}

func (e *eventEmitterWrapper) OnStateChange(previous, current app.State, reason string) {
	if e.handler == nil {
		return
	}
	e.handler.OnStateChange(StateChangeEvent{
		Previous: convertState(previous),
		Current:  convertState(current),
		Reason:   reason,
	})
}

func (e *eventEmitterWrapper) OnCommit(txn domain.TxnID, events, bytes int, duration time.Duration) {
	if e.handler == nil {
		return
	}
	e.handler.OnCommit(CommitEvent{
		TxnID:    int64(txn),
		Events:   events,
		Bytes:    bytes,
		Duration: duration,
	})
}

func (e *eventEmitterWrapper) OnTxnFailure(err error, events int) {
	if e.handler == nil {
		return
	}
	e.handler.OnFailure(FailureEvent{Error: err, Events: events})
}

func convertState(s app.State) State {
	switch s {
	case app.StateStarting:
		return StateStarting
	case app.StateRunning:
		return StateRunning
	case app.StateStopping:
		return StateStopping
	case app.StateCrashed:
		return StateCrashed
	default:
		return StateStopped
	}
}

func toAppState(s State) app.State {
	switch s {
	case StateStarting:
		return app.StateStarting
	case StateRunning:
		return app.StateRunning
	case StateStopping:
		return app.StateStopping
	case StateCrashed:
		return app.StateCrashed
	default:
		return app.StateStopped
	}
}
