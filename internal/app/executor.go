package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bft-labs/txnship/internal/domain"
	"github.com/bft-labs/txnship/internal/ports"
)

// Executor runs blocking collaborator calls on a CallPool under a deadline
// and maps their failures into the domain error taxonomy.
//
// A call ends in exactly one of:
//   - success;
//   - *domain.CallError (timeout, I/O or streaming), counted once as a
//     connection failure;
//   - the caller's ctx.Err() when the caller's context was cancelled while
//     waiting, returned unchanged and never counted;
//   - a panic inside the work, re-raised on the caller's goroutine.
type Executor struct {
	pool     *CallPool
	timeout  time.Duration
	endpoint string
	metrics  ports.Metrics
}

// NewExecutor creates an executor for calls against ep.
// A timeout <= 0 means calls wait without a deadline.
func NewExecutor(pool *CallPool, timeout time.Duration, ep domain.Endpoint, metrics ports.Metrics) *Executor {
	if pool == nil {
		pool = NewCallPool(DefaultCallPoolSize)
	}
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Executor{
		pool:     pool,
		timeout:  timeout,
		endpoint: ep.String(),
		metrics:  metrics,
	}
}

// Timeout returns the per-call deadline.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run is Do for work without a result.
func (e *Executor) Run(ctx context.Context, op string, fn func(context.Context) error) error {
	_, err := Do(ctx, e, op, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// Do runs fn under the deadline. Work failures surface as KindStreaming
// (an I/O cause stays reachable through errors.Is), deadline expiry as
// KindTimeout.
func Do[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	res := execute(ctx, e, fn)
	switch res.outcome {
	case outcomeOK:
		return res.value, nil
	case outcomeCancelled:
		return res.value, res.err
	case outcomeTimeout:
		e.metrics.ConnectionFailed()
		return res.value, &domain.CallError{
			Kind:     domain.KindTimeout,
			Op:       op,
			Endpoint: e.endpoint,
			Timeout:  e.timeout,
		}
	default:
		e.metrics.ConnectionFailed()
		return res.value, &domain.CallError{
			Kind:     domain.KindStreaming,
			Op:       op,
			Endpoint: e.endpoint,
			Timeout:  e.timeout,
			Err:      res.err,
		}
	}
}

// DoIO runs fn under the deadline and reports every failure, deadline
// expiry included, as KindIO.
func DoIO[T any](ctx context.Context, e *Executor, op string, fn func(context.Context) (T, error)) (T, error) {
	res := execute(ctx, e, fn)
	switch res.outcome {
	case outcomeOK:
		return res.value, nil
	case outcomeCancelled:
		return res.value, res.err
	case outcomeTimeout:
		e.metrics.ConnectionFailed()
		return res.value, &domain.CallError{
			Kind:     domain.KindIO,
			Op:       op,
			Endpoint: e.endpoint,
			Timeout:  e.timeout,
			Err:      fmt.Errorf("%w after %s", domain.ErrTimeout, e.timeout),
		}
	default:
		e.metrics.ConnectionFailed()
		return res.value, &domain.CallError{
			Kind:     domain.KindIO,
			Op:       op,
			Endpoint: e.endpoint,
			Timeout:  e.timeout,
			Err:      res.err,
		}
	}
}

type outcome uint8

const (
	outcomeOK outcome = iota
	outcomeFailed
	outcomeTimeout
	outcomeCancelled
)

type callResult[T any] struct {
	outcome outcome
	value   T
	err     error
}

type workResult[T any] struct {
	value    T
	err      error
	panicked bool
	panicVal any
}

func execute[T any](ctx context.Context, e *Executor, fn func(context.Context) (T, error)) callResult[T] {
	if err := ctx.Err(); err != nil {
		return callResult[T]{outcome: outcomeCancelled, err: err}
	}

	var (
		callCtx context.Context
		cancel  context.CancelFunc
	)
	if e.timeout > 0 {
		callCtx, cancel = context.WithTimeout(ctx, e.timeout)
	} else {
		callCtx, cancel = context.WithCancel(ctx)
	}
	// Cancelling callCtx is the best-effort stop signal for work that is
	// still running when we return.
	defer cancel()

	done := make(chan workResult[T], 1)
	err := e.pool.submit(callCtx, func() {
		var res workResult[T]
		defer func() {
			if r := recover(); r != nil {
				res = workResult[T]{panicked: true, panicVal: r}
			}
			done <- res
		}()
		res.value, res.err = fn(callCtx)
	})
	if err != nil {
		// No worker became free before the deadline or cancellation.
		return waitFailed[T](ctx)
	}

	select {
	case res := <-done:
		if res.panicked {
			panic(res.panicVal)
		}
		if res.err == nil {
			return callResult[T]{outcome: outcomeOK, value: res.value}
		}
		if ctx.Err() != nil {
			return callResult[T]{outcome: outcomeCancelled, err: ctx.Err()}
		}
		if errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			// The work gave up on our deadline just before we noticed it.
			return callResult[T]{outcome: outcomeTimeout}
		}
		return callResult[T]{outcome: outcomeFailed, err: res.err}
	case <-callCtx.Done():
		return waitFailed[T](ctx)
	}
}

func waitFailed[T any](ctx context.Context) callResult[T] {
	if err := ctx.Err(); err != nil {
		return callResult[T]{outcome: outcomeCancelled, err: err}
	}
	return callResult[T]{outcome: outcomeTimeout}
}

type noopMetrics struct{}

func (noopMetrics) WriteAttempted()   {}
func (noopMetrics) ConnectionClosed() {}
func (noopMetrics) ConnectionFailed() {}
func (noopMetrics) BatchCompleted()   {}
func (noopMetrics) EventsDrained(int) {}
