// Package result implements the dispatcher's future-like completion value:
// pending/returned/thrown, a single attached continuation, and a blocking
// wait with a timeout.
package result

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/dispatcherr"
)

type state int32

const (
	statePending state = iota
	stateReturned
	stateThrown
)

// Result is a single-shot, single-continuation completion value with an
// optional dispatch queue for its continuation. Re-completion after
// the first Return/Throw fails with ErrResultAlreadyCompleted.
type Result[T any] struct {
	mu    sync.Mutex
	done  chan struct{}
	st    state
	value T
	err   error

	contQueue dispatch.Queue
	cont      func(*Result[T])
	contSet   bool
}

// New creates a pending result with no attached continuation or queue.
func New[T any]() *Result[T] {
	return &Result[T]{done: make(chan struct{})}
}

// NewOnQueue creates a pending result whose continuation, once attached,
// runs on q rather than inline.
func NewOnQueue[T any](q dispatch.Queue) *Result[T] {
	r := New[T]()
	r.contQueue = q
	return r
}

// Return completes the result successfully. Returns
// ErrResultAlreadyCompleted if already terminal.
func (r *Result[T]) Return(v T) error {
	return r.complete(func() { r.value = v; r.st = stateReturned })
}

// Throw completes the result with an error. Returns
// ErrResultAlreadyCompleted if already terminal.
func (r *Result[T]) Throw(err error) error {
	return r.complete(func() { r.err = err; r.st = stateThrown })
}

func (r *Result[T]) complete(set func()) error {
	r.mu.Lock()
	if r.st != statePending {
		r.mu.Unlock()
		return dispatcherr.ErrResultAlreadyCompleted
	}
	set()
	cont := r.cont
	contSet := r.contSet
	queue := r.contQueue
	r.mu.Unlock()
	close(r.done)

	if contSet {
		r.runContinuation(context.Background(), queue, cont)
	}
	return nil
}

// WhenDone attaches a continuation. If the result is already terminal, the
// continuation runs (on the attached queue, or inline if none) immediately.
// Each Result accepts exactly one continuation; a second call to WhenDone
// is a no-op beyond the first.
func (r *Result[T]) WhenDone(cont func(*Result[T])) {
	r.mu.Lock()
	if r.contSet {
		r.mu.Unlock()
		return
	}
	r.contSet = true
	r.cont = cont
	st := r.st
	queue := r.contQueue
	r.mu.Unlock()

	if st != statePending {
		r.runContinuation(context.Background(), queue, cont)
	}
}

func (r *Result[T]) runContinuation(ctx context.Context, queue dispatch.Queue, cont func(*Result[T])) {
	if queue == nil {
		cont(r)
		return
	}
	item, err := dispatch.NewWorkItem(0, func() { cont(r) })
	if err != nil {
		return
	}
	if !dispatch.Submit(ctx, queue, item) {
		cont(r)
	}
}

// Block waits up to timeout for the result to become terminal. timeout <= 0
// means wait forever. Returns ErrTimeout if the deadline elapses first.
// Waiting on the done channel directly (rather than spawning a helper
// goroutine to wait on a condition variable) means a timed-out Block never
// leaves a goroutine parked behind it waiting for the result to complete.
func (r *Result[T]) Block(timeout time.Duration) error {
	if timeout <= 0 {
		<-r.done
		return nil
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-r.done:
		return nil
	case <-timer.C:
		return dispatcherr.ErrTimeout
	}
}

// HasValue reports whether the result completed successfully.
func (r *Result[T]) HasValue() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st == stateReturned
}

// HasException reports whether the result completed with an error.
func (r *Result[T]) HasException() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.st == stateThrown
}

// Value returns the returned value. If the result was thrown, it
// re-raises that error; if still pending, err is ErrTimeout-free nil value
// with a zero T (callers should Block first).
func (r *Result[T]) Value() (T, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.st == stateThrown {
		var zero T
		return zero, r.err
	}
	return r.value, nil
}

// Exception returns the completion error, if any.
func (r *Result[T]) Exception() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// BindWithResult adapts an environment-bound callback that produces (T,
// error) into a plain func(), completing r with whatever the callback
// returns and logging+swallowing a panic instead of leaving r pending
// forever. This is the generic counterpart of dispatch.Environment.Bind
// for callbacks that report a value, kept in this package (rather than on
// Environment itself) because Environment is not generic and Go methods
// cannot introduce their own type parameters.
func BindWithResult[T any](env *dispatch.Environment, parent context.Context, cb func(ctx context.Context) (T, error), r *Result[T], logger *zap.Logger) func() {
	wrapped := func(ctx context.Context) {
		v, err := cb(ctx)
		if err != nil {
			_ = r.Throw(err)
			return
		}
		_ = r.Return(v)
	}
	logFn := func(recovered any) {
		if logger != nil {
			logger.Error("work item panicked", zap.Any("recovered", recovered))
		}
		_ = r.Throw(dispatcherr.ErrIllegalArgument)
	}
	return env.Bind(parent, wrapped, logFn)
}
