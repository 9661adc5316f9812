// Package timer implements one-shot task timers: a callback that fires,
// onto a supplied dispatch queue with a captured environment, when the
// global tick crosses a deadline.
package timer

import (
	"context"
	"math"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/tick"
)

type timerState int32

const (
	stateIdle timerState = iota
	stateScheduled
	stateFired
	stateDisposed
)

// Infinite is the offset from the Unix epoch of the deadline Change treats
// as "never": Change(time.Unix(0, 0).Add(Infinite)) cancels a timer.
const Infinite = time.Duration(math.MaxInt64)

// Timer is a one-shot deadline that, when crossed by the factory's tick,
// submits its callback to its dispatch queue with its captured
// environment. Changing the deadline while the callback is already in
// flight to the queue does not cancel that in-flight firing: a timer
// fires at most once per deadline it actually crosses.
type Timer struct {
	mu       sync.Mutex
	deadline time.Time
	st       timerState
	cb       func(ctx context.Context)
	queue    dispatch.Queue
	env      *dispatch.Environment
	logger   *zap.Logger
}

func (t *Timer) fire(now time.Time) {
	t.mu.Lock()
	if t.st != stateScheduled || now.Before(t.deadline) {
		t.mu.Unlock()
		return
	}
	t.st = stateFired
	cb, queue, env := t.cb, t.queue, t.env
	t.mu.Unlock()

	dispatch.SubmitWithEnv(context.Background(), queue, env, 0, cb, func(recovered any) {
		if t.logger != nil {
			t.logger.Error("timer callback panicked", zap.Any("recovered", recovered))
		}
	})
}

// Change reschedules the timer to fire at newDeadline. Passing
// time.Unix(0, 0).Add(Infinite) cancels the timer, provided it has not
// already fired or been handed off to its queue. Change is a no-op on a
// fired or disposed timer.
func (t *Timer) Change(newDeadline time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st == stateFired || t.st == stateDisposed {
		return
	}
	t.deadline = newDeadline
	if newDeadline.Equal(farFuture) {
		t.st = stateIdle
	} else {
		t.st = stateScheduled
	}
}

var farFuture = time.Unix(0, 0).Add(Infinite)

// Dispose cancels the timer permanently; a subsequent tick crossing will
// observe it as not scheduled and drop it.
func (t *Timer) Dispose() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.st != stateFired {
		t.st = stateDisposed
	}
}

// Factory creates timers driven by a single GlobalTick. Timers created by
// a disposed factory are dropped the next time the tick crosses their
// deadline, per spec's "a timer firing while the owning factory is
// disposed is dropped".
type Factory struct {
	tick    *tick.GlobalTick
	logger  *zap.Logger
	ref     *tick.Callback
	mu      sync.Mutex
	disposed bool
	timers  map[*Timer]struct{}
}

// NewFactory registers a feedback callback on g that sweeps every live
// timer on each tick.
func NewFactory(g *tick.GlobalTick, logger *zap.Logger) *Factory {
	f := &Factory{tick: g, logger: logger, timers: make(map[*Timer]struct{})}
	f.ref = g.Add("timer-factory-sweep", f.sweep)
	return f
}

func (f *Factory) sweep(now time.Time, _ time.Duration) {
	f.mu.Lock()
	if f.disposed {
		f.mu.Unlock()
		return
	}
	timers := make([]*Timer, 0, len(f.timers))
	for t := range f.timers {
		timers = append(timers, t)
	}
	f.mu.Unlock()

	for _, t := range timers {
		t.fire(now)
	}
}

// New creates a timer scheduled to fire at deadline. When the factory's
// tick crosses deadline, cb is submitted to queue with env installed.
func (f *Factory) New(deadline time.Time, queue dispatch.Queue, env *dispatch.Environment, cb func(ctx context.Context)) *Timer {
	t := &Timer{
		deadline: deadline,
		st:       stateScheduled,
		cb:       cb,
		queue:    queue,
		env:      env,
		logger:   f.logger,
	}
	f.mu.Lock()
	if !f.disposed {
		f.timers[t] = struct{}{}
	}
	f.mu.Unlock()
	return t
}

// Dispose stops sweeping for new firings and unregisters the factory's tick
// callback. Timers already tracked are left in whatever state they were in;
// future fire() calls on them are no-ops because sweep no longer runs.
func (f *Factory) Dispose() {
	f.mu.Lock()
	f.disposed = true
	f.mu.Unlock()
	f.tick.Remove(f.ref)
}
