// Package rendezvous implements the single-use, order-independent
// synchronization primitive used throughout the dispatcher to hand a
// result from a signaler to a waiter without caring which one runs first.
package rendezvous

import (
	"sync"
	"sync/atomic"

	"github.com/go-foundations/dispatch/dispatcherr"
)

type state int32

const (
	stateEmpty state = iota
	stateSignaled
	stateWaiting
	stateUsed
)

// pending is the process-wide count of rendezvous events that have been
// created but not yet paired or abandoned: New increments it, and the
// pairing Signal/Wait/IsReadyOrWait or an Abandon decrements it. Entries in
// the debug capture map below are never removed; each one only records its
// event's latest state (see DESIGN.md on why the map is kept best-effort).
var pending atomic.Int64

// Pending returns the current process-wide pending-rendezvous count, for
// tests and diagnostics.
func Pending() int64 {
	return pending.Load()
}

// DebugCaptures, when true, makes every Event record a non-authoritative
// debug snapshot in captures. It is off by default: the capture map is a
// debugging aid only, not part of the primitive's correctness contract.
var DebugCaptures = false

var (
	capturesMu sync.Mutex
	captures   = map[*Event]string{}
)

// Event is a single-slot rendezvous between exactly one signaler and one
// waiter. Exactly one of Signal/Wait fires the bound action; either
// ordering yields the same observable effect. Each event fires at most
// once.
type Event struct {
	mu     sync.Mutex
	st     state
	action func()
}

// New creates an empty, unpaired rendezvous event.
func New() *Event {
	e := &Event{st: stateEmpty}
	pending.Add(1)
	if DebugCaptures {
		capturesMu.Lock()
		captures[e] = "created"
		capturesMu.Unlock()
	}
	return e
}

// Signal marks the event as signaled. If a waiter already bound an action
// (via Wait), the event transitions to used and the action runs
// immediately, on the calling goroutine.
func (e *Event) Signal() {
	e.mu.Lock()
	switch e.st {
	case stateEmpty:
		e.st = stateSignaled
		e.mu.Unlock()
		e.note("signaled")
		return
	case stateWaiting:
		action := e.action
		e.st = stateUsed
		e.mu.Unlock()
		e.note("used-by-signal")
		pending.Add(-1)
		if action != nil {
			action()
		}
	default:
		e.mu.Unlock()
	}
}

// Wait binds action to be run exactly once: immediately, if the event was
// already signaled, or later, when Signal is eventually called. Returns
// ErrRendezvousAlreadyBound if a waiter is already bound or the event has
// already fired.
func (e *Event) Wait(action func()) error {
	e.mu.Lock()
	switch e.st {
	case stateEmpty:
		e.action = action
		e.st = stateWaiting
		e.mu.Unlock()
		e.note("waiting")
		return nil
	case stateSignaled:
		e.st = stateUsed
		e.mu.Unlock()
		e.note("used-by-wait")
		pending.Add(-1)
		if action != nil {
			action()
		}
		return nil
	default:
		e.mu.Unlock()
		return dispatcherr.ErrRendezvousAlreadyBound
	}
}

// IsReadyOrWait reports whether the event is already signaled; if not, it
// binds action the same way Wait would.
func (e *Event) IsReadyOrWait(action func()) (ready bool, err error) {
	e.mu.Lock()
	if e.st == stateSignaled {
		e.st = stateUsed
		e.mu.Unlock()
		e.note("used-by-isready")
		pending.Add(-1)
		return true, nil
	}
	e.mu.Unlock()
	return false, e.Wait(action)
}

// Abandon releases the event's pending-counter slot before it has been
// paired. Abandoning a used event is a no-op.
func (e *Event) Abandon() {
	e.mu.Lock()
	if e.st == stateUsed {
		e.mu.Unlock()
		return
	}
	e.st = stateUsed
	e.action = nil
	e.mu.Unlock()
	e.note("abandoned")
	pending.Add(-1)
}

func (e *Event) note(what string) {
	if !DebugCaptures {
		return
	}
	capturesMu.Lock()
	captures[e] = what
	capturesMu.Unlock()
}
