// Package dispatch defines the core contract every dispatcher component
// builds on: the opaque work item (a callback plus the environment captured
// at submission), the dispatch queue capability implementations multiplex
// onto, and the task environment that follows a work item across handoffs.
//
// Higher-level components (workers, hosts, the broker, timers) live in
// their own packages and depend on this one; this package depends on
// nothing but the standard library, uuid, and dispatcherr.
package dispatch

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/go-foundations/dispatch/dispatcherr"
)

// WorkItem is an opaque unit of pending work: a callback plus whatever
// environment it closed over at submission time. It is immutable once
// constructed; queues and deques move it by value.
type WorkItem struct {
	ID       uuid.UUID
	Priority int
	Created  time.Time
	run      func()
}

// NewWorkItem wraps a callback as a WorkItem. The callback must already be
// bound to whatever environment it should run under (see Environment.Bind);
// NewWorkItem itself does no binding.
func NewWorkItem(priority int, run func()) (WorkItem, error) {
	if run == nil {
		return WorkItem{}, dispatcherr.ErrIllegalArgument
	}
	return WorkItem{
		ID:       uuid.New(),
		Priority: priority,
		Created:  time.Now(),
		run:      run,
	}, nil
}

// Run invokes the wrapped callback. Queues and workers call this exactly
// once per accepted item.
func (w WorkItem) Run() {
	w.run()
}

// Valid reports whether the item was constructed through NewWorkItem and
// carries a runnable callback.
func (w WorkItem) Valid() bool {
	return w.run != nil
}

// Queue is the capability every dispatch queue implementation exposes:
// "submit a work item". Submission never blocks the caller except for
// bounded bookkeeping. If Submit or TrySubmit returns true, the item will
// eventually run exactly once, unless the process terminates.
//
// Submit is allowed to grow whatever structure backs the queue (e.g. a
// priority inbox's per-priority slots); TrySubmit never blocks and returns
// false immediately when it refuses an item, per spec's "try_* methods
// return false rather than block". Implementations whose backing structure
// has no fixed capacity (the pool's priority facets, Sequential,
// ContextBound, WorkerLocal, Immediate) treat TrySubmit exactly like
// Submit, so for them it grows the backing structure too.
//
// Both methods take the submitting goroutine's context so that a
// worker-local queue can recognize "the calling goroutine is already one
// of my workers" — the idiomatic-Go stand-in for the spec's "current
// thread" check, since Go has no public thread-local storage.
type Queue interface {
	Submit(ctx context.Context, item WorkItem) bool
	TrySubmit(ctx context.Context, item WorkItem) bool
}

// Submit is a convenience that calls queue.Submit, surfacing a nil queue as
// a plain false rather than panicking — used by code paths that may run
// before a host has finished initializing its facets.
func Submit(ctx context.Context, q Queue, item WorkItem) bool {
	if q == nil {
		return false
	}
	return q.Submit(ctx, item)
}

// envKey is the unexported context key used to carry the "current"
// environment. Go goroutines have no safe public thread-local storage, so
// this package uses context.Context as the idiomatic stand-in for the
// spec's thread-local current environment: installing an environment means
// deriving a child context that carries it, and restoring the prior
// environment is automatic once that child context goes out of scope.
type envKey struct{}

// Environment is the ambient state propagated with every work item: a
// small key/value binding set, a reference to the dispatch queue the
// environment should route follow-up work to, and a list of cleanup
// actions run in reverse order when the bound callback finishes.
type Environment struct {
	queue    Queue
	bindings map[string]any
	cleanups []func()
}

// NewEnvironment creates an environment bound to the given queue with no
// bindings and no cleanups.
func NewEnvironment(queue Queue) *Environment {
	return &Environment{
		queue:    queue,
		bindings: make(map[string]any),
	}
}

// Current returns the environment installed in ctx, if any.
func Current(ctx context.Context) (*Environment, bool) {
	e, ok := ctx.Value(envKey{}).(*Environment)
	return e, ok
}

// WithEnvironment derives a context carrying e as the current environment.
func WithEnvironment(ctx context.Context, e *Environment) context.Context {
	return context.WithValue(ctx, envKey{}, e)
}

// Queue returns the environment's current dispatch queue.
func (e *Environment) Queue() Queue {
	return e.queue
}

// Get reads a binding by key.
func (e *Environment) Get(key string) (any, bool) {
	v, ok := e.bindings[key]
	return v, ok
}

// Set installs a binding. Not safe for concurrent use with Clone/Bind on the
// same environment from another goroutine; bindings are meant to be
// established before a work item is handed off, not mutated by in-flight
// callbacks that other goroutines may also be reading via a clone.
func (e *Environment) Set(key string, value any) {
	e.bindings[key] = value
}

// AttachCleanup appends an action to run, in reverse order, after the bound
// callback finishes (whether it returned normally or panicked).
func (e *Environment) AttachCleanup(action func()) {
	e.cleanups = append(e.cleanups, action)
}

// Clone produces a logical snapshot: a new Environment with a copy of the
// current bindings and the same queue, but no cleanups (cleanups belong to
// the scope that attached them, not to copies taken from it).
func (e *Environment) Clone() *Environment {
	clone := NewEnvironment(e.queue)
	for k, v := range e.bindings {
		clone.bindings[k] = v
	}
	return clone
}

// WithQueue returns a clone of e bound to a different dispatch queue,
// leaving e itself untouched. Used by submit_with_env when a caller wants
// to route a callback's continuation through an explicit queue.
func (e *Environment) WithQueue(q Queue) *Environment {
	clone := e.Clone()
	clone.queue = q
	return clone
}

// Bind wraps cb so that invoking the returned func: installs e into the
// context, runs cb, and restores the prior environment by virtue of
// returning to the caller's own context; cleanups attached to e are run in
// reverse order on the way out, whether cb returned normally or panicked.
// Panics are recovered, logged through logFn (which may be nil), and
// swallowed — consistent with spec's "on exception: log ... otherwise
// swallows (outer scheduler is immune)".
func (e *Environment) Bind(parent context.Context, cb func(ctx context.Context), logFn func(recovered any)) func() {
	return func() {
		ctx := WithEnvironment(parent, e)
		defer e.runCleanups()
		defer func() {
			if r := recover(); r != nil && logFn != nil {
				logFn(r)
			}
		}()
		cb(ctx)
	}
}

func (e *Environment) runCleanups() {
	for i := len(e.cleanups) - 1; i >= 0; i-- {
		e.cleanups[i]()
	}
}

// SubmitWithCurrentEnv binds cb to the environment found in ctx (or a fresh
// one bound to q, if none is installed) and submits it to q.
func SubmitWithCurrentEnv(ctx context.Context, q Queue, priority int, cb func(ctx context.Context), logFn func(any)) bool {
	env, ok := Current(ctx)
	if !ok {
		env = NewEnvironment(q)
	}
	return bindAndSubmit(ctx, q, priority, env, cb, logFn)
}

// SubmitWithClonedEnv binds cb to a logical snapshot of the environment
// found in ctx and submits it to q.
func SubmitWithClonedEnv(ctx context.Context, q Queue, priority int, cb func(ctx context.Context), logFn func(any)) bool {
	env, ok := Current(ctx)
	if !ok {
		env = NewEnvironment(q)
	} else {
		env = env.Clone()
	}
	return bindAndSubmit(ctx, q, priority, env, cb, logFn)
}

// SubmitWithEnv binds cb to an explicit environment and submits it to q.
func SubmitWithEnv(ctx context.Context, q Queue, env *Environment, priority int, cb func(ctx context.Context), logFn func(any)) bool {
	return bindAndSubmit(ctx, q, priority, env, cb, logFn)
}

func bindAndSubmit(ctx context.Context, q Queue, priority int, env *Environment, cb func(ctx context.Context), logFn func(any)) bool {
	item, err := NewWorkItem(priority, env.Bind(ctx, cb, logFn))
	if err != nil {
		return false
	}
	return Submit(ctx, q, item)
}
