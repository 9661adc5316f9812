// Package worker implements the dispatcher's long-lived worker thread: a
// goroutine with a private work-stealing deque that dispatches one item at
// a time and asks its host for more when idle.
package worker

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/containers"
	"github.com/go-foundations/dispatch/result"
)

// Host is the capability a worker needs from whatever is currently
// assigned to it: a way to ask for more work when the local deque runs
// dry. Implemented by *pool.Pool (C9).
type Host interface {
	RequestWorkItem(w *Worker)
	Name() string
}

// Assignment is what a worker blocks on between items: either a work item
// plus the queue that should be considered "current" while running it, or
// a shutdown signal. Spec frames this handoff as a rendezvous result;
// Assignment is the payload half of that handshake (see Worker.Next).
type Assignment struct {
	Item     dispatch.WorkItem
	Queue    dispatch.Queue
	Priority int
	Shutdown bool
}

// Worker is a long-lived goroutine with a private LIFO deque. It is
// assigned to at most one host at a time; assignment clears to nil when
// the worker is returned to a reserve.
type Worker struct {
	ID int

	local  *containers.WorkStealingDeque
	logger *zap.Logger

	mu           sync.Mutex
	host         Host
	currentQueue dispatch.Queue

	pending atomic.Pointer[result.Result[Assignment]]

	stopped atomic.Bool
	done    chan struct{}
}

// New creates an unassigned worker with an empty local deque. A pending
// result is installed synchronously, before Run's loop goroutine is ever
// started, so a host or the broker can safely call Complete on a
// freshly-created worker even if its loop goroutine hasn't reached its
// first Next call yet.
func New(id int, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	w := &Worker{
		ID:     id,
		local:  containers.NewWorkStealingDeque(64),
		logger: logger,
		done:   make(chan struct{}),
	}
	w.pending.Store(result.New[Assignment]())
	return w
}

type currentKey struct{}

// Current returns the Worker whose loop goroutine ctx was derived from, if
// any. Used by queue.WorkerLocal to recognize its fast path.
func Current(ctx context.Context) (*Worker, bool) {
	w, ok := ctx.Value(currentKey{}).(*Worker)
	return w, ok
}

func withCurrent(ctx context.Context, w *Worker) context.Context {
	return context.WithValue(ctx, currentKey{}, w)
}

// Host returns the worker's currently assigned host, or nil if unassigned.
func (w *Worker) Host() Host {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.host
}

// CurrentQueue returns the dispatch queue the worker is presenting as
// "current" while it executes — the queue new submissions from inside a
// running callback would be routed to by the worker-local fast path.
func (w *Worker) CurrentQueue() dispatch.Queue {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.currentQueue
}

// Assign attaches the worker to host and sets its current queue; called by
// a host right before handing the worker an assignment or placing it in the
// host's active array awaiting RequestWorkItem.
func (w *Worker) Assign(h Host, q dispatch.Queue) {
	w.mu.Lock()
	w.host = h
	w.currentQueue = q
	w.mu.Unlock()
}

// Unassign clears the worker's host and current queue, e.g. when it is
// returned to a reserve.
func (w *Worker) Unassign() {
	w.mu.Lock()
	w.host = nil
	w.currentQueue = nil
	w.mu.Unlock()
}

// LocalSize returns the number of items currently on the worker's deque.
func (w *Worker) LocalSize() int {
	return w.local.Size()
}

// PushLocal pushes directly onto the worker's own deque; used by the
// worker-local dispatch queue's fast path.
func (w *Worker) PushLocal(item dispatch.WorkItem) {
	w.local.Push(item)
}

// TryStealFrom steals one item from this worker's deque, for a sibling.
func (w *Worker) TryStealFrom() (dispatch.WorkItem, bool) {
	return w.local.Steal()
}

// Next waits for a host or the broker to complete the worker's current
// pending result with an Assignment, installs a fresh pending result for
// the following call, and returns the assignment just received. Exactly
// one goroutine (the worker's own loop) ever calls this, so there is no
// race on swapping w.pending; external callers only ever read the pointer
// via Complete, never reinstall it.
func (w *Worker) Next() Assignment {
	r := w.pending.Load()
	_ = r.Block(0)
	v, _ := r.Value()
	w.pending.Store(result.New[Assignment]())
	return v
}

// Complete fulfills the worker's currently pending request with an
// assignment. Called by a host (handing over a work item) or the broker
// (handing over a shutdown signal). Safe to call immediately after New,
// before the worker's loop goroutine has even started, because New
// pre-installs the first pending result synchronously.
func (w *Worker) Complete(a Assignment) bool {
	r := w.pending.Load()
	if r == nil {
		return false
	}
	return r.Return(a) == nil
}

// Run is the worker's main loop: pop, or request more work and block,
// until a shutdown assignment is delivered. Pending items left in the
// local deque when the loop exits unexpectedly (panic recovered at the
// call site of Run, not inside it) must be surfaced to the host; callers
// should wrap Run in a recover that calls Evict and re-submits, per spec's
// "fatal path".
func (w *Worker) Run(ctx context.Context) {
	defer close(w.done)
	ctx = withCurrent(ctx, w)

	for {
		item, ok := w.local.Pop()
		if !ok {
			h := w.Host()
			if h != nil {
				h.RequestWorkItem(w)
			}
			assignment := w.Next()
			if assignment.Shutdown {
				return
			}
			if !assignment.Item.Valid() {
				continue
			}
			w.mu.Lock()
			w.currentQueue = assignment.Queue
			w.mu.Unlock()
			item = assignment.Item
		}
		w.runItem(item)
	}
}

func (w *Worker) runItem(item dispatch.WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("worker item panicked",
				zap.Int("worker", w.ID),
				zap.Any("recovered", r))
		}
	}()
	item.Run()
}

// Evict pops up to limit items (0 means all) from the local deque and
// resubmits them to queue. While eviction runs, the worker is not
// presented as "current" to those resubmissions — the caller must have
// already cleared/changed the worker's assignment before calling Evict, so
// a worker-local fast path doesn't immediately hand the items straight
// back to the deque being drained.
func (w *Worker) Evict(ctx context.Context, queue dispatch.Queue, limit int) {
	for _, item := range w.local.Drain(limit) {
		if !dispatch.Submit(ctx, queue, item) {
			w.logger.Warn("dropped work item during eviction",
				zap.Int("worker", w.ID),
				zap.String("item", item.ID.String()))
		}
	}
}

// Shutdown delivers a shutdown assignment, causing Run's current or next
// Next() call to return. Safe to call on a worker that has not yet called
// Next for the first time, because New pre-installs the first pending
// result; calls after the first are no-ops.
func (w *Worker) Shutdown() {
	if !w.stopped.CompareAndSwap(false, true) {
		return
	}
	w.Complete(Assignment{Shutdown: true})
}

// Done returns a channel closed once the worker's Run loop has returned.
func (w *Worker) Done() <-chan struct{} {
	return w.done
}
