package queue

import (
	"context"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/worker"
)

// WorkerLocal wraps a fallback queue with the fast path from spec's §4.6:
// if the submitting goroutine is itself one of the target's workers,
// currently presenting the same queue as "current", push straight onto
// that worker's own deque instead of routing through the host's inbox.
type WorkerLocal struct {
	fallback dispatch.Queue
}

// NewWorkerLocal wraps fallback (typically a priority facet) with the
// worker-local fast path.
func NewWorkerLocal(fallback dispatch.Queue) *WorkerLocal {
	return &WorkerLocal{fallback: fallback}
}

func (q *WorkerLocal) fastPath(ctx context.Context, item dispatch.WorkItem) bool {
	w, ok := worker.Current(ctx)
	if !ok {
		return false
	}
	if w.CurrentQueue() != q {
		return false
	}
	w.PushLocal(item)
	return true
}

// Submit pushes directly onto the calling worker's deque when it already
// presents this queue as current; otherwise it falls back to the wrapped
// queue (typically a host's priority facet).
func (q *WorkerLocal) Submit(ctx context.Context, item dispatch.WorkItem) bool {
	if q.fastPath(ctx, item) {
		return true
	}
	return dispatch.Submit(ctx, q.fallback, item)
}

// TrySubmit behaves identically to Submit: the fast path never blocks (it
// pushes onto the worker's local deque, which grows as needed), and the
// fallback's own TrySubmit semantics apply when the fast path does not
// fire.
func (q *WorkerLocal) TrySubmit(ctx context.Context, item dispatch.WorkItem) bool {
	if q.fastPath(ctx, item) {
		return true
	}
	if q.fallback == nil {
		return false
	}
	return q.fallback.TrySubmit(ctx, item)
}
