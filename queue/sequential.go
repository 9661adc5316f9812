package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/dispatcherr"
)

// Sequential guarantees FIFO, one-at-a-time execution by treating its
// pending item list as a single-slot pool backed by an inner queue: at
// most one item is "in flight" to inner at a time, and the rest wait in a
// private FIFO list that Sequential drains itself as each in-flight item
// completes.
type Sequential struct {
	inner  dispatch.Queue
	logger *zap.Logger

	mu      sync.Mutex
	pending []dispatch.WorkItem
	running bool
}

// NewSequential wraps inner (commonly an Immediate or a priority facet)
// with FIFO one-at-a-time serialization.
func NewSequential(inner dispatch.Queue, logger *zap.Logger) *Sequential {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sequential{inner: inner, logger: logger}
}

// Submit enqueues item; it will run after every item already queued ahead
// of it, one at a time.
func (q *Sequential) Submit(ctx context.Context, item dispatch.WorkItem) bool {
	if !item.Valid() {
		return false
	}
	q.mu.Lock()
	q.pending = append(q.pending, item)
	shouldStart := !q.running
	if shouldStart {
		q.running = true
	}
	q.mu.Unlock()

	if shouldStart {
		q.pumpNext(ctx)
	}
	return true
}

// TrySubmit is identical to Submit: the pending list grows as needed and
// Sequential has no fixed capacity of its own to saturate.
func (q *Sequential) TrySubmit(ctx context.Context, item dispatch.WorkItem) bool {
	return q.Submit(ctx, item)
}

func (q *Sequential) pumpNext(ctx context.Context) {
	q.mu.Lock()
	if len(q.pending) == 0 {
		q.running = false
		q.mu.Unlock()
		return
	}
	next := q.pending[0]
	q.pending = q.pending[1:]
	q.mu.Unlock()

	wrapped, err := dispatch.NewWorkItem(next.Priority, func() {
		q.runOne(next)
		q.pumpNext(ctx)
	})
	if err != nil {
		q.pumpNext(ctx)
		return
	}
	if !dispatch.Submit(ctx, q.inner, wrapped) {
		q.logger.Warn("sequential queue: inner queue rejected item", zap.Error(dispatcherr.ErrQueueSaturated))
		q.pumpNext(ctx)
	}
}

func (q *Sequential) runOne(item dispatch.WorkItem) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("sequential dispatch queue callback panicked", zap.Any("recovered", r))
		}
	}()
	item.Run()
}
