package queue

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/go-foundations/dispatch"
)

// SyncContext is the minimal capability a host-provided synchronization
// context exposes: post a callback to run serially on whatever thread that
// context owns. A UI event loop or a single-goroutine actor both qualify.
type SyncContext interface {
	Post(fn func())
}

// ContextBound delegates every submission to a supplied SyncContext, which
// is responsible for serializing its callbacks.
type ContextBound struct {
	sync   SyncContext
	logger *zap.Logger
}

// NewContextBound wraps sc as a dispatch queue.
func NewContextBound(sc SyncContext, logger *zap.Logger) *ContextBound {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ContextBound{sync: sc, logger: logger}
}

// Submit posts item to the underlying sync context. Always accepts; the
// sync context's own backlog, if bounded, is its concern, not this queue's.
func (q *ContextBound) Submit(_ context.Context, item dispatch.WorkItem) bool {
	if !item.Valid() {
		return false
	}
	q.sync.Post(func() {
		defer func() {
			if r := recover(); r != nil {
				q.logger.Error("context-bound dispatch queue callback panicked", zap.Any("recovered", r))
			}
		}()
		item.Run()
	})
	return true
}

// TrySubmit is identical to Submit: the underlying sync context decides its
// own backpressure, so there is nothing additional for TrySubmit to refuse
// on.
func (q *ContextBound) TrySubmit(ctx context.Context, item dispatch.WorkItem) bool {
	return q.Submit(ctx, item)
}

// SerialExecutor is a default SyncContext: a single goroutine draining a
// buffered channel, guaranteeing its callbacks run one at a time in FIFO
// order. Used when a hosting application has no event loop of its own to
// bind to.
type SerialExecutor struct {
	work   chan func()
	once   sync.Once
	closed chan struct{}
}

// NewSerialExecutor creates and starts a SerialExecutor with the given
// backlog capacity.
func NewSerialExecutor(capacity int) *SerialExecutor {
	if capacity <= 0 {
		capacity = 64
	}
	se := &SerialExecutor{
		work:   make(chan func(), capacity),
		closed: make(chan struct{}),
	}
	go se.run()
	return se
}

func (se *SerialExecutor) run() {
	for fn := range se.work {
		fn()
	}
	close(se.closed)
}

// Post enqueues fn to run on the executor's goroutine.
func (se *SerialExecutor) Post(fn func()) {
	se.work <- fn
}

// Stop closes the backlog and waits for the goroutine to drain it.
func (se *SerialExecutor) Stop() {
	se.once.Do(func() { close(se.work) })
	<-se.closed
}
