// Package queue implements the dispatch queue variants spec's §4.6 calls
// for: Immediate, ContextBound, WorkerLocal, and Sequential. The fifth
// variant, the per-priority facet, lives in package pool next to the host
// it routes into.
// Each is a thin, tagged variant over the dispatch.Queue capability rather
// than a class hierarchy, per the spec's own design note (§9) that virtual
// inheritance/mixins don't map onto Go: "the dispatch queue is a
// capability ... use a tagged variant or an interface."
package queue

import (
	"context"

	"go.uber.org/zap"

	"github.com/go-foundations/dispatch"
)

// Immediate runs every submitted callback synchronously, on the
// submitter's own goroutine, logging and swallowing any panic.
type Immediate struct {
	logger *zap.Logger
}

// NewImmediate creates an Immediate queue. A nil logger disables logging of
// recovered panics.
func NewImmediate(logger *zap.Logger) *Immediate {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Immediate{logger: logger}
}

// Submit and TrySubmit behave identically for Immediate: there is no
// bounded structure to saturate, so both always accept and run inline.
func (q *Immediate) Submit(_ context.Context, item dispatch.WorkItem) bool {
	return q.run(item)
}

// TrySubmit is identical to Submit for Immediate.
func (q *Immediate) TrySubmit(ctx context.Context, item dispatch.WorkItem) bool {
	return q.Submit(ctx, item)
}

func (q *Immediate) run(item dispatch.WorkItem) bool {
	if !item.Valid() {
		return false
	}
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("immediate dispatch queue callback panicked", zap.Any("recovered", r))
		}
	}()
	item.Run()
	return true
}
