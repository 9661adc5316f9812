package pool

import (
	"context"

	"github.com/go-foundations/dispatch"
)

// facet is the raw per-priority dispatch queue a Pool exposes, before it is
// wrapped by queue.WorkerLocal for the worker-local fast path. Submit and
// TrySubmit are identical: spec's try_submit algorithm has no separate
// unbounded variant, since the shared priority inbox's FIFO slots grow
// without a fixed capacity.
type facet struct {
	pool     *Pool
	priority int
}

func newFacet(p *Pool, priority int) *facet {
	return &facet{pool: p, priority: priority}
}

func (f *facet) Submit(ctx context.Context, item dispatch.WorkItem) bool {
	return f.pool.TrySubmit(ctx, f.priority, item)
}

func (f *facet) TrySubmit(ctx context.Context, item dispatch.WorkItem) bool {
	return f.pool.TrySubmit(ctx, f.priority, item)
}
