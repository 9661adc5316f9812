// Package pool implements the elastic priority thread pool — spec's host
// (C9): a priority inbox shared by a resizable array of worker threads,
// fed and drained under a broker's thread-velocity feedback.
package pool

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/go-foundations/dispatch"
	"github.com/go-foundations/dispatch/containers"
	"github.com/go-foundations/dispatch/queue"
	"github.com/go-foundations/dispatch/worker"
)

// Host is the capability a broker needs back from a pool to deliver
// feedback directives; identical in shape to broker.Host, restated here so
// this package does not need to import broker just to name the type its
// own Broker interface's Register/UnregisterHost methods pass around.
type Host interface {
	Name() string
	PendingItems() int64
	ThreadCount() int
	ApplyVelocity(v int)
}

// Broker is the capability a pool needs from the process-wide scheduler:
// request and release worker threads, and register itself for feedback.
// Implemented by broker.Broker (C8).
type Broker interface {
	RequestThread(minRequired int, onThreadReady func(w *worker.Worker)) error
	ReleaseThread(w *worker.Worker)
	RegisterHost(h Host)
	UnregisterHost(h Host)
}

// Velocity directives mirror broker.VelocityDecrease/Maintain/Increase
// without importing the broker package, keeping pool free to be used
// without a broker (e.g. in isolation tests).
const (
	VelocityDecrease = -1
	VelocityMaintain = 0
	VelocityIncrease = 1
)

// Pool is one elastic priority thread pool: spec's "host". Its public
// surface is Queue(priority), Dispose, and a handful of counters; its
// internal state is a priority inbox, a private worker reserve (separate
// from the broker's, for fast reallocation), and a resizable active array.
type Pool struct {
	name        string
	minReserved int
	maxParallel int
	logger      *zap.Logger

	broker Broker
	inbox  *containers.PriorityInbox
	reserve *containers.Stack[*worker.Worker]

	mu        sync.Mutex
	active    []*worker.Worker // nulls at dead slots
	velocity  int32
	disposed  bool

	facets []dispatch.Queue // one worker-local-wrapped facet per priority level
}

// Config carries a pool's construction-time sizing: the minimum reserve of
// parked workers to keep for fast reallocation, the maximum number of
// concurrently active worker threads, and the highest valid submission
// priority.
type Config struct {
	Name        string
	MinReserved int
	MaxParallel int
	MaxPriority int
}

// New creates a disposed=false pool with an empty priority inbox and no
// active workers, registering itself with broker for feedback directives.
func New(cfg Config, broker Broker, logger *zap.Logger) *Pool {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxParallel <= 0 {
		cfg.MaxParallel = 1
	}
	p := &Pool{
		name:        cfg.Name,
		minReserved: cfg.MinReserved,
		maxParallel: cfg.MaxParallel,
		logger:      logger,
		broker:      broker,
		inbox:       containers.NewPriorityInbox(cfg.MaxPriority),
		reserve:     containers.NewStack[*worker.Worker](0),
	}
	p.facets = make([]dispatch.Queue, cfg.MaxPriority+1)
	for prio := range p.facets {
		p.facets[prio] = queue.NewWorkerLocal(newFacet(p, prio))
	}
	if broker != nil {
		broker.RegisterHost(p)
	}
	return p
}

// Name identifies the pool for broker registration and metrics labeling.
func (p *Pool) Name() string {
	return p.name
}

// Queue returns the dispatch queue clients should submit to for the given
// priority. Out-of-range priorities return nil.
func (p *Pool) Queue(priority int) dispatch.Queue {
	if priority < 0 || priority >= len(p.facets) {
		return nil
	}
	return p.facets[priority]
}

// PendingItems reports the total items waiting in the shared priority
// inbox, across all priority levels.
func (p *Pool) PendingItems() int64 {
	return int64(p.inbox.Len())
}

// ThreadCount reports the number of currently active worker threads.
func (p *Pool) ThreadCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.countActiveLocked()
}

func (p *Pool) countActiveLocked() int {
	n := 0
	for _, w := range p.active {
		if w != nil {
			n++
		}
	}
	return n
}

// ApplyVelocity installs the broker's latest throttle directive. A
// directive of -1 (decrease) is applied lazily the next time a worker asks
// for work (request_work_item); it is never used to forcibly interrupt a
// worker mid-item. A directive of +1 (increase) is acted on immediately:
// if the host is still carrying a backlog, this ratchets thread_count up
// by one, so a sustained VelocityIncrease directive from the broker grows
// the pool by one thread per tick until the backlog clears or
// max_parallel is reached.
func (p *Pool) ApplyVelocity(v int) {
	atomic.StoreInt32(&p.velocity, int32(v))
	if v > 0 && p.PendingItems() > 0 {
		p.increaseThreadCount()
	}
}

func (p *Pool) currentVelocity() int {
	return int(atomic.LoadInt32(&p.velocity))
}

// tryFastDispatch pops a parked worker from the host's own reserve (not the
// broker's) and hands it the item directly, for fast reallocation without a
// broker round-trip. Returns true if a worker was found and dispatched.
func (p *Pool) tryFastDispatch(priority int, item dispatch.WorkItem) bool {
	w, ok := p.reserve.TryPop()
	if !ok {
		return false
	}
	p.activate(w)
	w.Assign(p, p.facets[priority])
	w.Complete(worker.Assignment{Item: item, Queue: p.facets[priority], Priority: priority})
	return true
}

// TrySubmit implements spec's try_submit(priority, callback) algorithm:
// worker-local fast path (handled by the WorkerLocal facet wrapper before
// this is ever reached), then a parked host-reserve worker, then the
// shared priority inbox, growing the active count from zero if needed.
func (p *Pool) TrySubmit(ctx context.Context, priority int, item dispatch.WorkItem) bool {
	p.mu.Lock()
	if p.disposed {
		p.mu.Unlock()
		return false
	}
	p.mu.Unlock()

	if priority < 0 || priority >= len(p.facets) {
		return false
	}

	if p.tryFastDispatch(priority, item) {
		return true
	}

	if !p.inbox.TryEnqueue(priority, item) {
		return false
	}
	// Try to grow on every submission, not just from zero threads: a
	// backlog can keep building against an already-active-but-saturated
	// pool, and increaseThreadCount's own velocity/ceiling checks make
	// this a no-op once growth isn't warranted.
	p.increaseThreadCount()
	return true
}

// activate installs w into the first free (or new) active slot. Must not
// be called with p.mu held.
func (p *Pool) activate(w *worker.Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, slot := range p.active {
		if slot == nil {
			p.active[i] = w
			return
		}
	}
	p.active = append(p.active, w)
}

// RequestWorkItem is called by a worker (C7) when its local deque runs dry.
// It implements spec's algorithm: honor a negative velocity by removing the
// worker, otherwise dequeue from the inbox, else steal from a sibling, else
// re-check the inbox once more for a racing producer, else give the worker
// back up.
func (p *Pool) RequestWorkItem(w *worker.Worker) {
	if p.currentVelocity() < 0 {
		p.removeWorker(w)
		return
	}

	if priority, item, ok := p.inbox.TryDequeue(); ok {
		w.Complete(worker.Assignment{Item: item, Queue: p.facets[priority], Priority: priority})
		return
	}

	if item, ok := p.stealFromSibling(w); ok {
		w.Complete(worker.Assignment{Item: item, Queue: p.facets[item.Priority], Priority: item.Priority})
		return
	}

	if priority, item, ok := p.inbox.TryDequeue(); ok {
		w.Complete(worker.Assignment{Item: item, Queue: p.facets[priority], Priority: priority})
		return
	}

	p.removeWorker(w)
}

func (p *Pool) stealFromSibling(w *worker.Worker) (dispatch.WorkItem, bool) {
	p.mu.Lock()
	siblings := make([]*worker.Worker, 0, len(p.active))
	for _, s := range p.active {
		if s != nil && s != w {
			siblings = append(siblings, s)
		}
	}
	p.mu.Unlock()

	for _, s := range siblings {
		if item, ok := s.TryStealFrom(); ok {
			return item, true
		}
	}
	return dispatch.WorkItem{}, false
}

// removeWorker implements spec's "remove worker": clear its active slot,
// decrement thread_count, and either return it to the host's own reserve
// (if under min_reserved) or back to the broker.
func (p *Pool) removeWorker(w *worker.Worker) {
	p.mu.Lock()
	for i, slot := range p.active {
		if slot == w {
			p.active[i] = nil
			break
		}
	}
	belowMin := p.reserve.Len() < p.minReserved
	p.mu.Unlock()

	w.Unassign()

	if belowMin && p.reserve.TryPush(w) {
		return
	}
	if p.broker != nil {
		p.broker.ReleaseThread(w)
	} else {
		w.Shutdown()
	}
}

// increaseThreadCount implements spec's "increase thread count": a no-op
// if velocity currently favors shrinking, a no-op at the parallelism
// ceiling, otherwise pop from the host reserve first and fall back to an
// asynchronous broker request.
func (p *Pool) increaseThreadCount() {
	if p.currentVelocity() < 0 {
		return
	}
	if p.ThreadCount() >= p.maxParallel {
		return
	}

	if w, ok := p.reserve.TryPop(); ok {
		p.onThreadReady(w)
		return
	}
	if p.broker == nil {
		return
	}
	go func() {
		_ = p.broker.RequestThread(0, p.onThreadReady)
	}()
}

// onThreadReady implements spec's on_thread_ready(worker, result): if
// velocity still favors keeping the thread and an item is available,
// register the worker into the host and dispatch it; otherwise return the
// worker unchanged (to the host reserve or the broker).
func (p *Pool) onThreadReady(w *worker.Worker) {
	if p.currentVelocity() < 0 {
		p.giveBack(w)
		return
	}
	priority, item, ok := p.inbox.TryDequeue()
	if !ok {
		p.giveBack(w)
		return
	}
	p.activate(w)
	w.Assign(p, p.facets[priority])
	w.Complete(worker.Assignment{Item: item, Queue: p.facets[priority], Priority: priority})
}

func (p *Pool) giveBack(w *worker.Worker) {
	p.mu.Lock()
	belowMin := p.reserve.Len() < p.minReserved
	p.mu.Unlock()

	if belowMin && p.reserve.TryPush(w) {
		return
	}
	if p.broker != nil {
		p.broker.ReleaseThread(w)
	} else {
		w.Shutdown()
	}
}

// Dispose flips the pool into a disposed state, refusing further
// submissions with ErrObjectDisposed-equivalent false returns, waits with
// bounded back-off for the active thread count to reach zero, and returns
// every parked reserve worker to the broker.
func (p *Pool) Dispose(ctx context.Context) {
	p.mu.Lock()
	p.disposed = true
	p.mu.Unlock()

	p.ApplyVelocity(VelocityDecrease)

	waitForDrain(ctx, func() bool { return p.ThreadCount() == 0 })

	for {
		w, ok := p.reserve.TryPop()
		if !ok {
			break
		}
		if p.broker != nil {
			p.broker.ReleaseThread(w)
		} else {
			w.Shutdown()
		}
	}
	if p.broker != nil {
		p.broker.UnregisterHost(p)
	}
}
