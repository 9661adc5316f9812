// Package broker implements the process-wide dispatch thread scheduler: a
// singleton that owns a reserve of parked worker threads, enforces the
// process-wide thread ceiling, and pushes CPU-driven throttle hints into
// every registered host on each global tick.
package broker

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/go-foundations/dispatch/containers"
	"github.com/go-foundations/dispatch/dispatcherr"
	"github.com/go-foundations/dispatch/tick"
	"github.com/go-foundations/dispatch/worker"
)

// Host is the capability a broker needs from a registered elastic thread
// pool: enough to deliver a throttle directive and to learn its pending
// backlog for the starvation override. Implemented by pool.Pool (C9).
type Host interface {
	Name() string
	PendingItems() int64
	ThreadCount() int
	ApplyVelocity(v int)
}

// Broker is the process-wide singleton described by spec's §4.8: it tracks
// allocated_threads against max_threads, a reserve queue of parked workers,
// the registered hosts, and a CPU load sampler whose feedback loop runs on
// the global tick.
type Broker struct {
	logger *zap.Logger

	maxThreads    int
	targetReserve int
	minReserve    int

	spinUp *semaphore.Weighted

	mu             sync.Mutex
	allocated      int
	nextID         int
	reserve        *containers.Stack[*worker.Worker]
	hosts          map[string]Host
	idleSince      time.Time
	saturatedSince time.Time

	sampler  *Sampler
	feedback *tick.Callback
	tickSrc  *tick.GlobalTick
}

// Config carries the process-wide tuning knobs from spec's §6: max_threads,
// reserved_dispatch_threads (the broker's own target reserve), and
// min_reserved_dispatch_threads.
type Config struct {
	MaxThreads    int
	TargetReserve int
	MinReserve    int
}

// New creates a broker with an empty reserve and no registered hosts. It
// does not start its feedback loop until Start is called with a tick
// source.
func New(cfg Config, logger *zap.Logger) *Broker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxThreads <= 0 {
		cfg.MaxThreads = 1
	}
	return &Broker{
		logger:        logger,
		maxThreads:    cfg.MaxThreads,
		targetReserve: cfg.TargetReserve,
		minReserve:    cfg.MinReserve,
		spinUp:        semaphore.NewWeighted(4),
		reserve:       containers.NewStack[*worker.Worker](0),
		hosts:         make(map[string]Host),
		sampler:       NewSampler(DefaultAlpha),
	}
}

// Start registers the broker's feedback loop on g and begins sampling CPU
// load via loadFn (typically a process CPU load harness; tests may supply a
// canned sequence). Safe to call at most once.
func (b *Broker) Start(g *tick.GlobalTick, loadFn func() float64) {
	b.mu.Lock()
	if b.feedback != nil {
		b.mu.Unlock()
		return
	}
	b.tickSrc = g
	b.mu.Unlock()

	if loadFn != nil {
		b.sampler.source = loadFn
	}
	b.feedback = g.Add("broker-feedback", b.onTick)
}

// CurrentLoad returns the last smoothed CPU load reading, for wiring into
// observability.NewBrokerInstruments' cpuLoad reader func.
func (b *Broker) CurrentLoad() float64 {
	return b.sampler.Current()
}

// AllocatedThreads returns the number of threads currently allocated
// (reserve plus whatever hosts currently hold).
func (b *Broker) AllocatedThreads() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allocated
}

// ReserveSize returns the number of parked workers currently held.
func (b *Broker) ReserveSize() int {
	return b.reserve.Len()
}

// RegisterHost adds h to the set of hosts that receive feedback directives.
func (b *Broker) RegisterHost(h Host) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.hosts[h.Name()] = h
}

// UnregisterHost removes h from the feedback set.
func (b *Broker) UnregisterHost(h Host) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.hosts, h.Name())
}

// RequestThread pops minRequired (or 1 if minRequired <= 0) workers from the
// reserve, lazily creating new ones if the reserve runs short, and invokes
// onThreadReady once per worker obtained — each worker is already blocked in
// its own Next() call, ready for the caller to assign it a host/queue and
// complete it with a WorkItem. Fails with ErrInsufficientResources if
// minRequired would push allocated past maxThreads.
func (b *Broker) RequestThread(minRequired int, onThreadReady func(w *worker.Worker)) error {
	need := minRequired
	if need <= 0 {
		need = 1
	}

	b.mu.Lock()
	if minRequired > 0 && b.allocated+minRequired > b.maxThreads {
		b.mu.Unlock()
		return dispatcherr.ErrInsufficientResources
	}
	obtained := make([]*worker.Worker, 0, need)
	for need > 0 {
		w, ok := b.reserve.TryPop()
		if !ok {
			break
		}
		obtained = append(obtained, w)
		need--
	}
	toSpawn := 0
	for need > 0 && b.allocated+toSpawn < b.maxThreads {
		toSpawn++
		need--
	}
	// Reserve replenishment capacity under the same lock hold, so the
	// count is fixed before any actual spawning happens — spec's "lazily
	// create new workers" clause, capped by max_threads.
	replenish := 0
	for b.reserve.Len()+replenish < b.minReserve && b.allocated+toSpawn+replenish < b.maxThreads {
		replenish++
	}
	ids := b.reserveIDsLocked(toSpawn + replenish)
	b.allocated += toSpawn + replenish
	b.mu.Unlock()

	// Actual worker creation and goroutine start happen without b.mu held,
	// so spinUp genuinely bounds how many spawns run concurrently instead
	// of being serialized by the broker's own lock.
	for i := 0; i < toSpawn; i++ {
		obtained = append(obtained, b.spawn(ids[i]))
	}
	for i := 0; i < replenish; i++ {
		b.reserve.TryPush(b.spawn(ids[toSpawn+i]))
	}

	for _, w := range obtained {
		onThreadReady(w)
	}
	return nil
}

// reserveIDsLocked hands out n sequential worker IDs. Must be called with
// b.mu held.
func (b *Broker) reserveIDsLocked(n int) []int {
	ids := make([]int, n)
	for i := range ids {
		b.nextID++
		ids[i] = b.nextID
	}
	return ids
}

// spawn creates a fresh worker under id and starts its loop goroutine.
// Called without b.mu held so spinUp, acquired here, bounds how many
// worker creations can genuinely be in flight at once across concurrent
// RequestThread callers — independent of and tighter than the hard
// maxThreads ceiling, which is already enforced by the caller reserving
// allocated capacity before spawn is ever invoked.
func (b *Broker) spawn(id int) *worker.Worker {
	if err := b.spinUp.Acquire(context.Background(), 1); err == nil {
		defer b.spinUp.Release(1)
	}
	w := worker.New(id, b.logger)
	go w.Run(context.Background())
	return w
}

// ReleaseThread detaches worker from its host (the caller is expected to
// have already called worker.Unassign) and parks it in the broker reserve,
// where it waits blocked in its own next Next() call until RequestThread or
// ShutdownWorker completes it.
func (b *Broker) ReleaseThread(w *worker.Worker) {
	b.reserve.TryPush(w)
}

// ShutdownWorker completes w's pending result with a shutdown assignment
// and removes it from the allocated count.
func (b *Broker) ShutdownWorker(w *worker.Worker) {
	w.Shutdown()
	b.mu.Lock()
	if b.allocated > 0 {
		b.allocated--
	}
	b.mu.Unlock()
}

// Shutdown stops the feedback loop and shuts down every parked worker.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	fb := b.feedback
	g := b.tickSrc
	b.mu.Unlock()

	if fb != nil && g != nil {
		g.Remove(fb)
	}
	for {
		w, ok := b.reserve.TryPop()
		if !ok {
			return
		}
		w.Shutdown()
	}
}
