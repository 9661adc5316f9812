// Package tick implements the dispatcher's single time source: a dedicated
// high-priority goroutine that fires every registered callback on a fixed
// cadence, plus a virtual-time fast-forward used by tests.
package tick

import (
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the default tick cadence (spec's global_tick_interval_ms).
const DefaultInterval = 100 * time.Millisecond

// Callback is invoked on every tick with the current (possibly virtual) time
// and the elapsed duration since the previous tick.
type Callback func(now time.Time, elapsed time.Duration)

type registration struct {
	name string
	cb   Callback
}

// GlobalTick is the process-wide tick loop. Callbacks run serially on the
// tick goroutine; a panic in one is recovered, logged, and swallowed, and
// subsequent callbacks in the same tick still run. Registration is a
// copy-on-grow array: mutation takes a mutex, the tick goroutine reads a
// snapshot of the current slice header without it.
type GlobalTick struct {
	interval time.Duration
	logger   *zap.Logger

	mu   sync.Mutex
	regs atomic.Pointer[[]*registration]

	offset   atomic.Int64 // virtual-time offset, nanoseconds
	stopCh   chan struct{}
	doneCh   chan struct{}
	started  atomic.Bool
}

// New creates a tick loop with the given interval. A nil logger disables
// logging of recovered panics (they are still swallowed).
func New(interval time.Duration, logger *zap.Logger) *GlobalTick {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	g := &GlobalTick{
		interval: interval,
		logger:   logger,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
	empty := make([]*registration, 0)
	g.regs.Store(&empty)
	return g
}

// Start launches the tick goroutine. Safe to call at most once.
func (g *GlobalTick) Start() {
	if !g.started.CompareAndSwap(false, true) {
		return
	}
	go g.run()
}

// Add registers a callback under name. Names carry no uniqueness
// constraint, matching spec. Returns an opaque reference usable with
// Remove. The reference stays valid across any number of later Add/Remove
// calls: each registration is its own heap allocation, so growing the
// registry only ever copies the slice of pointers, never the registrations
// themselves.
func (g *GlobalTick) Add(name string, cb Callback) *Callback {
	g.mu.Lock()
	defer g.mu.Unlock()

	r := &registration{name: name, cb: cb}
	old := *g.regs.Load()
	next := make([]*registration, len(old), len(old)*2+1)
	copy(next, old)
	next = append(next, r)
	g.regs.Store(&next)
	return &r.cb
}

// Remove unregisters the callback referenced by ref, if still present.
func (g *GlobalTick) Remove(ref *Callback) {
	g.mu.Lock()
	defer g.mu.Unlock()

	old := *g.regs.Load()
	next := make([]*registration, 0, len(old))
	for _, r := range old {
		if &r.cb == ref {
			continue
		}
		next = append(next, r)
	}
	g.regs.Store(&next)
}

// Now returns wall time plus the current virtual-time offset.
func (g *GlobalTick) Now() time.Time {
	return time.Now().Add(time.Duration(g.offset.Load()))
}

// FastForward advances the reported "now" by d without sleeping; used by
// tests that want a timer or feedback loop to observe elapsed virtual time
// immediately. The next natural tick still fires elapsed = interval +
// whatever virtual jump occurred since the prior tick.
func (g *GlobalTick) FastForward(d time.Duration) {
	g.offset.Add(int64(d))
}

func (g *GlobalTick) run() {
	defer close(g.doneCh)

	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()

	last := g.Now()
	for {
		select {
		case <-g.stopCh:
			return
		case <-ticker.C:
			now := g.Now()
			elapsed := now.Sub(last)
			last = now
			g.fire(now, elapsed)
		}
	}
}

func (g *GlobalTick) fire(now time.Time, elapsed time.Duration) {
	regs := *g.regs.Load()
	for _, r := range regs {
		g.runOne(*r, now, elapsed)
	}
}

func (g *GlobalTick) runOne(r registration, now time.Time, elapsed time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			g.logger.Error("tick callback panicked",
				zap.String("callback", r.name),
				zap.Any("recovered", rec))
		}
	}()
	r.cb(now, elapsed)
}

// Shutdown signals the tick goroutine to stop and waits up to timeout for
// it to join. Returns false on timeout.
func (g *GlobalTick) Shutdown(timeout time.Duration) bool {
	if !g.started.Load() {
		return true
	}
	select {
	case <-g.stopCh:
	default:
		close(g.stopCh)
	}
	select {
	case <-g.doneCh:
		return true
	case <-time.After(timeout):
		return false
	}
}
