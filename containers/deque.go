// Package containers implements the multi-producer-safe structures the
// dispatcher builds on: a per-worker work-stealing deque, a bounded stack
// used for parked-worker reserves, and a priority inbox used by hosts.
// Failure mode throughout: Try* methods return false rather than block, so
// callers can surface a queue-saturated error. The deque, the priority
// inbox and a Stack created with capacity <= 0 grow as needed; only a
// Stack with a positive capacity refuses a push for lack of room.
package containers

import (
	"sync"

	"github.com/go-foundations/dispatch"
)

// WorkStealingDeque is the owner thread's private LIFO deque, adapted from
// the teacher's generic Chase-Lev-style deque to carry dispatch.WorkItem
// instead of a generic Job[T]. The owner calls Push/Pop at the bottom;
// sibling workers call Steal at the top. A mutex stands in for the
// teacher's split RWMutex/atomics: Pop and Push always run on the owning
// worker's goroutine and never overlap with each other, so the only real
// contention is owner-vs-thieves, which the mutex serializes exactly the
// way the teacher's RWMutex already did.
type WorkStealingDeque struct {
	mu     sync.Mutex
	bottom int
	top    int
	buffer []dispatch.WorkItem
}

// NewWorkStealingDeque creates a deque with the given initial capacity.
func NewWorkStealingDeque(initialSize int) *WorkStealingDeque {
	if initialSize <= 0 {
		initialSize = 64
	}
	return &WorkStealingDeque{
		buffer: make([]dispatch.WorkItem, initialSize),
	}
}

// Push adds an item to the bottom of the deque. Owner-thread only.
func (d *WorkStealingDeque) Push(item dispatch.WorkItem) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.bottom-d.top >= len(d.buffer) {
		d.grow()
	}
	d.buffer[d.bottom%len(d.buffer)] = item
	d.bottom++
}

// Pop removes and returns an item from the bottom of the deque (LIFO).
// Owner-thread only.
func (d *WorkStealingDeque) Pop() (dispatch.WorkItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	bottom := d.bottom - 1
	d.bottom = bottom
	top := d.top

	if top > bottom {
		d.bottom = top
		return dispatch.WorkItem{}, false
	}
	item := d.buffer[bottom%len(d.buffer)]
	if top == bottom {
		d.bottom = top
	}
	return item, true
}

// Steal removes and returns an item from the top of the deque (FIFO
// relative to pushes). Called by sibling workers.
func (d *WorkStealingDeque) Steal() (dispatch.WorkItem, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	top := d.top
	bottom := d.bottom
	if top >= bottom {
		return dispatch.WorkItem{}, false
	}
	item := d.buffer[top%len(d.buffer)]
	d.top++
	return item, true
}

func (d *WorkStealingDeque) grow() {
	newBuffer := make([]dispatch.WorkItem, len(d.buffer)*2)
	for i := d.top; i < d.bottom; i++ {
		newBuffer[i%len(newBuffer)] = d.buffer[i%len(d.buffer)]
	}
	d.buffer = newBuffer
}

// Size returns the current number of items in the deque.
func (d *WorkStealingDeque) Size() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.bottom - d.top
}

// IsEmpty reports whether the deque currently holds no items.
func (d *WorkStealingDeque) IsEmpty() bool {
	return d.Size() == 0
}

// Drain pops up to limit items (0 means unlimited) and returns them in pop
// order; used by eviction, which must empty a worker's deque before
// handing the worker back to its host or the broker.
func (d *WorkStealingDeque) Drain(limit int) []dispatch.WorkItem {
	var out []dispatch.WorkItem
	for limit <= 0 || len(out) < limit {
		item, ok := d.Pop()
		if !ok {
			break
		}
		out = append(out, item)
	}
	return out
}
