package containers

import (
	"sync"

	"github.com/go-foundations/dispatch"
)

// PriorityInbox is a host's shared intake: max_priority+1 FIFO slots, each
// a slice-backed queue of work items, all guarded by one mutex. TryDequeue scans from the highest
// priority slot down; ties within a slot are FIFO. This generalizes the
// teacher's PriorityQueue[T] binary heap: a heap reorders on every push and
// pop and mixes fairness into comparison logic, where spec calls for a
// flat array of independent FIFO slots so that dequeuing the highest
// non-empty priority is an O(max_priority) scan with no rebalancing, and
// FIFO order within a priority is structural rather than enforced by a
// secondary sort key.
type PriorityInbox struct {
	mu        sync.Mutex
	slots     [][]dispatch.WorkItem
	maxPrio   int
}

// NewPriorityInbox creates an inbox with slots for priorities 0..maxPriority
// inclusive.
func NewPriorityInbox(maxPriority int) *PriorityInbox {
	if maxPriority < 0 {
		maxPriority = 0
	}
	return &PriorityInbox{
		slots:   make([][]dispatch.WorkItem, maxPriority+1),
		maxPrio: maxPriority,
	}
}

// MaxPriority returns the highest valid priority level.
func (p *PriorityInbox) MaxPriority() int {
	return p.maxPrio
}

// TryEnqueue appends item to the tail of its priority's slot. Never blocks;
// returns false only for an out-of-range priority.
func (p *PriorityInbox) TryEnqueue(priority int, item dispatch.WorkItem) bool {
	if priority < 0 || priority > p.maxPrio {
		return false
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.slots[priority] = append(p.slots[priority], item)
	return true
}

// TryDequeue scans from the highest priority slot down and removes the
// head of the first non-empty slot.
func (p *PriorityInbox) TryDequeue() (int, dispatch.WorkItem, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for priority := p.maxPrio; priority >= 0; priority-- {
		slot := p.slots[priority]
		if len(slot) == 0 {
			continue
		}
		item := slot[0]
		p.slots[priority] = slot[1:]
		return priority, item, true
	}
	return 0, dispatch.WorkItem{}, false
}

// Len returns the total number of pending items across all priorities.
func (p *PriorityInbox) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for _, slot := range p.slots {
		total += len(slot)
	}
	return total
}

// IsEmpty reports whether every priority slot is empty.
func (p *PriorityInbox) IsEmpty() bool {
	return p.Len() == 0
}
