package broker

import "time"

// Tuning defaults from spec's §4.8.
const (
	DefaultIdleLimit       = 6 * time.Second
	DefaultCPUSaturation   = 0.98
	DefaultSaturationLimit = 3 * time.Second
	DefaultCPUMaintain     = 0.90
)

// VelocityDecrease, VelocityMaintain, VelocityIncrease are the three
// directives the feedback loop pushes into hosts via Host.ApplyVelocity.
const (
	VelocityDecrease = -1
	VelocityMaintain = 0
	VelocityIncrease = 1
)

func (b *Broker) onTick(now time.Time, elapsed time.Duration) {
	b.shrinkIdleReserve(now)
	b.applyCPUFeedback(now)
}

// shrinkIdleReserve implements step 1 of the feedback loop: if the reserve
// has held more than targetReserve workers continuously for idle_limit,
// pop one and shut it down.
func (b *Broker) shrinkIdleReserve(now time.Time) {
	b.mu.Lock()
	if b.reserve.Len() <= b.targetReserve {
		b.idleSince = time.Time{}
		b.mu.Unlock()
		return
	}
	if b.idleSince.IsZero() {
		b.idleSince = now
		b.mu.Unlock()
		return
	}
	if now.Sub(b.idleSince) < DefaultIdleLimit {
		b.mu.Unlock()
		return
	}
	b.idleSince = now
	b.mu.Unlock()

	w, ok := b.reserve.TryPop()
	if !ok {
		return
	}
	b.mu.Lock()
	if b.allocated > 0 {
		b.allocated--
	}
	b.mu.Unlock()

	w.Shutdown()
}

// applyCPUFeedback implements step 2 of the feedback loop: sample CPU load
// and, per spec's three bands, push a velocity directive into every
// registered host (after the starvation override, which always wins when a
// host has pending work and no threads at all).
func (b *Broker) applyCPUFeedback(now time.Time) {
	load := b.sampler.Sample()

	b.mu.Lock()
	hosts := make([]Host, 0, len(b.hosts))
	for _, h := range b.hosts {
		hosts = append(hosts, h)
	}
	saturatedSince := b.saturatedSince
	switch {
	case load >= DefaultCPUSaturation:
		if saturatedSince.IsZero() {
			b.saturatedSince = now
			saturatedSince = now
		}
	default:
		b.saturatedSince = time.Time{}
		saturatedSince = time.Time{}
	}
	b.mu.Unlock()

	for _, h := range hosts {
		b.directHost(h, load, now, saturatedSince)
	}
}

func (b *Broker) directHost(h Host, load float64, now time.Time, saturatedSince time.Time) {
	starving := h.PendingItems() > 0 && h.ThreadCount() == 0
	if starving {
		h.ApplyVelocity(VelocityIncrease)
		return
	}

	switch {
	case load >= DefaultCPUSaturation:
		if !saturatedSince.IsZero() && now.Sub(saturatedSince) >= DefaultSaturationLimit {
			if h.ThreadCount() > 1 {
				h.ApplyVelocity(VelocityDecrease)
			}
			return
		}
		h.ApplyVelocity(VelocityMaintain)
	case load >= DefaultCPUMaintain:
		h.ApplyVelocity(VelocityMaintain)
	default:
		if h.PendingItems() > 0 {
			h.ApplyVelocity(VelocityIncrease)
			return
		}
		h.ApplyVelocity(VelocityMaintain)
	}
}
