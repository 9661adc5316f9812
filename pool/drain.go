package pool

import (
	"context"
	"time"
)

// waitForDrain polls done with bounded exponential back-off (starting at 1
// ms, capped at 100 ms) until it reports true or ctx is done. This answers
// spec's Open Question on Dispose's "bounded back-off" wait: bounded by the
// caller's context rather than a fixed internal timeout, so a hosting
// application decides how long it is willing to wait for a clean drain.
func waitForDrain(ctx context.Context, done func() bool) {
	delay := time.Millisecond
	const maxDelay = 100 * time.Millisecond
	for !done() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}
		delay *= 2
		if delay > maxDelay {
			delay = maxDelay
		}
	}
}
