// Package dispatcherr holds the sentinel error kinds shared across the
// dispatcher: saturation, lifecycle, misuse, and timing errors. Components
// wrap these with fmt.Errorf("%w", ...) rather than inventing ad-hoc error
// types, so callers can errors.Is against a stable taxonomy.
package dispatcherr

import "errors"

var (
	// ErrQueueSaturated names a work item refused by a dispatch queue.
	// Queue.Submit/TrySubmit report a refusal as a false return rather than
	// this value; Sequential logs it when its inner queue rejects an item.
	ErrQueueSaturated = errors.New("dispatch: queue saturated")

	// ErrInsufficientResources is returned by the broker when it cannot
	// guarantee the minimum worker count a caller required.
	ErrInsufficientResources = errors.New("dispatch: insufficient resources")

	// ErrObjectDisposed names use of a disposed host or factory. No
	// function in this module returns it: a disposed pool reports refused
	// submissions as a false return, and a disposed timer factory drops
	// its timers.
	ErrObjectDisposed = errors.New("dispatch: object disposed")

	// ErrRendezvousAlreadyBound is returned when Wait is called on a
	// rendezvous event that already has a waiting action bound, or has
	// already fired.
	ErrRendezvousAlreadyBound = errors.New("dispatch: rendezvous already bound")

	// ErrResultAlreadyCompleted is returned by Return/Throw on a Result
	// that has already transitioned to a terminal state.
	ErrResultAlreadyCompleted = errors.New("dispatch: result already completed")

	// ErrIllegalArgument marks a caller error: NewWorkItem returns it for a
	// nil callback, and result.BindWithResult throws it into the Result of
	// a callback that panicked.
	ErrIllegalArgument = errors.New("dispatch: illegal argument")

	// ErrTimeout is returned by Result.Block when the caller-supplied
	// deadline elapses first. GlobalTick.Shutdown reports its own timeout
	// as a false return instead.
	ErrTimeout = errors.New("dispatch: timeout")
)
