// Package interfaces provides internal interface definitions for gofiber.
// These are separate from the public package to avoid circular imports
// between the root package and its internal collaborators.
package interfaces

import (
	"fmt"
	"time"
)

// Loop is the external host event loop contract the scheduler consumes.
// Only three operations are needed: register an async wake-up handle,
// start a one-shot timer, and query monotonic time.
type Loop interface {
	// NewAsync registers a handle that, when Send is called, invokes cb
	// on a future turn of the loop. The returned handle starts unreferenced.
	NewAsync(cb func()) Async

	// NewTimer creates a one-shot or repeating timer handle.
	NewTimer() Timer

	// Now returns the loop's monotonic clock in milliseconds.
	Now() int64
}

// Async is a wake-up handle. Ref/Unref control whether the handle alone
// keeps the loop alive; an idle scheduler must not pin the loop.
type Async interface {
	Send()
	Ref()
	Unref()
	Close()
}

// Timer is a one-shot (or repeating) timer handle.
type Timer interface {
	// Start arms the timer; cb fires after timeout elapses. If repeat > 0
	// the timer re-arms itself every repeat duration.
	Start(cb func(), timeout, repeat time.Duration)
	Stop()
	// Active reports whether the timer is currently armed.
	Active() bool
}

// Logger is the minimal structured-logging contract the runtime logs
// through. *logging.Logger implements it.
type Logger interface {
	Debugf(format string, args ...any)
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
	Errorf(format string, args ...any)

	// WithFiber returns a logger whose lines are tagged with fiber's
	// identity, so a warning about a reclaimed or stale fiber traces back
	// to it without every call site hand-formatting the ID into its
	// message.
	WithFiber(fiber fmt.Stringer) Logger
}

// Observer collects scheduler metrics. Implementations must be
// goroutine-safe only insofar as the scheduler itself is single-threaded;
// methods are always called from the scheduler's one OS thread.
type Observer interface {
	ObserveSpawn(stackSize int)
	ObserveReclaim(fiberAgeTransfers uint64)
	ObserveTransfer()
	ObserveWaitLatencyNs(latencyNs uint64)
	ObservePendingQueueDepth(depth int)
}
