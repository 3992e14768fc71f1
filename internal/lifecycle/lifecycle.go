// Package lifecycle holds the scheduler's typed startup parameters and
// per-fiber status snapshot, mirroring the control-plane request/response
// pair a device driver would expose for its lifecycle.
package lifecycle

import (
	"github.com/evloop/gofiber/internal/constants"
	"github.com/evloop/gofiber/internal/interfaces"
)

// SchedulerParams configures a Scheduler at Init time.
type SchedulerParams struct {
	Loop            interfaces.Loop
	Logger          interfaces.Logger
	Observer        interfaces.Observer
	DefaultStackSize int
	BufferFilePattern string
}

// DefaultSchedulerParams returns sensible defaults layered on top of loop.
func DefaultSchedulerParams(loop interfaces.Loop) SchedulerParams {
	return SchedulerParams{
		Loop:              loop,
		DefaultStackSize:  constants.DefaultStackSize,
		BufferFilePattern: constants.DefaultBufferFilePattern,
	}
}

// FiberState is the lifecycle state of a fiber, exposed read-only for
// diagnostics (DebugDump, tests).
type FiberState int

const (
	StateRunnable FiberState = iota
	StateRunning
	StateWaiting
	StateReclaimed
)

func (s FiberState) String() string {
	switch s {
	case StateRunnable:
		return "runnable"
	case StateRunning:
		return "running"
	case StateWaiting:
		return "waiting"
	case StateReclaimed:
		return "reclaimed"
	default:
		return "unknown"
	}
}

// FiberInfo is a point-in-time, read-only snapshot of a fiber's status.
type FiberInfo struct {
	Name          string
	State         FiberState
	StackSize     int
	CallStackDepth int
}
