package fiber

import (
	"container/list"

	"github.com/evloop/gofiber/internal/coro"
	"github.com/evloop/gofiber/internal/lifecycle"
)

// destructor is invoked, in insertion order, when the owning fiber is
// reclaimed. Every suspension registers one that detaches the waiter
// from whatever queue it was linked into, which is what makes
// cancellation on reclaim safe: the queue never holds a dangling item.
type destructor struct {
	fn func()
}

// idQueueItem is an intrusive node that can sit on exactly one list.List
// at a time (a mutex's pending queue, a cond var's waiting queue, or the
// scheduler's transfer-later pending queue). Recording which list holds
// it lets its owning destructor remove it without the list knowing
// anything about destructors.
type idQueueItem struct {
	id   ID
	ev   *Event
	list *list.List
	elem *list.Element
}

func (it *idQueueItem) link(l *list.List) {
	it.list = l
	it.elem = l.PushBack(it)
}

func (it *idQueueItem) unlink() {
	if it.list == nil {
		return
	}
	it.list.Remove(it.elem)
	it.list = nil
	it.elem = nil
}

// Fiber is one lightweight execution context. Most of its fields exist
// to support the reclaim and wait-event protocols rather than ordinary
// program logic, mirroring struct fbr_fiber in the C runtime this is
// built from.
type Fiber struct {
	name string
	id   ID

	fn  func(s *Scheduler, arg any)
	arg any

	ctx       *coro.Context
	stackSize int

	parent   ID
	hasParent bool
	children []ID

	destructors []*destructor
	arena       []any

	waitEvents  []*Event
	waitArrived bool

	reclaimCond *CondVar
	noReclaim   int
	wantReclaim bool

	keys     []any
	userData any

	state     lifecycle.FiberState
	reclaimed bool
	transfers uint64
}

// addDestructor appends fn to the fiber's destructor list, to be run in
// insertion order on reclaim.
func (f *Fiber) addDestructor(fn func()) *destructor {
	d := &destructor{fn: fn}
	f.destructors = append(f.destructors, d)
	return d
}

// removeDestructor detaches d without invoking it, used when a
// suspension resolves normally (finish_ev/cancel_ev) rather than through
// reclamation.
func (f *Fiber) removeDestructor(d *destructor) {
	for i, cur := range f.destructors {
		if cur == d {
			f.destructors = append(f.destructors[:i], f.destructors[i+1:]...)
			return
		}
	}
}

// allocArena tracks v as owned by the fiber's allocation arena; it is
// released (dropped for GC) when the fiber is reclaimed. No code in this
// module registers values through it; the fiber buffer and message queue
// own their memory through the values their New functions return.
func (f *Fiber) allocArena(v any) {
	f.arena = append(f.arena, v)
}

// Info is a read-only, point-in-time snapshot of a fiber's status
// (lifecycle.FiberInfo re-exported as a method result for convenience).
type Info = lifecycle.FiberInfo

// GetKey returns the fiber-local value stored at slot. Fiber-local keys
// are a supplemental feature (original_source/fiber.c's fbr_key_get):
// fixed-size per-fiber storage slots a fiber's own code can use without a
// global registry. A slot outside [0, keySlots) is not a registered key
// and is reported as ErrCodeNoSuchKey, mirroring fbr_key_get's FBR_ENOKEY.
func (f *Fiber) GetKey(slot int) (any, error) {
	if slot < 0 || slot >= len(f.keys) {
		return nil, NewFiberError("fiber.get_key", f.id, ErrCodeNoSuchKey, "no such fiber-local key")
	}
	return f.keys[slot], nil
}

// SetKey stores v at the fiber-local slot, or reports ErrCodeNoSuchKey
// for a slot outside [0, keySlots), mirroring fbr_key_set's FBR_ENOKEY.
func (f *Fiber) SetKey(slot int, v any) error {
	if slot < 0 || slot >= len(f.keys) {
		return NewFiberError("fiber.set_key", f.id, ErrCodeNoSuchKey, "no such fiber-local key")
	}
	f.keys[slot] = v
	return nil
}
