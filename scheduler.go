package fiber

import (
	"container/list"
	"fmt"
	"strings"
	"time"

	"github.com/evloop/gofiber/internal/coro"
	"github.com/evloop/gofiber/internal/interfaces"
	"github.com/evloop/gofiber/internal/lifecycle"
	"github.com/evloop/gofiber/internal/logging"
)

// Scheduler owns the fiber table, the call stack, the transfer-later
// pending queue, and the async wake-up handle that services it. There is
// one Scheduler per OS thread; nothing in it is safe for concurrent use
// from more than one goroutine driving it (the whole point of the
// design is that only one fiber is ever logically running at a time).
type Scheduler struct {
	fibers []*Fiber
	ids    idSlots

	callStack []ID

	pending *list.List
	async   interfaces.Async

	loop     interfaces.Loop
	logger   interfaces.Logger
	observer interfaces.Observer
	metrics  *Metrics

	defaultStackSize int
	bufferFilePattern string
	keySlots          int

	rootID ID
}

// Config configures a Scheduler at construction time.
type Config = lifecycle.SchedulerParams

// NewScheduler allocates the root fiber (representing the OS thread
// calling NewScheduler itself) and wires the async wake-up handle that
// drains the transfer-later pending queue. The scheduler does not start
// running anything; call Spawn and then run the host loop.
func NewScheduler(cfg Config) *Scheduler {
	s := &Scheduler{
		pending:           list.New(),
		loop:              cfg.Loop,
		logger:            cfg.Logger,
		observer:          cfg.Observer,
		defaultStackSize:  cfg.DefaultStackSize,
		bufferFilePattern: cfg.BufferFilePattern,
		keySlots:          DefaultKeySlots,
	}
	if s.logger == nil {
		s.logger = logging.Default()
	}
	if s.defaultStackSize == 0 {
		s.defaultStackSize = DefaultStackSize
	}
	if s.bufferFilePattern == "" {
		s.bufferFilePattern = DefaultBufferFilePattern
	}
	s.metrics = NewMetrics()
	if s.observer == nil {
		s.observer = NewMetricsObserver(s.metrics)
	}

	root := &Fiber{name: "root", ctx: coro.Root(), keys: make([]any, s.keySlots), state: lifecycle.StateRunning}
	root.id = s.ids.alloc()
	root.reclaimCond = NewCondVar()
	s.fibers = append(s.fibers, root)
	s.rootID = root.id
	s.callStack = []ID{root.id}

	if s.loop != nil {
		s.async = s.loop.NewAsync(s.drainPending)
	}

	return s
}

// Metrics returns the scheduler's metrics instance for callers that want
// to read it directly rather than through the Observer interface.
func (s *Scheduler) Metrics() *Metrics { return s.metrics }

// nowNs returns the current time in nanoseconds, preferring the host
// loop's monotonic clock (so wait-latency measurements advance with a
// TestLoop's virtual clock in tests) and falling back to the wall clock
// when the scheduler has no loop attached.
func (s *Scheduler) nowNs() int64 {
	if s.loop != nil {
		return s.loop.Now() * int64(time.Millisecond)
	}
	return time.Now().UnixNano()
}

// current returns the fiber at the top of the call stack.
func (s *Scheduler) current() *Fiber {
	return s.fiberAt(s.callStack[len(s.callStack)-1])
}

func (s *Scheduler) fiberAt(id ID) *Fiber {
	return s.fibers[id.slot]
}

// lookupLive returns the fiber named by id, or nil if id's generation is
// stale (the fiber has since been reclaimed).
func (s *Scheduler) lookupLive(id ID) *Fiber {
	if !s.ids.valid(id) {
		return nil
	}
	return s.fiberAt(id)
}

// Self returns the currently running fiber's ID.
func (s *Scheduler) Self() ID { return s.current().id }

// Parent returns the current fiber's parent, if it has one.
func (s *Scheduler) Parent() (ID, bool) {
	f := s.current()
	return f.parent, f.hasParent
}

// Disown reassigns the current fiber's parent to newParent, removing it
// from its previous parent's child list.
func (s *Scheduler) Disown(newParent ID) error {
	f := s.current()
	if f.hasParent {
		if old := s.lookupLive(f.parent); old != nil {
			old.children = removeID(old.children, f.id)
		}
	}
	if np := s.lookupLive(newParent); np != nil {
		np.children = append(np.children, f.id)
		f.parent = newParent
		f.hasParent = true
	} else {
		f.hasParent = false
	}
	return nil
}

func removeID(ids []ID, target ID) []ID {
	for i, id := range ids {
		if id == target {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// Spawn allocates a fiber (reusing a reclaimed slot when available),
// attaches it as a child of the current fiber, and returns its ID. The
// fiber does not run until something transfers into it.
func (s *Scheduler) Spawn(name string, fn func(s *Scheduler, arg any), arg any, stackSize int) (ID, error) {
	if stackSize <= 0 {
		stackSize = s.defaultStackSize
	}
	if stackSize < MinStackSize {
		return ID{}, NewError("spawn", ErrCodeInvalidArgument, "stack size below minimum")
	}

	parent := s.current()
	id := s.ids.alloc()

	f := &Fiber{
		name:      name,
		id:        id,
		fn:        fn,
		arg:       arg,
		stackSize: stackSize,
		parent:    parent.id,
		hasParent: true,
		keys:      make([]any, s.keySlots),
	}
	f.reclaimCond = NewCondVar()
	f.ctx = coro.Create(func() { s.callWrapper(f) })

	if int(id.slot) < len(s.fibers) {
		s.fibers[id.slot] = f
	} else {
		s.fibers = append(s.fibers, f)
	}
	parent.children = append(parent.children, id)

	if s.observer != nil {
		s.observer.ObserveSpawn(stackSize)
	}
	return id, nil
}

// callWrapper is the function every fiber's coroutine actually starts
// in: run the user function, reclaim self, then yield one last time.
// Control is never expected to return past the final Yield; if it does,
// callWrapper panics rather than re-entering user code.
func (s *Scheduler) callWrapper(f *Fiber) {
	f.fn(s, f.arg)
	s.Reclaim(f.id)
	s.Yield()
	panic("fiber resumed after reclaiming itself")
}

// Transfer switches execution from the current fiber into to, pushing a
// new call-stack frame. Control returns to this call only once the
// callee (or something further down the chain) yields back to it.
func (s *Scheduler) Transfer(to ID) error {
	target := s.lookupLive(to)
	if target == nil {
		return NewFiberError("transfer", to, ErrCodeNoSuchFiber, "no such fiber")
	}
	from := s.current()
	s.callStack = append(s.callStack, to)
	target.transfers++
	target.state = lifecycle.StateRunning
	if s.observer != nil {
		s.observer.ObserveTransfer()
	}
	coro.Transfer(from.ctx, target.ctx)
	return nil
}

// Yield pops the current fiber off the call stack and transfers back
// into whatever is now on top. It is a programming error to call Yield
// as the root fiber.
func (s *Scheduler) Yield() {
	if len(s.callStack) <= 1 {
		panic("fiber: Yield called on the root fiber")
	}
	from := s.current()
	s.callStack = s.callStack[:len(s.callStack)-1]
	to := s.current()
	if s.observer != nil {
		s.observer.ObserveTransfer()
	}
	coro.Transfer(from.ctx, to.ctx)
}

// Sleep suspends the current fiber for at least d, driven by the host
// loop's timer.
func (s *Scheduler) Sleep(d time.Duration) error {
	return s.WaitOne(NewTimerEvent(d))
}

// SetNoReclaim increments the current fiber's no_reclaim depth,
// preventing Reclaim from completing against it until matched by
// SetReclaim.
func (s *Scheduler) SetNoReclaim() {
	s.current().noReclaim++
}

// SetReclaim decrements the current fiber's no_reclaim depth. On
// transition to zero, if a reclaim was requested meanwhile, it
// broadcasts the fiber's reclaim condition so a pending Reclaim call can
// proceed.
func (s *Scheduler) SetReclaim() {
	f := s.current()
	if f.noReclaim > 0 {
		f.noReclaim--
	}
	if f.noReclaim == 0 {
		s.Broadcast(f.reclaimCond)
	}
}

// WantReclaim reports whether a reclaim of the current fiber is pending
// behind its no_reclaim depth.
func (s *Scheduler) WantReclaim() bool {
	return s.current().wantReclaim
}

// IsReclaimed reports whether id refers to a fiber that has since been
// reclaimed (including a stale ID whose slot was reused).
func (s *Scheduler) IsReclaimed(id ID) bool {
	return !s.ids.valid(id)
}

// Reclaim tears down the fiber named by id: if it is mid critical
// section (no_reclaim > 0) this blocks the caller until that section
// ends, then recursively reclaims children, runs destructors in
// insertion order, drains the arena, bumps the slot's generation, and
// returns the slot to the free list. If the reclaimed fiber is the
// caller itself, Reclaim yields afterward instead of returning.
func (s *Scheduler) Reclaim(id ID) error {
	f := s.lookupLive(id)
	if f == nil {
		return nil // already reclaimed; reclaiming twice is a no-op
	}

	for f.noReclaim > 0 {
		f.wantReclaim = true
		if _, err := s.Wait(NewCondVarEvent(f.reclaimCond, nil)); err != nil {
			return err
		}
		f = s.lookupLive(id)
		if f == nil {
			return nil
		}
	}

	for _, childID := range append([]ID{}, f.children...) {
		s.Reclaim(childID)
	}

	for _, d := range f.destructors {
		d.fn()
	}
	f.destructors = nil
	f.arena = nil
	f.reclaimed = true
	f.state = lifecycle.StateReclaimed

	s.ids.free(id)

	if s.observer != nil {
		s.observer.ObserveReclaim(f.transfers)
	}

	// A self-reclaim must leave id on top of the call stack for Yield to
	// pop itself; removing it here first would leave Yield popping the
	// wrong frame (or, if id was the only non-root frame, panicking as
	// if called on the root fiber).
	if s.current().id == id {
		s.Yield()
	} else {
		s.callStack = removeID(s.callStack, id)
	}
	return nil
}

// transferLaterOne enqueues item's fiber to be resumed on the loop's
// next turn and ensures the async handle is referenced so the loop
// stays alive to service it.
func (s *Scheduler) transferLaterOne(item *idQueueItem) {
	item.link(s.pending)
	if f := s.lookupLive(item.id); f != nil {
		f.state = lifecycle.StateRunnable
	}
	s.refAsyncForPending()
}

// transferLaterBroadcast enqueues every item as one atomic FIFO run,
// used by CondVar.Broadcast so all woken waiters are ordered relative to
// each other exactly as they joined the wait queue.
func (s *Scheduler) transferLaterBroadcast(items []*idQueueItem) {
	for _, item := range items {
		item.link(s.pending)
		if f := s.lookupLive(item.id); f != nil {
			f.state = lifecycle.StateRunnable
		}
	}
	s.refAsyncForPending()
}

func (s *Scheduler) refAsyncForPending() {
	if s.async == nil {
		return
	}
	s.async.Ref()
	s.async.Send()
	if s.observer != nil {
		s.observer.ObservePendingQueueDepth(s.pending.Len())
	}
}

// drainPending is the async handle's callback: pop the head of the
// pending queue, transfer into it, and re-arm. It keeps the async handle
// referenced only while the queue is non-empty, matching the host loop's
// ref/unref idle-exit discipline.
func (s *Scheduler) drainPending() {
	elem := s.pending.Front()
	if elem == nil {
		s.async.Unref()
		return
	}
	item := elem.Value.(*idQueueItem)
	item.unlink()

	if s.observer != nil {
		s.observer.ObservePendingQueueDepth(s.pending.Len())
	}

	if s.pending.Len() > 0 {
		s.async.Send()
	} else {
		s.async.Unref()
	}

	f := s.lookupLive(item.id)
	if f == nil {
		s.logger.WithFiber(item.id).Warnf("transfer-later skipped reclaimed fiber")
		return
	}
	if err := s.Transfer(f.id); err != nil {
		s.logger.WithFiber(f.id).Warnf("transfer-later failed: %v", err)
	}
}

// DebugDump renders a human-readable snapshot of every live fiber and
// the current call stack, for diagnostics.
func (s *Scheduler) DebugDump() string {
	var b strings.Builder
	fmt.Fprintf(&b, "call stack (bottom to top):\n")
	for _, id := range s.callStack {
		f := s.fiberAt(id)
		fmt.Fprintf(&b, "  %s %q\n", id, f.name)
	}
	fmt.Fprintf(&b, "fibers:\n")
	for _, f := range s.fibers {
		if f == nil || f.reclaimed {
			continue
		}
		fmt.Fprintf(&b, "  %s %q stack=%d children=%d\n", f.id, f.name, f.stackSize, len(f.children))
	}
	return b.String()
}

// Info returns a read-only snapshot of the fiber named by id.
func (s *Scheduler) Info(id ID) (Info, bool) {
	f := s.lookupLive(id)
	if f == nil {
		return Info{}, false
	}
	return Info{
		Name:           f.name,
		State:          f.state,
		StackSize:      f.stackSize,
		CallStackDepth: len(s.callStack),
	}, true
}
