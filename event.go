package fiber

import (
	"syscall"
	"time"

	"github.com/evloop/gofiber/internal/interfaces"
	"github.com/evloop/gofiber/internal/lifecycle"
)

// eventType distinguishes the handful of things a fiber can suspend on.
type eventType int

const (
	// eventMutex waits for exclusive ownership of a Mutex.
	eventMutex eventType = iota
	// eventCondVar waits for a CondVar signal/broadcast, optionally
	// releasing an associated Mutex across the suspension.
	eventCondVar
	// eventTimer waits for a one-shot host-loop timer to fire; it is
	// this runtime's only external "handle" type, standing in for the
	// spec's generic handle-readiness event (see DESIGN.md).
	eventTimer
)

// Event is a tagged union describing one thing to wait on. It is built
// by the caller (NewMutexEvent, NewCondVarEvent, NewTimerEvent) and
// consumed by Wait/WaitOne/WaitTo/WaitOneWTO; its fields are otherwise
// private scheduler bookkeeping.
type Event struct {
	typ eventType

	owner   ID
	arrived bool
	item    *idQueueItem
	dtor    *destructor

	mutex     *Mutex
	cond      *CondVar
	condMutex *Mutex

	timeout time.Duration
	timer   interfaces.Timer
	isTimer bool // true once this event represents the appended timeout in *To variants
}

// NewMutexEvent builds an event that resolves once m is owned by the
// waiting fiber.
func NewMutexEvent(m *Mutex) *Event {
	return &Event{typ: eventMutex, mutex: m}
}

// NewCondVarEvent builds an event that resolves on the next signal or
// broadcast of c. If mutex is non-nil it must already be locked by the
// waiting fiber; it is released across the suspension and reacquired
// before the wait returns.
func NewCondVarEvent(c *CondVar, mutex *Mutex) *Event {
	return &Event{typ: eventCondVar, cond: c, condMutex: mutex}
}

// NewTimerEvent builds an event that resolves after timeout elapses.
func NewTimerEvent(timeout time.Duration) *Event {
	return &Event{typ: eventTimer, timeout: timeout}
}

// prepareEvent registers ev so that some future post can mark it
// arrived, per the type-specific table in the wait-event engine. It
// always arranges for cancelEvent(ev) to run if the owning fiber is
// reclaimed before the wait resolves.
func (s *Scheduler) prepareEvent(owner *Fiber, ev *Event) error {
	ev.owner = owner.id

	switch ev.typ {
	case eventMutex:
		if !ev.mutex.locked {
			ev.mutex.locked = true
			ev.mutex.lockedBy = owner.id
			ev.arrived = true
		} else {
			item := &idQueueItem{id: owner.id, ev: ev}
			item.link(ev.mutex.pending)
			ev.item = item
		}

	case eventCondVar:
		if ev.condMutex != nil && (!ev.condMutex.locked || ev.condMutex.lockedBy != owner.id) {
			return NewFiberError("cond.wait", owner.id, ErrCodeInvalidArgument, "associated mutex is not locked by the waiter")
		}
		item := &idQueueItem{id: owner.id, ev: ev}
		item.link(ev.cond.waiting)
		ev.item = item
		if ev.condMutex != nil {
			s.unlockMutex(ev.condMutex)
		}

	case eventTimer:
		if s.loop == nil {
			return NewFiberError("wait.timer", owner.id, ErrCodeSystem, "scheduler has no host loop")
		}
		t := s.loop.NewTimer()
		ev.timer = t
		t.Start(func() { s.postEvent(ev) }, ev.timeout, 0)
	}

	ev.dtor = owner.addDestructor(func() { s.cancelEvent(ev) })
	return nil
}

// postEvent marks ev arrived and, if its owning fiber is still live,
// schedules it via the pending queue (transfer-later). It is safe to
// call from a host-loop callback running on the scheduler's own
// goroutine, which is the only context any callback in this runtime
// ever runs on.
func (s *Scheduler) postEvent(ev *Event) {
	ev.arrived = true
	f := s.lookupLive(ev.owner)
	if f == nil {
		s.logger.WithFiber(ev.owner).Warnf("event arrived for reclaimed fiber, dropping")
		return
	}
	f.waitArrived = true
	if ev.item == nil {
		ev.item = &idQueueItem{id: f.id, ev: ev}
	}
	s.transferLaterOne(ev.item)
}

// finishEvent runs type-specific post-processing for an event that
// arrived, and detaches its destructor (the wait is resolving normally,
// not through reclamation).
func (s *Scheduler) finishEvent(ev *Event) {
	owner := s.lookupLive(ev.owner)
	if owner != nil {
		owner.removeDestructor(ev.dtor)
	}

	switch ev.typ {
	case eventCondVar:
		if ev.condMutex != nil && owner != nil {
			// Reacquire may itself block; it is run with a fresh event
			// so this call's own destructor bookkeeping stays separate.
			s.lockMutex(ev.condMutex)
		}
	case eventTimer:
		// nothing to do; the timer already fired.
	case eventMutex:
		// nothing to do; ownership was already assigned on prepare or
		// handed off by unlockMutex before this event arrived.
	}
}

// cancelEvent detaches ev from whatever it was registered on without
// treating it as arrived. It is what a destructor calls on reclaim, and
// what Wait calls on every event that did not arrive.
func (s *Scheduler) cancelEvent(ev *Event) {
	if ev.item != nil {
		ev.item.unlink()
		ev.item = nil
	}
	if ev.timer != nil {
		ev.timer.Stop()
	}
	if owner := s.lookupLive(ev.owner); owner != nil && ev.dtor != nil {
		owner.removeDestructor(ev.dtor)
	}
}

// Wait registers every event in events, suspends the current fiber until
// at least one arrives, finishes the arrived ones and cancels the rest,
// and returns how many arrived.
func (s *Scheduler) Wait(events ...*Event) (int, error) {
	f := s.current()
	startNs := s.nowNs()

	prepared := 0
	for _, ev := range events {
		if err := s.prepareEvent(f, ev); err != nil {
			for _, p := range events[:prepared] {
				s.cancelEvent(p)
			}
			return 0, err
		}
		prepared++
	}

	f.waitArrived = false
	for _, ev := range events {
		if ev.arrived {
			f.waitArrived = true
		}
	}
	f.waitEvents = events
	if !f.waitArrived {
		f.state = lifecycle.StateWaiting
	}
	for !f.waitArrived {
		s.Yield()
	}
	f.waitEvents = nil

	if s.observer != nil {
		s.observer.ObserveWaitLatencyNs(uint64(s.nowNs() - startNs))
	}

	n := 0
	for _, ev := range events {
		if ev.arrived {
			s.finishEvent(ev)
			n++
		} else {
			s.cancelEvent(ev)
		}
	}
	return n, nil
}

// WaitOne is Wait specialized to a single event; it returns nil once ev
// arrives.
func (s *Scheduler) WaitOne(ev *Event) error {
	_, err := s.Wait(ev)
	return err
}

// WaitTo is Wait with an appended timeout: it returns the number of
// non-timer events that arrived (the timer event itself, if it fires, is
// not counted) and whether the timeout fired.
func (s *Scheduler) WaitTo(timeout time.Duration, events ...*Event) (n int, timedOut bool, err error) {
	timerEv := NewTimerEvent(timeout)
	timerEv.isTimer = true
	all := append(append([]*Event{}, events...), timerEv)

	n, err = s.Wait(all...)
	if err != nil {
		return 0, false, err
	}
	if timerEv.arrived {
		timedOut = true
		n--
	}
	return n, timedOut, nil
}

// WaitOneWTO waits on a single event with a timeout, returning a
// ErrCodeTimedOut error (wrapping syscall.ETIMEDOUT) if the timeout
// fires before ev arrives.
func (s *Scheduler) WaitOneWTO(ev *Event, timeout time.Duration) error {
	n, timedOut, err := s.WaitTo(timeout, ev)
	if err != nil {
		return err
	}
	if timedOut && n == 0 {
		return WrapError("wait_one_wto", syscall.ETIMEDOUT)
	}
	return nil
}
