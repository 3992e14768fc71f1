package fiber

import "container/list"

// Mutex is a FIFO, cooperative-scheduler-level lock: it never blocks an
// OS thread, only yields the calling fiber until ownership is granted.
// Re-entrant locking by the current owner is a programming error.
type Mutex struct {
	locked   bool
	lockedBy ID
	pending  *list.List
}

// NewMutex returns an unlocked Mutex.
func NewMutex() *Mutex {
	return &Mutex{pending: list.New()}
}

// Lock blocks the current fiber until it owns m. It panics if the
// current fiber already owns m (re-entrant locking is a programming
// error, not a recoverable one). Any error from the underlying wait is
// returned; a fiber reclaimed while waiting is never resumed, so Lock
// does not return in it at all.
func (s *Scheduler) Lock(m *Mutex) error {
	f := s.current()
	if m.locked && m.lockedBy == f.id {
		panic("fiber: mutex.lock: fiber attempted to lock a mutex it already holds")
	}
	return s.lockMutex(m)
}

// lockMutex is Lock's internals, reusable by the wait-event engine when
// a condition-variable wait needs to reacquire its associated mutex.
func (s *Scheduler) lockMutex(m *Mutex) error {
	return s.WaitOne(NewMutexEvent(m))
}

// TryLock claims m if it is free, without suspending. It returns false
// if m is already held.
func (s *Scheduler) TryLock(m *Mutex) bool {
	if m.locked {
		return false
	}
	m.locked = true
	m.lockedBy = s.current().id
	return true
}

// Unlock releases m, handing it directly to the next FIFO waiter (if
// any) rather than leaving it free to be raced for — there is only ever
// one cooperative thread, so "handing off" and "freeing" are the same
// action observed by different callers.
func (s *Scheduler) Unlock(m *Mutex) error {
	f := s.current()
	if !m.locked || m.lockedBy != f.id {
		panic("fiber: mutex.unlock: fiber does not own this mutex")
	}
	s.unlockMutex(m)
	return nil
}

// unlockMutex performs the hand-off described in Unlock without the
// ownership assertion, since the wait-event engine also calls it on
// behalf of a condition variable wait releasing its associated mutex
// (which the caller has already verified is locked by the current
// fiber).
func (s *Scheduler) unlockMutex(m *Mutex) {
	for m.pending.Len() > 0 {
		elem := m.pending.Front()
		item := elem.Value.(*idQueueItem)
		item.unlink()

		waiter := s.lookupLive(item.id)
		if waiter == nil {
			s.logger.WithFiber(item.id).Warnf("mutex hand-off skipped reclaimed fiber")
			continue
		}
		m.lockedBy = waiter.id
		item.ev.arrived = true
		waiter.waitArrived = true
		s.transferLaterOne(item)
		return
	}
	m.locked = false
	m.lockedBy = ID{}
}
