package fiber

import "container/list"

// CondVar is a FIFO condition variable built on the same wait-event
// engine as Mutex. Waiters may optionally supply a mutex, released
// before suspension and reacquired before the wait returns.
type CondVar struct {
	waiting *list.List
}

// NewCondVar returns an empty condition variable.
func NewCondVar() *CondVar {
	return &CondVar{waiting: list.New()}
}

// CondWait suspends the current fiber on c. If mutex is non-nil it must
// already be locked by the current fiber; CondWait returns
// ErrCodeInvalidArgument otherwise.
func (s *Scheduler) CondWait(c *CondVar, mutex *Mutex) error {
	return s.WaitOne(NewCondVarEvent(c, mutex))
}

// Signal wakes the single longest-waiting fiber on c, if any.
func (s *Scheduler) Signal(c *CondVar) {
	if c.waiting.Len() == 0 {
		return
	}
	elem := c.waiting.Front()
	item := elem.Value.(*idQueueItem)
	item.unlink()
	s.markCondWaiterArrived(item)
	s.transferLaterOne(item)
}

// Broadcast wakes every fiber waiting on c. All of them are moved onto
// the pending queue as a single atomic splice, preserving the order
// they joined c.waiting, so they resume in that same order — this is
// the property the broadcast-fairness scenario checks.
func (s *Scheduler) Broadcast(c *CondVar) {
	if c.waiting.Len() == 0 {
		return
	}
	items := make([]*idQueueItem, 0, c.waiting.Len())
	for elem := c.waiting.Front(); elem != nil; elem = elem.Next() {
		items = append(items, elem.Value.(*idQueueItem))
	}
	for _, item := range items {
		item.unlink()
		s.markCondWaiterArrived(item)
	}
	s.transferLaterBroadcast(items)
}

func (s *Scheduler) markCondWaiterArrived(item *idQueueItem) {
	waiter := s.lookupLive(item.id)
	if waiter == nil {
		s.logger.WithFiber(item.id).Warnf("cond wake skipped reclaimed fiber")
		return
	}
	item.ev.arrived = true
	waiter.waitArrived = true
}
