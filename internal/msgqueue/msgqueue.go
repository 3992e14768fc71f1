// Package msgqueue implements the bounded ring-of-pointers message queue
// described in spec.md §4.7: a fixed-capacity FIFO of opaque values,
// synchronized with the cooperative Mutex/CondVar pair rather than OS
// locks, so pushers and poppers suspend through the same wait-event
// engine every other blocking operation in this runtime uses.
package msgqueue

import "github.com/evloop/gofiber"

// Queue is a bounded ring buffer of opaque values. The ring reserves one
// extra slot beyond the requested capacity to disambiguate full from
// empty without a separate counter, the same indexing idiom used by the
// retrieval pack's swap-buffer double-indexing for producer/consumer
// handoff.
type Queue struct {
	ring []any
	max  int // len(ring); one more than the queue's usable capacity
	head int
	tail int

	mutex *fiber.Mutex

	bytesFreedCond    *fiber.CondVar
	bytesAvailableCond *fiber.CondVar
}

// New returns a queue that holds up to capacity values.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	return &Queue{
		ring:               make([]any, capacity+1),
		max:                capacity + 1,
		mutex:              fiber.NewMutex(),
		bytesFreedCond:     fiber.NewCondVar(),
		bytesAvailableCond: fiber.NewCondVar(),
	}
}

// Capacity returns the maximum number of values the queue holds.
func (q *Queue) Capacity() int { return q.max - 1 }

func (q *Queue) full() bool { return (q.head+1)%q.max == q.tail }
func (q *Queue) empty() bool { return q.head == q.tail }

// Len returns the number of values currently queued. Caller must hold
// no particular lock; this is a best-effort snapshot used mostly by
// tests.
func (q *Queue) Len() int {
	if q.head >= q.tail {
		return q.head - q.tail
	}
	return q.max - q.tail + q.head
}

// Push suspends the caller until there is room, then enqueues v.
func (q *Queue) Push(s *fiber.Scheduler, v any) error {
	if err := s.Lock(q.mutex); err != nil {
		return err
	}
	defer s.Unlock(q.mutex)
	for q.full() {
		if err := s.CondWait(q.bytesFreedCond, q.mutex); err != nil {
			return err
		}
	}
	q.pushLocked(v)
	s.Signal(q.bytesAvailableCond)
	return nil
}

// Pop suspends the caller until a value is available, then dequeues it.
func (q *Queue) Pop(s *fiber.Scheduler) (any, error) {
	if err := s.Lock(q.mutex); err != nil {
		return nil, err
	}
	defer s.Unlock(q.mutex)
	for q.empty() {
		if err := s.CondWait(q.bytesAvailableCond, q.mutex); err != nil {
			return nil, err
		}
	}
	v := q.popLocked()
	s.Signal(q.bytesFreedCond)
	return v, nil
}

// TryPush enqueues v without suspending, returning false if the queue is
// full.
func (q *Queue) TryPush(s *fiber.Scheduler, v any) (bool, error) {
	if err := s.Lock(q.mutex); err != nil {
		return false, err
	}
	defer s.Unlock(q.mutex)
	if q.full() {
		return false, nil
	}
	q.pushLocked(v)
	s.Signal(q.bytesAvailableCond)
	return true, nil
}

// TryPop dequeues a value without suspending, returning ok=false if the
// queue is empty.
func (q *Queue) TryPop(s *fiber.Scheduler) (v any, ok bool, err error) {
	if err := s.Lock(q.mutex); err != nil {
		return nil, false, err
	}
	defer s.Unlock(q.mutex)
	if q.empty() {
		return nil, false, nil
	}
	v = q.popLocked()
	s.Signal(q.bytesFreedCond)
	return v, true, nil
}

// WaitPush suspends the caller until there is room to push, without
// pushing anything itself.
func (q *Queue) WaitPush(s *fiber.Scheduler) error {
	if err := s.Lock(q.mutex); err != nil {
		return err
	}
	defer s.Unlock(q.mutex)
	for q.full() {
		if err := s.CondWait(q.bytesFreedCond, q.mutex); err != nil {
			return err
		}
	}
	return nil
}

// WaitPop suspends the caller until a value is available, without
// popping it.
func (q *Queue) WaitPop(s *fiber.Scheduler) error {
	if err := s.Lock(q.mutex); err != nil {
		return err
	}
	defer s.Unlock(q.mutex)
	for q.empty() {
		if err := s.CondWait(q.bytesAvailableCond, q.mutex); err != nil {
			return err
		}
	}
	return nil
}

// Clear resets the queue to empty, discarding any queued values. If
// wakeWriters is true, every fiber blocked in Push/WaitPush is woken so
// it can observe the newly-empty queue.
func (q *Queue) Clear(s *fiber.Scheduler, wakeWriters bool) error {
	if err := s.Lock(q.mutex); err != nil {
		return err
	}
	defer s.Unlock(q.mutex)
	q.head = 0
	q.tail = 0
	for i := range q.ring {
		q.ring[i] = nil
	}
	if wakeWriters {
		s.Broadcast(q.bytesFreedCond)
	}
	return nil
}

func (q *Queue) pushLocked(v any) {
	q.ring[q.head] = v
	q.head = (q.head + 1) % q.max
}

func (q *Queue) popLocked() any {
	v := q.ring[q.tail]
	q.ring[q.tail] = nil
	q.tail = (q.tail + 1) % q.max
	return v
}
