// Package unit holds the end-to-end scenarios from the cooperative fiber
// runtime's wait-event and scheduling properties, each driven against a
// deterministic fiber.TestLoop so nothing here depends on wall-clock
// timing or goroutine scheduling luck.
package unit

import (
	"testing"
	"time"

	"github.com/evloop/gofiber"
)

func pump(t *testing.T, loop *fiber.TestLoop, done func() bool) {
	t.Helper()
	for i := 0; i < 100000; i++ {
		if done() {
			return
		}
		loop.Drain()
	}
	t.Fatal("pump: exceeded iteration budget without reaching done")
}

// TestPingPong exercises the ping-pong handoff: two fibers alternate
// ownership of a shared counter through a mutex and a pair of condition
// variables, each incrementing on its own parity, for 1000 iterations.
func TestPingPong(t *testing.T) {
	s, loop := fiber.NewTestScheduler()

	m := fiber.NewMutex()
	condOdd := fiber.NewCondVar()  // A waits here while n is odd; signaled when n becomes even
	condEven := fiber.NewCondVar() // B waits here while n is even; signaled when n becomes odd

	const target = 1000
	n := 0
	aDone, bDone := false, false

	aID, err := s.Spawn("A", func(s *fiber.Scheduler, _ any) {
		if err := s.Lock(m); err != nil {
			t.Errorf("A Lock: %v", err)
			return
		}
		for n < target {
			for n%2 != 0 {
				if err := s.CondWait(condOdd, m); err != nil {
					t.Errorf("A CondWait: %v", err)
					s.Unlock(m)
					return
				}
			}
			if n >= target {
				break
			}
			n++
			s.Signal(condEven)
		}
		s.Unlock(m)
		aDone = true
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn A: %v", err)
	}

	bID, err := s.Spawn("B", func(s *fiber.Scheduler, _ any) {
		if err := s.Lock(m); err != nil {
			t.Errorf("B Lock: %v", err)
			return
		}
		for n < target {
			for n%2 != 1 {
				if n >= target {
					break
				}
				if err := s.CondWait(condEven, m); err != nil {
					t.Errorf("B CondWait: %v", err)
					s.Unlock(m)
					return
				}
			}
			if n >= target {
				break
			}
			n++
			s.Signal(condOdd)
		}
		s.Unlock(m)
		bDone = true
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn B: %v", err)
	}

	if err := s.Transfer(aID); err != nil {
		t.Fatalf("transfer A: %v", err)
	}
	if err := s.Transfer(bID); err != nil {
		t.Fatalf("transfer B: %v", err)
	}

	pump(t, loop, func() bool { return aDone && bDone })

	if n != target {
		t.Errorf("n = %d, want %d", n, target)
	}
}

// TestTimedWaitReturnsETIMEDOUT exercises a timed wait: a
// fiber waits on a mutex that is never released, with a 10ms timeout,
// and must resolve with ErrCodeTimedOut once the virtual clock advances
// past the deadline.
func TestTimedWaitReturnsETIMEDOUT(t *testing.T) {
	s, loop := fiber.NewTestScheduler()

	m := fiber.NewMutex()

	holderDone := false
	holderID, err := s.Spawn("holder", func(s *fiber.Scheduler, _ any) {
		if err := s.Lock(m); err != nil {
			t.Errorf("holder Lock: %v", err)
		}
		holderDone = true
		// Never unlocks: the waiter below can never acquire m and must
		// time out instead.
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn holder: %v", err)
	}
	if err := s.Transfer(holderID); err != nil {
		t.Fatalf("transfer holder: %v", err)
	}
	if !holderDone {
		t.Fatal("holder did not complete")
	}

	var gotErr error
	done := false
	waiterID, err := s.Spawn("waiter", func(s *fiber.Scheduler, _ any) {
		gotErr = s.WaitOneWTO(fiber.NewMutexEvent(m), 10*time.Millisecond)
		done = true
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn waiter: %v", err)
	}
	if err := s.Transfer(waiterID); err != nil {
		t.Fatalf("transfer waiter: %v", err)
	}
	if done {
		t.Fatal("waiter resolved before the timeout elapsed")
	}

	loop.Advance(10 * time.Millisecond)
	pump(t, loop, func() bool { return done })

	if !fiber.IsCode(gotErr, fiber.ErrCodeTimedOut) {
		t.Errorf("got err = %v, want ErrCodeTimedOut", gotErr)
	}
}

// TestBroadcastFairness exercises broadcast fairness: five
// fibers join a condition variable's wait queue in declared order; a
// broadcast must wake them in that same order.
func TestBroadcastFairness(t *testing.T) {
	s, loop := fiber.NewTestScheduler()

	m := fiber.NewMutex()
	c := fiber.NewCondVar()

	const n = 5
	var order []int
	done := make([]bool, n)

	ids := make([]fiber.ID, n)
	for i := 0; i < n; i++ {
		i := i
		id, err := s.Spawn("waiter", func(s *fiber.Scheduler, _ any) {
			if err := s.Lock(m); err != nil {
				t.Errorf("Lock: %v", err)
				return
			}
			if err := s.CondWait(c, m); err != nil {
				t.Errorf("CondWait: %v", err)
				s.Unlock(m)
				return
			}
			order = append(order, i)
			s.Unlock(m)
			done[i] = true
		}, nil, 0)
		if err != nil {
			t.Fatalf("Spawn waiter %d: %v", i, err)
		}
		ids[i] = id
	}

	for _, id := range ids {
		if err := s.Transfer(id); err != nil {
			t.Fatalf("transfer: %v", err)
		}
	}

	s.Broadcast(c)

	pump(t, loop, func() bool {
		for _, d := range done {
			if !d {
				return false
			}
		}
		return true
	})

	for i, got := range order {
		if got != i {
			t.Errorf("order[%d] = %d, want %d (broadcast must preserve FIFO wait order)", i, got, i)
			break
		}
	}
}

// TestReclaimOfSuspended exercises reclaiming a suspended fiber: a
// fiber blocked in cond.wait is reclaimed, and the condition variable's
// waiting queue must end up empty with no stray resumption.
func TestReclaimOfSuspended(t *testing.T) {
	s, _ := fiber.NewTestScheduler()

	m := fiber.NewMutex()
	c := fiber.NewCondVar()
	resumed := false

	fID, err := s.Spawn("victim", func(s *fiber.Scheduler, _ any) {
		if err := s.Lock(m); err != nil {
			t.Errorf("Lock: %v", err)
			return
		}
		if err := s.CondWait(c, m); err != nil {
			// Reclaim cancels the wait rather than letting it "arrive";
			// CondWait returning at all here would mean the victim was
			// incorrectly resumed instead of torn down.
			resumed = true
			return
		}
		resumed = true
		s.Unlock(m)
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := s.Transfer(fID); err != nil {
		t.Fatalf("transfer: %v", err)
	}

	if err := s.Reclaim(fID); err != nil {
		t.Fatalf("Reclaim: %v", err)
	}

	if resumed {
		t.Error("reclaimed fiber must not resume its suspended cond.wait")
	}
	if !s.IsReclaimed(fID) {
		t.Error("fiber should be reclaimed")
	}

	// Broadcasting after the reclaim must not panic or attempt to touch
	// the torn-down fiber; the waiting queue should already be empty.
	s.Broadcast(c)
}
