package msgqueue

import (
	"testing"

	"github.com/evloop/gofiber"
)

func pump(t *testing.T, loop *fiber.TestLoop, done func() bool) {
	t.Helper()
	for i := 0; i < 10000; i++ {
		if done() {
			return
		}
		loop.Drain()
	}
	t.Fatal("pump: exceeded iteration budget without reaching done")
}

func TestTryPushTryPopNonBlocking(t *testing.T) {
	q := New(2)
	s, _ := fiber.NewTestScheduler()

	var thirdPushOK, gotFirst, gotSecond, gotThirdOK bool
	done := false

	workerID, err := s.Spawn("worker", func(s *fiber.Scheduler, _ any) {
		if ok, err := q.TryPush(s, 1); err != nil || !ok {
			t.Errorf("TryPush(1) = %v, %v", ok, err)
		}
		if ok, err := q.TryPush(s, 2); err != nil || !ok {
			t.Errorf("TryPush(2) = %v, %v", ok, err)
		}
		ok, err := q.TryPush(s, 3)
		if err != nil {
			t.Errorf("TryPush(3) err = %v", err)
		}
		thirdPushOK = ok // the third push should fail: capacity is 2

		v, ok, err := q.TryPop(s)
		gotFirst = err == nil && ok && v == 1

		v, ok, err = q.TryPop(s)
		gotSecond = err == nil && ok && v == 2

		_, ok, err = q.TryPop(s)
		if err != nil {
			t.Errorf("TryPop #3 err = %v", err)
		}
		gotThirdOK = ok

		done = true
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn: %v", err)
	}
	if err := s.Transfer(workerID); err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !done {
		t.Fatal("worker did not run to completion")
	}
	if thirdPushOK {
		t.Error("TryPush on a full queue should have returned false")
	}
	if !gotFirst || !gotSecond {
		t.Error("TryPop did not return values in FIFO order")
	}
	if gotThirdOK {
		t.Error("TryPop on an empty queue should have returned false")
	}
}

func TestPushBlocksUntilPop(t *testing.T) {
	q := New(1)
	s, loop := fiber.NewTestScheduler()

	producerDone := false
	consumerDone := false

	producerID, err := s.Spawn("producer", func(s *fiber.Scheduler, _ any) {
		for i := 1; i <= 3; i++ {
			if err := q.Push(s, i); err != nil {
				t.Errorf("Push(%d): %v", i, err)
				return
			}
		}
		producerDone = true
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn producer: %v", err)
	}

	var popped []int
	consumerID, err := s.Spawn("consumer", func(s *fiber.Scheduler, _ any) {
		for i := 0; i < 3; i++ {
			v, err := q.Pop(s)
			if err != nil {
				t.Errorf("Pop: %v", err)
				return
			}
			popped = append(popped, v.(int))
		}
		consumerDone = true
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn consumer: %v", err)
	}

	if err := s.Transfer(producerID); err != nil {
		t.Fatalf("transfer producer: %v", err)
	}
	if err := s.Transfer(consumerID); err != nil {
		t.Fatalf("transfer consumer: %v", err)
	}

	pump(t, loop, func() bool { return producerDone && consumerDone })

	if len(popped) != 3 || popped[0] != 1 || popped[1] != 2 || popped[2] != 3 {
		t.Errorf("popped = %v, want [1 2 3] in order", popped)
	}
}

// TestClearWithWakeWriters fills a capacity-1 queue, leaves a second
// pusher suspended behind it, then clears with wakeWriters=true and
// confirms the suspended pusher wakes and completes its push into the
// now-empty queue.
func TestClearWithWakeWriters(t *testing.T) {
	q := New(1)
	s, loop := fiber.NewTestScheduler()

	fillerDone := false
	fillerID, err := s.Spawn("filler", func(s *fiber.Scheduler, _ any) {
		if err := q.Push(s, "x"); err != nil {
			t.Errorf("Push: %v", err)
		}
		fillerDone = true
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn filler: %v", err)
	}
	if err := s.Transfer(fillerID); err != nil {
		t.Fatalf("transfer filler: %v", err)
	}
	if !fillerDone {
		t.Fatal("filler did not complete")
	}

	blockedDone := false
	blockedID, err := s.Spawn("blocked-pusher", func(s *fiber.Scheduler, _ any) {
		if err := q.Push(s, "y"); err != nil {
			t.Errorf("Push: %v", err)
			return
		}
		blockedDone = true
	}, nil, 0)
	if err != nil {
		t.Fatalf("Spawn blocked-pusher: %v", err)
	}
	if err := s.Transfer(blockedID); err != nil {
		t.Fatalf("transfer blocked-pusher: %v", err)
	}
	if blockedDone {
		t.Fatal("blocked-pusher should have suspended on a full queue")
	}

	if err := q.Clear(s, true); err != nil {
		t.Fatalf("Clear: %v", err)
	}

	pump(t, loop, func() bool { return blockedDone })

	if q.Len() != 1 {
		t.Errorf("Len() after clear+blocked push completes = %d, want 1", q.Len())
	}
}
