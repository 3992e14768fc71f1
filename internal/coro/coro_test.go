package coro

import (
	"testing"
	"time"
)

// TestTransferPingPong checks that control passes back and forth in the
// expected order and that exactly one context ever runs at a time.
func TestTransferPingPong(t *testing.T) {
	var trace []string
	done := make(chan struct{})

	var worker *Context
	main := Root()
	worker = Create(func() {
		trace = append(trace, "worker:1")
		Transfer(worker, main)
		trace = append(trace, "worker:2")
		close(done)
		Transfer(worker, main)
	})

	trace = append(trace, "main:1")
	Transfer(main, worker)
	trace = append(trace, "main:2")
	Transfer(main, worker)

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("worker never completed")
	}

	want := []string{"main:1", "worker:1", "main:2", "worker:2"}
	if len(trace) != len(want) {
		t.Fatalf("trace = %v, want %v", trace, want)
	}
	for i := range want {
		if trace[i] != want[i] {
			t.Fatalf("trace = %v, want %v", trace, want)
		}
	}
}

// TestTransferRing exercises a ring of three contexts handing the token
// around, confirming Transfer works symmetrically regardless of which
// context initiates it and that the token always makes forward progress.
func TestTransferRing(t *testing.T) {
	const rounds = 50
	var seen []int

	root := Root()

	var a, b, c *Context
	a = Create(func() {
		for i := 0; i < rounds; i++ {
			seen = append(seen, 0)
			Transfer(a, b)
		}
		Transfer(a, root)
	})
	b = Create(func() {
		for {
			seen = append(seen, 1)
			Transfer(b, c)
		}
	})
	c = Create(func() {
		for {
			seen = append(seen, 2)
			Transfer(c, a)
		}
	})

	Transfer(root, a)

	if len(seen) != rounds*3 {
		t.Fatalf("got %d transfers, want %d", len(seen), rounds*3)
	}
	for i := 0; i < rounds; i++ {
		want := [3]int{0, 1, 2}
		got := [3]int{seen[i*3], seen[i*3+1], seen[i*3+2]}
		if got != want {
			t.Fatalf("round %d: got %v, want %v", i, got, want)
		}
	}
}

// TestTransferSelfDocumentsDeadlock is skipped in normal runs: it records
// the documented constraint that transferring a context into itself
// deadlocks, rather than exercising it (which would hang the test binary).
func TestTransferSelfDocumentsDeadlock(t *testing.T) {
	t.Skip("transferring a context into itself deadlocks by contract; not exercised")
}
