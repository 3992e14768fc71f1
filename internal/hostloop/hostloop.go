// Package hostloop is the reference implementation of the scheduler's
// external event-loop contract (internal/interfaces.Loop/Async/Timer):
// register an async wake-up with ref/unref discipline, arm a one-shot
// timer, and read the current time. The scheduler itself never touches
// an OS timer or channel directly; it is written against the Loop
// interface so any real event loop (or the deterministic one in the
// root package's test helpers) can drive it.
//
// Grounded on the timeout min-heap and single armed time.Timer pattern
// in socket515-gaio's watcher.go (a "timeouts" heap of pending
// deadlines, one shared timer reset to the next deadline, a wake
// channel for events that happen between timer fires) and on the
// self-pipe/ref-counted-wakeup idiom used by libuv-style event loops
// (surfaced in the retrieval pack's joeycumines-go-utilpkg eventloop
// package) to decide when an idle loop may return instead of blocking
// forever.
package hostloop

import (
	"container/heap"
	"context"
	"time"

	"github.com/evloop/gofiber/internal/interfaces"
)

var (
	_ interfaces.Loop  = (*Loop)(nil)
	_ interfaces.Timer = (*timerHandle)(nil)
	_ interfaces.Async = (*asyncHandle)(nil)
)

// Loop is a single-threaded reference event loop. It is driven by
// calling Run from the goroutine that owns the scheduler; nothing in
// Loop is safe to call concurrently with Run except Async.Send, Ref and
// Unref, which are the only operations the contract allows a fiber's
// host-side callback to perform from outside the loop's own goroutine.
type Loop struct {
	timers  timerHeap
	pending []func()
	wake    chan struct{}
	refs    int
	nextID  uint64
}

// New returns an idle Loop ready to have timers and async handles
// registered against it.
func New() *Loop {
	return &Loop{wake: make(chan struct{}, 1)}
}

// NewTimer allocates a Timer bound to this loop. It does nothing until
// Start is called.
func (l *Loop) NewTimer() interfaces.Timer {
	l.nextID++
	return &timerHandle{loop: l, id: l.nextID}
}

// NewAsync allocates an Async handle bound to this loop, wrapping cb as
// the callback Run invokes once per Send.
func (l *Loop) NewAsync(cb func()) interfaces.Async {
	return &asyncHandle{loop: l, cb: cb}
}

// loopEpoch is the reference point Now measures from.
var loopEpoch = time.Now()

// Now returns the current time as milliseconds since an arbitrary but
// consistent epoch, read from the monotonic clock, suitable only for
// computing elapsed durations.
func (l *Loop) Now() int64 {
	return time.Since(loopEpoch).Milliseconds()
}

// Run pumps the loop until every armed timer has fired or been stopped,
// every async handle is unreferenced or closed, and the pending callback
// queue is empty, or until ctx is done. It returns ctx.Err() in the
// latter case and nil otherwise, mirroring a real event loop's
// uv_run(UV_RUN_DEFAULT) return convention (0 once nothing keeps it
// alive).
func (l *Loop) Run(ctx context.Context) error {
	for {
		l.drainPending()

		if len(l.timers) == 0 && l.refs == 0 {
			return nil
		}

		var timerC <-chan time.Time
		var t *time.Timer
		if len(l.timers) > 0 {
			wait := time.Until(l.timers[0].deadline)
			if wait < 0 {
				wait = 0
			}
			t = time.NewTimer(wait)
			timerC = t.C
		}

		select {
		case <-ctx.Done():
			if t != nil {
				t.Stop()
			}
			return ctx.Err()
		case <-l.wake:
			if t != nil {
				t.Stop()
			}
		case <-timerC:
		}
		l.fireExpired()
	}
}

func (l *Loop) drainPending() {
	for len(l.pending) > 0 {
		cb := l.pending[0]
		l.pending = l.pending[1:]
		cb()
	}
}

func (l *Loop) fireExpired() {
	now := time.Now()
	for len(l.timers) > 0 && !l.timers[0].deadline.After(now) {
		th := heap.Pop(&l.timers).(*timerEntry)
		th.firing = false
		cb := th.cb
		if th.repeat > 0 {
			th.deadline = now.Add(th.repeat)
			th.firing = true
			heap.Push(&l.timers, th)
		}
		cb()
	}
}

// timerHandle is the loop's Timer implementation.
type timerHandle struct {
	loop  *Loop
	id    uint64
	entry *timerEntry
}

func (t *timerHandle) Start(cb func(), timeout, repeat time.Duration) {
	t.Stop()
	e := &timerEntry{
		id:       t.id,
		deadline: time.Now().Add(timeout),
		repeat:   repeat,
		cb:       cb,
		firing:   true,
	}
	t.entry = e
	heap.Push(&t.loop.timers, e)
}

func (t *timerHandle) Stop() {
	if t.entry == nil || !t.entry.firing {
		return
	}
	heap.Remove(&t.loop.timers, t.entry.index)
	t.entry.firing = false
}

func (t *timerHandle) Active() bool {
	return t.entry != nil && t.entry.firing
}

// timerEntry is one armed timer, ordered by deadline in a min-heap.
type timerEntry struct {
	id       uint64
	deadline time.Time
	repeat   time.Duration
	cb       func()
	firing   bool
	index    int
}

type timerHeap []*timerEntry

func (h timerHeap) Len() int            { return len(h) }
func (h timerHeap) Less(i, j int) bool  { return h[i].deadline.Before(h[j].deadline) }
func (h timerHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].index = i
	h[j].index = j
}
func (h *timerHeap) Push(x any) {
	e := x.(*timerEntry)
	e.index = len(*h)
	*h = append(*h, e)
}
func (h *timerHeap) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}

// asyncHandle is the loop's Async implementation. Send queues cb to run
// on the loop's goroutine the next time Run wakes; Ref/Unref control
// whether this handle alone is enough to keep Run from returning.
type asyncHandle struct {
	loop      *Loop
	cb        func()
	referenced bool
	closed    bool
}

func (a *asyncHandle) Send() {
	if a.closed {
		return
	}
	a.loop.pending = append(a.loop.pending, a.cb)
	select {
	case a.loop.wake <- struct{}{}:
	default:
	}
}

func (a *asyncHandle) Ref() {
	if a.referenced || a.closed {
		return
	}
	a.referenced = true
	a.loop.refs++
}

func (a *asyncHandle) Unref() {
	if !a.referenced {
		return
	}
	a.referenced = false
	a.loop.refs--
}

func (a *asyncHandle) Close() {
	a.Unref()
	a.closed = true
}
