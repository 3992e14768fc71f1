package fiber

import (
	"fmt"
	"sync"
	"time"

	"github.com/evloop/gofiber/internal/interfaces"
)

// TestLoop is a deterministic, manually-driven implementation of
// interfaces.Loop for unit tests. Unlike internal/hostloop's Loop, which
// runs against the real wall clock, TestLoop has a virtual clock that
// only moves when Advance is called, so tests exercising timeouts and
// wait-event timing are not at the mercy of scheduler jitter.
type TestLoop struct {
	mu sync.Mutex

	now int64 // virtual monotonic clock, milliseconds

	timers  []*testTimer
	pending []func()

	asyncSends int
	refs       int
}

// NewTestLoop returns a TestLoop whose virtual clock starts at zero.
func NewTestLoop() *TestLoop {
	return &TestLoop{}
}

type testTimer struct {
	loop     *TestLoop
	cb       func()
	deadline int64
	repeat   int64
	active   bool
}

func (l *TestLoop) NewTimer() interfaces.Timer {
	t := &testTimer{loop: l}
	l.mu.Lock()
	l.timers = append(l.timers, t)
	l.mu.Unlock()
	return t
}

func (t *testTimer) Start(cb func(), timeout, repeat time.Duration) {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	t.cb = cb
	t.deadline = t.loop.now + timeout.Milliseconds()
	t.repeat = repeat.Milliseconds()
	t.active = true
}

func (t *testTimer) Stop() {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	t.active = false
}

func (t *testTimer) Active() bool {
	t.loop.mu.Lock()
	defer t.loop.mu.Unlock()
	return t.active
}

type testAsync struct {
	loop *TestLoop
	cb   func()
	refs int
}

func (l *TestLoop) NewAsync(cb func()) interfaces.Async {
	return &testAsync{loop: l, cb: cb}
}

func (a *testAsync) Send() {
	a.loop.mu.Lock()
	a.loop.asyncSends++
	a.loop.pending = append(a.loop.pending, a.cb)
	a.loop.mu.Unlock()
}

func (a *testAsync) Ref() {
	a.loop.mu.Lock()
	a.refs++
	a.loop.refs++
	a.loop.mu.Unlock()
}

func (a *testAsync) Unref() {
	a.loop.mu.Lock()
	if a.refs > 0 {
		a.refs--
		a.loop.refs--
	}
	a.loop.mu.Unlock()
}

func (a *testAsync) Close() {}

func (l *TestLoop) Now() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.now
}

// Advance moves the virtual clock forward by d and fires every timer
// whose deadline has passed, in deadline order. It also drains whatever
// async callbacks were queued via Send before returning, mirroring
// hostloop's "pending runs before the next timer tick" ordering.
func (l *TestLoop) Advance(d time.Duration) {
	l.mu.Lock()
	l.now += d.Milliseconds()
	target := l.now
	l.mu.Unlock()

	for {
		l.mu.Lock()
		var due *testTimer
		for _, t := range l.timers {
			if !t.active || t.deadline > target {
				continue
			}
			if due == nil || t.deadline < due.deadline {
				due = t
			}
		}
		if due == nil {
			l.mu.Unlock()
			break
		}
		if due.repeat > 0 {
			due.deadline += due.repeat
		} else {
			due.active = false
		}
		cb := due.cb
		l.mu.Unlock()
		if cb != nil {
			cb()
		}
	}
	l.Drain()
}

// Drain runs every async callback queued since the last Drain, without
// moving the clock. Repeated until no new callback was queued.
func (l *TestLoop) Drain() {
	for {
		l.mu.Lock()
		if len(l.pending) == 0 {
			l.mu.Unlock()
			return
		}
		cb := l.pending[0]
		l.pending = l.pending[1:]
		l.mu.Unlock()
		cb()
	}
}

// PendingAsyncSends reports how many times Send has been called across
// every async handle registered on this loop, for tests that assert a
// wake-up actually happened.
func (l *TestLoop) PendingAsyncSends() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.asyncSends
}

// Refs reports the current aggregate Ref count across async handles, so
// tests can assert the idle-exit discipline: zero refs once the pending
// queue is empty.
func (l *TestLoop) Refs() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.refs
}

var _ interfaces.Loop = (*TestLoop)(nil)

// noopLogger discards every message; used as the Logger default in tests
// that don't care about log output.
type noopLogger struct{}

func (noopLogger) Debugf(string, ...any) {}
func (noopLogger) Infof(string, ...any)  {}
func (noopLogger) Warnf(string, ...any)  {}
func (noopLogger) Errorf(string, ...any) {}

func (n noopLogger) WithFiber(fmt.Stringer) interfaces.Logger { return n }

var _ interfaces.Logger = noopLogger{}

// NewTestScheduler returns a Scheduler wired to a fresh TestLoop and a
// discarding logger, for tests that want a scheduler without setting up
// the full Config by hand. The observer is left unset, so the scheduler
// records into its own Metrics.
func NewTestScheduler() (*Scheduler, *TestLoop) {
	loop := NewTestLoop()
	cfg := Config{
		Loop:   loop,
		Logger: noopLogger{},
	}
	return NewScheduler(cfg), loop
}
