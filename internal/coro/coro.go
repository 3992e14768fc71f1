// Package coro adapts the external "symmetric coroutine" contract the
// fiber scheduler is written against (spec: create with entry+stack,
// transfer(from, to)) onto a goroutine-per-fiber, channel-rendezvous
// implementation. Go has no portable stackful context-switch primitive
// reachable from pure Go, so each fiber gets its own OS goroutine that is
// parked on an unbuffered channel whenever it does not hold the transfer
// token; exactly one such goroutine ever runs at a time, reproducing the
// single-threaded-cooperative semantics the scheduler assumes.
//
// Grounded on the goroutine-per-task-with-rendezvous-channel idiom used
// by toy cooperative schedulers in the wild (a task is a goroutine
// blocked on a channel until explicitly handed the token, and hands it
// back on the same kind of channel before parking again).
package coro

// Context is one fiber's coroutine state: the goroutine running its
// entry function and the channel used to hand it the transfer token.
type Context struct {
	resume  chan struct{}
	started bool
	entry   func()
}

// Create allocates a Context that will run entry the first time it is
// Transfer'd into. The backing goroutine is started lazily on that first
// transfer, so a Context that is never resumed never leaks a goroutine.
func Create(entry func()) *Context {
	return &Context{
		resume: make(chan struct{}),
		entry:  entry,
	}
}

// Root returns a Context representing the goroutine that calls Root,
// rather than one Transfer should spawn. It has no entry: the calling
// goroutine already is its "body", blocked inside Transfer whenever this
// context is suspended. Every coroutine ring needs exactly one of these
// to seed the first Transfer; the scheduler uses it as the context the
// host's call into the runtime resumes into.
func Root() *Context {
	return &Context{resume: make(chan struct{}), started: true}
}

// Transfer suspends the calling context ("from") and resumes "to". It
// returns only once some later Transfer names "from" as its destination.
// from and to must be distinct; transferring a context into itself
// deadlocks, matching the real primitive's undefined behavior for that
// case.
func Transfer(from, to *Context) {
	if !to.started {
		to.started = true
		go to.run()
	}
	to.resume <- struct{}{}
	<-from.resume
}

// run is the body of a fiber's backing goroutine. It waits for the first
// transfer, runs entry to completion, then blocks forever: the scheduler
// never transfers into a context whose entry has returned (the call
// wrapper reclaims itself and yields one last time before that point),
// so this is a safety net, not a control-flow path.
func (c *Context) run() {
	<-c.resume
	c.entry()
	select {}
}
