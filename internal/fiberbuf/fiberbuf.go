// Package fiberbuf implements the fiber buffer: a single-producer,
// single-consumer byte pipe layered on internal/vrb, synchronized with
// the cooperative Mutex/CondVar pair from the root package rather than
// OS-level locks. At most one prepare and one read may be outstanding at
// a time; a reader never observes bytes that have been prepared but not
// yet committed.
package fiberbuf

import (
	"fmt"

	"github.com/evloop/gofiber"
	"github.com/evloop/gofiber/internal/vrb"
)

// Buffer is a fiber buffer: a producer/consumer pipe over a VRB with
// prepare/commit/abort on the write side and address/advance/discard on
// the read side.
type Buffer struct {
	vrb *vrb.VRB

	writeMutex *fiber.Mutex
	readMutex  *fiber.Mutex

	committedCond  *fiber.CondVar
	bytesFreedCond *fiber.CondVar

	preparedBytes int
	waitingBytes  int
}

// New builds a fiber buffer backed by a VRB of at least size bytes,
// using filePattern for the VRB's anonymous backing file.
func New(size int, filePattern string) (*Buffer, error) {
	v, err := vrb.Init(size, filePattern)
	if err != nil {
		return nil, err
	}
	return &Buffer{
		vrb:            v,
		writeMutex:     fiber.NewMutex(),
		readMutex:      fiber.NewMutex(),
		committedCond:  fiber.NewCondVar(),
		bytesFreedCond: fiber.NewCondVar(),
	}, nil
}

// Close releases the underlying VRB mappings.
func (b *Buffer) Close() error { return b.vrb.Close() }

// Capacity returns the buffer's total byte capacity.
func (b *Buffer) Capacity() int { return b.vrb.Capacity() }

// AllocPrepare reserves n bytes for the caller to write into and
// returns the space address. Only one prepare may be outstanding at a
// time: the write mutex stays held from AllocPrepare until AllocCommit
// or AllocAbort, so a second caller blocks acquiring it until the first
// commits or aborts. The caller must follow with AllocCommit or
// AllocAbort before any other fiber can prepare again.
func (b *Buffer) AllocPrepare(s *fiber.Scheduler, n int) ([]byte, error) {
	if n > b.vrb.Capacity() {
		return nil, fiber.NewError("alloc_prepare", fiber.ErrCodeBufferNoSpace, fmt.Sprintf("requested %d exceeds capacity %d", n, b.vrb.Capacity()))
	}
	if err := s.Lock(b.writeMutex); err != nil {
		return nil, err
	}
	for b.preparedBytes > 0 {
		if err := s.CondWait(b.committedCond, b.writeMutex); err != nil {
			s.Unlock(b.writeMutex)
			return nil, err
		}
	}
	b.preparedBytes = n
	for b.vrb.FreeBytes() < n {
		if err := s.CondWait(b.bytesFreedCond, b.writeMutex); err != nil {
			b.preparedBytes = 0
			s.Unlock(b.writeMutex)
			return nil, err
		}
	}
	return b.vrb.SpaceAddress(n), nil
}

// AllocCommit publishes the prepared bytes to the reader side and
// releases the write mutex. Must be called while holding the write
// mutex acquired by AllocPrepare.
func (b *Buffer) AllocCommit(s *fiber.Scheduler) {
	b.vrb.Give(b.preparedBytes)
	b.preparedBytes = 0
	s.Signal(b.committedCond)
	s.Unlock(b.writeMutex)
}

// AllocAbort discards the prepared reservation without advancing the
// write cursor, releasing the write mutex.
func (b *Buffer) AllocAbort(s *fiber.Scheduler) {
	b.preparedBytes = 0
	s.Signal(b.committedCond)
	s.Unlock(b.writeMutex)
}

// ReadAddress blocks until at least n committed bytes are available and
// returns the data address. The read mutex is held on return; the
// caller must follow with ReadAdvance or ReadDiscard.
func (b *Buffer) ReadAddress(s *fiber.Scheduler, n int) ([]byte, error) {
	if n > b.vrb.Capacity() {
		return nil, fiber.NewError("read_address", fiber.ErrCodeInvalidArgument, fmt.Sprintf("requested %d exceeds capacity %d", n, b.vrb.Capacity()))
	}
	if err := s.Lock(b.readMutex); err != nil {
		return nil, err
	}
	for b.vrb.Bytes() < n {
		if err := s.CondWait(b.committedCond, b.readMutex); err != nil {
			s.Unlock(b.readMutex)
			return nil, err
		}
	}
	b.waitingBytes = n
	return b.vrb.DataAddress(n), nil
}

// ReadAdvance consumes the bytes returned by the last ReadAddress call
// and releases the read mutex.
func (b *Buffer) ReadAdvance(s *fiber.Scheduler) {
	b.vrb.Take(b.waitingBytes)
	b.waitingBytes = 0
	s.Signal(b.bytesFreedCond)
	s.Unlock(b.readMutex)
}

// ReadDiscard releases the read mutex without consuming the bytes
// returned by the last ReadAddress call, leaving them available for a
// later read.
func (b *Buffer) ReadDiscard(s *fiber.Scheduler) {
	b.waitingBytes = 0
	s.Unlock(b.readMutex)
}
