// Package vrb implements the virtual ring buffer: a contiguous byte pipe
// built from a double-mapped anonymous file so that a read or write
// spanning the logical wraparound point never needs to be split into two
// calls. The same physical pages are mapped twice, back to back, into one
// reserved address range; once the read cursor advances past the lower
// half both cursors are rebased down by one capacity, but the bytes at
// the old addresses and the new ones are the same memory.
//
package vrb

import (
	"fmt"
	"os"
	"path/filepath"
	"syscall"

	"golang.org/x/sys/unix"
)

// pageSize is resolved once at init from the OS rather than hardcoded,
// matching how page-aligned sizing should behave across architectures.
var pageSize = os.Getpagesize()

// VRB is a double-mapped virtual ring buffer. It is not safe for
// concurrent use from more than one fiber; the fiber buffer above it
// serializes access with a read mutex and a write mutex.
type VRB struct {
	memPtr     []byte // the PROT_NONE guard reservation, mem_ptr_size bytes
	memPtrSize int
	lowerPtr   uintptr // start of the first live mapping
	upperPtr   uintptr // start of the second live mapping; == lowerPtr+ptrSize
	ptrSize    int     // size of one live mapping (the ring's capacity)

	dataPtr  uintptr // read cursor, always in [lowerPtr, upperPtr)
	spacePtr uintptr // write cursor, always in [dataPtr, dataPtr+ptrSize]

	filePattern string
}

// roundUpPage rounds n up to the next multiple of the system page size.
func roundUpPage(n int) int {
	if n <= 0 {
		return pageSize
	}
	rem := n % pageSize
	if rem == 0 {
		return n
	}
	return n + (pageSize - rem)
}

// Init builds a new VRB of at least size bytes of capacity, backed by an
// anonymous file created from filePattern (an os.CreateTemp-style
// pattern whose last "*" is replaced by a random suffix).
func Init(size int, filePattern string) (*VRB, error) {
	ptrSize := roundUpPage(size)
	memPtrSize := 2*ptrSize + 2*pageSize

	guard, err := unix.Mmap(-1, 0, memPtrSize, unix.PROT_NONE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("vrb: reserve guard mapping: %w", err)
	}

	dir, pattern := filepath.Split(filePattern)
	f, err := os.CreateTemp(dir, pattern)
	if err != nil {
		unix.Munmap(guard)
		return nil, fmt.Errorf("vrb: create backing file: %w", err)
	}
	path := f.Name()
	if err := os.Remove(path); err != nil {
		f.Close()
		unix.Munmap(guard)
		return nil, fmt.Errorf("vrb: unlink backing file: %w", err)
	}
	if err := f.Truncate(int64(ptrSize)); err != nil {
		f.Close()
		unix.Munmap(guard)
		return nil, fmt.Errorf("vrb: truncate backing file: %w", err)
	}
	fd := int(f.Fd())

	base := uintptr(unsafeAddr(guard))
	lowerPtr := base + uintptr(pageSize)
	upperPtr := lowerPtr + uintptr(ptrSize)

	if err := mmapFixed(lowerPtr, ptrSize, fd); err != nil {
		f.Close()
		unix.Munmap(guard)
		return nil, fmt.Errorf("vrb: map lower half: %w", err)
	}
	if err := mmapFixed(upperPtr, ptrSize, fd); err != nil {
		f.Close()
		unix.Munmap(guard)
		return nil, fmt.Errorf("vrb: map upper half: %w", err)
	}
	f.Close()

	return &VRB{
		memPtr:      guard,
		memPtrSize:  memPtrSize,
		lowerPtr:    lowerPtr,
		upperPtr:    upperPtr,
		ptrSize:     ptrSize,
		dataPtr:     lowerPtr,
		spacePtr:    lowerPtr,
		filePattern: filePattern,
	}, nil
}

// mmapFixed maps the ptrSize bytes of fd, starting at offset 0, onto the
// memory already reserved at addr, replacing the guard mapping there.
// unix.Mmap has no way to pin the returned address, so this goes straight
// to the mmap syscall with MAP_FIXED.
func mmapFixed(addr uintptr, size int, fd int) error {
	ret, _, errno := syscall.Syscall6(
		unix.SYS_MMAP,
		addr,
		uintptr(size),
		uintptr(unix.PROT_READ|unix.PROT_WRITE),
		uintptr(unix.MAP_FIXED|unix.MAP_SHARED),
		uintptr(fd),
		0,
	)
	if errno != 0 {
		return errno
	}
	if ret != addr {
		return fmt.Errorf("mmap returned %#x, want fixed address %#x", ret, addr)
	}
	return nil
}

// Close tears down every mapping backing the VRB. The VRB must not be
// used afterward.
func (v *VRB) Close() error {
	if err := unix.Munmap(v.memPtr); err != nil {
		return fmt.Errorf("vrb: unmap guard region: %w", err)
	}
	return nil
}

// Capacity is the total number of bytes the ring can hold.
func (v *VRB) Capacity() int { return v.ptrSize }

// Bytes is the number of unread bytes currently in the ring.
func (v *VRB) Bytes() int {
	n := int(v.spacePtr - v.dataPtr)
	if n < 0 {
		n += v.ptrSize
	}
	return n
}

// FreeBytes is the number of bytes that can still be written before the
// ring is full.
func (v *VRB) FreeBytes() int {
	return v.ptrSize - v.Bytes()
}

// SpaceAddress returns a slice of at least n writable bytes starting at
// the current write cursor. The slice may extend past the logical
// capacity boundary into the upper mapping; that is the point of the
// double mapping, and writes through it land on the same physical pages
// as a read through DataAddress would see.
func (v *VRB) SpaceAddress(n int) []byte {
	return unsafeSlice(v.spacePtr, n)
}

// DataAddress returns a slice of at least n readable bytes starting at
// the current read cursor.
func (v *VRB) DataAddress(n int) []byte {
	return unsafeSlice(v.dataPtr, n)
}

// Give advances the write cursor by n bytes. The cursor may move into
// the upper mapping; it stays at most one capacity ahead of the read
// cursor, so a full ring is told apart from an empty one.
func (v *VRB) Give(n int) {
	v.spacePtr += uintptr(n)
}

// Take advances the read cursor by n bytes. Once it has crossed into the
// upper mapping, both cursors are rebased down by one capacity.
func (v *VRB) Take(n int) {
	v.dataPtr += uintptr(n)
	if v.dataPtr >= v.upperPtr {
		v.dataPtr -= uintptr(v.ptrSize)
		v.spacePtr -= uintptr(v.ptrSize)
	}
}

// Resize atomically rebuilds the ring at newSize, copying unread bytes
// across. Callers must hold whatever higher-level exclusion applies (the
// fiber buffer takes both its read and write mutexes before calling
// this).
func (v *VRB) Resize(newSize int) error {
	unread := v.Bytes()
	if newSize < unread {
		return fmt.Errorf("vrb: resize to %d would truncate %d unread bytes", newSize, unread)
	}
	pending := make([]byte, unread)
	copy(pending, v.DataAddress(unread))

	rebuilt, err := Init(newSize, v.filePattern)
	if err != nil {
		return err
	}
	if err := v.Close(); err != nil {
		rebuilt.Close()
		return err
	}
	*v = *rebuilt
	copy(v.SpaceAddress(unread), pending)
	v.Give(unread)
	return nil
}
