package vrb

import "unsafe"

// unsafeAddr returns the address backing the first byte of b, used only
// to seed the fixed-address mmap calls in Init.
func unsafeAddr(b []byte) unsafe.Pointer {
	return unsafe.Pointer(&b[0])
}

// unsafeSlice builds a []byte view of n bytes starting at addr. The
// caller is responsible for addr staying within a live mapping for as
// long as the slice is used; VRB guarantees this by never unmapping
// lowerPtr/upperPtr while cursors can point into them.
func unsafeSlice(addr uintptr, n int) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
