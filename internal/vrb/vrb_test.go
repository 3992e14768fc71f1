package vrb

import (
	"bytes"
	"testing"
)

func TestInitRoundsUpToPage(t *testing.T) {
	v, err := Init(1, "fbr_vrb_test.*")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer v.Close()

	if v.Capacity() != pageSize {
		t.Errorf("Capacity() = %d, want %d (one page)", v.Capacity(), pageSize)
	}
	if v.Bytes() != 0 {
		t.Errorf("Bytes() = %d, want 0 on a fresh ring", v.Bytes())
	}
	if v.FreeBytes() != v.Capacity() {
		t.Errorf("FreeBytes() = %d, want %d", v.FreeBytes(), v.Capacity())
	}
}

// TestDoubleMapWraparound exercises double-map wraparound: initialize a
// one-page VRB, write 16 bytes starting 8 bytes before the capacity
// boundary, and confirm the write is visible as one contiguous span
// through the read cursor even though it straddles the physical wrap.
func TestDoubleMapWraparound(t *testing.T) {
	size := pageSize
	v, err := Init(size, "fbr_vrb_test.*")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer v.Close()

	// Position both cursors 8 bytes before the capacity boundary by
	// writing and discarding that much first.
	prefix := size - 8
	v.Give(prefix)
	v.Take(prefix)

	want := make([]byte, 16)
	for i := range want {
		want[i] = byte(i + 1)
	}

	space := v.SpaceAddress(16)
	if len(space) != 16 {
		t.Fatalf("SpaceAddress(16) returned %d bytes", len(space))
	}
	copy(space, want)
	v.Give(16)

	got := v.DataAddress(16)
	if !bytes.Equal(got, want) {
		t.Fatalf("read back %v across wrap seam, want %v", got, want)
	}
	v.Take(16)

	if v.Bytes() != 0 {
		t.Errorf("Bytes() = %d after consuming everything, want 0", v.Bytes())
	}
}

func TestGiveTakeAccounting(t *testing.T) {
	v, err := Init(pageSize, "fbr_vrb_test.*")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer v.Close()

	copy(v.SpaceAddress(4), []byte("abcd"))
	v.Give(4)
	if v.Bytes() != 4 {
		t.Fatalf("Bytes() = %d, want 4", v.Bytes())
	}
	if v.FreeBytes() != v.Capacity()-4 {
		t.Fatalf("FreeBytes() = %d, want %d", v.FreeBytes(), v.Capacity()-4)
	}

	got := append([]byte(nil), v.DataAddress(4)...)
	v.Take(4)
	if string(got) != "abcd" {
		t.Fatalf("DataAddress(4) = %q, want %q", got, "abcd")
	}
	if v.Bytes() != 0 {
		t.Fatalf("Bytes() = %d after Take, want 0", v.Bytes())
	}
}

func TestResizePreservesUnreadBytes(t *testing.T) {
	v, err := Init(pageSize, "fbr_vrb_test.*")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer v.Close()

	copy(v.SpaceAddress(5), []byte("hello"))
	v.Give(5)

	if err := v.Resize(4 * pageSize); err != nil {
		t.Fatalf("Resize: %v", err)
	}
	if v.Capacity() != 4*pageSize {
		t.Fatalf("Capacity() after resize = %d, want %d", v.Capacity(), 4*pageSize)
	}
	if v.Bytes() != 5 {
		t.Fatalf("Bytes() after resize = %d, want 5", v.Bytes())
	}
	got := append([]byte(nil), v.DataAddress(5)...)
	if string(got) != "hello" {
		t.Fatalf("data after resize = %q, want %q", got, "hello")
	}
}

func TestResizeRejectsTruncatingUnreadBytes(t *testing.T) {
	v, err := Init(pageSize, "fbr_vrb_test.*")
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	defer v.Close()

	copy(v.SpaceAddress(10), bytes.Repeat([]byte{1}, 10))
	v.Give(10)

	if err := v.Resize(5); err == nil {
		t.Fatal("Resize to smaller than unread bytes should fail")
	}
}
