package fiber

import "fmt"

// ID is an opaque, generational handle to a fiber. slot indexes the
// scheduler's fiber table; generation is bumped every time that slot is
// reclaimed and reused, so a stale ID is detected by a generation
// mismatch rather than by reading freed memory.
type ID struct {
	generation uint32
	slot       uint32
}

// String renders an ID as "slot.generation", matching how the scheduler
// logs and DebugDump refer to fibers.
func (id ID) String() string {
	return fmt.Sprintf("%d.%d", id.slot, id.generation)
}

// idSlots is the scheduler's fiber table: a free list of slot indices
// plus the generation currently valid for each slot. It does not own the
// fiber values themselves (the scheduler's slice of *Fiber does); it only
// arbitrates which slot a spawn reuses and which generation is live.
type idSlots struct {
	generations []uint32
	freeList    []uint32
}

// alloc reserves a slot, reusing the most recently freed one (LIFO) when
// one is available, and returns the ID now valid for it.
func (s *idSlots) alloc() ID {
	if n := len(s.freeList); n > 0 {
		slot := s.freeList[n-1]
		s.freeList = s.freeList[:n-1]
		return ID{generation: s.generations[slot], slot: slot}
	}
	slot := uint32(len(s.generations))
	s.generations = append(s.generations, 0)
	return ID{generation: 0, slot: slot}
}

// free bumps the slot's generation and returns it to the free list. Any
// ID previously handed out for this slot now fails valid() because its
// captured generation no longer matches.
func (s *idSlots) free(id ID) {
	s.generations[id.slot]++
	s.freeList = append(s.freeList, id.slot)
}

// valid reports whether id's generation still matches the slot's current
// generation, i.e. whether the fiber it names has not been reclaimed
// (and the slot possibly reused) since id was obtained.
func (s *idSlots) valid(id ID) bool {
	if int(id.slot) >= len(s.generations) {
		return false
	}
	return s.generations[id.slot] == id.generation
}
