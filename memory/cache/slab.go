package cache

import (
	"github.com/krinkinmu/aarch64/memory/buddy"
	"github.com/krinkinmu/aarch64/memory/ram"
)

// Control block field offsets relative to the slab's control offset.
const (
	slabMagic    = 0x42414c53 // "SLAB", little-endian
	ctrlMagicOff = 0
	ctrlOwnerOff = 4
	ctrlLiveOff  = 8
	ctrlSlotsOff = 12
)

// Slab is one buddy allocation carved into fixed-size object slots.
// The freelist threads through the free slots themselves; the Go-side
// descriptor mirrors the in-image control block at the slab tail.
type Slab struct {
	cache     *Cache
	memory    buddy.Contigous
	freelist  ram.Addr // address of the first free slot, 0 when full
	allocated uint64

	prev, next *Slab
	list       *slabList
}

// newSlab initializes the slot freelist and the control block inside
// the slab's memory. Slots are linked in address order, so the first
// allocation returns the slab base.
func newSlab(c *Cache, memory buddy.Contigous) *Slab {
	s := &Slab{cache: c, memory: memory}
	layout := c.layout
	img := c.img

	from := memory.FromAddress() + ram.Addr(layout.ObjectOffset)

	var next ram.Addr
	for i := layout.Objects; i > 0; i-- {
		slot := from + ram.Addr((i-1)*layout.ObjectSize)
		img.PutU64(slot, next)
		next = slot
	}
	s.freelist = next

	ctrl := memory.FromAddress() + ram.Addr(layout.ControlOffset)
	img.PutU32(ctrl+ctrlMagicOff, slabMagic)
	img.PutU32(ctrl+ctrlOwnerOff, c.id)
	img.PutU32(ctrl+ctrlLiveOff, 0)
	img.PutU32(ctrl+ctrlSlotsOff, uint32(layout.Objects))
	return s
}

// Owner returns the cache the slab belongs to.
func (s *Slab) Owner() *Cache { return s.cache }

// Allocated returns the number of live objects in the slab.
func (s *Slab) Allocated() uint64 { return s.allocated }

// control returns the address of the slab's control block.
func (s *Slab) control() ram.Addr {
	return s.memory.FromAddress() + ram.Addr(s.cache.layout.ControlOffset)
}

// allocate pops the freelist head, destroys the link stored in the
// slot and returns the slot address. Returns false when the slab is
// full.
func (s *Slab) allocate() (ram.Addr, bool) {
	if s.freelist == 0 {
		return 0, false
	}
	slot := s.freelist
	img := s.cache.img

	s.freelist = img.ReadU64(slot)
	img.PutU64(slot, 0)
	s.allocated++
	img.PutU32(s.control()+ctrlLiveOff, uint32(s.allocated))
	return slot, true
}

// free reconstructs the freelist link in the slot and pushes it at
// the head. Addresses outside the slab's memory are rejected. Freeing
// a slot that is already free is undetectable; the caller contract
// forbids it.
func (s *Slab) free(ptr ram.Addr) bool {
	if ptr < s.memory.FromAddress() || ptr >= s.memory.ToAddress() {
		return false
	}
	img := s.cache.img

	img.PutU64(ptr, s.freelist)
	s.freelist = ptr
	s.allocated--
	img.PutU32(s.control()+ctrlLiveOff, uint32(s.allocated))
	return true
}

// slabList is an intrusive doubly-linked list of slabs. A slab knows
// which list holds it, so moving between the free, partial and full
// lists is O(1).
type slabList struct {
	head *Slab
}

func (l *slabList) empty() bool { return l.head == nil }

func (l *slabList) pushFront(s *Slab) {
	s.prev = nil
	s.next = l.head
	if l.head != nil {
		l.head.prev = s
	}
	l.head = s
	s.list = l
}

func (l *slabList) popFront() *Slab {
	s := l.head
	if s != nil {
		l.unlink(s)
	}
	return s
}

func (l *slabList) unlink(s *Slab) {
	if s.list != l {
		panic("cache: slab unlinked from the wrong list")
	}
	if s.prev != nil {
		s.prev.next = s.next
	} else {
		l.head = s.next
	}
	if s.next != nil {
		s.next.prev = s.prev
	}
	s.prev, s.next, s.list = nil, nil, nil
}
