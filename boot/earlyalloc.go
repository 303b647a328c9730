package boot

import "github.com/krinkinmu/aarch64/memory/ram"

// The early allocator serves the window between taking control from
// the firmware and building the memory map. It is a boundary-tagged
// first-fit free list kept entirely inside the managed memory: each
// block carries a header (list links, size, state) and a matching
// footer (size, state), so freeing coalesces with both neighbours in
// O(1). Dummy allocated tags at the ends of every added range stop
// coalescing from walking out of bounds.
const (
	earlyAlign = 16

	// Header layout: next, prev, size, state; all 8 bytes.
	earlyHeaderSize = 32
	hdrNextOff      = 0
	hdrPrevOff      = 8
	hdrSizeOff      = 16
	hdrStateOff     = 24

	// Footer layout: size, state.
	earlyFooterSize = 16
	ftrSizeOff      = 0
	ftrStateOff     = 8

	earlyMetaSize = earlyHeaderSize + earlyFooterSize
	earlyMinBlock = earlyMetaSize + earlyAlign

	stateUsed = 0
	stateFree = 1
)

// EarlyAllocator is not safe for concurrent use; the bootstrap runs
// on a single hart with interrupts masked.
type EarlyAllocator struct {
	img       *ram.Image
	free      ram.Addr // head of the in-image free list, 0 when empty
	allocated uint64
}

// NewEarly returns an allocator with no memory; feed it with AddRange.
func NewEarly(img *ram.Image) *EarlyAllocator {
	return &EarlyAllocator{img: img}
}

// Allocated returns the bytes currently handed out, metadata included.
func (e *EarlyAllocator) Allocated() uint64 { return e.allocated }

// AddRange donates [begin, end) to the allocator. Ranges too small to
// hold the boundary tags and one aligned block are rejected.
func (e *EarlyAllocator) AddRange(begin, end ram.Addr) bool {
	begin = (begin + earlyAlign - 1) &^ (earlyAlign - 1)
	end &^= earlyAlign - 1

	if end < begin || end-begin < earlyMetaSize+earlyMinBlock {
		return false
	}

	// Dummy tags: an allocated footer below the first block and an
	// allocated header above the last one.
	e.img.PutU64(begin+ftrStateOff, stateUsed)
	dummyHeader := end - earlyHeaderSize
	e.img.PutU64(dummyHeader+hdrStateOff, stateUsed)

	header := begin + earlyFooterSize
	size := uint64(dummyHeader - header)
	e.writeBlock(header, size, stateFree)
	e.pushFree(header)
	return true
}

// Allocate returns size usable bytes, or false when no free block
// fits. First fit over the free list; blocks whose remainder could
// not host another allocation are handed out whole.
func (e *EarlyAllocator) Allocate(size uint64) (ram.Addr, bool) {
	size = (size + earlyAlign - 1) &^ (earlyAlign - 1)
	if size == 0 {
		return 0, false
	}
	need := size + earlyMetaSize

	for header := e.free; header != 0; header = e.img.ReadU64(header + hdrNextOff) {
		blockSize := e.img.ReadU64(header + hdrSizeOff)
		if blockSize < need {
			continue
		}

		if blockSize < need+earlyMinBlock {
			// Remainder too small to stand alone: return the block
			// as is.
			e.unlinkFree(header)
			e.writeBlock(header, blockSize, stateUsed)
			e.allocated += blockSize
			return header + earlyHeaderSize, true
		}

		// Shrink the free block in place and allocate its tail.
		e.writeBlock(header, blockSize-need, stateFree)
		tail := header + (blockSize - need)
		e.writeBlock(tail, need, stateUsed)
		e.allocated += need
		return tail + earlyHeaderSize, true
	}
	return 0, false
}

// Free returns an allocation, coalescing with free neighbours.
// Freeing 0 is a no-op.
func (e *EarlyAllocator) Free(ptr ram.Addr) {
	if ptr == 0 {
		return
	}
	header := ptr - earlyHeaderSize
	size := e.img.ReadU64(header + hdrSizeOff)
	e.allocated -= size

	// Merge the block above, if free.
	next := header + size
	if e.img.ReadU64(next+hdrStateOff) == stateFree {
		e.unlinkFree(next)
		size += e.img.ReadU64(next + hdrSizeOff)
	}

	// Merge the block below, if free.
	prevFooter := header - earlyFooterSize
	if e.img.ReadU64(prevFooter+ftrStateOff) == stateFree {
		prevSize := e.img.ReadU64(prevFooter + ftrSizeOff)
		prev := header - prevSize
		e.unlinkFree(prev)
		header = prev
		size += prevSize
	}

	e.writeBlock(header, size, stateFree)
	e.pushFree(header)
}

// writeBlock stamps the header and footer tags of a block spanning
// [header, header+size).
func (e *EarlyAllocator) writeBlock(header ram.Addr, size uint64, state uint64) {
	e.img.PutU64(header+hdrSizeOff, size)
	e.img.PutU64(header+hdrStateOff, state)
	footer := header + size - earlyFooterSize
	e.img.PutU64(footer+ftrSizeOff, size)
	e.img.PutU64(footer+ftrStateOff, state)
}

func (e *EarlyAllocator) pushFree(header ram.Addr) {
	e.img.PutU64(header+hdrNextOff, e.free)
	e.img.PutU64(header+hdrPrevOff, 0)
	if e.free != 0 {
		e.img.PutU64(e.free+hdrPrevOff, header)
	}
	e.free = header
}

func (e *EarlyAllocator) unlinkFree(header ram.Addr) {
	next := e.img.ReadU64(header + hdrNextOff)
	prev := e.img.ReadU64(header + hdrPrevOff)
	if prev != 0 {
		e.img.PutU64(prev+hdrNextOff, next)
	} else {
		e.free = next
	}
	if next != 0 {
		e.img.PutU64(next+hdrPrevOff, prev)
	}
}
