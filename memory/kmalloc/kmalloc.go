// Package kmalloc is the general-purpose allocator built on top of
// the slab caches and the buddy allocator. Sizes up to just under
// 4 KiB are served by 32 fixed size classes in 128-byte steps; larger
// requests go straight to the physical allocator.
//
// Every returned address is preceded by a fixed-size metadata header
// written into the managed memory itself, recording which backing the
// allocation came from. Free and Reallocate read the header back, so
// callers pass nothing but the address.
package kmalloc

import (
	"fmt"

	"github.com/krinkinmu/aarch64/memory/buddy"
	"github.com/krinkinmu/aarch64/memory/cache"
	"github.com/krinkinmu/aarch64/memory/ram"
)

const (
	// classStep is the granularity of the size classes.
	classStep = 128
	// numClasses is the number of size-class caches; the largest
	// class serves totals below numClasses*classStep bytes.
	numClasses = 32

	// metadataSize precedes every returned address. It is padded to
	// the largest alignment the allocator guarantees, so the address
	// after the header keeps that alignment.
	metadataSize = 32

	// Metadata kinds.
	backingCache = 1
	backingPhys  = 2

	// Header field offsets.
	metaKindOff  = 0
	metaClassOff = 4 // size-class index for backingCache
	metaOrderOff = 4 // run order for backingPhys
)

// Stats holds counters for instrumentation and tests.
type Stats struct {
	CacheAllocs uint64 // allocations served by a size class
	LargeAllocs uint64 // allocations served by the buddy allocator
	Frees       uint64
}

// Heap routes allocations between the size-class caches and the
// physical allocator. It is not safe for concurrent use.
type Heap struct {
	phys   *buddy.Allocator
	img    *ram.Image
	caches [numClasses]*cache.Cache
	stats  Stats
}

// New creates a heap with one cache per size class. Slab memory is
// only taken from phys once a class is actually used.
func New(phys *buddy.Allocator, img *ram.Image) *Heap {
	h := &Heap{phys: phys, img: img}
	for i := range h.caches {
		size := uint64(i+1) * classStep
		h.caches[i] = cache.New(phys, img, size, size)
	}
	return h
}

// Stats returns a copy of the allocation counters.
func (h *Heap) Stats() Stats { return h.stats }

// cacheFor returns the size class serving an allocation of total
// bytes, or -1 when the total routes to the physical allocator.
func cacheFor(total uint64) int {
	index := total / classStep
	if index >= numClasses {
		return -1
	}
	return int(index)
}

// Allocate returns the address of n usable bytes, aligned to 32.
// Zero n and allocation failure return false; the size classes do not
// fall back to the physical allocator.
func (h *Heap) Allocate(n uint64) (ram.Addr, bool) {
	if n == 0 {
		return 0, false
	}
	total := n + metadataSize

	if index := cacheFor(total); index >= 0 {
		ptr, ok := h.caches[index].Allocate()
		if !ok {
			return 0, false
		}
		h.img.PutU32(ptr+metaKindOff, backingCache)
		h.img.PutU32(ptr+metaClassOff, uint32(index))
		h.stats.CacheAllocs++
		return ptr + metadataSize, true
	}

	mem := h.phys.AllocatePhysical(total)
	if mem.IsNull() {
		return 0, false
	}
	base := mem.FromAddress()
	h.img.PutU32(base+metaKindOff, backingPhys)
	h.img.PutU32(base+metaOrderOff, uint32(mem.Order()))
	h.stats.LargeAllocs++
	return base + metadataSize, true
}

// Free releases an allocation. Freeing the zero address is a no-op.
func (h *Heap) Free(ptr ram.Addr) {
	if ptr == 0 {
		return
	}
	base := ptr - metadataSize

	switch kind := h.img.ReadU32(base + metaKindOff); kind {
	case backingCache:
		index := h.img.ReadU32(base + metaClassOff)
		if index >= numClasses || !h.caches[index].Free(base) {
			panic(fmt.Sprintf("kmalloc: free of unowned address %#x", ptr))
		}
	case backingPhys:
		order := uint(h.img.ReadU32(base + metaOrderOff))
		h.phys.FreePhysicalAt(base, order)
	default:
		panic(fmt.Sprintf(
			"kmalloc: free of %#x with corrupt header kind %d", ptr, kind))
	}
	h.stats.Frees++
}

// capacity returns the usable bytes of the allocation at ptr, from
// its header.
func (h *Heap) capacity(ptr ram.Addr) uint64 {
	base := ptr - metadataSize

	switch kind := h.img.ReadU32(base + metaKindOff); kind {
	case backingCache:
		index := h.img.ReadU32(base + metaClassOff)
		if index >= numClasses {
			break
		}
		return h.caches[index].ObjectSize() - metadataSize
	case backingPhys:
		order := uint(h.img.ReadU32(base + metaOrderOff))
		return (uint64(1) << (order + buddy.PageBits)) - metadataSize
	}
	panic(fmt.Sprintf("kmalloc: reallocate of unowned address %#x", ptr))
}

// Reallocate grows or shrinks an allocation to n bytes. When the
// current backing already accommodates n the address is returned
// unchanged; otherwise the contents move to a fresh allocation and
// the old one is freed. On allocation failure the old allocation is
// left intact and false is returned.
func (h *Heap) Reallocate(ptr ram.Addr, n uint64) (ram.Addr, bool) {
	if ptr == 0 {
		return h.Allocate(n)
	}
	if n == 0 {
		h.Free(ptr)
		return 0, false
	}

	capacity := h.capacity(ptr)
	if capacity >= n {
		return ptr, true
	}

	next, ok := h.Allocate(n)
	if !ok {
		return 0, false
	}
	h.img.Copy(next, ptr, int(min(capacity, n)))
	h.Free(ptr)
	return next, true
}

// Close reclaims every size-class cache. Closing with live
// allocations is a fatal invariant violation.
func (h *Heap) Close() {
	for _, c := range h.caches {
		c.Close()
	}
}
