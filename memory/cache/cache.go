package cache

import (
	"fmt"

	"github.com/krinkinmu/aarch64/internal/bits"
	"github.com/krinkinmu/aarch64/memory/buddy"
	"github.com/krinkinmu/aarch64/memory/ram"
)

// nextCacheID hands out control-block owner ids. Caches are created
// on the single boot hart, so a plain counter is enough.
var nextCacheID uint32

// Cache pools slabs for one fixed (size, alignment) object class.
type Cache struct {
	layout Layout
	phys   *buddy.Allocator
	img    *ram.Image
	id     uint32

	free    slabList // every object slot free
	partial slabList // some slots free, some live
	full    slabList // every slot live

	bySlab map[ram.Addr]*Slab // slab base address -> descriptor

	allocated   uint64 // bytes in live objects
	occupied    uint64 // bytes in slabs, all lists
	reclaimable uint64 // bytes in slabs on the free list
}

// New creates a cache of objects of the given size and alignment on
// top of the physical allocator. Slabs are allocated lazily.
func New(phys *buddy.Allocator, img *ram.Image, size, align uint64) *Cache {
	nextCacheID++
	return &Cache{
		layout: MakeLayout(size, align),
		phys:   phys,
		img:    img,
		id:     nextCacheID,
		bySlab: make(map[ram.Addr]*Slab),
	}
}

// Layout returns the slab geometry of the cache.
func (c *Cache) Layout() Layout { return c.layout }

// ObjectSize returns the slot size objects are rounded up to.
func (c *Cache) ObjectSize() uint64 { return c.layout.ObjectSize }

// Allocated returns the bytes held by live objects.
func (c *Cache) Allocated() uint64 { return c.allocated }

// Occupied returns the bytes held by all slabs of the cache.
func (c *Cache) Occupied() uint64 { return c.occupied }

// Reclaimable returns the bytes Reclaim would return to the buddy
// allocator.
func (c *Cache) Reclaimable() uint64 { return c.reclaimable }

// Allocate returns the address of a free object slot, growing the
// cache by one slab when every existing slab is full. Returns false
// when the physical allocator cannot supply a new slab.
func (c *Cache) Allocate() (ram.Addr, bool) {
	if !c.partial.empty() {
		slab := c.partial.head
		if slab.Allocated()+1 == c.layout.Objects {
			c.partial.unlink(slab)
			c.full.pushFront(slab)
		}
		c.allocated += c.layout.ObjectSize
		return slab.allocate()
	}

	if !c.free.empty() {
		slab := c.free.popFront()
		c.partial.pushFront(slab)
		c.reclaimable -= c.layout.SlabSize
		c.allocated += c.layout.ObjectSize
		return slab.allocate()
	}

	slab := c.allocateSlab()
	if slab == nil {
		return 0, false
	}
	c.partial.pushFront(slab)
	c.allocated += c.layout.ObjectSize
	return slab.allocate()
}

// Free returns an object slot to its slab. Passing an address the
// cache does not own returns false, except when the address belongs
// to a different cache's slab: that is a fatal caller bug and panics.
func (c *Cache) Free(ptr ram.Addr) bool {
	if ptr == 0 {
		return false
	}

	slab := c.find(ptr)
	if slab == nil {
		return false
	}

	if slab.Allocated() == 0 {
		return false
	}

	wasFull := slab.Allocated() == c.layout.Objects

	if !slab.free(ptr) {
		return false
	}

	if slab.Allocated() == 0 {
		c.partial.unlink(slab)
		c.free.pushFront(slab)
		c.reclaimable += c.layout.SlabSize
	}

	if wasFull {
		c.full.unlink(slab)
		c.partial.pushFront(slab)
	}

	c.allocated -= c.layout.ObjectSize
	return true
}

// Reclaim frees every slab on the free list back to the physical
// allocator. Returns whether anything was reclaimed.
func (c *Cache) Reclaim() bool {
	ret := c.reclaimable != 0
	for slab := c.free.popFront(); slab != nil; slab = c.free.popFront() {
		c.freeSlab(slab)
	}
	c.reclaimable = 0
	return ret
}

// Close reclaims the cache's memory. Closing a cache that still has
// live objects is a fatal invariant violation.
func (c *Cache) Close() {
	if !c.partial.empty() || !c.full.empty() {
		panic(fmt.Sprintf(
			"cache: close with %d bytes of live objects", c.allocated))
	}
	c.Reclaim()
}

// find locates the slab owning ptr in O(1): slabs are naturally
// aligned powers of two, so aligning ptr down to the slab size yields
// the base. A base the cache does not know is cross-checked against
// the in-image control block; a well-formed block naming another
// cache means the caller freed through the wrong cache, which panics.
func (c *Cache) find(ptr ram.Addr) *Slab {
	base := bits.AlignDown(ptr, c.layout.SlabSize)
	if slab, ok := c.bySlab[base]; ok {
		return slab
	}

	ctrl := base + ram.Addr(c.layout.ControlOffset)
	if c.img.ReadU32(ctrl+ctrlMagicOff) == slabMagic {
		if owner := c.img.ReadU32(ctrl + ctrlOwnerOff); owner != c.id {
			panic(fmt.Sprintf(
				"cache: free of %#x owned by cache %d, not %d",
				ptr, owner, c.id))
		}
	}
	return nil
}

func (c *Cache) allocateSlab() *Slab {
	memory := c.phys.AllocatePhysical(c.layout.SlabSize)
	if memory.IsNull() {
		return nil
	}
	slab := newSlab(c, memory)
	c.bySlab[memory.FromAddress()] = slab
	c.occupied += c.layout.SlabSize
	return slab
}

func (c *Cache) freeSlab(slab *Slab) {
	if slab.Allocated() != 0 {
		panic("cache: slab destroyed with live objects")
	}
	// Wipe the magic so a stale pointer into this memory cannot pass
	// the control block check after the pages are reused.
	c.img.PutU32(slab.control()+ctrlMagicOff, 0)
	delete(c.bySlab, slab.memory.FromAddress())
	c.occupied -= c.layout.SlabSize
	c.phys.FreePhysical(slab.memory)
}
