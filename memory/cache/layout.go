package cache

import "github.com/krinkinmu/aarch64/internal/bits"

const (
	// storageSize is the smallest slot size: a free slot must hold
	// its freelist link.
	storageSize = 16

	// controlSize is the space reserved at the slab tail for the
	// control block.
	controlSize = 64

	// minObjects is the smallest number of objects a slab may hold.
	minObjects = 8

	// minSlabSize keeps slabs at least one page.
	minSlabSize = 4096
)

// Layout fixes the geometry of every slab of a cache. It is derived
// once from the requested object size and alignment.
type Layout struct {
	ObjectSize    uint64 // slot size, aligned
	ObjectOffset  uint64 // first slot offset within the slab
	Objects       uint64 // slots per slab
	ControlOffset uint64 // control block offset within the slab
	SlabSize      uint64 // total slab size, a power of two
}

// MakeLayout derives the slab geometry for objects of the given size
// and alignment. The slab size is the smallest power of two, at least
// one page, that holds minObjects objects plus the control block, so
// the control block is always locatable by aligning an object address
// down to the slab size.
func MakeLayout(size, align uint64) Layout {
	// Alignments are arbitrary multiples here, not just powers of
	// two: the size-class caches pass align == size.
	objectSize := max(size, storageSize)
	objectSize = (objectSize + align - 1) / align * align

	slabSize := uint64(minSlabSize)
	if need := minObjects*objectSize + controlSize; need > slabSize {
		slabSize = bits.Pow2Ceil(need)
	}

	return Layout{
		ObjectSize:    objectSize,
		ObjectOffset:  0,
		Objects:       (slabSize - controlSize) / objectSize,
		ControlOffset: slabSize - controlSize,
		SlabSize:      slabSize,
	}
}
