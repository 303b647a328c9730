package kmalloc

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krinkinmu/aarch64/memory/buddy"
	"github.com/krinkinmu/aarch64/memory/memmap"
	"github.com/krinkinmu/aarch64/memory/ram"
)

func testHeap(t *testing.T, bytes int) (*Heap, *buddy.Allocator, *ram.Image) {
	t.Helper()
	img := ram.NewSlice(0x40000000, make([]byte, bytes))
	m := memmap.New()
	require.True(t, m.Register(img.Base(), img.End(), memmap.Free))
	phys, err := buddy.Setup(m, img)
	require.NoError(t, err)
	return New(phys, img), phys, img
}

func TestSmallAllocationsRouteThroughCaches(t *testing.T) {
	h, _, _ := testHeap(t, 1<<22)

	ptr, ok := h.Allocate(200)
	require.True(t, ok)
	require.NotZero(t, ptr)
	require.Zero(t, ptr%metadataSize, "user address keeps max alignment")

	require.Equal(t, uint64(1), h.Stats().CacheAllocs)
	require.Equal(t, uint64(0), h.Stats().LargeAllocs)

	// total = 200+32 = 232 lands in the 256-byte class.
	require.Equal(t, uint64(256)-metadataSize, h.capacity(ptr))

	h.Free(ptr)
	require.Equal(t, uint64(1), h.Stats().Frees)
	h.Close()
}

func TestLargeAllocationsBypassCaches(t *testing.T) {
	h, phys, _ := testHeap(t, 1<<22)
	before := phys.AvailablePhysical()

	ptr, ok := h.Allocate(1 << 20)
	require.True(t, ok)
	require.Equal(t, uint64(1), h.Stats().LargeAllocs)

	// 1 MiB + header rounds up to an order-9 run (2 MiB).
	require.Equal(t, before-(1<<21), phys.AvailablePhysical())
	require.Equal(t, uint64(1<<21)-metadataSize, h.capacity(ptr))

	h.Free(ptr)
	require.Equal(t, before, phys.AvailablePhysical())
	h.Close()
}

func TestClassBoundaries(t *testing.T) {
	h, _, _ := testHeap(t, 1<<22)

	// The largest total a class serves is just under 4 KiB.
	small, ok := h.Allocate(4095 - metadataSize)
	require.True(t, ok)
	require.Equal(t, uint64(1), h.Stats().CacheAllocs)

	big, ok := h.Allocate(4096 - metadataSize)
	require.True(t, ok)
	require.Equal(t, uint64(1), h.Stats().LargeAllocs)

	h.Free(small)
	h.Free(big)
	h.Close()
}

func TestZeroSizeAndNilFree(t *testing.T) {
	h, _, _ := testHeap(t, 1<<20)

	_, ok := h.Allocate(0)
	require.False(t, ok)

	h.Free(0)
	require.Equal(t, uint64(0), h.Stats().Frees)
	h.Close()
}

func TestAllocationsAreUsable(t *testing.T) {
	h, _, img := testHeap(t, 1<<22)

	a, ok := h.Allocate(64)
	require.True(t, ok)
	b, ok := h.Allocate(64)
	require.True(t, ok)
	require.NotEqual(t, a, b)

	// Writing one allocation must not disturb the other or the
	// headers between them.
	img.PutU64(a, 0x1111111111111111)
	img.PutU64(b, 0x2222222222222222)
	require.Equal(t, uint64(0x1111111111111111), img.ReadU64(a))
	require.Equal(t, uint64(0x2222222222222222), img.ReadU64(b))

	h.Free(a)
	h.Free(b)
	h.Close()
}

func TestReallocateInPlace(t *testing.T) {
	h, _, _ := testHeap(t, 1<<22)

	ptr, ok := h.Allocate(100)
	require.True(t, ok)

	// total 132 -> 256-byte class, which accommodates up to 224
	// usable bytes without moving.
	grown, ok := h.Reallocate(ptr, 200)
	require.True(t, ok)
	require.Equal(t, ptr, grown)

	// Shrinking in place is always fine.
	shrunk, ok := h.Reallocate(ptr, 10)
	require.True(t, ok)
	require.Equal(t, ptr, shrunk)

	h.Free(ptr)
	h.Close()
}

func TestReallocateMovesAndCopies(t *testing.T) {
	h, _, img := testHeap(t, 1<<22)

	ptr, ok := h.Allocate(64)
	require.True(t, ok)
	img.PutU64(ptr, 0xfeedface_deadbeef)
	img.PutU64(ptr+56, 0x0123456789abcdef)

	next, ok := h.Reallocate(ptr, 8192)
	require.True(t, ok)
	require.NotEqual(t, ptr, next)
	require.Equal(t, uint64(0xfeedface_deadbeef), img.ReadU64(next))
	require.Equal(t, uint64(0x0123456789abcdef), img.ReadU64(next+56))

	h.Free(next)
	h.Close()
}

func TestReallocateNilAndZero(t *testing.T) {
	h, _, _ := testHeap(t, 1<<20)

	ptr, ok := h.Reallocate(0, 100)
	require.True(t, ok)
	require.NotZero(t, ptr)

	gone, ok := h.Reallocate(ptr, 0)
	require.False(t, ok)
	require.Zero(t, gone)
	require.Equal(t, uint64(1), h.Stats().Frees)
	h.Close()
}

func TestReallocateFailureKeepsOld(t *testing.T) {
	h, _, img := testHeap(t, 1<<20)

	ptr, ok := h.Allocate(100)
	require.True(t, ok)
	img.PutU64(ptr, 42)

	// Far larger than the machine: allocation fails, the original
	// allocation stays valid.
	_, ok = h.Reallocate(ptr, 1<<30)
	require.False(t, ok)
	require.Equal(t, uint64(42), img.ReadU64(ptr))

	h.Free(ptr)
	h.Close()
}

func TestHeapDrainRestoresAvailable(t *testing.T) {
	h, phys, _ := testHeap(t, 1<<22)
	before := phys.AvailablePhysical()

	var ptrs []ram.Addr
	for _, n := range []uint64{1, 100, 200, 500, 1000, 3000, 5000, 100000} {
		ptr, ok := h.Allocate(n)
		require.True(t, ok)
		ptrs = append(ptrs, ptr)
	}
	for _, ptr := range ptrs {
		h.Free(ptr)
	}

	// Slabs stay cached until the caches are reclaimed.
	h.Close()
	require.Equal(t, before, phys.AvailablePhysical())
}
