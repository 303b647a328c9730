package buddy

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/krinkinmu/aarch64/memory/memmap"
)

func testAllocator(t *testing.T, bytes uint64) *Allocator {
	t.Helper()
	m := memmap.New()
	require.True(t, m.Register(0x40000000, 0x40000000+bytes, memmap.Free))
	a, err := Setup(m, nil)
	require.NoError(t, err)
	return a
}

func TestAllocatePhysicalRounding(t *testing.T) {
	a := testAllocator(t, 1<<22)

	c := a.AllocatePhysical(1)
	require.False(t, c.IsNull())
	require.Equal(t, uint(0), c.Order())
	require.Equal(t, uint64(PageSize), c.Size())

	c2 := a.AllocatePhysical(PageSize + 1)
	require.Equal(t, uint(1), c2.Order())
	require.Equal(t, uint64(2*PageSize), c2.Size())

	c3 := a.AllocatePhysical(3 * PageSize)
	require.Equal(t, uint(2), c3.Order())

	a.FreePhysical(c)
	a.FreePhysical(c2)
	a.FreePhysical(c3)
}

func TestAllocatePhysicalEdgeCases(t *testing.T) {
	a := testAllocator(t, 1<<20)

	require.True(t, a.AllocatePhysical(0).IsNull())

	// Larger than the largest representable order.
	require.True(t, a.AllocatePhysical(uint64(PageSize)<<(MaxOrder+1)).IsNull())

	// Larger than the zone.
	require.True(t, a.AllocatePhysical(1<<21).IsNull())

	// Freeing the null handle is a no-op.
	a.FreePhysical(Contigous{})

	require.Equal(t, uint64(2), a.Stats().Failures)
	require.Equal(t, uint64(0), a.Stats().Frees)
}

func TestAllocateFreeRestoresAvailable(t *testing.T) {
	a := testAllocator(t, 1<<20)
	before := a.AvailablePhysical()

	c := a.AllocatePhysical(40 * 1024)
	require.False(t, c.IsNull())
	require.Equal(t, before-c.Size(), a.AvailablePhysical())

	a.FreePhysical(c)
	require.Equal(t, before, a.AvailablePhysical())
}

func TestLIFOAddressReuse(t *testing.T) {
	a := testAllocator(t, 1<<20)

	c := a.AllocatePhysical(8 * PageSize)
	addr := c.FromAddress()
	a.FreePhysical(c)

	again := a.AllocatePhysical(8 * PageSize)
	require.Equal(t, addr, again.FromAddress())
	a.FreePhysical(again)
}

func TestContigousGeometry(t *testing.T) {
	a := testAllocator(t, 1<<20)

	c := a.AllocatePhysical(2 * PageSize)
	require.Equal(t, c.FromAddress()+2*PageSize, c.ToAddress())
	require.Equal(t, c.Zone(), a.AddressZone(c.FromAddress()))
	require.Zero(t, c.FromAddress()&(c.Size()-1),
		"buddy runs are naturally aligned")
	a.FreePhysical(c)

	var null Contigous
	require.True(t, null.IsNull())
	require.Equal(t, uint64(0), null.Size())
	require.Equal(t, uint64(0), uint64(null.FromAddress()))
}

func TestExhaustion(t *testing.T) {
	a := testAllocator(t, 1<<20)
	total := a.AvailablePhysical()

	var live []Contigous
	for {
		c := a.AllocatePhysical(PageSize)
		if c.IsNull() {
			break
		}
		live = append(live, c)
	}
	require.Equal(t, total/PageSize, uint64(len(live)))
	require.Equal(t, uint64(0), a.AvailablePhysical())

	for _, c := range live {
		a.FreePhysical(c)
	}
	require.Equal(t, total, a.AvailablePhysical())

	for _, z := range a.Zones() {
		checkZoneInvariants(t, z)
	}
}
