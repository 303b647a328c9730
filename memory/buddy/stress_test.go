package buddy

import (
	"testing"

	"github.com/bytedance/gopkg/lang/fastrand"
	"github.com/stretchr/testify/require"
)

// Randomized allocate/free traffic; the free list invariants and the
// availability accounting must hold after every step.
func TestRandomTraffic(t *testing.T) {
	a := testAllocator(t, 1<<24)
	total := a.AvailablePhysical()

	var live []Contigous
	for i := 0; i < 2000; i++ {
		if len(live) == 0 || fastrand.Intn(2) == 0 {
			size := uint64(fastrand.Intn(64*1024) + 1)
			c := a.AllocatePhysical(size)
			if !c.IsNull() {
				live = append(live, c)
			}
		} else {
			victim := fastrand.Intn(len(live))
			a.FreePhysical(live[victim])
			live[victim] = live[len(live)-1]
			live = live[:len(live)-1]
		}

		var held uint64
		for _, c := range live {
			held += c.Size()
		}
		require.Equal(t, total-held, a.AvailablePhysical())
		for _, z := range a.Zones() {
			checkZoneInvariants(t, z)
		}
	}

	for _, c := range live {
		a.FreePhysical(c)
	}
	require.Equal(t, total, a.AvailablePhysical())

	for _, z := range a.Zones() {
		checkZoneInvariants(t, z)
	}
}
