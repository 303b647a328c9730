package memmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRegisterDisjoint(t *testing.T) {
	m := New()

	require.True(t, m.Register(0x2000, 0x3000, Free))
	require.True(t, m.Register(0x0000, 0x1000, Free))
	require.Equal(t, []Range{
		{Begin: 0x0000, End: 0x1000, Status: Free},
		{Begin: 0x2000, End: 0x3000, Status: Free},
	}, m.Ranges())
}

func TestRegisterEmptyIsNoop(t *testing.T) {
	m := New()
	require.True(t, m.Register(0x1000, 0x1000, Free))
	require.Equal(t, 0, m.Len())
}

func TestRegisterRejectsInverted(t *testing.T) {
	m := New()
	require.False(t, m.Register(0x2000, 0x1000, Free))
}

func TestRegisterFusesSameStatus(t *testing.T) {
	m := New()

	require.True(t, m.Register(0x0000, 0x2000, Free))
	require.True(t, m.Register(0x1000, 0x3000, Free))
	require.Equal(t, []Range{
		{Begin: 0x0000, End: 0x3000, Status: Free},
	}, m.Ranges())

	// Touching ranges of the same status are merged by compaction.
	require.True(t, m.Register(0x3000, 0x4000, Free))
	require.Equal(t, []Range{
		{Begin: 0x0000, End: 0x4000, Status: Free},
	}, m.Ranges())
}

func TestRegisterConflictingStatusFails(t *testing.T) {
	m := New()

	require.True(t, m.Register(0x0000, 0x2000, Free))
	require.False(t, m.Register(0x1000, 0x3000, Reserved))

	// The failed call must not have modified the map.
	require.Equal(t, []Range{
		{Begin: 0x0000, End: 0x2000, Status: Free},
	}, m.Ranges())
}

func TestTouchingDifferentStatusStaySeparate(t *testing.T) {
	m := New()

	require.True(t, m.Register(0x0000, 0x1000, Free))
	require.True(t, m.Register(0x1000, 0x2000, Reserved))
	require.Equal(t, []Range{
		{Begin: 0x0000, End: 0x1000, Status: Free},
		{Begin: 0x1000, End: 0x2000, Status: Reserved},
	}, m.Ranges())
}

// Reserving the middle of a free range splits it, and releasing the
// same sub-range restores the original single entry.
func TestSplitOnReserveAndRoundTrip(t *testing.T) {
	m := New()

	require.True(t, m.Register(0, 0x1000, Free))
	require.True(t, m.Reserve(0x400, 0x800))
	require.Equal(t, []Range{
		{Begin: 0x000, End: 0x400, Status: Free},
		{Begin: 0x400, End: 0x800, Status: Reserved},
		{Begin: 0x800, End: 0x1000, Status: Free},
	}, m.Ranges())

	require.True(t, m.Release(0x400, 0x800))
	require.Equal(t, []Range{
		{Begin: 0, End: 0x1000, Status: Free},
	}, m.Ranges())
}

func TestReserveOutsideMapIsNoop(t *testing.T) {
	m := New()

	require.True(t, m.Register(0x1000, 0x2000, Free))
	require.True(t, m.Reserve(0x8000, 0x9000))
	require.Equal(t, []Range{
		{Begin: 0x1000, End: 0x2000, Status: Free},
	}, m.Ranges())
}

func TestReservePartialCoverage(t *testing.T) {
	m := New()

	require.True(t, m.Register(0x1000, 0x2000, Free))

	// The uncovered tail of the request is silently ignored.
	require.True(t, m.Reserve(0x1800, 0x3000))
	require.Equal(t, []Range{
		{Begin: 0x1000, End: 0x1800, Status: Free},
		{Begin: 0x1800, End: 0x2000, Status: Reserved},
	}, m.Ranges())
}

func TestReserveSpanningMultipleRanges(t *testing.T) {
	m := New()

	require.True(t, m.Register(0x0000, 0x1000, Free))
	require.True(t, m.Register(0x1000, 0x2000, Reserved))
	require.True(t, m.Register(0x2000, 0x3000, Free))

	require.True(t, m.Reserve(0x0800, 0x2800))
	require.Equal(t, []Range{
		{Begin: 0x0000, End: 0x0800, Status: Free},
		{Begin: 0x0800, End: 0x2800, Status: Reserved},
		{Begin: 0x2800, End: 0x3000, Status: Free},
	}, m.Ranges())
}

func TestInvariantsAfterMutations(t *testing.T) {
	m := New()

	require.True(t, m.Register(0x0000, 0x10000, Free))
	require.True(t, m.Reserve(0x1000, 0x2000))
	require.True(t, m.Reserve(0x3000, 0x4000))
	require.True(t, m.Release(0x1000, 0x2000))
	require.True(t, m.Reserve(0x3000, 0x5000))
	require.True(t, m.Register(0x20000, 0x30000, Reserved))

	checkInvariants(t, m)
}

func checkInvariants(t *testing.T, m *Map) {
	t.Helper()
	rs := m.Ranges()
	for i, r := range rs {
		require.Less(t, r.Begin, r.End, "empty range at %d", i)
		if i == 0 {
			continue
		}
		prev := rs[i-1]
		require.LessOrEqual(t, prev.End, r.Begin, "overlap at %d", i)
		if prev.End == r.Begin {
			require.NotEqual(t, prev.Status, r.Status,
				"unmerged neighbours at %d", i)
		}
	}
}

func TestCapacityExceeded(t *testing.T) {
	m := New()

	// Fill the map with alternating statuses so nothing compacts.
	for i := 0; i < MaxRanges; i++ {
		status := Free
		if i%2 == 1 {
			status = Reserved
		}
		begin := uint64(i) * 0x1000
		require.True(t, m.Register(begin, begin+0x1000, status))
	}
	require.Equal(t, MaxRanges, m.Len())

	require.False(t, m.Register(
		uint64(MaxRanges)*0x1000+0x1000,
		uint64(MaxRanges)*0x1000+0x2000,
		Free))

	// A reserve that needs two splits must fail and leave the full
	// map untouched.
	before := m.Ranges()
	require.False(t, m.Reserve(0x100, 0x200))
	require.Equal(t, before, m.Ranges())
}

func TestClone(t *testing.T) {
	m := New()
	require.True(t, m.Register(0, 0x1000, Free))

	c := m.Clone()
	require.True(t, m.Reserve(0, 0x1000))

	require.Equal(t, []Range{{Begin: 0, End: 0x1000, Status: Free}}, c.Ranges())
	require.Equal(t, []Range{{Begin: 0, End: 0x1000, Status: Reserved}}, m.Ranges())
}
