package memmap

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestAllocateReservesSubRange(t *testing.T) {
	m := New()
	require.True(t, m.Register(0x1000, 0x10000, Free))

	addr, ok := m.Allocate(0x1000, 0x1000)
	require.True(t, ok)
	require.Equal(t, uint64(0x1000), addr)

	require.Equal(t, []Range{
		{Begin: 0x1000, End: 0x2000, Status: Reserved},
		{Begin: 0x2000, End: 0x10000, Status: Free},
	}, m.Ranges())
}

func TestAllocateHonoursAlignment(t *testing.T) {
	m := New()
	require.True(t, m.Register(0x1100, 0x10000, Free))

	addr, ok := m.Allocate(0x100, 0x1000)
	require.True(t, ok)
	require.Equal(t, uint64(0x2000), addr)
}

func TestAllocateSkipsReserved(t *testing.T) {
	m := New()
	require.True(t, m.Register(0x0000, 0x1000, Reserved))
	require.True(t, m.Register(0x1000, 0x2000, Free))

	addr, ok := m.Allocate(0x800, 8)
	require.True(t, ok)
	require.Equal(t, uint64(0x1000), addr)
}

func TestAllocateInRespectsWindow(t *testing.T) {
	m := New()
	require.True(t, m.Register(0x0000, 0x10000, Free))

	addr, ok := m.AllocateIn(0x4000, 0x8000, 0x1000, 0x1000)
	require.True(t, ok)
	require.Equal(t, uint64(0x4000), addr)

	// The window boundary clamps the usable part of the free range.
	_, ok = m.AllocateIn(0x7000, 0x8000, 0x2000, 0x1000)
	require.False(t, ok)
}

func TestAllocateInPrefersFirstFit(t *testing.T) {
	m := New()
	require.True(t, m.Register(0x0000, 0x1000, Free))
	require.True(t, m.Register(0x3000, 0x5000, Free))

	// Too big for the first range, lands in the second.
	addr, ok := m.Allocate(0x1800, 0x800)
	require.True(t, ok)
	require.Equal(t, uint64(0x3000), addr)
}

func TestAllocateFailures(t *testing.T) {
	m := New()
	require.True(t, m.Register(0x0000, 0x1000, Free))

	_, ok := m.Allocate(0, 8)
	require.False(t, ok)

	_, ok = m.Allocate(0x2000, 8)
	require.False(t, ok)

	require.True(t, m.Reserve(0x0000, 0x1000))
	_, ok = m.Allocate(8, 8)
	require.False(t, ok)
}
