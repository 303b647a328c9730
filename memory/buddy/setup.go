package buddy

import (
	"errors"

	"github.com/krinkinmu/aarch64/internal/bits"
	"github.com/krinkinmu/aarch64/memory/memmap"
	"github.com/krinkinmu/aarch64/memory/ram"
)

var (
	// ErrNoDescriptorSpace indicates that no free range could hold a
	// zone's page descriptor array.
	ErrNoDescriptorSpace = errors.New("buddy: no room for page descriptors")

	// ErrUncoveredRange indicates a free map range that no zone covers.
	ErrUncoveredRange = errors.New("buddy: free range outside every zone")
)

// Setup builds the physical allocator from a bootstrap memory map.
//
// Maximal contiguous runs of free map entries become zones. Each
// zone's descriptor array is carved out of the map first, preferably
// inside the zone's own run with any free range as fallback, so the
// allocator's bookkeeping lives in the memory it manages. Every byte
// still free after the carve is then released into its zone as greedy
// maximal aligned power-of-two runs.
//
// The image, when non-nil, is used to zero the carved descriptor
// areas; ranges outside the image window are skipped.
func Setup(m *memmap.Map, img *ram.Image) (*Allocator, error) {
	a := &Allocator{}
	if err := a.createZones(m, img); err != nil {
		return nil, err
	}
	if err := a.freeUnusedMemory(m); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Allocator) createZone(begin, end ram.Addr, m *memmap.Map, img *ram.Image) error {
	begin = bits.AlignUp(begin, PageSize)
	end = bits.AlignDown(end, PageSize)
	if begin >= end {
		return nil
	}

	pages := (end - begin) >> PageBits
	bytes := pages * descSize

	addr, ok := m.AllocateIn(begin, end, bytes, PageSize)
	if !ok {
		addr, ok = m.Allocate(bytes, PageSize)
		if !ok {
			return ErrNoDescriptorSpace
		}
	}

	if img != nil {
		img.Zero(addr, int(bytes))
	}

	a.zones = append(a.zones, newZone(begin, end))
	return nil
}

// createZones coalesces the map's free entries into maximal
// contiguous runs and creates one zone per run. Reserved entries
// (kernel image, device tree, firmware carve-outs) never join a zone.
func (a *Allocator) createZones(m *memmap.Map, img *ram.Image) error {
	// Iterate a snapshot: carving descriptor arrays mutates the map.
	var begin, end ram.Addr
	started := false

	for _, r := range m.Ranges() {
		if r.Status != memmap.Free {
			continue
		}
		if started && r.Begin == end {
			end = r.End
			continue
		}
		if started {
			if err := a.createZone(begin, end, m, img); err != nil {
				return err
			}
		}
		begin, end = r.Begin, r.End
		started = true
	}
	if !started {
		return nil
	}
	return a.createZone(begin, end, m, img)
}

// freeRange releases [begin, end) into the zone as maximal aligned
// power-of-two runs: each step takes the largest order allowed by the
// current page offset's alignment and the pages remaining.
func freeRange(z *Zone, begin, end ram.Addr) {
	begin = bits.AlignUp(begin, PageSize)
	end = bits.AlignDown(end, PageSize)

	for addr := begin; addr != end; {
		offset := uint64(addr >> PageBits)
		pages := uint64((end - addr) >> PageBits)

		order := min(bits.LSB(offset), bits.MSB(pages), MaxOrder)
		z.FreePagesAt(addr, order)
		addr += ram.Addr(1) << (PageBits + order)
	}
}

func (a *Allocator) freeUnusedMemory(m *memmap.Map) error {
	zone := 0

	for _, r := range m.Ranges() {
		if r.Status != memmap.Free {
			continue
		}

		begin := bits.AlignUp(r.Begin, PageSize)
		end := bits.AlignDown(r.End, PageSize)
		if begin >= end {
			continue
		}

		for zone < len(a.zones) && a.zones[zone].ToAddress() <= begin {
			zone++
		}
		if zone == len(a.zones) {
			return ErrUncoveredRange
		}

		z := a.zones[zone]
		if begin < z.FromAddress() || end > z.ToAddress() {
			return ErrUncoveredRange
		}
		freeRange(z, begin, end)
	}
	return nil
}
