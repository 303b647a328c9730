package buddy

import (
	"fmt"

	"github.com/krinkinmu/aarch64/memory/ram"
)

// Zone is a buddy allocator over one contiguous physical region
// [from, to). Both endpoints are page aligned and the descriptor
// array covers the region exactly.
type Zone struct {
	page      []Page
	from      ram.Addr
	to        ram.Addr
	available uint64 // pages currently on free lists
	free      [MaxOrder + 1]freeList
}

// newZone returns a zone whose pages all start allocated; bootstrap
// releases the usable ranges afterwards.
func newZone(from, to ram.Addr) *Zone {
	pages := (to - from) >> PageBits
	z := &Zone{
		page: make([]Page, pages),
		from: from,
		to:   to,
	}
	for i := range z.page {
		z.page[i].prev = nilPage
		z.page[i].next = nilPage
	}
	for i := range z.free {
		z.free[i].head = nilPage
	}
	return z
}

// FromAddress returns the first address governed by the zone.
func (z *Zone) FromAddress() ram.Addr { return z.from }

// ToAddress returns one past the last address governed by the zone.
func (z *Zone) ToAddress() ram.Addr { return z.to }

// Pages returns the number of pages in the zone.
func (z *Zone) Pages() uint64 { return uint64(len(z.page)) }

// Available returns the number of pages currently free.
func (z *Zone) Available() uint64 { return z.available }

// offset returns the absolute page frame number of the zone start.
func (z *Zone) offset() uint64 { return uint64(z.from >> PageBits) }

// pageOffset returns the absolute page frame number of descriptor idx.
func (z *Zone) pageOffset(idx int32) uint64 {
	return z.offset() + uint64(idx)
}

// PageAddress returns the physical address of the page described by
// descriptor idx.
func (z *Zone) PageAddress(idx int32) ram.Addr {
	return z.from + ram.Addr(idx)<<PageBits
}

func buddyOffset(offset uint64, order uint) uint64 {
	return offset ^ (uint64(1) << order)
}

// AllocatePages removes a run of 2^order pages from the free lists
// and returns the index of its head descriptor. Returns false when no
// free list of order or above has a run to split.
func (z *Zone) AllocatePages(order uint) (int32, bool) {
	if order > MaxOrder {
		return 0, false
	}
	for from := order; from <= MaxOrder; from++ {
		if z.free[from].empty() {
			continue
		}
		idx := z.free[from].pop(z.page)
		z.available -= uint64(1) << order
		return z.split(idx, from, order), true
	}
	return 0, false
}

// split cuts a run of order from down to order to, pushing the upper
// half freed at each step back on its free list. The returned head is
// always the lower half.
func (z *Zone) split(idx int32, from, to uint) int32 {
	offset := z.offset()
	pageOffset := z.pageOffset(idx)

	for order := from; order > to; {
		order--
		buddy := int32(buddyOffset(pageOffset, order) - offset)

		z.page[buddy].order = uint32(order)
		z.page[buddy].flags |= pageFree
		z.free[order].push(z.page, buddy)
	}

	z.page[idx].order = uint32(to)
	z.page[idx].flags &^= pageFree
	return idx
}

// FreePages returns the run headed by descriptor idx to the free
// lists, merging with its buddy as long as the buddy is inside the
// zone, free, and of the same order.
func (z *Zone) FreePages(idx int32, order uint) {
	z.unite(idx, order)
	z.available += uint64(1) << order
}

// FreePagesAt is FreePages addressed by physical address. The address
// must be page aligned and inside the zone.
func (z *Zone) FreePagesAt(addr ram.Addr, order uint) {
	if addr < z.from || addr >= z.to || addr&(PageSize-1) != 0 {
		panic(fmt.Sprintf(
			"buddy: free of %#x outside zone [%#x, %#x)",
			addr, z.from, z.to))
	}
	z.FreePages(int32((addr-z.from)>>PageBits), order)
}

func (z *Zone) unite(idx int32, from uint) {
	offset := z.offset()
	pageOffset := z.pageOffset(idx)
	order := from

	for order < MaxOrder {
		buddy := buddyOffset(pageOffset, order)

		if buddy < offset || buddy-offset >= z.Pages() {
			break
		}

		buddyIdx := int32(buddy - offset)
		if uint(z.page[buddyIdx].order) != order || !z.page[buddyIdx].Free() {
			break
		}

		z.free[order].unlink(z.page, buddyIdx)
		order++

		if buddy < pageOffset {
			pageOffset = buddy
			idx = buddyIdx
		}
	}

	z.page[idx].order = uint32(order)
	z.page[idx].flags |= pageFree
	z.free[order].push(z.page, idx)
}

// freeRun reports the head index of the first run on free[order],
// for tests and diagnostics. Second result is false when empty.
func (z *Zone) freeRun(order uint) (int32, bool) {
	if z.free[order].empty() {
		return 0, false
	}
	return z.free[order].head, true
}

// FreeRuns returns the number of free runs per order, for diagnostics.
func (z *Zone) FreeRuns() [MaxOrder + 1]int {
	var runs [MaxOrder + 1]int
	for order := range z.free {
		for idx := z.free[order].head; idx != nilPage; idx = z.page[idx].next {
			runs[order]++
		}
	}
	return runs
}
