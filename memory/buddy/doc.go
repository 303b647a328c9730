// Package buddy implements the physical page allocator. Each
// contiguous physical region is governed by one Zone: a buddy
// allocator handing out power-of-two runs of 4 KiB pages for orders
// 0 through MaxOrder.
//
// # Page descriptors
//
// A zone describes its pages with an index-addressed descriptor array:
// descriptor i covers the page at zone.FromAddress() + i*PageSize. The
// per-order free lists are linked through prev/next indexes embedded
// in the descriptors, so list membership costs no allocation and
// unlinking a known page is O(1). The descriptor array's backing bytes
// are carved out of the memory map during Setup, before the allocator
// can allocate anything itself.
//
// # Invariants
//
// Every byte of a zone is accounted for exactly once: it is either
// allocated or covered by exactly one run on a free list. A page on
// free[k] has the free flag set, order k, and a page offset divisible
// by 2^k; its buddy (offset XOR 2^k) is never simultaneously free at
// the same order, otherwise the two would have been merged. These are
// local properties: allocate and free re-establish them for the pages
// they touch and never re-examine the rest of the zone.
//
// # Allocation policy
//
// Allocation scans free lists from the requested order upward and
// splits the first run found, always keeping the lower half and
// pushing the upper halves back, one per order. Freed runs are pushed
// at the list head, so a free immediately followed by an allocation of
// the same size returns the same pages.
//
// The allocator is not safe for concurrent use; the bootstrap is
// single-harted and callers must synchronize externally if that ever
// changes.
package buddy
