package buddy

const (
	// PageBits is log2 of the page size.
	PageBits = 12
	// PageSize is the size of a physical page in bytes.
	PageSize = 1 << PageBits
	// MaxOrder is the largest supported run order: 2^20 pages, a
	// 4 GiB run at 4 KiB pages.
	MaxOrder = 20

	// pageFree marks a descriptor that heads a run on a free list.
	pageFree = 1 << 0

	// descSize is the number of bytes of zone memory accounted to one
	// page descriptor when Setup carves the descriptor array out of
	// the memory map.
	descSize = 16

	// nilPage terminates descriptor index links.
	nilPage = int32(-1)
)

// Page is a per-page descriptor. Descriptor i of a zone covers the
// page at FromAddress() + i*PageSize. The order field is meaningful
// only for the head page of a run; prev and next link the page into
// its per-order free list.
type Page struct {
	flags uint32
	order uint32
	prev  int32
	next  int32
}

// Free reports whether the page heads a run on a free list.
func (p *Page) Free() bool { return p.flags&pageFree != 0 }

// Order returns the run order recorded on the page.
func (p *Page) Order() uint { return uint(p.order) }

// freeList is the head of an index-linked list of page descriptors.
type freeList struct {
	head int32
}

func (l *freeList) empty() bool { return l.head == nilPage }

// push inserts descriptor idx at the head of the list (LIFO).
func (l *freeList) push(page []Page, idx int32) {
	page[idx].prev = nilPage
	page[idx].next = l.head
	if l.head != nilPage {
		page[l.head].prev = idx
	}
	l.head = idx
}

// pop removes and returns the head descriptor, or nilPage.
func (l *freeList) pop(page []Page) int32 {
	idx := l.head
	if idx == nilPage {
		return nilPage
	}
	l.unlink(page, idx)
	return idx
}

// unlink removes descriptor idx from the list in O(1).
func (l *freeList) unlink(page []Page, idx int32) {
	prev, next := page[idx].prev, page[idx].next
	if prev != nilPage {
		page[prev].next = next
	} else {
		l.head = next
	}
	if next != nilPage {
		page[next].prev = prev
	}
	page[idx].prev = nilPage
	page[idx].next = nilPage
}
