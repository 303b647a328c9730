package buddy

import "github.com/krinkinmu/aarch64/memory/ram"

// Contigous is the owning handle of one buddy allocation: a run of
// 2^order pages inside a zone. The zero value is the null handle.
// Handles are values; passing one around does not duplicate the
// underlying allocation, and the holder that calls FreePhysical gives
// it up.
type Contigous struct {
	zone  *Zone
	page  int32
	order uint
}

// IsNull reports whether the handle names no allocation.
func (c Contigous) IsNull() bool { return c.zone == nil }

// Zone returns the owning zone, nil for the null handle.
func (c Contigous) Zone() *Zone { return c.zone }

// Order returns the allocation order.
func (c Contigous) Order() uint { return c.order }

// FromAddress returns the first address of the run, 0 for null.
func (c Contigous) FromAddress() ram.Addr {
	if c.zone == nil {
		return 0
	}
	return c.zone.PageAddress(c.page)
}

// ToAddress returns one past the last address of the run.
func (c Contigous) ToAddress() ram.Addr {
	return c.FromAddress() + ram.Addr(c.Size())
}

// Size returns the run size in bytes, 0 for the null handle.
func (c Contigous) Size() uint64 {
	if c.zone == nil {
		return 0
	}
	return uint64(1) << (c.order + PageBits)
}
