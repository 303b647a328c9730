package buddy

import (
	"fmt"
	"os"

	"github.com/krinkinmu/aarch64/internal/bits"
	"github.com/krinkinmu/aarch64/memory/ram"
)

// Trace of failed physical allocations, controlled by the
// KERNEL_TRACE_PHYS environment variable.
var tracePhys = os.Getenv("KERNEL_TRACE_PHYS") != ""

// Stats holds allocation counters for instrumentation and tests.
type Stats struct {
	Allocations uint64 // successful AllocatePhysical calls
	Frees       uint64 // FreePhysical/FreePhysicalAt calls that released pages
	Failures    uint64 // AllocatePhysical calls that found no run
}

// Allocator is the multi-zone physical allocator produced by Setup.
// Zones are tried in registration order, which follows ascending
// physical addresses.
type Allocator struct {
	zones []*Zone
	stats Stats
}

// Zones returns the zones in registration order.
func (a *Allocator) Zones() []*Zone { return a.zones }

// Stats returns a copy of the allocation counters.
func (a *Allocator) Stats() Stats { return a.stats }

// AddressZone returns the zone containing addr, or nil.
func (a *Allocator) AddressZone(addr ram.Addr) *Zone {
	for _, z := range a.zones {
		if addr >= z.FromAddress() && addr < z.ToAddress() {
			return z
		}
	}
	return nil
}

// AllocatePhysical allocates the smallest power-of-two page run that
// holds size bytes. Zero size and sizes above 2^(MaxOrder+PageBits)
// return the null handle, as does exhaustion of every zone.
func (a *Allocator) AllocatePhysical(size uint64) Contigous {
	if size == 0 {
		return Contigous{}
	}

	power := uint(0)
	if size > 1 {
		power = bits.MSB(size-1) + 1
	}
	if power < PageBits {
		power = PageBits
	}
	order := power - PageBits

	if order > MaxOrder {
		a.stats.Failures++
		return Contigous{}
	}

	for _, z := range a.zones {
		if idx, ok := z.AllocatePages(order); ok {
			a.stats.Allocations++
			return Contigous{zone: z, page: idx, order: order}
		}
	}

	a.stats.Failures++
	if tracePhys {
		fmt.Fprintf(os.Stderr,
			"[PHYS] out of memory: size=%d order=%d available=%d\n",
			size, order, a.AvailablePhysical())
	}
	return Contigous{}
}

// FreePhysical releases the run named by the handle. Freeing the null
// handle is a no-op.
func (a *Allocator) FreePhysical(c Contigous) {
	if c.IsNull() {
		return
	}
	c.zone.FreePages(c.page, c.order)
	a.stats.Frees++
}

// FreePhysicalAt releases the run of 2^order pages at addr. The
// address must be the start of a previously allocated run; an address
// no zone covers panics. This is the reconstruction path for owners
// that persisted (address, order) instead of the handle.
func (a *Allocator) FreePhysicalAt(addr ram.Addr, order uint) {
	z := a.AddressZone(addr)
	if z == nil {
		panic(fmt.Sprintf("buddy: free of %#x outside every zone", addr))
	}
	z.FreePagesAt(addr, order)
	a.stats.Frees++
}

// TotalPhysical returns the number of bytes governed by all zones.
func (a *Allocator) TotalPhysical() uint64 {
	var total uint64
	for _, z := range a.zones {
		total += z.Pages() << PageBits
	}
	return total
}

// AvailablePhysical returns the number of bytes currently free across
// all zones.
func (a *Allocator) AvailablePhysical() uint64 {
	var available uint64
	for _, z := range a.zones {
		available += z.Available() << PageBits
	}
	return available
}
