// Package boot assembles the memory subsystem from the firmware
// hand-off: the module list describing in-memory artifacts and the
// device tree blob describing the machine. It also carries the
// boundary-tagged first-fit allocator used in the window before the
// memory map exists.
package boot

import (
	"errors"
	"fmt"

	"github.com/krinkinmu/aarch64/fdt"
	"github.com/krinkinmu/aarch64/memory/buddy"
	"github.com/krinkinmu/aarch64/memory/memmap"
	"github.com/krinkinmu/aarch64/memory/ram"
)

// Module names the bootstrap understands. Any other module is
// reserved as-is.
const (
	ModuleKernel = "kernel"
	ModuleDTB    = "dtb"
)

var (
	// ErrNoDTB indicates the module list carries no device tree.
	ErrNoDTB = errors.New("boot: no dtb module")

	// ErrMapFull indicates the memory map ran out of capacity while
	// recording the firmware layout.
	ErrMapFull = errors.New("boot: memory map capacity exceeded")
)

// Module is one firmware hand-off record: a named range of memory
// that must survive bootstrap.
type Module struct {
	Name  string
	Begin ram.Addr
	End   ram.Addr
}

// Setup builds the physical allocator for the machine described by
// the device tree found among the modules. The returned map is the
// bootstrap memory map after all carving, kept only for diagnostics;
// its role ends once the allocator exists.
func Setup(img *ram.Image, modules []Module) (*buddy.Allocator, *memmap.Map, error) {
	blob, err := parseDTBModule(img, modules)
	if err != nil {
		return nil, nil, err
	}
	return SetupWithBlob(img, blob, modules)
}

// SetupWithBlob is Setup with an already parsed device tree. The
// module list still contributes its reservations.
func SetupWithBlob(img *ram.Image, blob *fdt.Blob, modules []Module) (*buddy.Allocator, *memmap.Map, error) {
	m, err := BuildMap(blob, modules)
	if err != nil {
		return nil, nil, err
	}

	phys, err := buddy.Setup(m, img)
	if err != nil {
		return nil, nil, err
	}
	return phys, m, nil
}

// BuildMap registers the device tree's memory nodes as free and
// reserves everything the firmware claims: the /memreserve/ list and
// every module.
func BuildMap(blob *fdt.Blob, modules []Module) (*memmap.Map, error) {
	regions, err := blob.MemoryRegions()
	if err != nil {
		return nil, err
	}

	m := memmap.New()
	for _, r := range regions {
		if !m.Register(r.Begin, r.End(), memmap.Free) {
			return nil, fmt.Errorf("%w: memory [%#x, %#x)",
				ErrMapFull, r.Begin, r.End())
		}
	}
	for _, r := range blob.Reserved() {
		if !m.Reserve(r.Begin, r.End()) {
			return nil, fmt.Errorf("%w: memreserve [%#x, %#x)",
				ErrMapFull, r.Begin, r.End())
		}
	}
	for _, mod := range modules {
		if !m.Reserve(mod.Begin, mod.End) {
			return nil, fmt.Errorf("%w: module %q [%#x, %#x)",
				ErrMapFull, mod.Name, mod.Begin, mod.End)
		}
	}
	return m, nil
}

// parseDTBModule locates the dtb module and parses the blob out of
// the image.
func parseDTBModule(img *ram.Image, modules []Module) (*fdt.Blob, error) {
	for _, mod := range modules {
		if mod.Name != ModuleDTB {
			continue
		}
		data, ok := img.Bytes(mod.Begin, int(mod.End-mod.Begin))
		if !ok {
			return nil, fmt.Errorf("%w: dtb module outside image", ErrNoDTB)
		}
		return fdt.Parse(data)
	}
	return nil, ErrNoDTB
}
