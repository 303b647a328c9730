package fdt

import "strings"

// Default cell widths per the devicetree spec, used when a node does
// not state its own.
const (
	defaultAddrCells = 2
	defaultSizeCells = 1
)

// nodeCells tracks the #address-cells / #size-cells in effect for the
// children of one node on the walk stack.
type nodeCells struct {
	addr uint32
	size uint32
}

// memoryVisitor collects the reg regions of every memory node. The
// cell widths applied to a node's reg come from its parent, which in
// practice states them before any child begins.
type memoryVisitor struct {
	stack    []nodeCells
	inMemory []bool
	regions  []Region
}

func unitName(name string) string {
	if at := strings.IndexByte(name, '@'); at >= 0 {
		return name[:at]
	}
	return name
}

func (mv *memoryVisitor) Enter(depth int, name string) error {
	mv.stack = append(mv.stack, nodeCells{
		addr: defaultAddrCells,
		size: defaultSizeCells,
	})
	mv.inMemory = append(mv.inMemory, unitName(name) == "memory")
	return nil
}

func (mv *memoryVisitor) Prop(depth int, prop Property) error {
	top := len(mv.stack) - 1

	switch prop.Name {
	case "#address-cells":
		if v, ok := prop.AsU32(); ok {
			mv.stack[top].addr = v
		}
	case "#size-cells":
		if v, ok := prop.AsU32(); ok {
			mv.stack[top].size = v
		}
	case "reg":
		if !mv.inMemory[top] {
			return nil
		}
		cells := nodeCells{addr: defaultAddrCells, size: defaultSizeCells}
		if top > 0 {
			cells = mv.stack[top-1]
		}
		regions, ok := prop.AsRegions(cells.addr, cells.size)
		if !ok {
			return ErrUnsupported
		}
		mv.regions = append(mv.regions, regions...)
	}
	return nil
}

func (mv *memoryVisitor) Leave(depth int) error {
	mv.stack = mv.stack[:len(mv.stack)-1]
	mv.inMemory = mv.inMemory[:len(mv.inMemory)-1]
	return nil
}

// MemoryRegions returns the (address, size) pairs of every memory
// node's reg property, decoded with the enclosing node's cell widths.
func (b *Blob) MemoryRegions() ([]Region, error) {
	mv := &memoryVisitor{}
	if err := b.Walk(mv); err != nil {
		return nil, err
	}
	return mv.regions, nil
}
