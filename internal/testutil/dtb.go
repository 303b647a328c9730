// Package testutil provides fixtures shared by tests: an in-memory
// device tree blob builder so parser and bootstrap tests can assemble
// exactly the firmware input they want to exercise.
package testutil

import "encoding/binary"

const (
	tokenBeginNode = 1
	tokenEndNode   = 2
	tokenProp      = 3
	tokenNop       = 4
	tokenEnd       = 9
)

// DTBNode is one node under construction.
type DTBNode struct {
	name     string
	props    []dtbProp
	children []*DTBNode
}

type dtbProp struct {
	name  string
	value []byte
}

// DTB assembles a wire-format flattened device tree.
type DTB struct {
	root     *DTBNode
	reserved [][2]uint64
	version  uint32
	lastComp uint32
	bootCPU  uint32
}

// NewDTB returns a builder with an empty root node and no
// reservations, claiming device tree version 17.
func NewDTB() *DTB {
	return &DTB{
		root:     &DTBNode{name: ""},
		version:  17,
		lastComp: 16,
	}
}

// Root returns the root node.
func (d *DTB) Root() *DTBNode { return d.root }

// Reserve appends a /memreserve/ entry.
func (d *DTB) Reserve(begin, size uint64) *DTB {
	d.reserved = append(d.reserved, [2]uint64{begin, size})
	return d
}

// LastCompVersion overrides the last compatible version field.
func (d *DTB) LastCompVersion(v uint32) *DTB {
	d.lastComp = v
	return d
}

// Child adds and returns a child node.
func (n *DTBNode) Child(name string) *DTBNode {
	child := &DTBNode{name: name}
	n.children = append(n.children, child)
	return child
}

// Prop adds a raw property.
func (n *DTBNode) Prop(name string, value []byte) *DTBNode {
	n.props = append(n.props, dtbProp{name: name, value: value})
	return n
}

// PropU32 adds a single-cell property.
func (n *DTBNode) PropU32(name string, v uint32) *DTBNode {
	return n.Prop(name, U32(v))
}

// PropString adds a NUL-terminated string property.
func (n *DTBNode) PropString(name, v string) *DTBNode {
	return n.Prop(name, append([]byte(v), 0))
}

// U32 encodes one big-endian cell.
func U32(v uint32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], v)
	return b[:]
}

// U64 encodes two big-endian cells.
func U64(v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return b[:]
}

// Reg encodes (address, size) pairs with the given cell widths.
func Reg(addrCells, sizeCells int, pairs ...[2]uint64) []byte {
	var out []byte
	cell := func(cells int, v uint64) {
		if cells == 1 {
			out = append(out, U32(uint32(v))...)
		} else {
			out = append(out, U64(v)...)
		}
	}
	for _, p := range pairs {
		cell(addrCells, p[0])
		cell(sizeCells, p[1])
	}
	return out
}

// Build assembles the blob.
func (d *DTB) Build() []byte {
	strings := &stringTable{}
	structs := buildNode(d.root, strings)
	structs = append(structs, U32(tokenEnd)...)

	rsv := make([]byte, 0, 16*(len(d.reserved)+1))
	for _, r := range d.reserved {
		rsv = append(rsv, U64(r[0])...)
		rsv = append(rsv, U64(r[1])...)
	}
	rsv = append(rsv, U64(0)...)
	rsv = append(rsv, U64(0)...)

	const headerSize = 40
	offRsv := align4(headerSize)
	offStruct := align4(offRsv + len(rsv))
	offStrings := align4(offStruct + len(structs))
	total := offStrings + len(strings.data)

	blob := make([]byte, total)
	be := binary.BigEndian
	be.PutUint32(blob[0:], 0xd00dfeed)
	be.PutUint32(blob[4:], uint32(total))
	be.PutUint32(blob[8:], uint32(offStruct))
	be.PutUint32(blob[12:], uint32(offStrings))
	be.PutUint32(blob[16:], uint32(offRsv))
	be.PutUint32(blob[20:], d.version)
	be.PutUint32(blob[24:], d.lastComp)
	be.PutUint32(blob[28:], d.bootCPU)
	be.PutUint32(blob[32:], uint32(len(strings.data)))
	be.PutUint32(blob[36:], uint32(len(structs)))

	copy(blob[offRsv:], rsv)
	copy(blob[offStruct:], structs)
	copy(blob[offStrings:], strings.data)
	return blob
}

func buildNode(n *DTBNode, strings *stringTable) []byte {
	var out []byte
	out = append(out, U32(tokenBeginNode)...)
	out = append(out, []byte(n.name)...)
	out = append(out, 0)
	out = pad4(out)

	for _, p := range n.props {
		out = append(out, U32(tokenProp)...)
		out = append(out, U32(uint32(len(p.value)))...)
		out = append(out, U32(strings.offset(p.name))...)
		out = append(out, p.value...)
		out = pad4(out)
	}
	for _, child := range n.children {
		out = append(out, buildNode(child, strings)...)
	}
	out = append(out, U32(tokenEndNode)...)
	return out
}

type stringTable struct {
	data    []byte
	offsets map[string]uint32
}

func (st *stringTable) offset(s string) uint32 {
	if st.offsets == nil {
		st.offsets = make(map[string]uint32)
	}
	if off, ok := st.offsets[s]; ok {
		return off
	}
	off := uint32(len(st.data))
	st.data = append(st.data, []byte(s)...)
	st.data = append(st.data, 0)
	st.offsets[s] = off
	return off
}

func align4(n int) int { return (n + 3) &^ 3 }

func pad4(b []byte) []byte {
	for len(b)%4 != 0 {
		b = append(b, 0)
	}
	return b
}
