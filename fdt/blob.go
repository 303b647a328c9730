package fdt

// Blob is a parsed device tree. The structure block is walked on
// demand; parsing validates only the header and the reservation map
// up front.
type Blob struct {
	header   Header
	reserved []Region
	structs  []byte
	strings  []byte
}

// Parse validates data as a device tree blob. The blob may be
// followed by unrelated bytes; only TotalSize of it is looked at.
func Parse(data []byte) (*Blob, error) {
	s := scanner{data: data}

	var h Header
	for _, field := range []*uint32{
		&h.Magic, &h.TotalSize, &h.OffDTStruct, &h.OffDTStrings,
		&h.OffMemRsvMap, &h.Version, &h.LastCompVersion,
		&h.BootCPUIDPhys, &h.SizeDTStrings, &h.SizeDTStruct,
	} {
		v, ok := s.consumeU32()
		if !ok {
			return nil, ErrTruncated
		}
		*field = v
	}

	if h.Magic != Magic {
		return nil, ErrBadMagic
	}
	if int(h.TotalSize) > len(data) || h.TotalSize < headerSize {
		return nil, ErrTruncated
	}
	if h.LastCompVersion > Version {
		return nil, ErrUnsupported
	}
	if uint64(h.OffMemRsvMap)+16 > uint64(h.TotalSize) {
		return nil, ErrTruncated
	}
	if uint64(h.OffDTStruct)+uint64(h.SizeDTStruct) > uint64(h.TotalSize) {
		return nil, ErrTruncated
	}
	if uint64(h.OffDTStrings)+uint64(h.SizeDTStrings) > uint64(h.TotalSize) {
		return nil, ErrTruncated
	}

	reserved, err := parseReserved(data[h.OffMemRsvMap:h.TotalSize])
	if err != nil {
		return nil, err
	}

	return &Blob{
		header:   h,
		reserved: reserved,
		structs:  data[h.OffDTStruct : h.OffDTStruct+h.SizeDTStruct],
		strings:  data[h.OffDTStrings : h.OffDTStrings+h.SizeDTStrings],
	}, nil
}

// parseReserved reads (begin, size) pairs until the (0, 0) terminator.
func parseReserved(data []byte) ([]Region, error) {
	s := scanner{data: data}
	var reserved []Region

	for {
		begin, ok := s.consumeU64()
		if !ok {
			return nil, ErrBadReserved
		}
		size, ok := s.consumeU64()
		if !ok {
			return nil, ErrBadReserved
		}
		if begin == 0 && size == 0 {
			return reserved, nil
		}
		reserved = append(reserved, Region{Begin: begin, Size: size})
	}
}

// Header returns the parsed blob header.
func (b *Blob) Header() Header { return b.header }

// Version returns the blob's device tree version.
func (b *Blob) Version() uint32 { return b.header.Version }

// BootCPU returns the physical id of the boot CPU.
func (b *Blob) BootCPU() uint32 { return b.header.BootCPUIDPhys }

// Reserved returns the /memreserve/ entries.
func (b *Blob) Reserved() []Region { return b.reserved }

// Property is one property of a node during a walk. Value aliases the
// blob; callers copy if they keep it.
type Property struct {
	Name  string
	Value []byte
}

// AsU32 decodes a single big-endian cell.
func (p Property) AsU32() (uint32, bool) {
	s := scanner{data: p.Value}
	return s.consumeU32()
}

// AsU64 decodes two big-endian cells.
func (p Property) AsU64() (uint64, bool) {
	s := scanner{data: p.Value}
	return s.consumeU64()
}

// AsRegions decodes a reg-style property: (address, size) pairs whose
// widths follow the enclosing node's #address-cells and #size-cells.
// Only 1- and 2-cell widths occur on this architecture.
func (p Property) AsRegions(addrCells, sizeCells uint32) ([]Region, bool) {
	if addrCells < 1 || addrCells > 2 || sizeCells < 1 || sizeCells > 2 {
		return nil, false
	}
	entry := int(addrCells+sizeCells) * 4
	if entry == 0 || len(p.Value)%entry != 0 {
		return nil, false
	}

	s := scanner{data: p.Value}
	var regions []Region
	for s.remaining() > 0 {
		begin, ok := consumeCells(&s, addrCells)
		if !ok {
			return nil, false
		}
		size, ok := consumeCells(&s, sizeCells)
		if !ok {
			return nil, false
		}
		regions = append(regions, Region{Begin: begin, Size: size})
	}
	return regions, true
}

func consumeCells(s *scanner, cells uint32) (uint64, bool) {
	if cells == 1 {
		v, ok := s.consumeU32()
		return uint64(v), ok
	}
	return s.consumeU64()
}

// Visitor receives structure block events during a Walk. Depth 0 is
// the root node; properties are reported for the node most recently
// entered.
type Visitor interface {
	Enter(depth int, name string) error
	Prop(depth int, prop Property) error
	Leave(depth int) error
}

// Walk traverses the whole structure block in document order.
func (b *Blob) Walk(v Visitor) error {
	s := scanner{data: b.structs}
	depth := -1

	for {
		token, ok := s.consumeU32()
		if !ok {
			return ErrBadStructure
		}

		switch token {
		case tokenBeginNode:
			name, ok := s.consumeCstr()
			if !ok || !s.alignForward(4) {
				return ErrBadStructure
			}
			depth++
			if err := v.Enter(depth, name); err != nil {
				return err
			}

		case tokenEndNode:
			if depth < 0 {
				return ErrBadStructure
			}
			if err := v.Leave(depth); err != nil {
				return err
			}
			depth--

		case tokenProp:
			size, ok := s.consumeU32()
			if !ok {
				return ErrBadStructure
			}
			nameOff, ok := s.consumeU32()
			if !ok {
				return ErrBadStructure
			}
			value, ok := s.consumeBytes(int(size))
			if !ok || !s.alignForward(4) {
				return ErrBadStructure
			}
			name, ok := cstrAt(b.strings, nameOff)
			if !ok {
				return ErrBadStructure
			}
			if depth < 0 {
				return ErrBadStructure
			}
			if err := v.Prop(depth, Property{Name: name, Value: value}); err != nil {
				return err
			}

		case tokenNop:

		case tokenEnd:
			if depth != -1 {
				return ErrBadStructure
			}
			return nil

		default:
			return ErrBadStructure
		}
	}
}
