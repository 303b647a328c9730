// Package fdt parses flattened device tree blobs: the firmware-provided
// description of the machine the bootstrap runs on. The parser never
// writes and holds no state beyond the blob it was given; the memory
// bootstrap consumes two things from it, the memory node regions and
// the /memreserve/ list.
package fdt

import "errors"

// Magic is the big-endian signature at offset 0 of every blob.
const Magic = 0xd00dfeed

// Version is the latest device tree spec version the parser accepts
// as a blob's last compatible version.
const Version = 17

// Structure block tokens. All tokens are big-endian and 4-byte
// aligned.
const (
	tokenBeginNode = 1
	tokenEndNode   = 2
	tokenProp      = 3
	tokenNop       = 4
	tokenEnd       = 9
)

var (
	// ErrBadMagic indicates the blob does not start with Magic.
	ErrBadMagic = errors.New("fdt: bad magic")

	// ErrTruncated indicates the blob is smaller than its header claims.
	ErrTruncated = errors.New("fdt: truncated blob")

	// ErrUnsupported indicates a version or cell width the parser
	// does not handle.
	ErrUnsupported = errors.New("fdt: unsupported blob")

	// ErrBadStructure indicates a malformed structure block.
	ErrBadStructure = errors.New("fdt: malformed structure block")

	// ErrBadReserved indicates an unterminated memory reservation map.
	ErrBadReserved = errors.New("fdt: malformed reservation map")
)

// Header is the fixed 40-byte blob header. All fields are big-endian
// on the wire.
type Header struct {
	Magic           uint32
	TotalSize       uint32
	OffDTStruct     uint32
	OffDTStrings    uint32
	OffMemRsvMap    uint32
	Version         uint32
	LastCompVersion uint32
	BootCPUIDPhys   uint32
	SizeDTStrings   uint32
	SizeDTStruct    uint32
}

// headerSize is the wire size of Header.
const headerSize = 40

// Region is a physical address range [Begin, Begin+Size).
type Region struct {
	Begin uint64
	Size  uint64
}

// End returns one past the last address of the region.
func (r Region) End() uint64 { return r.Begin + r.Size }
