// Package ram models a window of physical address space as a flat byte
// image. The allocator stack keeps its own bookkeeping (slab freelist
// links, slab control blocks, heap metadata headers) inside the image,
// so every structure is addressed by physical address and located with
// plain arithmetic, never by host pointer.
//
// On a real machine the window is the RAM itself. In the hosted build
// it is an anonymous page-aligned mapping (or a plain slice), which
// keeps the exact same address arithmetic testable.
package ram

import (
	"errors"

	"github.com/krinkinmu/aarch64/internal/buf"
)

// Addr is a physical address.
type Addr = uint64

var (
	// ErrBadSize indicates a zero or misaligned image size.
	ErrBadSize = errors.New("ram: image size must be a positive multiple of the page size")

	// ErrMapFail indicates that the backing mapping could not be created.
	ErrMapFail = errors.New("ram: cannot map image backing")
)

// Image is a window [base, base+len) of physical address space.
//
// An Image is not safe for concurrent use. The bootstrap runs on a
// single hart and the allocators built on top inherit that contract.
type Image struct {
	base  Addr
	data  []byte
	unmap func([]byte) error
}

// New returns an image of size bytes based at base, backed by an
// anonymous page-aligned mapping where the platform provides one.
// Size must be a positive multiple of 4096.
func New(base Addr, size int) (*Image, error) {
	if size <= 0 || size%4096 != 0 {
		return nil, ErrBadSize
	}

	data, unmap, err := mapAnon(size)
	if err != nil {
		return nil, err
	}
	return &Image{base: base, data: data, unmap: unmap}, nil
}

// NewSlice returns an image backed by data itself. The caller keeps
// ownership of the slice; Close is a no-op.
func NewSlice(base Addr, data []byte) *Image {
	return &Image{base: base, data: data}
}

// Close releases the backing mapping. The image must not be used after.
func (img *Image) Close() error {
	if img.unmap == nil {
		img.data = nil
		return nil
	}
	data := img.data
	img.data = nil
	return img.unmap(data)
}

// Base returns the first address of the window.
func (img *Image) Base() Addr { return img.base }

// End returns one past the last address of the window.
func (img *Image) End() Addr { return img.base + Addr(len(img.data)) }

// Size returns the window size in bytes.
func (img *Image) Size() int { return len(img.data) }

// Contains reports whether addr lies inside the window.
func (img *Image) Contains(addr Addr) bool {
	return addr >= img.base && addr < img.End()
}

// Bytes returns the n bytes at addr, or false when [addr, addr+n) is
// not fully inside the window.
func (img *Image) Bytes(addr Addr, n int) ([]byte, bool) {
	if n < 0 || addr < img.base {
		return nil, false
	}
	off := addr - img.base
	if off > Addr(len(img.data)) {
		return nil, false
	}
	return buf.Slice(img.data, int(off), n)
}

// ReadU32 reads the little-endian uint32 at addr. Out-of-window reads
// return 0, matching the short-buffer contract of internal/buf.
func (img *Image) ReadU32(addr Addr) uint32 {
	b, ok := img.Bytes(addr, 4)
	if !ok {
		return 0
	}
	return buf.U32LE(b)
}

// ReadU64 reads the little-endian uint64 at addr.
func (img *Image) ReadU64(addr Addr) uint64 {
	b, ok := img.Bytes(addr, 8)
	if !ok {
		return 0
	}
	return buf.U64LE(b)
}

// PutU32 writes a little-endian uint32 at addr. Out-of-window writes
// are dropped.
func (img *Image) PutU32(addr Addr, v uint32) {
	if b, ok := img.Bytes(addr, 4); ok {
		buf.PutU32LE(b, v)
	}
}

// PutU64 writes a little-endian uint64 at addr.
func (img *Image) PutU64(addr Addr, v uint64) {
	if b, ok := img.Bytes(addr, 8); ok {
		buf.PutU64LE(b, v)
	}
}

// Zero clears the n bytes at addr. Returns false when out of window.
func (img *Image) Zero(addr Addr, n int) bool {
	b, ok := img.Bytes(addr, n)
	if !ok {
		return false
	}
	clear(b)
	return true
}

// Copy moves n bytes from src to dst within the window. Overlapping
// ranges are handled like memmove. Returns false when either range is
// out of window.
func (img *Image) Copy(dst, src Addr, n int) bool {
	db, ok := img.Bytes(dst, n)
	if !ok {
		return false
	}
	sb, ok := img.Bytes(src, n)
	if !ok {
		return false
	}
	copy(db, sb)
	return true
}
