//go:build !unix

package ram

import "github.com/bytedance/gopkg/lang/dirtmake"

// mapAnon falls back to a plain arena on platforms without mmap. The
// image is zeroed explicitly because dirtmake skips the runtime's
// memclr; callers rely on a fresh image reading as zero.
func mapAnon(size int) ([]byte, func([]byte) error, error) {
	data := dirtmake.Bytes(size, size)
	clear(data)
	return data, nil, nil
}
