//go:build unix

package ram

import (
	"errors"

	"golang.org/x/sys/unix"
)

// mapAnon creates an anonymous private mapping of size bytes. The
// mapping is page-aligned, which keeps the hosted image's alignment
// behavior identical to real RAM.
func mapAnon(size int) ([]byte, func([]byte) error, error) {
	data, err := unix.Mmap(
		-1, 0, size,
		unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, nil, errors.Join(ErrMapFail, err)
	}

	unmap := func(b []byte) error {
		if b == nil {
			return nil
		}
		err := unix.Munmap(b)
		if errors.Is(err, unix.EINVAL) {
			// Treat double-unmap as a no-op for callers.
			return nil
		}
		return err
	}
	return data, unmap, nil
}
