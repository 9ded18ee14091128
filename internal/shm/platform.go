// Package shm contains platform-specific helpers for mapping shared memory windows.
package shm

import "errors"

// ErrUnsupported is returned on platforms without a shared memory mmap.
var ErrUnsupported = errors.New("shared memory mapping is not supported on this platform")

// MappedRegion represents a memory-mapped shared region.
type MappedRegion struct {
	Addr []byte
	Path string
}

// Size returns the mapped length in bytes.
func (r *MappedRegion) Size() int {
	if r == nil {
		return 0
	}
	return len(r.Addr)
}

// MapOptions defines options for mapping shared memory.
type MapOptions struct {
	// Path is the backing file, typically under /dev/shm.
	Path string
	// Size is the mapping length. Zero maps the whole existing file.
	Size int
	// Create creates the file (failing if it exists) and truncates it to Size.
	Create bool
}

// Function implementations are provided in platform-specific files (platform_unix.go, platform_other.go).
