//go:build !unix

package shm

import (
	"context"
)

// MapRegion is not implemented on this platform.
func MapRegion(ctx context.Context, opts MapOptions) (*MappedRegion, error) {
	return nil, ErrUnsupported
}

// UnmapRegion is not implemented on this platform.
func UnmapRegion(ctx context.Context, region *MappedRegion) error {
	return ErrUnsupported
}

// Sync is not implemented on this platform.
func Sync(region *MappedRegion) error {
	return ErrUnsupported
}

// RemoveRegion is not implemented on this platform.
func RemoveRegion(path string) error {
	return ErrUnsupported
}
