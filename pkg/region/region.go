// Package region opens named shared memory regions and places typed layouts
// over them.
//
// The mapping itself is done by a Mapper (see pkg/shm for the window backed
// one). A View[L] resolves a region through a Registry, checks that the
// mapping can hold L, and hands out a *L pointing into the mapped bytes. The
// view never owns the memory: the Mapper keeps it valid for as long as the
// mapping is open.
package region

import (
	"context"
	"errors"
)

var (
	// ErrRegionNotFound is returned by mappers for names they do not know.
	ErrRegionNotFound = errors.New("region not found")
	// ErrUnknownDomain is returned when no mapper is registered for a domain.
	ErrUnknownDomain = errors.New("no mapper registered for domain")
	// ErrRegionTooSmall is returned when the mapped payload cannot hold the layout.
	ErrRegionTooSmall = errors.New("region is smaller than its layout")
	// ErrMisaligned is returned when the payload address does not satisfy the layout's alignment.
	ErrMisaligned = errors.New("region payload is misaligned for its layout")
	// ErrIncompatibleVersion is returned when the layout is older than the region accepts.
	ErrIncompatibleVersion = errors.New("layout version is not compatible with region")
	// ErrAlreadyOpen is returned by Open on a view that is open.
	ErrAlreadyOpen = errors.New("view is already open")
	// ErrNotOpen is returned by operations that need an open view.
	ErrNotOpen = errors.New("view is not open")
	// ErrNotManaged is returned when a region is not managed by the expected manager.
	ErrNotManaged = errors.New("region is not managed by manager")
)

// Descriptor describes a mapped region.
type Descriptor struct {
	Name string
	// Size is the region size in bytes, payload offset included.
	Size uint64
	// DataOffset is where the typed payload starts, relative to the region.
	DataOffset uint64
	// CurrentVersion and MinCompatibleVersion bound the layout versions the region accepts.
	CurrentVersion       uint16
	MinCompatibleVersion uint16
	// ManagedBy names the manager region, if any.
	ManagedBy string
}

// DataSize returns the payload size.
func (d Descriptor) DataSize() uint64 {
	if d.DataOffset > d.Size {
		return 0
	}
	return d.Size - d.DataOffset
}

// Mapping is an opened region.
type Mapping interface {
	Descriptor() Descriptor
	// Bytes returns the whole region; len(Bytes()) == Descriptor().Size.
	Bytes() []byte
	Close() error
}

// Mapper resolves region names to mappings.
type Mapper interface {
	Map(ctx context.Context, name string) (Mapping, error)
}

// MapperFunc adapts a function to Mapper.
type MapperFunc func(ctx context.Context, name string) (Mapping, error)

func (f MapperFunc) Map(ctx context.Context, name string) (Mapping, error) {
	return f(ctx, name)
}
