package e2e

import (
	"fmt"

	"github.com/srediag/vsoc-shm/pkg/layout"
	"github.com/srediag/vsoc-shm/pkg/region"
)

// Region is an opened test region as the handshake sees it.
type Region struct {
	Name string
	// Layout is the header placed at the start of the payload.
	Layout *layout.E2ETestRegionLayout
	// DataSize is the payload size the fill records cover.
	DataSize     uint64
	GuestPattern layout.Pattern
	HostPattern  layout.Pattern
}

// Pattern returns the pattern side writes.
func (r *Region) Pattern(side layout.Side) layout.Pattern {
	if side == layout.Host {
		return r.HostPattern
	}
	return r.GuestPattern
}

// headerLayout is a pointer to a layout embedding the handshake header.
type headerLayout[L any] interface {
	*L
	Header() *layout.E2ETestRegionLayout
}

// FromView returns the Region of an open view. The patterns come from L, so
// primary and secondary never share them.
func FromView[L layout.TestRegionLayout, P headerLayout[L]](v *region.View[L]) (*Region, error) {
	if !v.IsOpen() {
		return nil, fmt.Errorf("e2e region %s: %w", v.Name(), region.ErrNotOpen)
	}
	var zero L
	return &Region{
		Name:         v.Descriptor().Name,
		Layout:       P(v.Data()).Header(),
		DataSize:     v.DataSize(),
		GuestPattern: zero.GuestPattern(),
		HostPattern:  zero.HostPattern(),
	}, nil
}
