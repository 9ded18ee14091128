package shm

import (
	"errors"
	"fmt"
	"math/bits"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

// ErrInvalidPlan is wrapped by every error Plan returns.
var ErrInvalidPlan = errors.New("invalid window plan")

// RegionSpec asks for one region in a window.
type RegionSpec struct {
	Name string `yaml:"name"`
	// DataSize is the payload size. The region is rounded up to whole pages.
	DataSize uint64 `yaml:"data_size"`
	// DataOffset places the payload inside the region; it must be 8 byte aligned.
	DataOffset           uint64 `yaml:"data_offset"`
	CurrentVersion       uint16 `yaml:"current_version"`
	MinCompatibleVersion uint16 `yaml:"min_compatible_version"`
	// ManagedBy names the manager region, which must be in the same plan.
	ManagedBy string `yaml:"managed_by"`
}

const (
	// DefaultE2EDataSize is the payload size of the primary and secondary regions.
	DefaultE2EDataSize = 16 * 1024
	// e2eManagerDataSize is the payload size of the manager and managed regions.
	e2eManagerDataSize = PageSize
)

// E2ERegions returns the regions the E2E handshake expects. The unfindable
// region is never part of it. A zero dataSize means DefaultE2EDataSize.
func E2ERegions(dataSize uint64) []RegionSpec {
	if dataSize == 0 {
		dataSize = DefaultE2EDataSize
	}
	v := layout.E2ETestVersion
	return []RegionSpec{
		{Name: layout.E2EPrimaryRegionName, DataSize: dataSize, CurrentVersion: v, MinCompatibleVersion: v},
		{Name: layout.E2ESecondaryRegionName, DataSize: dataSize, CurrentVersion: v, MinCompatibleVersion: v},
		{Name: layout.E2EManagerRegionName, DataSize: e2eManagerDataSize, CurrentVersion: v, MinCompatibleVersion: v},
		{Name: layout.E2EManagedRegionName, DataSize: e2eManagerDataSize, CurrentVersion: v, MinCompatibleVersion: v,
			ManagedBy: layout.E2EManagerRegionName},
	}
}

// Plan carves specs into a window. Regions follow the descriptor table in
// order, each starting on a page boundary. It returns the window size and
// the descriptor table.
func Plan(specs []RegionSpec) (uint64, []RegionDescriptor, error) {
	if len(specs) == 0 {
		return 0, nil, fmt.Errorf("%w: no regions", ErrInvalidPlan)
	}
	index := make(map[string]uint32, len(specs))
	for i, s := range specs {
		switch {
		case s.Name == "":
			return 0, nil, fmt.Errorf("%w: region %d has no name", ErrInvalidPlan, i)
		case len(s.Name) > RegionNameSize:
			return 0, nil, fmt.Errorf("%w: region name %q is longer than %d bytes", ErrInvalidPlan, s.Name, RegionNameSize)
		case s.DataSize == 0:
			return 0, nil, fmt.Errorf("%w: region %q has no payload", ErrInvalidPlan, s.Name)
		case s.DataOffset%8 != 0:
			return 0, nil, fmt.Errorf("%w: region %q data offset %d is not 8 byte aligned", ErrInvalidPlan, s.Name, s.DataOffset)
		case s.MinCompatibleVersion > s.CurrentVersion:
			return 0, nil, fmt.Errorf("%w: region %q min compatible version %d is above current %d",
				ErrInvalidPlan, s.Name, s.MinCompatibleVersion, s.CurrentVersion)
		}
		if _, dup := index[s.Name]; dup {
			return 0, nil, fmt.Errorf("%w: region %q is listed twice", ErrInvalidPlan, s.Name)
		}
		index[s.Name] = uint32(i)
	}

	descs := make([]RegionDescriptor, len(specs))
	offset := alignUp(WindowHeaderSize+uint64(len(specs))*RegionDescriptorSize, PageSize)
	for i, s := range specs {
		d := &descs[i]
		copy(d.Name[:], s.Name)
		payload, carry := bits.Add64(s.DataOffset, s.DataSize, 0)
		if carry != 0 || payload > MaxWindowSize {
			return 0, nil, fmt.Errorf("%w: region %q payload does not fit in %d bytes", ErrInvalidPlan, s.Name, uint64(MaxWindowSize))
		}
		d.Begin = offset
		d.End = offset + alignUp(payload, PageSize)
		if d.End > MaxWindowSize {
			return 0, nil, fmt.Errorf("%w: window grows past %d bytes at region %q", ErrInvalidPlan, uint64(MaxWindowSize), s.Name)
		}
		d.DataOffset = s.DataOffset
		d.CurrentVersion = s.CurrentVersion
		d.MinCompatibleVersion = s.MinCompatibleVersion
		d.ManagedBy = NoManager
		if s.ManagedBy != "" {
			mgr, ok := index[s.ManagedBy]
			if !ok {
				return 0, nil, fmt.Errorf("%w: region %q is managed by unknown region %q", ErrInvalidPlan, s.Name, s.ManagedBy)
			}
			if mgr == uint32(i) {
				return 0, nil, fmt.Errorf("%w: region %q manages itself", ErrInvalidPlan, s.Name)
			}
			d.ManagedBy = mgr
		}
		offset = d.End
	}
	return offset, descs, nil
}
