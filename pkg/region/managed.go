package region

import (
	"context"
	"fmt"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

// ManagerLayout is a layout that declares the layout of the region it manages.
type ManagerLayout[M layout.RegionLayout] interface {
	layout.RegionLayout
	ManagedRegion() M
}

// OpenManaged opens the region managed by mgr, in mgr's registry and domain.
// The managed region's descriptor must name mgr's region as its manager, so
// both views refer to the same device instance.
//
//	managed, err := region.OpenManaged[layout.E2EManagedTestRegionLayout](ctx, manager)
func OpenManaged[Md layout.RegionLayout, Mgr ManagerLayout[Md]](ctx context.Context, mgr *View[Mgr]) (*View[Md], error) {
	if !mgr.IsOpen() {
		return nil, fmt.Errorf("open managed region: manager %w", ErrNotOpen)
	}
	var zero Mgr
	name := zero.ManagedRegion().RegionName()
	v := NewView[Md](WithRegistry(mgr.registry), WithDomain(mgr.domain), WithLogger(mgr.log))
	if err := v.OpenNamed(ctx, name); err != nil {
		return nil, err
	}
	managerName := mgr.Descriptor().Name
	if managedBy := v.Descriptor().ManagedBy; managedBy != managerName {
		_ = v.Close()
		return nil, fmt.Errorf("open %q: %w %q (managed by %q)", name, ErrNotManaged, managerName, managedBy)
	}
	return v, nil
}
