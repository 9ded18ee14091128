// Package shm lays regions out in a shared memory window and maps them.
//
// A window is one shared memory segment: a WindowHeader, a table of
// RegionDescriptors, then the regions themselves, each starting on a page
// boundary. The host side creates the window with Create and the other side
// attaches with Open. A Window is a region.Mapper, so typed views open
// regions through it:
//
//	w, err := shm.Create(ctx, shm.CreateOptions{
//		Path:    "/dev/shm/vsoc_e2e",
//		Regions: shm.E2ERegions(0),
//	})
//	// ...
//	reg := region.NewRegistry()
//	reg.Register(region.DefaultDomain, w)
//	v := region.NewView[layout.E2EPrimaryTestRegionLayout](region.WithRegistry(reg))
//	err = v.Open(ctx)
//
// With an empty Path the window lives on the heap, which serves in-process
// peers and tests. Platform mapping helpers are in internal/shm.
package shm
