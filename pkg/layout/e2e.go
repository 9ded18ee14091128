package layout

import "unsafe"

// Layouts for the regions used by the end-to-end test. The test verifies the
// whole path host libraries <-> shared memory server <-> kernel <-> guest
// libraries and runs on every device boot, so it deliberately avoids mocks.

// Canonical sizes. Host and guest builds must agree on these.
const (
	E2EOwnedFieldSize              = 32
	E2EMemoryFillSize              = 2 * E2EOwnedFieldSize
	StageRegisterSize              = 4
	E2ETestRegionLayoutSize        = 2*StageRegisterSize + E2EMemoryFillSize
	E2EManagedTestRegionLayoutSize = 4
	E2EManagerTestRegionLayoutSize = 16

	// E2ETestVersion is the format version of every E2E region.
	E2ETestVersion uint16 = 1
)

// Region names. E2EUnfindableRegionName must never be configured.
const (
	E2EPrimaryRegionName    = "e2e_primary"
	E2ESecondaryRegionName  = "e2e_secondary"
	E2EUnfindableRegionName = "e2e_dont_find_me"
	E2EManagerRegionName    = "e2e_manager"
	E2EManagedRegionName    = "e2e_managed"
)

var (
	primaryGuestPattern   = NewPattern("primary guest e2e string")
	primaryHostPattern    = NewPattern("primary host e2e string")
	secondaryGuestPattern = NewPattern("secondary guest e2e string")
	secondaryHostPattern  = NewPattern("secondary host e2e string")
)

// E2EMemoryFill grants write permission on one half to the guest and on the
// other half to the host. The field size is arbitrary.
type E2EMemoryFill struct {
	HostWritable  [E2EOwnedFieldSize]byte
	GuestWritable [E2EOwnedFieldSize]byte
}

// Writable returns the half owned by side.
func (f *E2EMemoryFill) Writable(side Side) []byte {
	if side == Host {
		return f.HostWritable[:]
	}
	return f.GuestWritable[:]
}

// E2ETestRegionLayout is the common header of the primary, secondary and
// unfindable regions. Concrete layouts embed it by value as their first field.
type E2ETestRegionLayout struct {
	// Stages completed on the guest. Host tests wait on this.
	GuestStatus StageRegister
	// Stages completed on the host. Guest tests wait on this.
	HostStatus StageRegister
	// The rest of the region is covered by fill records. Only the first is
	// declared; FillRecords exposes as many as the mapped region holds.
	Data [1]E2EMemoryFill
}

// Header returns l. Layouts embedding the header inherit it.
func (l *E2ETestRegionLayout) Header() *E2ETestRegionLayout {
	return l
}

// Status returns the register owned by side.
func (l *E2ETestRegionLayout) Status(side Side) *StageRegister {
	if side == Host {
		return &l.HostStatus
	}
	return &l.GuestStatus
}

// FillRecords returns n records starting at Data[0]. n must not exceed
// NumFillRecords of the mapped region's data size.
func (l *E2ETestRegionLayout) FillRecords(n uint64) []E2EMemoryFill {
	if n == 0 {
		return nil
	}
	return unsafe.Slice(&l.Data[0], n)
}

// NumFillRecords computes how many E2EMemoryFill records cover a region of
// regionSize bytes. Covering the entire region ensures everything is mapped
// and coherent between guest and host. Regions smaller than the header hold
// zero records.
func NumFillRecords(regionSize uint64) uint64 {
	if regionSize < E2ETestRegionLayoutSize {
		return 0
	}
	// 1 + ... the header already declares one record.
	return 1 + (regionSize-E2ETestRegionLayoutSize)/E2EMemoryFillSize
}

// TestRegionLayout is implemented by the layouts that run the fill handshake.
type TestRegionLayout interface {
	VersionedLayout
	GuestPattern() Pattern
	HostPattern() Pattern
}

type E2EPrimaryTestRegionLayout struct {
	E2ETestRegionLayout
}

func (E2EPrimaryTestRegionLayout) RegionName() string { return E2EPrimaryRegionName }
func (E2EPrimaryTestRegionLayout) RegionVersion() uint16 { return E2ETestVersion }
func (E2EPrimaryTestRegionLayout) GuestPattern() Pattern { return primaryGuestPattern }
func (E2EPrimaryTestRegionLayout) HostPattern() Pattern { return primaryHostPattern }

type E2ESecondaryTestRegionLayout struct {
	E2ETestRegionLayout
}

func (E2ESecondaryTestRegionLayout) RegionName() string { return E2ESecondaryRegionName }
func (E2ESecondaryTestRegionLayout) RegionVersion() uint16 { return E2ETestVersion }
func (E2ESecondaryTestRegionLayout) GuestPattern() Pattern { return secondaryGuestPattern }
func (E2ESecondaryTestRegionLayout) HostPattern() Pattern { return secondaryHostPattern }

// E2EUnfindableRegionLayout names a region that should never be configured.
type E2EUnfindableRegionLayout struct {
	E2ETestRegionLayout
}

func (E2EUnfindableRegionLayout) RegionName() string { return E2EUnfindableRegionName }
func (E2EUnfindableRegionLayout) RegionVersion() uint16 { return E2ETestVersion }

type E2EManagedTestRegionLayout struct {
	Val uint32 // Not needed, here only to avoid an empty struct.
}

func (E2EManagedTestRegionLayout) RegionName() string { return E2EManagedRegionName }
func (E2EManagedTestRegionLayout) RegionVersion() uint16 { return E2ETestVersion }

type E2EManagerTestRegionLayout struct {
	Data [4]uint32 // We don't need more than 4 for the tests
}

func (E2EManagerTestRegionLayout) RegionName() string { return E2EManagerRegionName }
func (E2EManagerTestRegionLayout) RegionVersion() uint16 { return E2ETestVersion }

// ManagedRegion declares the layout of the region this one manages.
func (E2EManagerTestRegionLayout) ManagedRegion() E2EManagedTestRegionLayout {
	return E2EManagedTestRegionLayout{}
}

// Compile-time size assertions: each pair of zero-length arrays only builds
// when the computed size equals the canonical constant.
var (
	_ [unsafe.Sizeof(StageRegister{}) - StageRegisterSize]byte
	_ [StageRegisterSize - unsafe.Sizeof(StageRegister{})]byte

	_ [unsafe.Sizeof(E2EMemoryFill{}) - E2EMemoryFillSize]byte
	_ [E2EMemoryFillSize - unsafe.Sizeof(E2EMemoryFill{})]byte

	_ [unsafe.Sizeof(E2ETestRegionLayout{}) - E2ETestRegionLayoutSize]byte
	_ [E2ETestRegionLayoutSize - unsafe.Sizeof(E2ETestRegionLayout{})]byte

	_ [unsafe.Sizeof(E2EPrimaryTestRegionLayout{}) - E2ETestRegionLayoutSize]byte
	_ [E2ETestRegionLayoutSize - unsafe.Sizeof(E2EPrimaryTestRegionLayout{})]byte

	_ [unsafe.Sizeof(E2ESecondaryTestRegionLayout{}) - E2ETestRegionLayoutSize]byte
	_ [E2ETestRegionLayoutSize - unsafe.Sizeof(E2ESecondaryTestRegionLayout{})]byte

	_ [unsafe.Sizeof(E2EUnfindableRegionLayout{}) - E2ETestRegionLayoutSize]byte
	_ [E2ETestRegionLayoutSize - unsafe.Sizeof(E2EUnfindableRegionLayout{})]byte

	_ [unsafe.Sizeof(E2EManagedTestRegionLayout{}) - E2EManagedTestRegionLayoutSize]byte
	_ [E2EManagedTestRegionLayoutSize - unsafe.Sizeof(E2EManagedTestRegionLayout{})]byte

	_ [unsafe.Sizeof(E2EManagerTestRegionLayout{}) - E2EManagerTestRegionLayoutSize]byte
	_ [E2EManagerTestRegionLayoutSize - unsafe.Sizeof(E2EManagerTestRegionLayout{})]byte

	_ [unsafe.Offsetof(E2ETestRegionLayout{}.Data) - 2*StageRegisterSize]byte
	_ [2*StageRegisterSize - unsafe.Offsetof(E2ETestRegionLayout{}.Data)]byte
)
