package shm

import (
	"bytes"
	"unsafe"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

const (
	// WindowMagic opens every window.
	WindowMagic = "VSOCSHM\x00"

	WindowMajorVersion uint16 = 1
	WindowMinorVersion uint16 = 0

	WindowHeaderSize     = 64
	RegionDescriptorSize = 64
	// RegionNameSize bounds region names. Shorter names are NUL padded.
	RegionNameSize = 16

	// NoManager marks a region without a manager.
	NoManager uint32 = 0xFFFFFFFF

	// PageSize is the region alignment inside a window.
	PageSize = 4096

	// MaxWindowSize bounds the windows Plan lays out.
	MaxWindowSize = 1 << 32
)

// WindowHeader is stored at offset 0 of a window.
type WindowHeader struct {
	Magic        [8]byte
	MajorVersion uint16
	MinorVersion uint16
	RegionCount  uint32
	// Size is the window size in bytes.
	Size uint64
	// DescriptorOffset is where the RegionDescriptor table starts.
	DescriptorOffset uint64
	Reserved         [32]byte
}

// RegionDescriptor is one entry of the descriptor table. Offsets are
// relative to the window, except DataOffset which is relative to Begin.
type RegionDescriptor struct {
	Name                 [RegionNameSize]byte
	Begin                uint64
	End                  uint64
	DataOffset           uint64
	CurrentVersion       uint16
	MinCompatibleVersion uint16
	// ManagedBy is the descriptor index of the manager, or NoManager.
	ManagedBy uint32
	Reserved  [16]byte
}

// RegionName returns the name without its NUL padding.
func (d *RegionDescriptor) RegionName() string {
	if i := bytes.IndexByte(d.Name[:], 0); i >= 0 {
		return string(d.Name[:i])
	}
	return string(d.Name[:])
}

var (
	_ [unsafe.Sizeof(WindowHeader{}) - WindowHeaderSize]byte
	_ [WindowHeaderSize - unsafe.Sizeof(WindowHeader{})]byte
	_ [unsafe.Sizeof(RegionDescriptor{}) - RegionDescriptorSize]byte
	_ [RegionDescriptorSize - unsafe.Sizeof(RegionDescriptor{})]byte
)

func init() {
	layout.Register[WindowHeader](WindowHeaderSize)
	layout.Register[RegionDescriptor](RegionDescriptorSize)
}

func alignUp(n, align uint64) uint64 {
	return (n + align - 1) &^ (align - 1)
}
