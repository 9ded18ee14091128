// Package layout defines the binary shape of the shared memory regions that
// host and guest map, and the checks that keep those shapes identical across
// independently compiled binaries.
//
// A layout is never allocated. It is placed over mapped memory by
// region.View, so every type here must be plain data: fixed-size integers,
// byte arrays and structs of those, with any padding written out explicitly.
// Fields that the peer observes concurrently are only accessed through the
// atomic methods of StageRegister.
package layout

import (
	"fmt"
	"sync/atomic"
)

// RegionLayout is implemented by every layout that binds to a named region.
// RegionName must be a value method returning a constant.
type RegionLayout interface {
	RegionName() string
}

// VersionedLayout is a RegionLayout that declares its format version. Opening
// a region whose minimum compatible version is above it fails.
type VersionedLayout interface {
	RegionLayout
	RegionVersion() uint16
}

// Side identifies one of the two address spaces sharing a region.
type Side uint8

const (
	Guest Side = iota
	Host
)

// Peer returns the other side.
func (s Side) Peer() Side {
	if s == Host {
		return Guest
	}
	return Host
}

func (s Side) String() string {
	switch s {
	case Guest:
		return "guest"
	case Host:
		return "host"
	}
	return fmt.Sprintf("Side(%d)", uint8(s))
}

// ParseSide parses "host" or "guest".
func ParseSide(s string) (Side, error) {
	switch s {
	case "host":
		return Host, nil
	case "guest":
		return Guest, nil
	}
	return 0, fmt.Errorf("unknown side %q", s)
}

// Stage is the protocol progress a side publishes through its StageRegister.
// Values only increase during a successful run.
type Stage uint32

const (
	// StageNone means no tests have passed.
	StageNone Stage = 0
	// StageMemoryFilled means this side has finished writing its pattern to the region.
	StageMemoryFilled Stage = 1
	// StagePeerMemoryRead means this side has confirmed it can see its peer's writes.
	StagePeerMemoryRead Stage = 2
)

func (s Stage) String() string {
	switch s {
	case StageNone:
		return "NONE"
	case StageMemoryFilled:
		return "MEMORY_FILLED"
	case StagePeerMemoryRead:
		return "PEER_MEMORY_READ"
	}
	return fmt.Sprintf("Stage(%d)", uint32(s))
}

// StageRegister is a 4 byte stage word inside a shared region. One side
// writes it and the other polls it, so both accesses go through sync/atomic:
// SetValue publishes every earlier write of the owner and Value makes them
// visible to the reader.
type StageRegister struct {
	value uint32
}

// Value loads the register.
func (r *StageRegister) Value() Stage {
	return Stage(atomic.LoadUint32(&r.value))
}

// SetValue stores the register.
func (r *StageRegister) SetValue(s Stage) {
	atomic.StoreUint32(&r.value, uint32(s))
}

// Pattern is the content a side writes into its half of every fill record.
type Pattern [E2EOwnedFieldSize]byte

// NewPattern returns s as a zero padded Pattern. Longer strings are truncated.
func NewPattern(s string) Pattern {
	var p Pattern
	copy(p[:], s)
	return p
}

func (p Pattern) String() string {
	n := 0
	for n < len(p) && p[n] != 0 {
		n++
	}
	return string(p[:n])
}
