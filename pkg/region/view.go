package region

import (
	"context"
	"fmt"
	"os"
	"unsafe"

	"github.com/srediag/vsoc-shm/internal/logging"
	"github.com/srediag/vsoc-shm/pkg/layout"
)

type viewConfig struct {
	registry *Registry
	domain   string
	log      *logging.Logger
}

// ViewOption configures a View.
type ViewOption func(*viewConfig)

// WithRegistry resolves regions through r instead of DefaultRegistry.
func WithRegistry(r *Registry) ViewOption {
	return func(c *viewConfig) {
		c.registry = r
	}
}

// WithDomain selects the mapper domain.
func WithDomain(domain string) ViewOption {
	return func(c *viewConfig) {
		c.domain = domain
	}
}

// WithLogger replaces the view's logger.
func WithLogger(l *logging.Logger) ViewOption {
	return func(c *viewConfig) {
		c.log = l
	}
}

// View is a typed window onto one region. It is cheap to construct and holds
// nothing until Open succeeds. A View is not safe for concurrent Open/Close;
// the layout it exposes is shared memory and follows the layout's own rules.
type View[L layout.RegionLayout] struct {
	viewConfig
	mapping Mapping
	data    *L
}

// NewView returns an unopened view for layout L.
func NewView[L layout.RegionLayout](opts ...ViewOption) *View[L] {
	v := &View[L]{viewConfig: viewConfig{registry: DefaultRegistry}}
	for _, opt := range opts {
		opt(&v.viewConfig)
	}
	if v.log == nil {
		v.log = logging.New("region", os.Stdout)
	}
	return v
}

// Name returns the region name L binds to.
func (v *View[L]) Name() string {
	var zero L
	return zero.RegionName()
}

// Open maps the region named by L.
func (v *View[L]) Open(ctx context.Context) error {
	return v.OpenNamed(ctx, v.Name())
}

// OpenNamed maps the region name, which overrides the name L binds to. The
// region must still be able to hold L. On failure the view stays unopened.
func (v *View[L]) OpenNamed(ctx context.Context, name string) error {
	if v.mapping != nil {
		return fmt.Errorf("open %q: %w (%s)", name, ErrAlreadyOpen, v.mapping.Descriptor().Name)
	}
	if _, err := layout.Check[L](); err != nil {
		return fmt.Errorf("open %q: %w", name, err)
	}
	m, err := v.registry.Open(ctx, name, v.domain)
	if err != nil {
		v.log.Warnf("region %q: %v", name, err)
		return err
	}
	data, err := place[L](m)
	if err != nil {
		if cerr := m.Close(); cerr != nil {
			v.log.Warnf("region %q: close after failed open: %v", name, cerr)
		}
		v.log.Warnf("region %q: %v", name, err)
		return fmt.Errorf("open %q: %w", name, err)
	}
	v.mapping = m
	v.data = data
	d := m.Descriptor()
	v.log.Debugf("region %q open: size=%d data_offset=%d domain=%q", d.Name, d.Size, d.DataOffset, v.domain)
	return nil
}

// place validates m against L and returns the payload as *L.
func place[L layout.RegionLayout](m Mapping) (*L, error) {
	desc := m.Descriptor()
	mem := m.Bytes()
	size := layout.SizeOf[L]()
	if uint64(len(mem)) < desc.Size {
		return nil, fmt.Errorf("%w: mapping has %d bytes, descriptor says %d", ErrRegionTooSmall, len(mem), desc.Size)
	}
	if desc.DataSize() < size {
		return nil, fmt.Errorf("%w: payload is %d bytes, layout needs %d", ErrRegionTooSmall, desc.DataSize(), size)
	}
	var zero L
	if vl, ok := any(zero).(layout.VersionedLayout); ok && vl.RegionVersion() < desc.MinCompatibleVersion {
		return nil, fmt.Errorf("%w: layout version %d, region requires %d", ErrIncompatibleVersion, vl.RegionVersion(), desc.MinCompatibleVersion)
	}
	p := unsafe.Pointer(&mem[desc.DataOffset])
	if align := layout.AlignOf[L](); uint64(uintptr(p))%align != 0 {
		return nil, fmt.Errorf("%w: payload at offset %d, layout alignment %d", ErrMisaligned, desc.DataOffset, align)
	}
	return (*L)(p), nil
}

// Data returns the layout placed over the region payload. It is nil until
// Open succeeds; callers must not use it after Close.
func (v *View[L]) Data() *L {
	return v.data
}

// IsOpen reports whether the view is open.
func (v *View[L]) IsOpen() bool {
	return v.mapping != nil
}

// Descriptor returns the descriptor of the open region.
func (v *View[L]) Descriptor() Descriptor {
	if v.mapping == nil {
		return Descriptor{}
	}
	return v.mapping.Descriptor()
}

// DataSize returns the payload size of the open region.
func (v *View[L]) DataSize() uint64 {
	return v.Descriptor().DataSize()
}

// Domain returns the domain the view resolves regions in.
func (v *View[L]) Domain() string {
	return v.domain
}

// Close releases the mapping. Closing an unopened view does nothing.
func (v *View[L]) Close() error {
	if v.mapping == nil {
		return nil
	}
	m := v.mapping
	v.mapping = nil
	v.data = nil
	if err := m.Close(); err != nil {
		return fmt.Errorf("close %q: %w", m.Descriptor().Name, err)
	}
	return nil
}
