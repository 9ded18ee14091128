package region

import (
	"context"
	"errors"
	"io"
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"github.com/srediag/vsoc-shm/internal/logging"
	"github.com/srediag/vsoc-shm/pkg/layout"
)

type memMapping struct {
	desc   Descriptor
	mem    []byte
	closes *int
}

func (m *memMapping) Descriptor() Descriptor { return m.desc }
func (m *memMapping) Bytes() []byte          { return m.mem }
func (m *memMapping) Close() error {
	*m.closes++
	return nil
}

// memMapper serves heap regions; each Map returns a mapping over the same bytes.
type memMapper struct {
	regions  map[string]Descriptor
	mem      map[string][]byte
	truncate map[string]int
	closes   int
}

func newMemMapper() *memMapper {
	return &memMapper{
		regions:  make(map[string]Descriptor),
		mem:      make(map[string][]byte),
		truncate: make(map[string]int),
	}
}

func (m *memMapper) add(d Descriptor) {
	m.regions[d.Name] = d
	// uint64 backing keeps the region 8 byte aligned
	words := make([]uint64, (d.Size+7)/8)
	m.mem[d.Name] = unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), d.Size)
}

func (m *memMapper) Map(ctx context.Context, name string) (Mapping, error) {
	d, ok := m.regions[name]
	if !ok {
		return nil, ErrRegionNotFound
	}
	mem := m.mem[name]
	if n, ok := m.truncate[name]; ok {
		mem = mem[:n]
	}
	return &memMapping{desc: d, mem: mem, closes: &m.closes}, nil
}

type ViewTestSuite struct {
	suite.Suite
	ctx    context.Context
	mapper *memMapper
	reg    *Registry
	log    *logging.Logger
}

func (s *ViewTestSuite) SetupTest() {
	s.ctx = context.Background()
	s.mapper = newMemMapper()
	s.mapper.add(Descriptor{Name: layout.E2EPrimaryRegionName, Size: 4096, DataOffset: 64, CurrentVersion: 1, MinCompatibleVersion: 1})
	s.mapper.add(Descriptor{Name: layout.E2ESecondaryRegionName, Size: 4096, CurrentVersion: 1, MinCompatibleVersion: 1})
	s.mapper.add(Descriptor{Name: layout.E2EManagerRegionName, Size: 64})
	s.mapper.add(Descriptor{Name: layout.E2EManagedRegionName, Size: 64, ManagedBy: layout.E2EManagerRegionName})
	s.reg = NewRegistry()
	s.reg.Register(DefaultDomain, s.mapper)
	s.log = logging.New("test", io.Discard)
}

func (s *ViewTestSuite) view() *View[layout.E2EPrimaryTestRegionLayout] {
	return NewView[layout.E2EPrimaryTestRegionLayout](WithRegistry(s.reg), WithLogger(s.log))
}

func (s *ViewTestSuite) TestOpenPlacesLayoutAtDataOffset() {
	v := s.view()
	s.Nil(v.Data())
	s.False(v.IsOpen())
	s.Equal("e2e_primary", v.Name())

	s.Require().NoError(v.Open(s.ctx))
	s.True(v.IsOpen())
	s.Equal(uint64(4096-64), v.DataSize())
	s.Equal(layout.E2EPrimaryRegionName, v.Descriptor().Name)

	mem := s.mapper.mem[layout.E2EPrimaryRegionName]
	s.Equal(unsafe.Pointer(&mem[64]), unsafe.Pointer(v.Data()))

	v.Data().HostStatus.SetValue(layout.StageMemoryFilled)
	// HostStatus is the second register of the header
	s.Equal(byte(layout.StageMemoryFilled), mem[64+4])
}

func (s *ViewTestSuite) TestTwoViewsShareTheRegion() {
	a, b := s.view(), s.view()
	s.Require().NoError(a.Open(s.ctx))
	s.Require().NoError(b.Open(s.ctx))
	copy(a.Data().Data[0].HostWritable[:], "shared")
	s.Equal("shared", string(b.Data().Data[0].HostWritable[:6]))
}

func (s *ViewTestSuite) TestOpenNotFoundLeavesViewUnopened() {
	v := NewView[layout.E2EUnfindableRegionLayout](WithRegistry(s.reg), WithLogger(s.log))
	err := v.Open(s.ctx)
	s.ErrorIs(err, ErrRegionNotFound)
	s.False(v.IsOpen())
	s.Nil(v.Data())
	s.Equal(Descriptor{}, v.Descriptor())
}

func (s *ViewTestSuite) TestOpenUnknownDomain() {
	v := NewView[layout.E2EPrimaryTestRegionLayout](WithRegistry(s.reg), WithDomain("vsoc-1"), WithLogger(s.log))
	s.Equal("vsoc-1", v.Domain())
	s.ErrorIs(v.Open(s.ctx), ErrUnknownDomain)
	s.False(v.IsOpen())
}

func (s *ViewTestSuite) TestOpenRegionTooSmall() {
	s.mapper.add(Descriptor{Name: layout.E2EPrimaryRegionName, Size: 128, DataOffset: 64, MinCompatibleVersion: 1})
	v := s.view()
	s.ErrorIs(v.Open(s.ctx), ErrRegionTooSmall)
	s.False(v.IsOpen())
	s.Equal(1, s.mapper.closes, "failed open must release the mapping")

	s.mapper.add(Descriptor{Name: layout.E2EPrimaryRegionName, Size: 64, DataOffset: 128})
	s.ErrorIs(v.Open(s.ctx), ErrRegionTooSmall)
}

func (s *ViewTestSuite) TestOpenMappingShorterThanDescriptor() {
	s.mapper.truncate[layout.E2EPrimaryRegionName] = 100
	s.ErrorIs(s.view().Open(s.ctx), ErrRegionTooSmall)
}

func (s *ViewTestSuite) TestOpenMisaligned() {
	s.mapper.add(Descriptor{Name: layout.E2EPrimaryRegionName, Size: 4096, DataOffset: 2, MinCompatibleVersion: 1})
	v := s.view()
	s.ErrorIs(v.Open(s.ctx), ErrMisaligned)
	s.False(v.IsOpen())
}

func (s *ViewTestSuite) TestOpenIncompatibleVersion() {
	s.mapper.add(Descriptor{Name: layout.E2EPrimaryRegionName, Size: 4096, CurrentVersion: 3, MinCompatibleVersion: 2})
	s.ErrorIs(s.view().Open(s.ctx), ErrIncompatibleVersion)
}

func (s *ViewTestSuite) TestOpenTwiceAndReopen() {
	v := s.view()
	s.Require().NoError(v.Open(s.ctx))
	s.ErrorIs(v.Open(s.ctx), ErrAlreadyOpen)
	s.True(v.IsOpen())

	s.Require().NoError(v.Close())
	s.False(v.IsOpen())
	s.Nil(v.Data())
	s.Equal(1, s.mapper.closes)
	s.NoError(v.Close(), "closing a closed view is a no-op")

	s.Require().NoError(v.OpenNamed(s.ctx, layout.E2ESecondaryRegionName))
	s.Equal(layout.E2ESecondaryRegionName, v.Descriptor().Name)
}

func (s *ViewTestSuite) TestOpenNamedOverride() {
	v := NewView[layout.E2EUnfindableRegionLayout](WithRegistry(s.reg), WithLogger(s.log))
	s.Require().NoError(v.OpenNamed(s.ctx, layout.E2EPrimaryRegionName))
	s.Equal(layout.E2EPrimaryRegionName, v.Descriptor().Name)
}

func (s *ViewTestSuite) TestOpenManaged() {
	mgr := NewView[layout.E2EManagerTestRegionLayout](WithRegistry(s.reg), WithLogger(s.log))
	_, err := OpenManaged[layout.E2EManagedTestRegionLayout](s.ctx, mgr)
	s.ErrorIs(err, ErrNotOpen)

	s.Require().NoError(mgr.Open(s.ctx))
	managed, err := OpenManaged[layout.E2EManagedTestRegionLayout](s.ctx, mgr)
	s.Require().NoError(err)
	s.Equal(layout.E2EManagedRegionName, managed.Descriptor().Name)
	s.Equal(mgr.Descriptor().Name, managed.Descriptor().ManagedBy)
	s.Equal(mgr.Domain(), managed.Domain())

	managed.Data().Val = 7
	again, err := OpenManaged[layout.E2EManagedTestRegionLayout](s.ctx, mgr)
	s.Require().NoError(err)
	s.Equal(uint32(7), again.Data().Val)
}

func (s *ViewTestSuite) TestOpenManagedRejectsForeignRegion() {
	s.mapper.add(Descriptor{Name: layout.E2EManagedRegionName, Size: 64, ManagedBy: "somebody_else"})
	mgr := NewView[layout.E2EManagerTestRegionLayout](WithRegistry(s.reg), WithLogger(s.log))
	s.Require().NoError(mgr.Open(s.ctx))
	closes := s.mapper.closes
	_, err := OpenManaged[layout.E2EManagedTestRegionLayout](s.ctx, mgr)
	s.ErrorIs(err, ErrNotManaged)
	s.Equal(closes+1, s.mapper.closes)
}

func TestViewTestSuite(t *testing.T) {
	suite.Run(t, new(ViewTestSuite))
}

func TestRegistry(t *testing.T) {
	r := NewRegistry()
	assert.Empty(t, r.Domains())

	fail := MapperFunc(func(ctx context.Context, name string) (Mapping, error) {
		return nil, errors.New("backend unavailable")
	})
	r.Register("b", fail)
	r.Register("a", fail)
	assert.Equal(t, []string{"a", "b"}, r.Domains())

	_, err := r.Open(context.Background(), "e2e_primary", "a")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "backend unavailable")

	r.Unregister("a")
	_, err = r.Open(context.Background(), "e2e_primary", "a")
	assert.ErrorIs(t, err, ErrUnknownDomain)
}

func TestDescriptorDataSize(t *testing.T) {
	assert.Equal(t, uint64(96), Descriptor{Size: 128, DataOffset: 32}.DataSize())
	assert.Equal(t, uint64(0), Descriptor{Size: 16, DataOffset: 32}.DataSize())
}
