package shm

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"unsafe"

	"github.com/srediag/vsoc-shm/internal/logging"
	internalshm "github.com/srediag/vsoc-shm/internal/shm"
	"github.com/srediag/vsoc-shm/pkg/region"
)

var (
	// ErrBadWindow is returned when mapped bytes are not a valid window.
	ErrBadWindow = errors.New("malformed shared memory window")
	// ErrWindowClosed is returned by operations on a closed window.
	ErrWindowClosed = errors.New("window is closed")
	// ErrWindowBusy is returned by Close while region mappings are open.
	ErrWindowBusy = errors.New("window has open region mappings")
	// ErrNoSpace is returned when /dev/shm cannot hold a new window.
	ErrNoSpace = errors.New("share memory had not left space")
)

// CreateOptions defines the window Create lays out.
type CreateOptions struct {
	// Path is the backing file, typically under /dev/shm. Empty keeps the
	// window on the heap.
	Path    string
	Regions []RegionSpec
	Logger  *logging.Logger
}

// OpenOptions defines the window Open attaches to.
type OpenOptions struct {
	Path   string
	Logger *logging.Logger
}

// Window is a mapped shared memory window.
type Window struct {
	mu     sync.Mutex
	path   string
	mem    []byte
	mapped *internalshm.MappedRegion
	header *WindowHeader
	descs  []RegionDescriptor
	open   int
	closed bool
	log    *logging.Logger
}

// Create lays out opts.Regions and writes the header and descriptor table.
// A file backed window fails if the file exists.
func Create(ctx context.Context, opts CreateOptions) (*Window, error) {
	size, descs, err := Plan(opts.Regions)
	if err != nil {
		return nil, err
	}
	w := &Window{path: opts.Path, log: windowLogger(opts.Logger)}
	if opts.Path == "" {
		w.mem = heapBytes(size)
	} else {
		if !internalshm.CanCreateOnDevShm(size, opts.Path) {
			return nil, fmt.Errorf("create %s: %w, size:%d", opts.Path, ErrNoSpace, size)
		}
		w.mapped, err = internalshm.MapRegion(ctx, internalshm.MapOptions{
			Path:   opts.Path,
			Size:   int(size),
			Create: true,
		})
		if err != nil {
			return nil, err
		}
		w.mem = w.mapped.Addr
	}

	h := (*WindowHeader)(unsafe.Pointer(&w.mem[0]))
	copy(h.Magic[:], WindowMagic)
	h.MajorVersion = WindowMajorVersion
	h.MinorVersion = WindowMinorVersion
	h.RegionCount = uint32(len(descs))
	h.Size = size
	h.DescriptorOffset = WindowHeaderSize
	w.header = h
	w.descs = descriptorTable(w.mem, h)
	copy(w.descs, descs)

	w.log.Infof("window %s created: size=%d regions=%d", w.name(), size, len(descs))
	return w, nil
}

// Open maps an existing file backed window and validates it.
func Open(ctx context.Context, opts OpenOptions) (*Window, error) {
	mapped, err := internalshm.MapRegion(ctx, internalshm.MapOptions{Path: opts.Path})
	if err != nil {
		return nil, err
	}
	h, descs, err := parse(mapped.Addr)
	if err != nil {
		if uerr := internalshm.UnmapRegion(ctx, mapped); uerr != nil {
			err = errors.Join(err, uerr)
		}
		return nil, fmt.Errorf("open %s: %w", opts.Path, err)
	}
	w := &Window{
		path:   opts.Path,
		mem:    mapped.Addr,
		mapped: mapped,
		header: h,
		descs:  descs,
		log:    windowLogger(opts.Logger),
	}
	w.log.Infof("window %s opened: size=%d regions=%d version=%d.%d",
		w.name(), h.Size, h.RegionCount, h.MajorVersion, h.MinorVersion)
	return w, nil
}

func windowLogger(l *logging.Logger) *logging.Logger {
	if l == nil {
		return logging.New("shm", os.Stdout)
	}
	return l
}

// heapBytes returns n zeroed, 8 byte aligned bytes.
func heapBytes(n uint64) []byte {
	if n == 0 {
		return nil
	}
	words := make([]uint64, (n+7)/8)
	return unsafe.Slice((*byte)(unsafe.Pointer(&words[0])), n)
}

func descriptorTable(mem []byte, h *WindowHeader) []RegionDescriptor {
	if h.RegionCount == 0 {
		return nil
	}
	return unsafe.Slice((*RegionDescriptor)(unsafe.Pointer(&mem[h.DescriptorOffset])), h.RegionCount)
}

// parse validates mem as a window and returns its header and descriptors,
// both pointing into mem.
func parse(mem []byte) (*WindowHeader, []RegionDescriptor, error) {
	if len(mem) < WindowHeaderSize {
		return nil, nil, fmt.Errorf("%w: %d bytes is shorter than the header", ErrBadWindow, len(mem))
	}
	if uintptr(unsafe.Pointer(&mem[0]))%8 != 0 {
		return nil, nil, fmt.Errorf("%w: window start is not 8 byte aligned", ErrBadWindow)
	}
	h := (*WindowHeader)(unsafe.Pointer(&mem[0]))
	if string(h.Magic[:]) != WindowMagic {
		return nil, nil, fmt.Errorf("%w: bad magic %q", ErrBadWindow, h.Magic[:])
	}
	if h.MajorVersion != WindowMajorVersion {
		return nil, nil, fmt.Errorf("%w: version %d.%d, want major %d", ErrBadWindow, h.MajorVersion, h.MinorVersion, WindowMajorVersion)
	}
	if h.Size > uint64(len(mem)) {
		return nil, nil, fmt.Errorf("%w: header size %d exceeds mapping of %d bytes", ErrBadWindow, h.Size, len(mem))
	}
	if h.DescriptorOffset < WindowHeaderSize || h.DescriptorOffset%8 != 0 || h.DescriptorOffset > h.Size ||
		uint64(h.RegionCount) > (h.Size-h.DescriptorOffset)/RegionDescriptorSize {
		return nil, nil, fmt.Errorf("%w: descriptor table at %d with %d regions does not fit in %d bytes",
			ErrBadWindow, h.DescriptorOffset, h.RegionCount, h.Size)
	}
	tableEnd := h.DescriptorOffset + uint64(h.RegionCount)*RegionDescriptorSize
	descs := descriptorTable(mem, h)
	for i := range descs {
		d := &descs[i]
		switch {
		case d.Begin < tableEnd || d.Begin > d.End || d.End > h.Size:
			return nil, nil, fmt.Errorf("%w: region %d [%d, %d) out of bounds", ErrBadWindow, i, d.Begin, d.End)
		case d.DataOffset > d.End-d.Begin:
			return nil, nil, fmt.Errorf("%w: region %d data offset %d past its end", ErrBadWindow, i, d.DataOffset)
		case d.ManagedBy != NoManager && (d.ManagedBy >= h.RegionCount || d.ManagedBy == uint32(i)):
			return nil, nil, fmt.Errorf("%w: region %d has bad manager index %d", ErrBadWindow, i, d.ManagedBy)
		}
	}
	return h, descs, nil
}

func (w *Window) name() string {
	if w.path == "" {
		return "(heap)"
	}
	return w.path
}

// Path returns the backing file, or "" for a heap window.
func (w *Window) Path() string {
	return w.path
}

// Size returns the window size in bytes.
func (w *Window) Size() uint64 {
	return w.header.Size
}

func (w *Window) describe(d *RegionDescriptor) region.Descriptor {
	desc := region.Descriptor{
		Name:                 d.RegionName(),
		Size:                 d.End - d.Begin,
		DataOffset:           d.DataOffset,
		CurrentVersion:       d.CurrentVersion,
		MinCompatibleVersion: d.MinCompatibleVersion,
	}
	if d.ManagedBy != NoManager {
		desc.ManagedBy = w.descs[d.ManagedBy].RegionName()
	}
	return desc
}

// Regions returns the descriptors of every region, in table order.
func (w *Window) Regions() []region.Descriptor {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]region.Descriptor, 0, len(w.descs))
	for i := range w.descs {
		out = append(out, w.describe(&w.descs[i]))
	}
	return out
}

// Map implements region.Mapper.
func (w *Window) Map(ctx context.Context, name string) (region.Mapping, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil, ErrWindowClosed
	}
	for i := range w.descs {
		d := &w.descs[i]
		if d.RegionName() != name {
			continue
		}
		w.open++
		w.log.Debugf("window %s: map %q [%d, %d)", w.name(), name, d.Begin, d.End)
		return &mapping{
			w:    w,
			desc: w.describe(d),
			mem:  w.mem[d.Begin:d.End:d.End],
		}, nil
	}
	return nil, fmt.Errorf("%w: %q in window %s", region.ErrRegionNotFound, name, w.name())
}

func (w *Window) release() {
	w.mu.Lock()
	w.open--
	w.mu.Unlock()
}

// Sync flushes a file backed window to its file.
func (w *Window) Sync() error {
	if w.mapped == nil {
		return nil
	}
	return internalshm.Sync(w.mapped)
}

// Close unmaps the window. It fails with ErrWindowBusy while regions are
// mapped; closing a closed window does nothing.
func (w *Window) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return nil
	}
	if w.open > 0 {
		return fmt.Errorf("close %s: %w (%d)", w.name(), ErrWindowBusy, w.open)
	}
	w.closed = true
	w.descs = nil
	w.header = &WindowHeader{Size: w.header.Size}
	w.mem = nil
	w.log.Infof("window %s closed", w.name())
	if w.mapped == nil {
		return nil
	}
	return internalshm.UnmapRegion(context.Background(), w.mapped)
}

// Remove unlinks the backing file of a window. A missing file is not an error.
func Remove(path string) error {
	return internalshm.RemoveRegion(path)
}

type mapping struct {
	w    *Window
	desc region.Descriptor
	mem  []byte
	once sync.Once
}

func (m *mapping) Descriptor() region.Descriptor { return m.desc }

func (m *mapping) Bytes() []byte { return m.mem }

func (m *mapping) Close() error {
	m.once.Do(m.w.release)
	return nil
}
