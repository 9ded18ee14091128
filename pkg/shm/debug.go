package shm

import (
	"fmt"
	"io"
	"os"
	"unsafe"

	"github.com/valyala/bytebufferpool"

	"github.com/srediag/vsoc-shm/pkg/layout"
)

// Dump prints the window header and one line per region. E2E test regions
// also show their stage registers.
func (w *Window) Dump(out io.Writer) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return ErrWindowClosed
	}
	return dump(out, w.name(), w.mem, w.header, w.descs)
}

// DebugWindowDetail prints the window stored at path without mapping it.
func DebugWindowDetail(out io.Writer, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	mem := heapBytes(uint64(len(data)))
	copy(mem, data)
	h, descs, err := parse(mem)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return dump(out, path, mem, h, descs)
}

func dump(out io.Writer, name string, mem []byte, h *WindowHeader, descs []RegionDescriptor) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	fmt.Fprintf(buf, "window:%s version:%d.%d size:%d regions:%d descriptors_at:%d\n",
		name, h.MajorVersion, h.MinorVersion, h.Size, h.RegionCount, h.DescriptorOffset)
	for i := range descs {
		d := &descs[i]
		managedBy := "-"
		if d.ManagedBy != NoManager {
			managedBy = descs[d.ManagedBy].RegionName()
		}
		fmt.Fprintf(buf, "region[%d] name:%s begin:%d end:%d data_offset:%d version:%d min_version:%d managed_by:%s",
			i, d.RegionName(), d.Begin, d.End, d.DataOffset, d.CurrentVersion, d.MinCompatibleVersion, managedBy)
		if l := e2eHeader(mem, d); l != nil {
			fmt.Fprintf(buf, " guest:%s host:%s", l.GuestStatus.Value(), l.HostStatus.Value())
		}
		_ = buf.WriteByte('\n')
	}
	_, err := out.Write(buf.B)
	return err
}

// e2eHeader returns the handshake header of a test region, or nil.
func e2eHeader(mem []byte, d *RegionDescriptor) *layout.E2ETestRegionLayout {
	switch d.RegionName() {
	case layout.E2EPrimaryRegionName, layout.E2ESecondaryRegionName, layout.E2EUnfindableRegionName:
	default:
		return nil
	}
	start := d.Begin + d.DataOffset
	if d.End < start+layout.E2ETestRegionLayoutSize {
		return nil
	}
	p := unsafe.Pointer(&mem[start])
	if uintptr(p)%4 != 0 {
		return nil
	}
	return (*layout.E2ETestRegionLayout)(p)
}
