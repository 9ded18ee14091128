package layout

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumFillRecords(t *testing.T) {
	const header = E2ETestRegionLayoutSize
	const record = E2EMemoryFillSize

	for r := uint64(0); r < header; r++ {
		assert.Equal(t, uint64(0), NumFillRecords(r), "region size %d", r)
	}
	for r := uint64(header); r < header+20*record; r++ {
		assert.Equal(t, 1+(r-header)/record, NumFillRecords(r), "region size %d", r)
	}

	// region exactly the header
	assert.Equal(t, uint64(1), NumFillRecords(header))
	// header plus three records
	assert.Equal(t, uint64(4), NumFillRecords(header+3*record))
	// a partial trailing record does not count
	assert.Equal(t, uint64(4), NumFillRecords(header+4*record-1))
	assert.Equal(t, uint64(0), NumFillRecords(0))
}

func TestFillRecordsCoverTheRegion(t *testing.T) {
	const dataSize = 4096
	mem := make([]uint64, dataSize/8)
	l := (*E2ETestRegionLayout)(unsafe.Pointer(&mem[0]))

	n := NumFillRecords(dataSize)
	records := l.FillRecords(n)
	require.Len(t, records, int(n))
	assert.Same(t, &l.Data[0], &records[0])

	last := uintptr(unsafe.Pointer(&records[n-1])) + E2EMemoryFillSize
	start := uintptr(unsafe.Pointer(&mem[0]))
	assert.LessOrEqual(t, last-start, uintptr(dataSize), "records must stay inside the region")
	assert.Greater(t, last-start+E2EMemoryFillSize, uintptr(dataSize), "records must reach the end of the region")

	assert.Nil(t, l.FillRecords(0))
}

func TestHeaderAccessors(t *testing.T) {
	var p E2EPrimaryTestRegionLayout
	assert.Same(t, &p.E2ETestRegionLayout, p.Header())
	assert.Same(t, &p.HostStatus, p.Status(Host))
	assert.Same(t, &p.GuestStatus, p.Status(Guest))

	p.Status(Host).SetValue(StageMemoryFilled)
	assert.Equal(t, StageMemoryFilled, p.HostStatus.Value())
	assert.Equal(t, StageNone, p.GuestStatus.Value())

	rec := &p.Data[0]
	copy(rec.Writable(Host), "host")
	copy(rec.Writable(Guest), "guest")
	assert.Equal(t, "host", string(rec.HostWritable[:4]))
	assert.Equal(t, "guest", string(rec.GuestWritable[:5]))
}

func TestHeaderIsAtOffsetZero(t *testing.T) {
	assert.Equal(t, uintptr(0), unsafe.Offsetof(E2EPrimaryTestRegionLayout{}.E2ETestRegionLayout))
	assert.Equal(t, uintptr(0), unsafe.Offsetof(E2ESecondaryTestRegionLayout{}.E2ETestRegionLayout))
	assert.Equal(t, uintptr(0), unsafe.Offsetof(E2EUnfindableRegionLayout{}.E2ETestRegionLayout))
}
