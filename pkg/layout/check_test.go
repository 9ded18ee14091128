package layout

import (
	"os"
	"reflect"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type implicitPad struct {
	A uint8
	B uint32
}

type trailingPad struct {
	A uint32
	B uint8
}

type explicitPad struct {
	A uint8
	_ [3]byte
	B uint32
}

type withPointer struct{ P *uint32 }

type withInt struct{ N int }

type withString struct{ S string }

type withSlice struct{ S []byte }

type withZeroArray struct {
	A uint32
	Z [0]uint32
}

type empty struct{}

type nestedPad struct {
	In implicitPad
}

type arrayOfPointers struct {
	A [2]withPointer
}

func TestDescribeRejects(t *testing.T) {
	for _, v := range []interface{}{
		implicitPad{},
		trailingPad{},
		withPointer{},
		withInt{},
		withString{},
		withSlice{},
		withZeroArray{},
		nestedPad{},
		arrayOfPointers{},
		empty{},
		uint32(0),
	} {
		_, err := Describe(reflect.TypeOf(v))
		assert.ErrorIs(t, err, ErrIncompatible, "%T", v)
	}
	_, err := Describe(nil)
	assert.ErrorIs(t, err, ErrIncompatible)
}

func TestDescribeExplicitPadding(t *testing.T) {
	table, err := Describe(reflect.TypeOf(explicitPad{}))
	require.NoError(t, err)
	assert.Equal(t, Table{
		Type: "explicitPad",
		Size: 8,
		Fields: []Field{
			{Name: "A", Offset: 0, Size: 1},
			{Name: "_", Offset: 1, Size: 3},
			{Name: "B", Offset: 4, Size: 4},
		},
	}, table)
}

func TestCheckCachesAndMatchesDescribe(t *testing.T) {
	t1, err := Check[E2EPrimaryTestRegionLayout]()
	require.NoError(t, err)
	t2, err := Check[E2EPrimaryTestRegionLayout]()
	require.NoError(t, err)
	assert.Equal(t, t1, t2)
	assert.Equal(t, uint64(E2ETestRegionLayoutSize), t1.Size)

	_, err = Check[withPointer]()
	assert.ErrorIs(t, err, ErrIncompatible)

	assert.Equal(t, uint64(E2ETestRegionLayoutSize), SizeOf[E2ETestRegionLayout]())
	assert.Equal(t, uint64(4), AlignOf[E2ETestRegionLayout]())
}

func TestVerifyCatalog(t *testing.T) {
	require.NoError(t, VerifyCatalog())
	assert.GreaterOrEqual(t, len(Catalog()), 8)
}

func TestRegisterIsIdempotent(t *testing.T) {
	before := len(Catalog())
	Register[E2EMemoryFill](E2EMemoryFillSize)
	assert.Equal(t, before, len(Catalog()))
}

func TestOffsetTablesMatchGolden(t *testing.T) {
	golden, err := os.ReadFile("testdata/e2e_offsets.yaml")
	require.NoError(t, err)
	require.NoError(t, CompareTables(golden))

	var want TableSet
	require.NoError(t, yaml.Unmarshal(golden, &want))
	got, err := Tables()
	require.NoError(t, err)
	names := make(map[string]bool)
	for _, l := range got.Layouts {
		names[l.Type] = true
	}
	for _, l := range want.Layouts {
		assert.True(t, names[l.Type], "layout %s missing from this build", l.Type)
	}
}

func TestCompareTablesDetectsDrift(t *testing.T) {
	out, err := MarshalTables()
	require.NoError(t, err)
	require.NoError(t, CompareTables(out))

	var set TableSet
	require.NoError(t, yaml.Unmarshal(out, &set))
	set.Layouts[0].Fields[0].Offset += 4
	drifted, err := yaml.Marshal(set)
	require.NoError(t, err)
	assert.Error(t, CompareTables(drifted))

	set.ByteOrder = "big"
	drifted, err = yaml.Marshal(set)
	require.NoError(t, err)
	assert.Error(t, CompareTables(drifted))

	assert.Error(t, CompareTables([]byte("layouts: [")))
}
