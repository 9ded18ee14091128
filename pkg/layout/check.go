package layout

import (
	"errors"
	"fmt"
	"reflect"
	"sync"
	"unsafe"
)

// ErrIncompatible is wrapped by every error Describe returns for a type that
// cannot be placed in shared memory.
var ErrIncompatible = errors.New("layout is not shared memory compatible")

// Field is one leaf of a layout: a scalar or an array.
type Field struct {
	Name   string `yaml:"name"`
	Offset uint64 `yaml:"offset"`
	Size   uint64 `yaml:"size"`
}

// Table is the offset table of a layout. Two builds agree on a layout exactly
// when their tables are equal.
type Table struct {
	Type   string  `yaml:"type"`
	Size   uint64  `yaml:"size"`
	Fields []Field `yaml:"fields"`
}

// Describe checks that t can be shared between independently compiled
// binaries and returns its offset table. Allowed are fixed-width integers,
// floats, arrays and structs of those. Pointers and every other
// reference kind, int, uint, uintptr, zero-size fields and implicit padding
// are rejected. Padding must be declared as a blank `_ [N]byte` field.
func Describe(t reflect.Type) (Table, error) {
	if t == nil {
		return Table{}, fmt.Errorf("%w: nil type", ErrIncompatible)
	}
	if t.Kind() != reflect.Struct {
		return Table{}, fmt.Errorf("%w: %s is a %s, not a struct", ErrIncompatible, t, t.Kind())
	}
	if t.Size() == 0 {
		return Table{}, fmt.Errorf("%w: %s is empty", ErrIncompatible, t)
	}
	table := Table{Type: t.Name(), Size: uint64(t.Size())}
	if err := walk(t, "", 0, &table.Fields); err != nil {
		return Table{}, fmt.Errorf("%w: %s: %v", ErrIncompatible, t, err)
	}
	return table, nil
}

func walk(t reflect.Type, path string, base uint64, out *[]Field) error {
	switch t.Kind() {
	case reflect.Struct:
		var end uintptr
		for i := 0; i < t.NumField(); i++ {
			f := t.Field(i)
			name := f.Name
			if path != "" {
				name = path + "." + name
			}
			if f.Type.Size() == 0 {
				return fmt.Errorf("field %s has zero size", name)
			}
			if f.Offset != end {
				return fmt.Errorf("%d bytes of implicit padding before %s", f.Offset-end, name)
			}
			if err := walk(f.Type, name, base+uint64(f.Offset), out); err != nil {
				return err
			}
			end = f.Offset + f.Type.Size()
		}
		if end != t.Size() {
			return fmt.Errorf("%d bytes of implicit trailing padding in %s", t.Size()-end, t)
		}
		return nil
	case reflect.Array:
		if t.Len() == 0 {
			return fmt.Errorf("field %s is an empty array", path)
		}
		// elements are checked but not listed
		var discard []Field
		if err := walk(t.Elem(), path+"[]", 0, &discard); err != nil {
			return err
		}
	case reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
	case reflect.Int, reflect.Uint, reflect.Uintptr:
		return fmt.Errorf("field %s has architecture dependent type %s", path, t)
	default:
		return fmt.Errorf("field %s has %s type %s", path, t.Kind(), t)
	}
	*out = append(*out, Field{Name: path, Offset: base, Size: uint64(t.Size())})
	return nil
}

type checked struct {
	table Table
	err   error
}

var checkCache sync.Map // reflect.Type -> checked

// Check is Describe for the Go type L. Results are cached per type.
func Check[L any]() (Table, error) {
	t := reflect.TypeOf((*L)(nil)).Elem()
	if c, ok := checkCache.Load(t); ok {
		c := c.(checked)
		return c.table, c.err
	}
	table, err := Describe(t)
	checkCache.Store(t, checked{table, err})
	return table, err
}

// SizeOf returns the in-memory size of L.
func SizeOf[L any]() uint64 {
	var zero L
	return uint64(unsafe.Sizeof(zero))
}

// AlignOf returns the alignment mapped memory must satisfy to hold L.
func AlignOf[L any]() uint64 {
	var zero L
	return uint64(unsafe.Alignof(zero))
}

// littleEndian reports the byte order of this build. Layouts are shared in
// little-endian order only.
func littleEndian() bool {
	x := uint16(1)
	return *(*byte)(unsafe.Pointer(&x)) == 1
}
