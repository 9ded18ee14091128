package layout

import (
	"errors"
	"fmt"
	"reflect"
	"sync"

	"gopkg.in/yaml.v3"
)

// Contract pairs a layout type with the size recorded for it.
type Contract struct {
	Type reflect.Type
	Size uint64
}

// TableSet is the serialized form of every registered contract.
type TableSet struct {
	ByteOrder string  `yaml:"byte_order"`
	Layouts   []Table `yaml:"layouts"`
}

var (
	catalogMu sync.RWMutex
	catalog   []Contract
)

func init() {
	Register[StageRegister](StageRegisterSize)
	Register[E2EMemoryFill](E2EMemoryFillSize)
	Register[E2ETestRegionLayout](E2ETestRegionLayoutSize)
	Register[E2EPrimaryTestRegionLayout](E2ETestRegionLayoutSize)
	Register[E2ESecondaryTestRegionLayout](E2ETestRegionLayoutSize)
	Register[E2EUnfindableRegionLayout](E2ETestRegionLayoutSize)
	Register[E2EManagedTestRegionLayout](E2EManagedTestRegionLayoutSize)
	Register[E2EManagerTestRegionLayout](E2EManagerTestRegionLayoutSize)
}

// Register adds L to the catalog with its canonical size. Packages defining
// other shared formats register them from init.
func Register[L any](size uint64) {
	catalogMu.Lock()
	defer catalogMu.Unlock()
	t := reflect.TypeOf((*L)(nil)).Elem()
	for _, c := range catalog {
		if c.Type == t {
			return
		}
	}
	catalog = append(catalog, Contract{Type: t, Size: size})
}

// Catalog returns the registered contracts in registration order.
func Catalog() []Contract {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	return append([]Contract(nil), catalog...)
}

// VerifyCatalog is the startup self-check: every registered layout must be
// shared memory compatible and have its canonical size.
func VerifyCatalog() error {
	if !littleEndian() {
		return errors.New("layouts are little-endian; this build is big-endian")
	}
	var errs []error
	for _, c := range Catalog() {
		table, err := Describe(c.Type)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if table.Size != c.Size {
			errs = append(errs, fmt.Errorf("layout %s is %d bytes, contract says %d", c.Type, table.Size, c.Size))
		}
	}
	return errors.Join(errs...)
}

// Tables returns the offset table of every registered contract.
func Tables() (TableSet, error) {
	set := TableSet{ByteOrder: "little"}
	for _, c := range Catalog() {
		table, err := Describe(c.Type)
		if err != nil {
			return TableSet{}, err
		}
		set.Layouts = append(set.Layouts, table)
	}
	return set, nil
}

// MarshalTables serializes Tables as YAML for comparison with another build.
func MarshalTables() ([]byte, error) {
	set, err := Tables()
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(set)
}

// CompareTables checks the YAML produced by MarshalTables in another build
// against this build. Layouts present in only one of them are ignored, so a
// host and a guest carrying different sets of regions can still be compared.
func CompareTables(data []byte) error {
	var other TableSet
	if err := yaml.Unmarshal(data, &other); err != nil {
		return fmt.Errorf("parse offset tables: %w", err)
	}
	mine, err := Tables()
	if err != nil {
		return err
	}
	if other.ByteOrder != mine.ByteOrder {
		return fmt.Errorf("byte order %q differs from %q", other.ByteOrder, mine.ByteOrder)
	}
	byName := make(map[string]Table, len(other.Layouts))
	for _, t := range other.Layouts {
		byName[t.Type] = t
	}
	var errs []error
	for _, t := range mine.Layouts {
		o, ok := byName[t.Type]
		if !ok {
			continue
		}
		if err := diffTable(t, o); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func diffTable(mine, other Table) error {
	if mine.Size != other.Size {
		return fmt.Errorf("layout %s: size %d, other build %d", mine.Type, mine.Size, other.Size)
	}
	if len(mine.Fields) != len(other.Fields) {
		return fmt.Errorf("layout %s: %d fields, other build %d", mine.Type, len(mine.Fields), len(other.Fields))
	}
	for i := range mine.Fields {
		if mine.Fields[i] != other.Fields[i] {
			return fmt.Errorf("layout %s: field %+v, other build %+v", mine.Type, mine.Fields[i], other.Fields[i])
		}
	}
	return nil
}
