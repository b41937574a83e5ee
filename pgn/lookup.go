package pgn

import "errors"

var (
	ErrUnknownEnumType  = errors.New("pgn: unknown enum type")
	ErrUnknownEnumValue = errors.New("pgn: unknown enum value")
)

// Enum is a plain value-to-name lookup table (CANboat "Lookup" fields).
type Enum struct {
	Name   string
	Values []EnumValue
}

type EnumValue struct {
	Name  string
	Value uint32
}

// Enums is a set of Enum tables, looked up by name.
type Enums []Enum

func (es Enums) FindValue(name string, value uint32) (EnumValue, error) {
	for _, e := range es {
		if e.Name != name {
			continue
		}
		for _, v := range e.Values {
			if v.Value == value {
				return v, nil
			}
		}
		return EnumValue{}, ErrUnknownEnumValue
	}
	return EnumValue{}, ErrUnknownEnumType
}

// BitEnum is a bitset lookup table (CANboat "Bitfield" fields): each set
// bit in the raw value names an independent flag.
type BitEnum struct {
	Name   string
	Values []BitEnumValue
}

type BitEnumValue struct {
	Name string
	Bit  uint32
}

type BitEnums []BitEnum

func (es BitEnums) FindValue(name string, value uint32) ([]BitEnumValue, error) {
	for _, e := range es {
		if e.Name != name {
			continue
		}
		if value == 0 {
			return nil, nil
		}
		var result []BitEnumValue
		for _, v := range e.Values {
			if value&(1<<v.Bit) != 0 {
				result = append(result, v)
			}
		}
		return result, nil
	}
	return nil, ErrUnknownEnumType
}

// IndirectEnum is a two-key lookup table (CANboat "Indirect Lookup"
// fields), e.g. Industry Code resolved together with a Device Class.
type IndirectEnum struct {
	Name   string
	Values []IndirectEnumValue
}

type IndirectEnumValue struct {
	Name          string
	IndirectValue uint32
	Value         uint32
}

type IndirectEnums []IndirectEnum

func (es IndirectEnums) FindValue(name string, value, indirectValue uint32) (IndirectEnumValue, error) {
	for _, e := range es {
		if e.Name != name {
			continue
		}
		for _, v := range e.Values {
			if v.Value == value && v.IndirectValue == indirectValue {
				return v, nil
			}
		}
		return IndirectEnumValue{}, ErrUnknownEnumValue
	}
	return IndirectEnumValue{}, ErrUnknownEnumType
}

// Default lookup tables. messages.go's init() fills DefaultEnums; LoadManifest
// appends to DefaultEnums and DefaultBitEnums. A real deployment can instead
// load these from a manifest via cmd/gen-pgns; see config.Config.ManifestPath.
var (
	DefaultEnums         Enums
	DefaultBitEnums      BitEnums
	DefaultIndirectEnums IndirectEnums
)
