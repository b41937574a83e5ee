package pgn

import (
	"encoding/json"
	"fmt"
	"io/fs"

	"github.com/halyard-systems/n2k-node"
)

// manifestSchema mirrors a CANboat-shaped PGN database: a flat list of PGN
// definitions plus the lookup tables their LOOKUP/BITLOOKUP fields refer to
// by name (indirect lookup tables are not read). cmd/gen-pgns reads one of these at build time in
// place of compiling descriptors like messages.go does by hand.
type manifestSchema struct {
	PGNs     []manifestPGN     `json:"PGNs"`
	Enums    []manifestEnum    `json:"LookupEnumerations"`
	BitEnums []manifestBitEnum `json:"LookupBitEnumerations"`
}

type manifestPGN struct {
	PGN    n2k.PGN         `json:"PGN"`
	ID     string          `json:"Id"`
	Type   string          `json:"Type"` // ISO, Fast, Single
	Length int             `json:"Length"`
	Fields []manifestField `json:"Fields"`

	RepeatingFieldSet1Size       int `json:"RepeatingFieldSet1Size"`
	RepeatingFieldSet1StartField int `json:"RepeatingFieldSet1StartField"`
	RepeatingFieldSet1CountField int `json:"RepeatingFieldSet1CountField"`
}

type manifestField struct {
	ID         string  `json:"Id"`
	FieldType  string  `json:"FieldType"`
	BitLength  uint16  `json:"BitLength"`
	BitOffset  uint16  `json:"BitOffset"`
	Signed     bool    `json:"Signed"`
	Resolution float64 `json:"Resolution"`
	Offset     float64 `json:"Offset"`
	Match      *uint32 `json:"Match"`

	LookupEnumeration    string `json:"LookupEnumeration"`
	LookupBitEnumeration string `json:"LookupBitEnumeration"`
}

type manifestEnum struct {
	Name   string `json:"Name"`
	Values []struct {
		Name  string `json:"Name"`
		Value uint32 `json:"Value"`
	} `json:"EnumValues"`
}

type manifestBitEnum struct {
	Name   string `json:"Name"`
	Values []struct {
		Name string `json:"Name"`
		Bit  uint32 `json:"Bit"`
	} `json:"EnumBitValues"`
}

var fieldKindByManifestType = map[string]Kind{
	"NUMBER":          Number,
	"FLOAT":           Float,
	"DECIMAL":         Decimal,
	"LOOKUP":          Lookup,
	"INDIRECT_LOOKUP": IndirectLookup,
	"BITLOOKUP":       BitLookup,
	"TIME":            TimeOfDay,
	"DATE":            Date,
	"STRING_FIX":      StringFix,
	"STRING_LZ":       StringLZ,
	"STRING_LAU":      StringLAU,
	"BINARY":          Binary,
	"RESERVED":        Reserved,
	"SPARE":           Spare,
	"MMSI":            MMSI,
	"VARIABLE":        Variable,
}

var packetTypeByManifestType = map[string]PacketType{
	"ISO":    ISO,
	"Fast":   Fast,
	"Single": Single,
}

// LoadManifest reads a CANboat-shaped JSON PGN database from path within
// filesystem and registers every PGN it describes into the given Registry.
func LoadManifest(filesystem fs.FS, path string, into *Registry) (int, error) {
	f, err := filesystem.Open(path)
	if err != nil {
		return 0, fmt.Errorf("pgn: open manifest %q: %w", path, err)
	}
	defer f.Close()

	var schema manifestSchema
	if err := json.NewDecoder(f).Decode(&schema); err != nil {
		return 0, fmt.Errorf("pgn: decode manifest %q: %w", path, err)
	}

	for _, e := range schema.Enums {
		enum := Enum{Name: e.Name}
		for _, v := range e.Values {
			enum.Values = append(enum.Values, EnumValue{Name: v.Name, Value: v.Value})
		}
		DefaultEnums = append(DefaultEnums, enum)
	}
	for _, e := range schema.BitEnums {
		enum := BitEnum{Name: e.Name}
		for _, v := range e.Values {
			enum.Values = append(enum.Values, BitEnumValue{Name: v.Name, Bit: v.Bit})
		}
		DefaultBitEnums = append(DefaultBitEnums, enum)
	}

	for _, p := range schema.PGNs {
		d, err := p.descriptor()
		if err != nil {
			return 0, fmt.Errorf("pgn: manifest entry %q (PGN %d): %w", p.ID, p.PGN, err)
		}
		into.Register(d)
	}
	return len(schema.PGNs), nil
}

func (p manifestPGN) descriptor() (Descriptor, error) {
	packetType, ok := packetTypeByManifestType[p.Type]
	if !ok {
		return Descriptor{}, fmt.Errorf("unknown packet type %q", p.Type)
	}
	fields := make([]Field, 0, len(p.Fields))
	for _, mf := range p.Fields {
		f, err := mf.field()
		if err != nil {
			return Descriptor{}, fmt.Errorf("field %q: %w", mf.ID, err)
		}
		fields = append(fields, f)
	}
	return Descriptor{
		PGN:              p.PGN,
		Name:             p.ID,
		Type:             packetType,
		Length:           p.Length,
		Fields:           fields,
		RepeatStartOrder: p.RepeatingFieldSet1StartField,
		RepeatCountOrder: p.RepeatingFieldSet1CountField,
		RepeatSize:       p.RepeatingFieldSet1Size,
	}, nil
}

func (mf manifestField) field() (Field, error) {
	kind, ok := fieldKindByManifestType[mf.FieldType]
	if !ok {
		return Field{}, fmt.Errorf("unknown field type %q", mf.FieldType)
	}
	lookupName := mf.LookupEnumeration
	if lookupName == "" {
		lookupName = mf.LookupBitEnumeration
	}
	return Field{
		ID:         mf.ID,
		Kind:       kind,
		BitLength:  mf.BitLength,
		BitOffset:  mf.BitOffset,
		Signed:     mf.Signed,
		Resolution: mf.Resolution,
		Offset:     mf.Offset,
		LookupName: lookupName,
		MatchValue: mf.Match,
	}, nil
}
