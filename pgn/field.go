// Package pgn implements the NMEA 2000 Parameter Group Number payload
// codec: a descriptor-driven walk over a message's bytes that produces (or
// consumes) typed field values, plus a static registry of the PGNs this
// node understands.
package pgn

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
	"unicode/utf16"

	"github.com/halyard-systems/n2k-node"
)

// Kind enumerates how a Field's raw bits are interpreted, mirroring the
// CANboat field type taxonomy.
type Kind uint8

const (
	Number Kind = iota
	Float
	Decimal
	Lookup
	IndirectLookup
	BitLookup
	TimeOfDay
	Date
	StringFix
	StringLZ
	StringLAU
	Binary
	Reserved
	Spare
	MMSI
	Variable
)

// Field describes one member of a PGN's payload layout.
type Field struct {
	ID         string
	Kind       Kind
	BitLength  uint16 // 0 for Variable: actual length is data-dependent
	BitOffset  uint16 // only meaningful for non-repeating fields
	Signed     bool
	Resolution float64 // 0 means "no scaling, integer value"
	Offset     float64 // additive offset applied before resolution, per CANboat

	// Lookup enumerations used when Kind is Lookup/IndirectLookup/BitLookup.
	LookupName string

	// MatchValue, when non-nil, marks this field as disambiguating a PGN
	// number shared by multiple descriptors: the descriptor only matches
	// a payload if this field's raw value equals *MatchValue.
	MatchValue *uint32
}

// Value is a decoded field: exactly one of the typed accessors below holds
// meaningful data, selected by Kind.
type Value struct {
	ID   string
	Kind Kind

	Int    int64
	Uint   uint64
	Float  float64
	Str    string
	Bytes  []byte
	Time   time.Duration
	Date   time.Time
	Bits   uint32 // BitLookup raw bitset
	Absent bool   // true when the raw encoding was the "no data" sentinel
}

var epoch = time.Unix(0, 0).UTC()

// DecodeField reads one field starting at cursor's current position and
// returns its decoded Value. The field's declared BitOffset is not
// consulted: Decode reads fields back to back in descriptor order. The
// cursor is left positioned just past the field.
func DecodeField(c *n2k.BitCursor, f Field) (Value, uint16, error) {
	v := Value{ID: f.ID, Kind: f.Kind}

	switch f.Kind {
	case Number, MMSI:
		raw, n, err := decodeScaled(c, f)
		if err != nil {
			return applyAbsence(v, err)
		}
		applyNumber(&v, f, raw)
		return v, n, nil

	case Lookup, IndirectLookup:
		raw, n, err := decodeVariableUint(c, f.BitLength)
		if err != nil {
			return applyAbsence(v, err)
		}
		v.Uint = raw
		return v, n, nil

	case BitLookup:
		raw, n, err := decodeVariableUint(c, f.BitLength)
		if err != nil {
			return applyAbsence(v, err)
		}
		v.Bits = uint32(raw)
		return v, n, nil

	case Float:
		if f.BitLength != 32 {
			return v, 0, fmt.Errorf("%w: float field must be 32 bits", n2k.ErrInvalidField)
		}
		raw, err := c.ReadBits(32)
		if err != nil {
			return v, 0, err
		}
		bits := uint32(raw)
		if bits == math.MaxUint32 {
			v.Absent = true
			return v, 32, n2k.ErrNoFieldValue
		} else if bits == math.MaxUint32-1 || bits == math.MaxUint32-2 {
			return v, 32, n2k.ErrInvalidField
		}
		v.Float = float64(math.Float32frombits(bits))
		return v, 32, nil

	case Decimal:
		raw, n, err := decodeDecimalBCD(c, f.BitLength)
		if err != nil {
			return v, n, err
		}
		v.Uint = raw
		return v, n, nil

	case TimeOfDay:
		d, n, err := decodeTime(c, f.BitLength, f.Resolution)
		if err != nil {
			return v, n, err
		}
		v.Time = d
		return v, n, nil

	case Date:
		t, err := decodeDate(c)
		if err != nil {
			return v, 16, err
		}
		v.Date = t
		return v, 16, nil

	case StringFix:
		s, n, err := decodeStringFix(c, f.BitLength)
		v.Str = s
		return v, n, err

	case StringLZ:
		s, n, err := decodeStringLZ(c, f.BitLength)
		v.Str = s
		return v, n, err

	case StringLAU:
		s, n, err := decodeStringLAU(c)
		v.Str = s
		return v, n, err

	case Binary, Variable:
		n := f.BitLength
		if n == 0 {
			n = uint16(c.RemainingBits())
		}
		b, err := decodeBytes(c, n)
		v.Bytes = b
		return v, n, err

	case Reserved, Spare:
		if _, err := c.ReadBits(uint8min(f.BitLength)); err != nil {
			return v, 0, err
		}
		return v, f.BitLength, nil

	default:
		return v, 0, fmt.Errorf("%w: unhandled field kind %d", n2k.ErrInvalidField, f.Kind)
	}
}

func applyAbsence(v Value, err error) (Value, uint16, error) {
	if err == n2k.ErrNoFieldValue {
		v.Absent = true
	}
	return v, 0, err
}

func applyNumber(v *Value, f Field, raw uint64) {
	if f.Signed {
		v.Int = signExtend(raw, f.BitLength)
		if f.Resolution != 0 {
			v.Float = (float64(v.Int) + f.Offset) * f.Resolution
			v.Kind = Float
		}
		return
	}
	v.Uint = raw
	if f.Resolution != 0 {
		v.Float = (float64(v.Uint) + f.Offset) * f.Resolution
		v.Kind = Float
	}
}

func signExtend(raw uint64, bitLength uint16) int64 {
	if bitLength == 64 {
		return int64(raw)
	}
	signBit := uint64(1) << (bitLength - 1)
	if raw&signBit != 0 {
		raw |= ^uint64(0) << bitLength
	}
	return int64(raw)
}

func uint8min(n uint16) uint8 {
	if n > 64 {
		return 64
	}
	return uint8(n)
}

// decodeVariableUint reads bitLength bits and recognizes the CANboat
// "magic" sentinel trio (all-ones = no data, all-ones-minus-one = out of
// range, all-ones-minus-two = reserved) for fields 8 bits and wider.
func decodeVariableUint(c *n2k.BitCursor, bitLength uint16) (uint64, uint16, error) {
	raw, err := c.ReadBits(uint8min(bitLength))
	if err != nil {
		return 0, 0, err
	}
	if bitLength >= 8 {
		mask := maskFor(bitLength)
		switch raw {
		case mask:
			return 0, bitLength, n2k.ErrNoFieldValue
		case mask - 1:
			return 0, bitLength, n2k.ErrInvalidField
		case mask - 2:
			return 0, bitLength, n2k.ErrInvalidField
		}
	}
	return raw, bitLength, nil
}

func decodeScaled(c *n2k.BitCursor, f Field) (uint64, uint16, error) {
	raw, err := c.ReadBits(uint8min(f.BitLength))
	if err != nil {
		return 0, 0, err
	}
	if f.BitLength >= 8 {
		mask := maskFor(f.BitLength)
		if f.Signed {
			mask >>= 1
		}
		switch raw {
		case mask:
			return 0, f.BitLength, n2k.ErrNoFieldValue
		case mask - 1:
			return 0, f.BitLength, n2k.ErrInvalidField
		case mask - 2:
			return 0, f.BitLength, n2k.ErrInvalidField
		}
	}
	return raw, f.BitLength, nil
}

func maskFor(bitLength uint16) uint64 {
	if bitLength >= 64 {
		return ^uint64(0)
	}
	return (uint64(1) << bitLength) - 1
}

func decodeBytes(c *n2k.BitCursor, bitLength uint16) ([]byte, error) {
	n := (bitLength + 7) / 8
	out := make([]byte, n)
	for i := uint16(0); i < n; i++ {
		bits := uint8(8)
		if i == n-1 && bitLength%8 != 0 {
			bits = uint8(bitLength % 8)
		}
		b, err := c.ReadBits(bits)
		if err != nil {
			return nil, err
		}
		out[i] = byte(b)
	}
	return out, nil
}

func decodeDecimalBCD(c *n2k.BitCursor, bitLength uint16) (uint64, uint16, error) {
	raw, err := decodeBytes(c, bitLength)
	if err != nil {
		return 0, 0, err
	}
	var result uint64
	digits := uint64(1)
	isNoData := true
	for i := len(raw) - 1; i >= 0; i-- {
		b := raw[i]
		if b == 0xff {
			continue
		}
		right := uint64(b & 0x0F)
		left := uint64(b >> 4)
		if right > 9 || left > 9 {
			return 0, 0, fmt.Errorf("%w: decimal byte %#x is not two BCD digits", n2k.ErrInvalidField, b)
		}
		isNoData = false
		result += digits * right
		digits *= 10
		result += digits * left
		digits *= 10
	}
	if isNoData {
		return 0, bitLength, n2k.ErrNoFieldValue
	}
	return result, bitLength, nil
}

func decodeTime(c *n2k.BitCursor, bitLength uint16, resolution float64) (time.Duration, uint16, error) {
	raw, n, err := decodeVariableUint(c, bitLength)
	if err != nil {
		return 0, n, err
	}
	result := time.Duration(uint64(float64(raw)*resolution)) * time.Second
	if resolution > 0 && resolution < 1 {
		unitsInSecond := uint64(1 / resolution)
		fraction := raw % unitsInSecond
		result += time.Duration((uint64(time.Second) / unitsInSecond) * fraction)
	}
	return result, n, nil
}

func decodeDate(c *n2k.BitCursor) (time.Time, error) {
	raw, err := c.ReadBits(16)
	if err != nil {
		return time.Time{}, err
	}
	switch uint16(raw) {
	case math.MaxUint16:
		return time.Time{}, n2k.ErrNoFieldValue
	case math.MaxUint16 - 1, math.MaxUint16 - 2:
		return time.Time{}, n2k.ErrInvalidField
	}
	return epoch.AddDate(0, 0, int(raw)), nil
}

func decodeStringFix(c *n2k.BitCursor, bitLength uint16) (string, uint16, error) {
	raw, err := decodeBytes(c, bitLength)
	if err != nil {
		return "", 0, err
	}
	length := 0
	for length < len(raw) {
		b := raw[length]
		if b == 0xFF || b == 0x0 || b == '@' {
			break
		}
		length++
	}
	return string(raw[:length]), bitLength, nil
}

func decodeStringLZ(c *n2k.BitCursor, declaredBitLength uint16) (string, uint16, error) {
	lenByte, err := c.ReadBits(8)
	if err != nil {
		return "", 0, err
	}
	fieldLength := (declaredBitLength + 7) / 8
	actualLength := uint16(lenByte)
	if actualLength > fieldLength {
		actualLength = fieldLength
	}
	if actualLength == 0 {
		return "", 8, nil
	}
	raw, err := decodeBytes(c, actualLength*8)
	if err != nil {
		return "", 8, err
	}
	return string(raw), 8 + actualLength*8, nil
}

func decodeStringLAU(c *n2k.BitCursor) (string, uint16, error) {
	header, err := c.ReadBits(16)
	if err != nil {
		return "", 0, err
	}
	length := uint16(header & 0xFF)
	encoding := byte(header >> 8)
	if length == 2 {
		return "", 16, nil
	} else if length < 2 {
		return "", 0, fmt.Errorf("%w: string LAU length %d below minimum of 2", n2k.ErrInvalidField, length)
	}
	length -= 2
	raw, err := decodeBytes(c, length*8)
	if err != nil {
		return "", 16, err
	}
	readBits := 16 + length*8

	switch encoding {
	case 0: // UTF-16
		if len(raw) < 2 {
			return "", readBits, nil
		}
		var order binary.ByteOrder = binary.LittleEndian
		body := raw
		switch {
		case raw[0] == 0xff && raw[1] == 0xfe:
			order, body = binary.LittleEndian, raw[2:]
		case raw[0] == 0xfe && raw[1] == 0xff:
			order, body = binary.BigEndian, raw[2:]
		}
		s, err := decodeUTF16(body, order)
		return s, readBits, err
	case 1: // UTF-8/ASCII, trim trailing fill bytes
		n := 0
		for _, b := range raw {
			if b == 0 || b == 0xFF {
				break
			}
			n++
		}
		return string(raw[:n]), readBits, nil
	default:
		return "", readBits, fmt.Errorf("%w: unknown string LAU encoding %d", n2k.ErrInvalidField, encoding)
	}
}

func decodeUTF16(b []byte, order binary.ByteOrder) (string, error) {
	units := make([]uint16, len(b)/2)
	for i := range units {
		units[i] = order.Uint16(b[i*2 : i*2+2])
	}
	return string(utf16.Decode(units)), nil
}

// EncodeField writes v into c according to f's layout. It is the inverse
// of DecodeField and is used by PGN.Encode when building outgoing
// messages (e.g. an ISO Address Claim or a PGN List response).
func EncodeField(c *n2k.BitCursor, f Field, v Value) error {
	switch f.Kind {
	case Number, MMSI, Lookup, IndirectLookup, BitLookup:
		raw := v.Uint
		if f.Signed {
			raw = uint64(v.Int) & maskFor(f.BitLength)
		} else if f.Kind == BitLookup {
			raw = uint64(v.Bits)
		} else if f.Resolution != 0 {
			scaled := v.Float/f.Resolution - f.Offset
			if f.Signed {
				raw = uint64(int64(scaled)) & maskFor(f.BitLength)
			} else {
				raw = uint64(scaled)
			}
		}
		return c.WriteBits(raw, uint8min(f.BitLength))

	case Float:
		bits := math.Float32bits(float32(v.Float))
		return c.WriteBits(uint64(bits), 32)

	case Reserved:
		return c.WriteBits(0, uint8min(f.BitLength))

	case Spare:
		return c.WriteBits(maskFor(f.BitLength), uint8min(f.BitLength))

	case StringFix:
		return encodeStringFix(c, f.BitLength, v.Str)

	case Binary, Variable:
		n := f.BitLength
		if n == 0 {
			n = uint16(len(v.Bytes)) * 8
		}
		return encodeBytes(c, n, v.Bytes)

	default:
		return fmt.Errorf("%w: encode not implemented for kind %d", n2k.ErrInvalidField, f.Kind)
	}
}

func encodeBytes(c *n2k.BitCursor, bitLength uint16, data []byte) error {
	n := (bitLength + 7) / 8
	for i := uint16(0); i < n; i++ {
		var b byte
		if int(i) < len(data) {
			b = data[i]
		} else {
			b = 0xFF
		}
		bits := uint8(8)
		if i == n-1 && bitLength%8 != 0 {
			bits = uint8(bitLength % 8)
		}
		if err := c.WriteBits(uint64(b), bits); err != nil {
			return err
		}
	}
	return nil
}

func encodeStringFix(c *n2k.BitCursor, bitLength uint16, s string) error {
	n := int(bitLength+7) / 8
	data := make([]byte, n)
	for i := 0; i < n; i++ {
		if i < len(s) {
			data[i] = s[i]
		} else {
			data[i] = 0xFF
		}
	}
	return encodeBytes(c, bitLength, data)
}
