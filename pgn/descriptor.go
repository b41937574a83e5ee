package pgn

import (
	"fmt"

	"github.com/halyard-systems/n2k-node"
)

// PacketType classifies how a PGN's payload is carried on the bus.
type PacketType uint8

const (
	// Single is a classic 8-byte CAN frame, no Fast Packet framing.
	Single PacketType = iota
	// Fast is carried by the Fast Packet transport (fastpacket.go in package n2k).
	Fast
	// ISO is a Single-frame PGN reserved for ISO 11783 address management.
	ISO
)

// Descriptor statically describes a PGN's wire layout: its fields, and
// (for PGNs with one repeating block, e.g. a waypoint list) where that
// block starts and how many repetitions to expect.
type Descriptor struct {
	PGN    n2k.PGN
	Name   string
	Type   PacketType
	Length int // -1 for variable-length Fast Packet PGNs

	Fields []Field

	// RepeatStartOrder is the 1-based index into Fields where the
	// repeating block begins; 0 means the PGN has no repeating block.
	RepeatStartOrder int
	// RepeatCountOrder is the 1-based index of the field holding the
	// repetition count; 0 means "repeat until the payload is exhausted"
	// (e.g. PGN 126464, which has no explicit count field).
	RepeatCountOrder int
	// RepeatSize is how many fields make up one repetition.
	RepeatSize int

	// Matchable marks descriptors sharing the same PGN number that are
	// disambiguated by one field's fixed value (CANboat's "Match" fields,
	// e.g. proprietary PGNs keyed by manufacturer code).
	Matchable bool
}

// IsMatch reports whether data's matchable fields (if any) agree with a
// descriptor's expected fixed values. Descriptors with Matchable == false
// always match.
func (d Descriptor) IsMatch(data []byte) bool {
	if !d.Matchable {
		return true
	}
	c := n2k.NewBitCursor(data)
	for _, f := range d.Fields {
		if f.MatchValue == nil {
			continue
		}
		c.SeekBits(uint32(f.BitOffset))
		raw, err := c.ReadBits(uint8min(f.BitLength))
		if err != nil || raw != uint64(*f.MatchValue) {
			return false
		}
	}
	return true
}

// Message is a decoded PGN: the descriptor it was decoded against plus its
// field values in descriptor order, and any repeated groups collected from
// the descriptor's repeating block.
type Message struct {
	Descriptor Descriptor
	Header     n2k.CanBusHeader
	Fields     []Value
	Repeats    [][]Value
}

// FindField returns the first top-level value with the given field ID.
func (m Message) FindField(id string) (Value, bool) {
	for _, f := range m.Fields {
		if f.ID == id {
			return f, true
		}
	}
	return Value{}, false
}

// Decode walks raw's payload according to d, producing a Message. Decoding
// never returns a poisoned/partial Message: on error the caller should
// discard the Message entirely rather than use its partially filled fields.
func Decode(raw n2k.RawMessage, d Descriptor) (Message, error) {
	c := n2k.NewBitCursor(raw.Data)
	messageBits := uint32(len(raw.Data)) * 8

	msg := Message{Descriptor: d, Header: raw.Header}

	if d.RepeatStartOrder == 0 {
		fields, err := decodeFieldRun(c, d.Fields, messageBits)
		if err != nil {
			return Message{}, err
		}
		msg.Fields = fields
		return msg, nil
	}

	head := d.Fields[:d.RepeatStartOrder-1]
	rep := d.Fields[d.RepeatStartOrder-1:]
	if d.RepeatSize <= 0 || len(rep)%d.RepeatSize != 0 {
		return Message{}, fmt.Errorf("%w: repeating block size %d does not divide %d fields", n2k.ErrInconsistentCount, d.RepeatSize, len(rep))
	}
	repTemplate := rep[:d.RepeatSize]

	fields, err := decodeFieldRun(c, head, messageBits)
	if err != nil {
		return Message{}, err
	}
	msg.Fields = fields

	count := -1 // unknown: repeat until the payload is exhausted
	if d.RepeatCountOrder > 0 {
		countField, ok := msg.FindField(d.Fields[d.RepeatCountOrder-1].ID)
		if !ok {
			return Message{}, fmt.Errorf("%w: repeat count field missing from decoded head", n2k.ErrInconsistentCount)
		}
		count = int(countField.Uint)
	}

	for rep1 := 0; count < 0 || rep1 < count; rep1++ {
		if c.RemainingBits() == 0 {
			break
		}
		group, err := decodeFieldRun(c, repTemplate, messageBits)
		if err != nil {
			return Message{}, err
		}
		msg.Repeats = append(msg.Repeats, group)
	}
	if count >= 0 && len(msg.Repeats) != count {
		return Message{}, fmt.Errorf("%w: expected %d repeat groups, decoded %d", n2k.ErrInconsistentCount, count, len(msg.Repeats))
	}
	return msg, nil
}

func decodeFieldRun(c *n2k.BitCursor, fields []Field, messageBits uint32) ([]Value, error) {
	out := make([]Value, 0, len(fields))
	for _, f := range fields {
		if c.Pos() >= messageBits {
			return nil, fmt.Errorf("decode field %q: %w", f.ID, n2k.ErrTruncated)
		}
		v, _, err := DecodeField(c, f)
		if err != nil {
			if err == n2k.ErrNoFieldValue || err == n2k.ErrInvalidField {
				continue
			}
			if err == n2k.ErrBufferTooShort {
				// the field runs past the end of the payload
				err = n2k.ErrTruncated
			}
			return nil, fmt.Errorf("decode field %q: %w", f.ID, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// Encode serializes v against d into out, returning the number of bytes
// written. out must be large enough for d's declared Length (or, for
// variable-length PGNs, large enough for the caller's known payload size).
func Encode(v Message, d Descriptor, out []byte) (int, error) {
	c := n2k.NewBitCursor(out)
	for i, f := range d.Fields {
		if d.RepeatStartOrder > 0 && i >= d.RepeatStartOrder-1 {
			break
		}
		val, ok := v.FindField(f.ID)
		if !ok {
			val = Value{ID: f.ID, Kind: f.Kind}
		}
		if err := EncodeField(c, f, val); err != nil {
			return 0, fmt.Errorf("encode field %q: %w", f.ID, err)
		}
	}
	if d.RepeatStartOrder > 0 {
		rep := d.Fields[d.RepeatStartOrder-1:]
		repTemplate := rep[:d.RepeatSize]
		for _, group := range v.Repeats {
			for _, f := range repTemplate {
				val, ok := findValue(group, f.ID)
				if !ok {
					val = Value{ID: f.ID, Kind: f.Kind}
				}
				if err := EncodeField(c, f, val); err != nil {
					return 0, fmt.Errorf("encode repeat field %q: %w", f.ID, err)
				}
			}
		}
	}
	bytesWritten := (int(c.Pos()) + 7) / 8
	if bytesWritten > n2k.FastPacketMaxPayload {
		return 0, n2k.ErrPayloadTooLarge
	}
	return bytesWritten, nil
}

func findValue(vs []Value, id string) (Value, bool) {
	for _, v := range vs {
		if v.ID == id {
			return v, true
		}
	}
	return Value{}, false
}
