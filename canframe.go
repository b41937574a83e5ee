package n2k

import "time"

// PGN identifies a Parameter Group Number.
type PGN uint32

// Well known PGNs used by the ISO Address Manager and Address Service.
const (
	PGNISORequest               PGN = 59904
	PGNISOAddressClaim          PGN = 60928
	PGNPGNList                  PGN = 126464
	PGNProductInformation       PGN = 126996
	PGNConfigurationInformation PGN = 126998
)

// Reserved CAN source addresses (ISO 11783-5 §4.2).
const (
	// AddressNull is used as the source of a request sent by a node that
	// does not yet hold a claimed address.
	AddressNull uint8 = 254
	// AddressGlobal is the broadcast destination address.
	AddressGlobal uint8 = 255
)

// CanBusHeader holds the fields carried by a 29-bit extended CAN
// identifier: priority, PGN, source and (for addressed PGNs) destination.
type CanBusHeader struct {
	PGN         PGN
	Priority    uint8
	Source      uint8
	Destination uint8
}

// IsBroadcast reports whether h addresses all nodes (a PDU2 PGN, or a PDU1
// PGN explicitly sent with the global destination).
func (h CanBusHeader) IsBroadcast() bool {
	return h.Destination == AddressGlobal
}

// Uint32 composes h into a 29-bit extended CAN identifier (right-justified
// in the low 29 bits of the returned value).
func (h CanBusHeader) Uint32() uint32 {
	canID := uint32(h.Source) // bits 0-7

	pf := uint8(h.PGN >> 8)
	if pf < 240 {
		canID |= uint32(h.Destination) << 8 // bits 8-15, PDU1 only
	}
	canID |= uint32(h.PGN) << 8
	canID |= uint32(h.Priority&0x7) << 26 // bits 26-28
	return canID
}

// ParseCANID decomposes a 29-bit extended CAN identifier into a
// CanBusHeader. PF < 240 (PDU1) carries an explicit destination in PS; PF
// >= 240 (PDU2) is a broadcast and folds PS into the PGN's group extension.
func ParseCANID(canID uint32) CanBusHeader {
	h := CanBusHeader{
		Priority: uint8((canID >> 26) & 0x7),
		Source:   uint8(canID),
	}
	ps := uint8(canID >> 8)
	pf := uint8(canID >> 16)
	dp := uint8(canID>>24) & 3
	group := uint32(dp)<<16 + uint32(pf)<<8
	if pf < 240 {
		h.Destination = ps
		h.PGN = PGN(group)
	} else {
		h.Destination = AddressGlobal
		h.PGN = PGN(group + uint32(ps))
	}
	return h
}

// RawFrame is a single CAN 2.0B data frame carrying up to 8 bytes.
type RawFrame struct {
	Time   time.Time
	Header CanBusHeader
	Length uint8
	Data   [8]byte
}

// RawMessage is a fully reassembled PGN payload: either the 8 (or fewer)
// bytes of a Single-frame PGN, or the concatenated payload produced by the
// Fast Packet assembler.
type RawMessage struct {
	Time   time.Time
	Header CanBusHeader
	Data   []byte
}
