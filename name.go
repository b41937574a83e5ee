package n2k

import "encoding/binary"

// Name is the 64-bit ISO Name carried by PGN 60928 (ISO Address Claim).
// Lower numeric value wins arbitration when two nodes claim the same
// source address (ISO 11783-5 §4.4).
type Name struct {
	UniqueNumber        uint32 // Identity Number (21 bits)
	Manufacturer        uint16 // Manufacturer Code (11 bits)
	DeviceInstanceLower uint8  // ECU Instance (3 bits)
	DeviceInstanceUpper uint8  // Function Instance (5 bits)
	DeviceFunction      uint8  // (8 bits)
	DeviceClass         uint8  // (7 bits)
	SystemInstance      uint8  // Device Class Instance (4 bits)
	IndustryGroup       uint8  // (3 bits)

	// ArbitraryAddressCapable, when set, means this node resolves a lost
	// address-claim conflict by searching 0-251 for another free address
	// instead of waiting to retry the same one.
	ArbitraryAddressCapable bool
}

// Bytes encodes n into the 8-byte little-endian wire layout PGN 60928 uses.
func (n Name) Bytes() []byte {
	arb := uint8(0)
	if n.ArbitraryAddressCapable {
		arb = 1
	}
	return []byte{
		uint8(n.UniqueNumber & 0xff),
		uint8(n.UniqueNumber >> 8 & 0xff),
		uint8(n.UniqueNumber>>16&0b11111) | uint8(n.Manufacturer&0b111)<<5,
		uint8(n.Manufacturer >> 3 & 0xff),
		n.DeviceInstanceLower&0b111 | n.DeviceInstanceUpper&0b11111<<3,
		n.DeviceFunction,
		n.DeviceClass << 1,
		n.SystemInstance&0b1111 | (n.IndustryGroup&0b111)<<4 | arb<<7,
	}
}

// Uint64 returns n's little-endian integer form (byte 0 of Bytes is the
// least-significant byte), the value compared during address-claim
// arbitration (lower wins).
func (n Name) Uint64() uint64 {
	return binary.LittleEndian.Uint64(n.Bytes())
}

// Less reports whether n has arbitration priority over other (n's NAME
// value, as an unsigned 64-bit integer, is numerically smaller).
func (n Name) Less(other Name) bool {
	return n.Uint64() < other.Uint64()
}

// NameFromBytes decodes the 8-byte ISO Name layout used by PGN 60928.
func NameFromBytes(b []byte) (Name, error) {
	if len(b) != 8 {
		return Name{}, ErrBufferTooShort
	}
	uniqueNumber := uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2]&0b11111)<<16
	manufacturer := uint16(b[3])<<3 | uint16(b[2]>>5)
	return Name{
		UniqueNumber:            uniqueNumber,
		Manufacturer:            manufacturer,
		DeviceInstanceLower:     b[4] & 0b111,
		DeviceInstanceUpper:     b[4] >> 3,
		DeviceFunction:          b[5],
		DeviceClass:             b[6] >> 1,
		SystemInstance:          b[7] & 0b1111,
		IndustryGroup:           (b[7] >> 4) & 0b111,
		ArbitraryAddressCapable: b[7]>>7 != 0,
	}, nil
}

// NameFromUint64 decodes n's little-endian integer form back into a Name.
func NameFromUint64(v uint64) (Name, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, v)
	return NameFromBytes(b)
}
