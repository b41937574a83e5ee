package n2k

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseCANID(t *testing.T) {
	testCases := []struct {
		name   string
		canID  uint32
		expect CanBusHeader
	}{
		{
			name:  "ok, 0F001DA1",
			canID: 251665825, // 0F001DA1
			expect: CanBusHeader{
				Priority:    3,
				PGN:         196608, // 0x30000
				Destination: 29,     // 1D
				Source:      161,    // A1
			},
		},
		{
			name:  "ok, 0F101DB5",
			canID: 252714421, // 0F101DB5
			expect: CanBusHeader{
				Priority:    3,
				PGN:         0x31000,
				Destination: 29,  // 1D
				Source:      181, // B5
			},
		},
		{
			name:  "ok, 0F101DA1",
			canID: 252714401, // 0F101DA1
			expect: CanBusHeader{
				Priority:    3,
				PGN:         0x31000,
				Destination: 29,  // 1D
				Source:      161, // A1
			},
		},
		{
			name:  "ok, 0F0007B8",
			canID: 251660216, // 0F0007B8
			expect: CanBusHeader{
				Priority:    3,
				PGN:         196608, // 0x30000
				Destination: 7,      // 07
				Source:      184,    // B8
			},
		},
		{
			name:  "ok, broadcast PDU2 fold (0x0CF00401 style)",
			canID: 0x0CF00401,
			expect: CanBusHeader{
				Priority:    3,
				PGN:         0xF004,
				Destination: AddressGlobal,
				Source:      1,
			},
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			header := ParseCANID(tc.canID)
			assert.Equal(t, tc.expect, header)
		})
	}
}

func TestCanBusHeader_Uint32(t *testing.T) {
	testCases := []struct {
		name   string
		when   CanBusHeader
		expect uint32
	}{
		{
			name: "ok, 59904 ISORequest broadcast from null address",
			when: CanBusHeader{
				PGN:         PGNISORequest,
				Priority:    6,
				Source:      AddressNull,
				Destination: AddressGlobal,
			},
			expect: 0x18eafffe,
		},
		{
			name: "ok, 130311",
			when: CanBusHeader{
				PGN:         130311, // 0x1FD07
				Priority:    5,
				Source:      23,  // 0x17
				Destination: 255, // 0xFF
			},
			expect: 0x15fd0717,
		},
		{
			name: "ok, 130310",
			when: CanBusHeader{
				PGN:         130310,
				Priority:    5,
				Source:      23,  // 0x17
				Destination: 255, // 0xFF
			},
			expect: 0x15fd0617,
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			result := tc.when.Uint32()
			assert.Equal(t, tc.expect, result)
		})
	}
}

func TestParseCANID_RoundTrip(t *testing.T) {
	headers := []CanBusHeader{
		{PGN: PGNISOAddressClaim, Priority: 6, Source: 12, Destination: AddressGlobal},
		{PGN: 130310, Priority: 5, Source: 23, Destination: AddressGlobal},
		{PGN: PGNISORequest, Priority: 6, Source: AddressNull, Destination: 44},
	}
	for _, h := range headers {
		got := ParseCANID(h.Uint32())
		assert.Equal(t, h, got)
	}
}
