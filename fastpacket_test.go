package n2k

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/halyard-systems/n2k-node/internal/testutil"
)

// Real capture: PGN 130323 Meteorological Station Data, 5-frame sequence.
func exampleFPS() fastPacketSequence {
	return fastPacketSequence{
		header:       CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255},
		lastActivity: testutil.UTCTime(1665488842),
		receivedFrames: 5,
		sequence:           6,
		length:             30, // 0x1E, 5 frames: 6,7,7,7,3
		completeFramesMask: 0b11111,
		receivedFramesMask: 0b11111,
		data: [223]byte{
			0xF0, 0x30, 0x4B, 0x08, 0xAC, 0x02,
			0x12, 0x8B, 0x01, 0xB3, 0x22, 0x34, 0x38,
			0x59, 0x0D, 0xA4, 0x00, 0xF5, 0xC7, 0xFA,
			0xFF, 0xFF, 0xF0, 0x03, 0x95, 0x6F, 0x02,
			0x01, 0x02, 0x01, 0xFF, 0xFF, 0xFF, 0xFF,
		},
	}
}

func TestFastPacketSequence_Append(t *testing.T) {
	now := testutil.UTCTime(1665488842)

	testCases := []struct {
		name       string
		given      fastPacketSequence
		when       RawFrame
		expectDone bool
		expect     fastPacketSequence
	}{
		{
			name: "ok, append second frame, in order",
			given: fastPacketSequence{
				header:             CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255},
				lastActivity:       now.Add(-50 * time.Millisecond),
				receivedFrames:     1,
				sequence:           6,
				length:             30,
				completeFramesMask: 0b11111,
				receivedFramesMask: 0b1,
				data: [223]byte{
					0xF0, 0x30, 0x4B, 0x08, 0xAC, 0x02,
				},
			},
			when: RawFrame{
				Time:   now,
				Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255},
				Length: 8,
				Data:   [8]byte{0x61, 0x12, 0x8B, 0x01, 0xB3, 0x22, 0x34, 0x38},
			},
			expectDone: false,
			expect: fastPacketSequence{
				header:             CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255},
				lastActivity:       now,
				receivedFrames:     2,
				completeFramesMask: 0b11111,
				sequence:           6,
				length:             30,
				receivedFramesMask: 0b11,
				data: [223]byte{
					0xF0, 0x30, 0x4B, 0x08, 0xAC, 0x02,
					0x12, 0x8B, 0x01, 0xB3, 0x22, 0x34, 0x38,
				},
			},
		},
		{
			name: "ok, append last frame, in order",
			given: fastPacketSequence{
				header:             CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255},
				lastActivity:       now.Add(-50 * time.Millisecond),
				receivedFrames:     4,
				sequence:           6,
				length:             30,
				completeFramesMask: 0b11111,
				receivedFramesMask: 0b1111,
				data: [223]byte{
					0xF0, 0x30, 0x4B, 0x08, 0xAC, 0x02,
					0x12, 0x8B, 0x01, 0xB3, 0x22, 0x34, 0x38,
					0x59, 0x0D, 0xA4, 0x00, 0xF5, 0xC7, 0xFA,
					0xFF, 0xFF, 0xF0, 0x03, 0x95, 0x6F, 0x02,
				},
			},
			when: RawFrame{
				Time:   now,
				Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255},
				Length: 8,
				Data:   [8]byte{0x64, 0x01, 0x02, 0x01, 0xFF, 0xFF, 0xFF, 0xFF},
			},
			expectDone: true,
			expect:     exampleFPS(),
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fp := tc.given
			done := fp.Append(tc.when)
			assert.Equal(t, tc.expectDone, done)
			assert.Equal(t, tc.expect, fp)
		})
	}
}

func TestFastPacketSequence_To(t *testing.T) {
	fp := exampleFPS()
	var msg RawMessage
	fp.To(&msg)

	assert.Equal(t, RawMessage{
		Time:   testutil.UTCTime(1665488842),
		Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255},
		Data: []byte{
			0xF0, 0x30, 0x4B, 0x08, 0xAC, 0x02,
			0x12, 0x8B, 0x01, 0xB3, 0x22, 0x34, 0x38,
			0x59, 0x0D, 0xA4, 0x00, 0xF5, 0xC7, 0xFA,
			0xFF, 0xFF, 0xF0, 0x03, 0x95, 0x6F, 0x02,
			0x01, 0x02, 0x01,
		},
	}, msg)
}

func TestFastPacketSequence_Reset(t *testing.T) {
	fp := exampleFPS()
	fp.Reset()
	assert.Equal(t, fastPacketSequence{}, fp)
}

func TestFastPacketAssembler_Assemble(t *testing.T) {
	now := testutil.UTCTime(1665488842)
	testCases := []struct {
		name           string
		whenFrames     []RawFrame
		expectComplete bool
		expectMessage  RawMessage
	}{
		{
			name: "ok, 130323 fast-packet sequence reassembled",
			whenFrames: []RawFrame{
				{Time: now.Add(-4 * 50 * time.Millisecond), Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255}, Length: 8, Data: [8]byte{0x60, 0x1E, 0xF0, 0x30, 0x4B, 0x08, 0xAC, 0x02}},
				{Time: now.Add(-3 * 50 * time.Millisecond), Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255}, Length: 8, Data: [8]byte{0x61, 0x12, 0x8B, 0x01, 0xB3, 0x22, 0x34, 0x38}},
				{Time: now.Add(-2 * 50 * time.Millisecond), Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255}, Length: 8, Data: [8]byte{0x62, 0x59, 0x0D, 0xA4, 0x00, 0xF5, 0xC7, 0xFA}},
				{Time: now.Add(-1 * 50 * time.Millisecond), Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255}, Length: 8, Data: [8]byte{0x63, 0xFF, 0xFF, 0xF0, 0x03, 0x95, 0x6F, 0x02}},
				{Time: now, Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255}, Length: 8, Data: [8]byte{0x64, 0x01, 0x02, 0x01, 0xFF, 0xFF, 0xFF, 0xFF}},
			},
			expectComplete: true,
			expectMessage: RawMessage{
				Time:   now,
				Header: CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255},
				Data: []byte{
					0xF0, 0x30, 0x4B, 0x08, 0xAC, 0x02,
					0x12, 0x8B, 0x01, 0xB3, 0x22, 0x34, 0x38,
					0x59, 0x0D, 0xA4, 0x00, 0xF5, 0xC7, 0xFA,
					0xFF, 0xFF, 0xF0, 0x03, 0x95, 0x6F, 0x02,
					0x01, 0x02, 0x01,
				},
			},
		},
		{
			name: "ok, single-frame PGN passed through unchanged",
			whenFrames: []RawFrame{
				{Time: now, Header: CanBusHeader{PGN: PGNISORequest, Priority: 6, Source: AddressNull, Destination: 32}, Length: 3, Data: [8]byte{0x0, 0xEE, 0x0}},
			},
			expectComplete: true,
			expectMessage: RawMessage{
				Time:   now,
				Header: CanBusHeader{PGN: PGNISORequest, Priority: 6, Source: AddressNull, Destination: 32},
				Data:   []byte{0x0, 0xEE, 0x0},
			},
		},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			fpa := NewFastPacketAssembler([]PGN{126983, 61184, 130323})
			fpa.now = func() time.Time { return now }

			var complete bool
			var msg RawMessage
			for _, f := range tc.whenFrames {
				complete = fpa.Assemble(f, &msg)
			}
			assert.Equal(t, tc.expectComplete, complete)
			assert.Equal(t, tc.expectMessage, msg)
		})
	}
}

func TestFastPacketAssembler_EvictsLeastRecentlyActiveWhenFull(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	fpa := NewFastPacketAssembler([]PGN{130323})
	fpa.capacity = 2
	fpa.now = func() time.Time { return now }

	start := func(pgn PGN, source uint8, t time.Time) {
		var msg RawMessage
		fpa.Assemble(RawFrame{
			Time:   t,
			Header: CanBusHeader{PGN: pgn, Source: source, Destination: 255},
			Length: 8,
			Data:   [8]byte{0x00, 0x1E, 0, 0, 0, 0, 0, 0},
		}, &msg)
	}

	start(130323, 1, now)
	start(130323, 2, now.Add(10*time.Millisecond))
	assert.Len(t, fpa.inTransfer, 2)

	// third distinct sequence evicts source 1 (the least recently active)
	start(130323, 3, now.Add(20*time.Millisecond))
	assert.Len(t, fpa.inTransfer, 2)
	assert.EqualValues(t, 1, fpa.Evicted)
	for _, fp := range fpa.inTransfer {
		assert.NotEqual(t, uint8(1), fp.header.Source)
	}
}

func TestFastPacketBuilder_SplitRoundTrip(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	builder := NewFastPacketBuilder()
	header := CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255}
	payload := []byte{
		0xF0, 0x30, 0x4B, 0x08, 0xAC, 0x02,
		0x12, 0x8B, 0x01, 0xB3, 0x22, 0x34, 0x38,
		0x59, 0x0D, 0xA4, 0x00, 0xF5, 0xC7, 0xFA,
		0xFF, 0xFF, 0xF0, 0x03, 0x95, 0x6F, 0x02,
		0x01, 0x02, 0x01,
	}

	frames, err := builder.Split(header, payload, now)
	assert.NoError(t, err)
	assert.Len(t, frames, 5)
	assert.Equal(t, uint8(0x1E), frames[0].Data[1])

	fpa := NewFastPacketAssembler([]PGN{130323})
	fpa.now = func() time.Time { return now }
	var msg RawMessage
	var complete bool
	for _, f := range frames {
		complete = fpa.Assemble(f, &msg)
	}
	assert.True(t, complete)
	assert.Equal(t, payload, msg.Data)
}

func TestFastPacketAssembler_ExpireStaleDropsIdleSequences(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	fpa := NewFastPacketAssembler([]PGN{130323})

	var msg RawMessage
	fpa.Assemble(RawFrame{
		Time:   now,
		Header: CanBusHeader{PGN: 130323, Source: 1, Destination: 255},
		Length: 8,
		Data:   [8]byte{0x00, 0x1E, 0, 0, 0, 0, 0, 0},
	}, &msg)
	assert.Len(t, fpa.inTransfer, 1)

	dropped := fpa.ExpireStale(now.Add(fastPacketReassemblyTimeout - time.Millisecond))
	assert.Equal(t, 0, dropped)
	assert.Len(t, fpa.inTransfer, 1)

	dropped = fpa.ExpireStale(now.Add(fastPacketReassemblyTimeout + time.Millisecond))
	assert.Equal(t, 1, dropped)
	assert.Len(t, fpa.inTransfer, 0)
	assert.EqualValues(t, 1, fpa.Timeouts)
}

func TestFastPacketBuilder_SplitPadsUnusedTailWithFF(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	builder := NewFastPacketBuilder()
	header := CanBusHeader{PGN: 130323, Priority: 6, Source: 35, Destination: 255}

	// single-frame payload: DLC is always 8, unused tail padded with 0xFF.
	frames, err := builder.Split(header, []byte{0x01, 0x02, 0x03}, now)
	assert.NoError(t, err)
	assert.Len(t, frames, 1)
	assert.EqualValues(t, 8, frames[0].Length)
	assert.Equal(t, [8]byte{0x01, 0x02, 0x03, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}, frames[0].Data)

	// a Fast Packet payload whose last frame only partially fills its 7
	// data bytes: every frame's DLC is 8, and the unused tail is 0xFF.
	payload := make([]byte, 9)
	for i := range payload {
		payload[i] = byte(i + 1)
	}
	frames, err = builder.Split(header, payload, now)
	assert.NoError(t, err)
	assert.Len(t, frames, 2)
	for _, f := range frames {
		assert.EqualValues(t, 8, f.Length)
	}
	assert.Equal(t, [8]byte{0x01, 0x07, 0x08, 0x09, 0xFF, 0xFF, 0xFF, 0xFF}, frames[1].Data)
}

func TestFastPacketBuilder_SplitRejectsOversizedPayload(t *testing.T) {
	builder := NewFastPacketBuilder()
	_, err := builder.Split(CanBusHeader{PGN: 130323}, make([]byte, FastPacketMaxPayload+1), time.Time{})
	assert.ErrorIs(t, err, ErrPayloadTooLarge)
}
