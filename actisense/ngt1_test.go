package actisense

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/halyard-systems/n2k-node"
)

type fakePort struct {
	readBuf  *bytes.Buffer
	writeBuf bytes.Buffer
}

func (f *fakePort) Read(p []byte) (int, error)  { return f.readBuf.Read(p) }
func (f *fakePort) Write(p []byte) (int, error) { return f.writeBuf.Write(p) }
func (f *fakePort) Close() error                { return nil }

// escapePacket mirrors writePacket's framing so tests can build input bytes
// the driver is expected to parse, without going through the driver itself.
func escapePacket(payload []byte) []byte {
	var buf bytes.Buffer
	buf.WriteByte(dle)
	buf.WriteByte(stx)
	for _, b := range payload {
		if b == dle {
			buf.WriteByte(dle)
		}
		buf.WriteByte(b)
	}
	buf.WriteByte(0 - crc(payload))
	buf.WriteByte(dle)
	buf.WriteByte(etx)
	return buf.Bytes()
}

func buildN2KMessage(header n2k.CanBusHeader, data []byte) []byte {
	body := make([]byte, 11+len(data))
	body[0] = header.Priority
	body[1] = byte(header.PGN)
	body[2] = byte(header.PGN >> 8)
	body[3] = byte(header.PGN >> 16)
	body[4] = header.Destination
	body[5] = header.Source
	body[10] = byte(len(data))
	copy(body[11:], data)
	return append([]byte{cmdN2KMessageReceived, byte(len(body))}, body...)
}

func TestNGT1Driver_ReadFrame(t *testing.T) {
	header := n2k.CanBusHeader{PGN: n2k.PGNISOAddressClaim, Priority: 6, Source: 42, Destination: n2k.AddressGlobal}
	data := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	payload := buildN2KMessage(header, data)

	port := &fakePort{readBuf: bytes.NewBuffer(escapePacket(payload))}
	driver := newDriver(port)

	frame, err := driver.ReadFrame(context.Background())
	require.NoError(t, err)
	assert.Equal(t, header.PGN, frame.Header.PGN)
	assert.Equal(t, header.Source, frame.Header.Source)
	assert.Equal(t, uint8(len(data)), frame.Length)
	assert.Equal(t, data, frame.Data[:frame.Length])
}

func TestNGT1Driver_ReadFrame_ContextCancelled(t *testing.T) {
	port := &fakePort{readBuf: bytes.NewBuffer(nil)}
	driver := newDriver(port)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := driver.ReadFrame(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNGT1Driver_WriteFrame(t *testing.T) {
	port := &fakePort{readBuf: bytes.NewBuffer(nil)}
	driver := newDriver(port)

	frame := n2k.RawFrame{
		Header: n2k.CanBusHeader{PGN: n2k.PGNProductInformation, Priority: 6, Source: 7, Destination: n2k.AddressGlobal},
		Length: 4,
		Data:   [8]byte{0xAA, 0xBB, 0xCC, 0xDD},
	}
	require.NoError(t, driver.WriteFrame(frame))

	written := port.writeBuf.Bytes()
	assert.Equal(t, byte(dle), written[0])
	assert.Equal(t, byte(stx), written[1])
	assert.Equal(t, byte(cmdN2KMessageSend), written[2])
}

func TestDriver_DefaultTimeoutAppliesWhenIdle(t *testing.T) {
	port := &fakePort{readBuf: bytes.NewBuffer(nil)}
	driver := newDriver(port)
	driver.receiveDataTimeout = 10 * time.Millisecond

	start := time.Now()
	_, err := driver.ReadFrame(context.Background())
	assert.Error(t, err)
	assert.WithinDuration(t, start.Add(driver.receiveDataTimeout), time.Now(), 50*time.Millisecond)
}
