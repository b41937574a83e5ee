// Package actisense implements transport.Driver over an Actisense NGT-1
// USB/serial gateway, framing NMEA 2000 traffic as the NGT-1's own
// STX/ETX/DLE-escaped binary protocol rather than raw CAN frames.
package actisense

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tarm/serial"

	"github.com/halyard-systems/n2k-node"
	"github.com/halyard-systems/n2k-node/transport"
)

const (
	// stx starts an NGT-1 packet.
	stx = 0x02
	// etx ends an NGT-1 packet.
	etx = 0x03
	// dle is doubled to escape a literal DLE byte within a packet, and
	// precedes stx/etx as the actual frame delimiter (DLE+STX, DLE+ETX).
	dle = 0x10

	cmdN2KMessageReceived = 0x93
	cmdN2KMessageSend     = 0x94
	cmdNGTMessageSend     = 0xA1
)

// maxMessageSize bounds one escaped NGT-1 packet; large enough for any
// Fast Packet payload this node assembles.
const maxMessageSize = 300

// NGT1Driver implements transport.Driver by speaking the Actisense NGT-1's
// binary protocol over a serial port.
type NGT1Driver struct {
	port io.ReadWriteCloser

	receiveDataTimeout time.Duration
	timeNow            func() time.Time
}

// Open opens devicePath at baud and initializes the gateway to forward
// every PGN it sees on the bus.
func Open(devicePath string, baud int) (*NGT1Driver, error) {
	port, err := serial.OpenPort(&serial.Config{
		Name:        devicePath,
		Baud:        baud,
		ReadTimeout: 100 * time.Millisecond,
		Size:        8,
	})
	if err != nil {
		return nil, fmt.Errorf("actisense: open %q: %w", devicePath, err)
	}
	d := newDriver(port)
	if err := d.initialize(); err != nil {
		_ = port.Close()
		return nil, err
	}
	return d, nil
}

func newDriver(port io.ReadWriteCloser) *NGT1Driver {
	return &NGT1Driver{
		port:               port,
		receiveDataTimeout: 5 * time.Second,
		timeNow:            time.Now,
	}
}

// initialize puts the NGT-1 into "receive all" operating mode so it
// forwards every PGN instead of only a filtered set.
func (d *NGT1Driver) initialize() error {
	clearPGNFilter := []byte{
		cmdNGTMessageSend,
		3,
		0x11, // operating mode
		0x02, // receive all
		0x00,
	}
	return d.writePacket(clearPGNFilter)
}

type readState uint8

const (
	waitingStartOfMessage readState = iota
	readingMessageData
	processingEscapeSequence
)

// ReadFrame implements transport.Driver, decoding one Actisense
// binary-protocol N2K message into a RawFrame.
func (d *NGT1Driver) ReadFrame(ctx context.Context) (n2k.RawFrame, error) {
	message := make([]byte, maxMessageSize)
	messageByteIndex := 0

	buf := make([]byte, 1)
	lastReadWithData := d.timeNow()
	var previousByte, currentByte byte
	state := waitingStartOfMessage

	for {
		select {
		case <-ctx.Done():
			return n2k.RawFrame{}, ctx.Err()
		default:
		}

		n, err := d.port.Read(buf)
		if err != nil && !(errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, io.EOF)) {
			return n2k.RawFrame{}, transport.WrapError("actisense", err)
		}

		now := d.timeNow()
		if n == 0 {
			if errors.Is(err, io.EOF) && now.Sub(lastReadWithData) > d.receiveDataTimeout {
				return n2k.RawFrame{}, transport.WrapError("actisense", err)
			}
			continue
		}
		lastReadWithData = now
		previousByte = currentByte
		currentByte = buf[0]

		switch state {
		case waitingStartOfMessage:
			if previousByte == dle && currentByte == stx {
				state = readingMessageData
			}

		case readingMessageData:
			if currentByte == dle {
				state = processingEscapeSequence
				continue
			}
			if messageByteIndex < len(message) {
				message[messageByteIndex] = currentByte
				messageByteIndex++
			}

		case processingEscapeSequence:
			if currentByte == dle {
				state = readingMessageData
				message[messageByteIndex] = currentByte
				messageByteIndex++
				continue
			}
			if currentByte == etx && message[0] == cmdN2KMessageReceived {
				frame, err := decodeBinaryMessage(message[:messageByteIndex], now)
				if err != nil {
					state, messageByteIndex = waitingStartOfMessage, 0
					continue
				}
				return frame, nil
			}
			state, messageByteIndex = waitingStartOfMessage, 0
		}
	}
}

// decodeBinaryMessage parses an Actisense binary N2K message (command byte,
// length byte, then 11 bytes of CAN header plus payload) into a RawFrame.
func decodeBinaryMessage(raw []byte, now time.Time) (n2k.RawFrame, error) {
	if len(raw) < 13 {
		return n2k.RawFrame{}, errors.New("actisense: message too short")
	}
	if err := crcCheck(raw); err != nil {
		return n2k.RawFrame{}, err
	}
	data := raw[2:]
	pgn := uint32(data[1]) + uint32(data[2])<<8 + uint32(data[3])<<16
	length := data[10]
	if int(length) > 8 || 11+int(length) > len(data) {
		return n2k.RawFrame{}, errors.New("actisense: payload length out of range")
	}

	frame := n2k.RawFrame{
		Time: now,
		Header: n2k.CanBusHeader{
			PGN:         n2k.PGN(pgn),
			Priority:    data[0],
			Source:      data[5],
			Destination: data[4],
		},
		Length: length,
	}
	copy(frame.Data[:], data[11:11+length])
	return frame, nil
}

// WriteFrame implements transport.Driver, building an outgoing Actisense
// binary N2K message from frame and writing it STX/ETX/DLE-escaped.
func (d *NGT1Driver) WriteFrame(frame n2k.RawFrame) error {
	data := make([]byte, 11+int(frame.Length))
	data[0] = frame.Header.Priority
	data[1] = byte(frame.Header.PGN)
	data[2] = byte(frame.Header.PGN >> 8)
	data[3] = byte(frame.Header.PGN >> 16)
	data[4] = frame.Header.Destination
	data[5] = frame.Header.Source
	data[10] = frame.Length
	copy(data[11:], frame.Data[:frame.Length])

	packet := append([]byte{cmdN2KMessageSend, byte(len(data))}, data...)
	if err := d.writePacket(packet); err != nil {
		return transport.WrapError("actisense", err)
	}
	return nil
}

// writePacket frames payload (command byte, length byte, and body already
// included by the caller) with STX/ETX/DLE escaping and a trailing CRC byte.
func (d *NGT1Driver) writePacket(payload []byte) error {
	escaped := make([]byte, 0, len(payload)*2+4)
	escaped = append(escaped, dle, stx)
	for _, b := range payload {
		if b == dle {
			escaped = append(escaped, dle)
		}
		escaped = append(escaped, b)
	}
	escaped = append(escaped, 0-crc(payload), dle, etx)

	_, err := d.port.Write(escaped)
	return err
}

// crc sums payload bytes (command + length + body) modulo 256; a valid
// packet's payload plus its trailing CRC byte sums to zero.
func crc(data []byte) uint8 {
	var sum uint16
	for _, b := range data {
		sum = (sum + uint16(b)) & 0xFF
	}
	return uint8(sum)
}

func crcCheck(raw []byte) error {
	if crc(raw) != 0 {
		return errors.New("actisense: message has invalid crc")
	}
	return nil
}

// Close implements transport.Driver.
func (d *NGT1Driver) Close() error {
	return d.port.Close()
}
