// Package socketcan implements transport.Driver over a Linux SocketCAN raw
// socket (AF_CAN, SOCK_RAW).
package socketcan

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/halyard-systems/n2k-node"
	"github.com/halyard-systems/n2k-node/transport"
)

const (
	canRaw = 1

	// canIDMask isolates the ERR/RTR/EFF flag bits (29-31) from the CAN ID.
	canIDMask = uint32(0b111) << 29
	// canIDERRFlag marks an error frame (0 = data frame, 1 = error frame).
	canIDERRFlag = uint32(1 << 29)
	// canIDRTRFlag marks a remote transmission request frame.
	canIDRTRFlag = uint32(1 << 30)
	// canIDEFFFlag marks an extended (29-bit) identifier.
	canIDEFFFlag = uint32(1 << 31)
)

var (
	errReadTimeout = errors.New("socketcan: read timeout")
	errRTRFrame    = errors.New("socketcan: received remote transmission request frame")
	errErrFrame    = errors.New("socketcan: received error frame")
)

// Conn is a transport.Driver backed by a raw AF_CAN socket bound to one
// network interface (e.g. "can0").
type Conn struct {
	fd  int
	now func() time.Time
}

// Open binds a raw CAN socket to ifName.
func Open(ifName string) (*Conn, error) {
	ifi, err := net.InterfaceByName(ifName)
	if err != nil {
		return nil, fmt.Errorf("socketcan: bad interface %q: %w", ifName, err)
	}
	fd, err := unix.Socket(unix.AF_CAN, unix.SOCK_RAW, canRaw)
	if err != nil {
		return nil, fmt.Errorf("socketcan: create socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrCAN{Ifindex: ifi.Index}); err != nil {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("socketcan: bind %q: %w", ifName, err)
	}
	c := &Conn{fd: fd, now: time.Now}
	// a short read timeout lets ReadFrame notice ctx cancellation
	// promptly instead of blocking indefinitely in the unix.Read syscall.
	if err := c.SetReadTimeout(100 * time.Millisecond); err != nil {
		_ = unix.Close(fd)
		return nil, err
	}
	return c, nil
}

// SetReadTimeout bounds how long Read/ReadFrame blocks without a frame.
func (c *Conn) SetReadTimeout(d time.Duration) error {
	return c.setSocketTimeout(unix.SO_RCVTIMEO, d)
}

// SetWriteTimeout bounds how long WriteFrame blocks on a full send queue.
func (c *Conn) SetWriteTimeout(d time.Duration) error {
	return c.setSocketTimeout(unix.SO_SNDTIMEO, d)
}

func (c *Conn) setSocketTimeout(opt int, d time.Duration) error {
	tv := unix.NsecToTimeval(d.Nanoseconds())
	return unix.SetsockoptTimeval(c.fd, unix.SOL_SOCKET, opt, &tv)
}

// ReadFrame implements transport.Driver. It polls the socket read timeout
// in a loop so ctx cancellation is honored without a dedicated goroutine
// per read.
func (c *Conn) ReadFrame(ctx context.Context) (n2k.RawFrame, error) {
	for {
		select {
		case <-ctx.Done():
			return n2k.RawFrame{}, ctx.Err()
		default:
		}

		frame, err := c.readOnce()
		if err == nil {
			return frame, nil
		}
		if isRetryable(err) {
			continue
		}
		return n2k.RawFrame{}, transport.WrapError("socketcan", err)
	}
}

func (c *Conn) readOnce() (n2k.RawFrame, error) {
	canFrame := make([]byte, 16)
	_, err := unix.Read(c.fd, canFrame)
	if err != nil {
		if isContinuableSocketErr(err) {
			return n2k.RawFrame{}, errReadTimeout
		}
		return n2k.RawFrame{}, err
	}
	return parseCANFrame(canFrame, c.now())
}

// parseCANFrame decodes a 16-byte SocketCAN can_frame struct into a
// RawFrame. It is split out from readOnce so the wire layout can be
// exercised without an actual socket.
func parseCANFrame(canFrame []byte, now time.Time) (n2k.RawFrame, error) {
	canID := binary.LittleEndian.Uint32(canFrame[0:4])
	if canID&canIDRTRFlag != 0 {
		return n2k.RawFrame{}, errRTRFrame
	} else if canID&canIDERRFlag != 0 {
		return n2k.RawFrame{}, errErrFrame
	}

	f := n2k.RawFrame{
		Time:   now,
		Header: n2k.ParseCANID(canID &^ canIDMask),
		Length: canFrame[4],
	}
	copy(f.Data[:], canFrame[8:8+f.Length])
	return f, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, errReadTimeout)
}

func isContinuableSocketErr(err error) bool {
	return errors.Is(err, syscall.EWOULDBLOCK) || errors.Is(err, syscall.EINTR)
}

// WriteFrame implements transport.Driver.
func (c *Conn) WriteFrame(frame n2k.RawFrame) error {
	canFrame := buildCANFrame(frame)
	_, err := unix.Write(c.fd, canFrame)
	if err != nil {
		return transport.WrapError("socketcan", err)
	}
	return nil
}

// buildCANFrame encodes a RawFrame as a 16-byte SocketCAN can_frame
// struct: little-endian CAN ID with the EFF bit set in bytes 0-3, data
// length in byte 4, up to 8 data bytes starting at byte 8.
func buildCANFrame(frame n2k.RawFrame) []byte {
	canFrame := make([]byte, 16)
	canID := frame.Header.Uint32() | canIDEFFFlag
	binary.LittleEndian.PutUint32(canFrame[0:4], canID)
	canFrame[4] = frame.Length
	copy(canFrame[8:], frame.Data[:frame.Length])
	return canFrame
}

// Close implements transport.Driver.
func (c *Conn) Close() error {
	return unix.Close(c.fd)
}
