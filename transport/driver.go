// Package transport defines the contract a CAN link (SocketCAN, an
// Actisense NGT-1 gateway, or a test fake) must satisfy to feed the
// supervisor, plus the timer contract the supervisor uses for address
// claim timeouts and Fast Packet reassembly expiry.
package transport

import (
	"context"
	"time"

	"github.com/halyard-systems/n2k-node"
)

// Driver reads and writes raw CAN frames. ReadFrame is called in a tight
// loop by the supervisor's read-pump goroutine while WriteFrame is called
// from its event loop, so the two may run concurrently.
type Driver interface {
	// ReadFrame blocks until a frame is available, ctx is done, or the
	// link fails. Link failures are wrapped as *DriverError; when ctx is
	// done, ctx.Err() is returned as is.
	ReadFrame(ctx context.Context) (n2k.RawFrame, error)

	// WriteFrame sends a single CAN frame.
	WriteFrame(n2k.RawFrame) error

	// Close releases the underlying link. The drivers in this module do
	// not guard against a second call: it closes the handle again.
	Close() error
}

// Clock is the timer contract the supervisor uses in place of calling
// time.Now/time.NewTimer directly, so tests can drive claim timeouts and
// assembler expiry deterministically.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) Timer
}

// Timer mirrors the subset of *time.Timer the supervisor needs.
type Timer interface {
	C() <-chan time.Time
	Reset(d time.Duration) bool
	Stop() bool
}

// RealClock implements Clock with the standard library's wall clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

func (RealClock) NewTimer(d time.Duration) Timer { return &realTimer{t: time.NewTimer(d)} }

type realTimer struct{ t *time.Timer }

func (r *realTimer) C() <-chan time.Time      { return r.t.C }
func (r *realTimer) Reset(d time.Duration) bool { return r.t.Reset(d) }
func (r *realTimer) Stop() bool                 { return r.t.Stop() }
