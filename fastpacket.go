package n2k

import (
	"sync"
	"time"
)

// FastPacketMaxPayload is the largest payload the Fast Packet transport can
// carry: 6 bytes in frame 0 plus 7 bytes in each of the remaining 31
// frames (the 5-bit frame counter tops out at 31).
const FastPacketMaxPayload = 223

// fastPacketReassemblyTimeout is how long a partially received sequence is
// kept before it is considered stale and evicted/reset.
const fastPacketReassemblyTimeout = 750 * time.Millisecond

// defaultAssemblerCapacity bounds how many distinct (source, PGN,
// sequence) reassemblies the Assembler tracks concurrently. It is a fixed
// ring: once full, a new frame-0 evicts the least-recently-active entry.
const defaultAssemblerCapacity = 16

// Assembler turns a stream of RawFrame into RawMessage, transparently
// reassembling Fast Packet sequences and passing Single-frame PGNs through
// unchanged.
type Assembler interface {
	// Assemble folds frame into to. It returns true once to holds a
	// complete message, false while a Fast Packet sequence is still
	// awaiting further frames.
	Assemble(frame RawFrame, to *RawMessage) bool
}

type fastPacketSequence struct {
	header CanBusHeader

	lastActivity time.Time
	sequence     uint8

	length             uint8
	completeFramesMask uint32
	receivedFramesMask uint32
	receivedFrames     uint8
	data               [FastPacketMaxPayload]byte
}

// Append folds one Fast Packet frame into the sequence. It returns true
// once every frame implied by the length declared in frame 0 has arrived.
func (s *fastPacketSequence) Append(frame RawFrame) bool {
	if frame.Length < 2 {
		return false
	}
	sequence := frame.Data[0] >> 5         // top 3 bits: sequence counter, 0-7
	frameNr := frame.Data[0] & 0b0001_1111 // bottom 5 bits: frame index, 0-31
	frameMask := uint32(1) << frameNr

	if s.receivedFramesMask&frameMask != 0 {
		return s.completeFramesMask != 0 && s.completeFramesMask == s.receivedFramesMask
	}
	if s.receivedFramesMask == 0 {
		s.header = frame.Header
		s.sequence = sequence
	}
	s.receivedFramesMask |= frameMask
	s.receivedFrames++
	s.lastActivity = frame.Time

	if frameNr == 0 {
		s.length = frame.Data[1]
		frameCount := uint8(1)
		if s.length > 6 {
			frameCount += (s.length - 6 + 7) / 7
		}
		s.completeFramesMask = ^(uint32(0xFFFFFFFF) << frameCount)
		copy(s.data[:6], frame.Data[2:])
	} else {
		start := 6 + int(frameNr-1)*7
		end := start + int(frame.Length) - 1
		copy(s.data[start:end], frame.Data[1:frame.Length])
	}
	return s.completeFramesMask != 0 && s.completeFramesMask == s.receivedFramesMask
}

func (s *fastPacketSequence) Reset() {
	*s = fastPacketSequence{}
}

func (s *fastPacketSequence) To(to *RawMessage) {
	to.Time = s.lastActivity
	to.Header = s.header
	if cap(to.Data) < int(s.length) {
		to.Data = make([]byte, s.length)
	} else {
		to.Data = to.Data[:s.length]
	}
	copy(to.Data, s.data[:s.length])
}

// FastPacketAssembler implements Assembler against a fixed-size table of
// in-progress sequences, keyed by (source, PGN, sequence counter).
type FastPacketAssembler struct {
	fastPGNs map[PGN]struct{}

	inTransfer []*fastPacketSequence
	capacity   int

	now  func() time.Time
	pool *sync.Pool
	lock sync.Mutex

	// Evicted counts sequences dropped to make room in a full table,
	// surfaced so callers can feed it to a metrics counter.
	Evicted uint64
	// Timeouts counts sequences dropped by ExpireStale for sitting idle
	// past fastPacketReassemblyTimeout, surfaced so callers can feed it
	// to a metrics counter.
	Timeouts uint64
}

// NewFastPacketAssembler builds an assembler that treats fpPGNs as
// Fast-Packet-carried; every other PGN is assumed to arrive as a single
// CAN frame and is passed through unmodified.
func NewFastPacketAssembler(fpPGNs []PGN) *FastPacketAssembler {
	set := make(map[PGN]struct{}, len(fpPGNs))
	for _, pgn := range fpPGNs {
		set[pgn] = struct{}{}
	}
	pool := &sync.Pool{New: func() any { return &fastPacketSequence{} }}
	return &FastPacketAssembler{
		fastPGNs:   set,
		inTransfer: make([]*fastPacketSequence, 0, defaultAssemblerCapacity),
		capacity:   defaultAssemblerCapacity,
		now:        time.Now,
		pool:       pool,
	}
}

// Assemble implements Assembler.
func (a *FastPacketAssembler) Assemble(frame RawFrame, to *RawMessage) bool {
	a.lock.Lock()
	defer a.lock.Unlock()

	if _, ok := a.fastPGNs[frame.Header.PGN]; !ok {
		if cap(to.Data) < int(frame.Length) {
			to.Data = make([]byte, frame.Length)
		} else {
			to.Data = to.Data[:frame.Length]
		}
		copy(to.Data, frame.Data[:frame.Length])
		to.Time = frame.Time
		to.Header = frame.Header
		return true
	}

	threshold := a.now().Add(-fastPacketReassemblyTimeout)
	sequence := frame.Data[0] >> 5

	idx := -1
	for i, fp := range a.inTransfer {
		if fp.header.Source != frame.Header.Source || fp.header.PGN != frame.Header.PGN || fp.sequence != sequence {
			continue
		}
		if fp.lastActivity.Before(threshold) {
			fp.Reset()
		}
		idx = i
		break
	}

	var fp *fastPacketSequence
	if idx >= 0 {
		fp = a.inTransfer[idx]
	} else {
		fp = a.acquire()
		idx = len(a.inTransfer) - 1
	}

	isComplete := fp.Append(frame)
	if isComplete {
		fp.To(to)
		a.release(idx)
	}
	return isComplete
}

// acquire appends a fresh sequence to inTransfer, evicting the
// least-recently-active entry first if the table is already at capacity.
func (a *FastPacketAssembler) acquire() *fastPacketSequence {
	if len(a.inTransfer) >= a.capacity {
		oldest := 0
		for i, fp := range a.inTransfer {
			if fp.lastActivity.Before(a.inTransfer[oldest].lastActivity) {
				oldest = i
			}
		}
		a.pool.Put(a.inTransfer[oldest])
		a.inTransfer = append(a.inTransfer[:oldest], a.inTransfer[oldest+1:]...)
		a.Evicted++
	}
	fp := a.pool.Get().(*fastPacketSequence)
	fp.Reset()
	a.inTransfer = append(a.inTransfer, fp)
	return fp
}

func (a *FastPacketAssembler) release(idx int) {
	fp := a.inTransfer[idx]
	a.inTransfer[idx] = a.inTransfer[len(a.inTransfer)-1]
	a.inTransfer = a.inTransfer[:len(a.inTransfer)-1]
	a.pool.Put(fp)
}

// ExpireStale drops every in-progress sequence whose last frame arrived
// before now minus fastPacketReassemblyTimeout, without waiting for a new
// frame to reopen (and thus quietly reset) that slot. The caller is
// expected to invoke this periodically (the supervisor does so every
// tick); it returns the number of sequences dropped.
func (a *FastPacketAssembler) ExpireStale(now time.Time) int {
	a.lock.Lock()
	defer a.lock.Unlock()

	threshold := now.Add(-fastPacketReassemblyTimeout)
	dropped := 0
	for i := 0; i < len(a.inTransfer); {
		if a.inTransfer[i].lastActivity.Before(threshold) {
			a.pool.Put(a.inTransfer[i])
			a.inTransfer[i] = a.inTransfer[len(a.inTransfer)-1]
			a.inTransfer = a.inTransfer[:len(a.inTransfer)-1]
			dropped++
			continue
		}
		i++
	}
	a.Timeouts += uint64(dropped)
	return dropped
}

// FastPacketBuilder splits an outgoing payload into the Fast Packet frame
// sequence needed to carry it, advancing its own per-(source,PGN)
// sequence counter each time a new message starts.
type FastPacketBuilder struct {
	lock     sync.Mutex
	counters map[uint64]uint8
}

func NewFastPacketBuilder() *FastPacketBuilder {
	return &FastPacketBuilder{counters: make(map[uint64]uint8)}
}

// Split builds the CAN frames needed to carry payload as header's PGN. It
// returns ErrPayloadTooLarge if payload exceeds FastPacketMaxPayload.
func (b *FastPacketBuilder) Split(header CanBusHeader, payload []byte, when time.Time) ([]RawFrame, error) {
	if len(payload) > FastPacketMaxPayload {
		return nil, ErrPayloadTooLarge
	}
	if len(payload) <= 8 {
		frame := RawFrame{Time: when, Header: header, Length: 8}
		padFF(frame.Data[:])
		copy(frame.Data[:], payload)
		return []RawFrame{frame}, nil
	}

	key := uint64(header.Source)<<32 | uint64(header.PGN)
	b.lock.Lock()
	seq := b.counters[key]
	b.counters[key] = (seq + 1) & 0b111
	b.lock.Unlock()

	frameCount := 1 + (len(payload)-6+6)/7
	frames := make([]RawFrame, 0, frameCount)

	frame0 := RawFrame{Time: when, Header: header, Length: 8}
	padFF(frame0.Data[:])
	frame0.Data[0] = seq << 5
	frame0.Data[1] = byte(len(payload))
	n := copy(frame0.Data[2:], payload)
	frames = append(frames, frame0)

	remaining := payload[n:]
	for k := uint8(1); len(remaining) > 0; k++ {
		f := RawFrame{Time: when, Header: header, Length: 8}
		padFF(f.Data[:])
		f.Data[0] = seq<<5 | k
		chunk := remaining
		if len(chunk) > 7 {
			chunk = chunk[:7]
		}
		copy(f.Data[1:], chunk)
		frames = append(frames, f)
		remaining = remaining[len(chunk):]
	}
	return frames, nil
}

// padFF fills data with 0xFF so unused trailing bytes of a CAN frame carry
// the NMEA 2000 padding value instead of a zero that looks like real data.
func padFF(data []byte) {
	for i := range data {
		data[i] = 0xFF
	}
}
