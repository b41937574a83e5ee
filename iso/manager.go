// Package iso implements the ISO 11783-5 address claim/defend state
// machine: given a node Name and a preferred source address, it claims an
// address on the bus, defends it against conflicting claims, and responds
// to ISO Requests directed at its own address claim.
package iso

import (
	"fmt"
	"time"

	"github.com/halyard-systems/n2k-node"
)

// State is where a Manager sits in the address claim lifecycle.
type State uint8

const (
	// StateUnclaimed has not sent a claim yet (or gave up after losing
	// arbitration and has no arbitrary address to fall back to).
	StateUnclaimed State = iota
	// StateClaiming has broadcast a claim and is waiting out the 250ms
	// settle window for a competing claim to the same address.
	StateClaiming
	// StateClaimed owns its address and will defend it.
	StateClaimed
	// StateLost held an address but lost arbitration to a lower NAME and
	// is about to retry (either the same address, if not arbitrary
	// capable, or search for a new one).
	StateLost
)

func (s State) String() string {
	switch s {
	case StateUnclaimed:
		return "unclaimed"
	case StateClaiming:
		return "claiming"
	case StateClaimed:
		return "claimed"
	case StateLost:
		return "lost"
	default:
		return "invalid"
	}
}

// claimSettleDuration is how long a node waits after broadcasting a claim
// before it may consider the address its own (ISO 11783-5 §4.4.3.2).
const claimSettleDuration = 250 * time.Millisecond

// retryAfterLost is how long a non-arbitrary-capable node waits before
// retrying its preferred address after losing it.
const retryAfterLost = 1 * time.Second

// Manager is the pure address claim/defend state machine. It holds no
// reference to a transport: Start/OnFrame/Tick return the frames that
// should be sent, and the caller (supervisor.Service) is responsible for
// actually writing them to the bus.
type Manager struct {
	name      n2k.Name
	preferred uint8

	state         State
	address       uint8
	claimDeadline time.Time
	retryAt       time.Time

	// observed records, for every address seen claimed on the bus this
	// session, the Name that claimed it, so the candidate search can
	// skip addresses known to be taken by a competing node.
	observed    map[uint8]n2k.Name
	searchFrom  uint8
}

// NewManager builds a Manager for name, preferring address preferred.
func NewManager(name n2k.Name, preferred uint8) *Manager {
	return &Manager{
		name:      name,
		preferred: preferred,
		address:   n2k.AddressNull,
		observed:  make(map[uint8]n2k.Name),
	}
}

func (m *Manager) State() State    { return m.state }
func (m *Manager) Address() uint8  { return m.address }
func (m *Manager) Name() n2k.Name  { return m.name }

// Start begins the claim process at the preferred address and returns the
// claim frame to broadcast.
func (m *Manager) Start(now time.Time) n2k.RawMessage {
	return m.beginClaim(now, m.preferred)
}

func (m *Manager) beginClaim(now time.Time, address uint8) n2k.RawMessage {
	m.state = StateClaiming
	m.address = address
	m.claimDeadline = now.Add(claimSettleDuration)
	return m.claimFrame(address)
}

func (m *Manager) claimFrame(address uint8) n2k.RawMessage {
	return n2k.RawMessage{
		Header: n2k.CanBusHeader{
			PGN:         n2k.PGNISOAddressClaim,
			Priority:    6,
			Source:      address,
			Destination: n2k.AddressGlobal,
		},
		Data: m.name.Bytes(),
	}
}

// Tick advances time-based transitions: settling a pending claim, or
// retrying after a lost/exhausted search. It returns any frame that
// should be sent as a result, or a zero-value RawMessage (Data == nil) if
// nothing needs sending.
func (m *Manager) Tick(now time.Time) (n2k.RawMessage, bool) {
	switch m.state {
	case StateClaiming:
		if !now.Before(m.claimDeadline) {
			m.state = StateClaimed
		}
	case StateUnclaimed, StateLost:
		if !m.retryAt.IsZero() && !now.Before(m.retryAt) {
			return m.beginClaim(now, m.preferred), true
		}
	}
	return n2k.RawMessage{}, false
}

// OnFrame processes an incoming message and returns any reply frame the
// claim/defend protocol requires.
func (m *Manager) OnFrame(now time.Time, raw n2k.RawMessage) (n2k.RawMessage, bool) {
	switch raw.Header.PGN {
	case n2k.PGNISOAddressClaim:
		return m.onAddressClaim(now, raw)
	case n2k.PGNISORequest:
		return m.onRequest(now, raw)
	}
	return n2k.RawMessage{}, false
}

func (m *Manager) onAddressClaim(now time.Time, raw n2k.RawMessage) (n2k.RawMessage, bool) {
	other, err := n2k.NameFromBytes(raw.Data)
	if err != nil {
		return n2k.RawMessage{}, false
	}
	m.observed[raw.Header.Source] = other

	if raw.Header.Source != m.address {
		return n2k.RawMessage{}, false
	}
	if m.state != StateClaiming && m.state != StateClaimed {
		return n2k.RawMessage{}, false
	}
	if other.Uint64() == m.name.Uint64() {
		// a duplicate of our own claim echoed back; nothing to do
		return n2k.RawMessage{}, false
	}

	if m.name.Less(other) {
		// we have priority: defend by re-asserting our claim
		return m.claimFrame(m.address), true
	}

	// we lost arbitration for this address
	m.state = StateLost
	lostAddress := m.address
	m.address = n2k.AddressNull

	if !m.name.ArbitraryAddressCapable {
		// ISO 11783-5 §4.4.3.4: a non-arbitrary-capable node does not
		// search; it waits and retries the same preferred address.
		m.retryAt = now.Add(retryAfterLost)
		return n2k.RawMessage{}, false
	}

	candidate, ok := m.nextCandidate(lostAddress)
	if !ok {
		m.state = StateUnclaimed
		m.retryAt = now.Add(retryAfterLost)
		return n2k.RawMessage{}, false
	}
	return m.beginClaim(now, candidate), true
}

func (m *Manager) onRequest(_ time.Time, raw n2k.RawMessage) (n2k.RawMessage, bool) {
	if m.state != StateClaimed && m.state != StateClaiming {
		return n2k.RawMessage{}, false
	}
	if raw.Header.Destination != m.address && raw.Header.Destination != n2k.AddressGlobal {
		return n2k.RawMessage{}, false
	}
	requested, err := requestedPGN(raw.Data)
	if err != nil || requested != n2k.PGNISOAddressClaim {
		return n2k.RawMessage{}, false
	}
	return m.claimFrame(m.address), true
}

func requestedPGN(data []byte) (n2k.PGN, error) {
	if len(data) < 3 {
		return 0, n2k.ErrTruncated
	}
	return n2k.PGN(uint32(data[0]) | uint32(data[1])<<8 | uint32(data[2])<<16), nil
}

// nextCandidate scans preferred+1..251 wrapping to 0..preferred-1,
// skipping addresses already observed claimed by a different Name this
// session.
func (m *Manager) nextCandidate(lostAddress uint8) (uint8, bool) {
	start := m.searchFrom
	if start == 0 {
		start = lostAddress
	}
	for i := uint16(1); i <= 252; i++ {
		candidate := uint8((uint16(start) + i) % 252)
		if other, seen := m.observed[candidate]; seen && other.Uint64() != m.name.Uint64() {
			continue
		}
		m.searchFrom = candidate
		return candidate, true
	}
	return 0, false
}

// SendPayload builds an outgoing RawMessage for pgn using this node's
// currently claimed address as source. It fails with ErrNotClaimed if the
// node does not currently own an address.
func (m *Manager) SendPayload(pgn n2k.PGN, destination uint8, priority uint8, data []byte) (n2k.RawMessage, error) {
	if m.state != StateClaimed {
		return n2k.RawMessage{}, fmt.Errorf("send pgn %d: %w", pgn, n2k.ErrNotClaimed)
	}
	return n2k.RawMessage{
		Header: n2k.CanBusHeader{
			PGN:         pgn,
			Priority:    priority,
			Source:      m.address,
			Destination: destination,
		},
		Data: data,
	}, nil
}
