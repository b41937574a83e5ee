package iso

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/halyard-systems/n2k-node"
	"github.com/halyard-systems/n2k-node/internal/testutil"
)

func TestManager_ClaimsAndSettles(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	name := n2k.Name{UniqueNumber: 10, ArbitraryAddressCapable: true}
	m := NewManager(name, 42)

	claim := m.Start(now)
	assert.Equal(t, StateClaiming, m.State())
	assert.Equal(t, uint8(42), claim.Header.Source)
	assert.Equal(t, n2k.PGNISOAddressClaim, claim.Header.PGN)
	assert.Equal(t, name.Bytes(), claim.Data)

	_, sent := m.Tick(now.Add(100 * time.Millisecond))
	assert.False(t, sent)
	assert.Equal(t, StateClaiming, m.State())

	_, sent = m.Tick(now.Add(250 * time.Millisecond))
	assert.False(t, sent)
	assert.Equal(t, StateClaimed, m.State())
	assert.Equal(t, uint8(42), m.Address())
}

func TestManager_DefendsAgainstHigherNAME(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	name := n2k.Name{UniqueNumber: 5, ArbitraryAddressCapable: true}
	m := NewManager(name, 42)
	m.Start(now)
	m.Tick(now.Add(claimSettleDuration))

	competitor := n2k.Name{UniqueNumber: 99, ArbitraryAddressCapable: true} // higher NAME, loses to us
	claimMsg := n2k.RawMessage{
		Header: n2k.CanBusHeader{PGN: n2k.PGNISOAddressClaim, Source: 42, Destination: n2k.AddressGlobal},
		Data:   competitor.Bytes(),
	}
	reply, sent := m.OnFrame(now, claimMsg)
	assert.True(t, sent)
	assert.Equal(t, name.Bytes(), reply.Data)
	assert.Equal(t, StateClaimed, m.State())
	assert.Equal(t, uint8(42), m.Address())
}

func TestManager_LosesToLowerNAMEAndSearchesNewAddress(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	name := n2k.Name{UniqueNumber: 50, ArbitraryAddressCapable: true}
	m := NewManager(name, 42)
	m.Start(now)
	m.Tick(now.Add(claimSettleDuration))

	competitor := n2k.Name{UniqueNumber: 1} // lower NAME, wins over us
	claimMsg := n2k.RawMessage{
		Header: n2k.CanBusHeader{PGN: n2k.PGNISOAddressClaim, Source: 42, Destination: n2k.AddressGlobal},
		Data:   competitor.Bytes(),
	}
	reply, sent := m.OnFrame(now, claimMsg)
	assert.True(t, sent)
	assert.Equal(t, StateClaiming, m.State())
	assert.NotEqual(t, uint8(42), m.Address())
	assert.Equal(t, reply.Header.Source, m.Address())
}

func TestManager_NonArbitraryCapableRetriesSameAddress(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	name := n2k.Name{UniqueNumber: 50, ArbitraryAddressCapable: false}
	m := NewManager(name, 42)
	m.Start(now)
	m.Tick(now.Add(claimSettleDuration))

	competitor := n2k.Name{UniqueNumber: 1}
	claimMsg := n2k.RawMessage{
		Header: n2k.CanBusHeader{PGN: n2k.PGNISOAddressClaim, Source: 42, Destination: n2k.AddressGlobal},
		Data:   competitor.Bytes(),
	}
	_, sent := m.OnFrame(now, claimMsg)
	assert.False(t, sent)
	assert.Equal(t, StateLost, m.State())

	claim, retried := m.Tick(now.Add(retryAfterLost + time.Second))
	assert.True(t, retried)
	assert.Equal(t, uint8(42), claim.Header.Source)
}

func TestManager_RespondsToAddressClaimRequest(t *testing.T) {
	now := testutil.UTCTime(1700000000)
	name := n2k.Name{UniqueNumber: 7, ArbitraryAddressCapable: true}
	m := NewManager(name, 42)
	m.Start(now)
	m.Tick(now.Add(claimSettleDuration))

	req := n2k.RawMessage{
		Header: n2k.CanBusHeader{PGN: n2k.PGNISORequest, Source: 10, Destination: n2k.AddressGlobal},
		Data:   []byte{0x00, 0xEE, 0x00}, // 60928 little-endian
	}
	reply, sent := m.OnFrame(now, req)
	assert.True(t, sent)
	assert.Equal(t, n2k.PGNISOAddressClaim, reply.Header.PGN)
	assert.Equal(t, name.Bytes(), reply.Data)
}

func TestManager_SendPayloadRequiresClaimedAddress(t *testing.T) {
	name := n2k.Name{UniqueNumber: 7}
	m := NewManager(name, 42)

	_, err := m.SendPayload(n2k.PGNProductInformation, n2k.AddressGlobal, 6, nil)
	assert.ErrorIs(t, err, n2k.ErrNotClaimed)
}
