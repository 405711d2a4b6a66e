package endpoint

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_RejectsEmptyAddress(t *testing.T) {
	_, err := New(1, nil, nil, 443, [16]byte{}, UDPRelay)
	assert.ErrorIs(t, err, ErrInvalidEndpoint)
}

func TestIsIPv6Only_Invariant(t *testing.T) {
	v6Only, err := New(1, nil, net.ParseIP("2001:db8::1"), 443, [16]byte{}, UDPRelay)
	require.NoError(t, err)
	assert.True(t, v6Only.IsIPv6Only())

	dualStack, err := New(2, net.ParseIP("198.51.100.1"), net.ParseIP("2001:db8::1"), 443, [16]byte{}, UDPRelay)
	require.NoError(t, err)
	assert.False(t, dualStack.IsIPv6Only())

	v4Only, err := New(3, net.ParseIP("198.51.100.1"), nil, 443, [16]byte{}, UDPRelay)
	require.NoError(t, err)
	assert.False(t, v4Only.IsIPv6Only())
}

func TestRecordPingPong_ComputesRTT(t *testing.T) {
	e, err := New(1, net.ParseIP("198.51.100.1"), nil, 443, [16]byte{}, UDPRelay)
	require.NoError(t, err)

	e.RecordPingSent(1)
	_, ok := e.RecordPong(1)
	require.True(t, ok)
	assert.Equal(t, 1, e.pongsReceived)
	assert.Equal(t, 1.0, e.PongRate())
}

func TestRecordPong_UnknownSeqIgnored(t *testing.T) {
	e, err := New(1, net.ParseIP("198.51.100.1"), nil, 443, [16]byte{}, UDPRelay)
	require.NoError(t, err)
	_, ok := e.RecordPong(99)
	assert.False(t, ok)
}

func TestEffectiveRTT_DoublesForTCP(t *testing.T) {
	e, err := New(1, net.ParseIP("198.51.100.1"), nil, 443, [16]byte{}, TCPRelay)
	require.NoError(t, err)
	e.RecordPingSent(1)
	e.RecordPong(1)
	assert.Equal(t, e.AverageRTT*2, e.EffectiveRTT())
}

func TestIPv6MirrorID_XORsTag(t *testing.T) {
	id := IPv6MirrorID(42)
	assert.NotEqual(t, uint64(42), id)
	assert.Equal(t, uint64(42), IPv6MirrorID(id)) // XOR is its own inverse
}

func TestCandidateIDs_AreStable(t *testing.T) {
	assert.Equal(t, P2PCandidateID(false), P2PCandidateID(false))
	assert.NotEqual(t, P2PCandidateID(false), P2PCandidateID(true))
}
