package call

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/opd-ai/voipcore/config"
	"github.com/opd-ai/voipcore/crypto"
	"github.com/opd-ai/voipcore/endpoint"
	"github.com/opd-ai/voipcore/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastTestConfig() *config.ServerConfig {
	cfg := config.Defaults()
	cfg.InitTimeout = 500 * time.Millisecond
	return cfg
}

func udpHostPort(t *testing.T, addr net.Addr) (net.IP, int) {
	t.Helper()
	ua, ok := addr.(*net.UDPAddr)
	require.True(t, ok)
	return ua.IP, ua.Port
}

func newTestPair(t *testing.T) (*Controller, *Controller) {
	t.Helper()
	var key [256]byte
	for i := range key {
		key[i] = byte(i)
	}

	a := NewController(fastTestConfig(), key, true, []byte("call-a"), Callbacks{})
	b := NewController(fastTestConfig(), key, false, []byte("call-a"), Callbacks{})

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	require.NoError(t, a.Start(ctx))
	require.NoError(t, b.Start(ctx))
	t.Cleanup(func() {
		a.Stop()
		b.Stop()
	})

	aIP, aPort := udpHostPort(t, a.socket.LocalAddr())
	bIP, bPort := udpHostPort(t, b.socket.LocalAddr())

	bAsSeenByA, err := endpoint.New(1, bIP, nil, bPort, [16]byte{}, endpoint.UDPRelay)
	require.NoError(t, err)
	aAsSeenByB, err := endpoint.New(2, aIP, nil, aPort, [16]byte{}, endpoint.UDPRelay)
	require.NoError(t, err)

	a.SetRemoteEndpoints([]*endpoint.Endpoint{bAsSeenByA}, true, 0)
	b.SetRemoteEndpoints([]*endpoint.Endpoint{aAsSeenByB}, true, 0)
	a.endpoints.SetCurrent(1)
	b.endpoints.SetCurrent(2)

	return a, b
}

// TestController_Handshake_S1_EstablishesOverUDP drives the S1 scenario: a
// clean UDP handshake with no packet loss should reach ESTABLISHED without
// ever touching the init timeout.
func TestController_Handshake_S1_EstablishesOverUDP(t *testing.T) {
	a, b := newTestPair(t)

	a.Connect()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if a.State() == Established {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	assert.Equal(t, Established, a.State())
	assert.NotEqual(t, Failed, b.State())
}

func initAckHeader(ourVersion, minVersion byte) *wire.PacketHeader {
	payload := encodeInitAckPayload(initAckPayload{OurVersion: ourVersion, MinVersion: minVersion})
	return &wire.PacketHeader{
		Type:   wire.PacketInitAck,
		Extras: []wire.Extra{{Type: 0, Payload: payload}},
	}
}

// TestController_IncompatibleVersion_FailsWithoutTimeout verifies that a
// too-old peer version reported in INIT_ACK fails the call immediately with
// ErrorIncompatible rather than waiting for the init timeout.
func TestController_IncompatibleVersion_FailsWithoutTimeout(t *testing.T) {
	var key [256]byte
	c := NewController(fastTestConfig(), key, true, []byte("x"), Callbacks{})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })

	c.setState(WaitInitAck)
	c.handleInitAck(&net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}, initAckHeader(1, 200))

	assert.Equal(t, Failed, c.State())
	assert.Equal(t, ErrorIncompatible, c.GetLastError())
}

// TestController_DuplicateSeq_Dropped checks §8's duplicate-seq invariant:
// a second delivery of an already-seen seq must be recognized before it
// reaches dispatch.
func TestController_DuplicateSeq_Dropped(t *testing.T) {
	var key [256]byte
	upgrades := 0
	c := NewController(fastTestConfig(), key, true, []byte("x"), Callbacks{UpgradeRequested: func() { upgrades++ }})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })

	header := &wire.PacketHeader{Type: wire.PacketNop, Seq: 42, Extras: []wire.Extra{{Type: ExtraRequestGroup, Payload: []byte{1}}}}
	plain, err := header.EncodeShort()
	require.NoError(t, err)
	// Sealed the way the callee sends to this initiator.
	data, err := crypto.WriteEnvelope(c.envelopeVersion, key[:], false, false, plain)
	require.NoError(t, err)
	from := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 1}

	c.onPacket(from, data)
	c.onPacket(from, data)

	assert.Equal(t, 1, upgrades, "the duplicate delivery must not reach extras handling")
	assert.True(t, c.recentIncomingSeqs[42])
	assert.Equal(t, uint32(42), c.lastRemoteSeq)
}

// TestSendOrEnqueuePacket_NoRoute verifies the "no endpoint resolvable"
// error path.
func TestSendOrEnqueuePacket_NoRoute(t *testing.T) {
	var key [256]byte
	c := NewController(fastTestConfig(), key, true, []byte("x"), Callbacks{})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })

	err := c.SendOrEnqueuePacket(PendingOutgoingPacket{Type: wire.PacketPing, Payload: []byte("hi")})
	assert.ErrorIs(t, err, ErrNoRoute)
}

// TestSendReliably_StopsRetryingOnceAcked verifies the legacy reliable-send
// path (§4.4, peer_version < 6) stops scheduling retries once the packet's
// seq shows up acknowledged.
func TestSendReliably_StopsRetryingOnceAcked(t *testing.T) {
	var key [256]byte
	c := NewController(fastTestConfig(), key, true, []byte("x"), Callbacks{})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })

	bIP, bPort := net.IPv4(127, 0, 0, 1), 1
	ep, err := endpoint.New(9, bIP, nil, bPort, [16]byte{}, endpoint.UDPRelay)
	require.NoError(t, err)
	c.endpoints.Add(ep)
	c.endpoints.SetCurrent(9)

	seq := c.seqCounter.Peek()
	c.SendReliably(PendingOutgoingPacket{Type: wire.PacketStreamData, Payload: []byte("frame")}, 50*time.Millisecond, 20)

	// Simulate an ack arriving immediately.
	c.ackOutgoing(seq, 0)

	assert.True(t, c.isAcked(seq))
}
