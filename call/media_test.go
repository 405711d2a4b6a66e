package call

import (
	"context"
	"net"
	"testing"

	"github.com/opd-ai/voipcore/endpoint"
	"github.com/opd-ai/voipcore/stream"
	"github.com/opd-ai/voipcore/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEstablishedVideoController(t *testing.T) *Controller {
	t.Helper()
	var key [256]byte
	c := NewController(fastTestConfig(), key, true, []byte("x"), Callbacks{})
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { c.Stop() })

	ep, err := endpoint.New(9, net.IPv4(127, 0, 0, 1), nil, 1, [16]byte{}, endpoint.UDPRelay)
	require.NoError(t, err)
	c.endpoints.Add(ep)
	c.endpoints.SetCurrent(9)
	c.state = Established

	vs, err := stream.New(2, stream.Video, stream.CodecVP8, 0, nil)
	require.NoError(t, err)
	c.streams[2] = vs
	return c
}

func countOutgoing(c *Controller, typ wire.PacketType) int {
	n := 0
	for _, p := range c.recentOutgoing {
		if p.Type == typ {
			n++
		}
	}
	return n
}

// TestHandleVideoOutput_FragmentsOversizedFrame checks §4.4 fragmentation:
// a frame larger than MaxVideoFragmentPayload must be split across multiple
// STREAM_DATA packets.
func TestHandleVideoOutput_FragmentsOversizedFrame(t *testing.T) {
	c := newEstablishedVideoController(t)

	big := make([]byte, c.cfg.MaxVideoFragmentPayload*2+10)
	require.NoError(t, c.HandleVideoOutput(2, 0, big, true))

	assert.Equal(t, 3, countOutgoing(c, wire.PacketStreamData))
}

// TestHandleVideoOutput_EmitsParityEveryGroupSize checks §8 scenario S5: a
// STREAM_EC packet is emitted exactly once every VideoParityFECGroupSize
// frames.
func TestHandleVideoOutput_EmitsParityEveryGroupSize(t *testing.T) {
	c := newEstablishedVideoController(t)

	for i := 0; i < c.cfg.VideoParityFECGroupSize; i++ {
		require.NoError(t, c.HandleVideoOutput(2, uint32(i), []byte("frame"), false))
	}
	assert.Equal(t, 1, countOutgoing(c, wire.PacketStreamEC))

	require.NoError(t, c.HandleVideoOutput(2, uint32(99), []byte("frame"), false))
	assert.Equal(t, 1, countOutgoing(c, wire.PacketStreamEC))
}
