package call

import (
	"time"

	"github.com/opd-ai/voipcore/endpoint"
	"github.com/opd-ai/voipcore/transport"
	"github.com/opd-ai/voipcore/wire"
	"github.com/sirupsen/logrus"
)

// tickProbeUDP drives the UDP availability probe of §4.3: on every tick it
// sends a reflector self-info ping to each known UDP relay and advances the
// probe round, reclassifying UDP availability at rounds 4 and 10.
func (c *Controller) tickProbeUDP() {
	logger := logrus.WithFields(logrus.Fields{"function": "Controller.tickProbeUDP", "package": "call"})

	c.endpointsMu.RLock()
	eps := c.endpoints.All()
	c.endpointsMu.RUnlock()

	for _, e := range eps {
		if e.Type != endpoint.UDPRelay {
			continue
		}
		req, raw, err := transport.EncodeSelfInfoRequest(e.PeerTag)
		if err != nil {
			continue
		}
		e.RecordPingSent(uint32(req.QueryID))
		if c.socket != nil {
			_ = c.socket.Send(raw, e.UDPAddr())
		}
	}

	c.endpointsMu.Lock()
	state := c.endpoints.RecordProbeRound()
	c.endpointsMu.Unlock()

	switch state {
	case endpoint.UDPNotAvailable:
		logger.Warn("UDP judged not available, relying on TCP relays")
	case endpoint.UDPBad:
		logger.Debug("UDP judged bad, probing continues alongside TCP")
	}
}

// tickRelayPing drives the relay ping loop of §4.3: every eligible relay
// endpoint (last pinged at least RelayPingEligibleAfter ago) gets a PING,
// and the preferred-endpoint hysteresis is re-evaluated against the best
// known P2P candidate.
func (c *Controller) tickRelayPing() {
	if c.state != Established && c.state != Reconnecting {
		return
	}

	c.endpointsMu.RLock()
	eps := c.endpoints.All()
	c.endpointsMu.RUnlock()

	now := time.Now()
	var bestP2P *endpoint.Endpoint
	for _, e := range eps {
		switch e.Type {
		case endpoint.UDPRelay, endpoint.TCPRelay:
			if e.LastPingTime.IsZero() || now.Sub(e.LastPingTime) >= c.cfg.RelayPingEligibleAfter {
				c.pingEndpoint(e)
			}
		case endpoint.P2PInet, endpoint.P2PLAN:
			if e.AverageRTT > 0 && (bestP2P == nil || e.AverageRTT < bestP2P.AverageRTT) {
				bestP2P = e
			}
		}
	}

	c.endpointsMu.Lock()
	c.endpoints.SelectPreferredRelay()
	c.endpoints.MaybeSwitchToPreferred(bestP2P)
	c.endpointsMu.Unlock()
}

// pingEndpoint sends one in-protocol PING to e, recording the send time so
// the matching PONG's echoed seq (see handlePong) can update its RTT
// history.
func (c *Controller) pingEndpoint(e *endpoint.Endpoint) {
	seq := c.seqCounter.Peek()
	if err := c.SendOrEnqueuePacket(PendingOutgoingPacket{
		Type:       wire.PacketPing,
		EndpointID: e.ID,
	}); err != nil {
		return
	}
	e.RecordPingSent(seq)
}
