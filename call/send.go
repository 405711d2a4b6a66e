package call

import (
	"errors"
	"net"
	"time"

	"github.com/opd-ai/voipcore/stream"
	"github.com/opd-ai/voipcore/wire"
	"github.com/sirupsen/logrus"
)

// ErrNoRoute is returned by SendOrEnqueuePacket when the target endpoint id
// is unknown and there is no current endpoint to fall back to.
var ErrNoRoute = errors.New("call: no route to endpoint")

// PendingOutgoingPacket describes one unit of work for SendOrEnqueuePacket:
// either addressed to a specific endpoint id, or left zero to mean "current
// endpoint", per §4.4.
type PendingOutgoingPacket struct {
	Type       wire.PacketType
	Payload    []byte
	EndpointID uint64
	StreamID   stream.ID
}

// SendOrEnqueuePacket resolves an endpoint, stamps a sequence number,
// piggybacks the current extras set, encrypts, and sends. If no endpoint
// can be resolved the packet is dropped and an error returned; callers that
// need at-least-once delivery should use SendReliably instead.
func (c *Controller) SendOrEnqueuePacket(p PendingOutgoingPacket) error {
	logger := logrus.WithFields(logrus.Fields{"function": "Controller.SendOrEnqueuePacket", "package": "call"})

	addr := c.resolveTarget(p.EndpointID)
	if addr == nil {
		logger.Debug("no route for outgoing packet")
		return ErrNoRoute
	}

	seq := c.seqCounter.Next()
	header := &wire.PacketHeader{
		Type:          p.Type,
		LastRemoteSeq: c.lastRemoteSeq,
		AckBitmap:     c.buildAckBitmap(),
		Seq:           seq,
		Extras:        append([]wire.Extra{{Type: 0, Payload: p.Payload}}, c.extras.BuildForSend(seq)...),
	}

	if err := c.encodeAndSend(addr, header); err != nil {
		return err
	}

	c.recordOutgoing(RecentOutgoingPacket{
		Seq:      seq,
		SendTime: time.Now(),
		Type:     p.Type,
		StreamID: p.StreamID,
		Size:     len(p.Payload),
	})
	c.congestionCtl.PacketSent(seq, len(p.Payload))
	return nil
}

func (c *Controller) resolveTarget(endpointID uint64) net.Addr {
	c.endpointsMu.RLock()
	defer c.endpointsMu.RUnlock()

	if endpointID != 0 {
		if e, ok := c.endpoints.Get(endpointID); ok {
			return e.UDPAddr()
		}
		return nil
	}
	if e, ok := c.endpoints.Current(); ok {
		return e.UDPAddr()
	}
	return nil
}

func (c *Controller) encodeAndSend(addr net.Addr, header *wire.PacketHeader) error {
	plain, err := header.EncodeShort()
	if err != nil {
		return err
	}
	envelope, err := c.writeEnvelope(plain)
	if err != nil {
		return err
	}
	if c.metrics != nil {
		c.metrics.PacketsSent.Inc()
		c.metrics.BytesSent.Add(float64(len(envelope)))
	}
	return c.socket.Send(envelope, addr)
}

func (c *Controller) recordOutgoing(p RecentOutgoingPacket) {
	c.recentOutgoing = append(c.recentOutgoing, p)
	if len(c.recentOutgoing) > c.cfg.RecentPacketCapacity {
		c.recentOutgoing = c.recentOutgoing[len(c.recentOutgoing)-c.cfg.RecentPacketCapacity:]
	}
}

// ackOutgoing marks recentOutgoing entries acknowledged by an inbound
// header's last_remote_ack_seq/ack_bitmap, folding each newly-acked RTT
// sample into the congestion controller, per §4.5/§8. Only last_remote_ack_seq
// itself and the 32 seqs it directly covers via ack_bitmap count as
// acknowledged; a seq outside that window is left unacknowledged (and
// eventually ages into a loss) even though it is numerically smaller, since
// the peer's bitmap is the only evidence of what it actually received.
func (c *Controller) ackOutgoing(lastRemoteAckSeq uint32, ackBitmap uint32) {
	for i := range c.recentOutgoing {
		p := &c.recentOutgoing[i]
		if !p.AckTime.IsZero() {
			continue
		}
		acked := p.Seq == lastRemoteAckSeq
		if !acked {
			offset := lastRemoteAckSeq - p.Seq
			if offset > 0 && offset <= 32 && ackBitmap&(1<<(offset-1)) != 0 {
				acked = true
			}
		}
		if acked {
			p.AckTime = time.Now()
			c.congestionCtl.PacketAcknowledged(p.Seq)
			if isStreamDataType(p.Type) && p.StreamID == videoStreamID {
				qdelayFraction := c.currentRTT.Seconds() / 0.3
				if qdelayFraction < 0 {
					qdelayFraction = 0
				} else if qdelayFraction > 2 {
					qdelayFraction = 2
				}
				c.videoCC.OnAck(p.Size, qdelayFraction)
			}
		}
	}
}

// isStreamDataType reports whether t carries media payload subject to
// per-stream congestion accounting (as opposed to handshake/control types).
func isStreamDataType(t wire.PacketType) bool {
	switch t {
	case wire.PacketStreamData, wire.PacketStreamDataX2, wire.PacketStreamDataX3, wire.PacketStreamEC:
		return true
	default:
		return false
	}
}

// ageOutgoingLosses marks any unacked, unlost entry older than
// cfg.CongestionExpireAfter as lost, folding it into the congestion controller and (for video) the
// SCReAM controller's loss signal. This is what gives RecentOutgoingPacket.Lost
// and sendLossRate real meaning instead of a field nothing ever sets.
func (c *Controller) ageOutgoingLosses() {
	cutoff := time.Now().Add(-c.cfg.CongestionExpireAfter)
	for i := range c.recentOutgoing {
		p := &c.recentOutgoing[i]
		if p.Lost || !p.AckTime.IsZero() {
			continue
		}
		if p.SendTime.After(cutoff) {
			continue
		}
		p.Lost = true
		c.congestionCtl.PacketLost(p.Seq)
		if isStreamDataType(p.Type) && p.StreamID == videoStreamID {
			c.videoCC.OnLoss()
		}
	}
}

// sendLossRate returns the fraction of recentOutgoing entries (acked or
// aged-out) that were lost, feeding both the bitrate policy and the
// signal-bar indicator's loss input.
func (c *Controller) sendLossRate() float64 {
	var total, lost int
	for i := range c.recentOutgoing {
		p := &c.recentOutgoing[i]
		if p.AckTime.IsZero() && !p.Lost {
			continue
		}
		total++
		if p.Lost {
			lost++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(lost) / float64(total)
}

// buildAckBitmap reports, for the 32 seqs immediately preceding
// lastRemoteSeq, which ones this side has actually received: bit (offset-1)
// set means lastRemoteSeq-offset was seen, for offset in [1, 32]. This is
// the bitmap half of the ack window ackOutgoing reads on the peer.
func (c *Controller) buildAckBitmap() uint32 {
	var bitmap uint32
	for offset := uint32(1); offset <= 32; offset++ {
		if c.recentIncomingSeqs[c.lastRemoteSeq-offset] {
			bitmap |= 1 << (offset - 1)
		}
	}
	return bitmap
}

// SendReliably implements the legacy (peer_version < 6) reliable-send path
// of §4.4: the packet is resent every retryInterval until acknowledged or
// maxRetries is exhausted, at which point it is dropped silently.
func (c *Controller) SendReliably(p PendingOutgoingPacket, retryInterval time.Duration, maxRetries int) {
	var targetSeq uint32
	attempt := 0
	var retry func()
	retry = func() {
		if attempt >= maxRetries {
			return
		}
		attempt++
		targetSeq = c.seqCounter.Peek()
		if err := c.SendOrEnqueuePacket(p); err != nil {
			return
		}
		seq := targetSeq
		c.sched.Post(func() {
			if !c.isAcked(seq) {
				retry()
			}
		}, retryInterval, 0)
	}
	retry()
}

func (c *Controller) isAcked(seq uint32) bool {
	for i := range c.recentOutgoing {
		if c.recentOutgoing[i].Seq == seq {
			return !c.recentOutgoing[i].AckTime.IsZero()
		}
	}
	return false
}
