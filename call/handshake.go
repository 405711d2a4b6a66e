package call

import (
	"encoding/binary"
	"net"

	"github.com/opd-ai/voipcore/crypto"
	"github.com/opd-ai/voipcore/stream"
	"github.com/opd-ai/voipcore/transport"
	"github.com/opd-ai/voipcore/wire"
	"github.com/sirupsen/logrus"
)

// Capability bits carried in INIT, per §4.2's "data saving, group-call
// capable, video send/recv" capability flags.
const (
	CapDataSaving = 1 << iota
	CapGroupCallCapable
	CapVideoSend
	CapVideoRecv
)

// videoStreamID is the fixed id used for the single negotiable video
// stream; audio always occupies audioStreamID.
const videoStreamID = 2

// initPayload is the decoded INIT body: protocol range, capability flags,
// and the codec/resolution lists §4.2 requires alongside them.
type initPayload struct {
	OurVersion    byte
	MinVersion    byte
	Capabilities  byte
	AudioCodecs   []stream.CodecTag
	VideoDecoders []stream.CodecTag
	MaxWidth      uint16
	MaxHeight     uint16
}

// encodeInitPayload builds the INIT body: our_version(1) ||
// min_accepted_version(1) || capability_flags(1) || audio_codec_count(1) ||
// audio_codecs(4*n) || video_decoder_count(1) || video_decoders(4*m) ||
// max_width(2 LE) || max_height(2 LE), per §4.2.
func encodeInitPayload(p initPayload) []byte {
	buf := make([]byte, 0, 4+4*len(p.AudioCodecs)+4*len(p.VideoDecoders)+4)
	buf = append(buf, p.OurVersion, p.MinVersion, p.Capabilities, byte(len(p.AudioCodecs)))
	for _, c := range p.AudioCodecs {
		buf = append(buf, c[:]...)
	}
	buf = append(buf, byte(len(p.VideoDecoders)))
	for _, c := range p.VideoDecoders {
		buf = append(buf, c[:]...)
	}
	width := make([]byte, 2)
	binary.LittleEndian.PutUint16(width, p.MaxWidth)
	height := make([]byte, 2)
	binary.LittleEndian.PutUint16(height, p.MaxHeight)
	buf = append(buf, width...)
	buf = append(buf, height...)
	return buf
}

func decodeInitPayload(data []byte) (initPayload, bool) {
	var p initPayload
	if len(data) < 4 {
		return p, false
	}
	p.OurVersion, p.MinVersion, p.Capabilities = data[0], data[1], data[2]
	n := int(data[3])
	off := 4
	for i := 0; i < n; i++ {
		if off+4 > len(data) {
			return p, false
		}
		var tag stream.CodecTag
		copy(tag[:], data[off:off+4])
		p.AudioCodecs = append(p.AudioCodecs, tag)
		off += 4
	}
	if off >= len(data) {
		return p, false
	}
	m := int(data[off])
	off++
	for i := 0; i < m; i++ {
		if off+4 > len(data) {
			return p, false
		}
		var tag stream.CodecTag
		copy(tag[:], data[off:off+4])
		p.VideoDecoders = append(p.VideoDecoders, tag)
		off += 4
	}
	if off+4 > len(data) {
		return p, false
	}
	p.MaxWidth = binary.LittleEndian.Uint16(data[off : off+2])
	p.MaxHeight = binary.LittleEndian.Uint16(data[off+2 : off+4])
	return p, true
}

// streamDescriptor is one entry of the INIT_ACK "streams it will send us"
// list, per §4.2.
type streamDescriptor struct {
	ID              stream.ID
	Kind            stream.Kind
	Codec           stream.CodecTag
	FrameDurationMS byte
}

// initAckPayload is the decoded INIT_ACK body.
type initAckPayload struct {
	OurVersion byte
	MinVersion byte
	Streams    []streamDescriptor
}

// encodeInitAckPayload builds the INIT_ACK body: our_version(1) ||
// min_accepted_version(1) || stream_count(1) || streams(7*k), each stream
// as id(1) || kind(1) || codec(4) || frame_duration_ms(1), per §4.2.
func encodeInitAckPayload(p initAckPayload) []byte {
	buf := make([]byte, 0, 3+7*len(p.Streams))
	buf = append(buf, p.OurVersion, p.MinVersion, byte(len(p.Streams)))
	for _, s := range p.Streams {
		buf = append(buf, byte(s.ID), byte(s.Kind))
		buf = append(buf, s.Codec[:]...)
		buf = append(buf, s.FrameDurationMS)
	}
	return buf
}

func decodeInitAckPayload(data []byte) (initAckPayload, bool) {
	var p initAckPayload
	if len(data) < 3 {
		return p, false
	}
	p.OurVersion, p.MinVersion = data[0], data[1]
	count := int(data[2])
	off := 3
	for i := 0; i < count; i++ {
		if off+7 > len(data) {
			return p, false
		}
		var d streamDescriptor
		d.ID = stream.ID(data[off])
		d.Kind = stream.Kind(data[off+1])
		copy(d.Codec[:], data[off+2:off+6])
		d.FrameDurationMS = data[off+6]
		p.Streams = append(p.Streams, d)
		off += 7
	}
	return p, true
}

// handleInboundDatagram runs on the scheduler goroutine. It decrypts the
// envelope, parses the header, applies the §8 duplicate/stale-seq policy,
// and dispatches by packet type.
func (c *Controller) handleInboundDatagram(pkt transport.InboundPacket) {
	c.onPacket(pkt.Addr, pkt.Data)
}

// onPacket is the decoding/dispatch core, split out so tests can drive it
// directly with a synthetic address and payload.
func (c *Controller) onPacket(addr net.Addr, data []byte) {
	logger := logrus.WithFields(logrus.Fields{"function": "Controller.onPacket", "package": "call"})

	if resp, err := transport.DecodePeerInfoResponse(data); err == nil {
		c.handleReflectorReply(addr, resp)
		return
	}

	plain, err := crypto.ReadEnvelope(c.envelopeVersion, c.encryptionKey[:], c.isOutgoing, false, data)
	if err != nil && c.envelopeVersion == crypto.EnvelopeV1 {
		// Tolerate a peer that has already upgraded to v2 before our
		// INIT_ACK has been processed.
		if alt, altErr := crypto.ReadEnvelope(crypto.EnvelopeV2, c.encryptionKey[:], c.isOutgoing, false, data); altErr == nil {
			plain, err = alt, nil
		}
	}
	if err != nil {
		if c.metrics != nil {
			c.metrics.PacketsDropped.Inc()
		}
		logger.WithError(err).Debug("dropping undecryptable packet")
		return
	}

	header, err := wire.DecodeShort(plain)
	if err != nil {
		if c.metrics != nil {
			c.metrics.PacketsDropped.Inc()
		}
		logger.WithError(err).Debug("dropping unparseable packet")
		return
	}

	if wire.SeqGT(c.lastRemoteSeq-128, header.Seq) {
		if c.metrics != nil {
			c.metrics.PacketsDropped.Inc()
		}
		return
	}
	if c.recentIncomingSeqs[header.Seq] {
		if c.metrics != nil {
			c.metrics.PacketsDropped.Inc()
		}
		return
	}
	c.recentIncomingSeqs[header.Seq] = true
	if len(c.recentIncomingSeqs) > c.cfg.RecentSeqCapacity {
		c.pruneIncomingSeqs()
	}
	if wire.SeqGT(header.Seq, c.lastRemoteSeq) {
		c.lastRemoteSeq = header.Seq
	}

	c.extras.AckThrough(header.LastRemoteSeq)
	c.ackOutgoing(header.LastRemoteSeq, header.AckBitmap)
	c.handleIncomingExtras(header)

	if c.metrics != nil {
		c.metrics.PacketsReceived.Inc()
		c.metrics.BytesReceived.Add(float64(len(data)))
	}

	switch header.Type {
	case wire.PacketInit:
		c.handleInit(addr, header)
	case wire.PacketInitAck:
		c.handleInitAck(addr, header)
	case wire.PacketPing:
		c.handlePing(addr, header)
	case wire.PacketPong:
		c.handlePong(addr, header)
	case wire.PacketStreamData, wire.PacketStreamDataX2, wire.PacketStreamDataX3:
		c.handleStreamData(header)
	case wire.PacketStreamEC:
		c.handleStreamEC(header)
	default:
		logger.WithField("type", header.Type).Debug("unhandled packet type")
	}
}

// pruneIncomingSeqs runs once the dedup table outgrows its configured
// capacity and drops only the entries RecentSeqCapacity or more behind
// last_remote_seq; losing those is safe, the stale-seq check above already
// rejects anything far enough behind last_remote_seq.
func (c *Controller) pruneIncomingSeqs() {
	floor := c.lastRemoteSeq - uint32(c.cfg.RecentSeqCapacity)
	for seq := range c.recentIncomingSeqs {
		if !wire.SeqGT(seq, floor) {
			delete(c.recentIncomingSeqs, seq)
		}
	}
}

// handleInit implements the responder side of §4.2: a peer proposing a
// protocol version and codec/capability set gets an INIT_ACK back
// describing every stream this side will send it, negotiating a video
// stream in if both sides advertise it.
func (c *Controller) handleInit(addr net.Addr, h *wire.PacketHeader) {
	peer, ok := decodeInitPayload(payloadOf(h))
	if !ok {
		return
	}
	if ourProtocolVersion < int(peer.MinVersion) || int(peer.OurVersion) < minProtocolVersion {
		c.fail(ErrorIncompatible)
		return
	}
	c.peerVersion = int(peer.OurVersion)
	c.negotiateEnvelopeVersion()

	if codec, ok := c.negotiateVideoCodec(peer.Capabilities, peer.VideoDecoders); ok {
		c.ensureStream(videoStreamID, stream.Video, codec, 0)
	}

	ack := initAckPayload{OurVersion: ourProtocolVersion, MinVersion: minProtocolVersion}
	for id, s := range c.streams {
		ack.Streams = append(ack.Streams, streamDescriptor{
			ID: id, Kind: s.Kind, Codec: s.Codec, FrameDurationMS: byte(s.FrameDurationMS),
		})
	}
	_ = c.sendRaw(addr, wire.PacketInitAck, encodeInitAckPayload(ack))

	if c.state == WaitInit {
		c.setState(WaitInitAck)
	}
}

// handleInitAck implements the initiator side: once a compatible INIT_ACK
// arrives it instantiates every stream the peer described (per §3's Stream
// lifecycle note), then cancels the init timeout/probe and establishes.
func (c *Controller) handleInitAck(addr net.Addr, h *wire.PacketHeader) {
	ack, ok := decodeInitAckPayload(payloadOf(h))
	if !ok {
		return
	}
	if ourProtocolVersion < int(ack.MinVersion) || int(ack.OurVersion) < minProtocolVersion {
		c.fail(ErrorIncompatible)
		return
	}
	c.peerVersion = int(ack.OurVersion)
	c.negotiateEnvelopeVersion()

	for _, d := range ack.Streams {
		c.ensureStream(d.ID, d.Kind, d.Codec, int(d.FrameDurationMS))
	}

	c.sched.Cancel(c.initTimeoutID)
	c.sched.Cancel(c.probeID)
	c.setState(Established)
}

// negotiateEnvelopeVersion upgrades to the hardened v2 envelope once both
// sides have announced protocol version >= 5, per §4.1.
func (c *Controller) negotiateEnvelopeVersion() {
	if c.peerVersion >= 5 && ourProtocolVersion >= 5 {
		c.envelopeVersion = crypto.EnvelopeV2
	}
}

func (c *Controller) handlePing(addr net.Addr, h *wire.PacketHeader) {
	pong := make([]byte, 4)
	binary.LittleEndian.PutUint32(pong, h.Seq)
	_ = c.sendRaw(addr, wire.PacketPong, pong)
}

// handlePong matches an inbound PONG against the pinged seq it echoes back
// in its payload (not the PONG packet's own header seq), per §4.3: "PONG
// carries the pinged seq, which the sender uses to update RTT history."
func (c *Controller) handlePong(addr net.Addr, h *wire.PacketHeader) {
	payload := payloadOf(h)
	if len(payload) < 4 {
		return
	}
	pingedSeq := binary.LittleEndian.Uint32(payload)

	c.endpointsMu.RLock()
	defer c.endpointsMu.RUnlock()
	for _, e := range c.endpoints.All() {
		if sameAddr(e.UDPAddr(), addr) {
			if rtt, ok := e.RecordPong(pingedSeq); ok {
				c.currentRTT = rtt
				if c.metrics != nil {
					c.metrics.CurrentRTT.Set(rtt.Seconds())
				}
			}
			return
		}
	}
}

// handleReflectorReply matches a reflector's udpReflectorPeerInfo pong
// against the query id recorded when the self-info ping went out, folding
// the RTT into the UDP availability probe's per-endpoint pong count, per
// §4.3's UDP availability probe.
func (c *Controller) handleReflectorReply(addr net.Addr, resp *transport.PeerInfoResponse) {
	c.endpointsMu.RLock()
	defer c.endpointsMu.RUnlock()
	for _, e := range c.endpoints.All() {
		if sameAddr(e.UDPAddr(), addr) {
			if rtt, ok := e.RecordPong(uint32(resp.QueryID)); ok {
				c.currentRTT = rtt
				if c.metrics != nil {
					c.metrics.CurrentRTT.Set(rtt.Seconds())
				}
			}
			return
		}
	}
}

func (c *Controller) handleStreamData(h *wire.PacketHeader) {
	c.dispatchStreamData(h, payloadOf(h))
}

func (c *Controller) handleStreamEC(h *wire.PacketHeader) {
	c.dispatchStreamEC(payloadOf(h))
}

// handleIncomingExtras dispatches the piggybacked extras of §4.4 that carry
// out-of-band signaling rather than the packet's own payload: a peer asking
// to upgrade to a group call, or a group session key being handed over.
func (c *Controller) handleIncomingExtras(h *wire.PacketHeader) {
	for _, e := range h.Extras {
		switch e.Type {
		case ExtraRequestGroup:
			if c.callbacks.UpgradeRequested != nil {
				c.callbacks.UpgradeRequested()
			}
		case ExtraGroupCallKey:
			if c.callbacks.GroupKeyReceived != nil {
				c.callbacks.GroupKeyReceived(e.Payload)
			}
		}
	}
}

func payloadOf(h *wire.PacketHeader) []byte {
	// INIT/INIT_ACK payloads are carried as the sole extra of type 0 by
	// this module's framing convention.
	for _, e := range h.Extras {
		if e.Type == 0 {
			return e.Payload
		}
	}
	return nil
}

func sameAddr(a *net.UDPAddr, b net.Addr) bool {
	ub, ok := b.(*net.UDPAddr)
	if !ok {
		return false
	}
	return a.IP.Equal(ub.IP) && a.Port == ub.Port
}

// sendRaw assembles a header with no caller-visible ack/extras bookkeeping
// and sends it immediately; used for handshake and keepalive replies that
// do not need reliable retransmission.
func (c *Controller) sendRaw(addr net.Addr, typ wire.PacketType, payload []byte) error {
	header := &wire.PacketHeader{
		Type:          typ,
		LastRemoteSeq: c.lastRemoteSeq,
		AckBitmap:     c.buildAckBitmap(),
		Seq:           c.seqCounter.Next(),
		Extras:        []wire.Extra{{Type: 0, Payload: payload}},
	}
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

// writeEnvelope encrypts a header-and-payload buffer under the
// controller's negotiated envelope version and direction.
func (c *Controller) writeEnvelope(plain []byte) ([]byte, error) {
	return crypto.WriteEnvelope(c.envelopeVersion, c.encryptionKey[:], c.isOutgoing, false, plain)
}
