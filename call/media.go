package call

import (
	"github.com/opd-ai/voipcore/jitter"
	"github.com/opd-ai/voipcore/reassembly"
	"github.com/opd-ai/voipcore/stream"
	"github.com/opd-ai/voipcore/wire"
	"github.com/sirupsen/logrus"
)

const audioStreamID = 1

// HandleAudioInput accepts one captured PCM frame from the application,
// encodes it, and sends it through SendOrEnqueuePacket, per §6's
// HandleAudioInput entry point. There is no send queue: a frame that cannot
// be sent is dropped and counted in unsentStreamPackets. Each call advances
// the outgoing audio timestamp by the audio stream's configured frame
// duration (the default stream created in Start uses 60ms).
func (c *Controller) HandleAudioInput(pcm []int16) error {
	logger := logrus.WithFields(logrus.Fields{"function": "Controller.HandleAudioInput", "package": "call"})

	s, ok := c.streams[audioStreamID]
	if !ok || s.Paused || !s.Enabled {
		return nil
	}
	if c.state != Established && c.state != Reconnecting {
		return nil
	}

	payload := c.audioCodec.EncodeFrame(pcm)
	frame := &wire.StreamDataFrame{
		StreamID:  audioStreamID,
		Timestamp: c.audioTimestampOut,
		Payload:   payload,
	}
	encoded, err := wire.EncodeStreamData(frame)
	if err != nil {
		logger.WithError(err).Error("failed to encode audio frame")
		return err
	}
	c.audioTimestampOut += uint32(s.FrameDurationMS)

	if c.unsentStreamPackets >= c.cfg.MaxUnsentStreamPackets {
		if c.metrics != nil {
			c.metrics.PacketsDropped.Inc()
		}
		return nil
	}

	err = c.SendOrEnqueuePacket(PendingOutgoingPacket{
		Type:     wire.PacketStreamData,
		Payload:  encoded,
		StreamID: audioStreamID,
	})
	if err != nil {
		c.unsentStreamPackets++
	}
	return err
}

// HandleVideoOutput accepts one encoded video frame from the application,
// splitting it into MaxVideoFragmentPayload-sized fragments (§4.4) and
// grouping every VideoParityFECGroupSize frames into a STREAM_EC parity
// packet (§8 S5), per §6's HandleVideoOutput entry point.
func (c *Controller) HandleVideoOutput(id stream.ID, timestamp uint32, frameData []byte, keyframe bool) error {
	logger := logrus.WithFields(logrus.Fields{"function": "Controller.HandleVideoOutput", "package": "call"})

	s, ok := c.streams[id]
	if !ok || s.Paused || !s.Enabled {
		return nil
	}
	if c.state != Established && c.state != Reconnecting {
		return nil
	}

	maxPayload := c.cfg.MaxVideoFragmentPayload
	fragCount := (len(frameData) + maxPayload - 1) / maxPayload
	if fragCount == 0 {
		fragCount = 1
	}

	for i := 0; i < fragCount; i++ {
		start := i * maxPayload
		end := start + maxPayload
		if end > len(frameData) {
			end = len(frameData)
		}
		f := &wire.StreamDataFrame{
			StreamID:      byte(id),
			Timestamp:     timestamp,
			Keyframe:      keyframe,
			Fragmented:    fragCount > 1,
			FragmentIndex: byte(i),
			FragmentCount: byte(fragCount),
			Payload:       frameData[start:end],
		}
		encoded, err := wire.EncodeStreamData(f)
		if err != nil {
			logger.WithError(err).Error("failed to encode video fragment")
			return err
		}
		if err := c.SendOrEnqueuePacket(PendingOutgoingPacket{Type: wire.PacketStreamData, Payload: encoded, StreamID: id}); err != nil {
			return err
		}
	}

	c.accumulateParityFEC(id, timestamp, frameData)
	return nil
}

// accumulateParityFEC buffers whole (unfragmented) frame payloads per
// stream and emits a STREAM_EC parity packet once VideoParityFECGroupSize
// frames have accumulated, per §4.4/§8 invariant 3.
func (c *Controller) accumulateParityFEC(id stream.ID, timestamp uint32, frameData []byte) {
	if c.videoFrameGroups == nil {
		c.videoFrameGroups = make(map[stream.ID][][]byte)
	}
	group := append(c.videoFrameGroups[id], frameData)
	if len(group) < c.cfg.VideoParityFECGroupSize {
		c.videoFrameGroups[id] = group
		return
	}
	c.videoFrameGroups[id] = nil

	parity := reassembly.EncodeParityFEC(group)
	ecFrame := &wire.StreamDataFrame{
		StreamID:  byte(id),
		Timestamp: timestamp,
		ExtraFEC:  false,
		Payload:   parity,
	}
	encoded, err := wire.EncodeStreamData(ecFrame)
	if err != nil {
		return
	}
	_ = c.SendOrEnqueuePacket(PendingOutgoingPacket{Type: wire.PacketStreamEC, Payload: encoded, StreamID: id})
}

// dispatchStreamData (called by handleStreamData in handshake.go) decodes
// the concatenated frames in a STREAM_DATA/_X2/_X3 payload and feeds each
// one into its stream's jitter buffer.
func (c *Controller) dispatchStreamData(h *wire.PacketHeader, raw []byte) {
	count := 1
	switch h.Type {
	case wire.PacketStreamDataX2:
		count = 2
	case wire.PacketStreamDataX3:
		count = 3
	}

	frames, err := wire.DecodeConcatenated(raw, count)
	if err != nil {
		if c.metrics != nil {
			c.metrics.PacketsDropped.Inc()
		}
		return
	}

	for _, f := range frames {
		s, ok := c.streams[stream.ID(f.StreamID)]
		if !ok || s.JitterBuffer == nil {
			continue
		}
		s.JitterBuffer.HandleInput(f.Timestamp, f.Payload, false)
	}
}

// dispatchStreamEC decodes a STREAM_EC payload and offers its frame to the
// owning stream's jitter buffer as an EC candidate — per §4.3's rule that
// EC data never overwrites a slot already filled by real STREAM_DATA.
func (c *Controller) dispatchStreamEC(raw []byte) {
	f, _, err := wire.DecodeStreamData(raw)
	if err != nil {
		if c.metrics != nil {
			c.metrics.PacketsDropped.Inc()
		}
		return
	}
	s, ok := c.streams[stream.ID(f.StreamID)]
	if !ok || s.JitterBuffer == nil {
		return
	}
	s.JitterBuffer.HandleInput(f.Timestamp, f.Payload, true)
}

// tickAdjustDelay is intended to run on a 500ms scheduler interval (set up
// by Start) to keep every stream's jitter delay tracking the arrival
// statistics described in §4.3's adaptive-delay design note.
func (c *Controller) tickAdjustDelay() {
	for _, s := range c.streams {
		if s.JitterBuffer != nil {
			s.JitterBuffer.AdjustDelay()
		}
	}
}

// tickDecodeAudio runs on the audio stream's frame-duration interval (set up
// by Start) pulling the next due slot out of the jitter buffer, decoding it,
// and handing PCM to the application callback, per §4.5/§6's AudioOutput
// entry point. A sustained-loss resync is surfaced as a metric and a log
// line rather than silently swallowed.
func (c *Controller) tickDecodeAudio() {
	s, ok := c.streams[audioStreamID]
	if !ok || s.JitterBuffer == nil {
		return
	}

	payload, outcome, isEC := s.JitterBuffer.HandleOutput(0)

	if s.JitterBuffer.WasReset() {
		if c.metrics != nil {
			c.metrics.JitterResets.Inc()
		}
		logrus.WithFields(logrus.Fields{"function": "Controller.tickDecodeAudio", "package": "call"}).
			Warn("jitter buffer resynced after sustained loss")
	}
	if c.metrics != nil {
		c.metrics.JitterBufferDepth.Set(float64(s.JitterBuffer.Delay()))
	}

	if outcome == jitter.MISSING {
		return
	}
	_ = isEC

	pcm, err := c.audioCodec.DecodeFrame(payload)
	if err != nil {
		return
	}
	if c.callbacks.AudioOutput != nil {
		c.callbacks.AudioOutput(pcm)
	}
}
