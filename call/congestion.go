package call

import (
	"time"

	"github.com/opd-ai/voipcore/bitrate"
	"github.com/opd-ai/voipcore/endpoint"
	"github.com/opd-ai/voipcore/signalbars"
)

// tickCongestion runs the audio congestion controller's 1 Hz maintenance
// pass of §4.6: age out unacked packets old enough to count as lost, commit
// the tick's RTT/inflight samples, and publish the inflight gauge.
func (c *Controller) tickCongestion() {
	c.ageOutgoingLosses()
	c.congestionCtl.Tick()
	if c.metrics != nil {
		c.metrics.CongestionCwnd.Set(float64(c.congestionCtl.InflightBytes()))
	}
}

// tickBitrateAdjust runs the bitrate/mode adaptation policy of §4.8 on its
// 300 ms tick: the congestion controller's bandwidth verdict and the
// current send-loss rate drive the policy, and a shitty-internet-mode
// transition is piggybacked onto the audio stream via STREAM_FLAGS.
func (c *Controller) tickBitrateAdjust() {
	action := c.congestionCtl.GetBandwidthControlAction()
	lossRate := c.sendLossRate()
	c.bitrateState.Adjust(action, lossRate)

	if c.bitrateState.ShittyInternetMode != c.prevShittyMode {
		c.prevShittyMode = c.bitrateState.ShittyInternetMode
		c.applyStreamFlags()
	}
}

// applyStreamFlags pushes the audio stream's Paused/ExtraEC state (as
// decided by the bitrate policy) onto the wire through the piggybacked
// STREAM_FLAGS extra, per §4.4's extras mechanism.
func (c *Controller) applyStreamFlags() {
	s, ok := c.streams[audioStreamID]
	if !ok {
		return
	}
	s.ExtraEC = c.bitrateState.ExtraECLevel != bitrate.ExtraECOff

	var flags byte
	if s.Paused {
		flags |= 1 << 0
	}
	if s.ExtraEC {
		flags |= 1 << 1
	}
	flags |= byte(c.bitrateState.ExtraECLevel) << 2

	c.extras.Set(ExtraStreamFlags, []byte{byte(audioStreamID), flags})
}

// tickSignalBars runs the 1 Hz signal-bar scorer of §4.9: it turns the
// jitter buffers' cumulative late-packet counters into a per-second rate,
// samples the indicator, and publishes the resulting bar count.
func (c *Controller) tickSignalBars() {
	now := time.Now()

	lateTotal := 0
	for _, s := range c.streams {
		if s.JitterBuffer != nil {
			lateTotal += s.JitterBuffer.LateCount()
		}
	}

	var lateRate float64
	if !c.prevLateTime.IsZero() {
		if elapsed := now.Sub(c.prevLateTime).Seconds(); elapsed > 0 {
			lateRate = float64(lateTotal-c.prevLateTotal) / elapsed
			if lateRate < 0 {
				lateRate = 0
			}
		}
	}
	c.prevLateTotal = lateTotal
	c.prevLateTime = now

	isTCPRelay := false
	c.endpointsMu.RLock()
	if cur, ok := c.endpoints.Current(); ok {
		isTCPRelay = cur.Type == endpoint.TCPRelay
	}
	c.endpointsMu.RUnlock()

	bars := c.signalIndicator.Sample(signalbars.Inputs{
		ReconnectingOrWaitingForAcks: c.state == Reconnecting,
		CurrentEndpointIsTCPRelay:    isTCPRelay,
		SendLossRate:                 c.sendLossRate(),
		JitterLateCountAverage:       lateRate,
	})
	if c.metrics != nil {
		c.metrics.SignalBars.Set(float64(bars))
	}
}

// tickVideoCC runs the SCReAM video congestion controller's update tick of
// §4.7: it recomputes the video stream's unacked-byte high-water mark and
// publishes the resulting target bitrate.
func (c *Controller) tickVideoCC() {
	if _, ok := c.streams[videoStreamID]; !ok {
		return
	}

	current := 0
	for i := range c.recentOutgoing {
		p := &c.recentOutgoing[i]
		if p.StreamID == videoStreamID && p.AckTime.IsZero() && !p.Lost {
			current += p.Size
		}
	}
	if current > c.maxVideoInflight {
		c.maxVideoInflight = current
	}
	c.videoCC.SetBytesInFlight(current, c.maxVideoInflight)

	if c.metrics != nil {
		c.metrics.ScreamTargetBitrate.Set(float64(c.videoCC.TargetBitrate()))
	}
}
