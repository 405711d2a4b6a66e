package screamcc

import (
	"time"

	"github.com/opd-ai/voipcore/config"
)

// mssBytes is the maximum segment size used in the steady-state cwnd gain
// term, matching typical video fragment sizing (§4.4's ~1024-byte
// fragments).
const mssBytes = 1024

const gain = 1.0
const preCongestionGuard = 0.1
const txQueueSizeFactor = 0.1
const qdelayTrendAlpha = 0.1

// Controller is the video congestion controller of §4.7. It is owned
// exclusively by the scheduler.
type Controller struct {
	cfg *config.ServerConfig

	qdelayTarget float64 // seconds, clamped to [min, max]
	fastIncrease bool

	cwndBytes     int
	targetBitrate int // bps

	qdelayTrend    float64
	qdelayTrendMem float64

	lastUpdate time.Time

	maxBytesInFlight int
	currentMediaRate float64
	mediaRateMedian  float64
}

// New creates a Controller with the bounds from cfg.
func New(cfg *config.ServerConfig) *Controller {
	return &Controller{
		cfg:           cfg,
		qdelayTarget:  cfg.ScreamQdelayTargetMin,
		cwndBytes:     cfg.ScreamMinCwndBytes,
		targetBitrate: cfg.ScreamMinBitrateBps,
		fastIncrease:  true,
	}
}

// CwndBytes returns the current congestion window.
func (c *Controller) CwndBytes() int { return c.cwndBytes }

// TargetBitrate returns the current target sender bitrate in bits/second.
func (c *Controller) TargetBitrate() int { return c.targetBitrate }

// SetBytesInFlight records the current and maximum-observed bytes in
// flight, used to clamp cwnd growth.
func (c *Controller) SetBytesInFlight(current, max int) {
	if max > c.maxBytesInFlight {
		c.maxBytesInFlight = max
	}
	_ = current
}

// SetMediaRate records the encoder's current and rolling-median output
// rate, used as an upper bound when recomputing the target bitrate.
func (c *Controller) SetMediaRate(current, median float64) {
	c.currentMediaRate = current
	c.mediaRateMedian = median
}

// OnAck processes one received acknowledgment: bytesNewlyAcked is the
// payload size just confirmed delivered, qdelayFraction is the observed
// queueing delay as a fraction of qdelayTarget.
func (c *Controller) OnAck(bytesNewlyAcked int, qdelayFraction float64) {
	c.qdelayTrend = (1-qdelayTrendAlpha)*c.qdelayTrend + qdelayTrendAlpha*qdelayFraction
	c.qdelayTrendMem = 0.9*c.qdelayTrendMem + 0.1*c.qdelayTrend

	offTarget := 1.0 - c.qdelayTrend
	if c.fastIncrease {
		c.cwndBytes += bytesNewlyAcked
	} else {
		delta := gain * offTarget * float64(bytesNewlyAcked) * mssBytes / float64(c.cwndBytes)
		c.cwndBytes += int(delta)
	}
	c.clampCwnd()

	if c.qdelayTrend > 0.5 {
		c.fastIncrease = false
	}

	now := time.Now()
	if c.lastUpdate.IsZero() || now.Sub(c.lastUpdate) >= c.cfg.ScreamUpdateInterval {
		c.recomputeTargetBitrate()
		c.lastUpdate = now
	}
}

// OnLoss multiplies the target bitrate by 0.9 (§4.7) on each call and
// leaves fast-increase mode.
func (c *Controller) OnLoss() {
	c.targetBitrate = int(float64(c.targetBitrate) * 0.9)
	c.fastIncrease = false
	c.clampBitrate()
}

func (c *Controller) clampCwnd() {
	if c.cwndBytes < c.cfg.ScreamMinCwndBytes {
		c.cwndBytes = c.cfg.ScreamMinCwndBytes
	}
	if c.maxBytesInFlight > 0 {
		ceiling := int(float64(c.maxBytesInFlight) * 1.1)
		if c.cwndBytes > ceiling {
			c.cwndBytes = ceiling
		}
	}
}

func (c *Controller) clampBitrate() {
	if c.targetBitrate < c.cfg.ScreamMinBitrateBps {
		c.targetBitrate = c.cfg.ScreamMinBitrateBps
	}
	if c.targetBitrate > c.cfg.ScreamMaxBitrateBps {
		c.targetBitrate = c.cfg.ScreamMaxBitrateBps
	}
}

func (c *Controller) recomputeTargetBitrate() {
	current := float64(c.targetBitrate)
	var next float64

	if c.fastIncrease {
		next = current * 1.05
	} else {
		next = current*(1-preCongestionGuard*c.qdelayTrend) - txQueueSizeFactor*float64(c.maxBytesInFlight)
	}

	bound := current
	if c.currentMediaRate > bound {
		bound = c.currentMediaRate
	}
	if c.mediaRateMedian > bound {
		bound = c.mediaRateMedian
	}
	bound *= 2 - c.qdelayTrendMem
	if next > bound {
		next = bound
	}

	c.targetBitrate = int(next)
	c.clampBitrate()
}
