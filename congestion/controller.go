package congestion

import (
	"time"

	"github.com/opd-ai/voipcore/config"
	"golang.org/x/time/rate"
)

// Action is the bandwidth-control verdict GetBandwidthControlAction
// surfaces to the bitrate policy (§4.8).
type Action int

const (
	ActionNone Action = iota
	ActionIncrease
	ActionDecrease
)

type inflightEntry struct {
	seq      uint32
	size     int
	sendTime time.Time
	inUse    bool
}

// Controller is the audio congestion controller of §4.6. It is owned
// exclusively by the scheduler; all methods are invoked from there.
type Controller struct {
	cfg *config.ServerConfig

	ring      []inflightEntry
	rttHistory      []time.Duration
	inflightHistory []int

	rollingLossCount int

	pendingRTT   []time.Duration
	actionLimiter *rate.Limiter
}

// New creates a Controller sized per cfg's ring and history capacities.
func New(cfg *config.ServerConfig) *Controller {
	return &Controller{
		cfg:           cfg,
		ring:          make([]inflightEntry, cfg.CongestionInflightSlots),
		actionLimiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

// PacketSent records an outbound packet. If no ring slot is free, the
// oldest in-use slot is evicted and counted as a loss, matching the
// bounded-memory behavior described in §4.6.
func (c *Controller) PacketSent(seq uint32, size int) {
	for i := range c.ring {
		if !c.ring[i].inUse {
			c.ring[i] = inflightEntry{seq: seq, size: size, sendTime: time.Now(), inUse: true}
			return
		}
	}

	oldest := 0
	for i := range c.ring {
		if c.ring[i].sendTime.Before(c.ring[oldest].sendTime) {
			oldest = i
		}
	}
	c.rollingLossCount++
	c.ring[oldest] = inflightEntry{seq: seq, size: size, sendTime: time.Now(), inUse: true}
}

// PacketAcknowledged frees the ring slot for seq and accumulates its RTT
// sample, to be committed into history on the next Tick.
func (c *Controller) PacketAcknowledged(seq uint32) {
	for i := range c.ring {
		if c.ring[i].inUse && c.ring[i].seq == seq {
			c.pendingRTT = append(c.pendingRTT, time.Since(c.ring[i].sendTime))
			c.ring[i].inUse = false
			return
		}
	}
}

// PacketLost frees the ring slot for seq and bumps the loss counter.
func (c *Controller) PacketLost(seq uint32) {
	for i := range c.ring {
		if c.ring[i].inUse && c.ring[i].seq == seq {
			c.ring[i].inUse = false
			c.rollingLossCount++
			return
		}
	}
}

// Tick runs the 1 Hz maintenance pass: commit the accumulated RTT average
// to history, expire stale inflight entries as losses, and push the current
// inflight size into history.
func (c *Controller) Tick() {
	if len(c.pendingRTT) > 0 {
		var sum time.Duration
		for _, d := range c.pendingRTT {
			sum += d
		}
		c.pushRTT(sum / time.Duration(len(c.pendingRTT)))
		c.pendingRTT = c.pendingRTT[:0]
	}

	now := time.Now()
	for i := range c.ring {
		if c.ring[i].inUse && now.Sub(c.ring[i].sendTime) > c.cfg.CongestionExpireAfter {
			c.ring[i].inUse = false
			c.rollingLossCount++
		}
	}

	c.pushInflight(c.InflightBytes())
}

func (c *Controller) pushRTT(d time.Duration) {
	c.rttHistory = append(c.rttHistory, d)
	if len(c.rttHistory) > c.cfg.CongestionRTTHistory {
		c.rttHistory = c.rttHistory[1:]
	}
}

func (c *Controller) pushInflight(size int) {
	c.inflightHistory = append(c.inflightHistory, size)
	if len(c.inflightHistory) > c.cfg.CongestionInflightHistory {
		c.inflightHistory = c.inflightHistory[1:]
	}
}

// InflightBytes returns the sum of sizes of still-tracked, live ring
// entries. It is never negative, satisfying §8 invariant 5.
func (c *Controller) InflightBytes() int {
	total := 0
	for i := range c.ring {
		if c.ring[i].inUse {
			total += c.ring[i].size
		}
	}
	return total
}

// GetBandwidthControlAction compares the current inflight average against
// cwnd ± cwnd/10, at most once per second.
func (c *Controller) GetBandwidthControlAction() Action {
	if !c.actionLimiter.Allow() {
		return ActionNone
	}

	avg := c.averageInflight()
	cwnd := c.cfg.CongestionCwndBytes
	margin := cwnd / 10

	switch {
	case avg < cwnd-margin:
		return ActionIncrease
	case avg > cwnd+margin:
		return ActionDecrease
	default:
		return ActionNone
	}
}

func (c *Controller) averageInflight() int {
	if len(c.inflightHistory) == 0 {
		return c.InflightBytes()
	}
	sum := 0
	for _, v := range c.inflightHistory {
		sum += v
	}
	return sum / len(c.inflightHistory)
}
