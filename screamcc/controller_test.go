package screamcc

import (
	"testing"

	"github.com/opd-ai/voipcore/config"
	"github.com/stretchr/testify/assert"
)

func TestController_InitialValuesWithinBounds(t *testing.T) {
	cfg := config.Defaults()
	c := New(cfg)
	assert.GreaterOrEqual(t, c.CwndBytes(), cfg.ScreamMinCwndBytes)
	assert.GreaterOrEqual(t, c.TargetBitrate(), cfg.ScreamMinBitrateBps)
	assert.LessOrEqual(t, c.TargetBitrate(), cfg.ScreamMaxBitrateBps)
}

func TestController_FastIncreaseGrowsCwnd(t *testing.T) {
	cfg := config.Defaults()
	c := New(cfg)
	start := c.CwndBytes()
	c.OnAck(1000, 0.0)
	assert.Greater(t, c.CwndBytes(), start)
}

func TestController_CwndNeverBelowMin(t *testing.T) {
	cfg := config.Defaults()
	c := New(cfg)
	for i := 0; i < 50; i++ {
		c.OnAck(0, 1.0)
	}
	assert.GreaterOrEqual(t, c.CwndBytes(), cfg.ScreamMinCwndBytes)
}

func TestController_OnLossDecreasesBitrate(t *testing.T) {
	cfg := config.Defaults()
	c := New(cfg)
	c.OnAck(5000, 0.1)
	before := c.TargetBitrate()
	c.OnLoss()
	assert.LessOrEqual(t, c.TargetBitrate(), before)
}

func TestController_BitrateStaysWithinConfiguredBounds(t *testing.T) {
	cfg := config.Defaults()
	c := New(cfg)
	c.SetMediaRate(1e9, 1e9)
	for i := 0; i < 200; i++ {
		c.OnAck(10000, 0.0)
	}
	assert.LessOrEqual(t, c.TargetBitrate(), cfg.ScreamMaxBitrateBps)
}
