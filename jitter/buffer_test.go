package jitter

import (
	"testing"

	"github.com/opd-ai/voipcore/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuffer_InsertAndOutputHit(t *testing.T) {
	cfg := config.Defaults()
	b := New(cfg, 60)

	b.HandleInput(0, []byte("frame0"), false)
	b.HandleInput(60, []byte("frame1"), false)

	payload, outcome, _ := b.HandleOutput(0)
	require.Equal(t, OK, outcome)
	assert.Equal(t, []byte("frame0"), payload)
}

func TestBuffer_ECNeverOverwritesRealData(t *testing.T) {
	cfg := config.Defaults()
	b := New(cfg, 60)

	b.HandleInput(0, []byte("real"), false)
	b.HandleInput(0, []byte("ec-copy"), true)

	payload, outcome, isEC := b.HandleOutput(0)
	require.Equal(t, OK, outcome)
	assert.False(t, isEC)
	assert.Equal(t, []byte("real"), payload)
}

func TestBuffer_MissingWithNoNeighborReturnsMissing(t *testing.T) {
	cfg := config.Defaults()
	b := New(cfg, 60)
	b.HandleInput(0, []byte("only"), false)

	// Consume the only real slot.
	_, outcome, _ := b.HandleOutput(0)
	require.Equal(t, OK, outcome)

	// The next few ticks fall within the replacement radius of the
	// delivered slot and get a REPLACED substitute from history.
	for i := 0; i < replaceRadiusSlots; i++ {
		_, outcome, _ = b.HandleOutput(0)
		assert.Equal(t, REPLACED, outcome)
	}

	// Beyond the radius, nothing is left to substitute from.
	_, outcome, _ = b.HandleOutput(0)
	assert.Equal(t, MISSING, outcome)
}

// TestBuffer_S3_JitterLossRecovery mirrors the 100-packet drop scenario:
// indices 30, 31, 32 are never delivered to the buffer. After the packets up
// through index 59 have arrived, sixty output ticks should return OK for
// 0..29 and 33..59, and something other than OK (REPLACED, since neighbors
// at 29 and 33 remain available) for the three missing indices.
func TestBuffer_S3_JitterLossRecovery(t *testing.T) {
	cfg := config.Defaults()
	// Give the buffer enough room to hold all 60 pre-staged packets at
	// once; this test stages input before ticking output, unlike the
	// streaming producer/consumer pattern a live call would use. The reset
	// threshold sits above the three consecutive misses injected here, so
	// the buffer does not reset partway through the run.
	cfg.JitterParamsByFrameDuration[60] = config.JitterParams{MinDelay: 2, MaxDelay: 10, MaxAllowedSlots: 64, LossesToReset: 4, ResyncThreshold: 5}
	b := New(cfg, 60)

	for i := 0; i < 60; i++ {
		if i >= 30 && i <= 32 {
			continue
		}
		ts := uint32(i * 60)
		b.HandleInput(ts, []byte{byte(i)}, false)
	}

	var okCount, replacedCount, missingCount int
	for i := 0; i < 60; i++ {
		_, outcome, _ := b.HandleOutput(0)
		switch outcome {
		case OK:
			okCount++
		case REPLACED:
			replacedCount++
		case MISSING:
			missingCount++
		}
	}

	assert.Equal(t, 57, okCount)
	assert.Equal(t, 3, replacedCount+missingCount)
	assert.Equal(t, 3, b.LostSinceReset())
}

func TestBuffer_MaxAllowedSlotsEvictsOldest(t *testing.T) {
	cfg := config.Defaults()
	cfg.JitterParamsByFrameDuration[60] = config.JitterParams{MinDelay: 2, MaxDelay: 10, MaxAllowedSlots: 2, LossesToReset: 3, ResyncThreshold: 5}
	b := New(cfg, 60)

	b.HandleInput(0, []byte("a"), false)
	b.HandleInput(60, []byte("b"), false)
	b.HandleInput(120, []byte("c"), false)

	assert.LessOrEqual(t, b.ActiveSlotCount(), 2)
}

func TestBuffer_AdjustDelayStaysWithinBounds(t *testing.T) {
	cfg := config.Defaults()
	b := New(cfg, 60)
	for i := 0; i < 10; i++ {
		b.HandleInput(uint32(i*60), []byte{byte(i)}, false)
		b.AdjustDelay()
		assert.GreaterOrEqual(t, b.Delay(), cfg.JitterParamsFor(60).MinDelay)
		assert.LessOrEqual(t, b.Delay(), cfg.JitterParamsFor(60).MaxDelay)
	}
}
