package bitrate

import (
	"testing"

	"github.com/opd-ai/voipcore/congestion"
	"github.com/opd-ai/voipcore/config"
	"github.com/stretchr/testify/assert"
)

// TestState_S6_ExtraECEscalation mirrors scenario S6: a sustained 6%
// send-loss rate should flip on shitty internet mode, pin the bitrate to
// the minimum, and select extra_ec_level 3 (between the 0.05 and 0.08
// thresholds).
func TestState_S6_ExtraECEscalation(t *testing.T) {
	cfg := config.Defaults()
	s := New(cfg)

	for i := 0; i < 10; i++ {
		s.Adjust(congestion.ActionNone, 0.06)
	}

	assert.True(t, s.ShittyInternetMode)
	assert.Equal(t, ExtraECLevel3, s.ExtraECLevel)
	assert.Equal(t, cfg.MinAudioBitrate, s.CurrentBitrate)
}

func TestState_ModeTearsDownWhenLossRecovers(t *testing.T) {
	cfg := config.Defaults()
	s := New(cfg)

	s.Adjust(congestion.ActionNone, 0.06)
	assert.True(t, s.ShittyInternetMode)

	s.Adjust(congestion.ActionNone, 0.001)
	assert.False(t, s.ShittyInternetMode)
	assert.Equal(t, ExtraECOff, s.ExtraECLevel)
}

func TestState_DecreaseActionStepsDown(t *testing.T) {
	cfg := config.Defaults()
	s := New(cfg)
	start := s.CurrentBitrate
	s.Adjust(congestion.ActionDecrease, 0.0)
	assert.Equal(t, start-cfg.AudioBitrateStepDecr, s.CurrentBitrate)
}

func TestState_IncreaseActionCappedAtProfileMax(t *testing.T) {
	cfg := config.Defaults()
	s := New(cfg)
	s.CurrentBitrate = cfg.AudioMaxBitrate
	s.Adjust(congestion.ActionIncrease, 0.0)
	assert.Equal(t, cfg.AudioMaxBitrate, s.CurrentBitrate)
}

func TestState_EdgeNetworkSuppressesShittyMode(t *testing.T) {
	cfg := config.Defaults()
	s := New(cfg)
	s.NetworkType = NetworkEdge
	s.Adjust(congestion.ActionNone, 0.5)
	assert.False(t, s.ShittyInternetMode)
}

func TestEncoderLossHint_CapsAtTwenty(t *testing.T) {
	assert.Equal(t, 20.0, EncoderLossHint(0.5))
	assert.Equal(t, 5.0, EncoderLossHint(0.05))
}
