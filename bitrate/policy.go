package bitrate

import (
	"github.com/opd-ai/voipcore/congestion"
	"github.com/opd-ai/voipcore/config"
)

// NetworkType is the coarse connectivity class used to pick a bitrate
// ceiling (§4.8).
type NetworkType int

const (
	NetworkWifi NetworkType = iota
	NetworkCellularHigh
	NetworkCellularLow
	NetworkGPRS
	NetworkEdge
)

// ExtraECLevel is the inline-EC aggressiveness selected once shitty
// internet mode is active.
type ExtraECLevel int

const (
	ExtraECOff   ExtraECLevel = 0
	ExtraECLevel2 ExtraECLevel = 2
	ExtraECLevel3 ExtraECLevel = 3
	ExtraECLevel4 ExtraECLevel = 4
)

// State is the bitrate and mode adaptation policy's mutable state,
// recomputed on each 300 ms tick (§5 timer list).
type State struct {
	cfg *config.ServerConfig

	CurrentBitrate      int
	DataSavingRequested bool // local config or peer-advertised
	NetworkType         NetworkType

	ShittyInternetMode bool
	ExtraECLevel       ExtraECLevel
}

// New creates a State seeded at the configured initial bitrate.
func New(cfg *config.ServerConfig) *State {
	return &State{cfg: cfg, CurrentBitrate: cfg.AudioInitBitrate}
}

func (s *State) maxBitrateForProfile() int {
	switch {
	case s.DataSavingRequested:
		return s.cfg.AudioMaxBitrateSaving
	case s.NetworkType == NetworkGPRS:
		return s.cfg.AudioMaxBitrateGPRS
	case s.NetworkType == NetworkEdge:
		return s.cfg.AudioMaxBitrateEdge
	default:
		return s.cfg.AudioMaxBitrate
	}
}

// Adjust runs one policy tick: it applies the congestion action to the
// current bitrate (unless shitty internet mode pins it), then evaluates the
// send-loss rate for mode escalation/de-escalation, per §4.8.
func (s *State) Adjust(action congestion.Action, sendLossRate float64) {
	maxBitrate := s.maxBitrateForProfile()

	if !s.ShittyInternetMode {
		switch action {
		case congestion.ActionDecrease:
			s.CurrentBitrate = max(s.cfg.MinAudioBitrate, s.CurrentBitrate-s.cfg.AudioBitrateStepDecr)
		case congestion.ActionIncrease:
			s.CurrentBitrate = min(maxBitrate, s.CurrentBitrate+s.cfg.AudioBitrateStepIncr)
		}
	}

	edgeOrGPRS := s.NetworkType == NetworkEdge || s.NetworkType == NetworkGPRS
	if sendLossRate > s.cfg.ShittyInternetModeLossThreshold && !edgeOrGPRS {
		s.ShittyInternetMode = true
		s.ExtraECLevel = extraECLevelFor(sendLossRate, s.cfg.ExtraECLevelThresholds)
		s.CurrentBitrate = s.cfg.MinAudioBitrate
	} else if s.ShittyInternetMode && sendLossRate <= s.cfg.ShittyInternetModeLossThreshold {
		s.ShittyInternetMode = false
		s.ExtraECLevel = ExtraECOff
	}
}

func extraECLevelFor(lossRate float64, thresholds [3]float64) ExtraECLevel {
	switch {
	case lossRate >= thresholds[2]:
		return ExtraECLevel4
	case lossRate >= thresholds[1]:
		return ExtraECLevel3
	case lossRate >= thresholds[0]:
		return ExtraECLevel2
	default:
		return ExtraECOff
	}
}

// EncoderLossHint is the moving-average send-loss percentage handed to the
// encoder, capped at 20 per §4.8.
func EncoderLossHint(sendLossRate float64) float64 {
	pct := sendLossRate * 100
	if pct > 20 {
		return 20
	}
	if pct < 0 {
		return 0
	}
	return pct
}
