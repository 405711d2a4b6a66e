// Package config carries every tunable named in §4 as explicit,
// constructor-injected values rather than a process-wide singleton (per the
// "Global state" design note): the controller takes a *ServerConfig at
// construction, and tests substitute their own.
package config

import "time"

// ServerConfig holds every timeout, threshold, and table the call engine
// consults outside its core algorithms.
type ServerConfig struct {
	// Handshake and liveness timeouts (§4.2, §4.3, §5).
	InitTimeout               time.Duration
	RecvTimeout               time.Duration
	ReconnectingStateTimeout  time.Duration
	UDPPingInterval           time.Duration
	RelayPingInterval         time.Duration
	RelayPingEligibleAfter    time.Duration

	// Endpoint switching hysteresis (§4.3).
	RelaySwitchThreshold        float64
	P2PToRelaySwitchThreshold   float64
	RelayToP2PSwitchThreshold   float64

	// Outgoing scheduling (§4.4).
	MaxUnsentStreamPackets int
	ExtraCapBytes          int
	RecentPacketCapacity   int
	RecentSeqCapacity      int

	// Jitter buffer defaults by frame duration in ms (§4.5, boundary
	// behaviors). Keyed by frame_duration so 20/40/60 ms audio and any
	// larger synthetic duration used in tests share one table, per the
	// design note treating overlapping thresholds as a single indexed table.
	JitterParamsByFrameDuration map[int]JitterParams

	// Audio congestion controller (§4.6).
	CongestionCwndBytes      int
	CongestionInflightSlots  int
	CongestionRTTHistory     int
	CongestionInflightHistory int
	CongestionTickInterval   time.Duration
	CongestionExpireAfter    time.Duration

	// SCReAM video controller (§4.7).
	ScreamMinCwndBytes  int
	ScreamMinBitrateBps int
	ScreamMaxBitrateBps int
	ScreamQdelayTargetMin float64
	ScreamQdelayTargetMax float64
	ScreamUpdateInterval  time.Duration

	// Bitrate and mode adaptation (§4.8).
	AudioMaxBitrate        int
	AudioMaxBitrateGPRS    int
	AudioMaxBitrateEdge    int
	AudioMaxBitrateSaving  int
	AudioInitBitrate       int
	MinAudioBitrate        int
	AudioBitrateStepIncr   int
	AudioBitrateStepDecr   int
	ShittyInternetModeLossThreshold float64
	ExtraECLevelThresholds          [3]float64 // 0.02, 0.05, 0.08

	// Signal bars (§4.9).
	SignalBarsTickInterval time.Duration

	// Bitrate adjust tick (§5 timer list).
	BitrateAdjustInterval time.Duration

	// Video fragmentation and parity FEC (§4.4 fragmentation, §8 S5 FEC).
	MaxVideoFragmentPayload int
	VideoParityFECGroupSize int
}

// JitterParams are the per-frame-duration tunables from §8's boundary
// behaviors table.
type JitterParams struct {
	MinDelay        int
	MaxDelay        int
	MaxAllowedSlots int
	LossesToReset   int
	ResyncThreshold int
}

// Defaults returns the server configuration used when no signaling-provided
// override is present, matching every default named in §4 and §8.
func Defaults() *ServerConfig {
	return &ServerConfig{
		InitTimeout:              30 * time.Second,
		RecvTimeout:              20 * time.Second,
		ReconnectingStateTimeout: 2 * time.Second,
		UDPPingInterval:          500 * time.Millisecond,
		RelayPingInterval:        2 * time.Second,
		RelayPingEligibleAfter:   10 * time.Second,

		RelaySwitchThreshold:      0.2,
		P2PToRelaySwitchThreshold: 0.2,
		RelayToP2PSwitchThreshold: 0.8,

		MaxUnsentStreamPackets: 32,
		ExtraCapBytes:          254,
		RecentPacketCapacity:   128,
		RecentSeqCapacity:      128,

		JitterParamsByFrameDuration: map[int]JitterParams{
			// §8 boundary behaviors: 60 ms uses 2/10/20; 20 ms uses 6/25/50.
			20: {MinDelay: 6, MaxDelay: 25, MaxAllowedSlots: 50, LossesToReset: 3, ResyncThreshold: 5},
			40: {MinDelay: 4, MaxDelay: 17, MaxAllowedSlots: 35, LossesToReset: 3, ResyncThreshold: 5},
			60: {MinDelay: 2, MaxDelay: 10, MaxAllowedSlots: 20, LossesToReset: 3, ResyncThreshold: 5},
		},

		CongestionCwndBytes:       1024,
		CongestionInflightSlots:   100,
		CongestionRTTHistory:      100,
		CongestionInflightHistory: 30,
		CongestionTickInterval:    1 * time.Second,
		CongestionExpireAfter:     2 * time.Second,

		ScreamMinCwndBytes:    3000,
		ScreamMinBitrateBps:   50000,
		ScreamMaxBitrateBps:   500000,
		ScreamQdelayTargetMin: 0.1,
		ScreamQdelayTargetMax: 0.4,
		ScreamUpdateInterval:  200 * time.Millisecond,

		AudioMaxBitrate:       32000,
		AudioMaxBitrateGPRS:   8000,
		AudioMaxBitrateEdge:   16000,
		AudioMaxBitrateSaving: 16000,
		AudioInitBitrate:      16000,
		MinAudioBitrate:       8000,
		AudioBitrateStepIncr:  1000,
		AudioBitrateStepDecr:  2000,
		ShittyInternetModeLossThreshold: 0.02,
		ExtraECLevelThresholds:          [3]float64{0.02, 0.05, 0.08},

		SignalBarsTickInterval: 1 * time.Second,
		BitrateAdjustInterval:  300 * time.Millisecond,

		MaxVideoFragmentPayload: 1200,
		VideoParityFECGroupSize: 3,
	}
}

// JitterParamsFor looks up the per-frame-duration table described in §8's
// boundary behaviors, falling back to the 60 ms profile's shape scaled for
// an unlisted duration is not attempted: callers must supply a duration
// present in the table or get the engine-wide default.
func (c *ServerConfig) JitterParamsFor(frameDurationMS int) JitterParams {
	if p, ok := c.JitterParamsByFrameDuration[frameDurationMS]; ok {
		return p
	}
	return JitterParams{MinDelay: 2, MaxDelay: 10, MaxAllowedSlots: 20, LossesToReset: 3, ResyncThreshold: 5}
}
