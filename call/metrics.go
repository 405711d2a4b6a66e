package call

import "github.com/prometheus/client_golang/prometheus"

// Metrics exposes the call engine's Prometheus surface: one registry-ready
// set of collectors per Controller, so multiple concurrent calls in the
// same process (e.g. under cmd/callctl) don't collide on label-less
// metrics.
type Metrics struct {
	PacketsSent     prometheus.Counter
	PacketsReceived prometheus.Counter
	PacketsDropped  prometheus.Counter
	BytesSent       prometheus.Counter
	BytesReceived   prometheus.Counter
	CurrentRTT      prometheus.Gauge
	SignalBars      prometheus.Gauge
	StateTransitions *prometheus.CounterVec
	JitterResets    prometheus.Counter
	CongestionCwnd      prometheus.Gauge
	ScreamTargetBitrate prometheus.Gauge
	JitterBufferDepth   prometheus.Gauge
}

// NewMetrics builds a Metrics bound to the given call id label.
func NewMetrics(callID string) *Metrics {
	labels := prometheus.Labels{"call_id": callID}
	return &Metrics{
		PacketsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "voipcore_packets_sent_total",
			Help:        "Total packets sent on this call.",
			ConstLabels: labels,
		}),
		PacketsReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "voipcore_packets_received_total",
			Help:        "Total packets received on this call.",
			ConstLabels: labels,
		}),
		PacketsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "voipcore_packets_dropped_total",
			Help:        "Total packets dropped (decrypt failure, duplicate, parse error).",
			ConstLabels: labels,
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "voipcore_bytes_sent_total",
			Help:        "Total bytes sent on this call.",
			ConstLabels: labels,
		}),
		BytesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "voipcore_bytes_received_total",
			Help:        "Total bytes received on this call.",
			ConstLabels: labels,
		}),
		CurrentRTT: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "voipcore_current_rtt_seconds",
			Help:        "Most recent ping/pong RTT sample from any endpoint, in seconds.",
			ConstLabels: labels,
		}),
		SignalBars: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "voipcore_signal_bars",
			Help:        "Current signal-bar indicator value (1-4).",
			ConstLabels: labels,
		}),
		StateTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "voipcore_state_transitions_total",
			Help:        "Count of controller state transitions by target state.",
			ConstLabels: labels,
		}, []string{"state"}),
		JitterResets: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "voipcore_jitter_resets_total",
			Help:        "Total jitter buffer resyncs after sustained loss.",
			ConstLabels: labels,
		}),
		CongestionCwnd: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "voipcore_congestion_cwnd_bytes",
			Help:        "Audio congestion controller's current bytes in flight.",
			ConstLabels: labels,
		}),
		ScreamTargetBitrate: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "voipcore_scream_target_bitrate_bps",
			Help:        "SCReAM video congestion controller's current target sender bitrate.",
			ConstLabels: labels,
		}),
		JitterBufferDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "voipcore_jitter_buffer_depth_slots",
			Help:        "Audio stream jitter buffer's current adaptive delay, in step units.",
			ConstLabels: labels,
		}),
	}
}

// Register adds every collector to reg.
func (m *Metrics) Register(reg *prometheus.Registry) error {
	collectors := []prometheus.Collector{
		m.PacketsSent, m.PacketsReceived, m.PacketsDropped,
		m.BytesSent, m.BytesReceived, m.CurrentRTT, m.SignalBars,
		m.StateTransitions, m.JitterResets,
		m.CongestionCwnd, m.ScreamTargetBitrate, m.JitterBufferDepth,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
