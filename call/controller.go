package call

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/opd-ai/voipcore/bitrate"
	"github.com/opd-ai/voipcore/config"
	"github.com/opd-ai/voipcore/congestion"
	"github.com/opd-ai/voipcore/crypto"
	"github.com/opd-ai/voipcore/endpoint"
	"github.com/opd-ai/voipcore/jitter"
	"github.com/opd-ai/voipcore/scheduler"
	"github.com/opd-ai/voipcore/screamcc"
	"github.com/opd-ai/voipcore/signalbars"
	"github.com/opd-ai/voipcore/stream"
	"github.com/opd-ai/voipcore/transport"
	"github.com/opd-ai/voipcore/wire"
	"github.com/sirupsen/logrus"
)

const ourProtocolVersion = 9
const minProtocolVersion = 5

// Callbacks mirrors §6's SetCallbacks contract. Every callback is invoked
// only from the scheduler goroutine, per the design notes.
type Callbacks struct {
	StateChanged     func(State)
	SignalBarCount   func(int)
	GroupKeySent     func()
	GroupKeyReceived func([]byte)
	UpgradeRequested func()
	AudioOutput      func(pcm []int16)
}

// RecentOutgoingPacket is the bounded-deque entry of §3 used for RTT and
// loss accounting.
type RecentOutgoingPacket struct {
	Seq      uint32
	SendTime time.Time
	AckTime  time.Time
	Type     wire.PacketType
	StreamID stream.ID
	Size     int
	Lost     bool
}

// Controller is the top-level call engine described across §4. It owns
// every other subsystem in this module and is mutated only from its own
// scheduler goroutine after Start, per §5.
type Controller struct {
	cfg *config.ServerConfig

	sched  *scheduler.Scheduler
	socket *transport.UDPSocket

	endpointsMu sync.RWMutex
	endpoints   *endpoint.Table

	streams map[stream.ID]*stream.Stream
	videoFrameGroups map[stream.ID][][]byte

	audioCodec *AudioCodec

	state     State
	lastError Error

	encryptionKey   [256]byte
	isOutgoing      bool
	envelopeVersion crypto.EnvelopeVersion
	callID          []byte

	seqCounter       *wire.Counter
	lastRemoteSeq    uint32
	recentIncomingSeqs map[uint32]bool
	recentOutgoing   []RecentOutgoingPacket

	extras *extraSet

	unsentStreamPackets int
	audioTimestampOut   uint32

	congestionCtl   *congestion.Controller
	bitrateState    *bitrate.State
	signalIndicator *signalbars.Indicator
	videoCC         *screamcc.Controller

	// Video negotiation inputs for §4.2's INIT capability exchange. Empty
	// by default: an application opts into video by calling
	// SetVideoCapabilities before Connect.
	localVideoCodecs                []stream.CodecTag
	localMaxVideoWidth, localMaxVideoHeight uint16

	// currentRTT feeds the signal-bar and SCReAM qdelay approximations; it's
	// updated whenever a PONG or reflector reply resolves a pending ping.
	currentRTT time.Duration

	// prevLateTotal/prevLateTime let tickSignalBars turn jitter.Buffer's
	// cumulative LateCount into a per-second rate across ticks.
	prevLateTotal int
	prevLateTime  time.Time

	// maxVideoInflight is the high-water mark of unacked video-stream bytes,
	// fed to screamcc's cwnd clamp via SetBytesInFlight.
	maxVideoInflight int

	// prevShittyMode detects the bitrate policy's mode transition so the
	// STREAM_FLAGS extra is only re-piggybacked on an actual change.
	prevShittyMode bool

	callbacks Callbacks
	metrics   *Metrics

	persistentState PersistentState

	initTimeoutID uint64
	probeID       uint64

	peerVersion int

	proxy *transport.ProxyConfig

	cancel context.CancelFunc
}

// NewController constructs a Controller. encryptionKey is the 256-byte
// shared secret from §6's SetEncryptionKey; isOutgoing marks whether this
// side is the call initiator (the direction byte of §4.1 depends on it).
func NewController(cfg *config.ServerConfig, encryptionKey [256]byte, isOutgoing bool, callID []byte, callbacks Callbacks) *Controller {
	return &Controller{
		cfg:                cfg,
		sched:              scheduler.New(),
		endpoints:          endpoint.NewTable(cfg),
		streams:            make(map[stream.ID]*stream.Stream),
		audioCodec:         NewAudioCodec(),
		state:              WaitInit,
		encryptionKey:      encryptionKey,
		isOutgoing:         isOutgoing,
		envelopeVersion:    crypto.EnvelopeV1,
		callID:             callID,
		seqCounter:         wire.NewCounter(),
		recentIncomingSeqs: make(map[uint32]bool),
		extras:             newExtraSet(),
		congestionCtl:      congestion.New(cfg),
		bitrateState:       bitrate.New(cfg),
		signalIndicator:    signalbars.New(callbacks.SignalBarCount),
		videoCC:            screamcc.New(cfg),
		callbacks:          callbacks,
		metrics:            NewMetrics(idFromCallID(callID)),
	}
}

func idFromCallID(callID []byte) string {
	if len(callID) == 0 {
		return "unknown"
	}
	if len(callID) > 8 {
		callID = callID[:8]
	}
	return string(callID)
}

// SetRemoteEndpoints seeds the endpoint table from the signaling-provided
// list, per §6's SetRemoteEndpoints(list, allow_p2p, max_layer). max_layer
// is accepted for interface parity with the original video-layer negotiation
// and is not used: neither endpoint selection nor video stream setup reads
// it.
func (c *Controller) SetRemoteEndpoints(eps []*endpoint.Endpoint, allowP2P bool, maxLayer int) {
	c.endpointsMu.Lock()
	defer c.endpointsMu.Unlock()
	for _, e := range eps {
		if !allowP2P && (e.Type == endpoint.P2PInet || e.Type == endpoint.P2PLAN) {
			continue
		}
		c.endpoints.Add(e)
	}
	_ = maxLayer
}

// Start opens the UDP socket and begins the receive thread and scheduler,
// per §4.2 and §5.
func (c *Controller) Start(ctx context.Context) error {
	logger := logrus.WithFields(logrus.Fields{"function": "Controller.Start", "package": "call"})

	socket, err := transport.ListenUDP(":0")
	if err != nil {
		logger.WithError(err).Error("failed to open UDP socket")
		return err
	}
	c.socket = socket

	runCtx, cancel := context.WithCancel(ctx)
	c.cancel = cancel

	go c.sched.Run(runCtx)
	go c.socket.Serve(runCtx, c.onInboundDatagram)

	// One audio stream is created eagerly at startup, per §3's Stream
	// lifetime note.
	jb := jitter.New(c.cfg, 60)
	s, err := stream.New(1, stream.Audio, stream.CodecOpus, 60, jb)
	if err != nil {
		return err
	}
	c.streams[1] = s

	c.sched.Post(c.tickAdjustDelay, 500*time.Millisecond, 500*time.Millisecond)
	c.sched.Post(c.tickDecodeAudio, 60*time.Millisecond, 60*time.Millisecond)
	c.sched.Post(c.tickProbeUDP, c.cfg.UDPPingInterval, c.cfg.UDPPingInterval)
	c.sched.Post(c.tickRelayPing, c.cfg.RelayPingInterval, c.cfg.RelayPingInterval)
	c.sched.Post(c.tickCongestion, c.cfg.CongestionTickInterval, c.cfg.CongestionTickInterval)
	c.sched.Post(c.tickBitrateAdjust, c.cfg.BitrateAdjustInterval, c.cfg.BitrateAdjustInterval)
	c.sched.Post(c.tickSignalBars, c.cfg.SignalBarsTickInterval, c.cfg.SignalBarsTickInterval)
	c.sched.Post(c.tickVideoCC, c.cfg.ScreamUpdateInterval, c.cfg.ScreamUpdateInterval)

	return nil
}

// onInboundDatagram runs on the receive goroutine; per §5 it only matches a
// source address to an endpoint id and posts a scheduler job, never
// touching call state directly.
func (c *Controller) onInboundDatagram(pkt transport.InboundPacket) {
	c.sched.Post(func() { c.handleInboundDatagram(pkt) }, 0, 0)
}

// Connect starts the handshake: it schedules the init timeout and a
// repeating INIT broadcast every 500 ms while WAIT_INIT_ACK, per §4.2.
func (c *Controller) Connect() {
	c.setState(WaitInitAck)

	c.initTimeoutID = c.sched.Post(func() {
		if c.state == WaitInitAck || c.state == WaitInit {
			c.fail(ErrorTimeout)
		}
	}, c.cfg.InitTimeout, 0)

	c.probeID = c.sched.Post(c.broadcastInit, 0, 500*time.Millisecond)
}

func (c *Controller) broadcastInit() {
	if c.state != WaitInitAck {
		c.sched.Cancel(c.probeID)
		return
	}
	c.endpointsMu.RLock()
	targets := c.endpoints.All()
	c.endpointsMu.RUnlock()

	payload := encodeInitPayload(initPayload{
		OurVersion:    ourProtocolVersion,
		MinVersion:    minProtocolVersion,
		Capabilities:  c.capabilities(),
		AudioCodecs:   []stream.CodecTag{stream.CodecOpus},
		VideoDecoders: c.localVideoCodecs,
		MaxWidth:      c.localMaxVideoWidth,
		MaxHeight:     c.localMaxVideoHeight,
	})
	for _, e := range targets {
		_ = c.SendOrEnqueuePacket(PendingOutgoingPacket{
			Type:       wire.PacketInit,
			Payload:    payload,
			EndpointID: e.ID,
		})
	}
}

func (c *Controller) setState(s State) {
	if c.state == s {
		return
	}
	c.state = s
	if c.metrics != nil {
		c.metrics.StateTransitions.WithLabelValues(s.String()).Inc()
	}
	if c.callbacks.StateChanged != nil {
		c.callbacks.StateChanged(s)
	}
}

func (c *Controller) fail(e Error) {
	c.lastError = e
	c.setState(Failed)
}

// GetLastError returns the last-error enum, per §6/§7.
func (c *Controller) GetLastError() Error { return c.lastError }

// State returns the controller's current state.
func (c *Controller) State() State { return c.state }

// SetMicMute toggles local mic capture, per §6.
func (c *Controller) SetMicMute(muted bool) {
	if s, ok := c.streams[1]; ok {
		s.Paused = muted
	}
}

// SetVideoCapabilities declares which video codecs this side can decode and
// the maximum resolution it accepts, enabling video negotiation during
// Connect's INIT/INIT_ACK exchange per §4.2. Call before Connect.
func (c *Controller) SetVideoCapabilities(codecs []stream.CodecTag, maxWidth, maxHeight uint16) {
	c.localVideoCodecs = codecs
	c.localMaxVideoWidth = maxWidth
	c.localMaxVideoHeight = maxHeight
}

// capabilities computes the INIT capability byte from current local state.
func (c *Controller) capabilities() byte {
	var caps byte
	if c.bitrateState != nil && c.bitrateState.DataSavingRequested {
		caps |= CapDataSaving
	}
	if len(c.localVideoCodecs) > 0 {
		caps |= CapVideoSend | CapVideoRecv
	}
	return caps
}

// negotiateVideoCodec returns the first codec both sides agree on, given
// the peer's advertised decoder list, or false if no video stream should be
// instantiated.
func (c *Controller) negotiateVideoCodec(peerCaps byte, peerDecoders []stream.CodecTag) (stream.CodecTag, bool) {
	if len(c.localVideoCodecs) == 0 || peerCaps&CapVideoRecv == 0 {
		return stream.CodecTag{}, false
	}
	for _, want := range c.localVideoCodecs {
		for _, have := range peerDecoders {
			if want == have {
				return want, true
			}
		}
	}
	return stream.CodecTag{}, false
}

// ensureStream creates and registers a stream for id if one is not already
// present, per §3's Stream lifecycle note that inbound streams are created
// on negotiation rather than eagerly.
func (c *Controller) ensureStream(id stream.ID, kind stream.Kind, codec stream.CodecTag, frameDurationMS int) {
	if _, ok := c.streams[id]; ok {
		return
	}
	var jb *jitter.Buffer
	if kind == stream.Audio {
		jb = jitter.New(c.cfg, frameDurationMS)
	}
	s, err := stream.New(id, kind, codec, frameDurationMS, jb)
	if err != nil {
		return
	}
	c.streams[id] = s
}

// SetNetworkType informs the bitrate policy of the active network class.
func (c *Controller) SetNetworkType(t bitrate.NetworkType) {
	c.bitrateState.NetworkType = t
}

// SetEncryptionKey installs a new shared secret, per §6.
func (c *Controller) SetEncryptionKey(key [256]byte, isOutgoing bool) {
	c.encryptionKey = key
	c.isOutgoing = isOutgoing
}

// SetConfig swaps the server config in use.
func (c *Controller) SetConfig(cfg *config.ServerConfig) { c.cfg = cfg }

// SetProxy configures SOCKS5 tunneling, per §6.
func (c *Controller) SetProxy(p transport.ProxyConfig) {
	c.proxy = &p
	c.endpoints.SetUsingSocksProxy(true)
}

// SetCallbacks installs the callback set, per §6.
func (c *Controller) SetCallbacks(cb Callbacks) {
	c.callbacks = cb
	c.signalIndicator = signalbars.New(cb.SignalBarCount)
}

// GetDebugString returns a short human-readable dump of controller state,
// per §6's GetDebugString.
func (c *Controller) GetDebugString() string {
	return "state=" + c.state.String() +
		" last_error=" + c.lastError.String() +
		" last_remote_seq=" + strconv.FormatUint(uint64(c.lastRemoteSeq), 10)
}

// Stop is the only legal way to tear down the controller, per §5: it
// closes the socket, cancels the scheduler context, and returns.
func (c *Controller) Stop() error {
	if c.cancel != nil {
		c.cancel()
	}
	if c.socket != nil {
		return c.socket.Close()
	}
	return nil
}

