// Package stream defines the logical unidirectional media channel of §3:
// a 6-bit-id stream carrying audio or video, wired to the jitter buffer and
// reassembler that own its inbound loss recovery.
package stream

import (
	"errors"

	"github.com/opd-ai/voipcore/jitter"
	"github.com/opd-ai/voipcore/reassembly"
)

// Kind distinguishes an audio stream from a video one.
type Kind int

const (
	Audio Kind = iota
	Video
)

// CodecTag is the four-character codec identifier carried in INIT/INIT_ACK
// and stream-state extras (§6's FOURCC list).
type CodecTag [4]byte

var (
	CodecAVC     = CodecTag{'A', 'V', 'C', ' '}
	CodecHEVC    = CodecTag{'H', 'E', 'V', 'C'}
	CodecVP8     = CodecTag{'V', 'P', '8', '0'}
	CodecVP9     = CodecTag{'V', 'P', '9', '0'}
	CodecAV1     = CodecTag{'A', 'V', '0', '1'}
	CodecOpus    = CodecTag{'O', 'P', 'U', 'S'}
	codecOpusOld = byte(1) // legacy CODEC_OPUS_OLD constant, kept for decode of old peers
)

// CodecOpusOld returns the legacy single-byte Opus codec identifier used by
// peers that predate the four-character codec tag.
func CodecOpusOld() byte { return codecOpusOld }

// ErrInvalidFrameDuration is returned by New for an audio stream whose
// frame duration is not one of the permitted values.
var ErrInvalidFrameDuration = errors.New("stream: audio frame duration must be 20, 40, or 60ms")

// ID is the 6-bit stream identifier (0-63).
type ID byte

// Stream is one logical media channel, per §3's "Stream" data model entry.
type Stream struct {
	ID       ID
	Kind     Kind
	Codec    CodecTag
	FrameDurationMS int

	Enabled  bool
	Paused   bool
	ExtraEC  bool

	JitterBuffer *jitter.Buffer
	Reassembler  *reassembly.VideoPacket

	Width, Height int
	CodecSpecificData []byte
}

var validAudioFrameDurations = map[int]bool{20: true, 40: true, 60: true}

// New constructs a Stream. jb may be nil for outbound-only or video
// streams; video streams attach a reassembler per received frame instead
// of at construction time.
func New(id ID, kind Kind, codec CodecTag, frameDurationMS int, jb *jitter.Buffer) (*Stream, error) {
	if kind == Audio && !validAudioFrameDurations[frameDurationMS] {
		return nil, ErrInvalidFrameDuration
	}
	return &Stream{
		ID:              id,
		Kind:            kind,
		Codec:           codec,
		FrameDurationMS: frameDurationMS,
		Enabled:         true,
		JitterBuffer:    jb,
	}, nil
}
