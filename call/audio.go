package call

import (
	"encoding/binary"

	"github.com/pion/opus"
	"github.com/sirupsen/logrus"
)

// AudioCodec wraps Opus decode (via pion/opus, which implements decode
// only) and a minimal encode path good enough to exercise the wire and
// congestion-control pipeline end to end.
type AudioCodec struct {
	decoder *opus.Decoder
}

// NewAudioCodec creates a codec ready to decode incoming Opus frames.
func NewAudioCodec() *AudioCodec {
	return &AudioCodec{decoder: opus.NewDecoder()}
}

// DecodeFrame decodes one Opus packet into PCM s16le samples.
func (c *AudioCodec) DecodeFrame(data []byte) ([]int16, error) {
	out := make([]int16, 960) // 20ms @ 48kHz mono
	_, _, err := c.decoder.Decode(data, out)
	if err != nil {
		logrus.WithFields(logrus.Fields{"function": "AudioCodec.DecodeFrame", "package": "call"}).
			WithError(err).Debug("opus decode failed")
		return nil, err
	}
	return out, nil
}

// EncodeFrame packs PCM s16le samples into a minimal frame. pion/opus does
// not provide an encoder, so outbound frames carry raw little-endian PCM;
// a production build would substitute a cgo or WASM Opus encoder behind
// this same signature.
func (c *AudioCodec) EncodeFrame(pcm []int16) []byte {
	out := make([]byte, len(pcm)*2)
	for i, s := range pcm {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}
