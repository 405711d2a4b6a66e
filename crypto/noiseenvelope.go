package crypto

import (
	"errors"

	"github.com/flynn/noise"
	"github.com/sirupsen/logrus"
)

// NoiseSuite is the cipher suite of the optional Noise_XK handshake (see
// noise/ in the teacher for the equivalent pattern in the Tox DHT
// handshake). No capability bit or handshake step selects it; the call
// controller never negotiates a Noise session.
var NoiseSuite = noise.NewCipherSuite(noise.DH25519, noise.CipherChaChaPoly, noise.HashSHA256)

// ErrNoiseNotReady is returned when Encrypt/Decrypt is called before the
// handshake has completed.
var ErrNoiseNotReady = errors.New("crypto: noise handshake not complete")

// NoiseSession wraps a completed Noise_XK handshake's pair of cipher
// states, one per direction, so the call controller can swap its envelope
// codec in place once negotiation succeeds without re-deriving anything.
type NoiseSession struct {
	send *noise.CipherState
	recv *noise.CipherState
}

// NoiseHandshake drives one side of a Noise_XK handshake over the call's
// signaling channel. The remote static key is known ahead of time (it
// arrives with the signaling-provided endpoint list, same as the legacy
// encryption_key), matching Noise_XK's pattern of an initiator who already
// knows the responder's static public key.
type NoiseHandshake struct {
	state *noise.HandshakeState
}

// NewNoiseHandshake starts a Noise_XK handshake. localStatic is this
// engine's long-term keypair; remoteStatic is the peer's known public key
// (may be nil for the responder, who learns it during the handshake).
func NewNoiseHandshake(initiator bool, localStatic noise.DHKey, remoteStatic []byte) (*NoiseHandshake, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "NewNoiseHandshake", "package": "crypto", "initiator": initiator})

	cfg := noise.Config{
		CipherSuite:   NoiseSuite,
		Pattern:       noise.HandshakeXK,
		Initiator:     initiator,
		StaticKeypair: localStatic,
	}
	if len(remoteStatic) > 0 {
		cfg.PeerStatic = remoteStatic
	}

	state, err := noise.NewHandshakeState(cfg)
	if err != nil {
		logger.WithError(err).Error("failed to start noise handshake state")
		return nil, err
	}
	return &NoiseHandshake{state: state}, nil
}

// WriteMessage advances the handshake, producing the next message to send.
// When the handshake completes it returns a ready NoiseSession.
func (h *NoiseHandshake) WriteMessage(payload []byte) (msg []byte, session *NoiseSession, err error) {
	out, cs1, cs2, err := h.state.WriteMessage(nil, payload)
	if err != nil {
		return nil, nil, err
	}
	if cs1 != nil && cs2 != nil {
		session = sessionFromStates(h.state.Initiator(), cs1, cs2)
	}
	return out, session, nil
}

// ReadMessage advances the handshake with a received message.
func (h *NoiseHandshake) ReadMessage(msg []byte) (payload []byte, session *NoiseSession, err error) {
	out, cs1, cs2, err := h.state.ReadMessage(nil, msg)
	if err != nil {
		return nil, nil, err
	}
	if cs1 != nil && cs2 != nil {
		session = sessionFromStates(h.state.Initiator(), cs1, cs2)
	}
	return out, session, nil
}

func sessionFromStates(initiator bool, cs1, cs2 *noise.CipherState) *NoiseSession {
	if initiator {
		return &NoiseSession{send: cs1, recv: cs2}
	}
	return &NoiseSession{send: cs2, recv: cs1}
}

// Encrypt seals plaintext for the send direction.
func (s *NoiseSession) Encrypt(plaintext []byte) ([]byte, error) {
	if s == nil || s.send == nil {
		return nil, ErrNoiseNotReady
	}
	return s.send.Encrypt(nil, nil, plaintext), nil
}

// Decrypt opens ciphertext from the receive direction.
func (s *NoiseSession) Decrypt(ciphertext []byte) ([]byte, error) {
	if s == nil || s.recv == nil {
		return nil, ErrNoiseNotReady
	}
	return s.recv.Decrypt(nil, nil, ciphertext)
}
