package transport

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"
)

// MaxObfuscatedMessage is the maximum message length enforced on receive
// for the "obfuscated 2" TCP relay framing (§6).
const MaxObfuscatedMessage = 1500

// ErrObfuscatedTooLarge is returned when a received frame would exceed
// MaxObfuscatedMessage.
var ErrObfuscatedTooLarge = errors.New("transport: obfuscated frame exceeds max message length")

// ObfuscatedConn wraps a TCP connection to a relay with the "obfuscated 2"
// framing: a 64-byte handshake nonce exchange derives per-direction AES-CTR
// keys, after which every message is length-prefixed (one byte if
// packet_length/4 < 0x7F, else a 0x7F flag byte followed by a 24-bit
// little-endian length) and the whole stream is AES-CTR encrypted.
//
// Because CTR requires the on-wire length to be a multiple of 4 bytes
// (packet_length/4 must be exact), WriteFrame pads the payload with a
// leading 1-byte pad-count plus trailing zero bytes to the next multiple of
// 4; ReadFrame strips it back off transparently.
type ObfuscatedConn struct {
	conn       net.Conn
	sendStream cipher.Stream
	recvStream cipher.Stream
}

// deriveObfuscatedKeys derives the two AES-CTR (key, iv) pairs from the
// locally generated and peer-received 64-byte nonces. Both sides compute
// both directions' material and then pick according to role, so no extra
// round trip beyond the nonce exchange is needed.
func deriveObfuscatedKeys(initiatorNonce, responderNonce []byte) (i2r, r2i cipher.Block, i2rIV, r2iIV []byte, err error) {
	i2rKey := sha256.Sum256(append(append([]byte{}, initiatorNonce...), append(responderNonce, 'i', '2', 'r')...))
	r2iKey := sha256.Sum256(append(append([]byte{}, initiatorNonce...), append(responderNonce, 'r', '2', 'i')...))
	i2rIVFull := sha256.Sum256(append(i2rKey[:], 'i', 'v'))
	r2iIVFull := sha256.Sum256(append(r2iKey[:], 'i', 'v'))

	i2r, err = aes.NewCipher(i2rKey[:])
	if err != nil {
		return nil, nil, nil, nil, err
	}
	r2i, err = aes.NewCipher(r2iKey[:])
	if err != nil {
		return nil, nil, nil, nil, err
	}
	return i2r, r2i, i2rIVFull[:16], r2iIVFull[:16], nil
}

// DialObfuscated connects to a TCP relay and performs the obfuscated-2
// handshake as the initiator.
func DialObfuscated(addr string) (*ObfuscatedConn, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	oc, err := handshakeObfuscated(conn, true)
	if err != nil {
		conn.Close()
		return nil, err
	}
	return oc, nil
}

// AcceptObfuscated performs the obfuscated-2 handshake as the responder
// over an already-accepted connection (used by relay-side test doubles).
func AcceptObfuscated(conn net.Conn) (*ObfuscatedConn, error) {
	return handshakeObfuscated(conn, false)
}

func handshakeObfuscated(conn net.Conn, initiator bool) (*ObfuscatedConn, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "handshakeObfuscated", "package": "transport", "initiator": initiator})

	ourNonce := make([]byte, 64)
	if _, err := rand.Read(ourNonce); err != nil {
		return nil, err
	}
	if _, err := conn.Write(ourNonce); err != nil {
		logger.WithError(err).Error("failed to send handshake nonce")
		return nil, err
	}

	theirNonce := make([]byte, 64)
	if _, err := io.ReadFull(conn, theirNonce); err != nil {
		logger.WithError(err).Error("failed to read peer handshake nonce")
		return nil, err
	}

	var initiatorNonce, responderNonce []byte
	if initiator {
		initiatorNonce, responderNonce = ourNonce, theirNonce
	} else {
		initiatorNonce, responderNonce = theirNonce, ourNonce
	}

	i2rBlock, r2iBlock, i2rIV, r2iIV, err := deriveObfuscatedKeys(initiatorNonce, responderNonce)
	if err != nil {
		return nil, err
	}

	var sendStream, recvStream cipher.Stream
	if initiator {
		sendStream = cipher.NewCTR(i2rBlock, i2rIV)
		recvStream = cipher.NewCTR(r2iBlock, r2iIV)
	} else {
		sendStream = cipher.NewCTR(r2iBlock, r2iIV)
		recvStream = cipher.NewCTR(i2rBlock, i2rIV)
	}

	return &ObfuscatedConn{conn: conn, sendStream: sendStream, recvStream: recvStream}, nil
}

// WriteFrame encrypts and writes one message.
func (c *ObfuscatedConn) WriteFrame(payload []byte) error {
	if len(payload)+1 > MaxObfuscatedMessage {
		return ErrObfuscatedTooLarge
	}
	padCount := byte((4 - (len(payload)+1)%4) % 4)
	framed := make([]byte, 0, 1+len(payload)+int(padCount))
	framed = append(framed, padCount)
	framed = append(framed, payload...)
	framed = append(framed, make([]byte, padCount)...)

	quarterLen := len(framed) / 4
	var lenPrefix []byte
	if quarterLen < 0x7f {
		lenPrefix = []byte{byte(quarterLen)}
	} else {
		lenPrefix = make([]byte, 4)
		lenPrefix[0] = 0x7f
		lenPrefix[1] = byte(quarterLen)
		lenPrefix[2] = byte(quarterLen >> 8)
		lenPrefix[3] = byte(quarterLen >> 16)
	}

	out := make([]byte, len(lenPrefix)+len(framed))
	copy(out, lenPrefix)
	copy(out[len(lenPrefix):], framed)
	c.sendStream.XORKeyStream(out, out)

	_, err := c.conn.Write(out)
	return err
}

// ReadFrame reads and decrypts one message.
func (c *ObfuscatedConn) ReadFrame() ([]byte, error) {
	first := make([]byte, 1)
	if _, err := io.ReadFull(c.conn, first); err != nil {
		return nil, err
	}
	c.recvStream.XORKeyStream(first, first)

	var quarterLen int
	if first[0] < 0x7f {
		quarterLen = int(first[0])
	} else {
		rest := make([]byte, 3)
		if _, err := io.ReadFull(c.conn, rest); err != nil {
			return nil, err
		}
		c.recvStream.XORKeyStream(rest, rest)
		quarterLen = int(rest[0]) | int(rest[1])<<8 | int(rest[2])<<16
	}

	frameLen := quarterLen * 4
	if frameLen > MaxObfuscatedMessage || frameLen < 1 {
		return nil, ErrObfuscatedTooLarge
	}

	framed := make([]byte, frameLen)
	if _, err := io.ReadFull(c.conn, framed); err != nil {
		return nil, err
	}
	c.recvStream.XORKeyStream(framed, framed)

	padCount := int(framed[0])
	if 1+padCount > len(framed) {
		return nil, errors.New("transport: corrupt obfuscated frame padding")
	}
	return framed[1 : len(framed)-padCount], nil
}

// Close closes the underlying connection.
func (c *ObfuscatedConn) Close() error {
	return c.conn.Close()
}
