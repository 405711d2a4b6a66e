package crypto

import (
	"testing"

	"github.com/flynn/noise"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func genStatic(t *testing.T) noise.DHKey {
	t.Helper()
	kp, err := NoiseSuite.GenerateKeypair(nil)
	require.NoError(t, err)
	return kp
}

func TestNoiseHandshake_XKEstablishesSession(t *testing.T) {
	initiatorStatic := genStatic(t)
	responderStatic := genStatic(t)

	initiator, err := NewNoiseHandshake(true, initiatorStatic, responderStatic.Public)
	require.NoError(t, err)
	responder, err := NewNoiseHandshake(false, responderStatic, nil)
	require.NoError(t, err)

	// -> e, es
	msg1, sess, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	assert.Nil(t, sess)
	_, sess, err = responder.ReadMessage(msg1)
	require.NoError(t, err)
	assert.Nil(t, sess)

	// <- e, ee
	msg2, sess, err := responder.WriteMessage(nil)
	require.NoError(t, err)
	assert.Nil(t, sess)
	_, sess, err = initiator.ReadMessage(msg2)
	require.NoError(t, err)
	assert.Nil(t, sess)

	// -> s, se
	msg3, initSession, err := initiator.WriteMessage(nil)
	require.NoError(t, err)
	require.NotNil(t, initSession)
	_, respSession, err := responder.ReadMessage(msg3)
	require.NoError(t, err)
	require.NotNil(t, respSession)

	plaintext := []byte("stream_data frame")
	ct, err := initSession.Encrypt(plaintext)
	require.NoError(t, err)

	pt, err := respSession.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, plaintext, pt)
}

func TestNoiseSession_NotReadyBeforeHandshake(t *testing.T) {
	var s *NoiseSession
	_, err := s.Encrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrNoiseNotReady)
	_, err = s.Decrypt([]byte("x"))
	assert.ErrorIs(t, err, ErrNoiseNotReady)
}
