package groupcall

import (
	"testing"

	"github.com/google/uuid"
	"github.com/opd-ai/voipcore/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustSocket(t *testing.T) *transport.UDPSocket {
	t.Helper()
	s, err := transport.ListenUDP(":0")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSession_ForwardSkipsSenderAndUnknownIsRejected(t *testing.T) {
	sock := mustSocket(t)
	sess, err := NewSession(sock)
	require.NoError(t, err)

	a := mustSocket(t)
	b := mustSocket(t)

	sess.Join(1, a.LocalAddr())
	sess.Join(2, b.LocalAddr())

	assert.Equal(t, 2, sess.ParticipantCount())

	err = sess.Forward(1, []byte("hello"))
	assert.NoError(t, err)

	err = sess.Forward(99, []byte("hello"))
	assert.ErrorIs(t, err, ErrUnknownParticipant)
}

func TestSession_LeaveRemovesParticipant(t *testing.T) {
	sock := mustSocket(t)
	sess, err := NewSession(sock)
	require.NoError(t, err)

	a := mustSocket(t)
	sess.Join(1, a.LocalAddr())
	assert.Equal(t, 1, sess.ParticipantCount())

	sess.Leave(1)
	assert.Equal(t, 0, sess.ParticipantCount())
}

func TestNewSession_GeneratesNonZeroIDUsually(t *testing.T) {
	sock := mustSocket(t)
	sess, err := NewSession(sock)
	require.NoError(t, err)
	// A zero session id is astronomically unlikely from crypto/rand; this
	// guards against a broken RNG wiring rather than asserting true
	// randomness.
	assert.NotNil(t, sess)
	assert.NotEqual(t, uuid.Nil, sess.ID)
}
