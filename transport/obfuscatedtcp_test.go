package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func pipeObfuscatedConns(t *testing.T) (*ObfuscatedConn, *ObfuscatedConn) {
	t.Helper()
	serverLn, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer serverLn.Close()

	type acceptResult struct {
		oc  *ObfuscatedConn
		err error
	}
	resultCh := make(chan acceptResult, 1)
	go func() {
		conn, err := serverLn.Accept()
		if err != nil {
			resultCh <- acceptResult{nil, err}
			return
		}
		oc, err := AcceptObfuscated(conn)
		resultCh <- acceptResult{oc, err}
	}()

	client, err := DialObfuscated(serverLn.Addr().String())
	require.NoError(t, err)

	res := <-resultCh
	require.NoError(t, res.err)
	return client, res.oc
}

func TestObfuscatedConn_RoundTrip(t *testing.T) {
	client, server := pipeObfuscatedConns(t)
	defer client.Close()
	defer server.Close()

	msgs := [][]byte{
		[]byte("hello"),
		[]byte(""),
		make([]byte, 200),
		make([]byte, 1499),
	}

	for _, m := range msgs {
		require.NoError(t, client.WriteFrame(m))
		got, err := server.ReadFrame()
		require.NoError(t, err)
		assert.Equal(t, m, got)
	}
}

func TestObfuscatedConn_Bidirectional(t *testing.T) {
	client, server := pipeObfuscatedConns(t)
	defer client.Close()
	defer server.Close()

	require.NoError(t, client.WriteFrame([]byte("ping")))
	got, err := server.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("ping"), got)

	require.NoError(t, server.WriteFrame([]byte("pong")))
	got, err = client.ReadFrame()
	require.NoError(t, err)
	assert.Equal(t, []byte("pong"), got)
}

func TestObfuscatedConn_WriteFrame_TooLarge(t *testing.T) {
	client, server := pipeObfuscatedConns(t)
	defer client.Close()
	defer server.Close()

	err := client.WriteFrame(make([]byte, MaxObfuscatedMessage+1))
	assert.ErrorIs(t, err, ErrObfuscatedTooLarge)
}
