package transport

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeSocks5Addr_IPv4RoundTrip(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("203.0.113.5").To4(), Port: 4242}
	encoded, err := encodeSocks5Addr(addr)
	require.NoError(t, err)

	decoded, rest, err := decodeSocks5Addr(encoded)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, decoded.IP.Equal(addr.IP))
	assert.Equal(t, addr.Port, decoded.Port)
}

func TestEncodeDecodeSocks5Addr_IPv6RoundTrip(t *testing.T) {
	addr := &net.UDPAddr{IP: net.ParseIP("2001:db8::1"), Port: 9000}
	encoded, err := encodeSocks5Addr(addr)
	require.NoError(t, err)

	decoded, rest, err := decodeSocks5Addr(encoded)
	require.NoError(t, err)
	assert.Empty(t, rest)
	assert.True(t, decoded.IP.Equal(addr.IP))
	assert.Equal(t, addr.Port, decoded.Port)
}

func TestWrapUnwrapUDPPayload_RoundTrip(t *testing.T) {
	dst := &net.UDPAddr{IP: net.ParseIP("198.51.100.9").To4(), Port: 1234}
	payload := []byte("rtp-like-data")

	wrapped, err := WrapUDPPayload(dst, payload)
	require.NoError(t, err)

	gotAddr, gotPayload, err := UnwrapUDPPayload(wrapped)
	require.NoError(t, err)
	assert.True(t, gotAddr.IP.Equal(dst.IP))
	assert.Equal(t, dst.Port, gotAddr.Port)
	assert.Equal(t, payload, gotPayload)
}

func TestUnwrapUDPPayload_RejectsFragmented(t *testing.T) {
	_, _, err := UnwrapUDPPayload([]byte{0x00, 0x00, 0x01, 0x01, 1, 2, 3, 4, 0, 0})
	assert.ErrorIs(t, err, ErrSocks5)
}

// fakeSocks5Server accepts one connection, performs the no-auth greeting,
// and replies OK to a UDP ASSOCIATE request with a fixed relay address.
func fakeSocks5Server(t *testing.T, ln net.Listener) {
	t.Helper()
	conn, err := ln.Accept()
	require.NoError(t, err)
	defer conn.Close()

	greet := make([]byte, 3)
	_, err = readFull(conn, greet)
	require.NoError(t, err)
	_, err = conn.Write([]byte{0x05, 0x00})
	require.NoError(t, err)

	header := make([]byte, 4)
	_, err = readFull(conn, header)
	require.NoError(t, err)
	addrLen := 4
	if header[3] == 0x04 {
		addrLen = 16
	}
	_, err = readFull(conn, make([]byte, addrLen+2))
	require.NoError(t, err)

	reply := []byte{0x05, 0x00, 0x00, 0x01, 127, 0, 0, 1, 0x1f, 0x90}
	_, err = conn.Write(reply)
	require.NoError(t, err)

	// Hold the control connection open briefly so the client can finish
	// reading the reply before this goroutine's deferred Close runs.
	buf := make([]byte, 1)
	_, _ = conn.Read(buf)
}

func TestAssociateUDP_NoAuthHandshake(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	go fakeSocks5Server(t, ln)

	assoc, err := AssociateUDP(ProxyConfig{Addr: ln.Addr().String()})
	require.NoError(t, err)
	defer assoc.Close()

	assert.Equal(t, "127.0.0.1", assoc.RelayAddr.IP.String())
	assert.Equal(t, 8080, assoc.RelayAddr.Port)
}
