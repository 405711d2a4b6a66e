package transport

import (
	"context"
	"net"
	"time"

	"github.com/sirupsen/logrus"
)

// InboundPacket is a datagram handed from the receive goroutine to the
// scheduler as a posted job; it carries no call state, only raw bytes and
// where they came from (§5).
type InboundPacket struct {
	Data []byte
	Addr net.Addr
}

// UDPSocket wraps a net.PacketConn with the read-loop lifecycle the
// receive thread of §5 needs: start, deliver every datagram to a handler
// function (which itself just posts a scheduler job), and stop cleanly.
type UDPSocket struct {
	conn   net.PacketConn
	cancel context.CancelFunc
}

// ListenUDP opens a UDP socket bound to listenAddr (":0" for an ephemeral
// port). IPv6-capable sockets are requested with "udp" so the OS picks the
// right family; dual-stack callers should bind twice if they need both.
func ListenUDP(listenAddr string) (*UDPSocket, error) {
	conn, err := net.ListenPacket("udp", listenAddr)
	if err != nil {
		return nil, err
	}
	return &UDPSocket{conn: conn}, nil
}

// LocalAddr returns the bound local address.
func (s *UDPSocket) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

// Send writes one datagram to addr.
func (s *UDPSocket) Send(data []byte, addr net.Addr) error {
	_, err := s.conn.WriteTo(data, addr)
	return err
}

// Serve runs the receive loop until the context is canceled or the socket
// errors, delivering each datagram to onPacket. Per §5's ordering
// guarantee, onPacket must not block on further I/O — it is expected to
// post a scheduler job and return immediately.
func (s *UDPSocket) Serve(ctx context.Context, onPacket func(InboundPacket)) {
	logger := logrus.WithFields(logrus.Fields{"function": "UDPSocket.Serve", "package": "transport"})
	buf := make([]byte, 65536)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		_ = s.conn.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
			}
			logger.WithError(err).Warn("udp read error, closing socket")
			return
		}

		data := make([]byte, n)
		copy(data, buf[:n])
		onPacket(InboundPacket{Data: data, Addr: addr})
	}
}

// Close closes the underlying socket.
func (s *UDPSocket) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	return s.conn.Close()
}
