package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"

	"github.com/sirupsen/logrus"
	"golang.org/x/net/proxy"
)

// ErrSocks5 wraps failures in the bespoke UDP ASSOCIATE exchange; TCP CONNECT
// failures surface golang.org/x/net/proxy's own errors unwrapped.
var ErrSocks5 = errors.New("transport: socks5 negotiation failed")

// ProxyConfig names the SOCKS5 proxy the call engine should route through,
// per §6's SetProxy.
type ProxyConfig struct {
	Addr     string
	Username string
	Password string
}

// DialTCPThroughProxy opens a TCP CONNECT tunnel to target via the configured
// SOCKS5 proxy, reusing golang.org/x/net/proxy instead of hand-rolling the
// well-trodden CONNECT path.
func DialTCPThroughProxy(cfg ProxyConfig, target string) (net.Conn, error) {
	var auth *proxy.Auth
	if cfg.Username != "" {
		auth = &proxy.Auth{User: cfg.Username, Password: cfg.Password}
	}
	dialer, err := proxy.SOCKS5("tcp", cfg.Addr, auth, proxy.Direct)
	if err != nil {
		return nil, err
	}
	return dialer.Dial("tcp", target)
}

// UDPAssociation is a live SOCKS5 UDP ASSOCIATE session: a held-open control
// TCP connection (the proxy tears down the UDP relay if this closes) plus
// the relay address datagrams must be sent to.
//
// golang.org/x/net/proxy has no UDP ASSOCIATE support, so this half of the
// SOCKS5 client is hand-rolled per RFC 1928 §4, §7.
type UDPAssociation struct {
	ctrl      net.Conn
	RelayAddr *net.UDPAddr
}

// AssociateUDP performs the SOCKS5 handshake, authenticates if credentials
// are configured, and issues a UDP ASSOCIATE request. The returned
// UDPAssociation's ctrl connection must be kept open for the lifetime of the
// relay; closing it tears the association down server-side.
func AssociateUDP(cfg ProxyConfig) (*UDPAssociation, error) {
	logger := logrus.WithFields(logrus.Fields{"function": "AssociateUDP", "package": "transport"})

	conn, err := net.Dial("tcp", cfg.Addr)
	if err != nil {
		return nil, err
	}

	if err := socks5Greet(conn, cfg); err != nil {
		conn.Close()
		logger.WithError(err).Error("socks5 greeting failed")
		return nil, err
	}

	relayAddr, err := socks5Request(conn, 0x03 /* UDP ASSOCIATE */, &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		conn.Close()
		return nil, err
	}

	return &UDPAssociation{ctrl: conn, RelayAddr: relayAddr}, nil
}

// Close tears down the association by closing its control connection.
func (u *UDPAssociation) Close() error {
	return u.ctrl.Close()
}

// WrapUDPPayload prefixes data with the SOCKS5 UDP request header (RFC 1928
// §7) addressed to dst, for sending to RelayAddr.
func WrapUDPPayload(dst *net.UDPAddr, data []byte) ([]byte, error) {
	addrBytes, err := encodeSocks5Addr(dst)
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, 3+len(addrBytes)+len(data))
	out = append(out, 0x00, 0x00, 0x00) // RSV RSV FRAG
	out = append(out, addrBytes...)
	out = append(out, data...)
	return out, nil
}

// UnwrapUDPPayload strips the SOCKS5 UDP request header off a datagram
// received from RelayAddr, returning the original sender and payload.
func UnwrapUDPPayload(datagram []byte) (*net.UDPAddr, []byte, error) {
	if len(datagram) < 4 {
		return nil, nil, ErrSocks5
	}
	if datagram[2] != 0x00 {
		return nil, nil, fmt.Errorf("%w: fragmented UDP datagrams not supported", ErrSocks5)
	}
	addr, rest, err := decodeSocks5Addr(datagram[3:])
	if err != nil {
		return nil, nil, err
	}
	return addr, rest, nil
}

func socks5Greet(conn net.Conn, cfg ProxyConfig) error {
	methods := []byte{0x00} // no auth
	if cfg.Username != "" {
		methods = append(methods, 0x02) // username/password
	}
	greeting := append([]byte{0x05, byte(len(methods))}, methods...)
	if _, err := conn.Write(greeting); err != nil {
		return err
	}

	resp := make([]byte, 2)
	if _, err := readFull(conn, resp); err != nil {
		return err
	}
	if resp[0] != 0x05 {
		return fmt.Errorf("%w: unexpected version %d", ErrSocks5, resp[0])
	}

	switch resp[1] {
	case 0x00:
		return nil
	case 0x02:
		return socks5Authenticate(conn, cfg)
	default:
		return fmt.Errorf("%w: no acceptable auth method", ErrSocks5)
	}
}

func socks5Authenticate(conn net.Conn, cfg ProxyConfig) error {
	req := []byte{0x01, byte(len(cfg.Username))}
	req = append(req, cfg.Username...)
	req = append(req, byte(len(cfg.Password)))
	req = append(req, cfg.Password...)
	if _, err := conn.Write(req); err != nil {
		return err
	}
	resp := make([]byte, 2)
	if _, err := readFull(conn, resp); err != nil {
		return err
	}
	if resp[1] != 0x00 {
		return fmt.Errorf("%w: authentication rejected", ErrSocks5)
	}
	return nil
}

func socks5Request(conn net.Conn, command byte, target *net.UDPAddr) (*net.UDPAddr, error) {
	addrBytes, err := encodeSocks5Addr(target)
	if err != nil {
		return nil, err
	}
	req := append([]byte{0x05, command, 0x00}, addrBytes...)
	if _, err := conn.Write(req); err != nil {
		return nil, err
	}

	header := make([]byte, 4)
	if _, err := readFull(conn, header); err != nil {
		return nil, err
	}
	if header[0] != 0x05 || header[1] != 0x00 {
		return nil, fmt.Errorf("%w: request rejected, reply code %d", ErrSocks5, header[1])
	}

	var ip net.IP
	switch header[3] {
	case 0x01:
		buf := make([]byte, 4)
		if _, err := readFull(conn, buf); err != nil {
			return nil, err
		}
		ip = net.IP(buf)
	case 0x04:
		buf := make([]byte, 16)
		if _, err := readFull(conn, buf); err != nil {
			return nil, err
		}
		ip = net.IP(buf)
	default:
		return nil, fmt.Errorf("%w: unsupported bound address type", ErrSocks5)
	}

	portBuf := make([]byte, 2)
	if _, err := readFull(conn, portBuf); err != nil {
		return nil, err
	}
	port := binary.BigEndian.Uint16(portBuf)

	return &net.UDPAddr{IP: ip, Port: int(port)}, nil
}

func encodeSocks5Addr(addr *net.UDPAddr) ([]byte, error) {
	if ip4 := addr.IP.To4(); ip4 != nil {
		out := append([]byte{0x01}, ip4...)
		return append(out, portBytes(addr.Port)...), nil
	}
	if ip6 := addr.IP.To16(); ip6 != nil {
		out := append([]byte{0x04}, ip6...)
		return append(out, portBytes(addr.Port)...), nil
	}
	return nil, fmt.Errorf("%w: invalid address %v", ErrSocks5, addr)
}

func decodeSocks5Addr(data []byte) (*net.UDPAddr, []byte, error) {
	if len(data) < 1 {
		return nil, nil, ErrSocks5
	}
	switch data[0] {
	case 0x01:
		if len(data) < 1+4+2 {
			return nil, nil, ErrSocks5
		}
		ip := net.IP(data[1:5])
		port := binary.BigEndian.Uint16(data[5:7])
		return &net.UDPAddr{IP: ip, Port: int(port)}, data[7:], nil
	case 0x04:
		if len(data) < 1+16+2 {
			return nil, nil, ErrSocks5
		}
		ip := net.IP(data[1:17])
		port := binary.BigEndian.Uint16(data[17:19])
		return &net.UDPAddr{IP: ip, Port: int(port)}, data[19:], nil
	default:
		return nil, nil, fmt.Errorf("%w: unsupported address type in UDP header", ErrSocks5)
	}
}

func portBytes(port int) []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, uint16(port))
	return b
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}
