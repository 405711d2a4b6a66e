// Command callctl drives a single voipcore call from the command line: it
// dials or waits for a peer, exchanges the INIT/INIT_ACK handshake, and
// prints state transitions until the call ends. It doubles as the thinnest
// possible integration smoke test for the call package.
package main

import (
	"context"
	"encoding/hex"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/opd-ai/voipcore/call"
	"github.com/opd-ai/voipcore/config"
	"github.com/opd-ai/voipcore/endpoint"
	"github.com/sirupsen/logrus"
)

func main() {
	var (
		peerAddr      = flag.String("peer", "", "host:port of the remote peer's UDP socket")
		keyHex        = flag.String("key", "", "256-byte shared encryption key, hex-encoded")
		outgoing      = flag.Bool("outgoing", false, "act as the call initiator")
		statePath     = flag.String("state-db", "callctl.db", "sqlite file caching proxy capability across runs")
		logLevel      = flag.String("log-level", "info", "logrus level")
	)
	flag.Parse()

	level, err := logrus.ParseLevel(*logLevel)
	if err != nil {
		logrus.WithError(err).Fatal("invalid log level")
	}
	logrus.SetLevel(level)
	logrus.SetFormatter(&logrus.JSONFormatter{})

	key, err := parseKey(*keyHex)
	if err != nil {
		logrus.WithError(err).Fatal("invalid -key")
	}

	store, err := openStateStore(*statePath)
	if err != nil {
		logrus.WithError(err).Fatal("failed to open state store")
	}
	defer store.Close()

	cfg := config.Defaults()
	callbacks := call.Callbacks{
		StateChanged: func(s call.State) {
			logrus.WithField("state", s.String()).Info("call state changed")
		},
		SignalBarCount: func(bars int) {
			logrus.WithField("bars", bars).Debug("signal indicator")
		},
	}

	ctl := call.NewController(cfg, key, *outgoing, []byte("callctl"), callbacks)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := ctl.Start(ctx); err != nil {
		logrus.WithError(err).Fatal("failed to start controller")
	}
	defer ctl.Stop()

	if capability, ok, err := store.LoadProxyCapability(); err != nil {
		logrus.WithError(err).Warn("failed to load cached proxy capability")
	} else if ok {
		logrus.WithField("server", capability.Server).Info("loaded cached proxy capability")
	}

	if *peerAddr != "" {
		ep, err := resolveEndpoint(*peerAddr)
		if err != nil {
			logrus.WithError(err).Fatal("failed to resolve -peer")
		}
		ctl.SetRemoteEndpoints([]*endpoint.Endpoint{ep}, true, 0)
	}

	if *outgoing {
		ctl.Connect()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	fmt.Println("shutting down")
}

func parseKey(h string) ([256]byte, error) {
	var key [256]byte
	raw, err := hex.DecodeString(h)
	if err != nil {
		return key, err
	}
	if len(raw) != 256 {
		return key, fmt.Errorf("callctl: key must decode to 256 bytes, got %d", len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func resolveEndpoint(addr string) (*endpoint.Endpoint, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, err
	}
	v4 := udpAddr.IP.To4()
	v6 := udpAddr.IP
	if v4 != nil {
		v6 = nil
	}
	return endpoint.New(1, v4, v6, udpAddr.Port, [16]byte{}, endpoint.UDPRelay)
}
