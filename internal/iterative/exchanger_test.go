package iterative

import (
	"context"
	"errors"
	"net"
	"net/netip"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startNameserver runs a miekg/dns server on a loopback UDP port.
func startNameserver(t *testing.T, handler dns.HandlerFunc) netip.AddrPort {
	t.Helper()
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	started := make(chan struct{})
	srv := &dns.Server{PacketConn: pc, Handler: handler, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	<-started
	return netip.MustParseAddrPort(pc.LocalAddr().String())
}

func TestUDPExchanger_Resolve(t *testing.T) {
	t.Parallel()

	addr := startNameserver(t, func(w dns.ResponseWriter, req *dns.Msg) {
		resp, _ := answer("192.0.2.55")(req)
		_ = w.WriteMsg(resp)
	})

	r := NewResolver(discardLogger(), NewUDPExchanger(time.Second), []netip.Addr{addr.Addr()}, Options{Port: addr.Port()})
	got, err := r.Resolve(context.Background(), "example.test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.String() != "192.0.2.55" {
		t.Errorf("unexpected address %s", got)
	}
}

func TestUDPExchanger_ServerFailure(t *testing.T) {
	t.Parallel()

	addr := startNameserver(t, func(w dns.ResponseWriter, req *dns.Msg) {
		resp, _ := rcode(dns.RcodeServerFailure)(req)
		_ = w.WriteMsg(resp)
	})

	r := NewResolver(discardLogger(), NewUDPExchanger(time.Second), []netip.Addr{addr.Addr()}, Options{Port: addr.Port()})
	if _, err := r.Resolve(context.Background(), "example.test"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUDPExchanger_Timeout(t *testing.T) {
	t.Parallel()

	// a socket that never answers
	pc, err := net.ListenPacket("udp4", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	defer pc.Close()
	addr := netip.MustParseAddrPort(pc.LocalAddr().String())

	var hops []Hop
	r := NewResolver(discardLogger(), NewUDPExchanger(200*time.Millisecond), []netip.Addr{addr.Addr()}, Options{Port: addr.Port()})
	_, err = r.Trace(context.Background(), "example.test", func(h Hop) { hops = append(hops, h) })
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if len(hops) != 1 || hops[0].Outcome.Kind != KindTimeout {
		t.Errorf("expected a single timed out hop, got %+v", hops)
	}
}
