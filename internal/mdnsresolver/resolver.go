// Package mdnsresolver answers address lookups for link-local zones over multicast DNS.
package mdnsresolver

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/pion/mdns"
	"golang.org/x/net/ipv4"

	"github.com/mikhailv/iterdns/internal/config"
	"github.com/mikhailv/iterdns/internal/metrics"
)

type Resolver struct {
	address string
	domains config.DomainList
	timeout time.Duration
	conn    struct {
		sync.Mutex
		*mdns.Conn
	}
}

func New(cfg config.MDNS) *Resolver {
	return &Resolver{
		address: cfg.Addr,
		domains: cfg.Domains,
		timeout: cfg.Timeout,
	}
}

// Match reports whether domain belongs to one of the configured mDNS zones.
func (s *Resolver) Match(domain string) bool {
	return len(s.domains) > 0 && s.domains.Match(domain)
}

func (s *Resolver) Resolve(ctx context.Context, domain string) (netip.Addr, error) {
	defer metrics.TrackDuration("mdns.resolve")()
	conn, err := s.connection()
	if err != nil {
		return netip.Addr{}, err
	}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	_, src, err := conn.Query(ctx, strings.TrimSuffix(domain, "."))
	if err != nil {
		return netip.Addr{}, fmt.Errorf("mdns: query %s: %w", domain, err)
	}

	var ip net.IP
	switch v := src.(type) {
	case *net.IPAddr:
		ip = v.IP
	case *net.UDPAddr:
		ip = v.IP
	}
	addr, ok := netip.AddrFromSlice(ip.To4())
	if !ok {
		return netip.Addr{}, fmt.Errorf("mdns: no IPv4 address for %s in %v", domain, src)
	}
	return addr, nil
}

func (s *Resolver) Close() error {
	s.conn.Lock()
	defer s.conn.Unlock()
	if s.conn.Conn == nil {
		return nil
	}
	err := s.conn.Conn.Close()
	s.conn.Conn = nil
	return err
}

func (s *Resolver) connection() (*mdns.Conn, error) {
	s.conn.Lock()
	defer s.conn.Unlock()
	if s.conn.Conn != nil {
		return s.conn.Conn, nil
	}

	addr, err := net.ResolveUDPAddr("udp4", s.address)
	if err != nil {
		return nil, fmt.Errorf("mdns: resolve %s: %w", s.address, err)
	}
	pconn, err := net.ListenUDP("udp4", addr)
	if err != nil {
		return nil, fmt.Errorf("mdns: listen %s: %w", s.address, err)
	}
	conn, err := mdns.Server(ipv4.NewPacketConn(pconn), &mdns.Config{})
	if err != nil {
		_ = pconn.Close()
		return nil, fmt.Errorf("mdns: start: %w", err)
	}
	s.conn.Conn = conn
	return conn, nil
}
