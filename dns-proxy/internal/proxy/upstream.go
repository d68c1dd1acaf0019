package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/mikhailv/iterdns/internal/dnswire"
	"github.com/mikhailv/iterdns/internal/frame"
	"github.com/mikhailv/iterdns/internal/metrics"
)

// replyGrace bounds the wait for the rest of a reply after its first bytes.
const replyGrace = 50 * time.Millisecond

var ErrUpstreamFailed = errors.New("proxy: upstream returned an error")

// FramedClient asks the framed resolution service for an address over a
// fresh TCP connection per request.
type FramedClient struct {
	addr     string
	timeout  time.Duration
	maxReply int
	seq      *frame.Sequence
	now      func() time.Time
}

func NewFramedClient(addr string, timeout time.Duration, maxReply int) *FramedClient {
	return &FramedClient{
		addr:     addr,
		timeout:  timeout,
		maxReply: maxReply,
		seq:      frame.NewSequence(0),
		now:      time.Now,
	}
}

func (c *FramedClient) Resolve(ctx context.Context, domain string) (netip.Addr, error) {
	defer metrics.TrackDuration("proxy.framed")()

	query, err := dnswire.BuildQuery(domain, dns.TypeA)
	if err != nil {
		return netip.Addr{}, err
	}
	// sequence advances even when the exchange below fails
	req := frame.Request{Header: frame.NewHeader(c.now(), c.seq.Next()), Payload: query}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", c.addr)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("proxy: failed to connect to %s: %w", c.addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if err = frame.WriteRequest(conn, req); err != nil {
		return netip.Addr{}, err
	}
	reply, err := readReply(conn, c.maxReply)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("proxy: failed to read reply: %w", err)
	}

	text := strings.TrimSpace(string(reply))
	if text == "" || frame.IsErrorReply(text) {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrUpstreamFailed, text)
	}
	addr, err := netip.ParseAddr(text)
	if err != nil || !addr.Is4() {
		return netip.Addr{}, fmt.Errorf("%w: unexpected reply %q", ErrUpstreamFailed, text)
	}
	return addr, nil
}

// readReply reads up to maxSize bytes until the service closes the connection.
// Once some bytes have arrived, the rest must follow within replyGrace; a
// service that keeps the connection open after answering does not cost the
// full timeout.
func readReply(conn net.Conn, maxSize int) ([]byte, error) {
	buf := make([]byte, maxSize)
	n := 0
	for n < len(buf) {
		m, err := conn.Read(buf[n:])
		if m > 0 && n == 0 {
			_ = conn.SetReadDeadline(time.Now().Add(replyGrace))
		}
		n += m
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			var ne net.Error
			if n > 0 && errors.As(err, &ne) && ne.Timeout() {
				break
			}
			return nil, err
		}
	}
	return buf[:n], nil
}

// Forward relays a raw datagram to a plain DNS resolver and returns its reply unchanged.
func Forward(ctx context.Context, addr string, timeout time.Duration, datagram []byte, maxSize int) ([]byte, error) {
	defer metrics.TrackDuration("proxy.fallback")()

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "udp", addr)
	if err != nil {
		return nil, fmt.Errorf("proxy: failed to dial fallback %s: %w", addr, err)
	}
	defer conn.Close()
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	if _, err = conn.Write(datagram); err != nil {
		return nil, fmt.Errorf("proxy: failed to send to fallback: %w", err)
	}
	buf := make([]byte, maxSize)
	n, err := conn.Read(buf)
	if err != nil {
		return nil, fmt.Errorf("proxy: no reply from fallback: %w", err)
	}
	return buf[:n], nil
}
