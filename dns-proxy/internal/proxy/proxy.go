package proxy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/netip"
	"time"

	"github.com/mikhailv/iterdns/internal/dnswire"
	"github.com/mikhailv/iterdns/internal/log"
	"github.com/mikhailv/iterdns/internal/metrics"
)

type Resolver interface {
	Resolve(ctx context.Context, domain string) (netip.Addr, error)
}

type Options struct {
	Fallback        string
	FallbackTimeout time.Duration
	TTL             uint32
	MaxDatagramSize int
}

// Proxy answers plain DNS over UDP. Each datagram is handled to completion
// before the next one is read.
type Proxy struct {
	addr     string
	logger   *slog.Logger
	resolver Resolver
	opts     Options
}

func New(addr string, logger *slog.Logger, resolver Resolver, opts Options) *Proxy {
	if opts.MaxDatagramSize <= 0 {
		opts.MaxDatagramSize = 512
	}
	if opts.TTL == 0 {
		opts.TTL = dnswire.DefaultReplyTTL
	}
	return &Proxy{
		addr:     addr,
		logger:   logger,
		resolver: resolver,
		opts:     opts,
	}
}

func (p *Proxy) Serve(ctx context.Context) error {
	conn, err := net.ListenPacket("udp", p.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", p.addr, err)
	}
	return p.ServeConn(ctx, conn)
}

func (p *Proxy) ServeConn(ctx context.Context, conn net.PacketConn) error {
	stop := context.AfterFunc(ctx, func() {
		p.logger.Info("shutting down proxy...")
		_ = conn.Close()
	})
	defer stop()

	p.logger.Info("proxy starting...", "addr", conn.LocalAddr().String())
	buf := make([]byte, p.opts.MaxDatagramSize)
	for {
		n, client, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			p.logger.Warn("failed to read datagram", "err", err)
			continue
		}
		datagram := make([]byte, n)
		copy(datagram, buf[:n])

		reply := p.Handle(ctx, datagram)
		if reply == nil {
			continue
		}
		if _, err := conn.WriteTo(reply, client); err != nil {
			p.logger.Warn("failed to write reply", "client", client.String(), "err", err)
		}
	}
}

// Handle returns the reply datagram for a query, or nil when the client
// should get no reply at all.
func (p *Proxy) Handle(ctx context.Context, datagram []byte) []byte {
	defer metrics.TrackDuration("proxy.handle")()

	q, err := dnswire.ParseQuestion(datagram)
	if err != nil {
		p.logger.Debug("dropping malformed datagram", "len", len(datagram), "err", err)
		metrics.TrackStatus("proxy.handle", "dropped")
		return nil
	}
	logger := p.logger.With("domain", q.Domain(), "id", q.ID)
	defer log.Profile(logger, "proxying query")()

	addr, err := p.resolver.Resolve(ctx, q.Domain())
	if err == nil {
		reply, err := dnswire.BuildAddressReply(q.ID, q.Raw, addr, p.opts.TTL)
		if err == nil {
			metrics.TrackStatus("proxy.handle", "custom")
			return reply
		}
		logger.Warn("failed to build reply", "addr", addr, "err", err)
	} else {
		logger.Debug("custom path failed, using fallback", "err", err)
	}

	reply, err := Forward(ctx, p.opts.Fallback, p.opts.FallbackTimeout, datagram, p.opts.MaxDatagramSize)
	if err != nil {
		logger.Debug("fallback failed, dropping query", "err", err)
		metrics.TrackStatus("proxy.handle", "no_reply")
		return nil
	}
	metrics.TrackStatus("proxy.handle", "fallback")
	return reply
}
