package iterative

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/netip"
	"slices"
	"time"

	"github.com/miekg/dns"

	"github.com/mikhailv/iterdns/internal/dnswire"
	"github.com/mikhailv/iterdns/internal/metrics"
)

const (
	DefaultPort         = 53
	DefaultTimeout      = 3 * time.Second
	DefaultMaxReferrals = 32
)

var ErrNotFound = errors.New("iterative: not found")

// Hop describes one upstream exchange made while resolving a name.
type Hop struct {
	Server  netip.Addr
	Phase   Phase
	Outcome Outcome
	RTT     time.Duration
	Elapsed time.Duration // since the resolution started
	// Lookup is set for the flat address lookups of delegated nameserver names.
	Lookup string
}

type Options struct {
	Port uint16
	// MaxReferrals caps the number of referrals followed for one name. A
	// resolution that reaches the cap terminates as ErrNotFound. Zero means
	// DefaultMaxReferrals.
	MaxReferrals int
}

type Resolver struct {
	logger       *slog.Logger
	exchanger    Exchanger
	roots        []netip.Addr
	port         uint16
	maxReferrals int
}

func NewResolver(logger *slog.Logger, exchanger Exchanger, roots []netip.Addr, opts Options) *Resolver {
	if len(roots) == 0 {
		panic("iterative: no root servers")
	}
	if opts.Port == 0 {
		opts.Port = DefaultPort
	}
	if opts.MaxReferrals <= 0 {
		opts.MaxReferrals = DefaultMaxReferrals
	}
	return &Resolver{
		logger:       logger,
		exchanger:    exchanger,
		roots:        slices.Clone(roots),
		port:         opts.Port,
		maxReferrals: opts.MaxReferrals,
	}
}

// Resolve walks the delegation chain from the root servers down to an
// address record for domain. It returns ErrNotFound when no server produced
// a usable answer.
func (r *Resolver) Resolve(ctx context.Context, domain string) (netip.Addr, error) {
	return r.Trace(ctx, domain, nil)
}

// Trace is Resolve reporting every upstream exchange to observe, which may be nil.
func (r *Resolver) Trace(ctx context.Context, domain string, observe func(Hop)) (netip.Addr, error) {
	defer metrics.TrackDuration("iterative.resolve")()

	t := tracer{start: time.Now(), observe: observe}
	query := dnswire.NewQuery(domain, dns.TypeA)
	logger := r.logger.With("domain", domain)

	servers := slices.Clone(r.roots)
	phase := PhaseRoot

	for referrals := 0; ; referrals++ {
		if err := ctx.Err(); err != nil {
			return netip.Addr{}, fmt.Errorf("iterative: resolve %s: %w", domain, err)
		}
		if referrals > r.maxReferrals {
			logger.Warn("too many referrals", "referrals", referrals)
			return r.notFound(domain)
		}

		out, ok := r.queryRound(ctx, query, servers, phase, &t)
		if !ok {
			logger.Debug("no server responded", "phase", phase, "servers", len(servers))
			return r.notFound(domain)
		}
		if addr, ok := out.Address(); ok {
			metrics.TrackStatus("iterative.resolve", "found")
			logger.Debug("resolved", "addr", addr, "phase", phase, "referrals", referrals)
			return addr, nil
		}

		servers = r.delegatedServers(ctx, out.Referral, phase, &t)
		if len(servers) == 0 {
			logger.Debug("referral without reachable nameservers", "phase", phase, "names", len(out.Referral.Names))
			return r.notFound(domain)
		}
		phase = phase.next()
	}
}

func (r *Resolver) notFound(domain string) (netip.Addr, error) {
	metrics.TrackStatus("iterative.resolve", "not_found")
	return netip.Addr{}, fmt.Errorf("%w: %s", ErrNotFound, domain)
}

// queryRound asks servers in order and returns the first usable outcome.
func (r *Resolver) queryRound(ctx context.Context, query *dns.Msg, servers []netip.Addr, phase Phase, t *tracer) (Outcome, bool) {
	for _, server := range servers {
		out := r.exchange(ctx, query, server, phase, "", t)
		if out.Usable() {
			return out, true
		}
		r.logger.Debug("server failed, trying next", "server", server, "phase", phase, "outcome", out.Kind, "info", out.Info())
		if ctx.Err() != nil {
			break
		}
	}
	return Outcome{}, false
}

// delegatedServers turns a referral into the next nameserver set. Without
// glue each nameserver name is looked up with a single query to the first
// root server; names whose lookup fails are skipped.
func (r *Resolver) delegatedServers(ctx context.Context, ref dnswire.Referral, phase Phase, t *tracer) []netip.Addr {
	if len(ref.Glue) > 0 {
		return slices.Clone(ref.Glue)
	}
	var servers []netip.Addr
	for _, name := range ref.Names {
		out := r.exchange(ctx, dnswire.NewQuery(name, dns.TypeA), r.roots[0], phase, name, t)
		if out.Kind == KindAnswer {
			servers = append(servers, out.Answers...)
		}
	}
	return servers
}

func (r *Resolver) exchange(ctx context.Context, query *dns.Msg, server netip.Addr, phase Phase, lookup string, t *tracer) Outcome {
	msg := query.Copy()
	msg.Id = dns.Id()

	st := time.Now()
	out := Classify(r.exchanger.Exchange(ctx, msg, netip.AddrPortFrom(server, r.port)))
	metrics.TrackStatus("iterative.exchange", out.Kind.String())

	t.report(Hop{
		Server:  server,
		Phase:   phase,
		Outcome: out,
		RTT:     time.Since(st),
		Lookup:  lookup,
	})
	return out
}

type tracer struct {
	start   time.Time
	observe func(Hop)
}

func (t *tracer) report(hop Hop) {
	if t.observe != nil {
		hop.Elapsed = time.Since(t.start)
		t.observe(hop)
	}
}
