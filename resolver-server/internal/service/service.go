package service

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"time"

	"github.com/mikhailv/iterdns/internal/iterative"
	"github.com/mikhailv/iterdns/internal/metrics"
)

type AddressResolver interface {
	Resolve(ctx context.Context, domain string) (netip.Addr, error)
}

type LocalResolver interface {
	AddressResolver
	Match(domain string) bool
}

// ResolutionService resolves names through the iterative engine, handing
// names of link-local zones to the local resolver when one is configured.
type ResolutionService struct {
	logger    *slog.Logger
	iterative *iterative.Resolver
	local     LocalResolver
}

func NewResolutionService(logger *slog.Logger, resolver *iterative.Resolver, local LocalResolver) *ResolutionService {
	return &ResolutionService{
		logger:    logger,
		iterative: resolver,
		local:     local,
	}
}

func (s *ResolutionService) Resolve(ctx context.Context, domain string) (netip.Addr, error) {
	return s.Trace(ctx, domain, nil)
}

func (s *ResolutionService) Trace(ctx context.Context, domain string, observe func(iterative.Hop)) (netip.Addr, error) {
	if s.local != nil && s.local.Match(domain) {
		return s.resolveLocal(ctx, domain)
	}
	return s.iterative.Trace(ctx, domain, observe)
}

func (s *ResolutionService) resolveLocal(ctx context.Context, domain string) (netip.Addr, error) {
	st := time.Now()
	addr, err := s.local.Resolve(ctx, domain)
	if err != nil {
		metrics.TrackStatus("service.local", "not_found")
		s.logger.Debug("local lookup failed", "domain", domain, "err", err, "took", time.Since(st))
		return netip.Addr{}, fmt.Errorf("%w: %s", iterative.ErrNotFound, domain)
	}
	metrics.TrackStatus("service.local", "found")
	return addr, nil
}
