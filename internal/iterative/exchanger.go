package iterative

import (
	"context"
	"net/netip"
	"time"

	"github.com/miekg/dns"

	"github.com/mikhailv/iterdns/internal/metrics"
)

// Exchanger sends a single query to a nameserver and waits for its response.
type Exchanger interface {
	Exchange(ctx context.Context, msg *dns.Msg, server netip.AddrPort) (*dns.Msg, error)
}

var _ Exchanger = (*udpExchanger)(nil)

type udpExchanger struct {
	client dns.Client
}

// NewUDPExchanger returns an Exchanger bounding each exchange by timeout.
func NewUDPExchanger(timeout time.Duration) Exchanger {
	return &udpExchanger{
		client: dns.Client{
			Net:     "udp",
			Timeout: timeout,
		},
	}
}

func (s *udpExchanger) Exchange(ctx context.Context, msg *dns.Msg, server netip.AddrPort) (*dns.Msg, error) {
	defer metrics.TrackDuration("iterative.exchange")()
	resp, _, err := s.client.ExchangeContext(ctx, msg, server.String())
	return resp, err
}
