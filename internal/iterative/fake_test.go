package iterative

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"

	"github.com/miekg/dns"
)

type handlerFunc func(req *dns.Msg) (*dns.Msg, error)

// fakeNetwork routes exchanges to in-memory nameservers. Unknown servers time out.
type fakeNetwork struct {
	mu      sync.Mutex
	servers map[netip.Addr]handlerFunc
	calls   []netip.AddrPort
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{servers: map[netip.Addr]handlerFunc{}}
}

func (n *fakeNetwork) handle(addr string, h handlerFunc) {
	n.servers[netip.MustParseAddr(addr)] = h
}

func (n *fakeNetwork) Exchange(ctx context.Context, msg *dns.Msg, server netip.AddrPort) (*dns.Msg, error) {
	n.mu.Lock()
	n.calls = append(n.calls, server)
	h, ok := n.servers[server.Addr()]
	n.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !ok {
		return nil, &net.OpError{Op: "read", Net: "udp", Err: timeoutError{}}
	}
	return h(msg)
}

func (n *fakeNetwork) calledServers() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	res := make([]string, len(n.calls))
	for i, c := range n.calls {
		res[i] = c.Addr().String()
	}
	return res
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func answer(ips ...string) handlerFunc {
	return func(req *dns.Msg) (*dns.Msg, error) {
		resp := &dns.Msg{}
		resp.SetReply(req)
		for _, ip := range ips {
			resp.Answer = append(resp.Answer, aRecord(req.Question[0].Name, ip))
		}
		return resp, nil
	}
}

// referral delegates to the given nameservers; an empty ip means no glue for that name.
func referral(zone string, ns map[string]string) handlerFunc {
	return func(req *dns.Msg) (*dns.Msg, error) {
		resp := &dns.Msg{}
		resp.SetReply(req)
		for name, ip := range ns {
			resp.Ns = append(resp.Ns, &dns.NS{
				Hdr: dns.RR_Header{Name: zone, Rrtype: dns.TypeNS, Class: dns.ClassINET, Ttl: 3600},
				Ns:  name,
			})
			if ip != "" {
				resp.Extra = append(resp.Extra, aRecord(name, ip))
			}
		}
		return resp, nil
	}
}

func rcode(code int) handlerFunc {
	return func(req *dns.Msg) (*dns.Msg, error) {
		resp := &dns.Msg{}
		resp.SetRcode(req, code)
		return resp, nil
	}
}

func aRecord(name, ip string) *dns.A {
	return &dns.A{
		Hdr: dns.RR_Header{Name: name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 300},
		A:   net.ParseIP(ip).To4(),
	}
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func addrs(ss ...string) []netip.Addr {
	res := make([]netip.Addr, len(ss))
	for i, s := range ss {
		res[i] = netip.MustParseAddr(s)
	}
	return res
}
