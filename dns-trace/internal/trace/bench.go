package trace

import (
	"bufio"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"time"

	"github.com/miekg/dns"

	"github.com/mikhailv/iterdns/internal/dnswire"
	"github.com/mikhailv/iterdns/internal/metrics"
)

type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// ServerResolver looks hosts up with a single A query against one DNS server.
type ServerResolver struct {
	client *dns.Client
	server string
}

func NewServerResolver(server string, timeout time.Duration) *ServerResolver {
	if _, _, err := net.SplitHostPort(server); err != nil {
		server = net.JoinHostPort(server, "53")
	}
	return &ServerResolver{
		client: &dns.Client{Net: "udp", Timeout: timeout},
		server: server,
	}
}

func (r *ServerResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	resp, _, err := r.client.ExchangeContext(ctx, dnswire.NewQuery(host, dns.TypeA), r.server)
	if err != nil {
		return nil, err
	}
	if resp.Rcode != dns.RcodeSuccess {
		return nil, errors.New(dns.RcodeToString[resp.Rcode])
	}
	addrs := dnswire.Addresses(resp.Answer)
	if len(addrs) == 0 {
		return nil, errors.New("no address records")
	}
	hosts := make([]string, 0, len(addrs))
	for _, addr := range addrs {
		hosts = append(hosts, addr.String())
	}
	return hosts, nil
}

// ReadHosts returns the trimmed non-blank lines of r.
func ReadHosts(r io.Reader) ([]string, error) {
	var hosts []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		if host := strings.TrimSpace(sc.Text()); host != "" {
			hosts = append(hosts, host)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read hosts: %w", err)
	}
	return hosts, nil
}

type Summary struct {
	Total   int
	Success int
	Fail    int
	Elapsed time.Duration
	Latency time.Duration // summed over every query, failures included
}

func (s Summary) AverageLatency() time.Duration {
	if s.Total == 0 {
		return 0
	}
	return s.Latency / time.Duration(s.Total)
}

// Throughput is successful resolutions per second.
func (s Summary) Throughput() float64 {
	if s.Elapsed <= 0 {
		return 0
	}
	return float64(s.Success) / s.Elapsed.Seconds()
}

func (s Summary) WriteTo(w io.Writer) (int64, error) {
	n, err := fmt.Fprintf(w, "\nSUMMARY\n"+
		"Total queries: %d\n"+
		"Success: %d\n"+
		"Fail: %d\n"+
		"Total elapsed time (s): %.4f\n"+
		"Average latency per query (ms) (incl failures): %s\n"+
		"Throughput (successful resolutions/sec): %.3f\n",
		s.Total, s.Success, s.Fail, s.Elapsed.Seconds(), formatMs(s.AverageLatency()), s.Throughput())
	return int64(n), err
}

// Bench resolves hosts one after another and writes a CSV row per host.
func Bench(ctx context.Context, resolver HostResolver, hosts []string, out io.Writer) (Summary, error) {
	w := csv.NewWriter(out)
	if err := w.Write([]string{"hostname", "latency_ms", "result", "errstr"}); err != nil {
		return Summary{}, err
	}

	var sum Summary
	st := time.Now()
	for _, host := range hosts {
		if ctx.Err() != nil {
			break
		}
		sum.Total++
		t1 := time.Now()
		_, err := resolver.LookupHost(ctx, host)
		took := time.Since(t1)
		sum.Latency += took

		result, errstr := "OK", ""
		if err != nil {
			sum.Fail++
			result, errstr = "FAIL", err.Error()
			metrics.TrackStatus("trace.bench", "fail")
		} else {
			sum.Success++
			metrics.TrackStatus("trace.bench", "ok")
		}
		if err := w.Write([]string{host, formatMs(took), result, errstr}); err != nil {
			return sum, err
		}
	}
	sum.Elapsed = time.Since(st)

	w.Flush()
	return sum, w.Error()
}
