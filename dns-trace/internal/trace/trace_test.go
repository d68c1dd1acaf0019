package trace

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"net"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/miekg/dns"

	"github.com/mikhailv/iterdns/internal/iterative"
)

func TestHopWriter(t *testing.T) {
	var buf bytes.Buffer
	w := NewHopWriter(&buf, "example.com", time.Date(2024, 3, 9, 8, 5, 1, 0, time.UTC))

	answer := &dns.Msg{}
	answer.SetQuestion("example.com.", dns.TypeA)
	answer.Answer = []dns.RR{&dns.A{
		Hdr: dns.RR_Header{Name: "example.com.", Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
		A:   net.IPv4(192, 0, 2, 1),
	}}

	w.Observe(iterative.Hop{
		Server:  netip.MustParseAddr("198.41.0.4"),
		Phase:   iterative.PhaseRoot,
		Outcome: iterative.Classify(nil, context.DeadlineExceeded),
		RTT:     3 * time.Second,
		Elapsed: 3 * time.Second,
	})
	w.Observe(iterative.Hop{
		Server:  netip.MustParseAddr("199.9.14.201"),
		Phase:   iterative.PhaseRoot,
		Outcome: iterative.Classify(answer, nil),
		RTT:     12345 * time.Microsecond,
		Elapsed: 3012345 * time.Microsecond,
	})
	if err := w.Flush(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected header and 2 rows, got %d", len(records))
	}
	if strings.Join(records[0], ",") != "timestamp,domain,mode,dns_ip,step,result_type,round_trip_ms,total_ms,cache_status,response_info" {
		t.Errorf("unexpected header %v", records[0])
	}
	want := []string{"2024-03-09 08:05:01", "example.com", "UDP", "199.9.14.201", "root", "Answer", "12.345", "3012.345", "UNKNOWN", "1 answer(s)"}
	if strings.Join(records[2], "|") != strings.Join(want, "|") {
		t.Errorf("unexpected row %v", records[2])
	}
	if records[1][5] != "Timeout" {
		t.Errorf("expected Timeout result, got %q", records[1][5])
	}
}

func TestReadHosts(t *testing.T) {
	hosts, err := ReadHosts(strings.NewReader("  example.com \n\n\tgoogle.com\r\n   \nlast.example"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if strings.Join(hosts, ",") != "example.com,google.com,last.example" {
		t.Errorf("unexpected hosts %v", hosts)
	}
}

type hostResolverFunc func(ctx context.Context, host string) ([]string, error)

func (f hostResolverFunc) LookupHost(ctx context.Context, host string) ([]string, error) {
	return f(ctx, host)
}

func TestBench(t *testing.T) {
	resolver := hostResolverFunc(func(_ context.Context, host string) ([]string, error) {
		if host == "bad.example" {
			return nil, errors.New("no such host")
		}
		return []string{"192.0.2.1"}, nil
	})

	var out bytes.Buffer
	sum, err := Bench(context.Background(), resolver, []string{"a.example", "bad.example", "b.example"}, &out)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Total != 3 || sum.Success != 2 || sum.Fail != 1 {
		t.Errorf("unexpected summary %+v", sum)
	}

	records, err := csv.NewReader(&out).ReadAll()
	if err != nil {
		t.Fatalf("failed to read csv: %v", err)
	}
	if len(records) != 4 {
		t.Fatalf("expected 4 records, got %d", len(records))
	}
	if r := records[2]; r[0] != "bad.example" || r[2] != "FAIL" || r[3] != "no such host" {
		t.Errorf("unexpected failure row %v", r)
	}
	if r := records[1]; r[2] != "OK" || r[3] != "" {
		t.Errorf("unexpected success row %v", r)
	}

	var summary bytes.Buffer
	if _, err := sum.WriteTo(&summary); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, line := range []string{"SUMMARY", "Total queries: 3", "Success: 2", "Fail: 1"} {
		if !strings.Contains(summary.String(), line) {
			t.Errorf("summary misses %q:\n%s", line, summary.String())
		}
	}
}

func TestSummary_Empty(t *testing.T) {
	var sum Summary
	if sum.AverageLatency() != 0 || sum.Throughput() != 0 {
		t.Errorf("empty summary must report zeros")
	}
}

func TestServerResolver(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to listen: %v", err)
	}
	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, req *dns.Msg) {
			resp := &dns.Msg{}
			resp.SetReply(req)
			if req.Question[0].Name == "known.example." {
				resp.Answer = []dns.RR{&dns.A{
					Hdr: dns.RR_Header{Name: req.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
					A:   net.IPv4(192, 0, 2, 8),
				}}
			} else {
				resp.SetRcode(req, dns.RcodeNameError)
			}
			_ = w.WriteMsg(resp)
		}),
	}
	go func() { _ = srv.ActivateAndServe() }()
	t.Cleanup(func() { _ = srv.Shutdown() })
	<-started

	r := NewServerResolver(pc.LocalAddr().String(), time.Second)
	hosts, err := r.LookupHost(context.Background(), "known.example")
	if err != nil || len(hosts) != 1 || hosts[0] != "192.0.2.8" {
		t.Errorf("unexpected result %v, %v", hosts, err)
	}
	if _, err := r.LookupHost(context.Background(), "unknown.example"); err == nil || err.Error() != "NXDOMAIN" {
		t.Errorf("expected NXDOMAIN, got %v", err)
	}
}
