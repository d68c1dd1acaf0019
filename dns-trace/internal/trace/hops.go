package trace

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/mikhailv/iterdns/internal/iterative"
)

const (
	timestampLayout = "2006-01-02 15:04:05"
	transportMode   = "UDP"
	cacheStatus     = "UNKNOWN"
)

var hopHeader = []string{
	"timestamp", "domain", "mode", "dns_ip", "step", "result_type",
	"round_trip_ms", "total_ms", "cache_status", "response_info",
}

// HopWriter writes one CSV row per upstream exchange of a resolution.
type HopWriter struct {
	w         *csv.Writer
	domain    string
	timestamp string
	err       error
}

func NewHopWriter(w io.Writer, domain string, started time.Time) *HopWriter {
	h := &HopWriter{
		w:         csv.NewWriter(w),
		domain:    domain,
		timestamp: started.Format(timestampLayout),
	}
	h.err = h.w.Write(hopHeader)
	return h
}

// Observe matches the resolver's hop observer signature. The first write
// error is kept and returned by Flush.
func (h *HopWriter) Observe(hop iterative.Hop) {
	if h.err != nil {
		return
	}
	info := hop.Outcome.Info()
	if hop.Lookup != "" {
		info = fmt.Sprintf("lookup %s: %s", hop.Lookup, info)
	}
	h.err = h.w.Write([]string{
		h.timestamp,
		h.domain,
		transportMode,
		hop.Server.String(),
		hop.Phase.String(),
		hop.Outcome.ResultType(),
		formatMs(hop.RTT),
		formatMs(hop.Elapsed),
		cacheStatus,
		info,
	})
}

func (h *HopWriter) Flush() error {
	h.w.Flush()
	if h.err != nil {
		return h.err
	}
	return h.w.Error()
}

func formatMs(d time.Duration) string {
	return strconv.FormatFloat(float64(d.Nanoseconds())/1e6, 'f', 3, 64)
}
