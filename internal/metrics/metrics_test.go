package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestTrackStatus(t *testing.T) {
	before := testutil.ToFloat64(operationStatusCounter.WithLabelValues("test.op", "ok"))
	TrackStatus("test.op", "ok")
	TrackStatus("test.op", "ok")
	if got := testutil.ToFloat64(operationStatusCounter.WithLabelValues("test.op", "ok")); got != before+2 {
		t.Errorf("expected %v, got %v", before+2, got)
	}
}

func TestTrackInflight(t *testing.T) {
	g := inflightGauge.WithLabelValues("test.inflight")
	done := TrackInflight("test.inflight")
	if v := testutil.ToFloat64(g); v != 1 {
		t.Errorf("expected 1 in flight, got %v", v)
	}
	done()
	if v := testutil.ToFloat64(g); v != 0 {
		t.Errorf("expected 0 in flight, got %v", v)
	}
}

func TestTrackDuration(t *testing.T) {
	TrackNamedDuration("test.duration", "x")()
	if n := testutil.CollectAndCount(operationDurationHistogram, "iterdns_operation_duration_seconds"); n == 0 {
		t.Error("expected histogram samples")
	}
}
