package frame

import (
	"sync"
	"testing"
)

func TestSequence_Cycle(t *testing.T) {
	for _, start := range []int{0, 7, 42, 99} {
		seq := NewSequence(start)
		for range 100 {
			if v := seq.Next(); v < 0 || v > 99 {
				t.Fatalf("value out of range: %d", v)
			}
		}
		if seq.Current() != start {
			t.Errorf("start %d: expected to return to start after 100 increments, got %d", start, seq.Current())
		}
	}
}

func TestSequence_Wrap(t *testing.T) {
	seq := NewSequence(98)
	got := []string{FormatSeq(seq.Next()), FormatSeq(seq.Next()), FormatSeq(seq.Next())}
	want := []string{"99", "00", "01"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("step %d: expected %s, got %s", i, want[i], got[i])
		}
	}
	if s := FormatSeq(7); s != "07" {
		t.Errorf("expected 07, got %s", s)
	}
}

func TestSequence_Concurrent(t *testing.T) {
	var seq Sequence
	var wg sync.WaitGroup
	for range 10 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 100 {
				seq.Next()
			}
		}()
	}
	wg.Wait()
	if seq.Current() != 0 {
		t.Errorf("expected 1000 increments to land on 0, got %d", seq.Current())
	}
}
