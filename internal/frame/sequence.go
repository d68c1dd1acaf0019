package frame

import (
	"fmt"
	"sync/atomic"
)

// Sequence is a cyclic counter in [0, 99]. It is advisory only, replies are never matched by it.
type Sequence struct {
	n atomic.Uint32
}

func NewSequence(start int) *Sequence {
	var s Sequence
	s.n.Store(uint32(((start % 100) + 100) % 100))
	return &s
}

// Next advances the counter and returns the new value.
func (s *Sequence) Next() int {
	for {
		cur := s.n.Load()
		next := (cur + 1) % 100
		if s.n.CompareAndSwap(cur, next) {
			return int(next)
		}
	}
}

func (s *Sequence) Current() int {
	return int(s.n.Load() % 100)
}

func FormatSeq(n int) string {
	return fmt.Sprintf("%02d", n%100)
}
