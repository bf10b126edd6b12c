package cache

import (
	"sync/atomic"
)

// Stats counts cache-aside hits and misses, read by the observability layer.
type Stats struct {
	hits   atomic.Uint64
	misses atomic.Uint64
}

func (s *Stats) recordHit()  { s.hits.Add(1) }
func (s *Stats) recordMiss() { s.misses.Add(1) }

func (s *Stats) Snapshot() (hits, misses uint64, hitRate float64) {
	h := s.hits.Load()
	m := s.misses.Load()
	total := h + m
	if total == 0 {
		return h, m, 0.0
	}
	return h, m, float64(h) / float64(total)
}
