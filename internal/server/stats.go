package server

import (
	"sync"
	"time"
)

// StatsSnapshot is a point-in-time copy of RequestStats.
type StatsSnapshot struct {
	TotalRequests int64   `json:"total_requests"`
	SlowRequests  int64   `json:"slow_requests"`
	AvgMillis     float64 `json:"avg_response_ms"`
	MaxMillis     float64 `json:"max_response_ms"`
}

// RequestStats keeps running request timing totals.
type RequestStats struct {
	mu            sync.Mutex
	slowThreshold time.Duration
	total         int64
	slow          int64
	avg           time.Duration
	max           time.Duration
}

// NewRequestStats counts requests longer than slowThreshold as slow.
func NewRequestStats(slowThreshold time.Duration) *RequestStats {
	return &RequestStats{slowThreshold: slowThreshold}
}

// Observe records one request and returns the updated snapshot plus whether the
// request was slow.
func (s *RequestStats) Observe(d time.Duration) (StatsSnapshot, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.total++
	s.avg += (d - s.avg) / time.Duration(s.total)
	if d > s.max {
		s.max = d
	}
	slow := s.slowThreshold > 0 && d > s.slowThreshold
	if slow {
		s.slow++
	}
	return s.snapshotLocked(), slow
}

// Snapshot returns the current totals.
func (s *RequestStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *RequestStats) snapshotLocked() StatsSnapshot {
	return StatsSnapshot{
		TotalRequests: s.total,
		SlowRequests:  s.slow,
		AvgMillis:     millis(s.avg),
		MaxMillis:     millis(s.max),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
