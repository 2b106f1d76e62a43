package metrics

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats holds the process-scoped counters behind GET /api/stats. The zero
// value is not usable; call NewStats.
type Stats struct {
	started  time.Time
	now      func() time.Time
	requests atomic.Uint64

	mu       sync.Mutex
	outcomes map[string]uint64
}

// Snapshot is a point-in-time copy of Stats.
type Snapshot struct {
	Requests uint64
	Outcomes map[string]uint64
	Uptime   time.Duration
}

func NewStats() *Stats {
	return newStatsAt(time.Now)
}

func newStatsAt(now func() time.Time) *Stats {
	return &Stats{
		started:  now(),
		now:      now,
		outcomes: make(map[string]uint64),
	}
}

func (s *Stats) ObserveRequest(_ string, outcome string) {
	s.requests.Add(1)
	s.mu.Lock()
	s.outcomes[outcome]++
	s.mu.Unlock()
}

func (s *Stats) ObserveProviderCall(string, time.Duration) {}

func (s *Stats) Requests() uint64 {
	return s.requests.Load()
}

func (s *Stats) Snapshot() Snapshot {
	s.mu.Lock()
	outcomes := make(map[string]uint64, len(s.outcomes))
	for k, v := range s.outcomes {
		outcomes[k] = v
	}
	s.mu.Unlock()
	return Snapshot{
		Requests: s.requests.Load(),
		Outcomes: outcomes,
		Uptime:   s.now().Sub(s.started),
	}
}
