package pipeline

import "sync"

// DefaultTrendWindow is the number of cycles the trend aggregator keeps.
const DefaultTrendWindow = 100

// TrendSnapshot is the aggregator's view after an observation.
type TrendSnapshot struct {
	Cycles      int     `json:"cycles"`
	SuccessRate float64 `json:"success_rate"`
	ErrorRate   float64 `json:"error_rate"`
}

// Trend tracks the total cycle count and rolling success rate.
//
// Thread-safety: all methods are safe for concurrent use.
type Trend struct {
	mu     sync.Mutex
	ring   []bool
	next   int
	filled int
	total  int
}

// NewTrend creates an aggregator over the last window cycles.
func NewTrend(window int) *Trend {
	if window < 1 {
		window = DefaultTrendWindow
	}
	return &Trend{ring: make([]bool, window)}
}

// Observe records one cycle result and returns the updated view.
func (t *Trend) Observe(success bool) TrendSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ring[t.next] = success
	t.next = (t.next + 1) % len(t.ring)
	if t.filled < len(t.ring) {
		t.filled++
	}
	t.total++
	return t.snapshotLocked()
}

// Snapshot returns the current view without recording anything.
func (t *Trend) Snapshot() TrendSnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

func (t *Trend) snapshotLocked() TrendSnapshot {
	snap := TrendSnapshot{Cycles: t.total}
	if t.filled == 0 {
		return snap
	}
	ok := 0
	for i := 0; i < t.filled; i++ {
		if t.ring[i] {
			ok++
		}
	}
	snap.SuccessRate = float64(ok) / float64(t.filled)
	snap.ErrorRate = 1 - snap.SuccessRate
	return snap
}
