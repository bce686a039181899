package testutil

import (
	"context"
	"sync"
	"time"
)

// FakeSleeper records requested delays instead of sleeping.
//
// If Clock is set, each sleep advances it by the requested delay.
// If FailAfter is positive, the FailAfter-th call and every later one
// return context.Canceled.
type FakeSleeper struct {
	mu        sync.Mutex
	delays    []time.Duration
	Clock     *DeterministicClock
	FailAfter int
}

// Sleep records d. It honours ctx cancellation without blocking.
func (s *FakeSleeper) Sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delays = append(s.delays, d)
	if s.FailAfter > 0 && len(s.delays) >= s.FailAfter {
		return context.Canceled
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.Clock != nil {
		s.Clock.Advance(d)
	}
	return nil
}

// Delays returns a copy of every delay requested so far.
func (s *FakeSleeper) Delays() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]time.Duration, len(s.delays))
	copy(out, s.delays)
	return out
}
