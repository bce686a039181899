package pipeline

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"time"

	"github.com/roach88/chainshadow/internal/ir"
)

// maxShift bounds the exponent. Delay saturates at the ceiling before
// shifting, so larger shifts could only overflow.
const maxShift = 30

// RetryPolicy bounds retries of recoverable failures.
type RetryPolicy struct {
	Enabled bool
	// MaxAttempts counts the first invocation. Values below 1 mean 1.
	MaxAttempts int
	BaseDelay   time.Duration
	// MaxDelay caps every delay, jitter included.
	MaxDelay time.Duration
	// MaxJitter bounds the deterministic jitter. It is further clamped to
	// BaseDelay so that delays never decrease between attempts.
	MaxJitter time.Duration
}

// DefaultRetryPolicy returns retry disabled with conservative bounds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		Enabled:     false,
		MaxAttempts: 3,
		BaseDelay:   200 * time.Millisecond,
		MaxDelay:    5 * time.Second,
		MaxJitter:   50 * time.Millisecond,
	}
}

// Validate reports the first invalid field.
func (p RetryPolicy) Validate() error {
	switch {
	case p.MaxAttempts < 1:
		return fmt.Errorf("retry max attempts must be >= 1, got %d", p.MaxAttempts)
	case p.BaseDelay < 0:
		return fmt.Errorf("retry base delay must be >= 0, got %s", p.BaseDelay)
	case p.MaxDelay < p.BaseDelay:
		return fmt.Errorf("retry max delay %s is below base delay %s", p.MaxDelay, p.BaseDelay)
	case p.MaxJitter < 0:
		return fmt.Errorf("retry max jitter must be >= 0, got %s", p.MaxJitter)
	}
	return nil
}

func (p RetryPolicy) maxAttempts() int {
	if p.MaxAttempts < 1 {
		return 1
	}
	return p.MaxAttempts
}

// CanRetry reports whether a recoverable failure on attempt may be retried.
func (p RetryPolicy) CanRetry(attempt int) bool {
	return p.Enabled && attempt < p.maxAttempts()
}

// Delay returns the sleep before retrying after a failed attempt.
//
// delay = min(BaseDelay * 2^(attempt-1) + jitter, MaxDelay)
//
// The jitter is derived from SHA-256 over (phase, key, attempt), so the same
// inputs always produce the same schedule.
func (p RetryPolicy) Delay(phase string, key Key, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	shift := attempt - 1
	if shift > maxShift {
		shift = maxShift
	}
	ceiling := p.MaxDelay
	if ceiling <= 0 {
		ceiling = math.MaxInt64
	}
	// Saturate before shifting: base<<shift > ceiling iff base > ceiling>>shift.
	if p.BaseDelay > ceiling>>shift {
		return ceiling
	}
	delay := p.BaseDelay << shift
	if j := p.jitter(phase, key, attempt); delay > ceiling-j {
		delay = ceiling
	} else {
		delay += j
	}
	return delay
}

func (p RetryPolicy) jitter(phase string, key Key, attempt int) time.Duration {
	bound := p.MaxJitter
	if bound > p.BaseDelay {
		bound = p.BaseDelay
	}
	if bound <= 0 {
		return 0
	}
	seed := fmt.Sprintf("%s:%s:%s:%d", phase, key.Index, key.Rule, attempt)
	sum := ir.DigestBytes(ir.DomainJitter, []byte(seed))
	basis := binary.BigEndian.Uint64(sum[:8])
	return time.Duration(basis % uint64(bound+1)) //nolint:gosec // bound is positive
}

// Sleeper blocks between retry attempts.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer and wakes early if ctx is done.
type TimerSleeper struct{}

// Sleep implements Sleeper.
func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
