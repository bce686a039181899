package telemetry

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// countingSink records how many times each method was invoked.
type countingSink struct {
	Nop
	attempts  int
	decisions []string
}

func (c *countingSink) PhaseAttempt(context.Context, string) { c.attempts++ }

func (c *countingSink) GatingDecision(_ context.Context, _, _, mode, reason string) {
	c.decisions = append(c.decisions, mode+"/"+reason)
}

type panickingSink struct{ Nop }

func (panickingSink) PhaseAttempt(context.Context, string) { panic("boom") }

func (panickingSink) PhaseOutcome(context.Context, string, string, time.Duration) {
	panic("boom")
}

func TestMulti_FansOut(t *testing.T) {
	a, b := &countingSink{}, &countingSink{}
	m := Multi{a, b}

	m.PhaseAttempt(context.Background(), "fetch")
	m.GatingDecision(context.Background(), "NIFTY", "weekly", "promote", "parity_target_met")

	assert.Equal(t, 1, a.attempts)
	assert.Equal(t, 1, b.attempts)
	assert.Equal(t, []string{"promote/parity_target_met"}, a.decisions)
	assert.Equal(t, []string{"promote/parity_target_met"}, b.decisions)
}

func TestSafe_RecoversPanics(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	s := Safe(panickingSink{}, logger)

	assert.NotPanics(t, func() {
		s.PhaseAttempt(context.Background(), "fetch")
		s.PhaseOutcome(context.Background(), "fetch", "ok", time.Millisecond)
	})
	assert.Contains(t, buf.String(), "metrics sink panicked")
	assert.Contains(t, buf.String(), "method=PhaseAttempt")
}

func TestSafe_NilInnerIsNop(t *testing.T) {
	s := Safe(nil, nil)
	assert.NotPanics(t, func() {
		s.CycleOutcome(context.Background(), true)
	})
}

func TestSafe_DoesNotDoubleWrap(t *testing.T) {
	s := Safe(Nop{}, nil)
	assert.Same(t, s, Safe(s, nil))
}
