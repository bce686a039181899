package telemetry

import (
	"context"
	"log/slog"
	"time"
)

// Sink receives per-cycle observations.
//
// Implementations must be safe for concurrent use when the caller runs
// cycles for different keys in parallel.
type Sink interface {
	// PhaseAttempt counts one invocation of a phase.
	PhaseAttempt(ctx context.Context, phase string)
	// PhaseRetry counts one retry of a phase (attempts after the first).
	PhaseRetry(ctx context.Context, phase string)
	// PhaseOutcome counts the final outcome of a phase and observes its duration.
	PhaseOutcome(ctx context.Context, phase, outcome string, d time.Duration)
	// CycleOutcome records whether a whole phase sequence succeeded.
	CycleOutcome(ctx context.Context, success bool)
	// RollingRates publishes the trend aggregator's view.
	RollingRates(ctx context.Context, cycles int, successRate, errorRate float64)
	// ParityOutcome records one parity comparison for a key.
	ParityOutcome(ctx context.Context, index, rule string, ok bool, diffCount int)
	// GatingDecision counts a routing decision by mode and reason.
	GatingDecision(ctx context.Context, index, rule, mode, reason string)
	// Promotion counts a cycle where the candidate was promoted.
	Promotion(ctx context.Context, index, rule string)
	// Churn publishes the hash-churn ratio for a key.
	Churn(ctx context.Context, index, rule string, ratio float64)
	// Rollback counts a rollback decision by reason.
	Rollback(ctx context.Context, index, rule, reason string)
	// ProtectedFieldDiff counts a diff on one allow-listed protected field.
	ProtectedFieldDiff(ctx context.Context, index, rule, field string)
}

// Nop discards everything.
type Nop struct{}

var _ Sink = Nop{}

func (Nop) PhaseAttempt(context.Context, string)                           {}
func (Nop) PhaseRetry(context.Context, string)                             {}
func (Nop) PhaseOutcome(context.Context, string, string, time.Duration)    {}
func (Nop) CycleOutcome(context.Context, bool)                             {}
func (Nop) RollingRates(context.Context, int, float64, float64)            {}
func (Nop) ParityOutcome(context.Context, string, string, bool, int)       {}
func (Nop) GatingDecision(context.Context, string, string, string, string) {}
func (Nop) Promotion(context.Context, string, string)                      {}
func (Nop) Churn(context.Context, string, string, float64)                 {}
func (Nop) Rollback(context.Context, string, string, string)               {}
func (Nop) ProtectedFieldDiff(context.Context, string, string, string)     {}

// Multi fans every observation out to each sink in order.
type Multi []Sink

var _ Sink = Multi(nil)

func (m Multi) PhaseAttempt(ctx context.Context, phase string) {
	for _, s := range m {
		s.PhaseAttempt(ctx, phase)
	}
}

func (m Multi) PhaseRetry(ctx context.Context, phase string) {
	for _, s := range m {
		s.PhaseRetry(ctx, phase)
	}
}

func (m Multi) PhaseOutcome(ctx context.Context, phase, outcome string, d time.Duration) {
	for _, s := range m {
		s.PhaseOutcome(ctx, phase, outcome, d)
	}
}

func (m Multi) CycleOutcome(ctx context.Context, success bool) {
	for _, s := range m {
		s.CycleOutcome(ctx, success)
	}
}

func (m Multi) RollingRates(ctx context.Context, cycles int, successRate, errorRate float64) {
	for _, s := range m {
		s.RollingRates(ctx, cycles, successRate, errorRate)
	}
}

func (m Multi) ParityOutcome(ctx context.Context, index, rule string, ok bool, diffCount int) {
	for _, s := range m {
		s.ParityOutcome(ctx, index, rule, ok, diffCount)
	}
}

func (m Multi) GatingDecision(ctx context.Context, index, rule, mode, reason string) {
	for _, s := range m {
		s.GatingDecision(ctx, index, rule, mode, reason)
	}
}

func (m Multi) Promotion(ctx context.Context, index, rule string) {
	for _, s := range m {
		s.Promotion(ctx, index, rule)
	}
}

func (m Multi) Churn(ctx context.Context, index, rule string, ratio float64) {
	for _, s := range m {
		s.Churn(ctx, index, rule, ratio)
	}
}

func (m Multi) Rollback(ctx context.Context, index, rule, reason string) {
	for _, s := range m {
		s.Rollback(ctx, index, rule, reason)
	}
}

func (m Multi) ProtectedFieldDiff(ctx context.Context, index, rule, field string) {
	for _, s := range m {
		s.ProtectedFieldDiff(ctx, index, rule, field)
	}
}

// Safe wraps a sink so that a panic inside any method is recovered and
// logged at debug level. A nil inner sink behaves like Nop.
func Safe(inner Sink, logger *slog.Logger) Sink {
	if inner == nil {
		inner = Nop{}
	}
	if s, ok := inner.(*safeSink); ok {
		return s
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &safeSink{inner: inner, logger: logger}
}

type safeSink struct {
	inner  Sink
	logger *slog.Logger
}

func (s *safeSink) guard(method string) {
	if r := recover(); r != nil {
		s.logger.Debug("metrics sink panicked", "method", method, "panic", r)
	}
}

func (s *safeSink) PhaseAttempt(ctx context.Context, phase string) {
	defer s.guard("PhaseAttempt")
	s.inner.PhaseAttempt(ctx, phase)
}

func (s *safeSink) PhaseRetry(ctx context.Context, phase string) {
	defer s.guard("PhaseRetry")
	s.inner.PhaseRetry(ctx, phase)
}

func (s *safeSink) PhaseOutcome(ctx context.Context, phase, outcome string, d time.Duration) {
	defer s.guard("PhaseOutcome")
	s.inner.PhaseOutcome(ctx, phase, outcome, d)
}

func (s *safeSink) CycleOutcome(ctx context.Context, success bool) {
	defer s.guard("CycleOutcome")
	s.inner.CycleOutcome(ctx, success)
}

func (s *safeSink) RollingRates(ctx context.Context, cycles int, successRate, errorRate float64) {
	defer s.guard("RollingRates")
	s.inner.RollingRates(ctx, cycles, successRate, errorRate)
}

func (s *safeSink) ParityOutcome(ctx context.Context, index, rule string, ok bool, diffCount int) {
	defer s.guard("ParityOutcome")
	s.inner.ParityOutcome(ctx, index, rule, ok, diffCount)
}

func (s *safeSink) GatingDecision(ctx context.Context, index, rule, mode, reason string) {
	defer s.guard("GatingDecision")
	s.inner.GatingDecision(ctx, index, rule, mode, reason)
}

func (s *safeSink) Promotion(ctx context.Context, index, rule string) {
	defer s.guard("Promotion")
	s.inner.Promotion(ctx, index, rule)
}

func (s *safeSink) Churn(ctx context.Context, index, rule string, ratio float64) {
	defer s.guard("Churn")
	s.inner.Churn(ctx, index, rule, ratio)
}

func (s *safeSink) Rollback(ctx context.Context, index, rule, reason string) {
	defer s.guard("Rollback")
	s.inner.Rollback(ctx, index, rule, reason)
}

func (s *safeSink) ProtectedFieldDiff(ctx context.Context, index, rule, field string) {
	defer s.guard("ProtectedFieldDiff")
	s.inner.ProtectedFieldDiff(ctx, index, rule, field)
}
