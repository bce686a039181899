package telemetry

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "chainshadow"

// Prometheus is a Sink backed by client_golang collectors.
//
// Collectors are registered on the Registerer passed to NewPrometheus, so
// tests can use a private registry and production can use the default one.
type Prometheus struct {
	phaseAttempts  *prometheus.CounterVec
	phaseRetries   *prometheus.CounterVec
	phaseOutcomes  *prometheus.CounterVec
	phaseDuration  *prometheus.HistogramVec
	cycles         *prometheus.CounterVec
	cycleSuccess   prometheus.Gauge
	rollingCycles  prometheus.Gauge
	rollingSuccess prometheus.Gauge
	rollingErrors  prometheus.Gauge
	parityChecks   *prometheus.CounterVec
	parityDiffs    *prometheus.CounterVec
	decisions      *prometheus.CounterVec
	promotions     *prometheus.CounterVec
	churnRatio     *prometheus.GaugeVec
	rollbacks      *prometheus.CounterVec
	protectedDiffs *prometheus.CounterVec
}

var _ Sink = (*Prometheus)(nil)

// NewPrometheus creates the collectors and registers them on reg.
func NewPrometheus(reg prometheus.Registerer) (*Prometheus, error) {
	p := &Prometheus{
		phaseAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "phase", Name: "attempts_total",
			Help: "Phase invocations, including retries.",
		}, []string{"phase"}),
		phaseRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "phase", Name: "retries_total",
			Help: "Phase invocations after the first attempt.",
		}, []string{"phase"}),
		phaseOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "phase", Name: "outcomes_total",
			Help: "Final phase outcomes.",
		}, []string{"phase", "outcome"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace, Subsystem: "phase", Name: "duration_seconds",
			Help:    "Phase duration across all attempts, in seconds.",
			Buckets: prometheus.DefBuckets,
		}, []string{"phase", "outcome"}),
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "cycle", Name: "total",
			Help: "Phase sequences executed, by result.",
		}, []string{"result"}),
		cycleSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cycle", Name: "last_success",
			Help: "1 if the most recent phase sequence succeeded, else 0.",
		}),
		rollingCycles: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cycle", Name: "count",
			Help: "Phase sequences seen by the trend aggregator.",
		}),
		rollingSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cycle", Name: "rolling_success_rate",
			Help: "Success rate over the trend window.",
		}),
		rollingErrors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "cycle", Name: "rolling_error_rate",
			Help: "Error rate over the trend window.",
		}),
		parityChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parity", Name: "checks_total",
			Help: "Parity comparisons, by result (ok or diff).",
		}, []string{"index", "rule", "result"}),
		parityDiffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parity", Name: "diff_fields_total",
			Help: "Differing fields summed over parity comparisons.",
		}, []string{"index", "rule"}),
		decisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gating", Name: "decisions_total",
			Help: "Gating decisions by mode and reason.",
		}, []string{"index", "rule", "mode", "reason"}),
		promotions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gating", Name: "promotions_total",
			Help: "Cycles where the candidate path was promoted.",
		}, []string{"index", "rule"}),
		churnRatio: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "gating", Name: "hash_churn_ratio",
			Help: "Distinct parity hashes divided by window size.",
		}, []string{"index", "rule"}),
		rollbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "gating", Name: "rollbacks_total",
			Help: "Rollback decisions by reason.",
		}, []string{"index", "rule", "reason"}),
		protectedDiffs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "parity", Name: "protected_field_diffs_total",
			Help: "Diffs on allow-listed protected fields.",
		}, []string{"index", "rule", "field"}),
	}

	collectors := []prometheus.Collector{
		p.phaseAttempts, p.phaseRetries, p.phaseOutcomes, p.phaseDuration,
		p.cycles, p.cycleSuccess, p.rollingCycles, p.rollingSuccess, p.rollingErrors,
		p.parityChecks, p.parityDiffs, p.decisions, p.promotions, p.churnRatio,
		p.rollbacks, p.protectedDiffs,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register prometheus collector: %w", err)
		}
	}
	return p, nil
}

func (p *Prometheus) PhaseAttempt(_ context.Context, phase string) {
	p.phaseAttempts.WithLabelValues(phase).Inc()
}

func (p *Prometheus) PhaseRetry(_ context.Context, phase string) {
	p.phaseRetries.WithLabelValues(phase).Inc()
}

func (p *Prometheus) PhaseOutcome(_ context.Context, phase, outcome string, d time.Duration) {
	p.phaseOutcomes.WithLabelValues(phase, outcome).Inc()
	p.phaseDuration.WithLabelValues(phase, outcome).Observe(d.Seconds())
}

func (p *Prometheus) CycleOutcome(_ context.Context, success bool) {
	result := "failure"
	value := 0.0
	if success {
		result = "success"
		value = 1
	}
	p.cycles.WithLabelValues(result).Inc()
	p.cycleSuccess.Set(value)
}

func (p *Prometheus) RollingRates(_ context.Context, cycles int, successRate, errorRate float64) {
	p.rollingCycles.Set(float64(cycles))
	p.rollingSuccess.Set(successRate)
	p.rollingErrors.Set(errorRate)
}

func (p *Prometheus) ParityOutcome(_ context.Context, index, rule string, ok bool, diffCount int) {
	result := "diff"
	if ok {
		result = "ok"
	}
	p.parityChecks.WithLabelValues(index, rule, result).Inc()
	if diffCount > 0 {
		p.parityDiffs.WithLabelValues(index, rule).Add(float64(diffCount))
	}
}

func (p *Prometheus) GatingDecision(_ context.Context, index, rule, mode, reason string) {
	p.decisions.WithLabelValues(index, rule, mode, reason).Inc()
}

func (p *Prometheus) Promotion(_ context.Context, index, rule string) {
	p.promotions.WithLabelValues(index, rule).Inc()
}

func (p *Prometheus) Churn(_ context.Context, index, rule string, ratio float64) {
	p.churnRatio.WithLabelValues(index, rule).Set(ratio)
}

func (p *Prometheus) Rollback(_ context.Context, index, rule, reason string) {
	p.rollbacks.WithLabelValues(index, rule, reason).Inc()
}

func (p *Prometheus) ProtectedFieldDiff(_ context.Context, index, rule, field string) {
	p.protectedDiffs.WithLabelValues(index, rule, field).Inc()
}
