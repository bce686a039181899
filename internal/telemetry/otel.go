package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// OTel is a Sink backed by OpenTelemetry metric instruments.
// The meter comes from whatever MeterProvider the process installed.
type OTel struct {
	phaseAttempts  metric.Int64Counter
	phaseRetries   metric.Int64Counter
	phaseOutcomes  metric.Int64Counter
	phaseDuration  metric.Float64Histogram
	cycles         metric.Int64Counter
	cycleSuccess   metric.Int64Gauge
	rollingCycles  metric.Int64Gauge
	rollingSuccess metric.Float64Gauge
	rollingErrors  metric.Float64Gauge
	parityChecks   metric.Int64Counter
	parityDiffs    metric.Int64Counter
	decisions      metric.Int64Counter
	promotions     metric.Int64Counter
	churnRatio     metric.Float64Gauge
	rollbacks      metric.Int64Counter
	protectedDiffs metric.Int64Counter
}

var _ Sink = (*OTel)(nil)

// NewOTel creates all instruments on meter.
func NewOTel(meter metric.Meter) (*OTel, error) {
	o := &OTel{}
	var err error

	counter := func(name, desc, unit string) metric.Int64Counter {
		if err != nil {
			return nil
		}
		var c metric.Int64Counter
		c, err = meter.Int64Counter(name, metric.WithDescription(desc), metric.WithUnit(unit))
		return c
	}
	intGauge := func(name, desc string) metric.Int64Gauge {
		if err != nil {
			return nil
		}
		var g metric.Int64Gauge
		g, err = meter.Int64Gauge(name, metric.WithDescription(desc))
		return g
	}
	floatGauge := func(name, desc string) metric.Float64Gauge {
		if err != nil {
			return nil
		}
		var g metric.Float64Gauge
		g, err = meter.Float64Gauge(name, metric.WithDescription(desc))
		return g
	}

	o.phaseAttempts = counter("chainshadow.phase.attempts", "Phase invocations, including retries", "{attempt}")
	o.phaseRetries = counter("chainshadow.phase.retries", "Phase invocations after the first attempt", "{attempt}")
	o.phaseOutcomes = counter("chainshadow.phase.outcomes", "Final phase outcomes", "{phase}")
	o.cycles = counter("chainshadow.cycle.total", "Phase sequences executed", "{cycle}")
	o.cycleSuccess = intGauge("chainshadow.cycle.last_success", "1 if the most recent sequence succeeded")
	o.rollingCycles = intGauge("chainshadow.cycle.count", "Sequences seen by the trend aggregator")
	o.rollingSuccess = floatGauge("chainshadow.cycle.rolling_success_rate", "Success rate over the trend window")
	o.rollingErrors = floatGauge("chainshadow.cycle.rolling_error_rate", "Error rate over the trend window")
	o.parityChecks = counter("chainshadow.parity.checks", "Parity comparisons", "{check}")
	o.parityDiffs = counter("chainshadow.parity.diff_fields", "Differing fields summed over comparisons", "{field}")
	o.decisions = counter("chainshadow.gating.decisions", "Gating decisions by mode and reason", "{decision}")
	o.promotions = counter("chainshadow.gating.promotions", "Promoted cycles", "{cycle}")
	o.churnRatio = floatGauge("chainshadow.gating.hash_churn_ratio", "Distinct parity hashes over window size")
	o.rollbacks = counter("chainshadow.gating.rollbacks", "Rollback decisions", "{decision}")
	o.protectedDiffs = counter("chainshadow.parity.protected_field_diffs", "Diffs on allow-listed protected fields", "{field}")
	if err != nil {
		return nil, fmt.Errorf("create otel instrument: %w", err)
	}

	o.phaseDuration, err = meter.Float64Histogram("chainshadow.phase.duration",
		metric.WithDescription("Phase duration across all attempts"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0),
	)
	if err != nil {
		return nil, fmt.Errorf("create otel instrument: %w", err)
	}
	return o, nil
}

func keyAttrs(index, rule string, extra ...attribute.KeyValue) metric.MeasurementOption {
	attrs := append([]attribute.KeyValue{
		attribute.String("index", index),
		attribute.String("rule", rule),
	}, extra...)
	return metric.WithAttributes(attrs...)
}

func (o *OTel) PhaseAttempt(ctx context.Context, phase string) {
	o.phaseAttempts.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

func (o *OTel) PhaseRetry(ctx context.Context, phase string) {
	o.phaseRetries.Add(ctx, 1, metric.WithAttributes(attribute.String("phase", phase)))
}

func (o *OTel) PhaseOutcome(ctx context.Context, phase, outcome string, d time.Duration) {
	attrs := metric.WithAttributes(attribute.String("phase", phase), attribute.String("outcome", outcome))
	o.phaseOutcomes.Add(ctx, 1, attrs)
	o.phaseDuration.Record(ctx, d.Seconds(), attrs)
}

func (o *OTel) CycleOutcome(ctx context.Context, success bool) {
	o.cycles.Add(ctx, 1, metric.WithAttributes(attribute.Bool("success", success)))
	var v int64
	if success {
		v = 1
	}
	o.cycleSuccess.Record(ctx, v)
}

func (o *OTel) RollingRates(ctx context.Context, cycles int, successRate, errorRate float64) {
	o.rollingCycles.Record(ctx, int64(cycles))
	o.rollingSuccess.Record(ctx, successRate)
	o.rollingErrors.Record(ctx, errorRate)
}

func (o *OTel) ParityOutcome(ctx context.Context, index, rule string, ok bool, diffCount int) {
	o.parityChecks.Add(ctx, 1, keyAttrs(index, rule, attribute.Bool("ok", ok)))
	if diffCount > 0 {
		o.parityDiffs.Add(ctx, int64(diffCount), keyAttrs(index, rule))
	}
}

func (o *OTel) GatingDecision(ctx context.Context, index, rule, mode, reason string) {
	o.decisions.Add(ctx, 1, keyAttrs(index, rule,
		attribute.String("mode", mode), attribute.String("reason", reason)))
}

func (o *OTel) Promotion(ctx context.Context, index, rule string) {
	o.promotions.Add(ctx, 1, keyAttrs(index, rule))
}

func (o *OTel) Churn(ctx context.Context, index, rule string, ratio float64) {
	o.churnRatio.Record(ctx, ratio, keyAttrs(index, rule))
}

func (o *OTel) Rollback(ctx context.Context, index, rule, reason string) {
	o.rollbacks.Add(ctx, 1, keyAttrs(index, rule, attribute.String("reason", reason)))
}

func (o *OTel) ProtectedFieldDiff(ctx context.Context, index, rule, field string) {
	o.protectedDiffs.Add(ctx, 1, keyAttrs(index, rule, attribute.String("field", field)))
}
