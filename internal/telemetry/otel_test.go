package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func collect(t *testing.T, reader *sdkmetric.ManualReader) map[string]metricdata.Metrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	out := make(map[string]metricdata.Metrics)
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			out[m.Name] = m
		}
	}
	return out
}

func sumInt64(t *testing.T, m metricdata.Metrics) int64 {
	t.Helper()
	sum, ok := m.Data.(metricdata.Sum[int64])
	require.True(t, ok, "metric %s is not an int64 sum", m.Name)
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	return total
}

func TestOTel_RecordsInstruments(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	o, err := NewOTel(provider.Meter("chainshadow-test"))
	require.NoError(t, err)

	ctx := context.Background()
	o.PhaseAttempt(ctx, "fetch")
	o.PhaseAttempt(ctx, "fetch")
	o.PhaseRetry(ctx, "fetch")
	o.PhaseOutcome(ctx, "fetch", "ok", 5*time.Millisecond)
	o.CycleOutcome(ctx, true)
	o.RollingRates(ctx, 4, 0.75, 0.25)
	o.ParityOutcome(ctx, "NIFTY", "weekly", false, 3)
	o.GatingDecision(ctx, "NIFTY", "weekly", "dryrun", "dryrun_observe")

	metrics := collect(t, reader)

	assert.Equal(t, int64(2), sumInt64(t, metrics["chainshadow.phase.attempts"]))
	assert.Equal(t, int64(1), sumInt64(t, metrics["chainshadow.phase.retries"]))
	assert.Equal(t, int64(1), sumInt64(t, metrics["chainshadow.cycle.total"]))
	assert.Equal(t, int64(3), sumInt64(t, metrics["chainshadow.parity.diff_fields"]))
	assert.Equal(t, int64(1), sumInt64(t, metrics["chainshadow.gating.decisions"]))

	hist, ok := metrics["chainshadow.phase.duration"].Data.(metricdata.Histogram[float64])
	require.True(t, ok)
	require.Len(t, hist.DataPoints, 1)
	assert.Equal(t, uint64(1), hist.DataPoints[0].Count)

	gauge, ok := metrics["chainshadow.cycle.rolling_success_rate"].Data.(metricdata.Gauge[float64])
	require.True(t, ok)
	require.Len(t, gauge.DataPoints, 1)
	assert.InDelta(t, 0.75, gauge.DataPoints[0].Value, 1e-9)
}
