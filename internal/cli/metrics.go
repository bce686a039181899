package cli

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/roach88/chainshadow/internal/telemetry"
)

// Metrics backends for --metrics.
const (
	MetricsNone       = "none"
	MetricsPrometheus = "prometheus"
	MetricsOTel       = "otel"
)

// metricsBackend is a sink plus a way to print what it collected.
type metricsBackend struct {
	sink     telemetry.Sink
	registry *prometheus.Registry
	dump     func(ctx context.Context, w io.Writer) error
}

func newMetricsBackend(kind string) (*metricsBackend, error) {
	switch kind {
	case "", MetricsNone:
		return &metricsBackend{
			sink: telemetry.Nop{},
			dump: func(context.Context, io.Writer) error { return nil },
		}, nil

	case MetricsPrometheus:
		reg := prometheus.NewRegistry()
		sink, err := telemetry.NewPrometheus(reg)
		if err != nil {
			return nil, err
		}
		return &metricsBackend{
			sink:     sink,
			registry: reg,
			dump: func(_ context.Context, w io.Writer) error {
				families, err := reg.Gather()
				if err != nil {
					return fmt.Errorf("gather metrics: %w", err)
				}
				for _, mf := range families {
					if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
						return err
					}
				}
				return nil
			},
		}, nil

	case MetricsOTel:
		reader := sdkmetric.NewManualReader()
		provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
		sink, err := telemetry.NewOTel(provider.Meter("github.com/roach88/chainshadow"))
		if err != nil {
			return nil, err
		}
		return &metricsBackend{
			sink: sink,
			dump: func(ctx context.Context, w io.Writer) error {
				var rm metricdata.ResourceMetrics
				if err := reader.Collect(ctx, &rm); err != nil {
					return fmt.Errorf("collect metrics: %w", err)
				}
				return writeOTel(w, rm)
			},
		}, nil

	default:
		return nil, fmt.Errorf("unknown metrics backend %q (want none, prometheus or otel)", kind)
	}
}

// writeOTel prints one "name{attrs} value" line per data point.
func writeOTel(w io.Writer, rm metricdata.ResourceMetrics) error {
	var lines []string
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			switch data := m.Data.(type) {
			case metricdata.Sum[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s%s %d", m.Name, attrString(dp.Attributes), dp.Value))
				}
			case metricdata.Gauge[int64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s%s %d", m.Name, attrString(dp.Attributes), dp.Value))
				}
			case metricdata.Gauge[float64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s%s %g", m.Name, attrString(dp.Attributes), dp.Value))
				}
			case metricdata.Histogram[float64]:
				for _, dp := range data.DataPoints {
					lines = append(lines, fmt.Sprintf("%s_count%s %d", m.Name, attrString(dp.Attributes), dp.Count))
				}
			}
		}
	}
	sort.Strings(lines)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return err
		}
	}
	return nil
}

func attrString(set attribute.Set) string {
	if set.Len() == 0 {
		return ""
	}
	parts := make([]string, 0, set.Len())
	for _, kv := range set.ToSlice() {
		parts = append(parts, string(kv.Key)+"="+kv.Value.Emit())
	}
	return "{" + strings.Join(parts, ",") + "}"
}
