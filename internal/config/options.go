package config

import (
	"fmt"
	"time"

	"github.com/roach88/chainshadow/internal/gating"
	"github.com/roach88/chainshadow/internal/pipeline"
)

// Options is the flat, named option set.
type Options struct {
	Mode                   string   `json:"mode" yaml:"mode" toml:"mode"`
	Window                 int      `json:"window" yaml:"window" toml:"window"`
	ParityTarget           float64  `json:"parity_target" yaml:"parity_target" toml:"parity_target"`
	CanaryTarget           float64  `json:"canary_target" yaml:"canary_target" toml:"canary_target"`
	MinSamples             int      `json:"min_samples" yaml:"min_samples" toml:"min_samples"`
	OKHysteresis           int      `json:"ok_hysteresis" yaml:"ok_hysteresis" toml:"ok_hysteresis"`
	FailHysteresis         int      `json:"fail_hysteresis" yaml:"fail_hysteresis" toml:"fail_hysteresis"`
	CanaryAllowlist        []string `json:"canary_allowlist" yaml:"canary_allowlist" toml:"canary_allowlist"`
	CanaryPercent          int      `json:"canary_percent" yaml:"canary_percent" toml:"canary_percent"`
	RollbackProtectedDiffs int      `json:"rollback_protected_diffs" yaml:"rollback_protected_diffs" toml:"rollback_protected_diffs"`
	RollbackChurn          float64  `json:"rollback_churn" yaml:"rollback_churn" toml:"rollback_churn"`
	ChurnWindow            int      `json:"churn_window" yaml:"churn_window" toml:"churn_window"`
	ProtectedFields        []string `json:"protected_fields" yaml:"protected_fields" toml:"protected_fields"`
	ForceDemote            bool     `json:"force_demote" yaml:"force_demote" toml:"force_demote"`

	RetryEnabled      bool `json:"retry_enabled" yaml:"retry_enabled" toml:"retry_enabled"`
	RetryMaxAttempts  int  `json:"retry_max_attempts" yaml:"retry_max_attempts" toml:"retry_max_attempts"`
	RetryBaseMs       int  `json:"retry_base_ms" yaml:"retry_base_ms" toml:"retry_base_ms"`
	RetryMaxMs        int  `json:"retry_max_ms" yaml:"retry_max_ms" toml:"retry_max_ms"`
	RetryJitterMs     int  `json:"retry_jitter_ms" yaml:"retry_jitter_ms" toml:"retry_jitter_ms"`
	RecordAllAttempts bool `json:"record_all_attempts" yaml:"record_all_attempts" toml:"record_all_attempts"`

	RedactPatterns         []string `json:"redact_patterns" yaml:"redact_patterns" toml:"redact_patterns"`
	TrendWindow            int      `json:"trend_window" yaml:"trend_window" toml:"trend_window"`
	MetricsProtectedFields []string `json:"metrics_protected_fields" yaml:"metrics_protected_fields" toml:"metrics_protected_fields"`
	JournalPath            string   `json:"journal_path" yaml:"journal_path" toml:"journal_path"`
}

// DefaultOptions mirrors gating.DefaultConfig and pipeline.DefaultRetryPolicy.
func DefaultOptions() Options {
	g := gating.DefaultConfig()
	r := pipeline.DefaultRetryPolicy()
	return Options{
		Mode:                   string(g.Mode),
		Window:                 g.Window,
		ParityTarget:           g.ParityTarget,
		CanaryTarget:           g.CanaryTarget,
		MinSamples:             g.MinSamples,
		OKHysteresis:           g.OKHysteresis,
		FailHysteresis:         g.FailHysteresis,
		CanaryPercent:          g.CanaryPercent,
		RollbackProtectedDiffs: g.RollbackProtectedDiffs,
		RollbackChurn:          g.RollbackChurn,
		ChurnWindow:            g.ChurnWindow,
		ProtectedFields:        g.ProtectedFields,
		RetryEnabled:           r.Enabled,
		RetryMaxAttempts:       r.MaxAttempts,
		RetryBaseMs:            int(r.BaseDelay / time.Millisecond),
		RetryMaxMs:             int(r.MaxDelay / time.Millisecond),
		RetryJitterMs:          int(r.MaxJitter / time.Millisecond),
		TrendWindow:            pipeline.DefaultTrendWindow,
		MetricsProtectedFields: []string{"expiry_date"},
	}
}

// Gating projects the gating options.
func (o Options) Gating() (gating.Config, error) {
	mode, err := gating.ParseMode(o.Mode)
	if err != nil {
		return gating.Config{}, &ConfigError{Option: "mode", Source: "validate", Value: o.Mode, Err: err}
	}
	return gating.Config{
		Window:                 o.Window,
		ParityTarget:           o.ParityTarget,
		CanaryTarget:           o.CanaryTarget,
		MinSamples:             o.MinSamples,
		OKHysteresis:           o.OKHysteresis,
		FailHysteresis:         o.FailHysteresis,
		Mode:                   mode,
		CanaryAllowlist:        o.CanaryAllowlist,
		CanaryPercent:          o.CanaryPercent,
		RollbackProtectedDiffs: o.RollbackProtectedDiffs,
		RollbackChurn:          o.RollbackChurn,
		ChurnWindow:            o.ChurnWindow,
		ProtectedFields:        o.ProtectedFields,
		ForceDemote:            o.ForceDemote,
	}, nil
}

// Retry projects the retry options.
func (o Options) Retry() pipeline.RetryPolicy {
	return pipeline.RetryPolicy{
		Enabled:     o.RetryEnabled,
		MaxAttempts: o.RetryMaxAttempts,
		BaseDelay:   time.Duration(o.RetryBaseMs) * time.Millisecond,
		MaxDelay:    time.Duration(o.RetryMaxMs) * time.Millisecond,
		MaxJitter:   time.Duration(o.RetryJitterMs) * time.Millisecond,
	}
}

// Redactor compiles the redaction patterns.
func (o Options) Redactor() (*pipeline.Redactor, error) {
	r, err := pipeline.NewRedactor(o.RedactPatterns)
	if err != nil {
		return nil, &ConfigError{Option: "redact_patterns", Source: "validate", Err: err}
	}
	return r, nil
}

// Validate checks every option once. The first problem wins.
func (o Options) Validate() error {
	g, err := o.Gating()
	if err != nil {
		return err
	}
	if err := g.Validate(); err != nil {
		return &ConfigError{Option: "gating", Source: "validate", Err: err}
	}
	if err := o.Retry().Validate(); err != nil {
		return &ConfigError{Option: "retry", Source: "validate", Err: err}
	}
	if _, err := o.Redactor(); err != nil {
		return err
	}
	if o.TrendWindow < 1 {
		return &ConfigError{
			Option: "trend_window", Source: "validate",
			Value: fmt.Sprint(o.TrendWindow), Reason: "must be >= 1",
		}
	}
	return nil
}
