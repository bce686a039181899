package gating

import (
	"fmt"
	"slices"
)

// Mode is the rollout stage for a key.
type Mode string

const (
	ModeOff     Mode = "off"
	ModeDryrun  Mode = "dryrun"
	ModeCanary  Mode = "canary"
	ModePromote Mode = "promote"
)

// ParseMode validates s as a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeOff, ModeDryrun, ModeCanary, ModePromote:
		return m, nil
	default:
		return "", fmt.Errorf("unknown gating mode %q (want off, dryrun, canary or promote)", s)
	}
}

// Config is the gating configuration. It is treated as immutable per call.
type Config struct {
	// Window is the ring capacity per key.
	Window int
	// ParityTarget is the ok ratio required for full promotion.
	ParityTarget float64
	// CanaryTarget is the ok ratio required for canary.
	CanaryTarget float64
	// MinSamples is the window fill required before any decision.
	MinSamples int
	// OKHysteresis is the ok streak required to promote.
	OKHysteresis int
	// FailHysteresis is the fail streak that revokes canary or promotion.
	FailHysteresis int
	Mode           Mode

	// CanaryAllowlist lists indexes that are always canary-eligible.
	CanaryAllowlist []string
	// CanaryPercent admits parity-hash buckets below it (0-100).
	CanaryPercent int

	// RollbackProtectedDiffs rolls back once this many protected diffs are
	// in the window. 0 disables.
	RollbackProtectedDiffs int
	// RollbackChurn rolls back when the churn ratio reaches it. Values above
	// 1 disable.
	RollbackChurn float64
	// ChurnWindow sizes a separate, shorter churn ring. 0 reuses the main
	// window; it may not exceed Window.
	ChurnWindow int

	ProtectedFields []string
	ForceDemote     bool
}

// DefaultConfig returns the production defaults.
func DefaultConfig() Config {
	return Config{
		Window:                 50,
		ParityTarget:           0.98,
		CanaryTarget:           0.95,
		MinSamples:             30,
		OKHysteresis:           10,
		FailHysteresis:         3,
		Mode:                   ModeDryrun,
		CanaryPercent:          100,
		RollbackProtectedDiffs: 0,
		RollbackChurn:          1.01,
		ProtectedFields:        []string{"expiry_date"},
	}
}

// Validate reports the first out-of-range field.
func (c Config) Validate() error {
	if _, err := ParseMode(string(c.Mode)); err != nil {
		return err
	}
	switch {
	case c.Window < 1:
		return fmt.Errorf("window must be >= 1, got %d", c.Window)
	case c.ParityTarget < 0 || c.ParityTarget > 1:
		return fmt.Errorf("parity target must be in [0,1], got %v", c.ParityTarget)
	case c.CanaryTarget < 0 || c.CanaryTarget > 1:
		return fmt.Errorf("canary target must be in [0,1], got %v", c.CanaryTarget)
	case c.MinSamples < 0 || c.MinSamples > c.Window:
		return fmt.Errorf("min samples must be in [0,%d], got %d", c.Window, c.MinSamples)
	case c.OKHysteresis < 0:
		return fmt.Errorf("ok hysteresis must be >= 0, got %d", c.OKHysteresis)
	case c.FailHysteresis < 1:
		return fmt.Errorf("fail hysteresis must be >= 1, got %d", c.FailHysteresis)
	case c.CanaryPercent < 0 || c.CanaryPercent > 100:
		return fmt.Errorf("canary percent must be in [0,100], got %d", c.CanaryPercent)
	case c.RollbackProtectedDiffs < 0:
		return fmt.Errorf("rollback protected diffs must be >= 0, got %d", c.RollbackProtectedDiffs)
	case c.RollbackChurn <= 0:
		return fmt.Errorf("rollback churn must be > 0, got %v", c.RollbackChurn)
	case c.ChurnWindow < 0 || c.ChurnWindow > c.Window:
		return fmt.Errorf("churn window must be in [0,%d], got %d", c.Window, c.ChurnWindow)
	}
	return nil
}

// churnEnabled reports whether hash churn can trigger a rollback.
func (c Config) churnEnabled() bool {
	return c.RollbackChurn <= 1
}

func (c Config) isProtected(field string) bool {
	return slices.Contains(c.ProtectedFields, field)
}

func (c Config) allowlisted(index string) bool {
	return slices.Contains(c.CanaryAllowlist, index)
}
