package gating

import (
	"strconv"
)

// Reason tokens. They are part of the decision contract: dashboards and
// alerts match on them.
const (
	ReasonDisabled          = "disabled"
	ReasonForcedDemotion    = "forced_demotion"
	ReasonInsufficient      = "insufficient_samples"
	ReasonProtectedBlock    = "protected_block"
	ReasonRollbackChurn     = "rollback_churn"
	ReasonCanaryExcluded    = "canary_excluded"
	ReasonDryrunReady       = "dryrun_canary_ready"
	ReasonDryrunObserve     = "dryrun_observe"
	ReasonRollbackProtected = "rollback_protected"
	ReasonDemotedFailStreak = "demoted_fail_streak"
	ReasonCanaryActive      = "canary_active"
	ReasonBelowCanary       = "below_canary_target"
	ReasonParityTargetMet   = "parity_target_met"
	ReasonBelowParity       = "below_parity_target"
	ReasonWaitingHysteresis = "waiting_hysteresis"
	ReasonException         = "exception"
)

// ModeError is the effective mode of the sentinel decision.
const ModeError = "error"

// Decision is the routing decision for one key and cycle.
type Decision struct {
	Mode              string  `json:"mode"`
	Promote           bool    `json:"promote"`
	Canary            bool    `json:"canary"`
	OKRatio           float64 `json:"ok_ratio"`
	WindowSize        int     `json:"window_size"`
	DiffCount         int     `json:"diff_count"`
	ProtectedDiff     bool    `json:"protected_diff"`
	OKStreak          int     `json:"ok_streak"`
	FailStreak        int     `json:"fail_streak"`
	ProtectedInWindow int     `json:"protected_in_window"`
	HashDistinct      int     `json:"hash_distinct"`
	ChurnRatio        float64 `json:"churn_ratio"`
	Reason            string  `json:"reason"`
}

// Sentinel is the decision returned when gating itself fails.
func Sentinel() Decision {
	return Decision{Mode: ModeError, Promote: false, Reason: ReasonException}
}

// IsRollback reports whether the decision is a rollback.
func (d Decision) IsRollback() bool {
	return d.Reason == ReasonRollbackChurn || d.Reason == ReasonRollbackProtected
}

// Decide applies the decision precedence to one observation. It is pure:
// the same inputs always give the same Decision, and nothing is mutated.
//
// forced carries the per-key demotion control from the Store; cfg.ForceDemote
// applies to every key.
func Decide(obs Observation, st Stats, cfg Config, forced bool) Decision {
	protectedNow := false
	for _, f := range obs.DiffFields {
		if cfg.isProtected(f) {
			protectedNow = true
			break
		}
	}

	d := Decision{
		Mode:              string(cfg.Mode),
		OKRatio:           st.OKRatio,
		WindowSize:        st.WindowSize,
		DiffCount:         obs.DiffCount,
		ProtectedDiff:     protectedNow,
		OKStreak:          st.OKStreak,
		FailStreak:        st.FailStreak,
		ProtectedInWindow: st.ProtectedInWindow,
		HashDistinct:      st.HashDistinct,
		ChurnRatio:        st.ChurnRatio,
	}

	if cfg.Mode == ModeOff {
		d.Reason = ReasonDisabled
		return d
	}
	if forced || cfg.ForceDemote {
		d.Reason = ReasonForcedDemotion
		return d
	}
	if st.WindowSize < cfg.MinSamples {
		d.Reason = ReasonInsufficient
		if cfg.Mode == ModePromote && (protectedNow || st.ProtectedInWindow > 0) {
			d.Reason = ReasonProtectedBlock
		}
		return d
	}
	if cfg.churnEnabled() && st.ChurnRatio >= cfg.RollbackChurn {
		d.Reason = ReasonRollbackChurn
		return d
	}
	if !cfg.allowlisted(obs.Key.Index) && canaryBucket(obs.ParityHash) >= cfg.CanaryPercent {
		d.Reason = ReasonCanaryExcluded
		return d
	}

	canary := st.OKRatio >= cfg.CanaryTarget && (cfg.Mode == ModeCanary || !protectedNow)

	if cfg.Mode == ModeDryrun {
		d.Canary = canary
		d.Reason = ReasonDryrunObserve
		if canary {
			d.Reason = ReasonDryrunReady
		}
		return d
	}

	if cfg.RollbackProtectedDiffs > 0 && st.ProtectedInWindow >= cfg.RollbackProtectedDiffs {
		d.Reason = ReasonRollbackProtected
		return d
	}

	switch {
	case protectedNow:
		d.Reason = ReasonProtectedBlock
	case st.FailStreak >= cfg.FailHysteresis:
		d.Reason = ReasonDemotedFailStreak
	case !canary:
		d.Reason = ReasonBelowCanary
	case cfg.Mode == ModeCanary:
		d.Canary = true
		d.Reason = ReasonCanaryActive
	case st.OKRatio >= cfg.ParityTarget && st.OKStreak >= cfg.OKHysteresis:
		d.Canary = true
		d.Promote = true
		d.Reason = ReasonParityTargetMet
	case st.OKRatio < cfg.ParityTarget:
		d.Canary = true
		d.Reason = ReasonBelowParity
	default:
		d.Canary = true
		d.Reason = ReasonWaitingHysteresis
	}
	return d
}

// canaryBucket maps a parity hash to [0,100) from its first four hex digits.
// Hashes that cannot be parsed land in bucket 99.
func canaryBucket(hash string) int {
	if len(hash) < 4 {
		return 99
	}
	n, err := strconv.ParseUint(hash[:4], 16, 32)
	if err != nil {
		return 99
	}
	return int(n % 100)
}
