package gating

import (
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

// TestDecisionImplicationChain verifies that promotion is only ever granted
// on top of a healthy canary.
// Property: promote => canary => ok_ratio >= canary_target => window >= min_samples => no protected diff now
func TestDecisionImplicationChain(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 500
	properties := gopter.NewProperties(parameters)

	modes := []Mode{ModeOff, ModeDryrun, ModeCanary, ModePromote}

	properties.Property("decision flags respect the implication chain", prop.ForAll(
		func(modeIdx, window, okCount, streak, failStreak int, protectedNow bool, protectedIn int) bool {
			cfg := DefaultConfig()
			cfg.Mode = modes[modeIdx]
			if okCount > window {
				okCount = window
			}
			st := Stats{
				WindowSize:        window,
				OKStreak:          streak,
				FailStreak:        failStreak,
				ProtectedInWindow: protectedIn,
			}
			if window > 0 {
				st.OKRatio = float64(okCount) / float64(window)
			}
			obs := cleanObs()
			if protectedNow {
				obs.DiffCount = 1
				obs.DiffFields = []string{"expiry_date"}
			}

			d := Decide(obs, st, cfg, false)

			if d.Promote && !d.Canary {
				return false
			}
			if d.Canary {
				if d.OKRatio < cfg.CanaryTarget || d.WindowSize < cfg.MinSamples || d.ProtectedDiff {
					return false
				}
			}
			if cfg.Mode == ModeOff && (d.Promote || d.Canary) {
				return false
			}
			return true
		},
		gen.IntRange(0, 3),
		gen.IntRange(0, 50),
		gen.IntRange(0, 50),
		gen.IntRange(0, 60),
		gen.IntRange(0, 5),
		gen.Bool(),
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

// TestChurnRatioBounds verifies churn stays in [0,1] and hits 1 only when
// every hash in the window is distinct.
func TestChurnRatioBounds(t *testing.T) {
	properties := gopter.NewProperties(gopter.DefaultTestParameters())

	properties.Property("churn ratio in [0,1]", prop.ForAll(
		func(hashes []int) bool {
			s := NewStore()
			cfg := DefaultConfig()
			cfg.Window = 8
			cfg.MinSamples = 1

			var st Stats
			for _, h := range hashes {
				st = s.Observe(Observation{Key: testKey, ParityHash: fmt.Sprintf("h%d", h)}, cfg)
			}
			if len(hashes) == 0 {
				return true
			}
			if st.ChurnRatio < 0 || st.ChurnRatio > 1 {
				return false
			}
			return (st.ChurnRatio == 1) == (st.HashDistinct == st.WindowSize)
		},
		gen.SliceOf(gen.IntRange(0, 6)),
	))

	properties.TestingRun(t)
}
