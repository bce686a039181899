package scenario

import (
	"context"
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/chainshadow/internal/ir"
)

// TraceSnapshot is the golden form of a run.
type TraceSnapshot struct {
	ScenarioName string       `json:"scenario_name"`
	Trace        []TraceEvent `json:"trace"`
}

// toCanonicalMap converts the snapshot into plain values for
// ir.MarshalCanonical, which does not accept structs.
func (s *TraceSnapshot) toCanonicalMap() map[string]any {
	trace := make([]any, len(s.Trace))
	for i, ev := range s.Trace {
		phases := make([]any, len(ev.Phases))
		for j, p := range ev.Phases {
			phases[j] = map[string]any{
				"phase":    p.Phase,
				"outcome":  p.Outcome,
				"attempts": p.Attempts,
			}
		}
		d := ev.Decision
		trace[i] = map[string]any{
			"cycle":       ev.Cycle,
			"cycle_id":    ev.CycleID,
			"phases":      phases,
			"errors":      ev.Errors,
			"parity_hash": ev.ParityHash,
			"diff_fields": ev.DiffFields,
			"decision": map[string]any{
				"mode":        d.Mode,
				"reason":      d.Reason,
				"promote":     d.Promote,
				"canary":      d.Canary,
				"window_size": d.WindowSize,
				"ok_ratio_bp": d.OKRatioBP,
				"ok_streak":   d.OKStreak,
				"fail_streak": d.FailStreak,
			},
		}
	}
	return map[string]any{
		"scenario_name": s.ScenarioName,
		"trace":         trace,
	}
}

// MarshalTrace renders a run's trace as canonical JSON.
func MarshalTrace(name string, result *Result) ([]byte, error) {
	snap := TraceSnapshot{ScenarioName: name, Trace: result.Trace}
	return ir.MarshalCanonical(snap.toCanonicalMap())
}

// RunWithGolden runs the scenario and compares its trace with
// testdata/golden/<name>.golden. Regenerate with:
//
//	go test ./internal/scenario -update
func RunWithGolden(t *testing.T, s *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(context.Background(), s, RunOptions{})
	if err != nil {
		return nil, err
	}
	return result, AssertGolden(t, s.Name, result)
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, name string, result *Result) error {
	t.Helper()

	traceJSON, err := MarshalTrace(name, result)
	if err != nil {
		return err
	}
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, name, traceJSON)
	return nil
}
