package scenario

import (
	"math"

	"github.com/roach88/chainshadow/internal/gating"
	"github.com/roach88/chainshadow/internal/shadow"
)

// PhaseTrace is the final classification of one critical phase.
type PhaseTrace struct {
	Phase    string `json:"phase"`
	Outcome  string `json:"outcome"`
	Attempts int    `json:"attempts"`
}

// DecisionTrace is the part of a gating decision kept in traces. Ratios are
// basis points so traces hash and diff without float formatting noise.
type DecisionTrace struct {
	Mode       string `json:"mode"`
	Reason     string `json:"reason"`
	Promote    bool   `json:"promote"`
	Canary     bool   `json:"canary"`
	WindowSize int    `json:"window_size"`
	OKRatioBP  int64  `json:"ok_ratio_bp"`
	OKStreak   int    `json:"ok_streak"`
	FailStreak int    `json:"fail_streak"`
}

// TraceEvent is one cycle of a scenario run.
type TraceEvent struct {
	Cycle      int           `json:"cycle"`
	CycleID    string        `json:"cycle_id"`
	Phases     []PhaseTrace  `json:"phases"`
	Errors     []string      `json:"errors"`
	ParityHash string        `json:"parity_hash"`
	DiffFields []string      `json:"diff_fields"`
	Decision   DecisionTrace `json:"decision"`
}

// Result is the outcome of a scenario run.
type Result struct {
	// Pass is true when every assertion held.
	Pass   bool         `json:"pass"`
	Trace  []TraceEvent `json:"trace"`
	Errors []string     `json:"errors,omitempty"`
}

// NewResult creates a passing, empty result.
func NewResult() *Result {
	return &Result{Pass: true, Trace: []TraceEvent{}, Errors: []string{}}
}

// AddError records an assertion failure.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// Final returns the last cycle's trace, if any.
func (r *Result) Final() (TraceEvent, bool) {
	if len(r.Trace) == 0 {
		return TraceEvent{}, false
	}
	return r.Trace[len(r.Trace)-1], true
}

func (r *Result) addCycle(n int, res shadow.CycleResult) {
	ev := TraceEvent{
		Cycle:      n,
		CycleID:    res.CycleID,
		Phases:     make([]PhaseTrace, len(res.Execution.Phases)),
		Errors:     append([]string{}, res.Item.Errors...),
		ParityHash: res.ParityHash,
		DiffFields: append([]string{}, res.DiffFields...),
		Decision:   decisionTrace(res.Decision),
	}
	for i, p := range res.Execution.Phases {
		ev.Phases[i] = PhaseTrace{Phase: p.Phase, Outcome: string(p.Outcome), Attempts: p.Attempts}
	}
	r.Trace = append(r.Trace, ev)
}

func decisionTrace(d gating.Decision) DecisionTrace {
	return DecisionTrace{
		Mode:       d.Mode,
		Reason:     d.Reason,
		Promote:    d.Promote,
		Canary:     d.Canary,
		WindowSize: d.WindowSize,
		OKRatioBP:  int64(math.Round(d.OKRatio * 10000)),
		OKStreak:   d.OKStreak,
		FailStreak: d.FailStreak,
	}
}
