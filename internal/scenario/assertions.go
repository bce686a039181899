package scenario

import (
	"fmt"
	"strings"
)

// Assertion type constants.
const (
	AssertFinalDecision = "final_decision"
	AssertReasonCount   = "reason_count"
	AssertReasonOrder   = "reason_order"
	AssertOutcomeCount  = "outcome_count"
)

// Assertion checks the trace of a run.
type Assertion struct {
	// Type is one of final_decision, reason_count, reason_order, outcome_count.
	Type string `yaml:"type"`

	// final_decision: subset match on the last decision.
	Mode    string `yaml:"mode,omitempty"`
	Promote *bool  `yaml:"promote,omitempty"`
	Canary  *bool  `yaml:"canary,omitempty"`

	// Reason is used by final_decision and reason_count.
	Reason string `yaml:"reason,omitempty"`

	// Reasons is the expected order of first occurrence (reason_order).
	Reasons []string `yaml:"reasons,omitempty"`

	// Phase and Outcome select phase results (outcome_count).
	Phase   string `yaml:"phase,omitempty"`
	Outcome string `yaml:"outcome,omitempty"`

	Count int `yaml:"count,omitempty"`
}

// AssertionError is a failed assertion with enough trace context to debug it.
type AssertionError struct {
	Type     string
	Expected string
	Actual   string
	Trace    []TraceEvent
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)
	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nDecisions:\n")
		for _, ev := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s %s diff=%v\n", ev.Cycle, ev.Decision.Mode, ev.Decision.Reason, ev.DiffFields)
		}
	}
	return buf.String()
}

// EvaluateAssertions returns one message per failed assertion.
func EvaluateAssertions(result *Result, assertions []Assertion) []string {
	var errs []string
	for _, a := range assertions {
		if err := evaluate(result.Trace, a); err != nil {
			errs = append(errs, err.Error())
		}
	}
	return errs
}

func evaluate(trace []TraceEvent, a Assertion) error {
	switch a.Type {
	case AssertFinalDecision:
		return assertFinalDecision(trace, a)
	case AssertReasonCount:
		return assertReasonCount(trace, a)
	case AssertReasonOrder:
		return assertReasonOrder(trace, a)
	case AssertOutcomeCount:
		return assertOutcomeCount(trace, a)
	default:
		return fmt.Errorf("unknown assertion type %q", a.Type)
	}
}

func assertFinalDecision(trace []TraceEvent, a Assertion) error {
	if len(trace) == 0 {
		return &AssertionError{Type: a.Type, Expected: "at least one cycle", Actual: "empty trace"}
	}
	d := trace[len(trace)-1].Decision

	var mismatches []string
	if a.Mode != "" && d.Mode != a.Mode {
		mismatches = append(mismatches, fmt.Sprintf("mode %q, want %q", d.Mode, a.Mode))
	}
	if a.Reason != "" && d.Reason != a.Reason {
		mismatches = append(mismatches, fmt.Sprintf("reason %q, want %q", d.Reason, a.Reason))
	}
	if a.Promote != nil && d.Promote != *a.Promote {
		mismatches = append(mismatches, fmt.Sprintf("promote %v, want %v", d.Promote, *a.Promote))
	}
	if a.Canary != nil && d.Canary != *a.Canary {
		mismatches = append(mismatches, fmt.Sprintf("canary %v, want %v", d.Canary, *a.Canary))
	}
	if len(mismatches) == 0 {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: "final decision to match",
		Actual:   strings.Join(mismatches, "; "),
		Trace:    trace,
	}
}

func assertReasonCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		if ev.Decision.Reason == a.Reason {
			count++
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d decisions with reason %s", a.Count, a.Reason),
		Actual:   fmt.Sprintf("%d decisions", count),
		Trace:    trace,
	}
}

// assertReasonOrder checks that reasons first occur in the given order.
// Other reasons may appear in between.
func assertReasonOrder(trace []TraceEvent, a Assertion) error {
	first := make(map[string]int)
	for _, ev := range trace {
		if _, seen := first[ev.Decision.Reason]; !seen {
			first[ev.Decision.Reason] = ev.Cycle
		}
	}

	for _, reason := range a.Reasons {
		if _, ok := first[reason]; !ok {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("all reasons present: %v", a.Reasons),
				Actual:   fmt.Sprintf("missing reason: %s", reason),
				Trace:    trace,
			}
		}
	}
	for i := 1; i < len(a.Reasons); i++ {
		prev, curr := a.Reasons[i-1], a.Reasons[i]
		if first[prev] >= first[curr] {
			return &AssertionError{
				Type:     a.Type,
				Expected: fmt.Sprintf("reasons in order: %v", a.Reasons),
				Actual: fmt.Sprintf("%s (cycle %d) should be before %s (cycle %d)",
					prev, first[prev], curr, first[curr]),
				Trace: trace,
			}
		}
	}
	return nil
}

func assertOutcomeCount(trace []TraceEvent, a Assertion) error {
	count := 0
	for _, ev := range trace {
		for _, p := range ev.Phases {
			if p.Phase == a.Phase && p.Outcome == a.Outcome {
				count++
			}
		}
	}
	if count == a.Count {
		return nil
	}
	return &AssertionError{
		Type:     a.Type,
		Expected: fmt.Sprintf("%d %s outcomes for phase %s", a.Count, a.Outcome, a.Phase),
		Actual:   fmt.Sprintf("%d outcomes", count),
		Trace:    trace,
	}
}

func validateAssertion(index int, a *Assertion) error {
	switch a.Type {
	case "":
		return fmt.Errorf("assertions[%d]: type is required", index)
	case AssertFinalDecision:
		if a.Mode == "" && a.Reason == "" && a.Promote == nil && a.Canary == nil {
			return fmt.Errorf("assertions[%d]: final_decision needs at least one of mode, reason, promote, canary", index)
		}
	case AssertReasonCount:
		if a.Reason == "" {
			return fmt.Errorf("assertions[%d]: reason is required for reason_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for reason_count", index)
		}
	case AssertReasonOrder:
		if len(a.Reasons) == 0 {
			return fmt.Errorf("assertions[%d]: reasons list is required for reason_order", index)
		}
	case AssertOutcomeCount:
		if a.Phase == "" || a.Outcome == "" {
			return fmt.Errorf("assertions[%d]: phase and outcome are required for outcome_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for outcome_count", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
