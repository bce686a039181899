package pipeline

import "time"

// PhaseResult is the per-phase output of one Executor run.
type PhaseResult struct {
	Phase    string         `json:"phase"`
	Outcome  Classification `json:"outcome"`
	Attempts int            `json:"attempts"`
	Duration time.Duration  `json:"duration"`
	Message  string         `json:"message,omitempty"`
}

// Summary is the per-cycle projection over phase results.
type Summary struct {
	PhasesTotal          int                       `json:"phases_total"`
	PhasesOK             int                       `json:"phases_ok"`
	PhasesError          int                       `json:"phases_error"`
	PhasesRetried        int                       `json:"phases_retried"`
	AbortedEarly         bool                      `json:"aborted_early"`
	FatalOrUnknown       bool                      `json:"fatal_or_unknown"`
	RecoverableExhausted bool                      `json:"recoverable_exhausted"`
	Outcomes             map[string]Classification `json:"outcomes"`
}

// Success reports whether every attempted phase ended ok.
func (s Summary) Success() bool {
	return s.PhasesError == 0 && !s.AbortedEarly
}

// Summarize projects phase results into a Summary. It has no side effects.
//
// AbortedEarly is set when the sequence stopped on a non-ok outcome.
func Summarize(results []PhaseResult) Summary {
	s := Summary{
		PhasesTotal: len(results),
		Outcomes:    make(map[string]Classification, len(results)),
	}
	for _, r := range results {
		s.Outcomes[r.Phase] = r.Outcome
		if r.Attempts > 1 {
			s.PhasesRetried++
		}
		switch r.Outcome {
		case ClassOK:
			s.PhasesOK++
			continue
		case ClassFatal, ClassUnknown:
			s.FatalOrUnknown = true
		case ClassRecoverableExhausted:
			s.RecoverableExhausted = true
		}
		s.PhasesError++
		s.AbortedEarly = true
	}
	return s
}
