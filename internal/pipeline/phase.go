package pipeline

import "context"

// Phase is one step of the per-item pipeline.
//
// Phases must be idempotent or self-correcting: a recoverable failure causes
// the same phase to run again on the same, possibly mutated, item.
type Phase interface {
	Name() string
	Run(ctx context.Context, item *WorkItem) Outcome
}

// RunFunc is the body of an Outcome-style phase.
type RunFunc func(ctx context.Context, item *WorkItem) Outcome

// ErrorFunc is the body of an error-style phase.
type ErrorFunc func(ctx context.Context, item *WorkItem) (*WorkItem, error)

type funcPhase struct {
	name string
	fn   RunFunc
}

func (p funcPhase) Name() string { return p.name }

func (p funcPhase) Run(ctx context.Context, item *WorkItem) Outcome {
	return p.fn(ctx, item)
}

// PhaseFunc adapts fn into a Phase called name.
func PhaseFunc(name string, fn RunFunc) Phase {
	return funcPhase{name: name, fn: fn}
}

// ErrorPhase adapts an error-returning function into a Phase.
// Returned errors are classified with KindOf.
func ErrorPhase(name string, fn ErrorFunc) Phase {
	return funcPhase{name: name, fn: func(ctx context.Context, item *WorkItem) Outcome {
		next, err := fn(ctx, item)
		return OutcomeFromError(next, err)
	}}
}
