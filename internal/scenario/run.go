package scenario

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/roach88/chainshadow/internal/gating"
	"github.com/roach88/chainshadow/internal/pipeline"
	"github.com/roach88/chainshadow/internal/shadow"
	"github.com/roach88/chainshadow/internal/telemetry"
	"github.com/roach88/chainshadow/internal/testutil"
)

// RunOptions wires optional collaborators into a run.
type RunOptions struct {
	Sink    telemetry.Sink
	Journal shadow.Journal
	// IDs defaults to sequential "cycle-0001" IDs.
	IDs shadow.IDGenerator
	// Logger defaults to a discarding logger.
	Logger *slog.Logger
}

// Run executes every cycle step and evaluates the assertions.
//
// Each run gets its own window store, deterministic clock and fake sleeper,
// so two runs of the same scenario produce the same trace.
func Run(ctx context.Context, s *Scenario, opts RunOptions) (*Result, error) {
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	gcfg, err := s.Config.Gating()
	if err != nil {
		return nil, err
	}
	redactor, err := s.Config.Redactor()
	if err != nil {
		return nil, err
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	ids := opts.IDs
	if ids == nil {
		ids = testutil.NewSequenceIDGenerator("cycle")
	}
	clock := testutil.NewDeterministicClock()

	exec := pipeline.NewExecutor(pipeline.Options{
		Retry:             s.Config.Retry(),
		RecordAllAttempts: s.Config.RecordAllAttempts,
		Redactor:          redactor,
		Sleeper:           &testutil.FakeSleeper{Clock: clock},
		Sink:              opts.Sink,
		Logger:            logger,
		Trend:             pipeline.NewTrend(s.Config.TrendWindow),
		Now:               clock.Now,
	})
	store := gating.NewStore()
	runner := shadow.NewRunner(shadow.Options{
		Executor:               exec,
		Controller:             gating.NewController(store, logger),
		Gating:                 gcfg,
		Sink:                   opts.Sink,
		MetricsProtectedFields: s.Config.MetricsProtectedFields,
		Journal:                opts.Journal,
		IDs:                    ids,
		Logger:                 logger,
		Now:                    clock.Now,
	})

	key := pipeline.Key{Index: s.Item.Index, Rule: s.Item.Rule}
	result := NewResult()
	n := 0
	for i, step := range s.Cycles {
		if step.ForceDemote != nil {
			store.SetForceDemote(key, *step.ForceDemote)
		}
		fixture, drop := s.Item.withDrift(step.Drift)
		for r := 0; r < step.repeat(); r++ {
			if err := ctx.Err(); err != nil {
				return nil, fmt.Errorf("cycles[%d]: %w", i, err)
			}
			n++
			item := pipeline.NewWorkItem(key.Index, key.Rule, nil)
			plan := shadow.Plan{
				Critical:  buildPhases(step.Phases, fixture, drop),
				Secondary: buildPhases(step.Secondary, fixture, drop),
			}
			res := runner.RunCycle(ctx, item, plan, s.Baseline)
			result.addCycle(n, res)

			logger.Debug("scenario cycle completed",
				"scenario", s.Name,
				"cycle", n,
				"reason", res.Decision.Reason,
			)
		}
	}

	for _, msg := range EvaluateAssertions(result, s.Assertions) {
		result.AddError(msg)
	}
	return result, nil
}
