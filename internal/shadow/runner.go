package shadow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/roach88/chainshadow/internal/gating"
	"github.com/roach88/chainshadow/internal/journal"
	"github.com/roach88/chainshadow/internal/parity"
	"github.com/roach88/chainshadow/internal/pipeline"
	"github.com/roach88/chainshadow/internal/telemetry"
)

// Journal is the audit sink for decisions and error exports.
// *journal.Store implements it.
type Journal interface {
	AppendDecision(ctx context.Context, e journal.DecisionEntry) (bool, error)
	RecordErrorExport(ctx context.Context, cycleID string, key pipeline.Key, export pipeline.ErrorExport) (bool, error)
}

var _ Journal = (*journal.Store)(nil)

// Plan is the phase list for one cycle.
type Plan struct {
	// Critical phases run under the error taxonomy and retry policy.
	Critical []pipeline.Phase
	// Secondary phases run only if the critical sequence completed. Their
	// failures become legacy tokens and never stop the cycle.
	Secondary []pipeline.Phase
}

// Options configures a Runner.
type Options struct {
	Executor   *pipeline.Executor
	Controller *gating.Controller
	Gating     gating.Config

	Sink telemetry.Sink
	// MetricsProtectedFields bounds per-field diff counters to this subset
	// of the protected fields.
	MetricsProtectedFields []string

	Journal Journal
	IDs     IDGenerator
	Logger  *slog.Logger
	Now     func() time.Time
}

// Runner glues the Executor to the gating Controller.
type Runner struct {
	exec       *pipeline.Executor
	controller *gating.Controller
	gating     gating.Config
	sink       telemetry.Sink
	metricKeys []string
	journal    Journal
	ids        IDGenerator
	logger     *slog.Logger
	now        func() time.Time
	hash       func(parity.Snapshot, parity.Observational) (string, error)
}

// NewRunner creates a Runner. Missing collaborators get defaults: a fresh
// Executor and Controller, a Nop sink, UUIDv7 IDs, no journal.
func NewRunner(opts Options) *Runner {
	r := &Runner{
		exec:       opts.Executor,
		controller: opts.Controller,
		gating:     opts.Gating,
		metricKeys: opts.MetricsProtectedFields,
		journal:    opts.Journal,
		ids:        opts.IDs,
		logger:     opts.Logger,
		now:        opts.Now,
		hash:       parity.Hash,
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.ids == nil {
		r.ids = UUIDv7Generator{}
	}
	if r.exec == nil {
		r.exec = pipeline.NewExecutor(pipeline.Options{Logger: r.logger, Now: r.now, Sink: opts.Sink})
	}
	if r.controller == nil {
		r.controller = gating.NewController(nil, r.logger)
	}
	r.sink = telemetry.Safe(opts.Sink, r.logger)
	return r
}

// Controller returns the gating controller, e.g. to toggle forced demotion.
func (r *Runner) Controller() *gating.Controller {
	return r.controller
}

// CycleResult is everything one cycle produced.
type CycleResult struct {
	CycleID    string
	Item       *pipeline.WorkItem
	Execution  pipeline.Result
	Snapshot   parity.Snapshot
	ParityHash string
	DiffFields []string
	Decision   gating.Decision
}

// RunCycle runs one item-cycle. It never fails: phase failures are recorded
// on the item, gating failures become the sentinel decision, and
// metric/journal failures are swallowed.
func (r *Runner) RunCycle(ctx context.Context, item *pipeline.WorkItem, plan Plan, baseline parity.Baseline) CycleResult {
	cycleID := r.ids.Generate()
	item.SetMeta(pipeline.MetaCycleID, cycleID)

	exec := r.exec.Run(ctx, item, plan.Critical)
	item = exec.Item
	if !exec.Summary.AbortedEarly {
		for _, phase := range plan.Secondary {
			item = r.runSecondary(ctx, item, phase)
		}
	}

	res := CycleResult{CycleID: cycleID, Item: item, Execution: exec}
	res.Snapshot = parity.Build(item)
	item.SetMeta(pipeline.MetaParitySnapshot, res.Snapshot)

	hash, err := r.hash(res.Snapshot, parity.ObservationalFrom(item))
	if err != nil {
		r.logger.Error("parity hash failed", "key", item.Key().String(), "error", err)
		res.Decision = gating.Sentinel()
	} else {
		res.ParityHash = hash
		item.SetMeta(pipeline.MetaParityHash, hash)

		res.DiffFields = parity.Diff(res.Snapshot, baseline)
		item.SetMeta(pipeline.MetaParityDiffFields, res.DiffFields)
		item.SetMeta(pipeline.MetaParityDiffCount, len(res.DiffFields))

		res.Decision = r.controller.Evaluate(gating.Observation{
			Key:        item.Key(),
			DiffCount:  len(res.DiffFields),
			DiffFields: res.DiffFields,
			ParityHash: hash,
		}, r.gating)
	}
	item.SetMeta(pipeline.MetaGatingDecision, res.Decision)

	r.emit(ctx, item, res)
	r.writeJournal(ctx, item, res)
	return res
}

// runSecondary runs a non-critical phase once and returns the item to carry
// forward. Non-ok outcomes and panics become legacy tokens only.
func (r *Runner) runSecondary(ctx context.Context, item *pipeline.WorkItem, phase pipeline.Phase) *pipeline.WorkItem {
	name := phase.Name()
	out := func() (out pipeline.Outcome) {
		defer func() {
			if rec := recover(); rec != nil {
				out = pipeline.Unknown(fmt.Sprintf("panic: %v", rec))
			}
		}()
		return phase.Run(ctx, item)
	}()
	if out.IsOK() {
		return item.Adopt(out.Item)
	}
	token := pipeline.Token(pipeline.Classification(out.Kind.String()), name, out.Message)
	item.Errors = append(item.Errors, token)
	r.logger.Debug("secondary phase failed", "phase", name, "key", item.Key().String(), "token", token)
	return item
}

func (r *Runner) emit(ctx context.Context, item *pipeline.WorkItem, res CycleResult) {
	key := item.Key()
	d := res.Decision

	// No hash means no comparison took place.
	if res.ParityHash != "" {
		r.sink.ParityOutcome(ctx, key.Index, key.Rule, len(res.DiffFields) == 0, len(res.DiffFields))
	}
	r.sink.GatingDecision(ctx, key.Index, key.Rule, d.Mode, d.Reason)
	if d.Promote {
		r.sink.Promotion(ctx, key.Index, key.Rule)
	}
	r.sink.Churn(ctx, key.Index, key.Rule, d.ChurnRatio)
	if d.IsRollback() {
		r.sink.Rollback(ctx, key.Index, key.Rule, d.Reason)
	}
	for _, field := range res.DiffFields {
		if slices.Contains(r.gating.ProtectedFields, field) && slices.Contains(r.metricKeys, field) {
			r.sink.ProtectedFieldDiff(ctx, key.Index, key.Rule, field)
		}
	}

	fields := map[string]any{
		"cycle_id":    res.CycleID,
		"parity_hash": res.ParityHash,
		"diff_count":  len(res.DiffFields),
		"diff_fields": res.DiffFields,
		"mode":        d.Mode,
		"reason":      d.Reason,
		"promote":     d.Promote,
		"canary":      d.Canary,
		"ok_ratio":    d.OKRatio,
		"window_size": d.WindowSize,
		"churn_ratio": d.ChurnRatio,
		"phases_ok":   res.Execution.Summary.PhasesOK,
		"phases_err":  res.Execution.Summary.PhasesError,
	}
	item.AppendEvent(pipeline.Event{Type: pipeline.EventShadowCycle, At: r.now(), Fields: fields})

	r.logger.Info("shadow cycle",
		"cycle_id", res.CycleID,
		"key", key.String(),
		"parity_hash", res.ParityHash,
		"diff_count", len(res.DiffFields),
		"mode", d.Mode,
		"reason", d.Reason,
		"promote", d.Promote,
		"canary", d.Canary,
	)
}

func (r *Runner) writeJournal(ctx context.Context, item *pipeline.WorkItem, res CycleResult) {
	if r.journal == nil {
		return
	}
	key := item.Key()
	_, err := r.journal.AppendDecision(ctx, journal.DecisionEntry{
		CycleID:    res.CycleID,
		Key:        key,
		ParityHash: res.ParityHash,
		DiffFields: res.DiffFields,
		Decision:   res.Decision,
		RecordedAt: r.now(),
	})
	if err != nil {
		r.logger.Warn("journal decision failed", "cycle_id", res.CycleID, "key", key.String(), "error", err)
	}

	if res.Execution.Export == nil {
		return
	}
	inserted, err := r.journal.RecordErrorExport(ctx, res.CycleID, key, *res.Execution.Export)
	if err != nil {
		r.logger.Warn("journal error export failed", "cycle_id", res.CycleID, "key", key.String(), "error", err)
		return
	}
	if !inserted {
		r.logger.Debug("error export unchanged", "key", key.String(), "hash", res.Execution.Export.Hash)
	}
}
