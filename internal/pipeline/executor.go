package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/roach88/chainshadow/internal/telemetry"
)

// Options configures an Executor. Zero values select defaults.
type Options struct {
	Retry RetryPolicy

	// RecordAllAttempts records every failed attempt. By default only the
	// first failure of a phase and, when retries end non-ok, the terminal
	// failure are recorded.
	RecordAllAttempts bool

	Redactor *Redactor
	Sleeper  Sleeper
	Sink     telemetry.Sink
	Logger   *slog.Logger
	Trend    *Trend

	// Now stamps records and events. Defaults to time.Now.
	Now func() time.Time
}

// Executor drives an ordered phase list against one item.
//
// An Executor holds no per-item state and may be shared across goroutines
// as long as each item is run by one goroutine at a time.
type Executor struct {
	retry     RetryPolicy
	recordAll bool
	redactor  *Redactor
	sleeper   Sleeper
	sink      telemetry.Sink
	logger    *slog.Logger
	trend     *Trend
	now       func() time.Time
}

// NewExecutor creates an Executor from opts.
func NewExecutor(opts Options) *Executor {
	e := &Executor{
		retry:     opts.Retry,
		recordAll: opts.RecordAllAttempts,
		redactor:  opts.Redactor,
		sleeper:   opts.Sleeper,
		logger:    opts.Logger,
		trend:     opts.Trend,
		now:       opts.Now,
	}
	if e.logger == nil {
		e.logger = slog.Default()
	}
	if e.sleeper == nil {
		e.sleeper = TimerSleeper{}
	}
	if e.now == nil {
		e.now = time.Now
	}
	e.sink = telemetry.Safe(opts.Sink, e.logger)
	return e
}

// Result is the output of one Executor run.
type Result struct {
	Item    *WorkItem
	Phases  []PhaseResult
	Summary Summary
	Export  *ErrorExport
}

// Run executes phases in order against item and always returns it.
//
// The first non-ok outcome stops the sequence. The summary is stored under
// MetaCycleSummary and, when any failure was recorded, the error export
// under MetaErrorExport.
func (e *Executor) Run(ctx context.Context, item *WorkItem, phases []Phase) Result {
	if item.Metadata == nil {
		item.Metadata = make(map[string]any)
	}
	recordsBefore := len(item.ErrorRecords)

	results := make([]PhaseResult, 0, len(phases))
	for _, phase := range phases {
		var res PhaseResult
		item, res = e.runPhase(ctx, item, phase)
		results = append(results, res)
		if res.Outcome != ClassOK {
			break
		}
	}

	summary := Summarize(results)
	item.SetMeta(MetaCycleSummary, summary)
	out := Result{Item: item, Phases: results, Summary: summary}

	if len(item.ErrorRecords) > recordsBefore {
		export, err := BuildExport(item.ErrorRecords, e.now())
		if err != nil {
			e.logger.Warn("error export failed", "key", item.Key().String(), "error", err)
		} else {
			item.SetMeta(MetaErrorExport, export)
			out.Export = &export
		}
	}

	success := summary.Success()
	e.sink.CycleOutcome(ctx, success)
	if e.trend != nil {
		snap := e.trend.Observe(success)
		e.sink.RollingRates(ctx, snap.Cycles, snap.SuccessRate, snap.ErrorRate)
	}

	e.logger.Debug("phase sequence finished",
		"key", item.Key().String(),
		"phases_total", summary.PhasesTotal,
		"phases_ok", summary.PhasesOK,
		"aborted_early", summary.AbortedEarly,
	)
	return out
}

// runPhase runs one phase to its final classification, retrying as allowed.
func (e *Executor) runPhase(ctx context.Context, item *WorkItem, phase Phase) (*WorkItem, PhaseResult) {
	name := phase.Name()
	key := item.Key()
	start := e.now()
	recorded := false

	finish := func(class Classification, attempt int, msg string) PhaseResult {
		d := e.now().Sub(start)
		e.sink.PhaseOutcome(ctx, name, string(class), d)
		item.AppendEvent(Event{
			Type: EventPhaseResult, Phase: name, Attempt: attempt,
			Outcome: string(class), Message: msg, At: e.now(),
		})
		return PhaseResult{Phase: name, Outcome: class, Attempts: attempt, Duration: d, Message: msg}
	}

	for attempt := 1; ; attempt++ {
		e.sink.PhaseAttempt(ctx, name)
		if attempt > 1 {
			e.sink.PhaseRetry(ctx, name)
		}
		item.AppendEvent(Event{Type: EventPhaseAttempt, Phase: name, Attempt: attempt, At: e.now()})

		out := e.invoke(ctx, phase, item)

		switch out.Kind {
		case KindOK:
			item = item.Adopt(out.Item)
			return item, finish(ClassOK, attempt, "")

		case KindRecoverable:
			if !e.retry.CanRetry(attempt) {
				class := ClassRecoverableExhausted
				if !e.retry.Enabled {
					class = ClassRecoverable
				}
				e.record(ctx, item, name, class, attempt, out)
				return item, finish(class, attempt, out.Message)
			}
			justRecorded := false
			if e.recordAll || !recorded {
				e.record(ctx, item, name, ClassRecoverable, attempt, out)
				recorded, justRecorded = true, true
			}
			delay := e.retry.Delay(name, key, attempt)
			item.AppendEvent(Event{
				Type: EventPhaseRetry, Phase: name, Attempt: attempt,
				Message: out.Message, Delay: delay, At: e.now(),
			})
			e.logger.Debug("phase retry scheduled",
				"phase", name, "key", key.String(), "attempt", attempt, "delay", delay)
			if err := e.sleeper.Sleep(ctx, delay); err != nil {
				if !justRecorded {
					e.record(ctx, item, name, ClassRecoverable, attempt, out.WithDetail("backoff interrupted: "+err.Error()))
				}
				return item, finish(ClassRecoverable, attempt, out.Message)
			}

		case KindAbort:
			e.record(ctx, item, name, ClassAbort, attempt, out)
			return item, finish(ClassAbort, attempt, out.Message)

		case KindFatal:
			e.record(ctx, item, name, ClassFatal, attempt, out)
			return item, finish(ClassFatal, attempt, out.Message)

		default:
			e.record(ctx, item, name, ClassUnknown, attempt, out)
			return item, finish(ClassUnknown, attempt, out.Message)
		}
	}
}

// invoke calls the phase, converting a panic into an Unknown outcome.
func (e *Executor) invoke(ctx context.Context, phase Phase, item *WorkItem) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			out = Unknown(fmt.Sprintf("panic: %v", r))
		}
	}()
	return phase.Run(ctx, item)
}

// record appends a legacy token and its structured twin to the item.
func (e *Executor) record(ctx context.Context, item *WorkItem, phase string, class Classification, attempt int, out Outcome) {
	msg := e.redactor.Redact(out.Message)
	token := Token(class, phase, msg)
	item.Errors = append(item.Errors, token)
	item.ErrorRecords = append(item.ErrorRecords, ErrorRecord{
		Phase:          phase,
		Classification: class,
		Message:        msg,
		Detail:         e.redactor.Redact(out.Detail),
		Attempt:        attempt,
		Timestamp:      e.now(),
		Token:          token,
		Context:        out.Context,
	})

	level := slog.LevelWarn
	if class == ClassAbort {
		level = slog.LevelInfo
	}
	e.logger.Log(ctx, level, "phase failed",
		"phase", phase, "key", item.Key().String(),
		"classification", string(class), "attempt", attempt, "message", msg)
}
