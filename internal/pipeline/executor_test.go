package pipeline

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/chainshadow/internal/testutil"
)

func okPhase(name string) Phase {
	return PhaseFunc(name, func(_ context.Context, item *WorkItem) Outcome {
		return Ok(item)
	})
}

// flakyPhase fails with Recoverable until it has been called succeedOn times.
func flakyPhase(name string, succeedOn int, calls *int) Phase {
	return PhaseFunc(name, func(_ context.Context, item *WorkItem) Outcome {
		*calls++
		if *calls >= succeedOn {
			return Ok(item)
		}
		return Recoverable("upstream timeout")
	})
}

func newTestExecutor(retry RetryPolicy, sleeper Sleeper) *Executor {
	return NewExecutor(Options{
		Retry:   retry,
		Sleeper: sleeper,
		Now:     testutil.NewDeterministicClock().Now,
		Logger:  slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil)),
	})
}

func TestExecutor_AllOK(t *testing.T) {
	exec := newTestExecutor(RetryPolicy{}, &testutil.FakeSleeper{})
	item := NewWorkItem("NIFTY", "weekly", nil)

	res := exec.Run(context.Background(), item, []Phase{okPhase("resolve"), okPhase("fetch")})

	assert.Equal(t, 2, res.Summary.PhasesTotal)
	assert.Equal(t, 2, res.Summary.PhasesOK)
	assert.Equal(t, 0, res.Summary.PhasesError)
	assert.False(t, res.Summary.AbortedEarly)
	assert.Empty(t, item.Errors)
	assert.Nil(t, res.Export)

	stored, ok := item.Summary()
	require.True(t, ok)
	assert.Equal(t, res.Summary, stored)
}

func TestExecutor_AbortStopsSequence(t *testing.T) {
	exec := newTestExecutor(RetryPolicy{}, &testutil.FakeSleeper{})
	item := NewWorkItem("NIFTY", "weekly", nil)

	ran := false
	never := PhaseFunc("never", func(_ context.Context, item *WorkItem) Outcome {
		ran = true
		return Ok(item)
	})
	abort := PhaseFunc("gate", func(context.Context, *WorkItem) Outcome {
		return Abort("market closed")
	})

	res := exec.Run(context.Background(), item, []Phase{okPhase("resolve"), abort, never})

	assert.False(t, ran, "phases after a non-ok outcome must not run")
	assert.Equal(t, 2, res.Summary.PhasesTotal)
	assert.Equal(t, 1, res.Summary.PhasesOK)
	assert.Equal(t, 1, res.Summary.PhasesError)
	assert.True(t, res.Summary.AbortedEarly)
	assert.False(t, res.Summary.FatalOrUnknown)
	assert.Equal(t, []string{"abort:gate:market closed"}, item.Errors)
}

func TestExecutor_RecoverableSucceedsOnThirdAttempt(t *testing.T) {
	sleeper := &testutil.FakeSleeper{}
	exec := newTestExecutor(RetryPolicy{
		Enabled: true, MaxAttempts: 4,
		BaseDelay: 100 * time.Millisecond, MaxDelay: time.Second,
	}, sleeper)
	item := NewWorkItem("NIFTY", "weekly", nil)

	calls := 0
	res := exec.Run(context.Background(), item, []Phase{flakyPhase("fetch", 3, &calls)})

	require.Len(t, res.Phases, 1)
	assert.Equal(t, ClassOK, res.Phases[0].Outcome)
	assert.Equal(t, 3, res.Phases[0].Attempts)
	assert.Equal(t, 1, res.Summary.PhasesRetried)
	assert.False(t, res.Summary.AbortedEarly)

	require.Len(t, item.ErrorRecords, 1)
	rec := item.ErrorRecords[0]
	assert.Equal(t, ClassRecoverable, rec.Classification)
	assert.Equal(t, 1, rec.Attempt)
	assert.Equal(t, "fetch", rec.Phase)
	assert.Equal(t, rec.Token, item.Errors[0])

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, sleeper.Delays())
}

func TestExecutor_RecordAllAttempts(t *testing.T) {
	exec := NewExecutor(Options{
		Retry:             RetryPolicy{Enabled: true, MaxAttempts: 4, BaseDelay: time.Millisecond, MaxDelay: time.Second},
		RecordAllAttempts: true,
		Sleeper:           &testutil.FakeSleeper{},
		Now:               testutil.NewDeterministicClock().Now,
	})
	item := NewWorkItem("NIFTY", "weekly", nil)

	calls := 0
	exec.Run(context.Background(), item, []Phase{flakyPhase("fetch", 3, &calls)})

	require.Len(t, item.ErrorRecords, 2)
	assert.Equal(t, 1, item.ErrorRecords[0].Attempt)
	assert.Equal(t, 2, item.ErrorRecords[1].Attempt)
}

func TestExecutor_RecoverableExhausted(t *testing.T) {
	exec := newTestExecutor(RetryPolicy{
		Enabled: true, MaxAttempts: 3, BaseDelay: time.Millisecond, MaxDelay: time.Second,
	}, &testutil.FakeSleeper{})
	item := NewWorkItem("NIFTY", "weekly", nil)

	calls := 0
	res := exec.Run(context.Background(), item, []Phase{flakyPhase("fetch", 100, &calls), okPhase("after")})

	assert.Equal(t, 3, calls, "attempt count never exceeds max attempts")
	require.Len(t, res.Phases, 1)
	assert.Equal(t, ClassRecoverableExhausted, res.Phases[0].Outcome)
	assert.True(t, res.Summary.RecoverableExhausted)
	assert.True(t, res.Summary.AbortedEarly)

	require.Len(t, item.ErrorRecords, 2, "first failure plus terminal failure")
	assert.Equal(t, ClassRecoverable, item.ErrorRecords[0].Classification)
	assert.Equal(t, ClassRecoverableExhausted, item.ErrorRecords[1].Classification)
	assert.Equal(t, 3, item.ErrorRecords[1].Attempt)
}

func TestExecutor_RetryDisabled(t *testing.T) {
	sleeper := &testutil.FakeSleeper{}
	exec := newTestExecutor(RetryPolicy{Enabled: false, MaxAttempts: 5}, sleeper)
	item := NewWorkItem("NIFTY", "weekly", nil)

	calls := 0
	res := exec.Run(context.Background(), item, []Phase{flakyPhase("fetch", 2, &calls)})

	assert.Equal(t, 1, calls)
	assert.Equal(t, ClassRecoverable, res.Phases[0].Outcome)
	assert.Empty(t, sleeper.Delays())
	assert.Equal(t, []string{"recoverable:fetch:upstream timeout"}, item.Errors)
}

func TestExecutor_BackoffInterrupted(t *testing.T) {
	sleeper := &testutil.FakeSleeper{FailAfter: 2}
	exec := newTestExecutor(RetryPolicy{
		Enabled: true, MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second,
	}, sleeper)
	item := NewWorkItem("NIFTY", "weekly", nil)

	calls := 0
	res := exec.Run(context.Background(), item, []Phase{flakyPhase("fetch", 100, &calls)})

	assert.Equal(t, 2, calls)
	assert.Equal(t, ClassRecoverable, res.Phases[0].Outcome)
	require.Len(t, item.ErrorRecords, 2)
	assert.Contains(t, item.ErrorRecords[1].Detail, "backoff interrupted")
}

func TestExecutor_FatalNeverRetried(t *testing.T) {
	sleeper := &testutil.FakeSleeper{}
	exec := newTestExecutor(RetryPolicy{Enabled: true, MaxAttempts: 5, BaseDelay: time.Millisecond, MaxDelay: time.Second}, sleeper)
	item := NewWorkItem("NIFTY", "weekly", nil)

	calls := 0
	fatal := PhaseFunc("compute", func(context.Context, *WorkItem) Outcome {
		calls++
		return Fatal("negative strike").WithDetail("strike=-1").WithContext("source", "chain")
	})

	res := exec.Run(context.Background(), item, []Phase{fatal})

	assert.Equal(t, 1, calls)
	assert.Equal(t, ClassFatal, res.Phases[0].Outcome)
	assert.True(t, res.Summary.FatalOrUnknown)
	assert.Empty(t, sleeper.Delays())
	require.Len(t, item.ErrorRecords, 1)
	assert.Equal(t, "strike=-1", item.ErrorRecords[0].Detail)
	assert.Equal(t, map[string]string{"source": "chain"}, item.ErrorRecords[0].Context)
}

func TestExecutor_PanicBecomesUnknown(t *testing.T) {
	exec := newTestExecutor(RetryPolicy{}, &testutil.FakeSleeper{})
	item := NewWorkItem("NIFTY", "weekly", nil)

	boom := PhaseFunc("compute", func(context.Context, *WorkItem) Outcome {
		panic("index out of range")
	})

	var res Result
	require.NotPanics(t, func() {
		res = exec.Run(context.Background(), item, []Phase{boom})
	})
	assert.Equal(t, ClassUnknown, res.Phases[0].Outcome)
	assert.True(t, res.Summary.FatalOrUnknown)
	assert.Contains(t, item.Errors[0], "unknown:compute:panic: index out of range")
}

func TestExecutor_ErrorPhaseClassification(t *testing.T) {
	exec := newTestExecutor(RetryPolicy{}, &testutil.FakeSleeper{})

	cases := []struct {
		name string
		err  error
		want Classification
	}{
		{"abort", NewAbort("no expiry today"), ClassAbort},
		{"recoverable", NewRecoverable("rate limited", errors.New("429")), ClassRecoverable},
		{"fatal", NewFatal("bad settings", nil), ClassFatal},
		{"plain error", errors.New("boom"), ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			item := NewWorkItem("NIFTY", "weekly", nil)
			phase := ErrorPhase("fetch", func(context.Context, *WorkItem) (*WorkItem, error) {
				return nil, tc.err
			})
			res := exec.Run(context.Background(), item, []Phase{phase})
			assert.Equal(t, tc.want, res.Phases[0].Outcome)
		})
	}
}

func TestExecutor_ErrorExportAttached(t *testing.T) {
	exec := newTestExecutor(RetryPolicy{}, &testutil.FakeSleeper{})
	item := NewWorkItem("NIFTY", "weekly", nil)

	res := exec.Run(context.Background(), item, []Phase{
		PhaseFunc("fetch", func(context.Context, *WorkItem) Outcome { return Fatal("down") }),
	})

	require.NotNil(t, res.Export)
	assert.Equal(t, ExportVersion, res.Export.Version)
	assert.Equal(t, 1, res.Export.Count)
	assert.Len(t, res.Export.Hash, 64)

	stored, ok := item.Metadata[MetaErrorExport].(ErrorExport)
	require.True(t, ok)
	assert.Equal(t, res.Export.Hash, stored.Hash)
}

func TestExecutor_PhaseReturnsNewItem(t *testing.T) {
	exec := newTestExecutor(RetryPolicy{Enabled: true, MaxAttempts: 3}, &testutil.FakeSleeper{})
	item := NewWorkItem("NIFTY", "weekly", nil)
	item.SetMeta(MetaCycleID, "cycle-0001")

	calls := 0
	res := exec.Run(context.Background(), item, []Phase{
		PhaseFunc("resolve", func(context.Context, *WorkItem) Outcome {
			calls++
			if calls == 1 {
				return Recoverable("upstream timeout")
			}
			fresh := NewWorkItem("NIFTY", "weekly", nil)
			fresh.Strikes = []float64{22000}
			return Ok(fresh)
		}),
		PhaseFunc("fetch", func(context.Context, *WorkItem) Outcome { return Fatal("down") }),
	})

	require.NotSame(t, item, res.Item)
	assert.Equal(t, []float64{22000}, res.Item.Strikes)
	assert.Equal(t, "cycle-0001", res.Item.Metadata[MetaCycleID])
	assert.Equal(t, []string{"recoverable:resolve:upstream timeout", "fatal:fetch:down"}, res.Item.Errors)
	require.Len(t, res.Item.ErrorRecords, 2)

	require.NotNil(t, res.Export)
	assert.Equal(t, 2, res.Export.Count)

	var types []string
	for _, ev := range res.Item.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{
		EventPhaseAttempt, EventPhaseRetry, EventPhaseAttempt, EventPhaseResult,
		EventPhaseAttempt, EventPhaseResult,
	}, types)
}

func TestExecutor_RedactsMessages(t *testing.T) {
	red, err := NewRedactor([]string{`token=\w+`})
	require.NoError(t, err)
	exec := NewExecutor(Options{Redactor: red, Sleeper: &testutil.FakeSleeper{}})
	item := NewWorkItem("NIFTY", "weekly", nil)

	exec.Run(context.Background(), item, []Phase{
		PhaseFunc("fetch", func(context.Context, *WorkItem) Outcome {
			return Fatal("auth failed token=abc123")
		}),
	})

	assert.Equal(t, "fatal:fetch:auth failed [REDACTED]", item.Errors[0])
	assert.Equal(t, "auth failed [REDACTED]", item.ErrorRecords[0].Message)
}

func TestExecutor_EventsBuffered(t *testing.T) {
	exec := newTestExecutor(RetryPolicy{Enabled: true, MaxAttempts: 2, BaseDelay: time.Millisecond, MaxDelay: time.Second}, &testutil.FakeSleeper{})
	item := NewWorkItem("NIFTY", "weekly", nil)

	calls := 0
	exec.Run(context.Background(), item, []Phase{flakyPhase("fetch", 2, &calls)})

	var types []string
	for _, ev := range item.Events() {
		types = append(types, ev.Type)
	}
	assert.Equal(t, []string{EventPhaseAttempt, EventPhaseRetry, EventPhaseAttempt, EventPhaseResult}, types)
}

func TestExecutor_TrendUpdated(t *testing.T) {
	trend := NewTrend(4)
	exec := NewExecutor(Options{Trend: trend, Sleeper: &testutil.FakeSleeper{}})

	exec.Run(context.Background(), NewWorkItem("NIFTY", "weekly", nil), []Phase{okPhase("a")})
	exec.Run(context.Background(), NewWorkItem("NIFTY", "weekly", nil), []Phase{
		PhaseFunc("b", func(context.Context, *WorkItem) Outcome { return Abort("skip") }),
	})

	snap := trend.Snapshot()
	assert.Equal(t, 2, snap.Cycles)
	assert.InDelta(t, 0.5, snap.SuccessRate, 1e-9)
	assert.InDelta(t, 0.5, snap.ErrorRate, 1e-9)
}

func TestWorkItem_Adopt(t *testing.T) {
	item := NewWorkItem("NIFTY", "weekly", nil)
	item.Errors = []string{"abort:resolve:holiday"}
	item.AppendEvent(Event{Type: EventPhaseAttempt, Phase: "resolve", Attempt: 1})

	assert.Same(t, item, item.Adopt(nil))
	assert.Same(t, item, item.Adopt(item))

	next := &WorkItem{Index: "NIFTY", Rule: "weekly", Metadata: map[string]any{MetaCycleID: "cycle-0002"}}
	item.SetMeta(MetaCycleID, "cycle-0001")
	got := item.Adopt(next)

	assert.Same(t, next, got)
	assert.Equal(t, item.Errors, got.Errors)
	assert.Len(t, got.Events(), 1)
	assert.Equal(t, "cycle-0002", got.Metadata[MetaCycleID], "keys set by the phase win")
}
