package pipeline

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSummarize_Empty(t *testing.T) {
	s := Summarize(nil)
	assert.Equal(t, 0, s.PhasesTotal)
	assert.False(t, s.AbortedEarly)
	assert.True(t, s.Success())
}

func TestSummarize_Flags(t *testing.T) {
	s := Summarize([]PhaseResult{
		{Phase: "resolve", Outcome: ClassOK, Attempts: 1},
		{Phase: "fetch", Outcome: ClassOK, Attempts: 3},
		{Phase: "compute", Outcome: ClassUnknown, Attempts: 1},
	})

	assert.Equal(t, 3, s.PhasesTotal)
	assert.Equal(t, 2, s.PhasesOK)
	assert.Equal(t, 1, s.PhasesError)
	assert.Equal(t, 1, s.PhasesRetried)
	assert.True(t, s.AbortedEarly)
	assert.True(t, s.FatalOrUnknown)
	assert.False(t, s.RecoverableExhausted)
	assert.Equal(t, ClassUnknown, s.Outcomes["compute"])
	assert.False(t, s.Success())
}

func TestTrend_RollingWindow(t *testing.T) {
	tr := NewTrend(2)
	tr.Observe(false)
	tr.Observe(true)
	snap := tr.Observe(true)

	assert.Equal(t, 3, snap.Cycles)
	assert.InDelta(t, 1.0, snap.SuccessRate, 1e-9, "the oldest failure fell out of the window")
	assert.InDelta(t, 0.0, snap.ErrorRate, 1e-9)
}
