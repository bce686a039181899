package testutil

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicClock_StartsAtEpoch(t *testing.T) {
	clock := NewDeterministicClock()
	assert.Equal(t, Epoch, clock.Current())
	assert.Equal(t, Epoch, clock.Now())
}

func TestDeterministicClock_NowAdvancesByStep(t *testing.T) {
	clock := NewDeterministicClockAt(Epoch, time.Second)

	first := clock.Now()
	second := clock.Now()
	assert.Equal(t, time.Second, second.Sub(first))
	assert.Equal(t, Epoch.Add(2*time.Second), clock.Current())
}

func TestDeterministicClock_ZeroStepFreezes(t *testing.T) {
	clock := NewDeterministicClockAt(Epoch, 0)
	assert.Equal(t, clock.Now(), clock.Now())
}

func TestDeterministicClock_ThreadSafe(t *testing.T) {
	clock := NewDeterministicClockAt(Epoch, time.Millisecond)
	const numGoroutines = 50
	const callsPerGoroutine = 20

	var wg sync.WaitGroup
	wg.Add(numGoroutines)
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				clock.Now()
			}
		}()
	}
	wg.Wait()

	want := Epoch.Add(numGoroutines * callsPerGoroutine * time.Millisecond)
	assert.Equal(t, want, clock.Current())
}

func TestFakeSleeper_RecordsAndAdvances(t *testing.T) {
	clock := NewDeterministicClockAt(Epoch, 0)
	s := &FakeSleeper{Clock: clock}

	require.NoError(t, s.Sleep(context.Background(), 100*time.Millisecond))
	require.NoError(t, s.Sleep(context.Background(), 200*time.Millisecond))

	assert.Equal(t, []time.Duration{100 * time.Millisecond, 200 * time.Millisecond}, s.Delays())
	assert.Equal(t, Epoch.Add(300*time.Millisecond), clock.Current())
}

func TestFakeSleeper_FailAfter(t *testing.T) {
	s := &FakeSleeper{FailAfter: 2}

	require.NoError(t, s.Sleep(context.Background(), time.Millisecond))
	assert.ErrorIs(t, s.Sleep(context.Background(), time.Millisecond), context.Canceled)
}

func TestSequenceIDGenerator(t *testing.T) {
	g := NewSequenceIDGenerator("")
	assert.Equal(t, "cycle-0001", g.Generate())
	assert.Equal(t, "cycle-0002", g.Generate())
}
