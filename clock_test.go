package statechart

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSimulatedClockFiresInDueOrder(t *testing.T) {
	c := NewSimulatedClock()
	var fired []string

	c.SetTimeout(func() { fired = append(fired, "b-20ms") }, 20*time.Millisecond)
	c.SetTimeout(func() { fired = append(fired, "a-10ms") }, 10*time.Millisecond)
	c.SetTimeout(func() { fired = append(fired, "c-30ms") }, 30*time.Millisecond)

	c.Increment(15 * time.Millisecond)
	assert.Equal(t, []string{"a-10ms"}, fired)

	c.Increment(10 * time.Millisecond)
	assert.Equal(t, []string{"a-10ms", "b-20ms"}, fired)

	c.Increment(100 * time.Millisecond)
	assert.Equal(t, []string{"a-10ms", "b-20ms", "c-30ms"}, fired)
}

func TestSimulatedClockTiesBreakByScheduleOrder(t *testing.T) {
	c := NewSimulatedClock()
	var fired []string

	c.SetTimeout(func() { fired = append(fired, "first") }, 5*time.Millisecond)
	c.SetTimeout(func() { fired = append(fired, "second") }, 5*time.Millisecond)

	c.Increment(5 * time.Millisecond)
	assert.Equal(t, []string{"first", "second"}, fired)
}

func TestSimulatedClockClearTimeoutCancels(t *testing.T) {
	c := NewSimulatedClock()
	fired := false

	h := c.SetTimeout(func() { fired = true }, 10*time.Millisecond)
	c.ClearTimeout(h)
	c.Increment(20 * time.Millisecond)

	assert.False(t, fired, "a cancelled timer must not fire")
}

func TestSimulatedClockNowAdvancesMonotonically(t *testing.T) {
	c := NewSimulatedClock()
	t0 := c.Now()
	c.Increment(5 * time.Second)
	t1 := c.Now()
	assert.True(t, t1.After(t0))
	assert.Equal(t, 5*time.Second, t1.Sub(t0))
}

func TestRealClockSetTimeoutFires(t *testing.T) {
	c := NewRealClock()
	fired := make(chan struct{}, 1)
	h := c.SetTimeout(func() { fired <- struct{}{} }, 5*time.Millisecond)

	select {
	case <-fired:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for RealClock to fire")
	}
	_ = h
}

func TestRealClockClearTimeoutPreventsFire(t *testing.T) {
	c := NewRealClock()
	fired := make(chan struct{}, 1)
	h := c.SetTimeout(func() { fired <- struct{}{} }, 20*time.Millisecond)
	c.ClearTimeout(h)

	select {
	case <-fired:
		t.Fatal("cleared timer should not fire")
	case <-time.After(40 * time.Millisecond):
	}
}

func TestRealClockNowAdvances(t *testing.T) {
	c := NewRealClock()
	now := c.Now()
	require.False(t, now.IsZero())
}
