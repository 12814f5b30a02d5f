package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManual_ZeroDelayNeverRunsSynchronously(t *testing.T) {
	m := NewManual(time.Time{})
	ran := false
	m.AfterFunc(0, func() { ran = true })

	require.False(t, ran)
	require.Equal(t, 1, m.Pending())

	require.Equal(t, 1, m.Tick())
	require.True(t, ran)
	require.Equal(t, 0, m.Pending())
}

func TestManual_RunsInDueOrderThenScheduleOrder(t *testing.T) {
	m := NewManual(time.Time{})
	var order []string

	m.AfterFunc(20*time.Millisecond, func() { order = append(order, "c") })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, "a") })
	m.AfterFunc(10*time.Millisecond, func() { order = append(order, "b") })

	m.Advance(15 * time.Millisecond)
	require.Equal(t, []string{"a", "b"}, order)

	m.Advance(5 * time.Millisecond)
	require.Equal(t, []string{"a", "b", "c"}, order)
}

func TestManual_TickRunsNestedZeroDelays(t *testing.T) {
	m := NewManual(time.Time{})
	var order []int

	m.AfterFunc(0, func() {
		order = append(order, 1)
		m.AfterFunc(0, func() { order = append(order, 2) })
	})

	require.Equal(t, 2, m.Tick())
	require.Equal(t, []int{1, 2}, order)
}

func TestManual_Stop(t *testing.T) {
	m := NewManual(time.Time{})
	ran := false
	timer := m.AfterFunc(time.Millisecond, func() { ran = true })

	require.True(t, timer.Stop())
	require.False(t, timer.Stop())
	require.Equal(t, 0, m.Pending())

	m.Advance(time.Second)
	require.False(t, ran)
}

func TestManual_AdvanceMovesClock(t *testing.T) {
	start := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m := NewManual(start)

	var firedAt time.Time
	m.AfterFunc(40*time.Millisecond, func() { firedAt = m.Now() })

	m.Advance(100 * time.Millisecond)
	require.Equal(t, start.Add(40*time.Millisecond), firedAt)
	require.Equal(t, start.Add(100*time.Millisecond), m.Now())
}

func TestManual_FlushBounded(t *testing.T) {
	m := NewManual(time.Time{})
	var reschedule func()
	count := 0
	reschedule = func() {
		count++
		m.AfterFunc(time.Millisecond, reschedule)
	}
	m.AfterFunc(0, reschedule)

	require.Equal(t, 10, m.Flush(10))
	require.Equal(t, 10, count)
}

func TestLoop_RunsTasksInOrderOnOneGoroutine(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go loop.Run(ctx)
	require.NoError(t, loop.WaitForReady(ctx))

	var mu sync.Mutex
	var order []int
	for i := range 5 {
		require.NoError(t, loop.Do(func() {
			mu.Lock()
			order = append(order, i)
			mu.Unlock()
		}))
	}

	require.NoError(t, loop.DoAndWait(ctx, func() {}))
	mu.Lock()
	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
	mu.Unlock()

	loop.Stop()
	require.False(t, loop.IsRunning())
	require.ErrorIs(t, loop.Do(func() {}), ErrLoopStopped)
}

func TestLoop_AfterFuncAndStop(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	require.NoError(t, loop.WaitForReady(ctx))
	defer loop.Stop()

	fired := make(chan struct{})
	loop.AfterFunc(5*time.Millisecond, func() { close(fired) })

	select {
	case <-fired:
	case <-time.After(time.Second):
		require.Fail(t, "timer did not fire")
	}

	stopped := loop.AfterFunc(time.Hour, func() {})
	require.True(t, stopped.Stop())
	require.False(t, stopped.Stop())
}

func TestLoop_StopCancelsQueuedTimer(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	require.NoError(t, loop.WaitForReady(ctx))
	defer loop.Stop()

	var ran atomic.Bool
	var stopped bool
	require.NoError(t, loop.DoAndWait(ctx, func() {
		timer := loop.AfterFunc(time.Millisecond, func() { ran.Store(true) })
		// The loop is busy, so the fired timer can only queue its task.
		time.Sleep(30 * time.Millisecond)
		stopped = timer.Stop()
	}))
	require.NoError(t, loop.DoAndWait(ctx, func() {}))

	require.True(t, stopped)
	require.False(t, ran.Load())
}

func TestLoop_StopAfterRunReturnsFalse(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	require.NoError(t, loop.WaitForReady(ctx))
	defer loop.Stop()

	fired := make(chan struct{})
	timer := loop.AfterFunc(time.Millisecond, func() { close(fired) })
	<-fired
	require.NoError(t, loop.DoAndWait(ctx, func() {}))
	require.False(t, timer.Stop())
}

func TestLoop_PanicDoesNotKillLoop(t *testing.T) {
	loop := NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go loop.Run(ctx)
	require.NoError(t, loop.WaitForReady(ctx))
	defer loop.Stop()

	require.NoError(t, loop.Do(func() { panic("boom") }))
	require.NoError(t, loop.DoAndWait(ctx, func() {}))
	require.True(t, loop.IsRunning())
}

func TestLoop_QueueFull(t *testing.T) {
	loop := NewLoop(WithQueueCapacity(1))
	require.NoError(t, loop.Do(func() {}))
	require.ErrorIs(t, loop.Do(func() {}), ErrQueueFull)
}

func TestBackoff_Sequence(t *testing.T) {
	seq := DefaultBackoff().Start()

	first, ok := seq.Next()
	require.True(t, ok)
	require.Equal(t, 100*time.Millisecond, first)

	second, ok := seq.Next()
	require.True(t, ok)
	require.InDelta(t, float64(127*time.Millisecond), float64(second), float64(time.Millisecond))

	third, ok := seq.Next()
	require.True(t, ok)
	require.Greater(t, third, second)
	require.Equal(t, 3, seq.Attempts())
}

func TestBackoff_MaxAttempts(t *testing.T) {
	seq := Backoff{Base: time.Millisecond, Factor: 2, Max: time.Second, MaxAttempts: 3}.Start()
	for range 3 {
		_, ok := seq.Next()
		require.True(t, ok)
	}
	require.True(t, seq.Exhausted())
	_, ok := seq.Next()
	require.False(t, ok)

	seq.Reset()
	d, ok := seq.Next()
	require.True(t, ok)
	require.Equal(t, time.Millisecond, d)
}

func TestBackoff_CappedAtMax(t *testing.T) {
	seq := Backoff{Base: 100 * time.Millisecond, Factor: 10, Max: 300 * time.Millisecond}.Start()
	_, _ = seq.Next()
	_, _ = seq.Next()
	d, ok := seq.Next()
	require.True(t, ok)
	require.Equal(t, 300*time.Millisecond, d)
}
