package timer_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/timer"
)

const waitTimeout = 2 * time.Second

// countingExecutor runs tasks inline and counts how many it received.
type countingExecutor struct {
	submitted atomic.Int32
}

func (e *countingExecutor) Submit(task func()) {
	e.submitted.Add(1)
	task()
}

func newService(t *testing.T, opts ...timer.Option) *timer.Service {
	t.Helper()

	base := []timer.Option{timer.WithLogger(slogt.New(t))}

	svc := timer.New(append(base, opts...)...)
	t.Cleanup(svc.Stop)

	return svc
}

func TestScheduleOnceRunsTask(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	done := make(chan struct{})

	svc.ScheduleOnce(func() { close(done) }, 10*time.Millisecond)

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for scheduled task")
	}
}

func TestScheduleOnceZeroDelay(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	done := make(chan struct{})

	svc.ScheduleOnce(func() { close(done) }, 0)

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for zero-delay task")
	}
}

func TestSchedulePeriodicallyKeepsTicking(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	var ticks atomic.Int32

	svc.SchedulePeriodically(func() { ticks.Add(1) }, 5*time.Millisecond, 5*time.Millisecond)

	assert.Eventually(t, func() bool {
		return ticks.Load() >= 3
	}, waitTimeout, time.Millisecond)
}

func TestStopCancelsPendingTimer(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	var fired atomic.Bool

	svc.ScheduleOnce(func() { fired.Store(true) }, 50*time.Millisecond)
	svc.Stop()

	time.Sleep(120 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestStopEndsPeriodicSchedule(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	var ticks atomic.Int32

	svc.SchedulePeriodically(func() { ticks.Add(1) }, time.Millisecond, time.Millisecond)

	require.Eventually(t, func() bool {
		return ticks.Load() >= 1
	}, waitTimeout, time.Millisecond)

	// Stop waits for the periodic goroutine, so the count is final once it
	// returns.
	svc.Stop()
	settled := ticks.Load()

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, settled, ticks.Load())
}

func TestStopReturnsDuringInitialDelay(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	svc.SchedulePeriodically(func() {}, time.Hour, time.Hour)

	done := make(chan struct{})

	go func() {
		svc.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("Stop did not return while a periodic schedule was sleeping")
	}
}

func TestScheduleAfterStopIsIgnored(t *testing.T) {
	t.Parallel()

	svc := newService(t)
	svc.Stop()

	var fired atomic.Bool

	svc.ScheduleOnce(func() { fired.Store(true) }, time.Millisecond)
	svc.SchedulePeriodically(func() { fired.Store(true) }, time.Millisecond, time.Millisecond)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestSchedulePeriodicallyRejectsNonPositivePeriod(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	var fired atomic.Bool

	svc.SchedulePeriodically(func() { fired.Store(true) }, time.Millisecond, 0)

	time.Sleep(20 * time.Millisecond)
	assert.False(t, fired.Load())
}

func TestWithExecutorRoutesTasks(t *testing.T) {
	t.Parallel()

	exec := &countingExecutor{}
	svc := newService(t, timer.WithExecutor(exec))

	done := make(chan struct{})

	svc.ScheduleOnce(func() { close(done) }, 5*time.Millisecond)

	select {
	case <-done:
	case <-time.After(waitTimeout):
		t.Fatal("timeout waiting for executor-routed task")
	}

	assert.Equal(t, int32(1), exec.submitted.Load())
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	svc := timer.New(timer.WithLogger(slogt.New(t)))

	svc.Stop()
	svc.Stop()
}

func TestServiceDrivesScheduledTransition(t *testing.T) {
	t.Parallel()

	svc := newService(t)

	m := fsm.New("waiting",
		fsm.WithLogger[string, string](fsm.NopLogger{}),
		fsm.WithTimerService[string, string](svc),
	)
	require.NoError(t, m.AddScheduledTransition("waiting", "expired", "timeout", 10*time.Millisecond))
	require.NoError(t, m.Start(context.Background()))

	assert.Eventually(t, func() bool {
		return m.CurrentState() == "expired"
	}, waitTimeout, time.Millisecond)
}
