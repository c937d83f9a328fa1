package fsm_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/fsm/fsmtest"
)

const eventTick = "tick"

// tickingMachine builds a machine holding stateRunning with a counting loop
// on eventTick, the usual target for periodic triggers in these tests.
func tickingMachine(t *testing.T, ts *fsmtest.TimerService, fires *int) *fsm.Machine[string, string] {
	t.Helper()

	m := newMachine(t, stateRunning, fsm.WithTimerService[string, string](ts))
	m.AddLoop(stateRunning, eventTick,
		fsm.WithAction[string, string](func(context.Context, *fsm.Context[string, string], string, any) error {
			*fires++

			return nil
		}),
	)

	return m
}

func TestAddPeriodicTriggerRequiresTimerService(t *testing.T) {
	t.Parallel()

	m := newMachine(t, stateRunning)

	err := m.AddPeriodicTrigger(stateRunning, eventTick, 0, time.Second)
	require.ErrorIs(t, err, fsm.ErrNoTimerService)
}

func TestAddPeriodicTriggerRejectsBadDurations(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	m := newMachine(t, stateRunning, fsm.WithTimerService[string, string](ts))

	require.ErrorIs(t, m.AddPeriodicTrigger(stateRunning, eventTick, -time.Second, time.Second), fsm.ErrInvalidDelay)
	require.ErrorIs(t, m.AddPeriodicTrigger(stateRunning, eventTick, 0, 0), fsm.ErrInvalidDelay)
	require.ErrorIs(t, m.AddPeriodicTrigger(stateRunning, eventTick, 0, -time.Second), fsm.ErrInvalidDelay)
}

func TestPeriodicTriggerInjectsEventWhileInState(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	fires := 0
	m := tickingMachine(t, ts, &fires)

	require.NoError(t, m.AddPeriodicTrigger(stateRunning, eventTick, 2*time.Second, 10*time.Second))

	// The underlying task is created on the first arm, at Start.
	assert.Zero(t, ts.PeriodicCount())
	require.NoError(t, m.Start(context.Background()))
	require.Equal(t, 1, ts.PeriodicCount())
	assert.Equal(t, 2*time.Second, ts.Periodics()[0].InitialDelay)
	assert.Equal(t, 10*time.Second, ts.Periodics()[0].Period)

	ts.Tick(0)
	ts.Tick(0)

	assert.Equal(t, 2, fires)
	assert.Equal(t, stateRunning, m.CurrentState())
}

func TestPeriodicTickOutsideStateIsDropped(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	fires := 0
	m := tickingMachine(t, ts, &fires)
	m.AddTransition(stateRunning, statePaused, eventPause)

	require.NoError(t, m.AddPeriodicTrigger(stateRunning, eventTick, 0, time.Second))
	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.FireEvent(context.Background(), eventPause))

	ts.Tick(0)

	assert.Zero(t, fires)
	assert.Equal(t, statePaused, m.CurrentState())
	assert.NoError(t, m.Context().LastError())
}

func TestPeriodicTriggerKeepsSingleUnderlyingTask(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	fires := 0
	m := tickingMachine(t, ts, &fires)
	m.AddTransition(stateRunning, statePaused, eventPause)
	m.AddTransition(statePaused, stateRunning, eventResume)

	require.NoError(t, m.AddPeriodicTrigger(stateRunning, eventTick, 0, time.Second))
	require.NoError(t, m.Start(context.Background()))

	for i := 0; i < 3; i++ {
		require.NoError(t, m.FireEvent(context.Background(), eventPause))
		require.NoError(t, m.FireEvent(context.Background(), eventResume))
	}

	// Arm and disarm flip a flag; they never schedule another task.
	assert.Equal(t, 1, ts.PeriodicCount())

	ts.Tick(0)
	assert.Equal(t, 1, fires)
}

func TestPeriodicTriggerGuardRefusalDoesNotCount(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	fires := 0
	m := tickingMachine(t, ts, &fires)

	allowed := false

	require.NoError(t, m.AddPeriodicTrigger(stateRunning, eventTick, 0, time.Second,
		fsm.WithTriggerGuard[string, string](func(context.Context, *fsm.Context[string, string], string, any) bool {
			return allowed
		}),
		fsm.WithMaxOccurrences[string, string](2),
	))
	require.NoError(t, m.Start(context.Background()))

	// Refused ticks do not advance the occurrence count.
	ts.Tick(0)
	ts.Tick(0)
	assert.Zero(t, fires)

	allowed = true

	ts.Tick(0)
	ts.Tick(0)
	assert.Equal(t, 2, fires)

	// The cap is exhausted now.
	ts.Tick(0)
	assert.Equal(t, 2, fires)
}

func TestPeriodicTickConsumedByHandlerStillCounts(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	consumed := 0

	m := newMachine(t, stateRunning, fsm.WithTimerService[string, string](ts))
	m.RegisterHandler(stateRunning, &funcHandler{
		handle: func(_ context.Context, _ *fsm.Context[string, string], event string, _ any) (bool, error) {
			if event == eventTick {
				consumed++

				return true, nil
			}

			return false, nil
		},
	})

	require.NoError(t, m.AddPeriodicTrigger(stateRunning, eventTick, 0, time.Second,
		fsm.WithMaxOccurrences[string, string](2),
	))
	require.NoError(t, m.Start(context.Background()))

	// The handler consumes each injected tick; the fire still counts
	// toward the cap.
	ts.Tick(0)
	ts.Tick(0)
	assert.Equal(t, 2, consumed)

	ts.Tick(0)
	assert.Equal(t, 2, consumed)

	assert.Equal(t, stateRunning, m.CurrentState())
	assert.NoError(t, m.Context().LastError())
}

func TestPeriodicTriggerCapSurvivesReentry(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	fires := 0
	m := tickingMachine(t, ts, &fires)
	m.AddTransition(stateRunning, statePaused, eventPause)
	m.AddTransition(statePaused, stateRunning, eventResume)

	require.NoError(t, m.AddPeriodicTrigger(stateRunning, eventTick, 0, time.Second,
		fsm.WithMaxOccurrences[string, string](1),
	))
	require.NoError(t, m.Start(context.Background()))

	ts.Tick(0)
	require.Equal(t, 1, fires)

	// Cap reached: this tick disarms instead of firing.
	ts.Tick(0)
	require.Equal(t, 1, fires)

	// The occurrence count is cumulative; re-entering the state does not
	// grant a fresh allowance.
	require.NoError(t, m.FireEvent(context.Background(), eventPause))
	require.NoError(t, m.FireEvent(context.Background(), eventResume))

	ts.Tick(0)
	ts.Tick(0)
	assert.Equal(t, 1, fires)
}

func TestPeriodicTriggerGuardPanicDropsTick(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	fires := 0
	m := tickingMachine(t, ts, &fires)

	require.NoError(t, m.AddPeriodicTrigger(stateRunning, eventTick, 0, time.Second,
		fsm.WithTriggerGuard[string, string](func(context.Context, *fsm.Context[string, string], string, any) bool {
			panic("trigger guard exploded")
		}),
	))
	require.NoError(t, m.Start(context.Background()))

	ts.Tick(0)

	// The tick was dropped before any event was fired, so nothing was
	// recorded on the context.
	assert.Zero(t, fires)
	assert.NoError(t, m.Context().LastError())
	assert.Equal(t, stateRunning, m.CurrentState())
}

func TestPeriodicTriggersCoverMultipleStates(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()
	fires := 0
	m := tickingMachine(t, ts, &fires)
	m.AddLoop(statePaused, eventTick)
	m.AddTransition(stateRunning, statePaused, eventPause)

	require.NoError(t, m.AddPeriodicTriggers([]string{stateRunning, statePaused}, []string{eventTick}, 0, time.Second))
	require.NoError(t, m.Start(context.Background()))

	// Only the current state's trigger task exists so far.
	require.Equal(t, 1, ts.PeriodicCount())

	require.NoError(t, m.FireEvent(context.Background(), eventPause))
	require.Equal(t, 2, ts.PeriodicCount())

	// The first task belongs to the trigger bound to the vacated state.
	ts.Tick(0)
	assert.Zero(t, fires)

	ts.Tick(1)
	assert.Equal(t, statePaused, m.CurrentState())
}
