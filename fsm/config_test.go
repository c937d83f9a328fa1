package fsm_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"
	"time"

	"github.com/neilotoole/slogt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amp-labs/amp-fsm/fsm"
	"github.com/amp-labs/amp-fsm/fsm/fsmtest"
)

const orderFlowYAML = `
name: order-flow
initialState: pending
states:
  - name: pending
  - name: shipped
    handler: track
  - name: cancelled
transitions:
  - from: pending
    to: shipped
    event: ship
    guard: paid
    action: record
  - from: pending
    to: cancelled
    event: cancel
  - from: pending
    to: pending
    event: nag
  - from: shipped
    to: cancelled
    event: recall
    delay: 30s
triggers:
  - state: pending
    event: nag
    period: 10s
    maxOccurrences: 3
`

func TestParseDefinition(t *testing.T) {
	t.Parallel()

	def, err := fsm.ParseDefinition([]byte(orderFlowYAML))
	require.NoError(t, err)

	assert.Equal(t, "order-flow", def.Name)
	assert.Equal(t, "pending", def.InitialState)
	require.Len(t, def.States, 3)
	assert.Equal(t, "track", def.States[1].Handler)
	require.Len(t, def.Transitions, 4)
	assert.Equal(t, "30s", def.Transitions[3].Delay)
	require.Len(t, def.Triggers, 1)
	assert.Equal(t, "10s", def.Triggers[0].Period)
	assert.Equal(t, 3, def.Triggers[0].MaxOccurrences)
}

func TestParseDefinitionBadYAML(t *testing.T) {
	t.Parallel()

	_, err := fsm.ParseDefinition([]byte("{{nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse YAML")
}

func TestParseDefinitionValidates(t *testing.T) {
	t.Parallel()

	_, err := fsm.ParseDefinition([]byte("initialState: a\nstates:\n  - name: a\n"))
	require.ErrorIs(t, err, fsm.ErrDefinitionNameRequired)
}

func TestValidateReportsEveryProblem(t *testing.T) {
	t.Parallel()

	def := &fsm.Definition{
		States: []fsm.StateDefinition{
			{Name: ""},
			{Name: "a"},
			{Name: "a"},
		},
		Transitions: []fsm.TransitionDefinition{
			{From: "ghost", To: "a", Event: ""},
			{From: "a", To: "a", Event: "e", Delay: "bogus"},
		},
		Triggers: []fsm.TriggerDefinition{
			{State: "ghost", Event: "", Period: ""},
		},
	}

	err := def.Validate()
	require.Error(t, err)

	// One pass reports every problem, not just the first.
	assert.ErrorIs(t, err, fsm.ErrDefinitionNameRequired)
	assert.ErrorIs(t, err, fsm.ErrInitialStateRequired)
	assert.ErrorIs(t, err, fsm.ErrStateNameRequired)
	assert.ErrorIs(t, err, fsm.ErrDuplicateStateName)
	assert.ErrorIs(t, err, fsm.ErrEventRequired)
	assert.ErrorIs(t, err, fsm.ErrUnknownState)
	assert.ErrorIs(t, err, fsm.ErrInvalidDelay)
}

func TestValidateListsDeclaredStatesNaturally(t *testing.T) {
	t.Parallel()

	def := &fsm.Definition{
		Name:         "natural",
		InitialState: "state1",
		States: []fsm.StateDefinition{
			{Name: "state10"},
			{Name: "state1"},
			{Name: "state2"},
		},
		Transitions: []fsm.TransitionDefinition{
			{From: "ghost", To: "state1", Event: "e"},
		},
	}

	err := def.Validate()
	require.ErrorIs(t, err, fsm.ErrUnknownState)
	assert.Contains(t, err.Error(), "declared: state1, state2, state10")
}

func TestDefinitionBuild(t *testing.T) {
	t.Parallel()

	ts := fsmtest.NewTimerService()

	tracked := false
	recorded := false

	reg := fsm.NewRegistry().
		RegisterGuard("paid", func(_ context.Context, c *fsm.Context[string, string], _ string, _ any) bool {
			paid, _ := c.GetBool("paid")

			return paid
		}).
		RegisterAction("record", func(context.Context, *fsm.Context[string, string], string, any) error {
			recorded = true

			return nil
		}).
		RegisterHandler("track", &funcHandler{
			enter: func(context.Context, *fsm.Context[string, string], string, string) error {
				tracked = true

				return nil
			},
		})

	def, err := fsm.ParseDefinition([]byte(orderFlowYAML))
	require.NoError(t, err)

	m, err := def.Build(reg,
		fsm.WithTimerService[string, string](ts),
		fsm.WithLogger[string, string](fsm.NewSlogLogger(slogt.New(t))),
	)
	require.NoError(t, err)
	assert.Equal(t, "order-flow", m.Name())
	assert.Equal(t, "pending", m.CurrentState())

	require.NoError(t, m.Start(context.Background()))

	// The pending trigger armed at start.
	require.Equal(t, 1, ts.PeriodicCount())
	assert.Equal(t, 10*time.Second, ts.Periodics()[0].Period)

	// The guard reads context data, so the first attempt is refused.
	require.ErrorIs(t, m.FireEvent(context.Background(), "ship"), fsm.ErrNoTransition)
	assert.False(t, recorded)

	m.Context().Put("paid", true)
	require.NoError(t, m.FireEvent(context.Background(), "ship"))
	assert.True(t, recorded)
	assert.True(t, tracked)
	assert.Equal(t, "shipped", m.CurrentState())

	// Entering shipped armed the delayed recall.
	require.Equal(t, 1, ts.OneShotCount())
	assert.Equal(t, 30*time.Second, ts.OneShots()[0].Delay)

	ts.Fire(0)
	assert.Equal(t, "cancelled", m.CurrentState())
}

func TestDefinitionBuildRejectsUnknownNames(t *testing.T) {
	t.Parallel()

	base := func() *fsm.Definition {
		return &fsm.Definition{
			Name:         "flow",
			InitialState: "a",
			States:       []fsm.StateDefinition{{Name: "a"}, {Name: "b"}},
			Transitions:  []fsm.TransitionDefinition{{From: "a", To: "b", Event: "e"}},
		}
	}

	t.Run("guard", func(t *testing.T) {
		t.Parallel()

		def := base()
		def.Transitions[0].Guard = "missing"

		_, err := def.Build(fsm.NewRegistry())
		require.ErrorIs(t, err, fsm.ErrUnknownGuard)
	})

	t.Run("action", func(t *testing.T) {
		t.Parallel()

		def := base()
		def.Transitions[0].Action = "missing"

		_, err := def.Build(fsm.NewRegistry())
		require.ErrorIs(t, err, fsm.ErrUnknownAction)
	})

	t.Run("handler", func(t *testing.T) {
		t.Parallel()

		def := base()
		def.States[0].Handler = "missing"

		_, err := def.Build(fsm.NewRegistry())
		require.ErrorIs(t, err, fsm.ErrUnknownHandler)
	})

	t.Run("trigger guard", func(t *testing.T) {
		t.Parallel()

		def := base()
		def.Triggers = []fsm.TriggerDefinition{
			{State: "a", Event: "e", Period: "5s", Guard: "missing"},
		}

		_, err := def.Build(fsm.NewRegistry(), fsm.WithTimerService[string, string](fsmtest.NewTimerService()))
		require.ErrorIs(t, err, fsm.ErrUnknownGuard)
	})
}

func TestDefinitionBuildValidatesFirst(t *testing.T) {
	t.Parallel()

	def := &fsm.Definition{InitialState: "a", States: []fsm.StateDefinition{{Name: "a"}}}

	_, err := def.Build(nil)
	require.ErrorIs(t, err, fsm.ErrDefinitionNameRequired)
}

func TestDefinitionBuildNilRegistry(t *testing.T) {
	t.Parallel()

	def := &fsm.Definition{
		Name:         "plain",
		InitialState: "a",
		States:       []fsm.StateDefinition{{Name: "a"}, {Name: "b"}},
		Transitions:  []fsm.TransitionDefinition{{From: "a", To: "b", Event: "e"}},
	}

	m, err := def.Build(nil, fsm.WithLogger[string, string](fsm.NewSlogLogger(slogt.New(t))))
	require.NoError(t, err)

	require.NoError(t, m.Start(context.Background()))
	require.NoError(t, m.FireEvent(context.Background(), "e"))
	assert.Equal(t, "b", m.CurrentState())
}

func TestLoadDefinition(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "flow.yaml")
	require.NoError(t, os.WriteFile(path, []byte(orderFlowYAML), 0o600))

	def, err := fsm.LoadDefinition(path)
	require.NoError(t, err)
	assert.Equal(t, "order-flow", def.Name)

	_, err = fsm.LoadDefinition(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read definition file")
}

func TestLoadDefinitionFromFS(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"machines/flow.yaml": &fstest.MapFile{Data: []byte(orderFlowYAML)},
	}

	def, err := fsm.LoadDefinitionFromFS(fsys, "machines/flow.yaml")
	require.NoError(t, err)
	assert.Equal(t, "order-flow", def.Name)

	_, err = fsm.LoadDefinitionFromFS(fsys, "machines/absent.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read definition from FS")
}
