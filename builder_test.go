package machina

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGraphBuilder_BuildsValidGraph(t *testing.T) {
	t.Parallel()

	g := NewGraph("idle").
		State("idle", StateIdle).
		StateWithTimeout("working", StateBusy, 5*time.Minute).
		State("failed", StateError).
		State("done", StateIdle).
		Transition("idle", "working", TriggerStartTask).
		Transition("working", "idle", TriggerCompleteTask).
		Transition(AnyState, "failed", "errorDetected").
		Transition(AnyState, "done", "finish").
		Final("done").
		Build()

	require.NoError(t, g.Validate())
	require.Equal(t, "idle", g.Initial)
	require.Len(t, g.States, 4)
	require.Len(t, g.Transitions, 4)
	require.Equal(t, []string{"done"}, g.Finals)

	decl, ok := g.State("working")
	require.True(t, ok)
	require.Equal(t, StateBusy, decl.Type)
	require.Equal(t, 5*time.Minute, decl.Timeout)
}

func TestGraphBuilder_GraphSkipsValidation(t *testing.T) {
	t.Parallel()

	// Graph() hands back whatever was accumulated; Validate catches the
	// dangling transition target later.
	g := NewGraph("idle").
		State("idle", StateIdle).
		Transition("idle", "ghost", "go").
		Graph()

	require.Error(t, g.Validate())
}

func TestGraphBuilder_Panics(t *testing.T) {
	t.Parallel()

	require.Panics(t, func() { NewGraph("") })
	require.Panics(t, func() { NewGraph("idle").State("", StateIdle) })
	require.Panics(t, func() { NewGraph("idle").StateWithTimeout("", StateBusy, time.Minute) })
	require.Panics(t, func() { NewGraph("idle").State("idle", StateIdle).Transition("idle", "idle", "") })
	require.Panics(t, func() {
		NewGraph("idle").
			State("idle", StateIdle).
			Transition("idle", "ghost", "go").
			Build()
	})
}
