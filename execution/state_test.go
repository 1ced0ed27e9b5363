package execution

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/eddy/workflow"
)

func TestNewStateDefaults(t *testing.T) {
	state := NewState(StateOptions{CommandName: "deploy"})
	require.NotEmpty(t, state.ID())
	require.Equal(t, "deploy", state.CommandName())
	require.Equal(t, StatusPending, state.Status())
	require.Equal(t, 0, state.Depth())
	require.Equal(t, DefaultMaxDepth, state.maxDepth)
	require.Empty(t, state.Variables())
	require.True(t, state.StartTime().IsZero())
}

func TestLoopCounterFirstIncrementIsZero(t *testing.T) {
	state := NewState(StateOptions{})
	require.Equal(t, 0, state.IncrementLoopCounter("branch_check"))
	require.Equal(t, 1, state.IncrementLoopCounter("branch_check"))
	require.Equal(t, 2, state.IncrementLoopCounter("branch_check"))
	require.Equal(t, 2, state.LoopCount("branch_check"))

	// Independent keys do not interfere.
	require.Equal(t, 0, state.IncrementLoopCounter("branch_other"))
	require.Equal(t, 2, state.LoopCount("branch_check"))
}

func TestVariableReadThrough(t *testing.T) {
	parent := NewState(StateOptions{Variables: map[string]any{"base": "/data"}})
	cmd := &workflow.Command{ID: "cmd-1", Name: "child"}

	inheriting := newChildState(cmd, parent, map[string]string{"$1": "dev"}, true)
	value, ok := inheriting.Variable("base")
	require.True(t, ok)
	require.Equal(t, "/data", value)
	value, ok = inheriting.Variable("$1")
	require.True(t, ok)
	require.Equal(t, "dev", value)

	// Writes land locally and shadow the parent without mutating it.
	inheriting.SetVariable("base", "/tmp")
	value, _ = inheriting.Variable("base")
	require.Equal(t, "/tmp", value)
	value, _ = parent.Variable("base")
	require.Equal(t, "/data", value)

	isolated := newChildState(cmd, parent, nil, false)
	_, ok = isolated.Variable("base")
	require.False(t, ok)
}

func TestEffectiveVariablesLocalWins(t *testing.T) {
	root := NewState(StateOptions{Variables: map[string]any{"a": "1", "b": "2"}})
	cmd := &workflow.Command{Name: "mid"}

	mid := newChildState(cmd, root, map[string]string{"b": "3", "c": "4"}, true)
	leaf := newChildState(cmd, mid, map[string]string{"d": "5"}, true)

	effective := leaf.effectiveVariables()
	require.Equal(t, "1", effective["a"])
	require.Equal(t, "3", effective["b"])
	require.Equal(t, "4", effective["c"])
	require.Equal(t, "5", effective["d"])

	// The merged view is a snapshot; the scopes themselves stay untouched.
	require.NotContains(t, root.Variables(), "c")
	require.NotContains(t, mid.Variables(), "a")
	require.Len(t, leaf.Variables(), 1)
}

func TestChildStateCopiesCallStack(t *testing.T) {
	parent := NewState(StateOptions{})
	require.NoError(t, parent.pushCall("a"))
	cmd := &workflow.Command{Name: "a"}

	child := newChildState(cmd, parent, nil, false)
	require.Equal(t, []string{"a"}, child.CallStack())
	require.Equal(t, 1, child.Depth())

	require.NoError(t, child.pushCall("b"))
	require.Equal(t, []string{"a"}, parent.CallStack())
}

func TestPushCallDetectsCycle(t *testing.T) {
	state := NewState(StateOptions{})
	require.NoError(t, state.pushCall("a"))
	require.NoError(t, state.pushCall("b"))
	require.Equal(t, "a → b", state.CallChain())

	err := state.pushCall("a")
	require.Error(t, err)
	var recursionErr *CommandRecursionError
	require.ErrorAs(t, err, &recursionErr)
	require.Equal(t, "a", recursionErr.CommandName)
	require.Equal(t, []string{"a", "b", "a"}, recursionErr.CallStack)

	// The failed push leaves the stack untouched.
	require.Equal(t, []string{"a", "b"}, state.CallStack())

	state.popCall()
	require.Equal(t, []string{"a"}, state.CallStack())
	state.popCall()
	require.Empty(t, state.CallStack())
	state.popCall()
	require.Empty(t, state.CallStack())
}

func TestCallChainFormatting(t *testing.T) {
	state := NewState(StateOptions{})
	require.Equal(t, "(no calls)", state.CallChain())
	require.NoError(t, state.pushCall("deploy"))
	require.Equal(t, "deploy", state.CallChain())
}

func TestCallStackReturnsCopy(t *testing.T) {
	state := NewState(StateOptions{})
	require.NoError(t, state.pushCall("a"))
	stack := state.CallStack()
	stack[0] = "mutated"
	require.Equal(t, []string{"a"}, state.CallStack())
}

func TestCanNestDeeper(t *testing.T) {
	root := NewState(StateOptions{MaxDepth: 2})
	require.True(t, root.canNestDeeper())

	cmd := &workflow.Command{Name: "c"}
	level1 := newChildState(cmd, root, nil, false)
	require.True(t, level1.canNestDeeper())

	level2 := newChildState(cmd, level1, nil, false)
	require.Equal(t, 2, level2.Depth())
	require.False(t, level2.canNestDeeper())
}

func TestHaltFlag(t *testing.T) {
	state := NewState(StateOptions{})
	require.False(t, state.HaltRequested())
	state.RequestHalt()
	require.True(t, state.HaltRequested())
	state.clearHalt()
	require.False(t, state.HaltRequested())
}

func TestAttachErrorOnlyFillsEmpty(t *testing.T) {
	state := NewState(StateOptions{})

	// No entry at all is a no-op.
	state.attachError(errors.New("ignored"))
	require.Empty(t, state.Log())

	state.AddLogEntry(&LogEntry{BlockID: "b1", Status: BlockStatusSuccess})
	state.attachError(errors.New("boom"))
	require.Equal(t, "boom", state.LastEntry().Error)

	// An entry that already failed keeps its original error.
	state.attachError(errors.New("later"))
	require.Equal(t, "boom", state.LastEntry().Error)
}

func TestBeginPreservesStartTimeAcrossResume(t *testing.T) {
	state := NewState(StateOptions{})
	state.begin()
	started := state.StartTime()
	require.False(t, started.IsZero())

	state.setCurrentBlock("b1")
	state.complete(StatusHalted)
	require.Equal(t, StatusHalted, state.Status())
	require.Equal(t, "b1", state.CurrentBlockID())
	require.False(t, state.EndTime().IsZero())

	time.Sleep(5 * time.Millisecond)
	state.begin()
	require.Equal(t, StatusRunning, state.Status())
	require.Equal(t, started, state.StartTime())
}

func TestCompleteClearsCurrentBlockExceptHalt(t *testing.T) {
	state := NewState(StateOptions{})
	state.begin()
	state.setCurrentBlock("b1")
	state.complete(StatusCompleted)
	require.Empty(t, state.CurrentBlockID())

	state.setCurrentBlock("b2")
	state.complete(StatusError)
	require.Empty(t, state.CurrentBlockID())
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	state := NewState(StateOptions{
		CommandID:   "cmd-7",
		CommandName: "deploy",
		Variables:   map[string]any{"env": "prod"},
		MaxDepth:    4,
	})
	state.begin()
	state.SetVariable("region", "us-east-1")
	state.AddLogEntry(&LogEntry{BlockID: "b1", BlockName: "Start", Status: BlockStatusSuccess})
	state.IncrementLoopCounter("branch_check")
	state.IncrementLoopCounter("branch_check")
	require.NoError(t, state.pushCall("deploy-sub"))
	state.setCurrentBlock("b2")
	state.RequestHalt()
	state.complete(StatusHalted)

	restored := RestoreState(state.Snapshot())
	require.Equal(t, state.ID(), restored.ID())
	require.Equal(t, "cmd-7", restored.CommandID())
	require.Equal(t, "deploy", restored.CommandName())
	require.Equal(t, StatusHalted, restored.Status())
	require.Equal(t, "b2", restored.CurrentBlockID())
	require.Equal(t, "prod", restored.Variables()["env"])
	require.Equal(t, "us-east-1", restored.Variables()["region"])
	require.Len(t, restored.Log(), 1)
	require.Equal(t, "b1", restored.Log()[0].BlockID)
	require.Equal(t, 1, restored.LoopCount("branch_check"))
	require.Equal(t, []string{"deploy-sub"}, restored.CallStack())
	require.Equal(t, 4, restored.maxDepth)
	require.True(t, restored.HaltRequested())
	require.Equal(t, state.StartTime(), restored.StartTime())
	require.Equal(t, state.EndTime(), restored.EndTime())
}

func TestRestoreStateDefaults(t *testing.T) {
	restored := RestoreState(&Snapshot{CommandName: "bare"})
	require.NotEmpty(t, restored.ID())
	require.Equal(t, DefaultMaxDepth, restored.maxDepth)
	require.NotNil(t, restored.Variables())
	require.False(t, restored.HaltRequested())
}
