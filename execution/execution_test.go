package execution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/workflow"
)

func boolPtr(b bool) *bool { return &b }

// linearWorkflow wires the given blocks into a chain: Start, blocks, End.
func linearWorkflow(t *testing.T, blocks ...*workflow.Block) *workflow.Workflow {
	t.Helper()
	wf := workflow.NewWorkflow()
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "start", Type: workflow.BlockTypeStart, Name: "Start",
	}))
	prev := "start"
	for _, block := range blocks {
		require.NoError(t, wf.AddBlock(block))
		require.NoError(t, wf.AddConnection(&workflow.Connection{
			SourceBlockID: prev, TargetBlockID: block.ID,
		}))
		prev = block.ID
	}
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "end", Type: workflow.BlockTypeEnd, Name: "End",
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: prev, TargetBlockID: "end",
	}))
	return wf
}

func newTestExecution(t *testing.T, wf *workflow.Workflow, opts ExecutionOptions) *Execution {
	t.Helper()
	if opts.Command == nil {
		opts.Command = &workflow.Command{Name: "test-command", Workflow: wf}
	}
	e, err := NewExecution(opts)
	require.NoError(t, err)
	return e
}

func entryFor(t *testing.T, state *State, blockID string) *LogEntry {
	t.Helper()
	for _, entry := range state.Log() {
		if entry.BlockID == blockID {
			return entry
		}
	}
	t.Fatalf("no log entry for block %s", blockID)
	return nil
}

func TestNewExecutionValidation(t *testing.T) {
	_, err := NewExecution(ExecutionOptions{})
	require.Error(t, err)
	require.Contains(t, err.Error(), "command is required")

	_, err = NewExecution(ExecutionOptions{Command: &workflow.Command{Name: "empty"}})
	require.Error(t, err)
	require.Contains(t, err.Error(), "has no workflow")
}

func TestLinearExecution(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID:            "set-greeting",
		Type:          workflow.BlockTypeVariable,
		Name:          "Set Greeting",
		VariableName:  "greeting",
		VariableValue: "hello",
	})
	e := newTestExecution(t, wf, ExecutionOptions{})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())

	state := e.State()
	require.Equal(t, "hello", state.Variables()["greeting"])
	require.Empty(t, state.CurrentBlockID())
	require.False(t, state.StartTime().IsZero())
	require.False(t, state.EndTime().IsZero())

	log := state.Log()
	require.Len(t, log, 3)
	require.Equal(t, "Start", log[0].BlockName)
	require.Equal(t, "Set Greeting", log[1].BlockName)
	require.Equal(t, "End", log[2].BlockName)
	for _, entry := range log {
		require.Equal(t, BlockStatusSuccess, entry.Status)
	}
	require.Equal(t, "Execution started", log[0].RawResponse)
	require.Equal(t, "Variable 'greeting' set to 'hello' (string)", log[1].RawResponse)
	require.Equal(t, "Execution completed", log[2].RawResponse)
}

func TestArgumentsSeedVariables(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID:            "set-target",
		Type:          workflow.BlockTypeVariable,
		VariableName:  "target",
		VariableValue: "deploy-$1 to {{environment}}",
	})
	e := newTestExecution(t, wf, ExecutionOptions{
		Arguments: map[string]string{"$1": "api", "environment": "prod"},
	})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.Equal(t, "deploy-api to prod", e.State().Variables()["target"])
}

func TestVariableTypeCoercion(t *testing.T) {
	wf := linearWorkflow(t,
		&workflow.Block{
			ID: "set-count", Type: workflow.BlockTypeVariable,
			VariableName: "count", VariableValue: "5", VariableType: "int",
		},
		&workflow.Block{
			ID: "set-ratio", Type: workflow.BlockTypeVariable,
			VariableName: "ratio", VariableValue: "0.25", VariableType: "float",
		},
		&workflow.Block{
			ID: "set-flag", Type: workflow.BlockTypeVariable,
			VariableName: "flag", VariableValue: "YES", VariableType: "boolean",
		},
	)
	e := newTestExecution(t, wf, ExecutionOptions{})

	require.NoError(t, e.Run(context.Background()))
	vars := e.State().Variables()
	require.Equal(t, 5, vars["count"])
	require.Equal(t, 0.25, vars["ratio"])
	require.Equal(t, true, vars["flag"])
}

func TestVariableCoercionFailureStopsRun(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID: "bad", Type: workflow.BlockTypeVariable, Name: "Bad",
		VariableName: "n", VariableValue: "not-a-number", VariableType: "int",
	})
	e := newTestExecution(t, wf, ExecutionOptions{})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())

	entry := entryFor(t, e.State(), "bad")
	require.Equal(t, BlockStatusError, entry.Status)
	require.Contains(t, entry.Error, "Cannot convert 'not-a-number' to int")
}

func TestBranchFollowsTruePath(t *testing.T) {
	wf := workflow.NewWorkflow()
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "start", Type: workflow.BlockTypeStart}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "set-count", Type: workflow.BlockTypeVariable,
		VariableName: "count", VariableValue: "5", VariableType: "int",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "check", Type: workflow.BlockTypeBranch, Name: "Check Count",
		Condition: "count > 3",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "high", Type: workflow.BlockTypeVariable,
		VariableName: "path", VariableValue: "high",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "low", Type: workflow.BlockTypeVariable,
		VariableName: "path", VariableValue: "low",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "end", Type: workflow.BlockTypeEnd}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "start", TargetBlockID: "set-count"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "set-count", TargetBlockID: "check"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "high", IsTruePath: boolPtr(true),
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "low", IsTruePath: boolPtr(false),
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "high", TargetBlockID: "end"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "low", TargetBlockID: "end"}))

	e := newTestExecution(t, wf, ExecutionOptions{})
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.Equal(t, "high", e.State().Variables()["path"])

	entry := entryFor(t, e.State(), "check")
	require.Equal(t, "high", entry.Output["next_block_id"])
	require.Equal(t, true, entry.Output["result"])
	require.Equal(t, 0, entry.Output["loop_count"])
	require.Equal(t, "count > 3", entry.Output["condition"])
	require.Equal(t, "Branch condition 'count > 3' = True (iteration 0)", entry.RawResponse)
}

func TestBranchConditionTypeMismatch(t *testing.T) {
	wf := workflow.NewWorkflow()
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "start", Type: workflow.BlockTypeStart}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "set-name", Type: workflow.BlockTypeVariable,
		VariableName: "name", VariableValue: "hello",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "check", Type: workflow.BlockTypeBranch, Condition: "name > 5",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "end", Type: workflow.BlockTypeEnd}))
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "end2", Type: workflow.BlockTypeEnd}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "start", TargetBlockID: "set-name"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "set-name", TargetBlockID: "check"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "end", IsTruePath: boolPtr(true),
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "end2", IsTruePath: boolPtr(false),
	}))

	e := newTestExecution(t, wf, ExecutionOptions{})
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())

	entry := entryFor(t, e.State(), "check")
	require.Equal(t, BlockStatusError, entry.Status)
	require.Contains(t, entry.Error, "type mismatch in condition")
}

func TestBranchMissingPathConnection(t *testing.T) {
	wf := workflow.NewWorkflow()
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "check", Type: workflow.BlockTypeBranch, Name: "Check",
		Condition: "ready == true",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "next", Type: workflow.BlockTypeEnd}))
	// Only a True path: built directly so graph validation does not get a
	// chance to reject it first.
	wf.Connections = append(wf.Connections, &workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "next", IsTruePath: boolPtr(true),
	})

	e := newTestExecution(t, wf, ExecutionOptions{})
	e.state.SetVariable("ready", false)

	result := e.executeBranch(wf.Blocks["check"])
	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(),
		"Branch condition evaluated to False, but no False path connection exists")
	require.Equal(t, 0, e.state.LoopCount("branch_check"))
}

func TestBranchWithoutConnectionsFails(t *testing.T) {
	wf := workflow.NewWorkflow()
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "lonely", Type: workflow.BlockTypeBranch, Name: "Lonely",
		Condition: "x > 1",
	}))

	e := newTestExecution(t, wf, ExecutionOptions{})
	result := e.executeBranch(wf.Blocks["lonely"])
	require.Error(t, result.Err)
	require.Contains(t, result.Err.Error(),
		"Branch block 'Lonely' has no outgoing connections")
}

func TestUnknownBlockTypeFails(t *testing.T) {
	wf := linearWorkflow(t)
	e := newTestExecution(t, wf, ExecutionOptions{})

	result := e.executeBlock(context.Background(), &workflow.Block{ID: "x", Type: "teleport"})
	require.Error(t, result.Err)
	require.Equal(t, "Unknown block type: teleport", result.Err.Error())

	var dispatchErr *DispatchError
	require.ErrorAs(t, result.Err, &dispatchErr)
	require.False(t, fatalError(result.Err))
}

func TestBlockLimitStopsLoops(t *testing.T) {
	wf := workflow.NewWorkflow()
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "start", Type: workflow.BlockTypeStart}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "set-n", Type: workflow.BlockTypeVariable,
		VariableName: "n", VariableValue: "1", VariableType: "int",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "check", Type: workflow.BlockTypeBranch, Condition: "n > 0",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "noop", Type: workflow.BlockTypeVariable,
		VariableName: "x", VariableValue: "loop",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "end", Type: workflow.BlockTypeEnd}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "start", TargetBlockID: "set-n"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "set-n", TargetBlockID: "check"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "noop", IsTruePath: boolPtr(true),
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "end", IsTruePath: boolPtr(false),
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "noop", TargetBlockID: "check"}))

	e := newTestExecution(t, wf, ExecutionOptions{BlockLimit: 10})
	err := e.Run(context.Background())
	require.Error(t, err)

	var limitErr *BlockLimitError
	require.ErrorAs(t, err, &limitErr)
	require.Equal(t, 10, limitErr.Limit)
	require.Equal(t, "Exceeded maximum block execution limit (10)", err.Error())
	require.Equal(t, StatusError, e.Status())

	// Blocks ran start, set-n, then check/noop pairs until the ceiling:
	// the branch evaluated on iterations 0 through 3.
	require.Equal(t, 3, e.State().LoopCount("branch_check"))
}

func TestWorkflowValidationFailureIsFatal(t *testing.T) {
	wf := workflow.NewWorkflow()
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "start", Type: workflow.BlockTypeStart}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "p", Type: workflow.BlockTypePrompt, Name: "Empty Prompt",
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "start", TargetBlockID: "p"}))

	e := newTestExecution(t, wf, ExecutionOptions{})
	err := e.Run(context.Background())
	require.Error(t, err)

	var validationErr *ValidationError
	require.ErrorAs(t, err, &validationErr)
	require.Contains(t, err.Error(), "Workflow validation failed")
	require.Contains(t, err.Error(), "Prompt text is required")
	require.Equal(t, StatusError, e.Status())
	require.Empty(t, e.State().Log())
}

func TestHaltBetweenBlocks(t *testing.T) {
	wf := linearWorkflow(t,
		&workflow.Block{
			ID: "v1", Type: workflow.BlockTypeVariable,
			VariableName: "first", VariableValue: "1",
		},
		&workflow.Block{
			ID: "v2", Type: workflow.BlockTypeVariable,
			VariableName: "second", VariableValue: "2",
		},
	)
	observer := &Observer{
		BlockComplete: func(block *workflow.Block, result *BlockResult, state *State) {
			if block.ID == "v1" {
				state.RequestHalt()
			}
		},
	}
	e := newTestExecution(t, wf, ExecutionOptions{Observer: observer})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusHalted, e.Status())
	require.Equal(t, "v1", e.State().CurrentBlockID())

	vars := e.State().Variables()
	require.Equal(t, "1", vars["first"])
	require.NotContains(t, vars, "second")
	require.Len(t, e.State().Log(), 2)
}

func TestResumeAfterHalt(t *testing.T) {
	wf := linearWorkflow(t,
		&workflow.Block{
			ID: "v1", Type: workflow.BlockTypeVariable,
			VariableName: "first", VariableValue: "1",
		},
		&workflow.Block{
			ID: "v2", Type: workflow.BlockTypeVariable,
			VariableName: "second", VariableValue: "2",
		},
	)
	observer := &Observer{
		BlockComplete: func(block *workflow.Block, result *BlockResult, state *State) {
			if block.ID == "v1" && len(state.Log()) == 2 {
				state.RequestHalt()
			}
		},
	}
	e := newTestExecution(t, wf, ExecutionOptions{Observer: observer})
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusHalted, e.Status())

	require.NoError(t, e.Resume(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.Equal(t, "2", e.State().Variables()["second"])
	require.Empty(t, e.State().CurrentBlockID())

	// v1 did not run twice.
	executed := 0
	for _, entry := range e.State().Log() {
		if entry.BlockID == "v1" {
			executed++
		}
	}
	require.Equal(t, 1, executed)
	require.Len(t, e.State().Log(), 4)
}

func TestResumeReEvaluatesBranch(t *testing.T) {
	wf := workflow.NewWorkflow()
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "start", Type: workflow.BlockTypeStart}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "set-n", Type: workflow.BlockTypeVariable,
		VariableName: "n", VariableValue: "1", VariableType: "int",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "check", Type: workflow.BlockTypeBranch, Condition: "n > 0",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "hit", Type: workflow.BlockTypeVariable,
		VariableName: "hit", VariableValue: "yes",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{
		ID: "miss", Type: workflow.BlockTypeVariable,
		VariableName: "miss", VariableValue: "yes",
	}))
	require.NoError(t, wf.AddBlock(&workflow.Block{ID: "end", Type: workflow.BlockTypeEnd}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "start", TargetBlockID: "set-n"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "set-n", TargetBlockID: "check"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "hit", IsTruePath: boolPtr(true),
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{
		SourceBlockID: "check", TargetBlockID: "miss", IsTruePath: boolPtr(false),
	}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "hit", TargetBlockID: "end"}))
	require.NoError(t, wf.AddConnection(&workflow.Connection{SourceBlockID: "miss", TargetBlockID: "end"}))

	// Halt once, on the first arrival at the branch. The resumed pass
	// through the branch must run unimpeded.
	halted := false
	observer := &Observer{
		BlockStart: func(block *workflow.Block, state *State) {
			if block.ID == "check" && !halted {
				halted = true
				state.RequestHalt()
			}
		},
	}
	e := newTestExecution(t, wf, ExecutionOptions{Observer: observer})
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusHalted, e.Status())
	require.Equal(t, "check", e.State().CurrentBlockID())
	require.Equal(t, 0, e.State().LoopCount("branch_check"))

	// The world changed while the run was halted. The branch must be
	// re-evaluated against current variables, not replayed from its
	// pre-halt decision.
	e.State().SetVariable("n", -5)
	require.NoError(t, e.Resume(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())

	vars := e.State().Variables()
	require.Equal(t, "yes", vars["miss"])
	require.NotContains(t, vars, "hit")
	require.Equal(t, 1, e.State().LoopCount("branch_check"))
}

func TestResumeOnEndCompletesImmediately(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID: "v", Type: workflow.BlockTypeVariable,
		VariableName: "x", VariableValue: "1",
	})
	observer := &Observer{
		BlockStart: func(block *workflow.Block, state *State) {
			if block.Type == workflow.BlockTypeEnd {
				state.RequestHalt()
			}
		},
	}
	e := newTestExecution(t, wf, ExecutionOptions{Observer: observer})
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusHalted, e.Status())
	require.Equal(t, "end", e.State().CurrentBlockID())
	logLen := len(e.State().Log())

	require.NoError(t, e.Resume(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.Len(t, e.State().Log(), logLen)
}

func TestResumeWithUnknownBlockFails(t *testing.T) {
	wf := linearWorkflow(t)
	e := newTestExecution(t, wf, ExecutionOptions{})

	err := e.Resume(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "Cannot find halted block")
	require.Equal(t, StatusError, e.Status())
}

func TestHaltBeforeRun(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID: "v", Type: workflow.BlockTypeVariable,
		VariableName: "x", VariableValue: "1",
	})
	e := newTestExecution(t, wf, ExecutionOptions{})
	e.Halt()

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusHalted, e.Status())
	require.Empty(t, e.State().Log())
}

func TestRefreshWithoutHookFails(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID: "refresh", Type: workflow.BlockTypeRefresh, Name: "Refresh",
	})
	e := newTestExecution(t, wf, ExecutionOptions{})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())

	entry := entryFor(t, e.State(), "refresh")
	require.Equal(t, "Refresh block not supported in this context", entry.Error)
}

func TestRefreshSwapsAgent(t *testing.T) {
	first := eddy.NewMockAgent(eddy.MockAgentOptions{Name: "first", Default: "one"})
	second := eddy.NewMockAgent(eddy.MockAgentOptions{Name: "second", Default: "two"})

	wf := linearWorkflow(t,
		&workflow.Block{ID: "p1", Type: workflow.BlockTypePrompt, Prompt: "first question"},
		&workflow.Block{ID: "refresh", Type: workflow.BlockTypeRefresh},
		&workflow.Block{ID: "p2", Type: workflow.BlockTypePrompt, Prompt: "second question"},
	)
	e := newTestExecution(t, wf, ExecutionOptions{
		Agent: first,
		RefreshHook: func(ctx context.Context) (eddy.Agent, error) {
			return second, nil
		},
	})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.Equal(t, "one", entryFor(t, e.State(), "p1").RawResponse)
	require.Equal(t, "two", entryFor(t, e.State(), "p2").RawResponse)
	require.Equal(t, 1, first.Calls())
	require.Equal(t, 1, second.Calls())
	require.Equal(t, "Agent refresh triggered", entryFor(t, e.State(), "refresh").RawResponse)
}

func TestRefreshHookErrorFailsBlock(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{ID: "refresh", Type: workflow.BlockTypeRefresh})
	e := newTestExecution(t, wf, ExecutionOptions{
		RefreshHook: func(ctx context.Context) (eddy.Agent, error) {
			return nil, errors.New("connection reset")
		},
	})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())
	require.Equal(t, "connection reset", entryFor(t, e.State(), "refresh").Error)
}

func TestObserverSeesLifecycle(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID: "v", Type: workflow.BlockTypeVariable,
		VariableName: "x", VariableValue: "1",
	})
	var events []string
	observer := &Observer{
		ExecutionStart: func(commandName string, state *State) {
			events = append(events, "execution_start:"+commandName)
		},
		BlockStart: func(block *workflow.Block, state *State) {
			events = append(events, "block_start:"+block.ID)
		},
		BlockComplete: func(block *workflow.Block, result *BlockResult, state *State) {
			events = append(events, "block_complete:"+block.ID)
		},
		ExecutionComplete: func(state *State) {
			events = append(events, "execution_complete:"+string(state.Status()))
		},
	}
	e := newTestExecution(t, wf, ExecutionOptions{Observer: observer})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, []string{
		"execution_start:test-command",
		"block_start:start",
		"block_complete:start",
		"block_start:v",
		"block_complete:v",
		"block_start:end",
		"block_complete:end",
		"execution_complete:completed",
	}, events)
}

func TestBlockCompleteAsyncErrorDoesNotFailRun(t *testing.T) {
	wf := linearWorkflow(t)
	calls := 0
	observer := &Observer{
		BlockCompleteAsync: func(ctx context.Context, block *workflow.Block, result *BlockResult, state *State) error {
			calls++
			return errors.New("persistence hiccup")
		},
	}
	e := newTestExecution(t, wf, ExecutionOptions{Observer: observer})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.Equal(t, 2, calls)
}
