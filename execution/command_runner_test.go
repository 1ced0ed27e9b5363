package execution

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/deepnoodle-ai/eddy/workflow"
)

func commandWithBlocks(t *testing.T, name string, blocks ...*workflow.Block) *workflow.Command {
	t.Helper()
	return &workflow.Command{Name: name, Workflow: linearWorkflow(t, blocks...)}
}

func TestCommandBlockRunsChild(t *testing.T) {
	store := workflow.NewMemoryStore(commandWithBlocks(t, "greet", &workflow.Block{
		ID: "set", Type: workflow.BlockTypeVariable,
		VariableName: "greeting", VariableValue: "hello from child",
	}))
	wf := linearWorkflow(t, &workflow.Block{
		ID: "call", Type: workflow.BlockTypeCommand,
		CommandName: "greet", MergeOutput: true,
	})
	e := newTestExecution(t, wf, ExecutionOptions{Store: store})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.Equal(t, "hello from child", e.State().Variables()["greeting"])

	entry := entryFor(t, e.State(), "call")
	require.Equal(t, "Executed command: greet", entry.RawResponse)
	require.Equal(t, "hello from child", entry.Output["greeting"])
}

func TestCommandMergeNeverShadowsParent(t *testing.T) {
	setup := &workflow.Command{
		Name:      "setup",
		Arguments: []*workflow.Argument{{Name: "env"}},
		Workflow: linearWorkflow(t, &workflow.Block{
			ID: "set-extra", Type: workflow.BlockTypeVariable,
			VariableName: "extra", VariableValue: "new",
		}),
	}
	store := workflow.NewMemoryStore(setup)

	wf := linearWorkflow(t,
		&workflow.Block{
			ID: "set-env", Type: workflow.BlockTypeVariable,
			VariableName: "env", VariableValue: "prod",
		},
		&workflow.Block{
			ID: "call", Type: workflow.BlockTypeCommand,
			CommandName: "setup", Arguments: "dev", MergeOutput: true,
		},
	)
	e := newTestExecution(t, wf, ExecutionOptions{Store: store})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())

	vars := e.State().Variables()
	// The child saw env="dev", but merge-back never overwrites the parent.
	require.Equal(t, "prod", vars["env"])
	require.Equal(t, "new", vars["extra"])
	require.NotContains(t, vars, "$1")

	// The child really did run with its own binding.
	entry := entryFor(t, e.State(), "call")
	require.Equal(t, "dev", entry.Output["env"])
	require.Equal(t, "dev", entry.Output["$1"])
}

func TestCommandWithoutMergeKeepsParentClean(t *testing.T) {
	store := workflow.NewMemoryStore(commandWithBlocks(t, "setup", &workflow.Block{
		ID: "set-extra", Type: workflow.BlockTypeVariable,
		VariableName: "extra", VariableValue: "new",
	}))
	wf := linearWorkflow(t, &workflow.Block{
		ID: "call", Type: workflow.BlockTypeCommand, CommandName: "setup",
	})
	e := newTestExecution(t, wf, ExecutionOptions{Store: store})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.NotContains(t, e.State().Variables(), "extra")
}

func TestCommandNotFound(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID: "call", Type: workflow.BlockTypeCommand, CommandName: "ghost",
	})
	e := newTestExecution(t, wf, ExecutionOptions{Store: workflow.NewMemoryStore()})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())
	require.Contains(t, entryFor(t, e.State(), "call").Error,
		"Command not found: ghost. Ensure the command exists before invoking it.")

	// The typed error stays inspectable when calling the runner directly.
	_, err := e.runner.Run(context.Background(), e, wf.Blocks["call"])
	require.ErrorIs(t, err, workflow.ErrNotFound)
	var notFound *CommandNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "ghost", notFound.Name)
}

func TestCommandRequiresStore(t *testing.T) {
	wf := linearWorkflow(t, &workflow.Block{
		ID: "call", Type: workflow.BlockTypeCommand, CommandName: "anything",
	})
	e := newTestExecution(t, wf, ExecutionOptions{})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())
	require.Equal(t, "Command blocks require a command store",
		entryFor(t, e.State(), "call").Error)
}

func TestRecursionCycleDetected(t *testing.T) {
	store := workflow.NewMemoryStore(
		commandWithBlocks(t, "a", &workflow.Block{
			ID: "call-b", Type: workflow.BlockTypeCommand, CommandName: "b",
		}),
		commandWithBlocks(t, "b", &workflow.Block{
			ID: "call-a", Type: workflow.BlockTypeCommand, CommandName: "a",
		}),
	)
	wf := linearWorkflow(t, &workflow.Block{
		ID: "call", Type: workflow.BlockTypeCommand, CommandName: "a",
	})

	var started []string
	observer := &Observer{
		ExecutionStart: func(commandName string, state *State) {
			started = append(started, commandName)
		},
	}
	e := newTestExecution(t, wf, ExecutionOptions{Store: store, Observer: observer})

	err := e.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusError, e.Status())

	var recursionErr *CommandRecursionError
	require.ErrorAs(t, err, &recursionErr)
	require.Equal(t, "a", recursionErr.CommandName)
	require.Equal(t, []string{"a", "b", "a"}, recursionErr.CallStack)
	require.Equal(t, []string{"a", "b", "a"}, recursionErr.Cycle())
	require.Contains(t, err.Error(), "Recursive command invocation detected: a")
	require.Contains(t, err.Error(), "a → b → a")

	// The cycle is caught before the repeated command starts again.
	require.Equal(t, []string{"test-command", "a", "b"}, started)
}

func TestMaxRecursionDepthExceeded(t *testing.T) {
	store := workflow.NewMemoryStore(
		commandWithBlocks(t, "c1", &workflow.Block{
			ID: "next", Type: workflow.BlockTypeCommand, CommandName: "c2",
		}),
		commandWithBlocks(t, "c2", &workflow.Block{
			ID: "next", Type: workflow.BlockTypeCommand, CommandName: "c3",
		}),
		commandWithBlocks(t, "c3", &workflow.Block{
			ID: "set", Type: workflow.BlockTypeVariable,
			VariableName: "deep", VariableValue: "yes",
		}),
	)
	wf := linearWorkflow(t, &workflow.Block{
		ID: "call", Type: workflow.BlockTypeCommand, CommandName: "c1",
	})
	e := newTestExecution(t, wf, ExecutionOptions{Store: store, MaxDepth: 2})

	err := e.Run(context.Background())
	require.Error(t, err)
	require.Equal(t, StatusError, e.Status())

	var depthErr *MaxRecursionDepthError
	require.ErrorAs(t, err, &depthErr)
	require.Equal(t, 2, depthErr.MaxDepth)
	require.Equal(t, "c3", depthErr.CommandName)
	require.Contains(t, err.Error(), "Maximum recursion depth (2) exceeded")
	require.Contains(t, err.Error(), "c1 → c2")
}

func TestInheritVariablesReadThrough(t *testing.T) {
	store := workflow.NewMemoryStore(commandWithBlocks(t, "combine", &workflow.Block{
		ID: "set", Type: workflow.BlockTypeVariable,
		VariableName: "combined", VariableValue: "{{base}}/sub",
	}))
	wf := linearWorkflow(t,
		&workflow.Block{
			ID: "set-base", Type: workflow.BlockTypeVariable,
			VariableName: "base", VariableValue: "/data",
		},
		&workflow.Block{
			ID: "call", Type: workflow.BlockTypeCommand,
			CommandName: "combine", InheritVariables: true, MergeOutput: true,
		},
	)
	e := newTestExecution(t, wf, ExecutionOptions{Store: store})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusCompleted, e.Status())
	require.Equal(t, "/data/sub", e.State().Variables()["combined"])
}

func TestIsolatedChildCannotSeeParentVariables(t *testing.T) {
	store := workflow.NewMemoryStore(commandWithBlocks(t, "combine", &workflow.Block{
		ID: "set", Type: workflow.BlockTypeVariable,
		VariableName: "combined", VariableValue: "{{base}}/sub",
	}))
	wf := linearWorkflow(t,
		&workflow.Block{
			ID: "set-base", Type: workflow.BlockTypeVariable,
			VariableName: "base", VariableValue: "/data",
		},
		&workflow.Block{
			ID: "call", Type: workflow.BlockTypeCommand, CommandName: "combine",
		},
	)
	e := newTestExecution(t, wf, ExecutionOptions{Store: store})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())

	entry := entryFor(t, e.State(), "call")
	require.Contains(t, entry.Error, "Failed to execute command combine")
	require.Contains(t, entry.Error, "base")
}

func TestChildFailurePropagates(t *testing.T) {
	store := workflow.NewMemoryStore(commandWithBlocks(t, "boom", &workflow.Block{
		ID: "fail", Type: workflow.BlockTypeBash, Command: "exit 1",
	}))
	wf := linearWorkflow(t, &workflow.Block{
		ID: "call", Type: workflow.BlockTypeCommand, CommandName: "boom",
	})
	e := newTestExecution(t, wf, ExecutionOptions{Store: store})

	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())

	entry := entryFor(t, e.State(), "call")
	require.Contains(t, entry.Error, "Failed to execute command boom")
	require.Contains(t, entry.Error, "exit code 1")
}

func TestCallStackRestoredAfterCommandBlock(t *testing.T) {
	needsArg := &workflow.Command{
		Name:      "needs-arg",
		Arguments: []*workflow.Argument{{Name: "env"}},
		Workflow: linearWorkflow(t, &workflow.Block{
			ID: "set", Type: workflow.BlockTypeVariable,
			VariableName: "x", VariableValue: "1",
		}),
	}
	store := workflow.NewMemoryStore(
		needsArg,
		commandWithBlocks(t, "fine", &workflow.Block{
			ID: "set", Type: workflow.BlockTypeVariable,
			VariableName: "y", VariableValue: "2",
		}),
	)

	// Argument parsing fails after the call stack push; the stack must be
	// restored so later command blocks still work.
	wf := linearWorkflow(t, &workflow.Block{
		ID: "call", Type: workflow.BlockTypeCommand, CommandName: "needs-arg",
	})
	e := newTestExecution(t, wf, ExecutionOptions{Store: store})
	require.NoError(t, e.Run(context.Background()))
	require.Equal(t, StatusError, e.Status())
	require.Contains(t, entryFor(t, e.State(), "call").Error, "Cannot execute command block")
	require.Empty(t, e.State().CallStack())

	wf2 := linearWorkflow(t,
		&workflow.Block{ID: "c1", Type: workflow.BlockTypeCommand, CommandName: "fine"},
		&workflow.Block{ID: "c2", Type: workflow.BlockTypeCommand, CommandName: "fine"},
	)
	e2 := newTestExecution(t, wf2, ExecutionOptions{Store: store})
	require.NoError(t, e2.Run(context.Background()))
	require.Equal(t, StatusCompleted, e2.Status())
	require.Empty(t, e2.State().CallStack())
}

func TestHaltWaitsForNestedCommand(t *testing.T) {
	store := workflow.NewMemoryStore(commandWithBlocks(t, "inner",
		&workflow.Block{
			ID: "c1", Type: workflow.BlockTypeVariable,
			VariableName: "first", VariableValue: "done",
		},
		&workflow.Block{
			ID: "c2", Type: workflow.BlockTypeVariable,
			VariableName: "second", VariableValue: "done",
		},
	))
	wf := linearWorkflow(t,
		&workflow.Block{
			ID: "call", Type: workflow.BlockTypeCommand,
			CommandName: "inner", MergeOutput: true,
		},
		&workflow.Block{
			ID: "after", Type: workflow.BlockTypeVariable,
			VariableName: "after", VariableValue: "ran",
		},
	)

	// Halt the root while the nested run is on its first block. Halts are
	// block-granular: the command block is one block, so the nested run
	// finishes and merges before the halt lands.
	var root *Execution
	observer := &Observer{
		BlockStart: func(block *workflow.Block, state *State) {
			if block.ID == "c1" {
				root.Halt()
			}
		},
	}
	root = newTestExecution(t, wf, ExecutionOptions{Store: store, Observer: observer})

	require.NoError(t, root.Run(context.Background()))
	require.Equal(t, StatusHalted, root.Status())
	require.Equal(t, "call", root.State().CurrentBlockID())

	vars := root.State().Variables()
	require.Equal(t, "done", vars["first"])
	require.Equal(t, "done", vars["second"])
	require.NotContains(t, vars, "after")

	require.NoError(t, root.Resume(context.Background()))
	require.Equal(t, StatusCompleted, root.Status())
	require.Equal(t, "ran", root.State().Variables()["after"])
}
