package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/deepnoodle-ai/eddy/slogger"
	"github.com/deepnoodle-ai/eddy/template"
	"github.com/deepnoodle-ai/eddy/workflow"
)

// CommandRunner executes Command blocks as nested workflow invocations with
// isolated-but-mergeable scoping: the child sees only its parsed arguments,
// plus read-through lookups when inheriting, and its results merge back
// only when asked, never shadowing parent keys.
type CommandRunner struct {
	store  workflow.Store
	logger slogger.Logger
}

// NewCommandRunner creates a runner that resolves command names from store.
func NewCommandRunner(store workflow.Store, logger slogger.Logger) *CommandRunner {
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	return &CommandRunner{store: store, logger: logger}
}

// Run executes the command named by block as a child of parent and returns
// the child's final variables. Recursion and depth are checked before the
// child runs; the parent's call stack is restored on every path out.
func (r *CommandRunner) Run(ctx context.Context, parent *Execution, block *workflow.Block) (map[string]any, error) {
	parentState := parent.state
	r.logger.Info("executing command block",
		"command", block.CommandName,
		"depth", parentState.Depth(),
		"stack", parentState.CallChain())

	if !parentState.canNestDeeper() {
		return nil, &MaxRecursionDepthError{
			MaxDepth:    parentState.maxDepth,
			CallChain:   parentState.CallChain(),
			CommandName: block.CommandName,
		}
	}

	cmd, err := r.store.Lookup(ctx, block.CommandName)
	if err != nil {
		if errors.Is(err, workflow.ErrNotFound) {
			return nil, &CommandNotFoundError{Name: block.CommandName}
		}
		return nil, err
	}
	if cmd.Workflow == nil {
		return nil, fmt.Errorf("Cannot execute command block: command '%s' has no workflow", cmd.Name)
	}

	if err := parentState.pushCall(cmd.Name); err != nil {
		r.logger.Error("recursive invocation detected",
			"command", cmd.Name, "stack", parentState.CallChain())
		return nil, err
	}

	arguments, err := r.parseArguments(cmd, block, parentState)
	if err != nil {
		parentState.popCall()
		return nil, err
	}

	child := parent.child(cmd, newChildState(cmd, parentState, arguments, block.InheritVariables))
	r.logger.Debug("created child execution",
		"depth", child.state.Depth(),
		"inherit_variables", block.InheritVariables,
		"arguments", len(arguments))

	if err := child.Run(ctx); err != nil {
		parentState.popCall()
		return nil, fmt.Errorf("Failed to execute command %s: %w", block.CommandName, err)
	}
	if child.state.Status() == StatusError {
		parentState.popCall()
		return nil, fmt.Errorf("Failed to execute command %s: %s", block.CommandName, childFailure(child.state))
	}
	parentState.popCall()

	if block.MergeOutput {
		merged := mergeOutputs(parentState, child.state)
		r.logger.Info("merged child variables into parent",
			"command", cmd.Name, "count", merged)
	}
	return child.state.Variables(), nil
}

// parseArguments substitutes the block's raw argument string against the
// parent's variables, then parses it into the command's positional and
// named argument scheme.
func (r *CommandRunner) parseArguments(cmd *workflow.Command, block *workflow.Block, parentState *State) (map[string]string, error) {
	substituted := block.Arguments
	if strings.TrimSpace(substituted) != "" {
		variables := parentState.effectiveVariables()
		var err error
		substituted, err = template.SubstituteAll(block.Arguments, variables, variables)
		if err != nil {
			return nil, fmt.Errorf("Cannot execute command block: %s", err)
		}
	}
	for _, warning := range workflow.ArgumentSyntaxWarnings(substituted) {
		r.logger.Warn("argument syntax", "command", cmd.Name, "warning", warning)
	}
	arguments, err := cmd.ParseArguments(substituted)
	if err != nil {
		return nil, fmt.Errorf("Cannot execute command block: %s", err)
	}
	return arguments, nil
}

// mergeOutputs copies child variables back into the parent, skipping
// positional-argument keys and never overwriting existing parent keys:
// children can add variables but not shadow them.
func mergeOutputs(parent, child *State) int {
	merged := 0
	for key, value := range child.variables {
		if strings.HasPrefix(key, "$") {
			continue
		}
		if _, exists := parent.variables[key]; exists {
			continue
		}
		parent.variables[key] = value
		merged++
	}
	return merged
}

// childFailure extracts the error text from a failed child run's log.
func childFailure(state *State) string {
	if entry := state.LastEntry(); entry != nil && entry.Error != "" {
		return entry.Error
	}
	return "child execution failed"
}
