package execution

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/eval"
	"github.com/deepnoodle-ai/eddy/security"
	"github.com/deepnoodle-ai/eddy/slogger"
	"github.com/deepnoodle-ai/eddy/template"
	"github.com/deepnoodle-ai/eddy/workflow"
)

// Default limits for a run.
const (
	DefaultBlockLimit  = 1000
	DefaultBashTimeout = 5 * time.Minute
)

// RefreshHook lets the host swap the agent connection when a Refresh block
// runs. Returning a non-nil agent replaces the execution's agent and drops
// the current session, so the next prompt starts a fresh conversation.
type RefreshHook func(ctx context.Context) (eddy.Agent, error)

// ExecutionOptions configure a workflow execution.
type ExecutionOptions struct {
	// Command supplies the workflow to run and its argument declarations.
	Command *workflow.Command

	// Workflow overrides Command.Workflow when set, letting callers run a
	// modified copy without touching the stored definition.
	Workflow *workflow.Workflow

	// Arguments seed the run's variables, keyed both positionally ("$1")
	// and by declared argument name.
	Arguments map[string]string

	// State carries an existing run state, typically one restored from a
	// snapshot for resume. A fresh state is created when nil.
	State *State

	// Agent answers Prompt blocks. Optional; prompt blocks fail without it.
	Agent eddy.Agent

	// Store resolves Command blocks by name. Optional; command blocks fail
	// without it.
	Store workflow.Store

	Observer    *Observer
	RefreshHook RefreshHook

	// Validator gates bash commands. A default validator is built when nil.
	Validator *security.Validator

	// WorkingDirectory is the default directory for bash blocks. Defaults
	// to the process working directory.
	WorkingDirectory string

	// BashTimeout bounds each bash block. Defaults to DefaultBashTimeout.
	BashTimeout time.Duration

	// MaxDepth bounds nested command invocation. Defaults to
	// DefaultMaxDepth.
	MaxDepth int

	// BlockLimit is the total-block ceiling for the run. Defaults to
	// DefaultBlockLimit.
	BlockLimit int

	// Processes tracks spawned process groups. Created when nil; pass a
	// shared table to coordinate cleanup across executions.
	Processes *ProcessTable

	Logger slogger.Logger
}

// Execution drives one workflow run from its Start block to End, halt, or
// error. Nested command invocations get their own Execution sharing the
// parent's collaborators.
type Execution struct {
	id        string
	command   *workflow.Command
	workflow  *workflow.Workflow
	arguments map[string]string
	state     *State

	agent       eddy.Agent
	session     *sessionHolder
	store       workflow.Store
	runner      *CommandRunner
	observer    *Observer
	refreshHook RefreshHook
	validator   *security.Validator
	processes   *ProcessTable

	workingDir  string
	bashTimeout time.Duration
	blockLimit  int

	logger slogger.Logger
}

// NewExecution creates a runnable execution for a command's workflow.
func NewExecution(opts ExecutionOptions) (*Execution, error) {
	if opts.Command == nil {
		return nil, fmt.Errorf("command is required")
	}
	wf := opts.Workflow
	if wf == nil {
		wf = opts.Command.Workflow
	}
	if wf == nil {
		return nil, fmt.Errorf("command %q has no workflow", opts.Command.Name)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	blockLimit := opts.BlockLimit
	if blockLimit <= 0 {
		blockLimit = DefaultBlockLimit
	}
	bashTimeout := opts.BashTimeout
	if bashTimeout <= 0 {
		bashTimeout = DefaultBashTimeout
	}
	workingDir := opts.WorkingDirectory
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve working directory: %w", err)
		}
		workingDir = wd
	}
	validator := opts.Validator
	if validator == nil {
		v, err := security.NewValidator(security.ValidatorOptions{Logger: logger})
		if err != nil {
			return nil, err
		}
		validator = v
	}
	state := opts.State
	if state == nil {
		variables := make(map[string]any, len(opts.Arguments))
		for key, value := range opts.Arguments {
			variables[key] = value
		}
		state = NewState(StateOptions{
			CommandID:   opts.Command.ID,
			CommandName: opts.Command.Name,
			Variables:   variables,
			MaxDepth:    opts.MaxDepth,
		})
	}
	processes := opts.Processes
	if processes == nil {
		processes = NewProcessTable(logger)
	}
	executionID := uuid.New().String()
	e := &Execution{
		id:          executionID,
		command:     opts.Command,
		workflow:    wf,
		arguments:   opts.Arguments,
		state:       state,
		agent:       opts.Agent,
		session:     &sessionHolder{},
		store:       opts.Store,
		observer:    opts.Observer,
		refreshHook: opts.RefreshHook,
		validator:   validator,
		processes:   processes,
		workingDir:  workingDir,
		bashTimeout: bashTimeout,
		blockLimit:  blockLimit,
		logger:      logger.With("execution_id", executionID),
	}
	if opts.Store != nil {
		e.runner = NewCommandRunner(opts.Store, e.logger)
	}
	return e, nil
}

// child builds the execution for a nested command invocation. It shares the
// parent's collaborators, limits, agent session, and process table; only
// the command, workflow, and state differ.
func (e *Execution) child(cmd *workflow.Command, state *State) *Execution {
	return &Execution{
		id:          uuid.New().String(),
		command:     cmd,
		workflow:    cmd.Workflow,
		state:       state,
		agent:       e.agent,
		session:     e.session,
		store:       e.store,
		runner:      e.runner,
		observer:    e.observer,
		refreshHook: e.refreshHook,
		validator:   e.validator,
		processes:   e.processes,
		workingDir:  e.workingDir,
		bashTimeout: e.bashTimeout,
		blockLimit:  e.blockLimit,
		logger:      e.logger.With("command", cmd.Name, "depth", state.Depth()),
	}
}

// ID returns this execution's unique id.
func (e *Execution) ID() string { return e.id }

// State returns the run's mutable state.
func (e *Execution) State() *State { return e.state }

// Status returns the run's lifecycle status.
func (e *Execution) Status() Status { return e.state.Status() }

// Halt requests a graceful stop: the in-flight block finishes, then the run
// settles as halted before the next block starts. A Command block counts as
// one block, so a nested run in flight completes before the halt lands.
// Safe to call from any goroutine.
func (e *Execution) Halt() {
	e.state.RequestHalt()
	e.logger.Info("halt requested")
}

// CleanupProcesses force-terminates every live process group spawned by
// this execution's bash blocks, including those of nested invocations.
func (e *Execution) CleanupProcesses() {
	e.processes.CleanupAll()
}

// Run executes the workflow from its Start block. The returned error is
// fatal (validation, the block ceiling, recursion); per-block failures end
// the run with StatusError and are reported through the state's log.
func (e *Execution) Run(ctx context.Context) error {
	e.state.begin()
	e.logger.Info("starting execution",
		"command_name", e.command.Name, "depth", e.state.Depth())
	e.observer.fireExecutionStart(e.command.Name, e.state)
	err := e.run(ctx)
	e.finish(err)
	return err
}

func (e *Execution) run(ctx context.Context) error {
	if result := e.workflow.Validate(); !result.Valid {
		return &ValidationError{Problems: result.Errors}
	}
	start := e.workflow.StartBlock()
	if start == nil {
		return fmt.Errorf("No start block found in workflow")
	}
	return e.runLoop(ctx, start, 0)
}

// Resume re-enters a halted run at the point recorded by the halt. A halt
// on an End block completes immediately. A halt on a Branch re-runs the
// branch itself, so the path is chosen from the variables as they stand
// now rather than from a decision made before the halt.
func (e *Execution) Resume(ctx context.Context) error {
	blockID := e.state.CurrentBlockID()
	e.logger.Info("resuming execution", "block_id", blockID)
	e.state.clearHalt()
	e.state.begin()
	err := e.resume(ctx, blockID)
	e.finish(err)
	return err
}

func (e *Execution) resume(ctx context.Context, blockID string) error {
	halted, ok := e.workflow.Get(blockID)
	if !ok {
		return fmt.Errorf("Cannot find halted block: %s", blockID)
	}
	// The halted block already ran and is in the log; the block ceiling
	// continues from the prior count rather than resetting.
	executed := len(e.state.log)
	switch halted.Type {
	case workflow.BlockTypeEnd:
		e.state.complete(StatusCompleted)
		return nil
	case workflow.BlockTypeBranch:
		return e.runLoop(ctx, halted, executed)
	default:
		next := e.workflow.NextBlock(blockID)
		if next == nil {
			e.state.complete(StatusCompleted)
			return nil
		}
		return e.runLoop(ctx, next, executed)
	}
}

// finish settles the final status and fires the completion callback.
func (e *Execution) finish(err error) {
	if err != nil {
		if status := e.state.Status(); status == StatusRunning || status == StatusPending {
			e.state.complete(StatusError)
		}
		e.state.attachError(err)
		e.logger.Error("execution failed", "error", err)
	}
	e.observer.fireExecutionComplete(e.state)
}

// runLoop drives the dispatch loop from current until an End block, a halt,
// a failure, or the block ceiling. blocksExecuted continues a prior count
// when resuming.
func (e *Execution) runLoop(ctx context.Context, current *workflow.Block, blocksExecuted int) error {
	for current != nil && !e.state.HaltRequested() {
		blocksExecuted++
		if blocksExecuted > e.blockLimit {
			e.state.complete(StatusError)
			return &BlockLimitError{Limit: e.blockLimit}
		}

		e.state.setCurrentBlock(current.ID)
		e.observer.fireBlockStart(current, e.state)
		e.logger.Debug("executing block",
			"block_id", current.ID,
			"block_type", current.Type,
			"block_name", current.DisplayName())

		result := e.executeBlock(ctx, current)
		e.state.AddLogEntry(newLogEntry(current, result))

		// Structured output becomes run variables for later blocks.
		// Command blocks are excluded: their merge_output flag governs
		// merging, and parent keys always win.
		if result.Err == nil && len(result.Output) > 0 && current.Type != workflow.BlockTypeCommand {
			for key, value := range result.Output {
				e.state.variables[key] = value
			}
		}

		e.observer.fireBlockComplete(current, result, e.state)
		if err := e.observer.fireBlockCompleteAsync(ctx, current, result, e.state); err != nil {
			e.logger.Error("block completion hook failed",
				"block_id", current.ID, "error", err)
		}

		if result.Err != nil {
			e.logger.Error("block execution failed",
				"block_id", current.ID,
				"block_name", current.DisplayName(),
				"error", result.Err)
			e.state.complete(StatusError)
			if fatalError(result.Err) {
				return result.Err
			}
			break
		}

		next, err := e.nextBlock(current, result)
		if err != nil {
			return err
		}
		current = next
	}

	if e.state.Status() == StatusRunning {
		if e.state.HaltRequested() {
			e.state.complete(StatusHalted)
			e.logger.Info("execution halted", "block_id", e.state.CurrentBlockID())
		} else {
			e.state.complete(StatusCompleted)
			e.logger.Info("execution completed", "duration", e.state.Duration())
		}
	}
	return nil
}

// nextBlock picks the block after current: End stops the run, Branch
// follows the edge its handler chose, and everything else takes its single
// outgoing connection.
func (e *Execution) nextBlock(current *workflow.Block, result *BlockResult) (*workflow.Block, error) {
	switch current.Type {
	case workflow.BlockTypeEnd:
		return nil, nil
	case workflow.BlockTypeBranch:
		nextID, _ := result.Output["next_block_id"].(string)
		if nextID == "" {
			e.logger.Warn("branch block chose no next block, ending execution")
			return nil, nil
		}
		next, ok := e.workflow.Get(nextID)
		if !ok {
			return nil, fmt.Errorf("Next block not found: %s", nextID)
		}
		return next, nil
	default:
		next := e.workflow.NextBlock(current.ID)
		if next == nil {
			e.logger.Warn("no outgoing connection, ending execution",
				"block_id", current.ID)
		}
		return next, nil
	}
}

// executeBlock dispatches one block to its handler. The block kind set is
// closed; anything else fails with a dispatch error.
func (e *Execution) executeBlock(ctx context.Context, block *workflow.Block) *BlockResult {
	switch block.Type {
	case workflow.BlockTypeStart:
		return successResult(nil, "Execution started", 0)
	case workflow.BlockTypeEnd:
		return successResult(nil, "Execution completed", 0)
	case workflow.BlockTypeVariable:
		return e.executeVariable(block)
	case workflow.BlockTypeBash:
		return e.executeBash(ctx, block)
	case workflow.BlockTypePrompt:
		return e.executePrompt(ctx, block)
	case workflow.BlockTypeBranch:
		return e.executeBranch(block)
	case workflow.BlockTypeCommand:
		return e.executeCommand(ctx, block)
	case workflow.BlockTypeRefresh:
		return e.executeRefresh(ctx)
	default:
		return errorResult(&DispatchError{BlockID: block.ID, Type: block.Type}, 0)
	}
}

func (e *Execution) executeVariable(block *workflow.Block) *BlockResult {
	start := time.Now()
	valueType := block.VariableType
	if valueType == "" {
		valueType = "string"
	}
	variables := e.state.effectiveVariables()
	valueText, err := template.SubstituteAll(block.VariableValue, variables, variables)
	if err != nil {
		return errorResult(fmt.Errorf("Error setting variable '%s': %s", block.VariableName, err),
			time.Since(start))
	}
	value, err := coerceValue(valueText, valueType)
	if err != nil {
		return errorResult(err, time.Since(start))
	}
	e.state.SetVariable(block.VariableName, value)
	e.logger.Info("variable set",
		"name", block.VariableName, "value", value, "type", valueType)
	return successResult(
		map[string]any{block.VariableName: value},
		fmt.Sprintf("Variable '%s' set to '%v' (%s)", block.VariableName, value, valueType),
		time.Since(start))
}

func (e *Execution) executeBranch(block *workflow.Block) *BlockResult {
	loopKey := "branch_" + block.ID
	loopCount := e.state.IncrementLoopCounter(loopKey)

	outgoing := e.workflow.ConnectionsFrom(block.ID)
	if len(outgoing) == 0 {
		return errorResult(fmt.Errorf(
			"Branch block '%s' has no outgoing connections (needs a True path and a False path)",
			block.DisplayName()), 0)
	}

	// Conditions read the entire accumulated variable map, not just the
	// previous block's output.
	conditionResult, err := eval.Evaluate(block.Condition, e.state.effectiveVariables())
	if err != nil {
		return errorResult(err, 0)
	}

	pathName := "False"
	if conditionResult {
		pathName = "True"
	}
	for _, conn := range outgoing {
		if conn.TruePath() != conditionResult {
			continue
		}
		e.logger.Debug("branch evaluated",
			"condition", block.Condition,
			"result", conditionResult,
			"target", conn.TargetBlockID,
			"iteration", loopCount)
		return successResult(map[string]any{
			"next_block_id": conn.TargetBlockID,
			"condition":     block.Condition,
			"result":        conditionResult,
			"loop_count":    loopCount,
		}, fmt.Sprintf("Branch condition '%s' = %s (iteration %d)",
			block.Condition, pathName, loopCount), 0)
	}
	return errorResult(fmt.Errorf(
		"Branch condition evaluated to %s, but no %s path connection exists",
		pathName, pathName), 0)
}

func (e *Execution) executeCommand(ctx context.Context, block *workflow.Block) *BlockResult {
	if e.runner == nil {
		return errorResult(fmt.Errorf("Command blocks require a command store"), 0)
	}
	start := time.Now()
	outputs, err := e.runner.Run(ctx, e, block)
	if err != nil {
		return errorResult(err, time.Since(start))
	}
	return successResult(outputs,
		fmt.Sprintf("Executed command: %s", block.CommandName),
		time.Since(start))
}

func (e *Execution) executeRefresh(ctx context.Context) *BlockResult {
	if e.refreshHook == nil {
		return errorResult(&RefreshUnsupportedError{}, 0)
	}
	agent, err := e.refreshHook(ctx)
	if err != nil {
		return errorResult(err, 0)
	}
	if agent != nil {
		e.agent = agent
		e.session.reset()
		e.logger.Info("agent connection refreshed", "agent", agent.Name())
	}
	return successResult(nil, "Agent refresh triggered", 0)
}
