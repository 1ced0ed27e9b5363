package execution

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/deepnoodle-ai/eddy/workflow"
)

// ValidationError reports a workflow that failed validation before any
// block ran.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Workflow validation failed: %s", strings.Join(e.Problems, ", "))
}

// DispatchError reports a block whose type has no handler. The block kind
// set is closed, so this indicates a definition that bypassed validation.
type DispatchError struct {
	BlockID string
	Type    workflow.BlockType
}

func (e *DispatchError) Error() string {
	return fmt.Sprintf("Unknown block type: %s", e.Type)
}

// BlockLimitError reports a run that exceeded the total-block ceiling.
// Loops are otherwise unbounded, so this is the engine's only loop guard.
type BlockLimitError struct {
	Limit int
}

func (e *BlockLimitError) Error() string {
	return fmt.Sprintf("Exceeded maximum block execution limit (%d)", e.Limit)
}

// TimeoutError reports a bash command that outlived its timeout.
type TimeoutError struct {
	Command string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("Bash command timed out after %s\nCommand: %s",
		formatTimeout(e.Timeout), e.Command)
}

// formatTimeout renders whole minutes as "N minutes" so the default
// 5-minute limit reads naturally in error messages.
func formatTimeout(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		minutes := int(d / time.Minute)
		if minutes == 1 {
			return "1 minute"
		}
		return fmt.Sprintf("%d minutes", minutes)
	}
	return d.String()
}

// SecurityError reports a bash command rejected by the security validator.
type SecurityError struct {
	Command  string
	Findings []string
}

func (e *SecurityError) Error() string {
	return fmt.Sprintf("Dangerous bash command detected.\nCommand: %s\nSecurity warnings:\n%s",
		e.Command, strings.Join(e.Findings, "\n"))
}

// SchemaValidationError reports a prompt whose structured output could not
// be parsed within the retry budget.
type SchemaValidationError struct {
	Attempts int
	LastErr  error
}

func (e *SchemaValidationError) Error() string {
	return fmt.Sprintf("Failed to parse structured output after %d attempts. Last error: %s",
		e.Attempts, e.LastErr)
}

func (e *SchemaValidationError) Unwrap() error {
	return e.LastErr
}

// CommandNotFoundError reports a Command block whose target does not exist
// in the store.
type CommandNotFoundError struct {
	Name string
}

func (e *CommandNotFoundError) Error() string {
	return fmt.Sprintf("Command not found: %s. Ensure the command exists before invoking it.", e.Name)
}

// Unwrap lets errors.Is(err, workflow.ErrNotFound) hold across the
// execution boundary.
func (e *CommandNotFoundError) Unwrap() error {
	return workflow.ErrNotFound
}

// RefreshUnsupportedError reports a Refresh block running in a context with
// no registered refresh hook.
type RefreshUnsupportedError struct{}

func (e *RefreshUnsupportedError) Error() string {
	return "Refresh block not supported in this context"
}

// MaxRecursionDepthError reports a nested invocation that would exceed the
// configured depth limit.
type MaxRecursionDepthError struct {
	MaxDepth    int
	CallChain   string
	CommandName string
}

func (e *MaxRecursionDepthError) Error() string {
	return fmt.Sprintf("Maximum recursion depth (%d) exceeded.\nCall stack: %s\nCannot execute command: %s",
		e.MaxDepth, e.CallChain, e.CommandName)
}

// CommandRecursionError reports a command invocation cycle, detected before
// the repeated command runs. CallStack holds the full invocation chain
// ending with the repeated command.
type CommandRecursionError struct {
	CommandName string
	CallStack   []string
}

// Cycle returns the portion of the call stack forming the cycle, from the
// first occurrence of the repeated command through its reappearance.
func (e *CommandRecursionError) Cycle() []string {
	for i, name := range e.CallStack {
		if name == e.CommandName {
			return e.CallStack[i:]
		}
	}
	return e.CallStack
}

func (e *CommandRecursionError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Recursive command invocation detected: %s\n\nCall stack:\n", e.CommandName)
	for i, name := range e.CallStack {
		b.WriteString(strings.Repeat("  ", i))
		b.WriteString(name)
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "\nRecursive cycle: %s\n\n", strings.Join(e.Cycle(), " → "))
	b.WriteString("To fix this: Remove the recursive command block, or restructure your commands to avoid circular dependencies.")
	return b.String()
}

// fatalError reports whether err must abort the whole run rather than fail
// the current block: the block ceiling, recursion cycles, and the depth
// limit always escalate past the per-block error handling.
func fatalError(err error) bool {
	var limitErr *BlockLimitError
	var depthErr *MaxRecursionDepthError
	var recursionErr *CommandRecursionError
	return errors.As(err, &limitErr) || errors.As(err, &depthErr) || errors.As(err, &recursionErr)
}
