package execution

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/deepnoodle-ai/eddy/template"
	"github.com/deepnoodle-ai/eddy/workflow"
)

func (e *Execution) executeBash(ctx context.Context, block *workflow.Block) *BlockResult {
	start := time.Now()
	variables := e.state.effectiveVariables()

	command, err := template.SubstituteAll(block.Command, variables, variables)
	if err != nil {
		return e.bashError(err, block.Command, start)
	}
	e.logger.Info("executing bash command", "command", command)

	check := e.validator.ValidateCommand(command)
	for _, finding := range check.Findings {
		e.logger.Warn("bash security finding",
			"severity", finding.Severity, "message", finding.Message)
	}
	if !check.Safe {
		return errorResult(&SecurityError{Command: command, Findings: check.Messages()},
			time.Since(start))
	}

	workingDir := e.workingDir
	if block.WorkingDirectory != "" {
		workingDir, err = template.SubstituteAll(block.WorkingDirectory, variables, variables)
		if err != nil {
			return e.bashError(err, command, start)
		}
		info, statErr := os.Stat(workingDir)
		if statErr != nil || !info.IsDir() {
			return errorResult(fmt.Errorf("Working directory does not exist: %s\nCommand: %s",
				workingDir, command), time.Since(start))
		}
	}

	cmd := exec.Command("bash", "-c", command)
	cmd.Dir = workingDir
	// A fresh process group lets timeout and cleanup reach any children
	// the command spawns.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	var stdout, stderr bytes.Buffer
	if block.CapturesOutput() {
		cmd.Stdout = &stdout
		cmd.Stderr = &stderr
	}

	if err := cmd.Start(); err != nil {
		return e.bashError(err, command, start)
	}
	release := e.processes.Track(cmd)
	defer release()

	done := make(chan error, 1)
	go func() {
		done <- cmd.Wait()
	}()

	timer := time.NewTimer(e.bashTimeout)
	defer timer.Stop()

	var waitErr error
	select {
	case waitErr = <-done:
	case <-timer.C:
		terminateGroup(cmd.Process.Pid, done, e.logger)
		return e.bashTimeoutResult(block, command, time.Since(start))
	case <-ctx.Done():
		terminateGroup(cmd.Process.Pid, done, e.logger)
		return e.bashError(ctx.Err(), command, start)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return e.bashError(waitErr, command, start)
		}
	}
	exitCode := cmd.ProcessState.ExitCode()

	output := map[string]any{}
	if block.ExitCodeVariable != "" {
		e.state.SetVariable(block.ExitCodeVariable, exitCode)
		output[block.ExitCodeVariable] = exitCode
		e.logger.Info("stored exit code",
			"variable", block.ExitCodeVariable, "exit_code", exitCode)
	}

	stdoutText := stdout.String()
	stderrText := stderr.String()

	// The output variable is stored before the exit-code check, so a
	// failing command's output is still available to later blocks when the
	// workflow continues past the failure.
	if block.CapturesOutput() && block.OutputVariable != "" {
		outputType := block.OutputType
		if outputType == "" {
			outputType = "string"
		}
		value, coerceErr := coerceBashOutput(strings.TrimSpace(stdoutText), outputType)
		if coerceErr != nil {
			return e.bashError(coerceErr, command, start)
		}
		e.state.SetVariable(block.OutputVariable, value)
		output[block.OutputVariable] = value
		e.logger.Info("stored command output",
			"variable", block.OutputVariable, "type", outputType)
	}

	if exitCode != 0 {
		message := fmt.Sprintf("Bash command failed with exit code %d\nCommand: %s", exitCode, command)
		if block.CapturesOutput() && stderrText != "" {
			message += fmt.Sprintf("\nStderr: %s", stderrText)
		}
		e.logger.Warn("bash command failed", "exit_code", exitCode)
		if !block.ContinueOnError {
			return &BlockResult{Err: errors.New(message), Duration: time.Since(start)}
		}
		e.logger.Info("continuing past bash failure, continue_on_error is set")
		raw := fmt.Sprintf("Bash command: %s\nExit code: %d\n", command, exitCode)
		if block.CapturesOutput() {
			raw += "Output: " + orNoOutput(stdoutText) + "\n"
			if stderrText != "" {
				raw += "Stderr: " + stderrText
			}
		} else {
			raw += "Command executed (continue_on_error enabled)"
		}
		return successResult(nonEmpty(output), raw, time.Since(start))
	}

	e.logger.Info("bash command completed", "duration", time.Since(start))
	raw := fmt.Sprintf("Bash command: %s\nExit code: 0\n", command)
	if block.CapturesOutput() {
		raw += "Output: " + orNoOutput(stdoutText)
	} else {
		raw += "Command executed successfully"
	}
	return successResult(nonEmpty(output), raw, time.Since(start))
}

// bashTimeoutResult applies the continue_on_error contract to a timed-out
// command: without the flag the block fails; with it the workflow continues
// and the exit-code variable, if any, records -1.
func (e *Execution) bashTimeoutResult(block *workflow.Block, command string, duration time.Duration) *BlockResult {
	e.logger.Error("bash command timed out", "timeout", e.bashTimeout)
	if !block.ContinueOnError {
		return errorResult(&TimeoutError{Command: command, Timeout: e.bashTimeout}, duration)
	}
	e.logger.Info("continuing past bash timeout, continue_on_error is set")
	output := map[string]any{}
	if block.ExitCodeVariable != "" {
		e.state.SetVariable(block.ExitCodeVariable, -1)
		output[block.ExitCodeVariable] = -1
	}
	raw := fmt.Sprintf("Bash command timed out after %s (continue_on_error enabled)\nCommand: %s",
		formatTimeout(e.bashTimeout), command)
	return successResult(nonEmpty(output), raw, duration)
}

func (e *Execution) bashError(err error, command string, start time.Time) *BlockResult {
	return errorResult(fmt.Errorf("Error executing bash command: %s\nCommand: %s", err, command),
		time.Since(start))
}
