package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/config"
	"github.com/deepnoodle-ai/eddy/execution"
	"github.com/deepnoodle-ai/eddy/slogger"
	"github.com/deepnoodle-ai/eddy/workflow"
	"github.com/spf13/cobra"
)

var runCmd = &cobra.Command{
	Use:   "run <command> [argument...]",
	Short: "Run a command by name or from a YAML file",
	Long: "Run executes a stored command by name, or a definition read from a\n" +
		"YAML file when the argument names an existing file. Remaining\n" +
		"arguments are passed to the command positionally.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fatalf("%w", err)
		}
		logger := cfg.BuildLogger(os.Stderr)
		store, err := cfg.BuildStore(logger)
		if err != nil {
			return fatalf("%w", err)
		}
		command, err := resolveCommand(cmd.Context(), store, args[0])
		if err != nil {
			return fatalf("%w", err)
		}
		argString := joinArguments(args[1:])
		for _, warning := range workflow.ArgumentSyntaxWarnings(argString) {
			warningStyle.Fprintf(os.Stderr, "warning: %s\n", warning)
		}
		arguments, err := command.ParseArguments(argString)
		if err != nil {
			return fatalf("%w", err)
		}
		namedArgs, _ := cmd.Flags().GetStringArray("arg")
		vars, _ := cmd.Flags().GetStringArray("var")
		if err := mergeAssignments(arguments, append(namedArgs, vars...)); err != nil {
			return fatalf("%w", err)
		}
		quiet, _ := cmd.Flags().GetBool("quiet")
		return runCommand(cmd.Context(), cfg, logger, store, command, arguments, quiet)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolP("quiet", "q", false, "Only print prompt output and errors")
	runCmd.Flags().StringArray("arg", nil, "Named argument as name=value (repeatable)")
	runCmd.Flags().StringArray("var", nil, "Initial variable as name=value (repeatable)")
}

// mergeAssignments parses name=value pairs into the argument map,
// overriding positional values of the same name.
func mergeAssignments(arguments map[string]string, pairs []string) error {
	for _, pair := range pairs {
		name, value, ok := strings.Cut(pair, "=")
		if !ok || name == "" {
			return fmt.Errorf("invalid assignment %q (want name=value)", pair)
		}
		arguments[name] = value
	}
	return nil
}

// resolveCommand loads a command from a file when the argument names one,
// otherwise from the store.
func resolveCommand(ctx context.Context, store workflow.Store, nameOrPath string) (*workflow.Command, error) {
	if info, err := os.Stat(nameOrPath); err == nil && !info.IsDir() {
		return workflow.LoadCommandFile(nameOrPath)
	}
	return store.Lookup(ctx, nameOrPath)
}

// joinArguments rebuilds a shell-style argument string from already-split
// CLI arguments, quoting values containing spaces.
func joinArguments(args []string) string {
	quoted := make([]string, len(args))
	for i, arg := range args {
		if strings.ContainsAny(arg, " \t\"'") {
			quoted[i] = fmt.Sprintf("%q", arg)
		} else {
			quoted[i] = arg
		}
	}
	return strings.Join(quoted, " ")
}

// runCommand executes a prepared command and prints the run to the
// terminal. SIGINT requests a halt; a second SIGINT kills any tracked
// subprocesses and aborts.
func runCommand(
	ctx context.Context,
	cfg *config.Config,
	logger slogger.Logger,
	store workflow.Store,
	command *workflow.Command,
	arguments map[string]string,
	quiet bool,
) error {
	var agent eddy.Agent
	if hasPromptBlocks(command.Workflow) {
		a, err := cfg.BuildAgent()
		if err != nil {
			return fatalf("prompt blocks need a model provider: %w", err)
		}
		agent = a
	}

	bashTimeout, err := cfg.ParsedBashTimeout()
	if err != nil {
		return fatalf("%w", err)
	}

	observers := []*execution.Observer{}
	if !quiet {
		observers = append(observers, terminalObserver())
	} else {
		observers = append(observers, promptOnlyObserver())
	}
	if cfg.HistoryDir != "" {
		history, err := execution.NewHistory(execution.HistoryOptions{
			Dir:    cfg.HistoryDir,
			Logger: logger,
		})
		if err != nil {
			return fatalf("%w", err)
		}
		observers = append(observers, history.Observer())
	}

	validator, err := cfg.BuildValidator(logger)
	if err != nil {
		return fatalf("%w", err)
	}

	exec, err := execution.NewExecution(execution.ExecutionOptions{
		Command:          command,
		Arguments:        arguments,
		Agent:            agent,
		Store:            store,
		Observer:         execution.CombineObservers(observers...),
		Validator:        validator,
		WorkingDirectory: cfg.WorkingDirectory,
		BashTimeout:      bashTimeout,
		MaxDepth:         cfg.MaxDepth,
		BlockLimit:       cfg.BlockLimit,
		Logger:           logger,
	})
	if err != nil {
		return fatalf("%w", err)
	}

	interrupts := make(chan os.Signal, 2)
	signal.Notify(interrupts, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(interrupts)
	go func() {
		<-interrupts
		fmt.Fprintln(os.Stderr, warningStyle.Sprint("halting after the current block finishes, including any nested command it is running... (interrupt again to abort)"))
		exec.Halt()
		<-interrupts
		exec.CleanupProcesses()
		os.Exit(130)
	}()

	runErr := exec.Run(ctx)
	printRunOutcome(exec, quiet)
	if runErr != nil || exec.Status() == execution.StatusError {
		return fmt.Errorf("run failed")
	}
	return nil
}

func hasPromptBlocks(wf *workflow.Workflow) bool {
	if wf == nil {
		return false
	}
	for _, block := range wf.Blocks {
		if block.Type == workflow.BlockTypePrompt {
			return true
		}
	}
	return false
}

// terminalObserver prints the run block by block, streaming prompt
// responses as they arrive.
func terminalObserver() *execution.Observer {
	streaming := false
	return &execution.Observer{
		ExecutionStart: func(commandName string, state *execution.State) {
			headerStyle.Printf("%s %s\n", bullet, commandName)
		},
		BlockStart: func(block *workflow.Block, state *execution.State) {
			if state.Depth() > 0 {
				blockStyle.Printf("%s%s %s\n", strings.Repeat("  ", state.Depth()), arrow, block.DisplayName())
				return
			}
			blockStyle.Printf("%s %s\n", arrow, block.DisplayName())
		},
		PromptStream: func(prompt, chunk string) {
			if chunk == "" {
				streaming = true
				return
			}
			fmt.Print(chunk)
		},
		BlockComplete: func(block *workflow.Block, result *execution.BlockResult, state *execution.State) {
			if streaming {
				fmt.Println()
				streaming = false
			}
			if result.Success() {
				if result.RawResponse != "" && block.Type != workflow.BlockTypePrompt {
					mutedStyle.Printf("  %s\n", truncate(result.RawResponse, 100))
				}
				return
			}
			errorStyle.Printf("  %s %v\n", xmark, result.Err)
		},
	}
}

// promptOnlyObserver prints just the streamed prompt responses.
func promptOnlyObserver() *execution.Observer {
	return &execution.Observer{
		PromptStream: func(prompt, chunk string) {
			fmt.Print(chunk)
		},
	}
}

func printRunOutcome(exec *execution.Execution, quiet bool) {
	state := exec.State()
	switch state.Status() {
	case execution.StatusCompleted:
		if !quiet {
			successStyle.Printf("%s completed in %s (%d blocks)\n",
				checkmark, state.Duration().Round(time.Millisecond), len(state.Log()))
		}
	case execution.StatusHalted:
		warningStyle.Printf("halted at block %s; resume with: eddy resume %s\n",
			state.CurrentBlockID(), state.ID())
	case execution.StatusError:
		entry := state.LastEntry()
		if entry != nil && entry.Error != "" {
			errorStyle.Printf("%s %s failed: %s\n", xmark, entry.BlockName, entry.Error)
		} else {
			errorStyle.Printf("%s run failed\n", xmark)
		}
	}
}
