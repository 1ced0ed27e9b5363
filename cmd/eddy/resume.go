package main

import (
	"fmt"
	"os"

	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/execution"
	"github.com/spf13/cobra"
)

var resumeCmd = &cobra.Command{
	Use:   "resume <execution-id>",
	Short: "Resume a halted execution from its snapshot",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fatalf("%w", err)
		}
		if cfg.HistoryDir == "" {
			return fatalf("resume requires history_dir in the config")
		}
		logger := cfg.BuildLogger(os.Stderr)

		history, err := execution.NewHistory(execution.HistoryOptions{
			Dir:    cfg.HistoryDir,
			Logger: logger,
		})
		if err != nil {
			return fatalf("%w", err)
		}
		snapshot, err := history.LoadSnapshot(cmd.Context(), args[0])
		if err != nil {
			return fatalf("%w", err)
		}
		if snapshot.Status != execution.StatusHalted {
			return fatalf("execution %s is %s, not halted", snapshot.ID, snapshot.Status)
		}

		store, err := cfg.BuildStore(logger)
		if err != nil {
			return fatalf("%w", err)
		}
		command, err := store.Lookup(cmd.Context(), snapshot.CommandName)
		if err != nil {
			return fatalf("%w", err)
		}

		var agent eddy.Agent
		if hasPromptBlocks(command.Workflow) {
			if agent, err = cfg.BuildAgent(); err != nil {
				return fatalf("prompt blocks need a model provider: %w", err)
			}
		}
		bashTimeout, err := cfg.ParsedBashTimeout()
		if err != nil {
			return fatalf("%w", err)
		}
		validator, err := cfg.BuildValidator(logger)
		if err != nil {
			return fatalf("%w", err)
		}

		exec, err := execution.NewExecution(execution.ExecutionOptions{
			Command:          command,
			State:            execution.RestoreState(snapshot),
			Agent:            agent,
			Store:            store,
			Observer:         execution.CombineObservers(terminalObserver(), history.Observer()),
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

		runErr := exec.Resume(cmd.Context())
		printRunOutcome(exec, false)
		if runErr != nil || exec.Status() == execution.StatusError {
			return fmt.Errorf("resume failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(resumeCmd)
}
