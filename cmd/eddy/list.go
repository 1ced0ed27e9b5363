package main

import (
	"os"

	"github.com/deepnoodle-ai/eddy/workflow"
	"github.com/spf13/cobra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List available commands",
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
		if err := printCommands(cmd, store); err != nil {
			return fatalf("%w", err)
		}
		watch, _ := cmd.Flags().GetBool("watch")
		if !watch {
			return nil
		}
		watcher, err := workflow.NewWatcher(workflow.WatcherOptions{
			Paths:  store.Paths(),
			Logger: logger,
			OnChange: func(path string) {
				mutedStyle.Printf("%s changed\n", path)
				if err := printCommands(cmd, store); err != nil {
					errorStyle.Printf("%s %v\n", xmark, err)
				}
			},
		})
		if err != nil {
			return fatalf("%w", err)
		}
		mutedStyle.Println("watching for command changes (ctrl-c to stop)")
		return watcher.Start(cmd.Context())
	},
	Args: cobra.NoArgs,
}

func printCommands(cmd *cobra.Command, store *workflow.FileStore) error {
	names, err := store.List(cmd.Context())
	if err != nil {
		return err
	}
	if len(names) == 0 {
		mutedStyle.Println("no commands found")
		return nil
	}
	rows := make([][]string, 0, len(names))
	for _, name := range names {
		description := ""
		if command, err := store.Lookup(cmd.Context(), name); err == nil {
			description = truncate(command.Description, 60)
		}
		rows = append(rows, []string{name, description})
	}
	printTable([]string{"NAME", "DESCRIPTION"}, rows)
	return nil
}

func init() {
	rootCmd.AddCommand(listCmd)
	listCmd.Flags().Bool("watch", false, "Keep running and reprint when command files change")
}
