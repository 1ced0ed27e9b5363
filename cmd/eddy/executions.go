package main

import (
	"os"

	"github.com/deepnoodle-ai/eddy/execution"
	"github.com/spf13/cobra"
)

var executionsCmd = &cobra.Command{
	Use:   "executions",
	Short: "List recorded executions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fatalf("%w", err)
		}
		if cfg.HistoryDir == "" {
			return fatalf("executions requires history_dir in the config")
		}
		history, err := execution.NewHistory(execution.HistoryOptions{
			Dir:    cfg.HistoryDir,
			Logger: cfg.BuildLogger(os.Stderr),
		})
		if err != nil {
			return fatalf("%w", err)
		}
		snapshots, err := history.List(cmd.Context())
		if err != nil {
			return fatalf("%w", err)
		}
		if len(snapshots) == 0 {
			mutedStyle.Println("no executions recorded")
			return nil
		}
		rows := make([][]string, 0, len(snapshots))
		for _, snap := range snapshots {
			rows = append(rows, []string{
				snap.ID,
				snap.CommandName,
				string(snap.Status),
				snap.UpdatedAt.Format("2006-01-02 15:04:05"),
			})
		}
		printTable([]string{"ID", "COMMAND", "STATUS", "UPDATED"}, rows)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(executionsCmd)
}
