package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate <command>...",
	Short: "Validate command definitions",
	Long: "Validate checks each named command (or YAML file) for graph and\n" +
		"configuration problems without running it.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fatalf("%w", err)
		}
		store, err := cfg.BuildStore(cfg.BuildLogger(os.Stderr))
		if err != nil {
			return fatalf("%w", err)
		}
		failed := false
		for _, nameOrPath := range args {
			command, err := resolveCommand(cmd.Context(), store, nameOrPath)
			if err != nil {
				fatalf("%s: %w", nameOrPath, err)
				failed = true
				continue
			}
			result := command.Validate()
			switch {
			case result.Valid && len(result.Warnings) == 0:
				successStyle.Printf("%s %s\n", checkmark, command.Name)
			case result.Valid:
				warningStyle.Printf("%s %s\n", checkmark, command.Name)
			default:
				errorStyle.Printf("%s %s\n", xmark, command.Name)
				failed = true
			}
			for _, message := range result.Errors {
				errorStyle.Printf("  error: %s\n", message)
			}
			for _, message := range result.Warnings {
				warningStyle.Printf("  warning: %s\n", message)
			}
		}
		if failed {
			return fmt.Errorf("validation failed")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
}
