package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/deepnoodle-ai/eddy/security"
	"github.com/spf13/cobra"
)

var checkCmd = &cobra.Command{
	Use:   "check <command string>",
	Short: "Check a shell command against the security rules",
	Long: "Check runs the bash security validator over a command string and\n" +
		"prints its findings. The validation is advisory pattern-matching,\n" +
		"not a sandbox.",
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return fatalf("%w", err)
		}
		validator, err := cfg.BuildValidator(cfg.BuildLogger(os.Stderr))
		if err != nil {
			return fatalf("%w", err)
		}
		command := strings.Join(args, " ")
		result := validator.ValidateCommand(command)
		for _, finding := range result.Findings {
			switch finding.Severity {
			case security.SeverityDangerous:
				errorStyle.Printf("  dangerous: %s\n", finding.Message)
			case security.SeverityWarning:
				warningStyle.Printf("  warning: %s\n", finding.Message)
			default:
				mutedStyle.Printf("  info: %s\n", finding.Message)
			}
		}
		if !result.Safe {
			errorStyle.Printf("%s command would be blocked\n", xmark)
			return fmt.Errorf("command rejected")
		}
		successStyle.Printf("%s command would be allowed\n", checkmark)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(checkCmd)
}
