package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/deepnoodle-ai/eddy/config"
	"github.com/spf13/cobra"

	// Provider registrations.
	_ "github.com/deepnoodle-ai/eddy/providers/anthropic"
	_ "github.com/deepnoodle-ai/eddy/providers/google"
	_ "github.com/deepnoodle-ai/eddy/providers/openai"
)

var rootCmd = &cobra.Command{
	Use:          "eddy",
	Short:        "Eddy runs block-based automation workflows",
	Long:         "Eddy executes automations assembled as graphs of typed blocks:\nAI prompts, shell commands, variables, branches, and nested commands.",
	SilenceUsage: true,
}

// Execute runs the CLI and exits non-zero on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to the config file (default .eddy/config.yaml)")
	rootCmd.PersistentFlags().String("provider", "", "Model provider for prompt blocks (e.g. anthropic)")
	rootCmd.PersistentFlags().StringP("model", "m", "", "Model for prompt blocks")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error)")
}

// loadConfig reads the configuration and applies flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = filepath.Join(".eddy", "config.yaml")
	}
	cfg, err := config.LoadOrDefault(path)
	if err != nil {
		return nil, err
	}
	if provider, _ := cmd.Flags().GetString("provider"); provider != "" {
		cfg.Provider = provider
	}
	if model, _ := cmd.Flags().GetString("model"); model != "" {
		cfg.Model = model
	}
	if level, _ := cmd.Flags().GetString("log-level"); level != "" {
		cfg.LogLevel = level
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func fatalf(format string, args ...any) error {
	err := fmt.Errorf(format, args...)
	fmt.Fprintln(os.Stderr, errorStyle.Sprint(xmark+" ")+err.Error())
	return err
}
