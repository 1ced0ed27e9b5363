package config

import (
	"io"

	"github.com/deepnoodle-ai/eddy"
	"github.com/deepnoodle-ai/eddy/providers"
	"github.com/deepnoodle-ai/eddy/security"
	"github.com/deepnoodle-ai/eddy/slogger"
	"github.com/deepnoodle-ai/eddy/workflow"
)

// BuildLogger creates a logger writing to w at the configured level.
func (c *Config) BuildLogger(w io.Writer) slogger.Logger {
	return slogger.NewWithWriter(w, slogger.LevelFromString(c.LogLevel))
}

// BuildAgent creates the model agent from the provider registry. Provider
// packages must be imported for their registrations, typically:
//
//	import _ "github.com/deepnoodle-ai/eddy/providers/anthropic"
func (c *Config) BuildAgent() (eddy.Agent, error) {
	return providers.New(providers.Options{
		Provider: c.Provider,
		Model:    c.Model,
		APIKey:   c.APIKey,
		Endpoint: c.Endpoint,
	})
}

// BuildStore creates the command store over the default search paths plus
// any configured extras.
func (c *Config) BuildStore(logger slogger.Logger) (*workflow.FileStore, error) {
	return workflow.NewFileStore(workflow.FileStoreOptions{
		AdditionalPaths: c.CommandPaths,
		Logger:          logger,
	})
}

// BuildValidator creates the bash command validator with the configured
// deny/allow rules.
func (c *Config) BuildValidator(logger slogger.Logger) (*security.Validator, error) {
	return security.NewValidator(security.ValidatorOptions{
		CommandRules: c.Security.Rules,
		Logger:       logger,
	})
}
