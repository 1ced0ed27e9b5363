// Package config loads the runner configuration that wires a model
// provider, command search paths, execution limits, and security rules
// into the execution engine.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/deepnoodle-ai/eddy/security"
	"github.com/goccy/go-yaml"
)

// Config is the on-disk runner configuration, usually read from
// .eddy/config.yaml.
type Config struct {
	// Provider selects the model backend for prompt blocks, e.g.
	// "anthropic". When empty the model name picks the provider.
	Provider string `yaml:"provider,omitempty"`

	// Model passed to the provider. Empty uses the provider's default.
	Model string `yaml:"model,omitempty"`

	// APIKey for the provider. Environment references like
	// ${ANTHROPIC_API_KEY} are expanded at load time. Empty falls back
	// to the provider's own environment variable.
	APIKey string `yaml:"api_key,omitempty"`

	// Endpoint overrides the provider's API endpoint.
	Endpoint string `yaml:"endpoint,omitempty"`

	// CommandPaths are extra directories searched for command
	// definitions, after the project and home directories.
	CommandPaths []string `yaml:"command_paths,omitempty"`

	// WorkingDirectory is where bash blocks run. Empty uses the process
	// working directory.
	WorkingDirectory string `yaml:"working_directory,omitempty"`

	// HistoryDir is where execution events and snapshots are written.
	// Empty disables history.
	HistoryDir string `yaml:"history_dir,omitempty"`

	// MaxDepth bounds nested command invocation.
	MaxDepth int `yaml:"max_depth,omitempty"`

	// BlockLimit is the total-block ceiling per run.
	BlockLimit int `yaml:"block_limit,omitempty"`

	// BashTimeout bounds each bash block, e.g. "5m" or "90s".
	BashTimeout string `yaml:"bash_timeout,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level,omitempty"`

	// Security holds deployment-supplied command rules layered over the
	// built-in dangerous-pattern table.
	Security SecurityConfig `yaml:"security,omitempty"`
}

// SecurityConfig configures the bash command validator.
type SecurityConfig struct {
	// Rules are glob deny/allow rules, e.g.
	// {action: deny, command: "git push *"}.
	Rules []security.CommandRule `yaml:"rules,omitempty"`
}

// Default returns the configuration used when no config file exists.
func Default() *Config {
	return &Config{LogLevel: "warn"}
}

// Load reads a YAML configuration file. Unknown fields are an error so
// typos fail loudly. Environment overrides are applied after parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading config: %w", err)
	}
	config := Default()
	if err := yaml.UnmarshalWithOptions(data, config, yaml.Strict()); err != nil {
		return nil, fmt.Errorf("error parsing config %s: %w", path, err)
	}
	config.applyEnv()
	config.expand()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return config, nil
}

// LoadOrDefault reads the file when it exists and falls back to the
// default configuration (plus environment overrides) when it does not.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		config := Default()
		config.applyEnv()
		config.expand()
		return config, nil
	}
	return Load(path)
}

// applyEnv lets the environment override file settings.
func (c *Config) applyEnv() {
	for env, field := range map[string]*string{
		"EDDY_PROVIDER":  &c.Provider,
		"EDDY_MODEL":     &c.Model,
		"EDDY_API_KEY":   &c.APIKey,
		"EDDY_ENDPOINT":  &c.Endpoint,
		"EDDY_LOG_LEVEL": &c.LogLevel,
	} {
		if value := os.Getenv(env); value != "" {
			*field = value
		}
	}
}

// expand resolves ${VAR} references in credential and path fields.
func (c *Config) expand() {
	c.APIKey = os.ExpandEnv(c.APIKey)
	c.WorkingDirectory = os.ExpandEnv(c.WorkingDirectory)
	c.HistoryDir = os.ExpandEnv(c.HistoryDir)
	for i, path := range c.CommandPaths {
		c.CommandPaths[i] = os.ExpandEnv(path)
	}
}

// ParsedBashTimeout returns the bash timeout as a duration. Zero means
// use the engine default.
func (c *Config) ParsedBashTimeout() (time.Duration, error) {
	if c.BashTimeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.BashTimeout)
	if err != nil {
		return 0, fmt.Errorf("invalid bash_timeout %q: %w", c.BashTimeout, err)
	}
	return d, nil
}

// Validate checks field values that would otherwise fail deep inside the
// engine.
func (c *Config) Validate() error {
	if _, err := c.ParsedBashTimeout(); err != nil {
		return err
	}
	if c.MaxDepth < 0 {
		return fmt.Errorf("max_depth must not be negative")
	}
	if c.BlockLimit < 0 {
		return fmt.Errorf("block_limit must not be negative")
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}
