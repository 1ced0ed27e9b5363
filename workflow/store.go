package workflow

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/deepnoodle-ai/eddy/slogger"
	"github.com/goccy/go-yaml"
)

// ErrNotFound indicates that no command definition with the requested name
// exists in the store.
var ErrNotFound = errors.New("command not found")

// Store provides named command definitions to the execution engine and CLI.
type Store interface {

	// Lookup returns the command with the given name. A leading slash in the
	// name is ignored, so "/deploy" and "deploy" resolve identically. Returns
	// an error wrapping ErrNotFound when the command does not exist.
	Lookup(ctx context.Context, name string) (*Command, error)

	// Exists reports whether a command with the given name is available,
	// with the same name normalization as Lookup.
	Exists(ctx context.Context, name string) (bool, error)

	// List returns the names of all available commands, sorted.
	List(ctx context.Context) ([]string, error)

	// Delete removes the command with the given name. Returns an error
	// wrapping ErrNotFound when the command does not exist.
	Delete(ctx context.Context, name string) error
}

// FileStoreOptions configures command discovery and storage.
//
// Commands are searched in multiple locations with a defined priority order:
// project-level definitions take precedence over user-level ones, and the
// first file found with a given name wins.
type FileStoreOptions struct {

	// ProjectDir is the base directory for project-level commands, searched
	// under ProjectDir/.eddy/commands/. Defaults to the current working
	// directory.
	ProjectDir string

	// HomeDir is the base directory for user-level commands, searched under
	// HomeDir/.eddy/commands/. Defaults to os.UserHomeDir().
	HomeDir string

	// AdditionalPaths specifies extra directories to search, after the
	// default paths.
	AdditionalPaths []string

	// Logger receives debug and warning messages during discovery.
	Logger slogger.Logger
}

// FileStore reads and writes command definitions as YAML files.
type FileStore struct {
	paths  []string
	logger slogger.Logger
	mutex  sync.RWMutex
}

var _ Store = &FileStore{}

// NewFileStore creates a command store over the configured search paths.
func NewFileStore(opts FileStoreOptions) (*FileStore, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}

	projectDir := opts.ProjectDir
	if projectDir == "" {
		var err error
		projectDir, err = os.Getwd()
		if err != nil {
			return nil, fmt.Errorf("getting current directory: %w", err)
		}
	}
	homeDir := opts.HomeDir
	if homeDir == "" {
		var err error
		homeDir, err = os.UserHomeDir()
		if err != nil {
			logger.Warn("could not determine home directory", "error", err)
		}
	}

	var paths []string
	paths = append(paths, filepath.Join(projectDir, ".eddy", "commands"))
	if homeDir != "" {
		paths = append(paths, filepath.Join(homeDir, ".eddy", "commands"))
	}
	paths = append(paths, opts.AdditionalPaths...)

	return &FileStore{paths: paths, logger: logger}, nil
}

// Paths returns the search paths in priority order.
func (s *FileStore) Paths() []string {
	return append([]string{}, s.paths...)
}

// Lookup finds a command by name, searching paths in priority order.
func (s *FileStore) Lookup(ctx context.Context, name string) (*Command, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	name = strings.TrimPrefix(name, "/")
	for _, dir := range s.paths {
		path, ok := findCommandFile(dir, name)
		if !ok {
			continue
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading command file %s: %w", path, err)
		}
		cmd, err := parseCommand(data)
		if err != nil {
			return nil, fmt.Errorf("parsing command file %s: %w", path, err)
		}
		if cmd.Name == "" {
			cmd.Name = name
		}
		s.logger.Debug("loaded command", "name", cmd.Name, "path", path)
		return cmd, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
}

// Exists reports whether a definition for the named command is present in
// any search path.
func (s *FileStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	name = strings.TrimPrefix(name, "/")
	for _, dir := range s.paths {
		if _, ok := findCommandFile(dir, name); ok {
			return true, nil
		}
	}
	return false, nil
}

// List returns the names of all commands found across the search paths,
// sorted. When the same name appears in multiple paths, only the highest
// priority definition is counted.
func (s *FileStore) List(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	seen := map[string]bool{}
	for _, dir := range s.paths {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			s.logger.Debug("command path does not exist", "path", dir)
			continue
		}
		fsys := os.DirFS(dir)
		matches, err := doublestar.Glob(fsys, "**/*.{yaml,yml}")
		if err != nil {
			return nil, fmt.Errorf("scanning %s: %w", dir, err)
		}
		for _, match := range matches {
			name := strings.TrimSuffix(filepath.Base(match), filepath.Ext(match))
			if !seen[name] {
				seen[name] = true
			}
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// Save writes a command to the highest priority path as YAML, atomically.
// The command's modified timestamp is updated.
func (s *FileStore) Save(ctx context.Context, cmd *Command) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if strings.TrimSpace(cmd.Name) == "" {
		return fmt.Errorf("command name is required")
	}
	if len(s.paths) == 0 {
		return fmt.Errorf("store has no paths configured")
	}
	cmd.Touch()

	data, err := yaml.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encoding command %s: %w", cmd.Name, err)
	}

	dir := s.paths[0]
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create command directory: %w", err)
	}

	// Write to a temporary file first, then rename (atomic write).
	path := filepath.Join(dir, strings.TrimPrefix(cmd.Name, "/")+".yaml")
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write command file: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename command file: %w", err)
	}
	s.logger.Debug("saved command", "name", cmd.Name, "path", path)
	return nil
}

// Delete removes the highest priority definition of the named command.
// Definitions of the same name in lower priority paths are left alone, so
// deleting a project-level override exposes the user-level command again.
func (s *FileStore) Delete(ctx context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	name = strings.TrimPrefix(name, "/")
	for _, dir := range s.paths {
		path, ok := findCommandFile(dir, name)
		if !ok {
			continue
		}
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("deleting command file %s: %w", path, err)
		}
		s.logger.Debug("deleted command", "name", name, "path", path)
		return nil
	}
	return fmt.Errorf("%w: %s", ErrNotFound, name)
}

// findCommandFile locates the definition for a command within one search
// directory, preferring a file directly in the directory and falling back to
// nested subdirectories.
func findCommandFile(dir, name string) (string, bool) {
	for _, ext := range []string{".yaml", ".yml"} {
		path := filepath.Join(dir, name+ext)
		if _, err := os.Stat(path); err == nil {
			return path, true
		}
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		return "", false
	}
	matches, err := doublestar.Glob(os.DirFS(dir), "**/"+name+".{yaml,yml}")
	if err != nil || len(matches) == 0 {
		return "", false
	}
	sort.Strings(matches)
	return filepath.Join(dir, matches[0]), true
}

// LoadCommandFile reads one command definition from a YAML file, outside
// of any store's search paths.
func LoadCommandFile(path string) (*Command, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading command file: %w", err)
	}
	cmd, err := parseCommand(data)
	if err != nil {
		return nil, fmt.Errorf("error parsing command file %s: %w", path, err)
	}
	return cmd, nil
}

func parseCommand(data []byte) (*Command, error) {
	var cmd Command
	if err := yaml.UnmarshalWithOptions(data, &cmd, yaml.Strict()); err != nil {
		return nil, err
	}
	if cmd.Workflow != nil {
		cmd.Workflow.Normalize()
	}
	return &cmd, nil
}

// MemoryStore is an in-memory Store, primarily for tests.
type MemoryStore struct {
	mutex    sync.RWMutex
	commands map[string]*Command
}

var _ Store = &MemoryStore{}

// NewMemoryStore creates a store holding the given commands.
func NewMemoryStore(commands ...*Command) *MemoryStore {
	s := &MemoryStore{commands: map[string]*Command{}}
	for _, cmd := range commands {
		s.commands[cmd.Name] = cmd
	}
	return s
}

// Add registers a command, replacing any existing command with the same name.
func (s *MemoryStore) Add(cmd *Command) {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.commands[cmd.Name] = cmd
}

func (s *MemoryStore) Lookup(ctx context.Context, name string) (*Command, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	cmd, ok := s.commands[strings.TrimPrefix(name, "/")]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return cmd, nil
}

func (s *MemoryStore) Exists(ctx context.Context, name string) (bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	_, ok := s.commands[strings.TrimPrefix(name, "/")]
	return ok, nil
}

func (s *MemoryStore) List(ctx context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	names := make([]string, 0, len(s.commands))
	for name := range s.commands {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()
	name = strings.TrimPrefix(name, "/")
	if _, ok := s.commands[name]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	delete(s.commands, name)
	return nil
}
