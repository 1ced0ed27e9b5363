package workflow

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/deepnoodle-ai/eddy/slogger"
	"github.com/fsnotify/fsnotify"
)

// WatcherOptions configures a command definition watcher.
type WatcherOptions struct {

	// Paths are the directories to watch for command file changes,
	// typically a FileStore's search paths. Missing directories are skipped.
	Paths []string

	// Debounce suppresses repeat notifications for the same file within
	// this window. Defaults to 500ms.
	Debounce time.Duration

	// OnChange is called with the path of each changed command file.
	OnChange func(path string)

	Logger slogger.Logger
}

// Watcher notifies a callback when command definition files are written or
// created, so long-running processes can reload commands without restarting.
type Watcher struct {
	watcher  *fsnotify.Watcher
	paths    []string
	debounce time.Duration
	onChange func(string)
	logger   slogger.Logger
	lastSeen map[string]time.Time
}

// NewWatcher creates a watcher over the given command directories.
func NewWatcher(opts WatcherOptions) (*Watcher, error) {
	if opts.OnChange == nil {
		return nil, fmt.Errorf("an OnChange callback is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	debounce := opts.Debounce
	if debounce <= 0 {
		debounce = 500 * time.Millisecond
	}
	logger := opts.Logger
	if logger == nil {
		logger = slogger.DefaultLogger
	}
	return &Watcher{
		watcher:  watcher,
		paths:    opts.Paths,
		debounce: debounce,
		onChange: opts.OnChange,
		logger:   logger,
		lastSeen: make(map[string]time.Time),
	}, nil
}

// Start begins watching and blocks until the context is canceled or the
// watcher fails.
func (w *Watcher) Start(ctx context.Context) error {
	defer w.watcher.Close()

	if err := w.addWatchPaths(); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			w.handleEvent(event)
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Error("file watcher error", "error", err)
		}
	}
}

func (w *Watcher) addWatchPaths() error {
	watched := 0
	for _, dir := range w.paths {
		err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
			if err != nil {
				return nil // Skip unreadable entries
			}
			if !info.IsDir() {
				return nil
			}
			if err := w.watcher.Add(path); err != nil {
				w.logger.Warn("failed to watch directory", "dir", path, "error", err)
				return nil
			}
			w.logger.Debug("watching directory", "dir", path)
			watched++
			return nil
		})
		if err != nil && !os.IsNotExist(err) {
			w.logger.Warn("failed to scan watch path", "dir", dir, "error", err)
		}
	}
	if watched == 0 {
		return fmt.Errorf("no directories found to watch: %s", strings.Join(w.paths, ", "))
	}
	return nil
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	if !isCommandFile(event.Name) {
		return
	}
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
		return
	}

	// Debounce rapid changes to the same file.
	now := time.Now()
	if last, ok := w.lastSeen[event.Name]; ok && now.Sub(last) < w.debounce {
		return
	}
	w.lastSeen[event.Name] = now

	w.logger.Debug("command file changed", "path", event.Name, "op", event.Op.String())
	w.onChange(event.Name)
}

func isCommandFile(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return true
	}
	return false
}
