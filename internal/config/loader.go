package config

import (
	"fmt"
	"os"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Loader re-reads the configuration file and watches it for external edits
// made while an interactive session is open. The session marks its own writes
// so they do not trigger a reload notification.
type Loader struct {
	mu             sync.Mutex
	configPath     string
	watcher        *fsnotify.Watcher
	skipNextReload bool
	watching       bool
	onChange       func(*Configuration)
	logger         *zap.Logger
	stopChan       chan struct{}
}

// NewLoader creates a loader for the given config file path.
func NewLoader(configPath string, logger *zap.Logger) (*Loader, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &Loader{
		configPath: configPath,
		watcher:    watcher,
		logger:     logger,
		stopChan:   make(chan struct{}),
	}, nil
}

// Path returns the watched config file path.
func (l *Loader) Path() string {
	return l.configPath
}

// Load reads and parses the configuration file. Every operation cycle starts
// here; there is no cached instance.
func (l *Loader) Load() (*Configuration, []byte, error) {
	raw, err := os.ReadFile(l.configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg, err := Parse(raw)
	if err != nil {
		return nil, raw, err
	}
	return cfg, raw, nil
}

// StartWatching begins watching the config file. onChange is called with the
// freshly parsed configuration whenever the file changes externally. Calling
// it again replaces the callback without spawning a second watch loop.
func (l *Loader) StartWatching(onChange func(*Configuration)) error {
	l.mu.Lock()
	l.onChange = onChange
	alreadyWatching := l.watching
	l.mu.Unlock()

	if alreadyWatching {
		return nil
	}

	if err := l.watcher.Add(l.configPath); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	l.mu.Lock()
	l.watching = true
	l.mu.Unlock()

	go l.watchLoop()

	l.logger.Info("Started watching configuration file",
		zap.String("path", l.configPath))
	return nil
}

func (l *Loader) watchLoop() {
	for {
		select {
		case event, ok := <-l.watcher.Events:
			if !ok {
				return
			}
			if event.Op&fsnotify.Write == fsnotify.Write {
				l.handleFileChange()
			}

		case err, ok := <-l.watcher.Errors:
			if !ok {
				return
			}
			l.logger.Error("File watcher error", zap.Error(err))

		case <-l.stopChan:
			return
		}
	}
}

func (l *Loader) handleFileChange() {
	l.mu.Lock()
	if l.skipNextReload {
		l.logger.Debug("Skipping file reload (programmatic change)")
		l.skipNextReload = false
		l.mu.Unlock()
		return
	}
	onChange := l.onChange
	l.mu.Unlock()

	l.logger.Info("Configuration file changed externally, reloading")

	cfg, _, err := l.Load()
	if err != nil {
		l.logger.Error("Failed to reload configuration",
			zap.String("path", l.configPath),
			zap.Error(err))
		return
	}

	if onChange != nil {
		onChange(cfg)
	}
}

// MarkProgrammaticWrite flags the next file change as our own write so the
// watcher does not report it as an external edit.
func (l *Loader) MarkProgrammaticWrite() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.skipNextReload = true
}

// Stop stops the file watcher and releases its resources.
func (l *Loader) Stop() error {
	close(l.stopChan)
	if err := l.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	return nil
}
