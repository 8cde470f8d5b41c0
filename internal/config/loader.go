package config

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/go-logr/logr"
)

// Loader reads a configuration file and watches it for changes.
type Loader struct {
	path     string
	mu       sync.RWMutex
	current  *Config
	onChange []func(*Config)
	log      logr.Logger
}

// NewLoader creates a Loader and performs the initial load.
func NewLoader(path string, logger logr.Logger) (*Loader, error) {
	if logger.GetSink() == nil {
		logger = logr.Discard()
	}
	l := &Loader{path: path, log: logger.WithName("config")}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	l.current = cfg
	return l, nil
}

// Config returns the current configuration.
func (l *Loader) Config() *Config {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.current
}

// OnChange registers a callback invoked with every successfully reloaded configuration.
func (l *Loader) OnChange(fn func(*Config)) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.onChange = append(l.onChange, fn)
}

// Reload re-reads the configuration file. An invalid file leaves the current configuration in
// place.
func (l *Loader) Reload() (*Config, error) {
	cfg, err := Load(l.path)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	l.current = cfg
	callbacks := make([]func(*Config), len(l.onChange))
	copy(callbacks, l.onChange)
	l.mu.Unlock()
	for _, fn := range callbacks {
		fn(cfg)
	}
	return cfg, nil
}

// Watch reloads the configuration whenever the file is written or recreated, until the context
// is cancelled.
func (l *Loader) Watch(ctx context.Context) error {
	return WatchFile(ctx, l.path, func() {
		if _, err := l.Reload(); err != nil {
			l.log.Error(err, "reload failed, keeping the current configuration")
			return
		}
		l.log.Info("configuration reloaded", "path", l.path)
	}, l.log)
}

// WatchFile calls fn from a background goroutine whenever path is written or created, until the
// context is cancelled. The parent directory is watched so that editors replacing the file are
// noticed as well.
func WatchFile(ctx context.Context, path string, fn func(), logger logr.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("watcher: %w", err)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		w.Close()
		return fmt.Errorf("watcher: %w", err)
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		w.Close()
		return fmt.Errorf("watcher add %s: %w", path, err)
	}

	go func() {
		defer w.Close()
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if filepath.Clean(ev.Name) != abs {
					continue
				}
				if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) {
					fn()
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				logger.V(2).Info("watcher error", "path", path, "error", err.Error())
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
