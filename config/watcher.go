// Package config provides configuration watching and hot-reload functionality
package config

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
)

// ConfigChangeCallback is called when configuration changes
type ConfigChangeCallback func(oldConfig, newConfig *Config)

// Watcher watches a configuration file for changes and reloads it
type Watcher struct {
	// Configuration file path
	configFile string

	// Configuration loader
	loader *Loader

	// Current configuration
	config   *Config
	configMu sync.RWMutex

	// File system watcher
	fsWatcher *fsnotify.Watcher

	// Change callbacks
	callbacks   []ConfigChangeCallback
	callbacksMu sync.RWMutex

	logger zerolog.Logger

	// Context for cancellation
	ctx    context.Context
	cancel context.CancelFunc

	// Wait group for goroutines
	wg sync.WaitGroup
}

// NewWatcher creates a new configuration watcher and loads the initial
// configuration from configFile.
func NewWatcher(configFile string, loader *Loader, logger zerolog.Logger) (*Watcher, error) {
	if _, err := formatForFile(configFile); err != nil {
		return nil, err
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file system watcher: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	watcher := &Watcher{
		configFile: configFile,
		loader:     loader,
		fsWatcher:  fsWatcher,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	config, err := loader.LoadFromFile(configFile)
	if err != nil {
		fsWatcher.Close()
		cancel()
		return nil, fmt.Errorf("failed to load initial config: %w", err)
	}
	watcher.config = config

	return watcher, nil
}

// Start starts watching the configuration file
func (w *Watcher) Start() error {
	if err := w.fsWatcher.Add(w.configFile); err != nil {
		return fmt.Errorf("failed to watch config file: %w", err)
	}

	w.wg.Add(1)
	go w.watchLoop()

	return nil
}

// Stop stops watching the configuration file
func (w *Watcher) Stop() error {
	w.cancel()

	err := w.fsWatcher.Close()

	w.wg.Wait()

	return err
}

// GetConfig returns the current configuration
func (w *Watcher) GetConfig() *Config {
	w.configMu.RLock()
	defer w.configMu.RUnlock()
	return w.config
}

// OnConfigChange registers a callback for configuration changes
func (w *Watcher) OnConfigChange(callback ConfigChangeCallback) {
	w.callbacksMu.Lock()
	defer w.callbacksMu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Reload manually reloads the configuration
func (w *Watcher) Reload() error {
	return w.reloadConfig()
}

// watchLoop watches for file system events
func (w *Watcher) watchLoop() {
	defer w.wg.Done()

	// Debounce to avoid multiple reloads for rapid successive writes.
	var debounceTimer *time.Timer
	debounceDuration := 500 * time.Millisecond

	for {
		select {
		case <-w.ctx.Done():
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			return

		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if event.Name != w.configFile {
				continue
			}

			if event.Op&fsnotify.Write == fsnotify.Write ||
				event.Op&fsnotify.Create == fsnotify.Create {

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				debounceTimer = time.AfterFunc(debounceDuration, func() {
					if err := w.reloadConfig(); err != nil {
						w.logger.Error().Err(err).Msg("failed to reload config")
					}
				})

			} else if event.Op&fsnotify.Remove == fsnotify.Remove ||
				event.Op&fsnotify.Rename == fsnotify.Rename {

				w.logger.Warn().Str("file", w.configFile).Msg("config file removed or renamed")
				// Re-add the file in case it was recreated.
				time.AfterFunc(time.Second, func() {
					if err := w.fsWatcher.Add(w.configFile); err != nil {
						w.logger.Error().Err(err).Msg("failed to re-watch config file")
					}
				})
			}

		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Error().Err(err).Msg("config watcher error")
		}
	}
}

// reloadConfig reloads the configuration from file
func (w *Watcher) reloadConfig() error {
	newConfig, err := w.loader.LoadFromFile(w.configFile)
	if err != nil {
		return fmt.Errorf("failed to reload config: %w", err)
	}

	w.configMu.Lock()
	oldConfig := w.config
	w.config = newConfig
	w.configMu.Unlock()

	w.notifyCallbacks(oldConfig, newConfig)

	return nil
}

// notifyCallbacks invokes every registered change callback
func (w *Watcher) notifyCallbacks(oldConfig, newConfig *Config) {
	w.callbacksMu.RLock()
	callbacks := make([]ConfigChangeCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.callbacksMu.RUnlock()

	for _, callback := range callbacks {
		callback(oldConfig, newConfig)
	}
}
