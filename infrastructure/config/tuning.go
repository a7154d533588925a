package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Tuning holds the knobs operators adjust without a redeploy: layout spacing
// and the autosave quiet period. Zero values mean "use the default".
type Tuning struct {
	MainNodeSpacing     float64       `yaml:"main_node_spacing"`
	MainLayerSpacing    float64       `yaml:"main_layer_spacing"`
	PreviewNodeSpacing  float64       `yaml:"preview_node_spacing"`
	PreviewLayerSpacing float64       `yaml:"preview_layer_spacing"`
	GroupSpacing        float64       `yaml:"group_spacing"`
	AutosaveQuietPeriod time.Duration `yaml:"autosave_quiet_period"`
}

// TuningWatcher hot-reloads the tuning file on change. Primarily a
// development convenience; without a tuning file it serves static defaults.
type TuningWatcher struct {
	mu        sync.RWMutex
	tuning    Tuning
	callbacks []func(Tuning)
	logger    *zap.Logger
	watcher   *fsnotify.Watcher
	stopCh    chan struct{}
	stopOnce  sync.Once
}

// NewTuningWatcher loads the tuning file and starts watching it. An empty
// path disables watching and serves the defaults.
func NewTuningWatcher(path string, defaults Tuning, logger *zap.Logger) (*TuningWatcher, error) {
	w := &TuningWatcher{
		tuning: defaults,
		logger: logger,
		stopCh: make(chan struct{}),
	}

	if path == "" {
		logger.Info("tuning hot reload disabled, no tuning file configured")
		return w, nil
	}

	if err := w.reload(path); err != nil {
		return nil, fmt.Errorf("failed to load tuning file: %w", err)
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}
	if err := fsWatcher.Add(path); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("failed to watch tuning file: %w", err)
	}
	w.watcher = fsWatcher

	go w.watchLoop(path)
	logger.Info("tuning hot reload enabled", zap.String("file", path))
	return w, nil
}

// Current returns the active tuning snapshot.
func (w *TuningWatcher) Current() Tuning {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.tuning
}

// OnChange registers a callback invoked after each successful reload.
func (w *TuningWatcher) OnChange(fn func(Tuning)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, fn)
}

// Stop shuts the watcher down.
func (w *TuningWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

func (w *TuningWatcher) watchLoop(path string) {
	defer func() {
		if w.watcher != nil {
			w.watcher.Close()
		}
	}()

	// Editors emit several events per save; collapse them.
	const debounceDelay = 500 * time.Millisecond
	var debounce *time.Timer

	for {
		select {
		case <-w.stopCh:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(debounceDelay, func() {
				if err := w.reload(path); err != nil {
					w.logger.Warn("tuning reload failed, keeping previous values",
						zap.String("file", path),
						zap.Error(err))
					return
				}
				w.logger.Info("tuning reloaded", zap.String("file", path))
				w.notify()
			})
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("tuning watcher error", zap.Error(err))
		}
	}
}

func (w *TuningWatcher) reload(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	next := w.tuning
	if err := yaml.Unmarshal(data, &next); err != nil {
		return err
	}
	if next.AutosaveQuietPeriod < 0 {
		return fmt.Errorf("autosave_quiet_period must not be negative")
	}
	w.tuning = next
	return nil
}

func (w *TuningWatcher) notify() {
	w.mu.RLock()
	tuning := w.tuning
	callbacks := make([]func(Tuning), len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, fn := range callbacks {
		fn(tuning)
	}
}
