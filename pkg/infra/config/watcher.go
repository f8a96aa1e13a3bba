// Package config provides configuration hot reload via viper and fsnotify.
package config

import (
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/kart-io/logger"
	"github.com/spf13/viper"
)

// ChangeHandler is invoked when the configuration file changes. It
// receives the updated viper instance and returns an error if it cannot
// apply the change.
type ChangeHandler func(v *viper.Viper) error

// Watcher monitors the configuration file and fans changes out to
// subscribed handlers. The chat pipeline uses it to pick up prompt
// template edits without a restart.
type Watcher struct {
	viper    *viper.Viper
	handlers map[string]ChangeHandler
	mu       sync.RWMutex
	watching bool
}

// NewWatcher creates a watcher for an already initialized viper instance.
func NewWatcher(v *viper.Viper) *Watcher {
	return &Watcher{
		viper:    v,
		handlers: make(map[string]ChangeHandler),
	}
}

// Subscribe registers a change handler under the given identifier,
// replacing any existing handler with the same id.
func (w *Watcher) Subscribe(id string, handler ChangeHandler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[id] = handler
	logger.Infof("Config watcher: subscribed handler '%s'", id)
}

// Unsubscribe removes a change handler by its identifier.
func (w *Watcher) Unsubscribe(id string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.handlers[id]; exists {
		delete(w.handlers, id)
		logger.Infof("Config watcher: unsubscribed handler '%s'", id)
	}
}

// Start begins watching the configuration file. Handlers are notified
// sequentially on each change; a failing handler is logged and does not
// stop the others. Start is idempotent.
func (w *Watcher) Start() {
	w.mu.Lock()
	if w.watching {
		w.mu.Unlock()
		return
	}
	w.watching = true
	w.mu.Unlock()

	w.viper.WatchConfig()
	w.viper.OnConfigChange(func(e fsnotify.Event) {
		logger.Infof("Config file changed: %s", e.Name)

		w.mu.RLock()
		handlers := make(map[string]ChangeHandler, len(w.handlers))
		for id, handler := range w.handlers {
			handlers[id] = handler
		}
		w.mu.RUnlock()

		for id, handler := range handlers {
			if err := handler(w.viper); err != nil {
				logger.Errorf("Config watcher: handler '%s' failed: %v", id, err)
			}
		}
	})

	logger.Info("Config watcher: started watching for configuration changes")
}

// Stop marks the watcher as stopped. Viper has no way to cancel the
// underlying watch, so this only disables bookkeeping.
func (w *Watcher) Stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.watching = false
}

// IsWatching returns whether the watcher is currently active.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.watching
}

// HandlerCount returns the number of registered handlers.
func (w *Watcher) HandlerCount() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.handlers)
}
