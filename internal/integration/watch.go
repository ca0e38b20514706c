package integration

import (
	"context"
	"errors"
	"reflect"
	"sync"

	"github.com/moolen/jiotty/internal/config"
	"github.com/moolen/jiotty/internal/lifecycle"
	"github.com/moolen/jiotty/internal/logging"
)

// WatchModule provides the config-watcher component, which restarts the
// application when the file at path changes to a different valid config.
// installed is the config the cycle was built from; a file that already
// differs from it when the watcher starts triggers a restart. With a nil
// installed config the first load becomes the baseline.
func WatchModule(path string, installed *config.ApplicationFile) lifecycle.Module {
	return func(c *lifecycle.Container) error {
		return c.Provide(WatcherName, func(ctl lifecycle.Control) (lifecycle.Component, error) {
			return newConfigWatcher(path, installed, ctl), nil
		})
	}
}

type configWatcher struct {
	path    string
	ctl     lifecycle.Control
	logger  *logging.Logger
	watcher *config.Watcher

	mu      sync.Mutex
	current *config.ApplicationFile
}

func newConfigWatcher(path string, installed *config.ApplicationFile, ctl lifecycle.Control) *configWatcher {
	return &configWatcher{
		path:    path,
		ctl:     ctl,
		logger:  logging.GetLogger("integration.watcher"),
		current: installed,
	}
}

func (w *configWatcher) Name() string { return WatcherName }

func (w *configWatcher) Start(ctx context.Context) error {
	watcher, err := config.NewWatcher(config.WatcherConfig{FilePath: w.path}, w.onReload)
	if err != nil {
		return err
	}
	w.watcher = watcher
	return watcher.Start(ctx)
}

func (w *configWatcher) Stop(ctx context.Context) error {
	if w.watcher == nil {
		return nil
	}
	return w.watcher.Stop()
}

// onReload records the config and requests a restart when it differs from
// the previous one.
func (w *configWatcher) onReload(cfg *config.ApplicationFile) error {
	w.mu.Lock()
	previous := w.current
	w.current = cfg
	w.mu.Unlock()

	if previous == nil || reflect.DeepEqual(previous, cfg) {
		return nil
	}

	w.logger.Info("Configuration changed, restarting")
	err := w.ctl.InitiateRestart()
	if errors.Is(err, lifecycle.ErrRestartPending) {
		return nil
	}
	return err
}
