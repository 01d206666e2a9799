package registry

import (
	"context"
	"errors"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const watchDebounce = 200 * time.Millisecond

// Watcher reloads the registry when its backing file is rewritten by
// another process. Events are debounced because editors and atomic
// renames produce bursts.
type Watcher struct {
	registry *Registry
	path     string
	logger   *zap.Logger
	watcher  *fsnotify.Watcher
}

func NewWatcher(reg *Registry, path string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// Watch the directory: rename-based saves replace the file inode.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		_ = fsw.Close()
		return nil, err
	}
	return &Watcher{
		registry: reg,
		path:     path,
		logger:   logger.Named("registry_watcher"),
		watcher:  fsw,
	}, nil
}

// Run blocks until ctx is done, reloading the registry after relevant
// file events settle.
func (w *Watcher) Run(ctx context.Context) error {
	defer func() { _ = w.watcher.Close() }()

	var timer *time.Timer
	var pending <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != filepath.Clean(w.path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(watchDebounce)
			} else {
				timer.Reset(watchDebounce)
			}
			pending = timer.C
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))
		case <-pending:
			pending = nil
			if err := w.registry.Reload(ctx); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				w.logger.Warn("registry reload failed", zap.Error(err))
			}
		}
	}
}
