package discovery

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watcher marks the module source tree dirty when a file changes. It is
// advisory: the next discovery run consults Dirty to decide whether a
// rebuild is worth attempting before the cache check, but correctness
// always rests on the modification-time comparison.
type Watcher struct {
	fs     *fsnotify.Watcher
	dirty  atomic.Bool
	logger *zap.Logger
}

// NewWatcher watches dir and every subdirectory under it.
func NewWatcher(dir string, logger *zap.Logger) (*Watcher, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	err = filepath.WalkDir(dir, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if name == "target" || name == ".git" || name == "node_modules" {
			return filepath.SkipDir
		}
		return fs.Add(path)
	})
	if err != nil {
		fs.Close()
		return nil, err
	}
	return &Watcher{fs: fs, logger: logger}, nil
}

// Run consumes events until ctx is cancelled, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) {
	defer w.fs.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) != 0 {
				w.dirty.Store(true)
				w.logger.Debug("module source changed", zap.String("file", event.Name))
				// New directories need their own watch.
				if event.Op&fsnotify.Create != 0 {
					if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
						w.fs.Add(event.Name)
					}
				}
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("module watcher error", zap.Error(err))
		}
	}
}

// Dirty reports whether a change was seen since the last Clear.
func (w *Watcher) Dirty() bool { return w.dirty.Load() }

// Clear resets the dirty flag, typically right after a discovery run.
func (w *Watcher) Clear() { w.dirty.Store(false) }
