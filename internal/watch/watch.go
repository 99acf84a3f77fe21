// Package watch monitors history directories and triggers incremental
// ingestion when files settle after a burst of writes.
package watch

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/MikeSquared-Agency/anderson/internal/adapter"
)

// Watcher debounces filesystem events per path: IDE state stores are
// written in bursts, and parsing a half-written file wastes a cycle.
type Watcher struct {
	dirs     []string
	debounce time.Duration
	onChange func(path string)
	logger   *slog.Logger
}

func New(dirs []string, debounce time.Duration, onChange func(path string), logger *slog.Logger) *Watcher {
	return &Watcher{
		dirs:     dirs,
		debounce: debounce,
		onChange: onChange,
		logger:   logger,
	}
}

// Run blocks until ctx is done, invoking onChange for each parseable file
// that has been quiet for the debounce window.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	watched := 0
	for _, dir := range w.dirs {
		if dir == "" {
			continue
		}
		if err := addRecursive(fw, dir); err != nil {
			w.logger.Warn("cannot watch dir", "dir", dir, "error", err)
			continue
		}
		watched++
	}
	if watched == 0 {
		w.logger.Info("no history dirs to watch")
		<-ctx.Done()
		return nil
	}

	pending := map[string]time.Time{}
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case evt, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if evt.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			// New subdirectories get watched as they appear.
			if info, err := os.Stat(evt.Name); err == nil && info.IsDir() {
				if err := addRecursive(fw, evt.Name); err != nil {
					w.logger.Warn("cannot watch new dir", "dir", evt.Name, "error", err)
				}
				continue
			}
			if adapter.Classify(evt.Name) == adapter.KindUnknown {
				continue
			}
			pending[evt.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)

		case <-ticker.C:
			now := time.Now()
			for path, last := range pending {
				if now.Sub(last) < w.debounce {
					continue
				}
				delete(pending, path)
				w.logger.Debug("file settled", "path", path)
				w.onChange(path)
			}
		}
	}
}

func addRecursive(fw *fsnotify.Watcher, root string) error {
	return filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil // skip unreadable entries
		}
		if info.IsDir() {
			return fw.Add(path)
		}
		return nil
	})
}
