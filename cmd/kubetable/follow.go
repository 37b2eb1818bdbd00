package main

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// defaultDebounce collapses the burst of events an editor save produces.
const defaultDebounce = 200 * time.Millisecond

// watchFiles calls onChange with the path of a watched file after it was
// written or replaced and then left alone for debounce. It watches the
// parent directories, since editors often save by renaming a temporary file
// over the original.
//
// watchFiles returns once the watcher is set up; it stops when ctx ends.
func watchFiles(ctx context.Context, paths []string, debounce time.Duration, logger *slog.Logger, onChange func(path string)) error {
	if debounce <= 0 {
		debounce = defaultDebounce
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create file watcher: %w", err)
	}

	targets := make(map[string]string, len(paths))
	dirs := make(map[string]struct{})
	for _, p := range paths {
		abs, err := filepath.Abs(p)
		if err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to resolve %s: %w", p, err)
		}
		targets[abs] = p

		dir := filepath.Dir(abs)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if err := watcher.Add(dir); err != nil {
			_ = watcher.Close()
			return fmt.Errorf("failed to watch %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	var (
		mu     sync.Mutex
		timers = make(map[string]*time.Timer)
	)
	schedule := func(abs string) {
		mu.Lock()
		defer mu.Unlock()
		if t, ok := timers[abs]; ok {
			t.Reset(debounce)
			return
		}
		timers[abs] = time.AfterFunc(debounce, func() {
			mu.Lock()
			delete(timers, abs)
			mu.Unlock()
			if ctx.Err() != nil {
				return
			}
			logger.Info("file changed", "path", targets[abs])
			onChange(targets[abs])
		})
	}

	go func() {
		defer func() {
			_ = watcher.Close()
			mu.Lock()
			for _, t := range timers {
				t.Stop()
			}
			mu.Unlock()
		}()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				abs, err := filepath.Abs(event.Name)
				if err != nil {
					continue
				}
				if _, ok := targets[abs]; ok {
					logger.Debug("fsnotify event", "path", event.Name, "op", event.Op.String())
					schedule(abs)
				}

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.Error("file watcher error", "error", err)

			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}
