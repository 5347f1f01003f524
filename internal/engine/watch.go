package engine

import (
	"context"
	"io/fs"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long Watch waits for further changes before reloading.
const DefaultDebounce = 100 * time.Millisecond

// watchedExtensions are the document types a change to triggers a reload.
var watchedExtensions = map[string]bool{".yaml": true, ".yml": true, ".sql": true}

// Watch reloads whenever a mapper document under Root is written, created,
// removed or renamed, calling onLoad with each outcome. It returns when ctx is
// done. Directories created later are not watched.
func (e *Engine) Watch(ctx context.Context, debounce time.Duration, onLoad func(*Result, error)) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = watcher.Close() }()

	if err := watchDirRecursive(watcher, e.cfg.Root); err != nil {
		return err
	}

	reload := make(chan string, 1)
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			if !watchedExtensions[strings.ToLower(filepath.Ext(event.Name))] {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			name := event.Name
			debounceTimer = time.AfterFunc(debounce, func() {
				select {
				case reload <- name:
				default:
				}
			})

		case name := <-reload:
			e.logger.Debug("file changed, reloading", "file", name)
			res, err := e.Load(ctx)
			if err != nil {
				e.logger.Error("reload failed", "error", err)
			}
			onLoad(res, err)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			e.logger.Error("watcher error", "error", err)
		}
	}
}

// watchDirRecursive adds a directory and all subdirectories to the watcher.
// Hidden directories are skipped.
func watchDirRecursive(watcher *fsnotify.Watcher, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return watcher.Add(path)
	})
}
