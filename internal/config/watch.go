package config

import (
	"context"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/tchow-twistedxcom/remote-terminal-mcp/internal/logging"
)

// WatchExternalEdits watches the store's backing file for changes made
// outside this process (a user hand-editing config.yaml in another
// terminal) and logs them. It is purely informational: the Store never
// caches, so an externally-edited file is picked up on the very next
// Load/Get/List call regardless of whether anything is watching it. This
// exists so operators running with REMOTE_TERMINAL_DEBUG can see in the
// log when and why the registry's contents changed underneath them.
//
// It blocks until ctx is done or the watcher fails to start, so callers
// run it in its own goroutine.
func (s *Store) WatchExternalEdits(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if ev.Name != s.path {
				continue
			}
			if ev.Has(fsnotify.Write) || ev.Has(fsnotify.Rename) || ev.Has(fsnotify.Create) {
				storeLog.Info("config_file_changed_externally", "path", ev.Name, "op", ev.Op.String())
			}
		case watchErr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			storeLog.Warn("config_watch_error", "error", watchErr.Error())
		}
	}
}
