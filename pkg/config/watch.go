package config

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/formloft/formloft/pkg/observability"
)

// WatchProviders watches the provider file and invokes onChange with the
// reloaded contents whenever it is rewritten. The provider SET is fixed at
// startup; watching exists so role mapping edits take effect live (callers
// reload their mappers and flush the authorization cache in onChange).
//
// Events are debounced because editors and config-map updates produce
// bursts of writes for one logical change. A reload that fails to parse is
// logged and skipped, keeping the previous mappings in force.
func WatchProviders(ctx context.Context, path string, logger *observability.Logger, onChange func(*Providers)) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory, not the file: atomic renames (the common way
	// configs get rewritten) replace the inode a file watch is bound to.
	dir := filepath.Dir(path)
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return err
	}

	target := filepath.Clean(path)

	go func() {
		defer watcher.Close()

		var debounce *time.Timer
		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != target {
					continue
				}
				if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}

				if debounce != nil {
					debounce.Stop()
				}
				debounce = time.AfterFunc(250*time.Millisecond, func() {
					defer observability.RecoverPanic(logger, "provider reload")

					providers, err := LoadProviders(path)
					if err != nil {
						logger.WithError(err).Warn("provider file reload failed, keeping previous configuration")
						return
					}
					logger.WithField("path", path).Info("provider file reloaded")
					onChange(providers)
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				logger.WithError(err).Warn("provider file watcher error")
			}
		}
	}()

	return nil
}
