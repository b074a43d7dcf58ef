package config

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

// Watch reloads path whenever it is rewritten and hands each valid new
// configuration to apply. The parent directory is watched rather than the
// file itself, since editors typically replace files on save. Invalid
// content is logged and skipped, keeping the last good configuration
// active. The returned stop function is safe to call more than once.
func Watch(path string, logger *zap.Logger, apply func(*Config)) (func(), error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating config watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("watching config directory: %w", err)
	}

	base := filepath.Base(path)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-done:
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != base {
					continue
				}
				if !ev.Op.Has(fsnotify.Write) && !ev.Op.Has(fsnotify.Create) {
					continue
				}
				cfg, err := Load(path)
				if err != nil {
					logger.Warn("ignoring invalid config reload", zap.Error(err))
					continue
				}
				logger.Info("configuration reloaded", zap.String("path", path))
				apply(cfg)
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				logger.Error("config watcher error", zap.Error(err))
			}
		}
	}()

	var once sync.Once
	stop := func() {
		once.Do(func() {
			close(done)
			fsw.Close()
		})
	}
	return stop, nil
}
