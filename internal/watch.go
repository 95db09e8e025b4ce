package internal

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	pkgconfig "github.com/starford/pinenote/pkg/config"
)

const reloadDebounce = 200 * time.Millisecond

// watchConfig re-reads the config file whenever it changes and applies the
// new log level. Other settings need a restart. The parent directory is
// watched because editors often replace the file instead of writing it.
func watchConfig(ctx context.Context, path string, level *slog.LevelVar, logger *slog.Logger) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	target := filepath.Clean(path)
	if err := w.Add(filepath.Dir(target)); err != nil {
		return err
	}

	logger.Info("config watcher: started", slog.String("path", target))

	var reloadTimer *time.Timer
	var reloadCh <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if reloadTimer != nil {
				reloadTimer.Stop()
			}
			logger.Info("config watcher: stopped")
			return nil

		case <-reloadCh:
			reloadLogLevel(target, level, logger)

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target || ev.Op&(fsnotify.Create|fsnotify.Write) == 0 {
				continue
			}
			if reloadTimer == nil {
				reloadTimer = time.NewTimer(reloadDebounce)
				reloadCh = reloadTimer.C
			} else {
				reloadTimer.Reset(reloadDebounce)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			logger.Error("config watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func reloadLogLevel(path string, level *slog.LevelVar, logger *slog.Logger) {
	cfg := NewDefaultConfig()
	if err := pkgconfig.Load(path, cfg); err != nil {
		logger.Warn("config watcher: reload failed, keeping current settings",
			slog.String("error", err.Error()))
		return
	}
	if cfg.App.LogLevel == level.Level() {
		return
	}
	logger.Info("config watcher: log level changed",
		slog.String("from", level.Level().String()),
		slog.String("to", cfg.App.LogLevel.String()))
	level.Set(cfg.App.LogLevel)
}
