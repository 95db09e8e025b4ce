package internal

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, path, level string) {
	t.Helper()
	data := []byte("app:\n  log_level: " + level + "\n  http:\n    port: 8080\n")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestWatchConfig_AppliesLogLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	writeConfig(t, path, "info")

	var level slog.LevelVar
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- watchConfig(ctx, path, &level, logger) }()

	// The first write may land before the watcher is registered, so retry a
	// few times, leaving room for the debounce between writes.
	reloaded := false
	for attempt := 0; attempt < 5 && !reloaded; attempt++ {
		writeConfig(t, path, "debug")
		wait := time.Now().Add(700 * time.Millisecond)
		for time.Now().Before(wait) {
			if level.Level() == slog.LevelDebug {
				reloaded = true
				break
			}
			time.Sleep(20 * time.Millisecond)
		}
	}
	if !reloaded {
		cancel()
		t.Fatalf("log level not reloaded, still %s", level.Level())
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("watchConfig: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("watcher did not stop")
	}
}

func TestReloadLogLevel_InvalidFileKeepsLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("app: [not, a, map"), 0o644); err != nil {
		t.Fatal(err)
	}
	var level slog.LevelVar
	level.Set(slog.LevelWarn)
	reloadLogLevel(path, &level, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if level.Level() != slog.LevelWarn {
		t.Errorf("level = %s, want WARN", level.Level())
	}
}
