package config

import (
	"context"
	"log/slog"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
)

// ReloadEvent is emitted whenever config.yaml changes on disk.
type ReloadEvent struct {
	Path string
	Op   fsnotify.Op
}

// Watcher watches the config file for edits and emits a bounded stream of
// ReloadEvent. Consumers decide whether and how to apply a reload; the
// watcher itself never re-parses or mutates a live Config.
type Watcher struct {
	dataDir string
	events  chan ReloadEvent
}

// NewWatcher builds a Watcher for the config.yaml under dataDir.
func NewWatcher(dataDir string) *Watcher {
	return &Watcher{
		dataDir: dataDir,
		events:  make(chan ReloadEvent, 8),
	}
}

// Events returns the channel reload notifications arrive on. It is closed
// when ctx is canceled.
func (w *Watcher) Events() <-chan ReloadEvent {
	return w.events
}

// Start begins watching in the background. It returns once the underlying
// fsnotify watcher is armed; delivery happens on a separate goroutine.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	path := filepath.Join(w.dataDir, "config.yaml")
	if err := fsw.Add(path); err != nil {
		_ = fsw.Close()
		return err
	}

	go func() {
		defer fsw.Close()
		defer close(w.events)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
					continue
				}
				select {
				case w.events <- ReloadEvent{Path: ev.Name, Op: ev.Op}:
				default:
					slog.Warn("config watcher: reload event dropped, channel full")
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				slog.Error("config watcher error", "error", err)
			}
		}
	}()
	return nil
}
