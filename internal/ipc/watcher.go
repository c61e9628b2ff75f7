package ipc

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Scan is one folder's pending work: frames claimed from its messages/ and
// tasks/ directories since the last scan.
type Scan struct {
	Folder   string
	Messages []ClaimedFile
	Tasks    []ClaimedFile
}

// Watcher polls every registered folder's messages/ and tasks/ directories
// on a fixed interval and emits a Scan whenever either directory yielded a
// claimed frame. An fsnotify watcher on the same directories is armed
// alongside the poll loop purely to shrink latency between a frame landing
// and its scan — it only ever triggers an out-of-cycle poll of the folder
// that changed, never a path the poll loop wouldn't have covered on its own
// next tick. Polling is what guarantees delivery; fsnotify is optional.
type Watcher struct {
	dataDir  string
	interval time.Duration
	folders  map[string]bool

	scans chan Scan
	nudge chan string
	wg    sync.WaitGroup
}

// NewWatcher builds a Watcher polling dataDir's ipc tree every interval.
func NewWatcher(dataDir string, interval time.Duration) *Watcher {
	return &Watcher{
		dataDir:  dataDir,
		interval: interval,
		folders:  make(map[string]bool),
		scans:    make(chan Scan, 32),
		nudge:    make(chan string, 32),
	}
}

// AddFolder registers a folder for polling and, if possible, for an
// fsnotify nudge. Call it before Start: the folder set is not locked, and
// fsnotify watches are armed only for folders registered when Start runs.
func (w *Watcher) AddFolder(folder string) {
	w.folders[folder] = true
}

// Scans returns the channel Scan values are delivered on. Closed when ctx
// is canceled.
func (w *Watcher) Scans() <-chan Scan { return w.scans }

// Start begins the poll loop and, best-effort, an fsnotify watch over every
// registered folder's messages/ and tasks/ directories.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		slog.Warn("ipc watcher: fsnotify unavailable, polling only", "error", err)
		fsw = nil
	} else {
		for folder := range w.folders {
			if err := fsw.Add(MessagesDir(w.dataDir, folder)); err != nil {
				slog.Debug("ipc watcher: fsnotify add failed", "folder", folder, "dir", "messages", "error", err)
			}
			if err := fsw.Add(TasksDir(w.dataDir, folder)); err != nil {
				slog.Debug("ipc watcher: fsnotify add failed", "folder", folder, "dir", "tasks", "error", err)
			}
		}
	}

	if fsw != nil {
		go w.watchFsnotify(ctx, fsw)
	}
	go w.pollLoop(ctx)
	return nil
}

func (w *Watcher) watchFsnotify(ctx context.Context, fsw *fsnotify.Watcher) {
	defer fsw.Close()
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			folder := folderFromPath(ev.Name)
			if folder == "" {
				continue
			}
			select {
			case w.nudge <- folder:
			default:
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			slog.Debug("ipc watcher: fsnotify error", "error", err)
		}
	}
}

func (w *Watcher) pollLoop(ctx context.Context) {
	defer func() {
		w.wg.Wait()
		close(w.scans)
	}()
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.scanAll(ctx)
		case folder := <-w.nudge:
			w.scanFolder(ctx, folder)
		}
	}
}

func (w *Watcher) scanAll(ctx context.Context) {
	for folder := range w.folders {
		w.scanFolder(ctx, folder)
	}
}

// scanFolder claims pending frames and hands them to the scans channel. The
// frames are already moved into claimed/ by Claim before this runs, so a
// full scans buffer must never drop the Scan on the floor — that would
// leave the claimed files neither processed nor quarantined. A full buffer
// instead falls back to a blocking send on a tracked goroutine, which
// naturally applies backpressure to whichever folder is bursting without
// stalling the poll loop's other folders.
func (w *Watcher) scanFolder(ctx context.Context, folder string) {
	messages, err := Claim(MessagesDir(w.dataDir, folder))
	if err != nil {
		slog.Error("ipc watcher: claim messages failed", "folder", folder, "error", err)
	}
	tasks, err := Claim(TasksDir(w.dataDir, folder))
	if err != nil {
		slog.Error("ipc watcher: claim tasks failed", "folder", folder, "error", err)
	}
	if len(messages) == 0 && len(tasks) == 0 {
		return
	}
	scan := Scan{Folder: folder, Messages: messages, Tasks: tasks}
	select {
	case w.scans <- scan:
		return
	default:
	}
	slog.Warn("ipc watcher: scan channel full, deferring delivery", "folder", folder)
	w.wg.Add(1)
	go w.deliverScan(ctx, scan)
}

// deliverScan blocks until scan is accepted or ctx is canceled. Only called
// once the non-blocking send in scanFolder has already failed.
func (w *Watcher) deliverScan(ctx context.Context, scan Scan) {
	defer w.wg.Done()
	select {
	case w.scans <- scan:
	case <-ctx.Done():
	}
}

// folderFromPath extracts the folder component from a path under
// <dataDir>/ipc/<folder>/{messages,tasks}/..., or "" if it doesn't match
// that shape. It walks up two directories from the changed entry rather
// than parsing dataDir back out, so it works regardless of how dataDir was
// expressed to fsnotify.Add.
func folderFromPath(path string) string {
	dir := filepath.Dir(path) // .../<folder>/messages or .../<folder>/tasks
	return filepath.Base(filepath.Dir(dir))
}
