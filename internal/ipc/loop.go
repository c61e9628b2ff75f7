package ipc

import (
	"context"
	"log/slog"
)

// Consume drains scans (normally Watcher.Scans()) until the channel is
// closed, dispatching each claimed frame through d and quarantining any
// frame whose dispatch fails rather than silently dropping it.
func (d *Dispatcher) Consume(ctx context.Context, dataDir string, scans <-chan Scan) {
	for scan := range scans {
		for _, f := range scan.Messages {
			d.handle(ctx, dataDir, scan.Folder, MessagesDir(dataDir, scan.Folder), f, d.DispatchMessage)
		}
		for _, f := range scan.Tasks {
			d.handle(ctx, dataDir, scan.Folder, TasksDir(dataDir, scan.Folder), f, d.DispatchTask)
		}
	}
}

func (d *Dispatcher) handle(ctx context.Context, dataDir, folder, baseDir string, f ClaimedFile, dispatch func(context.Context, string, []byte) error) {
	claimDir := ClaimDir(baseDir)
	if f.Name == CloseSentinel {
		_ = Discard(claimDir, f.Name)
		return
	}
	if err := dispatch(ctx, folder, f.Data); err != nil {
		slog.Error("ipc: dispatch frame failed, quarantining", "folder", folder, "frame", f.Name, "error", err)
		if qerr := Quarantine(dataDir, folder, claimDir, f.Name); qerr != nil {
			slog.Error("ipc: quarantine failed", "folder", folder, "frame", f.Name, "error", qerr)
		}
		return
	}
	if err := Discard(claimDir, f.Name); err != nil {
		slog.Error("ipc: discard frame failed", "folder", folder, "frame", f.Name, "error", err)
	}
}
