package ipc

import (
	"fmt"

	"github.com/nanoclaw/orchestrator/pkg/protocol"
)

// ErrUnauthorized is returned when a frame's source folder is not
// permitted to perform the command it carries; the caller quarantines the
// frame and logs a warning rather than acting on it.
type ErrUnauthorized struct {
	Folder string
	Reason string
}

func (e *ErrUnauthorized) Error() string {
	return fmt.Sprintf("ipc: folder %q not authorized: %s", e.Folder, e.Reason)
}

// Authorize checks a task-command frame's source folder against the
// authorization rules: the main folder may target any folder and call the
// registration commands; any other folder may only act on tasks scoped to
// itself, and may never call register_group or refresh_groups.
func Authorize(sourceFolder, mainFolder string, frame protocol.TaskCommandFrame, taskFolder string) error {
	if sourceFolder == mainFolder {
		return nil
	}

	switch frame.Type {
	case protocol.FrameRefreshGroups, protocol.FrameRegisterGroup:
		return &ErrUnauthorized{Folder: sourceFolder, Reason: string(frame.Type) + " requires the main folder"}
	case protocol.FrameScheduleTask:
		return nil // schedule_task's folder is implicitly the source folder
	case protocol.FramePauseTask, protocol.FrameResumeTask, protocol.FrameCancelTask:
		if taskFolder != sourceFolder {
			return &ErrUnauthorized{Folder: sourceFolder, Reason: fmt.Sprintf("task belongs to folder %q", taskFolder)}
		}
		return nil
	}
	return &ErrUnauthorized{Folder: sourceFolder, Reason: "unknown frame type " + string(frame.Type)}
}
