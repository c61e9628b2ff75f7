// Package queue implements the per-folder group queue: a single-owner
// actor goroutine per folder serializing enqueue, drain, sandbox-exit, and
// retry transitions, plus a global concurrency cap with a FIFO waiting
// list across folders.
package queue

import (
	"time"

	"github.com/nanoclaw/orchestrator/internal/sandbox"
	"github.com/nanoclaw/orchestrator/internal/store"
)

// GroupState is one folder's in-memory queue state. It is read and written
// exclusively by that folder's actor goroutine — no other goroutine ever
// touches these fields, so no lock guards them.
type GroupState struct {
	Folder          string
	Active          bool
	IdleWaiting     bool
	IsTaskContainer bool
	PendingMessages []pendingMessage
	PendingTasks    []pendingTask
	ContainerName   string
	RetryCount      int
	LastActivity    time.Time
}

type pendingMessage struct {
	// processor re-derives the prompt at actual run time rather than at
	// enqueue time, so messages that arrive after this job was queued but
	// before it runs are folded into the same window (§4.6.f).
	processor func() (prompt, targetChatID string)
	done      func(error)
}

type pendingTask struct {
	taskID       string
	prompt       string
	mode         store.ContextMode
	targetChatID string
	done         func(error)
}

// Job is one unit of work handed to RunFunc: either a chat-message run or a
// scheduled-task run, already resolved to a concrete prompt.
type Job struct {
	Folder          string
	Prompt          string
	TaskID          string // non-empty for a task run
	IsScheduledTask bool
	ContextMode     store.ContextMode
	TargetChatID    string
}

// RunFunc launches one sandbox run for job and returns its live Handle.
// Built by internal/runner.New and wired in by cmd/nanoclaw; that layer
// owns the sandbox.Runner, session lookup, and secrets resolution the actor
// itself has no business knowing about.
type RunFunc func(job Job) (*sandbox.Handle, error)
