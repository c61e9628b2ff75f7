package queue

import (
	"errors"
	"log/slog"
	"time"

	"github.com/nanoclaw/orchestrator/internal/ipc"
	"github.com/nanoclaw/orchestrator/internal/sandbox"
	"github.com/nanoclaw/orchestrator/internal/store"
	"github.com/nanoclaw/orchestrator/pkg/protocol"
)

type cmdEnqueueMessage struct {
	processor func() (prompt, targetChatID string)
	done      func(error)
}

type cmdEnqueueTask struct {
	taskID, prompt, targetChatID string
	mode                         store.ContextMode
	done                         func(error)
}

type cmdTryPipe struct {
	text   string
	result chan<- bool
}

type cmdProcessExit struct {
	generation int
	result     sandbox.Result
}

type cmdOutputSeen struct{ generation int }

type cmdWake struct{}

type cmdShutdown struct {
	deadline time.Time
	done     chan<- struct{}
}

// errShuttingDown is handed to the done callback of every job still
// pending when Shutdown abandons a folder's queue.
var errShuttingDown = errors.New("queue: folder shutting down")

// actor owns one folder's GroupState exclusively: every field below is
// read and written only from loop(), under a single-owner discipline — the
// main orchestrator loop, the scheduler, and the IPC watcher reach a folder
// only by sending it a command, never by touching its state directly.
type actor struct {
	folder string
	mgr    *Manager
	cmds   chan any

	state GroupState

	generation int // bumped each run; lets a superseded handle's stray signals be ignored
	handle     *sandbox.Handle
	hasSlot    bool // true while this actor holds the global concurrency slot

	currentTaskID string
	currentDone   func(error)
	currentJob    Job

	shuttingDown bool
	shutdownAck  chan<- struct{}

	idleTimer *time.Timer
}

func newActor(folder string, mgr *Manager) *actor {
	return &actor{
		folder: folder,
		mgr:    mgr,
		cmds:   make(chan any, 64),
		state:  GroupState{Folder: folder},
	}
}

func (a *actor) loop() {
	for cmd := range a.cmds {
		switch c := cmd.(type) {
		case cmdEnqueueMessage:
			a.state.PendingMessages = append(a.state.PendingMessages, pendingMessage{processor: c.processor, done: c.done})
			a.maybeStart()

		case cmdEnqueueTask:
			if a.taskInFlight(c.taskID) {
				break // dedupe: already queued or running
			}
			a.state.PendingTasks = append(a.state.PendingTasks, pendingTask{
				taskID: c.taskID, prompt: c.prompt, mode: c.mode, targetChatID: c.targetChatID, done: c.done,
			})
			a.maybeStart()

		case cmdTryPipe:
			c.result <- a.tryPipe(c.text)

		case cmdWake:
			a.hasSlot = true
			a.startNext()

		case cmdOutputSeen:
			if c.generation != a.generation {
				break
			}
			a.state.LastActivity = time.Now()
			a.state.IdleWaiting = true
			a.resetIdleTimer()

		case cmdProcessExit:
			if c.generation != a.generation {
				break
			}
			a.stopIdleTimer()
			a.onExit(c.result)
			a.maybeFinishShutdown()

		case cmdShutdown:
			a.beginShutdown(c)
		}
	}
}

func (a *actor) tryPipe(text string) bool {
	if !a.state.Active || !a.state.IdleWaiting || a.state.IsTaskContainer {
		return false
	}
	err := ipc.WriteFrame(ipc.InputDir(a.mgr.cfg.DataDir, a.folder), protocol.InputMessageFrame{
		Type: protocol.FrameMessage, Text: text,
	})
	if err != nil {
		slog.Error("queue: pipe input failed", "folder", a.folder, "error", err)
		return false
	}
	a.state.IdleWaiting = false
	return true
}

func (a *actor) resetIdleTimer() {
	a.stopIdleTimer()
	if a.mgr.cfg.IdleTimeout <= 0 {
		return
	}
	gen := a.generation
	a.idleTimer = time.AfterFunc(a.mgr.cfg.IdleTimeout, func() {
		a.cmds <- cmdProcessExit{generation: gen, result: sandbox.Result{ExitKind: sandbox.ExitTimeout}}
	})
}

func (a *actor) stopIdleTimer() {
	if a.idleTimer != nil {
		a.idleTimer.Stop()
		a.idleTimer = nil
	}
}

func (a *actor) taskInFlight(taskID string) bool {
	for _, t := range a.state.PendingTasks {
		if t.taskID == taskID {
			return true
		}
	}
	return a.state.Active && a.state.IsTaskContainer && a.currentTaskID == taskID
}

func (a *actor) maybeStart() {
	if a.state.Active || a.shuttingDown {
		return
	}
	if a.hasSlot {
		a.startNext()
		return
	}
	if a.mgr.acquire(a) {
		a.hasSlot = true
		a.startNext()
	}
	// else: parked on Manager's FIFO waiting list; cmdWake arrives later
}

// startNext pops the next job — tasks take priority over messages within a
// folder (§4.3) — and launches it. The caller must already hold the global
// concurrency slot (a.hasSlot == true).
func (a *actor) startNext() {
	if a.state.Active || a.shuttingDown {
		return
	}
	if len(a.state.PendingTasks) == 0 && len(a.state.PendingMessages) == 0 {
		a.mgr.release()
		a.hasSlot = false
		return
	}

	a.generation++
	gen := a.generation
	a.state.Active = true
	a.state.IdleWaiting = false
	a.state.LastActivity = time.Now()

	var job Job
	if len(a.state.PendingTasks) > 0 {
		t := a.state.PendingTasks[0]
		a.state.PendingTasks = a.state.PendingTasks[1:]
		a.state.IsTaskContainer = true
		a.currentTaskID = t.taskID
		a.currentDone = t.done
		job = Job{Folder: a.folder, Prompt: t.prompt, TaskID: t.taskID, IsScheduledTask: true, ContextMode: t.mode, TargetChatID: t.targetChatID}
	} else {
		m := a.state.PendingMessages[0]
		a.state.PendingMessages = a.state.PendingMessages[1:]
		a.state.IsTaskContainer = false
		a.currentTaskID = ""
		a.currentDone = m.done
		prompt, targetChatID := m.processor()
		job = Job{Folder: a.folder, Prompt: prompt, TargetChatID: targetChatID}
	}
	a.currentJob = job

	handle, err := a.mgr.run(job)
	if err != nil {
		slog.Error("queue: start run failed", "folder", a.folder, "error", err)
		a.onExit(sandbox.Result{ExitKind: sandbox.ExitError, Err: err})
		a.maybeFinishShutdown()
		return
	}
	a.handle = handle
	go a.watch(gen, handle)
}

func (a *actor) watch(gen int, h *sandbox.Handle) {
	for {
		select {
		case _, ok := <-h.LastOutputAt():
			if !ok {
				return
			}
			a.cmds <- cmdOutputSeen{generation: gen}
		case result, ok := <-h.Done():
			if !ok {
				return
			}
			a.cmds <- cmdProcessExit{generation: gen, result: result}
			return
		}
	}
}

// onExit finalizes a just-ended run: resets state, notifies the caller at
// most once for the job's final outcome (not once per retry attempt), and
// either drains the next pending job, schedules a backoff retry, or frees
// the concurrency slot.
func (a *actor) onExit(result sandbox.Result) {
	a.handle = nil
	a.state.Active = false
	a.state.IdleWaiting = false

	done := a.currentDone
	job := a.currentJob
	a.currentDone = nil
	a.currentTaskID = ""

	success := result.ExitKind == sandbox.ExitSuccess || result.ExitKind == sandbox.ExitCloseSentinel
	if success {
		a.state.RetryCount = 0
		if done != nil {
			done(nil)
		}
		a.drainOrRelease()
		return
	}

	if a.shuttingDown {
		if done != nil {
			done(result.Err)
		}
		a.drainOrRelease()
		return
	}

	a.state.RetryCount++
	if a.state.RetryCount > a.mgr.cfg.MaxRetries {
		slog.Warn("queue: max retries exceeded, parking folder", "folder", a.folder, "retries", a.state.RetryCount)
		a.state.RetryCount = 0
		if done != nil {
			done(result.Err)
		}
		a.drainOrRelease()
		return
	}

	delay := backoffDelay(a.mgr.cfg.BaseRetryWait, a.mgr.cfg.MaxRetryWait, a.state.RetryCount)
	time.AfterFunc(delay, func() {
		if job.TaskID != "" {
			a.cmds <- cmdEnqueueTask{taskID: job.TaskID, prompt: job.Prompt, targetChatID: job.TargetChatID, mode: job.ContextMode, done: done}
		} else {
			a.cmds <- cmdEnqueueMessage{processor: func() (string, string) { return job.Prompt, job.TargetChatID }, done: done}
		}
	})
	// Parked: no slot, no pending work for this folder until the backoff
	// timer above re-enqueues the failed job (or a fresh one arrives).
	a.mgr.release()
	a.hasSlot = false
}

// drainOrRelease scans pending tasks then pending messages (§4.3 Drain):
// if work remains, re-enter Active immediately (the slot stays held);
// otherwise free the slot so Manager.release can wake the next waiter. A
// folder mid-shutdown never restarts — any pending work is abandoned with
// errShuttingDown instead.
func (a *actor) drainOrRelease() {
	if a.shuttingDown {
		a.abandonPending()
		a.mgr.release()
		a.hasSlot = false
		return
	}
	if len(a.state.PendingTasks) > 0 || len(a.state.PendingMessages) > 0 {
		a.startNext()
		return
	}
	a.mgr.release()
	a.hasSlot = false
}

func (a *actor) abandonPending() {
	for _, t := range a.state.PendingTasks {
		if t.done != nil {
			t.done(errShuttingDown)
		}
	}
	a.state.PendingTasks = nil
	for _, m := range a.state.PendingMessages {
		if m.done != nil {
			m.done(errShuttingDown)
		}
	}
	a.state.PendingMessages = nil
}

func (a *actor) beginShutdown(c cmdShutdown) {
	a.shuttingDown = true
	a.shutdownAck = c.done
	if a.handle == nil {
		close(c.done)
		return
	}
	_ = ipc.WriteCloseSentinel(ipc.InputDir(a.mgr.cfg.DataDir, a.folder))
	wait := time.Until(c.deadline)
	if wait < 0 {
		wait = 0
	}
	h := a.handle
	time.AfterFunc(wait, func() { _ = h.Kill() })
}

func (a *actor) maybeFinishShutdown() {
	if a.shuttingDown && a.handle == nil && a.shutdownAck != nil {
		ack := a.shutdownAck
		a.shutdownAck = nil
		close(ack)
	}
}

func (a *actor) shutdown(timeout time.Duration) {
	done := make(chan struct{})
	a.cmds <- cmdShutdown{deadline: time.Now().Add(timeout), done: done}
	<-done
}
