package queue

import (
	"container/list"
	"log/slog"
	"sync"
	"time"

	"github.com/nanoclaw/orchestrator/internal/store"
)

// Config carries the tunables the queue's concurrency, retry, and
// idle-timeout logic need.
type Config struct {
	DataDir       string        // IPC root's parent; actors pipe input via ipc.InputDir(DataDir, folder)
	MaxConcurrent int           // global cap on simultaneously live sandboxes, default 5
	MaxRetries    int           // default 5
	BaseRetryWait time.Duration // BASE_RETRY_MS, default 2s
	MaxRetryWait  time.Duration // backoff cap, default 5m
	IdleTimeout   time.Duration // IDLE_TIMEOUT
}

// Manager owns every folder's actor and the global concurrency semaphore.
// It holds no per-folder business state itself — that lives in each
// actor's GroupState, touched only by that actor's own goroutine.
type Manager struct {
	cfg Config
	run RunFunc

	mu      sync.Mutex
	actors  map[string]*actor
	active  int
	waiting *list.List // of *actor
}

// NewManager builds a Manager, ready to accept enqueues immediately.
func NewManager(cfg Config, run RunFunc) *Manager {
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 5
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 5
	}
	if cfg.BaseRetryWait <= 0 {
		cfg.BaseRetryWait = 2 * time.Second
	}
	if cfg.MaxRetryWait <= 0 {
		cfg.MaxRetryWait = 5 * time.Minute
	}
	return &Manager{
		cfg:     cfg,
		run:     run,
		actors:  make(map[string]*actor),
		waiting: list.New(),
	}
}

func (m *Manager) actorFor(folder string) *actor {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.actors[folder]
	if !ok {
		a = newActor(folder, m)
		m.actors[folder] = a
		go a.loop()
	}
	return a
}

// SendMessage attempts to pipe text into folder's already-running,
// non-task sandbox via its IPC input directory. Returns true if a live
// sandbox accepted it; false if the folder has no live sandbox (or is
// running a task container), in which case the caller must fall back to
// EnqueueMessageCheck.
func (m *Manager) SendMessage(folder, text string) bool {
	a := m.actorFor(folder)
	result := make(chan bool, 1)
	a.cmds <- cmdTryPipe{text: text, result: result}
	return <-result
}

// EnqueueMessageCheck enqueues a fresh message job for folder. processor is
// invoked at actual run time (not enqueue time) to re-derive the prompt
// from the store, folding in anything that arrived since enqueue.
func (m *Manager) EnqueueMessageCheck(folder string, processor func() (prompt, targetChatID string), done func(error)) {
	a := m.actorFor(folder)
	a.cmds <- cmdEnqueueMessage{processor: processor, done: done}
}

// EnqueueTask enqueues a scheduled-task run for folder, deduped by taskID:
// a task already queued or running for this folder is a no-op and done is
// never called for the duplicate attempt.
func (m *Manager) EnqueueTask(folder, taskID, prompt string, mode store.ContextMode, targetChatID string, done func(error)) {
	a := m.actorFor(folder)
	a.cmds <- cmdEnqueueTask{taskID: taskID, prompt: prompt, mode: mode, targetChatID: targetChatID, done: done}
}

// Shutdown rejects no new enqueues itself (callers stop enqueueing), but
// signals every live folder to close via the IPC close sentinel and waits
// up to timeout for all sandboxes to exit before forcibly killing
// survivors.
func (m *Manager) Shutdown(timeout time.Duration) {
	m.mu.Lock()
	actors := make([]*actor, 0, len(m.actors))
	for _, a := range m.actors {
		actors = append(actors, a)
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, a := range actors {
		wg.Add(1)
		go func(a *actor) {
			defer wg.Done()
			a.shutdown(timeout)
		}(a)
	}
	done := make(chan struct{})
	go func() { wg.Wait(); close(done) }()
	select {
	case <-done:
	case <-time.After(timeout + 2*time.Second):
		slog.Warn("queue: shutdown timed out waiting for actors to exit")
	}
}

// acquire grants a as the owner of the global concurrency cap if a slot is
// free; otherwise it parks a on the FIFO waiting list and returns false.
// Called only from a's own loop goroutine.
func (m *Manager) acquire(a *actor) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active < m.cfg.MaxConcurrent {
		m.active++
		return true
	}
	m.waiting.PushBack(a)
	return false
}

// release frees a's concurrency slot. If a folder is waiting, the slot is
// handed directly to the oldest waiter (FIFO) via cmdWake without ever
// decrementing active, so no third folder can race in ahead of it.
func (m *Manager) release() {
	m.mu.Lock()
	front := m.waiting.Front()
	var woken *actor
	if front != nil {
		woken = m.waiting.Remove(front).(*actor)
	} else {
		m.active--
	}
	m.mu.Unlock()

	if woken != nil {
		woken.cmds <- cmdWake{}
	}
}
