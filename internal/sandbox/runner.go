// Package sandbox launches and supervises the per-folder agent container:
// building the `docker run` invocation with hardening defaults, streaming
// the initial prompt over stdin, and parsing the marker-framed JSON records
// the agent writes to stdout.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"go.opentelemetry.io/otel/trace"
	nooptrace "go.opentelemetry.io/otel/trace/noop"

	"github.com/nanoclaw/orchestrator/internal/store"
	"github.com/nanoclaw/orchestrator/internal/tracing"
	"github.com/nanoclaw/orchestrator/pkg/protocol"
)

// ExitKind classifies how a sandbox run ended, for SandboxRunRecord and
// the queue actor's retry decision.
type ExitKind string

const (
	ExitSuccess      ExitKind = "success"
	ExitError        ExitKind = "error"
	ExitTimeout      ExitKind = "timeout"
	ExitCloseSentinel ExitKind = "close_sentinel"
)

// RunRequest describes one sandbox invocation.
type RunRequest struct {
	Folder          string
	ChatID          string
	Prompt          string
	SessionID       string
	IsMain          bool
	IsScheduledTask bool
	AssistantName   string
	Secrets         map[string]string
	Image           string
	ContainerConfig store.ContainerConfig
	Timeout         time.Duration
}

// Result is what a completed (or killed) run reports back to the caller.
type Result struct {
	ExitKind     ExitKind
	NewSessionID string
	Err          error
}

// Runner launches sandbox containers as host subprocesses via the `docker`
// CLI, the same exec.CommandContext shape the orchestrator already uses to
// run validation hooks, generalized to a long-lived process with framed
// stdout instead of a short pass/fail check.
type Runner struct {
	DockerBin string        // defaults to "docker" when empty
	Tracer    trace.Tracer  // defaults to a no-op tracer when nil
}

func (r *Runner) tracer() trace.Tracer {
	if r.Tracer != nil {
		return r.Tracer
	}
	return nooptrace.NewTracerProvider().Tracer("nanoclaw")
}

// Handle is a live sandbox run. OnOutput is invoked for every framed record
// with a non-nil Result, synchronously on the reader goroutine — callers
// that need to publish to the bus must not block for long.
type Handle struct {
	cmd      *exec.Cmd
	done     chan Result
	lastSeen chan struct{} // signaled whenever a new frame is read
}

// Start launches the container, writes req's stdin payload, and begins
// reading stdout in the background. onOutput is called for each frame
// with a non-null result, success or error, with <internal> spans already
// stripped;
// onSessionID is called at most once, the first time a frame carries a new
// session id.
func (r *Runner) Start(ctx context.Context, req RunRequest, onOutput func(text string), onSessionID func(sessionID string)) (*Handle, error) {
	containerName, err := sanitizeContainerName(req.Folder)
	if err != nil {
		return nil, err
	}
	bin := r.DockerBin
	if bin == "" {
		bin = "docker"
	}

	timeout := req.Timeout
	if cc := req.ContainerConfig.TimeoutOverride; cc != "" {
		if d, err := time.ParseDuration(cc); err == nil {
			timeout = d
		}
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)

	runCtx, span := tracing.StartSpan(runCtx, r.tracer(), "sandbox.run",
		tracing.AttrFolder.String(req.Folder), tracing.AttrChatID.String(req.ChatID))

	args := dockerRunArgs(req.Image, containerName, req.ContainerConfig.Mounts)
	cmd := exec.CommandContext(runCtx, bin, args...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		span.End()
		return nil, fmt.Errorf("sandbox: open stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		span.End()
		return nil, fmt.Errorf("sandbox: open stdout pipe: %w", err)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		cancel()
		span.End()
		return nil, fmt.Errorf("sandbox: start container: %w", err)
	}

	payload := protocol.StdinPayload{
		Prompt:          req.Prompt,
		SessionID:       req.SessionID,
		Folder:          req.Folder,
		ChatID:          req.ChatID,
		IsMain:          req.IsMain,
		IsScheduledTask: req.IsScheduledTask,
		AssistantName:   req.AssistantName,
		Secrets:         req.Secrets,
	}
	enc, err := json.Marshal(payload)
	if err != nil {
		cancel()
		span.End()
		return nil, fmt.Errorf("sandbox: encode stdin payload: %w", err)
	}
	if _, err := stdin.Write(enc); err != nil {
		slog.Warn("sandbox: write stdin failed", "folder", req.Folder, "error", err)
	}
	if err := stdin.Close(); err != nil {
		slog.Warn("sandbox: close stdin failed", "folder", req.Folder, "error", err)
	}

	h := &Handle{
		cmd:      cmd,
		done:     make(chan Result, 1),
		lastSeen: make(chan struct{}, 1),
	}

	go h.readLoop(runCtx, cancel, span, stdout, &stderr, req.Folder, onOutput, onSessionID)

	return h, nil
}

func (h *Handle) readLoop(ctx context.Context, cancel context.CancelFunc, span trace.Span, stdout io.Reader, stderr *bytes.Buffer, folder string, onOutput func(string), onSessionID func(string)) {
	defer cancel()
	defer span.End()

	finish := func(r Result) {
		span.SetAttributes(tracing.AttrExitKind.String(string(r.ExitKind)))
		h.done <- r
	}

	scanner := newFrameScanner(stdout)
	var newSessionID string
	var sawError string
	var sawSuccess bool

	for {
		rec, err := scanner.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			_ = h.cmd.Wait()
			finish(Result{ExitKind: ExitError, Err: err})
			return
		}

		select {
		case h.lastSeen <- struct{}{}:
		default:
		}

		if rec.NewSessionID != "" && newSessionID == "" {
			newSessionID = rec.NewSessionID
			onSessionID(newSessionID)
		}
		switch rec.Status {
		case protocol.StatusSuccess:
			sawSuccess = true
			if rec.Result != nil {
				onOutput(stripInternal(*rec.Result))
			}
		case protocol.StatusError:
			sawError = rec.Error
			if rec.Result != nil {
				onOutput(stripInternal(*rec.Result))
			}
		}
	}

	waitErr := h.cmd.Wait()

	switch {
	case ctx.Err() == context.DeadlineExceeded:
		finish(Result{ExitKind: ExitTimeout, NewSessionID: newSessionID, Err: fmt.Errorf("sandbox: container timed out")})
	case sawError != "":
		finish(Result{ExitKind: ExitError, NewSessionID: newSessionID, Err: fmt.Errorf("sandbox: agent reported error: %s", sawError)})
	case waitErr != nil:
		msg := ScrubCredentials(stderr.String())
		finish(Result{ExitKind: ExitError, NewSessionID: newSessionID, Err: fmt.Errorf("sandbox: container exited: %w (stderr: %s)", waitErr, msg)})
	case sawSuccess:
		finish(Result{ExitKind: ExitSuccess, NewSessionID: newSessionID})
	default:
		finish(Result{ExitKind: ExitCloseSentinel, NewSessionID: newSessionID})
	}
}

// Done returns the channel the final Result is delivered on.
func (h *Handle) Done() <-chan Result { return h.done }

// LastOutputAt returns a channel that receives a value each time a new
// output frame is read, for the caller's idle-timeout bookkeeping.
func (h *Handle) LastOutputAt() <-chan struct{} { return h.lastSeen }

// Kill forcibly terminates the sandbox process, used for both idle-timeout
// expiry and cooperative shutdown.
func (h *Handle) Kill() error {
	if h.cmd.Process == nil {
		return nil
	}
	return h.cmd.Process.Kill()
}
