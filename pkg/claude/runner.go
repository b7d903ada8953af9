package claude

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harun/kurir/pkg/topic"
)

const (
	// DefaultTurnTimeout is the hard wall-clock ceiling per CLI invocation.
	DefaultTurnTimeout = 5 * time.Minute

	// DefaultPermissionTimeout is how long an unresolved permission
	// request waits before it is treated as denied.
	DefaultPermissionTimeout = 5 * time.Minute

	// DefaultTickInterval is the status-tick cadence while the process
	// has produced no output yet.
	DefaultTickInterval = 4 * time.Second

	maxStreamLineSize = 4 * 1024 * 1024
)

// Config holds process runner settings.
type Config struct {
	// CLIPath is the assistant CLI binary. Empty means "claude" on PATH.
	CLIPath string

	// TurnTimeout bounds one CLI invocation. Zero means DefaultTurnTimeout.
	TurnTimeout time.Duration

	// PermissionTimeout bounds how long a turn stays suspended on an
	// unresolved permission request. Zero means DefaultPermissionTimeout.
	PermissionTimeout time.Duration

	// TickInterval is the status-tick cadence. Zero means DefaultTickInterval.
	TickInterval time.Duration

	// AllowedTools are granted on every invocation.
	AllowedTools []string

	// AppendSystemPrompt is passed through to the CLI when set.
	AppendSystemPrompt string

	// SkipPermissions disables the CLI's permission prompts entirely.
	SkipPermissions bool

	// Env is extra environment for the spawned process.
	Env []string
}

func (c *Config) applyDefaults() {
	if c.CLIPath == "" {
		c.CLIPath = "claude"
	}
	if c.TurnTimeout == 0 {
		c.TurnTimeout = DefaultTurnTimeout
	}
	if c.PermissionTimeout == 0 {
		c.PermissionTimeout = DefaultPermissionTimeout
	}
	if c.TickInterval == 0 {
		c.TickInterval = DefaultTickInterval
	}
}

// TurnRequest describes one logical turn to execute.
type TurnRequest struct {
	// SessionKey is the working directory the process runs in.
	SessionKey string

	// Prompt is the input text.
	Prompt string

	// ResumeID continues an existing conversation; empty starts a fresh
	// one and the id is captured from the first completed invocation.
	ResumeID string
}

// Runner executes turns by supervising assistant CLI processes. All
// methods are safe for concurrent use; turns for different sessions run
// independently.
type Runner struct {
	cfg    Config
	logger zerolog.Logger

	mu    sync.Mutex
	turns map[string]*turn
}

type turn struct {
	id     string
	req    TurnRequest
	events chan TurnEvent

	resolution chan bool
	cancelCh   chan struct{}
	cancelOnce sync.Once

	mu       sync.Mutex
	awaiting bool
	proc     *exec.Cmd
}

// NewRunner creates a process runner.
func NewRunner(cfg Config, logger zerolog.Logger) *Runner {
	cfg.applyDefaults()
	return &Runner{
		cfg:    cfg,
		logger: logger,
		turns:  make(map[string]*turn),
	}
}

// Execute starts one logical turn. It returns the turn id and the event
// stream; the stream always ends with exactly one terminal event, after
// which the channel is closed and the turn is forgotten.
func (r *Runner) Execute(ctx context.Context, req TurnRequest) (string, <-chan TurnEvent, error) {
	if req.SessionKey == "" {
		return "", nil, fmt.Errorf("turn request has no session key")
	}
	if strings.TrimSpace(req.Prompt) == "" {
		return "", nil, fmt.Errorf("turn request has no prompt")
	}

	t := &turn{
		id:         uuid.NewString(),
		req:        req,
		events:     make(chan TurnEvent, 16),
		resolution: make(chan bool, 1),
		cancelCh:   make(chan struct{}),
	}

	r.mu.Lock()
	r.turns[t.id] = t
	r.mu.Unlock()

	r.logger.Info().
		Str("turn_id", t.id).
		Str("session", req.SessionKey).
		Bool("resume", req.ResumeID != "").
		Msg("Turn started")

	go r.run(ctx, t)

	return t.id, t.events, nil
}

// ResolvePermission feeds the operator's decision to a turn suspended on
// a permission request. It never blocks; calling it for a turn that is
// not awaiting permission is an error, so each request is resolved by
// exactly one response.
func (r *Runner) ResolvePermission(turnID string, approved bool) error {
	t := r.lookup(turnID)
	if t == nil {
		return fmt.Errorf("unknown turn: %s", turnID)
	}

	t.mu.Lock()
	if !t.awaiting {
		t.mu.Unlock()
		return fmt.Errorf("turn %s is not awaiting permission", turnID)
	}
	t.awaiting = false
	t.mu.Unlock()

	t.resolution <- approved
	return nil
}

// Cancel requests termination of a turn's underlying process. It returns
// false when no such turn is active, which callers report as a no-op.
func (r *Runner) Cancel(turnID string) bool {
	t := r.lookup(turnID)
	if t == nil {
		return false
	}

	t.cancelOnce.Do(func() {
		close(t.cancelCh)
	})

	r.logger.Info().Str("turn_id", turnID).Msg("Turn cancellation requested")

	return true
}

// ActiveTurns returns the ids of turns currently in flight.
func (r *Runner) ActiveTurns() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	ids := make([]string, 0, len(r.turns))
	for id := range r.turns {
		ids = append(ids, id)
	}
	return ids
}

func (r *Runner) lookup(turnID string) *turn {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.turns[turnID]
}

func (r *Runner) forget(turnID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.turns, turnID)
}

// run drives one logical turn to its terminal event. A permission denial
// suspends the loop until resolution, then re-invokes the CLI with the
// granted rule on the resumed conversation.
func (r *Runner) run(ctx context.Context, t *turn) {
	defer r.forget(t.id)
	defer close(t.events)

	allowed := append([]string{}, r.cfg.AllowedTools...)
	resumeID := t.req.ResumeID
	verbIdx := 0

	for {
		out := r.invoke(ctx, t, resumeID, allowed, &verbIdx)
		if out.conversationID != "" {
			resumeID = out.conversationID
		}

		switch {
		case out.cancelled:
			t.emit(TurnEvent{Kind: EventCancelled, Detail: out.detail, ConversationID: resumeID})
			r.logger.Info().Str("turn_id", t.id).Str("reason", out.detail).Msg("Turn cancelled")
			return

		case out.failure != "":
			t.emit(TurnEvent{Kind: EventFailed, Failure: out.failure, Detail: out.detail, ConversationID: resumeID})
			r.logger.Warn().
				Str("turn_id", t.id).
				Str("failure", string(out.failure)).
				Str("detail", out.detail).
				Msg("Turn failed")
			return

		case out.denial != nil:
			perm := *out.denial
			perm.TurnID = t.id

			t.mu.Lock()
			t.awaiting = true
			t.mu.Unlock()

			t.emit(TurnEvent{Kind: EventPermissionRequested, Permission: &perm, ConversationID: resumeID})
			r.logger.Info().
				Str("turn_id", t.id).
				Str("tool", perm.ToolName).
				Str("target", perm.Target).
				Msg("Permission requested")

			approved, reason := t.awaitResolution(r.cfg.PermissionTimeout)
			if reason != "" {
				t.emit(TurnEvent{Kind: EventCancelled, Detail: reason, ConversationID: resumeID})
				return
			}
			if !approved {
				t.emit(TurnEvent{Kind: EventCancelled, Detail: "permission denied", ConversationID: resumeID})
				return
			}

			allowed = append(allowed, perm.AllowRule)

		default:
			answer, hint := topic.ExtractTitleHint(out.answer)
			t.emit(TurnEvent{Kind: EventAnswer, Answer: answer, TitleHint: hint, ConversationID: resumeID})
			r.logger.Info().Str("turn_id", t.id).Msg("Turn completed")
			return
		}
	}
}

// awaitResolution parks the turn until the operator responds, the
// permission timeout elapses, or the turn is cancelled. A non-empty
// reason means the turn ends as Cancelled.
func (t *turn) awaitResolution(timeout time.Duration) (bool, string) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case approved := <-t.resolution:
		return approved, ""
	case <-t.cancelCh:
		t.stopAwaiting()
		return false, "cancelled by operator"
	case <-timer.C:
		if !t.stopAwaiting() {
			// A resolution raced the timer; honor it.
			return <-t.resolution, ""
		}
		return false, "permission request timed out"
	}
}

// stopAwaiting clears the awaiting flag and reports whether it was still
// set, i.e. whether no resolution had won the race.
func (t *turn) stopAwaiting() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	wasAwaiting := t.awaiting
	t.awaiting = false
	return wasAwaiting
}

type invokeOutcome struct {
	answer         string
	conversationID string
	denial         *PermissionRequest
	failure        FailureKind
	detail         string
	cancelled      bool
}

// invoke runs one CLI process to completion and classifies its outcome.
func (r *Runner) invoke(ctx context.Context, t *turn, resumeID string, allowed []string, verbIdx *int) invokeOutcome {
	ictx, cancel := context.WithTimeout(ctx, r.cfg.TurnTimeout)
	defer cancel()

	args := buildArgs(r.cfg, t.req.Prompt, resumeID, allowed)

	cmd := exec.Command(r.cfg.CLIPath, args...)
	cmd.Dir = t.req.SessionKey
	cmd.Env = append(os.Environ(), "KURIR_BRIDGE=1")
	cmd.Env = append(cmd.Env, r.cfg.Env...)
	setProcessGroup(cmd)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return invokeOutcome{failure: FailureProcess, detail: fmt.Sprintf("failed to open stdout: %v", err)}
	}

	if err := cmd.Start(); err != nil {
		return invokeOutcome{failure: FailureProcess, detail: fmt.Sprintf("failed to start %s: %v", r.cfg.CLIPath, err)}
	}

	t.mu.Lock()
	t.proc = cmd
	t.mu.Unlock()
	defer func() {
		t.mu.Lock()
		t.proc = nil
		t.mu.Unlock()
	}()

	lines := make(chan []byte, 32)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), maxStreamLineSize)
		for scanner.Scan() {
			line := bytes.TrimSpace(scanner.Bytes())
			if len(line) == 0 {
				continue
			}
			lines <- append([]byte(nil), line...)
		}
	}()

	ticker := time.NewTicker(r.cfg.TickInterval)
	defer ticker.Stop()

	var out invokeOutcome
	var result *streamEvent
	sawOutput := false

	abort := func() {
		terminateProcess(cmd, r.logger)
		for range lines {
		}
		_ = cmd.Wait()
	}

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				waitErr := cmd.Wait()
				return classifyExit(result, waitErr, stderr.String(), out.conversationID)
			}

			ev, err := parseStreamLine(line)
			if err != nil {
				abort()
				return invokeOutcome{
					failure:        FailureParse,
					detail:         err.Error(),
					conversationID: out.conversationID,
				}
			}

			if ev.SessionID != "" {
				out.conversationID = ev.SessionID
			}
			switch ev.Type {
			case "assistant":
				if ev.assistantText() != "" {
					sawOutput = true
				}
			case "result":
				result = ev
			}

		case <-ticker.C:
			if !sawOutput {
				t.emit(TurnEvent{Kind: EventStatusTick, Status: statusVerbs[*verbIdx%len(statusVerbs)]})
				*verbIdx++
			}

		case <-t.cancelCh:
			abort()
			out.cancelled = true
			out.detail = "cancelled by operator"
			return out

		case <-ictx.Done():
			abort()
			if errors.Is(ictx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
				out.failure = FailureTimeout
				out.detail = fmt.Sprintf("turn exceeded %s", r.cfg.TurnTimeout)
			} else {
				out.cancelled = true
				out.detail = "shutting down"
			}
			return out
		}
	}
}

// classifyExit turns a finished process into an outcome.
func classifyExit(result *streamEvent, waitErr error, stderr, conversationID string) invokeOutcome {
	out := invokeOutcome{conversationID: conversationID}
	if result != nil && result.SessionID != "" {
		out.conversationID = result.SessionID
	}

	if result == nil {
		out.failure = FailureProcess
		if waitErr != nil {
			out.detail = fmt.Sprintf("%v: %s", waitErr, tail(stderr, 400))
		} else {
			out.detail = "process produced no result"
		}
		return out
	}

	if len(result.PermissionDenials) > 0 {
		req := denialToRequest(result.PermissionDenials[0])
		out.denial = &req
		return out
	}

	if result.IsError {
		out.failure = FailureProcess
		out.detail = tail(result.Result, 400)
		return out
	}

	out.answer = result.Result
	return out
}

func buildArgs(cfg Config, prompt, resumeID string, allowed []string) []string {
	args := []string{"--print", "--output-format", "stream-json", "--verbose"}

	if resumeID != "" {
		args = append(args, "--resume", resumeID)
	}
	if len(allowed) > 0 {
		args = append(args, "--allowedTools", strings.Join(allowed, ","))
	}
	if cfg.SkipPermissions {
		args = append(args, "--dangerously-skip-permissions")
	}
	if cfg.AppendSystemPrompt != "" {
		args = append(args, "--append-system-prompt", cfg.AppendSystemPrompt)
	}

	return append(args, prompt)
}

func (t *turn) emit(ev TurnEvent) {
	t.events <- ev
}

func tail(s string, max int) string {
	s = strings.TrimSpace(s)
	if len(s) <= max {
		return s
	}
	return "…" + s[len(s)-max:]
}
