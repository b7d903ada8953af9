package dispatch

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"

	"github.com/harun/kurir/internal/metrics"
	"github.com/harun/kurir/pkg/claude"
	"github.com/harun/kurir/pkg/session"
	"github.com/harun/kurir/pkg/topic"
)

// ErrUnknownAction is returned when an operator response references a
// permission request that no longer exists.
var ErrUnknownAction = errors.New("unknown or expired action")

// TurnRunner is the process-runner contract the dispatcher drives.
type TurnRunner interface {
	Execute(ctx context.Context, req claude.TurnRequest) (string, <-chan claude.TurnEvent, error)
	ResolvePermission(turnID string, approved bool) error
	Cancel(turnID string) bool
}

// Inbound is one message event to dispatch.
type Inbound struct {
	// Target is where replies go.
	Target ChatTarget

	// SessionKey explicitly selects a session. Empty applies the
	// auto-continue rule.
	SessionKey string

	// Text is the input, already transcribed if it arrived as audio.
	Text string
}

// Dispatcher routes inbound messages to sessions, supervises one turn
// per session, and relays turn events to the operator through the
// Notifier. It also mediates the permission protocol: requests surfaced
// by the runner become approve/deny prompts, and operator taps feed
// back through HandleAction.
type Dispatcher struct {
	registry   *session.Registry
	runner     TurnRunner
	notifier   Notifier
	topics     TopicNamer       // optional
	summarizer topic.Summarizer // optional
	metrics    *metrics.Metrics
	logger     zerolog.Logger

	mu      sync.Mutex
	active  map[string]*activeTurn        // session key -> turn
	pending map[string]*pendingPermission // callback id -> request
	byTurn  map[string]string             // turn id -> callback id
}

type activeTurn struct {
	turnID    string
	target    ChatTarget
	startedAt time.Time
	statusRef MessageRef
	hasStatus bool
}

type pendingPermission struct {
	turnID     string
	sessionKey string
	ref        MessageRef
	request    claude.PermissionRequest
}

// Options carries the dispatcher's collaborators. Topics, Summarizer and
// Metrics may be nil.
type Options struct {
	Registry   *session.Registry
	Runner     TurnRunner
	Notifier   Notifier
	Topics     TopicNamer
	Summarizer topic.Summarizer
	Metrics    *metrics.Metrics
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options, logger zerolog.Logger) (*Dispatcher, error) {
	if opts.Registry == nil {
		return nil, fmt.Errorf("registry is required")
	}
	if opts.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}
	if opts.Notifier == nil {
		return nil, fmt.Errorf("notifier is required")
	}

	return &Dispatcher{
		registry:   opts.Registry,
		runner:     opts.Runner,
		notifier:   opts.Notifier,
		topics:     opts.Topics,
		summarizer: opts.Summarizer,
		metrics:    opts.Metrics,
		logger:     logger,
		active:     make(map[string]*activeTurn),
		pending:    make(map[string]*pendingPermission),
		byTurn:     make(map[string]string),
	}, nil
}

// Registry exposes the session registry for the command surface.
func (d *Dispatcher) Registry() *session.Registry {
	return d.registry
}

// HandleMessage dispatches one inbound message. Every rejection and
// every terminal event produces exactly one chat-visible message, so a
// nil return does not mean the turn succeeded, only that it was routed.
func (d *Dispatcher) HandleMessage(ctx context.Context, in Inbound) error {
	if strings.TrimSpace(in.Text) == "" {
		_, err := d.notifier.SendText(in.Target, "I need some text to work with.")
		return err
	}

	sess, err := d.registry.Resolve(in.SessionKey)
	if err != nil {
		return d.rejectResolve(in.Target, err)
	}

	// The busy check and the transition to running are one atomic step;
	// two near-simultaneous messages cannot both see idle.
	if _, err := d.registry.Mark(sess.Key, session.StatusRunning, true); err != nil {
		if errors.Is(err, session.ErrBusy) {
			d.metrics.RecordRejection("busy")
			_, serr := d.notifier.SendText(in.Target,
				fmt.Sprintf("⏳ %s is still working on the previous message. Use /cancel to stop it.", sess.Label))
			return serr
		}
		return fmt.Errorf("failed to mark session running: %w", err)
	}

	turnID, events, err := d.runner.Execute(ctx, claude.TurnRequest{
		SessionKey: sess.Key,
		Prompt:     in.Text,
		ResumeID:   sess.ConversationID,
	})
	if err != nil {
		if _, merr := d.registry.Mark(sess.Key, session.StatusIdle, true); merr != nil {
			d.logger.Error().Err(merr).Str("key", sess.Key).Msg("Failed to release session")
		}
		_, serr := d.notifier.SendText(in.Target, fmt.Sprintf("❌ Failed to start: %v", err))
		if serr != nil {
			return serr
		}
		return nil
	}

	at := &activeTurn{turnID: turnID, target: in.Target, startedAt: time.Now()}
	if ref, err := d.notifier.SendText(in.Target, "🤔 Thinking…"); err == nil {
		at.statusRef = ref
		at.hasStatus = true
	}

	d.mu.Lock()
	d.active[sess.Key] = at
	d.mu.Unlock()

	go d.relay(ctx, sess, in, at, events)

	return nil
}

func (d *Dispatcher) rejectResolve(target ChatTarget, err error) error {
	var text string
	switch {
	case errors.Is(err, session.ErrAmbiguous):
		d.metrics.RecordRejection("ambiguous")
		text = fmt.Sprintf("No session was active in the last %s. Pick one with /dirs or start one with /new.",
			d.registry.Window())
	case errors.Is(err, session.ErrNotFound):
		d.metrics.RecordRejection("not_found")
		text = fmt.Sprintf("❌ %v", err)
	default:
		text = fmt.Sprintf("❌ Failed to resolve session: %v", err)
	}

	_, serr := d.notifier.SendText(target, text)
	return serr
}

// relay consumes one turn's event stream and mirrors it to the operator.
func (d *Dispatcher) relay(ctx context.Context, sess session.Session, in Inbound, at *activeTurn, events <-chan claude.TurnEvent) {
	d.metrics.TurnStarted()
	defer d.metrics.TurnFinished()

	sawTerminal := false
	for ev := range events {
		switch ev.Kind {
		case claude.EventStatusTick:
			d.editStatus(at, fmt.Sprintf("🤔 %s… (%ds)", ev.Status, int(time.Since(at.startedAt).Seconds())))

		case claude.EventPermissionRequested:
			d.onPermissionRequested(sess.Key, at, ev.Permission)

		default:
			if ev.IsTerminal() {
				sawTerminal = true
				d.finishTurn(ctx, sess, in, at, ev)
			}
		}
	}

	if !sawTerminal {
		// The stream contract guarantees a terminal event; recover the
		// session anyway so one bad turn cannot wedge it.
		d.logger.Error().Str("turn_id", at.turnID).Msg("Turn stream closed without terminal event")
		d.releaseTurn(sess.Key, at)
		if _, err := d.registry.Mark(sess.Key, session.StatusIdle, true); err != nil {
			d.logger.Error().Err(err).Str("key", sess.Key).Msg("Failed to release session")
		}
	}
}

func (d *Dispatcher) onPermissionRequested(key string, at *activeTurn, perm *claude.PermissionRequest) {
	if perm == nil {
		return
	}

	if _, err := d.registry.Mark(key, session.StatusAwaitingPermission, true); err != nil {
		d.logger.Error().Err(err).Str("key", key).Msg("Failed to mark session awaiting permission")
	}

	id, err := gonanoid.New(12)
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to generate action id")
		return
	}
	callbackID := "perm_" + id

	ref, err := d.notifier.SendChoice(at.target, renderPermission(*perm), []Choice{
		{Label: "✅ Allow", ActionID: callbackID + "_approve"},
		{Label: "🚫 Deny", ActionID: callbackID + "_deny"},
	})
	if err != nil {
		d.logger.Error().Err(err).Msg("Failed to send permission prompt")
		// The runner's own timeout will cancel the turn.
		return
	}

	d.mu.Lock()
	d.pending[callbackID] = &pendingPermission{
		turnID:     perm.TurnID,
		sessionKey: key,
		ref:        ref,
		request:    *perm,
	}
	d.byTurn[perm.TurnID] = callbackID
	d.mu.Unlock()

	d.editStatus(at, "🔐 Waiting for your approval…")
}

// HandleAction resolves an operator tap on a permission prompt. The
// returned text is a short acknowledgement for the transport to show.
func (d *Dispatcher) HandleAction(actionID string) (string, error) {
	var callbackID string
	var approved bool
	switch {
	case strings.HasSuffix(actionID, "_approve"):
		callbackID = strings.TrimSuffix(actionID, "_approve")
		approved = true
	case strings.HasSuffix(actionID, "_deny"):
		callbackID = strings.TrimSuffix(actionID, "_deny")
	default:
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}

	d.mu.Lock()
	p, ok := d.pending[callbackID]
	if ok {
		delete(d.pending, callbackID)
		delete(d.byTurn, p.turnID)
	}
	d.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownAction, actionID)
	}

	if approved {
		if _, err := d.registry.Resume(p.sessionKey); err != nil {
			d.logger.Warn().Err(err).Str("key", p.sessionKey).Msg("Failed to resume session")
		}
	}

	if err := d.runner.ResolvePermission(p.turnID, approved); err != nil {
		// The runner gave up on this request already.
		d.editPermissionMessage(p, "⌛ Request expired")
		return "Too late, the request expired", nil
	}

	if approved {
		d.metrics.RecordPermission("approved")
		d.editPermissionMessage(p, fmt.Sprintf("✅ Allowed: %s", p.request.Prompt))
		d.logger.Info().Str("turn_id", p.turnID).Str("target", p.request.Target).Msg("Permission approved")
		return "Allowed", nil
	}

	d.metrics.RecordPermission("denied")
	d.editPermissionMessage(p, fmt.Sprintf("🚫 Denied: %s", p.request.Prompt))
	d.logger.Info().Str("turn_id", p.turnID).Str("target", p.request.Target).Msg("Permission denied")
	return "Denied", nil
}

func (d *Dispatcher) finishTurn(ctx context.Context, sess session.Session, in Inbound, at *activeTurn, ev claude.TurnEvent) {
	d.releaseTurn(sess.Key, at)

	if ev.ConversationID != "" {
		if err := d.registry.SetConversationID(sess.Key, ev.ConversationID); err != nil {
			d.logger.Error().Err(err).Str("key", sess.Key).Msg("Failed to record conversation id")
		}
	}

	if _, err := d.registry.Mark(sess.Key, session.StatusIdle, true); err != nil {
		d.logger.Error().Err(err).Str("key", sess.Key).Msg("Failed to release session")
	}

	duration := time.Since(at.startedAt)

	switch ev.Kind {
	case claude.EventAnswer:
		d.metrics.RecordTurn("answer", duration)
		d.deliverAnswer(ctx, sess, in, ev)

	case claude.EventFailed:
		d.metrics.RecordTurn("failed", duration)
		d.sendOutcome(at.target, failureText(ev))

	case claude.EventCancelled:
		d.metrics.RecordTurn("cancelled", duration)
		if ev.Detail == "permission denied" {
			d.sendOutcome(at.target, "🚫 Stopped, permission denied.")
		} else if ev.Detail != "" {
			d.sendOutcome(at.target, fmt.Sprintf("🚫 Cancelled (%s).", ev.Detail))
		} else {
			d.sendOutcome(at.target, "🚫 Cancelled.")
		}
	}
}

// releaseTurn drops per-turn state: the active entry, the status
// message, and any pending permission prompt left dangling.
func (d *Dispatcher) releaseTurn(key string, at *activeTurn) {
	d.mu.Lock()
	if cur, ok := d.active[key]; ok && cur == at {
		delete(d.active, key)
	}
	var stale *pendingPermission
	if callbackID, ok := d.byTurn[at.turnID]; ok {
		stale = d.pending[callbackID]
		delete(d.pending, callbackID)
		delete(d.byTurn, at.turnID)
	}
	d.mu.Unlock()

	if stale != nil {
		d.editPermissionMessage(stale, "⌛ Request expired")
	}

	if at.hasStatus {
		if err := d.notifier.Delete(at.statusRef); err != nil {
			d.logger.Debug().Err(err).Msg("Failed to delete status message")
		}
		at.hasStatus = false
	}
}

func (d *Dispatcher) deliverAnswer(ctx context.Context, sess session.Session, in Inbound, ev claude.TurnEvent) {
	text := strings.TrimSpace(ev.Answer)
	if text == "" {
		text = "(no output)"
	}
	d.sendOutcome(in.Target, text)

	// Name the topic after the first completed turn.
	if sess.ConversationID != "" || d.topics == nil {
		return
	}

	title := ev.TitleHint
	if title == "" && d.summarizer != nil {
		excerpt := in.Text
		if len(excerpt) > 500 {
			excerpt = excerpt[:500]
		}
		if summarized, err := d.summarizer.Summarize(ctx, excerpt); err == nil {
			title = summarized
		} else {
			d.logger.Debug().Err(err).Msg("Topic summarizer failed, falling back")
		}
	}
	if title == "" {
		title = topic.FallbackTitle(in.Text, 6)
	}

	name := topic.Name(sess.Label, time.Now(), title)
	if err := d.topics.SetTopicName(in.Target, name); err != nil {
		d.logger.Debug().Err(err).Str("name", name).Msg("Failed to set topic name")
	}
}

func (d *Dispatcher) sendOutcome(target ChatTarget, text string) {
	if _, err := d.notifier.SendText(target, text); err != nil {
		d.logger.Error().Err(err).Msg("Failed to send outcome message")
	}
}

func (d *Dispatcher) editStatus(at *activeTurn, text string) {
	if !at.hasStatus {
		return
	}
	if err := d.notifier.EditText(at.statusRef, text); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to edit status message")
	}
}

// Cancel stops the active turn for a session. With no explicit key it
// targets the single active turn if there is exactly one, else the
// auto-continue session. A cancel with nothing to stop is a reported
// no-op, not an error.
func (d *Dispatcher) Cancel(target ChatTarget, explicitKey string) error {
	key, ok := d.cancelTarget(explicitKey)
	if !ok {
		_, err := d.notifier.SendText(target, "Nothing to cancel.")
		return err
	}

	d.mu.Lock()
	at, active := d.active[key]
	d.mu.Unlock()

	if !active || !d.runner.Cancel(at.turnID) {
		_, err := d.notifier.SendText(target, "Nothing to cancel.")
		return err
	}

	d.logger.Info().Str("key", key).Str("turn_id", at.turnID).Msg("Cancelling turn")
	return nil
}

func (d *Dispatcher) cancelTarget(explicitKey string) (string, bool) {
	if explicitKey != "" {
		key, err := session.NormalizeKey(explicitKey)
		if err != nil {
			return "", false
		}
		return key, true
	}

	d.mu.Lock()
	if len(d.active) == 1 {
		for key := range d.active {
			d.mu.Unlock()
			return key, true
		}
	}
	d.mu.Unlock()

	sess, err := d.registry.Resolve("")
	if err != nil {
		return "", false
	}
	return sess.Key, true
}

// HasActiveTurn reports whether a session has a turn in flight. The
// notify server uses this to suppress duplicate hook notifications.
func (d *Dispatcher) HasActiveTurn(key string) bool {
	normalized, err := session.NormalizeKey(key)
	if err != nil {
		return false
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.active[normalized]
	return ok
}

// StatusReport renders the registry for the status command.
func (d *Dispatcher) StatusReport(now time.Time) string {
	sessions := d.registry.List()
	if len(sessions) == 0 {
		return "No sessions yet. Start one with /new <directory>."
	}

	var b strings.Builder
	b.WriteString("Sessions:\n")
	for _, s := range sessions {
		b.WriteString(fmt.Sprintf("%s %s — %s (%s)\n",
			statusEmoji(s.Status), s.Label, s.Key, timeAgo(now.Sub(s.LastActivity))))
	}
	return strings.TrimRight(b.String(), "\n")
}

func statusEmoji(s session.Status) string {
	switch s {
	case session.StatusRunning:
		return "🔵"
	case session.StatusAwaitingPermission:
		return "🟡"
	default:
		return "🟢"
	}
}

func timeAgo(d time.Duration) string {
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	}
}

func renderPermission(p claude.PermissionRequest) string {
	return fmt.Sprintf("🔐 Permission required\n\n%s %s\n\nAllow this action?",
		actionEmoji(p.Action), p.Prompt)
}

func actionEmoji(a claude.ActionKind) string {
	switch a {
	case claude.ActionWrite:
		return "📝"
	case claude.ActionEdit:
		return "✏️"
	case claude.ActionRead:
		return "📖"
	default:
		return "⚙️"
	}
}

func (d *Dispatcher) editPermissionMessage(p *pendingPermission, text string) {
	if err := d.notifier.EditText(p.ref, text); err != nil {
		d.logger.Debug().Err(err).Msg("Failed to edit permission message")
	}
}

func failureText(ev claude.TurnEvent) string {
	switch ev.Failure {
	case claude.FailureTimeout:
		return fmt.Sprintf("⏰ Timed out: %s", ev.Detail)
	case claude.FailureParse:
		return fmt.Sprintf("❌ The assistant produced output I could not read: %s", ev.Detail)
	default:
		if strings.Contains(strings.ToLower(ev.Detail), "usage limit") {
			return "😴 Usage limit reached. Try again later."
		}
		return fmt.Sprintf("❌ Turn failed: %s", ev.Detail)
	}
}
