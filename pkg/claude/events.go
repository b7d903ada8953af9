package claude

// EventKind discriminates the variants of a turn's event stream.
type EventKind string

const (
	// EventStatusTick is a periodic liveness signal emitted while the
	// process has not yet produced substantive output.
	EventStatusTick EventKind = "status_tick"

	// EventPermissionRequested means the process needs authorization.
	// The stream pauses until ResolvePermission is called.
	EventPermissionRequested EventKind = "permission_requested"

	// EventAnswer is the terminal success variant.
	EventAnswer EventKind = "answer"

	// EventFailed is the terminal failure variant.
	EventFailed EventKind = "failed"

	// EventCancelled is the terminal variant for explicit cancellation
	// and for denied or expired permission requests.
	EventCancelled EventKind = "cancelled"
)

// FailureKind classifies an EventFailed.
type FailureKind string

const (
	// FailureProcess means the process crashed or exited non-zero.
	FailureProcess FailureKind = "process"

	// FailureTimeout means the hard wall-clock ceiling was exceeded.
	FailureTimeout FailureKind = "timeout"

	// FailureParse means the process emitted unparseable output.
	FailureParse FailureKind = "parse"
)

// ActionKind is the fixed set of permission-request action categories.
type ActionKind string

const (
	ActionWrite   ActionKind = "write"
	ActionEdit    ActionKind = "edit"
	ActionRead    ActionKind = "read"
	ActionExecute ActionKind = "execute"
)

// PermissionRequest describes an action the running process wants
// authorized mid-turn.
type PermissionRequest struct {
	// TurnID identifies the suspended turn for ResolvePermission.
	TurnID string

	// Action is the category of the requested action.
	Action ActionKind

	// Target describes what the action would touch (a path, a command).
	Target string

	// Prompt is the raw tool description as the process reported it.
	Prompt string

	// ToolName is the tool the process tried to use.
	ToolName string

	// AllowRule is the allowed-tools rule that grants exactly this action
	// on retry.
	AllowRule string
}

// TurnEvent is one event in a turn's stream.
type TurnEvent struct {
	Kind EventKind

	// Status carries the liveness label for EventStatusTick.
	Status string

	// Permission is set for EventPermissionRequested.
	Permission *PermissionRequest

	// Answer and TitleHint are set for EventAnswer.
	Answer    string
	TitleHint string

	// ConversationID is the assistant's transcript handle, set on
	// terminal events once known.
	ConversationID string

	// Failure and Detail are set for EventFailed; Detail may also
	// explain an EventCancelled.
	Failure FailureKind
	Detail  string
}

// IsTerminal reports whether the event ends its stream.
func (e TurnEvent) IsTerminal() bool {
	switch e.Kind {
	case EventAnswer, EventFailed, EventCancelled:
		return true
	}
	return false
}

// statusVerbs rotate through the animated liveness indicator.
var statusVerbs = []string{
	"Thinking",
	"Reasoning",
	"Tinkering",
	"Brewing",
	"Pondering",
	"Cooking",
	"Scheming",
	"Digging",
}
