package dispatch

// ChatTarget addresses a chat, optionally inside a forum topic thread.
type ChatTarget struct {
	ChatID   int64
	ThreadID int
}

// MessageRef identifies a previously sent message so it can be edited
// or deleted.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// Choice is one option of an interactive prompt. ActionID is an opaque
// token delivered back through HandleAction when the operator taps it.
type Choice struct {
	Label    string
	ActionID string
}

// Notifier is the chat-transport abstraction the dispatcher talks
// through. Implementations live outside the core.
type Notifier interface {
	// SendText delivers a plain text message.
	SendText(target ChatTarget, text string) (MessageRef, error)

	// SendChoice delivers a message with interactive options.
	SendChoice(target ChatTarget, text string, choices []Choice) (MessageRef, error)

	// EditText replaces the text of a previously sent message.
	EditText(ref MessageRef, text string) error

	// Delete removes a previously sent message.
	Delete(ref MessageRef) error
}

// TopicNamer renames the chat topic a conversation lives in. Transports
// without topics may simply not implement it.
type TopicNamer interface {
	SetTopicName(target ChatTarget, name string) error
}
