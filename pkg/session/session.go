package session

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Status represents what a session is currently doing.
type Status string

const (
	// StatusIdle means no turn is in flight.
	StatusIdle Status = "idle"

	// StatusRunning means a turn is executing against the assistant.
	StatusRunning Status = "running"

	// StatusAwaitingPermission means a turn is suspended on an
	// unresolved permission request.
	StatusAwaitingPermission Status = "awaiting_permission"
)

// Session binds a working directory to an assistant conversation.
type Session struct {
	// Key is the normalized absolute working-directory path.
	Key string

	// Label is a short human-readable name derived from the path.
	Label string

	// Status is the current turn state.
	Status Status

	// LastActivity is the timestamp of the last inbound or outbound event.
	LastActivity time.Time

	// ConversationID is the assistant's own handle into its persisted
	// transcript. Empty until the first turn completes.
	ConversationID string
}

// Busy reports whether the session has a turn in flight.
func (s Session) Busy() bool {
	return s.Status == StatusRunning || s.Status == StatusAwaitingPermission
}

// NormalizeKey canonicalizes a working-directory path into a session key.
// It expands a leading "~", makes the path absolute, and cleans it.
func NormalizeKey(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return "", fmt.Errorf("session key is empty")
	}

	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to expand home directory: %w", err)
		}
		path = filepath.Join(home, strings.TrimPrefix(path, "~"))
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("failed to resolve path %q: %w", path, err)
	}

	return filepath.Clean(abs), nil
}
