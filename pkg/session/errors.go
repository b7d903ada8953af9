package session

import "errors"

var (
	// ErrAmbiguous is returned when no session qualifies for
	// auto-continue and the caller must select one explicitly
	ErrAmbiguous = errors.New("no session active within the auto-continue window")

	// ErrNotFound is returned when an explicit session key is unknown
	ErrNotFound = errors.New("session not found")

	// ErrBusy is returned when a session already has a turn in flight
	ErrBusy = errors.New("session is busy")

	// ErrInvalidTransition is returned for an impossible status transition
	ErrInvalidTransition = errors.New("invalid session status transition")
)
