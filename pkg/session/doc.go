// Package session tracks known working directories and their
// conversation state.
//
// Invariants:
// - Session keys are absolute, cleaned directory paths.
// - At most one turn runs per session; busy sessions reject new input.
// - Implicit messages continue the most recently active session only
//   within the auto-continue window.
package session
