package session

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// DefaultAutoContinueWindow is how long after its last activity a session
// keeps receiving unaddressed messages.
const DefaultAutoContinueWindow = 10 * time.Minute

// Config holds registry settings.
type Config struct {
	// Window is the auto-continue window. Zero means DefaultAutoContinueWindow.
	Window time.Duration

	// Clock returns the current time. Nil means time.Now. Tests inject this.
	Clock func() time.Time

	// DirExists reports whether a path is an existing directory. Nil means
	// an os.Stat check. Tests inject this.
	DirExists func(path string) bool
}

// Registry owns every known session. The map shape is guarded by one
// read-write mutex; each session carries its own mutex so that status
// transitions on unrelated sessions never contend.
type Registry struct {
	window    time.Duration
	clock     func() time.Time
	dirExists func(string) bool
	logger    zerolog.Logger

	mu       sync.RWMutex
	sessions map[string]*entry
}

type entry struct {
	mu      sync.Mutex
	session Session
}

// NewRegistry creates a session registry.
func NewRegistry(cfg Config, logger zerolog.Logger) *Registry {
	if cfg.Window == 0 {
		cfg.Window = DefaultAutoContinueWindow
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.DirExists == nil {
		cfg.DirExists = func(path string) bool {
			info, err := os.Stat(path)
			return err == nil && info.IsDir()
		}
	}

	return &Registry{
		window:    cfg.Window,
		clock:     cfg.Clock,
		dirExists: cfg.DirExists,
		logger:    logger,
		sessions:  make(map[string]*entry),
	}
}

// Window returns the configured auto-continue window.
func (r *Registry) Window() time.Duration {
	return r.window
}

// Resolve routes an inbound message to a session. With an explicit key it
// returns the known session, or creates one for a never-seen directory that
// exists on disk (ErrNotFound otherwise). With an empty key it applies the
// auto-continue rule: the most recently active session wins if its last
// activity falls within the window, with exact-timestamp ties going to the
// lexicographically smallest key; ErrAmbiguous when no session qualifies.
func (r *Registry) Resolve(explicitKey string) (Session, error) {
	if explicitKey != "" {
		return r.resolveExplicit(explicitKey)
	}
	return r.resolveAuto()
}

func (r *Registry) resolveExplicit(key string) (Session, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return Session{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if e, ok := r.sessions[key]; ok {
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.session, nil
	}

	if !r.dirExists(key) {
		return Session{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	s := Session{
		Key:          key,
		Label:        filepath.Base(key),
		Status:       StatusIdle,
		LastActivity: r.clock(),
	}
	r.sessions[key] = &entry{session: s}

	r.logger.Info().Str("key", key).Msg("Session created")

	return s, nil
}

func (r *Registry) resolveAuto() (Session, error) {
	now := r.clock()

	var best Session
	found := false
	for _, s := range r.snapshot() {
		if now.Sub(s.LastActivity) >= r.window {
			continue
		}
		if !found || s.LastActivity.After(best.LastActivity) ||
			(s.LastActivity.Equal(best.LastActivity) && s.Key < best.Key) {
			best = s
			found = true
		}
	}

	if !found {
		return Session{}, ErrAmbiguous
	}
	return best, nil
}

// Get returns a copy of the session for key, or ErrNotFound.
func (r *Registry) Get(key string) (Session, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return Session{}, err
	}

	e, err := r.entry(key)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.session, nil
}

// List returns all sessions sorted by last activity, most recent first.
// Sessions with equal activity sort by key.
func (r *Registry) List() []Session {
	sessions := r.snapshot()

	sort.Slice(sessions, func(i, j int) bool {
		if !sessions[i].LastActivity.Equal(sessions[j].LastActivity) {
			return sessions[i].LastActivity.After(sessions[j].LastActivity)
		}
		return sessions[i].Key < sessions[j].Key
	})

	return sessions
}

// Remove deletes a session record. The assistant's own transcript store is
// untouched.
func (r *Registry) Remove(key string) error {
	key, err := NormalizeKey(key)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.sessions[key]; !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	delete(r.sessions, key)

	r.logger.Info().Str("key", key).Msg("Session removed")

	return nil
}

// Mark applies an atomic status transition. Marking running on a session
// that is already running or awaiting permission fails with ErrBusy; this
// check-and-set is the sole mutual exclusion between near-simultaneous
// turns on one session. When touch is set the transition slides the
// auto-continue window forward.
func (r *Registry) Mark(key string, status Status, touch bool) (Session, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return Session{}, err
	}

	e, err := r.entry(key)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	switch status {
	case StatusRunning:
		if e.session.Busy() {
			return e.session, fmt.Errorf("%w: %s is %s", ErrBusy, key, e.session.Status)
		}
	case StatusAwaitingPermission:
		if e.session.Status != StatusRunning {
			return e.session, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.session.Status, status)
		}
	case StatusIdle:
		// Always permitted; terminal events release the session.
	default:
		return e.session, fmt.Errorf("%w: unknown status %q", ErrInvalidTransition, status)
	}

	e.session.Status = status
	if touch {
		e.session.LastActivity = r.clock()
	}

	return e.session, nil
}

// Resume moves a session from awaiting_permission back to running after the
// operator approved the pending action.
func (r *Registry) Resume(key string) (Session, error) {
	key, err := NormalizeKey(key)
	if err != nil {
		return Session{}, err
	}

	e, err := r.entry(key)
	if err != nil {
		return Session{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.session.Status != StatusAwaitingPermission {
		return e.session, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, e.session.Status, StatusRunning)
	}

	e.session.Status = StatusRunning
	e.session.LastActivity = r.clock()

	return e.session, nil
}

// SetConversationID records the assistant's conversation handle once the
// first turn reports it.
func (r *Registry) SetConversationID(key, id string) error {
	key, err := NormalizeKey(key)
	if err != nil {
		return err
	}

	e, err := r.entry(key)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.ConversationID = id
	return nil
}

// Touch updates a session's last activity without changing status.
func (r *Registry) Touch(key string) error {
	key, err := NormalizeKey(key)
	if err != nil {
		return err
	}

	e, err := r.entry(key)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.session.LastActivity = r.clock()
	return nil
}

// Sweep removes idle sessions whose last activity is older than age and
// returns how many were removed. Busy sessions are never swept.
func (r *Registry) Sweep(age time.Duration) int {
	now := r.clock()

	r.mu.Lock()
	defer r.mu.Unlock()

	removed := 0
	for key, e := range r.sessions {
		e.mu.Lock()
		stale := e.session.Status == StatusIdle && now.Sub(e.session.LastActivity) > age
		e.mu.Unlock()

		if stale {
			delete(r.sessions, key)
			removed++
		}
	}

	if removed > 0 {
		r.logger.Info().Int("removed", removed).Msg("Stale sessions swept")
	}

	return removed
}

// Len returns the number of known sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

func (r *Registry) entry(key string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.sessions[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return e, nil
}

func (r *Registry) snapshot() []Session {
	r.mu.RLock()
	entries := make([]*entry, 0, len(r.sessions))
	for _, e := range r.sessions {
		entries = append(entries, e)
	}
	r.mu.RUnlock()

	sessions := make([]Session, 0, len(entries))
	for _, e := range entries {
		e.mu.Lock()
		sessions = append(sessions, e.session)
		e.mu.Unlock()
	}
	return sessions
}
