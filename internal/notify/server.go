package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/harun/kurir/internal/config"
	"github.com/harun/kurir/internal/metrics"
	"github.com/harun/kurir/pkg/claude"
	"github.com/harun/kurir/pkg/dispatch"
	"github.com/harun/kurir/pkg/session"
)

const (
	shutdownTimeout = 5 * time.Second

	// fallbackTextLimit caps the answer text pulled from a transcript
	// when a completion hook arrives without a message.
	fallbackTextLimit = 500
)

// ActiveChecker reports whether a working directory already has a turn
// in flight, in which case hook notifications are redundant.
type ActiveChecker interface {
	HasActiveTurn(key string) bool
}

// Server receives hook callbacks from CLI sessions running outside the
// bridge and forwards them to the chat.
type Server struct {
	config      config.NotifyConfig
	notifier    dispatch.Notifier
	checker     ActiveChecker
	broadcaster *Broadcaster
	metrics     *metrics.Metrics
	logger      zerolog.Logger

	// chatID is the chat hook notifications are delivered to.
	chatID int64

	httpServer     *http.Server
	startTime      time.Time
	mu             sync.RWMutex
	isShuttingDown bool
	inFlightReqs   sync.WaitGroup
}

// hookPayload is the body the CLI's Stop and Notification hooks post.
type hookPayload struct {
	CWD     string `json:"cwd"`
	Message string `json:"message"`
}

// NewServer creates the notification server
func NewServer(cfg config.NotifyConfig, chatID int64, notifier dispatch.Notifier, checker ActiveChecker, m *metrics.Metrics, logger zerolog.Logger) *Server {
	return &Server{
		config:      cfg,
		notifier:    notifier,
		checker:     checker,
		broadcaster: NewBroadcaster(logger),
		metrics:     m,
		logger:      logger.With().Str("component", "notify").Logger(),
		chatID:      chatID,
	}
}

// Start begins listening for hook callbacks
func (s *Server) Start() error {
	mux := http.NewServeMux()
	mux.HandleFunc("/notify/completed", s.wrap(s.handleCompleted))
	mux.HandleFunc("/notify/waiting", s.wrap(s.handleWaiting))
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/events", s.broadcaster.HandleWS)
	if s.metrics != nil {
		mux.Handle("/metrics", s.metrics.Handler())
	}

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      mux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	s.startTime = time.Now()

	s.logger.Info().Str("addr", addr).Msg("Notify server starting")

	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("Notify server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.mu.Lock()
	s.isShuttingDown = true
	s.mu.Unlock()

	s.logger.Info().Msg("Notify server stopping")

	// let in-flight hook deliveries finish before closing sockets
	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(shutdownTimeout):
		s.logger.Warn().Msg("Timed out waiting for in-flight requests")
	}

	s.broadcaster.Close()

	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down notify server: %w", err)
	}
	return nil
}

// Events exposes the broadcaster so other modules can publish
func (s *Server) Events() *Broadcaster {
	return s.broadcaster
}

// wrap rejects requests during shutdown and tracks in-flight handlers
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.RLock()
		shuttingDown := s.isShuttingDown
		s.mu.RUnlock()
		if shuttingDown {
			http.Error(w, "shutting down", http.StatusServiceUnavailable)
			return
		}

		s.inFlightReqs.Add(1)
		defer s.inFlightReqs.Done()
		h(w, r)
	}
}

func (s *Server) handleCompleted(w http.ResponseWriter, r *http.Request) {
	s.handleHook(w, r, "completed")
}

func (s *Server) handleWaiting(w http.ResponseWriter, r *http.Request) {
	s.handleHook(w, r, "waiting")
}

func (s *Server) handleHook(w http.ResponseWriter, r *http.Request, kind string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.metrics.RecordNotifyRequest(kind)

	var payload hookPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, "invalid payload", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(payload.CWD) == "" {
		http.Error(w, "cwd is required", http.StatusBadRequest)
		return
	}

	key, err := session.NormalizeKey(payload.CWD)
	if err != nil {
		key = payload.CWD
	}

	// a bridge-driven turn already reports its own outcome
	if s.checker != nil && s.checker.HasActiveTurn(key) {
		s.logger.Debug().
			Str("dir", key).
			Str("kind", kind).
			Msg("Suppressing hook for active turn")
		s.respondOK(w, "suppressed")
		return
	}

	text := s.notificationText(kind, key, payload.Message)
	s.broadcaster.Broadcast(kind, key, strings.TrimSpace(payload.Message))

	if s.chatID != 0 {
		target := dispatch.ChatTarget{ChatID: s.chatID}
		if _, err := s.notifier.SendText(target, text); err != nil {
			s.logger.Error().
				Err(err).
				Str("dir", key).
				Msg("Failed to deliver hook notification")
			http.Error(w, "delivery failed", http.StatusBadGateway)
			return
		}
	}

	s.logger.Info().
		Str("dir", key).
		Str("kind", kind).
		Msg("Hook notification delivered")
	s.respondOK(w, "delivered")
}

// notificationText builds the chat message for a hook. A completion
// that arrives without a message falls back to the last assistant turn
// in the directory's newest transcript.
func (s *Server) notificationText(kind, key, message string) string {
	message = strings.TrimSpace(message)

	switch kind {
	case "waiting":
		if message == "" {
			message = "Input needed."
		}
		return fmt.Sprintf("⏳ `%s` is waiting:\n%s", key, message)
	default:
		if message == "" {
			message = s.transcriptFallback(key)
		}
		if message == "" {
			return fmt.Sprintf("✅ `%s` finished.", key)
		}
		return fmt.Sprintf("✅ `%s` finished:\n%s", key, message)
	}
}

func (s *Server) transcriptFallback(key string) string {
	root, err := claude.ProjectsRoot()
	if err != nil {
		return ""
	}
	transcript, err := claude.LatestTranscript(root, key)
	if err != nil {
		return ""
	}
	text, err := claude.LastAssistantText(transcript.Path, fallbackTextLimit)
	if err != nil {
		return ""
	}
	return text
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"status":      "healthy",
		"uptime":      time.Since(s.startTime).String(),
		"subscribers": s.broadcaster.ClientCount(),
		"timestamp":   time.Now().Format(time.RFC3339),
	})
}

func (s *Server) respondOK(w http.ResponseWriter, status string) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
