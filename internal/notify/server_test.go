package notify

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/kurir/internal/config"
	"github.com/harun/kurir/pkg/dispatch"
)

type fakeNotifier struct {
	mu    sync.Mutex
	sent  []string
	chats []int64
	fail  error
}

func (f *fakeNotifier) SendText(target dispatch.ChatTarget, text string) (dispatch.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return dispatch.MessageRef{}, f.fail
	}
	f.sent = append(f.sent, text)
	f.chats = append(f.chats, target.ChatID)
	return dispatch.MessageRef{ChatID: target.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeNotifier) SendChoice(target dispatch.ChatTarget, text string, choices []dispatch.Choice) (dispatch.MessageRef, error) {
	return f.SendText(target, text)
}

func (f *fakeNotifier) EditText(ref dispatch.MessageRef, text string) error { return nil }
func (f *fakeNotifier) Delete(ref dispatch.MessageRef) error                { return nil }

type fakeChecker struct {
	active map[string]bool
}

func (f *fakeChecker) HasActiveTurn(key string) bool { return f.active[key] }

func newTestServer(t *testing.T, notifier *fakeNotifier, checker ActiveChecker) *Server {
	t.Helper()
	return NewServer(config.NotifyConfig{Host: "127.0.0.1", Port: 0}, 42, notifier, checker, nil, zerolog.Nop())
}

func postHook(t *testing.T, s *Server, kind, cwd, message string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(map[string]string{"cwd": cwd, "message": message})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/notify/"+kind, bytes.NewReader(body))
	rec := httptest.NewRecorder()
	s.handleHook(rec, req, kind)
	return rec
}

func TestHandleHookDeliversCompletion(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestServer(t, notifier, &fakeChecker{})

	rec := postHook(t, s, "completed", "/home/user/proj", "All tests pass.")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "✅")
	assert.Contains(t, notifier.sent[0], "/home/user/proj")
	assert.Contains(t, notifier.sent[0], "All tests pass.")
	assert.Equal(t, int64(42), notifier.chats[0])
}

func TestHandleHookDeliversWaiting(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestServer(t, notifier, &fakeChecker{})

	rec := postHook(t, s, "waiting", "/home/user/proj", "Permission needed for Bash")

	assert.Equal(t, http.StatusOK, rec.Code)
	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "⏳")
	assert.Contains(t, notifier.sent[0], "Permission needed for Bash")
}

func TestHandleHookWaitingWithoutMessage(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestServer(t, notifier, &fakeChecker{})

	postHook(t, s, "waiting", "/home/user/proj", "")

	require.Len(t, notifier.sent, 1)
	assert.Contains(t, notifier.sent[0], "Input needed.")
}

func TestHandleHookSuppressedForActiveTurn(t *testing.T) {
	notifier := &fakeNotifier{}
	checker := &fakeChecker{active: map[string]bool{"/home/user/proj": true}}
	s := newTestServer(t, notifier, checker)

	rec := postHook(t, s, "completed", "/home/user/proj", "done")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, notifier.sent)

	var resp map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "suppressed", resp["status"])
}

func TestHandleHookRejectsMissingCWD(t *testing.T) {
	notifier := &fakeNotifier{}
	s := newTestServer(t, notifier, &fakeChecker{})

	rec := postHook(t, s, "completed", "", "done")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Empty(t, notifier.sent)
}

func TestHandleHookRejectsGet(t *testing.T) {
	s := newTestServer(t, &fakeNotifier{}, &fakeChecker{})

	req := httptest.NewRequest(http.MethodGet, "/notify/completed", nil)
	rec := httptest.NewRecorder()
	s.handleHook(rec, req, "completed")

	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHandleHookRejectsBadJSON(t *testing.T) {
	s := newTestServer(t, &fakeNotifier{}, &fakeChecker{})

	req := httptest.NewRequest(http.MethodPost, "/notify/completed", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()
	s.handleHook(rec, req, "completed")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleHookDeliveryFailure(t *testing.T) {
	notifier := &fakeNotifier{fail: fmt.Errorf("network down")}
	s := newTestServer(t, notifier, &fakeChecker{})

	rec := postHook(t, s, "completed", "/home/user/proj", "done")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
}

func TestHandleHookSkipsSendWithoutChatID(t *testing.T) {
	notifier := &fakeNotifier{}
	s := NewServer(config.NotifyConfig{}, 0, notifier, &fakeChecker{}, nil, zerolog.Nop())

	rec := postHook(t, s, "completed", "/home/user/proj", "done")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, notifier.sent)
}

func TestHandleHealth(t *testing.T) {
	s := newTestServer(t, &fakeNotifier{}, &fakeChecker{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.handleHealth(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Contains(t, resp, "uptime")
}

func TestWrapRejectsDuringShutdown(t *testing.T) {
	s := newTestServer(t, &fakeNotifier{}, &fakeChecker{})
	s.mu.Lock()
	s.isShuttingDown = true
	s.mu.Unlock()

	called := false
	h := s.wrap(func(w http.ResponseWriter, r *http.Request) { called = true })

	req := httptest.NewRequest(http.MethodPost, "/notify/completed", nil)
	rec := httptest.NewRecorder()
	h(rec, req)

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.False(t, called)
}

func TestNotificationTextFallbacks(t *testing.T) {
	s := newTestServer(t, &fakeNotifier{}, &fakeChecker{})

	t.Run("completed without message or transcript", func(t *testing.T) {
		text := s.notificationText("completed", "/nope/missing", "")
		assert.Contains(t, text, "finished.")
	})

	t.Run("completed with message", func(t *testing.T) {
		text := s.notificationText("completed", "/home/p", "summary here")
		assert.Contains(t, text, "summary here")
	})
}
