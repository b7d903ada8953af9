package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNewMetrics(t *testing.T) {
	m := NewMetrics()

	if m == nil {
		t.Fatal("NewMetrics returned nil")
	}

	if m.registry == nil {
		t.Error("Registry is nil")
	}

	// Verify turn metrics
	if m.TurnsTotal == nil {
		t.Error("TurnsTotal is nil")
	}
	if m.TurnDuration == nil {
		t.Error("TurnDuration is nil")
	}
	if m.TurnsInFlight == nil {
		t.Error("TurnsInFlight is nil")
	}
	if m.PermissionsTotal == nil {
		t.Error("PermissionsTotal is nil")
	}
	if m.DispatchRejected == nil {
		t.Error("DispatchRejected is nil")
	}

	// Verify session metrics
	if m.SessionsKnown == nil {
		t.Error("SessionsKnown is nil")
	}
	if m.SessionsSwept == nil {
		t.Error("SessionsSwept is nil")
	}

	// Verify Telegram metrics
	if m.TelegramMessagesSentTotal == nil {
		t.Error("TelegramMessagesSentTotal is nil")
	}
	if m.TelegramMessagesReceivedTotal == nil {
		t.Error("TelegramMessagesReceivedTotal is nil")
	}
	if m.TelegramErrorsTotal == nil {
		t.Error("TelegramErrorsTotal is nil")
	}

	// Verify notify server metrics
	if m.NotifyRequestsTotal == nil {
		t.Error("NotifyRequestsTotal is nil")
	}
}

func TestMetricsHandler(t *testing.T) {
	m := NewMetrics()

	// Record some sample metrics so they appear in output
	m.RecordTurn("answer", 2*time.Second)
	m.RecordPermission("approved")
	m.RecordRejection("busy")
	m.NotifyRequestsTotal.WithLabelValues("completed").Inc()

	handler := m.Handler()
	if handler == nil {
		t.Fatal("Handler returned nil")
	}

	// Test HTTP endpoint
	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}

	body := w.Body.String()

	// Verify metrics are exposed
	expectedMetrics := []string{
		"turns_total",
		"turn_duration_seconds",
		"turns_in_flight",
		"permissions_total",
		"dispatch_rejected_total",
		"sessions_known",
		"sessions_swept_total",
		"telegram_messages_sent_total",
		"telegram_messages_received_total",
		"telegram_errors_total",
		"notify_requests_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(body, metric) {
			t.Errorf("Metrics output missing: %s", metric)
		}
	}
}

func TestRecordTurn(t *testing.T) {
	m := NewMetrics()

	m.RecordTurn("answer", time.Second)
	m.RecordTurn("answer", 2*time.Second)
	m.RecordTurn("failed", time.Second)

	metricFamilies, err := m.registry.Gather()
	if err != nil {
		t.Fatalf("Failed to gather metrics: %v", err)
	}

	found := false
	for _, mf := range metricFamilies {
		if *mf.Name == "turns_total" {
			found = true
			if len(mf.Metric) != 2 {
				t.Errorf("Expected 2 outcome labels, got %d", len(mf.Metric))
			}
		}
	}
	if !found {
		t.Error("turns_total metric not found")
	}
}

func TestTurnInFlightGauge(t *testing.T) {
	m := NewMetrics()

	m.TurnStarted()
	m.TurnStarted()
	m.TurnFinished()

	metricFamilies, _ := m.registry.Gather()
	for _, mf := range metricFamilies {
		if *mf.Name == "turns_in_flight" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Gauge.Value != 1 {
				t.Errorf("Expected value 1, got %f", *mf.Metric[0].Gauge.Value)
			}
		}
	}
}

func TestNilReceiverIsSafe(t *testing.T) {
	var m *Metrics

	// Recording on a nil metrics instance must not panic.
	m.RecordTurn("answer", time.Second)
	m.RecordPermission("denied")
	m.RecordRejection("busy")
	m.TurnStarted()
	m.TurnFinished()
}

func TestMetricsIsolation(t *testing.T) {
	// Create two separate metrics instances
	m1 := NewMetrics()
	m2 := NewMetrics()

	// Increment metrics in m1
	m1.SessionsSwept.Inc()
	m1.SessionsSwept.Inc()

	// Increment metrics in m2
	m2.SessionsSwept.Inc()

	// Verify m1 has 2
	metricFamilies1, _ := m1.registry.Gather()
	for _, mf := range metricFamilies1 {
		if *mf.Name == "sessions_swept_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 2 {
				t.Errorf("m1: Expected value 2, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}

	// Verify m2 has 1
	metricFamilies2, _ := m2.registry.Gather()
	for _, mf := range metricFamilies2 {
		if *mf.Name == "sessions_swept_total" {
			if len(mf.Metric) > 0 && *mf.Metric[0].Counter.Value != 1 {
				t.Errorf("m2: Expected value 1, got %f", *mf.Metric[0].Counter.Value)
			}
		}
	}
}
