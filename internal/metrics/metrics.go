package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application
type Metrics struct {
	registry *prometheus.Registry

	// Turn metrics
	TurnsTotal        *prometheus.CounterVec
	TurnDuration      prometheus.Histogram
	TurnsInFlight     prometheus.Gauge
	PermissionsTotal  *prometheus.CounterVec
	DispatchRejected  *prometheus.CounterVec

	// Session metrics
	SessionsKnown prometheus.Gauge
	SessionsSwept prometheus.Counter

	// Telegram metrics
	TelegramMessagesSentTotal     prometheus.Counter
	TelegramMessagesReceivedTotal prometheus.Counter
	TelegramErrorsTotal           prometheus.Counter

	// Notify server metrics
	NotifyRequestsTotal *prometheus.CounterVec
}

// NewMetrics creates and registers all metrics
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		// Turn metrics
		TurnsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "turns_total",
				Help: "Total number of turns by outcome",
			},
			[]string{"outcome"},
		),
		TurnDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "turn_duration_seconds",
				Help:    "Duration of turns in seconds",
				Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600},
			},
		),
		TurnsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "turns_in_flight",
				Help: "Number of turns currently executing",
			},
		),
		PermissionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "permissions_total",
				Help: "Total number of permission requests by resolution",
			},
			[]string{"resolution"},
		),
		DispatchRejected: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "dispatch_rejected_total",
				Help: "Total number of rejected dispatches by reason",
			},
			[]string{"reason"},
		),

		// Session metrics
		SessionsKnown: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "sessions_known",
				Help: "Number of sessions in the registry",
			},
		),
		SessionsSwept: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "sessions_swept_total",
				Help: "Total number of stale sessions removed by the sweeper",
			},
		),

		// Telegram metrics
		TelegramMessagesSentTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_messages_sent_total",
				Help: "Total number of Telegram messages sent",
			},
		),
		TelegramMessagesReceivedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_messages_received_total",
				Help: "Total number of Telegram messages received",
			},
		),
		TelegramErrorsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "telegram_errors_total",
				Help: "Total number of Telegram errors",
			},
		),

		// Notify server metrics
		NotifyRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "notify_requests_total",
				Help: "Total number of notify server requests by endpoint",
			},
			[]string{"endpoint"},
		),
	}

	// Register all metrics
	m.registerMetrics()

	return m
}

// registerMetrics registers all metrics with the registry
func (m *Metrics) registerMetrics() {
	m.registry.MustRegister(m.TurnsTotal)
	m.registry.MustRegister(m.TurnDuration)
	m.registry.MustRegister(m.TurnsInFlight)
	m.registry.MustRegister(m.PermissionsTotal)
	m.registry.MustRegister(m.DispatchRejected)

	m.registry.MustRegister(m.SessionsKnown)
	m.registry.MustRegister(m.SessionsSwept)

	m.registry.MustRegister(m.TelegramMessagesSentTotal)
	m.registry.MustRegister(m.TelegramMessagesReceivedTotal)
	m.registry.MustRegister(m.TelegramErrorsTotal)

	m.registry.MustRegister(m.NotifyRequestsTotal)
}

// RecordTurn records a completed turn. Safe on a nil receiver so that
// tests can run without metrics wired.
func (m *Metrics) RecordTurn(outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.TurnsTotal.WithLabelValues(outcome).Inc()
	m.TurnDuration.Observe(duration.Seconds())
}

// RecordPermission records a permission resolution.
func (m *Metrics) RecordPermission(resolution string) {
	if m == nil {
		return
	}
	m.PermissionsTotal.WithLabelValues(resolution).Inc()
}

// RecordRejection records a rejected dispatch.
func (m *Metrics) RecordRejection(reason string) {
	if m == nil {
		return
	}
	m.DispatchRejected.WithLabelValues(reason).Inc()
}

// TurnStarted and TurnFinished track the in-flight gauge.
func (m *Metrics) TurnStarted() {
	if m == nil {
		return
	}
	m.TurnsInFlight.Inc()
}

func (m *Metrics) TurnFinished() {
	if m == nil {
		return
	}
	m.TurnsInFlight.Dec()
}

// RecordTelegramSent counts an outgoing Telegram message.
func (m *Metrics) RecordTelegramSent() {
	if m == nil {
		return
	}
	m.TelegramMessagesSentTotal.Inc()
}

// RecordTelegramReceived counts an incoming Telegram update.
func (m *Metrics) RecordTelegramReceived() {
	if m == nil {
		return
	}
	m.TelegramMessagesReceivedTotal.Inc()
}

// RecordTelegramError counts a failed Telegram API call.
func (m *Metrics) RecordTelegramError() {
	if m == nil {
		return
	}
	m.TelegramErrorsTotal.Inc()
}

// RecordNotifyRequest counts a notify server request.
func (m *Metrics) RecordNotifyRequest(endpoint string) {
	if m == nil {
		return
	}
	m.NotifyRequestsTotal.WithLabelValues(endpoint).Inc()
}

// SetSessionsKnown updates the registry size gauge.
func (m *Metrics) SetSessionsKnown(n int) {
	if m == nil {
		return
	}
	m.SessionsKnown.Set(float64(n))
}

// RecordSessionsSwept counts sessions removed by the sweeper.
func (m *Metrics) RecordSessionsSwept(n int) {
	if m == nil {
		return
	}
	m.SessionsSwept.Add(float64(n))
}

// Handler returns an HTTP handler for the metrics endpoint
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}
