package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MeteringMetrics records engine activity: storage mutations, interval
// transitions, and webhook settlements.
type MeteringMetrics struct {
	storageChanges   *prometheus.CounterVec
	intervalsClosed  prometheus.Counter
	intervalDuration prometheus.Histogram
	webhookEvents    *prometheus.CounterVec
	checkoutSessions *prometheus.CounterVec
}

// NewMeteringMetrics registers the engine metrics on the provided registerer.
func NewMeteringMetrics(reg prometheus.Registerer) *MeteringMetrics {
	if reg == nil {
		return &MeteringMetrics{}
	}
	storageChanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "storage_change_events_total",
		Help: "Storage mutations recorded, by action type.",
	}, []string{"action"})
	intervalsClosed := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "usage_intervals_closed_total",
		Help: "Usage intervals transitioned to completed.",
	})
	intervalDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "usage_interval_duration_seconds",
		Help:    "Duration of closed usage intervals in seconds.",
		Buckets: prometheus.ExponentialBuckets(1, 4, 12),
	})
	webhookEvents := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stripe_webhook_events_total",
		Help: "Stripe webhook events handled, by event type.",
	}, []string{"type"})
	checkoutSessions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "checkout_sessions_total",
		Help: "Checkout sessions requested, by outcome.",
	}, []string{"outcome"})
	reg.MustRegister(storageChanges, intervalsClosed, intervalDuration, webhookEvents, checkoutSessions)
	return &MeteringMetrics{
		storageChanges:   storageChanges,
		intervalsClosed:  intervalsClosed,
		intervalDuration: intervalDuration,
		webhookEvents:    webhookEvents,
		checkoutSessions: checkoutSessions,
	}
}

// IncStorageChange counts one recorded storage mutation.
func (m *MeteringMetrics) IncStorageChange(action string) {
	if m == nil || m.storageChanges == nil {
		return
	}
	m.storageChanges.WithLabelValues(normalizeLabel(action)).Inc()
}

// ObserveIntervalClosed counts an interval close and records its duration.
func (m *MeteringMetrics) ObserveIntervalClosed(duration time.Duration) {
	if m == nil || m.intervalsClosed == nil {
		return
	}
	m.intervalsClosed.Inc()
	m.intervalDuration.Observe(duration.Seconds())
}

// IncWebhookEvent counts one handled webhook event by type.
func (m *MeteringMetrics) IncWebhookEvent(eventType string) {
	if m == nil || m.webhookEvents == nil {
		return
	}
	m.webhookEvents.WithLabelValues(normalizeLabel(eventType)).Inc()
}

// IncCheckoutSession counts a checkout session request by outcome.
func (m *MeteringMetrics) IncCheckoutSession(outcome string) {
	if m == nil || m.checkoutSessions == nil {
		return
	}
	m.checkoutSessions.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
