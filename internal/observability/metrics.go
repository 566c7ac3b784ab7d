package observability

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type moduleMetrics struct {
	chatTurnsTotal   *prometheus.CounterVec
	chatTurnDuration prometheus.Histogram

	providerCallsTotal   *prometheus.CounterVec
	providerCallDuration *prometheus.HistogramVec

	activeSessions  prometheus.Gauge
	sessionsCreated prometheus.Counter

	archivesTotal   *prometheus.CounterVec
	archiveDuration prometheus.Histogram
	archivedTurns   prometheus.Histogram
}

var (
	metricsOnce sync.Once
	metricsInst *moduleMetrics
)

func getMetrics() *moduleMetrics {
	metricsOnce.Do(func() {
		m := &moduleMetrics{
			chatTurnsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "chat_turns_total",
					Help: "Total chat turns served by outcome.",
				},
				[]string{"status"},
			),
			chatTurnDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "chat_turn_duration_seconds",
					Help:    "End-to-end chat turn duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			providerCallsTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "provider_calls_total",
					Help: "Total completion provider calls by provider and status.",
				},
				[]string{"provider", "status"},
			),
			providerCallDuration: prometheus.NewHistogramVec(
				prometheus.HistogramOpts{
					Name:    "provider_call_duration_seconds",
					Help:    "Completion provider call duration in seconds by provider.",
					Buckets: prometheus.DefBuckets,
				},
				[]string{"provider"},
			),
			activeSessions: prometheus.NewGauge(
				prometheus.GaugeOpts{
					Name: "active_sessions",
					Help: "Current in-memory session count.",
				},
			),
			sessionsCreated: prometheus.NewCounter(
				prometheus.CounterOpts{
					Name: "sessions_created_total",
					Help: "Total sessions created.",
				},
			),
			archivesTotal: prometheus.NewCounterVec(
				prometheus.CounterOpts{
					Name: "archives_total",
					Help: "Total transcript archive attempts by status.",
				},
				[]string{"status"},
			),
			archiveDuration: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "archive_duration_seconds",
					Help:    "Transcript archive write duration in seconds.",
					Buckets: prometheus.DefBuckets,
				},
			),
			archivedTurns: prometheus.NewHistogram(
				prometheus.HistogramOpts{
					Name:    "archived_turns",
					Help:    "Turn count of archived transcripts.",
					Buckets: []float64{0, 1, 2, 5, 10, 20, 50},
				},
			),
		}

		prometheus.MustRegister(
			m.chatTurnsTotal,
			m.chatTurnDuration,
			m.providerCallsTotal,
			m.providerCallDuration,
			m.activeSessions,
			m.sessionsCreated,
			m.archivesTotal,
			m.archiveDuration,
			m.archivedTurns,
		)

		metricsInst = m
	})

	return metricsInst
}

// EnsureRegistered initializes and registers metrics the first time it is called.
func EnsureRegistered() {
	_ = getMetrics()
}

func MetricsHandler() http.Handler {
	EnsureRegistered()
	return promhttp.Handler()
}

func RecordChatTurn(duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.chatTurnsTotal.WithLabelValues(status).Inc()
	m.chatTurnDuration.Observe(duration.Seconds())
}

func RecordProviderCall(provider string, duration time.Duration, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.providerCallsTotal.WithLabelValues(provider, status).Inc()
	m.providerCallDuration.WithLabelValues(provider).Observe(duration.Seconds())
}

func SetActiveSessions(count int) {
	getMetrics().activeSessions.Set(float64(count))
}

func RecordSessionCreated() {
	getMetrics().sessionsCreated.Inc()
}

func RecordArchive(duration time.Duration, turns int, success bool) {
	m := getMetrics()
	status := "error"
	if success {
		status = "success"
	}
	m.archivesTotal.WithLabelValues(status).Inc()
	m.archiveDuration.Observe(duration.Seconds())
	if success {
		m.archivedTurns.Observe(float64(turns))
	}
}
