package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	namespace = "jan"
	subsystem = "chat_api"
)

// Chat-API Metrics
var (
	// HTTP
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "endpoint", "status"},
	)

	// Turns
	TurnsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turns_total",
			Help:      "Total chat turns by outcome",
		},
		[]string{"outcome", "regenerate"},
	)

	TurnDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "turn_duration_seconds",
			Help:      "Wall time of a chat turn from acquire to release",
			Buckets:   []float64{0.5, 1, 2, 5, 10, 30, 60, 120},
		},
		[]string{"outcome"},
	)

	FirstChunkDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "first_chunk_seconds",
			Help:      "Time to first streamed chunk",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5},
		},
	)

	ChunksTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "chunks_total",
			Help:      "Total streamed chunks received from the provider",
		},
	)

	ActiveGenerations = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_generations",
			Help:      "Generations currently in flight",
		},
	)

	QuotaDeniedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "quota_denied_total",
			Help:      "Turns rejected by the anonymous quota",
		},
	)

	// Persistence
	PersistenceWritesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "persistence_writes_total",
			Help:      "Persistence writes by kind and status",
		},
		[]string{"kind", "status"},
	)

	PersistenceAttempts = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "persistence_attempts",
			Help:      "Attempts needed per persistence write",
			Buckets:   []float64{1, 2, 3},
		},
		[]string{"kind"},
	)

	// Titles
	TitlesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "titles_total",
			Help:      "Title derivations by outcome",
		},
		[]string{"outcome"},
	)

	// Sessions
	ActiveSessions = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      "active_sessions",
			Help:      "Sessions held in the registry",
		},
	)
)

// RecordRequest records an HTTP request
func RecordRequest(method, endpoint string, status int, durationSec float64) {
	statusStr := strconv.Itoa(status)
	RequestsTotal.WithLabelValues(method, endpoint, statusStr).Inc()
	RequestDuration.WithLabelValues(method, endpoint, statusStr).Observe(durationSec)
}

// Recorder forwards domain lifecycle signals to the collectors above.
type Recorder struct{}

func NewRecorder() *Recorder {
	return &Recorder{}
}

func (Recorder) GenerationStarted() {
	ActiveGenerations.Inc()
}

func (Recorder) GenerationFinished(outcome string, regenerate bool, elapsed time.Duration) {
	ActiveGenerations.Dec()
	TurnsTotal.WithLabelValues(outcome, strconv.FormatBool(regenerate)).Inc()
	TurnDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

func (Recorder) FirstChunk(elapsed time.Duration) {
	FirstChunkDuration.Observe(elapsed.Seconds())
}

func (Recorder) ChunkReceived() {
	ChunksTotal.Inc()
}

func (Recorder) QuotaDenied() {
	QuotaDeniedTotal.Inc()
}

func (Recorder) ObserveWrite(kind string, attempts int, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	PersistenceWritesTotal.WithLabelValues(kind, status).Inc()
	if attempts > 0 {
		PersistenceAttempts.WithLabelValues(kind).Observe(float64(attempts))
	}
}

func (Recorder) ObserveTitle(outcome string) {
	TitlesTotal.WithLabelValues(outcome).Inc()
}

func (Recorder) SessionsChanged(count int) {
	ActiveSessions.Set(float64(count))
}
