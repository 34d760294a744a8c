package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the transcription service
type Metrics struct {
	// Chunk ingest metrics
	ChunksReceived   prometheus.Counter
	ChunkBytesRaw    prometheus.Counter
	ChunkBytesStored prometheus.Counter
	ChunkErrors      prometheus.Counter
	ChunkSize        prometheus.Histogram

	// Session metrics
	ActiveSessions   prometheus.Gauge
	SessionsCreated  prometheus.Counter
	SessionsExpired  prometheus.Counter
	SessionsFinished prometheus.Counter
	SessionDuration  prometheus.Histogram

	// Finalize metrics
	FinalizeRequests prometheus.Counter
	FinalizeFailures prometheus.Counter
	AudioDuration    prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// Chunk ingest metrics
		ChunksReceived: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunks_received_total",
			Help: "Total number of audio chunks received",
		}),
		ChunkBytesRaw: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunk_bytes_raw_total",
			Help: "Total number of raw mu-law bytes received",
		}),
		ChunkBytesStored: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunk_bytes_stored_total",
			Help: "Total number of PCM bytes stored after decode and resample",
		}),
		ChunkErrors: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_chunk_errors_total",
			Help: "Total number of chunk uploads rejected",
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_chunk_size_bytes",
			Help:    "Size of received audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(256, 2, 12), // 256B to ~1MB
		}),

		// Session metrics
		ActiveSessions: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "scribe_active_sessions",
			Help: "Current number of active recording sessions",
		}),
		SessionsCreated: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_created_total",
			Help: "Total number of sessions created",
		}),
		SessionsExpired: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_expired_total",
			Help: "Total number of sessions removed by the expiry sweep",
		}),
		SessionsFinished: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_sessions_finished_total",
			Help: "Total number of sessions finalized",
		}),
		SessionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_session_duration_seconds",
			Help:    "Wall-clock lifetime of sessions at finalize",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~34 minutes
		}),

		// Finalize metrics
		FinalizeRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_finalize_requests_total",
			Help: "Total number of finalize requests",
		}),
		FinalizeFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_finalize_failures_total",
			Help: "Total number of finalize requests that failed",
		}),
		AudioDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_audio_duration_seconds",
			Help:    "Duration of finalized recordings in audio seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 11), // 1s to ~34 minutes
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_requests_total",
			Help: "Total number of transcription requests sent",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_successes_total",
			Help: "Total number of successful transcription requests",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "scribe_transcription_failures_total",
			Help: "Total number of failed transcription requests",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "scribe_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "scribe_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "scribe_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordChunkReceived records an accepted chunk upload
func (m *Metrics) RecordChunkReceived(rawBytes, storedBytes int) {
	m.ChunksReceived.Inc()
	m.ChunkBytesRaw.Add(float64(rawBytes))
	m.ChunkBytesStored.Add(float64(storedBytes))
	m.ChunkSize.Observe(float64(rawBytes))
}

// RecordChunkError increments the rejected chunk counter
func (m *Metrics) RecordChunkError() {
	m.ChunkErrors.Inc()
}

// SetActiveSessions sets the current number of active sessions
func (m *Metrics) SetActiveSessions(count int) {
	m.ActiveSessions.Set(float64(count))
}

// RecordSessionCreated increments the sessions created counter
func (m *Metrics) RecordSessionCreated() {
	m.SessionsCreated.Inc()
}

// RecordSessionsExpired adds to the expired sessions counter
func (m *Metrics) RecordSessionsExpired(count int) {
	m.SessionsExpired.Add(float64(count))
}

// RecordSessionFinished records a finalized session and its wall-clock lifetime
func (m *Metrics) RecordSessionFinished(lifetimeSeconds float64) {
	m.SessionsFinished.Inc()
	m.SessionDuration.Observe(lifetimeSeconds)
}

// RecordFinalize records a finalize request and the recording length on success
func (m *Metrics) RecordFinalize(audioSeconds float64, failed bool) {
	m.FinalizeRequests.Inc()
	if failed {
		m.FinalizeFailures.Inc()
		return
	}
	m.AudioDuration.Observe(audioSeconds)
}

// RecordTranscriptionRequest increments transcription requests counter
func (m *Metrics) RecordTranscriptionRequest() {
	m.TranscriptionRequests.Inc()
}

// RecordTranscriptionSuccess records a successful transcription
func (m *Metrics) RecordTranscriptionSuccess(durationSeconds float64) {
	m.TranscriptionSuccesses.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordTranscriptionFailure records a failed transcription
func (m *Metrics) RecordTranscriptionFailure(durationSeconds float64) {
	m.TranscriptionFailures.Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
