package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the streaming
// speech-to-text service
type Metrics struct {
	// WebSocket connection metrics
	ActiveConnections  prometheus.Gauge
	ConnectionsOpened  prometheus.Counter
	ConnectionsClosed  prometheus.Counter
	ConnectionDuration prometheus.Histogram

	// WebSocket message metrics
	ControlMessages   *prometheus.CounterVec
	AudioBytesIn      prometheus.Counter
	MalformedMessages prometheus.Counter

	// Audio buffering metrics
	ChunksEmitted  prometheus.Counter
	ChunkSize      prometheus.Histogram
	OverflowBytes  prometheus.Counter
	QueueDepth     prometheus.Gauge

	// Transcription metrics
	TranscriptionRequests  prometheus.Counter
	TranscriptionSuccesses prometheus.Counter
	TranscriptionFailures  prometheus.Counter
	SilenceResults         prometheus.Counter
	TranscriptionDuration  prometheus.Histogram

	// One-shot transcription metrics
	OneShotRequests    prometheus.Counter
	OneShotConversions prometheus.Counter

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates and registers all Prometheus metrics
func NewMetrics() *Metrics {
	return &Metrics{
		// WebSocket connection metrics
		ActiveConnections: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stt_active_connections",
			Help: "Current number of open WebSocket connections",
		}),
		ConnectionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_connections_opened_total",
			Help: "Total number of WebSocket connections opened",
		}),
		ConnectionsClosed: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_connections_closed_total",
			Help: "Total number of WebSocket connections closed",
		}),
		ConnectionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_connection_duration_seconds",
			Help:    "Lifetime of WebSocket connections in seconds",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12), // 1s to ~68 minutes
		}),

		// WebSocket message metrics
		ControlMessages: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_control_messages_total",
			Help: "Total number of control messages received",
		}, []string{"type"}),
		AudioBytesIn: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_audio_bytes_received_total",
			Help: "Total raw audio bytes received over WebSocket",
		}),
		MalformedMessages: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_malformed_messages_total",
			Help: "Total number of unparseable control messages",
		}),

		// Audio buffering metrics
		ChunksEmitted: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_audio_chunks_emitted_total",
			Help: "Total number of audio chunks extracted for inference",
		}),
		ChunkSize: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_chunk_size_bytes",
			Help:    "Size of extracted audio chunks in bytes",
			Buckets: prometheus.ExponentialBuckets(1024, 2, 10), // 1KB to ~1MB
		}),
		OverflowBytes: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_buffer_overflow_bytes_total",
			Help: "Total audio bytes dropped to buffer overflow",
		}),
		QueueDepth: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "stt_inference_queue_depth",
			Help: "Current number of chunks waiting for inference",
		}),

		// Transcription metrics
		TranscriptionRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_requests_total",
			Help: "Total number of chunks submitted for transcription",
		}),
		TranscriptionSuccesses: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_successes_total",
			Help: "Total number of chunks that produced a transcript",
		}),
		TranscriptionFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_transcription_failures_total",
			Help: "Total number of chunks whose processing failed",
		}),
		SilenceResults: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_silence_results_total",
			Help: "Total number of chunks resolved as silence",
		}),
		TranscriptionDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Name:    "stt_transcription_duration_seconds",
			Help:    "End-to-end duration of chunk transcription",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		// One-shot transcription metrics
		OneShotRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_oneshot_requests_total",
			Help: "Total number of one-shot HTTP transcription requests",
		}),
		OneShotConversions: promauto.NewCounter(prometheus.CounterOpts{
			Name: "stt_oneshot_conversions_total",
			Help: "Total number of one-shot uploads run through the transcoder",
		}),

		// HTTP API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stt_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "stt_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// RecordConnectionOpened increments the connection counters
func (m *Metrics) RecordConnectionOpened() {
	m.ConnectionsOpened.Inc()
	m.ActiveConnections.Inc()
}

// RecordConnectionClosed decrements active connections and records the lifetime
func (m *Metrics) RecordConnectionClosed(durationSeconds float64) {
	m.ConnectionsClosed.Inc()
	m.ActiveConnections.Dec()
	m.ConnectionDuration.Observe(durationSeconds)
}

// RecordControlMessage counts one control message by type
func (m *Metrics) RecordControlMessage(msgType string) {
	m.ControlMessages.WithLabelValues(msgType).Inc()
}

// RecordAudioReceived counts raw audio bytes arriving over WebSocket
func (m *Metrics) RecordAudioReceived(bytes int) {
	m.AudioBytesIn.Add(float64(bytes))
}

// RecordMalformedMessage counts an unparseable control message
func (m *Metrics) RecordMalformedMessage() {
	m.MalformedMessages.Inc()
}

// RecordChunkEmitted records one extracted chunk and its size
func (m *Metrics) RecordChunkEmitted(sizeBytes int) {
	m.ChunksEmitted.Inc()
	m.ChunkSize.Observe(float64(sizeBytes))
}

// RecordOverflow counts audio bytes dropped on buffer overflow
func (m *Metrics) RecordOverflow(bytes int) {
	m.OverflowBytes.Add(float64(bytes))
}

// SetQueueDepth sets the current inference queue depth
func (m *Metrics) SetQueueDepth(depth int) {
	m.QueueDepth.Set(float64(depth))
}

// RecordTranscription records the outcome of one chunk transcription
func (m *Metrics) RecordTranscription(success bool, silent bool, durationSeconds float64) {
	m.TranscriptionRequests.Inc()
	switch {
	case !success:
		m.TranscriptionFailures.Inc()
	case silent:
		m.SilenceResults.Inc()
	default:
		m.TranscriptionSuccesses.Inc()
	}
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordOneShot records a one-shot HTTP transcription request
func (m *Metrics) RecordOneShot(converted bool) {
	m.OneShotRequests.Inc()
	if converted {
		m.OneShotConversions.Inc()
	}
}

// RecordHTTPRequest records an HTTP request with its status
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error by type
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
