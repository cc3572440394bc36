package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains all Prometheus metrics for the MindMend voice service.
// Every Record method is safe on a nil *Metrics.
type Metrics struct {
	// Session metrics
	ActiveSessions prometheus.Gauge
	ListenCycles   *prometheus.CounterVec

	// Audio capture metrics
	ChunksReceived prometheus.Counter
	ChunksDropped  prometheus.Counter
	AudioErrors    prometheus.Counter

	// Wake word metrics
	WindowsEvaluated  prometheus.Counter
	WakeDetections    *prometheus.CounterVec
	DetectionDuration prometheus.Histogram

	// Transcription metrics
	TranscriptionRequests *prometheus.CounterVec
	TranscriptionDuration prometheus.Histogram

	// HTTP API metrics
	HTTPRequests        *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec
	HTTPErrors          *prometheus.CounterVec
}

// NewMetrics creates all metrics and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		ActiveSessions: factory.NewGauge(prometheus.GaugeOpts{
			Name: "mindmend_active_sessions",
			Help: "Current number of listen sessions",
		}),
		ListenCycles: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmend_listen_cycles_total",
			Help: "Total number of finished listen cycles by outcome",
		}, []string{"outcome"}),

		ChunksReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "mindmend_audio_chunks_received_total",
			Help: "Total number of audio chunks delivered by capture sources",
		}),
		ChunksDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "mindmend_audio_chunks_dropped_total",
			Help: "Total number of audio chunks dropped because the queue was full",
		}),
		AudioErrors: factory.NewCounter(prometheus.CounterOpts{
			Name: "mindmend_audio_errors_total",
			Help: "Total number of capture errors reported by audio sources",
		}),

		WindowsEvaluated: factory.NewCounter(prometheus.CounterOpts{
			Name: "mindmend_windows_evaluated_total",
			Help: "Total number of audio windows checked for a wake phrase",
		}),
		WakeDetections: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmend_wake_detections_total",
			Help: "Total number of wake phrase evaluations by result",
		}, []string{"result"}),
		DetectionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mindmend_wake_detection_duration_seconds",
			Help:    "Time spent evaluating one window",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms to ~25s
		}),

		TranscriptionRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmend_transcription_requests_total",
			Help: "Total number of transcription requests by outcome",
		}, []string{"outcome"}),
		TranscriptionDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "mindmend_transcription_duration_seconds",
			Help:    "Duration of transcription requests",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10), // 100ms to ~2 minutes
		}),

		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmend_http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"method", "endpoint", "status_code"}),
		HTTPRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "mindmend_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "endpoint"}),
		HTTPErrors: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "mindmend_http_errors_total",
			Help: "Total number of HTTP errors",
		}, []string{"method", "endpoint", "error_type"}),
	}
}

// SetActiveSessions sets the current number of sessions
func (m *Metrics) SetActiveSessions(count int) {
	if m == nil {
		return
	}
	m.ActiveSessions.Set(float64(count))
}

// RecordCycle counts a finished listen cycle
func (m *Metrics) RecordCycle(outcome string) {
	if m == nil {
		return
	}
	m.ListenCycles.WithLabelValues(outcome).Inc()
}

// RecordChunk counts a delivered chunk and whether it was dropped
func (m *Metrics) RecordChunk(dropped bool) {
	if m == nil {
		return
	}
	m.ChunksReceived.Inc()
	if dropped {
		m.ChunksDropped.Inc()
	}
}

// RecordAudioError counts a capture error
func (m *Metrics) RecordAudioError() {
	if m == nil {
		return
	}
	m.AudioErrors.Inc()
}

// RecordWindow counts an evaluated window
func (m *Metrics) RecordWindow() {
	if m == nil {
		return
	}
	m.WindowsEvaluated.Inc()
}

// RecordDetection records the result and latency of one wake evaluation
func (m *Metrics) RecordDetection(matched, failed bool, durationSeconds float64) {
	if m == nil {
		return
	}

	result := "no_match"
	switch {
	case failed:
		result = "failed"
	case matched:
		result = "matched"
	}
	m.WakeDetections.WithLabelValues(result).Inc()
	m.DetectionDuration.Observe(durationSeconds)
}

// RecordTranscription records one transcription request
func (m *Metrics) RecordTranscription(ok bool, durationSeconds float64) {
	if m == nil {
		return
	}

	outcome := "success"
	if !ok {
		outcome = "failure"
	}
	m.TranscriptionRequests.WithLabelValues(outcome).Inc()
	m.TranscriptionDuration.Observe(durationSeconds)
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, durationSeconds float64) {
	if m == nil {
		return
	}
	m.HTTPRequests.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(durationSeconds)
}

// RecordHTTPError records an HTTP error
func (m *Metrics) RecordHTTPError(method, endpoint, errorType string) {
	if m == nil {
		return
	}
	m.HTTPErrors.WithLabelValues(method, endpoint, errorType).Inc()
}
