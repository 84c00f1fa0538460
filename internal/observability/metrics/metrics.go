// Package metrics provides Prometheus metrics for observability.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "speaking_practice"

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	// Turn-taking metrics
	PhaseTransitions *prometheus.CounterVec
	PhaseRejections  *prometheus.CounterVec
	TurnsTotal       *prometheus.CounterVec

	// Capture metrics
	RecordingsTotal     prometheus.Counter
	RecordingsActive    prometheus.Gauge
	RecordingDuration   prometheus.Histogram
	AudioBytesCaptured  prometheus.Counter
	AudioChunksCaptured prometheus.Counter
	AudioChunksDropped  prometheus.Counter

	// Transcription metrics
	TranscriptionAttempts *prometheus.CounterVec
	TranscriptionResults  *prometheus.CounterVec
	TranscriptionLatency  *prometheus.HistogramVec

	// Language-model metrics
	LLMRequests *prometheus.CounterVec
	LLMLatency  prometheus.Histogram

	// Synthesis metrics
	SynthesisEvents   *prometheus.CounterVec
	SynthesisSegments prometheus.Counter

	// Kafka publish metrics
	KafkaPublishTotal   *prometheus.CounterVec
	KafkaPublishErrors  *prometheus.CounterVec
	KafkaPublishLatency *prometheus.HistogramVec

	// HTTP control API metrics
	HTTPRequests *prometheus.CounterVec
	HTTPLatency  *prometheus.HistogramVec
	WSClients    prometheus.Gauge
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics()

// NewMetrics creates and registers all Prometheus metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		// Turn-taking metrics
		PhaseTransitions: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_transitions_total",
			Help:      "Total number of coordinator phase transitions",
		}, []string{"from", "to"}),
		PhaseRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "phase_rejections_total",
			Help:      "Total number of commands rejected by the current phase",
		}, []string{"command", "phase"}),
		TurnsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "turns_total",
			Help:      "Total number of conversation turns appended",
		}, []string{"speaker", "scripted"}),

		// Capture metrics
		RecordingsTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "recordings_total",
			Help:      "Total number of recordings started",
		}),
		RecordingsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "recordings_active",
			Help:      "Number of recordings currently buffering",
		}),
		RecordingDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "recording_duration_seconds",
			Help:      "Duration of recordings in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 30, 60, 120},
		}),
		AudioBytesCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_bytes_captured_total",
			Help:      "Total audio bytes buffered from the microphone",
		}),
		AudioChunksCaptured: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_captured_total",
			Help:      "Total audio chunks buffered from the microphone",
		}),
		AudioChunksDropped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_chunks_dropped_total",
			Help:      "Total audio chunks dropped because they arrived outside a recording",
		}),

		// Transcription metrics
		TranscriptionAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_attempts_total",
			Help:      "Total number of transcription requests sent to a backend",
		}, []string{"provider", "outcome"}),
		TranscriptionResults: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcription_results_total",
			Help:      "Total number of transcription calls by result kind",
		}, []string{"kind"}),
		TranscriptionLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcription_latency_seconds",
			Help:      "Latency of single transcription requests in seconds",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
		}, []string{"provider"}),

		// Language-model metrics
		LLMRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "llm_requests_total",
			Help:      "Total number of language-model requests",
		}, []string{"outcome"}),
		LLMLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "llm_latency_seconds",
			Help:      "Language-model reply latency in seconds",
			Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30},
		}),

		// Synthesis metrics
		SynthesisEvents: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_events_total",
			Help:      "Total number of speech synthesis events",
		}, []string{"event"}),
		SynthesisSegments: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "synthesis_segments_total",
			Help:      "Total number of segments handed to the speech engine",
		}),

		// Kafka publish metrics
		KafkaPublishTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_total",
			Help:      "Total number of Kafka messages published",
		}, []string{"topic", "event_type"}),
		KafkaPublishErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "kafka_publish_errors_total",
			Help:      "Total number of Kafka publish errors",
		}, []string{"topic", "event_type"}),
		KafkaPublishLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "kafka_publish_latency_seconds",
			Help:      "Kafka publish latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}, []string{"topic"}),

		// HTTP control API metrics
		HTTPRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of control API requests",
		}, []string{"method", "route", "status"}),
		HTTPLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Control API request latency in seconds",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"method", "route"}),
		WSClients: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "ws_clients_active",
			Help:      "Number of connected event stream clients",
		}),
	}
}

// RecordPhaseTransition records a coordinator phase change.
func (m *Metrics) RecordPhaseTransition(from, to string) {
	m.PhaseTransitions.WithLabelValues(from, to).Inc()
}

// RecordRejected records a command refused in the current phase.
func (m *Metrics) RecordRejected(command, phase string) {
	m.PhaseRejections.WithLabelValues(command, phase).Inc()
}

// RecordTurn records an appended conversation turn.
func (m *Metrics) RecordTurn(speaker string, scripted bool) {
	s := "false"
	if scripted {
		s = "true"
	}
	m.TurnsTotal.WithLabelValues(speaker, s).Inc()
}

// RecordRecordingStart records a new recording span.
func (m *Metrics) RecordRecordingStart() {
	m.RecordingsTotal.Inc()
	m.RecordingsActive.Inc()
}

// RecordRecordingEnd records the end of a recording span.
func (m *Metrics) RecordRecordingEnd(durationSeconds float64) {
	m.RecordingsActive.Dec()
	m.RecordingDuration.Observe(durationSeconds)
}

// RecordAudioCaptured records one buffered audio chunk.
func (m *Metrics) RecordAudioCaptured(bytes int) {
	m.AudioBytesCaptured.Add(float64(bytes))
	m.AudioChunksCaptured.Inc()
}

// RecordAudioDropped records a chunk discarded at a session boundary.
func (m *Metrics) RecordAudioDropped() {
	m.AudioChunksDropped.Inc()
}

// RecordTranscriptionAttempt records one backend request.
func (m *Metrics) RecordTranscriptionAttempt(provider, outcome string, latencySeconds float64) {
	m.TranscriptionAttempts.WithLabelValues(provider, outcome).Inc()
	m.TranscriptionLatency.WithLabelValues(provider).Observe(latencySeconds)
}

// RecordTranscriptionResult records the terminal result kind of a Transcribe call.
func (m *Metrics) RecordTranscriptionResult(kind string) {
	m.TranscriptionResults.WithLabelValues(kind).Inc()
}

// RecordLLMRequest records a language-model request outcome.
func (m *Metrics) RecordLLMRequest(outcome string, latencySeconds float64) {
	m.LLMRequests.WithLabelValues(outcome).Inc()
	m.LLMLatency.Observe(latencySeconds)
}

// RecordSynthesisEvent records a synthesizer event.
func (m *Metrics) RecordSynthesisEvent(event string) {
	m.SynthesisEvents.WithLabelValues(event).Inc()
}

// RecordSynthesisSegment records a segment handed to the engine.
func (m *Metrics) RecordSynthesisSegment() {
	m.SynthesisSegments.Inc()
}

// RecordKafkaPublish records a Kafka publish attempt.
func (m *Metrics) RecordKafkaPublish(topic, eventType string, err error, latencySeconds float64) {
	m.KafkaPublishTotal.WithLabelValues(topic, eventType).Inc()
	m.KafkaPublishLatency.WithLabelValues(topic).Observe(latencySeconds)
	if err != nil {
		m.KafkaPublishErrors.WithLabelValues(topic, eventType).Inc()
	}
}

// RecordHTTPRequest records a handled control API request.
func (m *Metrics) RecordHTTPRequest(method, route, status string, latencySeconds float64) {
	m.HTTPRequests.WithLabelValues(method, route, status).Inc()
	m.HTTPLatency.WithLabelValues(method, route).Observe(latencySeconds)
}
