// Package metrics provides Prometheus collectors and per-session summaries.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "windowed_transcriber"

// Metrics holds the process-wide Prometheus collectors.
type Metrics struct {
	SessionsTotal    *prometheus.CounterVec
	SessionsActive   prometheus.Gauge
	SessionsRejected *prometheus.CounterVec
	SessionsEnded    *prometheus.CounterVec
	SessionDuration  prometheus.Histogram

	AudioSamples    prometheus.Counter
	AudioFrames     prometheus.Counter
	WindowsTotal    *prometheus.CounterVec
	TranscribeTime  *prometheus.HistogramVec
	TranscribeError *prometheus.CounterVec
	WorkersInFlight prometheus.Gauge

	FragmentsEmitted     prometheus.Counter
	DuplicatesSuppressed prometheus.Counter
	FanoutErrors         *prometheus.CounterVec
	SinkWrites           *prometheus.CounterVec
	SinkLatency          *prometheus.HistogramVec
}

// DefaultMetrics is the global metrics instance.
var DefaultMetrics = NewMetrics(prometheus.DefaultRegisterer)

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		SessionsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_total",
			Help:      "Total number of streaming sessions started",
		}, []string{"transport"}),
		SessionsActive: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sessions_active",
			Help:      "Number of currently active sessions",
		}),
		SessionsRejected: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_rejected_total",
			Help:      "Sessions rejected during setup",
		}, []string{"transport", "reason"}),
		SessionsEnded: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sessions_ended_total",
			Help:      "Sessions ended, by outcome",
		}, []string{"outcome"}),
		SessionDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "session_duration_seconds",
			Help:      "Duration of sessions in seconds",
			Buckets:   []float64{1, 5, 10, 30, 60, 120, 300, 900, 1800},
		}),
		AudioSamples: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_samples_received_total",
			Help:      "Total audio samples received",
		}),
		AudioFrames: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audio_frames_received_total",
			Help:      "Total audio frames received",
		}),
		WindowsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "windows_total",
			Help:      "Windows scheduled for transcription",
		}, []string{"kind"}),
		TranscribeTime: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "transcribe_latency_seconds",
			Help:      "Per-window transcription latency in seconds",
			Buckets:   []float64{0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		}, []string{"engine"}),
		TranscribeError: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "transcribe_errors_total",
			Help:      "Windows whose transcription failed",
		}, []string{"engine", "error_type"}),
		WorkersInFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "transcribe_in_flight",
			Help:      "Transcription calls currently holding a worker",
		}),
		FragmentsEmitted: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fragments_emitted_total",
			Help:      "Committed transcript fragments emitted",
		}),
		DuplicatesSuppressed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "duplicates_suppressed_total",
			Help:      "Commits suppressed because they repeated the previous fragment",
		}),
		FanoutErrors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "fanout_errors_total",
			Help:      "Errors delivering fragments to secondary sinks",
		}, []string{"sink"}),
		SinkWrites: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sink_writes_total",
			Help:      "Writes to secondary sinks, by sink, kind and status",
		}, []string{"sink", "kind", "status"}),
		SinkLatency: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sink_write_latency_seconds",
			Help:      "Latency of writes to secondary sinks",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}, []string{"sink"}),
	}
}

// RecordSessionStart records a new session starting.
func (m *Metrics) RecordSessionStart(transport string) {
	m.SessionsTotal.WithLabelValues(transport).Inc()
	m.SessionsActive.Inc()
}

// RecordSessionEnd records a session ending with the given outcome
// (completed, disconnected, failed).
func (m *Metrics) RecordSessionEnd(outcome string, durationSeconds float64) {
	m.SessionsActive.Dec()
	m.SessionsEnded.WithLabelValues(outcome).Inc()
	m.SessionDuration.Observe(durationSeconds)
}

// RecordRejected records a session refused before streaming began.
func (m *Metrics) RecordRejected(transport, reason string) {
	m.SessionsRejected.WithLabelValues(transport, reason).Inc()
}

// RecordAudio records one inbound frame of n samples.
func (m *Metrics) RecordAudio(n int) {
	m.AudioFrames.Inc()
	m.AudioSamples.Add(float64(n))
}

// RecordWindow records a scheduled window; kind is "full" or "tail".
func (m *Metrics) RecordWindow(kind string) {
	m.WindowsTotal.WithLabelValues(kind).Inc()
}

// RecordTranscribe records one engine call.
func (m *Metrics) RecordTranscribe(engine string, seconds float64, errorType string) {
	m.TranscribeTime.WithLabelValues(engine).Observe(seconds)
	if errorType != "" {
		m.TranscribeError.WithLabelValues(engine, errorType).Inc()
	}
}

// RecordFragment records an emitted fragment.
func (m *Metrics) RecordFragment() {
	m.FragmentsEmitted.Inc()
}

// RecordDuplicate records a suppressed duplicate commit.
func (m *Metrics) RecordDuplicate() {
	m.DuplicatesSuppressed.Inc()
}

// RecordFanoutError records a failed delivery to a secondary sink.
func (m *Metrics) RecordFanoutError(sink string) {
	m.FanoutErrors.WithLabelValues(sink).Inc()
}

// RecordSinkWrite records one write to a secondary sink.
func (m *Metrics) RecordSinkWrite(sink, kind string, err error, seconds float64) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.SinkWrites.WithLabelValues(sink, kind, status).Inc()
	m.SinkLatency.WithLabelValues(sink).Observe(seconds)
}
