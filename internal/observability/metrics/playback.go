// Package metrics provides Prometheus metrics for the bob speaker controller
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/Tenemo/bob/internal/audiocore"
)

// PlaybackMetrics contains Prometheus metrics for the playback engine and controller.
// It implements audiocore.Recorder and audiocore.SessionObserver.
type PlaybackMetrics struct {
	registry *prometheus.Registry

	operationsTotal   *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	errorsTotal       *prometheus.CounterVec
	bytesWrittenTotal prometheus.Counter
	sessionsStarted   *prometheus.CounterVec
	sessionsEnded     *prometheus.CounterVec
	sessionActive     prometheus.Gauge
	sessionSampleRate prometheus.Gauge
	uploadsTotal      *prometheus.CounterVec
	uploadBytesTotal  prometheus.Counter

	collectors []prometheus.Collector
}

// NewPlaybackMetrics creates and registers new playback metrics
func NewPlaybackMetrics(registry *prometheus.Registry) (*PlaybackMetrics, error) {
	m := &PlaybackMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

func (m *PlaybackMetrics) initMetrics() {
	m.operationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_operations_total",
			Help: "Total number of playback operations by status",
		},
		[]string{"operation", "status"},
	)

	m.operationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "playback_operation_duration_seconds",
			Help:    "Duration of playback operations",
			Buckets: prometheus.ExponentialBuckets(0.00001, 4, 10), // 10µs to ~2.6s
		},
		[]string{"operation"},
	)

	m.errorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_errors_total",
			Help: "Total number of playback errors",
		},
		[]string{"operation", "error_type"},
	)

	m.bytesWrittenTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_bytes_written_total",
		Help: "Total PCM bytes accepted by the output peripheral",
	})

	m.sessionsStarted = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_sessions_started_total",
			Help: "Total number of playback sessions started",
		},
		[]string{"kind"},
	)

	m.sessionsEnded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_sessions_ended_total",
			Help: "Total number of playback sessions ended",
		},
		[]string{"reason", "complete"},
	)

	m.sessionActive = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_session_active",
		Help: "Whether a playback session is live (1) or not (0)",
	})

	m.sessionSampleRate = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "playback_session_sample_rate_hz",
		Help: "Sample rate of the live playback session",
	})

	m.uploadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "playback_uploads_total",
			Help: "Total number of audio uploads by status",
		},
		[]string{"status"},
	)

	m.uploadBytesTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "playback_upload_bytes_total",
		Help: "Total bytes received through uploads",
	})

	m.collectors = []prometheus.Collector{
		m.operationsTotal,
		m.operationDuration,
		m.errorsTotal,
		m.bytesWrittenTotal,
		m.sessionsStarted,
		m.sessionsEnded,
		m.sessionActive,
		m.sessionSampleRate,
		m.uploadsTotal,
		m.uploadBytesTotal,
	}
}

// Describe implements the prometheus.Collector interface
func (m *PlaybackMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, collector := range m.collectors {
		collector.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *PlaybackMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, collector := range m.collectors {
		collector.Collect(ch)
	}
}

// RecordOperation records an operation with its status
func (m *PlaybackMetrics) RecordOperation(operation, status string) {
	m.operationsTotal.WithLabelValues(operation, status).Inc()
}

// RecordDuration records the duration of an operation in seconds
func (m *PlaybackMetrics) RecordDuration(operation string, seconds float64) {
	m.operationDuration.WithLabelValues(operation).Observe(seconds)
}

// RecordError records an error occurrence with its type
func (m *PlaybackMetrics) RecordError(operation, errorType string) {
	m.errorsTotal.WithLabelValues(operation, errorType).Inc()
}

// AddBytesWritten counts PCM bytes accepted by the peripheral
func (m *PlaybackMetrics) AddBytesWritten(n int) {
	if n > 0 {
		m.bytesWrittenTotal.Add(float64(n))
	}
}

// SessionStarted implements audiocore.SessionObserver
func (m *PlaybackMetrics) SessionStarted(info audiocore.SessionInfo) {
	m.sessionsStarted.WithLabelValues(info.Kind).Inc()
	m.sessionActive.Set(1)
	m.sessionSampleRate.Set(float64(info.SampleRate))
}

// SessionEnded implements audiocore.SessionObserver
func (m *PlaybackMetrics) SessionEnded(info audiocore.SessionInfo) {
	complete := "false"
	if info.Complete {
		complete = "true"
	}
	m.sessionsEnded.WithLabelValues(info.Reason, complete).Inc()
	m.sessionActive.Set(0)
	m.sessionSampleRate.Set(0)
}

// RecordUpload records a finished or rejected upload
func (m *PlaybackMetrics) RecordUpload(status string, bytes int) {
	m.uploadsTotal.WithLabelValues(status).Inc()
	if bytes > 0 {
		m.uploadBytesTotal.Add(float64(bytes))
	}
}

// SessionActive returns the current value of the session gauge
func (m *PlaybackMetrics) SessionActive() float64 {
	metric := &dto.Metric{}
	if err := m.sessionActive.Write(metric); err != nil {
		return 0
	}
	if metric.Gauge != nil && metric.Gauge.Value != nil {
		return *metric.Gauge.Value
	}
	return 0
}
