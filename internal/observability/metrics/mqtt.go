package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MQTT error operations
const (
	MQTTOpConnect   = "connect"
	MQTTOpSubscribe = "subscribe"
	MQTTOpPublish   = "publish"
	MQTTOpLost      = "connection_lost"
)

// MQTTMetrics tracks the MQTT remote control link. Fields are exported for tests.
type MQTTMetrics struct {
	ConnectionStatus  prometheus.Gauge
	LastConnectTime   prometheus.Gauge
	ReconnectAttempts prometheus.Counter
	StatusPublished   *prometheus.CounterVec // by event
	CommandsReceived  *prometheus.CounterVec // by command and status
	Errors            *prometheus.CounterVec // by operation
	PublishLatency    prometheus.Histogram

	collectors []prometheus.Collector
}

// NewMQTTMetrics creates and registers the MQTT metrics
func NewMQTTMetrics(registry *prometheus.Registry) (*MQTTMetrics, error) {
	m := &MQTTMetrics{
		ConnectionStatus: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_connection_status",
			Help: "1 while connected to the broker, 0 otherwise",
		}),
		LastConnectTime: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "mqtt_last_connect_time_seconds",
			Help: "Unix time of the last successful broker connection",
		}),
		ReconnectAttempts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "mqtt_reconnect_attempts_total",
			Help: "Total number of automatic reconnect attempts",
		}),
		StatusPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_status_published_total",
			Help: "Total number of playback status messages published",
		}, []string{"event"}),
		CommandsReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_commands_received_total",
			Help: "Total number of control commands received",
		}, []string{"command", "status"}),
		Errors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "mqtt_errors_total",
			Help: "Total number of MQTT failures",
		}, []string{"operation"}),
		PublishLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "mqtt_publish_latency_seconds",
			Help:    "Time from publish until the broker acknowledged it",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10), // 1ms to ~0.5s
		}),
	}
	m.collectors = []prometheus.Collector{
		m.ConnectionStatus, m.LastConnectTime, m.ReconnectAttempts,
		m.StatusPublished, m.CommandsReceived, m.Errors, m.PublishLatency,
	}
	if err := registry.Register(m); err != nil {
		return nil, err
	}
	return m, nil
}

// UpdateConnectionStatus sets the connection gauge and stamps successful connects
func (m *MQTTMetrics) UpdateConnectionStatus(connected bool) {
	if !connected {
		m.ConnectionStatus.Set(0)
		return
	}
	m.ConnectionStatus.Set(1)
	m.LastConnectTime.SetToCurrentTime()
}

// RecordReconnect counts an automatic reconnect attempt
func (m *MQTTMetrics) RecordReconnect() { m.ReconnectAttempts.Inc() }

// RecordStatusPublished counts a status message acknowledged after elapsed
func (m *MQTTMetrics) RecordStatusPublished(event string, elapsed time.Duration) {
	m.StatusPublished.WithLabelValues(event).Inc()
	m.PublishLatency.Observe(elapsed.Seconds())
}

// RecordCommand counts a control command by outcome
func (m *MQTTMetrics) RecordCommand(command, status string) {
	m.CommandsReceived.WithLabelValues(command, status).Inc()
}

// RecordError counts a failed MQTT operation
func (m *MQTTMetrics) RecordError(operation string) {
	m.Errors.WithLabelValues(operation).Inc()
}

// Describe implements the prometheus.Collector interface
func (m *MQTTMetrics) Describe(ch chan<- *prometheus.Desc) {
	for _, c := range m.collectors {
		c.Describe(ch)
	}
}

// Collect implements the prometheus.Collector interface
func (m *MQTTMetrics) Collect(ch chan<- prometheus.Metric) {
	for _, c := range m.collectors {
		c.Collect(ch)
	}
}
