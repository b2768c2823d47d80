package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ServerMetrics collects the file server's operational metrics.
//
// All methods are safe on a nil receiver (metrics disabled).
type ServerMetrics struct {
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	sessionsActive      prometheus.Gauge
	commandsTotal       *prometheus.CounterVec
	bytesUploaded       prometheus.Counter
	bytesDownloaded     prometheus.Counter
	taskQueueDepth      prometheus.Gauge
}

// NewServerMetrics creates Prometheus-backed server metrics.
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewServerMetrics() *ServerMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &ServerMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "depot_connections_accepted_total",
			Help: "Total number of accepted client connections",
		}),
		connectionsRejected: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "depot_connections_rejected_total",
			Help: "Total number of connections closed because the connection queue was full",
		}),
		sessionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "depot_sessions_active",
			Help: "Number of client sessions currently being served",
		}),
		commandsTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "depot_commands_total",
				Help: "Total number of commands processed by verb and outcome",
			},
			[]string{"verb", "status"}, // status: "ok" or "error"
		),
		bytesUploaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "depot_bytes_uploaded_total",
			Help: "Total number of file body bytes received from clients",
		}),
		bytesDownloaded: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "depot_bytes_downloaded_total",
			Help: "Total number of file body bytes sent to clients",
		}),
		taskQueueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "depot_task_queue_depth",
			Help: "Number of tasks waiting for a file worker",
		}),
	}
}

// ConnectionAccepted records an accepted connection.
func (m *ServerMetrics) ConnectionAccepted() {
	if m == nil {
		return
	}
	m.connectionsAccepted.Inc()
}

// ConnectionRejected records a connection closed at accept time.
func (m *ServerMetrics) ConnectionRejected() {
	if m == nil {
		return
	}
	m.connectionsRejected.Inc()
}

// SessionStarted marks a session worker picking up a connection.
func (m *ServerMetrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsActive.Inc()
}

// SessionEnded marks a session worker releasing its connection.
func (m *ServerMetrics) SessionEnded() {
	if m == nil {
		return
	}
	m.sessionsActive.Dec()
}

// CommandProcessed records one command with its outcome.
func (m *ServerMetrics) CommandProcessed(verb string, ok bool) {
	if m == nil {
		return
	}
	status := "ok"
	if !ok {
		status = "error"
	}
	m.commandsTotal.WithLabelValues(verb, status).Inc()
}

// BytesUploaded adds received body bytes.
func (m *ServerMetrics) BytesUploaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesUploaded.Add(float64(n))
}

// BytesDownloaded adds sent body bytes.
func (m *ServerMetrics) BytesDownloaded(n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.bytesDownloaded.Add(float64(n))
}

// SetTaskQueueDepth records the current task queue length.
func (m *ServerMetrics) SetTaskQueueDepth(n int) {
	if m == nil {
		return
	}
	m.taskQueueDepth.Set(float64(n))
}
