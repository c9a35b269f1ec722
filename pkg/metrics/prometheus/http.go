package prometheus

import (
	"strconv"
	"time"

	"github.com/marmos91/dittoserve/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// serverMetrics is the Prometheus implementation of metrics.ServerMetrics.
type serverMetrics struct {
	connectionsAccepted    prometheus.Counter
	connectionsClosed      prometheus.Counter
	connectionsAbandoned   prometheus.Counter
	connectionsForceClosed prometheus.Counter
	queueDepth             prometheus.Gauge
	activeWorkers          prometheus.Gauge
	responsesTotal         *prometheus.CounterVec
	bytesSent              prometheus.Counter
	requestDuration        *prometheus.HistogramVec
}

// NewServerMetrics creates a Prometheus-backed ServerMetrics instance.
//
// Returns a no-op implementation if metrics are not enabled (InitRegistry not called).
func NewServerMetrics() metrics.ServerMetrics {
	if !metrics.IsEnabled() {
		return metrics.NewNoopServerMetrics()
	}
	return newServerMetrics(metrics.GetRegistry())
}

func newServerMetrics(reg prometheus.Registerer) *serverMetrics {
	return &serverMetrics{
		connectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoserve_connections_accepted_total",
			Help: "Total number of accepted TCP connections",
		}),
		connectionsClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoserve_connections_closed_total",
			Help: "Total number of connections closed after being served",
		}),
		connectionsAbandoned: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoserve_connections_abandoned_total",
			Help: "Total number of queued connections closed unserved during shutdown",
		}),
		connectionsForceClosed: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoserve_connections_force_closed_total",
			Help: "Total number of in-flight connections closed when the shutdown timeout expired",
		}),
		queueDepth: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittoserve_queue_depth",
			Help: "Current number of accepted connections waiting for a worker",
		}),
		activeWorkers: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "dittoserve_active_workers",
			Help: "Current number of workers serving a connection",
		}),
		responsesTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoserve_responses_total",
				Help: "Total number of responses by status code",
			},
			[]string{"status"},
		),
		bytesSent: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "dittoserve_bytes_sent_total",
			Help: "Total bytes written to clients, headers included",
		}),
		requestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "dittoserve_request_duration_milliseconds",
				Help: "Duration of requests in milliseconds",
				Buckets: []float64{
					1,     // 1ms
					10,    // 10ms
					100,   // 100ms
					1000,  // 1s
					10000, // 10s
				},
			},
			[]string{"status"},
		),
	}
}

func (m *serverMetrics) RecordConnectionAccepted() {
	m.connectionsAccepted.Inc()
}

func (m *serverMetrics) RecordConnectionClosed() {
	m.connectionsClosed.Inc()
}

func (m *serverMetrics) RecordConnectionAbandoned() {
	m.connectionsAbandoned.Inc()
}

func (m *serverMetrics) RecordConnectionForceClosed() {
	m.connectionsForceClosed.Inc()
}

func (m *serverMetrics) AddQueueDepth(delta int) {
	m.queueDepth.Add(float64(delta))
}

func (m *serverMetrics) AddActiveWorkers(delta int) {
	m.activeWorkers.Add(float64(delta))
}

func (m *serverMetrics) RecordResponse(status int, bytes int64, duration time.Duration) {
	code := strconv.Itoa(status)
	m.responsesTotal.WithLabelValues(code).Inc()
	m.bytesSent.Add(float64(bytes))
	m.requestDuration.WithLabelValues(code).Observe(float64(duration.Microseconds()) / 1000)
}
