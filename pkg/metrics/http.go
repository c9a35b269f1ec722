package metrics

import "time"

// ServerMetrics provides observability for the static file server.
//
// The listener, the worker pool and the request handler all report into the
// same instance. The interface is optional: pass nil (or the no-op returned by
// NewNoopServerMetrics) to run without metrics.
//
// Example usage:
//
//	// With metrics enabled
//	metrics.InitRegistry()
//	m := prometheus.NewServerMetrics()
//	srv := server.New(cfg, store, m)
//
//	// Without metrics (no-op)
//	srv := server.New(cfg, store, nil)
type ServerMetrics interface {
	// RecordConnectionAccepted increments the accepted connections counter.
	RecordConnectionAccepted()

	// RecordConnectionClosed increments the counter of connections closed by
	// a worker after being served.
	RecordConnectionClosed()

	// RecordConnectionAbandoned increments the counter of connections that
	// were accepted but closed without being served because the server was
	// shutting down.
	RecordConnectionAbandoned()

	// RecordConnectionForceClosed increments the counter of in-flight
	// connections closed because the shutdown timeout expired.
	RecordConnectionForceClosed()

	// AddQueueDepth adjusts the number of connections waiting for a worker.
	// Producers and consumers report deltas so concurrent updates commute.
	AddQueueDepth(delta int)

	// AddActiveWorkers adjusts the number of workers currently serving.
	AddActiveWorkers(delta int)

	// RecordResponse records a completed response.
	//
	// Parameters:
	//   - status: HTTP status code sent (200, 400 or 404)
	//   - bytes: Total bytes written, headers included
	//   - duration: Time from first read to last write
	RecordResponse(status int, bytes int64, duration time.Duration)
}

// NewNoopServerMetrics returns a ServerMetrics that discards everything.
func NewNoopServerMetrics() ServerMetrics {
	return noopServerMetrics{}
}

// OrNoop returns m, or a no-op implementation when m is nil.
func OrNoop(m ServerMetrics) ServerMetrics {
	if m == nil {
		return noopServerMetrics{}
	}
	return m
}

type noopServerMetrics struct{}

func (noopServerMetrics) RecordConnectionAccepted()                {}
func (noopServerMetrics) RecordConnectionClosed()                  {}
func (noopServerMetrics) RecordConnectionAbandoned()               {}
func (noopServerMetrics) RecordConnectionForceClosed()             {}
func (noopServerMetrics) AddQueueDepth(int)                        {}
func (noopServerMetrics) AddActiveWorkers(int)                     {}
func (noopServerMetrics) RecordResponse(int, int64, time.Duration) {}
