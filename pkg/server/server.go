// Package server implements the listener/dispatcher of the static file
// server: it accepts TCP connections, hands them to a fixed worker pool through
// a bounded queue, and coordinates shutdown.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	protohttp "github.com/marmos91/dittoserve/internal/protocol/http"
	"github.com/marmos91/dittoserve/internal/queue"
	"github.com/marmos91/dittoserve/internal/ratelimiter"
	"github.com/marmos91/dittoserve/internal/worker"
	"github.com/marmos91/dittoserve/pkg/content"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

// Server accepts connections and dispatches them to workers.
//
// Architecture:
//
//	accept loop ──Enqueue──▶ Queue (capacity C) ──Dequeue──▶ N workers ──▶ Handler
//
// The queue is the only hand-off point. When it is full the accept loop
// blocks in Enqueue and stops calling Accept, which is the backpressure.
//
// Shutdown:
//  1. Context cancellation (or Stop) closes the listener and shuts the
//     queue down. Parked workers wake up.
//  2. Workers finish the connection they are serving and exit. What happens
//     to queued connections depends on ShutdownPolicy.
//  3. If workers have not exited after ShutdownTimeout, in-flight
//     connections are closed forcibly and Serve returns an error.
//  4. Connections still queued are closed unserved, each exactly once.
//
// Thread safety:
// Serve may only be called once. All other methods are safe for concurrent
// use, including concurrently with Serve.
type Server struct {
	config  Config
	policy  queue.Policy
	handler *protohttp.Handler
	limiter *ratelimiter.RateLimiter
	metrics metrics.ServerMetrics

	// mu guards listener, queue and pool, which Serve sets up.
	mu       sync.Mutex
	listener net.Listener
	queue    *queue.Queue[net.Conn]
	pool     *worker.Pool

	started      atomic.Bool
	ready        chan struct{}
	done         chan struct{}
	shutdown     chan struct{}
	shutdownOnce sync.Once
}

// New creates a server reading content from store.
//
// Zero values in config are replaced with defaults. m may be nil.
//
// Panics if store is nil or the configuration is invalid.
func New(config Config, store content.ContentStore, m metrics.ServerMetrics) *Server {
	config.applyDefaults()
	if err := config.validate(); err != nil {
		panic(fmt.Sprintf("invalid server config: %v", err))
	}
	policy, _ := queue.ParsePolicy(config.ShutdownPolicy)
	m = metrics.OrNoop(m)

	handler := protohttp.NewHandler(protohttp.Config{
		Root:         config.Root,
		SniffMIME:    config.SniffMIME,
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
	}, store, m)

	return &Server{
		config:   config,
		policy:   policy,
		handler:  handler,
		limiter:  ratelimiter.New(config.AcceptRate, config.AcceptBurst),
		metrics:  m,
		ready:    make(chan struct{}),
		done:     make(chan struct{}),
		shutdown: make(chan struct{}),
	}
}

// Serve listens on the configured port and serves until ctx is cancelled or
// Stop is called.
//
// Returns:
//   - nil after a graceful shutdown
//   - error if the listener cannot be created or the shutdown timeout was
//     exceeded and connections had to be force-closed
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", s.config.Port))
	if err != nil {
		return fmt.Errorf("failed to create listener on port %d: %w", s.config.Port, err)
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is like Serve but accepts on an existing listener, which it
// takes ownership of and closes on shutdown.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	if !s.started.CompareAndSwap(false, true) {
		_ = ln.Close()
		return errors.New("server already started")
	}
	defer close(s.done)

	q := queue.NewWithPolicy[net.Conn](s.config.QueueCapacity, s.policy)
	pool := worker.New(q, s.handler, s.config.Workers, s.metrics)

	s.mu.Lock()
	s.listener = ln
	s.queue = q
	s.pool = pool
	s.mu.Unlock()
	close(s.ready)

	// Stop may have run before the fields above were visible to it.
	select {
	case <-s.shutdown:
		_ = ln.Close()
		q.Shutdown()
	default:
	}

	logger.Info("Listening on %s", ln.Addr())
	logger.Debug("Server config: workers=%d queue_capacity=%d shutdown_policy=%s read_timeout=%v write_timeout=%v accept_rate=%d",
		s.config.Workers, s.config.QueueCapacity, s.policy, s.config.ReadTimeout, s.config.WriteTimeout, s.config.AcceptRate)

	// In-flight requests keep running after ctx is cancelled; workCtx is only
	// cancelled when they have to be cut short.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	pool.Start(workCtx)

	acceptCtx, cancelAccept := context.WithCancel(ctx)
	defer cancelAccept()
	go func() {
		select {
		case <-ctx.Done():
			logger.Info("Shutdown signal received: %v", ctx.Err())
		case <-s.shutdown:
		}
		s.initiateShutdown()
		cancelAccept()
	}()

	if s.config.MetricsLogInterval > 0 {
		go s.logMetrics(acceptCtx)
	}

	s.acceptLoop(acceptCtx, ln, q)
	s.initiateShutdown()

	return s.gracefulShutdown(q, pool, cancelWork)
}

// acceptLoop accepts connections and enqueues them until shutdown.
func (s *Server) acceptLoop(ctx context.Context, ln net.Listener, q *queue.Queue[net.Conn]) {
	var backoff time.Duration

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}

		conn, err := ln.Accept()
		if err != nil {
			if s.isShuttingDown() {
				return
			}

			// Transient errors such as EMFILE; back off like net/http does.
			if backoff == 0 {
				backoff = 5 * time.Millisecond
			} else if backoff *= 2; backoff > time.Second {
				backoff = time.Second
			}
			logger.Debug("Error accepting connection: %v; retrying in %v", err, backoff)

			select {
			case <-time.After(backoff):
			case <-s.shutdown:
				return
			}
			continue
		}
		backoff = 0

		s.metrics.RecordConnectionAccepted()
		logger.Debug("Connection accepted from %s", conn.RemoteAddr())

		// Counted before Enqueue so a worker's decrement never lands first.
		s.metrics.AddQueueDepth(1)
		if !q.Enqueue(conn) {
			// The queue was shut down while we were blocked: nobody will
			// ever dequeue this connection.
			s.metrics.AddQueueDepth(-1)
			_ = conn.Close()
			s.metrics.RecordConnectionAbandoned()
			return
		}
	}
}

// initiateShutdown closes the listener and shuts the queue down. Only the
// first call has any effect.
func (s *Server) initiateShutdown() {
	s.shutdownOnce.Do(func() {
		logger.Debug("Shutdown initiated")
		close(s.shutdown)

		s.mu.Lock()
		ln, q := s.listener, s.queue
		s.mu.Unlock()

		if ln != nil {
			if err := ln.Close(); err != nil {
				logger.Debug("Error closing listener: %v", err)
			}
		}
		if q != nil {
			q.Shutdown()
		}
	})
}

// gracefulShutdown joins the workers, forcing in-flight connections closed
// after ShutdownTimeout, then releases whatever is left in the queue.
func (s *Server) gracefulShutdown(q *queue.Queue[net.Conn], pool *worker.Pool, cancelWork context.CancelFunc) error {
	logger.Info("Graceful shutdown: waiting for %d active connection(s), %d queued (policy: %s, timeout: %v)",
		pool.Active(), q.Len(), s.policy, s.config.ShutdownTimeout)

	done := make(chan struct{})
	go func() {
		pool.Wait()
		close(done)
	}()

	var shutdownErr error
	timer := time.NewTimer(s.config.ShutdownTimeout)
	defer timer.Stop()

	select {
	case <-done:
	case <-timer.C:
		logger.Warn("Shutdown timeout exceeded: %d connection(s) still active after %v - forcing closure",
			pool.Active(), s.config.ShutdownTimeout)

		cancelWork()
		closed := pool.ForceClose()
		logger.Info("Force-closed %d connection(s)", closed)
		shutdownErr = fmt.Errorf("shutdown timeout: %d connection(s) force-closed", closed)

		<-done
	}

	abandoned := q.Drain()
	for _, conn := range abandoned {
		if err := conn.Close(); err != nil {
			logger.Debug("Error closing queued connection from %s: %v", conn.RemoteAddr(), err)
		}
		s.metrics.AddQueueDepth(-1)
		s.metrics.RecordConnectionAbandoned()
	}
	if len(abandoned) > 0 {
		logger.Info("Closed %d queued connection(s) without serving them", len(abandoned))
	}

	if shutdownErr == nil {
		logger.Info("Graceful shutdown complete")
	}
	return shutdownErr
}

// Stop initiates shutdown and waits for Serve to return or ctx to end.
//
// Returns nil once Serve has returned (or if it was never started), or the
// context error.
func (s *Server) Stop(ctx context.Context) error {
	s.initiateShutdown()

	if !s.started.Load() {
		return nil
	}

	select {
	case <-s.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Addr returns the listener address, or nil if Serve has not started yet.
func (s *Server) Addr() net.Addr {
	select {
	case <-s.ready:
	default:
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listener.Addr()
}

// Ready returns a channel closed once the server is listening.
func (s *Server) Ready() <-chan struct{} {
	return s.ready
}

// ActiveConnections returns the number of connections currently being served.
func (s *Server) ActiveConnections() int32 {
	s.mu.Lock()
	pool := s.pool
	s.mu.Unlock()

	if pool == nil {
		return 0
	}
	return pool.Active()
}

// QueuedConnections returns the number of accepted connections waiting for a
// worker.
func (s *Server) QueuedConnections() int {
	s.mu.Lock()
	q := s.queue
	s.mu.Unlock()

	if q == nil {
		return 0
	}
	return q.Len()
}

func (s *Server) isShuttingDown() bool {
	select {
	case <-s.shutdown:
		return true
	default:
		return false
	}
}

// logMetrics periodically logs load figures until ctx is cancelled.
func (s *Server) logMetrics(ctx context.Context) {
	ticker := time.NewTicker(s.config.MetricsLogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			logger.Info("Server metrics: active_connections=%d queued_connections=%d",
				s.ActiveConnections(), s.QueuedConnections())
			if s.limiter != nil {
				logger.Debug("Accept limiter: %.1f token(s) available", s.limiter.Tokens())
			}
		}
	}
}
