// Package worker implements the fixed pool of goroutines that take accepted
// connections off the queue and serve them one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/internal/queue"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

// DefaultSize is the number of workers used when none is configured.
const DefaultSize = 5

// ConnHandler serves a single connection. It must not close conn.
type ConnHandler interface {
	ServeConn(ctx context.Context, conn net.Conn) error
}

// closeObserver is implemented by handlers that want to know when the pool
// has released a connection.
type closeObserver interface {
	ConnClosed(conn net.Conn)
}

// Pool runs a fixed number of workers. Each worker loops:
//
//  1. Dequeue a connection; a false result means shutdown, so it exits.
//  2. Serve it through the handler inside a recover guard.
//  3. Close it exactly once.
//
// A handler error or panic only ends that connection, never the worker.
type Pool struct {
	queue   *queue.Queue[net.Conn]
	handler ConnHandler
	size    int
	metrics metrics.ServerMetrics

	wg      sync.WaitGroup
	active  atomic.Int32
	started atomic.Bool

	// stopping makes workers close dequeued connections without serving
	// them. It is set by ForceClose.
	stopping atomic.Bool

	// inflight tracks the connection each worker is serving, keyed by
	// worker index, so ForceClose can unblock stuck I/O.
	inflight sync.Map
}

// New creates a pool of size workers reading from q. m may be nil.
//
// Panics if q or handler is nil, or size is not positive.
func New(q *queue.Queue[net.Conn], handler ConnHandler, size int, m metrics.ServerMetrics) *Pool {
	if q == nil {
		panic("queue cannot be nil")
	}
	if handler == nil {
		panic("handler cannot be nil")
	}
	if size <= 0 {
		panic(fmt.Sprintf("worker pool size must be positive, got %d", size))
	}

	return &Pool{
		queue:   q,
		handler: handler,
		size:    size,
		metrics: metrics.OrNoop(m),
	}
}

// Start launches the workers. ctx is handed to the handler for every
// connection. Calling Start twice panics.
func (p *Pool) Start(ctx context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		panic("worker pool already started")
	}

	p.wg.Add(p.size)
	for i := 0; i < p.size; i++ {
		go p.run(ctx, i)
	}
	logger.Debug("Started %d workers", p.size)
}

// Wait blocks until every worker has exited. Workers exit once the queue has
// been shut down and Dequeue reports no more connections.
func (p *Pool) Wait() {
	p.wg.Wait()
}

// Active returns the number of workers currently serving a connection. It is
// never greater than Size.
func (p *Pool) Active() int32 {
	return p.active.Load()
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return p.size
}

// ForceClose closes every in-flight connection so that blocked reads and
// writes fail, and makes workers discard anything they still dequeue.
// Returns the number of connections it closed.
func (p *Pool) ForceClose() int {
	p.stopping.Store(true)

	closed := 0
	p.inflight.Range(func(key, value any) bool {
		if value.(*job).close() {
			closed++
			p.metrics.RecordConnectionForceClosed()
		}
		return true
	})
	return closed
}

func (p *Pool) run(ctx context.Context, index int) {
	defer p.wg.Done()

	for {
		conn, ok := p.queue.Dequeue()
		if !ok {
			logger.Debug("Worker %d exiting", index)
			return
		}
		p.metrics.AddQueueDepth(-1)

		j := &job{id: uuid.NewString(), conn: conn}

		// Publish before checking stopping so ForceClose either sees the job
		// or the worker sees the flag.
		p.inflight.Store(index, j)
		if p.stopping.Load() {
			p.inflight.Delete(index)
			if j.close() {
				p.metrics.RecordConnectionAbandoned()
			}
			continue
		}

		p.active.Add(1)
		p.metrics.AddActiveWorkers(1)

		err := p.serve(ctx, j)

		p.active.Add(-1)
		p.metrics.AddActiveWorkers(-1)
		p.inflight.Delete(index)

		if err != nil {
			logConnError(index, j, err)
		}

		if j.close() {
			p.metrics.RecordConnectionClosed()
		}
		if obs, ok := p.handler.(closeObserver); ok {
			obs.ConnClosed(conn)
		}
	}
}

// serve runs the handler, turning a panic into an error.
func (p *Pool) serve(ctx context.Context, j *job) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in connection handler: %v", r)
		}
	}()

	logger.Debug("[%s] Serving %s", j.id, j.conn.RemoteAddr())
	return p.handler.ServeConn(ctx, j.conn)
}

func logConnError(index int, j *job, err error) {
	var netErr net.Error
	switch {
	case errors.Is(err, io.EOF), errors.Is(err, net.ErrClosed):
		logger.Debug("[%s] Worker %d: connection from %s ended early: %v", j.id, index, j.conn.RemoteAddr(), err)
	case errors.As(err, &netErr) && netErr.Timeout():
		logger.Debug("[%s] Worker %d: connection from %s timed out: %v", j.id, index, j.conn.RemoteAddr(), err)
	default:
		logger.Warn("[%s] Worker %d: connection from %s failed: %v", j.id, index, j.conn.RemoteAddr(), err)
	}
}

// job is one connection being served, with a close that runs exactly once no
// matter whether the worker or ForceClose gets there first.
type job struct {
	id   string
	conn net.Conn
	once sync.Once
}

// close closes the connection and reports whether this call did it.
func (j *job) close() bool {
	closed := false
	j.once.Do(func() {
		_ = j.conn.Close()
		closed = true
	})
	return closed
}
