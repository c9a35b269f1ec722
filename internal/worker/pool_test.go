package worker

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marmos91/dittoserve/internal/queue"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type handlerFunc func(ctx context.Context, conn net.Conn) error

func (f handlerFunc) ServeConn(ctx context.Context, conn net.Conn) error {
	return f(ctx, conn)
}

type observingHandler struct {
	handlerFunc
	closed atomic.Int32
}

func (h *observingHandler) ConnClosed(net.Conn) {
	h.closed.Add(1)
}

// newPipe returns the server end to enqueue and the client end to inspect.
func newPipe(t *testing.T) (server, client net.Conn) {
	t.Helper()
	server, client = net.Pipe()
	t.Cleanup(func() { client.Close() })
	return server, client
}

func waitForExit(t *testing.T, p *Pool) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("workers did not exit")
	}
}

// assertClosed checks that the server end of a pipe has been closed by
// reading EOF from the client end.
func assertClosed(t *testing.T, client net.Conn) {
	t.Helper()
	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err := client.Read(make([]byte, 1))
	assert.ErrorIs(t, err, io.EOF)
}

func TestNew_Panics(t *testing.T) {
	q := queue.New[net.Conn](1)
	h := handlerFunc(func(context.Context, net.Conn) error { return nil })

	assert.Panics(t, func() { New(nil, h, 1, nil) })
	assert.Panics(t, func() { New(q, nil, 1, nil) })
	assert.Panics(t, func() { New(q, h, 0, nil) })

	p := New(q, h, 1, nil)
	p.Start(context.Background())
	assert.Panics(t, func() { p.Start(context.Background()) })
	q.Shutdown()
	waitForExit(t, p)
}

func TestPool_ExitsOnShutdown(t *testing.T) {
	q := queue.New[net.Conn](queue.DefaultCapacity)
	p := New(q, handlerFunc(func(context.Context, net.Conn) error { return nil }), DefaultSize, nil)
	p.Start(context.Background())

	time.Sleep(50 * time.Millisecond)
	q.Shutdown()

	waitForExit(t, p)
	assert.Equal(t, int32(0), p.Active())
}

func TestPool_IsolatesFailures(t *testing.T) {
	q := queue.New[net.Conn](queue.DefaultCapacity)

	var served atomic.Int32
	h := &observingHandler{handlerFunc: func(context.Context, net.Conn) error {
		n := served.Add(1)
		switch n {
		case 1:
			return errors.New("write: broken pipe")
		case 2:
			panic("handler bug")
		}
		return nil
	}}

	// One worker, so the connections are served strictly in order.
	p := New(q, h, 1, nil)
	p.Start(context.Background())

	clients := make([]net.Conn, 3)
	for i := range clients {
		var server net.Conn
		server, clients[i] = newPipe(t)
		require.True(t, q.Enqueue(server))
	}

	for _, c := range clients {
		assertClosed(t, c)
	}

	q.Shutdown()
	waitForExit(t, p)

	assert.Equal(t, int32(3), served.Load())
	assert.Equal(t, int32(3), h.closed.Load())
}

func TestPool_ActiveNeverExceedsSize(t *testing.T) {
	const size, conns = 3, 12
	q := queue.New[net.Conn](queue.DefaultCapacity)

	var current, peak atomic.Int32
	release := make(chan struct{})
	h := handlerFunc(func(context.Context, net.Conn) error {
		n := current.Add(1)
		for {
			old := peak.Load()
			if n <= old || peak.CompareAndSwap(old, n) {
				break
			}
		}
		<-release
		current.Add(-1)
		return nil
	})

	p := New(q, h, size, nil)
	p.Start(context.Background())

	var producer sync.WaitGroup
	producer.Add(1)
	go func() {
		defer producer.Done()
		for i := 0; i < conns; i++ {
			server, _ := newPipe(t)
			q.Enqueue(server)
		}
	}()

	require.Eventually(t, func() bool {
		return p.Active() == size && q.Len() == queue.DefaultCapacity
	}, 2*time.Second, 5*time.Millisecond)
	// Give extra connections a chance to be (wrongly) picked up.
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(size), p.Active())
	assert.Equal(t, queue.DefaultCapacity, q.Len())

	close(release)
	producer.Wait()
	q.Shutdown()
	waitForExit(t, p)

	assert.LessOrEqual(t, peak.Load(), int32(size))
	assert.Equal(t, int32(0), p.Active())
}

func TestPool_ForceCloseUnblocksWorkers(t *testing.T) {
	q := queue.New[net.Conn](queue.DefaultCapacity)

	started := make(chan struct{})
	h := handlerFunc(func(_ context.Context, conn net.Conn) error {
		close(started)
		_, err := conn.Read(make([]byte, 1))
		return err
	})

	p := New(q, h, 1, nil)
	p.Start(context.Background())

	server, _ := newPipe(t)
	queued, queuedClient := newPipe(t)
	require.True(t, q.Enqueue(server))
	<-started
	require.True(t, q.Enqueue(queued))

	q.Shutdown()
	assert.Equal(t, 1, p.ForceClose())
	waitForExit(t, p)

	// Abandon policy: the queued connection is still buffered for the owner.
	leftovers := q.Drain()
	require.Len(t, leftovers, 1)
	leftovers[0].Close()
	assertClosed(t, queuedClient)
}

func TestPool_StoppingDiscardsDrainedConnections(t *testing.T) {
	q := queue.NewWithPolicy[net.Conn](queue.DefaultCapacity, queue.DrainFirst)

	var served atomic.Int32
	h := handlerFunc(func(context.Context, net.Conn) error {
		served.Add(1)
		return nil
	})
	p := New(q, h, 2, nil)

	server, client := newPipe(t)
	require.True(t, q.Enqueue(server))
	q.Shutdown()
	p.ForceClose()

	p.Start(context.Background())
	waitForExit(t, p)

	assert.Equal(t, int32(0), served.Load())
	assertClosed(t, client)
}
