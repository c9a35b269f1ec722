// Package http implements the minimal HTTP/1.0 dialect spoken by the file
// server: one GET request per connection, answered with the file, a 404 or a
// 400, after which the caller closes the connection.
package http

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/content"
	"github.com/marmos91/dittoserve/pkg/metrics"
)

// Config controls how requests are resolved and answered.
type Config struct {
	// Root is prepended to the request path to form the ContentID. No
	// normalization is applied.
	Root string

	// SniffMIME enables content sniffing for extensions missing from the
	// MIME table.
	SniffMIME bool

	// ReadTimeout bounds reading the request. 0 disables it.
	ReadTimeout time.Duration

	// WriteTimeout bounds writing the whole response. 0 disables it.
	WriteTimeout time.Duration

	// OnStateChange, when set, is called on every state transition. It is
	// invoked from worker goroutines and must be safe for concurrent use.
	OnStateChange func(conn net.Conn, state State)
}

// Handler serves one request per connection. It never closes the connection;
// that is left to the caller, which then reports it through ConnClosed.
//
// A single Handler is shared by every worker.
type Handler struct {
	config  Config
	store   content.ContentStore
	metrics metrics.ServerMetrics
}

// NewHandler creates a handler reading from store. m may be nil.
//
// Panics if store is nil.
func NewHandler(config Config, store content.ContentStore, m metrics.ServerMetrics) *Handler {
	if store == nil {
		panic("content store cannot be nil")
	}
	return &Handler{
		config:  config,
		store:   store,
		metrics: metrics.OrNoop(m),
	}
}

// ServeConn reads a single request from conn and writes the response.
//
// Returns an error wrapping ErrMalformedRequest for bad request lines (after
// the 400 has been sent), or any I/O error that cut the exchange short. A
// missing resource is a normal 404 and returns nil.
func (h *Handler) ServeConn(ctx context.Context, conn net.Conn) error {
	start := time.Now()
	cw := &countingWriter{w: conn}
	h.transition(conn, StateAccepted)

	if h.config.ReadTimeout > 0 {
		if err := conn.SetReadDeadline(start.Add(h.config.ReadTimeout)); err != nil {
			return fmt.Errorf("set read deadline: %w", err)
		}
	}
	if h.config.WriteTimeout > 0 {
		if err := conn.SetWriteDeadline(start.Add(h.config.WriteTimeout)); err != nil {
			return fmt.Errorf("set write deadline: %w", err)
		}
	}

	req, err := ReadRequest(conn)
	if err != nil {
		if !errors.Is(err, ErrMalformedRequest) {
			return err
		}

		h.transition(conn, StateRequestRead)
		h.transition(conn, StateMalformed)
		logger.Debug("Malformed request from %s: %v", conn.RemoteAddr(), err)

		if werr := writeEmpty(cw, StatusBadRequest); werr != nil {
			return errors.Join(err, werr)
		}
		h.metrics.RecordResponse(StatusBadRequest, cw.n, time.Since(start))
		return err
	}
	h.transition(conn, StateRequestRead)

	id := content.ContentID(h.config.Root + req.Path)
	h.transition(conn, StateResourceResolved)
	logger.Debug("GET %s from %s resolved to %s", req.Path, conn.RemoteAddr(), id)

	size, body, err := h.open(ctx, id)
	if err != nil {
		if !errors.Is(err, content.ErrContentNotFound) {
			logger.Warn("Lookup of %s failed, answering 404: %v", id, err)
		}

		h.transition(conn, StateNotFound)
		if err := writeEmpty(cw, StatusNotFound); err != nil {
			return err
		}
		h.transition(conn, StateResponded404)
		h.metrics.RecordResponse(StatusNotFound, cw.n, time.Since(start))
		return nil
	}
	defer body.Close()
	h.transition(conn, StateFound)

	contentType, head, err := h.contentType(req.Path, body)
	if err != nil {
		return err
	}

	if err := writeHeader(cw, StatusOK, contentType, size); err != nil {
		return err
	}
	if err := streamBody(cw, head, body, size); err != nil {
		return err
	}

	h.transition(conn, StateResponded200)
	h.metrics.RecordResponse(StatusOK, cw.n, time.Since(start))
	logger.Debug("Sent %s (%s, %d bytes) to %s", id, contentType, size, conn.RemoteAddr())
	return nil
}

// ConnClosed reports the final Closed state once the caller has released conn.
func (h *Handler) ConnClosed(conn net.Conn) {
	h.transition(conn, StateClosed)
}

// open stats and opens the resource. Any failure is reported as an error and
// leaves nothing to close.
func (h *Handler) open(ctx context.Context, id content.ContentID) (uint64, io.ReadCloser, error) {
	size, err := h.store.GetContentSize(ctx, id)
	if err != nil {
		return 0, nil, err
	}

	body, err := h.store.ReadContent(ctx, id)
	if err != nil {
		return 0, nil, err
	}
	return size, body, nil
}

// contentType resolves the type from the extension table, then by sniffing
// when enabled. Sniffing consumes up to BufferSize bytes from body, which are
// returned as head so they can be sent first.
func (h *Handler) contentType(resource string, body io.Reader) (string, []byte, error) {
	if t, ok := LookupMIME(resource); ok {
		return t, nil, nil
	}
	if !h.config.SniffMIME {
		return DefaultContentType, nil, nil
	}

	head := make([]byte, BufferSize)
	n, err := io.ReadFull(body, head)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return "", nil, fmt.Errorf("read content for sniffing: %w", err)
	}
	head = head[:n]
	return SniffMIME(head), head, nil
}

func (h *Handler) transition(conn net.Conn, s State) {
	if h.config.OnStateChange != nil {
		h.config.OnStateChange(conn, s)
	}
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
