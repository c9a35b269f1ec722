package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"
)

// BufferSize is the size of the request read buffer and of the chunks the
// response body is streamed in.
const BufferSize = 512

// ErrMalformedRequest is returned when the first request line does not carry a
// GET method followed by a resource path.
var ErrMalformedRequest = errors.New("malformed request")

// Request is the part of an HTTP/1.0 request the server acts on. Headers,
// body and protocol version are read but ignored.
type Request struct {
	Method string
	Path   string
}

// drainTimeout bounds how long the tail of an oversized request is drained
// when r supports read deadlines.
const drainTimeout = 200 * time.Millisecond

// ReadRequest reads the request line from r.
//
// Reading stops at the first newline, at EOF or once BufferSize bytes have
// arrived. When the buffer filled up without the end of the header block,
// further BufferSize reads are discarded for as long as they come back full
// and the blank line ending the headers has not been seen, so an oversized
// request does not leave a long tail behind.
//
// A peer that closes without sending anything yields io.EOF. A request whose
// first token is not exactly "GET", or that has no path, yields an error
// wrapping ErrMalformedRequest.
func ReadRequest(r io.Reader) (*Request, error) {
	buf := make([]byte, BufferSize)
	n := 0

	for n < len(buf) {
		m, err := r.Read(buf[n:])
		n += m
		if bytes.IndexByte(buf[:n], '\n') >= 0 {
			break
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read request: %w", err)
		}
	}

	if n == 0 {
		return nil, fmt.Errorf("read request: %w", io.EOF)
	}

	if n == len(buf) && !hasHeaderEnd(buf[:n]) {
		discard(r, buf[:n])
	}

	return parseRequestLine(buf[:n])
}

type readDeadliner interface {
	SetReadDeadline(t time.Time) error
}

// discard reads and drops the rest of a request whose first BufferSize bytes
// were seen. The last bytes of seen are carried over so a header terminator
// split across reads is still found.
func discard(r io.Reader, seen []byte) {
	if d, ok := r.(readDeadliner); ok {
		_ = d.SetReadDeadline(time.Now().Add(drainTimeout))
	}

	window := make([]byte, 0, headerEndCarry+BufferSize)
	window = append(window, seen[max(0, len(seen)-headerEndCarry):]...)
	scratch := make([]byte, BufferSize)
	for {
		m, err := r.Read(scratch)
		window = append(window, scratch[:m]...)
		if hasHeaderEnd(window) || err != nil || m < len(scratch) {
			return
		}
		window = append(window[:0], window[len(window)-headerEndCarry:]...)
	}
}

// headerEndCarry is one less than the longest header terminator.
const headerEndCarry = 3

func hasHeaderEnd(b []byte) bool {
	return bytes.Contains(b, []byte("\r\n\r\n")) || bytes.Contains(b, []byte("\n\n"))
}

func parseRequestLine(data []byte) (*Request, error) {
	line := data
	if i := bytes.IndexByte(line, '\n'); i >= 0 {
		line = line[:i]
	}
	line = bytes.TrimRight(line, "\r")

	fields := bytes.Fields(line)
	if len(fields) == 0 {
		return nil, fmt.Errorf("empty request line: %w", ErrMalformedRequest)
	}
	if string(fields[0]) != "GET" {
		return nil, fmt.Errorf("unsupported method %q: %w", fields[0], ErrMalformedRequest)
	}
	if len(fields) < 2 {
		return nil, fmt.Errorf("missing resource path: %w", ErrMalformedRequest)
	}

	return &Request{
		Method: string(fields[0]),
		Path:   string(fields[1]),
	}, nil
}
