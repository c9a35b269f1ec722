package http

import (
	"errors"
	"io"
	"net"
	"strings"
	"testing"
	"testing/iotest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadRequest(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		path    string
		wantErr error
	}{
		{"full request", "GET /index.html HTTP/1.0\r\nHost: x\r\n\r\n", "/index.html", nil},
		{"no version", "GET /a.txt\r\n", "/a.txt", nil},
		{"bare newline", "GET /a.txt\n", "/a.txt", nil},
		{"no newline before EOF", "GET /a.txt", "/a.txt", nil},
		{"extra spaces", "GET   /a.txt   HTTP/1.0\r\n", "/a.txt", nil},
		{"lowercase method", "get /a.txt HTTP/1.0\r\n", "", ErrMalformedRequest},
		{"other method", "HEAD /a.txt HTTP/1.0\r\n", "", ErrMalformedRequest},
		{"method prefix", "GETX /a.txt HTTP/1.0\r\n", "", ErrMalformedRequest},
		{"missing path", "GET\r\n", "", ErrMalformedRequest},
		{"blank line", "\r\n", "", ErrMalformedRequest},
		{"empty", "", "", io.EOF},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := ReadRequest(strings.NewReader(tt.input))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, "GET", req.Method)
			assert.Equal(t, tt.path, req.Path)
		})
	}
}

func TestReadRequest_AcrossShortReads(t *testing.T) {
	req, err := ReadRequest(iotest.OneByteReader(strings.NewReader("GET /slow.txt HTTP/1.0\r\n")))
	require.NoError(t, err)
	assert.Equal(t, "/slow.txt", req.Path)
}

func TestReadRequest_LongLineUsesFirstBuffer(t *testing.T) {
	path := "/" + strings.Repeat("a", 2*BufferSize)
	r := strings.NewReader("GET " + path + " HTTP/1.0\r\n")

	req, err := ReadRequest(r)
	require.NoError(t, err)
	assert.Equal(t, path[:BufferSize-len("GET ")], req.Path)
	assert.Equal(t, 0, r.Len(), "full-buffer tail should have been drained")
}

func TestReadRequest_ReadError(t *testing.T) {
	boom := errors.New("connection reset")
	_, err := ReadRequest(iotest.ErrReader(boom))
	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrMalformedRequest)
}

// readOpen runs ReadRequest against a peer that sends data and then keeps
// the connection open without sending more.
func readOpen(t *testing.T, data string) (*Request, error) {
	t.Helper()

	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })
	go func() { _, _ = pw.Write([]byte(data)) }()

	type result struct {
		req *Request
		err error
	}
	done := make(chan result, 1)
	go func() {
		req, err := ReadRequest(pr)
		done <- result{req, err}
	}()

	select {
	case r := <-done:
		return r.req, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("ReadRequest blocked on a complete request")
		return nil, nil
	}
}

func paddedRequest(size, terminatorAt int) string {
	head := "GET /a.txt HTTP/1.0\r\nX-Pad: "
	pad := strings.Repeat("p", terminatorAt-len(head))
	rest := strings.Repeat("q", size-terminatorAt-4)
	return head + pad + "\r\n\r\n" + rest
}

func TestReadRequest_ExactBufferRequestDoesNotBlock(t *testing.T) {
	data := paddedRequest(BufferSize, BufferSize-4)
	require.Len(t, data, BufferSize)

	req, err := readOpen(t, data)
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", req.Path)
}

func TestReadRequest_TerminatorAcrossBuffers(t *testing.T) {
	data := paddedRequest(2*BufferSize, BufferSize-2)
	require.Len(t, data, 2*BufferSize)

	req, err := readOpen(t, data)
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", req.Path)
}

func TestReadRequest_DrainStopsAtDeadline(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	// Headers never end; the peer keeps streaming full buffers.
	go func() {
		line := "GET /a.txt HTTP/1.0\r\n"
		if _, err := client.Write([]byte(line + strings.Repeat("h", BufferSize-len(line)))); err != nil {
			return
		}
		chunk := []byte(strings.Repeat("x", BufferSize))
		for {
			if _, err := client.Write(chunk); err != nil {
				return
			}
		}
	}()

	start := time.Now()
	req, err := ReadRequest(server)
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", req.Path)
	assert.Less(t, time.Since(start), time.Second)
}
