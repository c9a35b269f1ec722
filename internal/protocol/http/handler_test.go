package http

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/marmos91/dittoserve/pkg/content"
	contentfs "github.com/marmos91/dittoserve/pkg/content/fs"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testRoot = "/srv/www"

func newTestHandler(t *testing.T, files map[string]string, mutate func(*Config)) *Handler {
	t.Helper()

	mem := afero.NewMemMapFs()
	require.NoError(t, mem.MkdirAll(testRoot+"/docs", 0755))
	for name, data := range files {
		require.NoError(t, afero.WriteFile(mem, testRoot+name, []byte(data), 0644))
	}

	cfg := Config{Root: testRoot, ReadTimeout: 2 * time.Second, WriteTimeout: 2 * time.Second}
	if mutate != nil {
		mutate(&cfg)
	}
	return NewHandler(cfg, contentfs.NewFSContentStore(mem), nil)
}

// roundTrip sends request over an in-memory connection and returns everything
// the handler wrote before the connection was closed.
func roundTrip(t *testing.T, h *Handler, request string) (string, error) {
	t.Helper()

	client, server := net.Pipe()
	errCh := make(chan error, 1)
	go func() {
		errCh <- h.ServeConn(context.Background(), server)
		server.Close()
	}()
	go func() {
		_, _ = client.Write([]byte(request))
	}()

	resp, err := io.ReadAll(client)
	require.NoError(t, err)
	client.Close()

	select {
	case serveErr := <-errCh:
		return string(resp), serveErr
	case <-time.After(5 * time.Second):
		t.Fatal("handler did not return")
		return "", nil
	}
}

func TestServeConn_200ExactBytes(t *testing.T) {
	h := newTestHandler(t, map[string]string{"/a.txt": "hello world\n"}, nil)

	resp, err := roundTrip(t, h, "GET /a.txt HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t,
		"HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 12\r\n\r\nhello world\n",
		resp)
}

func TestServeConn_404ExactBytes(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	resp, err := roundTrip(t, h, "GET /missing.html HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 404 Not Found\r\nContent-Length: 0\r\n\r\n", resp)
}

func TestServeConn_DirectoryIs404(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	resp, err := roundTrip(t, h, "GET /docs HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 404 Not Found\r\nContent-Length: 0\r\n\r\n", resp)
}

func TestServeConn_Malformed(t *testing.T) {
	h := newTestHandler(t, map[string]string{"/a.txt": "x"}, nil)

	for _, request := range []string{
		"POST /a.txt HTTP/1.0\r\n\r\n",
		"get /a.txt HTTP/1.0\r\n\r\n",
		"GET\r\n\r\n",
		"\r\n",
	} {
		t.Run(strings.TrimSpace(request), func(t *testing.T) {
			resp, err := roundTrip(t, h, request)
			assert.ErrorIs(t, err, ErrMalformedRequest)
			assert.Equal(t, "HTTP/1.0 400 Bad Request\r\nContent-Length: 0\r\n\r\n", resp)
		})
	}
}

func TestServeConn_LargeFileStreamsEveryByte(t *testing.T) {
	body := strings.Repeat("0123456789", 1000)
	h := newTestHandler(t, map[string]string{"/big.html": body}, nil)

	resp, err := roundTrip(t, h, "GET /big.html HTTP/1.0\r\n\r\n")
	require.NoError(t, err)

	header := "HTTP/1.0 200 OK\r\nContent-Type: text/html\r\nContent-Length: 10000\r\n\r\n"
	require.True(t, strings.HasPrefix(resp, header))
	assert.Equal(t, body, strings.TrimPrefix(resp, header))
}

func TestServeConn_UnknownExtension(t *testing.T) {
	png := "\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"
	files := map[string]string{"/blob.bin": png, "/noext": "plain"}

	t.Run("default type", func(t *testing.T) {
		h := newTestHandler(t, files, nil)
		resp, err := roundTrip(t, h, "GET /blob.bin HTTP/1.0\r\n\r\n")
		require.NoError(t, err)
		assert.Contains(t, resp, "Content-Type: application/octet-stream\r\n")
		assert.True(t, strings.HasSuffix(resp, png))
	})

	t.Run("sniffed", func(t *testing.T) {
		h := newTestHandler(t, files, func(c *Config) { c.SniffMIME = true })
		resp, err := roundTrip(t, h, "GET /blob.bin HTTP/1.0\r\n\r\n")
		require.NoError(t, err)
		assert.Equal(t,
			"HTTP/1.0 200 OK\r\nContent-Type: image/png\r\nContent-Length: 16\r\n\r\n"+png,
			resp)
	})
}

func TestServeConn_OversizedRequestIsDrained(t *testing.T) {
	h := newTestHandler(t, map[string]string{"/a.txt": "ok"}, nil)

	// 512 + 2*512 + 100: two full drain reads, then a short one ends draining.
	request := "GET /a.txt HTTP/1.0\r\nX-Pad: "
	request += strings.Repeat("p", 512*3+100-len(request)-4) + "\r\n\r\n"
	require.Len(t, request, 512*3+100)

	resp, err := roundTrip(t, h, request)
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 2\r\n\r\nok", resp)
}

func TestServeConn_StateSequence(t *testing.T) {
	var mu sync.Mutex
	var states []State
	record := func(c *Config) {
		c.OnStateChange = func(_ net.Conn, s State) {
			mu.Lock()
			states = append(states, s)
			mu.Unlock()
		}
	}

	tests := []struct {
		request string
		want    []State
	}{
		{"GET /a.txt HTTP/1.0\r\n\r\n", []State{StateAccepted, StateRequestRead, StateResourceResolved, StateFound, StateResponded200}},
		{"GET /nope HTTP/1.0\r\n\r\n", []State{StateAccepted, StateRequestRead, StateResourceResolved, StateNotFound, StateResponded404}},
		{"PUT /a.txt HTTP/1.0\r\n\r\n", []State{StateAccepted, StateRequestRead, StateMalformed}},
	}

	for _, tt := range tests {
		t.Run(strings.Fields(tt.request)[1], func(t *testing.T) {
			states = nil
			h := newTestHandler(t, map[string]string{"/a.txt": "a"}, record)
			_, _ = roundTrip(t, h, tt.request)

			h.ConnClosed(nil)

			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, append(tt.want, StateClosed), states)
		})
	}
}

func TestServeConn_PeerGoneIsNotMalformed(t *testing.T) {
	h := newTestHandler(t, nil, nil)

	client, server := net.Pipe()
	client.Close()

	err := h.ServeConn(context.Background(), server)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrMalformedRequest)
	assert.ErrorIs(t, err, io.EOF)
}

func TestServeConn_ReadTimeout(t *testing.T) {
	h := newTestHandler(t, nil, func(c *Config) { c.ReadTimeout = 50 * time.Millisecond })

	client, server := net.Pipe()
	defer client.Close()

	err := h.ServeConn(context.Background(), server)
	var netErr net.Error
	require.True(t, errors.As(err, &netErr))
	assert.True(t, netErr.Timeout())
}

type failingStore struct{ content.ContentStore }

func (failingStore) GetContentSize(context.Context, content.ContentID) (uint64, error) {
	return 0, errors.New("backend unavailable")
}

func TestServeConn_StoreFailureAnswers404(t *testing.T) {
	h := NewHandler(Config{Root: testRoot}, failingStore{}, nil)

	resp, err := roundTrip(t, h, "GET /a.txt HTTP/1.0\r\n\r\n")
	require.NoError(t, err)
	assert.Equal(t, "HTTP/1.0 404 Not Found\r\nContent-Length: 0\r\n\r\n", resp)
}

func TestNewHandler_PanicsOnNilStore(t *testing.T) {
	assert.Panics(t, func() { NewHandler(Config{}, nil, nil) })
}

func TestStreamBody_ShortContent(t *testing.T) {
	var out bytes.Buffer
	err := streamBody(&out, nil, strings.NewReader("abc"), 10)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
	assert.Equal(t, "abc", out.String())
}

func TestStreamBody_LongContentIsTruncated(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, streamBody(&out, []byte("ab"), strings.NewReader("cdef"), 4))
	assert.Equal(t, "abcd", out.String())
}
