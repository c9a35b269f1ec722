package e2e

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/config"
	"github.com/marmos91/dittoserve/pkg/content"
	"github.com/marmos91/dittoserve/pkg/server"
)

// TestContext provides a complete testing environment with:
// - A site written to disk (and uploaded, for S3)
// - A content store built through pkg/config
// - A running server on a loopback port
type TestContext struct {
	T       *testing.T
	Config  *TestConfig
	Server  *server.Server
	Store   content.ContentStore
	SiteDir string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan error
}

// NewTestContext starts a server for config serving the fixture site.
func NewTestContext(t *testing.T, cfg *TestConfig) *TestContext {
	t.Helper()

	// Functional tests, not debugging sessions.
	logger.SetLevel("ERROR")

	ctx, cancel := context.WithCancel(context.Background())
	tc := &TestContext{
		T:      t,
		Config: cfg,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan error, 1),
	}

	tc.writeSite()
	if cfg.Backend == BackendS3 {
		SetupS3Config(t, cfg, siteFiles())
	}
	tc.startServer()

	return tc
}

// writeSite materializes the fixture site in a temp directory.
func (tc *TestContext) writeSite() {
	tc.T.Helper()

	tc.SiteDir = tc.T.TempDir()
	for rel, data := range siteFiles() {
		path := filepath.Join(tc.SiteDir, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			tc.T.Fatalf("Failed to create %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, data, 0644); err != nil {
			tc.T.Fatalf("Failed to write %s: %v", path, err)
		}
	}
}

func (tc *TestContext) startServer() {
	tc.T.Helper()

	appCfg := tc.Config.appConfig(tc.SiteDir)
	if err := config.Validate(appCfg); err != nil {
		tc.T.Fatalf("Invalid test configuration: %v", err)
	}

	store, root, err := config.CreateContentStore(tc.ctx, &appCfg.Content)
	if err != nil {
		tc.T.Fatalf("Failed to create content store: %v", err)
	}
	tc.Store = store

	tc.Server = server.New(appCfg.ServerConfig(root), store, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		tc.T.Fatalf("Failed to listen: %v", err)
	}

	go func() {
		tc.done <- tc.Server.ServeListener(tc.ctx, ln)
	}()

	select {
	case <-tc.Server.Ready():
	case <-time.After(5 * time.Second):
		tc.T.Fatal("Server did not become ready")
	}
}

// Cleanup stops the server and closes the content store.
func (tc *TestContext) Cleanup() {
	tc.T.Helper()

	tc.cancel()
	select {
	case err := <-tc.done:
		if err != nil {
			tc.T.Errorf("Server shutdown error: %v", err)
		}
	case <-time.After(10 * time.Second):
		tc.T.Error("Server did not shut down")
	}

	if err := tc.Store.Close(); err != nil {
		tc.T.Errorf("Failed to close content store: %v", err)
	}
}

// Response is a parsed HTTP/1.0 response.
type Response struct {
	StatusLine string
	Headers    map[string]string
	Body       []byte
	Raw        []byte
}

// Send writes raw to a fresh connection and reads the response until the
// server closes it.
func (tc *TestContext) Send(raw string) *Response {
	tc.T.Helper()

	conn, err := net.DialTimeout("tcp", tc.Server.Addr().String(), 5*time.Second)
	if err != nil {
		tc.T.Fatalf("Failed to connect: %v", err)
	}
	defer conn.Close()

	_ = conn.SetDeadline(time.Now().Add(10 * time.Second))
	if _, err := io.WriteString(conn, raw); err != nil {
		tc.T.Fatalf("Failed to send request: %v", err)
	}

	data, err := io.ReadAll(conn)
	if err != nil {
		tc.T.Fatalf("Failed to read response: %v", err)
	}
	return parseResponse(tc.T, data)
}

// Get requests path with a well-formed GET.
func (tc *TestContext) Get(path string) *Response {
	tc.T.Helper()
	return tc.Send(fmt.Sprintf("GET %s HTTP/1.0\r\n\r\n", path))
}

func parseResponse(t *testing.T, data []byte) *Response {
	t.Helper()

	head, body, ok := bytes.Cut(data, []byte("\r\n\r\n"))
	if !ok {
		t.Fatalf("Response has no header terminator: %q", data)
	}

	lines := strings.Split(string(head), "\r\n")
	resp := &Response{
		StatusLine: lines[0],
		Headers:    make(map[string]string),
		Body:       body,
		Raw:        data,
	}
	for _, line := range lines[1:] {
		name, value, found := strings.Cut(line, ": ")
		if !found {
			t.Fatalf("Malformed header line %q", line)
		}
		resp.Headers[name] = value
	}
	return resp
}
