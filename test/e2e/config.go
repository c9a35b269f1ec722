package e2e

import (
	"fmt"
	"testing"
	"time"

	"github.com/marmos91/dittoserve/pkg/config"
)

// ContentBackend selects where the served site is stored.
type ContentBackend string

const (
	BackendFilesystem ContentBackend = "filesystem"
	BackendBadger     ContentBackend = "badger"
	BackendS3         ContentBackend = "s3"
)

// TestConfig describes one server setup the suite runs against.
type TestConfig struct {
	Name    string
	Backend ContentBackend

	// Sniff enables MIME sniffing for unknown extensions
	Sniff bool

	// S3-specific fields (set by localstack setup)
	localstack *LocalstackHelper
	s3Bucket   string
}

// String returns a string representation of the configuration
func (tc *TestConfig) String() string {
	return fmt.Sprintf("%s/sniff=%t", tc.Backend, tc.Sniff)
}

// AllConfigurations returns every backend configuration. The S3 backend is
// only included when Localstack is reachable.
func AllConfigurations(t *testing.T) []*TestConfig {
	t.Helper()

	configs := []*TestConfig{
		{Name: "filesystem", Backend: BackendFilesystem},
		{Name: "badger", Backend: BackendBadger},
	}

	if CheckLocalstackAvailable(t) {
		configs = append(configs, &TestConfig{Name: "s3", Backend: BackendS3})
	} else {
		t.Log("Localstack not available, skipping s3 backend")
	}

	return configs
}

// appConfig builds the application configuration serving siteDir.
func (tc *TestConfig) appConfig(siteDir string) *config.Config {
	cfg := &config.Config{
		Logging: config.LoggingConfig{Level: "ERROR"},
		Content: config.ContentConfig{Type: string(tc.Backend)},
		Mime:    config.MimeConfig{Sniff: tc.Sniff},
	}
	cfg.Server.ShutdownTimeout = 5 * time.Second

	switch tc.Backend {
	case BackendFilesystem:
		cfg.Content.Filesystem = map[string]any{"path": siteDir}
	case BackendBadger:
		cfg.Content.Badger = map[string]any{
			"in_memory":   true,
			"import_from": siteDir,
		}
	case BackendS3:
		cfg.Content.S3 = map[string]any{
			"region":            "us-east-1",
			"bucket":            tc.s3Bucket,
			"endpoint":          tc.localstack.Endpoint,
			"access_key_id":     "test",
			"secret_access_key": "test",
			"max_retries":       1,
		}
	}

	config.ApplyDefaults(cfg)
	return cfg
}
