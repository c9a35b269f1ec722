package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const configHeader = `# DittoServe Configuration File
#
# Values can be overridden with DITTOSERVE_* environment variables,
# e.g. DITTOSERVE_LOGGING_LEVEL=DEBUG. The directory and port given on the
# command line override content.filesystem.path and server.port.`

// InitConfig writes a default configuration file to the default location.
//
// Returns the path of the written file. Fails if the file already exists
// unless force is set.
func InitConfig(force bool) (string, error) {
	path := GetDefaultConfigPath()
	if err := InitConfigToPath(path, force); err != nil {
		return "", err
	}
	return path, nil
}

// InitConfigToPath writes a default configuration file to path, creating
// parent directories as needed.
func InitConfigToPath(path string, force bool) error {
	if !force {
		if _, err := os.Stat(path); err == nil {
			return fmt.Errorf("config file already exists at %s (use force to overwrite)", path)
		}
	}

	data, err := generateYAMLWithComments(GetDefaultConfig())
	if err != nil {
		return fmt.Errorf("failed to generate config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(data), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// generateYAMLWithComments renders cfg as an annotated YAML document.
func generateYAMLWithComments(cfg *Config) (string, error) {
	var b nodeBuilder

	root := mapping(
		key("logging", "Logging output"),
		mapping(
			key("level", "DEBUG, INFO, WARN or ERROR"), b.value(cfg.Logging.Level),
			key("format", "text or json"), b.value(cfg.Logging.Format),
			key("output", "stdout, stderr or a file path"), b.value(cfg.Logging.Output),
		),

		key("server", "Listener, queue and worker pool"),
		mapping(
			key("port", ""), b.value(cfg.Server.Port),
			key("workers", "Fixed number of connection workers"), b.value(cfg.Server.Workers),
			key("queue_capacity", "Accepted connections waiting for a worker; when full the listener stops accepting"), b.value(cfg.Server.QueueCapacity),
			key("shutdown_policy", "abandon: close queued connections unserved on shutdown\ndrain: serve them first"), b.value(cfg.Server.ShutdownPolicy),
			key("read_timeout", ""), b.duration(cfg.Server.ReadTimeout),
			key("write_timeout", ""), b.duration(cfg.Server.WriteTimeout),
			key("shutdown_timeout", "In-flight connections still open after this are closed forcibly"), b.duration(cfg.Server.ShutdownTimeout),
			key("accept_rate", "Accepted connections per second, 0 = unlimited"), b.value(cfg.Server.AcceptRate),
			key("accept_burst", ""), b.value(cfg.Server.AcceptBurst),
			key("metrics_log_interval", "Periodic load logging, 0 = disabled"), b.duration(cfg.Server.MetricsLogInterval),
		),

		key("content", "Where files are served from: filesystem, s3 or badger"),
		mapping(
			key("type", ""), b.value(cfg.Content.Type),
			key("filesystem", ""), b.value(cfg.Content.Filesystem),
			key("s3", "bucket, region, key_prefix, endpoint, access_key_id, secret_access_key, max_retries, skip_bucket_check"), b.value(cfg.Content.S3),
			key("badger", "db_path, in_memory, read_only, block_cache_size_mb, import_from"), b.value(cfg.Content.Badger),
		),

		key("mime", "Content type detection"),
		mapping(
			key("sniff", "Detect the type of files with unknown extensions from their first bytes"), b.value(cfg.Mime.Sniff),
		),

		key("metrics", "Prometheus endpoint (/metrics and /healthz)"),
		mapping(
			key("enabled", ""), b.value(cfg.Metrics.Enabled),
			key("port", ""), b.value(cfg.Metrics.Port),
		),
	)
	if b.err != nil {
		return "", b.err
	}

	doc := &yaml.Node{
		Kind:        yaml.DocumentNode,
		HeadComment: configHeader,
		Content:     []*yaml.Node{root},
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return "", err
	}
	if err := enc.Close(); err != nil {
		return "", err
	}
	return buf.String(), nil
}

// nodeBuilder encodes values into yaml nodes, keeping the first error.
type nodeBuilder struct {
	err error
}

func (b *nodeBuilder) value(v any) *yaml.Node {
	n := &yaml.Node{}
	if b.err == nil {
		b.err = n.Encode(v)
	}
	return n
}

// duration renders d the way viper parses it back ("30s", not nanoseconds).
func (b *nodeBuilder) duration(d time.Duration) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: d.String()}
}

func key(name, comment string) *yaml.Node {
	n := &yaml.Node{Kind: yaml.ScalarNode, Value: name}
	if comment != "" {
		n.HeadComment = commentLines(comment)
	}
	return n
}

func mapping(content ...*yaml.Node) *yaml.Node {
	return &yaml.Node{Kind: yaml.MappingNode, Content: content}
}

func commentLines(s string) string {
	var buf bytes.Buffer
	for i, line := range bytes.Split([]byte(s), []byte("\n")) {
		if i > 0 {
			buf.WriteByte('\n')
		}
		buf.WriteString("# ")
		buf.Write(line)
	}
	return buf.String()
}
