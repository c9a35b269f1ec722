package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write config file: %v", err)
	}
	return path
}

func TestLoad_DefaultConfig(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "info"

content:
  type: "filesystem"
  filesystem:
    path: "/srv/www"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "INFO" {
		t.Errorf("Expected normalized level 'INFO', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" {
		t.Errorf("Expected default format 'text', got %q", cfg.Logging.Format)
	}
	if cfg.Logging.Output != "stdout" {
		t.Errorf("Expected default output 'stdout', got %q", cfg.Logging.Output)
	}
	if cfg.Server.Workers != 5 {
		t.Errorf("Expected default workers 5, got %d", cfg.Server.Workers)
	}
	if cfg.Server.QueueCapacity != 5 {
		t.Errorf("Expected default queue_capacity 5, got %d", cfg.Server.QueueCapacity)
	}
	if cfg.Server.ShutdownPolicy != "abandon" {
		t.Errorf("Expected default shutdown_policy 'abandon', got %q", cfg.Server.ShutdownPolicy)
	}
	if cfg.Server.ShutdownTimeout != 30*time.Second {
		t.Errorf("Expected default shutdown_timeout 30s, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Content.Filesystem["path"] != "/srv/www" {
		t.Errorf("Expected filesystem path '/srv/www', got %v", cfg.Content.Filesystem["path"])
	}
}

func TestLoad_ServerSection(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  port: 8081
  workers: 8
  queue_capacity: 16
  shutdown_policy: drain
  read_timeout: 5s
  shutdown_timeout: 2m
  accept_rate: 100
mime:
  sniff: true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Server.Port != 8081 || cfg.Server.Workers != 8 || cfg.Server.QueueCapacity != 16 {
		t.Errorf("Unexpected server sizing: %+v", cfg.Server)
	}
	if cfg.Server.ShutdownPolicy != "drain" {
		t.Errorf("Expected shutdown_policy 'drain', got %q", cfg.Server.ShutdownPolicy)
	}
	if cfg.Server.ReadTimeout != 5*time.Second {
		t.Errorf("Expected read_timeout 5s, got %v", cfg.Server.ReadTimeout)
	}
	if cfg.Server.ShutdownTimeout != 2*time.Minute {
		t.Errorf("Expected shutdown_timeout 2m, got %v", cfg.Server.ShutdownTimeout)
	}
	if cfg.Server.AcceptRate != 100 {
		t.Errorf("Expected accept_rate 100, got %d", cfg.Server.AcceptRate)
	}
	if !cfg.Mime.Sniff {
		t.Error("Expected mime.sniff to be true")
	}

	sc := cfg.ServerConfig("/srv/www")
	if sc.Root != "/srv/www" || !sc.SniffMIME {
		t.Errorf("ServerConfig did not carry root and sniff: %+v", sc)
	}
}

func TestLoad_NoConfigFile(t *testing.T) {
	// Point the default location at an empty directory so the user's own
	// config is not picked up.
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load should succeed without a config file: %v", err)
	}
	if cfg.Content.Type != "filesystem" {
		t.Errorf("Expected default content type 'filesystem', got %q", cfg.Content.Type)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Expected default port 8080, got %d", cfg.Server.Port)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", "logging:\n  level: [unterminated\n")

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected error for invalid YAML")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
server:
  shutdown_policy: flush
`)

	if _, err := Load(configPath); err == nil {
		t.Fatal("Expected validation error for unknown shutdown policy")
	}
}

func TestLoad_TOML(t *testing.T) {
	configPath := writeConfig(t, "config.toml", `
[logging]
level = "DEBUG"
format = "json"

[server]
port = 9000

[content]
type = "badger"

[content.badger]
in_memory = true
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load TOML config: %v", err)
	}

	if cfg.Logging.Level != "DEBUG" {
		t.Errorf("Expected level 'DEBUG', got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Expected format 'json', got %q", cfg.Logging.Format)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Expected port 9000, got %d", cfg.Server.Port)
	}
	if cfg.Content.Type != "badger" {
		t.Errorf("Expected content type 'badger', got %q", cfg.Content.Type)
	}
	if cfg.Content.Badger["in_memory"] != true {
		t.Errorf("Expected badger in_memory true, got %v", cfg.Content.Badger["in_memory"])
	}
}

func TestLoad_EnvironmentVariables(t *testing.T) {
	t.Setenv("DITTOSERVE_LOGGING_LEVEL", "ERROR")
	t.Setenv("DITTOSERVE_SERVER_PORT", "5080")

	configPath := writeConfig(t, "config.yaml", `
logging:
  level: "INFO"
server:
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}

	if cfg.Logging.Level != "ERROR" {
		t.Errorf("Expected level 'ERROR' from env var, got %q", cfg.Logging.Level)
	}
	if cfg.Server.Port != 5080 {
		t.Errorf("Expected port 5080 from env var, got %d", cfg.Server.Port)
	}
}

func TestConfigPaths(t *testing.T) {
	xdg := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", xdg)

	dir := GetConfigDir()
	if dir != filepath.Join(xdg, "dittoserve") {
		t.Errorf("Expected config dir under XDG_CONFIG_HOME, got %q", dir)
	}
	if GetDefaultConfigPath() != filepath.Join(dir, "config.yaml") {
		t.Errorf("Unexpected default config path %q", GetDefaultConfigPath())
	}
	if ConfigExists() {
		t.Error("ConfigExists should be false in an empty directory")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(GetDefaultConfigPath(), []byte("logging:\n  level: INFO\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if !ConfigExists() {
		t.Error("ConfigExists should be true once the file is written")
	}
}
