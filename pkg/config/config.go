package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/marmos91/dittoserve/pkg/server"
	"github.com/spf13/viper"
)

// Config represents the complete DittoServe configuration.
//
// Configuration sources (in order of precedence):
//  1. CLI positionals (directory and port, applied by cmd/dittoserve)
//  2. Environment variables (DITTOSERVE_*)
//  3. Configuration file (YAML or TOML)
//  4. Default values
//
// Store Configuration Pattern:
// Each content backend has its own option map (content.filesystem,
// content.s3, content.badger). Only the section matching content.type is
// decoded, by CreateContentStore.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging"`

	// Server holds listener, queue and worker settings
	Server server.Config `mapstructure:"server"`

	// Content specifies the content backend and its options
	Content ContentConfig `mapstructure:"content"`

	// Mime controls content type detection
	Mime MimeConfig `mapstructure:"mime"`

	// Metrics controls the Prometheus endpoint
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive, normalized to uppercase)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required"`
}

// ContentConfig specifies where served files come from.
type ContentConfig struct {
	// Type selects the backend
	// Valid values: filesystem, s3, badger
	Type string `mapstructure:"type" validate:"required,oneof=filesystem s3 badger"`

	// Filesystem options. Only used when Type = "filesystem"
	Filesystem map[string]any `mapstructure:"filesystem"`

	// S3 options. Only used when Type = "s3"
	S3 map[string]any `mapstructure:"s3"`

	// Badger options. Only used when Type = "badger"
	Badger map[string]any `mapstructure:"badger"`
}

// MimeConfig controls how Content-Type is chosen.
type MimeConfig struct {
	// Sniff detects the type from the first bytes of files whose extension
	// is not in the built-in table. When false they are served as
	// application/octet-stream.
	Sniff bool `mapstructure:"sniff"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	// Enabled starts the metrics HTTP server
	Enabled bool `mapstructure:"enabled"`

	// Port for /metrics and /healthz
	Port int `mapstructure:"port" validate:"min=0,max=65535"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: Configuration loading or validation error
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	if err := readConfigFile(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// setupViper configures viper with environment variables and config file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Example: DITTOSERVE_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("DITTOSERVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// $XDG_CONFIG_HOME/dittoserve/config.{yaml,toml}
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
func readConfigFile(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return nil
		}
		return fmt.Errorf("failed to read config file: %w", err)
	}
	return nil
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to the
// current directory if the home directory cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "dittoserve")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "dittoserve")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// ConfigExists checks if a config file exists at the default location.
func ConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() string {
	return getConfigDir()
}

// ServerConfig returns the server settings with the content-derived fields
// filled in. root is the prefix returned by CreateContentStore.
func (c *Config) ServerConfig(root string) server.Config {
	sc := c.Server
	sc.Root = root
	sc.SniffMIME = c.Mime.Sniff
	return sc
}
