package server

import (
	"fmt"
	"time"

	"github.com/marmos91/dittoserve/internal/queue"
	"github.com/marmos91/dittoserve/internal/worker"
)

// Config holds the listener, queue and worker settings.
//
// Default values (applied by New if zero):
//   - Workers: 5
//   - QueueCapacity: 5
//   - ShutdownPolicy: "abandon"
//   - ShutdownTimeout: 30s
//
// ReadTimeout and WriteTimeout are used as-is: a value <= 0 disables the
// deadline. pkg/config fills them in before the server sees them.
type Config struct {
	// Port is the TCP port to listen on. 0 lets the OS pick one.
	Port int `mapstructure:"port" validate:"min=0,max=65535"`

	// Workers is the fixed number of goroutines serving connections.
	Workers int `mapstructure:"workers" validate:"min=0"`

	// QueueCapacity bounds how many accepted connections may wait for a
	// worker. When full, the listener stops accepting.
	QueueCapacity int `mapstructure:"queue_capacity" validate:"min=0"`

	// ShutdownPolicy decides what happens to queued connections on shutdown:
	// "abandon" closes them unserved, "drain" serves them first.
	ShutdownPolicy string `mapstructure:"shutdown_policy" validate:"omitempty,oneof=abandon drain"`

	// ReadTimeout bounds reading a request.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`

	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`

	// ShutdownTimeout is how long to wait for in-flight connections before
	// closing them forcibly.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=0"`

	// AcceptRate limits accepted connections per second. 0 means unlimited.
	AcceptRate uint `mapstructure:"accept_rate"`

	// AcceptBurst is the accept burst size. 0 defaults to AcceptRate.
	AcceptBurst uint `mapstructure:"accept_burst"`

	// MetricsLogInterval is how often queue depth and active workers are
	// logged. 0 disables periodic logging.
	MetricsLogInterval time.Duration `mapstructure:"metrics_log_interval" validate:"min=0"`

	// Root is prepended to every request path. Set from the content
	// configuration, not from the server section.
	Root string `mapstructure:"-" json:"-"`

	// SniffMIME enables content sniffing for unknown extensions. Set from
	// the mime configuration section.
	SniffMIME bool `mapstructure:"-" json:"-"`
}

// applyDefaults fills in zero values with sensible defaults.
func (c *Config) applyDefaults() {
	if c.Workers == 0 {
		c.Workers = worker.DefaultSize
	}
	if c.QueueCapacity == 0 {
		c.QueueCapacity = queue.DefaultCapacity
	}
	if c.ShutdownPolicy == "" {
		c.ShutdownPolicy = queue.Abandon.String()
	}
	if c.ShutdownTimeout == 0 {
		c.ShutdownTimeout = 30 * time.Second
	}
}

// validate checks the configuration after defaults have been applied.
func (c *Config) validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 0-65535", c.Port)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("invalid Workers %d: must be > 0", c.Workers)
	}
	if c.QueueCapacity <= 0 {
		return fmt.Errorf("invalid QueueCapacity %d: must be > 0", c.QueueCapacity)
	}
	if _, err := queue.ParsePolicy(c.ShutdownPolicy); err != nil {
		return err
	}
	if c.ShutdownTimeout <= 0 {
		return fmt.Errorf("invalid ShutdownTimeout %v: must be > 0", c.ShutdownTimeout)
	}
	return nil
}
