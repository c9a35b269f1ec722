package config

import (
	"github.com/marmos91/dittoserve/pkg/metrics"
	promMetrics "github.com/marmos91/dittoserve/pkg/metrics/prometheus"
)

// MetricsResult contains all metrics-related components created from configuration.
type MetricsResult struct {
	// Server is the HTTP server exposing Prometheus metrics (nil if disabled)
	Server *metrics.Server

	// ServerMetrics is the collector for the file server (never nil, uses noop if disabled)
	ServerMetrics metrics.ServerMetrics
}

// InitializeMetrics creates the metrics components based on configuration.
//
// If metrics are enabled the global Prometheus registry is initialized and a
// metrics HTTP server is created. Otherwise the server is nil and the
// collector is a no-op.
func InitializeMetrics(cfg *Config) *MetricsResult {
	if !cfg.Metrics.Enabled {
		return &MetricsResult{
			Server:        nil,
			ServerMetrics: metrics.NewNoopServerMetrics(),
		}
	}

	metrics.InitRegistry()

	server := metrics.NewServer(metrics.ServerConfig{
		Port: cfg.Metrics.Port,
	})

	return &MetricsResult{
		Server:        server,
		ServerMetrics: promMetrics.NewServerMetrics(),
	}
}
