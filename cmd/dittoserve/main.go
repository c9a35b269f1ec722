package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/pkg/config"
	"github.com/marmos91/dittoserve/pkg/server"
)

const usage = `Usage: dittoserve [flags] <directory> <port>

Serves the files under <directory> over HTTP/1.0 on <port>.

Flags:
`

func main() {
	os.Exit(run())
}

func run() int {
	configFile := flag.String("config", "", "Path to config file (default: $XDG_CONFIG_HOME/dittoserve/config.yaml)")
	logLevel := flag.String("log-level", "", "Log level override (DEBUG, INFO, WARN, ERROR)")
	initConfig := flag.Bool("init-config", false, "Write a default config file and exit")
	force := flag.Bool("force", false, "Overwrite an existing config file with -init-config")

	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	// Registered before setup so an early Ctrl+C cancels it instead of
	// killing the process.
	ctx, stopSignals := shutdownContext()
	defer stopSignals()

	if *initConfig {
		return writeDefaultConfig(*configFile, *force)
	}

	if flag.NArg() != 2 {
		flag.Usage()
		return 1
	}
	dir := flag.Arg(0)
	port, err := parsePort(flag.Arg(1))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid port: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		return 1
	}

	// Positionals win over the config file and environment.
	cfg.Server.Port = port
	cfg.Content.Filesystem["path"] = dir
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	config.ApplyDefaults(cfg)
	if err := config.Validate(cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid configuration: %v\n", err)
		return 1
	}

	if err := configureLogger(cfg.Logging); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to configure logging: %v\n", err)
		return 1
	}

	fmt.Println("DittoServe - static file server")
	logger.Info("Log level set to: %s", cfg.Logging.Level)

	store, root, err := config.CreateContentStore(ctx, &cfg.Content)
	if err != nil {
		logger.Error("Failed to create content store: %v", err)
		return 1
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Warn("Error closing content store: %v", err)
		}
	}()
	if cfg.Content.Type != "filesystem" {
		logger.Info("Serving from %s backend; directory argument %q is not used", cfg.Content.Type, dir)
	}

	metricsResult := config.InitializeMetrics(cfg)
	if metricsResult.Server != nil {
		go func() {
			if err := metricsResult.Server.Start(ctx); err != nil {
				logger.Error("Metrics server error: %v", err)
			}
		}()
		logger.Info("Metrics enabled on port %d", cfg.Metrics.Port)
	}

	serverConfig := cfg.ServerConfig(root)
	logServerConfig(serverConfig)

	srv := server.New(serverConfig, store, metricsResult.ServerMetrics)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.Serve(ctx)
	}()

	logger.Info("Server is running on port %d. Press Ctrl+C to stop.", serverConfig.Port)

	exitCode := 0
	select {
	case <-ctx.Done():
		logger.Info("Received shutdown signal, initiating graceful shutdown...")
		stopSignals()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error: %v", err)
			exitCode = 1
		} else {
			logger.Info("Server stopped gracefully")
		}

	case err := <-serverDone:
		if err != nil {
			logger.Error("Server error: %v", err)
			exitCode = 1
		} else {
			logger.Info("Server stopped")
		}
	}

	if metricsResult.Server != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		if err := metricsResult.Server.Stop(stopCtx); err != nil {
			logger.Warn("Error stopping metrics server: %v", err)
		}
	}

	return exitCode
}

// shutdownContext returns a context cancelled by SIGINT or SIGTERM.
func shutdownContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// parsePort parses the port positional, which must be in 1-65535.
func parsePort(arg string) (int, error) {
	port, err := strconv.Atoi(arg)
	if err != nil {
		return 0, fmt.Errorf("%q is not a number", arg)
	}
	if port < 1 || port > 65535 {
		return 0, fmt.Errorf("%d is outside 1-65535", port)
	}
	return port, nil
}

func writeDefaultConfig(path string, force bool) int {
	if path == "" {
		var err error
		if path, err = config.InitConfig(force); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
			return 1
		}
	} else if err := config.InitConfigToPath(path, force); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to write config: %v\n", err)
		return 1
	}

	fmt.Printf("Configuration written to %s\n", path)
	return 0
}

func configureLogger(cfg config.LoggingConfig) error {
	logger.SetLevel(cfg.Level)
	logger.SetFormat(cfg.Format)
	return logger.SetOutput(cfg.Output)
}

func logServerConfig(c server.Config) {
	logger.Info("Server configuration:")
	logger.Info("  Port: %d", c.Port)
	logger.Info("  Content root: %q", c.Root)
	logger.Info("  Workers: %d", c.Workers)
	logger.Info("  Queue capacity: %d", c.QueueCapacity)
	logger.Info("  Shutdown policy: %s", c.ShutdownPolicy)
	logger.Info("  Read timeout: %v", c.ReadTimeout)
	logger.Info("  Write timeout: %v", c.WriteTimeout)
	logger.Info("  Shutdown timeout: %v", c.ShutdownTimeout)
	if c.AcceptRate > 0 {
		logger.Info("  Accept rate: %d/s (burst %d)", c.AcceptRate, c.AcceptBurst)
	} else {
		logger.Info("  Accept rate: unlimited")
	}
	if c.SniffMIME {
		logger.Info("  MIME sniffing: enabled")
	}
}
