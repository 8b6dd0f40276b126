package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/marmos91/storagehub/internal/api"
	"github.com/marmos91/storagehub/internal/logger"
	"github.com/marmos91/storagehub/pkg/config"
	"github.com/marmos91/storagehub/pkg/metrics"
	"github.com/marmos91/storagehub/pkg/provision"
	"github.com/marmos91/storagehub/pkg/provision/store"
	"github.com/marmos91/storagehub/pkg/storage"
	"github.com/spf13/cobra"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the StorageHub server",
	Long: `Start the StorageHub server with the specified configuration.

The server runs in the foreground and shuts down gracefully on SIGINT
or SIGTERM, making it suitable for process supervisors and containers.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/storagehub/config.yaml.

Examples:
  # Start with default config location
  storagehub start

  # Start with custom config file
  storagehub start --config /etc/storagehub/config.yaml

  # Start with environment variable overrides
  STORAGEHUB_LOGGING_LEVEL=DEBUG storagehub start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	// Initialize the structured logger
	if err := InitLogger(cfg); err != nil {
		return err
	}

	// Create cancellable context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	fmt.Println("StorageHub - Storage provisioning and metering service")
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	// Initialize metrics (if enabled)
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		logger.Info("Metrics enabled", "endpoint", "/metrics")
	} else {
		logger.Info("Metrics collection disabled")
	}

	// Initialize the entity registry store
	st, err := store.New(&cfg.Database)
	if err != nil {
		return fmt.Errorf("failed to initialize entity registry: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Error("entity registry close error", "error", err)
		}
	}()
	logger.Info("Entity registry initialized", "type", cfg.Database.Type)

	// Initialize the storage backend
	backend, err := storage.New(cfg.Storage.BackendConfig())
	if err != nil {
		return fmt.Errorf("failed to initialize storage backend: %w", err)
	}
	logger.Info("Storage backend initialized",
		"backend", backend.Name(),
		"base_path", cfg.Storage.BasePath,
		"quota_scope", backend.Scope())

	// Wire the provisioning orchestrator and usage tracker
	provMetrics := metrics.NewProvisionMetrics()
	orchestrator := provision.New(provision.Config{
		DefaultUID:      cfg.Storage.OwnerUID,
		DefaultGID:      cfg.Storage.OwnerGID,
		BestEffortQuota: cfg.Storage.BestEffortQuota,
	}, backend, st, provMetrics)
	tracker := provision.NewUsageTracker(backend, st, provMetrics)

	// Create the API server
	apiServer, err := api.NewServer(cfg.Server, api.RouterDeps{
		Orchestrator:   orchestrator,
		Tracker:        tracker,
		Store:          st,
		Backend:        backend.Name(),
		MetricsHandler: metrics.Handler(),
	})
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	logger.Info("API server configured", "port", apiServer.Port())

	// Start server in background
	serverDone := make(chan error, 1)
	go func() {
		serverDone <- apiServer.Start(ctx)
	}()

	// Wait for interrupt signal or server error
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer shutdownCancel()
		if err := apiServer.Stop(shutdownCtx); err != nil {
			logger.Error("Server shutdown error", "error", err)
			cancel()
			<-serverDone
			return err
		}
		cancel()

		if err := <-serverDone; err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		logger.Info("Server stopped gracefully")

	case err := <-serverDone:
		signal.Stop(sigChan)
		if err != nil {
			logger.Error("Server error", "error", err)
			return err
		}
		logger.Info("Server stopped")
	}

	return nil
}
