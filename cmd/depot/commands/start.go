package commands

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/depot/internal/logger"
	"github.com/marmos91/depot/pkg/config"
	"github.com/marmos91/depot/pkg/metrics"
	"github.com/marmos91/depot/pkg/registry"
	"github.com/marmos91/depot/pkg/server"
	"github.com/marmos91/depot/pkg/storage"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Depot server",
	Long: `Start the Depot server with the specified configuration.

Use --config to specify a custom configuration file, or it will use the
default location at $XDG_CONFIG_HOME/depot/config.yaml.

Examples:
  # Start with default config location
  depot start

  # Start with custom config file
  depot start --config /etc/depot/config.yaml

  # Start with environment variable overrides
  DEPOT_LOGGING_LEVEL=DEBUG depot start`,
	RunE: runStart,
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.MustLoad(GetConfigFile())
	if err != nil {
		return err
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	logger.Info("Configuration loaded", "source", getConfigSource(GetConfigFile()))

	var m *metrics.ServerMetrics
	if cfg.Metrics.Enabled {
		metrics.InitRegistry()
		m = metrics.NewServerMetrics()
		if _, err := metrics.StartHTTPServer(cfg.Metrics.Port); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	} else {
		logger.Info("Metrics collection disabled")
	}

	store, err := storage.New(cfg.Storage.Root)
	if err != nil {
		return fmt.Errorf("failed to open storage root: %w", err)
	}
	logger.Info("Storage ready", "root", store.Root())

	reg := registry.New(registry.Config{
		Path:         cfg.Storage.UsersFile,
		QuotaLimit:   cfg.Storage.UserQuota.Uint64(),
		MaxUsers:     cfg.Storage.MaxUsers,
		ProvisionDir: store.EnsureUserDir,
	})
	if err := reg.Load(); err != nil {
		return fmt.Errorf("failed to load user registry: %w", err)
	}

	srv := server.New(server.Config{
		Port:              cfg.Server.Port,
		SessionWorkers:    cfg.Pools.SessionWorkers,
		FileWorkers:       cfg.Pools.FileWorkers,
		ConnQueueCapacity: cfg.Pools.ConnectionQueue,
		TaskQueueCapacity: cfg.Pools.TaskQueue,
		MaxUpload:         cfg.Server.MaxUpload.Uint64(),
		ShutdownTimeout:   cfg.ShutdownTimeout,
	}, reg, store, m)

	serverDone := make(chan error, 1)
	go func() {
		serverDone <- srv.ListenAndServe(nil)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("Server is running. Press Ctrl+C to stop.")

	select {
	case <-sigChan:
		signal.Stop(sigChan)
		logger.Info("Shutdown signal received, initiating graceful shutdown")

		if err := srv.Shutdown(); err != nil {
			logger.Error("Server shutdown error", "error", err)
			return err
		}
		if err := <-serverDone; err != nil {
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

// getConfigSource returns a description of where the config was loaded from.
func getConfigSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
