package config

import (
	"strings"
	"time"

	"github.com/marmos91/depot/internal/bytesize"
)

// Default values applied when the configuration leaves a field unset.
const (
	DefaultPort            = 8080
	DefaultSessionWorkers  = 8
	DefaultFileWorkers     = 4
	DefaultConnectionQueue = 64
	DefaultTaskQueue       = 128
	DefaultMaxUsers        = 1000
	DefaultMetricsPort     = 9090

	DefaultStorageRoot = "./storage"
	DefaultUsersFile   = "./users.txt"
)

const (
	DefaultMaxUpload = 512 * bytesize.MiB
	DefaultUserQuota = 100 * bytesize.MiB
)

// GetDefaultConfig returns a configuration populated entirely with
// defaults, as written by `depot init`.
func GetDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults sets default values for any unspecified configuration
// fields.
//
// Zero values (0, "", false) are replaced with defaults; explicit values
// are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyPoolsDefaults(&cfg.Pools)
	applyStorageDefaults(&cfg.Storage)
	applyMetricsDefaults(&cfg.Metrics)

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	// Normalize log level to uppercase for consistent internal representation
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = DefaultPort
	}
	if cfg.MaxUpload == 0 {
		cfg.MaxUpload = DefaultMaxUpload
	}
}

func applyPoolsDefaults(cfg *PoolsConfig) {
	if cfg.SessionWorkers == 0 {
		cfg.SessionWorkers = DefaultSessionWorkers
	}
	if cfg.FileWorkers == 0 {
		cfg.FileWorkers = DefaultFileWorkers
	}
	if cfg.ConnectionQueue == 0 {
		cfg.ConnectionQueue = DefaultConnectionQueue
	}
	if cfg.TaskQueue == 0 {
		cfg.TaskQueue = DefaultTaskQueue
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Root == "" {
		cfg.Root = DefaultStorageRoot
	}
	if cfg.UsersFile == "" {
		cfg.UsersFile = DefaultUsersFile
	}
	if cfg.UserQuota == 0 {
		cfg.UserQuota = DefaultUserQuota
	}
	if cfg.MaxUsers == 0 {
		cfg.MaxUsers = DefaultMaxUsers
	}
}

// applyMetricsDefaults sets metrics defaults. Metrics are opt-in; the
// port only matters when they are enabled.
func applyMetricsDefaults(cfg *MetricsConfig) {
	if cfg.Enabled && cfg.Port == 0 {
		cfg.Port = DefaultMetricsPort
	}
}
