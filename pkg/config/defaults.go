package config

import (
	"strings"
	"time"

	"github.com/marmos91/storagehub/pkg/provision/store"
)

// ApplyDefaults sets default values for any unspecified configuration
// fields. Zero values are replaced; explicit values are preserved.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyShutdownTimeoutDefaults(cfg)
	cfg.Server.ApplyDefaults()
	applyStorageDefaults(&cfg.Storage)
	cfg.Database.ApplyDefaults()
}

// applyLoggingDefaults sets logging defaults and normalizes values.
func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	cfg.Level = strings.ToUpper(cfg.Level)

	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyShutdownTimeoutDefaults(cfg *Config) {
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
}

// applyStorageDefaults sets storage backend defaults.
func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "posix"
	}
	if cfg.BasePath == "" {
		cfg.BasePath = "/export/home"
	}
	if cfg.OwnerUID == 0 {
		cfg.OwnerUID = 1000
	}
	if cfg.OwnerGID == 0 {
		cfg.OwnerGID = 100
	}
	if cfg.CommandTimeout == 0 {
		cfg.CommandTimeout = 60 * time.Second
	}
}

// GetDefaultConfig returns a Config struct with all default values
// applied. Useful for generating sample configuration files and tests.
func GetDefaultConfig() *Config {
	cfg := &Config{
		Storage: StorageConfig{
			Backend:  "posix",
			BasePath: "/export/home",
		},
		Database: store.Config{
			Type: store.DatabaseTypeSQLite,
		},
	}

	ApplyDefaults(cfg)
	return cfg
}
