// Package config loads, defaults and validates the static StorageHub
// configuration.
//
// Configuration sources (in order of precedence):
//  1. Environment variables (STORAGEHUB_*, plus legacy aliases)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/marmos91/storagehub/internal/api"
	"github.com/marmos91/storagehub/internal/bytesize"
	"github.com/marmos91/storagehub/pkg/provision/store"
	"github.com/marmos91/storagehub/pkg/storage"
)

// Config represents the StorageHub configuration.
//
// This captures the static aspects of the service:
//   - Logging configuration
//   - Server settings (port, timeouts, API key)
//   - Storage backend selection and parameters
//   - Database connection (entity registry persistence)
//   - Metrics server configuration
//
// Entities themselves are dynamic state managed through the REST API
// and stored in the entity registry database.
type Config struct {
	// Logging controls log output behavior
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// ShutdownTimeout is the maximum time to wait for graceful shutdown
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0" yaml:"shutdown_timeout"`

	// Server contains the REST API server configuration
	Server api.ServerConfig `mapstructure:"server" yaml:"server"`

	// Storage selects and parameterizes the storage backend
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`

	// Database configures the entity registry (SQLite or PostgreSQL)
	Database store.Config `mapstructure:"database" yaml:"database"`

	// Metrics contains Prometheus metrics configuration
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	// Level is the minimum log level to output
	// Valid values: DEBUG, INFO, WARN, ERROR (case-insensitive)
	Level string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error" yaml:"level"`

	// Format specifies the log output format
	// Valid values: text, json
	Format string `mapstructure:"format" validate:"required,oneof=text json" yaml:"format"`

	// Output specifies where logs are written
	// Valid values: stdout, stderr, or a file path
	Output string `mapstructure:"output" validate:"required" yaml:"output"`
}

// StorageConfig selects the backend and its parameters. The backend is
// chosen once at startup; all entities live on the same backend.
type StorageConfig struct {
	// Backend is the storage technology: "posix" or "zfs".
	// Default: posix
	Backend string `mapstructure:"backend" validate:"required,oneof=posix zfs" yaml:"backend"`

	// BasePath is the directory (posix) or dataset (zfs) under which all
	// entity storage locations are created.
	// Examples: /export/home (posix), tank/home (zfs)
	BasePath string `mapstructure:"base_path" validate:"required" yaml:"base_path"`

	// OwnerUID and OwnerGID own newly provisioned locations unless a
	// request overrides them.
	// Default: 1000/100
	OwnerUID uint32 `mapstructure:"owner_uid" yaml:"owner_uid"`
	OwnerGID uint32 `mapstructure:"owner_gid" yaml:"owner_gid"`

	// CommandTimeout bounds every external tool invocation (zfs, du,
	// setquota). Default: 60s
	CommandTimeout time.Duration `mapstructure:"command_timeout" yaml:"command_timeout"`

	// BestEffortQuota keeps a freshly provisioned entity when its quota
	// step fails instead of rolling the provision back.
	// Default: false (strict rollback)
	BestEffortQuota bool `mapstructure:"best_effort_quota" yaml:"best_effort_quota"`
}

// BackendConfig converts to the storage layer's backend configuration.
func (c *StorageConfig) BackendConfig() storage.Config {
	return storage.Config{
		Backend:        c.Backend,
		BasePath:       c.BasePath,
		CommandTimeout: c.CommandTimeout,
	}
}

// MetricsConfig configures the Prometheus metrics endpoint.
// When Enabled is false, no metrics are collected (zero overhead).
type MetricsConfig struct {
	// Enabled controls whether metrics collection is enabled
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// Load loads configuration from file, environment, and defaults.
//
// Parameters:
//   - configPath: Path to config file (empty string uses default location)
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setupViper(v, configPath)

	configFileFound, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if configFileFound {
		if err := v.Unmarshal(&cfg, viper.DecodeHook(configDecodeHooks())); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	applyCompatEnv(&cfg)
	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

// MustLoad loads configuration with helpful error messages when the
// config file is missing.
func MustLoad(configPath string) (*Config, error) {
	if configPath == "" {
		if !DefaultConfigExists() {
			return nil, fmt.Errorf("no configuration file found at default location: %s\n\n"+
				"Please initialize a configuration file first:\n"+
				"  storagehub init\n\n"+
				"Or specify a custom config file:\n"+
				"  storagehub <command> --config /path/to/config.yaml",
				GetDefaultConfigPath())
		}
		configPath = GetDefaultConfigPath()
	} else {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			return nil, fmt.Errorf("configuration file not found: %s\n\n"+
				"Please create the configuration file:\n"+
				"  storagehub init --config %s",
				configPath, configPath)
		}
	}

	cfg, err := Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	return cfg, nil
}

// SaveConfig saves the configuration to the specified file path in
// YAML format.
func SaveConfig(cfg *Config, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// 0600: the file may contain the API key
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// setupViper configures viper with environment variables and config
// file settings.
func setupViper(v *viper.Viper, configPath string) {
	// Environment variables use the STORAGEHUB_ prefix and underscores
	// Example: STORAGEHUB_LOGGING_LEVEL=DEBUG
	v.SetEnvPrefix("STORAGEHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		// Default location: $XDG_CONFIG_HOME/storagehub/config.yaml
		v.AddConfigPath(getConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

// readConfigFile reads the configuration file if it exists.
// Returns (fileFound, error).
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// applyCompatEnv honors the flat environment variables used by the
// predecessor service so existing deployments keep working:
// STORAGE_BACKEND, STORAGE_BASE_PATH, STORAGE_UID, STORAGE_GID.
// The API key aliases are resolved by the server config itself.
func applyCompatEnv(cfg *Config) {
	if v := os.Getenv("STORAGE_BACKEND"); v != "" {
		cfg.Storage.Backend = v
	}
	if v := os.Getenv("STORAGE_BASE_PATH"); v != "" {
		cfg.Storage.BasePath = v
	}
	if v := os.Getenv("STORAGE_UID"); v != "" {
		if uid, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Storage.OwnerUID = uint32(uid)
		}
	}
	if v := os.Getenv("STORAGE_GID"); v != "" {
		if gid, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.Storage.OwnerGID = uint32(gid)
		}
	}
}

// configDecodeHooks returns a combined decode hook for all custom
// types: ByteSize and time.Duration.
func configDecodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		durationDecodeHook(),
	)
}

// byteSizeDecodeHook converts strings and numbers to bytesize.ByteSize,
// so config files can use human-readable sizes like "10Gi" or "500MB".
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML often deserializes numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}

// durationDecodeHook converts strings to time.Duration, so config files
// can use human-readable durations like "30s", "5m", "1h".
func durationDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data interface{}) (interface{}, error) {
		if to != reflect.TypeOf(time.Duration(0)) {
			return data, nil
		}

		switch v := data.(type) {
		case string:
			return time.ParseDuration(v)
		case int:
			return time.Duration(v), nil
		case int64:
			return time.Duration(v), nil
		case float64:
			return time.Duration(v), nil
		default:
			return data, nil
		}
	}
}

// getConfigDir returns the configuration directory path.
//
// Uses XDG_CONFIG_HOME if set, otherwise ~/.config, or falls back to
// the current directory if home cannot be determined.
func getConfigDir() string {
	if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
		return filepath.Join(xdgConfig, "storagehub")
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}

	return filepath.Join(home, ".config", "storagehub")
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() string {
	return filepath.Join(getConfigDir(), "config.yaml")
}

// DefaultConfigExists checks if a config file exists at the default
// location.
func DefaultConfigExists() bool {
	_, err := os.Stat(GetDefaultConfigPath())
	return err == nil
}

// GetConfigDir returns the configuration directory path (exposed for
// the init command).
func GetConfigDir() string {
	return getConfigDir()
}
