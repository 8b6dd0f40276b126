package api

import (
	"fmt"
	"os"
	"time"

	"github.com/marmos91/storagehub/internal/logger"
)

// EnvAPIKey is the primary environment variable for the API key.
const EnvAPIKey = "STORAGEHUB_API_KEY"

// EnvAPIKeyCompat is the legacy environment variable honored for
// deployments migrating from the predecessor service.
const EnvAPIKeyCompat = "API_KEY"

// MinAPIKeyLength is the minimum accepted API key length. Shorter keys
// are rejected at startup rather than silently weakening auth.
const MinAPIKeyLength = 16

// ServerConfig configures the REST API HTTP server.
//
// The API server is the only management surface: entity provisioning,
// quota management and usage metering all go through it.
type ServerConfig struct {
	// Port is the HTTP port for the API endpoints.
	// Default: 8080
	Port int `mapstructure:"port" validate:"omitempty,min=1,max=65535" yaml:"port"`

	// ReadTimeout is the maximum duration for reading the entire request,
	// including the body. A zero or negative value means no timeout.
	// Default: 10s
	ReadTimeout time.Duration `mapstructure:"read_timeout" yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of
	// the response. Default: 60s, sized for recursive usage scans on
	// large directory trees.
	WriteTimeout time.Duration `mapstructure:"write_timeout" yaml:"write_timeout"`

	// IdleTimeout is the maximum amount of time to wait for the next
	// request when keep-alives are enabled. Default: 60s
	IdleTimeout time.Duration `mapstructure:"idle_timeout" yaml:"idle_timeout"`

	// APIKey is the shared secret clients present in the X-API-Key
	// header. Can also be set via STORAGEHUB_API_KEY (or the legacy
	// API_KEY) environment variable; environment takes precedence.
	APIKey string `mapstructure:"api_key" yaml:"api_key,omitempty"`
}

// ApplyDefaults fills in zero values with sensible defaults.
func (c *ServerConfig) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 10 * time.Second
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60 * time.Second
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60 * time.Second
	}
}

// GetAPIKey returns the API key, preferring the environment variables.
// Logs a warning if the environment overrides a config file value.
func (c *ServerConfig) GetAPIKey() string {
	for _, env := range []string{EnvAPIKey, EnvAPIKeyCompat} {
		if key := os.Getenv(env); key != "" {
			if c.APIKey != "" && c.APIKey != key {
				logger.Warn("API key from environment variable overrides config file value",
					"env_var", env)
			}
			return key
		}
	}
	return c.APIKey
}

// ValidateAPIKey checks that a usable API key is configured.
func (c *ServerConfig) ValidateAPIKey() error {
	key := c.GetAPIKey()
	if key == "" {
		return fmt.Errorf("no API key configured: set server.api_key or the %s environment variable", EnvAPIKey)
	}
	if len(key) < MinAPIKeyLength {
		return fmt.Errorf("API key too short: need at least %d characters, got %d", MinAPIKeyLength, len(key))
	}
	return nil
}
