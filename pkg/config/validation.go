package config

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

// Validate checks the configuration for structural errors: out-of-range
// ports, unknown enum values, missing required fields. Semantic checks
// that need the environment (API key presence, base path existence) are
// done at startup by the components that own them.
func Validate(cfg *Config) error {
	validate := validator.New()

	if err := validate.Struct(cfg); err != nil {
		return err
	}

	backendCfg := cfg.Storage.BackendConfig()
	if err := backendCfg.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}

	if err := cfg.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}

	return nil
}
