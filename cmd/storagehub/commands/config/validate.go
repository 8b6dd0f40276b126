package config

import (
	"fmt"

	"github.com/marmos91/storagehub/pkg/config"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	Long: `Validate the StorageHub configuration file.

Checks for syntax errors, missing required fields, and invalid values.

Examples:
  # Validate default config
  storagehub config validate

  # Validate specific config file
  storagehub config validate --config /etc/storagehub/config.yaml`,
	RunE: runConfigValidate,
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load and validate configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Determine path for display
	displayPath := configPath
	if displayPath == "" {
		displayPath = config.GetDefaultConfigPath()
	}

	// Additional validation checks
	var warnings []string

	// Check API key is configured
	if err := cfg.Server.ValidateAPIKey(); err != nil {
		warnings = append(warnings, "API key not configured - requests will be rejected")
	}

	// Print results
	fmt.Printf("Configuration file: %s\n", displayPath)
	fmt.Println("Validation: OK")

	if len(warnings) > 0 {
		fmt.Println("\nWarnings:")
		for _, w := range warnings {
			fmt.Printf("  - %s\n", w)
		}
	}

	fmt.Printf("\nConfiguration summary:\n")
	fmt.Printf("  Database type:   %s\n", cfg.Database.Type)
	fmt.Printf("  API port:        %d\n", cfg.Server.Port)
	fmt.Printf("  Storage backend: %s\n", cfg.Storage.Backend)
	fmt.Printf("  Base path:       %s\n", cfg.Storage.BasePath)
	fmt.Printf("  Log level:       %s\n", cfg.Logging.Level)

	return nil
}
