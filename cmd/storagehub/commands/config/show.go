package config

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/marmos91/storagehub/pkg/config"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var showOutput string

var showCmd = &cobra.Command{
	Use:   "show",
	Short: "Display current configuration",
	Long: `Display the current StorageHub configuration.

By default outputs YAML format. Use --output to change format.
The API key is redacted from the output.

Examples:
  # Show default config as YAML
  storagehub config show

  # Show as JSON
  storagehub config show --output json

  # Show specific config file
  storagehub config show --config /etc/storagehub/config.yaml`,
	RunE: runConfigShow,
}

func init() {
	showCmd.Flags().StringVarP(&showOutput, "output", "o", "yaml", "Output format (yaml|json)")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	// Get config path from parent's persistent flag
	configPath, _ := cmd.Flags().GetString("config")

	// Load configuration
	cfg, err := config.MustLoad(configPath)
	if err != nil {
		return err
	}

	// Never print the shared secret
	if cfg.Server.APIKey != "" {
		cfg.Server.APIKey = "<redacted>"
	}

	switch showOutput {
	case "json":
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(cfg)
	case "yaml":
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to marshal config: %w", err)
		}
		fmt.Print(string(data))
		return nil
	default:
		return fmt.Errorf("unsupported output format: %s (use yaml or json)", showOutput)
	}
}
