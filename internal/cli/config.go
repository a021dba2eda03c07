package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// configCmd represents the config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage paperproof configuration",
	Long: `Manage paperproof configuration files and settings.

Configuration hierarchy (highest to lowest priority):
1. CLI flags
2. Environment variables (PAPERPROOF_*, e.g. PAPERPROOF_LLM_MODEL)
3. Config file (~/.paperproof/config.yaml)
4. Defaults`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration",
	Long:  `Display the configuration after merging defaults, config file and environment variables. API keys are masked.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		if configFile := viper.ConfigFileUsed(); configFile != "" {
			fmt.Fprintf(os.Stderr, "Configuration file: %s\n\n", configFile)
		} else {
			fmt.Fprintf(os.Stderr, "No configuration file found (using defaults)\n\n")
		}

		yamlData, err := yaml.Marshal(maskSecrets(*cfg))
		if err != nil {
			return fmt.Errorf("error marshaling config: %w", err)
		}
		fmt.Print(string(yamlData))
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize default configuration file",
	Long:  `Create a default configuration file at ~/.paperproof/config.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		home, err := os.UserHomeDir()
		if err != nil {
			return fmt.Errorf("error finding home directory: %w", err)
		}

		configPath := filepath.Join(home, ".paperproof", "config.yaml")
		if err := writeDefaultConfig(configPath); err != nil {
			return err
		}

		fmt.Printf("✓ Created default configuration: %s\n", configPath)
		fmt.Printf("\nTo view the configuration:\n")
		fmt.Printf("  paperproof config show\n\n")
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the configuration and reach the LLM provider",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		fmt.Println("✓ Configuration is valid")

		provider, err := llm.NewProvider(llm.ConfigFromModel(cfg))
		if err != nil {
			return fmt.Errorf("create LLM provider: %w", err)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if !provider.IsAvailable(ctx) {
			return fmt.Errorf("%s provider is not reachable (model %s)", provider.Name(), cfg.LLM.Model)
		}
		fmt.Printf("✓ %s provider reachable (model %s)\n", provider.Name(), cfg.LLM.Model)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configCheckCmd)
}

// writeDefaultConfig writes the default configuration to path. An existing
// file is never overwritten.
func writeDefaultConfig(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s\nUse 'paperproof config show' to view it, or delete it first to recreate", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("error creating config directory: %w", err)
	}

	yamlData, err := yaml.Marshal(model.DefaultConfig())
	if err != nil {
		return fmt.Errorf("error marshaling config: %w", err)
	}

	header := "# paperproof configuration\n" +
		"#\n" +
		"# Any key can be overridden with PAPERPROOF_<SECTION>_<KEY>, e.g.\n" +
		"#   export PAPERPROOF_LLM_MODEL=gpt-4o\n" +
		"#\n" +
		"# API keys are read from the environment or a .env file:\n" +
		"#   OPENAI_API_KEY, ANTHROPIC_API_KEY, OLLAMA_BASE_URL\n\n"

	if err := os.WriteFile(path, append([]byte(header), yamlData...), 0600); err != nil {
		return fmt.Errorf("error writing config: %w", err)
	}
	return nil
}

func maskSecrets(cfg model.Config) model.Config {
	if cfg.LLM.APIKey != "" {
		cfg.LLM.APIKey = mask(cfg.LLM.APIKey)
	}
	if cfg.Embedding.APIKey != "" {
		cfg.Embedding.APIKey = mask(cfg.Embedding.APIKey)
	}
	return cfg
}

func mask(s string) string {
	if len(s) <= 8 {
		return "****"
	}
	return s[:4] + "****" + s[len(s)-4:]
}
