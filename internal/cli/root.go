package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/ppiankov/paperproof/internal/cache"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/pipeline"
	"github.com/ppiankov/paperproof/internal/vector"
	"github.com/ppiankov/paperproof/internal/worker"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Version is overridden at build time with -ldflags "-X ...cli.Version=..."
var Version = "v0.1.0"

var (
	cfgFile string
	verbose bool
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "paperproof",
	Short: "paperproof - supervisory signals from research papers",
	Long: `paperproof turns a research paper into a curated list of verifiable
implementation criteria, and uses those criteria to review and refine
generated code until it matches what the paper describes.

  paperproof signals   paper -> supervisory signals
  paperproof generate  paper -> initial code (repo/initial_repo)
  paperproof refine    signals + generated code -> refined code
  paperproof batch     many papers, one workspace each`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("paperproof %s\n", Version)
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.paperproof/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output (debug logging)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file, .env and ENV variables
func initConfig() {
	// API keys usually live in .env; a missing file is fine
	_ = godotenv.Load()

	if err := registerDefaults(model.DefaultConfig()); err != nil {
		fmt.Fprintf(os.Stderr, "Error registering config defaults: %v\n", err)
	}

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.paperproof")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// PAPERPROOF_LLM_MODEL overrides llm.model
	viper.SetEnvPrefix("PAPERPROOF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// registerDefaults exposes every config key to viper so that env variables
// can override keys the config file never mentions
func registerDefaults(cfg *model.Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	var tree map[string]any
	if err := yaml.Unmarshal(data, &tree); err != nil {
		return err
	}
	setDefaults("", tree)
	return nil
}

func setDefaults(prefix string, tree map[string]any) {
	for k, v := range tree {
		key := k
		if prefix != "" {
			key = prefix + "." + k
		}
		if sub, ok := v.(map[string]any); ok {
			setDefaults(key, sub)
			continue
		}
		viper.SetDefault(key, v)
	}
}

// loadConfig merges defaults, config file, env and API-key variables, then
// validates the result
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	applyEnvKeys(cfg)
	if verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvKeys fills credentials from the provider's conventional variables
func applyEnvKeys(cfg *model.Config) {
	switch strings.ToLower(cfg.LLM.Provider) {
	case "openai":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "anthropic", "claude":
		if cfg.LLM.APIKey == "" {
			cfg.LLM.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	case "ollama":
		if cfg.LLM.BaseURL == "" {
			cfg.LLM.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}

	switch cfg.Embedding.Provider {
	case "openai", "auto":
		if cfg.Embedding.APIKey == "" {
			cfg.Embedding.APIKey = os.Getenv("OPENAI_API_KEY")
		}
	case "ollama":
		if cfg.Embedding.BaseURL == "" {
			cfg.Embedding.BaseURL = os.Getenv("OLLAMA_BASE_URL")
		}
	}
}

// services holds the shared collaborators every command builds from config
type services struct {
	cfg     *model.Config
	logger  *zap.Logger
	gen     llm.Generator
	encoder vector.Encoder
	loader  *pipeline.PaperLoader
}

func newServices(cfg *model.Config) (*services, error) {
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return nil, err
	}

	if cfg.LLM.Provider == "openai" && cfg.LLM.APIKey == "" && cfg.LLM.BaseURL == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY environment variable not set")
	}
	if (cfg.LLM.Provider == "anthropic" || cfg.LLM.Provider == "claude") && cfg.LLM.APIKey == "" {
		return nil, fmt.Errorf("ANTHROPIC_API_KEY environment variable not set")
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(cfg))
	if err != nil {
		return nil, fmt.Errorf("create LLM provider: %w", err)
	}
	limiter := worker.NewLimiter(cfg.LLM.RequestsPerSecond, cfg.LLM.Burst)
	llm.ApplyModelLimits(limiter, provider.Name(), cfg.LLM.ModelLimits)

	encoder, err := vector.NewEncoder(cfg.Embedding, cache.FromConfig(cfg.Cache), cfg.Cache.DiskTTL)
	if err != nil {
		return nil, fmt.Errorf("create encoder: %w", err)
	}
	if _, ok := encoder.(*vector.HashEncoder); ok {
		logger.Info("using lexical hash embeddings, paraphrased signals may not be merged; set OPENAI_API_KEY or embedding.provider for semantic deduplication")
	}

	return &services{
		cfg:     cfg,
		logger:  logger,
		gen:     llm.NewClient(provider, cfg.LLM.Model, limiter, logger),
		encoder: encoder,
		loader:  pipeline.NewPaperLoader(cfg.HTTP, logger),
	}, nil
}

func (s *services) close() {
	_ = s.logger.Sync()
}

// commandContext is cancelled on SIGINT/SIGTERM
func commandContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
