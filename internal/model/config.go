package model

import "time"

// Config is the complete paperproof configuration
type Config struct {
	LLM         LLMConfig         `yaml:"llm" mapstructure:"llm"`
	Embedding   EmbeddingConfig   `yaml:"embedding" mapstructure:"embedding"`
	Concurrency ConcurrencyConfig `yaml:"concurrency" mapstructure:"concurrency"`
	Filter      FilterConfig      `yaml:"filter" mapstructure:"filter"`
	Generate    GenerateConfig    `yaml:"generate" mapstructure:"generate"`
	Refine      RefineConfig      `yaml:"refine" mapstructure:"refine"`
	Workspace   WorkspaceConfig   `yaml:"workspace" mapstructure:"workspace"`
	HTTP        HTTPConfig        `yaml:"http" mapstructure:"http"`
	Cache       CacheConfig       `yaml:"cache" mapstructure:"cache"`
	Logging     LoggingConfig     `yaml:"logging" mapstructure:"logging"`
}

// LLMConfig selects the text-generation backend
type LLMConfig struct {
	Provider          string  `yaml:"provider" mapstructure:"provider" validate:"required,oneof=openai anthropic claude ollama"`
	Model             string  `yaml:"model" mapstructure:"model"`
	RerankModel       string  `yaml:"rerank_model" mapstructure:"rerank_model"` // Evidence re-ranking; falls back to Model
	APIKey            string  `yaml:"api_key,omitempty" mapstructure:"api_key"`
	BaseURL           string  `yaml:"base_url,omitempty" mapstructure:"base_url"`
	Timeout           int     `yaml:"timeout" mapstructure:"timeout" validate:"gte=0"` // seconds
	MaxTokens         int     `yaml:"max_tokens" mapstructure:"max_tokens" validate:"gte=0"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `yaml:"burst" mapstructure:"burst" validate:"gte=1"`

	// ModelLimits override the default rate for individual models, e.g. a
	// slower quota on the model used for verification
	ModelLimits []ModelLimit `yaml:"model_limits,omitempty" mapstructure:"model_limits" validate:"dive"`
}

// ModelLimit is a per-model request rate
type ModelLimit struct {
	Model             string  `yaml:"model" mapstructure:"model" validate:"required"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `yaml:"burst,omitempty" mapstructure:"burst" validate:"gte=0"` // 0 keeps llm.burst
}

// EmbeddingConfig selects the sentence encoder used for retrieval and deduplication.
//
// "auto" picks openai when an API key is available and hash otherwise. The
// hash encoder is lexical feature hashing: it runs offline but only sees
// shared words, so paraphrases sit far apart and the default
// filter.distance_threshold of 0.5, tuned for dense semantic embeddings,
// merges fewer near-duplicates than it would with openai or ollama.
type EmbeddingConfig struct {
	Provider   string `yaml:"provider" mapstructure:"provider" validate:"oneof=auto hash openai ollama"`
	Model      string `yaml:"model" mapstructure:"model"`
	BaseURL    string `yaml:"base_url,omitempty" mapstructure:"base_url"`
	APIKey     string `yaml:"api_key,omitempty" mapstructure:"api_key"`
	Dimensions int    `yaml:"dimensions" mapstructure:"dimensions" validate:"gte=8"` // hash encoder only
	BatchSize  int    `yaml:"batch_size" mapstructure:"batch_size" validate:"gte=1"`
}

// ConcurrencyConfig bounds the worker pools
type ConcurrencyConfig struct {
	Workers       int `yaml:"workers" mapstructure:"workers" validate:"gte=1"`               // retrieval, standardization, filter
	VerifyWorkers int `yaml:"verify_workers" mapstructure:"verify_workers" validate:"gte=1"` // per-criterion verification
	BatchWorkers  int `yaml:"batch_workers" mapstructure:"batch_workers" validate:"gte=1"`   // papers processed at once
}

// FilterConfig tunes signal curation
type FilterConfig struct {
	DistanceThreshold float64 `yaml:"distance_threshold" mapstructure:"distance_threshold" validate:"gt=0,lte=2"` // cosine distance; assumes semantic embeddings
	DenylistFile      string  `yaml:"denylist_file,omitempty" mapstructure:"denylist_file"` // empty uses the built-in list
}

// GenerateConfig tunes initial code generation
type GenerateConfig struct {
	Model        string `yaml:"model,omitempty" mapstructure:"model"`                 // framework, steps, implementation; falls back to llm.model
	SummaryModel string `yaml:"summary_model,omitempty" mapstructure:"summary_model"` // summaries, config, experiment plan
	Retries      int    `yaml:"retries" mapstructure:"retries" validate:"gte=1"`      // per generation step
	AddendumFile string `yaml:"addendum_file" mapstructure:"addendum_file" validate:"required"`
}

// RefineConfig tunes the verify/plan/edit loop
type RefineConfig struct {
	MaxAttempts  int      `yaml:"max_attempts" mapstructure:"max_attempts" validate:"gte=1"`
	EvalModel    string   `yaml:"eval_model,omitempty" mapstructure:"eval_model"`
	PlanModel    string   `yaml:"plan_model,omitempty" mapstructure:"plan_model"`
	ReviseModel  string   `yaml:"revise_model,omitempty" mapstructure:"revise_model"`
	ConfigFile   string   `yaml:"config_file" mapstructure:"config_file" validate:"required"`
	InitialFiles []string `yaml:"initial_files" mapstructure:"initial_files" validate:"min=1,dive,required"`
	LogDirName   string   `yaml:"log_dir_name" mapstructure:"log_dir_name" validate:"required"`
}

// WorkspaceConfig controls where artifacts are written
type WorkspaceConfig struct {
	Root    string `yaml:"root" mapstructure:"root" validate:"required"`
	Replace bool   `yaml:"replace" mapstructure:"replace"` // Regenerate artifacts that already exist
}

// HTTPConfig is used when papers are loaded from a URL
type HTTPConfig struct {
	Timeout           time.Duration `yaml:"timeout" mapstructure:"timeout"`
	UserAgent         string        `yaml:"user_agent" mapstructure:"user_agent"`
	MaxBodyBytes      int64         `yaml:"max_body_bytes" mapstructure:"max_body_bytes" validate:"gt=0"`
	RespectRobots     bool          `yaml:"respect_robots" mapstructure:"respect_robots"`
	RequestsPerSecond float64       `yaml:"requests_per_second" mapstructure:"requests_per_second" validate:"gt=0"` // per host
	HTTPProxy         string        `yaml:"http_proxy,omitempty" mapstructure:"http_proxy"`
	HTTPSProxy        string        `yaml:"https_proxy,omitempty" mapstructure:"https_proxy"`
	NoProxy           string        `yaml:"no_proxy,omitempty" mapstructure:"no_proxy"`
}

// CacheConfig controls the embedding cache
type CacheConfig struct {
	Enabled   bool          `yaml:"enabled" mapstructure:"enabled"`
	Dir       string        `yaml:"dir" mapstructure:"dir"`
	MemoryTTL time.Duration `yaml:"memory_ttl" mapstructure:"memory_ttl"`
	DiskTTL   time.Duration `yaml:"disk_ttl" mapstructure:"disk_ttl"`
}

// LoggingConfig controls the zap logger
type LoggingConfig struct {
	Level      string `yaml:"level" mapstructure:"level" validate:"oneof=debug info warn error"`
	Format     string `yaml:"format" mapstructure:"format" validate:"oneof=console json"`
	File       string `yaml:"file,omitempty" mapstructure:"file"` // Rotated JSON log, disabled when empty
	MaxSizeMB  int    `yaml:"max_size_mb" mapstructure:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups" mapstructure:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days" mapstructure:"max_age_days"`
	Compress   bool   `yaml:"compress" mapstructure:"compress"`
}

// DefaultConfig returns sensible defaults
func DefaultConfig() *Config {
	return &Config{
		LLM: LLMConfig{
			Provider:          "openai",
			Model:             "gpt-4o-mini",
			RerankModel:       "gpt-4o-mini",
			Timeout:           120,
			MaxTokens:         4096,
			RequestsPerSecond: 5,
			Burst:             10,
		},
		Embedding: EmbeddingConfig{
			Provider:   "auto",
			Model:      "text-embedding-3-small",
			Dimensions: 384,
			BatchSize:  32,
		},
		Concurrency: ConcurrencyConfig{
			Workers:       10,
			VerifyWorkers: 5,
			BatchWorkers:  2,
		},
		Filter: FilterConfig{
			DistanceThreshold: 0.5,
		},
		Generate: GenerateConfig{
			Retries:      3,
			AddendumFile: "addendum.md",
		},
		Refine: RefineConfig{
			MaxAttempts:  3,
			ConfigFile:   "config.yaml",
			InitialFiles: []string{"config.yaml", "main.py", "experiments.py"},
			LogDirName:   "code_reflection",
		},
		Workspace: WorkspaceConfig{
			Root: "results/default",
		},
		HTTP: HTTPConfig{
			Timeout:           30 * time.Second,
			UserAgent:         "paperproof/0.1 (+https://github.com/ppiankov/paperproof)",
			MaxBodyBytes:      10_000_000,
			RespectRobots:     true,
			RequestsPerSecond: 1,
		},
		Cache: CacheConfig{
			Enabled:   true,
			Dir:       ".paperproof-cache",
			MemoryTTL: time.Hour,
			DiskTTL:   30 * 24 * time.Hour,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 30,
			Compress:   true,
		},
	}
}

// ModelOr returns model if set, otherwise fallback
func ModelOr(model, fallback string) string {
	if model != "" {
		return model
	}
	return fallback
}
