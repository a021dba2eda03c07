package cli

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/vector"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func resetViper(t *testing.T) {
	t.Helper()
	viper.Reset()
	t.Cleanup(viper.Reset)

	require.NoError(t, registerDefaults(model.DefaultConfig()))
	viper.SetEnvPrefix("PAPERPROOF")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

func TestLoadConfig_Defaults(t *testing.T) {
	resetViper(t)
	t.Setenv("OPENAI_API_KEY", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, model.DefaultConfig(), cfg)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	resetViper(t)
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PAPERPROOF_LLM_MODEL", "gpt-4o")
	t.Setenv("PAPERPROOF_REFINE_MAX_ATTEMPTS", "5")
	t.Setenv("PAPERPROOF_HTTP_TIMEOUT", "1m")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, "gpt-4o", cfg.LLM.Model)
	assert.Equal(t, 5, cfg.Refine.MaxAttempts)
	assert.Equal(t, time.Minute, cfg.HTTP.Timeout)
	assert.Equal(t, "sk-test", cfg.LLM.APIKey)
}

func TestLoadConfig_ConfigFile(t *testing.T) {
	resetViper(t)
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("refine:\n  max_attempts: 2\nfilter:\n  distance_threshold: 0.3\n"), 0o644))
	viper.SetConfigFile(path)
	require.NoError(t, viper.ReadInConfig())

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Refine.MaxAttempts)
	assert.InDelta(t, 0.3, cfg.Filter.DistanceThreshold, 1e-9)
	assert.Equal(t, "config.yaml", cfg.Refine.ConfigFile)
}

func TestLoadConfig_Invalid(t *testing.T) {
	resetViper(t)
	t.Setenv("PAPERPROOF_LLM_PROVIDER", "gemini")

	_, err := loadConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "LLM.Provider")
}

func TestApplyEnvKeys(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "sk-ant")
	t.Setenv("OLLAMA_BASE_URL", "http://localhost:11434")

	cfg := model.DefaultConfig()
	cfg.LLM.Provider = "anthropic"
	cfg.Embedding.Provider = "ollama"
	applyEnvKeys(cfg)
	assert.Equal(t, "sk-ant", cfg.LLM.APIKey)
	assert.Equal(t, "http://localhost:11434", cfg.Embedding.BaseURL)

	cfg.LLM.APIKey = "explicit"
	applyEnvKeys(cfg)
	assert.Equal(t, "explicit", cfg.LLM.APIKey)
}

func TestApplyEnvKeys_AutoEmbeddingUsesOpenAIKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-openai")

	cfg := model.DefaultConfig()
	require.Equal(t, "auto", cfg.Embedding.Provider)
	applyEnvKeys(cfg)
	assert.Equal(t, "sk-openai", cfg.Embedding.APIKey)
	assert.Equal(t, "openai", vector.ResolveProvider(cfg.Embedding))

	t.Setenv("OPENAI_API_KEY", "")
	cfg = model.DefaultConfig()
	applyEnvKeys(cfg)
	assert.Equal(t, "hash", vector.ResolveProvider(cfg.Embedding))
}

func TestWriteDefaultConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".paperproof", "config.yaml")
	require.NoError(t, writeDefaultConfig(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded model.Config
	require.NoError(t, yaml.Unmarshal(data, &decoded))
	assert.Equal(t, *model.DefaultConfig(), decoded)

	err = writeDefaultConfig(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already exists")
}

func TestMaskSecrets(t *testing.T) {
	cfg := model.DefaultConfig()
	cfg.LLM.APIKey = "sk-1234567890abcd"
	cfg.Embedding.APIKey = "short"

	masked := maskSecrets(*cfg)
	assert.Equal(t, "sk-1****abcd", masked.LLM.APIKey)
	assert.Equal(t, "****", masked.Embedding.APIKey)
	assert.Equal(t, "sk-1234567890abcd", cfg.LLM.APIKey)
}
