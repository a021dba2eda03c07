package vector

import (
	"fmt"
	"time"

	"github.com/ppiankov/paperproof/internal/cache"
	"github.com/ppiankov/paperproof/internal/model"
)

// NewEncoder builds the configured encoder, wrapped with c when non-nil
func NewEncoder(cfg model.EmbeddingConfig, c cache.Cache, ttl time.Duration) (Encoder, error) {
	var (
		enc Encoder
		err error
	)

	switch ResolveProvider(cfg) {
	case "", "hash":
		enc = NewHashEncoder(cfg.Dimensions, cfg.BatchSize)
	case "openai":
		enc, err = NewOpenAIEncoder(cfg.APIKey, cfg.BaseURL, cfg.Model, cfg.BatchSize)
	case "ollama":
		enc, err = NewOllamaEncoder(cfg.BaseURL, cfg.Model, cfg.BatchSize, 0)
	default:
		return nil, fmt.Errorf("unknown embedding provider: %s (supported: auto, hash, openai, ollama)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	// Hashing is cheaper than a cache lookup
	if _, ok := enc.(*HashEncoder); ok {
		return enc, nil
	}
	return NewCachedEncoder(enc, c, ttl), nil
}

// ResolveProvider returns the concrete encoder cfg selects. "auto" means
// openai when a key is configured and hash otherwise.
func ResolveProvider(cfg model.EmbeddingConfig) string {
	if cfg.Provider != "auto" {
		return cfg.Provider
	}
	if cfg.APIKey != "" {
		return "openai"
	}
	return "hash"
}
