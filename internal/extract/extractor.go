// Package extract turns paper text into candidate facts using three
// independent strategies: a hierarchical framework guide, a flattened config
// guide and a paragraph-by-paragraph exhaustive scan.
package extract

import (
	"context"

	"github.com/ppiankov/paperproof/internal/artifact"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/segment"
	"go.uber.org/zap"
)

const (
	// guideAttempts bounds retries of the single guide-generation call
	guideAttempts = 3

	// DefaultScanRetries bounds retries per paragraph in the exhaustive scan
	DefaultScanRetries = 5
)

// Extractor produces candidate facts from a paper
type Extractor interface {
	// Source identifies the strategy
	Source() model.Source

	// Extract returns the facts, reusing a persisted guide unless replace was requested
	Extract(ctx context.Context, paper *segment.Segmenter) ([]model.Fact, error)
}

// Options configure an extractor
type Options struct {
	Model   string // Empty uses the generator's default model
	Replace bool   // Regenerate guides that already exist
	Retries int    // Exhaustive scan only; 0 uses DefaultScanRetries
	Logger  *zap.Logger
}

type base struct {
	gen     llm.Generator
	store   *artifact.Store
	model   string
	replace bool
	logger  *zap.Logger
}

func newBase(gen llm.Generator, store *artifact.Store, opts Options, name string) base {
	return base{
		gen:     gen,
		store:   store,
		model:   opts.Model,
		replace: opts.Replace,
		logger:  logging.Module(opts.Logger, name),
	}
}

// cached reports whether name can be loaded instead of regenerated
func (b base) cached(name string) bool {
	return !b.replace && b.store.Exists(name)
}

func (b base) callOptions(system string) []llm.Option {
	opts := []llm.Option{llm.WithSystem(system)}
	if b.model != "" {
		opts = append(opts, llm.WithModel(b.model))
	}
	return opts
}

func paperPrompt(content string) string {
	return "Here is the full paper content:\n```markdown\n" + content + "\n```"
}

// All returns the three strategies in merge order
func All(gen llm.Generator, store *artifact.Store, opts Options) []Extractor {
	return []Extractor{
		NewFrameworkExtractor(gen, store, opts),
		NewConfigExtractor(gen, store, opts),
		NewExhaustiveExtractor(gen, store, opts),
	}
}
