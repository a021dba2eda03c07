package extract

import (
	"context"
	"fmt"

	"github.com/ppiankov/paperproof/internal/artifact"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/segment"
	"go.uber.org/zap"
)

const configSystemPrompt = `You extract the experimental configuration of a research paper as YAML.
Group settings under nested keys (model, dataset, training, evaluation, and so on).
Every leaf value must be a full sentence quoted verbatim from the paper that states the setting, for example:
  optimizer: "AdamW is used with learning rate 0.0001."
Do not emit bare numbers. Do not invent settings that the paper does not state.
Return the YAML inside a single ` + "```yaml" + ` code block.`

// ConfigExtractor asks for a YAML configuration guide and flattens its string leaves
type ConfigExtractor struct {
	base
}

// NewConfigExtractor creates the config-level extractor
func NewConfigExtractor(gen llm.Generator, store *artifact.Store, opts Options) *ConfigExtractor {
	return &ConfigExtractor{base: newBase(gen, store, opts, "extract.config")}
}

// Source returns model.SourceConfig
func (e *ConfigExtractor) Source() model.Source {
	return model.SourceConfig
}

// Extract returns the config guide facts
func (e *ConfigExtractor) Extract(ctx context.Context, paper *segment.Segmenter) ([]model.Fact, error) {
	guide, err := e.guide(ctx, paper.Content())
	if err != nil {
		return nil, err
	}
	if guide == "" {
		return []model.Fact{}, nil
	}

	facts, err := ParseConfigGuide(guide)
	if err != nil {
		e.logger.Warn("config guide unreadable", zap.Error(err))
		return []model.Fact{}, nil
	}
	e.logger.Info("config guide parsed", zap.Int("facts", len(facts)))
	return facts, nil
}

func (e *ConfigExtractor) guide(ctx context.Context, content string) (string, error) {
	if e.cached(artifact.ConfigGuide) {
		e.logger.Info("config guide exists, loading", zap.String("path", e.store.Path(artifact.ConfigGuide)))
		return e.store.ReadText(artifact.ConfigGuide)
	}

	e.logger.Info("generating config guide")
	for attempt := 1; attempt <= guideAttempts; attempt++ {
		resp, err := e.gen.Generate(ctx, paperPrompt(content), e.callOptions(configSystemPrompt)...)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			e.logger.Warn("config guide generation failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		_, guide, err := llm.ExtractYAML(resp)
		if err != nil {
			e.logger.Warn("config guide is not valid YAML", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}
		if err := e.store.WriteText(artifact.ConfigGuide, guide+"\n"); err != nil {
			return "", fmt.Errorf("save config guide: %w", err)
		}
		return guide, nil
	}

	e.logger.Warn("config guide unavailable, continuing without it", zap.Int("attempts", guideAttempts))
	return "", nil
}
