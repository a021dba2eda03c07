package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/artifact"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/segment"
	"go.uber.org/zap"
)

const frameworkSystemPrompt = `You summarize research papers into a verbatim implementation guide.
Write Markdown with one "## " heading per component of the method (model, data, training, evaluation).
Under each heading use nested "- key: value" bullets. Values must quote or closely paraphrase the paper, never invent details.
Use a bare "- sentence" bullet for a statement that has no natural key.
Return the guide inside a single ` + "```markdown" + ` code block.`

// FrameworkExtractor asks for a hierarchical markdown guide and parses its bullets
type FrameworkExtractor struct {
	base
}

// NewFrameworkExtractor creates the framework-level extractor
func NewFrameworkExtractor(gen llm.Generator, store *artifact.Store, opts Options) *FrameworkExtractor {
	return &FrameworkExtractor{base: newBase(gen, store, opts, "extract.framework")}
}

// Source returns model.SourceFramework
func (e *FrameworkExtractor) Source() model.Source {
	return model.SourceFramework
}

// Extract returns the framework guide facts
func (e *FrameworkExtractor) Extract(ctx context.Context, paper *segment.Segmenter) ([]model.Fact, error) {
	guide, err := e.guide(ctx, paper.Content())
	if err != nil {
		return nil, err
	}

	facts := ParseFrameworkGuide(guide)
	e.logger.Info("framework guide parsed", zap.Int("facts", len(facts)))
	return facts, nil
}

func (e *FrameworkExtractor) guide(ctx context.Context, content string) (string, error) {
	if e.cached(artifact.FrameworkGuide) {
		e.logger.Info("framework guide exists, loading", zap.String("path", e.store.Path(artifact.FrameworkGuide)))
		return e.store.ReadText(artifact.FrameworkGuide)
	}

	e.logger.Info("generating framework guide")
	for attempt := 1; attempt <= guideAttempts; attempt++ {
		resp, err := e.gen.Generate(ctx, paperPrompt(content), e.callOptions(frameworkSystemPrompt)...)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			e.logger.Warn("framework guide generation failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		guide := llm.ExtractMarkdown(resp)
		if strings.TrimSpace(guide) == "" {
			e.logger.Warn("framework guide empty", zap.Int("attempt", attempt))
			continue
		}
		if err := e.store.WriteText(artifact.FrameworkGuide, guide); err != nil {
			return "", fmt.Errorf("save framework guide: %w", err)
		}
		return guide, nil
	}

	e.logger.Warn("framework guide unavailable, continuing without it", zap.Int("attempts", guideAttempts))
	return "", nil
}
