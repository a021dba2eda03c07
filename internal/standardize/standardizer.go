// Package standardize rewrites enriched facts into atomic, annotated
// criteria of the form "... <fact>claim</fact> ... <scope>conditions</scope>".
package standardize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/worker"
	"go.uber.org/zap"
)

const (
	// DefaultRetries bounds attempts at the initial criteria list
	DefaultRetries = 3

	// MaxCriteria is the list size above which the referee is consulted
	MaxCriteria = 5

	missingKeyText = model.ErrorMarker + " Criterion key missing."
	refineAction   = "REFINE_TO_TOP_5"
)

const criteriaPromptTemplate = `You convert a fact from a research paper into verification criteria for a code implementation of that paper.

**Guide Fact:**
%s

**Reference Sentences:**
%s

**Full Paper:**
%s

Write one or more atomic criteria. Each criterion is a single sentence that can be checked against code or configuration.
Wrap the exact checkable claim in <fact>...</fact> and the conditions under which it applies in <scope>...</scope>, for example:
"The <fact>AdamW optimizer</fact> is used to train the model <scope>for the dataset Cora</scope>."

Respond with a JSON list of objects, each with a single "criterion" key.`

const refereeSystemPrompt = `You review lists of verification criteria generated from one paper fact.
If the list is redundant or too long, choose the five most important and distinct criteria and answer {"action": "REFINE_TO_TOP_5", "indices_to_keep": [i, ...]}.
If every criterion is essential, answer {"action": "KEEP_ORIGINAL_LIST"}.
Answer with the JSON object only.`

// Options configure a Standardizer
type Options struct {
	Model        string
	RefereeModel string
	Workers      int
	Retries      int
	Logger       *zap.Logger
}

// Standardizer turns enriched facts into criteria
type Standardizer struct {
	gen          llm.Generator
	model        string
	refereeModel string
	workers      int
	retries      int
	logger       *zap.Logger
}

// New creates a standardizer
func New(gen llm.Generator, opts Options) *Standardizer {
	s := &Standardizer{
		gen:          gen,
		model:        opts.Model,
		refereeModel: model.ModelOr(opts.RefereeModel, opts.Model),
		workers:      opts.Workers,
		retries:      opts.Retries,
		logger:       logging.Module(opts.Logger, "standardize"),
	}
	if s.workers <= 0 {
		s.workers = 10
	}
	if s.retries <= 0 {
		s.retries = DefaultRetries
	}
	return s
}

// Standardize produces the valid criteria for facts, grouped in fact order.
// A fact whose generation fails yields no criteria. Every returned criterion
// contains a <fact> marker and no error marker.
func (s *Standardizer) Standardize(ctx context.Context, facts []model.EnrichedFact, paper string) ([]model.Criterion, error) {
	s.logger.Info("standardizing signals", zap.Int("facts", len(facts)))

	perFact, err := worker.Map(ctx, s.workers, facts, func(ctx context.Context, _ int, f model.EnrichedFact) []model.Criterion {
		return s.standardizeOne(ctx, f, paper)
	})
	if err != nil {
		return nil, err
	}

	var generated int
	valid := []model.Criterion{}
	for _, cs := range perFact {
		generated += len(cs)
		for _, c := range cs {
			if c.Valid() {
				valid = append(valid, c)
			}
		}
	}

	s.logger.Info("standardization complete",
		zap.Int("generated", generated),
		zap.Int("valid", len(valid)),
		zap.Int("rejected", generated-len(valid)),
	)
	return valid, nil
}

func (s *Standardizer) standardizeOne(ctx context.Context, f model.EnrichedFact, paper string) []model.Criterion {
	if strings.TrimSpace(f.Sentence) == "" {
		return nil
	}

	evidence := f.EvidenceText()
	initial := s.initialCriteria(ctx, f.Sentence, evidence, paper)
	final := s.refine(ctx, f.Sentence, evidence, initial)
	if len(final) == 0 {
		s.logger.Warn("no criteria produced for fact", zap.String("fact", truncate(f.Sentence, 50)))
		return nil
	}

	out := make([]model.Criterion, 0, len(final))
	for _, text := range final {
		out = append(out, model.Criterion{
			Text:       text,
			SourceFact: f.Sentence,
			Evidence:   f.Evidence,
			Source:     f.Source,
		})
	}
	return out
}

func (s *Standardizer) initialCriteria(ctx context.Context, fact, evidence, paper string) []string {
	prompt := fmt.Sprintf(criteriaPromptTemplate, fact, evidence, paper)
	var opts []llm.Option
	if s.model != "" {
		opts = append(opts, llm.WithModel(s.model))
	}

	for attempt := 1; attempt <= s.retries; attempt++ {
		resp, err := s.gen.Generate(ctx, prompt, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Warn("criteria generation failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		raw, err := llm.DecodeJSONList(resp)
		if err != nil {
			s.logger.Warn("criteria response is not a list", zap.Int("attempt", attempt))
			continue
		}
		return criterionTexts(raw)
	}

	s.logger.Error("criteria generation gave up", zap.Int("attempts", s.retries))
	return nil
}

// criterionTexts reads list items that are either {"criterion": "..."}
// objects or bare strings. Objects without the key become error-marked text
// and are dropped by the final validity check.
func criterionTexts(raw []json.RawMessage) []string {
	out := make([]string, 0, len(raw))
	for _, r := range raw {
		var s string
		if json.Unmarshal(r, &s) == nil {
			out = append(out, s)
			continue
		}
		var obj map[string]any
		if json.Unmarshal(r, &obj) != nil {
			out = append(out, missingKeyText)
			continue
		}
		text, ok := obj["criterion"].(string)
		if !ok {
			text = missingKeyText
		}
		out = append(out, text)
	}
	return out
}

type refereeResponse struct {
	Action        string `json:"action"`
	IndicesToKeep []int  `json:"indices_to_keep"`
}

// refine narrows lists longer than MaxCriteria through the referee. Any
// referee failure keeps the original list.
func (s *Standardizer) refine(ctx context.Context, fact, evidence string, initial []string) []string {
	if len(initial) <= MaxCriteria {
		return initial
	}

	s.logger.Debug("calling referee", zap.Int("criteria", len(initial)))

	var b strings.Builder
	for i, c := range initial {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d: %s", i, c)
	}
	prompt := fmt.Sprintf("**Source \"Guide Fact\":**\n%s\n\n**Reference Sentence (for context):**\n%s\n\n**Generated Criteria List (Indices 0 to %d):**\n%s\n\nProvide your response in the required JSON format.",
		fact, evidence, len(initial)-1, b.String())

	opts := []llm.Option{llm.WithSystem(refereeSystemPrompt), llm.WithJSON()}
	if s.refereeModel != "" {
		opts = append(opts, llm.WithModel(s.refereeModel))
	}

	resp, err := s.gen.Generate(ctx, prompt, opts...)
	if err != nil {
		s.logger.Warn("referee failed, keeping original list", zap.Error(err))
		return initial
	}

	var verdict refereeResponse
	if err := llm.DecodeJSONObject(resp, &verdict); err != nil {
		s.logger.Warn("referee response unreadable, keeping original list", zap.Error(err))
		return initial
	}
	if verdict.Action != refineAction {
		return initial
	}

	keep := verdict.IndicesToKeep
	if len(keep) > MaxCriteria {
		keep = keep[:MaxCriteria]
	}
	var out []string
	for _, i := range keep {
		if i >= 0 && i < len(initial) {
			out = append(out, initial[i])
		}
	}
	if len(out) == 0 {
		s.logger.Warn("referee kept nothing valid, keeping original list")
		return initial
	}
	return out
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
