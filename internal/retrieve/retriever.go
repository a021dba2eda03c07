// Package retrieve attaches supporting paper sentences to candidate facts.
//
// Retrieval runs in two stages: a vector search over clean paragraphs picks
// the closest few, then a judgment call picks the best matching sentences
// from the pooled candidates.
package retrieve

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/segment"
	"github.com/ppiankov/paperproof/internal/vector"
	"github.com/ppiankov/paperproof/internal/worker"
	"go.uber.org/zap"
)

const (
	// DefaultTopParagraphs is how many paragraphs feed the candidate pool
	DefaultTopParagraphs = 3

	// DefaultRetries bounds re-ranking attempts per fact
	DefaultRetries = 5
)

// Corpus is a paper's clean paragraphs indexed for search. It is read-only
// after construction and safe to share between goroutines.
type Corpus struct {
	index     *vector.Index
	sentences [][]string
}

// NewCorpus indexes the clean paragraphs of paper
func NewCorpus(ctx context.Context, encoder vector.Encoder, paper *segment.Segmenter) (*Corpus, error) {
	res := paper.Parse()
	idx := vector.NewIndex(encoder)
	if err := idx.Build(ctx, res.Clean); err != nil {
		return nil, fmt.Errorf("build paragraph index: %w", err)
	}
	return &Corpus{index: idx, sentences: res.Sentences}, nil
}

// Len returns the number of indexed paragraphs
func (c *Corpus) Len() int {
	if c == nil {
		return 0
	}
	return c.index.Len()
}

// Candidates pools the sentences of the k paragraphs nearest to query
func (c *Corpus) Candidates(ctx context.Context, query string, k int) ([]string, error) {
	hits, err := c.index.Search(ctx, query, k)
	if err != nil {
		return nil, err
	}
	var out []string
	for _, h := range hits {
		if h.Index < len(c.sentences) {
			out = append(out, c.sentences[h.Index]...)
		}
	}
	return out, nil
}

// Options configure a Retriever
type Options struct {
	Model   string // Re-ranking model; empty uses the generator default
	Workers int
	TopK    int
	Retries int
	Logger  *zap.Logger
}

// Retriever enriches facts with evidence
type Retriever struct {
	gen     llm.Generator
	model   string
	workers int
	topK    int
	retries int
	logger  *zap.Logger
}

// New creates a retriever
func New(gen llm.Generator, opts Options) *Retriever {
	r := &Retriever{
		gen:     gen,
		model:   opts.Model,
		workers: opts.Workers,
		topK:    opts.TopK,
		retries: opts.Retries,
		logger:  logging.Module(opts.Logger, "retrieve"),
	}
	if r.workers <= 0 {
		r.workers = 10
	}
	if r.topK <= 0 {
		r.topK = DefaultTopParagraphs
	}
	if r.retries <= 0 {
		r.retries = DefaultRetries
	}
	return r
}

// Retrieve returns one enriched fact per input fact, in input order. Facts
// whose evidence cannot be found get an empty list; this never fails except
// on cancellation.
func (r *Retriever) Retrieve(ctx context.Context, corpus *Corpus, facts []model.Fact) ([]model.EnrichedFact, error) {
	if corpus.Len() == 0 {
		r.logger.Error("no clean paragraphs, retrieval cannot proceed", zap.Int("facts", len(facts)))
		out := make([]model.EnrichedFact, len(facts))
		for i, f := range facts {
			out[i] = model.NewEnrichedFact(f, nil)
		}
		return out, nil
	}

	r.logger.Info("retrieving evidence", zap.Int("facts", len(facts)), zap.Int("paragraphs", corpus.Len()))

	out, err := worker.Map(ctx, r.workers, facts, func(ctx context.Context, _ int, f model.Fact) model.EnrichedFact {
		return model.NewEnrichedFact(f, r.evidence(ctx, corpus, f))
	})
	if err != nil {
		return nil, err
	}

	var empty int
	for _, e := range out {
		if len(e.Evidence) == 0 {
			empty++
		}
	}
	r.logger.Info("evidence retrieval complete", zap.Int("facts", len(out)), zap.Int("without_evidence", empty))
	return out, nil
}

func (r *Retriever) evidence(ctx context.Context, corpus *Corpus, f model.Fact) []model.Evidence {
	query := strings.TrimSpace(f.Sentence)
	if query == "" {
		return nil
	}

	candidates, err := corpus.Candidates(ctx, query, r.topK)
	if err != nil {
		r.logger.Warn("paragraph search failed", zap.String("fact", f.PathString()), zap.Error(err))
		return nil
	}
	if len(candidates) == 0 {
		return nil
	}
	return r.Rerank(ctx, query, candidates)
}

// Rerank asks which candidates best match query. Out-of-range or non-numeric
// indices are dropped; a response with no valid index is retried. After the
// last attempt the result is empty.
func (r *Retriever) Rerank(ctx context.Context, query string, candidates []string) []model.Evidence {
	if len(candidates) == 0 {
		return nil
	}

	prompt := rerankPrompt(query, candidates)
	var opts []llm.Option
	if r.model != "" {
		opts = append(opts, llm.WithModel(r.model))
	}

	for attempt := 1; attempt <= r.retries; attempt++ {
		resp, err := r.gen.Generate(ctx, prompt, opts...)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			r.logger.Warn("re-rank failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		var evidence []model.Evidence
		for _, idx := range llm.ParseIndexList(resp) {
			if idx >= 0 && idx < len(candidates) {
				evidence = append(evidence, model.Evidence{Sentence: candidates[idx]})
			}
		}
		if len(evidence) > 0 {
			return evidence
		}
		r.logger.Debug("re-rank returned no valid index", zap.Int("attempt", attempt), zap.String("response", resp))
	}

	r.logger.Warn("re-rank gave up", zap.Int("attempts", r.retries), zap.String("query", truncate(query, 50)))
	return nil
}

func rerankPrompt(query string, candidates []string) string {
	var b strings.Builder
	for i, s := range candidates {
		fmt.Fprintf(&b, "Sentence %d: %s\n", i, s)
	}
	fmt.Fprintf(&b, "\nSummary Fact to Verify: '%s'\n", query)
	b.WriteString("\nFrom the numbered sentences above, identify the sentence or sentences that are the BEST available match for the 'Summary Fact'.\n")
	b.WriteString("Your response MUST be a comma-separated list of the corresponding numbers (e.g., '1' or '1, 2, 4'). DO NOT provide any other text.")
	return b.String()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
