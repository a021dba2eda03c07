// Package filter curates standardized criteria: it removes denylisted
// boilerplate, collapses semantically equivalent criteria to representatives,
// and discards criteria a judge rejects.
package filter

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/cluster"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/vector"
	"github.com/ppiankov/paperproof/internal/worker"
	"go.uber.org/zap"
)

const (
	// DefaultThreshold is the cosine distance below which clusters merge
	DefaultThreshold = 0.5

	// DefaultRetries bounds representative selection and verdict attempts
	DefaultRetries = 5

	verdictKeep = "keep"
)

const representativeSystemPrompt = `You deduplicate verification criteria extracted from a research paper.
The criteria you are given all describe the same underlying fact.
Select the criteria that best represent it: the most specific and complete wording, plus any criterion whose scope adds a genuinely different condition.
Answer with a JSON object {"selected_indices": [n, ...]} using the 1-based numbers from the list.`

const verdictSystemTemplate = `You judge whether a verification criterion is worth checking against a code implementation of the paper below.
Keep criteria that state a concrete, checkable implementation detail that the paper supports.
Discard criteria that are vague, unsupported by the paper, about prose rather than code, or about results that code cannot reproduce deterministically.
Answer with a JSON object {"verdict": "keep" | "discard", "reason": "...", "category": "..."}.

**Full Paper:**
%s`

// Options configure a Filter
type Options struct {
	Model     string
	Threshold float64
	Workers   int
	Retries   int
	Denylist  *Denylist // nil uses the built-in list
	Logger    *zap.Logger
}

// Result is the outcome of one filter run
type Result struct {
	Kept      []model.Criterion
	Discarded []model.Criterion // Denylisted and judged-out criteria with reasons
	Stats     model.FilterStats
}

// Filter runs the three curation stages
type Filter struct {
	gen       llm.Generator
	encoder   vector.Encoder
	model     string
	threshold float64
	workers   int
	retries   int
	denylist  Denylist
	logger    *zap.Logger
}

// New creates a filter
func New(gen llm.Generator, encoder vector.Encoder, opts Options) *Filter {
	f := &Filter{
		gen:       gen,
		encoder:   encoder,
		model:     opts.Model,
		threshold: opts.Threshold,
		workers:   opts.Workers,
		retries:   opts.Retries,
		logger:    logging.Module(opts.Logger, "filter"),
	}
	if f.threshold <= 0 {
		f.threshold = DefaultThreshold
	}
	if f.workers <= 0 {
		f.workers = 10
	}
	if f.retries <= 0 {
		f.retries = DefaultRetries
	}
	if opts.Denylist != nil {
		f.denylist = *opts.Denylist
	} else {
		f.denylist = DefaultDenylist()
	}
	return f
}

// Apply runs denylist removal, deduplication and the verdict stage in order
func (f *Filter) Apply(ctx context.Context, criteria []model.Criterion, paper string) (*Result, error) {
	res := &Result{Kept: []model.Criterion{}, Discarded: []model.Criterion{}}
	res.Stats.Input = len(criteria)
	if len(criteria) == 0 {
		return res, nil
	}

	f.logger.Info("filtering signals", zap.Int("signals", len(criteria)))

	allowed, banned := f.ApplyDenylist(criteria)
	res.Stats.Denylisted = len(banned)
	res.Discarded = append(res.Discarded, banned...)

	deduped, clusters, err := f.Deduplicate(ctx, allowed)
	if err != nil {
		return nil, err
	}
	res.Stats.Clusters = clusters
	res.Stats.Duplicates = len(allowed) - len(deduped)

	kept, discarded, err := f.Judge(ctx, deduped, paper)
	if err != nil {
		return nil, err
	}
	res.Kept = append(res.Kept, kept...)
	res.Discarded = append(res.Discarded, discarded...)
	res.Stats.Discarded = len(discarded)
	res.Stats.Kept = len(kept)

	f.logger.Info("filtering complete",
		zap.Int("input", res.Stats.Input),
		zap.Int("denylisted", res.Stats.Denylisted),
		zap.Int("clusters", res.Stats.Clusters),
		zap.Int("duplicates_removed", res.Stats.Duplicates),
		zap.Int("discarded", res.Stats.Discarded),
		zap.Int("kept", res.Stats.Kept),
	)
	return res, nil
}

// ApplyDenylist splits criteria into allowed and banned. Banned items are
// annotated with the Denylisted category.
func (f *Filter) ApplyDenylist(criteria []model.Criterion) (allowed, banned []model.Criterion) {
	for _, c := range criteria {
		if f.denylist.Contains(c.Text) {
			banned = append(banned, c.Discard("Matches a known false-positive criterion.", model.CategoryDenylisted))
			continue
		}
		allowed = append(allowed, c)
	}
	f.logger.Info("denylist applied", zap.Int("kept", len(allowed)), zap.Int("removed", len(banned)))
	return allowed, banned
}

// Deduplicate clusters criteria by the embedding of their <fact> span and
// keeps the selected representatives of each cluster, in cluster order. It
// returns the survivors and the number of clusters. A cluster never shrinks
// to zero.
func (f *Filter) Deduplicate(ctx context.Context, criteria []model.Criterion) ([]model.Criterion, int, error) {
	if len(criteria) == 0 {
		return []model.Criterion{}, 0, nil
	}

	spans := make([]string, len(criteria))
	for i, c := range criteria {
		spans[i] = c.FactSpan()
	}

	vectors, err := f.encoder.Encode(ctx, spans)
	if err != nil {
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}
		f.logger.Warn("fact embedding failed, skipping deduplication", zap.Error(err))
		return criteria, len(criteria), nil
	}

	groups := cluster.Groups(cluster.Agglomerative(vectors, f.threshold))
	f.logger.Info("fact clusters found", zap.Int("signals", len(criteria)), zap.Int("clusters", len(groups)), zap.Float64("threshold", f.threshold))

	reps, err := worker.Map(ctx, f.workers, groups, func(ctx context.Context, _ int, members []int) []model.Criterion {
		items := make([]model.Criterion, len(members))
		for i, m := range members {
			items[i] = criteria[m]
		}
		return f.SelectRepresentatives(ctx, items)
	})
	if err != nil {
		return nil, 0, err
	}

	out := []model.Criterion{}
	for _, r := range reps {
		out = append(out, r...)
	}
	return out, len(groups), nil
}

type representativeResponse struct {
	SelectedIndices []int `json:"selected_indices"`
}

// SelectRepresentatives picks the best members of one cluster. Singletons are
// returned as-is. When no valid selection arrives within the retry budget the
// first member is kept.
func (f *Filter) SelectRepresentatives(ctx context.Context, items []model.Criterion) []model.Criterion {
	if len(items) <= 1 {
		return items
	}

	var b strings.Builder
	b.WriteString("From the following list of criteria, select the best representatives:\n\n")
	for i, c := range items {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "%d. %s", i+1, c.Text)
	}
	prompt := b.String()

	opts := f.options(representativeSystemPrompt)
	for attempt := 1; attempt <= f.retries; attempt++ {
		resp, err := f.gen.Generate(ctx, prompt, opts...)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			f.logger.Warn("representative selection failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		var sel representativeResponse
		if err := llm.DecodeJSONObject(resp, &sel); err != nil {
			f.logger.Warn("representative response unreadable", zap.Int("attempt", attempt))
			continue
		}

		var out []model.Criterion
		seen := make(map[int]bool)
		for _, i := range sel.SelectedIndices {
			if i >= 1 && i <= len(items) && !seen[i] {
				seen[i] = true
				out = append(out, items[i-1])
			}
		}
		if len(out) > 0 {
			return out
		}
		f.logger.Warn("representative selection had no valid index", zap.Int("attempt", attempt))
	}

	f.logger.Error("representative selection gave up, keeping first item", zap.Int("cluster_size", len(items)))
	return items[:1]
}

type verdictResponse struct {
	Verdict  *string `json:"verdict"`
	Reason   string  `json:"reason"`
	Category string  `json:"category"`
}

// Judge asks for a keep/discard verdict on every criterion independently.
// Kept and discarded lists preserve input order. A criterion whose verdict
// cannot be obtained is discarded as a processing error.
func (f *Filter) Judge(ctx context.Context, criteria []model.Criterion, paper string) (kept, discarded []model.Criterion, err error) {
	kept, discarded = []model.Criterion{}, []model.Criterion{}
	if len(criteria) == 0 {
		return kept, discarded, nil
	}

	opts := f.options(fmt.Sprintf(verdictSystemTemplate, paper))
	opts = append(opts, llm.WithJSON())

	type judgement struct {
		criterion model.Criterion
		keep      bool
	}

	judged, err := worker.Map(ctx, f.workers, criteria, func(ctx context.Context, _ int, c model.Criterion) judgement {
		v := f.verdict(ctx, c.Text, opts)
		if *v.Verdict == verdictKeep {
			return judgement{criterion: c, keep: true}
		}
		return judgement{criterion: c.Discard(v.Reason, v.Category)}
	})
	if err != nil {
		return nil, nil, err
	}

	for _, j := range judged {
		if j.keep {
			kept = append(kept, j.criterion)
			continue
		}
		discarded = append(discarded, j.criterion)
	}
	return kept, discarded, nil
}

func (f *Filter) verdict(ctx context.Context, criterion string, opts []llm.Option) verdictResponse {
	prompt := "Please evaluate this criterion:\n\n`" + criterion + "`"

	for attempt := 1; attempt <= f.retries; attempt++ {
		resp, err := f.gen.Generate(ctx, prompt, opts...)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			f.logger.Warn("verdict analysis failed", zap.Int("attempt", attempt), zap.Error(err))
			continue
		}

		var v verdictResponse
		if err := llm.DecodeJSONObject(resp, &v); err == nil && v.Verdict != nil {
			return v
		}
		f.logger.Warn("verdict response unreadable", zap.Int("attempt", attempt))
	}

	failed := "error"
	return verdictResponse{Verdict: &failed, Reason: "LLM failed to respond.", Category: model.CategoryProcessingError}
}

func (f *Filter) options(system string) []llm.Option {
	opts := []llm.Option{llm.WithSystem(system)}
	if f.model != "" {
		opts = append(opts, llm.WithModel(f.model))
	}
	return opts
}
