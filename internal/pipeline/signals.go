// Package pipeline wires the stages into the two end-to-end runs: signal
// design (paper to curated criteria) and refinement (criteria plus generated
// code to a converged project).
package pipeline

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/ppiankov/paperproof/internal/artifact"
	"github.com/ppiankov/paperproof/internal/extract"
	"github.com/ppiankov/paperproof/internal/filter"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/retrieve"
	"github.com/ppiankov/paperproof/internal/segment"
	"github.com/ppiankov/paperproof/internal/standardize"
	"github.com/ppiankov/paperproof/internal/vector"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// SignalDir is the workspace subdirectory holding signal-design artifacts
const SignalDir = "signal_design"

// SignalPipeline turns one paper into a curated list of supervisory signals
type SignalPipeline struct {
	gen      llm.Generator
	encoder  vector.Encoder
	loader   *PaperLoader
	cfg      *model.Config
	denylist filter.Denylist
	logger   *zap.Logger
}

// NewSignalPipeline creates a signal-design pipeline. The denylist file named
// in the filter config is read here so a bad file fails before any model call.
func NewSignalPipeline(gen llm.Generator, encoder vector.Encoder, loader *PaperLoader, cfg *model.Config, logger *zap.Logger) (*SignalPipeline, error) {
	denylist, err := filter.LoadDenylist(cfg.Filter.DenylistFile)
	if err != nil {
		return nil, err
	}
	return &SignalPipeline{
		gen:      gen,
		encoder:  encoder,
		loader:   loader,
		cfg:      cfg,
		denylist: denylist,
		logger:   logging.Module(logger, "signals"),
	}, nil
}

// Run executes extraction, retrieval, standardization and filtering for the
// paper at source, writing every artifact under workspace/signal_design.
// Existing artifacts are reused unless the workspace config asks to replace
// them.
func (p *SignalPipeline) Run(ctx context.Context, source, workspace string) (*model.RunManifest, error) {
	manifest := &model.RunManifest{
		RunID:     uuid.NewString(),
		Paper:     source,
		Workspace: workspace,
		StartedAt: time.Now().UTC(),
		Facts:     make(map[model.Source]int),
		Enriched:  make(map[model.Source]int),
		Signals:   make(map[model.Source]int),
	}
	logger := p.logger.With(zap.String("run_id", manifest.RunID))

	paper, err := p.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}
	manifest.FetchMeta = paper.Meta

	store, err := artifact.NewStore(filepath.Join(workspace, SignalDir))
	if err != nil {
		return nil, err
	}
	logger.Info("signal design started", zap.String("paper", paper.Source), zap.String("workspace", store.Dir()))

	seg := segment.New(paper.Text)
	facts, err := p.extract(ctx, store, seg)
	if err != nil {
		return nil, err
	}

	corpus, err := retrieve.NewCorpus(ctx, p.encoder, seg)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		logger.Warn("paragraph index unavailable, facts will carry no retrieved evidence", zap.Error(err))
		corpus = nil
	}

	retriever := retrieve.New(p.gen, retrieve.Options{
		Model:   model.ModelOr(p.cfg.LLM.RerankModel, p.cfg.LLM.Model),
		Workers: p.cfg.Concurrency.Workers,
		Logger:  logger,
	})
	standardizer := standardize.New(p.gen, standardize.Options{
		Model:   p.cfg.LLM.Model,
		Workers: p.cfg.Concurrency.Workers,
		Logger:  logger,
	})

	var merged []model.Criterion
	for _, src := range model.Sources() {
		manifest.Facts[src] = len(facts[src])

		enriched, err := p.enrich(ctx, store, src, facts[src], retriever, corpus)
		if err != nil {
			return nil, err
		}
		for _, e := range enriched {
			if len(e.Evidence) > 0 {
				manifest.Enriched[src]++
			}
		}

		signals, err := p.standardize(ctx, store, src, enriched, standardizer, paper.Text)
		if err != nil {
			return nil, err
		}
		manifest.Signals[src] = len(signals)
		merged = append(merged, signals...)
	}

	stats, final, err := p.curate(ctx, store, merged, paper.Text)
	if err != nil {
		return nil, err
	}
	manifest.Filter = stats
	manifest.Final = final
	manifest.CompletedAt = time.Now().UTC()

	if err := store.WriteJSON(artifact.RunManifest, manifest); err != nil {
		return nil, fmt.Errorf("write run manifest: %w", err)
	}

	logger.Info("signal design complete",
		zap.Int("merged", len(merged)),
		zap.Int("final", final),
		zap.Duration("elapsed", manifest.CompletedAt.Sub(manifest.StartedAt)),
	)
	return manifest, nil
}

// extract runs the three extractors concurrently. Their guides are separate
// artifacts, so they never write the same file.
func (p *SignalPipeline) extract(ctx context.Context, store *artifact.Store, seg *segment.Segmenter) (map[model.Source][]model.Fact, error) {
	extractors := extract.All(p.gen, store, extract.Options{
		Model:   p.cfg.LLM.Model,
		Replace: p.cfg.Workspace.Replace,
		Logger:  p.logger,
	})

	results := make([][]model.Fact, len(extractors))
	g, gctx := errgroup.WithContext(ctx)
	for i, ex := range extractors {
		g.Go(func() error {
			facts, err := ex.Extract(gctx, seg)
			if err != nil {
				return fmt.Errorf("%s extraction: %w", ex.Source(), err)
			}
			results[i] = facts
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[model.Source][]model.Fact, len(extractors))
	for i, ex := range extractors {
		out[ex.Source()] = results[i]
	}
	return out, nil
}

// enrich attaches evidence to one strategy's facts. Exhaustive-scan facts are
// verbatim sentences and serve as their own evidence.
func (p *SignalPipeline) enrich(ctx context.Context, store *artifact.Store, src model.Source, facts []model.Fact, retriever *retrieve.Retriever, corpus *retrieve.Corpus) ([]model.EnrichedFact, error) {
	name := artifact.EvidenceFile(string(src))
	var enriched []model.EnrichedFact
	if p.cached(store, name) {
		if err := store.ReadJSON(name, &enriched); err == nil {
			p.logger.Info("evidence exists, loading", zap.String("source", string(src)), zap.Int("facts", len(enriched)))
			return enriched, nil
		}
		p.logger.Warn("evidence file unreadable, regenerating", zap.String("path", store.Path(name)))
	}

	if src == model.SourceExhaustive {
		enriched = make([]model.EnrichedFact, len(facts))
		for i, f := range facts {
			enriched[i] = model.NewEnrichedFact(f, model.SelfEvidence(f.Sentence))
		}
	} else {
		var err error
		if enriched, err = retriever.Retrieve(ctx, corpus, facts); err != nil {
			return nil, err
		}
	}

	if enriched == nil {
		enriched = []model.EnrichedFact{}
	}
	if err := store.WriteJSON(name, enriched); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return enriched, nil
}

func (p *SignalPipeline) standardize(ctx context.Context, store *artifact.Store, src model.Source, facts []model.EnrichedFact, s *standardize.Standardizer, paper string) ([]model.Criterion, error) {
	name := artifact.SignalsFile(string(src))
	if p.cached(store, name) {
		var signals []model.Criterion
		if err := store.ReadJSON(name, &signals); err == nil {
			p.logger.Info("signals exist, loading", zap.String("source", string(src)), zap.Int("signals", len(signals)))
			return signals, nil
		}
		p.logger.Warn("signals file unreadable, regenerating", zap.String("path", store.Path(name)))
	}

	signals, err := s.Standardize(ctx, facts, paper)
	if err != nil {
		return nil, err
	}
	if err := store.WriteJSON(name, signals); err != nil {
		return nil, fmt.Errorf("write %s: %w", name, err)
	}
	return signals, nil
}

// curate filters the merged signals into the final and discarded lists and
// returns the filter statistics plus the final count
func (p *SignalPipeline) curate(ctx context.Context, store *artifact.Store, merged []model.Criterion, paper string) (model.FilterStats, int, error) {
	if p.cached(store, artifact.FinalSignals) {
		var final []model.Criterion
		if err := store.ReadJSON(artifact.FinalSignals, &final); err == nil {
			p.logger.Info("final signals exist, loading", zap.Int("signals", len(final)))
			return model.FilterStats{Input: len(merged), Kept: len(final)}, len(final), nil
		}
	}

	f := filter.New(p.gen, p.encoder, filter.Options{
		Model:     p.cfg.LLM.Model,
		Threshold: p.cfg.Filter.DistanceThreshold,
		Workers:   p.cfg.Concurrency.Workers,
		Denylist:  &p.denylist,
		Logger:    p.logger,
	})
	res, err := f.Apply(ctx, merged, paper)
	if err != nil {
		return model.FilterStats{}, 0, err
	}

	if err := store.WriteJSON(artifact.FinalSignals, res.Kept); err != nil {
		return model.FilterStats{}, 0, fmt.Errorf("write %s: %w", artifact.FinalSignals, err)
	}
	if err := store.WriteJSON(artifact.DiscardedSignals, res.Discarded); err != nil {
		return model.FilterStats{}, 0, fmt.Errorf("write %s: %w", artifact.DiscardedSignals, err)
	}
	return res.Stats, len(res.Kept), nil
}

func (p *SignalPipeline) cached(store *artifact.Store, name string) bool {
	return !p.cfg.Workspace.Replace && store.Exists(name)
}
