package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ppiankov/paperproof/internal/artifact"
	"github.com/ppiankov/paperproof/internal/codegen"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/worker"
	"go.uber.org/zap"
)

// IntermediatesDir holds code-generation artifacts that are not part of the
// generated project
const IntermediatesDir = "intermediates"

// Code-generation artifact names
const (
	SummaryDMTEFile     = "paper_summary_dmte.md"
	SummaryWorkflowFile = "paper_summary_workflow.md"
	FrameworkBaseFile   = "code_framework_base.py"
	FrameworkStepsFile  = "code_framework_with_steps.py"
	ImplementationLog   = "interaction_history_implementation.log"
	ExperimentPlanFile  = "experiment_plan.md"

	ConfigFile      = "config.yaml"
	MainFile        = "main.py"
	ExperimentsFile = "experiments.py"
)

// GenerateResult describes one initial-code generation run
type GenerateResult struct {
	RepoDir     string
	Files       []string
	Addendum    bool
	Implemented []string // empty when main.py was reused
	Kept        []string // parts left as skeleton
	Missing     []string // parts the skeleton does not define
}

// GeneratePipeline writes the initial project for a paper to
// repo/initial_repo, the input of the refinement pipeline
type GeneratePipeline struct {
	gen    llm.Generator
	loader *PaperLoader
	cfg    *model.Config
	logger *zap.Logger
}

// NewGeneratePipeline creates a code-generation pipeline
func NewGeneratePipeline(gen llm.Generator, loader *PaperLoader, cfg *model.Config, logger *zap.Logger) *GeneratePipeline {
	return &GeneratePipeline{
		gen:    gen,
		loader: loader,
		cfg:    cfg,
		logger: logging.Module(logger, "generate"),
	}
}

// Run summarizes the paper, extracts its configuration, builds and annotates
// a skeleton, implements it and writes the experiment script. Every artifact
// is reused when present unless the workspace config asks to replace it.
func (p *GeneratePipeline) Run(ctx context.Context, source, workspace string) (*GenerateResult, error) {
	paper, err := p.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}

	inter, err := artifact.NewStore(filepath.Join(workspace, IntermediatesDir))
	if err != nil {
		return nil, err
	}
	repo, err := artifact.NewStore(filepath.Join(workspace, InitialRepoDir))
	if err != nil {
		return nil, err
	}

	addendum, err := p.readAddendum(paper.Source)
	if err != nil {
		return nil, err
	}
	section := codegen.AddendumSection(addendum)
	res := &GenerateResult{RepoDir: repo.Dir(), Addendum: section != ""}

	gc := p.cfg.Generate
	g := codegen.New(p.gen, codegen.Options{
		Model:        model.ModelOr(gc.Model, p.cfg.LLM.Model),
		SummaryModel: model.ModelOr(gc.SummaryModel, p.cfg.LLM.Model),
		Retries:      gc.Retries,
		Logger:       p.logger,
	})

	p.logger.Info("code generation started", zap.String("paper", paper.Source), zap.String("repo", repo.Dir()), zap.Bool("addendum", res.Addendum))

	dmte, workflow, err := p.summarize(ctx, inter, g, paper.Text)
	if err != nil {
		return nil, err
	}

	config, err := p.cachedText(inter, ConfigFile, func() (string, error) {
		return g.ExtractConfig(ctx, paper.Text, section)
	})
	if err != nil {
		return nil, err
	}
	if err := repo.WriteText(ConfigFile, config); err != nil {
		return nil, fmt.Errorf("write %s: %w", ConfigFile, err)
	}

	parts := codegen.Parts(dmte, config)
	framework, err := p.cachedText(inter, FrameworkStepsFile, func() (string, error) {
		base, err := p.cachedText(inter, FrameworkBaseFile, func() (string, error) {
			return g.Framework(ctx, dmte, workflow, section)
		})
		if err != nil {
			return "", err
		}
		steps, err := g.AddSteps(ctx, base, workflow, section, parts)
		if err != nil {
			return "", err
		}
		return steps.Code, nil
	})
	if err != nil {
		return nil, err
	}

	code, err := p.cachedText(repo, MainFile, func() (string, error) {
		impl, err := g.Implement(ctx, framework, paper.Text, section, config, parts)
		if err != nil {
			return "", err
		}
		res.Implemented, res.Kept, res.Missing = impl.Implemented, impl.Kept, impl.Missing
		if err := inter.WriteText(ImplementationLog, impl.Log); err != nil {
			return "", fmt.Errorf("write %s: %w", ImplementationLog, err)
		}
		return impl.Code, nil
	})
	if err != nil {
		return nil, err
	}

	if _, err := p.cachedText(repo, ExperimentsFile, func() (string, error) {
		plan, err := p.cachedText(inter, ExperimentPlanFile, func() (string, error) {
			return g.ExperimentPlan(ctx, paper.Text, section, code)
		})
		if err != nil {
			return "", err
		}
		return g.Experiments(ctx, paper.Text, section, code, plan)
	}); err != nil {
		return nil, err
	}

	res.Files = []string{ConfigFile, MainFile, ExperimentsFile}
	p.logger.Info("code generation complete",
		zap.String("repo", repo.Dir()),
		zap.Strings("implemented", res.Implemented),
		zap.Strings("kept", res.Kept),
		zap.Strings("missing", res.Missing),
	)
	return res, nil
}

// summarize produces both summaries concurrently. They are independent
// artifacts, so the two workers never write the same file.
func (p *GeneratePipeline) summarize(ctx context.Context, store *artifact.Store, g *codegen.Generator, paper string) (string, string, error) {
	type job struct {
		name string
		run  func(context.Context, string) (string, error)
	}
	type result struct {
		text string
		err  error
	}
	jobs := []job{
		{SummaryDMTEFile, g.SummarizeDMTE},
		{SummaryWorkflowFile, g.SummarizeWorkflow},
	}

	results, err := worker.Map(ctx, p.cfg.Concurrency.Workers, jobs, func(ctx context.Context, _ int, j job) result {
		text, err := p.cachedText(store, j.name, func() (string, error) {
			return j.run(ctx, paper)
		})
		return result{text: text, err: err}
	})
	if err != nil {
		return "", "", err
	}
	for _, r := range results {
		if r.err != nil {
			return "", "", r.err
		}
	}
	return results[0].text, results[1].text, nil
}

// cachedText returns name from store when present and reusable, otherwise
// builds and writes it
func (p *GeneratePipeline) cachedText(store *artifact.Store, name string, build func() (string, error)) (string, error) {
	if !p.cfg.Workspace.Replace && store.Exists(name) {
		text, err := store.ReadText(name)
		if err == nil {
			p.logger.Info("artifact exists, loading", zap.String("path", store.Path(name)))
			return text, nil
		}
		p.logger.Warn("artifact unreadable, regenerating", zap.String("path", store.Path(name)), zap.Error(err))
	}

	text, err := build()
	if err != nil {
		return "", err
	}
	if err := store.WriteText(name, text); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return text, nil
}

// readAddendum reads the optional reproduction notes beside a local paper
func (p *GeneratePipeline) readAddendum(paperPath string) (string, error) {
	if IsURL(paperPath) {
		return "", nil
	}
	path := filepath.Join(filepath.Dir(paperPath), p.cfg.Generate.AddendumFile)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			p.logger.Warn("addendum not found, proceeding without it", zap.String("path", path))
			return "", nil
		}
		return "", fmt.Errorf("read addendum: %w", err)
	}
	return string(data), nil
}
