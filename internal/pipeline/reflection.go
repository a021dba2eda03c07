package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/ppiankov/paperproof/internal/artifact"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/refine"
	"go.uber.org/zap"
)

const (
	// InitialRepoDir holds the generated project before refinement
	InitialRepoDir = "repo/initial_repo"

	// FinalRepoDir receives the refined project
	FinalRepoDir = "repo/final_repo"
)

// ReflectionPipeline refines a generated project against the final signals
// of a signal-design run in the same workspace
type ReflectionPipeline struct {
	gen    llm.Generator
	loader *PaperLoader
	cfg    *model.Config
	logger *zap.Logger
}

// NewReflectionPipeline creates a refinement pipeline
func NewReflectionPipeline(gen llm.Generator, loader *PaperLoader, cfg *model.Config, logger *zap.Logger) *ReflectionPipeline {
	return &ReflectionPipeline{
		gen:    gen,
		loader: loader,
		cfg:    cfg,
		logger: logging.Module(logger, "reflection"),
	}
}

// Run loads the initial project, the final signals and the paper, runs the
// refinement loop and writes the resulting project to repo/final_repo. A
// missing input is returned as an error before any model call.
func (p *ReflectionPipeline) Run(ctx context.Context, source, workspace string) (*refine.Result, error) {
	rc := p.cfg.Refine

	project, err := LoadProject(filepath.Join(workspace, InitialRepoDir), rc.InitialFiles)
	if err != nil {
		return nil, err
	}

	criteria, err := LoadSignals(workspace)
	if err != nil {
		return nil, err
	}

	paper, err := p.loader.Load(ctx, source)
	if err != nil {
		return nil, err
	}

	logs, err := artifact.NewStore(filepath.Join(workspace, rc.LogDirName))
	if err != nil {
		return nil, err
	}

	controller := refine.NewController(
		refine.NewVerifier(p.gen, refine.VerifierOptions{
			Model:   model.ModelOr(rc.EvalModel, p.cfg.LLM.Model),
			Workers: p.cfg.Concurrency.VerifyWorkers,
			Logger:  p.logger,
		}),
		refine.NewPlanner(p.gen, refine.PlannerOptions{
			Model:  model.ModelOr(rc.PlanModel, p.cfg.LLM.Model),
			Logger: p.logger,
		}),
		refine.NewEditor(p.gen, refine.EditorOptions{
			Model:  model.ModelOr(rc.ReviseModel, p.cfg.LLM.Model),
			Logger: p.logger,
		}),
		logs,
		refine.ControllerOptions{
			MaxAttempts: rc.MaxAttempts,
			ConfigFile:  rc.ConfigFile,
			Logger:      p.logger,
		},
	)

	res, err := controller.Run(ctx, project, criteria, paper.Text)
	if err != nil {
		return nil, err
	}

	finalDir := filepath.Join(workspace, FinalRepoDir)
	if err := WriteProject(finalDir, res.Project); err != nil {
		return nil, err
	}
	p.logger.Info("final project written",
		zap.String("dir", finalDir),
		zap.Bool("converged", res.Converged),
		zap.Int("rounds", len(res.Rounds)),
	)
	return res, nil
}

// LoadProject reads names from dir in order. Every file must exist.
func LoadProject(dir string, names []string) (*model.CodeProject, error) {
	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, fmt.Errorf("initial code directory not found: %s", dir)
	}

	project := model.NewCodeProject()
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("expected project file not found: %s", filepath.Join(dir, name))
			}
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		project.Set(name, string(data))
	}
	return project, nil
}

// LoadSignals reads the final signals of a signal-design run in workspace
func LoadSignals(workspace string) ([]model.Criterion, error) {
	path := filepath.Join(workspace, SignalDir, artifact.FinalSignals)
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("supervisory signals file not found: %s", path)
		}
		return nil, err
	}

	var criteria []model.Criterion
	if err := json.Unmarshal(data, &criteria); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return criteria, nil
}

// WriteProject writes every project file under dir with any outer code fence
// removed
func WriteProject(dir string, project *model.CodeProject) error {
	store, err := artifact.NewStore(dir)
	if err != nil {
		return err
	}
	for _, name := range project.Names() {
		content, _ := project.Get(name)
		if err := store.WriteText(name, llm.StripCodeFence(content)); err != nil {
			return fmt.Errorf("write %s: %w", name, err)
		}
	}
	return nil
}
