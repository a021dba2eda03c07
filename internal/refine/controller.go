package refine

import (
	"context"
	"fmt"

	"github.com/ppiankov/paperproof/internal/artifact"
	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"go.uber.org/zap"
)

const (
	// EvaluationFeedbackFile holds a round's verification result
	EvaluationFeedbackFile = "evaluation_feedback.md"

	// RevisionPlanFile holds a round's raw revision plan
	RevisionPlanFile = "revision_plan.md"

	// DefaultMaxAttempts bounds refinement rounds
	DefaultMaxAttempts = 3

	// DefaultConfigFile is the project file revised from CONFIG_PLAN
	DefaultConfigFile = "config.yaml"
)

// ControllerOptions configure a Controller
type ControllerOptions struct {
	MaxAttempts int
	ConfigFile  string
	Logger      *zap.Logger
}

// Controller runs the verify, plan, edit loop. Rounds run strictly in
// sequence and the project is only mutated between them.
type Controller struct {
	verifier    *Verifier
	planner     *Planner
	editor      *Editor
	logs        *artifact.Store
	maxAttempts int
	configFile  string
	logger      *zap.Logger
}

// NewController creates a controller writing per-round artifacts to logs
func NewController(verifier *Verifier, planner *Planner, editor *Editor, logs *artifact.Store, opts ControllerOptions) *Controller {
	c := &Controller{
		verifier:    verifier,
		planner:     planner,
		editor:      editor,
		logs:        logs,
		maxAttempts: opts.MaxAttempts,
		configFile:  opts.ConfigFile,
		logger:      logging.Module(opts.Logger, "refine"),
	}
	if c.maxAttempts <= 0 {
		c.maxAttempts = DefaultMaxAttempts
	}
	if c.configFile == "" {
		c.configFile = DefaultConfigFile
	}
	return c
}

// Result is the outcome of a controller run
type Result struct {
	Project   *model.CodeProject
	Rounds    []model.RoundSummary
	Converged bool
}

// Run refines a copy of initial until every criterion passes or the round
// budget is spent. Not converging is a normal outcome: the last project
// state is returned either way. Errors are reserved for cancellation and
// artifact write failures.
func (c *Controller) Run(ctx context.Context, initial *model.CodeProject, criteria []model.Criterion, paper string) (*Result, error) {
	project := initial.Clone()
	session := NewSession()
	res := &Result{Project: project}

	c.logger.Info("starting refinement",
		zap.Int("criteria", len(criteria)),
		zap.Int("files", project.Len()),
		zap.Int("max_attempts", c.maxAttempts),
		zap.String("logs", c.logs.Dir()),
	)

	for n := 1; n <= c.maxAttempts; n++ {
		c.logger.Info("refinement round", zap.Int("round", n), zap.Int("of", c.maxAttempts))

		summary, err := c.round(ctx, n, project, session, criteria, paper)
		if err != nil {
			return res, fmt.Errorf("round %d: %w", n, err)
		}
		res.Rounds = append(res.Rounds, summary)

		if summary.Passed {
			res.Converged = true
			c.logger.Info("project passed all verifications", zap.Int("rounds", n))
			break
		}
		if n == c.maxAttempts {
			c.logger.Warn("maximum refinement attempts reached", zap.Int("rounds", n), zap.Int("failed", summary.Failed))
		}
	}

	c.logger.Info("refinement finished", zap.Bool("converged", res.Converged), zap.Int("rounds", len(res.Rounds)))
	return res, nil
}

func (c *Controller) round(ctx context.Context, n int, project *model.CodeProject, session *Session, criteria []model.Criterion, paper string) (model.RoundSummary, error) {
	summary := model.RoundSummary{Number: n}

	dir, err := c.logs.Sub(fmt.Sprintf("round_%d", n))
	if err != nil {
		return summary, err
	}
	summary.Snapshot = dir.Dir()

	report, err := c.verifier.Verify(ctx, project, criteria, paper)
	if err != nil {
		return summary, err
	}
	summary.Passed = report.Passed
	summary.Failed = report.Failed()

	if err := dir.WriteText(EvaluationFeedbackFile, evaluationFeedback(n, report)); err != nil {
		return summary, fmt.Errorf("write %s: %w", EvaluationFeedbackFile, err)
	}

	if !report.Passed {
		plan, err := c.planner.Plan(ctx, report.Feedback, project)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			c.logger.Warn("planning failed, project left unchanged this round", zap.Int("round", n), zap.Error(err))
		}
		if err := dir.WriteText(RevisionPlanFile, plan.Raw); err != nil {
			return summary, fmt.Errorf("write %s: %w", RevisionPlanFile, err)
		}
		c.apply(ctx, plan, project, session, paper, &summary)
		if ctx.Err() != nil {
			return summary, ctx.Err()
		}
	}

	for _, name := range project.Names() {
		content, _ := project.Get(name)
		if err := dir.WriteText(name, llm.StripCodeFence(content)); err != nil {
			return summary, fmt.Errorf("snapshot %s: %w", name, err)
		}
	}
	return summary, nil
}

func (c *Controller) apply(ctx context.Context, plan model.RevisionPlan, project *model.CodeProject, session *Session, paper string, summary *model.RoundSummary) {
	if plan.Config != "" {
		if current, ok := project.Get(c.configFile); ok {
			project.Set(c.configFile, c.editor.ReviseConfig(ctx, current, plan.Config))
			summary.Revised = append(summary.Revised, c.configFile)
		} else {
			c.logger.Warn("config plan given but project has no config file", zap.String("file", c.configFile))
			summary.Skipped = append(summary.Skipped, c.configFile)
		}
	}

	for _, fp := range plan.Files {
		if ctx.Err() != nil {
			return
		}
		if !project.Has(fp.Name) {
			c.logger.Warn("plan names a file not in the project, skipping", zap.String("file", fp.Name))
			summary.Skipped = append(summary.Skipped, fp.Name)
			continue
		}
		if fp.Instructions == "" {
			c.logger.Warn("no plan segment for file, skipping", zap.String("file", fp.Name))
			summary.Skipped = append(summary.Skipped, fp.Name)
			continue
		}

		revised := c.editor.ReviseFile(ctx, session, fp.Name, project, fp.Instructions, paper, c.configFile)
		project.Set(fp.Name, revised)
		summary.Revised = append(summary.Revised, fp.Name)
	}
}

func evaluationFeedback(n int, report *Report) string {
	result := "FAILED"
	if report.Passed {
		result = "PASSED"
	}
	return fmt.Sprintf("# Evaluation Feedback for Round %d\n\n**Result:** %s\n\n---\n\n%s", n, result, report.Feedback)
}
