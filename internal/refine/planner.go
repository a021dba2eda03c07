package refine

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"go.uber.org/zap"
)

var (
	configPlanMarker = regexp.MustCompile(`###\s*CONFIG_PLAN[ \t]*\n`)
	codePlanMarker   = regexp.MustCompile(`###\s*CODE_PLAN[ \t]*\n`)
	filePlanMarker   = regexp.MustCompile(`^\s*##\s*Code:\s*(.+?)\s*$`)
)

const noChangesNeeded = "no changes needed"

const planSystemPrompt = `You are a senior engineer turning code review failures into an actionable revision plan.`

const planPromptTemplate = `The code project below failed verification against requirements extracted from a research paper.

Here is the verification feedback:
<feedback>
%s
</feedback>

Here is the complete code project:
<code_project>
%s
</code_project>

Write a revision plan with exactly two sections.

### CONFIG_PLAN
Step-by-step changes to the configuration file, or "No changes needed."

### CODE_PLAN
For every code file that must change, a block starting with a line "## Code: <file name>" followed by step-by-step instructions for that file only.`

// PlannerOptions configure a Planner
type PlannerOptions struct {
	Model  string
	Logger *zap.Logger
}

// Planner turns a failure report into a revision plan
type Planner struct {
	gen    llm.Generator
	model  string
	logger *zap.Logger
}

// NewPlanner creates a planner
func NewPlanner(gen llm.Generator, opts PlannerOptions) *Planner {
	return &Planner{
		gen:    gen,
		model:  opts.Model,
		logger: logging.Module(opts.Logger, "plan"),
	}
}

// Plan asks for a revision plan covering feedback and parses it
func (p *Planner) Plan(ctx context.Context, feedback string, project *model.CodeProject) (model.RevisionPlan, error) {
	opts := []llm.Option{llm.WithSystem(planSystemPrompt)}
	if p.model != "" {
		opts = append(opts, llm.WithModel(p.model))
	}

	resp, err := p.gen.Generate(ctx, fmt.Sprintf(planPromptTemplate, feedback, CodeContext(project)), opts...)
	if err != nil {
		return model.RevisionPlan{}, fmt.Errorf("generate revision plan: %w", err)
	}

	plan := ParsePlan(strings.TrimSpace(resp))
	p.logger.Info("revision plan generated",
		zap.Bool("config_changes", plan.Config != ""),
		zap.Int("files", len(plan.Files)),
	)
	return plan, nil
}

// ParsePlan splits a plan into its CONFIG_PLAN and CODE_PLAN sections and
// the CODE_PLAN into per-file segments. A config plan saying "no changes
// needed" is treated as empty. When a file is named twice, the first
// segment wins.
func ParsePlan(text string) model.RevisionPlan {
	plan := model.RevisionPlan{Raw: text}

	codeLoc := codePlanMarker.FindStringIndex(text)
	if loc := configPlanMarker.FindStringIndex(text); loc != nil {
		end := len(text)
		if codeLoc != nil && codeLoc[0] >= loc[1] {
			end = codeLoc[0]
		}
		plan.Config = strings.TrimSpace(text[loc[1]:end])
	}
	if strings.Contains(strings.ToLower(plan.Config), noChangesNeeded) {
		plan.Config = ""
	}

	if codeLoc != nil {
		plan.Code = strings.TrimSpace(text[codeLoc[1]:])
		plan.Files = splitFilePlans(plan.Code)
	}
	return plan
}

func splitFilePlans(code string) []model.FilePlan {
	var (
		files   []model.FilePlan
		seen    = make(map[string]bool)
		current = -1
		body    []string
	)

	flush := func() {
		if current >= 0 {
			files[current].Instructions = strings.TrimSpace(strings.Join(body, "\n"))
		}
		body = nil
	}

	for _, line := range strings.Split(code, "\n") {
		if m := filePlanMarker.FindStringSubmatch(line); m != nil {
			flush()
			name := fileName(m[1])
			if name == "" || seen[name] {
				current = -1
				continue
			}
			seen[name] = true
			files = append(files, model.FilePlan{Name: name})
			current = len(files) - 1
			continue
		}
		if current >= 0 {
			body = append(body, line)
		}
	}
	flush()
	return files
}

func fileName(raw string) string {
	fields := strings.Fields(strings.Trim(raw, "`*\"' "))
	if len(fields) == 0 {
		return ""
	}
	return strings.Trim(fields[0], "`*\"'")
}
