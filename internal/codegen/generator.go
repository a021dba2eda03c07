// Package codegen writes the initial implementation of a paper: summaries, a
// configuration file, a code skeleton annotated with steps, the implemented
// program and its experiment script. Every model step runs under a bounded
// retry budget.
package codegen

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// DefaultRetries bounds attempts per generation step
const DefaultRetries = 3

// ErrUnusableReply marks a reply that held no usable content
var ErrUnusableReply = errors.New("reply held no usable content")

// Options configure a Generator
type Options struct {
	Model        string // code steps
	SummaryModel string // summaries, config, experiment plan
	Retries      int
	Logger       *zap.Logger
}

// Generator produces the initial project for one paper
type Generator struct {
	gen          llm.Generator
	model        string
	summaryModel string
	retries      int
	logger       *zap.Logger
}

// New creates a generator
func New(gen llm.Generator, opts Options) *Generator {
	g := &Generator{
		gen:          gen,
		model:        opts.Model,
		summaryModel: opts.SummaryModel,
		retries:      opts.Retries,
		logger:       logging.Module(opts.Logger, "codegen"),
	}
	if g.retries <= 0 {
		g.retries = DefaultRetries
	}
	if g.summaryModel == "" {
		g.summaryModel = g.model
	}
	return g
}

// AddendumSection renders supplementary reproduction notes for inclusion in
// prompts. Blank notes render as nothing.
func AddendumSection(addendum string) string {
	if strings.TrimSpace(addendum) == "" {
		return ""
	}
	return "\nHere is the supplementary information for code reproduction:\n" + addendum
}

// SummarizeDMTE summarizes the paper under Data, Model, Training and
// Evaluation headings
func (g *Generator) SummarizeDMTE(ctx context.Context, paper string) (string, error) {
	return g.generate(ctx, "component summary", fmt.Sprintf(summarizeDMTEPrompt, paper), markdown, withModel(g.summaryModel)...)
}

// SummarizeWorkflow summarizes the method's end-to-end workflow
func (g *Generator) SummarizeWorkflow(ctx context.Context, paper string) (string, error) {
	return g.generate(ctx, "workflow summary", fmt.Sprintf(summarizeWorkflowPrompt, paper), markdown, withModel(g.summaryModel)...)
}

// ExtractConfig asks for the paper's hyperparameters as a YAML mapping and
// returns the normalized document
func (g *Generator) ExtractConfig(ctx context.Context, paper, addendumSection string) (string, error) {
	prompt := fmt.Sprintf(extractConfigPrompt, paper, addendumSection)
	return g.generate(ctx, "config extraction", prompt, func(resp string) (string, bool) {
		_, body, err := llm.ExtractYAML(resp)
		if err != nil {
			return "", false
		}
		return strings.TrimSpace(body) + "\n", true
	}, withModel(g.summaryModel)...)
}

// Framework generates the code skeleton from the two summaries. A reply
// without any class or function is rejected.
func (g *Generator) Framework(ctx context.Context, dmte, workflow, addendumSection string) (string, error) {
	prompt := fmt.Sprintf(frameworkPrompt, dmte, workflow, addendumSection)
	opts := append(withModel(g.model), llm.WithTemperature(0))
	return g.generate(ctx, "framework", prompt, func(resp string) (string, bool) {
		code := llm.ExtractPython(resp)
		for _, d := range ParsePython(code) {
			if d.Kind == KindClass || d.Kind == KindFunction {
				return code + "\n", true
			}
		}
		return "", false
	}, opts...)
}

// ExperimentPlan describes the experiments that reproduce the paper's results
// with code
func (g *Generator) ExperimentPlan(ctx context.Context, paper, addendumSection, code string) (string, error) {
	prompt := fmt.Sprintf(experimentPlanPrompt, paper, addendumSection, code)
	return g.generate(ctx, "experiment plan", prompt, markdown, withModel(g.summaryModel)...)
}

// Experiments writes the script that runs plan against code
func (g *Generator) Experiments(ctx context.Context, paper, addendumSection, code, plan string) (string, error) {
	prompt := fmt.Sprintf(experimentsPrompt, paper, addendumSection, code, plan)
	opts := append(withModel(g.model), llm.WithTemperature(0))
	return g.generate(ctx, "experiments", prompt, func(resp string) (string, bool) {
		script := llm.ExtractPython(resp)
		return script + "\n", script != ""
	}, opts...)
}

// generate asks prompt until parse accepts a reply, at most g.retries times
func (g *Generator) generate(ctx context.Context, stage, prompt string, parse func(string) (string, bool), opts ...llm.Option) (string, error) {
	var lastErr error
	for attempt := 1; attempt <= g.retries; attempt++ {
		resp, err := g.gen.Generate(ctx, prompt, opts...)
		if err == nil {
			if out, ok := parse(resp); ok {
				return out, nil
			}
			err = ErrUnusableReply
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		lastErr = err
		g.logger.Debug("generation attempt failed", zap.String("stage", stage), zap.Int("attempt", attempt), zap.Error(err))
	}
	return "", fmt.Errorf("%s failed after %d attempts: %w", stage, g.retries, lastErr)
}

// turn is generate for one exchange of a running conversation. The returned
// conversation includes the accepted exchange only.
func (g *Generator) turn(ctx context.Context, stage string, conv llm.Conversation, prompt string, parse func(string) bool, opts ...llm.Option) (string, llm.Conversation, error) {
	var lastErr error
	for attempt := 1; attempt <= g.retries; attempt++ {
		resp, next, err := g.gen.Turn(ctx, conv, prompt, opts...)
		if err == nil {
			if parse(resp) {
				return resp, next, nil
			}
			err = ErrUnusableReply
		}
		if ctx.Err() != nil {
			return "", conv, ctx.Err()
		}
		lastErr = err
		g.logger.Debug("generation attempt failed", zap.String("stage", stage), zap.Int("attempt", attempt), zap.Error(err))
	}
	return "", conv, fmt.Errorf("%s failed after %d attempts: %w", stage, g.retries, lastErr)
}

func markdown(resp string) (string, bool) {
	md := llm.ExtractMarkdown(resp)
	return md, md != ""
}

func withModel(model string) []llm.Option {
	if model == "" {
		return nil
	}
	return []llm.Option{llm.WithModel(model)}
}

// DMTESections are the headings of a component summary
var DMTESections = []string{"Data", "Model", "Training", "Evaluation"}

// ParseDMTE splits a component summary into its four sections. A section
// runs from its "## " heading to the next of the four headings; text under
// other headings stays with the section above it.
func ParseDMTE(summary string) map[string]string {
	out := make(map[string]string, len(DMTESections))
	for _, s := range DMTESections {
		out[s] = ""
	}

	var (
		current string
		body    []string
	)
	flush := func() {
		if current != "" {
			out[current] = strings.TrimSpace(strings.Join(body, "\n"))
		}
		body = nil
	}
	for _, line := range strings.Split(summary, "\n") {
		if name, ok := dmteHeading(line); ok {
			flush()
			current = name
			continue
		}
		body = append(body, line)
	}
	flush()
	return out
}

func dmteHeading(line string) (string, bool) {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "## ")
	if !ok {
		return "", false
	}
	rest = strings.TrimSpace(rest)
	for _, s := range DMTESections {
		if strings.HasPrefix(rest, s) {
			return s, true
		}
	}
	return "", false
}

// ConfigSection renders one top-level section of a YAML configuration, or
// an empty string when the document or the section is missing
func ConfigSection(configYAML, section string) string {
	var doc map[string]any
	if err := yaml.Unmarshal([]byte(configYAML), &doc); err != nil {
		return ""
	}
	v, ok := doc[section]
	if !ok || v == nil {
		return ""
	}
	out, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(out))
}
