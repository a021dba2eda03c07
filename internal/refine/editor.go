package refine

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"go.uber.org/zap"
)

// DefaultEditRetries bounds attempts per file before keeping the original
const DefaultEditRetries = 3

const configHeader = "## config.yaml"

const reviseConfigPromptTemplate = `Revise the configuration file below by following the plan. Output ONLY the complete revised file, with no explanation.

Here is the plan:
<config_plan>
%s
</config_plan>

Here is the current configuration:
<config_file>
%s
</config_file>`

const reviseFileSystemPrompt = `You are an expert machine learning engineer revising one file of a research code base.

Follow the revision plan exactly and change nothing else. Keep every import, function and behaviour the plan does not mention. Your output must be ONLY the complete revised file, with no commentary before or after it.`

// EditorOptions configure an Editor
type EditorOptions struct {
	Model   string
	Retries int
	Logger  *zap.Logger
}

// Editor applies plan segments to project files
type Editor struct {
	gen     llm.Generator
	model   string
	retries int
	logger  *zap.Logger
}

// NewEditor creates an editor
func NewEditor(gen llm.Generator, opts EditorOptions) *Editor {
	e := &Editor{
		gen:     gen,
		model:   opts.Model,
		retries: opts.Retries,
		logger:  logging.Module(opts.Logger, "edit"),
	}
	if e.retries <= 0 {
		e.retries = DefaultEditRetries
	}
	return e
}

// Session holds one editing conversation per file. It lives for a single
// controller run and is not safe for concurrent use.
type Session struct {
	convs map[string]llm.Conversation
}

// NewSession starts an empty editing session
func NewSession() *Session {
	return &Session{convs: make(map[string]llm.Conversation)}
}

// Turns returns the number of completed exchanges for name
func (s *Session) Turns(name string) int {
	return s.convs[name].Len() / 2
}

// ReviseConfig rewrites the configuration text according to plan. The known
// header line is stripped from the reply; a failed or empty reply keeps
// current.
func (e *Editor) ReviseConfig(ctx context.Context, current, plan string) string {
	resp, err := e.gen.Generate(ctx, fmt.Sprintf(reviseConfigPromptTemplate, plan, current), e.options()...)
	if err != nil {
		e.logger.Warn("config revision failed, keeping current config", zap.Error(err))
		return current
	}

	revised := strings.TrimSpace(strings.ReplaceAll(strings.TrimSpace(resp), configHeader, ""))
	if revised == "" {
		e.logger.Warn("config revision was empty, keeping current config")
		return current
	}
	return revised
}

// ReviseFile rewrites one project file according to its plan segment. The
// first exchange for a file carries the paper; later ones in the same
// session omit it. After the retry budget the original content is returned.
func (e *Editor) ReviseFile(ctx context.Context, session *Session, name string, project *model.CodeProject, plan, paper, configFile string) string {
	original, _ := project.Get(name)
	config, ok := project.Get(configFile)
	if !ok {
		config = fmt.Sprintf("# %s not found in project context.", configFile)
	}

	conv := session.convs[name]
	first := conv.Len() == 0
	prompt := reviseFilePrompt(name, original, plan, config, paper, first)

	opts := append(e.options(), llm.WithSystem(reviseFileSystemPrompt), llm.WithTemperature(0))
	for attempt := 1; attempt <= e.retries; attempt++ {
		e.logger.Debug("revising file", zap.String("file", name), zap.Int("attempt", attempt), zap.Bool("with_paper", first))

		resp, next, err := e.gen.Turn(ctx, conv, prompt, opts...)
		if err == nil && strings.TrimSpace(resp) != "" {
			session.convs[name] = next
			return resp
		}
		if ctx.Err() != nil {
			return original
		}
		e.logger.Debug("empty revision", zap.String("file", name), zap.Int("attempt", attempt), zap.Error(err))
	}

	e.logger.Warn("revision failed after all retries, keeping original", zap.String("file", name), zap.Int("attempts", e.retries))
	return original
}

func (e *Editor) options() []llm.Option {
	if e.model == "" {
		return nil
	}
	return []llm.Option{llm.WithModel(e.model)}
}

func reviseFilePrompt(name, content, plan, config, paper string, withPaper bool) string {
	var b strings.Builder
	if withPaper {
		b.WriteString("To ensure your revision is accurate, here is the full research paper. Refer to it if the plan is ambiguous.\n<paper>\n")
		b.WriteString(paper)
		b.WriteString("\n</paper>\n\n")
	}
	fmt.Fprintf(&b, "Here is the step-by-step action plan you must follow:\n<revision_plan>\n%s\n</revision_plan>\n\n", plan)
	fmt.Fprintf(&b, "Here is the read-only configuration file for context.\n<config_file>\n%s\n</config_file>\n\n", config)
	fmt.Fprintf(&b, "Now, please fix the following file based on the plan.\n<file_to_fix name=%q>\n%s\n</file_to_fix>\n\n", name, content)
	fmt.Fprintf(&b, "Remember, your output must be ONLY the complete file for `%s`.", name)
	return b.String()
}
