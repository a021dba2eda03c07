// Package refine drives a generated code project toward a set of
// supervisory signals: verify every criterion, plan revisions for the
// failures, rewrite the affected files and repeat until the project passes or
// the round budget runs out.
package refine

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/paperproof/internal/llm"
	"github.com/ppiankov/paperproof/internal/logging"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/ppiankov/paperproof/internal/worker"
	"go.uber.org/zap"
)

// DefaultVerifyWorkers bounds concurrent verification calls
const DefaultVerifyWorkers = 5

// PassedFeedback is the report text when every criterion is met
const PassedFeedback = "All verification criteria were successfully met."

const (
	failurePrefix    = "The following criteria were not met:\n\n"
	failureSeparator = "\n\n---\n\n"
)

var (
	verdictPattern = regexp.MustCompile(`(?is)#\s*Expectations\s*(.*?)\s*#\s*Reality\s*(.*?)\s*#\s*Score\s*(.*)`)
	scorePattern   = regexp.MustCompile(`\b([01])\b`)
)

const verifySystemPrompt = `You are a meticulous code reviewer checking a machine learning implementation against a single requirement taken from a research paper.

Read the paper, the complete code project and the requirement. Decide whether the code implements the requirement exactly as stated, including every number, name and condition inside the <fact> and <scope> tags.

Answer using exactly these three sections, in this order:

# Expectations
What the code must contain for the requirement to hold.

# Reality
What the code actually does, citing file names and the relevant lines.

# Score
1 if the requirement is fully met, 0 otherwise, followed by a one-sentence reason.`

// VerifierOptions configure a Verifier
type VerifierOptions struct {
	Model   string
	Workers int
	Logger  *zap.Logger
}

// Verifier checks a code project against criteria, one judgment per criterion
type Verifier struct {
	gen     llm.Generator
	model   string
	workers int
	logger  *zap.Logger
}

// NewVerifier creates a verifier
func NewVerifier(gen llm.Generator, opts VerifierOptions) *Verifier {
	v := &Verifier{
		gen:     gen,
		model:   opts.Model,
		workers: opts.Workers,
		logger:  logging.Module(opts.Logger, "verify"),
	}
	if v.workers <= 0 {
		v.workers = DefaultVerifyWorkers
	}
	return v
}

// Report aggregates the verdicts of one verification pass
type Report struct {
	Passed   bool
	Feedback string
	Verdicts []model.Verdict // In criteria order
}

// Failed returns the number of unmet criteria
func (r *Report) Failed() int {
	n := 0
	for _, v := range r.Verdicts {
		if !v.Met {
			n++
		}
	}
	return n
}

// Verify judges every criterion against project. A criterion whose response
// cannot be read counts as not met; only cancellation returns an error.
func (v *Verifier) Verify(ctx context.Context, project *model.CodeProject, criteria []model.Criterion, paper string) (*Report, error) {
	v.logger.Info("verifying project", zap.Int("criteria", len(criteria)), zap.Int("files", project.Len()))

	code := CodeContext(project)
	verdicts, err := worker.Map(ctx, v.workers, criteria, func(ctx context.Context, _ int, c model.Criterion) model.Verdict {
		return v.judge(ctx, code, paper, criterionText(c))
	})
	if err != nil {
		return nil, err
	}

	report := &Report{Verdicts: verdicts}
	report.Passed = report.Failed() == 0
	if report.Passed {
		report.Feedback = PassedFeedback
	} else {
		report.Feedback = FailureReport(verdicts)
	}

	v.logger.Info("verification complete",
		zap.Bool("passed", report.Passed),
		zap.Int("failed", report.Failed()),
		zap.Int("criteria", len(verdicts)),
	)
	return report, nil
}

func (v *Verifier) judge(ctx context.Context, code, paper, criterion string) model.Verdict {
	opts := []llm.Option{llm.WithSystem(verifySystemPrompt)}
	if v.model != "" {
		opts = append(opts, llm.WithModel(v.model))
	}

	resp, err := v.gen.Generate(ctx, verifyPrompt(paper, code, criterion), opts...)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			v.logger.Warn("verification call failed", zap.String("criterion", criterion), zap.Error(err))
		}
		return model.Verdict{
			Criterion:  criterion,
			ParseError: fmt.Sprintf("failed to verify: %v", err),
			Reason:     fmt.Sprintf("failed to verify: %v", err),
		}
	}

	verdict := ParseVerdict(criterion, resp)
	if verdict.ParseError != "" {
		v.logger.Warn("unreadable verification response",
			zap.String("criterion", criterion),
			zap.String("error", verdict.ParseError),
		)
	}
	return verdict
}

// ParseVerdict reads a response made of # Expectations, # Reality and # Score
// sections. The score is the first standalone 0 or 1 in the Score section,
// whose full text becomes the reason. Responses missing a section or a score
// yield an unmet verdict carrying the parse error.
func ParseVerdict(criterion, response string) model.Verdict {
	m := verdictPattern.FindStringSubmatch(response)
	if m == nil {
		msg := "response did not contain the required # Expectations, # Reality, and # Score sections"
		return model.Verdict{Criterion: criterion, ParseError: msg, Reason: msg}
	}

	scoreSection := strings.TrimSpace(m[3])
	sm := scorePattern.FindStringSubmatch(scoreSection)
	if sm == nil {
		msg := "could not find a score of 0 or 1 in the # Score section"
		return model.Verdict{
			Criterion:    criterion,
			Expectations: strings.TrimSpace(m[1]),
			Reality:      strings.TrimSpace(m[2]),
			ParseError:   msg,
			Reason:       msg,
		}
	}

	score, _ := strconv.Atoi(sm[1])
	return model.Verdict{
		Criterion:    criterion,
		Met:          score == 1,
		Score:        score,
		Expectations: strings.TrimSpace(m[1]),
		Reality:      strings.TrimSpace(m[2]),
		Reason:       scoreSection,
	}
}

// FailureReport consolidates the unmet verdicts into one feedback text
func FailureReport(verdicts []model.Verdict) string {
	var reports []string
	for _, v := range verdicts {
		if v.Met {
			continue
		}
		score := "N/A"
		if v.ParseError == "" {
			score = strconv.Itoa(v.Score)
		}
		reports = append(reports, fmt.Sprintf(
			"Criterion NOT MET: %s\n- Score: %s\n- Expectations: %s\n- Reality: %s\n- Reason: %s",
			v.Criterion, score, orNA(v.Expectations), orNA(v.Reality), orNA(v.Reason),
		))
	}
	if len(reports) == 0 {
		return PassedFeedback
	}
	return failurePrefix + strings.Join(reports, failureSeparator)
}

// CodeContext renders every project file between start and end markers
func CodeContext(project *model.CodeProject) string {
	var blocks []string
	for _, name := range project.Names() {
		content, _ := project.Get(name)
		blocks = append(blocks, fmt.Sprintf("--- START OF FILE: %s ---\n%s\n--- END OF FILE: %s ---", name, content, name))
	}
	return strings.Join(blocks, "\n\n")
}

func verifyPrompt(paper, code, criterion string) string {
	var b strings.Builder
	b.WriteString("Here is the research paper:\n<paper>\n")
	b.WriteString(paper)
	b.WriteString("\n</paper>\n\nHere is the complete code project:\n<code_project>\n")
	b.WriteString(code)
	b.WriteString("\n</code_project>\n\nEvaluate whether the code satisfies this requirement:\n<criterion>\n")
	b.WriteString(criterion)
	b.WriteString("\n</criterion>")
	return b.String()
}

func criterionText(c model.Criterion) string {
	if strings.TrimSpace(c.Text) == "" {
		return "No criterion provided."
	}
	return c.Text
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
