package codegen

import (
	"context"
	"fmt"
	"strings"

	"github.com/ppiankov/paperproof/internal/llm"
	"go.uber.org/zap"
)

// Part is one component of the skeleton that is annotated and implemented
// on its own
type Part struct {
	Name    string
	Kind    Kind
	Summary string // component summary section, empty for main
	Config  string // matching config section, empty for main
}

// Parts are the components every skeleton defines, in generation order
func Parts(dmte, configYAML string) []Part {
	sections := ParseDMTE(dmte)
	return []Part{
		{Name: "Data", Kind: KindClass, Summary: sections["Data"], Config: ConfigSection(configYAML, "data")},
		{Name: "Model", Kind: KindClass, Summary: sections["Model"], Config: ConfigSection(configYAML, "model")},
		{Name: "Trainer", Kind: KindClass, Summary: sections["Training"], Config: ConfigSection(configYAML, "training")},
		{Name: "Evaluator", Kind: KindClass, Summary: sections["Evaluation"], Config: ConfigSection(configYAML, "evaluation")},
		{Name: "main", Kind: KindFunction},
	}
}

func (p Part) detailed() bool {
	return p.Kind == KindClass
}

// StepsResult is the annotated skeleton
type StepsResult struct {
	Code      string
	Annotated []string
	Kept      []string // parts left without steps after the retry budget
	Missing   []string // parts the skeleton does not define
}

// AddSteps annotates each part of framework with step comments. All parts
// share one conversation so later components see earlier annotations. A
// part whose replies never hold its definition keeps its original code.
func (g *Generator) AddSteps(ctx context.Context, framework, workflow, addendumSection string, parts []Part) (*StepsResult, error) {
	defs := ParsePython(framework)
	res := &StepsResult{}

	opts := append(withModel(g.model), llm.WithSystem(fmt.Sprintf(stepsSystemPrompt, workflow, framework, addendumSection)))
	var conv llm.Conversation
	for _, part := range parts {
		idx := Find(defs, part.Kind, part.Name)
		if idx < 0 {
			res.Missing = append(res.Missing, part.Name)
			continue
		}

		prompt := fmt.Sprintf(stepsSimpleUserPrompt, defs[idx].Code)
		if part.detailed() {
			prompt = fmt.Sprintf(stepsDetailedUserPrompt, defs[idx].Code, orNotSpecified(part.Summary), orNotSpecified(part.Config))
		}

		var annotated Definition
		_, next, err := g.turn(ctx, "steps for "+part.Name, conv, prompt, func(resp string) bool {
			for _, d := range ParsePython(llm.ExtractPython(resp)) {
				if d.Kind == part.Kind && d.Name == part.Name {
					annotated = d
					return true
				}
			}
			return false
		}, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("no steps generated, keeping component as is", zap.String("part", part.Name), zap.Error(err))
			res.Kept = append(res.Kept, part.Name)
			continue
		}

		conv = next
		defs[idx] = annotated
		res.Annotated = append(res.Annotated, part.Name)
	}

	res.Code = RenderPython(defs)
	return res, nil
}

// ImplementResult is the implemented program and the transcript of the
// conversation that produced it
type ImplementResult struct {
	Code        string
	Log         string
	Implemented []string
	Kept        []string // parts left as skeleton after the retry budget
	Missing     []string
}

// Implement fills in each part of framework in one conversation whose system
// prompt carries the paper, configuration and full skeleton. Every reply is
// merged into the program: definitions replace their namesakes, helpers are
// added before the part, and new imports join the import section.
func (g *Generator) Implement(ctx context.Context, framework, paper, addendumSection, config string, parts []Part) (*ImplementResult, error) {
	defs := ParsePython(framework)
	res := &ImplementResult{}

	system := fmt.Sprintf(implementSystemPrompt, paper, addendumSection, config, framework)
	opts := append(withModel(g.model), llm.WithSystem(system))

	var log strings.Builder
	log.WriteString("--- Multi-Turn Code Implementation Log ---\n\n")
	fmt.Fprintf(&log, "System Message:\n%s\n", system)
	log.WriteString("-------------------------------------------\n")

	var conv llm.Conversation
	turn := 0
	for _, part := range parts {
		idx := Find(defs, part.Kind, part.Name)
		if idx < 0 {
			res.Missing = append(res.Missing, part.Name)
			continue
		}

		prompt := fmt.Sprintf(implementUserPrompt, strings.Join(Imports(defs), "\n"), defs[idx].Code)
		var updates []Definition
		reply, next, err := g.turn(ctx, "implementation of "+part.Name, conv, prompt, func(resp string) bool {
			updates = ParsePython(llm.ExtractPython(resp))
			return Find(updates, part.Kind, part.Name) >= 0
		}, opts...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Warn("implementation failed, keeping skeleton", zap.String("part", part.Name), zap.Error(err))
			res.Kept = append(res.Kept, part.Name)
			continue
		}

		turn++
		fmt.Fprintf(&log, "\n--- Turn %d ---\n\nUser (%s):\n%s\n\nAssistant:\n%s\n", turn, part.Name, prompt, reply)

		conv = next
		defs, _ = Merge(defs, updates, idx)
		res.Implemented = append(res.Implemented, part.Name)
	}

	res.Code = RenderPython(defs)
	res.Log = log.String()
	return res, nil
}

func orNotSpecified(s string) string {
	if strings.TrimSpace(s) == "" {
		return "(not specified)"
	}
	return s
}
