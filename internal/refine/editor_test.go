package refine

import (
	"context"
	"testing"

	"github.com/ppiankov/paperproof/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReviseConfig(t *testing.T) {
	cases := []struct {
		name  string
		reply string
		want  string
	}{
		{"strips header", "## config.yaml\nlr: 0.0001\n", "lr: 0.0001"},
		{"plain", "lr: 0.0001", "lr: 0.0001"},
		{"header only keeps current", "## config.yaml", "lr: 0.001"},
		{"empty keeps current", "", "lr: 0.001"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := NewEditor(llmtest.Fixed(tc.reply), EditorOptions{})
			got := e.ReviseConfig(context.Background(), "lr: 0.001", "Set lr to 0.0001.")
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestReviseFile_FirstTurnCarriesPaper(t *testing.T) {
	gen := llmtest.Fixed("opt = AdamW(lr=cfg.lr)")
	e := NewEditor(gen, EditorOptions{})
	session := NewSession()
	project := testProject()

	got := e.ReviseFile(context.Background(), session, "main.py", project, "Use AdamW.", "THE PAPER", "config.yaml")
	assert.Equal(t, "opt = AdamW(lr=cfg.lr)", got)
	assert.Equal(t, 1, session.Turns("main.py"))

	project.Set("main.py", got)
	e.ReviseFile(context.Background(), session, "main.py", project, "Keep AdamW.", "THE PAPER", "config.yaml")
	assert.Equal(t, 2, session.Turns("main.py"))

	calls := gen.Calls()
	require.Len(t, calls, 2)

	first := calls[0]
	assert.Contains(t, first.Prompt, "<paper>\nTHE PAPER\n</paper>")
	assert.Contains(t, first.Prompt, "<revision_plan>\nUse AdamW.\n</revision_plan>")
	assert.Contains(t, first.Prompt, "<config_file>\nlr: 0.001\n</config_file>")
	assert.Contains(t, first.Prompt, "<file_to_fix name=\"main.py\">\nopt = SGD(lr=cfg.lr)\n</file_to_fix>")
	assert.Contains(t, first.Prompt, "Remember, your output must be ONLY the complete file for `main.py`.")
	assert.Empty(t, first.History)

	second := calls[1]
	assert.NotContains(t, second.Prompt, "<paper>")
	assert.Len(t, second.History, 2)
}

func TestReviseFile_ConversationPerFile(t *testing.T) {
	gen := llmtest.Fixed("revised")
	e := NewEditor(gen, EditorOptions{})
	session := NewSession()
	project := testProject()

	e.ReviseFile(context.Background(), session, "main.py", project, "a", "PAPER", "config.yaml")
	e.ReviseFile(context.Background(), session, "experiments.py", project, "b", "PAPER", "config.yaml")

	calls := gen.Calls()
	require.Len(t, calls, 2)
	for _, c := range calls {
		assert.Contains(t, c.Prompt, "<paper>")
		assert.Empty(t, c.History)
	}
}

func TestReviseFile_EmptyRepliesKeepOriginal(t *testing.T) {
	gen := llmtest.Fixed("   ")
	e := NewEditor(gen, EditorOptions{})
	session := NewSession()

	got := e.ReviseFile(context.Background(), session, "main.py", testProject(), "Use AdamW.", "PAPER", "config.yaml")
	assert.Equal(t, "opt = SGD(lr=cfg.lr)", got)
	assert.Equal(t, DefaultEditRetries, gen.CallCount())
	assert.Equal(t, 0, session.Turns("main.py"))
}

func TestReviseFile_RetriesUntilNonEmpty(t *testing.T) {
	gen := llmtest.Sequence("", "", "opt = AdamW()")
	e := NewEditor(gen, EditorOptions{})

	got := e.ReviseFile(context.Background(), NewSession(), "main.py", testProject(), "Use AdamW.", "PAPER", "config.yaml")
	assert.Equal(t, "opt = AdamW()", got)
	assert.Equal(t, 3, gen.CallCount())
}

func TestReviseFile_MissingConfig(t *testing.T) {
	gen := llmtest.Fixed("x")
	e := NewEditor(gen, EditorOptions{})

	e.ReviseFile(context.Background(), NewSession(), "main.py", testProject(), "plan", "PAPER", "settings.toml")
	assert.Contains(t, gen.Calls()[0].Prompt, "# settings.toml not found in project context.")
}
