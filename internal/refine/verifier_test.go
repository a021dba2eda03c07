package refine

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/paperproof/internal/llm/llmtest"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	metResponse    = "# Expectations\nAdamW with lr 0.0001\n# Reality\nmain.py uses AdamW(lr=1e-4)\n# Score\n1 The optimizer matches."
	notMetResponse = "# Expectations\nAdamW with lr 0.0001\n# Reality\nmain.py uses SGD\n# Score\n0 Wrong optimizer."
)

func testProject() *model.CodeProject {
	p := model.NewCodeProject()
	p.Set("config.yaml", "lr: 0.001")
	p.Set("main.py", "opt = SGD(lr=cfg.lr)")
	p.Set("experiments.py", "run()")
	return p
}

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		name      string
		response  string
		met       bool
		parseFail bool
	}{
		{"met", metResponse, true, false},
		{"not met", notMetResponse, false, false},
		{"lowercase markers", "# expectations\na\n# reality\nb\n# score\n1", true, false},
		{"missing score section", "# Expectations\na\n# Reality\nb\n", false, true},
		{"no sections", "Looks fine to me.", false, true},
		{"score without digit", "# Expectations\na\n# Reality\nb\n# Score\nyes", false, true},
		{"score inside number", "# Expectations\na\n# Reality\nb\n# Score\n10 out of 10", false, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			v := ParseVerdict("crit", tc.response)
			assert.Equal(t, "crit", v.Criterion)
			assert.Equal(t, tc.met, v.Met)
			if tc.parseFail {
				assert.NotEmpty(t, v.ParseError)
				assert.Equal(t, v.ParseError, v.Reason)
			} else {
				assert.Empty(t, v.ParseError)
			}
		})
	}
}

func TestParseVerdict_Fields(t *testing.T) {
	v := ParseVerdict("crit", notMetResponse)
	assert.Equal(t, "AdamW with lr 0.0001", v.Expectations)
	assert.Equal(t, "main.py uses SGD", v.Reality)
	assert.Equal(t, 0, v.Score)
	assert.Equal(t, "0 Wrong optimizer.", v.Reason)
}

func TestCodeContext(t *testing.T) {
	p := model.NewCodeProject()
	p.Set("config.yaml", "a: 1")
	p.Set("main.py", "print(1)")

	want := "--- START OF FILE: config.yaml ---\na: 1\n--- END OF FILE: config.yaml ---\n\n" +
		"--- START OF FILE: main.py ---\nprint(1)\n--- END OF FILE: main.py ---"
	assert.Equal(t, want, CodeContext(p))
}

func TestVerify_AllMet(t *testing.T) {
	gen := llmtest.Fixed(metResponse)
	v := NewVerifier(gen, VerifierOptions{Workers: 2})

	criteria := []model.Criterion{
		{Text: "The <fact>AdamW optimizer</fact> is used."},
		{Text: "The <fact>learning rate is 0.0001</fact>."},
	}
	report, err := v.Verify(context.Background(), testProject(), criteria, "paper")
	require.NoError(t, err)

	assert.True(t, report.Passed)
	assert.Equal(t, PassedFeedback, report.Feedback)
	assert.Equal(t, 0, report.Failed())
	assert.Len(t, report.Verdicts, 2)
	assert.Equal(t, 2, gen.CallCount())
}

func TestVerify_ConsolidatesFailures(t *testing.T) {
	gen := llmtest.Router(metResponse,
		llmtest.Route{Contains: "SGD is not used", Reply: notMetResponse},
		llmtest.Route{Contains: "garbled", Reply: "no idea"},
		llmtest.Route{Contains: "backend down", Err: errors.New("503")},
	)
	v := NewVerifier(gen, VerifierOptions{})

	criteria := []model.Criterion{
		{Text: "The <fact>AdamW optimizer</fact> is used."},
		{Text: "The <fact>SGD is not used</fact>."},
		{Text: "The <fact>garbled</fact> one."},
		{Text: "The <fact>backend down</fact> one."},
	}
	report, err := v.Verify(context.Background(), testProject(), criteria, "paper")
	require.NoError(t, err)

	assert.False(t, report.Passed)
	assert.Equal(t, 3, report.Failed())
	assert.True(t, report.Verdicts[0].Met)

	fb := report.Feedback
	assert.True(t, strings.HasPrefix(fb, "The following criteria were not met:\n\n"))
	assert.Equal(t, 2, strings.Count(fb, "\n\n---\n\n"))
	assert.Contains(t, fb, "Criterion NOT MET: The <fact>SGD is not used</fact>.\n- Score: 0\n- Expectations: AdamW with lr 0.0001")
	assert.Contains(t, fb, "Criterion NOT MET: The <fact>garbled</fact> one.\n- Score: N/A")
	assert.Contains(t, fb, "failed to verify: 503")
	assert.NotContains(t, fb, "AdamW optimizer</fact>")
}

func TestVerify_SendsPaperAndCode(t *testing.T) {
	gen := llmtest.Fixed(metResponse)
	v := NewVerifier(gen, VerifierOptions{Model: "judge"})

	_, err := v.Verify(context.Background(), testProject(), []model.Criterion{{Text: "The <fact>x</fact>."}}, "THE PAPER")
	require.NoError(t, err)

	calls := gen.Calls()
	require.Len(t, calls, 1)
	assert.Contains(t, calls[0].Prompt, "THE PAPER")
	assert.Contains(t, calls[0].Prompt, "--- START OF FILE: main.py ---")
	assert.Contains(t, calls[0].Prompt, "The <fact>x</fact>.")
	assert.Contains(t, calls[0].System, "# Expectations")
	assert.Equal(t, "judge", calls[0].Model)
}

func TestVerify_NoCriteriaPasses(t *testing.T) {
	gen := llmtest.Fixed(notMetResponse)
	report, err := NewVerifier(gen, VerifierOptions{}).Verify(context.Background(), testProject(), nil, "paper")
	require.NoError(t, err)
	assert.True(t, report.Passed)
	assert.Equal(t, 0, gen.CallCount())
}
