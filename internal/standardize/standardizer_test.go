package standardize

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"

	"github.com/ppiankov/paperproof/internal/llm/llmtest"
	"github.com/ppiankov/paperproof/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func enriched(sentence string) model.EnrichedFact {
	return model.NewEnrichedFact(
		model.Fact{Path: []string{"training", "optimizer"}, Sentence: sentence, Source: model.SourceConfig},
		model.SelfEvidence(sentence),
	)
}

func criteriaList(texts ...string) string {
	items := make([]map[string]string, len(texts))
	for i, t := range texts {
		items[i] = map[string]string{"criterion": t}
	}
	b, _ := json.Marshal(items)
	return "```json\n" + string(b) + "\n```"
}

func TestStandardize_AdamWCriterion(t *testing.T) {
	const sentence = "AdamW is used with learning rate 0.0001."
	gen := llmtest.Fixed(criteriaList("The model is trained with the <fact>AdamW optimizer with learning rate 0.0001</fact>."))

	out, err := New(gen, Options{}).Standardize(context.Background(), []model.EnrichedFact{enriched(sentence)}, "paper text")
	require.NoError(t, err)

	require.Len(t, out, 1)
	assert.Contains(t, out[0].Text, "<fact>AdamW optimizer with learning rate 0.0001</fact>")
	assert.Equal(t, sentence, out[0].SourceFact)
	assert.Equal(t, model.SourceConfig, out[0].Source)
	assert.Equal(t, []model.Evidence{{Sentence: sentence}}, out[0].Evidence)

	prompt := gen.Calls()[0].Prompt
	assert.Contains(t, prompt, sentence)
	assert.Contains(t, prompt, "paper text")
}

func TestStandardize_FinalValidityFilter(t *testing.T) {
	gen := llmtest.Fixed(`[
		{"criterion": "A <fact>dropout of 0.5</fact> is applied."},
		{"criterion": "No marker here."},
		{"criterion": "ERROR: <fact>broken</fact>"},
		{"criterion": ""},
		{"text": "<fact>wrong key</fact>"},
		"A bare <fact>string criterion</fact>.",
	]`)

	out, err := New(gen, Options{}).Standardize(context.Background(), []model.EnrichedFact{enriched("fact")}, "")
	require.NoError(t, err)

	var texts []string
	for _, c := range out {
		texts = append(texts, c.Text)
		assert.Contains(t, c.Text, model.FactOpenTag)
		assert.NotContains(t, c.Text, model.ErrorMarker)
	}
	assert.Equal(t, []string{"A <fact>dropout of 0.5</fact> is applied.", "A bare <fact>string criterion</fact>."}, texts)
}

func TestStandardize_RetriesThenYieldsNothing(t *testing.T) {
	gen := llmtest.Fixed("I cannot produce JSON today.")
	out, err := New(gen, Options{}).Standardize(context.Background(), []model.EnrichedFact{enriched("fact")}, "")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.NotNil(t, out)
	assert.Equal(t, DefaultRetries, gen.CallCount())
}

func TestStandardize_SkipsEmptyFact(t *testing.T) {
	gen := llmtest.Fixed(criteriaList("<fact>x</fact>"))
	out, err := New(gen, Options{}).Standardize(context.Background(), []model.EnrichedFact{enriched("  ")}, "")
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Zero(t, gen.CallCount())
}

func sevenCriteria() []string {
	var texts []string
	for i := 0; i < 7; i++ {
		texts = append(texts, fmt.Sprintf("Criterion <fact>number %d</fact>.", i))
	}
	return texts
}

func TestStandardize_RefereeNarrows(t *testing.T) {
	gen := llmtest.Router(criteriaList(sevenCriteria()...),
		llmtest.Route{Contains: "Generated Criteria List", Reply: `{"action": "REFINE_TO_TOP_5", "indices_to_keep": [6, 0, 42, 3]}`},
	)

	out, err := New(gen, Options{RefereeModel: "referee"}).Standardize(context.Background(), []model.EnrichedFact{enriched("fact")}, "")
	require.NoError(t, err)

	var texts []string
	for _, c := range out {
		texts = append(texts, c.Text)
	}
	assert.Equal(t, []string{"Criterion <fact>number 6</fact>.", "Criterion <fact>number 0</fact>.", "Criterion <fact>number 3</fact>."}, texts)

	referee := gen.CallsContaining("Generated Criteria List (Indices 0 to 6)")
	require.Len(t, referee, 1)
	assert.Equal(t, "referee", referee[0].Model)
	assert.True(t, referee[0].JSON)
}

func TestStandardize_RefereeFailOpen(t *testing.T) {
	tests := []struct {
		name  string
		reply string
	}{
		{"keep original", `{"action": "KEEP_ORIGINAL_LIST"}`},
		{"unreadable", "no idea"},
		{"no valid index", `{"action": "REFINE_TO_TOP_5", "indices_to_keep": [99]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := llmtest.New(func(c llmtest.Call) (string, error) {
				if strings.Contains(c.Prompt, "Generated Criteria List") {
					return tt.reply, nil
				}
				return criteriaList(sevenCriteria()...), nil
			})
			out, err := New(gen, Options{}).Standardize(context.Background(), []model.EnrichedFact{enriched("fact")}, "")
			require.NoError(t, err)
			assert.Len(t, out, 7)
		})
	}
}

func TestStandardize_PreservesFactOrder(t *testing.T) {
	gen := llmtest.New(func(c llmtest.Call) (string, error) {
		for _, name := range []string{"alpha", "beta", "gamma"} {
			if strings.Contains(c.Prompt, "**Guide Fact:**\n"+name) {
				return criteriaList("<fact>" + name + "</fact>"), nil
			}
		}
		return "[]", nil
	})

	facts := []model.EnrichedFact{enriched("alpha"), enriched("beta"), enriched("gamma")}
	out, err := New(gen, Options{Workers: 3}).Standardize(context.Background(), facts, "")
	require.NoError(t, err)

	require.Len(t, out, 3)
	for i, name := range []string{"alpha", "beta", "gamma"} {
		assert.Equal(t, name, out[i].SourceFact)
	}
}
