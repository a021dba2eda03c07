package codegen

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ppiankov/paperproof/internal/llm/llmtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const dmte = `Intro line that belongs to no section.

## Data
Cora, 2708 nodes.

## Model
Two GCN layers, 16 hidden units.
### Details
Dropout 0.5.

## Training
AdamW, learning rate 0.01, 200 epochs.

## Evaluation
Accuracy on 1000 test nodes.`

const configYAML = `data:
  dataset: cora
model:
  hidden: 16
training:
  lr: 0.01
  epochs: 200
`

const framework = `import torch


class Data:
    def load(self):
        pass


class Model:
    def forward(self, x):
        pass


def main():
    pass


if __name__ == "__main__":
    main()
`

func TestParseDMTE(t *testing.T) {
	sections := ParseDMTE(dmte)
	assert.Equal(t, "Cora, 2708 nodes.", sections["Data"])
	assert.Equal(t, "Two GCN layers, 16 hidden units.\n### Details\nDropout 0.5.", sections["Model"])
	assert.Equal(t, "Accuracy on 1000 test nodes.", sections["Evaluation"])

	empty := ParseDMTE("no headings at all")
	assert.Len(t, empty, 4)
	assert.Empty(t, empty["Training"])
}

func TestConfigSection(t *testing.T) {
	assert.Equal(t, "epochs: 200\nlr: 0.01", ConfigSection(configYAML, "training"))
	assert.Empty(t, ConfigSection(configYAML, "evaluation"))
	assert.Empty(t, ConfigSection("a: [broken", "a"))
}

func TestAddendumSection(t *testing.T) {
	assert.Empty(t, AddendumSection("  \n"))
	assert.Equal(t, "\nHere is the supplementary information for code reproduction:\nUse seed 42.", AddendumSection("Use seed 42."))
}

func TestParts(t *testing.T) {
	parts := Parts(dmte, configYAML)
	require.Len(t, parts, 5)
	assert.Equal(t, "Trainer", parts[2].Name)
	assert.Equal(t, "AdamW, learning rate 0.01, 200 epochs.", parts[2].Summary)
	assert.Contains(t, parts[2].Config, "lr: 0.01")
	assert.Equal(t, KindFunction, parts[4].Kind)
	assert.False(t, parts[4].detailed())
}

func TestGenerate_RetriesAreBounded(t *testing.T) {
	gen := llmtest.Fixed("I cannot write code for this paper.")
	g := New(gen, Options{Retries: 4})

	_, err := g.Framework(context.Background(), dmte, "workflow", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnusableReply)
	assert.Equal(t, 4, gen.CallCount())

	failing := llmtest.Failing(errors.New("backend down"))
	_, err = New(failing, Options{}).Experiments(context.Background(), "paper", "", "code", "plan")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "experiments failed after 3 attempts")
	assert.Equal(t, DefaultRetries, failing.CallCount())
}

func TestGenerate_RetryRecoversAndUsesModels(t *testing.T) {
	gen := llmtest.Sequence("no code here", "```python\nclass Data:\n    pass\n```")
	g := New(gen, Options{Model: "coder", SummaryModel: "reader"})

	code, err := g.Framework(context.Background(), dmte, "workflow", "")
	require.NoError(t, err)
	assert.Equal(t, "class Data:\n    pass\n", code)
	assert.Equal(t, 2, gen.CallCount())
	assert.Equal(t, "coder", gen.Calls()[0].Model)

	_, err = g.SummarizeWorkflow(context.Background(), "paper")
	require.NoError(t, err)
	assert.Equal(t, "reader", gen.Calls()[2].Model)
}

func TestExtractConfig_RequiresMapping(t *testing.T) {
	gen := llmtest.Sequence("```yaml\n- not\n- a mapping\n```", "```yaml\ntraining:\n  lr: 0.01\n```")
	cfg, err := New(gen, Options{}).ExtractConfig(context.Background(), "paper", AddendumSection("Batch size 32."))
	require.NoError(t, err)
	assert.Equal(t, "training:\n  lr: 0.01\n", cfg)
	assert.Equal(t, 2, gen.CallCount())
	assert.Contains(t, gen.Calls()[0].Prompt, "Batch size 32.")
}

func TestAddSteps_SharedConversationAndFallback(t *testing.T) {
	gen := llmtest.New(func(c llmtest.Call) (string, error) {
		switch {
		case strings.Contains(c.Prompt, "class Data"):
			return "```python\nclass Data:\n    def load(self):\n        # Step 1: read Cora\n        pass\n```", nil
		case strings.Contains(c.Prompt, "class Model"):
			return "Sorry, here is only prose.", nil
		case strings.Contains(c.Prompt, "def main"):
			return "```python\ndef main():\n    # Step 1: train\n    pass\n```", nil
		}
		return "", errors.New("unexpected prompt")
	})
	g := New(gen, Options{Retries: 2})

	res, err := g.AddSteps(context.Background(), framework, "workflow", "", Parts(dmte, configYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"Data", "main"}, res.Annotated)
	assert.Equal(t, []string{"Model"}, res.Kept)
	assert.Equal(t, []string{"Trainer", "Evaluator"}, res.Missing)
	assert.Contains(t, res.Code, "# Step 1: read Cora")
	assert.Contains(t, res.Code, "# Step 1: train")
	assert.Contains(t, res.Code, "def forward(self, x):\n        pass")
	assert.Contains(t, res.Code, "if __name__ == \"__main__\":")

	// 1 Data + 2 Model attempts + 1 main
	calls := gen.Calls()
	require.Len(t, calls, 4)
	assert.Contains(t, calls[0].Prompt, "Cora, 2708 nodes.")
	assert.Contains(t, calls[0].Prompt, "dataset: cora")
	assert.Contains(t, calls[0].System, "Here is the full skeleton")
	assert.Len(t, calls[1].History, 2, "failed Model attempts build on the Data exchange")
	assert.Len(t, calls[2].History, 2)
	assert.Len(t, calls[3].History, 2, "rejected replies are not kept in the conversation")
	assert.NotContains(t, calls[3].Prompt, "<summary>")
}

func TestImplement_MergesRepliesAndLogsTurns(t *testing.T) {
	gen := llmtest.New(func(c llmtest.Call) (string, error) {
		switch {
		case strings.Contains(c.Prompt, "class Data"):
			return "```python\nimport numpy as np\n\n\ndef normalize(x):\n    return x / x.sum()\n\n\nclass Data:\n    def load(self):\n        return normalize(np.ones(3))\n```", nil
		case strings.Contains(c.Prompt, "class Model"):
			return "```python\nclass Model:\n    def forward(self, x):\n        return x\n```", nil
		case strings.Contains(c.Prompt, "def main"):
			return "```python\nprint('no main here')\n```", nil
		}
		return "", errors.New("unexpected prompt")
	})
	g := New(gen, Options{Retries: 1})

	res, err := g.Implement(context.Background(), framework, "PAPER TEXT", AddendumSection("Use seed 42."), configYAML, Parts(dmte, configYAML))
	require.NoError(t, err)

	assert.Equal(t, []string{"Data", "Model"}, res.Implemented)
	assert.Equal(t, []string{"main"}, res.Kept)

	defs := ParsePython(res.Code)
	assert.Equal(t, []string{"import torch", "import numpy as np"}, Imports(defs))
	assert.Equal(t, Find(defs, KindClass, "Data")-1, Find(defs, KindFunction, "normalize"))
	assert.Contains(t, res.Code, "return normalize(np.ones(3))")
	assert.Contains(t, res.Code, "def main():\n    pass")

	calls := gen.Calls()
	require.Len(t, calls, 3)
	for _, c := range calls {
		assert.Contains(t, c.System, "PAPER TEXT")
		assert.Contains(t, c.System, "Use seed 42.")
		assert.Contains(t, c.System, "epochs: 200")
	}
	assert.Contains(t, calls[1].Prompt, "import numpy as np", "imports from earlier turns are offered")

	assert.Contains(t, res.Log, "System Message:")
	assert.Contains(t, res.Log, "--- Turn 1 ---")
	assert.Contains(t, res.Log, "--- Turn 2 ---")
	assert.NotContains(t, res.Log, "--- Turn 3 ---")
}

func TestImplement_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := New(llmtest.Fixed("x"), Options{}).Implement(ctx, framework, "paper", "", configYAML, Parts(dmte, configYAML))
	assert.ErrorIs(t, err, context.Canceled)
}
