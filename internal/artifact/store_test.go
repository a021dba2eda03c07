package artifact

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Paragraph int    `json:"paragraph_index"`
	Sentence  string `json:"fact_sentence"`
}

func TestStore_TextAndJSON(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	assert.False(t, s.Exists(FrameworkGuide))
	require.NoError(t, s.WriteText(FrameworkGuide, "## Model\n- layers: 2\n"))
	assert.True(t, s.Exists(FrameworkGuide))

	text, err := s.ReadText(FrameworkGuide)
	require.NoError(t, err)
	assert.Equal(t, "## Model\n- layers: 2\n", text)

	in := []record{{Paragraph: 1, Sentence: "a"}}
	require.NoError(t, s.WriteJSON(SignalsFile("config"), in))
	var out []record
	require.NoError(t, s.ReadJSON("signals_config.json", &out))
	assert.Equal(t, in, out)

	require.NoError(t, s.Remove(FrameworkGuide))
	require.NoError(t, s.Remove(FrameworkGuide))
	assert.False(t, s.Exists(FrameworkGuide))
}

func TestStore_JSONL(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	w, err := s.CreateJSONL(ExhaustiveScan)
	require.NoError(t, err)
	require.NoError(t, w.Write(record{Paragraph: 0, Sentence: "first"}))

	// Records are on disk before Close
	partial, err := ReadJSONL[record](s, ExhaustiveScan)
	require.NoError(t, err)
	assert.Len(t, partial, 1)

	require.NoError(t, w.Write(record{Paragraph: 2, Sentence: "second"}))
	require.NoError(t, w.Close())

	all, err := ReadJSONL[record](s, ExhaustiveScan)
	require.NoError(t, err)
	assert.Equal(t, []record{{0, "first"}, {2, "second"}}, all)
}

func TestStore_Sub(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)

	sub, err := s.Sub("code_reflection/round_1")
	require.NoError(t, err)
	require.NoError(t, sub.WriteText("main.py", "print(1)\n"))

	_, err = os.Stat(s.Path("code_reflection/round_1/main.py"))
	assert.NoError(t, err)
}

func TestReadJSONL_Missing(t *testing.T) {
	s, err := NewStore(t.TempDir())
	require.NoError(t, err)
	_, err = ReadJSONL[record](s, "missing.jsonl")
	assert.Error(t, err)
}
