package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCriterion_Valid(t *testing.T) {
	cases := []struct {
		name string
		text string
		want bool
	}{
		{"with fact marker", "The <fact>AdamW optimizer</fact> is used.", true},
		{"empty", "", false},
		{"no marker", "The AdamW optimizer is used.", false},
		{"error marker", "ERROR: <fact>x</fact>", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Criterion{Text: tc.text}.Valid())
		})
	}
}

func TestFactSpan(t *testing.T) {
	assert.Equal(t, "learning rate of 0.0001", FactSpan("A <fact> learning rate of 0.0001 </fact> is applied."))
	assert.Equal(t, "multi\nline", FactSpan("<FACT>multi\nline</FACT>"))
	assert.Equal(t, "", FactSpan("no span here"))
	assert.Equal(t, "first", FactSpan("<fact>first</fact> and <fact>second</fact>"))
}

func TestCodeProject_OrderAndClone(t *testing.T) {
	p := NewCodeProject()
	p.Set("config.yaml", "a: 1")
	p.Set("main.py", "print(1)")
	p.Set("config.yaml", "a: 2")

	assert.Equal(t, []string{"config.yaml", "main.py"}, p.Names())

	c := p.Clone()
	c.Set("main.py", "print(2)")
	got, _ := p.Get("main.py")
	assert.Equal(t, "print(1)", got)
	assert.False(t, p.Equal(c))

	c.Set("main.py", "print(1)")
	assert.True(t, p.Equal(c))
}

func TestNewEnrichedFact_NeverNil(t *testing.T) {
	ef := NewEnrichedFact(Fact{Sentence: "x"}, nil)
	assert.NotNil(t, ef.Evidence)
	assert.Empty(t, ef.Evidence)
}
