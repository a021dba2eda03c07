package model

import (
	"regexp"
	"strings"
)

const (
	FactOpenTag  = "<fact>"
	FactCloseTag = "</fact>"
	ScopeOpenTag = "<scope>"

	// ErrorMarker flags criteria produced from malformed generator output
	ErrorMarker = "ERROR:"
)

// Discard categories assigned by the filter
const (
	CategoryProcessingError = "Processing Error"
	CategoryDenylisted      = "Denylisted"
)

var factSpanPattern = regexp.MustCompile(`(?is)<fact>(.*?)</fact>`)

// Criterion is a standardized, checkable assertion derived from a fact
type Criterion struct {
	Text            string     `json:"criterion"`
	SourceFact      string     `json:"source_fact"`
	Evidence        []Evidence `json:"retrieved_evidence"`
	Source          Source     `json:"source,omitempty"`
	DiscardReason   string     `json:"discard_reason,omitempty"`
	DiscardCategory string     `json:"discard_category,omitempty"`
}

// Valid reports whether the criterion text carries a fact marker and no error marker
func (c Criterion) Valid() bool {
	return c.Text != "" && strings.Contains(c.Text, FactOpenTag) && !strings.Contains(c.Text, ErrorMarker)
}

// FactSpan returns the trimmed contents of the first <fact> span, or "" if absent
func (c Criterion) FactSpan() string {
	return FactSpan(c.Text)
}

// FactSpan extracts the first <fact>...</fact> span from text (case-insensitive)
func FactSpan(text string) string {
	m := factSpanPattern.FindStringSubmatch(text)
	if m == nil {
		return ""
	}
	return strings.TrimSpace(m[1])
}

// Discard returns a copy of the criterion annotated with a discard reason
func (c Criterion) Discard(reason, category string) Criterion {
	c.DiscardReason = reason
	c.DiscardCategory = category
	return c
}

// Verdict is the outcome of checking one criterion against one project state
type Verdict struct {
	Criterion    string `json:"criterion"`
	Met          bool   `json:"met"`
	Score        int    `json:"score"` // 0 or 1
	Expectations string `json:"expectations,omitempty"`
	Reality      string `json:"reality,omitempty"`
	Reason       string `json:"reason,omitempty"`
	ParseError   string `json:"parse_error,omitempty"` // Set when the response could not be read
}
