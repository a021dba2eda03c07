package model

import "strings"

// Source identifies which extraction strategy produced a fact
type Source string

const (
	SourceFramework  Source = "framework"  // Hierarchical markdown guide
	SourceConfig     Source = "config"     // Flattened YAML guide
	SourceExhaustive Source = "exhaustive" // Paragraph-by-paragraph sentence scan
)

// Sources lists every extraction strategy in merge order
func Sources() []Source {
	return []Source{SourceFramework, SourceConfig, SourceExhaustive}
}

// Fact is a candidate claim taken from the paper before any evidence is attached
type Fact struct {
	Path     []string `json:"fact_path"`        // Hierarchy labels inside the guide, or paragraph_<i>
	Sentence string   `json:"fact_sentence"`    // Verbatim sentence or guide value
	Source   Source   `json:"source,omitempty"` // Producing extractor
}

// PathString joins the fact path for log output
func (f Fact) PathString() string {
	return strings.Join(f.Path, " > ")
}

// EnrichedFact is a fact plus the paper sentences retrieved to support it
type EnrichedFact struct {
	Fact
	Evidence []Evidence `json:"retrieved_evidence"` // Never nil, may be empty
}

// NewEnrichedFact attaches evidence to a fact, normalising a nil list to empty
func NewEnrichedFact(f Fact, evidence []Evidence) EnrichedFact {
	if evidence == nil {
		evidence = []Evidence{}
	}
	return EnrichedFact{Fact: f, Evidence: evidence}
}

// EvidenceText joins evidence sentences one per line
func (e EnrichedFact) EvidenceText() string {
	lines := make([]string, 0, len(e.Evidence))
	for _, ev := range e.Evidence {
		lines = append(lines, ev.Sentence)
	}
	return strings.Join(lines, "\n")
}
