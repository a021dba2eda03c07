package model

// Evidence is a single verbatim paper sentence supporting a fact
type Evidence struct {
	Sentence string `json:"sentence"`
}

// SelfEvidence returns the sentence itself as its only evidence
func SelfEvidence(sentence string) []Evidence {
	return []Evidence{{Sentence: sentence}}
}
