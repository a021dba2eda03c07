package model

import "time"

// RunManifest records one signal-design run. It is written next to the final
// signal file so later tooling can tell which run produced it.
type RunManifest struct {
	RunID       string     `json:"run_id"`
	Paper       string     `json:"paper"`     // Path or URL the paper was loaded from
	Workspace   string     `json:"workspace"` // Directory holding signal_design/
	StartedAt   time.Time  `json:"started_at"`
	CompletedAt time.Time  `json:"completed_at"`
	FetchMeta   *FetchMeta `json:"fetch_meta,omitempty"` // Only set for remote papers

	Facts    map[Source]int `json:"facts"`    // Extracted facts per strategy
	Enriched map[Source]int `json:"enriched"` // Facts with at least one evidence sentence
	Signals  map[Source]int `json:"signals"`  // Standardized criteria per strategy

	Filter FilterStats `json:"filter"`
	Final  int         `json:"final"` // Criteria written to supervisory_signals_final.json
}

// FetchMeta contains HTTP metadata from fetching a remote paper
type FetchMeta struct {
	StatusCode   int               `json:"status_code"`
	ContentType  string            `json:"content_type,omitempty"`
	LastModified string            `json:"last_modified,omitempty"`
	ETag         string            `json:"etag,omitempty"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// FilterStats are the aggregate counts reported by the signal filter
type FilterStats struct {
	Input      int `json:"input"`
	Denylisted int `json:"denylisted"`
	Clusters   int `json:"clusters"`
	Duplicates int `json:"duplicates"` // Removed while picking cluster representatives
	Discarded  int `json:"discarded"`  // Rejected by the verdict stage
	Kept       int `json:"kept"`
}

// RoundSummary describes one verify/plan/edit round
type RoundSummary struct {
	Number   int      `json:"number"`
	Passed   bool     `json:"passed"`
	Failed   int      `json:"failed"`             // Criteria not met this round
	Revised  []string `json:"revised,omitempty"`  // Files rewritten this round
	Skipped  []string `json:"skipped,omitempty"`  // Plan targets that could not be applied
	Snapshot string   `json:"snapshot,omitempty"` // Directory holding the round snapshot
}
