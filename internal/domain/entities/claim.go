package entities

import "time"

// Claim is one unit of work: a factual statement extracted from a video.
// TextEN carries the English rendering used for classification and search.
type Claim struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	TextEN string `json:"text_en"`
}

// ClaimAnalysis holds the structured pros/cons produced by the
// classification collaborator for one claim.
type ClaimAnalysis struct {
	Pros []string `json:"pros"`
	Cons []string `json:"cons"`
}

// BackendError describes one failed call attempt against a backend.
// A backend may accumulate several entries across retries.
type BackendError struct {
	ErrorType string            `json:"error_type"`
	Message   string            `json:"message"`
	Timestamp time.Time         `json:"timestamp"`
	Context   map[string]string `json:"context,omitempty"`
}

// ResearchSummary condenses one claim's fan-out outcome: which backends
// succeeded or failed, how many sources each contributed, and timings.
type ResearchSummary struct {
	TotalSources      int                       `json:"total_sources"`
	TotalErrors       int                       `json:"total_errors"`
	SuccessfulSources []string                  `json:"successful_sources"`
	FailedSources     []string                  `json:"failed_sources"`
	SourceCounts      map[string]int            `json:"source_counts"`
	Errors            map[string][]BackendError `json:"errors,omitempty"`
	Timings           map[string]float64        `json:"timings"`
	AverageTime       float64                   `json:"average_time_seconds"`
}

// EnrichedClaim is a claim plus everything research produced for it.
// Immutable after the orchestrator returns it. Empty sources with an
// empty analysis is a legitimate terminal outcome, not a failure.
type EnrichedClaim struct {
	Claim      Claim                         `json:"claim"`
	Categories []string                      `json:"categories"`
	Sources    map[SourceType][]SourceRecord `json:"sources"`
	AllSources []SourceRecord                `json:"all_sources"`
	Analysis   ClaimAnalysis                 `json:"analysis"`
	Summary    ResearchSummary               `json:"research_summary"`
}
