package entities

import (
	"encoding/json"
	"fmt"
	"time"
)

// AnalysisTier is a named quality level of a stored analysis, totally
// ordered by Rank: simple < medium < hard.
type AnalysisTier string

const (
	TierSimple AnalysisTier = "simple"
	TierMedium AnalysisTier = "medium"
	TierHard   AnalysisTier = "hard"
)

var tierRanks = map[AnalysisTier]int{
	TierSimple: 1,
	TierMedium: 2,
	TierHard:   3,
}

// Rank returns the tier's position in the quality hierarchy; higher is
// better. Unknown tiers rank below every known tier.
func (t AnalysisTier) Rank() int {
	return tierRanks[t]
}

// Valid reports whether t is a known tier.
func (t AnalysisTier) Valid() bool {
	_, ok := tierRanks[t]
	return ok
}

// ParseTier converts a string to an AnalysisTier.
func ParseTier(s string) (AnalysisTier, error) {
	t := AnalysisTier(s)
	if !t.Valid() {
		return "", fmt.Errorf("unknown analysis tier %q", s)
	}
	return t, nil
}

// AnalysisStatus is the lifecycle state of a stored tier entry.
type AnalysisStatus string

const (
	StatusPending   AnalysisStatus = "pending"
	StatusCompleted AnalysisStatus = "completed"
	StatusFailed    AnalysisStatus = "failed"
)

// CacheReason explains a tiered-cache decision.
type CacheReason string

const (
	ReasonExactMatch     CacheReason = "exact_match"
	ReasonUpgradedMode   CacheReason = "upgraded_mode"
	ReasonDowngradedMode CacheReason = "downgraded_mode"
	ReasonNoCache        CacheReason = "no_cache"
	ReasonTooOld         CacheReason = "too_old"
	ReasonForceRefresh   CacheReason = "force_refresh"
)

// TierEntry is one stored analysis for a (video, tier) pair. Created on
// first save for that tier, updated in place on re-save or rating
// submission; never deleted by this service.
type TierEntry struct {
	Tier        AnalysisTier    `json:"tier" db:"tier"`
	Status      AnalysisStatus  `json:"status" db:"status"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at" db:"updated_at"`
	Content     json.RawMessage `json:"content" db:"content"`
	RatingsSum  float64         `json:"ratings_sum" db:"ratings_sum"`
	RatingCount int             `json:"rating_count" db:"rating_count"`
}

// AverageRating returns ratings_sum / rating_count, or 0 with no ratings.
func (e *TierEntry) AverageRating() float64 {
	if e.RatingCount == 0 {
		return 0
	}
	return e.RatingsSum / float64(e.RatingCount)
}

// Age returns how long ago the entry was last updated.
func (e *TierEntry) Age(now time.Time) time.Duration {
	return now.Sub(e.UpdatedAt)
}

// RatingStats is the caller-visible view of a tier entry's ratings.
type RatingStats struct {
	Tier          AnalysisTier `json:"tier"`
	RatingsSum    float64      `json:"ratings_sum"`
	RatingCount   int          `json:"rating_count"`
	AverageRating float64      `json:"average_rating"`
}

// VideoRecord groups every stored tier entry for one video. UpdatedAt
// moves on every tier write and gates the subject-level freshness check.
type VideoRecord struct {
	VideoID   string                      `json:"video_id" db:"video_id"`
	URL       string                      `json:"url" db:"url"`
	UpdatedAt time.Time                   `json:"updated_at" db:"updated_at"`
	Tiers     map[AnalysisTier]*TierEntry `json:"tiers"`
}

// CacheDecision is the outcome of a tiered-cache lookup. Content and
// SelectedTier are unset on a miss; Reason is always set.
type CacheDecision struct {
	Reason        CacheReason     `json:"reason"`
	RequestedTier AnalysisTier    `json:"requested_tier"`
	SelectedTier  AnalysisTier    `json:"selected_tier,omitempty"`
	Content       json.RawMessage `json:"content,omitempty"`
	EntryAgeDays  int             `json:"entry_age_days,omitempty"`
	AverageRating float64         `json:"average_rating,omitempty"`
	RatingCount   int             `json:"rating_count,omitempty"`
}

// Hit reports whether the decision carries reusable content.
func (d *CacheDecision) Hit() bool {
	return d.SelectedTier != ""
}
