package services

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/claimlens/backend/internal/domain/entities"
	"github.com/claimlens/backend/internal/domain/repositories"
	"github.com/claimlens/backend/internal/infrastructure/observability"
	apperrors "github.com/claimlens/backend/pkg/errors"
)

const (
	minRatingValue = 1.0
	maxRatingValue = 5.0
)

// AnalysisCacheService decides whether a stored analysis can satisfy a
// request for (video, tier) before any research is redone, and records
// user ratings against stored tiers.
//
// Tier selection prefers, in order: the exact requested tier, then the
// highest completed tier above it (upgrade), then the highest completed
// tier below it (graceful degradation). A subject-level freshness gate
// applies before any per-tier selection, and entries past the max age
// are skipped within it.
type AnalysisCacheService struct {
	repo    repositories.AnalysisRepository
	metrics *observability.Metrics
}

// NewAnalysisCacheService creates a new cache decision service.
func NewAnalysisCacheService(repo repositories.AnalysisRepository) *AnalysisCacheService {
	return &AnalysisCacheService{repo: repo}
}

// SetMetrics attaches cache hit/miss metrics recording.
func (s *AnalysisCacheService) SetMetrics(metrics *observability.Metrics) {
	s.metrics = metrics
}

// Select decides whether a stored tier can serve the request. A miss is
// a normal outcome carried in the decision's reason, never an error;
// errors are reserved for store failures.
func (s *AnalysisCacheService) Select(ctx context.Context, videoID string, requested entities.AnalysisTier, maxAge time.Duration, forceRefresh bool) (*entities.CacheDecision, error) {
	decision := &entities.CacheDecision{RequestedTier: requested}

	if forceRefresh {
		decision.Reason = entities.ReasonForceRefresh
		s.recordMiss(ctx, videoID)
		return decision, nil
	}

	video, err := s.repo.GetVideo(ctx, videoID)
	if err != nil {
		if apperrors.IsNotFound(err) {
			decision.Reason = entities.ReasonNoCache
			s.recordMiss(ctx, videoID)
			return decision, nil
		}
		return nil, err
	}

	now := time.Now().UTC()

	// Global freshness gate on the subject record, applied before any
	// per-tier selection: a stale subject is a miss even when some tier
	// entries exist.
	if maxAge > 0 && now.Sub(video.UpdatedAt) > maxAge {
		decision.Reason = entities.ReasonTooOld
		s.recordMiss(ctx, videoID)
		return decision, nil
	}

	selected := selectTier(video, requested, maxAge, now)
	if selected == nil {
		decision.Reason = entities.ReasonNoCache
		s.recordMiss(ctx, videoID)
		return decision, nil
	}

	switch {
	case selected.Tier == requested:
		decision.Reason = entities.ReasonExactMatch
	case selected.Tier.Rank() > requested.Rank():
		decision.Reason = entities.ReasonUpgradedMode
	default:
		decision.Reason = entities.ReasonDowngradedMode
	}

	decision.SelectedTier = selected.Tier
	decision.Content = selected.Content
	decision.EntryAgeDays = int(selected.Age(now).Hours() / 24)
	decision.AverageRating = selected.AverageRating()
	decision.RatingCount = selected.RatingCount

	log.Info().
		Str("video_id", videoID).
		Str("requested_tier", string(requested)).
		Str("selected_tier", string(selected.Tier)).
		Str("reason", string(decision.Reason)).
		Msg("cache hit")
	s.recordHit(ctx, videoID)

	return decision, nil
}

// selectTier picks the best completed entry for the requested tier:
// exact match first, then the highest tier above, then the highest below.
// Entries older than maxAge are invisible to selection, so a stale exact
// entry yields to a fresh tier above or below it.
func selectTier(video *entities.VideoRecord, requested entities.AnalysisTier, maxAge time.Duration, now time.Time) *entities.TierEntry {
	usable := func(entry *entities.TierEntry) bool {
		if entry.Status != entities.StatusCompleted {
			return false
		}
		return maxAge <= 0 || entry.Age(now) <= maxAge
	}

	if entry, ok := video.Tiers[requested]; ok && usable(entry) {
		return entry
	}

	var above, below *entities.TierEntry
	for _, entry := range video.Tiers {
		if !usable(entry) {
			continue
		}
		switch {
		case entry.Tier.Rank() > requested.Rank():
			if above == nil || entry.Tier.Rank() > above.Tier.Rank() {
				above = entry
			}
		case entry.Tier.Rank() < requested.Rank():
			if below == nil || entry.Tier.Rank() > below.Tier.Rank() {
				below = entry
			}
		}
	}

	if above != nil {
		return above
	}
	return below
}

// SubmitRating validates and applies one rating against a stored tier.
// The increment itself is atomic in the repository, so concurrent
// submissions for the same tier never lose updates.
func (s *AnalysisCacheService) SubmitRating(ctx context.Context, videoID string, tier entities.AnalysisTier, value float64) (*entities.RatingStats, error) {
	if !tier.Valid() {
		return nil, apperrors.NewValidationError("unknown analysis tier")
	}
	if value < minRatingValue || value > maxRatingValue {
		return nil, apperrors.NewValidationError("rating must be between 1 and 5")
	}

	entry, err := s.repo.IncrementRating(ctx, videoID, tier, value)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("video_id", videoID).
		Str("tier", string(tier)).
		Float64("value", value).
		Float64("average", entry.AverageRating()).
		Msg("rating recorded")

	return &entities.RatingStats{
		Tier:          tier,
		RatingsSum:    entry.RatingsSum,
		RatingCount:   entry.RatingCount,
		AverageRating: entry.AverageRating(),
	}, nil
}

func (s *AnalysisCacheService) recordHit(ctx context.Context, videoID string) {
	if s.metrics != nil {
		observability.RecordCacheHit(ctx, s.metrics, videoID)
	}
}

func (s *AnalysisCacheService) recordMiss(ctx context.Context, videoID string) {
	if s.metrics != nil {
		observability.RecordCacheMiss(ctx, s.metrics, videoID)
	}
}
