package repositories

import (
	"context"

	"github.com/claimlens/backend/internal/domain/entities"
)

// AnalysisRepository is the durable store for video analyses. One
// TierEntry exists per (video, tier); the video record's UpdatedAt moves
// on every tier write. IncrementRating must apply the increment
// atomically with respect to concurrent submissions for the same tier.
type AnalysisRepository interface {
	// GetVideo returns the video record with all its tier entries, or a
	// pkg/errors not-found error when the video has never been analyzed.
	GetVideo(ctx context.Context, videoID string) (*entities.VideoRecord, error)

	// UpsertTier creates or replaces the entry for (videoID, entry.Tier)
	// and bumps the video-level updated_at.
	UpsertTier(ctx context.Context, videoID, url string, entry *entities.TierEntry) error

	// IncrementRating adds value to the entry's ratings_sum, increments
	// rating_count by one, and returns the updated entry. Returns a
	// not-found error when no such (video, tier) entry exists.
	IncrementRating(ctx context.Context, videoID string, tier entities.AnalysisTier, value float64) (*entities.TierEntry, error)

	// ListRecent returns the most recently updated video records.
	ListRecent(ctx context.Context, limit, offset int) ([]*entities.VideoRecord, error)
}
