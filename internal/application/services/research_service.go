package services

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/claimlens/backend/internal/domain/entities"
	"github.com/claimlens/backend/internal/domain/providers"
	"github.com/claimlens/backend/internal/domain/repositories"
	"github.com/claimlens/backend/internal/research"
	apperrors "github.com/claimlens/backend/pkg/errors"
)

// fallbackStrategy is used when the classifier cannot be reached: a
// general-purpose pair of scholarly backends.
var fallbackStrategy = providers.ResearchStrategy{
	Categories: []string{"general"},
	Backends:   []string{"semantic_scholar", "crossref"},
}

// AnalyzeRequest asks for one video's claims to be researched at a tier.
// Claims are extracted upstream; an empty claim list is valid.
type AnalyzeRequest struct {
	VideoID      string
	URL          string
	Tier         entities.AnalysisTier
	ForceRefresh bool
	Claims       []entities.Claim
}

// AnalyzeResult is the outcome of one analyze request, either served
// from the tiered store or freshly researched.
type AnalyzeResult struct {
	VideoID  string                  `json:"video_id"`
	URL      string                  `json:"url"`
	Tier     entities.AnalysisTier   `json:"tier"`
	Cached   bool                    `json:"cached"`
	Decision *entities.CacheDecision `json:"cache_decision"`
	Content  json.RawMessage         `json:"content"`
}

// analysisContent is the opaque payload stored per tier entry.
type analysisContent struct {
	VideoID string                   `json:"video_id"`
	URL     string                   `json:"url"`
	Claims  []entities.EnrichedClaim `json:"claims"`
}

// ResearchService drives the full workflow: cache decision, per-claim
// research planning, batched fan-out, and persistence of the result.
type ResearchService struct {
	cache       *AnalysisCacheService
	classifier  providers.Classifier
	coordinator *research.BatchCoordinator
	repo        repositories.AnalysisRepository
	maxAge      time.Duration
}

// NewResearchService wires the workflow service.
func NewResearchService(
	cache *AnalysisCacheService,
	classifier providers.Classifier,
	coordinator *research.BatchCoordinator,
	repo repositories.AnalysisRepository,
	maxAge time.Duration,
) *ResearchService {
	return &ResearchService{
		cache:       cache,
		classifier:  classifier,
		coordinator: coordinator,
		repo:        repo,
		maxAge:      maxAge,
	}
}

// Analyze serves the request from the tiered store when possible and
// researches the claims otherwise. A batch where every backend failed
// still persists and returns an empty-evidence result.
func (s *ResearchService) Analyze(ctx context.Context, req AnalyzeRequest) (*AnalyzeResult, error) {
	if req.VideoID == "" {
		return nil, apperrors.NewValidationError("video id is required")
	}
	if !req.Tier.Valid() {
		return nil, apperrors.NewValidationError("unknown analysis tier")
	}

	decision, err := s.cache.Select(ctx, req.VideoID, req.Tier, s.maxAge, req.ForceRefresh)
	if err != nil {
		return nil, err
	}
	if decision.Hit() {
		return &AnalyzeResult{
			VideoID:  req.VideoID,
			URL:      req.URL,
			Tier:     decision.SelectedTier,
			Cached:   true,
			Decision: decision,
			Content:  decision.Content,
		}, nil
	}

	units := s.planClaims(ctx, req.Claims)
	enriched, err := s.coordinator.RunBatch(ctx, units)
	if err != nil {
		return nil, err
	}

	content, err := json.Marshal(analysisContent{VideoID: req.VideoID, URL: req.URL, Claims: enriched})
	if err != nil {
		return nil, apperrors.NewInternalError("failed to encode analysis content", err)
	}

	now := time.Now().UTC()
	entry := &entities.TierEntry{
		Tier:      req.Tier,
		Status:    entities.StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
		Content:   content,
	}
	if err := s.repo.UpsertTier(ctx, req.VideoID, req.URL, entry); err != nil {
		return nil, err
	}

	log.Info().
		Str("video_id", req.VideoID).
		Str("tier", string(req.Tier)).
		Int("claims", len(enriched)).
		Msg("analysis stored")

	return &AnalyzeResult{
		VideoID:  req.VideoID,
		URL:      req.URL,
		Tier:     req.Tier,
		Cached:   false,
		Decision: decision,
		Content:  content,
	}, nil
}

// Orchestrate plans and researches a set of claims without touching the
// tiered store. Output order matches input order.
func (s *ResearchService) Orchestrate(ctx context.Context, claims []entities.Claim) ([]entities.EnrichedClaim, error) {
	return s.coordinator.RunBatch(ctx, s.planClaims(ctx, claims))
}

// planClaims turns claims into research units. Classifier failures fall
// back to the default strategy; query-generation failures leave the plan
// empty, which downgrades those backend calls to no-ops.
func (s *ResearchService) planClaims(ctx context.Context, claims []entities.Claim) []research.Unit {
	units := make([]research.Unit, 0, len(claims))
	for _, claim := range claims {
		units = append(units, s.planClaim(ctx, claim))
	}
	return units
}

func (s *ResearchService) planClaim(ctx context.Context, claim entities.Claim) research.Unit {
	strategy := fallbackStrategy
	if s.classifier != nil {
		if got, err := s.classifier.Strategy(ctx, claim); err != nil || got == nil {
			log.Warn().Str("claim_id", claim.ID).Err(err).Msg("strategy classification failed, using fallback")
		} else {
			strategy = *got
		}
	}

	queries := map[string]string{}
	if s.classifier != nil {
		if got, err := s.classifier.Queries(ctx, claim, strategy.Backends); err != nil {
			log.Warn().Str("claim_id", claim.ID).Err(err).Msg("query generation failed")
		} else {
			queries = got
		}
	}

	calls := make([]entities.BackendCall, 0, len(strategy.Backends))
	for _, backend := range strategy.Backends {
		calls = append(calls, entities.BackendCall{
			Backend: backend,
			Query:   queries[backend],
		})
	}

	return research.Unit{Claim: claim, Categories: strategy.Categories, Calls: calls}
}

// GetAnalysis returns the full video record with every stored tier.
func (s *ResearchService) GetAnalysis(ctx context.Context, videoID string) (*entities.VideoRecord, error) {
	if videoID == "" {
		return nil, apperrors.NewValidationError("video id is required")
	}
	return s.repo.GetVideo(ctx, videoID)
}

// ListRecent returns the most recently updated analyses.
func (s *ResearchService) ListRecent(ctx context.Context, limit, offset int) ([]*entities.VideoRecord, error) {
	if limit <= 0 || limit > 100 {
		limit = 10
	}
	if offset < 0 {
		offset = 0
	}
	return s.repo.ListRecent(ctx, limit, offset)
}
