package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimlens/backend/internal/api/handlers"
	"github.com/claimlens/backend/internal/application/services"
	"github.com/claimlens/backend/internal/domain/entities"
	"github.com/claimlens/backend/internal/domain/providers"
	"github.com/claimlens/backend/internal/research"
	"github.com/claimlens/backend/internal/resilience"
	"github.com/claimlens/backend/pkg/config"
	apperrors "github.com/claimlens/backend/pkg/errors"
	"github.com/claimlens/backend/pkg/retry"
)

type stubRepo struct {
	mu     sync.Mutex
	videos map[string]*entities.VideoRecord
}

func newStubRepo() *stubRepo {
	return &stubRepo{videos: map[string]*entities.VideoRecord{}}
}

func (r *stubRepo) GetVideo(ctx context.Context, videoID string) (*entities.VideoRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.videos[videoID]
	if !ok {
		return nil, apperrors.NewNotFoundError("no analysis for video " + videoID)
	}
	copied := *record
	copied.Tiers = map[entities.AnalysisTier]*entities.TierEntry{}
	for tier, entry := range record.Tiers {
		e := *entry
		copied.Tiers[tier] = &e
	}
	return &copied, nil
}

func (r *stubRepo) UpsertTier(ctx context.Context, videoID, url string, entry *entities.TierEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.videos[videoID]
	if !ok {
		record = &entities.VideoRecord{
			VideoID: videoID,
			URL:     url,
			Tiers:   map[entities.AnalysisTier]*entities.TierEntry{},
		}
		r.videos[videoID] = record
	}
	record.UpdatedAt = entry.UpdatedAt
	copied := *entry
	record.Tiers[entry.Tier] = &copied
	return nil
}

func (r *stubRepo) IncrementRating(ctx context.Context, videoID string, tier entities.AnalysisTier, value float64) (*entities.TierEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.videos[videoID]
	if !ok {
		return nil, apperrors.NewNotFoundError("no analysis for video " + videoID)
	}
	entry, ok := record.Tiers[tier]
	if !ok {
		return nil, apperrors.NewNotFoundError("no tier entry")
	}
	entry.RatingsSum += value
	entry.RatingCount++
	copied := *entry
	return &copied, nil
}

func (r *stubRepo) ListRecent(ctx context.Context, limit, offset int) ([]*entities.VideoRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	records := make([]*entities.VideoRecord, 0, len(r.videos))
	for _, record := range r.videos {
		records = append(records, record)
	}
	if offset >= len(records) {
		return []*entities.VideoRecord{}, nil
	}
	records = records[offset:]
	if len(records) > limit {
		records = records[:limit]
	}
	return records, nil
}

type stubHandlerBackend struct{}

func (stubHandlerBackend) Name() string { return "crossref" }

func (stubHandlerBackend) Search(ctx context.Context, query string, maxResults int) ([]entities.SourceRecord, error) {
	return []entities.SourceRecord{{Title: "Study", Backend: "crossref", SourceType: entities.SourceTypeScientific}}, nil
}

type stubHandlerClassifier struct{}

func (stubHandlerClassifier) Strategy(ctx context.Context, claim entities.Claim) (*providers.ResearchStrategy, error) {
	return &providers.ResearchStrategy{Categories: []string{"general"}, Backends: []string{"crossref"}}, nil
}

func (stubHandlerClassifier) Queries(ctx context.Context, claim entities.Claim, backends []string) (map[string]string, error) {
	return map[string]string{"crossref": claim.Text}, nil
}

func (stubHandlerClassifier) ProsCons(ctx context.Context, claim entities.Claim, sources []entities.SourceRecord) (*entities.ClaimAnalysis, error) {
	return &entities.ClaimAnalysis{Pros: []string{"supported"}, Cons: []string{}}, nil
}

func newTestHandler(repo *stubRepo) *handlers.AnalysisHandler {
	registry := resilience.NewRegistry([]config.BackendConfig{
		{Name: "crossref", CallsPerSecond: 1000, FailureThreshold: 100, RecoveryTimeoutSeconds: 60, MaxResults: 3},
	})
	orchestrator := research.NewOrchestrator([]providers.ResearchBackend{stubHandlerBackend{}}, registry, stubHandlerClassifier{},
		retry.Config{MaxAttempts: 1, BaseDelay: time.Millisecond, BackoffFactor: 2, MaxDelay: time.Millisecond}, time.Second)
	coordinator := research.NewBatchCoordinator(orchestrator, 4)

	cache := services.NewAnalysisCacheService(repo)
	researchSvc := services.NewResearchService(cache, stubHandlerClassifier{}, coordinator, repo, 7*24*time.Hour)
	return handlers.NewAnalysisHandler(researchSvc, cache)
}

func TestAnalysisHandler_AnalyzeVideo(t *testing.T) {
	handler := newTestHandler(newStubRepo())

	body := `{"video_id":"v1","url":"https://youtube.com/watch?v=v1","tier":"simple","claims":[{"text":"GDP doubled","text_en":"GDP doubled"}]}`
	req := httptest.NewRequest("POST", "/api/analyze", strings.NewReader(body))
	w := httptest.NewRecorder()

	handler.AnalyzeVideo(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response services.AnalyzeResult
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, "v1", response.VideoID)
	assert.False(t, response.Cached)
	assert.NotEmpty(t, response.Content)
}

func TestAnalysisHandler_AnalyzeVideo_Validation(t *testing.T) {
	handler := newTestHandler(newStubRepo())

	tests := []struct {
		name string
		body string
	}{
		{"malformed json", `{`},
		{"missing video id", `{"tier":"simple"}`},
		{"bad tier", `{"video_id":"v1","tier":"extreme"}`},
		{"empty claim text", `{"video_id":"v1","claims":[{"text":"  "}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/analyze", strings.NewReader(tt.body))
			w := httptest.NewRecorder()
			handler.AnalyzeVideo(w, req)
			assert.Equal(t, http.StatusBadRequest, w.Code)
		})
	}
}

func TestAnalysisHandler_GetAnalysis_NotFound(t *testing.T) {
	handler := newTestHandler(newStubRepo())

	req := httptest.NewRequest("GET", "/api/analyses/missing", nil)
	req.SetPathValue("video_id", "missing")
	w := httptest.NewRecorder()

	handler.GetAnalysis(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestAnalysisHandler_GetAnalysis(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	require.NoError(t, repo.UpsertTier(context.Background(), "v1", "u1", &entities.TierEntry{
		Tier:      entities.TierHard,
		Status:    entities.StatusCompleted,
		CreatedAt: now,
		UpdatedAt: now,
		Content:   []byte(`{"claims":[]}`),
	}))
	handler := newTestHandler(repo)

	req := httptest.NewRequest("GET", "/api/analyses/v1", nil)
	req.SetPathValue("video_id", "v1")
	w := httptest.NewRecorder()

	handler.GetAnalysis(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var record entities.VideoRecord
	require.NoError(t, json.NewDecoder(w.Body).Decode(&record))
	assert.Equal(t, "v1", record.VideoID)
	assert.Contains(t, record.Tiers, entities.TierHard)
}

func TestAnalysisHandler_SubmitRating(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	require.NoError(t, repo.UpsertTier(context.Background(), "v1", "u1", &entities.TierEntry{
		Tier: entities.TierSimple, Status: entities.StatusCompleted, CreatedAt: now, UpdatedAt: now,
	}))
	handler := newTestHandler(repo)

	req := httptest.NewRequest("POST", "/api/analyses/v1/simple/rating", strings.NewReader(`{"rating":4}`))
	req.SetPathValue("video_id", "v1")
	req.SetPathValue("tier", "simple")
	w := httptest.NewRecorder()

	handler.SubmitRating(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var stats entities.RatingStats
	require.NoError(t, json.NewDecoder(w.Body).Decode(&stats))
	assert.Equal(t, 4.0, stats.RatingsSum)
	assert.Equal(t, 1, stats.RatingCount)
}

func TestAnalysisHandler_SubmitRating_Invalid(t *testing.T) {
	handler := newTestHandler(newStubRepo())

	tests := []struct {
		name   string
		tier   string
		body   string
		status int
	}{
		{"out of range rating", "simple", `{"rating":9}`, http.StatusBadRequest},
		{"unknown tier", "extreme", `{"rating":3}`, http.StatusBadRequest},
		{"unknown video", "simple", `{"rating":3}`, http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/api/analyses/v1/"+tt.tier+"/rating", strings.NewReader(tt.body))
			req.SetPathValue("video_id", "v1")
			req.SetPathValue("tier", tt.tier)
			w := httptest.NewRecorder()

			handler.SubmitRating(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAnalysisHandler_ListAnalyses(t *testing.T) {
	repo := newStubRepo()
	now := time.Now().UTC()
	require.NoError(t, repo.UpsertTier(context.Background(), "v1", "u1", &entities.TierEntry{
		Tier: entities.TierSimple, Status: entities.StatusCompleted, CreatedAt: now, UpdatedAt: now,
	}))
	handler := newTestHandler(repo)

	req := httptest.NewRequest("GET", "/api/analyses?limit=5", nil)
	w := httptest.NewRecorder()

	handler.ListAnalyses(w, req)

	require.Equal(t, http.StatusOK, w.Code)

	var response struct {
		Analyses []entities.VideoRecord `json:"analyses"`
		Count    int                    `json:"count"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&response))
	assert.Equal(t, 1, response.Count)
}
