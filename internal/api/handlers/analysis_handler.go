package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/claimlens/backend/internal/application/services"
	"github.com/claimlens/backend/internal/domain/entities"
	apperrors "github.com/claimlens/backend/pkg/errors"
)

const maxClaimsPerRequest = 50

// AnalysisHandler exposes the claim research workflow and the tiered
// analysis store over HTTP.
type AnalysisHandler struct {
	research *services.ResearchService
	cache    *services.AnalysisCacheService
}

// NewAnalysisHandler creates a new analysis handler.
func NewAnalysisHandler(research *services.ResearchService, cache *services.AnalysisCacheService) *AnalysisHandler {
	return &AnalysisHandler{
		research: research,
		cache:    cache,
	}
}

type claimPayload struct {
	ID     string `json:"id"`
	Text   string `json:"text"`
	TextEN string `json:"text_en"`
}

type analyzeRequest struct {
	VideoID      string         `json:"video_id"`
	URL          string         `json:"url"`
	Tier         string         `json:"tier"`
	ForceRefresh bool           `json:"force_refresh"`
	Claims       []claimPayload `json:"claims"`
}

// AnalyzeVideo handles POST /api/analyze
func (h *AnalysisHandler) AnalyzeVideo(w http.ResponseWriter, r *http.Request) {
	var payload analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	payload.VideoID = strings.TrimSpace(payload.VideoID)
	if payload.VideoID == "" {
		respondWithError(w, http.StatusBadRequest, "video_id is required")
		return
	}

	tier := entities.TierSimple
	if payload.Tier != "" {
		parsed, err := entities.ParseTier(payload.Tier)
		if err != nil {
			respondWithError(w, http.StatusBadRequest, "tier must be one of simple, medium, hard")
			return
		}
		tier = parsed
	}

	if len(payload.Claims) > maxClaimsPerRequest {
		respondWithError(w, http.StatusBadRequest, "too many claims in one request")
		return
	}

	claims := make([]entities.Claim, 0, len(payload.Claims))
	for _, c := range payload.Claims {
		text := strings.TrimSpace(c.Text)
		if text == "" {
			respondWithError(w, http.StatusBadRequest, "claim text must not be empty")
			return
		}
		id := c.ID
		if id == "" {
			id = uuid.NewString()
		}
		claims = append(claims, entities.Claim{ID: id, Text: text, TextEN: strings.TrimSpace(c.TextEN)})
	}

	result, err := h.research.Analyze(r.Context(), services.AnalyzeRequest{
		VideoID:      payload.VideoID,
		URL:          payload.URL,
		Tier:         tier,
		ForceRefresh: payload.ForceRefresh,
		Claims:       claims,
	})
	if err != nil {
		respondWithAppError(w, err, "failed to analyze video")
		return
	}

	respondWithJSON(w, http.StatusOK, result)
}

// GetAnalysis handles GET /api/analyses/{video_id}
func (h *AnalysisHandler) GetAnalysis(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("video_id")

	record, err := h.research.GetAnalysis(r.Context(), videoID)
	if err != nil {
		respondWithAppError(w, err, "failed to get analysis")
		return
	}

	respondWithJSON(w, http.StatusOK, record)
}

// ListAnalyses handles GET /api/analyses
func (h *AnalysisHandler) ListAnalyses(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", 10)
	offset := parseIntParam(r, "offset", 0)

	records, err := h.research.ListRecent(r.Context(), limit, offset)
	if err != nil {
		respondWithAppError(w, err, "failed to list analyses")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": records,
		"count":    len(records),
	})
}

type ratingRequest struct {
	Rating float64 `json:"rating"`
}

// SubmitRating handles POST /api/analyses/{video_id}/{tier}/rating
func (h *AnalysisHandler) SubmitRating(w http.ResponseWriter, r *http.Request) {
	videoID := r.PathValue("video_id")

	tier, err := entities.ParseTier(r.PathValue("tier"))
	if err != nil {
		respondWithError(w, http.StatusBadRequest, "tier must be one of simple, medium, hard")
		return
	}

	var payload ratingRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		respondWithError(w, http.StatusBadRequest, "invalid request payload")
		return
	}

	stats, err := h.cache.SubmitRating(r.Context(), videoID, tier, payload.Rating)
	if err != nil {
		respondWithAppError(w, err, "failed to submit rating")
		return
	}

	respondWithJSON(w, http.StatusOK, stats)
}

func parseIntParam(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

// respondWithAppError maps the error taxonomy to HTTP status codes.
// Internal error details never leak to the client.
func respondWithAppError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case apperrors.IsValidation(err):
		respondWithError(w, http.StatusBadRequest, err.Error())
	case apperrors.IsNotFound(err):
		respondWithError(w, http.StatusNotFound, err.Error())
	case apperrors.IsCircuitOpen(err):
		respondWithError(w, http.StatusServiceUnavailable, "research backend temporarily unavailable")
	default:
		respondWithError(w, http.StatusInternalServerError, fallback)
	}
}

// Helper functions
func respondWithJSON(w http.ResponseWriter, statusCode int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(payload)
}

func respondWithError(w http.ResponseWriter, statusCode int, message string) {
	respondWithJSON(w, statusCode, map[string]string{
		"error": message,
	})
}
