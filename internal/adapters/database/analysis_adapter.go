package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/jmoiron/sqlx"

	"github.com/claimlens/backend/internal/domain/entities"
	"github.com/claimlens/backend/internal/domain/repositories"
	"github.com/claimlens/backend/internal/infrastructure/clients/postgres"
	apperrors "github.com/claimlens/backend/pkg/errors"
)

// AnalysisAdapter implements analysis persistence in Postgres across two
// tables: video_analyses holds one row per video, analysis_tiers one row
// per (video, tier).
type AnalysisAdapter struct {
	conn *sql.DB
	db   *goqu.Database
	sqlx *sqlx.DB
}

// NewAnalysisAdapter creates a new analysis adapter.
func NewAnalysisAdapter(client *postgres.Client) repositories.AnalysisRepository {
	return newAnalysisAdapter(client.DB())
}

func newAnalysisAdapter(conn *sql.DB) *AnalysisAdapter {
	return &AnalysisAdapter{
		conn: conn,
		db:   goqu.New("postgres", conn),
		sqlx: sqlx.NewDb(conn, "postgres"),
	}
}

// contentValue renders tier content as a SQL-safe JSON literal. Entries
// written before research completes carry no content yet.
func contentValue(content json.RawMessage) string {
	if len(content) == 0 {
		return "null"
	}
	return string(content)
}

type videoRow struct {
	VideoID   string       `db:"video_id"`
	URL       string       `db:"url"`
	UpdatedAt sql.NullTime `db:"updated_at"`
}

type tierRow struct {
	VideoID string `db:"video_id"`
	entities.TierEntry
}

// GetVideo retrieves a video record with all its tier entries.
func (a *AnalysisAdapter) GetVideo(ctx context.Context, videoID string) (*entities.VideoRecord, error) {
	var row videoRow
	err := a.sqlx.GetContext(ctx, &row,
		`SELECT video_id, url, updated_at FROM video_analyses WHERE video_id = $1`, videoID)
	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no analysis for video %s", videoID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get video analysis", err)
	}

	record := &entities.VideoRecord{
		VideoID: row.VideoID,
		URL:     row.URL,
		Tiers:   map[entities.AnalysisTier]*entities.TierEntry{},
	}
	if row.UpdatedAt.Valid {
		record.UpdatedAt = row.UpdatedAt.Time
	}

	var tiers []tierRow
	err = a.sqlx.SelectContext(ctx, &tiers,
		`SELECT video_id, tier, status, created_at, updated_at, content, ratings_sum, rating_count
		 FROM analysis_tiers WHERE video_id = $1`, videoID)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to get tier entries", err)
	}
	for i := range tiers {
		entry := tiers[i].TierEntry
		record.Tiers[entry.Tier] = &entry
	}

	return record, nil
}

// UpsertTier writes the entry for (videoID, entry.Tier) and bumps the
// video-level updated_at. Replacing a tier's content discards its
// accumulated ratings.
func (a *AnalysisAdapter) UpsertTier(ctx context.Context, videoID, url string, entry *entities.TierEntry) error {
	if entry == nil {
		return apperrors.NewInternalError("tier entry is nil", fmt.Errorf("tier entry is nil"))
	}
	if !entry.Tier.Valid() {
		return apperrors.NewValidationError(fmt.Sprintf("unknown analysis tier %q", entry.Tier))
	}

	tx, err := a.conn.BeginTx(ctx, nil)
	if err != nil {
		return apperrors.NewInternalError("failed to begin transaction", err)
	}
	defer tx.Rollback()

	videoQuery, videoArgs, err := a.db.Insert("video_analyses").
		Rows(goqu.Record{
			"video_id":   videoID,
			"url":        url,
			"updated_at": entry.UpdatedAt,
		}).
		OnConflict(goqu.DoUpdate("video_id", goqu.Record{
			"url":        url,
			"updated_at": entry.UpdatedAt,
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build video upsert query", err)
	}
	if _, err := tx.ExecContext(ctx, videoQuery, videoArgs...); err != nil {
		return apperrors.NewInternalError("failed to upsert video analysis", err)
	}

	tierQuery, tierArgs, err := a.db.Insert("analysis_tiers").
		Rows(goqu.Record{
			"video_id":     videoID,
			"tier":         entry.Tier,
			"status":       entry.Status,
			"created_at":   entry.CreatedAt,
			"updated_at":   entry.UpdatedAt,
			"content":      contentValue(entry.Content),
			"ratings_sum":  entry.RatingsSum,
			"rating_count": entry.RatingCount,
		}).
		OnConflict(goqu.DoUpdate("video_id, tier", goqu.Record{
			"status":       entry.Status,
			"updated_at":   entry.UpdatedAt,
			"content":      contentValue(entry.Content),
			"ratings_sum":  entry.RatingsSum,
			"rating_count": entry.RatingCount,
		})).
		ToSQL()
	if err != nil {
		return apperrors.NewInternalError("failed to build tier upsert query", err)
	}
	if _, err := tx.ExecContext(ctx, tierQuery, tierArgs...); err != nil {
		return apperrors.NewInternalError("failed to upsert tier entry", err)
	}

	if err := tx.Commit(); err != nil {
		return apperrors.NewInternalError("failed to commit tier upsert", err)
	}
	return nil
}

// IncrementRating atomically folds one rating into the tier entry.
func (a *AnalysisAdapter) IncrementRating(ctx context.Context, videoID string, tier entities.AnalysisTier, value float64) (*entities.TierEntry, error) {
	query := `
		UPDATE analysis_tiers SET
			ratings_sum = ratings_sum + $3,
			rating_count = rating_count + 1
		WHERE video_id = $1 AND tier = $2
		RETURNING tier, status, created_at, updated_at, content, ratings_sum, rating_count
	`

	entry := &entities.TierEntry{}
	err := a.conn.QueryRowContext(ctx, query, videoID, tier, value).Scan(
		&entry.Tier,
		&entry.Status,
		&entry.CreatedAt,
		&entry.UpdatedAt,
		&entry.Content,
		&entry.RatingsSum,
		&entry.RatingCount,
	)

	if err == sql.ErrNoRows {
		return nil, apperrors.NewNotFoundError(fmt.Sprintf("no %s analysis for video %s", tier, videoID))
	}
	if err != nil {
		return nil, apperrors.NewInternalError("failed to increment rating", err)
	}

	return entry, nil
}

// ListRecent returns the most recently updated video records, tiers
// included.
func (a *AnalysisAdapter) ListRecent(ctx context.Context, limit, offset int) ([]*entities.VideoRecord, error) {
	var videos []videoRow
	err := a.sqlx.SelectContext(ctx, &videos,
		`SELECT video_id, url, updated_at FROM video_analyses
		 ORDER BY updated_at DESC LIMIT $1 OFFSET $2`, limit, offset)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to list analyses", err)
	}
	if len(videos) == 0 {
		return []*entities.VideoRecord{}, nil
	}

	records := make([]*entities.VideoRecord, 0, len(videos))
	byID := make(map[string]*entities.VideoRecord, len(videos))
	ids := make([]string, 0, len(videos))
	for _, v := range videos {
		record := &entities.VideoRecord{
			VideoID: v.VideoID,
			URL:     v.URL,
			Tiers:   map[entities.AnalysisTier]*entities.TierEntry{},
		}
		if v.UpdatedAt.Valid {
			record.UpdatedAt = v.UpdatedAt.Time
		}
		records = append(records, record)
		byID[v.VideoID] = record
		ids = append(ids, v.VideoID)
	}

	query, args, err := sqlx.In(
		`SELECT video_id, tier, status, created_at, updated_at, content, ratings_sum, rating_count
		 FROM analysis_tiers WHERE video_id IN (?)`, ids)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build tier listing query", err)
	}

	var tiers []tierRow
	if err := a.sqlx.SelectContext(ctx, &tiers, a.sqlx.Rebind(query), args...); err != nil {
		return nil, apperrors.NewInternalError("failed to list tier entries", err)
	}
	for i := range tiers {
		entry := tiers[i].TierEntry
		if record, ok := byID[tiers[i].VideoID]; ok {
			record.Tiers[entry.Tier] = &entry
		}
	}

	return records, nil
}
