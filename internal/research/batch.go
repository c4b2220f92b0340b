package research

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/claimlens/backend/internal/domain/entities"
)

// Unit is one claim together with its research plan: the classifier's
// category labels and the backend calls to issue.
type Unit struct {
	Claim      entities.Claim
	Categories []string
	Calls      []entities.BackendCall
}

// BatchCoordinator runs the orchestrator concurrently over independent
// units of work. Output order always matches input order regardless of
// completion order, and one unit's total failure never affects another.
type BatchCoordinator struct {
	orchestrator *Orchestrator
	concurrency  int
}

// NewBatchCoordinator creates a coordinator with the given concurrency
// cap (defaults to 10).
func NewBatchCoordinator(orchestrator *Orchestrator, concurrency int) *BatchCoordinator {
	if concurrency <= 0 {
		concurrency = 10
	}
	return &BatchCoordinator{orchestrator: orchestrator, concurrency: concurrency}
}

// RunBatch researches every unit and returns one enriched claim per
// unit, in input order. The returned slice always has len(units)
// entries; units that faulted internally carry empty sources and an
// empty analysis. A non-nil error is returned only when ctx was
// cancelled, signalling that unfinished units are degraded rather than
// researched.
func (b *BatchCoordinator) RunBatch(ctx context.Context, units []Unit) ([]entities.EnrichedClaim, error) {
	if len(units) == 0 {
		return []entities.EnrichedClaim{}, nil
	}

	log.Info().Int("units", len(units)).Msg("starting batch research")

	enriched := make([]entities.EnrichedClaim, len(units))

	g := new(errgroup.Group)
	g.SetLimit(b.concurrency)

	for i, unit := range units {
		g.Go(func() error {
			enriched[i] = b.runUnit(ctx, unit)
			return nil
		})
	}

	// Workers never return errors; faults are contained per unit.
	_ = g.Wait()

	log.Info().Int("units", len(units)).Msg("batch research complete")

	if err := ctx.Err(); err != nil {
		return enriched, fmt.Errorf("batch interrupted: %w", err)
	}
	return enriched, nil
}

// runUnit guards one unit's orchestration so an unexpected internal
// fault degrades that unit instead of aborting the batch.
func (b *BatchCoordinator) runUnit(ctx context.Context, unit Unit) (result entities.EnrichedClaim) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().
				Str("claim_id", unit.Claim.ID).
				Interface("panic", r).
				Msg("unit research panicked, degrading to empty result")
			result = degradedClaim(unit)
		}
	}()

	return b.orchestrator.Run(ctx, unit.Claim, unit.Categories, unit.Calls)
}

// degradedClaim carries the claim through with no evidence attached.
func degradedClaim(unit Unit) entities.EnrichedClaim {
	return entities.EnrichedClaim{
		Claim:      unit.Claim,
		Categories: unit.Categories,
		Sources:    map[entities.SourceType][]entities.SourceRecord{},
		AllSources: []entities.SourceRecord{},
		Analysis:   entities.ClaimAnalysis{Pros: []string{}, Cons: []string{}},
	}
}
