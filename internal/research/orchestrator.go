package research

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/claimlens/backend/internal/domain/entities"
	"github.com/claimlens/backend/internal/domain/providers"
	"github.com/claimlens/backend/internal/infrastructure/observability"
	"github.com/claimlens/backend/internal/resilience"
	apperrors "github.com/claimlens/backend/pkg/errors"
	"github.com/claimlens/backend/pkg/retry"
)

// Orchestrator fans one claim out to its selected research backends.
// Every backend call runs concurrently under rate-limit, circuit-breaker
// and retry protection; one backend's failure never aborts a sibling's
// call. Total failure of every backend yields an enriched claim with
// empty sources and an empty analysis, which is a valid terminal outcome.
type Orchestrator struct {
	backends    map[string]providers.ResearchBackend
	registry    *resilience.Registry
	classifier  providers.Classifier
	retryCfg    retry.Config
	callTimeout time.Duration
	metrics     *observability.Metrics
}

// SetMetrics enables per-backend and per-claim metric recording.
func (o *Orchestrator) SetMetrics(metrics *observability.Metrics) {
	o.metrics = metrics
}

// NewOrchestrator wires the orchestrator. classifier may be nil, in
// which case merged sources are returned without pros/cons analysis.
func NewOrchestrator(
	backends []providers.ResearchBackend,
	registry *resilience.Registry,
	classifier providers.Classifier,
	retryCfg retry.Config,
	callTimeout time.Duration,
) *Orchestrator {
	byName := make(map[string]providers.ResearchBackend, len(backends))
	for _, b := range backends {
		byName[b.Name()] = b
	}
	if callTimeout <= 0 {
		callTimeout = 30 * time.Second
	}
	return &Orchestrator{
		backends:    byName,
		registry:    registry,
		classifier:  classifier,
		retryCfg:    retryCfg,
		callTimeout: callTimeout,
	}
}

// Run executes all backend calls for one claim and merges the outcome.
func (o *Orchestrator) Run(ctx context.Context, claim entities.Claim, categories []string, calls []entities.BackendCall) entities.EnrichedClaim {
	agg := NewAggregator()
	runStart := time.Now()

	var wg sync.WaitGroup
	for _, call := range calls {
		if call.Query == "" {
			continue // no query generated for this backend; a no-op, not an error
		}
		backend, ok := o.backends[call.Backend]
		if !ok {
			log.Debug().Str("backend", call.Backend).Msg("backend not registered, skipping call")
			continue
		}

		wg.Add(1)
		go func(call entities.BackendCall, backend providers.ResearchBackend) {
			defer wg.Done()
			o.executeCall(ctx, agg, call, backend)
		}(call, backend)
	}
	wg.Wait()

	allSources := agg.AllResults()
	sourcesByType := make(map[entities.SourceType][]entities.SourceRecord)
	for _, record := range allSources {
		sourcesByType[record.SourceType] = append(sourcesByType[record.SourceType], record)
	}

	analysis := o.analyze(ctx, claim, allSources)
	summary := agg.Summary()
	if o.metrics != nil {
		observability.RecordResearchDuration(ctx, o.metrics, time.Since(runStart))
	}

	log.Info().
		Str("claim_id", claim.ID).
		Int("sources", summary.TotalSources).
		Int("errors", summary.TotalErrors).
		Int("pros", len(analysis.Pros)).
		Int("cons", len(analysis.Cons)).
		Msg("claim research complete")

	return entities.EnrichedClaim{
		Claim:      claim,
		Categories: categories,
		Sources:    sourcesByType,
		AllSources: allSources,
		Analysis:   analysis,
		Summary:    summary,
	}
}

// executeCall runs one backend call under the full protection chain:
// limiter.Wait, then breaker.Execute around the retry loop. Any failure,
// expected or not, is converted into an aggregator error entry.
func (o *Orchestrator) executeCall(ctx context.Context, agg *Aggregator, call entities.BackendCall, backend providers.ResearchBackend) {
	defer func() {
		if r := recover(); r != nil {
			agg.AddError(call.Backend,
				apperrors.NewInternalError("backend call panicked", fmt.Errorf("%v", r)),
				map[string]string{"query": call.Query})
		}
	}()

	state := o.registry.Get(call.Backend)
	errCtx := map[string]string{"query": call.Query}
	start := time.Now()

	if err := state.Wait(ctx); err != nil {
		agg.AddError(call.Backend, err, errCtx)
		return
	}

	maxResults := call.MaxResults
	if maxResults <= 0 {
		maxResults = state.MaxResults()
	}

	var records []entities.SourceRecord
	err := state.Execute(func() error {
		return retry.DoWithLog(ctx, o.retryCfg, call.Backend, func() error {
			callCtx, cancel := context.WithTimeout(ctx, o.callTimeout)
			defer cancel()

			found, searchErr := backend.Search(callCtx, call.Query, maxResults)
			if searchErr != nil {
				return searchErr
			}
			records = found
			return nil
		}, func(attempt int, attemptErr error, next time.Duration) {
			agg.AddError(call.Backend, attemptErr, errCtx)
			log.Warn().
				Str("backend", call.Backend).
				Int("attempt", attempt).
				Dur("next_delay", next).
				Err(attemptErr).
				Msg("backend call attempt failed, retrying")
		})
	})
	agg.AddTiming(call.Backend, time.Since(start).Seconds())
	if o.metrics != nil {
		observability.RecordBackendCall(ctx, o.metrics, call.Backend, len(records), err)
	}

	if err != nil {
		agg.AddError(call.Backend, err, errCtx)
		return
	}
	agg.AddResult(call.Backend, records)
}

// analyze invokes the classification collaborator on the merged sources.
// Any collaborator error means "no structured result", never a failure.
func (o *Orchestrator) analyze(ctx context.Context, claim entities.Claim, sources []entities.SourceRecord) entities.ClaimAnalysis {
	empty := entities.ClaimAnalysis{Pros: []string{}, Cons: []string{}}
	if o.classifier == nil || len(sources) == 0 {
		return empty
	}

	analysis, err := o.classifier.ProsCons(ctx, claim, sources)
	if err != nil || analysis == nil {
		log.Warn().Str("claim_id", claim.ID).Err(err).Msg("pros/cons analysis unavailable")
		return empty
	}
	if analysis.Pros == nil {
		analysis.Pros = []string{}
	}
	if analysis.Cons == nil {
		analysis.Cons = []string{}
	}
	return *analysis
}
