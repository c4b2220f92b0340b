package research

import (
	"sort"
	"sync"
	"time"

	"github.com/claimlens/backend/internal/domain/entities"
	apperrors "github.com/claimlens/backend/pkg/errors"
)

// Aggregator collects one claim's fan-out outcome: successful records,
// error descriptors and timings per backend. It accepts partial input
// from any subset of backends, never fails, and is safe for concurrent
// recording from sibling backend calls.
//
// A backend lands in the results map or the errors map for a given call,
// but may accumulate several error entries across retries.
type Aggregator struct {
	mu      sync.Mutex
	results map[string][]entities.SourceRecord
	order   []string
	errors  map[string][]entities.BackendError
	timings map[string]float64
}

// NewAggregator creates an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{
		results: make(map[string][]entities.SourceRecord),
		errors:  make(map[string][]entities.BackendError),
		timings: make(map[string]float64),
	}
}

// AddResult records successful records from a backend.
func (a *Aggregator) AddResult(backend string, records []entities.SourceRecord) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if _, seen := a.results[backend]; !seen {
		a.order = append(a.order, backend)
	}
	a.results[backend] = append(a.results[backend], records...)
}

// AddError records a failed call attempt against a backend.
func (a *Aggregator) AddError(backend string, err error, context map[string]string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.errors[backend] = append(a.errors[backend], entities.BackendError{
		ErrorType: string(apperrors.TypeOf(err)),
		Message:   err.Error(),
		Timestamp: time.Now().UTC(),
		Context:   context,
	})
}

// AddTiming records how long a backend's call took, in seconds.
func (a *Aggregator) AddTiming(backend string, seconds float64) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.timings[backend] = seconds
}

// AllResults returns every collected record, flattened in backend
// completion order. Returns an empty slice, never nil or an error, when
// no backend succeeded.
func (a *Aggregator) AllResults() []entities.SourceRecord {
	a.mu.Lock()
	defer a.mu.Unlock()

	all := make([]entities.SourceRecord, 0)
	for _, backend := range a.order {
		all = append(all, a.results[backend]...)
	}
	return all
}

// HasResults reports whether any backend contributed records.
func (a *Aggregator) HasResults() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.results) > 0
}

// Summary condenses the aggregated state into per-backend counts plus
// the average call time across backends that reported timings.
func (a *Aggregator) Summary() entities.ResearchSummary {
	a.mu.Lock()
	defer a.mu.Unlock()

	summary := entities.ResearchSummary{
		SuccessfulSources: make([]string, 0, len(a.results)),
		FailedSources:     make([]string, 0, len(a.errors)),
		SourceCounts:      make(map[string]int, len(a.results)),
		Errors:            make(map[string][]entities.BackendError, len(a.errors)),
		Timings:           make(map[string]float64, len(a.timings)),
	}

	for backend, records := range a.results {
		summary.SuccessfulSources = append(summary.SuccessfulSources, backend)
		summary.SourceCounts[backend] = len(records)
		summary.TotalSources += len(records)
	}
	sort.Strings(summary.SuccessfulSources)

	for backend, errs := range a.errors {
		summary.FailedSources = append(summary.FailedSources, backend)
		summary.Errors[backend] = append([]entities.BackendError(nil), errs...)
		summary.TotalErrors += len(errs)
	}
	sort.Strings(summary.FailedSources)

	var total float64
	for backend, seconds := range a.timings {
		summary.Timings[backend] = seconds
		total += seconds
	}
	if len(a.timings) > 0 {
		summary.AverageTime = total / float64(len(a.timings))
	}

	return summary
}
