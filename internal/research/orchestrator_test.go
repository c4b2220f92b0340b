package research

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/claimlens/backend/internal/domain/entities"
	"github.com/claimlens/backend/internal/domain/providers"
	"github.com/claimlens/backend/internal/resilience"
	"github.com/claimlens/backend/pkg/config"
	apperrors "github.com/claimlens/backend/pkg/errors"
	"github.com/claimlens/backend/pkg/retry"
)

type fakeBackend struct {
	name   string
	search func(ctx context.Context, query string, maxResults int) ([]entities.SourceRecord, error)
}

func (f *fakeBackend) Name() string { return f.name }

func (f *fakeBackend) Search(ctx context.Context, query string, maxResults int) ([]entities.SourceRecord, error) {
	return f.search(ctx, query, maxResults)
}

type fakeClassifier struct {
	strategy func(ctx context.Context, claim entities.Claim) (*providers.ResearchStrategy, error)
	queries  func(ctx context.Context, claim entities.Claim, backends []string) (map[string]string, error)
	prosCons func(ctx context.Context, claim entities.Claim, sources []entities.SourceRecord) (*entities.ClaimAnalysis, error)
}

func (f *fakeClassifier) Strategy(ctx context.Context, claim entities.Claim) (*providers.ResearchStrategy, error) {
	if f.strategy == nil {
		return &providers.ResearchStrategy{Categories: []string{"general"}, Backends: []string{"crossref"}}, nil
	}
	return f.strategy(ctx, claim)
}

func (f *fakeClassifier) Queries(ctx context.Context, claim entities.Claim, backends []string) (map[string]string, error) {
	if f.queries == nil {
		out := make(map[string]string, len(backends))
		for _, b := range backends {
			out[b] = claim.TextEN
		}
		return out, nil
	}
	return f.queries(ctx, claim, backends)
}

func (f *fakeClassifier) ProsCons(ctx context.Context, claim entities.Claim, sources []entities.SourceRecord) (*entities.ClaimAnalysis, error) {
	if f.prosCons == nil {
		return &entities.ClaimAnalysis{Pros: []string{}, Cons: []string{}}, nil
	}
	return f.prosCons(ctx, claim, sources)
}

func fastRegistry(names ...string) *resilience.Registry {
	backends := make([]config.BackendConfig, 0, len(names))
	for _, name := range names {
		backends = append(backends, config.BackendConfig{
			Name:                   name,
			CallsPerSecond:         1000,
			FailureThreshold:       100,
			RecoveryTimeoutSeconds: 60,
			MaxResults:             5,
		})
	}
	return resilience.NewRegistry(backends)
}

func fastRetry(attempts int) retry.Config {
	return retry.Config{
		MaxAttempts:   attempts,
		BaseDelay:     time.Millisecond,
		BackoffFactor: 2.0,
		MaxDelay:      5 * time.Millisecond,
	}
}

func testClaim() entities.Claim {
	return entities.Claim{ID: "c1", Text: "Le café cause le cancer", TextEN: "Coffee causes cancer"}
}

func TestOrchestrator_PartialFailure(t *testing.T) {
	failing := &fakeBackend{name: "pubmed", search: func(ctx context.Context, q string, n int) ([]entities.SourceRecord, error) {
		return nil, apperrors.NewPermanentError("bad request", errors.New("400"))
	}}
	healthy := &fakeBackend{name: "crossref", search: func(ctx context.Context, q string, n int) ([]entities.SourceRecord, error) {
		return []entities.SourceRecord{record("crossref", "paper1"), record("crossref", "paper2")}, nil
	}}
	slow := &fakeBackend{name: "oecd", search: func(ctx context.Context, q string, n int) ([]entities.SourceRecord, error) {
		<-ctx.Done() // never returns before the per-call timeout fires
		return nil, apperrors.NewTransientError("timed out", ctx.Err())
	}}

	o := NewOrchestrator(
		[]providers.ResearchBackend{failing, healthy, slow},
		fastRegistry("pubmed", "crossref", "oecd"),
		nil,
		fastRetry(1),
		50*time.Millisecond,
	)

	enriched := o.Run(context.Background(), testClaim(), []string{"health"}, []entities.BackendCall{
		{Backend: "pubmed", Query: "coffee cancer"},
		{Backend: "crossref", Query: "coffee cancer"},
		{Backend: "oecd", Query: "coffee consumption"},
	})

	if len(enriched.AllSources) != 2 {
		t.Fatalf("AllSources = %d records, want exactly crossref's 2", len(enriched.AllSources))
	}
	for _, s := range enriched.AllSources {
		if s.Backend != "crossref" {
			t.Errorf("unexpected source from %s", s.Backend)
		}
	}

	summary := enriched.Summary
	if len(summary.FailedSources) != 2 {
		t.Errorf("FailedSources = %v, want pubmed and oecd", summary.FailedSources)
	}
	if len(summary.SuccessfulSources) != 1 || summary.SuccessfulSources[0] != "crossref" {
		t.Errorf("SuccessfulSources = %v, want [crossref]", summary.SuccessfulSources)
	}
	if enriched.Categories[0] != "health" {
		t.Errorf("categories not carried through: %v", enriched.Categories)
	}
}

func TestOrchestrator_EmptyQuerySkipped(t *testing.T) {
	calls := 0
	backend := &fakeBackend{name: "arxiv", search: func(ctx context.Context, q string, n int) ([]entities.SourceRecord, error) {
		calls++
		return nil, nil
	}}

	o := NewOrchestrator([]providers.ResearchBackend{backend}, fastRegistry("arxiv"), nil, fastRetry(1), time.Second)

	enriched := o.Run(context.Background(), testClaim(), nil, []entities.BackendCall{
		{Backend: "arxiv", Query: ""},
	})

	if calls != 0 {
		t.Errorf("backend invoked %d times for empty query, want 0", calls)
	}
	if enriched.Summary.TotalErrors != 0 {
		t.Error("empty query must be a no-op, not an error")
	}
}

func TestOrchestrator_TotalFailureIsValidOutcome(t *testing.T) {
	down := func(name string) *fakeBackend {
		return &fakeBackend{name: name, search: func(ctx context.Context, q string, n int) ([]entities.SourceRecord, error) {
			return nil, apperrors.NewTransientError("unreachable", errors.New("conn refused"))
		}}
	}

	o := NewOrchestrator(
		[]providers.ResearchBackend{down("pubmed"), down("arxiv")},
		fastRegistry("pubmed", "arxiv"),
		&fakeClassifier{},
		fastRetry(2),
		time.Second,
	)

	enriched := o.Run(context.Background(), testClaim(), nil, []entities.BackendCall{
		{Backend: "pubmed", Query: "q"},
		{Backend: "arxiv", Query: "q"},
	})

	if len(enriched.AllSources) != 0 {
		t.Errorf("AllSources = %d, want 0", len(enriched.AllSources))
	}
	if enriched.AllSources == nil {
		t.Error("AllSources must be an empty slice, not nil")
	}
	if enriched.Analysis.Pros == nil || enriched.Analysis.Cons == nil {
		t.Error("empty analysis must still be valid")
	}
	// 2 attempts per backend: the retried attempt plus the final one.
	if got := len(enriched.Summary.Errors["pubmed"]); got != 2 {
		t.Errorf("pubmed accumulated %d error entries, want 2", got)
	}
}

func TestOrchestrator_RetryRecovers(t *testing.T) {
	attempts := 0
	flaky := &fakeBackend{name: "semantic_scholar", search: func(ctx context.Context, q string, n int) ([]entities.SourceRecord, error) {
		attempts++
		if attempts < 3 {
			return nil, apperrors.NewTransientError("rate limited", errors.New("429"))
		}
		return []entities.SourceRecord{record("semantic_scholar", "paper")}, nil
	}}

	o := NewOrchestrator([]providers.ResearchBackend{flaky}, fastRegistry("semantic_scholar"), nil, fastRetry(3), time.Second)

	enriched := o.Run(context.Background(), testClaim(), nil, []entities.BackendCall{
		{Backend: "semantic_scholar", Query: "q"},
	})

	if attempts != 3 {
		t.Errorf("backend invoked %d times, want 3", attempts)
	}
	if len(enriched.AllSources) != 1 {
		t.Errorf("AllSources = %d, want 1", len(enriched.AllSources))
	}
	// The two failed attempts remain visible in the summary even though
	// the call ultimately succeeded.
	if got := len(enriched.Summary.Errors["semantic_scholar"]); got != 2 {
		t.Errorf("recorded %d attempt errors, want 2", got)
	}
}

func TestOrchestrator_ClassifierFailureDegrades(t *testing.T) {
	backend := &fakeBackend{name: "crossref", search: func(ctx context.Context, q string, n int) ([]entities.SourceRecord, error) {
		return []entities.SourceRecord{record("crossref", "paper")}, nil
	}}
	classifier := &fakeClassifier{
		prosCons: func(ctx context.Context, claim entities.Claim, sources []entities.SourceRecord) (*entities.ClaimAnalysis, error) {
			return nil, errors.New("llm unavailable")
		},
	}

	o := NewOrchestrator([]providers.ResearchBackend{backend}, fastRegistry("crossref"), classifier, fastRetry(1), time.Second)

	enriched := o.Run(context.Background(), testClaim(), nil, []entities.BackendCall{
		{Backend: "crossref", Query: "q"},
	})

	if len(enriched.AllSources) != 1 {
		t.Fatal("sources must survive a classifier failure")
	}
	if len(enriched.Analysis.Pros) != 0 || len(enriched.Analysis.Cons) != 0 {
		t.Error("classifier failure should yield an empty analysis")
	}
}

func TestOrchestrator_ClassifierEnriches(t *testing.T) {
	backend := &fakeBackend{name: "pubmed", search: func(ctx context.Context, q string, n int) ([]entities.SourceRecord, error) {
		return []entities.SourceRecord{record("pubmed", "study")}, nil
	}}
	classifier := &fakeClassifier{
		prosCons: func(ctx context.Context, claim entities.Claim, sources []entities.SourceRecord) (*entities.ClaimAnalysis, error) {
			return &entities.ClaimAnalysis{Pros: []string{"supported by study"}, Cons: []string{"small sample"}}, nil
		},
	}

	o := NewOrchestrator([]providers.ResearchBackend{backend}, fastRegistry("pubmed"), classifier, fastRetry(1), time.Second)

	enriched := o.Run(context.Background(), testClaim(), nil, []entities.BackendCall{
		{Backend: "pubmed", Query: "q"},
	})

	if len(enriched.Analysis.Pros) != 1 || len(enriched.Analysis.Cons) != 1 {
		t.Errorf("analysis not attached: %+v", enriched.Analysis)
	}
	if enriched.Sources[entities.SourceTypeMedical] == nil {
		t.Error("pubmed records should be grouped under the medical source type")
	}
}
