package providers

import (
	"context"

	"github.com/claimlens/backend/internal/domain/entities"
)

// ResearchBackend is one external research data source: query in,
// records out. Implementations must be side-effect-free beyond the
// network call itself and safe for concurrent use.
type ResearchBackend interface {
	// Name identifies the backend inside the resilience registry.
	Name() string

	// Search runs one query and returns at most maxResults records.
	// Errors should carry the pkg/errors transient/permanent taxonomy
	// so the retry policy can classify them.
	Search(ctx context.Context, query string, maxResults int) ([]entities.SourceRecord, error)
}

// ResearchStrategy is the classifier's verdict for one claim: the topic
// categories it falls under and the backends worth querying.
type ResearchStrategy struct {
	Categories []string `json:"categories"`
	Backends   []string `json:"backends"`
}

// Classifier is the language-model collaborator. The orchestrator treats
// any error as "no structured result", never as fatal.
type Classifier interface {
	// Strategy classifies a claim and selects research backends.
	Strategy(ctx context.Context, claim entities.Claim) (*ResearchStrategy, error)

	// Queries generates one optimized search query per selected backend.
	// Backends may be omitted from the result; a missing or empty query
	// skips that backend.
	Queries(ctx context.Context, claim entities.Claim, backends []string) (map[string]string, error)

	// ProsCons extracts supporting and opposing points for a claim from
	// the merged source list.
	ProsCons(ctx context.Context, claim entities.Claim, sources []entities.SourceRecord) (*entities.ClaimAnalysis, error)
}
