package entities

// SourceType categorizes research sources by the kind of evidence they carry.
type SourceType string

const (
	SourceTypeScientific  SourceType = "scientific"
	SourceTypeMedical     SourceType = "medical"
	SourceTypeStatistical SourceType = "statistical"
)

// BackendCall identifies one (backend, query) pair to execute for a claim.
// An empty query marks the call as a no-op. Immutable once built.
type BackendCall struct {
	Backend    string `json:"backend"`
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

// SourceRecord is one item returned by a research backend. Records are
// never mutated after creation; ownership passes from the backend to the
// aggregator and then to the enriched claim.
type SourceRecord struct {
	Title      string            `json:"title"`
	URL        string            `json:"url"`
	Snippet    string            `json:"snippet,omitempty"`
	Backend    string            `json:"backend"`
	SourceType SourceType        `json:"source_type"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// backendSourceTypes maps known backends to the evidence category their
// records fall into. Unknown backends default to scientific.
var backendSourceTypes = map[string]SourceType{
	"pubmed":           SourceTypeMedical,
	"arxiv":            SourceTypeScientific,
	"semantic_scholar": SourceTypeScientific,
	"crossref":         SourceTypeScientific,
	"oecd":             SourceTypeStatistical,
	"world_bank":       SourceTypeStatistical,
}

// SourceTypeForBackend returns the evidence category for a backend name.
func SourceTypeForBackend(backend string) SourceType {
	if st, ok := backendSourceTypes[backend]; ok {
		return st
	}
	return SourceTypeScientific
}
