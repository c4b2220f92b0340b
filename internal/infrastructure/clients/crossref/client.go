package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/claimlens/backend/internal/domain/entities"
	apperrors "github.com/claimlens/backend/pkg/errors"
)

const (
	defaultBaseURL = "https://api.crossref.org"
	backendName    = "crossref"
)

// Client implements the crossref scholarly-works research backend.
type Client struct {
	baseURL    string
	mailto     string
	httpClient *http.Client
}

// NewClient creates a new crossref client. The mailto address is sent
// with every request per the crossref polite-pool etiquette; empty is
// allowed.
func NewClient(mailto string) *Client {
	return &Client{
		baseURL: defaultBaseURL,
		mailto:  mailto,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

// Name identifies the backend inside the resilience registry.
func (c *Client) Name() string {
	return backendName
}

type worksItem struct {
	Title    []string `json:"title"`
	URL      string   `json:"URL"`
	DOI      string   `json:"DOI"`
	Abstract string   `json:"abstract"`
	Type     string   `json:"type"`
}

type worksMessage struct {
	Items []worksItem `json:"items"`
}

type worksEnvelope struct {
	Message worksMessage `json:"message"`
}

// Search queries the works endpoint and maps items to source records.
func (c *Client) Search(ctx context.Context, query string, maxResults int) ([]entities.SourceRecord, error) {
	if maxResults <= 0 {
		maxResults = 3
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", strconv.Itoa(maxResults))
	if c.mailto != "" {
		params.Set("mailto", c.mailto)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/works?"+params.Encode(), nil)
	if err != nil {
		return nil, apperrors.NewInternalError("failed to build crossref request", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, apperrors.NewTransientError("crossref request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("crossref returned status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, apperrors.NewTransientError("crossref unavailable", statusErr)
		}
		return nil, apperrors.NewPermanentError("crossref rejected request", statusErr)
	}

	var envelope worksEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		return nil, apperrors.NewTransientError("failed to decode crossref response", err)
	}

	records := make([]entities.SourceRecord, 0, len(envelope.Message.Items))
	for _, item := range envelope.Message.Items {
		title := ""
		if len(item.Title) > 0 {
			title = item.Title[0]
		}
		if title == "" {
			continue
		}

		link := item.URL
		if link == "" && item.DOI != "" {
			link = "https://doi.org/" + item.DOI
		}

		records = append(records, entities.SourceRecord{
			Title:      title,
			URL:        link,
			Snippet:    cleanAbstract(item.Abstract),
			Backend:    backendName,
			SourceType: entities.SourceTypeForBackend(backendName),
			Metadata: map[string]string{
				"doi":  item.DOI,
				"type": item.Type,
			},
		})
	}

	return records, nil
}

// cleanAbstract strips the JATS XML tags crossref embeds in abstracts
// and truncates to a snippet length.
func cleanAbstract(abstract string) string {
	if abstract == "" {
		return ""
	}

	var b strings.Builder
	inTag := false
	for _, r := range abstract {
		switch {
		case r == '<':
			inTag = true
		case r == '>':
			inTag = false
		case !inTag:
			b.WriteRune(r)
		}
	}

	cleaned := strings.Join(strings.Fields(b.String()), " ")
	const maxSnippet = 500
	if runes := []rune(cleaned); len(runes) > maxSnippet {
		cleaned = string(runes[:maxSnippet])
	}
	return cleaned
}
