package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/claimlens/backend/internal/domain/entities"
	"github.com/claimlens/backend/pkg/config"
	apperrors "github.com/claimlens/backend/pkg/errors"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := NewClient(&config.OpenAIConfig{APIKey: "test-key", Model: "gpt-4o-mini", RateLimitRPM: -1})
	require.NoError(t, err)
	client.baseURL = server.URL
	return client
}

func outputTextResponse(text string) string {
	envelope := map[string]interface{}{
		"output": []map[string]interface{}{
			{"content": []map[string]string{{"type": "output_text", "text": text}}},
		},
	}
	data, _ := json.Marshal(envelope)
	return string(data)
}

type memoryCache struct {
	mu    sync.Mutex
	items map[string][]byte
}

func newMemoryCache() *memoryCache {
	return &memoryCache{items: map[string][]byte{}}
}

func (c *memoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if data, ok := c.items[key]; ok {
		return data, nil
	}
	return nil, apperrors.NewNotFoundError("key not found: " + key)
}

func (c *memoryCache) Set(ctx context.Context, key string, value []byte, expirationSeconds int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items[key] = value
	return nil
}

func (c *memoryCache) Delete(ctx context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.items, key)
	return nil
}

func (c *memoryCache) Exists(ctx context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.items[key]
	return ok, nil
}

func TestClient_Strategy(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		fmt.Fprint(w, outputTextResponse(`{"categories":["medicine"],"backends":["pubmed","semantic_scholar"]}`))
	})

	strategy, err := client.Strategy(context.Background(), entities.Claim{ID: "c1", TextEN: "vitamin D prevents flu"})
	require.NoError(t, err)
	assert.Equal(t, []string{"medicine"}, strategy.Categories)
	assert.Equal(t, []string{"pubmed", "semantic_scholar"}, strategy.Backends)
}

func TestClient_Strategy_StripsMarkdownFences(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, outputTextResponse("```json\n{\"categories\":[\"economics\"],\"backends\":[\"oecd\"]}\n```"))
	})

	strategy, err := client.Strategy(context.Background(), entities.Claim{TextEN: "gdp doubled"})
	require.NoError(t, err)
	assert.Equal(t, []string{"oecd"}, strategy.Backends)
}

func TestClient_Strategy_EmptyBackendsRejected(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, outputTextResponse(`{"categories":["misc"],"backends":[]}`))
	})

	_, err := client.Strategy(context.Background(), entities.Claim{TextEN: "x"})
	assert.Error(t, err)
}

func TestClient_Strategy_CachesResult(t *testing.T) {
	var calls int
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		fmt.Fprint(w, outputTextResponse(`{"categories":["medicine"],"backends":["pubmed"]}`))
	})
	client.SetCache(newMemoryCache())

	claim := entities.Claim{TextEN: "same claim"}
	for i := 0; i < 3; i++ {
		strategy, err := client.Strategy(context.Background(), claim)
		require.NoError(t, err)
		assert.Equal(t, []string{"pubmed"}, strategy.Backends)
	}
	assert.Equal(t, 1, calls)
}

func TestClient_Queries(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, outputTextResponse(`{"pubmed":"vitamin d influenza prevention","oecd":"health spending influenza"}`))
	})

	queries, err := client.Queries(context.Background(), entities.Claim{TextEN: "x"}, []string{"pubmed", "oecd"})
	require.NoError(t, err)
	assert.Equal(t, "vitamin d influenza prevention", queries["pubmed"])
	assert.Len(t, queries, 2)
}

func TestClient_Queries_NoBackends(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected for an empty backend list")
	})

	queries, err := client.Queries(context.Background(), entities.Claim{TextEN: "x"}, nil)
	require.NoError(t, err)
	assert.Empty(t, queries)
}

func TestClient_ProsCons(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, outputTextResponse(`{"pros":["study supports it"],"cons":[]}`))
	})

	analysis, err := client.ProsCons(context.Background(), entities.Claim{TextEN: "x"},
		[]entities.SourceRecord{{Title: "Study", Backend: "pubmed"}})
	require.NoError(t, err)
	assert.Equal(t, []string{"study supports it"}, analysis.Pros)
	assert.NotNil(t, analysis.Cons)
}

func TestClient_ProsCons_NoSources(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected without sources")
	})

	analysis, err := client.ProsCons(context.Background(), entities.Claim{TextEN: "x"}, nil)
	require.NoError(t, err)
	assert.Empty(t, analysis.Pros)
	assert.Empty(t, analysis.Cons)
}

func TestClient_ErrorTaxonomy(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		retryable bool
	}{
		{"unauthorized", http.StatusUnauthorized, false},
		{"rate limited", http.StatusTooManyRequests, true},
		{"server error", http.StatusInternalServerError, true},
		{"bad request", http.StatusBadRequest, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := client.Strategy(context.Background(), entities.Claim{TextEN: "x"})
			require.Error(t, err)
			assert.Equal(t, tt.retryable, apperrors.IsRetryable(err))
		})
	}
}
