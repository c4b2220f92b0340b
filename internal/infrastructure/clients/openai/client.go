package openai

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/claimlens/backend/internal/domain/entities"
	"github.com/claimlens/backend/internal/domain/providers"
	"github.com/claimlens/backend/pkg/config"
	apperrors "github.com/claimlens/backend/pkg/errors"
)

const (
	defaultBaseURL     = "https://api.openai.com/v1"
	maxProsConsSources = 20

	// Strategy and query results are cached for a day; claims do not
	// change classification between requests.
	classifierCacheSeconds = 86400
)

// Client implements the claim classifier on the OpenAI responses API.
type Client struct {
	apiKey     string
	model      string
	baseURL    string
	httpClient *http.Client
	limiter    *tokenBucket
	cache      providers.CacheProvider
}

// NewClient creates a new OpenAI client.
func NewClient(cfg *config.OpenAIConfig) (*Client, error) {
	if cfg == nil || cfg.APIKey == "" {
		return nil, errors.New("openai api key is required")
	}

	model := cfg.Model
	if model == "" {
		model = "gpt-4o-mini"
	}

	limiter := newTokenBucket(cfg.RateLimitRPM, cfg.RateLimitBurst)

	return &Client{
		apiKey:  cfg.APIKey,
		model:   model,
		baseURL: defaultBaseURL,
		httpClient: &http.Client{
			Timeout: 20 * time.Second,
		},
		limiter: limiter,
	}, nil
}

// SetCache enables caching of strategy and query results.
func (c *Client) SetCache(cache providers.CacheProvider) {
	c.cache = cache
}

// Strategy classifies a claim and selects research backends.
func (c *Client) Strategy(ctx context.Context, claim entities.Claim) (*providers.ResearchStrategy, error) {
	key := cacheKey("strategy", claimText(claim))
	if cached := c.cachedJSON(ctx, key); cached != nil {
		if parsed, err := parseStrategyPayload(cached); err == nil {
			return &providers.ResearchStrategy{Categories: parsed.Categories, Backends: parsed.Backends}, nil
		}
	}

	text, err := c.complete(ctx, strategySystemPrompt, buildStrategyUserPrompt(claim), 300)
	if err != nil {
		return nil, err
	}

	parsed, err := parseStrategyPayload([]byte(text))
	if err != nil {
		return nil, err
	}
	if len(parsed.Backends) == 0 {
		return nil, errors.New("strategy response selected no backends")
	}

	c.storeJSON(ctx, key, []byte(text))
	return &providers.ResearchStrategy{Categories: parsed.Categories, Backends: parsed.Backends}, nil
}

// Queries generates one search query per selected backend.
func (c *Client) Queries(ctx context.Context, claim entities.Claim, backends []string) (map[string]string, error) {
	if len(backends) == 0 {
		return map[string]string{}, nil
	}

	key := cacheKey("queries", claimText(claim)+"|"+strings.Join(backends, ","))
	if cached := c.cachedJSON(ctx, key); cached != nil {
		if parsed, err := parseQueriesPayload(cached); err == nil {
			return parsed, nil
		}
	}

	text, err := c.complete(ctx, queriesSystemPrompt, buildQueriesUserPrompt(claim, backends), 400)
	if err != nil {
		return nil, err
	}

	parsed, err := parseQueriesPayload([]byte(text))
	if err != nil {
		return nil, err
	}

	c.storeJSON(ctx, key, []byte(text))
	return parsed, nil
}

// ProsCons extracts supporting and opposing points from the sources.
// Never cached; the source list differs per research run.
func (c *Client) ProsCons(ctx context.Context, claim entities.Claim, sources []entities.SourceRecord) (*entities.ClaimAnalysis, error) {
	if len(sources) == 0 {
		return &entities.ClaimAnalysis{Pros: []string{}, Cons: []string{}}, nil
	}

	text, err := c.complete(ctx, prosConsSystemPrompt, buildProsConsUserPrompt(claim, sources), 800)
	if err != nil {
		return nil, err
	}

	return parseProsConsPayload([]byte(text))
}

type responseContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responseOutput struct {
	Content []responseContent `json:"content"`
}

type responseEnvelope struct {
	Output []responseOutput `json:"output"`
}

// complete runs one responses-API call and returns the cleaned output
// text.
func (c *Client) complete(ctx context.Context, systemPrompt, userPrompt string, maxTokens int) (string, error) {
	if c.limiter != nil {
		waitStart := time.Now()
		if err := c.limiter.Wait(ctx); err != nil {
			recordOpenAIMetric(ctx, c.model, 0, 0, err)
			return "", err
		}
		recordOpenAIRateLimitWait(ctx, c.model, time.Since(waitStart))
	}

	payload := map[string]interface{}{
		"model": c.model,
		"input": []map[string]string{
			{"role": "system", "content": systemPrompt},
			{"role": "user", "content": userPrompt},
		},
		"temperature":       0.2,
		"max_output_tokens": maxTokens,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/responses", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		recordOpenAIMetric(ctx, c.model, 0, time.Since(start), err)
		return "", apperrors.NewTransientError("openai request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		statusErr := fmt.Errorf("openai request failed with status %d", resp.StatusCode)
		recordOpenAIMetric(ctx, c.model, resp.StatusCode, time.Since(start), statusErr)
		if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
			return "", apperrors.NewPermanentError("openai rejected credentials", statusErr)
		}
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", apperrors.NewTransientError("openai unavailable", statusErr)
		}
		return "", apperrors.NewPermanentError("openai rejected request", statusErr)
	}

	var envelope responseEnvelope
	if err := json.NewDecoder(resp.Body).Decode(&envelope); err != nil {
		recordOpenAIMetric(ctx, c.model, resp.StatusCode, time.Since(start), err)
		return "", err
	}

	var text string
	for _, out := range envelope.Output {
		for _, content := range out.Content {
			if content.Type == "output_text" && content.Text != "" {
				text = content.Text
				break
			}
		}
		if text != "" {
			break
		}
	}

	if text == "" {
		missingErr := errors.New("openai response missing output text")
		recordOpenAIMetric(ctx, c.model, resp.StatusCode, time.Since(start), missingErr)
		return "", missingErr
	}

	recordOpenAIMetric(ctx, c.model, resp.StatusCode, time.Since(start), nil)
	return cleanMarkdownFences(text), nil
}

// cleanMarkdownFences strips a wrapping code block if the model added
// one despite the JSON-only instruction.
func cleanMarkdownFences(text string) string {
	cleaned := text
	if strings.HasPrefix(cleaned, "```json") {
		cleaned = strings.TrimPrefix(cleaned, "```json")
		cleaned = strings.TrimSuffix(cleaned, "```")
	} else if strings.HasPrefix(cleaned, "```") {
		cleaned = strings.TrimPrefix(cleaned, "```")
		cleaned = strings.TrimSuffix(cleaned, "```")
	}
	return strings.TrimSpace(cleaned)
}

func cacheKey(kind, input string) string {
	sum := sha256.Sum256([]byte(input))
	return "classifier:" + kind + ":" + hex.EncodeToString(sum[:16])
}

func (c *Client) cachedJSON(ctx context.Context, key string) []byte {
	if c.cache == nil {
		return nil
	}
	data, err := c.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	return data
}

func (c *Client) storeJSON(ctx context.Context, key string, data []byte) {
	if c.cache == nil {
		return
	}
	_ = c.cache.Set(ctx, key, data, classifierCacheSeconds)
}

func newTokenBucket(rpm int, burst int) *tokenBucket {
	if rpm == 0 {
		rpm = 60
	}
	if rpm < 0 {
		return nil
	}
	if burst <= 0 {
		burst = 5
	}
	return newTokenBucketWithRate(rpm, burst)
}

type tokenBucket struct {
	tokens chan struct{}
}

func newTokenBucketWithRate(rpm int, burst int) *tokenBucket {
	bucket := &tokenBucket{
		tokens: make(chan struct{}, burst),
	}

	for i := 0; i < burst; i++ {
		bucket.tokens <- struct{}{}
	}

	interval := time.Minute / time.Duration(rpm)
	if interval <= 0 {
		interval = time.Millisecond
	}

	ticker := time.NewTicker(interval)
	go func() {
		for range ticker.C {
			select {
			case bucket.tokens <- struct{}{}:
			default:
			}
		}
	}()

	return bucket
}

func (b *tokenBucket) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-b.tokens:
		return nil
	}
}

type openAIMetrics struct {
	requestCount    metric.Int64Counter
	requestDuration metric.Float64Histogram
	requestErrors   metric.Int64Counter
	rateLimitWait   metric.Float64Histogram
}

var openaiMetricsInit = false
var openaiMetrics openAIMetrics

func ensureOpenAIMetrics() {
	if openaiMetricsInit {
		return
	}
	meter := otel.Meter("github.com/claimlens/backend/openai")

	requestCount, err := meter.Int64Counter(
		"ai.openai.request.count",
		metric.WithDescription("Number of OpenAI requests"),
	)
	if err != nil {
		return
	}
	requestDuration, err := meter.Float64Histogram(
		"ai.openai.request.duration",
		metric.WithDescription("OpenAI request duration in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}
	requestErrors, err := meter.Int64Counter(
		"ai.openai.request.errors",
		metric.WithDescription("Number of OpenAI request errors"),
	)
	if err != nil {
		return
	}
	rateLimitWait, err := meter.Float64Histogram(
		"ai.openai.rate_limit.wait",
		metric.WithDescription("Time spent waiting for OpenAI rate limiter in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return
	}

	openaiMetrics = openAIMetrics{
		requestCount:    requestCount,
		requestDuration: requestDuration,
		requestErrors:   requestErrors,
		rateLimitWait:   rateLimitWait,
	}
	openaiMetricsInit = true
}

func recordOpenAIMetric(ctx context.Context, model string, statusCode int, duration time.Duration, err error) {
	ensureOpenAIMetrics()
	if !openaiMetricsInit {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	if statusCode > 0 {
		attrs = append(attrs, attribute.Int("http.status_code", statusCode))
	}

	openaiMetrics.requestCount.Add(ctx, 1, metric.WithAttributes(attrs...))
	openaiMetrics.requestDuration.Record(ctx, float64(duration.Milliseconds()), metric.WithAttributes(attrs...))
	if err != nil {
		openaiMetrics.requestErrors.Add(ctx, 1, metric.WithAttributes(attrs...))
	}
}

func recordOpenAIRateLimitWait(ctx context.Context, model string, wait time.Duration) {
	ensureOpenAIMetrics()
	if !openaiMetricsInit {
		return
	}
	attrs := []attribute.KeyValue{
		attribute.String("ai.provider", "openai"),
		attribute.String("ai.model", model),
	}
	openaiMetrics.rateLimitWait.Record(ctx, float64(wait.Milliseconds()), metric.WithAttributes(attrs...))
}
