// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/awnumar/memguard"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"
)

const (
	// defaultTavilyEndpoint is the production search API.
	defaultTavilyEndpoint = "https://api.tavily.com/search"

	// tavilyTimeout bounds one search round trip. Sub-queries run
	// concurrently, so a slow provider delays the run by at most this.
	tavilyTimeout = 30 * time.Second

	// maxResponseBytes caps how much of a response body is read.
	maxResponseBytes = 4 << 20

	searchTracerName = "briefing.search"
)

// TavilyClient implements Client against the Tavily search API.
//
// # Description
//
// The API key is sealed in a memguard enclave at construction and only
// decrypted for the microseconds each request body is built; it never
// sits in plain process memory between calls. Outbound queries pass
// through SanitizeQuery first, and a token-bucket limiter keeps the
// client inside the provider's request budget.
//
// Thread Safety: TavilyClient is safe for concurrent use.
type TavilyClient struct {
	endpoint string
	apiKey   *memguard.Enclave
	client   *http.Client
	limiter  *rate.Limiter
	logger   *slog.Logger
}

// TavilyOption configures a TavilyClient.
type TavilyOption func(*TavilyClient)

// WithEndpoint overrides the API endpoint. Tests point this at a local
// httptest server.
func WithEndpoint(url string) TavilyOption {
	return func(c *TavilyClient) { c.endpoint = url }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) TavilyOption {
	return func(c *TavilyClient) { c.client = hc }
}

// WithRateLimit sets the sustained requests-per-second budget and
// burst size.
func WithRateLimit(rps float64, burst int) TavilyOption {
	return func(c *TavilyClient) { c.limiter = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewTavilyClient creates a Tavily search client.
//
// # Inputs
//   - apiKey: the Tavily API key. Empty falls back to TAVILY_API_KEY;
//     missing both is an error because every request requires it.
//   - opts: functional options.
//
// # Outputs
//   - *TavilyClient: the configured client.
//   - error: non-nil when no API key is available.
func NewTavilyClient(apiKey string, opts ...TavilyOption) (*TavilyClient, error) {
	if apiKey == "" {
		apiKey = os.Getenv("TAVILY_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("TAVILY_API_KEY required for web search")
	}

	c := &TavilyClient{
		endpoint: defaultTavilyEndpoint,
		apiKey:   memguard.NewEnclave([]byte(apiKey)),
		client:   &http.Client{Timeout: tavilyTimeout},
		// Tavily's entry tier allows ~100 requests/minute; stay under it.
		limiter: rate.NewLimiter(rate.Limit(1.5), 5),
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// tavilyRequest is the subset of the search API request the workflow
// uses. include_answer stays false: synthesis is this service's job,
// not the provider's.
type tavilyRequest struct {
	APIKey        string `json:"api_key"`
	Query         string `json:"query"`
	MaxResults    int    `json:"max_results"`
	SearchDepth   string `json:"search_depth"`
	IncludeAnswer bool   `json:"include_answer"`
}

type tavilyResult struct {
	Title   string  `json:"title"`
	URL     string  `json:"url"`
	Content string  `json:"content"`
	Score   float64 `json:"score"`
}

type tavilyResponse struct {
	Results []tavilyResult `json:"results"`
}

// Search implements Client.
func (c *TavilyClient) Search(ctx context.Context, query string, maxResults int) ([]Result, error) {
	if maxResults <= 0 {
		maxResults = DefaultMaxResults
	}

	tracer := otel.Tracer(searchTracerName)
	ctx, span := tracer.Start(ctx, "search.tavily")
	defer span.End()

	sanitized := SanitizeQuery(query)
	span.SetAttributes(
		attribute.Int("search.max_results", maxResults),
		attribute.Bool("search.redacted", sanitized != query),
	)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, c.fail(span, query, fmt.Errorf("%w: rate limiter: %v", ErrSearchUnavailable, err))
	}

	payload, err := c.buildPayload(sanitized, maxResults)
	if err != nil {
		return nil, c.fail(span, query, fmt.Errorf("%w: build request: %v", ErrSearchUnavailable, err))
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, c.fail(span, query, fmt.Errorf("%w: build request: %v", ErrSearchUnavailable, err))
	}
	req.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		recordSearchMetrics(time.Since(start), 0, err)
		return nil, c.fail(span, query, fmt.Errorf("%w: %v", ErrSearchUnavailable, err))
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		err := fmt.Errorf("%w: tavily returned %d: %s", ErrSearchUnavailable, resp.StatusCode, string(body))
		recordSearchMetrics(time.Since(start), 0, err)
		return nil, c.fail(span, query, err)
	}

	var decoded tavilyResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(&decoded); err != nil {
		recordSearchMetrics(time.Since(start), 0, err)
		return nil, c.fail(span, query, fmt.Errorf("%w: decode response: %v", ErrSearchUnavailable, err))
	}

	results := make([]Result, 0, len(decoded.Results))
	for _, r := range decoded.Results {
		if r.Content == "" {
			continue
		}
		results = append(results, Result{
			Content: r.Content,
			Source:  r.URL,
			Title:   r.Title,
			Score:   r.Score,
		})
	}

	recordSearchMetrics(time.Since(start), len(results), nil)
	span.SetAttributes(attribute.Int("search.result_count", len(results)))
	c.logger.Debug("Tavily search completed",
		slog.String("query", SafeLogString(query)),
		slog.Int("results", len(results)),
		slog.Duration("duration", time.Since(start)))
	return results, nil
}

// buildPayload marshals the request with the key held in locked memory
// only for the lifetime of this call.
func (c *TavilyClient) buildPayload(query string, maxResults int) ([]byte, error) {
	keyBuf, err := c.apiKey.Open()
	if err != nil {
		return nil, fmt.Errorf("open api key enclave: %w", err)
	}
	defer keyBuf.Destroy()

	return json.Marshal(tavilyRequest{
		APIKey:        keyBuf.String(),
		Query:         query,
		MaxResults:    maxResults,
		SearchDepth:   "basic",
		IncludeAnswer: false,
	})
}

func (c *TavilyClient) fail(span trace.Span, query string, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, "search failed")
	c.logger.Warn("Tavily search failed",
		slog.String("query", SafeLogString(query)),
		slog.String("error", err.Error()))
	return err
}
