// Package search is the HTTP client for the web search service. Results
// come back as scored source metadata, rate limited and cached.
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/bias"
	"github.com/Kocoro-lab/Meridian/internal/cache"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/Kocoro-lab/Meridian/internal/ratecontrol"
	"go.uber.org/zap"
)

// searchRequest is the HTTP request body for the search service.
type searchRequest struct {
	Query      string `json:"query"`
	MaxResults int    `json:"max_results"`
}

type searchResultItem struct {
	Title         string `json:"title"`
	URL           string `json:"url"`
	Content       string `json:"content"`
	PublishedDate string `json:"published_date"`
}

type searchResponse struct {
	Results []searchResultItem `json:"results"`
}

// Client talks to the search service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratecontrol.Limiter
	breaker    *ratecontrol.Breaker
	cache      *cache.Cache
	logger     *zap.Logger
}

// NewClient creates a search client. c may be nil to disable caching.
func NewClient(baseURL string, c *cache.Cache, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("SEARCH_SERVICE_URL")
	}
	if baseURL == "" {
		baseURL = "http://search-service:8080"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
		limiter:    ratecontrol.NewLimiterForService("search"),
		breaker:    ratecontrol.NewBreaker("search", ratecontrol.DefaultBreakerConfig(), logger),
		cache:      c,
		logger:     logger,
	}
}

// SearchSubtopic retrieves up to maxResults sources for a query.
// Results without a URL are skipped; domain type and opinion score are
// derived locally rather than trusted from the service.
func (c *Client) SearchSubtopic(ctx context.Context, query string, maxResults int) ([]models.SourceMetadata, error) {
	key := cache.Key("search", query, strconv.Itoa(maxResults))
	if c.cache != nil {
		if raw, ok := c.cache.Get(ctx, key); ok {
			var cached []models.SourceMetadata
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached, nil
			}
		}
	}

	if err := c.limiter.Acquire(ctx); err != nil {
		return nil, fmt.Errorf("search rate limit wait: %w", err)
	}

	reqBody := searchRequest{Query: query, MaxResults: maxResults}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search request: %w", err)
	}
	endpoint := fmt.Sprintf("%s/search", c.baseURL)

	var searchResp searchResponse
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create search request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("failed to call search service: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &ratecontrol.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
			return fmt.Errorf("failed to decode search response: %w", err)
		}
		return nil
	}
	if err := c.breaker.Execute(ctx, func() error { return ratecontrol.Retry(ctx, op) }); err != nil {
		return nil, err
	}

	sources := make([]models.SourceMetadata, 0, len(searchResp.Results))
	for _, r := range searchResp.Results {
		if r.URL == "" {
			continue
		}
		summary := r.Content
		if len(summary) > 400 {
			summary = summary[:400]
		}
		var pubDate *string
		if r.PublishedDate != "" {
			d := r.PublishedDate
			pubDate = &d
		}
		src := models.SourceMetadata{
			Title:           r.Title,
			URL:             r.URL,
			Summary:         summary,
			PublicationDate: pubDate,
			DomainType:      InferDomainType(r.URL),
			AuthorPresent:   false,
			OpinionScore:    bias.ScoreSourceBias(summary, true),
		}
		if err := src.Validate(); err != nil {
			c.logger.Debug("Skipping invalid search result", zap.Error(err))
			continue
		}
		sources = append(sources, src)
	}

	c.logger.Debug("Search complete",
		zap.String("query", query),
		zap.Int("results", len(sources)),
	)

	if c.cache != nil && len(sources) > 0 {
		if raw, err := json.Marshal(sources); err == nil {
			c.cache.Set(ctx, key, raw)
		}
	}
	return sources, nil
}

var newsHosts = []string{"news", "cnn", "bbc", "reuters", "apnews", "nytimes"}
var blogHosts = []string{"blog", "medium", "substack", "wordpress"}

// InferDomainType buckets a URL by its host for credibility weighting.
func InferDomainType(rawURL string) models.DomainType {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return models.DomainOther
	}
	host := strings.ToLower(parsed.Host)

	switch {
	case strings.Contains(host, ".edu"):
		return models.DomainEdu
	case strings.Contains(host, ".gov"):
		return models.DomainGov
	case containsAny(host, newsHosts):
		return models.DomainNews
	case containsAny(host, blogHosts):
		return models.DomainBlog
	default:
		return models.DomainOther
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
