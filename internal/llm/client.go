// Package llm is the HTTP client for the LLM service plus structured
// output handling. All calls are rate limited and budget checked before
// they leave the process.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/budget"
	"github.com/Kocoro-lab/Meridian/internal/ratecontrol"
	"go.uber.org/zap"
)

// StructuredOutputError reports that the model never produced valid
// JSON for the requested schema.
type StructuredOutputError struct {
	Attempts int
	Last     error
}

func (e *StructuredOutputError) Error() string {
	return fmt.Sprintf("failed to generate valid structured output after %d attempts: %v", e.Attempts, e.Last)
}

func (e *StructuredOutputError) Unwrap() error { return e.Last }

// completionRequest is the HTTP request body for the LLM service.
type completionRequest struct {
	System      string  `json:"system"`
	Prompt      string  `json:"prompt"`
	Temperature float64 `json:"temperature"`
}

// completionResponse is the HTTP response from the LLM service.
type completionResponse struct {
	Completion   string `json:"completion"`
	Model        string `json:"model"`
	Provider     string `json:"provider"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
}

// Client talks to the LLM service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *ratecontrol.Limiter
	breaker    *ratecontrol.Breaker
	budget     *budget.TokenBudget
	logger     *zap.Logger
}

// NewClient creates an LLM client. The budget may be nil for callers
// outside a run.
func NewClient(baseURL string, b *budget.TokenBudget, logger *zap.Logger) *Client {
	if baseURL == "" {
		baseURL = os.Getenv("LLM_SERVICE_URL")
	}
	if baseURL == "" {
		baseURL = "http://llm-service:8000"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 30 * time.Second},
		limiter:    ratecontrol.NewLimiterForService("llm"),
		breaker:    ratecontrol.NewBreaker("llm", ratecontrol.DefaultBreakerConfig(), logger),
		budget:     b,
		logger:     logger,
	}
}

// Complete sends one prompt and returns the completion text along with
// the total tokens spent. Budget ceilings are checked against an
// estimate before the call and actual usage is recorded after.
func (c *Client) Complete(ctx context.Context, systemPrompt, prompt string) (string, int, error) {
	estimated := budget.Estimate(systemPrompt + prompt)
	iteration := 1
	if c.budget != nil {
		iteration = c.budget.CurrentIteration()
		if err := c.budget.Check(ctx, iteration, estimated); err != nil {
			return "", 0, err
		}
	}
	if err := c.limiter.Acquire(ctx); err != nil {
		return "", 0, fmt.Errorf("llm rate limit wait: %w", err)
	}

	reqBody := completionRequest{
		System:      systemPrompt,
		Prompt:      prompt,
		Temperature: 0.1,
	}
	bodyBytes, err := json.Marshal(reqBody)
	if err != nil {
		return "", 0, fmt.Errorf("failed to marshal completion request: %w", err)
	}
	url := fmt.Sprintf("%s/agent/completion", c.baseURL)

	var llmResp completionResponse
	op := func() error {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(bodyBytes))
		if err != nil {
			return fmt.Errorf("failed to create completion request: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")

		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return fmt.Errorf("failed to call llm service: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
			return &ratecontrol.HTTPStatusError{StatusCode: resp.StatusCode, Body: string(body)}
		}
		if err := json.NewDecoder(resp.Body).Decode(&llmResp); err != nil {
			return fmt.Errorf("failed to decode completion response: %w", err)
		}
		return nil
	}
	if err := c.breaker.Execute(ctx, func() error { return ratecontrol.Retry(ctx, op) }); err != nil {
		return "", 0, err
	}
	if llmResp.Completion == "" {
		return "", 0, fmt.Errorf("llm service returned empty completion")
	}

	total := llmResp.InputTokens + llmResp.OutputTokens
	if total == 0 {
		total = budget.Estimate(prompt + llmResp.Completion)
	}
	if c.budget != nil {
		c.budget.Record(iteration, total)
	}
	c.logger.Debug("Completion received",
		zap.String("model", llmResp.Model),
		zap.Int("input_tokens", llmResp.InputTokens),
		zap.Int("output_tokens", llmResp.OutputTokens),
	)
	return llmResp.Completion, total, nil
}

const structuredSystemPrompt = "You are a structured data generator. Always respond with valid JSON only."

// GenerateStructured prompts for JSON and unmarshals the reply into
// out. One retry with a stricter instruction on malformed output; the
// returned error is a *StructuredOutputError when both attempts fail.
func (c *Client) GenerateStructured(ctx context.Context, prompt string, out interface{}) error {
	const maxRetries = 1
	instruction := "\n\nRespond ONLY with valid JSON matching the specified schema. No explanations."

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			instruction = "\n\nYOU MUST respond ONLY with valid JSON. " +
				"No markdown, no text, no explanations. " +
				"Pure JSON only matching the schema provided."
		}
		raw, _, err := c.Complete(ctx, structuredSystemPrompt, prompt+instruction)
		if err != nil {
			// transport and budget failures are not fixable by reprompting
			return err
		}
		if err := json.Unmarshal([]byte(ExtractJSON(raw)), out); err != nil {
			lastErr = err
			c.logger.Warn("Structured output validation failed",
				zap.Int("attempt", attempt+1),
				zap.Error(err),
			)
			continue
		}
		return nil
	}
	return &StructuredOutputError{Attempts: maxRetries + 1, Last: lastErr}
}

var (
	jsonFenceRE = regexp.MustCompile("(?s)```(?:json)?\\s*(\\{.*?\\}|\\[.*?\\])\\s*```")
	jsonBareRE  = regexp.MustCompile(`(?s)(\{.*\}|\[.*\])`)
)

// ExtractJSON pulls the JSON payload out of a model reply: fenced code
// block first, then the widest brace or bracket span, then the raw text.
func ExtractJSON(text string) string {
	text = strings.TrimSpace(text)
	if m := jsonFenceRE.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	if m := jsonBareRE.FindStringSubmatch(text); len(m) > 1 {
		return strings.TrimSpace(m[1])
	}
	return text
}
