package agents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/bias"
	"github.com/Kocoro-lab/Meridian/internal/budget"
	"github.com/Kocoro-lab/Meridian/internal/cache"
	"github.com/Kocoro-lab/Meridian/internal/llm"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"go.uber.org/zap"
)

// AnalystAgent extracts insights, statistics, and contradictions for
// one subtopic from the shared source pool. Satisfies the execution
// engine's analysis contract.
type AnalystAgent struct {
	client *llm.Client
	cache  *cache.Cache
	logger *zap.Logger
}

// NewAnalystAgent creates an analyst. cache may be nil.
func NewAnalystAgent(client *llm.Client, c *cache.Cache, logger *zap.Logger) *AnalystAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AnalystAgent{client: client, cache: c, logger: logger}
}

type analysisOutput struct {
	Insights       []models.Insight       `json:"insights"`
	Statistics     []models.Statistic     `json:"statistics"`
	Contradictions []models.Contradiction `json:"contradictions"`
}

// AnalyzeSubtopic runs one extraction. Malformed model output degrades
// to empty results; budget exhaustion propagates so the run can
// terminate gracefully.
func (a *AnalystAgent) AnalyzeSubtopic(ctx context.Context, subtopic string, sources []models.SourceMetadata) ([]models.Insight, []models.Statistic, []models.Contradiction, error) {
	key := analysisCacheKey(subtopic, sources)
	if a.cache != nil {
		if raw, ok := a.cache.Get(ctx, key); ok {
			var cached analysisOutput
			if err := json.Unmarshal(raw, &cached); err == nil {
				return cached.Insights, cached.Statistics, cached.Contradictions, nil
			}
		}
	}

	prompt := buildAnalysisPrompt(subtopic, sources)

	var out analysisOutput
	if err := a.client.GenerateStructured(ctx, prompt, &out); err != nil {
		var exceeded *budget.ErrBudgetExceeded
		if errors.As(err, &exceeded) {
			return nil, nil, nil, err
		}
		var soErr *llm.StructuredOutputError
		if errors.As(err, &soErr) {
			a.logger.Error("Analyst extraction failed",
				zap.String("subtopic", subtopic),
				zap.Error(err),
			)
			return nil, nil, nil, nil
		}
		return nil, nil, nil, err
	}

	out.Insights = sanitizeInsights(subtopic, out.Insights)
	out.Statistics = sanitizeStatistics(subtopic, out.Statistics)
	out.Contradictions = sanitizeContradictions(subtopic, out.Contradictions, a.logger)

	a.logger.Info("Subtopic analysis complete",
		zap.String("subtopic", subtopic),
		zap.Int("insights", len(out.Insights)),
		zap.Int("statistics", len(out.Statistics)),
	)

	if a.cache != nil {
		if raw, err := json.Marshal(out); err == nil {
			a.cache.Set(ctx, key, raw)
		}
	}
	return out.Insights, out.Statistics, out.Contradictions, nil
}

func analysisCacheKey(subtopic string, sources []models.SourceMetadata) string {
	urls := make([]string, 0, len(sources))
	for _, s := range sources {
		urls = append(urls, s.URL)
	}
	sort.Strings(urls)
	parts := append([]string{"analysis", subtopic}, urls...)
	return cache.Key(parts...)
}

// sanitizeInsights clamps confidence, assigns a rule-based stance, and
// drops entries with empty statements.
func sanitizeInsights(subtopic string, insights []models.Insight) []models.Insight {
	var kept []models.Insight
	for _, in := range insights {
		if strings.TrimSpace(in.Statement) == "" {
			continue
		}
		if in.Subtopic == "" {
			in.Subtopic = subtopic
		}
		if in.Confidence < 0 {
			in.Confidence = 0
		}
		if in.Confidence > 1 {
			in.Confidence = 1
		}
		in.Stance = bias.DetectStance(in.Statement)
		kept = append(kept, in)
	}
	return kept
}

func sanitizeStatistics(subtopic string, stats []models.Statistic) []models.Statistic {
	var kept []models.Statistic
	for _, st := range stats {
		if strings.TrimSpace(st.Value) == "" {
			continue
		}
		if st.Subtopic == "" {
			st.Subtopic = subtopic
		}
		kept = append(kept, st)
	}
	return kept
}

// sanitizeContradictions drops entries without two real source URLs or
// with an out-of-range severity. Models invent placeholders here.
func sanitizeContradictions(subtopic string, cs []models.Contradiction, logger *zap.Logger) []models.Contradiction {
	var kept []models.Contradiction
	for _, c := range cs {
		if !isHTTPURL(c.SourceA) || !isHTTPURL(c.SourceB) {
			logger.Debug("Dropping contradiction without valid sources",
				zap.String("subtopic", subtopic),
			)
			continue
		}
		if c.Severity < 0 || c.Severity > 1 {
			continue
		}
		if c.Subtopic == "" {
			c.Subtopic = subtopic
		}
		kept = append(kept, c)
	}
	return kept
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

func buildAnalysisPrompt(subtopic string, sources []models.SourceMetadata) string {
	var b strings.Builder
	for _, s := range sources {
		summary := s.Summary
		if len(summary) > 300 {
			summary = summary[:300]
		}
		fmt.Fprintf(&b, "- Title: %s\n  URL: %s\n  Summary: %s\n", s.Title, s.URL, summary)
	}

	return fmt.Sprintf(`You are a research analyst synthesizing evidence from multiple sources.

SUBTOPIC: %s

AVAILABLE SOURCES:
%s

ANALYSIS TASK:
From these sources, identify and extract information relevant to the subtopic:
1. Key insights (3-6 statements with confidence scores 0.0-1.0)
2. Quantitative statistics where available
3. Explicit contradictions between sources (if any)
   Assign severity as a float between 0.0 (minor) and 1.0 (critical).
   Only include a contradiction if both claims come from valid sources with real URLs.
   If no valid contradiction exists, return an empty list.

When extracting insights and statistics, only include supporting_sources and source_urls that are actually relevant to the subtopic.
If no relevant information exists for this subtopic, return empty lists.

STRICT OUTPUT RULES:
- Respond ONLY with valid JSON.
- Insights must have: subtopic, statement, supporting_sources (list of URLs), confidence
- Statistics must have: subtopic, value, context, source_url
- Contradictions must have: subtopic, claim_a, source_a, claim_b, source_b, severity
- Do NOT include explanations or markdown.
- severity must be a numeric value between 0.0 and 1.0.
- Do NOT use words like "low", "medium", or "high".
- source_a and source_b must be valid absolute URLs.
- Do NOT use placeholders like "Not found", "N/A", or empty strings.
- If a valid second source URL is not available, do NOT include the contradiction.`,
		subtopic, b.String())
}
