package agents

import (
	"context"
	"fmt"
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/evaluator"
	"github.com/Kocoro-lab/Meridian/internal/llm"
	"go.uber.org/zap"
)

// GapAgent performs the qualitative half of evaluation: refined
// queries, missing aspects, and plan updates.
type GapAgent struct {
	client *llm.Client
	logger *zap.Logger
}

// NewGapAgent creates a gap analyzer.
func NewGapAgent(client *llm.Client, logger *zap.Logger) *GapAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GapAgent{client: client, logger: logger}
}

type gapAnalysisOutput struct {
	RefinedQueries []string `json:"refined_queries"`
	MissingAspects []string `json:"missing_aspects"`
	PlanUpdates    []string `json:"plan_updates"`
}

// AnalyzeGaps asks the model where the research is thin.
func (a *GapAgent) AnalyzeGaps(ctx context.Context, objective string, subtopics []string, weak []string, insightCount, contradictionCount int) (evaluator.GapAnalysis, error) {
	weakList := "None"
	if len(weak) > 0 {
		weakList = strings.Join(weak, ", ")
	}

	prompt := fmt.Sprintf(`You are a research evaluation expert performing gap analysis.

RESEARCH OBJECTIVE: %s

SUBTOPICS: %s

WEAK SUBTOPICS (status == weak): %s

TOTAL INSIGHTS EXTRACTED: %d
TOTAL CONTRADICTIONS FOUND: %d

EVALUATION TASK:
Analyze the research completeness and gaps:

1) Generate 2-4 refined_queries to address weaknesses.
2) Identify 2-5 missing_aspects not covered by current sources.
3) Suggest 1-3 plan_updates for the research strategy.

Focus on:
- Filling gaps in weak subtopics.
- Addressing contradictions.
- Improving breadth and credibility.

STRICT OUTPUT RULES:
- Respond ONLY with valid JSON.
- refined_queries must be a list of plain strings.
- Each refined_query must be a single search query string.
- Do NOT return objects inside refined_queries.
- Do NOT include keys like "query", "type", or "description".
- missing_aspects must be a list of plain strings.
- plan_updates must be a list of plain strings.
- Do NOT add extra fields.
- Do NOT include markdown.
- Do NOT include commentary.`,
		objective, strings.Join(subtopics, ", "), weakList, insightCount, contradictionCount)

	var out gapAnalysisOutput
	if err := a.client.GenerateStructured(ctx, prompt, &out); err != nil {
		return evaluator.GapAnalysis{}, err
	}
	return evaluator.GapAnalysis{
		RefinedQueries: out.RefinedQueries,
		MissingAspects: out.MissingAspects,
		IdentifiedGaps: out.MissingAspects,
		PlanUpdates:    out.PlanUpdates,
	}, nil
}
