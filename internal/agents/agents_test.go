package agents

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/cache"
	"github.com/Kocoro-lab/Meridian/internal/config"
	"github.com/Kocoro-lab/Meridian/internal/llm"
	"github.com/Kocoro-lab/Meridian/internal/memory"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/Kocoro-lab/Meridian/internal/planner"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubLLM serves canned completions in call order.
func stubLLM(t *testing.T, completions ...string) (*llm.Client, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&calls, 1)
		idx := int(n) - 1
		if idx >= len(completions) {
			idx = len(completions) - 1
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"completion":    completions[idx],
			"input_tokens":  50,
			"output_tokens": 20,
		})
	}))
	t.Cleanup(srv.Close)
	return llm.NewClient(srv.URL, nil, zap.NewNop()), &calls
}

func TestPlannerAgent_CreatePlan(t *testing.T) {
	client, _ := stubLLM(t, `{
		"research_objective": "Assess the economic impact of offshore wind",
		"subtopics": [
			{"name": "cost trends", "priority": 1, "status": "pending"},
			{"name": "grid integration", "priority": 2, "status": "pending"},
			{"name": "policy landscape", "priority": 9, "status": "pending"},
			{"name": "", "priority": 2, "status": "pending"}
		],
		"key_questions": ["What drives levelized cost?", "  ", "How does policy shape deployment?"],
		"metrics_required": ["LCOE per MWh", "installed capacity GW"]
	}`)

	a := NewPlannerAgent(client, zap.NewNop())
	plan, err := a.CreatePlan(context.Background(), "offshore wind economics")
	require.NoError(t, err)
	require.Equal(t, "Assess the economic impact of offshore wind", plan.Objective)
	require.Len(t, plan.Subtopics, 3, "empty name dropped")
	require.Equal(t, 2, plan.Subtopics[2].Priority, "out-of-range priority clamped")
	for _, st := range plan.Subtopics {
		require.Equal(t, models.StatusPending, st.Status)
	}
	require.Equal(t, []string{"What drives levelized cost?", "How does policy shape deployment?"}, plan.KeyQuestions)
	require.Equal(t, []string{"LCOE per MWh", "installed capacity GW"}, plan.MetricsRequired)
}

func TestPlannerAgent_EmptyPlanIsAnError(t *testing.T) {
	client, _ := stubLLM(t, `{"research_objective": "x", "subtopics": []}`)
	a := NewPlannerAgent(client, zap.NewNop())
	_, err := a.CreatePlan(context.Background(), "query")
	require.Error(t, err)
}

func TestAnalystAgent_SanitizesOutput(t *testing.T) {
	client, _ := stubLLM(t, `{
		"insights": [
			{"subtopic": "", "statement": "The market shows remarkable growth and clear benefit.", "supporting_sources": ["https://a.example"], "confidence": 1.4},
			{"subtopic": "s", "statement": "", "confidence": 0.5}
		],
		"statistics": [
			{"subtopic": "", "value": "42%", "context": "adoption", "source_url": "https://a.example"},
			{"subtopic": "s", "value": "", "context": "", "source_url": ""}
		],
		"contradictions": [
			{"subtopic": "s", "claim_a": "up", "source_a": "https://a.example", "claim_b": "down", "source_b": "N/A", "severity": 0.5},
			{"subtopic": "s", "claim_a": "up", "source_a": "https://a.example", "claim_b": "down", "source_b": "https://b.example", "severity": 0.5}
		]
	}`)

	a := NewAnalystAgent(client, nil, zap.NewNop())
	insights, stats, contradictions, err := a.AnalyzeSubtopic(context.Background(), "market size", nil)
	require.NoError(t, err)

	require.Len(t, insights, 1)
	require.Equal(t, "market size", insights[0].Subtopic)
	require.Equal(t, 1.0, insights[0].Confidence, "confidence clamped")
	require.Equal(t, models.StancePro, insights[0].Stance, "stance assigned by rule")

	require.Len(t, stats, 1)
	require.Equal(t, "market size", stats[0].Subtopic)

	require.Len(t, contradictions, 1, "placeholder source dropped")
	require.Equal(t, "https://b.example", contradictions[0].SourceB)
}

func TestAnalystAgent_MalformedOutputDegradesToEmpty(t *testing.T) {
	client, _ := stubLLM(t, "not json at all")
	a := NewAnalystAgent(client, nil, zap.NewNop())
	insights, stats, contradictions, err := a.AnalyzeSubtopic(context.Background(), "s", nil)
	require.NoError(t, err)
	require.Empty(t, insights)
	require.Empty(t, stats)
	require.Empty(t, contradictions)
}

func TestAnalystAgent_CachesBySubtopicAndSources(t *testing.T) {
	client, calls := stubLLM(t, `{
		"insights": [{"subtopic": "s", "statement": "Steady growth reported across the sector.", "supporting_sources": ["https://a.example"], "confidence": 0.8}],
		"statistics": [],
		"contradictions": []
	}`)

	c := cache.New(16, time.Hour)
	a := NewAnalystAgent(client, c, zap.NewNop())
	sources := []models.SourceMetadata{{URL: "https://a.example", Title: "A", DomainType: models.DomainNews}}

	first, _, _, err := a.AnalyzeSubtopic(context.Background(), "s", sources)
	require.NoError(t, err)
	second, _, _, err := a.AnalyzeSubtopic(context.Background(), "s", sources)
	require.NoError(t, err)

	require.Equal(t, first, second)
	require.Equal(t, int32(1), atomic.LoadInt32(calls), "second call served from cache")
}

func TestGapAgent_AnalyzeGaps(t *testing.T) {
	client, _ := stubLLM(t, `{
		"refined_queries": ["offshore wind LCOE 2025"],
		"missing_aspects": ["supply chain constraints"],
		"plan_updates": ["prioritize cost trends"]
	}`)

	a := NewGapAgent(client, zap.NewNop())
	out, err := a.AnalyzeGaps(context.Background(), "objective", []string{"cost trends"}, []string{"cost trends"}, 4, 1)
	require.NoError(t, err)
	require.Equal(t, []string{"offshore wind LCOE 2025"}, out.RefinedQueries)
	require.Equal(t, []string{"supply chain constraints"}, out.MissingAspects)
	require.Equal(t, out.MissingAspects, out.IdentifiedGaps)
	require.Equal(t, []string{"prioritize cost trends"}, out.PlanUpdates)
}

func TestWriterAgent_GenerateReport(t *testing.T) {
	client, _ := stubLLM(t, `{
		"executive_summary": "Findings are positive overall.",
		"structured_sections": [{"title": "Background", "content": "Context."}],
		"risk_assessment": ["Sparse data on costs."],
		"recommendations": ["Monitor auctions."]
	}`)

	mem := memory.New()
	mem.AddSources([]models.SourceMetadata{
		{URL: "https://b.example", Title: "B", DomainType: models.DomainNews},
		{URL: "https://a.example", Title: "A", DomainType: models.DomainGov},
	})
	plan := &planner.Plan{Objective: "obj", Subtopics: []models.Subtopic{{Name: "s", Priority: 1, Status: models.StatusSufficient}}}
	evaluation := models.EvaluationResult{GlobalConfidence: 0.81}

	w := NewWriterAgent(client, zap.NewNop())
	report, err := w.GenerateReport(context.Background(), plan, mem, evaluation, config.ResolveReportMode("risk_assessment"), models.TerminationConfidenceReached)
	require.NoError(t, err)
	require.Equal(t, "Findings are positive overall.", report.ExecutiveSummary)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, report.References, "references deduped and sorted")
	require.Equal(t, 0.81, report.ConfidenceScore)
	require.Equal(t, "risk_assessment", report.ReportMode)
	require.Equal(t, models.TerminationConfidenceReached, report.TerminationReason)
}

func TestSkeletonReport(t *testing.T) {
	mem := memory.New()
	r := SkeletonReport(mem, config.ResolveReportMode(""), models.TerminationTimeout)
	require.Equal(t, 0.0, r.ConfidenceScore)
	require.Equal(t, models.TerminationTimeout, r.TerminationReason)
	require.Equal(t, config.DefaultReportMode, r.ReportMode)
}
