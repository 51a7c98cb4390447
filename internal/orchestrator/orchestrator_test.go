package orchestrator

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/budget"
	"github.com/Kocoro-lab/Meridian/internal/config"
	"github.com/Kocoro-lab/Meridian/internal/evaluator"
	"github.com/Kocoro-lab/Meridian/internal/memory"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/Kocoro-lab/Meridian/internal/planner"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubPlanner struct {
	plan *planner.Plan
	err  error
}

func (p *stubPlanner) CreatePlan(_ context.Context, _ string) (*planner.Plan, error) {
	return p.plan, p.err
}

type stubSearcher struct {
	sources []models.SourceMetadata
}

func (s *stubSearcher) SearchSubtopic(_ context.Context, _ string, _ int) ([]models.SourceMetadata, error) {
	return s.sources, nil
}

type stubAnalyst struct {
	insights   func(subtopic string) []models.Insight
	statistics func(subtopic string) []models.Statistic
}

func (a *stubAnalyst) AnalyzeSubtopic(_ context.Context, subtopic string, _ []models.SourceMetadata) ([]models.Insight, []models.Statistic, []models.Contradiction, error) {
	var ins []models.Insight
	var stats []models.Statistic
	if a.insights != nil {
		ins = a.insights(subtopic)
	}
	if a.statistics != nil {
		stats = a.statistics(subtopic)
	}
	return ins, stats, nil, nil
}

type stubWriter struct {
	err   error
	calls int
}

func (w *stubWriter) GenerateReport(_ context.Context, _ *planner.Plan, mem *memory.ResearchMemory, evaluation models.EvaluationResult, mode config.ReportMode, reason models.TerminationReason) (models.FinalReport, error) {
	w.calls++
	if w.err != nil {
		return models.FinalReport{}, w.err
	}
	return models.FinalReport{
		ExecutiveSummary:  "done",
		ConfidenceScore:   evaluation.GlobalConfidence,
		ResearchTrace:     mem.Trace(),
		ReportMode:        mode.Name,
		TerminationReason: reason,
	}, nil
}

func richSources() []models.SourceMetadata {
	return []models.SourceMetadata{
		{URL: "https://lab.mit.edu/study", Title: "Study", Summary: "text", DomainType: models.DomainEdu},
		{URL: "https://www.energy.gov/report", Title: "Report", Summary: "text", DomainType: models.DomainGov},
	}
}

func strongAnalyst() *stubAnalyst {
	return &stubAnalyst{
		insights: func(subtopic string) []models.Insight {
			var out []models.Insight
			for i := 0; i < 3; i++ {
				out = append(out, models.Insight{
					Subtopic:          subtopic,
					Statement:         fmt.Sprintf("finding %d for %s", i, subtopic),
					SupportingSources: []string{"https://lab.mit.edu/study", "https://www.energy.gov/report"},
					Confidence:        0.85,
					Stance:            models.StanceNeutral,
				})
			}
			return out
		},
		statistics: func(subtopic string) []models.Statistic {
			return []models.Statistic{{Subtopic: subtopic, Value: "12%", Context: "growth", SourceURL: "https://www.energy.gov/report"}}
		},
	}
}

func testDeps(p *stubPlanner, s *stubSearcher, a *stubAnalyst, w *stubWriter) Deps {
	cfg := config.FromEnvOrDefaults(nil)
	return Deps{
		Planner:   p,
		Searcher:  s,
		Analyst:   a,
		Evaluator: evaluator.New(nil, zap.NewNop()),
		Writer:    w,
		Budget:    budget.NewTokenBudget(zap.NewNop()),
		Config:    cfg,
		Logger:    zap.NewNop(),
	}
}

func simplePlan(names ...string) *planner.Plan {
	p := &planner.Plan{Objective: "assess grid-scale storage economics"}
	for _, n := range names {
		p.Subtopics = append(p.Subtopics, models.Subtopic{Name: n, Priority: 2, Status: models.StatusPending})
	}
	return p
}

func TestRun_ConfidenceTermination(t *testing.T) {
	w := &stubWriter{}
	o := New(testDeps(
		&stubPlanner{plan: simplePlan("cost trends")},
		&stubSearcher{sources: richSources()},
		strongAnalyst(),
		w,
	))

	report, err := o.Run(context.Background(), Request{
		Query:     "grid-scale storage economics",
		DepthMode: "standard",
	})
	require.NoError(t, err)
	require.Equal(t, models.TerminationConfidenceReached, report.TerminationReason)
	require.Len(t, report.ResearchTrace, 1, "strong evidence converges in one iteration")
	require.Greater(t, report.ConfidenceScore, 0.75)
	require.True(t, report.ResearchTrace[0].StrictnessSatisfied)
	require.NotEmpty(t, report.ResearchTrace[0].QueriesIssued)
}

func TestRun_MaxIterationsTermination(t *testing.T) {
	w := &stubWriter{}
	o := New(testDeps(
		&stubPlanner{plan: simplePlan("cost trends", "policy outlook", "deployment data")},
		&stubSearcher{sources: richSources()},
		&stubAnalyst{}, // no insights ever
		w,
	))

	report, err := o.Run(context.Background(), Request{
		Query:     "grid-scale storage economics",
		DepthMode: "quick_scan",
	})
	require.NoError(t, err)
	require.Equal(t, models.TerminationMaxIterations, report.TerminationReason)
	require.Len(t, report.ResearchTrace, 1, "quick_scan caps at one iteration")
}

func TestRun_ExhaustedLoopRunsExactlyCapIterations(t *testing.T) {
	w := &stubWriter{}
	o := New(testDeps(
		&stubPlanner{plan: simplePlan("cost trends", "policy outlook")},
		&stubSearcher{sources: richSources()},
		&stubAnalyst{}, // never converges
		w,
	))

	report, err := o.Run(context.Background(), Request{
		Query:     "grid-scale storage economics",
		DepthMode: "standard",
	})
	require.NoError(t, err)
	require.Equal(t, models.TerminationMaxIterations, report.TerminationReason)
	// one trace entry per iteration actually executed, never cap+1
	iterationCap := config.ResolveDepth("standard").MaxIterations
	require.Len(t, report.ResearchTrace, iterationCap)
	require.Equal(t, iterationCap, report.ResearchTrace[len(report.ResearchTrace)-1].Iteration)
}

func TestRun_BudgetExceededTermination(t *testing.T) {
	deps := testDeps(
		&stubPlanner{plan: simplePlan("cost trends")},
		&stubSearcher{sources: richSources()},
		strongAnalyst(),
		&stubWriter{},
	)
	deps.Budget = budget.NewTokenBudget(zap.NewNop(), budget.WithLimits(100, 100))
	deps.Budget.Record(1, 100) // run ceiling already consumed
	o := New(deps)

	report, err := o.Run(context.Background(), Request{
		Query:     "grid-scale storage economics",
		DepthMode: "standard",
	})
	require.NoError(t, err)
	require.Equal(t, models.TerminationBudgetExceeded, report.TerminationReason)
	require.Equal(t, 0.0, report.ConfidenceScore, "no evaluation happened, skeleton report")
}

func TestRun_PlannerFailureIsAnError(t *testing.T) {
	o := New(testDeps(
		&stubPlanner{err: fmt.Errorf("llm unavailable")},
		&stubSearcher{},
		&stubAnalyst{},
		&stubWriter{},
	))
	_, err := o.Run(context.Background(), Request{Query: "q", DepthMode: "standard"})
	require.Error(t, err)
}

func TestRun_WriterFailureDegradesToSkeleton(t *testing.T) {
	w := &stubWriter{err: fmt.Errorf("report service down")}
	o := New(testDeps(
		&stubPlanner{plan: simplePlan("cost trends")},
		&stubSearcher{sources: richSources()},
		strongAnalyst(),
		w,
	))

	report, err := o.Run(context.Background(), Request{
		Query:     "grid-scale storage economics",
		DepthMode: "quick_scan",
	})
	require.NoError(t, err)
	require.Equal(t, 1, w.calls)
	require.Contains(t, report.ExecutiveSummary, "terminated")
	require.NotEmpty(t, report.ResearchTrace, "trace survives into the skeleton")
}

func TestRun_OverridesAreClamped(t *testing.T) {
	w := &stubWriter{}
	threshold := 0.2 // below the floor, must clamp to 0.65
	iterations := 50 // above the cap, must clamp to 5
	o := New(testDeps(
		&stubPlanner{plan: simplePlan("cost trends")},
		&stubSearcher{sources: richSources()},
		strongAnalyst(),
		w,
	))

	report, err := o.Run(context.Background(), Request{
		Query:               "grid-scale storage economics",
		DepthMode:           "standard",
		ConfidenceThreshold: &threshold,
		MaxIterations:       &iterations,
	})
	require.NoError(t, err)
	// strong evidence clears the clamped 0.65 threshold immediately
	require.Equal(t, models.TerminationConfidenceReached, report.TerminationReason)
	require.GreaterOrEqual(t, report.ConfidenceScore, 0.65)
}

func TestRun_TimeoutProducesBestEffortReport(t *testing.T) {
	slow := &stubAnalyst{
		insights: func(subtopic string) []models.Insight {
			time.Sleep(100 * time.Millisecond)
			return nil
		},
	}
	w := &stubWriter{}
	o := New(testDeps(
		&stubPlanner{plan: simplePlan("cost trends")},
		&stubSearcher{sources: richSources()},
		slow,
		w,
	))

	report, err := o.Run(context.Background(), Request{
		Query:      "grid-scale storage economics",
		DepthMode:  "deep_investigation",
		RunTimeout: 50 * time.Millisecond,
	})
	require.NoError(t, err)
	require.Equal(t, models.TerminationTimeout, report.TerminationReason)
}
