// Package orchestrator drives the adaptive research loop: plan, execute
// iterations through the two-phase engine, evaluate, mutate the plan,
// and terminate by confidence, iteration cap, budget, or timeout.
//
// Within each iteration the search and analysis phases run in parallel;
// memory merge, evaluation, plan management, and trace recording are
// always sequential.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/budget"
	"github.com/Kocoro-lab/Meridian/internal/config"
	"github.com/Kocoro-lab/Meridian/internal/engine"
	"github.com/Kocoro-lab/Meridian/internal/evaluator"
	"github.com/Kocoro-lab/Meridian/internal/intent"
	"github.com/Kocoro-lab/Meridian/internal/memory"
	"github.com/Kocoro-lab/Meridian/internal/metrics"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/Kocoro-lab/Meridian/internal/planner"
	"github.com/Kocoro-lab/Meridian/internal/temporal"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// PlanCreator produces the initial research plan.
type PlanCreator interface {
	CreatePlan(ctx context.Context, query string) (*planner.Plan, error)
}

// ReportWriter produces the final report.
type ReportWriter interface {
	GenerateReport(ctx context.Context, plan *planner.Plan, mem *memory.ResearchMemory, evaluation models.EvaluationResult, mode config.ReportMode, reason models.TerminationReason) (models.FinalReport, error)
}

// SkeletonWriter produces the degraded report when no evaluation
// exists. Split out so tests can observe the fallback path.
type SkeletonWriter func(mem *memory.ResearchMemory, mode config.ReportMode, reason models.TerminationReason) models.FinalReport

// Request describes one research run. Nil pointer fields keep the depth
// preset's values; non-nil overrides are clamped to safe ranges.
type Request struct {
	Query                    string
	DepthMode                string
	ConfidenceThreshold      *float64
	MaxIterations            *int
	ContradictionSensitivity string
	EvidenceStrictness       string
	ReportMode               string
	MaxConcurrentTasks       int
	RunTimeout               time.Duration
}

// Deps wires the orchestrator's collaborators.
type Deps struct {
	Planner   PlanCreator
	Searcher  engine.Searcher
	Analyst   engine.Analyst
	Evaluator *evaluator.Evaluator
	Writer    ReportWriter
	Skeleton  SkeletonWriter
	Budget    *budget.TokenBudget
	Config    config.Config
	Logger    *zap.Logger
}

// Orchestrator runs research requests.
type Orchestrator struct {
	deps   Deps
	engine *engine.Engine
	logger *zap.Logger
}

// New creates an orchestrator.
func New(deps Deps) *Orchestrator {
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Budget == nil {
		deps.Budget = budget.NewTokenBudget(deps.Logger)
	}
	if deps.Skeleton == nil {
		deps.Skeleton = func(mem *memory.ResearchMemory, mode config.ReportMode, reason models.TerminationReason) models.FinalReport {
			return models.FinalReport{
				ExecutiveSummary:  "Research terminated before a report could be generated.",
				ConfidenceScore:   0.0,
				ResearchTrace:     mem.Trace(),
				ReportMode:        mode.Name,
				TerminationReason: reason,
			}
		}
	}
	return &Orchestrator{
		deps:   deps,
		engine: engine.New(deps.Searcher, deps.Analyst, deps.Logger),
		logger: deps.Logger,
	}
}

// Run executes one research request end to end. The returned report is
// always usable; degraded outcomes surface through TerminationReason
// rather than an error, except when even planning failed.
func (o *Orchestrator) Run(ctx context.Context, req Request) (models.FinalReport, error) {
	runID := strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	start := time.Now()

	preset := config.ResolveDepth(req.DepthMode)
	contradictionPolicy := config.ResolveContradictionPolicy(req.ContradictionSensitivity)
	strictnessPreset := config.ResolveStrictness(req.EvidenceStrictness)
	reportMode := config.ResolveReportMode(req.ReportMode)

	effectiveThreshold := preset.ConfidenceThreshold
	if req.ConfidenceThreshold != nil {
		effectiveThreshold = config.ClampConfidenceThreshold(*req.ConfidenceThreshold)
	}
	effectiveMaxIterations := preset.MaxIterations
	if req.MaxIterations != nil {
		effectiveMaxIterations = config.ClampIterationCap(*req.MaxIterations)
	}
	effectiveConcurrent := config.ClampConcurrency(req.MaxConcurrentTasks)

	runTimeout := req.RunTimeout
	if runTimeout <= 0 {
		runTimeout = o.deps.Config.RunTimeout()
	}

	currentYear := time.Now().UTC().Year()
	sensitive := temporal.DetectSensitivity(req.Query)
	qi := intent.Classify(req.Query)
	metrics.IntentClassifications.WithLabelValues(string(qi)).Inc()
	metrics.RunsStarted.WithLabelValues(preset.Name).Inc()

	o.logger.Info("Research run started",
		zap.String("run_id", runID),
		zap.String("query", truncate(req.Query, 60)),
		zap.String("depth_mode", preset.Name),
		zap.String("intent", string(qi)),
		zap.Int("max_iterations", effectiveMaxIterations),
		zap.Int("max_concurrent", effectiveConcurrent),
		zap.Duration("timeout", runTimeout),
	)

	plan, err := o.deps.Planner.CreatePlan(ctx, req.Query)
	if err != nil {
		o.logger.Error("Planning failed", zap.String("run_id", runID), zap.Error(err))
		return models.FinalReport{}, fmt.Errorf("planning failed: %w", err)
	}

	mem := memory.New()
	planManager := planner.NewManager(o.logger)

	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	iteration := 1
	var refinedQueries []string
	prevConfidence := 0.0
	var reason models.TerminationReason

	for iteration <= effectiveMaxIterations {
		iterStart := time.Now()
		o.deps.Budget.SetIteration(iteration)

		// probe the ceilings so an exhausted budget ends the run before
		// another round of spend
		if err := o.deps.Budget.Check(runCtx, iteration, 1); err != nil {
			var exceeded *budget.ErrBudgetExceeded
			if errors.As(err, &exceeded) {
				o.logger.Warn("Token budget exceeded",
					zap.String("run_id", runID),
					zap.Int("iteration", iteration),
					zap.String("scope", exceeded.Scope),
					zap.Int("limit", exceeded.Limit),
					zap.Int("used", exceeded.Current),
				)
				metrics.BudgetRefusals.WithLabelValues(exceeded.Scope).Inc()
				reason = models.TerminationBudgetExceeded
				break
			}
			if runCtx.Err() != nil {
				reason = models.TerminationTimeout
				break
			}
			o.logger.Error("Budget probe failed",
				zap.String("run_id", runID),
				zap.Int("iteration", iteration),
				zap.Error(err),
			)
			reason = models.TerminationErrorAbort
			break
		}

		queries, maxResults := o.buildQueries(plan, preset, qi, iteration, refinedQueries)

		results, allNew := o.engine.ExecuteIteration(runCtx, queries, activeSubtopics(plan), mem.Sources(), engine.Options{
			MaxResults:    maxResults,
			MaxConcurrent: effectiveConcurrent,
			RunID:         runID,
			Iteration:     iteration,
			Timeout:       o.deps.Config.PhaseTimeoutDuration(),
		})
		if runCtx.Err() != nil {
			reason = models.TerminationTimeout
			break
		}

		accepted := mem.AddSources(allNew)
		rejected := len(allNew) - accepted

		iterationInsights := 0
		for _, r := range results {
			insights := r.Insights
			if qi == intent.FactualEventWinner {
				var dropped int
				insights, dropped = intent.FilterFutureInsights(insights, qi, currentYear, o.logger)
				if dropped > 0 {
					o.logger.Debug("Future-dated insights filtered",
						zap.String("run_id", runID),
						zap.String("subtopic", r.SubtopicName),
						zap.Int("dropped", dropped),
					)
				}
			}
			mem.AddInsights(insights)
			mem.AddStatistics(r.Statistics)
			mem.AddContradictions(r.Contradictions)
			iterationInsights += len(insights)

			metrics.RecordTaskLatencies(r.SearchLatencyMS, r.AnalysisLatencyMS)
			if r.Error != "" {
				metrics.TaskErrors.WithLabelValues("execution").Inc()
				o.logger.Warn("Subtopic failed",
					zap.String("run_id", runID),
					zap.Int("iteration", iteration),
					zap.String("subtopic", r.SubtopicName),
					zap.String("error", r.Error),
				)
			}
		}

		// last-resort extraction: event queries where structured analysis
		// produced nothing but raw sources carry a completed result
		if qi == intent.FactualEventWinner && iterationInsights == 0 && len(allNew) > 0 {
			fallbackName := firstActiveName(plan)
			rescued := intent.FallbackExtract(allNew, fallbackName, currentYear, o.logger)
			if len(rescued) > 0 {
				mem.AddInsights(rescued)
				metrics.FallbackExtractions.Add(float64(len(rescued)))
			}
		}

		evaluation := o.deps.Evaluator.Evaluate(runCtx, evaluator.Input{
			Objective:           plan.Objective,
			Subtopics:           plan.Subtopics,
			Insights:            mem.Insights(),
			Statistics:          mem.Statistics(),
			Contradictions:      mem.Contradictions(),
			Sources:             allNew,
			TemporallySensitive: sensitive,
			Policy:              contradictionPolicy,
			Intent:              qi,
			Threshold:           effectiveThreshold,
			CurrentYear:         currentYear,
		})
		mem.AddEvaluation(evaluation)

		var added, removed []string
		if preset.EnableExpansion {
			added = planManager.Spawn(plan, evaluation.MissingAspects, evaluation.GlobalConfidence, iteration)
			removed = planManager.Prune(plan, mem.Insights(), iteration, prevConfidence, evaluation.GlobalConfidence)
			metrics.SubtopicsSpawned.Add(float64(len(added)))
			metrics.SubtopicsPruned.Add(float64(len(removed)))
		}
		planningNote := planManager.BuildPlanningNote(added, removed)

		strictness := evaluator.CheckStrictness(strictnessPreset, mem.Insights(), mem.Statistics(), mem.Sources(), plan.ActiveNames())

		trace := models.ResearchTraceEntry{
			Iteration:           iteration,
			QueriesIssued:       queryTexts(queries),
			SourcesAccepted:     accepted,
			SourcesRejected:     rejected,
			Confidence:          evaluation.GlobalConfidence,
			ConfidenceDelta:     evaluation.GlobalConfidence - prevConfidence,
			SubtopicsAdded:      added,
			SubtopicsRemoved:    removed,
			TemporalDist:        temporal.Distribution(allNew, currentYear),
			StrictnessFailures:  strictness.Failures,
			StrictnessSatisfied: strictness.Satisfied,
			TokensUsed:          o.deps.Budget.IterationUsed(iteration),
			DurationMS:          time.Since(iterStart).Milliseconds(),
			Timestamp:           time.Now().UTC(),
		}
		mem.AddTraceEntry(trace)
		metrics.RecordIterationMetrics(time.Since(iterStart).Seconds(), accepted, rejected, trace.TokensUsed)

		o.logger.Info("Iteration complete",
			zap.String("run_id", runID),
			zap.Int("iteration", iteration),
			zap.Float64("confidence", evaluation.GlobalConfidence),
			zap.Bool("strictness_satisfied", strictness.Satisfied),
			zap.String("planning_note", planningNote),
			zap.Int("sources_accepted", accepted),
			zap.Int("tokens", trace.TokensUsed),
		)

		prevConfidence = evaluation.GlobalConfidence

		if evaluation.GlobalConfidence >= effectiveThreshold && strictness.Satisfied {
			reason = models.TerminationConfidenceReached
			break
		}
		if runCtx.Err() != nil {
			reason = models.TerminationTimeout
			break
		}

		if len(evaluation.PlanUpdates) > 0 {
			planManager.ApplyPriorityPromotions(plan, evaluation.PlanUpdates)
		}
		refinedQueries = o.refineQueries(evaluation, qi, req.Query, currentYear)
		iteration++
	}

	if reason == "" {
		reason = models.TerminationMaxIterations
	}

	report := o.finalize(ctx, runID, plan, mem, reportMode, reason)

	// the trace holds one entry per completed iteration; the loop counter
	// overshoots the cap on exhaustion
	iterationsRun := len(mem.Trace())
	metrics.RecordRunMetrics(preset.Name, string(reason), time.Since(start).Seconds(),
		report.ConfidenceScore, iterationsRun, o.deps.Budget.RunUsed())

	o.logger.Info("Research run completed",
		zap.String("run_id", runID),
		zap.Int("iterations", iterationsRun),
		zap.String("termination_reason", string(reason)),
		zap.Float64("confidence", report.ConfidenceScore),
		zap.Int("tokens", o.deps.Budget.RunUsed()),
	)
	return report, nil
}

// buildQueries assembles the search workload for one iteration. The
// first iteration pairs the objective with every active subtopic; later
// iterations reuse the evaluator's refined queries.
func (o *Orchestrator) buildQueries(plan *planner.Plan, preset config.DepthPreset, qi intent.QueryIntent, iteration int, refined []string) ([]engine.Query, int) {
	if iteration == 1 {
		var queries []engine.Query
		for _, st := range plan.Subtopics {
			if st.Status == models.StatusRemoved {
				continue
			}
			queries = append(queries, engine.Query{
				Text: fmt.Sprintf("%s - %s", plan.Objective, st.Name),
				Key:  st.Name,
			})
		}
		return queries, preset.SourceCountInitial
	}
	var queries []engine.Query
	for i, q := range refined {
		queries = append(queries, engine.Query{Text: q, Key: fmt.Sprintf("refined_%d", i)})
	}
	return queries, preset.SourceCountRefined
}

// refineQueries chooses next-iteration queries. Event-winner runs lead
// with a completion-anchored query so refinement converges on settled
// results instead of previews.
func (o *Orchestrator) refineQueries(evaluation models.EvaluationResult, qi intent.QueryIntent, originalQuery string, currentYear int) []string {
	refined := evaluation.RefinedQueries
	if qi != intent.FactualEventWinner {
		return refined
	}
	eventName := intent.ExtractEventName(originalQuery)
	if eventName == "" {
		return refined
	}
	factual := intent.BuildFactualRefinementQuery(eventName, intent.ExtractJurisdiction(originalQuery), intent.IsElectionQuery(originalQuery))
	out := make([]string, 0, len(refined)+1)
	out = append(out, factual)
	for _, q := range refined {
		if q != factual {
			out = append(out, q)
		}
	}
	return out
}

// finalize writes the report, degrading to the skeleton when no
// evaluation exists or writing itself fails. Uses a fresh deadline so a
// run that timed out can still produce its best-effort artifact.
func (o *Orchestrator) finalize(parent context.Context, runID string, plan *planner.Plan, mem *memory.ResearchMemory, mode config.ReportMode, reason models.TerminationReason) models.FinalReport {
	reportCtx, cancel := context.WithTimeout(context.WithoutCancel(parent), 60*time.Second)
	defer cancel()

	lastEval, ok := mem.LastEvaluation()
	if !ok {
		return o.deps.Skeleton(mem, mode, reason)
	}
	report, err := o.deps.Writer.GenerateReport(reportCtx, plan, mem, lastEval, mode, reason)
	if err != nil {
		o.logger.Error("Report generation failed",
			zap.String("run_id", runID),
			zap.Error(err),
		)
		return o.deps.Skeleton(mem, mode, reason)
	}
	return report
}

func activeSubtopics(plan *planner.Plan) []models.Subtopic {
	var out []models.Subtopic
	for _, st := range plan.Subtopics {
		if st.Status != models.StatusRemoved {
			out = append(out, st)
		}
	}
	return out
}

func firstActiveName(plan *planner.Plan) string {
	for _, st := range plan.Subtopics {
		if st.Status != models.StatusRemoved {
			return st.Name
		}
	}
	return "general"
}

func queryTexts(queries []engine.Query) []string {
	out := make([]string, 0, len(queries))
	for _, q := range queries {
		out = append(out, q.Text)
	}
	return out
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
