// Package evaluator scores accumulated evidence and decides whether a
// run needs more research. Quantitative scoring is deterministic; a
// single structured model call supplies the qualitative gap analysis.
package evaluator

import (
	"context"
	"math"

	"github.com/Kocoro-lab/Meridian/internal/config"
	"github.com/Kocoro-lab/Meridian/internal/intent"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/Kocoro-lab/Meridian/internal/temporal"
	"go.uber.org/zap"
)

// Sub-score weights. They sum to 1.0.
const (
	weightCoverage    = 0.25
	weightCredibility = 0.25
	weightDiversity   = 0.15
	weightEvidence    = 0.20
	weightConsistency = 0.15

	// weakThreshold marks a subtopic weak below this confidence.
	weakThreshold = 0.6
	// lowConfidencePenalty applies per subtopic under 0.5 when blending
	// the global score.
	lowConfidencePenalty = 0.05
)

var domainCredibility = map[models.DomainType]float64{
	models.DomainEdu:   1.0,
	models.DomainGov:   1.0,
	models.DomainNews:  0.7,
	models.DomainBlog:  0.4,
	models.DomainOther: 0.5,
}

// GapAnalysis is the qualitative output of the gap-analysis model call.
type GapAnalysis struct {
	RefinedQueries []string `json:"refined_queries"`
	MissingAspects []string `json:"missing_aspects"`
	IdentifiedGaps []string `json:"identified_gaps"`
	PlanUpdates    []string `json:"plan_updates"`
}

// GapAnalyzer performs the qualitative analysis. Implemented by the LLM
// agent layer; the evaluator degrades to empty lists when it fails.
type GapAnalyzer interface {
	AnalyzeGaps(ctx context.Context, objective string, subtopics []string, weak []string, insightCount, contradictionCount int) (GapAnalysis, error)
}

// Input carries everything one evaluation needs.
type Input struct {
	Objective           string
	Subtopics           []models.Subtopic
	Insights            []models.Insight
	Statistics          []models.Statistic
	Contradictions      []models.Contradiction
	Sources             []models.SourceMetadata
	TemporallySensitive bool
	Policy              config.ContradictionPolicy
	Intent              intent.QueryIntent
	Threshold           float64
	CurrentYear         int
}

// Evaluator computes per-subtopic scores and the corrected global
// confidence.
type Evaluator struct {
	gaps   GapAnalyzer
	logger *zap.Logger
}

// New creates an evaluator. gaps may be nil; qualitative fields then
// stay empty.
func New(gaps GapAnalyzer, logger *zap.Logger) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{gaps: gaps, logger: logger}
}

// Evaluate scores the evidence and applies the confidence corrections
// in order: recency penalty, future-drift penalty, contradiction
// penalty, factual floor.
func (e *Evaluator) Evaluate(ctx context.Context, in Input) models.EvaluationResult {
	var scores []models.SubtopicScore
	for _, st := range in.Subtopics {
		if st.Status == models.StatusRemoved {
			continue
		}
		scores = append(scores, e.scoreSubtopic(st.Name, in))
	}

	confidence := globalConfidence(scores)

	// 1. Recency penalty, skipped for event-winner runs where recency
	// bias works against factual resolution.
	recencyPenalty := 0.0
	if in.Intent != intent.FactualEventWinner {
		dist := temporal.Distribution(in.Sources, in.CurrentYear)
		recencyPenalty = temporal.RecencyPenalty(dist, in.TemporallySensitive)
		confidence = clamp01(round4(confidence - recencyPenalty))
	}

	// 2. Future-drift penalty for factual event queries.
	if drift := intent.FutureDriftPenalty(in.Insights, in.Intent, in.CurrentYear); drift > 0 {
		confidence = clamp01(round4(confidence - drift))
	}

	// 3. Contradiction policy: reaction, not detection.
	qualifying := 0
	for _, c := range in.Contradictions {
		if c.Severity >= in.Policy.MinSeverity {
			qualifying++
		}
	}
	if qualifying > 0 {
		penalty := math.Min(float64(qualifying)*in.Policy.PenaltyPerItem, config.ContradictionPenaltyCap)
		confidence = clamp01(round4(confidence - penalty))
	}
	escalate := in.Policy.ForceRefinement && qualifying > 0

	// 4. Factual confidence floor, strictly scoped to event-winner runs
	// with at least one insight. Structural metrics must not crush a
	// resolved factoid.
	if in.Intent == intent.FactualEventWinner && len(in.Insights) > 0 {
		hasCompleted := intent.ContainsCompletedResult(in.Insights, in.CurrentYear)
		hasSourceURL := false
		for _, i := range in.Insights {
			if len(i.SupportingSources) > 0 {
				hasSourceURL = true
				break
			}
		}
		switch {
		case hasCompleted && qualifying == 0 && hasSourceURL:
			if confidence < 0.85 {
				confidence = 0.85
			}
		case hasCompleted && qualifying > 0:
			if confidence < 0.55 {
				confidence = 0.55
			}
		case !hasCompleted:
			if confidence < 0.55 {
				confidence = 0.55
			}
		}
		if confidence < 0.20 {
			confidence = 0.20
		}
	}

	var weak []string
	for _, s := range scores {
		if s.Status == models.StatusWeak {
			weak = append(weak, s.Subtopic)
		}
	}

	analysis := e.qualitative(ctx, in, weak)
	missing := append([]string(nil), analysis.MissingAspects...)
	if recencyPenalty > 0 {
		missing = append(missing, "Recent data or updated statistics missing.")
	}

	needsMore := false
	if in.Intent == intent.FactualEventWinner && len(in.Insights) > 0 &&
		intent.ContainsCompletedResult(in.Insights, in.CurrentYear) {
		needsMore = false
	} else {
		needsMore = confidence < in.Threshold || len(weak) > 0 || escalate
	}

	return models.EvaluationResult{
		GlobalConfidence:       confidence,
		SubtopicScores:         scores,
		WeakSubtopics:          weak,
		IdentifiedGaps:         analysis.IdentifiedGaps,
		MissingAspects:         missing,
		RefinedQueries:         analysis.RefinedQueries,
		PlanUpdates:            analysis.PlanUpdates,
		NeedsMoreResearch:      needsMore,
		EscalateContradictions: escalate,
	}
}

func (e *Evaluator) qualitative(ctx context.Context, in Input, weak []string) GapAnalysis {
	if e.gaps == nil {
		return GapAnalysis{}
	}
	names := make([]string, 0, len(in.Subtopics))
	for _, st := range in.Subtopics {
		names = append(names, st.Name)
	}
	analysis, err := e.gaps.AnalyzeGaps(ctx, in.Objective, names, weak, len(in.Insights), len(in.Contradictions))
	if err != nil {
		e.logger.Warn("Gap analysis unavailable, continuing without qualitative output", zap.Error(err))
		return GapAnalysis{}
	}
	return analysis
}

func (e *Evaluator) scoreSubtopic(name string, in Input) models.SubtopicScore {
	var insights []models.Insight
	for _, i := range in.Insights {
		if i.Subtopic == name {
			insights = append(insights, i)
		}
	}
	var stats []models.Statistic
	for _, s := range in.Statistics {
		if s.Subtopic == name {
			stats = append(stats, s)
		}
	}
	var contradictions []models.Contradiction
	for _, c := range in.Contradictions {
		if c.Subtopic == name {
			contradictions = append(contradictions, c)
		}
	}

	supporting := make(map[string]bool)
	for _, i := range insights {
		for _, u := range i.SupportingSources {
			supporting[u] = true
		}
	}
	var sources []models.SourceMetadata
	for _, s := range in.Sources {
		if supporting[s.URL] {
			sources = append(sources, s)
		}
	}

	coverage := coverageScore(len(insights))
	credibility := credibilityScore(sources)
	diversity := diversityScore(sources)
	evidence := evidenceStrength(insights, len(stats) > 0)
	consistency := consistencyScore(contradictions)

	confidence := coverage*weightCoverage +
		credibility*weightCredibility +
		diversity*weightDiversity +
		evidence*weightEvidence +
		consistency*weightConsistency

	status := models.StatusSufficient
	if confidence < weakThreshold {
		status = models.StatusWeak
	}

	return models.SubtopicScore{
		Subtopic:         name,
		Coverage:         coverage,
		Credibility:      credibility,
		Diversity:        diversity,
		EvidenceStrength: evidence,
		Consistency:      consistency,
		Confidence:       confidence,
		Status:           status,
	}
}

func coverageScore(insightCount int) float64 {
	switch {
	case insightCount >= 3:
		return math.Min(1.0, 0.8+float64(insightCount-3)*0.05)
	case insightCount >= 1:
		return 0.5 + float64(insightCount)*0.1
	default:
		return 0.1
	}
}

func credibilityScore(sources []models.SourceMetadata) float64 {
	if len(sources) == 0 {
		return 0
	}
	total := 0.0
	for _, s := range sources {
		total += domainCredibility[s.DomainType]
	}
	return total / float64(len(sources))
}

func diversityScore(sources []models.SourceMetadata) float64 {
	if len(sources) == 0 {
		return 0
	}
	counts := make(map[models.DomainType]int)
	for _, s := range sources {
		counts[s.DomainType]++
	}
	maxCount := 0
	for _, c := range counts {
		if c > maxCount {
			maxCount = c
		}
	}
	share := float64(maxCount) / float64(len(sources))
	if share > 0.5 {
		return math.Max(0, 1.0-(share-0.5))
	}
	return 1.0
}

func evidenceStrength(insights []models.Insight, hasStatistics bool) float64 {
	if len(insights) == 0 {
		return 0
	}
	score := 0.7
	total := 0
	for _, i := range insights {
		total += len(i.SupportingSources)
	}
	avg := float64(total) / float64(len(insights))
	if avg >= 2 {
		score += 0.2
	} else if avg >= 1 {
		score += 0.1
	}
	if hasStatistics {
		score += 0.1
	}
	return math.Min(1.0, score)
}

func consistencyScore(contradictions []models.Contradiction) float64 {
	if len(contradictions) == 0 {
		return 1.0
	}
	total := 0.0
	for _, c := range contradictions {
		total += c.Severity
	}
	return math.Max(0, 1.0-total/float64(len(contradictions)))
}

func globalConfidence(scores []models.SubtopicScore) float64 {
	if len(scores) == 0 {
		return 0
	}
	sum := 0.0
	low := 0
	for _, s := range scores {
		sum += s.Confidence
		if s.Confidence < 0.5 {
			low++
		}
	}
	avg := sum / float64(len(scores))
	if low > 0 {
		avg = math.Max(0, avg-float64(low)*lowConfidencePenalty)
	}
	return math.Min(1.0, avg)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round4(v float64) float64 {
	return math.Round(v*10000) / 10000
}
