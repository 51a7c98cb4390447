package agents

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/config"
	"github.com/Kocoro-lab/Meridian/internal/llm"
	"github.com/Kocoro-lab/Meridian/internal/memory"
	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/Kocoro-lab/Meridian/internal/planner"
	"go.uber.org/zap"
)

// WriterAgent synthesizes the final report from accumulated evidence.
// The report mode shapes presentation only; the underlying evidence and
// confidence are mode-independent.
type WriterAgent struct {
	client *llm.Client
	logger *zap.Logger
}

// NewWriterAgent creates a writer.
func NewWriterAgent(client *llm.Client, logger *zap.Logger) *WriterAgent {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WriterAgent{client: client, logger: logger}
}

type reportOutput struct {
	ExecutiveSummary   string                 `json:"executive_summary"`
	StructuredSections []models.ReportSection `json:"structured_sections"`
	RiskAssessment     []string               `json:"risk_assessment"`
	Recommendations    []string               `json:"recommendations"`
}

// GenerateReport produces the terminal artifact for a run.
func (a *WriterAgent) GenerateReport(ctx context.Context, plan *planner.Plan, mem *memory.ResearchMemory, evaluation models.EvaluationResult, mode config.ReportMode, reason models.TerminationReason) (models.FinalReport, error) {
	references := collectReferences(mem)
	prompt := a.buildReportPrompt(plan, mem, evaluation, mode)

	var out reportOutput
	if err := a.client.GenerateStructured(ctx, prompt, &out); err != nil {
		return models.FinalReport{}, fmt.Errorf("report generation failed: %w", err)
	}

	return models.FinalReport{
		ExecutiveSummary:   out.ExecutiveSummary,
		StructuredSections: out.StructuredSections,
		RiskAssessment:     strings.Join(out.RiskAssessment, "\n"),
		Recommendations:    out.Recommendations,
		References:         references,
		ConfidenceScore:    evaluation.GlobalConfidence,
		ResearchTrace:      mem.Trace(),
		ReportMode:         mode.Name,
		TerminationReason:  reason,
	}, nil
}

// SkeletonReport is the degraded artifact for runs that terminate
// before any report can be written.
func SkeletonReport(mem *memory.ResearchMemory, mode config.ReportMode, reason models.TerminationReason) models.FinalReport {
	return models.FinalReport{
		ExecutiveSummary:  "Research terminated before a report could be generated.",
		References:        collectReferences(mem),
		ConfidenceScore:   0.0,
		ResearchTrace:     mem.Trace(),
		ReportMode:        mode.Name,
		TerminationReason: reason,
	}
}

func collectReferences(mem *memory.ResearchMemory) []string {
	seen := make(map[string]bool)
	var refs []string
	for _, s := range mem.Sources() {
		if s.URL == "" || seen[s.URL] {
			continue
		}
		seen[s.URL] = true
		refs = append(refs, s.URL)
	}
	sort.Strings(refs)
	return refs
}

func (a *WriterAgent) buildReportPrompt(plan *planner.Plan, mem *memory.ResearchMemory, evaluation models.EvaluationResult, mode config.ReportMode) string {
	subtopicNames := strings.Join(plan.ActiveNames(), ", ")

	insightsSummary := groupInsights(mem.Insights())
	statisticsSummary := groupStatistics(mem.Statistics())
	contradictionsSummary := groupContradictions(mem.Contradictions())

	var scores []string
	for _, s := range evaluation.SubtopicScores {
		scores = append(scores, fmt.Sprintf("- %s: confidence=%.2f, status=%s", s.Subtopic, s.Confidence, s.Status))
	}

	return fmt.Sprintf(`You are a senior research consultant synthesizing a decision-grade research report.

RESEARCH OBJECTIVE:
%s

REPORT MODE: %s
SECTION STRUCTURE TO FOLLOW: %s
MODE INSTRUCTIONS: %s

SUBTOPICS RESEARCHED:
%s

KEY QUESTIONS FROM PLANNING:
%s

METRICS SOUGHT:
%s

KEY INSIGHTS EXTRACTED:
%s

STATISTICS FOUND:
%s

CONTRADICTIONS IDENTIFIED:
%s

EVALUATION SCORES:
%s

GLOBAL CONFIDENCE: %.2f

REPORT GENERATION TASK:
Using ONLY the above structured data:

1) Write a concise executive_summary (2-3 paragraphs) synthesizing key findings.
2) Generate structured_sections following the section structure above, with evidence-based content.
3) Identify 2-4 risk_assessment items addressing limitations and uncertainties.
4) Provide 2-4 recommendations based on findings.

CONSTRAINTS:
- Do NOT invent new facts.
- Do NOT include sources or citations beyond what's provided.
- Focus on synthesis, not speculation.
- Keep tone formal and analytical.

STRICT OUTPUT RULES:
- Respond ONLY with valid JSON matching this EXACT structure.
- executive_summary must be a SINGLE STRING value (not a list).
- Do NOT add extra fields.
- Do NOT include markdown.
- Do NOT include commentary.

{
  "executive_summary": "string",
  "structured_sections": [
    {
      "title": "string",
      "content": "string"
    }
  ],
  "risk_assessment": ["risk1 as string", "risk2 as string"],
  "recommendations": ["rec1 as string", "rec2 as string"]
}`,
		plan.Objective,
		mode.Name,
		strings.Join(mode.Sections, " | "),
		mode.PromptInstructions,
		subtopicNames,
		orDefault(strings.Join(plan.KeyQuestions, "\n"), "None recorded"),
		orDefault(strings.Join(plan.MetricsRequired, ", "), "None recorded"),
		orDefault(insightsSummary, "No insights extracted"),
		orDefault(statisticsSummary, "No statistics found"),
		orDefault(contradictionsSummary, "No contradictions found"),
		strings.Join(scores, "\n"),
		evaluation.GlobalConfidence,
	)
}

func orDefault(s, fallback string) string {
	if strings.TrimSpace(s) == "" {
		return fallback
	}
	return s
}

func groupInsights(insights []models.Insight) string {
	bySubtopic := make(map[string][]models.Insight)
	for _, in := range insights {
		bySubtopic[in.Subtopic] = append(bySubtopic[in.Subtopic], in)
	}
	var lines []string
	for _, subtopic := range sortedKeys(bySubtopic) {
		lines = append(lines, fmt.Sprintf("\n%s:", subtopic))
		group := bySubtopic[subtopic]
		for i, in := range group {
			if i >= 3 {
				lines = append(lines, fmt.Sprintf("  ... and %d more", len(group)-3))
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s (confidence: %g)", in.Statement, in.Confidence))
		}
	}
	return strings.Join(lines, "\n")
}

func groupStatistics(stats []models.Statistic) string {
	bySubtopic := make(map[string][]models.Statistic)
	for _, st := range stats {
		bySubtopic[st.Subtopic] = append(bySubtopic[st.Subtopic], st)
	}
	var lines []string
	for _, subtopic := range sortedKeys(bySubtopic) {
		lines = append(lines, fmt.Sprintf("\n%s:", subtopic))
		group := bySubtopic[subtopic]
		for i, st := range group {
			if i >= 2 {
				lines = append(lines, fmt.Sprintf("  ... and %d more", len(group)-2))
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s: %s", st.Value, st.Context))
		}
	}
	return strings.Join(lines, "\n")
}

func groupContradictions(cs []models.Contradiction) string {
	bySubtopic := make(map[string][]models.Contradiction)
	for _, c := range cs {
		bySubtopic[c.Subtopic] = append(bySubtopic[c.Subtopic], c)
	}
	var lines []string
	for _, subtopic := range sortedKeys(bySubtopic) {
		lines = append(lines, fmt.Sprintf("\n%s:", subtopic))
		group := bySubtopic[subtopic]
		for i, c := range group {
			if i >= 2 {
				lines = append(lines, fmt.Sprintf("  ... and %d more", len(group)-2))
				break
			}
			lines = append(lines, fmt.Sprintf("  - %s vs %s (severity: %g)", c.ClaimA, c.ClaimB, c.Severity))
		}
	}
	return strings.Join(lines, "\n")
}

func sortedKeys[T any](m map[string]T) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
