package config

import "strings"

// Clamp bounds applied after preset resolution. Caller-supplied overrides
// never escape these ranges.
const (
	MinConfidenceThreshold = 0.65
	MaxConfidenceThreshold = 0.90
	MinIterationCap        = 1
	MaxIterationCap        = 5
	MinConcurrency         = 1
	MaxConcurrency         = 10
)

// DepthPreset fixes the effort envelope for a run.
type DepthPreset struct {
	Name                string  `mapstructure:"name"`
	MaxIterations       int     `mapstructure:"max_iterations"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold"`
	SourceCountInitial  int     `mapstructure:"source_count_initial"`
	SourceCountRefined  int     `mapstructure:"source_count_refined"`
	EnableEscalation    bool    `mapstructure:"enable_escalation"`
	EnableExpansion     bool    `mapstructure:"enable_subtopic_expansion"`
}

var depthPresets = map[string]DepthPreset{
	"quick_scan": {
		Name:                "quick_scan",
		MaxIterations:       1,
		ConfidenceThreshold: 0.55,
		SourceCountInitial:  3,
		SourceCountRefined:  2,
		EnableEscalation:    false,
		EnableExpansion:     false,
	},
	"standard": {
		Name:                "standard",
		MaxIterations:       2,
		ConfidenceThreshold: 0.75,
		SourceCountInitial:  5,
		SourceCountRefined:  4,
		EnableEscalation:    false,
		EnableExpansion:     true,
	},
	"deep_investigation": {
		Name:                "deep_investigation",
		MaxIterations:       4,
		ConfidenceThreshold: 0.85,
		SourceCountInitial:  7,
		SourceCountRefined:  5,
		EnableEscalation:    true,
		EnableExpansion:     true,
	},
}

// ResolveDepth returns the named preset. Unknown names fall back to
// standard. Preset values are trusted as-is; clamps apply only to
// caller-supplied overrides.
func ResolveDepth(name string) DepthPreset {
	if p, ok := depthPresets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return depthPresets["standard"]
}

// ClampConfidenceThreshold bounds a caller override to [0.65, 0.90].
func ClampConfidenceThreshold(v float64) float64 {
	return clampFloat(v, MinConfidenceThreshold, MaxConfidenceThreshold)
}

// ClampIterationCap bounds a caller override to [1, 5].
func ClampIterationCap(v int) int {
	return clampInt(v, MinIterationCap, MaxIterationCap)
}

// ContradictionPolicy controls how conflicting claims affect confidence.
type ContradictionPolicy struct {
	Name             string  `mapstructure:"name"`
	MinSeverity      float64 `mapstructure:"min_severity"`
	PenaltyPerItem   float64 `mapstructure:"penalty_per_item"`
	ForceRefinement  bool    `mapstructure:"force_refinement"`
}

// ContradictionPenaltyCap bounds the total contradiction deduction.
const ContradictionPenaltyCap = 0.15

var contradictionPolicies = map[string]ContradictionPolicy{
	"ignore_minor":    {Name: "ignore_minor", MinSeverity: 0.7, PenaltyPerItem: 0.02, ForceRefinement: false},
	"flag_all":        {Name: "flag_all", MinSeverity: 0.0, PenaltyPerItem: 0.03, ForceRefinement: false},
	"escalate_on_any": {Name: "escalate_on_any", MinSeverity: 0.0, PenaltyPerItem: 0.04, ForceRefinement: true},
}

// ResolveContradictionPolicy falls back to flag_all for unknown names.
func ResolveContradictionPolicy(name string) ContradictionPolicy {
	if p, ok := contradictionPolicies[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return contradictionPolicies["flag_all"]
}

// StrictnessPreset sets minimum evidence requirements that gate
// confidence-based termination.
type StrictnessPreset struct {
	Name                string `mapstructure:"name"`
	MinSourcesPerInsight int   `mapstructure:"min_sources_per_insight"`
	MinStatsPerSubtopic  int   `mapstructure:"min_stats_per_subtopic"`
	MinDomainTypes       int   `mapstructure:"min_domain_types"`
}

var strictnessPresets = map[string]StrictnessPreset{
	"relaxed":  {Name: "relaxed", MinSourcesPerInsight: 1, MinStatsPerSubtopic: 0, MinDomainTypes: 1},
	"factual":  {Name: "factual", MinSourcesPerInsight: 1, MinStatsPerSubtopic: 0, MinDomainTypes: 1},
	"moderate": {Name: "moderate", MinSourcesPerInsight: 2, MinStatsPerSubtopic: 1, MinDomainTypes: 2},
	"strict":   {Name: "strict", MinSourcesPerInsight: 3, MinStatsPerSubtopic: 2, MinDomainTypes: 3},
}

// ResolveStrictness falls back to moderate for unknown names.
func ResolveStrictness(name string) StrictnessPreset {
	if p, ok := strictnessPresets[strings.ToLower(strings.TrimSpace(name))]; ok {
		return p
	}
	return strictnessPresets["moderate"]
}

// ReportMode shapes the final report's structure and register. Modes are
// presentation-only and never feed back into scoring.
type ReportMode struct {
	Name               string
	Sections           []string
	PromptInstructions string
}

var reportModes = map[string]ReportMode{
	"executive_summary": {
		Name:     "executive_summary",
		Sections: []string{"Key Findings", "Implications", "Recommendations"},
		PromptInstructions: "Write for senior decision-makers. Lead with conclusions, " +
			"keep sections short, quantify wherever the evidence allows, and avoid " +
			"methodological detail.",
	},
	"technical_whitepaper": {
		Name:     "technical_whitepaper",
		Sections: []string{"Background", "Findings", "Analysis", "Limitations", "References"},
		PromptInstructions: "Write a rigorous technical document. Present evidence per " +
			"subtopic, cite every claim against its sources, and discuss confidence " +
			"and limitations explicitly.",
	},
	"risk_assessment": {
		Name:     "risk_assessment",
		Sections: []string{"Risk Summary", "Risk Register", "Mitigations", "Watch Items"},
		PromptInstructions: "Frame findings as risks with likelihood and impact. Call out " +
			"contradictory evidence and gaps as explicit uncertainty, and end with " +
			"monitoring recommendations.",
	},
	"academic_structured": {
		Name:     "academic_structured",
		Sections: []string{"Abstract", "Method", "Results", "Discussion", "References"},
		PromptInstructions: "Follow an academic structure. Describe how evidence was " +
			"gathered, separate results from interpretation, and note where findings " +
			"disagree across sources.",
	},
}

// DefaultReportMode is used when a request names no mode.
const DefaultReportMode = "technical_whitepaper"

// ResolveReportMode falls back to the default for unknown names.
func ResolveReportMode(name string) ReportMode {
	if m, ok := reportModes[strings.ToLower(strings.TrimSpace(name))]; ok {
		return m
	}
	return reportModes[DefaultReportMode]
}

// ClampConcurrency bounds engine parallelism to [1,10].
func ClampConcurrency(n int) int {
	return clampInt(n, MinConcurrency, MaxConcurrency)
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
