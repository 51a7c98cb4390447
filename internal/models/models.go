// Package models defines the data model shared across the research
// pipeline. Constructors validate numeric ranges and enum membership so
// malformed values are rejected at the boundary rather than surfacing as
// skewed scores later.
package models

import (
	"fmt"
	"time"
)

// SubtopicStatus tracks a subtopic through the research lifecycle.
type SubtopicStatus string

const (
	StatusPending    SubtopicStatus = "pending"
	StatusInProgress SubtopicStatus = "in_progress"
	StatusSufficient SubtopicStatus = "sufficient"
	StatusWeak       SubtopicStatus = "weak"
	StatusComplete   SubtopicStatus = "complete"
	StatusRemoved    SubtopicStatus = "removed"
)

var validStatuses = map[SubtopicStatus]bool{
	StatusPending:    true,
	StatusInProgress: true,
	StatusSufficient: true,
	StatusWeak:       true,
	StatusComplete:   true,
	StatusRemoved:    true,
}

// DomainType buckets a source by publisher category for credibility
// weighting.
type DomainType string

const (
	DomainEdu   DomainType = "edu"
	DomainGov   DomainType = "gov"
	DomainNews  DomainType = "news"
	DomainBlog  DomainType = "blog"
	DomainOther DomainType = "other"
)

var validDomains = map[DomainType]bool{
	DomainEdu:   true,
	DomainGov:   true,
	DomainNews:  true,
	DomainBlog:  true,
	DomainOther: true,
}

// Stance marks whether an insight supports, disputes, or is neutral on
// its subtopic's prevailing claim.
type Stance string

const (
	StancePro     Stance = "pro"
	StanceContra  Stance = "contra"
	StanceNeutral Stance = "neutral"
)

var validStances = map[Stance]bool{
	StancePro:     true,
	StanceContra:  true,
	StanceNeutral: true,
}

// TerminationReason records why a run stopped.
type TerminationReason string

const (
	TerminationConfidenceReached TerminationReason = "confidence_threshold_reached"
	TerminationMaxIterations     TerminationReason = "max_iterations_reached"
	TerminationBudgetExceeded    TerminationReason = "token_budget_exceeded"
	TerminationTimeout           TerminationReason = "timeout_exceeded"
	TerminationErrorAbort        TerminationReason = "error_abort"
)

// Subtopic is one line of inquiry in the research plan.
type Subtopic struct {
	Name     string         `json:"name"`
	Priority int            `json:"priority"` // 1 = highest, 3 = lowest
	Status   SubtopicStatus `json:"status"`
}

// NewSubtopic validates priority and status.
func NewSubtopic(name string, priority int, status SubtopicStatus) (Subtopic, error) {
	if name == "" {
		return Subtopic{}, fmt.Errorf("subtopic name must not be empty")
	}
	if priority < 1 || priority > 3 {
		return Subtopic{}, fmt.Errorf("subtopic %q: priority %d out of range [1,3]", name, priority)
	}
	if !validStatuses[status] {
		return Subtopic{}, fmt.Errorf("subtopic %q: unknown status %q", name, status)
	}
	return Subtopic{Name: name, Priority: priority, Status: status}, nil
}

// SourceMetadata describes one retrieved source. PublicationDate is nil
// when the source carries no usable date.
type SourceMetadata struct {
	Title           string     `json:"title"`
	URL             string     `json:"url"`
	Summary         string     `json:"summary"`
	PublicationDate *string    `json:"publication_date,omitempty"`
	DomainType      DomainType `json:"domain_type"`
	AuthorPresent   bool       `json:"author_present"`
	OpinionScore    float64    `json:"opinion_score"`
}

// Validate checks domain type and opinion score range.
func (s SourceMetadata) Validate() error {
	if s.URL == "" {
		return fmt.Errorf("source %q: url must not be empty", s.Title)
	}
	if !validDomains[s.DomainType] {
		return fmt.Errorf("source %s: unknown domain type %q", s.URL, s.DomainType)
	}
	if s.OpinionScore < 0 || s.OpinionScore > 1 {
		return fmt.Errorf("source %s: opinion score %f out of range [0,1]", s.URL, s.OpinionScore)
	}
	return nil
}

// Insight is one extracted finding attributed to a subtopic.
type Insight struct {
	Subtopic          string   `json:"subtopic"`
	Statement         string   `json:"statement"`
	SupportingSources []string `json:"supporting_sources"`
	Confidence        float64  `json:"confidence"`
	Stance            Stance   `json:"stance"`
}

// Validate checks confidence range and stance membership.
func (i Insight) Validate() error {
	if i.Statement == "" {
		return fmt.Errorf("insight for %q: statement must not be empty", i.Subtopic)
	}
	if i.Confidence < 0 || i.Confidence > 1 {
		return fmt.Errorf("insight %q: confidence %f out of range [0,1]", i.Statement, i.Confidence)
	}
	if i.Stance != "" && !validStances[i.Stance] {
		return fmt.Errorf("insight %q: unknown stance %q", i.Statement, i.Stance)
	}
	return nil
}

// Statistic is a quantitative claim tied to a source.
type Statistic struct {
	Subtopic  string `json:"subtopic"`
	Value     string `json:"value"`
	Context   string `json:"context"`
	SourceURL string `json:"source_url"`
}

// Contradiction pairs two conflicting claims with a severity estimate.
type Contradiction struct {
	Subtopic string  `json:"subtopic"`
	ClaimA   string  `json:"claim_a"`
	SourceA  string  `json:"source_a"`
	ClaimB   string  `json:"claim_b"`
	SourceB  string  `json:"source_b"`
	Severity float64 `json:"severity"`
}

// Validate checks the severity range.
func (c Contradiction) Validate() error {
	if c.Severity < 0 || c.Severity > 1 {
		return fmt.Errorf("contradiction in %q: severity %f out of range [0,1]", c.Subtopic, c.Severity)
	}
	return nil
}

// SubtopicScore holds the five evaluation sub-scores and the blended
// confidence for one subtopic.
type SubtopicScore struct {
	Subtopic         string         `json:"subtopic"`
	Coverage         float64        `json:"coverage"`
	Credibility      float64        `json:"credibility"`
	Diversity        float64        `json:"diversity"`
	EvidenceStrength float64        `json:"evidence_strength"`
	Consistency      float64        `json:"consistency"`
	Confidence       float64        `json:"confidence"`
	Status           SubtopicStatus `json:"status"`
}

// NewSubtopicScore validates every score into [0,1].
func NewSubtopicScore(subtopic string, coverage, credibility, diversity, evidence, consistency, confidence float64, status SubtopicStatus) (SubtopicScore, error) {
	for _, f := range []struct {
		name string
		val  float64
	}{
		{"coverage", coverage},
		{"credibility", credibility},
		{"diversity", diversity},
		{"evidence_strength", evidence},
		{"consistency", consistency},
		{"confidence", confidence},
	} {
		if f.val < 0 || f.val > 1 {
			return SubtopicScore{}, fmt.Errorf("subtopic %q: %s %f out of range [0,1]", subtopic, f.name, f.val)
		}
	}
	if !validStatuses[status] {
		return SubtopicScore{}, fmt.Errorf("subtopic %q: unknown status %q", subtopic, status)
	}
	return SubtopicScore{
		Subtopic:         subtopic,
		Coverage:         coverage,
		Credibility:      credibility,
		Diversity:        diversity,
		EvidenceStrength: evidence,
		Consistency:      consistency,
		Confidence:       confidence,
		Status:           status,
	}, nil
}

// EvaluationResult is the evaluator's verdict for one iteration.
type EvaluationResult struct {
	GlobalConfidence       float64         `json:"global_confidence"`
	SubtopicScores         []SubtopicScore `json:"subtopic_scores"`
	WeakSubtopics          []string        `json:"weak_subtopics"`
	IdentifiedGaps         []string        `json:"identified_gaps"`
	MissingAspects         []string        `json:"missing_aspects"`
	RefinedQueries         []string        `json:"refined_queries"`
	PlanUpdates            []string        `json:"plan_updates"`
	NeedsMoreResearch      bool            `json:"needs_more_research"`
	EscalateContradictions bool            `json:"escalate_contradictions"`
}

// TemporalDistribution summarizes source publication dates for one
// iteration's accepted sources.
type TemporalDistribution struct {
	Total   int `json:"total"`
	Dated   int `json:"with_dates"`
	Recent  int `json:"recent"`
	Older   int `json:"older"`
	Unknown int `json:"unknown"`
}

// ResearchTraceEntry is the per-iteration audit record. The trace is the
// sole record of what the run did; nothing is persisted elsewhere.
type ResearchTraceEntry struct {
	Iteration           int                  `json:"iteration"`
	QueriesIssued       []string             `json:"queries_issued"`
	SourcesAccepted     int                  `json:"sources_accepted"`
	SourcesRejected     int                  `json:"sources_rejected"`
	Confidence          float64              `json:"confidence"`
	ConfidenceDelta     float64              `json:"confidence_delta"`
	SubtopicsAdded      []string             `json:"subtopics_added,omitempty"`
	SubtopicsRemoved    []string             `json:"subtopics_removed,omitempty"`
	TemporalDist        TemporalDistribution `json:"temporal_distribution"`
	StrictnessFailures  []string             `json:"strictness_failures,omitempty"`
	StrictnessSatisfied bool                 `json:"strictness_satisfied"`
	TokensUsed          int                  `json:"tokens_used"`
	DurationMS          int64                `json:"duration_ms"`
	Timestamp           time.Time            `json:"timestamp"`
}

// ReportSection is one titled block of the final report body.
type ReportSection struct {
	Title   string `json:"title"`
	Content string `json:"content"`
}

// FinalReport is the run's terminal artifact.
type FinalReport struct {
	ExecutiveSummary   string               `json:"executive_summary"`
	StructuredSections []ReportSection      `json:"structured_sections"`
	RiskAssessment     string               `json:"risk_assessment,omitempty"`
	Recommendations    []string             `json:"recommendations,omitempty"`
	References         []string             `json:"references"`
	ConfidenceScore    float64              `json:"confidence_score"`
	ResearchTrace      []ResearchTraceEntry `json:"research_trace"`
	ReportMode         string               `json:"report_mode"`
	TerminationReason  TerminationReason    `json:"termination_reason"`
}
