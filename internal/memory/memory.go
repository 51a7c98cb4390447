// Package memory accumulates everything a run learns. All state is
// in-process; the research trace is the only audit record.
package memory

import (
	"sync"

	"github.com/Kocoro-lab/Meridian/internal/models"
)

// ResearchMemory is the mutex-guarded accumulation store for one run.
type ResearchMemory struct {
	mu sync.Mutex

	sources        map[string]models.SourceMetadata // keyed by URL
	insights       []models.Insight
	statistics     []models.Statistic
	contradictions []models.Contradiction
	evaluations    []models.EvaluationResult
	trace          []models.ResearchTraceEntry
}

// New creates an empty memory.
func New() *ResearchMemory {
	return &ResearchMemory{sources: make(map[string]models.SourceMetadata)}
}

// AddSources merges sources deduplicated by URL and returns how many
// were newly accepted.
func (m *ResearchMemory) AddSources(sources []models.SourceMetadata) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	added := 0
	for _, s := range sources {
		if s.URL == "" {
			continue
		}
		if _, seen := m.sources[s.URL]; seen {
			continue
		}
		m.sources[s.URL] = s
		added++
	}
	return added
}

// AddInsights appends insights.
func (m *ResearchMemory) AddInsights(insights []models.Insight) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insights = append(m.insights, insights...)
}

// AddStatistics appends statistics.
func (m *ResearchMemory) AddStatistics(stats []models.Statistic) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statistics = append(m.statistics, stats...)
}

// AddContradictions appends contradictions.
func (m *ResearchMemory) AddContradictions(cs []models.Contradiction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contradictions = append(m.contradictions, cs...)
}

// AddEvaluation appends an evaluation result.
func (m *ResearchMemory) AddEvaluation(e models.EvaluationResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.evaluations = append(m.evaluations, e)
}

// AddTraceEntry appends a trace entry.
func (m *ResearchMemory) AddTraceEntry(e models.ResearchTraceEntry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.trace = append(m.trace, e)
}

// Sources returns a copy of all accepted sources.
func (m *ResearchMemory) Sources() []models.SourceMetadata {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]models.SourceMetadata, 0, len(m.sources))
	for _, s := range m.sources {
		out = append(out, s)
	}
	return out
}

// SourceByURL looks up a source.
func (m *ResearchMemory) SourceByURL(url string) (models.SourceMetadata, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[url]
	return s, ok
}

// SourceCount reports the number of distinct sources.
func (m *ResearchMemory) SourceCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sources)
}

// Insights returns a copy of all insights.
func (m *ResearchMemory) Insights() []models.Insight {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Insight(nil), m.insights...)
}

// InsightsForSubtopic filters insights by subtopic name.
func (m *ResearchMemory) InsightsForSubtopic(name string) []models.Insight {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.Insight
	for _, in := range m.insights {
		if in.Subtopic == name {
			out = append(out, in)
		}
	}
	return out
}

// Statistics returns a copy of all statistics.
func (m *ResearchMemory) Statistics() []models.Statistic {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Statistic(nil), m.statistics...)
}

// Contradictions returns a copy of all contradictions.
func (m *ResearchMemory) Contradictions() []models.Contradiction {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.Contradiction(nil), m.contradictions...)
}

// Evaluations returns a copy of all evaluation results.
func (m *ResearchMemory) Evaluations() []models.EvaluationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.EvaluationResult(nil), m.evaluations...)
}

// LastEvaluation returns the most recent evaluation, if any.
func (m *ResearchMemory) LastEvaluation() (models.EvaluationResult, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.evaluations) == 0 {
		return models.EvaluationResult{}, false
	}
	return m.evaluations[len(m.evaluations)-1], true
}

// Trace returns a copy of the research trace.
func (m *ResearchMemory) Trace() []models.ResearchTraceEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]models.ResearchTraceEntry(nil), m.trace...)
}
