// Package planner owns the research plan: creation, adaptive growth
// from evaluator gaps, and pruning of dead-end subtopics. Mutation is
// bounded so the plan can never oscillate or run away.
package planner

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/models"
	"go.uber.org/zap"
)

const (
	// MinActiveSubtopics is the pruning floor.
	MinActiveSubtopics = 3
	// MaxActiveSubtopics is the spawning ceiling.
	MaxActiveSubtopics = 10
	// MaxMutationsPerCall bounds additions and removals per iteration.
	MaxMutationsPerCall = 2
	// spawnConfidenceCutoff disables spawning near convergence.
	spawnConfidenceCutoff = 0.85
	// minCandidateLength rejects degenerate gap strings.
	minCandidateLength = 5
)

// Plan is the mutable research plan for one run. KeyQuestions and
// MetricsRequired come from planning and steer the final report; only
// Subtopics mutate during the run.
type Plan struct {
	Objective       string
	Subtopics       []models.Subtopic
	KeyQuestions    []string
	MetricsRequired []string
}

// ActiveCount returns the number of subtopics not marked removed.
func (p *Plan) ActiveCount() int {
	n := 0
	for _, st := range p.Subtopics {
		if st.Status != models.StatusRemoved {
			n++
		}
	}
	return n
}

// ActiveNames lists the names of non-removed subtopics.
func (p *Plan) ActiveNames() []string {
	var names []string
	for _, st := range p.Subtopics {
		if st.Status != models.StatusRemoved {
			names = append(names, st.Name)
		}
	}
	return names
}

// Manager applies bounded plan mutations. Removed names are never
// readmitted, which prevents spawn/prune oscillation.
type Manager struct {
	removedHistory map[string]bool
	logger         *zap.Logger
}

// NewManager creates a plan manager.
func NewManager(logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{removedHistory: make(map[string]bool), logger: logger}
}

// Spawn admits new subtopics from evaluator gap candidates. No-op on
// the first iteration, near convergence, or at the plan ceiling. At
// most MaxMutationsPerCall additions; candidates that are too short,
// overlap an active name, or were previously removed are skipped.
// Returns the names added.
func (m *Manager) Spawn(plan *Plan, candidates []string, globalConfidence float64, iteration int) []string {
	if iteration == 1 {
		return nil
	}
	if globalConfidence >= spawnConfidenceCutoff {
		return nil
	}
	active := plan.ActiveCount()
	if active >= MaxActiveSubtopics {
		return nil
	}

	budget := MaxMutationsPerCall
	if room := MaxActiveSubtopics - active; room < budget {
		budget = room
	}

	var added []string
	for _, cand := range candidates {
		if len(added) >= budget {
			break
		}
		name := strings.TrimSpace(cand)
		if len(name) < minCandidateLength {
			continue
		}
		if m.removedHistory[strings.ToLower(name)] {
			continue
		}
		if overlapsActive(plan, name) {
			continue
		}
		// fresh gaps outrank the seed plan so pruning sacrifices them last
		plan.Subtopics = append(plan.Subtopics, models.Subtopic{
			Name:     name,
			Priority: 1,
			Status:   models.StatusPending,
		})
		added = append(added, name)
		m.logger.Debug("Spawned subtopic", zap.String("name", name), zap.Int("iteration", iteration))
	}
	return added
}

// overlapsActive checks case-insensitive substring containment in both
// directions against every active subtopic name.
func overlapsActive(plan *Plan, name string) bool {
	lower := strings.ToLower(name)
	for _, st := range plan.Subtopics {
		if st.Status == models.StatusRemoved {
			continue
		}
		existing := strings.ToLower(st.Name)
		if strings.Contains(existing, lower) || strings.Contains(lower, existing) {
			return true
		}
	}
	return false
}

// Prune marks dead-end subtopics removed. No-op on the first
// iteration, when confidence improved, or at the plan floor. Candidates
// are active subtopics outside {removed, complete, sufficient} that
// produced zero insights; least important (numerically highest
// priority) go first. Returns the names removed.
func (m *Manager) Prune(plan *Plan, insights []models.Insight, iteration int, prevConfidence, currConfidence float64) []string {
	if iteration == 1 {
		return nil
	}
	if currConfidence > prevConfidence {
		return nil
	}
	active := plan.ActiveCount()
	if active <= MinActiveSubtopics {
		return nil
	}

	insightCounts := make(map[string]int)
	for _, in := range insights {
		insightCounts[in.Subtopic]++
	}

	type candidate struct {
		index    int
		priority int
	}
	var candidates []candidate
	for i, st := range plan.Subtopics {
		switch st.Status {
		case models.StatusRemoved, models.StatusComplete, models.StatusSufficient:
			continue
		}
		if insightCounts[st.Name] > 0 {
			continue
		}
		candidates = append(candidates, candidate{index: i, priority: st.Priority})
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return candidates[a].priority > candidates[b].priority
	})

	budget := MaxMutationsPerCall
	if room := active - MinActiveSubtopics; room < budget {
		budget = room
	}

	var removed []string
	for _, c := range candidates {
		if len(removed) >= budget {
			break
		}
		st := &plan.Subtopics[c.index]
		st.Status = models.StatusRemoved
		m.removedHistory[strings.ToLower(st.Name)] = true
		removed = append(removed, st.Name)
		m.logger.Debug("Pruned subtopic", zap.String("name", st.Name), zap.Int("iteration", iteration))
	}
	return removed
}

// ApplyPriorityPromotions bumps subtopics named in evaluator plan
// updates to top priority. Matching is substring-based against the
// update text.
func (m *Manager) ApplyPriorityPromotions(plan *Plan, planUpdates []string) {
	for _, update := range planUpdates {
		lower := strings.ToLower(update)
		for i := range plan.Subtopics {
			if strings.Contains(lower, strings.ToLower(plan.Subtopics[i].Name)) {
				plan.Subtopics[i].Priority = 1
			}
		}
	}
}

// BuildPlanningNote summarizes the iteration's plan deltas for prompts
// and the trace.
func (m *Manager) BuildPlanningNote(added, removed []string) string {
	if len(added) == 0 && len(removed) == 0 {
		return "Plan unchanged."
	}
	var parts []string
	if len(added) > 0 {
		parts = append(parts, fmt.Sprintf("Added subtopics: %s.", strings.Join(added, ", ")))
	}
	if len(removed) > 0 {
		parts = append(parts, fmt.Sprintf("Removed subtopics: %s.", strings.Join(removed, ", ")))
	}
	return strings.Join(parts, " ")
}

// WasRemoved reports whether a name is in the removal history.
func (m *Manager) WasRemoved(name string) bool {
	return m.removedHistory[strings.ToLower(name)]
}
