package planner

import (
	"fmt"
	"testing"

	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newPlan(names ...string) *Plan {
	p := &Plan{Objective: "test objective"}
	for _, n := range names {
		p.Subtopics = append(p.Subtopics, models.Subtopic{Name: n, Priority: 2, Status: models.StatusInProgress})
	}
	return p
}

func TestSpawn_NoOpGates(t *testing.T) {
	m := NewManager(zap.NewNop())

	// first iteration
	p := newPlan("alpha topic", "beta topic", "gamma topic")
	require.Empty(t, m.Spawn(p, []string{"fresh aspect"}, 0.5, 1))

	// near convergence
	require.Empty(t, m.Spawn(p, []string{"fresh aspect"}, 0.85, 2))

	// plan ceiling
	var names []string
	for i := 0; i < MaxActiveSubtopics; i++ {
		names = append(names, fmt.Sprintf("subtopic number %d", i))
	}
	full := newPlan(names...)
	require.Empty(t, m.Spawn(full, []string{"fresh aspect"}, 0.5, 2))
}

func TestSpawn_AdmitsBoundedCandidates(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("alpha topic", "beta topic", "gamma topic")

	added := m.Spawn(p, []string{"supply chain risks", "labor market effects", "third extra aspect"}, 0.5, 2)
	require.Len(t, added, MaxMutationsPerCall)
	require.Equal(t, 5, p.ActiveCount())

	// new subtopics arrive pending at top priority
	last := p.Subtopics[len(p.Subtopics)-1]
	require.Equal(t, models.StatusPending, last.Status)
	require.Equal(t, 1, last.Priority)
}

func TestSpawn_FreshGapsOutrankSeeds(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("alpha topic", "beta topic", "gamma topic", "delta topic")

	added := m.Spawn(p, []string{"supply chain risk"}, 0.5, 2)
	require.Equal(t, []string{"supply chain risk"}, added)
	require.Equal(t, 1, p.Subtopics[len(p.Subtopics)-1].Priority)

	// with no insights anywhere, pruning sacrifices a priority-2 seed
	// before the freshly spawned gap
	removed := m.Prune(p, nil, 3, 0.6, 0.5)
	require.NotEmpty(t, removed)
	require.NotContains(t, removed, "supply chain risk")
}

func TestSpawn_SkipsShortOverlappingAndRemoved(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("alpha topic", "beta topic", "gamma topic", "delta topic")

	// prune "delta topic" first so it lands in the removal history
	p.Subtopics[3].Priority = 3
	removed := m.Prune(p, nil, 2, 0.6, 0.5)
	require.Contains(t, removed, "delta topic")

	added := m.Spawn(p, []string{
		"gap",               // too short
		"ALPHA topic",       // overlaps existing, case-insensitive
		"delta topic",       // previously removed, never readmitted
		"labor market data", // acceptable
	}, 0.5, 3)
	require.Equal(t, []string{"labor market data"}, added)
}

func TestSpawn_RespectsCeilingRoom(t *testing.T) {
	m := NewManager(zap.NewNop())
	var names []string
	for i := 0; i < MaxActiveSubtopics-1; i++ {
		names = append(names, fmt.Sprintf("subtopic number %d", i))
	}
	p := newPlan(names...)
	added := m.Spawn(p, []string{"first new aspect", "second new aspect"}, 0.5, 2)
	require.Len(t, added, 1, "only one slot left under the ceiling")
	require.Equal(t, MaxActiveSubtopics, p.ActiveCount())
}

func TestPrune_NoOpGates(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("alpha topic", "beta topic", "gamma topic", "delta topic")

	require.Empty(t, m.Prune(p, nil, 1, 0.0, 0.5), "first iteration")
	require.Empty(t, m.Prune(p, nil, 2, 0.4, 0.5), "confidence improved")

	floor := newPlan("alpha topic", "beta topic", "gamma topic")
	require.Empty(t, m.Prune(floor, nil, 2, 0.6, 0.5), "at the floor")
}

func TestPrune_RemovesLeastImportantBarrenSubtopics(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("alpha topic", "beta topic", "gamma topic", "delta topic", "epsilon topic", "zeta topic")
	p.Subtopics[3].Priority = 3 // delta: least important
	p.Subtopics[4].Priority = 3 // epsilon
	p.Subtopics[5].Priority = 1 // zeta: most important

	insights := []models.Insight{
		{Subtopic: "alpha topic", Statement: "x"},
		{Subtopic: "beta topic", Statement: "y"},
	}
	removed := m.Prune(p, insights, 2, 0.6, 0.5)
	require.Len(t, removed, MaxMutationsPerCall)
	require.Equal(t, []string{"delta topic", "epsilon topic"}, removed)
	require.Equal(t, 4, p.ActiveCount())
}

func TestPrune_SkipsSettledStatuses(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("alpha topic", "beta topic", "gamma topic", "delta topic")
	p.Subtopics[2].Status = models.StatusSufficient
	p.Subtopics[3].Status = models.StatusComplete

	removed := m.Prune(p, nil, 2, 0.6, 0.5)
	// alpha and beta are barren candidates, but the floor allows one removal
	require.Len(t, removed, 1)
}

func TestPrune_RespectsFloorRoom(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("alpha topic", "beta topic", "gamma topic", "delta topic")
	removed := m.Prune(p, nil, 2, 0.6, 0.5)
	require.Len(t, removed, 1, "only one removal keeps the plan at the floor")
	require.Equal(t, MinActiveSubtopics, p.ActiveCount())
}

func TestOscillationInvariant(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("alpha topic", "beta topic", "gamma topic", "delta topic")
	p.Subtopics[3].Priority = 3

	removed := m.Prune(p, nil, 2, 0.6, 0.5)
	require.Equal(t, []string{"delta topic"}, removed)
	require.True(t, m.WasRemoved("Delta Topic"))

	// evaluator suggests the same gap again over several iterations
	for iter := 3; iter <= 5; iter++ {
		added := m.Spawn(p, []string{"delta topic"}, 0.5, iter)
		require.Empty(t, added, "removed subtopic must never be readmitted")
	}
}

func TestApplyPriorityPromotions(t *testing.T) {
	m := NewManager(zap.NewNop())
	p := newPlan("pricing trends", "adoption rates")
	m.ApplyPriorityPromotions(p, []string{"Focus harder on pricing trends next iteration"})
	require.Equal(t, 1, p.Subtopics[0].Priority)
	require.Equal(t, 2, p.Subtopics[1].Priority)
}

func TestBuildPlanningNote(t *testing.T) {
	m := NewManager(zap.NewNop())
	require.Equal(t, "Plan unchanged.", m.BuildPlanningNote(nil, nil))
	note := m.BuildPlanningNote([]string{"a"}, []string{"b"})
	require.Contains(t, note, "Added subtopics: a.")
	require.Contains(t, note, "Removed subtopics: b.")
}
