package evaluator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/config"
	"github.com/Kocoro-lab/Meridian/internal/models"
)

// StrictnessResult is the outcome of evidence-rigor enforcement. An
// unsatisfied result blocks confidence-based termination.
type StrictnessResult struct {
	Satisfied bool
	Failures  []string
}

// CheckStrictness evaluates the evidence against the preset's
// constraints: sources per insight, statistics per subtopic, and domain
// diversity across all sources.
func CheckStrictness(
	preset config.StrictnessPreset,
	insights []models.Insight,
	statistics []models.Statistic,
	sources []models.SourceMetadata,
	subtopicNames []string,
) StrictnessResult {
	var failures []string

	underSourced := make(map[string]bool)
	for _, in := range insights {
		if len(in.SupportingSources) < preset.MinSourcesPerInsight {
			name := in.Subtopic
			if name == "" {
				name = "unknown"
			}
			underSourced[name] = true
		}
	}
	if len(underSourced) > 0 {
		names := sortedKeys(underSourced)
		if len(names) > 5 {
			names = names[:5]
		}
		failures = append(failures, fmt.Sprintf(
			"Insights in %d subtopic(s) have fewer than %d supporting source(s): %s",
			len(underSourced), preset.MinSourcesPerInsight, strings.Join(names, ", ")))
	}

	statsBySubtopic := make(map[string]int)
	for _, st := range statistics {
		statsBySubtopic[st.Subtopic]++
	}
	var underStats []string
	for _, name := range subtopicNames {
		if statsBySubtopic[name] < preset.MinStatsPerSubtopic {
			underStats = append(underStats, name)
		}
	}
	if len(underStats) > 0 {
		shown := underStats
		if len(shown) > 5 {
			shown = shown[:5]
		}
		failures = append(failures, fmt.Sprintf(
			"%d subtopic(s) have fewer than %d statistic(s): %s",
			len(underStats), preset.MinStatsPerSubtopic, strings.Join(shown, ", ")))
	}

	domains := make(map[models.DomainType]bool)
	for _, s := range sources {
		domains[s.DomainType] = true
	}
	if len(domains) < preset.MinDomainTypes {
		failures = append(failures, fmt.Sprintf(
			"Domain diversity insufficient: %d type(s) found, %d required",
			len(domains), preset.MinDomainTypes))
	}

	return StrictnessResult{Satisfied: len(failures) == 0, Failures: failures}
}

func sortedKeys(m map[string]bool) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
