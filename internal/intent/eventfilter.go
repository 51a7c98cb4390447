package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/models"
	"go.uber.org/zap"
)

func mustCompileCI(pattern string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)` + pattern)
}

// Future-event keyword indicators, secondary to the year check.
var futureEventIndicators = []string{
	"upcoming",
	"will be held",
	"scheduled for",
	"preview",
	"qualification stage",
	"to be played",
	"is expected to win",
	"will take place",
	"set to begin",
	"preparations for",
	"bid to host",
	"expected to win",
	"projected to win",
	"will compete",
	"qualifying round",
	"draw ceremony",
}

// Winner-action verbs, both active and passive voice, plus past
// participles that appear without an auxiliary in extractions.
var winnerVerbsRE = mustCompileCI(
	`\bwon\b|\bdefeated\b|\bclaimed\b|\bsecured\b|\bcaptured\b` +
		`|\blifted\b|\btriumphed\b|\bcrowned\b|\bawarded\b|\belected\b` +
		`|\bbeat\b|\bconquered\b|\bprevailed\b` +
		`|\bwas\s+won\b|\bwere\s+crowned\b|\bwas\s+awarded\b` +
		`|\bwas\s+elected\b|\bwas\s+defeated\b|\bwas\s+claimed\b` +
		`|\bvictorious\b|\bchampion\b|\bwinning\b|\bvictory\b` +
		`|\btook\s+home\b|\bclinched\b|\bearned\b|\blifted\s+the\b` +
		`|\bhoisted\b|\bdominated\b`)

func extractYears(text string) []int {
	var years []int
	for _, m := range yearRE.FindAllString(text, -1) {
		if y, err := strconv.Atoi(m); err == nil {
			years = append(years, y)
		}
	}
	return years
}

// isPrimarilyFuture decides whether a statement concerns a future
// event. Permissive: mixed statements with any past-year anchor are
// kept, so "Argentina won the 2022 final; the 2026 edition moves to
// North America" survives.
func isPrimarilyFuture(statement string, currentYear int) bool {
	years := extractYears(statement)
	hasWinnerVerb := winnerVerbsRE.MatchString(statement)

	if len(years) > 0 {
		hasPast, hasFuture := false, false
		for _, y := range years {
			if y <= currentYear {
				hasPast = true
			} else {
				hasFuture = true
			}
		}
		if hasFuture && !hasPast {
			return true
		}
		if hasPast {
			return false
		}
	}

	lower := strings.ToLower(statement)
	for _, ind := range futureEventIndicators {
		if strings.Contains(lower, ind) {
			return !hasWinnerVerb
		}
	}
	return false
}

// FilterFutureInsights drops insights that are clearly about future
// events when the intent is FactualEventWinner. If the filter would
// reject everything, it keeps everything: an answer with noise beats no
// answer.
func FilterFutureInsights(insights []models.Insight, qi QueryIntent, currentYear int, logger *zap.Logger) ([]models.Insight, int) {
	if qi != FactualEventWinner {
		return insights, 0
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	var kept []models.Insight
	rejected := 0
	for _, in := range insights {
		if isPrimarilyFuture(in.Statement, currentYear) {
			rejected++
			continue
		}
		kept = append(kept, in)
	}

	if len(kept) == 0 && len(insights) > 0 {
		logger.Warn("Event filter would reject every insight, keeping all",
			zap.Int("total", len(insights)),
		)
		return insights, 0
	}

	logger.Debug("Event filter applied",
		zap.Int("kept", len(kept)),
		zap.Int("rejected", rejected),
	)
	return kept, rejected
}

// ContainsCompletedResult reports whether any insight is a credible
// completed-event resolution: past year plus winner verb, not primarily
// future. Source count is a nice-to-have, not a gate; requiring
// multiple sources caused false negatives in early iterations.
func ContainsCompletedResult(insights []models.Insight, currentYear int) bool {
	for _, in := range insights {
		if completedResultStatement(in.Statement, currentYear) {
			return true
		}
	}
	return false
}

func completedResultStatement(stmt string, currentYear int) bool {
	hasPast := false
	for _, y := range extractYears(stmt) {
		if y <= currentYear {
			hasPast = true
			break
		}
	}
	if !hasPast {
		return false
	}
	if !winnerVerbsRE.MatchString(stmt) {
		return false
	}
	return !isPrimarilyFuture(stmt, currentYear)
}

// CountAgreeingSources counts unique supporting URLs across insights
// that pass the completed-result criteria.
func CountAgreeingSources(insights []models.Insight, currentYear int) int {
	urls := make(map[string]bool)
	for _, in := range insights {
		if !completedResultStatement(in.Statement, currentYear) {
			continue
		}
		for _, u := range in.SupportingSources {
			urls[u] = true
		}
	}
	return len(urls)
}

// FutureDriftPenalty computes the confidence deduction for future-event
// drift. Tiers are soft: over-penalizing collapses confidence when the
// correct answer is present alongside future-event noise. Returns 0 for
// non-event-winner intents.
func FutureDriftPenalty(insights []models.Insight, qi QueryIntent, currentYear int) float64 {
	if qi != FactualEventWinner || len(insights) == 0 {
		return 0
	}

	futureCount := 0
	for _, in := range insights {
		if isPrimarilyFuture(in.Statement, currentYear) {
			futureCount++
		}
	}
	futureRatio := float64(futureCount) / float64(len(insights))
	hasCompleted := ContainsCompletedResult(insights, currentYear)

	switch {
	case futureRatio >= 0.5 && !hasCompleted:
		return 0.15
	case futureRatio >= 0.5 && hasCompleted:
		return 0.03
	case !hasCompleted && futureCount > 0:
		return 0.08
	default:
		return 0
	}
}

// BuildFactualRefinementQuery targets the next search iteration at
// completed event results when resolution has not been reached.
func BuildFactualRefinementQuery(eventName, jurisdiction string, isElection bool) string {
	if isElection {
		switch {
		case jurisdiction != "" && eventName != "":
			return fmt.Sprintf("most recent completed %s %s winner result", jurisdiction, eventName)
		case eventName != "":
			return fmt.Sprintf("most recent completed %s winner result", eventName)
		default:
			return "most recent completed election winner result"
		}
	}
	if eventName != "" {
		return fmt.Sprintf("%s most recent completed winner final result", eventName)
	}
	return "most recent completed event winner result"
}
