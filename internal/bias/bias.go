// Package bias provides deterministic stance classification and
// heuristic opinion scoring for short text passages. Everything here is
// pure lexicon matching, no model calls, with scores bounded to [0, 1].
package bias

import (
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/models"
)

var hedgingTerms = []string{
	"might", "may", "could", "possibly", "perhaps", "arguably",
	"it seems", "appears to", "tends to", "likely", "unlikely",
	"suggest", "suggests", "suggested", "indicate", "indicates",
	"some experts", "some argue", "it is possible", "remains unclear",
	"debatable", "uncertain", "questionable", "preliminary",
}

var strongClaimTerms = []string{
	"clearly", "obviously", "undeniably", "certainly", "definitely",
	"without question", "proven", "undoubtedly", "always", "never",
	"must", "absolutely", "inevitably", "unquestionably", "indisputably",
	"the fact is", "it is clear", "there is no doubt",
}

var negationPrefixes = []string{
	"not ", "no ", "never ", "neither ", "nor ", "cannot ", "isn't ",
	"doesn't ", "don't ", "won't ", "wouldn't ", "shouldn't ", "hasn't ",
	"haven't ", "hadn't ", "wasn't ", "weren't ", "couldn't ",
}

var positiveTerms = []string{
	"benefit", "advantage", "improvement", "growth", "success",
	"effective", "efficient", "promising", "breakthrough", "innovation",
	"progress", "opportunity", "strength", "positive", "gain",
	"superior", "excellent", "remarkable", "significant achievement",
}

var negativeTerms = []string{
	"risk", "danger", "threat", "decline", "failure", "harmful",
	"ineffective", "problematic", "concern", "drawback", "weakness",
	"negative", "loss", "inferior", "deterioration", "crisis",
	"obstacle", "limitation", "adverse", "detrimental",
}

var emotionalTerms = []string{
	"amazing", "terrible", "shocking", "alarming", "exciting",
	"horrifying", "incredible", "devastating", "wonderful", "tragic",
	"outrageous", "brilliant", "disastrous", "magnificent", "appalling",
	"stunning", "awful", "fantastic", "dreadful", "marvelous",
	"concerning", "disturbing", "inspiring", "disgraceful", "phenomenal",
}

var modalVerbs = []string{
	"should", "would", "could", "might", "may", "must", "shall",
	"ought", "need to", "have to",
}

var adjectiveSuffixes = []string{
	"ous", "ive", "ful", "less", "able", "ible", "ical", "ial",
	"ent", "ant", "ing",
}

func countHits(text string, terms []string) int {
	n := 0
	for _, t := range terms {
		if strings.Contains(text, t) {
			n++
		}
	}
	return n
}

// DetectStance classifies a statement as pro, contra, or neutral using
// polarity lexicons with negation flips. Heavy hedging without strong
// claims forces neutral.
func DetectStance(text string) models.Stance {
	lower := strings.ToLower(text)

	posCount := countHits(lower, positiveTerms)
	negCount := countHits(lower, negativeTerms)

	negationFlips := 0
	for _, neg := range negationPrefixes {
		for _, pos := range positiveTerms {
			if strings.Contains(lower, neg+pos) {
				negationFlips++
			}
		}
		for _, n := range negativeTerms {
			// negated negative reads as positive
			if strings.Contains(lower, neg+n) {
				negationFlips--
			}
		}
	}

	adjustedPos := posCount - negationFlips
	if adjustedPos < 0 {
		adjustedPos = 0
	}
	adjustedNeg := negCount + negationFlips
	if adjustedNeg < 0 {
		adjustedNeg = 0
	}

	hedgingCount := countHits(lower, hedgingTerms)
	strongCount := countHits(lower, strongClaimTerms)

	if hedgingCount >= 2 && strongCount == 0 {
		return models.StanceNeutral
	}

	diff := adjustedPos - adjustedNeg
	switch {
	case diff >= 2:
		return models.StancePro
	case diff <= -2:
		return models.StanceContra
	case diff == 1 && strongCount >= 1:
		return models.StancePro
	case diff == -1 && strongCount >= 1:
		return models.StanceContra
	default:
		return models.StanceNeutral
	}
}

// OpinionScore estimates how opinionated a passage is, 0 factual to 1
// highly opinionated. Components are adjective density, emotional
// lexicon hits, modal verb density, citation absence, and strong claim
// density, combined with fixed weights.
func OpinionScore(text string, hasCitations bool) float64 {
	lower := strings.ToLower(text)
	words := strings.Fields(lower)
	wordCount := len(words)
	if wordCount < 1 {
		wordCount = 1
	}

	adjCount := 0
	for _, w := range words {
		for _, suffix := range adjectiveSuffixes {
			if strings.HasSuffix(w, suffix) {
				adjCount++
				break
			}
		}
	}
	adjDensity := clamp1(float64(adjCount) / float64(wordCount) * 5)

	emotionalScore := clamp1(float64(countHits(lower, emotionalTerms)) / 3)

	padded := " " + lower + " "
	modalCount := 0
	for _, m := range modalVerbs {
		if strings.Contains(padded, " "+m+" ") {
			modalCount++
		}
	}
	denom := float64(wordCount) / 20
	if denom < 1 {
		denom = 1
	}
	modalDensity := clamp1(float64(modalCount) / denom)

	citationPenalty := 0.0
	if !hasCitations {
		citationPenalty = 1.0
	}

	strongScore := clamp1(float64(countHits(lower, strongClaimTerms)) / 2)

	score := adjDensity*0.20 +
		emotionalScore*0.30 +
		modalDensity*0.20 +
		citationPenalty*0.15 +
		strongScore*0.15
	return round4(clamp1(score))
}

// ScoreSourceBias scores a source summary. Missing citation context
// counts against the source.
func ScoreSourceBias(summary string, hasCitations bool) float64 {
	return OpinionScore(summary, hasCitations)
}

func clamp1(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}

func round4(f float64) float64 {
	return float64(int(f*10000+0.5)) / 10000
}
