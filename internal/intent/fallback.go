package intent

import (
	"regexp"
	"strings"

	"github.com/Kocoro-lab/Meridian/internal/models"
	"go.uber.org/zap"
)

// Last-resort extraction from raw source summaries, used only on
// event-winner runs where the analyst produced zero valid insights.
// Clause-bound: the winner verb and the year must share a clause.

// FallbackConfidence is assigned to rescued insights.
const FallbackConfidence = 0.80

// Subset of winnerVerbsRE used by the extractor; mirrors the completion
// filter minus a few long-tail phrasings.
var fallbackWinnerRE = mustCompileCI(
	`\bwon\b|\bdefeated\b|\bclaimed\b|\bsecured\b|\bcaptured\b` +
		`|\blifted\b|\btriumphed\b|\bcrowned\b|\bawarded\b|\belected\b` +
		`|\bbeat\b|\bconquered\b|\bprevailed\b` +
		`|\bwas\s+won\b|\bwas\s+awarded\b|\bwas\s+elected\b` +
		`|\bvictorious\b|\bchampion\b|\bwinning\b|\bvictory\b` +
		`|\btook\s+home\b|\bclinched\b|\bearned\b`)

var entityRE = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)\b`)

var fallbackFutureRE = mustCompileCI(
	`\bwill\s+(?:be|win|host|take)\b|\bexpected\s+to\s+win\b` +
		`|\bupcoming\b|\bscheduled\b`)

var clauseSplitRE = regexp.MustCompile(
	`[;]|\s+but\s+|\s+while\s+|\s+whereas\s+|\s+although\s+` +
		`|\s+however[,]?\s+|\s+meanwhile\s+`)

var sentenceSplitRE = regexp.MustCompile(`[.!?]+`)

var nonEntityWords = map[string]bool{
	"The": true, "This": true, "That": true, "In": true, "On": true,
	"At": true, "For": true, "With": true, "From": true,
	"After": true, "Before": true, "During": true, "Between": true,
	"World": true, "Cup": true, "Prize": true,
	"League": true, "Championship": true, "Tournament": true,
	"Final": true, "Olympic": true, "Olympics": true,
	"Super": true, "Bowl": true, "Academy": true,
	"Award": true, "Awards": true,
}

// clauseBoundCheck verifies a winner verb and a past year co-occur in
// the same clause, or the sentence carries no year at all (the query
// already constrains it), or the past year sits in the immediately
// preceding clause ("In 2022, Argentina won the final").
func clauseBoundCheck(sentence string, currentYear int) bool {
	clauses := clauseSplitRE.Split(sentence, -1)
	if len(clauses) == 0 {
		clauses = []string{sentence}
	}

	hasAnyYear := yearRE.MatchString(sentence)

	for i, clause := range clauses {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}
		if !fallbackWinnerRE.MatchString(clause) {
			continue
		}

		clauseYears := extractYears(clause)
		hasPast := false
		for _, y := range clauseYears {
			if y <= currentYear {
				hasPast = true
				break
			}
		}
		if hasPast {
			return true
		}
		if len(clauseYears) == 0 && !hasAnyYear {
			return true
		}
		if len(clauseYears) == 0 && hasAnyYear && i > 0 {
			for _, y := range extractYears(clauses[i-1]) {
				if y <= currentYear {
					return true
				}
			}
		}
	}

	return false
}

func extractFactualSentences(text string, currentYear int) []string {
	var results []string
	for _, sent := range sentenceSplitRE.Split(text, -1) {
		sent = strings.TrimSpace(sent)
		if len(sent) < 15 {
			continue
		}
		if !fallbackWinnerRE.MatchString(sent) {
			continue
		}
		if fallbackFutureRE.MatchString(sent) {
			continue
		}

		years := extractYears(sent)
		hasPast, hasFuture := false, false
		for _, y := range years {
			if y <= currentYear {
				hasPast = true
			} else {
				hasFuture = true
			}
		}
		if hasFuture && !hasPast {
			continue
		}

		if !clauseBoundCheck(sent, currentYear) {
			continue
		}
		results = append(results, sent)
	}
	return results
}

// extractEntity finds the most likely winner entity: the first
// capitalized word sequence that is not made of stop words.
func extractEntity(sentence string) string {
	for _, m := range entityRE.FindAllString(sentence, -1) {
		words := strings.Fields(m)
		if len(words) == 1 && nonEntityWords[words[0]] {
			continue
		}
		all := true
		for _, w := range words {
			if !nonEntityWords[w] {
				all = false
				break
			}
		}
		if all {
			continue
		}
		return m
	}
	return ""
}

// FallbackExtract scans source summaries for clause-bound winner
// statements and builds minimal insights from them. Statements are
// deduplicated case-insensitively.
func FallbackExtract(sources []models.SourceMetadata, subtopicName string, currentYear int, logger *zap.Logger) []models.Insight {
	if logger == nil {
		logger = zap.NewNop()
	}
	if subtopicName == "" {
		subtopicName = "Winner"
	}

	var extracted []models.Insight
	seen := make(map[string]bool)

	for _, src := range sources {
		if src.Summary == "" {
			continue
		}
		for _, sentence := range extractFactualSentences(src.Summary, currentYear) {
			norm := strings.ToLower(strings.TrimSpace(sentence))
			if seen[norm] {
				continue
			}
			seen[norm] = true

			entity := extractEntity(sentence)
			if entity == "" {
				continue
			}

			var supporting []string
			if src.URL != "" {
				supporting = []string{src.URL}
			}
			in := models.Insight{
				Subtopic:          subtopicName,
				Statement:         strings.TrimSpace(sentence),
				SupportingSources: supporting,
				Confidence:        FallbackConfidence,
				Stance:            models.StanceNeutral,
			}
			if err := in.Validate(); err != nil {
				logger.Warn("Fallback extraction produced invalid insight", zap.Error(err))
				continue
			}
			extracted = append(extracted, in)
			logger.Info("Fallback extraction rescued insight",
				zap.String("entity", entity),
				zap.String("url", src.URL),
			)
		}
	}

	if len(extracted) == 0 {
		logger.Warn("Fallback extraction found no clause-bound factual patterns",
			zap.Int("sources", len(sources)),
		)
	}
	return extracted
}
