// Package temporal provides deterministic time-awareness utilities:
// query sensitivity detection, publication year extraction, source date
// distribution, and the bounded recency penalty. Rule-based only, no
// model calls, no hard date filtering.
package temporal

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Kocoro-lab/Meridian/internal/models"
)

const (
	// MinDatedSources gates the recency penalty: below this many dated
	// sources no penalty applies.
	MinDatedSources = 3
	// RecencyThresholdYears separates "recent" from "older" sources.
	RecencyThresholdYears = 5
	// MaxRecencyPenalty bounds the confidence deduction.
	MaxRecencyPenalty = 0.05
	// MinDatedCoverage is the fraction of sources that must carry dates
	// before the penalty can apply.
	MinDatedCoverage = 0.50
)

var strongRecencyTerms = []string{
	"latest",
	"recent",
	"current",
	"today",
	"this year",
	"updated",
	"new developments",
	"as of",
}

var trendTerms = []string{
	"trend",
	"growth rate",
	"market size",
	"regulation changes",
	"emerging",
}

var presentQualifiers = []string{
	"current",
	"recent",
	"latest",
	"today",
	"now",
	"this year",
}

var yearPattern = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

// DetectSensitivity reports whether a query is temporally sensitive.
// True when the query has a strong recency term, a year within
// [current-1, current+1], or a trend term plus a present qualifier.
func DetectSensitivity(query string) bool {
	return detectSensitivity(query, time.Now().Year())
}

func detectSensitivity(query string, currentYear int) bool {
	q := strings.ToLower(query)

	for _, term := range strongRecencyTerms {
		if strings.Contains(q, term) {
			return true
		}
	}

	for _, m := range yearPattern.FindAllString(q, -1) {
		if year, err := strconv.Atoi(m); err == nil && year >= currentYear-1 {
			return true
		}
	}

	for _, term := range trendTerms {
		if strings.Contains(q, term) {
			for _, qual := range presentQualifiers {
				if strings.Contains(q, qual) {
					return true
				}
			}
			break
		}
	}

	return false
}

// ExtractYear pulls a 4-digit year from a date string. Returns ok=false
// when the string carries no parseable year; never guesses.
func ExtractYear(publicationDate *string) (int, bool) {
	if publicationDate == nil {
		return 0, false
	}
	s := strings.TrimSpace(*publicationDate)
	if s == "" {
		return 0, false
	}
	m := yearPattern.FindString(s)
	if m == "" {
		return 0, false
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return year, true
}

// Distribution counts sources by date availability and age relative to
// currentYear. Sources older than RecencyThresholdYears are "older".
func Distribution(sources []models.SourceMetadata, currentYear int) models.TemporalDistribution {
	if currentYear == 0 {
		currentYear = time.Now().Year()
	}
	cutoff := currentYear - RecencyThresholdYears

	dist := models.TemporalDistribution{Total: len(sources)}
	for _, src := range sources {
		year, ok := ExtractYear(src.PublicationDate)
		if !ok {
			dist.Unknown++
			continue
		}
		dist.Dated++
		if year >= cutoff {
			dist.Recent++
		} else {
			dist.Older++
		}
	}
	return dist
}

// RecencyPenalty computes the bounded confidence deduction for stale
// evidence. All gates must pass: temporal sensitivity, at least
// MinDatedSources dated sources, at least half the sources dated, and a
// majority of dated sources older than the threshold.
func RecencyPenalty(dist models.TemporalDistribution, temporallySensitive bool) float64 {
	if !temporallySensitive {
		return 0
	}
	if dist.Dated < MinDatedSources {
		return 0
	}
	if dist.Total > 0 && float64(dist.Dated)/float64(dist.Total) < MinDatedCoverage {
		return 0
	}
	if dist.Dated > 0 {
		oldRatio := float64(dist.Older) / float64(dist.Dated)
		if oldRatio > 0.5 {
			penalty := oldRatio * MaxRecencyPenalty
			if penalty > MaxRecencyPenalty {
				penalty = MaxRecencyPenalty
			}
			return penalty
		}
	}
	return 0
}
