// Package intent classifies queries into semantic intent categories and
// validates event-resolution evidence. All logic is pure string-pattern
// matching; no model calls.
//
// Classification fails open: a winner signal alone is enough for
// FactualEventWinner even without a recognized event or year. Matching
// is word-boundary-safe so "open source" never hits the tennis Open.
package intent

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// QueryIntent is the detected semantic category of a research query.
type QueryIntent string

const (
	FactualEventWinner  QueryIntent = "FACTUAL_EVENT_WINNER"
	FactualEntityLookup QueryIntent = "FACTUAL_ENTITY_LOOKUP"
	TrendAnalysis       QueryIntent = "TREND_ANALYSIS"
	OpenResearch        QueryIntent = "OPEN_RESEARCH"
	TemporalRecentInfo  QueryIntent = "TEMPORAL_RECENT_INFO"
	IntentOther         QueryIntent = "OTHER"
)

var winnerRE = regexp.MustCompile(`(?i)` +
	`\bwho\s+won\b` +
	`|\bwinner\b` +
	`|\bchampion(?:s)?\b` +
	`|\bwho\s+is\s+the\s+champion\b` +
	`|\bwho\s+claimed\b` +
	`|\bwho\s+secured\b` +
	`|\bwho\s+defeated\b` +
	`|\bmedal(?:ist|lists?)?\b` +
	`|\bgold\s+medal\b`)

var recencyRE = regexp.MustCompile(`(?i)` +
	`\blast\b` +
	`|\blatest\b` +
	`|\bmost\s+recent\b` +
	`|\bcurrent\b` +
	`|\breigning\b` +
	`|\bdefending\b`)

type eventPattern struct {
	re        *regexp.Regexp
	canonical string
}

func ep(pattern, canonical string) eventPattern {
	return eventPattern{re: regexp.MustCompile(`(?i)` + pattern), canonical: canonical}
}

// Ordered: first match wins; generic "championship" sits last as the
// low-priority fallback.
var eventPatterns = []eventPattern{
	// Football / Soccer
	ep(`\bfifa\s+world\s+cup\b`, "FIFA World Cup"),
	ep(`\bworld\s+cup\b`, "World Cup"),
	ep(`\bchampions\s+league\b`, "Champions League"),
	ep(`\beuropean\s+championship\b`, "European Championship"),
	ep(`\beuro(?:s)?\s+\d{4}\b`, "European Championship"),
	ep(`\bcopa\s+america\b`, "Copa America"),
	ep(`\bpremier\s+league\b`, "Premier League"),
	ep(`\bla\s+liga\b`, "La Liga"),
	ep(`\bbundesliga\b`, "Bundesliga"),
	ep(`\bserie\s+a\b`, "Serie A"),
	// Olympics
	ep(`\bolympic(?:s|games)?\b`, "Olympics"),
	ep(`\bwinter\s+olympics\b`, "Winter Olympics"),
	ep(`\bsummer\s+olympics\b`, "Summer Olympics"),
	ep(`\bparalympic(?:s|games)?\b`, "Paralympics"),
	// US Sports
	ep(`\bsuper\s+bowl\b`, "Super Bowl"),
	ep(`\bnba\s+finals?\b`, "NBA Finals"),
	ep(`\bnba\s+championship\b`, "NBA Championship"),
	ep(`\bworld\s+series\b`, "World Series"),
	ep(`\bstanley\s+cup\b`, "Stanley Cup"),
	ep(`\bmarch\s+madness\b`, "March Madness"),
	// Tennis
	ep(`\bwimbledon\b`, "Wimbledon"),
	ep(`\bus\s+open\b`, "US Open"),
	ep(`\bfrench\s+open\b`, "French Open"),
	ep(`\baustralian\s+open\b`, "Australian Open"),
	ep(`\brolland?\s+garros\b`, "French Open"),
	ep(`\bgrand\s+slam\b`, "Grand Slam"),
	// Motorsport
	ep(`\bgrand\s+prix\b`, "Grand Prix"),
	ep(`\bformula\s+(?:1|one)\b`, "Formula 1"),
	ep(`\bf1\s+championship\b`, "Formula 1"),
	ep(`\bindy\s*500\b`, "Indy 500"),
	ep(`\ble\s+mans\b`, "Le Mans"),
	// Cricket
	ep(`\bcricket\s+world\s+cup\b`, "Cricket World Cup"),
	ep(`\bipl\b`, "IPL"),
	ep(`\bashes\b`, "The Ashes"),
	ep(`\bt20\s+world\s+cup\b`, "T20 World Cup"),
	// Awards / Prizes
	ep(`\bnobel\s+prize\b`, "Nobel Prize"),
	ep(`\bnobel\b`, "Nobel Prize"),
	ep(`\boscar(?:s)?\b`, "Oscars"),
	ep(`\bacademy\s+awards?\b`, "Academy Awards"),
	ep(`\bgolden\s+globe(?:s)?\b`, "Golden Globes"),
	ep(`\bgrammy(?:s|awards?)?\b`, "Grammy Awards"),
	ep(`\bemmy(?:s|awards?)?\b`, "Emmy Awards"),
	ep(`\bballon\s+d.?or\b`, "Ballon d'Or"),
	ep(`\bpulitzer\b`, "Pulitzer Prize"),
	ep(`\bbooker\s+prize\b`, "Booker Prize"),
	ep(`\bfields\s+medal\b`, "Fields Medal"),
	ep(`\bturing\s+award\b`, "Turing Award"),
	// Elections / Politics
	ep(`\bpresidential\s+election\b`, "Presidential Election"),
	ep(`\bgeneral\s+election\b`, "General Election"),
	ep(`\belection\b`, "Election"),
	ep(`\bprime\s+minister\b`, "Election"),
	// Generic championships, lowest priority
	ep(`\bchampionship\b`, "Championship"),
}

var trendRE = regexp.MustCompile(`(?i)` +
	`\btrend(?:s|ing)?\b` +
	`|\bgrowth\s+rate\b` +
	`|\bmarket\s+size\b` +
	`|\bregulation\s+change(?:s)?\b` +
	`|\bemerging\b` +
	`|\bviewership\b` +
	`|\bpopularity\b` +
	`|\bstatistic(?:s)?\b` +
	`|\banalysis\b` +
	`|\bimpact\b` +
	`|\bhistory\s+of\b` +
	`|\bevolution\s+of\b`)

var presentQualifiersRE = regexp.MustCompile(`(?i)\bcurrent\b|\brecent\b|\blatest\b|\btoday\b|\bnow\b|\bthis\s+year\b`)

var yearRE = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)

var jurisdictionRE = regexp.MustCompile(`(?i)` +
	`\bus\b|\bu\.s\.\b|\bunited\s+states\b|\bamerican\b` +
	`|\buk\b|\bu\.k\.\b|\bbritish\b|\bindia(?:n)?\b` +
	`|\bfrench\b|\bfrance\b|\bgerman(?:y)?\b` +
	`|\bbrazil(?:ian)?\b|\bcanad(?:a|ian)\b|\baustrali(?:a|an)\b` +
	`|\bmexico\b|\bmexican\b|\bnigeria(?:n)?\b` +
	`|\bjapan(?:ese)?\b|\bsouth\s+korea(?:n)?\b` +
	`|\bresidential\b|\bcongressional\b|\bparliamentary\b` +
	`|\bmidterm\b|\bstate\b|\bfederal\b`)

var electionRE = regexp.MustCompile(`(?i)\belection\b|\bpresidential\b|\bprime\s+minister\b|\bvot(?:e|ing|ed)\b`)

// Classify returns the query's intent. Priority: trend analysis first
// (keeps "latest trends in FIFA World Cup viewership" out of the
// event-winner path), then event winner, then OTHER.
func Classify(query string) QueryIntent {
	q := strings.TrimSpace(query)

	if trendRE.MatchString(q) {
		if presentQualifiersRE.MatchString(q) || recencyRE.MatchString(q) {
			return TrendAnalysis
		}
	}

	if winnerRE.MatchString(q) {
		return FactualEventWinner
	}

	return IntentOther
}

// ExtractEventName returns the canonical name of the first recognized
// recurring event, or "" when none matches.
func ExtractEventName(query string) string {
	for _, p := range eventPatterns {
		if p.re.MatchString(query) {
			return p.canonical
		}
	}
	return ""
}

// ExtractEventYear returns the first explicit 4-digit year, ok=false
// when absent.
func ExtractEventYear(query string) (int, bool) {
	m := yearRE.FindString(query)
	if m == "" {
		return 0, false
	}
	year, err := strconv.Atoi(m)
	if err != nil {
		return 0, false
	}
	return year, true
}

// HasRecencyModifier reports whether the query carries "last", "latest"
// or similar.
func HasRecencyModifier(query string) bool {
	return recencyRE.MatchString(query)
}

// IsElectionQuery reports whether the query concerns an election or
// political event.
func IsElectionQuery(query string) bool {
	return electionRE.MatchString(query)
}

// ExtractJurisdiction returns the country or jurisdiction hint from an
// election query, or "".
func ExtractJurisdiction(query string) string {
	return jurisdictionRE.FindString(query)
}

// ReformulateEventQuery rewrites a winner query for completed-event
// retrieval. Reformulation happens only for FactualEventWinner intent
// with a recency modifier and no explicit year; an explicit year
// preserves user specificity.
func ReformulateEventQuery(query string, qi QueryIntent) string {
	if qi != FactualEventWinner {
		return ""
	}
	if _, ok := ExtractEventYear(query); ok {
		return ""
	}
	if !HasRecencyModifier(query) {
		return ""
	}
	eventName := ExtractEventName(query)
	if eventName == "" {
		return ""
	}

	if IsElectionQuery(query) {
		if jurisdiction := ExtractJurisdiction(query); jurisdiction != "" {
			return fmt.Sprintf("most recent completed %s %s winner result", jurisdiction, eventName)
		}
		return fmt.Sprintf("most recent completed %s winner result", eventName)
	}

	return fmt.Sprintf("%s most recent winner result completed", eventName)
}
