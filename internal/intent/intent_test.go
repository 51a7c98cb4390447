package intent

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	cases := []struct {
		query string
		want  QueryIntent
	}{
		{"Who won the last FIFA World Cup?", FactualEventWinner},
		{"Who won the 2018 FIFA World Cup?", FactualEventWinner},
		{"Who won FIFA World Cup?", FactualEventWinner},
		{"Who won the latest FIFA World Cup?", FactualEventWinner},
		{"Who will win the 2026 FIFA World Cup?", IntentOther},
		{"Who won the last US election?", FactualEventWinner},
		{"Latest trends in FIFA World Cup viewership", TrendAnalysis},
		{"Who won the Nobel Prize in Physics 2023?", FactualEventWinner},
		{"What is quantum computing?", IntentOther},
		{"Who won the latest Champions League?", FactualEventWinner},
		{"Who won Wimbledon?", FactualEventWinner},
		{"open source software trends", IntentOther},
		{"Who won the latest Oscar for best picture?", FactualEventWinner},
		{"Who is the Super Bowl champion?", FactualEventWinner},
		{"Who won IPL 2024?", FactualEventWinner},
	}
	for _, c := range cases {
		require.Equal(t, c.want, Classify(c.query), "query: %s", c.query)
	}
}

func TestExtractEventName(t *testing.T) {
	require.Equal(t, "FIFA World Cup", ExtractEventName("Who won the 2022 FIFA World Cup?"))
	require.Equal(t, "Olympics", ExtractEventName("Who won gold at the Olympics?"))
	require.Equal(t, "", ExtractEventName("What is the meaning of life?"))
}

func TestExtractEventYear(t *testing.T) {
	year, ok := ExtractEventYear("Who won the 2022 FIFA World Cup?")
	require.True(t, ok)
	require.Equal(t, 2022, year)

	_, ok = ExtractEventYear("Who won the last FIFA World Cup?")
	require.False(t, ok)

	year, ok = ExtractEventYear("Nobel Prize in Physics 2023")
	require.True(t, ok)
	require.Equal(t, 2023, year)
}

func TestHasRecencyModifier(t *testing.T) {
	require.True(t, HasRecencyModifier("Who won the last FIFA World Cup?"))
	require.False(t, HasRecencyModifier("Who won the 2018 FIFA World Cup?"))
}

func TestReformulateEventQuery(t *testing.T) {
	// explicit year preserves user specificity
	require.Equal(t, "", ReformulateEventQuery("Who won the 2018 FIFA World Cup?", FactualEventWinner))

	got := ReformulateEventQuery("Who won the latest FIFA World Cup?", FactualEventWinner)
	require.Contains(t, got, "FIFA World Cup")

	require.Equal(t, "", ReformulateEventQuery("What is quantum computing?", IntentOther))
}

func TestElectionHelpers(t *testing.T) {
	require.True(t, IsElectionQuery("Who won the last US presidential election?"))
	require.False(t, IsElectionQuery("Who won the FIFA World Cup?"))
	require.NotEmpty(t, ExtractJurisdiction("Who won the last US presidential election?"))
	require.NotEmpty(t, ExtractJurisdiction("Who won the Indian general election?"))
}

func TestReformulateElectionQuery(t *testing.T) {
	got := ReformulateEventQuery("Who won the last US presidential election?", FactualEventWinner)
	require.Contains(t, got, "most recent completed")
	require.Contains(t, got, "winner result")
}
