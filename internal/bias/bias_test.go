package bias

import (
	"testing"

	"github.com/Kocoro-lab/Meridian/internal/models"
	"github.com/stretchr/testify/require"
)

func TestDetectStance(t *testing.T) {
	cases := []struct {
		name string
		text string
		want models.Stance
	}{
		{
			name: "positive polarity",
			text: "The breakthrough shows remarkable growth and clear benefit for the industry.",
			want: models.StancePro,
		},
		{
			name: "negative polarity",
			text: "The decline poses a serious risk and a growing threat to stability.",
			want: models.StanceContra,
		},
		{
			name: "heavily hedged stays neutral",
			text: "It is possible the approach may offer some benefit, though results remain unclear.",
			want: models.StanceNeutral,
		},
		{
			name: "plain factual statement",
			text: "The company reported quarterly revenue of 4.2 billion dollars.",
			want: models.StanceNeutral,
		},
		{
			name: "single positive with strong claim",
			text: "The program is clearly a success.",
			want: models.StancePro,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, DetectStance(tc.text))
		})
	}
}

func TestOpinionScore_Bounds(t *testing.T) {
	factual := OpinionScore("Revenue was 4.2 billion dollars in 2024.", true)
	opinionated := OpinionScore(
		"This is clearly an amazing, incredible breakthrough that must absolutely change everything.",
		false,
	)
	require.GreaterOrEqual(t, factual, 0.0)
	require.LessOrEqual(t, opinionated, 1.0)
	require.Greater(t, opinionated, factual)
}

func TestOpinionScore_EmptyText(t *testing.T) {
	require.GreaterOrEqual(t, OpinionScore("", true), 0.0)
}

func TestScoreSourceBias_CitationAbsencePenalty(t *testing.T) {
	summary := "The market grew steadily through the year."
	withCitations := ScoreSourceBias(summary, true)
	withoutCitations := ScoreSourceBias(summary, false)
	require.Greater(t, withoutCitations, withCitations)
}
