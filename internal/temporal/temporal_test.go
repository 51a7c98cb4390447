package temporal

import (
	"testing"

	"github.com/Kocoro-lab/Meridian/internal/models"
)

func strPtr(s string) *string { return &s }

func TestDetectSensitivity(t *testing.T) {
	cases := []struct {
		query string
		want  bool
	}{
		{"latest developments in fusion energy", true},
		{"history of the printing press", false},
		{"EV adoption statistics 2025", true},
		{"EV adoption statistics 1998", false},
		{"current market size for smart meters", true},
		{"market size for smart meters in the 1980s", false},
	}
	for _, c := range cases {
		if got := detectSensitivity(c.query, 2025); got != c.want {
			t.Fatalf("detectSensitivity(%q) = %v, want %v", c.query, got, c.want)
		}
	}
}

func TestExtractYear(t *testing.T) {
	if _, ok := ExtractYear(nil); ok {
		t.Fatal("expected no year from nil date")
	}
	if _, ok := ExtractYear(strPtr("last spring")); ok {
		t.Fatal("expected no year from undated string")
	}
	year, ok := ExtractYear(strPtr("2023-06-14"))
	if !ok || year != 2023 {
		t.Fatalf("expected 2023, got %d ok=%v", year, ok)
	}
	year, ok = ExtractYear(strPtr("March 1999"))
	if !ok || year != 1999 {
		t.Fatalf("expected 1999, got %d ok=%v", year, ok)
	}
}

func TestDistribution(t *testing.T) {
	sources := []models.SourceMetadata{
		{URL: "a", PublicationDate: strPtr("2024-01-01")},
		{URL: "b", PublicationDate: strPtr("2015-05-05")},
		{URL: "c"},
		{URL: "d", PublicationDate: strPtr("2021")},
	}
	dist := Distribution(sources, 2025)
	if dist.Total != 4 || dist.Dated != 3 || dist.Recent != 2 || dist.Older != 1 || dist.Unknown != 1 {
		t.Fatalf("unexpected distribution: %+v", dist)
	}
}

func TestRecencyPenalty_Gates(t *testing.T) {
	mostlyOld := models.TemporalDistribution{Total: 4, Dated: 4, Recent: 1, Older: 3}

	if p := RecencyPenalty(mostlyOld, false); p != 0 {
		t.Fatalf("expected 0 when not sensitive, got %f", p)
	}
	if p := RecencyPenalty(models.TemporalDistribution{Total: 4, Dated: 2, Older: 2}, true); p != 0 {
		t.Fatalf("expected 0 with too few dated sources, got %f", p)
	}
	if p := RecencyPenalty(models.TemporalDistribution{Total: 10, Dated: 4, Older: 4}, true); p != 0 {
		t.Fatalf("expected 0 with under 50%% dated coverage, got %f", p)
	}
	if p := RecencyPenalty(models.TemporalDistribution{Total: 4, Dated: 4, Recent: 3, Older: 1}, true); p != 0 {
		t.Fatalf("expected 0 when recent sources dominate, got %f", p)
	}

	p := RecencyPenalty(mostlyOld, true)
	if p <= 0 || p > MaxRecencyPenalty {
		t.Fatalf("expected bounded positive penalty, got %f", p)
	}
	// all old sources hit the ceiling exactly
	allOld := models.TemporalDistribution{Total: 4, Dated: 4, Older: 4}
	if p := RecencyPenalty(allOld, true); p != MaxRecencyPenalty {
		t.Fatalf("expected ceiling %f, got %f", MaxRecencyPenalty, p)
	}
}
