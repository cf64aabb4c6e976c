package pdfscan

import (
	"testing"

	"github.com/scanworks/reportbroker/internal/core/domain"
)

func TestParseSummarySimilarity(t *testing.T) {
	cases := []struct {
		name string
		text string
		pct  float64
	}{
		{"index wording", "Overall Similarity Index: 23%", 23},
		{"plagiarism wording", "Plagiarism detected in 7.5 % of the document", 7.5},
		{"percentage first", "23% overall similarity across sources", 23},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ParseSummary(tc.text)
			if err != nil {
				t.Fatalf("ParseSummary: %v", err)
			}
			if res.Type != domain.ReportSimilarity {
				t.Fatalf("type = %s, want similarity", res.Type)
			}
			if res.Percentage == nil || *res.Percentage != tc.pct {
				t.Fatalf("percentage = %v, want %v", res.Percentage, tc.pct)
			}
		})
	}
}

func TestParseSummaryAI(t *testing.T) {
	cases := []struct {
		name string
		text string
		pct  float64
	}{
		{"detection wording", "AI Detection Score: 88%", 88},
		{"generated wording", "AI generated content estimated at 41.2%", 41.2},
		{"percentage first", "91% of this text was flagged as AI", 91},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := ParseSummary(tc.text)
			if err != nil {
				t.Fatalf("ParseSummary: %v", err)
			}
			if res.Type != domain.ReportAI {
				t.Fatalf("type = %s, want ai", res.Type)
			}
			if res.Percentage == nil || *res.Percentage != tc.pct {
				t.Fatalf("percentage = %v, want %v", res.Percentage, tc.pct)
			}
		})
	}
}

func TestParseSummaryAIWinsWhenBothMentioned(t *testing.T) {
	text := "AI Detection Score: 64%\nSimilarity Index: 12%"
	res, err := ParseSummary(text)
	if err != nil {
		t.Fatalf("ParseSummary: %v", err)
	}
	if res.Type != domain.ReportAI {
		t.Fatalf("type = %s, want ai to take precedence", res.Type)
	}
	if res.Percentage == nil || *res.Percentage != 64 {
		t.Fatalf("percentage = %v, want 64", res.Percentage)
	}
}

func TestParseSummaryUnclassifiable(t *testing.T) {
	if _, err := ParseSummary("quarterly revenue grew 14% year over year"); err == nil {
		t.Fatal("expected error for text without a report summary")
	}
	if _, err := ParseSummary("   "); err == nil {
		t.Fatal("expected error for empty text")
	}
}
