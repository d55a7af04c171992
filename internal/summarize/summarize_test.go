package summarize

import (
	"context"
	"strings"
	"testing"
	"time"

	"dualmind/internal/domain"
)

const sampleText = `The main purpose of this report is to review energy usage.
Sales grew quickly this year in every region.
This indicates that demand remains strong across markets.
Therefore the budget for next year is increased.
We should hire two more engineers soon.
Teams must ensure deadlines are tracked weekly.
Cats sleep a lot during warm afternoons.`

var defaultTargets = domain.SummaryTargets{MainPoints: 4, KeyInsights: 3, ActionItems: 3}

// TestAnalyzeReturnsFewerInsightsThanTarget checks nothing is fabricated.
func TestAnalyzeReturnsFewerInsightsThanTarget(t *testing.T) {
	got := Analyze(sampleText, defaultTargets)

	want := []string{
		"This indicates that demand remains strong across markets",
		"Therefore the budget for next year is increased",
	}
	if strings.Join(got.KeyInsights, "|") != strings.Join(want, "|") {
		t.Fatalf("insights = %q, want %q", got.KeyInsights, want)
	}
}

// TestAnalyzeActionItems checks recommendation phrases are picked up.
func TestAnalyzeActionItems(t *testing.T) {
	got := Analyze(sampleText, defaultTargets)
	want := []string{
		"We should hire two more engineers soon",
		"Teams must ensure deadlines are tracked weekly",
	}
	if strings.Join(got.ActionItems, "|") != strings.Join(want, "|") {
		t.Fatalf("actions = %q, want %q", got.ActionItems, want)
	}
}

// TestAnalyzeMainPointsFallback checks indicator hits come first and scoring fills up.
func TestAnalyzeMainPointsFallback(t *testing.T) {
	got := Analyze(sampleText, defaultTargets)
	if len(got.MainPoints) < 2 || len(got.MainPoints) > 4 {
		t.Fatalf("main points = %q", got.MainPoints)
	}
	if got.MainPoints[0] != "The main purpose of this report is to review energy usage" {
		t.Fatalf("first main point = %q", got.MainPoints[0])
	}
	seen := map[string]bool{}
	for _, p := range got.MainPoints {
		if seen[p] {
			t.Fatalf("duplicate main point %q", p)
		}
		seen[p] = true
	}
}

// TestAnalyzeNumberedListItemsAreBullets checks "1." and "2)" markers
// survive sentence splitting and make their items main points.
func TestAnalyzeNumberedListItemsAreBullets(t *testing.T) {
	text := "Quarterly review for the board.\n1. Revenue grew in every single region.\n 2) Hiring stayed flat across all teams.\nThe figure was 3.5 million users."
	got := Analyze(text, domain.SummaryTargets{MainPoints: 5})
	if len(got.MainPoints) < 2 {
		t.Fatalf("main points = %q", got.MainPoints)
	}
	if got.MainPoints[0] != "• Revenue grew in every single region" || got.MainPoints[1] != "• Hiring stayed flat across all teams" {
		t.Fatalf("main points = %q", got.MainPoints)
	}
}

// TestAnalyzeRespectsTargets checks configured section sizes cap output.
func TestAnalyzeRespectsTargets(t *testing.T) {
	got := Analyze(sampleText, domain.SummaryTargets{MainPoints: 1, KeyInsights: 1, ActionItems: 0})
	if len(got.MainPoints) != 1 || len(got.KeyInsights) != 1 || len(got.ActionItems) != 0 {
		t.Fatalf("analysis = %+v", got)
	}
	if got.ActionItems == nil {
		t.Fatal("empty section should be a non-nil slice")
	}
}

// TestSplitSentences checks short fragments are dropped.
func TestSplitSentences(t *testing.T) {
	got := SplitSentences("Hi. This one is long enough!!! Ok?  Another\nwrapped sentence here")
	want := []string{"This one is long enough", "Another wrapped sentence here"}
	if strings.Join(got, "|") != strings.Join(want, "|") {
		t.Fatalf("sentences = %q", got)
	}
}

// TestKeywords checks frequency ordering and stop words.
func TestKeywords(t *testing.T) {
	got := Keywords("Energy report. The report covers energy; the REPORT is data.")
	if strings.Join(got, ",") != "report,energy" {
		t.Fatalf("keywords = %q", got)
	}
}

// TestReadingTime checks the 200 words per minute estimate.
func TestReadingTime(t *testing.T) {
	tests := map[int]string{
		100:   "less than 1 minute",
		200:   "1 minute",
		1000:  "5 minutes",
		24000: "2.0 hours",
	}
	for words, want := range tests {
		if got := ReadingTime(words); got != want {
			t.Fatalf("ReadingTime(%d) = %q, want %q", words, got, want)
		}
	}
}

// TestSummarizeRendersReport checks the header and the three sections.
func TestSummarizeRendersReport(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	s := NewSummarizer(Options{Targets: defaultTargets, Now: func() time.Time { return now }}, nil)

	var fractions []float64
	out, err := s.Summarize(context.Background(), domain.Document{
		Path:  "/tmp/docs/report.pdf",
		Pages: []string{sampleText, ""},
	}, func(f float64, _ string) { fractions = append(fractions, f) })
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	for _, want := range []string{
		"PDF Document Analysis\n",
		"Document: report.pdf\n",
		"Pages: 2\n",
		"Processed: 2026-01-02 03:04:05\n",
		"MAIN POINTS\n" + sectionRule + "\n1. The main purpose",
		"KEY INSIGHTS\n" + sectionRule + "\n• This indicates that demand remains strong across markets\n",
		"ACTION ITEMS\n" + sectionRule + "\n• We should hire two more engineers soon\n",
	} {
		if !strings.Contains(out.Text, want) {
			t.Fatalf("report missing %q:\n%s", want, out.Text)
		}
	}
	if out.Title != "report" || out.Analysis == nil || len(out.Analysis.KeyInsights) != 2 {
		t.Fatalf("outcome = %+v", out)
	}
	if fractions[len(fractions)-1] != 1 {
		t.Fatalf("fractions = %v", fractions)
	}
}

// TestRenderGroupsThousands checks large counts are printed with separators.
func TestRenderGroupsThousands(t *testing.T) {
	s := NewSummarizer(Options{}, nil)
	out := s.render(reportInfo{FileName: "a.pdf", Chars: 12345, Language: "en"}, domain.AnalysisResult{})
	if !strings.Contains(out, "Characters: 12,345\n") {
		t.Fatalf("report = %s", out)
	}
	if !strings.Contains(out, "• No specific action items or recommendations identified") {
		t.Fatalf("empty section placeholder missing:\n%s", out)
	}
}

// TestSummarizeEmptyDocument checks blank documents are rejected.
func TestSummarizeEmptyDocument(t *testing.T) {
	s := NewSummarizer(Options{Targets: defaultTargets}, nil)
	_, err := s.Summarize(context.Background(), domain.Document{Pages: []string{" "}}, func(float64, string) {})
	if domain.KindOf(err) != domain.ErrorKindUnreadable {
		t.Fatalf("kind = %s", domain.KindOf(err))
	}
}
