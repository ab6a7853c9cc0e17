package report

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"descbench/internal/compare"
	"descbench/internal/domain"
)

func sampleSummary() compare.Summary {
	return compare.Summary{
		Compared:   100,
		Agreements: 91,
		Buckets: []compare.BucketAgreement{
			{Name: "low", Agreements: 8, Total: 10},
			{Name: "medium", Agreements: 18, Total: 20},
			{Name: "high", Agreements: 65, Total: 70},
		},
		BaselinePositive:       30,
		OptimizedPositive:      28,
		SumConfidenceBaseline:  420,
		SumConfidenceOptimized: 400,
		Disagreements: []domain.ComparisonRow{
			{RecordID: "r1", LabelBaseline: "ai-native", LabelOptimized: "not-ai-native", ConfidenceBaseline: 3, ConfidenceOptimized: 2},
		},
		PositiveToNegative: 1,
	}
}

func TestRenderReportSections(t *testing.T) {
	s := sampleSummary()
	meta := Meta{BaselinePath: "results/classified_both.csv", OptimizedPath: "results/classified_short.csv"}
	out := Render(s, meta, time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC))

	for _, want := range []string{
		"Agreement rate: 91.00%",
		"(91 of 100 matched records)",
		"highly sufficient",
		"| low | 80.00% | 8/10 |",
		"| high | 92.86% | 65/70 |",
		"Baseline positive rate: 30.00%",
		"Delta (optimized − baseline): -2.00%",
		"Average confidence, baseline: 4.20",
		"## Disagreements (1)",
		"Positive → negative: 1",
		"| r1 | ai-native | 3 | not-ai-native | 2 |",
		"results/classified_both.csv",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("report missing %q:\n%s", want, out)
		}
	}
}

func TestRenderIncompleteNote(t *testing.T) {
	s := sampleSummary()
	s.BaselineOnly = 3
	s.OptimizedOnly = 2

	out := Render(s, Meta{}, time.Now())
	if !strings.Contains(out, "Incomplete: 5 records present in only one result set") {
		t.Errorf("report missing incomplete note:\n%s", out)
	}
}

func TestRenderEmptyBucketShowsDash(t *testing.T) {
	s := sampleSummary()
	s.Buckets[0] = compare.BucketAgreement{Name: "low"}

	out := Render(s, Meta{}, time.Now())
	if !strings.Contains(out, "| low | — | 0 |") {
		t.Errorf("empty bucket not rendered as dash:\n%s", out)
	}
}

func TestRenderNoDisagreements(t *testing.T) {
	s := sampleSummary()
	s.Disagreements = nil
	s.PositiveToNegative = 0
	s.Agreements = 100

	out := Render(s, Meta{}, time.Now())
	if !strings.Contains(out, "## Disagreements (0)") || !strings.Contains(out, "None.") {
		t.Errorf("report should state there are no disagreements:\n%s", out)
	}
}

func TestRenderCapsInlineDisagreements(t *testing.T) {
	s := sampleSummary()
	s.Disagreements = nil
	for i := 0; i < maxInlineDisagreements+10; i++ {
		s.Disagreements = append(s.Disagreements, domain.ComparisonRow{
			RecordID: fmt.Sprintf("r%03d", i), LabelBaseline: "ai-native", LabelOptimized: "not-ai-native",
		})
	}

	out := Render(s, Meta{}, time.Now())
	if !strings.Contains(out, "…and 10 more") {
		t.Errorf("overflow note missing:\n%s", out)
	}
	if strings.Contains(out, fmt.Sprintf("| r%03d |", maxInlineDisagreements+5)) {
		t.Errorf("rows past the cap were rendered inline")
	}
}

func TestInterpretationThresholds(t *testing.T) {
	tests := []struct {
		rate float64
		want string
	}{
		{0.97, "nearly identical"},
		{0.92, "highly sufficient"},
		{0.87, "generally sufficient"},
		{0.81, "may miss context"},
		{0.60, "significant additional signal"},
	}
	for _, tt := range tests {
		if got := interpretation(tt.rate); !strings.Contains(got, tt.want) {
			t.Errorf("interpretation(%v) = %q, want it to mention %q", tt.rate, got, tt.want)
		}
	}
}

func TestWriteReportFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	path, err := WriteReportFile("# report body\n", dir, date)
	if err != nil {
		t.Fatalf("WriteReportFile failed: %v", err)
	}
	if filepath.Base(path) != "comparison_20260825.md" {
		t.Errorf("filename = %s", filepath.Base(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	if string(data) != "# report body\n" {
		t.Errorf("content = %q", data)
	}
}

func TestWriteDisagreementsFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "reports")
	date := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)

	path, err := WriteDisagreementsFile(sampleSummary(), dir, date)
	if err != nil {
		t.Fatalf("WriteDisagreementsFile failed: %v", err)
	}
	if filepath.Base(path) != "disagreements_20260825.csv" {
		t.Errorf("filename = %s", filepath.Base(path))
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading export: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("export has %d lines, want header plus one row", len(lines))
	}
	if lines[0] != "record_id,label_baseline,confidence_baseline,label_optimized,confidence_optimized" {
		t.Errorf("header = %q", lines[0])
	}
	if lines[1] != "r1,ai-native,3,not-ai-native,2" {
		t.Errorf("row = %q", lines[1])
	}
}
