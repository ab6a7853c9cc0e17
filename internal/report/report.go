// Package report renders the comparison summary as a markdown file and
// exports the disagreement rows for manual review.
package report

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"descbench/internal/compare"
)

// Shown inline in the markdown; the full list goes to the CSV export.
const maxInlineDisagreements = 50

// Meta labels the two result sets being compared.
type Meta struct {
	BaselinePath  string
	OptimizedPath string
}

// Render builds the markdown comparison report.
func Render(s compare.Summary, meta Meta, generatedAt time.Time) string {
	var b strings.Builder

	b.WriteString("# Short vs. both descriptions — classification comparison\n\n")
	fmt.Fprintf(&b, "Generated: %s\n\n", generatedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "- Baseline (both descriptions): `%s`\n", meta.BaselinePath)
	fmt.Fprintf(&b, "- Optimized (short only): `%s`\n\n", meta.OptimizedPath)

	b.WriteString("## Overall agreement\n\n")
	fmt.Fprintf(&b, "**Agreement rate: %.2f%%** (%d of %d matched records)\n\n", s.AgreementRate()*100, s.Agreements, s.Compared)
	fmt.Fprintf(&b, "%s\n\n", interpretation(s.AgreementRate()))
	if s.Incomplete() > 0 {
		fmt.Fprintf(&b, "Incomplete: %d records present in only one result set (%d baseline-only, %d optimized-only) — excluded from all rates.\n\n",
			s.Incomplete(), s.BaselineOnly, s.OptimizedOnly)
	}

	b.WriteString("## Agreement by baseline confidence\n\n")
	b.WriteString("| Bucket | Agreement | Matched |\n|---|---|---|\n")
	for _, bucket := range s.Buckets {
		if bucket.Total == 0 {
			fmt.Fprintf(&b, "| %s | — | 0 |\n", bucket.Name)
			continue
		}
		fmt.Fprintf(&b, "| %s | %.2f%% | %d/%d |\n", bucket.Name, bucket.Rate()*100, bucket.Agreements, bucket.Total)
	}
	b.WriteString("\n")

	b.WriteString("## Classification rate\n\n")
	fmt.Fprintf(&b, "- Baseline positive rate: %.2f%% (%d/%d)\n", s.BaselinePositiveRate()*100, s.BaselinePositive, s.Compared)
	fmt.Fprintf(&b, "- Optimized positive rate: %.2f%% (%d/%d)\n", s.OptimizedPositiveRate()*100, s.OptimizedPositive, s.Compared)
	fmt.Fprintf(&b, "- Delta (optimized − baseline): %+.2f%%\n\n", s.RateDelta()*100)

	b.WriteString("## Confidence\n\n")
	fmt.Fprintf(&b, "- Average confidence, baseline: %.2f\n", s.AvgConfidenceBaseline())
	fmt.Fprintf(&b, "- Average confidence, optimized: %.2f\n\n", s.AvgConfidenceOptimized())

	fmt.Fprintf(&b, "## Disagreements (%d)\n\n", len(s.Disagreements))
	if len(s.Disagreements) == 0 {
		b.WriteString("None.\n")
		return b.String()
	}
	fmt.Fprintf(&b, "- Positive → negative: %d\n", s.PositiveToNegative)
	fmt.Fprintf(&b, "- Negative → positive: %d\n\n", s.NegativeToPositive)
	b.WriteString("| Record | Baseline | Conf | Optimized | Conf |\n|---|---|---|---|---|\n")
	for i, row := range s.Disagreements {
		if i == maxInlineDisagreements {
			fmt.Fprintf(&b, "\n…and %d more; see the disagreement CSV export.\n", len(s.Disagreements)-maxInlineDisagreements)
			break
		}
		fmt.Fprintf(&b, "| %s | %s | %d | %s | %d |\n",
			row.RecordID, row.LabelBaseline, row.ConfidenceBaseline, row.LabelOptimized, row.ConfidenceOptimized)
	}
	return b.String()
}

func interpretation(rate float64) string {
	switch {
	case rate >= 0.95:
		return "Short descriptions alone produce nearly identical classifications."
	case rate >= 0.90:
		return "Short descriptions are highly sufficient for classification."
	case rate >= 0.85:
		return "Short descriptions are generally sufficient, with minor differences."
	case rate >= 0.80:
		return "Short descriptions may miss context in edge cases."
	default:
		return "Long descriptions provide significant additional signal."
	}
}

// WriteReportFile writes the rendered report under outputDir with a
// dated filename and returns the path.
func WriteReportFile(content, outputDir string, reportDate time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("comparison_%s.md", reportDate.Format("20060102"))
	path := filepath.Join(outputDir, filename)
	return path, os.WriteFile(path, []byte(content), 0644)
}

// WriteDisagreementsFile exports the full disagreement list as CSV for
// manual review and returns the path.
func WriteDisagreementsFile(s compare.Summary, outputDir string, reportDate time.Time) (string, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return "", err
	}
	filename := fmt.Sprintf("disagreements_%s.csv", reportDate.Format("20060102"))
	path := filepath.Join(outputDir, filename)

	f, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write([]string{"record_id", "label_baseline", "confidence_baseline", "label_optimized", "confidence_optimized"}); err != nil {
		return "", err
	}
	for _, row := range s.Disagreements {
		if err := w.Write([]string{
			row.RecordID,
			row.LabelBaseline, strconv.Itoa(row.ConfidenceBaseline),
			row.LabelOptimized, strconv.Itoa(row.ConfidenceOptimized),
		}); err != nil {
			return "", err
		}
	}
	w.Flush()
	return path, w.Error()
}
