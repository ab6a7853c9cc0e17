// Package compare aligns two classification result sets by record id
// and computes their agreement statistics. Pure: no I/O, no side
// effects beyond the returned summary.
package compare

import (
	"errors"
	"sort"

	"descbench/internal/domain"
)

// ErrNoData: one of the result sets is empty. Agreement is undefined in
// that case and must be reported as "no data", never as 0%.
var ErrNoData = errors.New("no classification results to compare")

// Buckets discretizes the 1..max confidence scale into low/medium/high.
type Buckets struct {
	LowMax    int
	MediumMax int
}

func (b Buckets) Name(confidence int) string {
	switch {
	case confidence <= b.LowMax:
		return "low"
	case confidence <= b.MediumMax:
		return "medium"
	default:
		return "high"
	}
}

// BucketAgreement is the agreement tally for one baseline-confidence
// bucket. Total counts baseline results in the bucket that also appear
// in the optimized set.
type BucketAgreement struct {
	Name       string
	Agreements int
	Total      int
}

func (b BucketAgreement) Rate() float64 {
	if b.Total == 0 {
		return 0
	}
	return float64(b.Agreements) / float64(b.Total)
}

// Summary holds every statistic of one baseline-vs-optimized comparison.
type Summary struct {
	Compared   int
	Agreements int

	// Records present in exactly one set.
	BaselineOnly  int
	OptimizedOnly int

	Buckets []BucketAgreement

	BaselinePositive  int
	OptimizedPositive int

	SumConfidenceBaseline  int
	SumConfidenceOptimized int

	Disagreements      []domain.ComparisonRow
	PositiveToNegative int
	NegativeToPositive int
}

func (s Summary) AgreementRate() float64 {
	if s.Compared == 0 {
		return 0
	}
	return float64(s.Agreements) / float64(s.Compared)
}

func (s Summary) Incomplete() int { return s.BaselineOnly + s.OptimizedOnly }

func (s Summary) BaselinePositiveRate() float64 {
	if s.Compared == 0 {
		return 0
	}
	return float64(s.BaselinePositive) / float64(s.Compared)
}

func (s Summary) OptimizedPositiveRate() float64 {
	if s.Compared == 0 {
		return 0
	}
	return float64(s.OptimizedPositive) / float64(s.Compared)
}

// RateDelta is signed: optimized minus baseline.
func (s Summary) RateDelta() float64 {
	return s.OptimizedPositiveRate() - s.BaselinePositiveRate()
}

func (s Summary) AvgConfidenceBaseline() float64 {
	if s.Compared == 0 {
		return 0
	}
	return float64(s.SumConfidenceBaseline) / float64(s.Compared)
}

func (s Summary) AvgConfidenceOptimized() float64 {
	if s.Compared == 0 {
		return 0
	}
	return float64(s.SumConfidenceOptimized) / float64(s.Compared)
}

// Compare aligns the two sets on record id and computes the summary.
// Every record id in the intersection contributes exactly one comparison
// row; records in only one set are tallied as incomplete and excluded
// from every rate.
func Compare(baseline, optimized map[string]domain.ClassificationResult, buckets Buckets, positiveLabel string) (Summary, error) {
	if len(baseline) == 0 || len(optimized) == 0 {
		return Summary{}, ErrNoData
	}

	byBucket := map[string]*BucketAgreement{
		"low":    {Name: "low"},
		"medium": {Name: "medium"},
		"high":   {Name: "high"},
	}

	var s Summary
	for id, base := range baseline {
		opt, ok := optimized[id]
		if !ok {
			s.BaselineOnly++
			continue
		}
		s.Compared++
		agree := base.Label == opt.Label

		bucket := byBucket[buckets.Name(base.Confidence)]
		bucket.Total++
		if agree {
			s.Agreements++
			bucket.Agreements++
		} else {
			s.Disagreements = append(s.Disagreements, domain.ComparisonRow{
				RecordID:            id,
				LabelBaseline:       base.Label,
				LabelOptimized:      opt.Label,
				ConfidenceBaseline:  base.Confidence,
				ConfidenceOptimized: opt.Confidence,
			})
			if base.Label == positiveLabel {
				s.PositiveToNegative++
			} else if opt.Label == positiveLabel {
				s.NegativeToPositive++
			}
		}

		if base.Label == positiveLabel {
			s.BaselinePositive++
		}
		if opt.Label == positiveLabel {
			s.OptimizedPositive++
		}
		s.SumConfidenceBaseline += base.Confidence
		s.SumConfidenceOptimized += opt.Confidence
	}
	for id := range optimized {
		if _, ok := baseline[id]; !ok {
			s.OptimizedOnly++
		}
	}

	sort.Slice(s.Disagreements, func(i, j int) bool {
		return s.Disagreements[i].RecordID < s.Disagreements[j].RecordID
	})
	s.Buckets = []BucketAgreement{*byBucket["low"], *byBucket["medium"], *byBucket["high"]}
	return s, nil
}
