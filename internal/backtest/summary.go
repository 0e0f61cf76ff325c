package backtest

import (
	"github.com/stitts-dev/lineup-predictor/internal/models"
)

// Quality thresholds counted in every summary.
const (
	overlapExcellent = 9
	overlapGood      = 8
)

// Summarize aggregates per-period records. No records yields a zeroed
// summary with null averages.
func Summarize(records []models.BacktestRecord) *models.BacktestSummary {
	s := &models.BacktestSummary{Results: []models.BacktestRecord{}}
	if len(records) == 0 {
		return s
	}
	s.Results = records
	s.TotalPeriods = len(records)
	s.MinOverlap = records[0].Overlap
	s.MaxOverlap = records[0].Overlap

	var overlapSum, ratioSum, truthSum, selectedSum float64
	selected := 0
	for _, r := range records {
		overlapSum += float64(r.Overlap)
		ratioSum += r.PointsRatio.InexactFloat64()
		truthSum += float64(r.ActualTotal)
		if r.SelectedActual != nil {
			selectedSum += float64(*r.SelectedActual)
			selected++
		}
		if r.Overlap < s.MinOverlap {
			s.MinOverlap = r.Overlap
		}
		if r.Overlap > s.MaxOverlap {
			s.MaxOverlap = r.Overlap
		}
		if r.Overlap >= overlapExcellent {
			s.PeriodsOverlap9Plus++
		}
		if r.Overlap >= overlapGood {
			s.PeriodsOverlap8Plus++
		}
	}

	n := float64(len(records))
	s.AvgOverlap = overlapSum / n
	s.AvgPointsRatio = ratioSum / n
	avgTruth := truthSum / n
	s.AvgGroundTruthPoints = &avgTruth
	if selected > 0 {
		avgSelected := selectedSum / float64(selected)
		s.AvgSelectedActual = &avgSelected
	}
	return s
}
