package main

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/stitts-dev/lineup-predictor/internal/estimator"
	"github.com/stitts-dev/lineup-predictor/internal/models"
)

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writePrediction(w io.Writer, p *models.Prediction, entities []models.Entity) error {
	names := make(map[uint]string, len(entities))
	for _, e := range entities {
		names[e.ID] = e.WebName
	}

	fmt.Fprintf(w, "Period %d  %s  formation %s  predicted %d points\n\n",
		p.Period, p.ModelVersion, p.Formation, p.TotalPredictedPoints)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "SLOT\tROLE\tID\tNAME\tSCORE")
	for _, e := range p.Entries {
		fmt.Fprintf(tw, "%d\t%s\t%d\t%s\t%.2f\n", e.Slot, e.Role, e.EntityID, names[e.EntityID], e.PredictedScore)
	}
	return tw.Flush()
}

func writeSummary(w io.Writer, s *models.BacktestSummary) error {
	if s.TotalPeriods == 0 {
		_, err := fmt.Fprintln(w, "No periods evaluated")
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "PERIOD\tOVERLAP\tPREDICTED\tSELECTED\tOPTIMAL\tRATIO")
	for _, r := range s.Results {
		selected := "-"
		if r.SelectedActual != nil {
			selected = fmt.Sprint(*r.SelectedActual)
		}
		fmt.Fprintf(tw, "%d\t%d\t%d\t%s\t%d\t%s\n",
			r.Period, r.Overlap, r.PredictedTotal, selected, r.ActualTotal, r.PointsRatio.StringFixed(4))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(w, "\nPeriods: %d  avg overlap %.2f (min %d, max %d)  avg ratio %.4f\n",
		s.TotalPeriods, s.AvgOverlap, s.MinOverlap, s.MaxOverlap, s.AvgPointsRatio)
	fmt.Fprintf(w, "Overlap >= 9: %d  overlap >= 8: %d\n", s.PeriodsOverlap9Plus, s.PeriodsOverlap8Plus)
	if s.AvgSelectedActual != nil && s.AvgGroundTruthPoints != nil {
		fmt.Fprintf(w, "Avg selected actual %.1f vs optimal %.1f\n", *s.AvgSelectedActual, *s.AvgGroundTruthPoints)
	}
	return nil
}

func writeComparison(w io.Writer, period int, c *estimator.Comparison) error {
	fmt.Fprintf(w, "Period %d, top %d\n\n", period, c.TopN)

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ESTIMATOR\tMAE\tTOP OVERLAP")
	fmt.Fprintf(tw, "learned\t%.3f\t%d\n", c.LearnedMAE, c.LearnedTopOverlap)
	fmt.Fprintf(tw, "heuristic\t%.3f\t%d\n", c.HeuristicMAE, c.HeuristicTopOverlap)
	return tw.Flush()
}
