package estimator

import (
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/lineup-predictor/internal/features"
)

type HeuristicParams struct {
	// Weights apply to the points mean of each configured window, shortest first.
	Weights            []float64
	HomeBonus          float64
	EasyFixtureBonus   float64
	HardFixturePenalty float64
}

func DefaultHeuristicParams() HeuristicParams {
	return HeuristicParams{
		Weights:            []float64{0.40, 0.35, 0.25},
		HomeBonus:          0.10,
		EasyFixtureBonus:   0.10,
		HardFixturePenalty: 0.10,
	}
}

// Heuristic scores entities from weighted recent form and a fixture modifier.
type Heuristic struct {
	params HeuristicParams
	schema *features.Schema
}

func NewHeuristic(schema *features.Schema, params HeuristicParams) *Heuristic {
	if n := len(schema.Windows()); len(params.Weights) > n {
		params.Weights = params.Weights[:n]
	}
	return &Heuristic{params: params, schema: schema}
}

func (h *Heuristic) Name() string {
	return "heuristic"
}

func (h *Heuristic) Predict(rows [][]float64) ([]float64, error) {
	s := h.schema
	out := make([]float64, len(rows))
	for i, r := range rows {
		var base float64
		for slot, w := range h.params.Weights {
			base += w * zeroNaN(r[s.Window(features.PointsMean, slot)])
		}

		modifier := 1.0
		if r[s.Static(features.IsHome)] == 1 {
			modifier += h.params.HomeBonus
		}
		switch d := r[s.Static(features.FixtureDifficulty)]; {
		case d <= 2:
			modifier += h.params.EasyFixtureBonus
		case d >= 4:
			modifier -= h.params.HardFixturePenalty
		}

		out[i] = math.Max(0, base*modifier)
	}
	return out, nil
}

func zeroNaN(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return v
}

// Comparison reports how the heuristic fares against the learned model on
// realized outcomes.
type Comparison struct {
	LearnedMAE                   float64 `json:"learned_mae"`
	HeuristicMAE                 float64 `json:"heuristic_mae"`
	LearnedTopOverlap            int     `json:"learned_top_overlap"`
	HeuristicTopOverlap          int     `json:"heuristic_top_overlap"`
	TopN                         int     `json:"top_n"`
	HeuristicBeatsLearnedMAE     bool    `json:"heuristic_beats_learned_mae"`
	HeuristicBeatsLearnedOverlap bool    `json:"heuristic_beats_learned_overlap"`
}

// Compare scores rows with the heuristic and measures both prediction sets
// against the realized values, including overlap of the top n rows.
func Compare(h *Heuristic, rows [][]float64, actual, learned []float64, topN int, logger *logrus.Logger) (*Comparison, error) {
	heuristic, err := h.Predict(rows)
	if err != nil {
		return nil, err
	}

	c := &Comparison{
		LearnedMAE:   meanAbsoluteError(learned, actual),
		HeuristicMAE: meanAbsoluteError(heuristic, actual),
		TopN:         topN,
	}
	top := topIndices(actual, topN)
	c.LearnedTopOverlap = overlap(topIndices(learned, topN), top)
	c.HeuristicTopOverlap = overlap(topIndices(heuristic, topN), top)
	c.HeuristicBeatsLearnedMAE = c.HeuristicMAE < c.LearnedMAE
	c.HeuristicBeatsLearnedOverlap = c.HeuristicTopOverlap > c.LearnedTopOverlap

	entry := logger.WithFields(logrus.Fields{
		"learned_mae":           c.LearnedMAE,
		"heuristic_mae":         c.HeuristicMAE,
		"learned_top_overlap":   c.LearnedTopOverlap,
		"heuristic_top_overlap": c.HeuristicTopOverlap,
	})
	if c.HeuristicBeatsLearnedMAE || c.HeuristicBeatsLearnedOverlap {
		entry.Warn("Heuristic baseline outperforms the learned estimator")
	} else {
		entry.Info("Learned estimator beats heuristic baseline")
	}
	return c, nil
}

func meanAbsoluteError(pred, actual []float64) float64 {
	if len(actual) == 0 {
		return 0
	}
	diff := make([]float64, len(actual))
	for i := range actual {
		diff[i] = math.Abs(pred[i] - actual[i])
	}
	return stat.Mean(diff, nil)
}

// topIndices returns the indices of the n largest values.
func topIndices(values []float64, n int) []int {
	idx := make([]int, len(values))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return values[idx[a]] > values[idx[b]] })
	if len(idx) > n {
		idx = idx[:n]
	}
	return idx
}

func overlap(a, b []int) int {
	seen := make(map[int]struct{}, len(a))
	for _, i := range a {
		seen[i] = struct{}{}
	}
	count := 0
	for _, i := range b {
		if _, ok := seen[i]; ok {
			count++
		}
	}
	return count
}
