package ensemble

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/estimator"
	"github.com/stitts-dev/lineup-predictor/internal/features"
	"github.com/stitts-dev/lineup-predictor/internal/models"
)

// Mode selects which estimator output drives selection.
type Mode string

const (
	ModeLearned   Mode = "learned"
	ModeHeuristic Mode = "heuristic"
	ModeEnsemble  Mode = "ensemble"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeLearned, ModeHeuristic, ModeEnsemble:
		return m, nil
	}
	return "", fmt.Errorf("unknown scoring mode %q", s)
}

// NeedsTraining reports whether the mode uses the learned estimator.
func (m Mode) NeedsTraining() bool {
	return m != ModeHeuristic
}

type Weights struct {
	Learned   float64
	Heuristic float64
}

func DefaultWeights() Weights {
	return Weights{Learned: 0.4, Heuristic: 0.6}
}

// Result is the outcome of scoring one snapshot.
type Result struct {
	Scored   []models.ScoredEntity
	Metrics  *estimator.TrainingMetrics
	Excluded int
}

// Combiner scores eligible entities with the estimator set chosen by mode.
type Combiner struct {
	weights         Weights
	learnedFeatures []string
	boosting        estimator.BoostingParams
	heuristic       estimator.HeuristicParams
	logger          *logrus.Logger
}

func NewCombiner(weights Weights, learnedFeatures []string, boosting estimator.BoostingParams, heuristic estimator.HeuristicParams, logger *logrus.Logger) *Combiner {
	return &Combiner{
		weights:         weights,
		learnedFeatures: learnedFeatures,
		boosting:        boosting,
		heuristic:       heuristic,
		logger:          logger,
	}
}

// NewLearned returns a fresh, untrained learned estimator.
func (c *Combiner) NewLearned() *estimator.Learned {
	return estimator.NewLearned(c.learnedFeatures, c.boosting, c.logger)
}

func (c *Combiner) NewHeuristic(schema *features.Schema) *estimator.Heuristic {
	return estimator.NewHeuristic(schema, c.heuristic)
}

// Score removes ineligible entities, then scores the rest. Modes that use the
// learned estimator train a fresh model on training first.
func (c *Combiner) Score(mode Mode, snap features.Snapshot, training *features.TrainingSet) (*Result, error) {
	rows := FilterEligible(snap.Rows)
	res := &Result{Excluded: len(snap.Rows) - len(rows)}
	if len(rows) == 0 {
		return res, nil
	}
	X := make([][]float64, len(rows))
	for i, r := range rows {
		X[i] = r.Values
	}

	var learned, heuristic []float64
	if mode.NeedsTraining() {
		model := c.NewLearned()
		metrics, err := model.Train(training)
		if err != nil {
			return nil, fmt.Errorf("failed to train learned estimator: %w", err)
		}
		res.Metrics = metrics
		if learned, err = model.Predict(X); err != nil {
			return nil, err
		}
	}
	if mode != ModeLearned {
		var err error
		if heuristic, err = c.NewHeuristic(snap.Schema).Predict(X); err != nil {
			return nil, err
		}
	}

	res.Scored = make([]models.ScoredEntity, len(rows))
	for i, r := range rows {
		var score float64
		switch mode {
		case ModeLearned:
			score = learned[i]
		case ModeHeuristic:
			score = heuristic[i]
		default:
			score = c.weights.Learned*learned[i] + c.weights.Heuristic*heuristic[i]
		}
		res.Scored[i] = models.ScoredEntity{Entity: r.Entity, Score: score}
	}

	c.logger.WithFields(logrus.Fields{
		"period":   snap.Period,
		"mode":     mode,
		"scored":   len(res.Scored),
		"excluded": res.Excluded,
	}).Debug("Scored snapshot")

	return res, nil
}

// FilterEligible drops entities that cannot be selected.
func FilterEligible(rows []features.Row) []features.Row {
	out := make([]features.Row, 0, len(rows))
	for _, r := range rows {
		if r.Entity.Eligible() {
			out = append(out, r)
		}
	}
	return out
}
