package estimator

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/stitts-dev/lineup-predictor/internal/features"
)

var (
	// ErrNotFitted is returned when predicting with an untrained model.
	ErrNotFitted = errors.New("model not fitted, call Train first")
	// ErrNoTrainingData is returned when the training set is empty.
	ErrNoTrainingData = errors.New("no training data available")
)

// Estimator maps feature rows to predicted scores.
type Estimator interface {
	Name() string
	Predict(rows [][]float64) ([]float64, error)
}

type FeatureImportance struct {
	Feature    string  `json:"feature"`
	Importance float64 `json:"importance"`
}

// TrainingMetrics summarises one training run.
type TrainingMetrics struct {
	Samples     int                 `json:"n_samples"`
	Features    int                 `json:"n_features"`
	CVFolds     int                 `json:"cv_folds"`
	CVMAE       float64             `json:"cv_mae"`
	CVMAEStd    float64             `json:"cv_mae_std"`
	TopFeatures []FeatureImportance `json:"top_features"`
	Duration    time.Duration       `json:"duration_ns"`
}

// Learned is the gradient-boosted tree estimator.
type Learned struct {
	params     BoostingParams
	configured []string
	active     []int
	names      []string
	model      *boostedTrees
	logger     *logrus.Logger
}

// NewLearned creates an untrained estimator restricted to the named features.
// An empty list selects the schema default at training time.
func NewLearned(featureNames []string, params BoostingParams, logger *logrus.Logger) *Learned {
	return &Learned{
		params:     params,
		configured: featureNames,
		logger:     logger,
	}
}

func (l *Learned) Name() string {
	return "learned"
}

func (l *Learned) IsFitted() bool {
	return l.model != nil
}

// Train fits the model on the full training set and reports time-ordered
// cross-validation error.
func (l *Learned) Train(ts *features.TrainingSet) (*TrainingMetrics, error) {
	if ts.Len() == 0 {
		return nil, ErrNoTrainingData
	}
	start := time.Now()

	if err := l.resolve(ts.Schema); err != nil {
		return nil, err
	}
	X := l.project(ts.Matrix())
	y := ts.Labels

	l.logger.WithFields(logrus.Fields{
		"samples":  len(X),
		"features": len(l.active),
	}).Info("Training learned estimator")

	l.model = fitBoostedTrees(X, y, l.params)

	metrics := &TrainingMetrics{
		Samples:     len(X),
		Features:    len(l.active),
		TopFeatures: l.topFeatures(10),
	}

	folds := cvFolds(len(X))
	if folds == 0 {
		l.logger.Warn("Too few samples for cross-validation, skipping CV")
	} else {
		maes := make([]float64, 0, folds)
		for _, f := range timeSeriesSplit(len(X), folds) {
			fold := fitBoostedTrees(X[:f.trainEnd], y[:f.trainEnd], l.params)
			var abs float64
			for i := f.trainEnd; i < f.testEnd; i++ {
				abs += math.Abs(fold.predict(X[i]) - y[i])
			}
			maes = append(maes, abs/float64(f.testEnd-f.trainEnd))
		}
		metrics.CVFolds = folds
		metrics.CVMAE, metrics.CVMAEStd = meanPopStd(maes)
	}
	metrics.Duration = time.Since(start)

	l.logger.WithFields(logrus.Fields{
		"cv_mae":     metrics.CVMAE,
		"cv_mae_std": metrics.CVMAEStd,
		"cv_folds":   metrics.CVFolds,
		"duration":   metrics.Duration.String(),
	}).Info("Learned estimator trained")

	return metrics, nil
}

// Predict scores rows laid out in the training schema, floored at zero.
func (l *Learned) Predict(rows [][]float64) ([]float64, error) {
	if l.model == nil {
		return nil, ErrNotFitted
	}
	out := make([]float64, len(rows))
	for i, x := range l.project(rows) {
		out[i] = math.Max(0, l.model.predict(x))
	}
	return out, nil
}

// FeatureImportance returns split counts per active feature, highest first.
func (l *Learned) FeatureImportance() []FeatureImportance {
	if l.model == nil {
		return nil
	}
	return l.topFeatures(len(l.active))
}

func (l *Learned) resolve(schema *features.Schema) error {
	wanted := l.configured
	if len(wanted) == 0 {
		wanted = schema.DefaultLearnedFeatures()
	}
	l.active = l.active[:0]
	l.names = l.names[:0]
	for _, name := range wanted {
		if i, ok := schema.Lookup(name); ok {
			l.active = append(l.active, i)
			l.names = append(l.names, name)
		}
	}
	if len(l.active) == 0 {
		return fmt.Errorf("none of the %d configured features exist in the schema", len(wanted))
	}
	if float64(len(l.active)) < float64(len(wanted))/2 {
		l.logger.WithFields(logrus.Fields{
			"available":  len(l.active),
			"configured": len(wanted),
		}).Warn("Fewer than half of the configured features are available")
	}
	return nil
}

func (l *Learned) project(rows [][]float64) [][]float64 {
	out := make([][]float64, len(rows))
	for i, r := range rows {
		x := make([]float64, len(l.active))
		for j, col := range l.active {
			if v := r[col]; !math.IsNaN(v) {
				x[j] = v
			}
		}
		out[i] = x
	}
	return out
}

func (l *Learned) topFeatures(k int) []FeatureImportance {
	imp := make([]FeatureImportance, len(l.names))
	for i, name := range l.names {
		imp[i] = FeatureImportance{Feature: name, Importance: float64(l.model.splitCount[i])}
	}
	sort.SliceStable(imp, func(i, j int) bool { return imp[i].Importance > imp[j].Importance })
	if len(imp) > k {
		imp = imp[:k]
	}
	return imp
}

type fold struct {
	trainEnd int
	testEnd  int
}

// cvFolds picks the number of time-ordered folds for n samples; 0 skips CV.
func cvFolds(n int) int {
	switch {
	case n >= 10:
		if n/2 < 5 {
			return n / 2
		}
		return 5
	case n >= 4:
		return 2
	default:
		return 0
	}
}

// timeSeriesSplit yields expanding-window folds: each trains on every row
// before its test block.
func timeSeriesSplit(n, k int) []fold {
	testSize := n / (k + 1)
	folds := make([]fold, 0, k)
	for i := 0; i < k; i++ {
		start := n - (k-i)*testSize
		folds = append(folds, fold{trainEnd: start, testEnd: start + testSize})
	}
	return folds
}

func meanPopStd(x []float64) (float64, float64) {
	mean := stat.Mean(x, nil)
	var ss float64
	for _, v := range x {
		ss += (v - mean) * (v - mean)
	}
	return mean, math.Sqrt(ss / float64(len(x)))
}
