package predictor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"

	"github.com/stitts-dev/lineup-predictor/internal/ensemble"
	"github.com/stitts-dev/lineup-predictor/internal/estimator"
	"github.com/stitts-dev/lineup-predictor/internal/features"
	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/internal/optimizer"
	"github.com/stitts-dev/lineup-predictor/internal/store"
	"github.com/stitts-dev/lineup-predictor/pkg/config"
	"github.com/stitts-dev/lineup-predictor/pkg/metrics"
)

var (
	// ErrInsufficientHistory means the period cannot be predicted yet.
	ErrInsufficientHistory = features.ErrInsufficientHistory
	// ErrInfeasibleSelection means no lineup satisfies the role minimums.
	ErrInfeasibleSelection = errors.New("no feasible lineup for period")
	ErrPeriodNotFound      = errors.New("period not found")
)

// Fixed per-entry values until minutes and start models exist.
const (
	entryPredictedMinutes = 90
	entryStartProbability = 0.95
	entryConfidence       = 0.7
)

// Cache is the subset of the prediction cache the service uses.
type Cache interface {
	Get(ctx context.Context, period int, modelVersion string) (*models.Prediction, error)
	Set(ctx context.Context, p *models.Prediction) error
	Invalidate(ctx context.Context, period int, modelVersion string) error
}

// Service runs the full pipeline for one target period and persists the
// selected lineup.
type Service struct {
	store    store.Store
	settings *config.PipelineSettings
	builder  *features.Builder
	combiner *ensemble.Combiner
	solver   *optimizer.Solver
	cache    Cache
	metrics  *metrics.Metrics
	locks    *keyedMutex
	logger   *logrus.Logger
}

func NewService(st store.Store, settings *config.PipelineSettings, logger *logrus.Logger) (*Service, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	constraints, fallback, err := optimizer.ConstraintsFromSettings(settings)
	if err != nil {
		return nil, err
	}

	heuristic := estimator.HeuristicParams{
		Weights:            settings.HeuristicWeights,
		HomeBonus:          settings.HomeBonus,
		EasyFixtureBonus:   settings.EasyFixtureBonus,
		HardFixturePenalty: settings.HardFixturePenalty,
	}
	weights := ensemble.Weights{Learned: settings.LearnedWeight, Heuristic: settings.HeuristicWeight}

	return &Service{
		store:    st,
		settings: settings,
		builder:  features.NewBuilder(settings.RollingWindows, settings.MinHistoryPeriods, settings.StartedMinutes, logger),
		combiner: ensemble.NewCombiner(weights, settings.LearnedFeatures, estimator.DefaultBoostingParams(), heuristic, logger),
		solver:   optimizer.NewSolver(constraints, fallback, logger),
		locks:    newKeyedMutex(),
		logger:   logger,
	}, nil
}

// WithCache enables caching of generated predictions.
func (s *Service) WithCache(c Cache) *Service {
	s.cache = c
	return s
}

func (s *Service) WithMetrics(m *metrics.Metrics) *Service {
	s.metrics = m
	return s
}

func (s *Service) Store() store.Store {
	return s.store
}

func (s *Service) Settings() *config.PipelineSettings {
	return s.settings
}

// ModelVersion tags predictions with the model version and scoring mode.
func (s *Service) ModelVersion(mode ensemble.Mode) string {
	return fmt.Sprintf("%s-%s", s.settings.ModelVersion, mode)
}

// WithLock runs fn while holding the writer lock for (period, version).
func (s *Service) WithLock(period int, modelVersion string, fn func() error) error {
	unlock := s.locks.lock(fmt.Sprintf("%d:%s", period, modelVersion))
	defer unlock()
	return fn()
}

// Generate trains on every period before target, scores the target and
// persists the selected lineup.
func (s *Service) Generate(ctx context.Context, period int, mode ensemble.Mode) (*models.Prediction, error) {
	start := time.Now()
	p, err := s.generate(ctx, period, mode)
	s.metrics.ObservePrediction(string(mode), outcome(err), time.Since(start))
	return p, err
}

func (s *Service) generate(ctx context.Context, period int, mode ensemble.Mode) (*models.Prediction, error) {
	log := s.logger.WithFields(logrus.Fields{"period": period, "mode": mode})

	if _, err := s.store.Period(ctx, period); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %d", ErrPeriodNotFound, period)
		}
		return nil, err
	}

	finished, err := s.finishedBefore(ctx, period)
	if err != nil {
		return nil, err
	}
	if finished < s.settings.MinHistoryPeriods {
		log.WithFields(logrus.Fields{
			"finished_periods": finished,
			"min_history":      s.settings.MinHistoryPeriods,
		}).Warn("Not enough historical data to predict")
		return nil, fmt.Errorf("%w: have %d finished periods, need %d",
			ErrInsufficientHistory, finished, s.settings.MinHistoryPeriods)
	}

	h, err := s.history(ctx, period)
	if err != nil {
		return nil, err
	}

	var training *features.TrainingSet
	if mode.NeedsTraining() {
		training = s.builder.TrainingSet(1, period-1, h)
	}
	snap := s.builder.Build(period, h)
	if snap.Empty() {
		return nil, fmt.Errorf("%w: no feature rows for period %d", ErrInsufficientHistory, period)
	}

	scored, err := s.combiner.Score(mode, snap, training)
	if err != nil {
		if errors.Is(err, estimator.ErrNoTrainingData) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientHistory, err)
		}
		return nil, err
	}
	if scored.Metrics != nil {
		s.metrics.SetTrainingMAE(string(mode), scored.Metrics.CVMAE)
		log.WithFields(logrus.Fields{
			"samples": scored.Metrics.Samples,
			"cv_mae":  scored.Metrics.CVMAE,
		}).Info("Model trained")
	}

	result := s.solver.Solve(scored.Scored)
	if len(result.Lineup) == 0 {
		log.Error("Lineup solver returned an empty selection")
		return nil, fmt.Errorf("%w: period %d", ErrInfeasibleSelection, period)
	}
	if result.Fallback {
		s.metrics.SolverFallback()
	}

	prediction, err := s.assemble(period, mode, result, scored.Metrics)
	if err != nil {
		return nil, err
	}
	if err := s.store.SavePrediction(ctx, prediction); err != nil {
		return nil, err
	}
	s.cachePrediction(ctx, prediction)

	log.WithFields(logrus.Fields{
		"prediction_id": prediction.ID,
		"formation":     prediction.Formation,
		"total_points":  prediction.TotalPredictedPoints,
	}).Info("Generated prediction")
	return prediction, nil
}

func (s *Service) assemble(period int, mode ensemble.Mode, result optimizer.Result, tm *estimator.TrainingMetrics) (*models.Prediction, error) {
	p := &models.Prediction{
		Period:       period,
		ModelVersion: s.ModelVersion(mode),
		Formation:    result.Formation,
		Fallback:     result.Fallback,
	}
	if tm != nil {
		raw, err := json.Marshal(tm)
		if err != nil {
			return nil, fmt.Errorf("failed to encode training metrics: %w", err)
		}
		p.TrainingMetrics = datatypes.JSON(raw)
	}

	var total float64
	for i, e := range result.Lineup {
		score := math.Max(0, e.Score)
		total += score
		p.Entries = append(p.Entries, models.PredictionEntry{
			EntityID:         e.Entity.ID,
			Role:             e.Entity.Role,
			Slot:             i + 1,
			PredictedScore:   score,
			PredictedMinutes: entryPredictedMinutes,
			StartProbability: entryStartProbability,
			Confidence:       entryConfidence,
		})
	}
	// The sum is rounded, not the individual scores.
	p.TotalPredictedPoints = int(math.RoundToEven(total))
	return p, nil
}

// Latest returns the newest prediction for a period and mode.
func (s *Service) Latest(ctx context.Context, period int, mode ensemble.Mode) (*models.Prediction, error) {
	version := s.ModelVersion(mode)
	if s.cache != nil {
		p, err := s.cache.Get(ctx, period, version)
		if err == nil {
			s.metrics.CacheLookup(true)
			return p, nil
		}
		s.metrics.CacheLookup(false)
	}

	p, err := s.store.FindPrediction(ctx, period, version)
	if err != nil {
		return nil, err
	}
	s.cachePrediction(ctx, p)
	return p, nil
}

// Discard deletes a prediction with its entries and backtest record.
func (s *Service) Discard(ctx context.Context, p *models.Prediction) error {
	if err := s.store.DeletePrediction(ctx, p.ID); err != nil {
		return err
	}
	if s.cache != nil {
		if err := s.cache.Invalidate(ctx, p.Period, p.ModelVersion); err != nil {
			s.logger.WithError(err).Warn("Failed to invalidate cached prediction")
		}
	}
	return nil
}

// Compare trains on the periods before a finished period, then measures the
// learned and heuristic estimators against what was realized.
func (s *Service) Compare(ctx context.Context, period int) (*estimator.Comparison, error) {
	h, err := s.history(ctx, period)
	if err != nil {
		return nil, err
	}
	snap := s.builder.Build(period, h)
	if snap.Empty() {
		return nil, fmt.Errorf("%w: no feature rows for period %d", ErrInsufficientHistory, period)
	}

	model := s.combiner.NewLearned()
	if _, err := model.Train(s.builder.TrainingSet(1, period-1, h)); err != nil {
		if errors.Is(err, estimator.ErrNoTrainingData) {
			return nil, fmt.Errorf("%w: %v", ErrInsufficientHistory, err)
		}
		return nil, err
	}

	X := snap.Matrix()
	learned, err := model.Predict(X)
	if err != nil {
		return nil, err
	}

	realized, err := s.store.Observations(ctx, period)
	if err != nil {
		return nil, err
	}
	points := make(map[uint]int, len(realized))
	for _, o := range realized {
		points[o.EntityID] = o.TotalPoints
	}
	actual := make([]float64, len(snap.Rows))
	for i, r := range snap.Rows {
		actual[i] = float64(points[r.Entity.ID])
	}

	return estimator.Compare(s.combiner.NewHeuristic(snap.Schema), X, actual, learned, s.settings.LineupSize, s.logger)
}

func (s *Service) finishedBefore(ctx context.Context, period int) (int, error) {
	periods, err := s.store.Periods(ctx)
	if err != nil {
		return 0, err
	}
	n := 0
	for _, p := range periods {
		if p.ID < period && p.Finished {
			n++
		}
	}
	return n, nil
}

// history loads everything a build for target may see.
func (s *Service) history(ctx context.Context, target int) (*features.History, error) {
	entities, err := s.store.Entities(ctx)
	if err != nil {
		return nil, err
	}
	teams, err := s.store.Teams(ctx)
	if err != nil {
		return nil, err
	}
	periods, err := s.store.Periods(ctx)
	if err != nil {
		return nil, err
	}
	observations, err := s.store.ObservationsBefore(ctx, target)
	if err != nil {
		return nil, err
	}
	fixtures, err := s.store.FixturesThrough(ctx, target)
	if err != nil {
		return nil, err
	}
	return features.NewHistory(features.Dataset{
		Entities:     entities,
		Teams:        teams,
		Periods:      periods,
		Observations: observations,
		Fixtures:     fixtures,
	}), nil
}

func (s *Service) cachePrediction(ctx context.Context, p *models.Prediction) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, p); err != nil {
		s.logger.WithError(err).WithField("period", p.Period).Warn("Failed to cache prediction")
	}
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrInsufficientHistory):
		return "insufficient_history"
	case errors.Is(err, ErrInfeasibleSelection):
		return "infeasible"
	case errors.Is(err, ErrPeriodNotFound):
		return "period_not_found"
	default:
		return "error"
	}
}
