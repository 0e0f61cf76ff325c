package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/ensemble"
	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/internal/predictor"
	"github.com/stitts-dev/lineup-predictor/internal/store"
)

// ErrNoUpcomingPeriod means every catalogued period is finished.
var ErrNoUpcomingPeriod = errors.New("no upcoming period")

// PredictionScheduler keeps a prediction ready for the next period.
type PredictionScheduler struct {
	svc       *predictor.Service
	mode      ensemble.Mode
	schedule  string
	cron      *cron.Cron
	logger    *logrus.Logger
	mu        sync.Mutex
	isRunning bool
	lastRun   time.Time
}

func NewPredictionScheduler(svc *predictor.Service, mode ensemble.Mode, schedule string, logger *logrus.Logger) *PredictionScheduler {
	return &PredictionScheduler{
		svc:      svc,
		mode:     mode,
		schedule: schedule,
		cron:     cron.New(),
		logger:   logger,
	}
}

func (s *PredictionScheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isRunning {
		return fmt.Errorf("prediction scheduler is already running")
	}
	if _, err := s.cron.AddFunc(s.schedule, s.tick); err != nil {
		return fmt.Errorf("failed to schedule predictions: %w", err)
	}
	s.cron.Start()
	s.isRunning = true

	s.logger.WithFields(logrus.Fields{
		"schedule": s.schedule,
		"mode":     s.mode,
	}).Info("Prediction scheduler started")
	return nil
}

// Stop waits for a running job to finish.
func (s *PredictionScheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.isRunning {
		return
	}
	<-s.cron.Stop().Done()
	s.isRunning = false
	s.logger.Info("Prediction scheduler stopped")
}

func (s *PredictionScheduler) tick() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
	defer cancel()

	period, generated, err := s.RunOnce(ctx)
	log := s.logger.WithFields(logrus.Fields{"period": period, "mode": s.mode})
	switch {
	case errors.Is(err, ErrNoUpcomingPeriod):
		s.logger.Debug("No upcoming period to predict")
	case errors.Is(err, predictor.ErrInsufficientHistory):
		log.Info("Not enough history yet, will retry")
	case err != nil:
		log.WithError(err).Error("Scheduled prediction failed")
	case generated:
		log.Info("Scheduled prediction generated")
	}
}

// RunOnce generates a prediction for the next unfinished period unless one
// already exists for the current model version.
func (s *PredictionScheduler) RunOnce(ctx context.Context) (int, bool, error) {
	s.mu.Lock()
	s.lastRun = time.Now().UTC()
	s.mu.Unlock()

	periods, err := s.svc.Store().Periods(ctx)
	if err != nil {
		return 0, false, err
	}
	next, ok := nextPeriod(periods)
	if !ok {
		return 0, false, ErrNoUpcomingPeriod
	}

	version := s.svc.ModelVersion(s.mode)
	generated := false
	err = s.svc.WithLock(next, version, func() error {
		_, err := s.svc.Store().FindPrediction(ctx, next, version)
		if err == nil {
			return nil
		}
		if !errors.Is(err, store.ErrNotFound) {
			return err
		}
		if _, err := s.svc.Generate(ctx, next, s.mode); err != nil {
			return err
		}
		generated = true
		return nil
	})
	return next, generated, err
}

// Status reports scheduler state for health endpoints.
func (s *PredictionScheduler) Status() map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return map[string]interface{}{
		"is_running": s.isRunning,
		"schedule":   s.schedule,
		"mode":       s.mode,
		"last_run":   s.lastRun,
		"cron_jobs":  len(s.cron.Entries()),
	}
}

// nextPeriod prefers the period flagged as next, then the earliest
// unfinished one.
func nextPeriod(periods []models.Period) (int, bool) {
	next, found := 0, false
	for _, p := range periods {
		if p.IsNext {
			return p.ID, true
		}
		if !p.Finished && (!found || p.ID < next) {
			next, found = p.ID, true
		}
	}
	return next, found
}
