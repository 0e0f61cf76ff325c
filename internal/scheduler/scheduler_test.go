package scheduler

import (
	"context"
	"io"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/lineup-predictor/internal/ensemble"
	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/internal/predictor"
	"github.com/stitts-dev/lineup-predictor/internal/store"
	"github.com/stitts-dev/lineup-predictor/internal/store/storetest"
	"github.com/stitts-dev/lineup-predictor/pkg/config"
)

func newScheduler(t *testing.T, ds *store.Dataset) (*PredictionScheduler, *store.MemoryStore) {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	st := store.NewMemoryStore()
	require.NoError(t, st.Load(context.Background(), ds))
	svc, err := predictor.NewService(st, config.DefaultPipeline(), logger)
	require.NoError(t, err)
	return NewPredictionScheduler(svc, ensemble.ModeHeuristic, "@every 1h", logger), st
}

func TestRunOnce_GeneratesOnlyOnce(t *testing.T) {
	s, st := newScheduler(t, storetest.Season(storetest.SeasonOptions{Periods: 9, Finished: 7, Seed: 3}))
	ctx := context.Background()

	period, generated, err := s.RunOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 8, period)
	assert.True(t, generated)

	p, err := st.FindPrediction(ctx, 8, "v1.0.0-heuristic")
	require.NoError(t, err)

	_, generated, err = s.RunOnce(ctx)
	require.NoError(t, err)
	assert.False(t, generated)

	again, err := st.FindPrediction(ctx, 8, "v1.0.0-heuristic")
	require.NoError(t, err)
	assert.Equal(t, p.ID, again.ID)
}

func TestRunOnce_AllFinished(t *testing.T) {
	s, _ := newScheduler(t, storetest.Season(storetest.SeasonOptions{Periods: 6, Finished: 6, Seed: 3}))
	_, _, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, ErrNoUpcomingPeriod)
}

func TestRunOnce_InsufficientHistory(t *testing.T) {
	s, _ := newScheduler(t, storetest.Season(storetest.SeasonOptions{Periods: 4, Finished: 2, Seed: 3}))
	period, generated, err := s.RunOnce(context.Background())
	assert.ErrorIs(t, err, predictor.ErrInsufficientHistory)
	assert.Equal(t, 3, period)
	assert.False(t, generated)
}

func TestStartStop(t *testing.T) {
	s, _ := newScheduler(t, &store.Dataset{})
	require.NoError(t, s.Start())
	assert.Error(t, s.Start())
	assert.Equal(t, true, s.Status()["is_running"])
	assert.Equal(t, 1, s.Status()["cron_jobs"])
	s.Stop()
	assert.Equal(t, false, s.Status()["is_running"])
}

func TestStart_InvalidSchedule(t *testing.T) {
	s, _ := newScheduler(t, &store.Dataset{})
	s.schedule = "every now and then"
	assert.Error(t, s.Start())
}

func TestNextPeriod(t *testing.T) {
	tests := []struct {
		name    string
		periods []models.Period
		want    int
		ok      bool
	}{
		{"flagged next wins", []models.Period{{ID: 3}, {ID: 5, IsNext: true}}, 5, true},
		{"earliest unfinished", []models.Period{{ID: 4}, {ID: 2, Finished: true}, {ID: 3}}, 3, true},
		{"none", []models.Period{{ID: 1, Finished: true}}, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := nextPeriod(tt.periods)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}
