package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/pkg/database"
)

func intPtr(v int) *int { return &v }

func sampleDataset() *Dataset {
	return &Dataset{
		Teams: []models.Team{
			{ID: 1, Name: "Arsenal", ShortName: "ARS", StrengthAttackHome: intPtr(1300)},
			{ID: 2, Name: "Brentford", ShortName: "BRE"},
		},
		Entities: []models.Entity{
			{ID: 10, TeamID: 1, WebName: "Raya", Role: models.RoleGoalkeeper, Status: models.StatusAvailable},
			{ID: 11, TeamID: 2, WebName: "Mbeumo", Role: models.RoleMidfielder, Status: models.StatusInjured},
		},
		Periods: []models.Period{
			{ID: 1, Name: "Gameweek 1", Finished: true},
			{ID: 2, Name: "Gameweek 2", Finished: true},
			{ID: 3, Name: "Gameweek 3"},
		},
		Observations: []models.ObservationRecord{
			{EntityID: 10, Period: 1, Minutes: 90, TotalPoints: 6},
			{EntityID: 10, Period: 2, Minutes: 90, TotalPoints: 2},
			{EntityID: 11, Period: 1, Minutes: 75, TotalPoints: 8, Goals: 1},
		},
		Fixtures: []models.Fixture{
			{ID: 100, Period: 1, HomeTeamID: 1, AwayTeamID: 2, HomeDifficulty: intPtr(2), AwayDifficulty: intPtr(4)},
			{ID: 101, Period: 3, HomeTeamID: 2, AwayTeamID: 1},
		},
		GroundTruth: []models.GroundTruthEntry{
			{Period: 1, EntityID: 11, Slot: 2, Points: 8},
			{Period: 1, EntityID: 10, Slot: 1, Points: 6},
		},
		ExpectedStats: []models.ExpectedStatsUpdate{
			{EntityID: 11, Period: 1, ExpectedGoals: 0.62, ExpectedAssists: 0.1},
		},
	}
}

func newSQLiteStore(t *testing.T) *GormStore {
	t.Helper()
	db, err := database.NewSQLiteConnection(":memory:", false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, Migrate(db.DB))
	return NewGormStore(db.DB)
}

// forEachStore runs the same checks against both implementations.
func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemoryStore()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newSQLiteStore(t)) })
}

func TestStore_LoadAndQuery(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Load(ctx, sampleDataset()))

		entities, err := s.Entities(ctx)
		require.NoError(t, err)
		require.Len(t, entities, 2)
		assert.Equal(t, models.StatusInjured, entities[1].Status)

		periods, err := s.Periods(ctx)
		require.NoError(t, err)
		assert.Len(t, periods, 3)

		p, err := s.Period(ctx, 2)
		require.NoError(t, err)
		assert.True(t, p.Finished)

		_, err = s.Period(ctx, 38)
		assert.ErrorIs(t, err, ErrNotFound)

		before, err := s.ObservationsBefore(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, before, 2)
		for _, o := range before {
			assert.Equal(t, 1, o.Period)
		}

		fixtures, err := s.FixturesThrough(ctx, 2)
		require.NoError(t, err)
		assert.Len(t, fixtures, 1)

		truth, err := s.GroundTruth(ctx, 1)
		require.NoError(t, err)
		require.Len(t, truth, 2)
		assert.Equal(t, 1, truth[0].Slot)
	})
}

func TestStore_ExpectedStatsApplied(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Load(ctx, sampleDataset()))

		obs, err := s.Observations(ctx, 1)
		require.NoError(t, err)
		var found bool
		for _, o := range obs {
			if o.EntityID == 11 {
				found = true
				require.NotNil(t, o.ExpectedGoals)
				assert.InDelta(t, 0.62, *o.ExpectedGoals, 1e-9)
			}
		}
		assert.True(t, found)

		matched, err := s.UpdateExpectedStats(ctx, []models.ExpectedStatsUpdate{
			{EntityID: 10, Period: 2, ExpectedGoals: 0, ExpectedAssists: 0.05},
			{EntityID: 99, Period: 2, ExpectedGoals: 1},
		})
		require.NoError(t, err)
		assert.Equal(t, 1, matched)
	})
}

func TestStore_ReloadIsIdempotent(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Load(ctx, sampleDataset()))

		ds := sampleDataset()
		ds.Observations[0].TotalPoints = 9
		require.NoError(t, s.Load(ctx, &Dataset{Observations: ds.Observations[:1]}))

		obs, err := s.Observations(ctx, 1)
		require.NoError(t, err)
		assert.Len(t, obs, 2)
		for _, o := range obs {
			if o.EntityID == 10 {
				assert.Equal(t, 9, o.TotalPoints)
			}
		}

		require.NoError(t, s.Load(ctx, sampleDataset()))
		fixtures, err := s.FixturesThrough(ctx, 3)
		require.NoError(t, err)
		require.Len(t, fixtures, 2)
		assert.Equal(t, uint(100), fixtures[0].ID)
		assert.Equal(t, uint(101), fixtures[1].ID)
	})
}

func samplePrediction(period int, version string) *models.Prediction {
	p := &models.Prediction{
		Period:               period,
		ModelVersion:         version,
		Formation:            "4-4-2",
		TotalPredictedPoints: 55,
	}
	for slot := 1; slot <= 3; slot++ {
		p.Entries = append(p.Entries, models.PredictionEntry{
			EntityID:         uint(slot),
			Role:             models.RoleDefender,
			Slot:             slot,
			PredictedScore:   float64(10 - slot),
			PredictedMinutes: 90,
			StartProbability: 0.95,
			Confidence:       0.7,
		})
	}
	return p
}

func TestStore_PredictionLifecycle(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()

		older := samplePrediction(5, "v1.0.0-ensemble")
		older.CreatedAt = time.Now().UTC().Add(-time.Hour)
		require.NoError(t, s.SavePrediction(ctx, older))
		require.NotEqual(t, uuid.Nil, older.ID)

		newer := samplePrediction(5, "v1.0.0-ensemble")
		newer.TotalPredictedPoints = 60
		require.NoError(t, s.SavePrediction(ctx, newer))

		found, err := s.FindPrediction(ctx, 5, "v1.0.0-ensemble")
		require.NoError(t, err)
		assert.Equal(t, newer.ID, found.ID)
		require.Len(t, found.Entries, 3)
		assert.Equal(t, []uint{1, 2, 3}, found.EntityIDs())

		_, err = s.FindPrediction(ctx, 5, "v1.0.0-learned")
		assert.ErrorIs(t, err, ErrNotFound)

		record := &models.BacktestRecord{
			Period:         5,
			PredictionID:   newer.ID,
			ModelVersion:   newer.ModelVersion,
			Overlap:        7,
			PointsRatio:    decimal.NewFromFloat(0.75),
			ActualTotal:    80,
			PredictedTotal: 60,
		}
		require.NoError(t, s.UpsertBacktestRecord(ctx, record))

		record.Overlap = 8
		require.NoError(t, s.UpsertBacktestRecord(ctx, record))

		records, err := s.BacktestRecords(ctx, "")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, 8, records[0].Overlap)
		assert.True(t, decimal.NewFromFloat(0.75).Equal(records[0].PointsRatio))

		require.NoError(t, s.DeletePrediction(ctx, newer.ID))
		_, err = s.Prediction(ctx, newer.ID)
		assert.ErrorIs(t, err, ErrNotFound)

		records, err = s.BacktestRecords(ctx, "")
		require.NoError(t, err)
		assert.Empty(t, records)

		found, err = s.FindPrediction(ctx, 5, "v1.0.0-ensemble")
		require.NoError(t, err)
		assert.Equal(t, older.ID, found.ID)
	})
}

func TestBacktestRecords_FilterByVersion(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i, version := range []string{"v1.0.0-ensemble", "v1.0.0-learned", "v1.0.0-ensemble"} {
			require.NoError(t, s.UpsertBacktestRecord(ctx, &models.BacktestRecord{
				Period:       6 - i,
				PredictionID: uuid.New(),
				ModelVersion: version,
				PointsRatio:  decimal.Zero,
			}))
		}

		records, err := s.BacktestRecords(ctx, "v1.0.0-ensemble")
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, 4, records[0].Period)
		assert.Equal(t, 6, records[1].Period)
	})
}

func TestUpsertBacktestRecord_OnePerPeriodAndVersion(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		first, second := uuid.New(), uuid.New()

		require.NoError(t, s.UpsertBacktestRecord(ctx, &models.BacktestRecord{
			Period: 7, PredictionID: first, ModelVersion: "v1.0.0-heuristic", Overlap: 5, PointsRatio: decimal.Zero,
		}))
		require.NoError(t, s.UpsertBacktestRecord(ctx, &models.BacktestRecord{
			Period: 7, PredictionID: second, ModelVersion: "v1.0.0-heuristic", Overlap: 6, PointsRatio: decimal.Zero,
		}))
		require.NoError(t, s.UpsertBacktestRecord(ctx, &models.BacktestRecord{
			Period: 7, PredictionID: uuid.New(), ModelVersion: "v1.0.0-learned", PointsRatio: decimal.Zero,
		}))

		records, err := s.BacktestRecords(ctx, "v1.0.0-heuristic")
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, second, records[0].PredictionID)
		assert.Equal(t, 6, records[0].Overlap)

		require.NoError(t, s.DeletePrediction(ctx, first))
		records, err = s.BacktestRecords(ctx, "v1.0.0-heuristic")
		require.NoError(t, err)
		assert.Len(t, records, 1)
	})
}

func TestLoadDatasetFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "season.json")
	raw, err := json.Marshal(sampleDataset())
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, raw, 0o600))

	ds, err := LoadDatasetFile(path)
	require.NoError(t, err)
	assert.Len(t, ds.Entities, 2)
	assert.Len(t, ds.ExpectedStats, 1)

	_, err = LoadDatasetFile(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}
