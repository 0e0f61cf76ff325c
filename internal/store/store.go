package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/google/uuid"

	"github.com/stitts-dev/lineup-predictor/internal/models"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("record not found")

// Store is the persistence boundary of the pipeline. Records reference each
// other by id only.
type Store interface {
	Entities(ctx context.Context) ([]models.Entity, error)
	Teams(ctx context.Context) ([]models.Team, error)
	Periods(ctx context.Context) ([]models.Period, error)
	Period(ctx context.Context, id int) (*models.Period, error)

	// ObservationsBefore returns every observation with period < period.
	ObservationsBefore(ctx context.Context, period int) ([]models.ObservationRecord, error)
	Observations(ctx context.Context, period int) ([]models.ObservationRecord, error)
	// FixturesThrough returns fixtures with period <= period.
	FixturesThrough(ctx context.Context, period int) ([]models.Fixture, error)
	GroundTruth(ctx context.Context, period int) ([]models.GroundTruthEntry, error)

	// FindPrediction returns the newest prediction for a period and version.
	FindPrediction(ctx context.Context, period int, modelVersion string) (*models.Prediction, error)
	Prediction(ctx context.Context, id uuid.UUID) (*models.Prediction, error)
	SavePrediction(ctx context.Context, p *models.Prediction) error
	// DeletePrediction removes a prediction with its entries and backtest record.
	DeletePrediction(ctx context.Context, id uuid.UUID) error

	// UpsertBacktestRecord inserts or replaces the record for its period and
	// model version.
	UpsertBacktestRecord(ctx context.Context, r *models.BacktestRecord) error
	// BacktestRecords lists records by period; an empty version lists all.
	BacktestRecords(ctx context.Context, modelVersion string) ([]models.BacktestRecord, error)

	// UpdateExpectedStats applies xG/xA keyed by (entity, period) and reports
	// how many observations matched.
	UpdateExpectedStats(ctx context.Context, updates []models.ExpectedStatsUpdate) (int, error)
	Load(ctx context.Context, ds *Dataset) error
}

// Dataset is the bulk import format.
type Dataset struct {
	Teams         []models.Team                `json:"teams"`
	Entities      []models.Entity              `json:"entities"`
	Periods       []models.Period              `json:"periods"`
	Observations  []models.ObservationRecord   `json:"observations"`
	Fixtures      []models.Fixture             `json:"fixtures"`
	GroundTruth   []models.GroundTruthEntry    `json:"ground_truth"`
	ExpectedStats []models.ExpectedStatsUpdate `json:"expected_stats,omitempty"`
}

func LoadDatasetFile(path string) (*Dataset, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read dataset: %w", err)
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		return nil, fmt.Errorf("failed to decode dataset %s: %w", path, err)
	}
	return &ds, nil
}
