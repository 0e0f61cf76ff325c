package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/stitts-dev/lineup-predictor/internal/models"
)

const batchSize = 500

// GormStore persists to postgres in production and sqlite locally.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}

func (s *GormStore) Entities(ctx context.Context) ([]models.Entity, error) {
	var out []models.Entity
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load entities: %w", err)
	}
	return out, nil
}

func (s *GormStore) Teams(ctx context.Context) ([]models.Team, error) {
	var out []models.Team
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load teams: %w", err)
	}
	return out, nil
}

func (s *GormStore) Periods(ctx context.Context) ([]models.Period, error) {
	var out []models.Period
	if err := s.db.WithContext(ctx).Order("id").Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load periods: %w", err)
	}
	return out, nil
}

func (s *GormStore) Period(ctx context.Context, id int) (*models.Period, error) {
	var p models.Period
	if err := s.db.WithContext(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *GormStore) ObservationsBefore(ctx context.Context, period int) ([]models.ObservationRecord, error) {
	var out []models.ObservationRecord
	err := s.db.WithContext(ctx).
		Where("period < ?", period).
		Order("period, entity_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load observations before %d: %w", period, err)
	}
	return out, nil
}

func (s *GormStore) Observations(ctx context.Context, period int) ([]models.ObservationRecord, error) {
	var out []models.ObservationRecord
	err := s.db.WithContext(ctx).
		Where("period = ?", period).
		Order("entity_id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load observations for %d: %w", period, err)
	}
	return out, nil
}

func (s *GormStore) FixturesThrough(ctx context.Context, period int) ([]models.Fixture, error) {
	var out []models.Fixture
	err := s.db.WithContext(ctx).
		Where("period <= ?", period).
		Order("period, id").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load fixtures: %w", err)
	}
	return out, nil
}

func (s *GormStore) GroundTruth(ctx context.Context, period int) ([]models.GroundTruthEntry, error) {
	var out []models.GroundTruthEntry
	err := s.db.WithContext(ctx).
		Where("period = ?", period).
		Order("slot").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load ground truth for %d: %w", period, err)
	}
	return out, nil
}

func (s *GormStore) FindPrediction(ctx context.Context, period int, modelVersion string) (*models.Prediction, error) {
	var p models.Prediction
	err := s.withEntries(ctx).
		Where("period = ? AND model_version = ?", period, modelVersion).
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *GormStore) Prediction(ctx context.Context, id uuid.UUID) (*models.Prediction, error) {
	var p models.Prediction
	if err := s.withEntries(ctx).First(&p, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return &p, nil
}

func (s *GormStore) withEntries(ctx context.Context) *gorm.DB {
	return s.db.WithContext(ctx).Preload("Entries", func(db *gorm.DB) *gorm.DB {
		return db.Order("slot")
	})
}

func (s *GormStore) SavePrediction(ctx context.Context, p *models.Prediction) error {
	if err := s.db.WithContext(ctx).Create(p).Error; err != nil {
		return fmt.Errorf("failed to save prediction: %w", err)
	}
	return nil
}

func (s *GormStore) DeletePrediction(ctx context.Context, id uuid.UUID) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("prediction_id = ?", id).Delete(&models.BacktestRecord{}).Error; err != nil {
			return fmt.Errorf("failed to delete backtest record: %w", err)
		}
		if err := tx.Where("prediction_id = ?", id).Delete(&models.PredictionEntry{}).Error; err != nil {
			return fmt.Errorf("failed to delete prediction entries: %w", err)
		}
		if err := tx.Where("id = ?", id).Delete(&models.Prediction{}).Error; err != nil {
			return fmt.Errorf("failed to delete prediction: %w", err)
		}
		return nil
	})
}

func (s *GormStore) UpsertBacktestRecord(ctx context.Context, r *models.BacktestRecord) error {
	// The row is matched on (period, model_version); the id comes back from the insert.
	r.ID = 0
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "period"}, {Name: "model_version"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"prediction_id", "overlap", "points_ratio",
			"actual_total", "predicted_total", "selected_actual", "updated_at",
		}),
	}).Create(r).Error
	if err != nil {
		return fmt.Errorf("failed to upsert backtest record for period %d: %w", r.Period, err)
	}
	return nil
}

func (s *GormStore) BacktestRecords(ctx context.Context, modelVersion string) ([]models.BacktestRecord, error) {
	var out []models.BacktestRecord
	q := s.db.WithContext(ctx).Order("period, id")
	if modelVersion != "" {
		q = q.Where("model_version = ?", modelVersion)
	}
	if err := q.Find(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to load backtest records: %w", err)
	}
	return out, nil
}

func (s *GormStore) UpdateExpectedStats(ctx context.Context, updates []models.ExpectedStatsUpdate) (int, error) {
	matched := 0
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range updates {
			res := tx.Model(&models.ObservationRecord{}).
				Where("entity_id = ? AND period = ?", u.EntityID, u.Period).
				Updates(map[string]interface{}{
					"expected_goals":   u.ExpectedGoals,
					"expected_assists": u.ExpectedAssists,
				})
			if res.Error != nil {
				return fmt.Errorf("failed to update expected stats for entity %d: %w", u.EntityID, res.Error)
			}
			matched += int(res.RowsAffected)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return matched, nil
}

// Load upserts a dataset in one transaction.
func (s *GormStore) Load(ctx context.Context, ds *Dataset) error {
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		upsert := tx.Clauses(clause.OnConflict{UpdateAll: true})
		if len(ds.Teams) > 0 {
			if err := upsert.CreateInBatches(ds.Teams, batchSize).Error; err != nil {
				return fmt.Errorf("teams: %w", err)
			}
		}
		if len(ds.Entities) > 0 {
			if err := upsert.CreateInBatches(ds.Entities, batchSize).Error; err != nil {
				return fmt.Errorf("entities: %w", err)
			}
		}
		if len(ds.Periods) > 0 {
			if err := upsert.CreateInBatches(ds.Periods, batchSize).Error; err != nil {
				return fmt.Errorf("periods: %w", err)
			}
		}
		if len(ds.Fixtures) > 0 {
			if err := upsert.CreateInBatches(ds.Fixtures, batchSize).Error; err != nil {
				return fmt.Errorf("fixtures: %w", err)
			}
		}
		if len(ds.Observations) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "entity_id"}, {Name: "period"}},
				UpdateAll: true,
			}).CreateInBatches(ds.Observations, batchSize).Error
			if err != nil {
				return fmt.Errorf("observations: %w", err)
			}
		}
		if len(ds.GroundTruth) > 0 {
			err := tx.Clauses(clause.OnConflict{
				Columns:   []clause.Column{{Name: "period"}, {Name: "entity_id"}},
				UpdateAll: true,
			}).CreateInBatches(ds.GroundTruth, batchSize).Error
			if err != nil {
				return fmt.Errorf("ground truth: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to load dataset: %w", err)
	}

	if len(ds.ExpectedStats) > 0 {
		if _, err := s.UpdateExpectedStats(ctx, ds.ExpectedStats); err != nil {
			return err
		}
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}
