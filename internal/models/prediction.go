package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// FormationUnavailable marks a lineup whose formation cannot be described.
const FormationUnavailable = "N/A"

// Prediction is a persisted selected lineup for one period and model version.
type Prediction struct {
	ID                   uuid.UUID         `gorm:"type:uuid;primaryKey" json:"id"`
	Period               int               `gorm:"not null;index:idx_prediction_period_version" json:"period"`
	ModelVersion         string            `gorm:"not null;index:idx_prediction_period_version" json:"model_version"`
	Formation            string            `json:"formation"`
	// Fallback is set when the lineup came from the greedy split rather than
	// the integer program.
	Fallback             bool              `gorm:"not null;default:false" json:"fallback"`
	TotalPredictedPoints int               `json:"total_predicted_points"`
	TrainingMetrics      datatypes.JSON    `json:"training_metrics,omitempty"`
	Entries              []PredictionEntry `gorm:"foreignKey:PredictionID;constraint:OnDelete:CASCADE" json:"entries"`
	CreatedAt            time.Time         `json:"created_at"`
}

func (Prediction) TableName() string {
	return "predictions"
}

func (p *Prediction) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// EntityIDs returns the selected entity ids in slot order.
func (p *Prediction) EntityIDs() []uint {
	ids := make([]uint, 0, len(p.Entries))
	for _, e := range p.Entries {
		ids = append(ids, e.EntityID)
	}
	return ids
}

type PredictionEntry struct {
	ID               uint      `gorm:"primaryKey" json:"-"`
	PredictionID     uuid.UUID `gorm:"type:uuid;index;not null" json:"prediction_id"`
	EntityID         uint      `gorm:"not null" json:"entity_id"`
	Role             Role      `gorm:"type:varchar(3)" json:"role"`
	Slot             int       `json:"slot"`
	PredictedScore   float64   `json:"predicted_score"`
	PredictedMinutes int       `json:"predicted_minutes"`
	StartProbability float64   `json:"start_probability"`
	Confidence       float64   `json:"confidence"`
}

func (PredictionEntry) TableName() string {
	return "prediction_entries"
}

// BacktestRecord stores how the latest evaluated prediction for a period and
// model version compared to the realized optimum. There is at most one per
// (period, model_version).
type BacktestRecord struct {
	ID             uint            `gorm:"primaryKey" json:"-"`
	Period         int             `gorm:"not null;uniqueIndex:idx_backtest_period_version" json:"period"`
	PredictionID   uuid.UUID       `gorm:"type:uuid;index;not null" json:"prediction_id"`
	ModelVersion   string          `gorm:"not null;uniqueIndex:idx_backtest_period_version" json:"model_version"`
	Overlap        int             `json:"overlap"`
	PointsRatio    decimal.Decimal `gorm:"type:decimal(8,4)" json:"points_ratio"`
	ActualTotal    int             `json:"actual_total"`
	PredictedTotal int             `json:"predicted_total"`
	SelectedActual *int            `json:"selected_actual,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at"`
}

func (BacktestRecord) TableName() string {
	return "backtest_records"
}

// BacktestSummary aggregates records over a run.
type BacktestSummary struct {
	TotalPeriods         int              `json:"total_periods"`
	AvgOverlap           float64          `json:"avg_overlap"`
	AvgPointsRatio       float64          `json:"avg_points_ratio"`
	AvgSelectedActual    *float64         `json:"avg_selected_actual"`
	AvgGroundTruthPoints *float64         `json:"avg_ground_truth_points"`
	MinOverlap           int              `json:"min_overlap"`
	MaxOverlap           int              `json:"max_overlap"`
	PeriodsOverlap9Plus  int              `json:"periods_overlap_9_plus"`
	PeriodsOverlap8Plus  int              `json:"periods_overlap_8_plus"`
	Results              []BacktestRecord `json:"results"`
}

// AllModels lists every persisted model for migrations.
func AllModels() []interface{} {
	return []interface{}{
		&Team{},
		&Entity{},
		&Period{},
		&ObservationRecord{},
		&Fixture{},
		&GroundTruthEntry{},
		&Prediction{},
		&PredictionEntry{},
		&BacktestRecord{},
	}
}
