package backtest

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/ensemble"
	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/internal/predictor"
	"github.com/stitts-dev/lineup-predictor/internal/store"
	"github.com/stitts-dev/lineup-predictor/pkg/metrics"
)

// ErrNotEvaluable means the prediction's period has no usable ground truth yet.
var ErrNotEvaluable = errors.New("prediction cannot be evaluated")

// Period outcomes reported through Progress.
const (
	StatusEvaluated = "evaluated"
	StatusSkipped   = "skipped"
	StatusFailed    = "failed"
	StatusCompleted = "completed"
)

// Progress describes one step of a run.
type Progress struct {
	RunID     string `json:"run_id"`
	Mode      string `json:"mode"`
	Period    int    `json:"period"`
	Processed int    `json:"processed"`
	Total     int    `json:"total"`
	Overlap   int    `json:"overlap,omitempty"`
	Status    string `json:"status"`
	Reason    string `json:"reason,omitempty"`
}

type ProgressFunc func(Progress)

type RunOptions struct {
	// Start defaults to the first period with enough history.
	Start *int
	// End defaults to the latest finished period.
	End      *int
	Mode     ensemble.Mode
	Force    bool
	Progress ProgressFunc
}

// Harness replays the pipeline over finished periods and scores each
// selection against the realized optimal lineup.
type Harness struct {
	svc     *predictor.Service
	store   store.Store
	metrics *metrics.Metrics
	logger  *logrus.Logger
}

func NewHarness(svc *predictor.Service, logger *logrus.Logger) *Harness {
	return &Harness{
		svc:    svc,
		store:  svc.Store(),
		logger: logger,
	}
}

func (h *Harness) WithMetrics(m *metrics.Metrics) *Harness {
	h.metrics = m
	return h
}

// Run backtests every period in range. Per-period failures are logged and
// skipped; only store failures while planning the run are returned.
func (h *Harness) Run(ctx context.Context, opts RunOptions) (*models.BacktestSummary, error) {
	if opts.Mode == "" {
		opts.Mode = ensemble.ModeEnsemble
	}
	runID := uuid.New().String()
	log := h.logger.WithFields(logrus.Fields{"run_id": runID, "mode": opts.Mode})

	periods, err := h.store.Periods(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load periods: %w", err)
	}
	byID := make(map[int]models.Period, len(periods))
	end := 0
	for _, p := range periods {
		byID[p.ID] = p
		if p.Finished && p.ID > end {
			end = p.ID
		}
	}
	if opts.End != nil {
		end = *opts.End
	} else if end == 0 {
		log.Info("No finished periods to backtest")
		return Summarize(nil), nil
	}

	minStart := h.svc.Settings().MinHistoryPeriods + 1
	start := minStart
	if opts.Start != nil {
		start = *opts.Start
	}
	if start < minStart {
		log.WithFields(logrus.Fields{
			"requested_start": start,
			"adjusted_start":  minStart,
		}).Warn("Start period too early, adjusting")
		start = minStart
	}

	version := h.svc.ModelVersion(opts.Mode)
	total := end - start + 1
	if total < 0 {
		total = 0
	}
	report := func(p Progress) {
		if opts.Progress != nil {
			p.RunID, p.Mode, p.Total = runID, string(opts.Mode), total
			opts.Progress(p)
		}
	}

	var records []models.BacktestRecord
	for period := start; period <= end; period++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		processed := period - start + 1
		plog := log.WithField("period", period)

		var rec *models.BacktestRecord
		var reason string
		err := h.svc.WithLock(period, version, func() error {
			var err error
			rec, reason, err = h.runPeriod(ctx, byID, period, opts, version, plog)
			return err
		})

		switch {
		case err != nil:
			plog.WithError(err).Warn("Backtest period failed")
			h.metrics.BacktestPeriod(StatusFailed, 0)
			report(Progress{Period: period, Processed: processed, Status: StatusFailed, Reason: err.Error()})
		case rec == nil:
			plog.WithField("reason", reason).Info("Skipping period")
			h.metrics.BacktestPeriod(StatusSkipped, 0)
			report(Progress{Period: period, Processed: processed, Status: StatusSkipped, Reason: reason})
		default:
			records = append(records, *rec)
			h.metrics.BacktestPeriod(StatusEvaluated, rec.Overlap)
			report(Progress{Period: period, Processed: processed, Overlap: rec.Overlap, Status: StatusEvaluated})
			plog.WithFields(logrus.Fields{
				"overlap":         rec.Overlap,
				"points_ratio":    rec.PointsRatio.String(),
				"predicted_total": rec.PredictedTotal,
				"actual_total":    rec.ActualTotal,
			}).Info("Backtested period")
		}
	}

	summary := Summarize(records)
	report(Progress{Processed: total, Status: StatusCompleted})
	log.WithFields(logrus.Fields{
		"periods":     summary.TotalPeriods,
		"avg_overlap": summary.AvgOverlap,
	}).Info("Backtest complete")
	return summary, nil
}

// runPeriod returns a nil record with a reason when the period is skipped.
func (h *Harness) runPeriod(ctx context.Context, periods map[int]models.Period, period int, opts RunOptions, version string, log *logrus.Entry) (*models.BacktestRecord, string, error) {
	p, ok := periods[period]
	if !ok || !p.Finished {
		return nil, "period not finished", nil
	}
	truth, err := h.store.GroundTruth(ctx, period)
	if err != nil {
		return nil, "", err
	}
	if len(truth) != h.svc.Settings().LineupSize {
		return nil, fmt.Sprintf("incomplete ground truth (%d entries)", len(truth)), nil
	}

	prediction, err := h.store.FindPrediction(ctx, period, version)
	switch {
	case err == nil && !opts.Force:
		log.WithField("prediction_id", prediction.ID).Debug("Reusing existing prediction")
	case err == nil || errors.Is(err, store.ErrNotFound):
		if err == nil {
			if err := h.svc.Discard(ctx, prediction); err != nil {
				return nil, "", err
			}
		}
		prediction, err = h.svc.Generate(ctx, period, opts.Mode)
		if err != nil {
			if errors.Is(err, predictor.ErrInsufficientHistory) || errors.Is(err, predictor.ErrInfeasibleSelection) {
				return nil, err.Error(), nil
			}
			return nil, "", err
		}
	default:
		return nil, "", err
	}

	rec, err := h.compare(ctx, prediction, truth)
	if err != nil {
		return nil, "", err
	}
	if err := h.store.UpsertBacktestRecord(ctx, rec); err != nil {
		return nil, "", err
	}
	return rec, "", nil
}

// Evaluate compares one stored prediction with its period's ground truth
// without persisting anything.
func (h *Harness) Evaluate(ctx context.Context, predictionID uuid.UUID) (*models.BacktestRecord, error) {
	prediction, err := h.store.Prediction(ctx, predictionID)
	if err != nil {
		return nil, err
	}
	period, err := h.store.Period(ctx, prediction.Period)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: period %d is unknown", ErrNotEvaluable, prediction.Period)
		}
		return nil, err
	}
	if !period.Finished {
		return nil, fmt.Errorf("%w: period %d is not finished", ErrNotEvaluable, period.ID)
	}
	truth, err := h.store.GroundTruth(ctx, period.ID)
	if err != nil {
		return nil, err
	}
	if len(truth) != h.svc.Settings().LineupSize {
		return nil, fmt.Errorf("%w: ground truth for period %d has %d entries", ErrNotEvaluable, period.ID, len(truth))
	}
	return h.compare(ctx, prediction, truth)
}

// Summary aggregates the stored records for a mode.
func (h *Harness) Summary(ctx context.Context, mode ensemble.Mode) (*models.BacktestSummary, error) {
	records, err := h.store.BacktestRecords(ctx, h.svc.ModelVersion(mode))
	if err != nil {
		return nil, err
	}
	return Summarize(records), nil
}

// PeriodRecord returns the stored record for one period and mode.
func (h *Harness) PeriodRecord(ctx context.Context, period int, mode ensemble.Mode) (*models.BacktestRecord, error) {
	records, err := h.store.BacktestRecords(ctx, h.svc.ModelVersion(mode))
	if err != nil {
		return nil, err
	}
	var found *models.BacktestRecord
	for i := range records {
		if records[i].Period == period && (found == nil || records[i].UpdatedAt.After(found.UpdatedAt)) {
			found = &records[i]
		}
	}
	if found == nil {
		return nil, store.ErrNotFound
	}
	return found, nil
}

func (h *Harness) compare(ctx context.Context, prediction *models.Prediction, truth []models.GroundTruthEntry) (*models.BacktestRecord, error) {
	realized, err := h.store.Observations(ctx, prediction.Period)
	if err != nil {
		return nil, err
	}
	points := make(map[uint]int, len(realized))
	for _, o := range realized {
		points[o.EntityID] = o.TotalPoints
	}

	actual := make(map[uint]struct{}, len(truth))
	actualTotal := 0
	for _, g := range truth {
		actual[g.EntityID] = struct{}{}
		actualTotal += g.Points
	}

	overlap, selectedActual := 0, 0
	for _, id := range prediction.EntityIDs() {
		if _, ok := actual[id]; ok {
			overlap++
		}
		selectedActual += points[id]
	}

	ratio := decimal.Zero
	if actualTotal != 0 {
		ratio = decimal.NewFromInt(int64(prediction.TotalPredictedPoints)).
			DivRound(decimal.NewFromInt(int64(actualTotal)), 4)
	}

	return &models.BacktestRecord{
		Period:         prediction.Period,
		PredictionID:   prediction.ID,
		ModelVersion:   prediction.ModelVersion,
		Overlap:        overlap,
		PointsRatio:    ratio,
		ActualTotal:    actualTotal,
		PredictedTotal: prediction.TotalPredictedPoints,
		SelectedActual: &selectedActual,
	}, nil
}
