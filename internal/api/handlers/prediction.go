package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/models"
	"github.com/stitts-dev/lineup-predictor/internal/predictor"
)

// PredictionHandler serves lineup predictions and realized optimal lineups
type PredictionHandler struct {
	svc    *predictor.Service
	logger *logrus.Logger
}

func NewPredictionHandler(svc *predictor.Service, logger *logrus.Logger) *PredictionHandler {
	return &PredictionHandler{
		svc:    svc,
		logger: logger,
	}
}

// GetPrediction returns the newest prediction for a period and mode
func (h *PredictionHandler) GetPrediction(c *gin.Context) {
	period, ok := periodParam(c)
	if !ok {
		return
	}
	mode, ok := modeQuery(c, h.svc.Settings().DefaultMode)
	if !ok {
		return
	}

	p, err := h.svc.Latest(c.Request.Context(), period, mode)
	if err != nil {
		respondError(c, h.logger, "Prediction not found", err)
		return
	}
	c.JSON(http.StatusOK, p)
}

// GeneratePrediction runs the pipeline for a period and stores the result
func (h *PredictionHandler) GeneratePrediction(c *gin.Context) {
	period, ok := periodParam(c)
	if !ok {
		return
	}
	mode, ok := modeQuery(c, h.svc.Settings().DefaultMode)
	if !ok {
		return
	}

	var p *models.Prediction
	err := h.svc.WithLock(period, h.svc.ModelVersion(mode), func() error {
		var err error
		p, err = h.svc.Generate(c.Request.Context(), period, mode)
		return err
	})
	if err != nil {
		respondError(c, h.logger, "Failed to generate prediction", err)
		return
	}

	h.logger.WithFields(logrus.Fields{
		"period":        period,
		"mode":          mode,
		"prediction_id": p.ID,
		"formation":     p.Formation,
	}).Info("Prediction generated")
	c.JSON(http.StatusCreated, p)
}

// GetGroundTruth returns the realized optimal lineup for a period
func (h *PredictionHandler) GetGroundTruth(c *gin.Context) {
	period, ok := periodParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	if _, err := h.svc.Store().Period(ctx, period); err != nil {
		respondError(c, h.logger, "Period not found", err)
		return
	}
	entries, err := h.svc.Store().GroundTruth(ctx, period)
	if err != nil {
		respondError(c, h.logger, "Failed to load ground truth", err)
		return
	}

	total := 0
	for _, e := range entries {
		total += e.Points
	}
	c.JSON(http.StatusOK, gin.H{
		"period":       period,
		"complete":     len(entries) == h.svc.Settings().LineupSize,
		"total_points": total,
		"entries":      entries,
	})
}
