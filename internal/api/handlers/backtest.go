package handlers

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/backtest"
	"github.com/stitts-dev/lineup-predictor/internal/ensemble"
)

// ProgressPublisher receives backtest progress, typically the websocket hub
type ProgressPublisher interface {
	Publish(p backtest.Progress)
}

// RunBacktestRequest is the body of POST /backtest/run
type RunBacktestRequest struct {
	Start *int   `json:"start" binding:"omitempty,min=1"`
	End   *int   `json:"end" binding:"omitempty,min=1"`
	Mode  string `json:"mode"`
	Force bool   `json:"force"`
}

// BacktestHandler runs and reports backtests
type BacktestHandler struct {
	harness     *backtest.Harness
	publisher   ProgressPublisher
	defaultMode string
	logger      *logrus.Logger
}

func NewBacktestHandler(harness *backtest.Harness, publisher ProgressPublisher, defaultMode string, logger *logrus.Logger) *BacktestHandler {
	return &BacktestHandler{
		harness:     harness,
		publisher:   publisher,
		defaultMode: defaultMode,
		logger:      logger,
	}
}

// RunBacktest replays the requested range and returns the summary.
// Progress is streamed to websocket subscribers while it runs.
func (h *BacktestHandler) RunBacktest(c *gin.Context) {
	var req RunBacktestRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		badRequest(c, "Invalid request format", "INVALID_REQUEST", err)
		return
	}
	if req.Start != nil && req.End != nil && *req.Start > *req.End {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Start period must not be after end period",
			Code:  "INVALID_RANGE",
		})
		return
	}
	if req.Mode == "" {
		req.Mode = h.defaultMode
	}
	mode, err := ensemble.ParseMode(req.Mode)
	if err != nil {
		badRequest(c, "Invalid mode", "INVALID_MODE", err)
		return
	}

	opts := backtest.RunOptions{
		Start: req.Start,
		End:   req.End,
		Mode:  mode,
		Force: req.Force,
	}
	if h.publisher != nil {
		opts.Progress = h.publisher.Publish
	}

	summary, err := h.harness.Run(c.Request.Context(), opts)
	if err != nil {
		respondError(c, h.logger, "Backtest failed", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetSummary aggregates every stored record for a mode
func (h *BacktestHandler) GetSummary(c *gin.Context) {
	mode, ok := modeQuery(c, h.defaultMode)
	if !ok {
		return
	}
	summary, err := h.harness.Summary(c.Request.Context(), mode)
	if err != nil {
		respondError(c, h.logger, "Failed to load backtest summary", err)
		return
	}
	c.JSON(http.StatusOK, summary)
}

// GetPeriodResult returns the stored record for one period
func (h *BacktestHandler) GetPeriodResult(c *gin.Context) {
	period, ok := periodParam(c)
	if !ok {
		return
	}
	mode, ok := modeQuery(c, h.defaultMode)
	if !ok {
		return
	}
	rec, err := h.harness.PeriodRecord(c.Request.Context(), period, mode)
	if err != nil {
		respondError(c, h.logger, "Backtest result not found", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}

// EvaluatePrediction scores a stored prediction against its period's optimum
func (h *BacktestHandler) EvaluatePrediction(c *gin.Context) {
	id, err := uuid.Parse(c.Param("prediction_id"))
	if err != nil {
		badRequest(c, "Invalid prediction id", "INVALID_PREDICTION_ID", err)
		return
	}
	rec, err := h.harness.Evaluate(c.Request.Context(), id)
	if err != nil {
		respondError(c, h.logger, "Failed to evaluate prediction", err)
		return
	}
	c.JSON(http.StatusOK, rec)
}
