package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/backtest"
	"github.com/stitts-dev/lineup-predictor/internal/ensemble"
	"github.com/stitts-dev/lineup-predictor/internal/predictor"
	"github.com/stitts-dev/lineup-predictor/internal/store"
)

// ErrorResponse represents a standard error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// HealthStatus is returned by the health and readiness probes
type HealthStatus struct {
	Status    string                 `json:"status"`
	Service   string                 `json:"service"`
	Timestamp time.Time              `json:"timestamp"`
	Checks    map[string]string      `json:"checks"`
	Jobs      map[string]interface{} `json:"jobs,omitempty"`
}

func badRequest(c *gin.Context, message, code string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = map[string]string{"validation_error": err.Error()}
	}
	c.JSON(http.StatusBadRequest, resp)
}

// respondError maps pipeline errors onto HTTP statuses.
func respondError(c *gin.Context, logger *logrus.Logger, message string, err error) {
	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, predictor.ErrInsufficientHistory):
		status, code = http.StatusUnprocessableEntity, "INSUFFICIENT_HISTORY"
	case errors.Is(err, predictor.ErrInfeasibleSelection):
		status, code = http.StatusUnprocessableEntity, "INFEASIBLE_SELECTION"
	case errors.Is(err, backtest.ErrNotEvaluable):
		status, code = http.StatusConflict, "NOT_EVALUABLE"
	case errors.Is(err, predictor.ErrPeriodNotFound), errors.Is(err, store.ErrNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	}

	if status == http.StatusInternalServerError {
		logger.WithError(err).WithField("path", c.FullPath()).Error(message)
	}
	c.JSON(status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: map[string]string{"error": err.Error()},
	})
}

func periodParam(c *gin.Context) (int, bool) {
	period, err := strconv.Atoi(c.Param("period"))
	if err != nil || period < 1 {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error: "Invalid period",
			Code:  "INVALID_PERIOD",
			Details: map[string]string{
				"period": c.Param("period"),
			},
		})
		return 0, false
	}
	return period, true
}

// modeQuery reads ?mode=, falling back to the configured default.
func modeQuery(c *gin.Context, fallback string) (ensemble.Mode, bool) {
	raw := c.DefaultQuery("mode", fallback)
	mode, err := ensemble.ParseMode(raw)
	if err != nil {
		badRequest(c, "Invalid mode", "INVALID_MODE", err)
		return "", false
	}
	return mode, true
}
