package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/predictor"
)

type DiagnosticsHandler struct {
	svc    *predictor.Service
	logger *logrus.Logger
}

func NewDiagnosticsHandler(svc *predictor.Service, logger *logrus.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{
		svc:    svc,
		logger: logger,
	}
}

// CompareEstimators measures heuristic and learned scores against a
// finished period's realized points
func (h *DiagnosticsHandler) CompareEstimators(c *gin.Context) {
	period, ok := periodParam(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()

	p, err := h.svc.Store().Period(ctx, period)
	if err != nil {
		respondError(c, h.logger, "Period not found", err)
		return
	}
	if !p.Finished {
		c.JSON(http.StatusConflict, ErrorResponse{
			Error: "Period has not finished",
			Code:  "PERIOD_NOT_FINISHED",
		})
		return
	}

	cmp, err := h.svc.Compare(ctx, period)
	if err != nil {
		respondError(c, h.logger, "Failed to compare estimators", err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"period":     period,
		"comparison": cmp,
	})
}
