package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/pkg/database"
	"github.com/stitts-dev/lineup-predictor/pkg/metrics"
)

const serviceName = "lineup-predictor"

// JobStatus is implemented by background jobs that report their state
type JobStatus interface {
	Status() map[string]interface{}
}

// HealthHandler handles health check endpoints
type HealthHandler struct {
	db      *database.DB
	redis   *redis.Client
	metrics *metrics.Metrics
	jobs    JobStatus
	logger  *logrus.Logger
}

// NewHealthHandler creates a new health handler. db and redis may be nil
// when the service runs on the in-memory store or without a cache.
func NewHealthHandler(db *database.DB, redis *redis.Client, m *metrics.Metrics, jobs JobStatus, logger *logrus.Logger) *HealthHandler {
	return &HealthHandler{
		db:      db,
		redis:   redis,
		metrics: m,
		jobs:    jobs,
		logger:  logger,
	}
}

// GetHealth reports dependency checks. The cache is optional, so a failing
// Redis only degrades the service.
func (h *HealthHandler) GetHealth(c *gin.Context) {
	response := HealthStatus{
		Status:    "ok",
		Service:   serviceName,
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	if h.db != nil {
		if err := h.db.HealthCheck(); err != nil {
			response.Status = "unhealthy"
			response.Checks["database"] = "failed: " + err.Error()
		} else {
			response.Checks["database"] = "ok"
		}
	} else {
		response.Checks["database"] = "in_memory"
	}

	if h.redis != nil {
		if err := h.redis.Ping(c.Request.Context()).Err(); err != nil {
			if response.Status == "ok" {
				response.Status = "degraded"
			}
			response.Checks["redis"] = "failed: " + err.Error()
		} else {
			response.Checks["redis"] = "ok"
		}
	} else {
		response.Checks["redis"] = "not_configured"
	}

	if h.jobs != nil {
		response.Jobs = h.jobs.Status()
	}

	statusCode := http.StatusOK
	if response.Status == "unhealthy" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// GetReady returns ready once the store can be reached
func (h *HealthHandler) GetReady(c *gin.Context) {
	response := HealthStatus{
		Status:    "ready",
		Service:   serviceName,
		Timestamp: time.Now(),
		Checks:    make(map[string]string),
	}

	if h.db != nil {
		if err := h.db.HealthCheck(); err != nil {
			h.logger.WithError(err).Warn("Readiness check failed")
			response.Status = "not_ready"
			response.Checks["database"] = "failed: " + err.Error()
		} else {
			response.Checks["database"] = "ok"
		}
	}

	statusCode := http.StatusOK
	if response.Status != "ready" {
		statusCode = http.StatusServiceUnavailable
	}
	c.JSON(statusCode, response)
}

// GetMetrics exposes the Prometheus registry
func (h *HealthHandler) GetMetrics(c *gin.Context) {
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
