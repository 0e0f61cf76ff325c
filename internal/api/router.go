package api

import (
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/api/handlers"
	"github.com/stitts-dev/lineup-predictor/internal/api/middleware"
	"github.com/stitts-dev/lineup-predictor/internal/backtest"
	"github.com/stitts-dev/lineup-predictor/internal/predictor"
	"github.com/stitts-dev/lineup-predictor/internal/websocket"
	"github.com/stitts-dev/lineup-predictor/pkg/database"
	"github.com/stitts-dev/lineup-predictor/pkg/metrics"
)

// Dependencies carries everything the routes need. DB, Redis and Jobs are
// optional.
type Dependencies struct {
	Service *predictor.Service
	Harness *backtest.Harness
	Hub     *websocket.Hub
	Metrics *metrics.Metrics
	DB      *database.DB
	Redis   *redis.Client
	Jobs    handlers.JobStatus
	Logger  *logrus.Logger
}

// NewRouter builds the engine with probes, metrics, the websocket endpoint
// and the /api/v1 routes.
func NewRouter(deps Dependencies) *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.Metrics(deps.Metrics))

	healthHandler := handlers.NewHealthHandler(deps.DB, deps.Redis, deps.Metrics, deps.Jobs, deps.Logger)
	router.GET("/health", healthHandler.GetHealth)
	router.GET("/ready", healthHandler.GetReady)
	router.GET("/metrics", healthHandler.GetMetrics)

	if deps.Hub != nil {
		router.GET("/ws/backtest-progress", deps.Hub.HandleWebSocket)
	}

	SetupRoutes(router.Group("/api/v1"), deps)
	return router
}

// SetupRoutes configures all API routes on the given router group
func SetupRoutes(group *gin.RouterGroup, deps Dependencies) {
	defaultMode := deps.Service.Settings().DefaultMode

	var publisher handlers.ProgressPublisher
	if deps.Hub != nil {
		publisher = deps.Hub
	}

	predictionHandler := handlers.NewPredictionHandler(deps.Service, deps.Logger)
	backtestHandler := handlers.NewBacktestHandler(deps.Harness, publisher, defaultMode, deps.Logger)
	diagnosticsHandler := handlers.NewDiagnosticsHandler(deps.Service, deps.Logger)

	group.GET("/predictions/:period", predictionHandler.GetPrediction)
	group.POST("/predictions/:period/generate", predictionHandler.GeneratePrediction)
	group.GET("/ground-truth/:period", predictionHandler.GetGroundTruth)

	group.POST("/backtest/run", backtestHandler.RunBacktest)
	group.GET("/backtest/summary", backtestHandler.GetSummary)
	group.GET("/backtest/evaluate/:prediction_id", backtestHandler.EvaluatePrediction)
	group.GET("/backtest/:period", backtestHandler.GetPeriodResult)

	group.GET("/diagnostics/compare/:period", diagnosticsHandler.CompareEstimators)
}
