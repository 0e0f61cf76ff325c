package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/api"
	"github.com/stitts-dev/lineup-predictor/internal/backtest"
	"github.com/stitts-dev/lineup-predictor/internal/ensemble"
	"github.com/stitts-dev/lineup-predictor/internal/predictor"
	"github.com/stitts-dev/lineup-predictor/internal/scheduler"
	"github.com/stitts-dev/lineup-predictor/internal/store"
	"github.com/stitts-dev/lineup-predictor/internal/websocket"
	"github.com/stitts-dev/lineup-predictor/pkg/cache"
	"github.com/stitts-dev/lineup-predictor/pkg/config"
	"github.com/stitts-dev/lineup-predictor/pkg/database"
	"github.com/stitts-dev/lineup-predictor/pkg/logger"
	"github.com/stitts-dev/lineup-predictor/pkg/metrics"
)

const sqlitePrefix = "sqlite://"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logrus.Fatalf("Failed to load config: %v", err)
	}

	structuredLogger := logger.InitLogger(cfg.LogLevel, cfg.IsDevelopment())
	log := logger.WithService("lineup-predictor")
	log.WithFields(logrus.Fields{
		"model_version": cfg.ModelVersion,
		"environment":   cfg.Env,
		"port":          cfg.Port,
	}).Info("Starting lineup predictor")

	if cfg.IsDevelopment() {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}

	settings, err := cfg.Pipeline()
	if err != nil {
		log.Fatalf("Invalid pipeline configuration: %v", err)
	}

	db, err := openDatabase(cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(db.DB); err != nil {
		log.Fatalf("Failed to migrate database: %v", err)
	}

	m := metrics.New()
	svc, err := predictor.NewService(store.NewGormStore(db.DB), settings, structuredLogger)
	if err != nil {
		log.Fatalf("Failed to build prediction service: %v", err)
	}
	svc.WithMetrics(m)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var redisClient *redis.Client
	if cfg.RedisURL != "" {
		redisClient, err = cache.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, prediction cache disabled")
		} else {
			defer redisClient.Close()
			svc.WithCache(cache.NewPredictionCache(redisClient, cfg.PredictionCacheTTL, structuredLogger))
		}
	}

	harness := backtest.NewHarness(svc, structuredLogger).WithMetrics(m)

	wsHub := websocket.NewHub(structuredLogger)
	go wsHub.Run(ctx)

	deps := api.Dependencies{
		Service: svc,
		Harness: harness,
		Hub:     wsHub,
		Metrics: m,
		DB:      db,
		Redis:   redisClient,
		Logger:  structuredLogger,
	}

	if cfg.EnableBackgroundJobs {
		mode, err := ensemble.ParseMode(settings.DefaultMode)
		if err != nil {
			log.Fatalf("Invalid default mode: %v", err)
		}
		jobs := scheduler.NewPredictionScheduler(svc, mode, cfg.PredictionSchedule, structuredLogger)
		if err := jobs.Start(); err != nil {
			log.Errorf("Failed to start prediction scheduler: %v", err)
		} else {
			defer jobs.Stop()
			deps.Jobs = jobs
		}
	}

	router := api.NewRouter(deps)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 10 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Errorf("Server forced to shutdown: %v", err)
	}
	cancel()

	log.Info("Server exited")
}

// openDatabase uses SQLite for sqlite:// URLs and Postgres otherwise.
func openDatabase(cfg *config.Config) (*database.DB, error) {
	if path, ok := strings.CutPrefix(cfg.DatabaseURL, sqlitePrefix); ok {
		return database.NewSQLiteConnection(path, cfg.IsDevelopment())
	}
	return database.NewConnection(cfg.DatabaseURL, cfg.IsDevelopment())
}
