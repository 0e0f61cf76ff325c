package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/stitts-dev/lineup-predictor/internal/models"
)

// ErrCacheMiss is returned when no prediction is cached under a key.
var ErrCacheMiss = errors.New("prediction not found in cache")

// NewRedisClient parses a redis:// URL and verifies the connection.
func NewRedisClient(ctx context.Context, redisURL string) (*redis.Client, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// PredictionCache keeps recently generated predictions in redis.
type PredictionCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logrus.Logger
}

func NewPredictionCache(client *redis.Client, ttl time.Duration, logger *logrus.Logger) *PredictionCache {
	return &PredictionCache{
		client: client,
		ttl:    ttl,
		logger: logger,
	}
}

func PredictionKey(period int, modelVersion string) string {
	return fmt.Sprintf("prediction:%d:%s", period, modelVersion)
}

func (c *PredictionCache) Get(ctx context.Context, period int, modelVersion string) (*models.Prediction, error) {
	key := PredictionKey(period, modelVersion)
	data, err := c.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrCacheMiss
		}
		return nil, fmt.Errorf("failed to get prediction from cache: %w", err)
	}

	var p models.Prediction
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal prediction: %w", err)
	}

	c.logger.WithField("cache_key", key).Debug("Retrieved prediction from cache")
	return &p, nil
}

func (c *PredictionCache) Set(ctx context.Context, p *models.Prediction) error {
	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal prediction: %w", err)
	}

	key := PredictionKey(p.Period, p.ModelVersion)
	if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set prediction in cache: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"cache_key":  key,
		"expiration": c.ttl,
		"entries":    len(p.Entries),
	}).Debug("Cached prediction")
	return nil
}

func (c *PredictionCache) Invalidate(ctx context.Context, period int, modelVersion string) error {
	if err := c.client.Del(ctx, PredictionKey(period, modelVersion)).Err(); err != nil {
		return fmt.Errorf("failed to delete cached prediction: %w", err)
	}
	return nil
}
