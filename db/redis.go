package db

import (
	"context"
	"fmt"
	"go-bank-transfers/config"
	"go-bank-transfers/logger"
	"time"

	"github.com/redis/go-redis/v9"
)

// ConnectRedis returns a client for the configured Redis server, or nil
// when no host is configured.
func ConnectRedis() (*redis.Client, error) {
	cfg := config.AppConfig.Redis
	if cfg.Host == "" {
		logger.Log.Info("Redis not configured, running without cache and distributed locks")
		return nil, nil
	}

	redisAddr := fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)
	rdb := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if _, err := rdb.Ping(ctx).Result(); err != nil {
		rdb.Close()
		logger.Log.WithError(err).Error("Failed to ping Redis")
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Log.WithField("address", redisAddr).Info("Redis connection established successfully")
	return rdb, nil
}
