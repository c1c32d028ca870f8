package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ManuelReschke/ClientHub/internal/pkg/config"
)

var client *redis.Client

// SetupCache initializes the Redis client. An unreachable server is logged,
// not fatal; callers fall back to in-process locking.
func SetupCache(cfg config.CacheConfig, log *zap.Logger) *redis.Client {
	client = redis.NewClient(&redis.Options{
		Addr:     cfg.Addr(),
		Password: cfg.Password,
		DB:       0,
	})

	if err := Ping(context.Background()); err != nil {
		log.Warn("could not connect to cache", zap.String("addr", cfg.Addr()), zap.Error(err))
	} else {
		log.Info("connected to cache", zap.String("addr", cfg.Addr()))
	}
	return client
}

// Ping checks the connection with a short timeout.
func Ping(ctx context.Context) error {
	if client == nil {
		return redis.ErrClosed
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	return client.Ping(ctx).Err()
}
