package persistence

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/pqrs-service/internal/config"
)

// Redis wraps the go-redis client shared by the fanout broker and the sweep lock.
type Redis struct {
	Client    *redis.Client
	reachable bool
}

// NewRedis connects to Redis using the provided configuration. An unreachable
// server is logged, not fatal; callers degrade to local fanout.
func NewRedis(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	r := &Redis{Client: client}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.String("addr", cfg.Addr), zap.Error(err))
		return r
	}
	r.reachable = true
	logger.Info("connected to redis", zap.String("addr", cfg.Addr), zap.Int("db", cfg.DB))
	return r
}

// Reachable reports whether the server answered at startup.
func (r *Redis) Reachable() bool {
	return r != nil && r.reachable
}

// Close closes the client.
func (r *Redis) Close() {
	if r != nil && r.Client != nil {
		_ = r.Client.Close()
	}
}

// Ping verifies Redis connectivity.
func (r *Redis) Ping(ctx context.Context) error {
	if r == nil || r.Client == nil {
		return errors.New("redis client not configured")
	}
	return r.Client.Ping(ctx).Err()
}
