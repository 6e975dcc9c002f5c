package persistence

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spec-kit/sla-engine/internal/config"
)

// Redis wraps the go-redis client.
type Redis struct {
	Client *redis.Client
}

// NewRedis connects to Redis using the provided configuration.
func NewRedis(cfg config.RedisConfig, logger *zap.Logger) *Redis {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	if err := client.Ping(context.Background()).Err(); err != nil {
		logger.Warn("unable to reach redis", zap.Error(err))
	} else {
		logger.Info("connected to redis")
	}

	return &Redis{Client: client}
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

// ClaimOnce attempts to claim a dedupe key with SETNX. It returns true when
// the caller is the first claimant. A redis outage claims optimistically;
// the durable execution-record check behind it still holds the line.
func (r *Redis) ClaimOnce(ctx context.Context, key string, ttl time.Duration) bool {
	if r == nil || r.Client == nil {
		return true
	}
	ok, err := r.Client.SetNX(ctx, key, 1, ttl).Result()
	if err != nil {
		return true
	}
	return ok
}

// ReleaseClaim drops a dedupe key so a failed execution can be retried.
func (r *Redis) ReleaseClaim(ctx context.Context, key string) {
	if r == nil || r.Client == nil {
		return
	}
	_ = r.Client.Del(ctx, key).Err()
}
