package bootstrap

import (
	"context"
	"crypto/tls"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ceroai/appointment-reminder-calls/internal/calls"
	appconfig "github.com/ceroai/appointment-reminder-calls/internal/config"
	"github.com/ceroai/appointment-reminder-calls/pkg/logging"
)

// BuildRedisClient returns a configured Redis client or nil when disabled.
// When verify is true, a ping is issued and failures return nil.
func BuildRedisClient(ctx context.Context, cfg *appconfig.Config, logger *logging.Logger, verify bool) *redis.Client {
	if cfg == nil || strings.TrimSpace(cfg.RedisAddr) == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ctx == nil {
		ctx = context.Background()
	}

	redisOptions := &redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
	}
	if cfg.RedisTLS {
		redisOptions.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	client := redis.NewClient(redisOptions)
	if !verify {
		return client
	}
	if err := client.Ping(ctx).Err(); err != nil {
		logger.Warn("redis not available", "error", err)
		return nil
	}
	return client
}

// BuildStatusStore returns the call status store: Redis-backed when a client
// is available so statuses survive restarts, in-memory otherwise.
func BuildStatusStore(redisClient *redis.Client, logger *logging.Logger) calls.StatusStore {
	if logger == nil {
		logger = logging.Default()
	}
	if redisClient != nil {
		logger.Info("using redis call status store")
		return calls.NewRedisStatusStore(redisClient)
	}
	logger.Info("using in-memory call status store")
	return calls.NewMemoryStatusStore()
}
