package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/radiusdt/vector-attribution/internal/config"
)

// RedisDB holds the client behind the session result store. Each session
// keeps one serialized result, which can run to megabytes for a month of
// conversions, so writes get a longer deadline than reads.
type RedisDB struct {
	Client *redis.Client
	logger *zap.Logger
}

// NewRedisDB connects the result store client and pings it.
func NewRedisDB(ctx context.Context, cfg config.RedisConfig, logger *zap.Logger) (*RedisDB, error) {
	client := redis.NewClient(resultStoreOptions(cfg))

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to result store: %w", err)
	}

	logger.Info("connected to Redis result store",
		zap.String("addr", cfg.Addr),
		zap.Int("db", cfg.DB),
		zap.Duration("result_ttl", cfg.ResultTTL),
	)

	return &RedisDB{
		Client: client,
		logger: logger,
	}, nil
}

func resultStoreOptions(cfg config.RedisConfig) *redis.Options {
	return &redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
		// One request touches the store at most once; a small pool is enough.
		PoolSize:     4,
		MinIdleConns: 1,
	}
}

// Close closes the result store client.
func (r *RedisDB) Close() error {
	if r.Client != nil {
		r.logger.Info("Redis result store closed")
		return r.Client.Close()
	}
	return nil
}

// Health pings the result store.
func (r *RedisDB) Health(ctx context.Context) error {
	return r.Client.Ping(ctx).Err()
}
