package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/radiusdt/vector-attribution/internal/models"
)

// RedisResultStore holds session results in Redis so any replica behind the
// load balancer can export them.
type RedisResultStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisResultStore creates a Redis-backed result store.
func NewRedisResultStore(client *redis.Client, ttl time.Duration) *RedisResultStore {
	return &RedisResultStore{client: client, ttl: ttl}
}

func resultKey(sessionID string) string {
	return fmt.Sprintf("attribution:result:%s", sessionID)
}

// Put overwrites the session's key with SET, so a new result always replaces
// the previous one.
func (s *RedisResultStore) Put(ctx context.Context, sessionID string, result *models.AttributionResult) error {
	data, err := encodeResult(result)
	if err != nil {
		return err
	}
	if err := s.client.Set(ctx, resultKey(sessionID), data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store result: %w", err)
	}
	return nil
}

func (s *RedisResultStore) Get(ctx context.Context, sessionID string) (*models.AttributionResult, error) {
	data, err := s.client.Get(ctx, resultKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrResultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load result: %w", err)
	}
	return decodeResult(data)
}

func (s *RedisResultStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, resultKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete result: %w", err)
	}
	return nil
}

func encodeResult(result *models.AttributionResult) ([]byte, error) {
	data, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return data, nil
}

func decodeResult(data []byte) (*models.AttributionResult, error) {
	var result models.AttributionResult
	if err := json.Unmarshal(data, &result); err != nil {
		return nil, fmt.Errorf("failed to decode result: %w", err)
	}
	return &result, nil
}
