package dedup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "sentinel:dedup:"

// RedisStore backs the suppression window with Redis so multiple processes
// share one window. Expiry rides on the key TTL, so no sweep is needed.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to Redis and verifies the connection.
func NewRedisStore(addr, password string, db int) (*RedisStore, error) {
	if addr == "" {
		return nil, errors.New("dedup redis: empty addr")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("dedup redis: connect: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

// ShouldSuppress implements Store.
func (s *RedisStore) ShouldSuppress(ctx context.Context, sensorID, conditionKey string, _ time.Time) (bool, error) {
	if s == nil || s.rdb == nil {
		return false, errors.New("dedup redis: nil client")
	}
	_, err := s.rdb.Get(ctx, redisKeyPrefix+key(sensorID, conditionKey)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("dedup redis: get: %w", err)
	}
	return true, nil
}

// RecordFired implements Store.
func (s *RedisStore) RecordFired(ctx context.Context, sensorID, conditionKey, alertID string, window time.Duration, _ time.Time) error {
	if s == nil || s.rdb == nil {
		return errors.New("dedup redis: nil client")
	}
	if window <= 0 {
		return nil
	}
	if err := s.rdb.Set(ctx, redisKeyPrefix+key(sensorID, conditionKey), alertID, window).Err(); err != nil {
		return fmt.Errorf("dedup redis: set: %w", err)
	}
	return nil
}

// Close releases the underlying connection.
func (s *RedisStore) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}
