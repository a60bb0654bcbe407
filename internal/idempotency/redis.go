package idempotency

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// processingTTL bounds a reservation whose request never completed.
const processingTTL = 5 * time.Minute

// RedisRepository implements Repository on Redis. Records expire through key
// TTLs, so DeleteOlderThan is a no-op.
type RedisRepository struct {
	client redis.Cmdable
	prefix string
	expiry time.Duration
}

// NewRedisRepository stores completed records for expiry (DefaultExpiry when <= 0).
func NewRedisRepository(client redis.Cmdable, expiry time.Duration) *RedisRepository {
	if expiry <= 0 {
		expiry = DefaultExpiry
	}
	return &RedisRepository{client: client, prefix: "idempotency:", expiry: expiry}
}

// Get implements Repository.
func (r *RedisRepository) Get(ctx context.Context, key string) (*Record, error) {
	data, err := r.client.Get(ctx, r.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read idempotency key: %w", err)
	}
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("failed to decode idempotency record: %w", err)
	}
	return &record, nil
}

// Reserve implements Repository with SET NX.
func (r *RedisRepository) Reserve(ctx context.Context, key string, record *Record) error {
	data, err := r.encode(record)
	if err != nil {
		return err
	}
	ok, err := r.client.SetNX(ctx, r.prefix+key, data, processingTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to reserve idempotency key: %w", err)
	}
	if !ok {
		return ErrKeyExists
	}
	return nil
}

// Complete implements Repository.
func (r *RedisRepository) Complete(ctx context.Context, key string, record *Record) error {
	data, err := r.encode(record)
	if err != nil {
		return err
	}
	if err := r.client.Set(ctx, r.prefix+key, data, r.expiry).Err(); err != nil {
		return fmt.Errorf("failed to store idempotency key: %w", err)
	}
	return nil
}

// Release implements Repository.
func (r *RedisRepository) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to release idempotency key: %w", err)
	}
	return nil
}

// DeleteOlderThan implements Repository.
func (r *RedisRepository) DeleteOlderThan(context.Context, time.Duration) (int64, error) {
	return 0, nil
}

func (r *RedisRepository) encode(record *Record) ([]byte, error) {
	copied := *record
	if copied.CreatedAt.IsZero() {
		copied.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(copied)
	if err != nil {
		return nil, fmt.Errorf("failed to encode idempotency record: %w", err)
	}
	return data, nil
}
