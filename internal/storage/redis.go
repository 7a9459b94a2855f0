package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/sipico/preview-gate/internal/grant"
)

// DefaultRedisKey is the key holding the grant set when none is configured.
const DefaultRedisKey = "preview:grants"

// RedisStorage implements Backend on a single Redis string key.
type RedisStorage struct {
	client *redis.Client
	key    string
}

// NewRedisStorage creates a Redis-backed store and checks the connection.
func NewRedisStorage(ctx context.Context, client *redis.Client, key string) (*RedisStorage, error) {
	if client == nil {
		return nil, fmt.Errorf("%w: redis client cannot be nil", ErrStorage)
	}
	if key == "" {
		key = DefaultRedisKey
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("%w: redis connection failed: %w", ErrStorage, err)
	}

	return &RedisStorage{client: client, key: key}, nil
}

// Load reads the grant set key.
// Returns an empty set if the key does not exist.
func (r *RedisStorage) Load(ctx context.Context) (grant.Set, error) {
	raw, err := r.client.Get(ctx, r.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return grant.NewSet(), nil
		}
		return nil, fmt.Errorf("%w: failed to load grants: %w", ErrStorage, err)
	}

	grants, err := decodeSet(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return grants, nil
}

// Save overwrites the grant set key. The key never expires; grants expire
// individually.
func (r *RedisStorage) Save(ctx context.Context, grants grant.Set) error {
	data, err := encodeSet(grants)
	if err != nil {
		return fmt.Errorf("%w: failed to encode grants: %w", ErrStorage, err)
	}

	if err := r.client.Set(ctx, r.key, data, 0).Err(); err != nil {
		return fmt.Errorf("%w: failed to save grants: %w", ErrStorage, err)
	}
	return nil
}

// Ping checks the Redis connection.
func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("%w: redis ping failed: %w", ErrStorage, err)
	}
	return nil
}

// Close closes the Redis client.
func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// String returns a diagnostic representation of the store config.
func (r *RedisStorage) String() string {
	return fmt.Sprintf("RedisStorage{addr=%s key=%s}", r.client.Options().Addr, r.key)
}
