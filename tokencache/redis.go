package tokencache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultCallTimeout = 2 * time.Second

// Redis is a Cache backed by a Redis client. Every round-trip is bounded
// by a per-call timeout so a stalled backend cannot block verification.
type Redis struct {
	client  redis.UniversalClient
	prefix  string
	timeout time.Duration
}

// NewRedis creates a Redis-backed cache. prefix namespaces all keys;
// timeout bounds each call (defaultCallTimeout when non-positive).
func NewRedis(client redis.UniversalClient, prefix string, timeout time.Duration) *Redis {
	if prefix == "" {
		prefix = "ac"
	}
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	return &Redis{client: client, prefix: prefix, timeout: timeout}
}

func (r *Redis) key(key string) string {
	return r.prefix + ":" + key
}

func (r *Redis) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// Get returns the value for key, ErrMiss when absent, or ErrUnavailable
// when the backend cannot answer in time.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrMiss
		}
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return data, nil
}

// Set stores value under key with the given TTL.
func (r *Redis) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	if err := r.client.Set(ctx, r.key(key), value, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

// Delete removes key and reports whether it existed. DEL's reply count
// makes the check-and-remove atomic on the server.
func (r *Redis) Delete(ctx context.Context, key string) (bool, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()

	n, err := r.client.Del(ctx, r.key(key)).Result()
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return n > 0, nil
}
