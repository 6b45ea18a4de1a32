package kv

import (
	"context"
	stderrors "errors"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// Redis stores keys in a Redis instance, namespaced by prefix. It backs
// shared kiosk devices and the simulator, where several agents point at one store.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis-backed store. prefix may be empty.
func NewRedis(client *redis.Client, prefix string) *Redis {
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) key(k string) string {
	return r.prefix + k
}

// Get implements Store.
func (r *Redis) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := r.client.Get(ctx, r.key(key)).Result()
	if stderrors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, errors.Wrapf(err, "kv: get %q", key)
	}
	return value, true, nil
}

// Set implements Store.
func (r *Redis) Set(ctx context.Context, key, value string) error {
	if err := r.client.Set(ctx, r.key(key), value, 0).Err(); err != nil {
		return errors.Wrapf(err, "kv: set %q", key)
	}
	return nil
}

// Remove implements Store.
func (r *Redis) Remove(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return errors.Wrapf(err, "kv: remove %q", key)
	}
	return nil
}

// Ping reports whether the Redis server is reachable.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
