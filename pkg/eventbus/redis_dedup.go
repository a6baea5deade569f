package eventbus

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const dedupPrefix = "wardflow:event:"

// RedisDedup shares claimed ids between replicas of the same consumer.
type RedisDedup struct {
	client   *redis.Client
	consumer string
	ttl      time.Duration
}

// NewRedisDedup scopes ids by consumer so different consumers each see every event.
func NewRedisDedup(client *redis.Client, consumer string, ttl time.Duration) *RedisDedup {
	return &RedisDedup{client: client, consumer: consumer, ttl: ttl}
}

func (r *RedisDedup) key(id string) string {
	return dedupPrefix + r.consumer + ":" + id
}

func (r *RedisDedup) Claim(ctx context.Context, id string) (bool, error) {
	return r.client.SetNX(ctx, r.key(id), time.Now().UTC().Format(time.RFC3339), r.ttl).Result()
}

func (r *RedisDedup) Release(ctx context.Context, id string) error {
	return r.client.Del(ctx, r.key(id)).Err()
}
