package locks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

var errHeld = errors.New("lock held")

// Redis is a Locker shared by every process using the same Redis instance.
type Redis struct {
	client  *redis.Client
	prefix  string
	timeout time.Duration
	ttl     time.Duration
}

// NewRedis creates a Redis-backed locker. Keys expire after ttl so a crashed
// holder cannot block others forever.
func NewRedis(client *redis.Client, timeout, ttl time.Duration) *Redis {
	return &Redis{
		client:  client,
		prefix:  "wardflow:lock:",
		timeout: timeout,
		ttl:     ttl,
	}
}

func (r *Redis) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	token := uuid.NewString()
	held := make([]string, 0, len(keys))

	release := func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()

		for i := len(held) - 1; i >= 0; i-- {
			_ = releaseScript.Run(releaseCtx, r.client, []string{held[i]}, token).Err()
		}
	}

	deadline := time.Now().Add(r.timeout)

	for _, key := range keys {
		redisKey := r.prefix + key

		remaining := time.Until(deadline)
		if remaining <= 0 {
			remaining = time.Millisecond
		}

		policy := backoff.NewExponentialBackOff()
		policy.InitialInterval = 10 * time.Millisecond
		policy.MaxInterval = 200 * time.Millisecond
		policy.MaxElapsedTime = remaining

		err := backoff.Retry(func() error {
			ok, err := r.client.SetNX(ctx, redisKey, token, r.ttl).Result()
			if err != nil {
				return backoff.Permanent(err)
			}

			if !ok {
				return errHeld
			}

			return nil
		}, backoff.WithContext(policy, ctx))
		if err != nil {
			release()

			if errors.Is(err, errHeld) {
				return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
			}

			return nil, fmt.Errorf("failed to acquire %s: %w", key, err)
		}

		held = append(held, redisKey)
	}

	released := false

	return func() {
		if !released {
			released = true

			release()
		}
	}, nil
}
