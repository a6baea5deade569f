package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/dukex/wardflow/pkg/config"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/locks"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to redisURL, e.g. redis://localhost:6379/0.
// An empty URL returns nil.
func NewRedisClient(redisURL string) (*redis.Client, error) {
	if redisURL == "" {
		return nil, nil
	}

	options, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	return redis.NewClient(options), nil
}

// NewLocker returns the resolution locker for backend, "memory" or "redis".
// Processes sharing a database must share a redis locker.
func NewLocker(backend string, client *redis.Client, config config.LockConfig) (locks.Locker, error) {
	switch backend {
	case "memory", "":
		return locks.NewMemory(config.Timeout), nil
	case "redis":
		if client == nil {
			return nil, errors.New("lock backend redis needs a redis url")
		}

		return locks.NewRedis(client, config.Timeout, config.TTL), nil
	default:
		return nil, fmt.Errorf("unsupported lock backend: %s", backend)
	}
}

// NewDedup returns the processed-event store for consumer. Without redis the
// store only lives as long as the process.
func NewDedup(client *redis.Client, consumer string, ttl time.Duration) eventbus.DedupStore {
	if client == nil {
		return eventbus.NewMemoryDedup(ttl)
	}

	return eventbus.NewRedisDedup(client, consumer, ttl)
}
