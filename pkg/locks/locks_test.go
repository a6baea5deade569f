package locks

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalize(t *testing.T) {
	assert.Equal(t, []string{"unit:a", "unit:b"}, normalize([]string{"unit:b", "", "unit:a", "unit:b"}))
}

func TestMemory_Exclusive(t *testing.T) {
	locker := NewMemory(time.Second)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		inside  int
		maxSeen int
	)

	for range 20 {
		wg.Add(1)

		go func() {
			defer wg.Done()

			unlock, err := locker.Lock(ctx, UnitKey("b"), UnitKey("a"))
			if !assert.NoError(t, err) {
				return
			}

			mu.Lock()
			inside++
			maxSeen = max(maxSeen, inside)
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inside--
			mu.Unlock()

			unlock()
		}()
	}

	wg.Wait()
	assert.Equal(t, 1, maxSeen)
}

func TestMemory_Timeout(t *testing.T) {
	locker := NewMemory(20 * time.Millisecond)
	ctx := context.Background()

	unlock, err := locker.Lock(ctx, UnitKey("a"))
	require.NoError(t, err)

	_, err = locker.Lock(ctx, UnitKey("z"), UnitKey("a"))
	require.ErrorIs(t, err, ErrTimeout)

	// the partially acquired key was released
	other, err := locker.Lock(ctx, UnitKey("z"))
	require.NoError(t, err)
	other()

	unlock()
	unlock()

	again, err := locker.Lock(ctx, UnitKey("a"))
	require.NoError(t, err)
	again()
}

func (m *Memory) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	return len(m.slots)
}

func TestMemory_ReleasedSlotsAreDropped(t *testing.T) {
	locker := NewMemory(20 * time.Millisecond)
	ctx := context.Background()

	for i := range 1000 {
		unlock, err := locker.Lock(ctx, ItemKey(fmt.Sprintf("item-%d", i)), UnitKey("shared"))
		require.NoError(t, err)
		unlock()
	}

	assert.Zero(t, locker.size())

	unlock, err := locker.Lock(ctx, UnitKey("held"))
	require.NoError(t, err)

	_, err = locker.Lock(ctx, UnitKey("held"))
	require.ErrorIs(t, err, ErrTimeout)
	assert.Equal(t, 1, locker.size())

	unlock()
	assert.Zero(t, locker.size())
}

func TestRedis_Lock(t *testing.T) {
	redisURL := os.Getenv("WARDFLOW_TEST_REDIS_URL")
	if redisURL == "" {
		t.Skip("WARDFLOW_TEST_REDIS_URL not set")
	}

	options, err := redis.ParseURL(redisURL)
	require.NoError(t, err)

	client := redis.NewClient(options)
	defer client.Close()

	ctx := context.Background()
	locker := NewRedis(client, 100*time.Millisecond, time.Minute)

	unlock, err := locker.Lock(ctx, ItemKey("redis-test"))
	require.NoError(t, err)

	_, err = locker.Lock(ctx, ItemKey("redis-test"))
	require.ErrorIs(t, err, ErrTimeout)

	unlock()

	again, err := locker.Lock(ctx, ItemKey("redis-test"))
	require.NoError(t, err)
	again()
}
