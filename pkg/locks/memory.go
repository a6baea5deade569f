package locks

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Memory is an in-process Locker.
type Memory struct {
	timeout time.Duration
	mu      sync.Mutex
	slots   map[string]*slot
}

// slot is a one-token semaphore. refs counts holders and waiters; the slot
// is dropped from the map when it reaches zero.
type slot struct {
	token chan struct{}
	refs  int
}

type heldSlot struct {
	key  string
	slot *slot
}

// NewMemory creates an in-process locker that waits at most timeout per key.
func NewMemory(timeout time.Duration) *Memory {
	return &Memory{
		timeout: timeout,
		slots:   make(map[string]*slot),
	}
}

func (m *Memory) acquire(key string) *slot {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.slots[key]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		m.slots[key] = s
	}

	s.refs++

	return s
}

func (m *Memory) forget(key string, s *slot) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s.refs--
	if s.refs == 0 {
		delete(m.slots, key)
	}
}

func (m *Memory) Lock(ctx context.Context, keys ...string) (func(), error) {
	keys = normalize(keys)
	held := make([]heldSlot, 0, len(keys))

	release := func() {
		for i := len(held) - 1; i >= 0; i-- {
			<-held[i].slot.token
			m.forget(held[i].key, held[i].slot)
		}
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	for _, key := range keys {
		s := m.acquire(key)

		select {
		case s.token <- struct{}{}:
			held = append(held, heldSlot{key: key, slot: s})
		case <-timer.C:
			m.forget(key, s)
			release()

			return nil, fmt.Errorf("%w: %s", ErrTimeout, key)
		case <-ctx.Done():
			m.forget(key, s)
			release()

			return nil, ctx.Err()
		}
	}

	var once sync.Once

	return func() { once.Do(release) }, nil
}
