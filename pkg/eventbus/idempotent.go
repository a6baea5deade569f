package eventbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dukex/wardflow/pkg/models"
)

// DedupStore remembers which event ids a consumer has processed.
type DedupStore interface {
	// Claim marks id as being processed and reports false when it already was.
	Claim(ctx context.Context, id string) (bool, error)
	// Release forgets id so a failed delivery can be retried.
	Release(ctx context.Context, id string) error
}

// Idempotent wraps handler so each event id is handled at most once per store.
// Delivery stays at-least-once; redelivered ids are acked without side effects.
func Idempotent(store DedupStore, handler EventHandler) EventHandler {
	return func(ctx context.Context, event models.WorkflowEvent) error {
		claimed, err := store.Claim(ctx, event.ID)
		if err != nil {
			return fmt.Errorf("failed to claim event %s: %w", event.ID, err)
		}

		if !claimed {
			return nil
		}

		err = handler(ctx, event)
		if err != nil {
			releaseErr := store.Release(ctx, event.ID)
			if releaseErr != nil {
				return fmt.Errorf("%w (release failed: %w)", err, releaseErr)
			}

			return err
		}

		return nil
	}
}

// MemoryDedup keeps claimed ids in process memory for ttl.
type MemoryDedup struct {
	mu   sync.Mutex
	ttl  time.Duration
	seen map[string]time.Time
	now  func() time.Time
}

func NewMemoryDedup(ttl time.Duration) *MemoryDedup {
	return &MemoryDedup{
		ttl:  ttl,
		seen: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (m *MemoryDedup) Claim(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()

	if expires, ok := m.seen[id]; ok && now.Before(expires) {
		return false, nil
	}

	m.seen[id] = now.Add(m.ttl)

	if len(m.seen)%1024 == 0 {
		m.evict(now)
	}

	return true, nil
}

func (m *MemoryDedup) Release(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.seen, id)

	return nil
}

func (m *MemoryDedup) evict(now time.Time) {
	for id, expires := range m.seen {
		if !now.Before(expires) {
			delete(m.seen, id)
		}
	}
}
