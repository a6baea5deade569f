package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/dukex/wardflow/pkg/channels/gochannel"
	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/log"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBus(t *testing.T) *WatermillEventBus {
	t.Helper()

	pub, sub := gochannel.CreateChannel(watermill.NopLogger{})
	bus := NewWatermillEventBus(log.WithModule("test"), pub, sub)

	t.Cleanup(func() { _ = bus.Close() })

	return bus
}

type recorder struct {
	mu     sync.Mutex
	events []models.WorkflowEvent
}

func (r *recorder) handle(_ context.Context, event models.WorkflowEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events = append(r.events, event)

	return nil
}

func (r *recorder) snapshot() []models.WorkflowEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	return append([]models.WorkflowEvent(nil), r.events...)
}

func TestWatermillEventBus_RoutesByType(t *testing.T) {
	ctx := t.Context()
	bus := newTestBus(t)

	created := &recorder{}
	all := &recorder{}

	require.NoError(t, bus.Handle(models.EventItemCreated, created.handle))
	require.NoError(t, bus.Handle(AnyEvent, all.handle))
	require.NoError(t, bus.Subscribe(ctx))

	item := &models.WorkflowItem{ID: "i-1", Kind: models.ItemKindReorder, Status: models.ItemStatusPending}

	require.NoError(t, bus.Publish(ctx, events.ItemCreated(item)))
	require.NoError(t, bus.Publish(ctx, events.ForceRequested("bed", "ops", "surge", time.Now())))

	assert.Eventually(t, func() bool {
		return len(created.snapshot()) == 1 && len(all.snapshot()) == 2
	}, time.Second, 10*time.Millisecond)

	got := created.snapshot()[0]
	assert.Equal(t, "i-1:pending", got.ID)
	assert.Equal(t, models.ItemKindReorder, got.Kind)
}

func TestIdempotent_SkipsRedelivery(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDedup(time.Hour)

	var calls atomic.Int32

	handler := Idempotent(store, func(context.Context, models.WorkflowEvent) error {
		calls.Add(1)

		return nil
	})

	event := models.WorkflowEvent{ID: "i-1:approved", Type: models.EventItemTransitioned}

	require.NoError(t, handler(ctx, event))
	require.NoError(t, handler(ctx, event))
	require.NoError(t, handler(ctx, models.WorkflowEvent{ID: "i-1:completed"}))

	assert.Equal(t, int32(2), calls.Load())
}

func TestIdempotent_ReleasesOnFailure(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDedup(time.Hour)

	fail := true

	handler := Idempotent(store, func(context.Context, models.WorkflowEvent) error {
		if fail {
			return errors.New("boom")
		}

		return nil
	})

	event := models.WorkflowEvent{ID: "i-2:completed"}

	require.Error(t, handler(ctx, event))

	fail = false
	require.NoError(t, handler(ctx, event))

	claimed, err := store.Claim(ctx, event.ID)
	require.NoError(t, err)
	assert.False(t, claimed)
}

func TestMemoryDedup_Expires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryDedup(time.Minute)

	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	claimed, _ := store.Claim(ctx, "a")
	assert.True(t, claimed)

	claimed, _ = store.Claim(ctx, "a")
	assert.False(t, claimed)

	now = now.Add(2 * time.Minute)

	claimed, _ = store.Claim(ctx, "a")
	assert.True(t, claimed)
}
