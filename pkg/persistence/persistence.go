// Package persistence provides the storage abstraction for resource units,
// workflow items and the workflow event log.
package persistence

import (
	"context"
	"time"

	"github.com/dukex/wardflow/pkg/models"
)

type Persistence interface {
	ResourceRepository() ResourceRepository
	WorkflowItemRepository() WorkflowItemRepository
	EventLogRepository() EventLogRepository

	HealthCheck(ctx context.Context) error
	Close(ctx context.Context) error
}

// ResourceRepository stores resource units, one table or directory per kind.
type ResourceRepository interface {
	ListUnits(ctx context.Context, kind models.ResourceKind) ([]models.ResourceUnit, error)
	GetUnit(ctx context.Context, kind models.ResourceKind, id string) (*models.ResourceUnit, error)

	// SaveUnits upserts all units or none.
	SaveUnits(ctx context.Context, units ...models.ResourceUnit) error
}

// WorkflowItemRepository stores workflow items with optimistic versioning.
type WorkflowItemRepository interface {
	// Create stores a new item with version 1.
	Create(ctx context.Context, item *models.WorkflowItem) error

	// Update writes item when its version matches the stored one and bumps it.
	Update(ctx context.Context, item *models.WorkflowItem) error

	Get(ctx context.Context, id string) (*models.WorkflowItem, error)
	List(ctx context.Context, filter models.ItemFilter) ([]*models.WorkflowItem, error)
}

// EventLogRepository is the append-only workflow event log.
type EventLogRepository interface {
	// Append records event. Appending an id twice is a no-op.
	Append(ctx context.Context, event models.WorkflowEvent) error

	// Since returns events at or after since, oldest first.
	Since(ctx context.Context, since time.Time) ([]models.WorkflowEvent, error)
}
