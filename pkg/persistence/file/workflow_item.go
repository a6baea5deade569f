package file

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
)

// WorkflowItemRepository handles workflow item file operations.
type WorkflowItemRepository struct {
	root string
	mu   sync.RWMutex
}

// NewWorkflowItemRepository creates a new workflow item repository.
func NewWorkflowItemRepository(root string) *WorkflowItemRepository {
	return &WorkflowItemRepository{root: root}
}

func (wr *WorkflowItemRepository) dir() string {
	return filepath.Join(wr.root, "workflow_items")
}

func (wr *WorkflowItemRepository) read(id string) (*models.WorkflowItem, error) {
	var item models.WorkflowItem

	found, err := readJSON(filepath.Join(wr.dir(), fileName(id)), &item)
	if err != nil {
		return nil, err
	}

	if !found {
		return nil, nil
	}

	return &item, nil
}

func (wr *WorkflowItemRepository) Create(_ context.Context, item *models.WorkflowItem) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	existing, err := wr.read(item.ID)
	if err != nil {
		return persistence.NewItemError("Create", item.ID, err)
	}

	if existing != nil {
		return persistence.NewItemError("Create", item.ID, persistence.ErrItemAlreadyExists)
	}

	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	if item.UpdatedAt.IsZero() {
		item.UpdatedAt = item.CreatedAt
	}

	item.Version = 1

	err = writeJSON(wr.dir(), fileName(item.ID), item)
	if err != nil {
		return persistence.NewItemError("Create", item.ID, err)
	}

	return nil
}

func (wr *WorkflowItemRepository) Update(_ context.Context, item *models.WorkflowItem) error {
	wr.mu.Lock()
	defer wr.mu.Unlock()

	existing, err := wr.read(item.ID)
	if err != nil {
		return persistence.NewItemError("Update", item.ID, err)
	}

	if existing == nil {
		return persistence.NewItemError("Update", item.ID, persistence.ErrItemNotFound)
	}

	if existing.Version != item.Version {
		return persistence.NewItemError("Update", item.ID, persistence.ErrVersionConflict)
	}

	item.Version++

	err = writeJSON(wr.dir(), fileName(item.ID), item)
	if err != nil {
		item.Version--

		return persistence.NewItemError("Update", item.ID, err)
	}

	return nil
}

func (wr *WorkflowItemRepository) Get(_ context.Context, id string) (*models.WorkflowItem, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	item, err := wr.read(id)
	if err != nil {
		return nil, persistence.NewItemError("Get", id, err)
	}

	if item == nil {
		return nil, persistence.NewItemError("Get", id, persistence.ErrItemNotFound)
	}

	return item, nil
}

// List returns the items matching filter sorted by priority.
func (wr *WorkflowItemRepository) List(_ context.Context, filter models.ItemFilter) ([]*models.WorkflowItem, error) {
	wr.mu.RLock()
	defer wr.mu.RUnlock()

	paths, err := listJSON(wr.dir())
	if err != nil {
		return nil, err
	}

	items := make([]*models.WorkflowItem, 0, len(paths))

	for _, path := range paths {
		var item models.WorkflowItem

		found, err := readJSON(path, &item)
		if err != nil {
			return nil, err
		}

		if found && filter.Matches(&item) {
			items = append(items, &item)
		}
	}

	models.SortByPriority(items)

	return items, nil
}
