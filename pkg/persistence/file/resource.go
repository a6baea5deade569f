package file

import (
	"context"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
)

// ResourceRepository stores one JSON document per unit under units/<kind>/.
type ResourceRepository struct {
	root string
	mu   sync.RWMutex
}

// NewResourceRepository creates a new resource repository.
func NewResourceRepository(root string) *ResourceRepository {
	return &ResourceRepository{root: root}
}

func (rr *ResourceRepository) dir(kind models.ResourceKind) string {
	return filepath.Join(rr.root, "units", string(kind))
}

func (rr *ResourceRepository) ListUnits(_ context.Context, kind models.ResourceKind) ([]models.ResourceUnit, error) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	paths, err := listJSON(rr.dir(kind))
	if err != nil {
		return nil, err
	}

	units := make([]models.ResourceUnit, 0, len(paths))

	for _, path := range paths {
		var unit models.ResourceUnit

		found, err := readJSON(path, &unit)
		if err != nil {
			return nil, err
		}

		if found {
			units = append(units, unit)
		}
	}

	sort.Slice(units, func(i, j int) bool {
		return units[i].ID < units[j].ID
	})

	return units, nil
}

func (rr *ResourceRepository) GetUnit(_ context.Context, kind models.ResourceKind, id string) (*models.ResourceUnit, error) {
	rr.mu.RLock()
	defer rr.mu.RUnlock()

	var unit models.ResourceUnit

	found, err := readJSON(filepath.Join(rr.dir(kind), fileName(id)), &unit)
	if err != nil {
		return nil, persistence.NewUnitError("GetUnit", string(kind), id, err)
	}

	if !found {
		return nil, persistence.NewUnitError("GetUnit", string(kind), id, persistence.ErrUnitNotFound)
	}

	return &unit, nil
}

// SaveUnits writes every unit, restoring the previous documents when one write fails.
func (rr *ResourceRepository) SaveUnits(_ context.Context, units ...models.ResourceUnit) error {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	type previous struct {
		unit  models.ResourceUnit
		found bool
	}

	backups := make([]previous, 0, len(units))
	now := time.Now().UTC()

	for _, unit := range units {
		var before models.ResourceUnit

		found, err := readJSON(filepath.Join(rr.dir(unit.Kind), fileName(unit.ID)), &before)
		if err != nil {
			return persistence.NewUnitError("SaveUnits", string(unit.Kind), unit.ID, err)
		}

		backups = append(backups, previous{unit: before, found: found})
	}

	for i, unit := range units {
		if unit.UpdatedAt.IsZero() {
			unit.UpdatedAt = now
		}

		err := writeJSON(rr.dir(unit.Kind), fileName(unit.ID), unit)
		if err == nil {
			continue
		}

		for j := range i {
			if backups[j].found {
				_ = writeJSON(rr.dir(units[j].Kind), fileName(units[j].ID), backups[j].unit)
			}
		}

		return persistence.NewUnitError("SaveUnits", string(unit.Kind), unit.ID, err)
	}

	return nil
}
