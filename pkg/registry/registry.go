// Package registry owns resource unit state. Suggestion code reads snapshots;
// only workflow executors write through Apply.
package registry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// ErrInvalidUnit is returned when a unit violates its kind's constraints.
var ErrInvalidUnit = errors.New("invalid resource unit")

type Registry struct {
	logger    *slog.Logger
	repo      persistence.ResourceRepository
	validator *validator.Validate
}

func NewRegistry(logger *slog.Logger, repo persistence.ResourceRepository) *Registry {
	return &Registry{
		logger:    logger,
		repo:      repo,
		validator: validator.New(validator.WithRequiredStructEnabled()),
	}
}

// Snapshot returns a copy of every unit of kind.
func (r *Registry) Snapshot(ctx context.Context, kind models.ResourceKind) ([]models.ResourceUnit, error) {
	units, err := r.repo.ListUnits(ctx, kind)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s units: %w", kind, err)
	}

	snapshot := make([]models.ResourceUnit, len(units))
	for i, unit := range units {
		snapshot[i] = unit.Clone()
	}

	return snapshot, nil
}

// Unit returns one unit by kind and id.
func (r *Registry) Unit(ctx context.Context, kind models.ResourceKind, id string) (models.ResourceUnit, error) {
	unit, err := r.repo.GetUnit(ctx, kind, id)
	if err != nil {
		return models.ResourceUnit{}, err
	}

	return unit.Clone(), nil
}

// Apply validates and stores all units atomically.
func (r *Registry) Apply(ctx context.Context, units ...models.ResourceUnit) error {
	for _, unit := range units {
		err := r.Validate(unit)
		if err != nil {
			return err
		}
	}

	err := r.repo.SaveUnits(ctx, units...)
	if err != nil {
		return fmt.Errorf("failed to apply resource changes: %w", err)
	}

	r.logger.DebugContext(ctx, "Applied resource changes", "units", len(units))

	return nil
}

// Validate checks a unit against the constraints of its kind.
func (r *Registry) Validate(unit models.ResourceUnit) error {
	err := r.validator.Struct(unit)
	if err != nil {
		return fmt.Errorf("%w %q: %w", ErrInvalidUnit, unit.ID, err)
	}

	if !unit.Kind.Valid() {
		return fmt.Errorf("%w %q: unknown kind %q", ErrInvalidUnit, unit.ID, unit.Kind)
	}

	if !unit.Kind.ValidStatus(unit.Status) {
		return fmt.Errorf("%w %q: status %q is not valid for %s", ErrInvalidUnit, unit.ID, unit.Status, unit.Kind)
	}

	if unit.Bounds.Min > unit.Bounds.Max {
		return fmt.Errorf("%w %q: min bound %d above max %d", ErrInvalidUnit, unit.ID, unit.Bounds.Min, unit.Bounds.Max)
	}

	switch unit.Kind {
	case models.ResourceKindSupply:
		if unit.CurrentValue < 0 {
			return fmt.Errorf("%w %q: stock cannot be negative", ErrInvalidUnit, unit.ID)
		}
	case models.ResourceKindStaff:
		if unit.CurrentValue < 0 || unit.CurrentValue > 100 {
			return fmt.Errorf("%w %q: workload score %d outside 0..100", ErrInvalidUnit, unit.ID, unit.CurrentValue)
		}

		if unit.Attributes.CurrentPatients < 0 {
			return fmt.Errorf("%w %q: patient count cannot be negative", ErrInvalidUnit, unit.ID)
		}
	case models.ResourceKindBed, models.ResourceKindEquipment:
		if unit.Attributes.UnitType == "" {
			return fmt.Errorf("%w %q: unit_type is required", ErrInvalidUnit, unit.ID)
		}
	}

	return nil
}

// Seed stores units loaded from a seed document.
func (r *Registry) Seed(ctx context.Context, units []models.ResourceUnit) error {
	err := r.Apply(ctx, units...)
	if err != nil {
		return err
	}

	r.logger.InfoContext(ctx, "Seeded resource units", "count", len(units))

	return nil
}

type seedDocument struct {
	Units []models.ResourceUnit `yaml:"units"`
}

// LoadSeed decodes a YAML document with a top-level "units" list.
func LoadSeed(reader io.Reader) ([]models.ResourceUnit, error) {
	var document seedDocument

	err := yaml.NewDecoder(reader).Decode(&document)
	if err != nil {
		return nil, fmt.Errorf("failed to decode seed document: %w", err)
	}

	return document.Units, nil
}

func IsInvalidUnit(err error) bool {
	return errors.Is(err, ErrInvalidUnit)
}
