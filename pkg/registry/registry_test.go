package registry_test

import (
	"context"
	"log/slog"
	"strings"
	"testing"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence/file"
	"github.com/dukex/wardflow/pkg/registry"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const seed = `
units:
  - id: gauze-ward-a
    kind: supply
    name: Gauze
    department_id: ward-a
    current_value: 12
    capacity_bounds: {min: 10, max: 100}
    status: active
    attributes:
      item_code: GZ-10
      reorder_point: 20
      unit_cost: "1.25"
      preferred_supplier_id: medline
  - id: nurse-1
    kind: staff
    name: Nurse One
    department_id: icu
    status: active
    attributes:
      role: nurse
      specialty: critical_care
      current_patients: 3
      max_patients: 6
      shift_start: 2026-03-01T07:00:00Z
      shift_end: 2026-03-01T19:00:00Z
  - id: vent-1
    kind: equipment
    name: Ventilator 1
    department_id: icu
    status: available
    attributes:
      unit_type: ventilator
`

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()

	return registry.NewRegistry(slog.Default(), file.NewPersistence(t.TempDir()).ResourceRepository())
}

func TestLoadSeedAndSnapshot(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)

	units, err := registry.LoadSeed(strings.NewReader(seed))
	require.NoError(t, err)
	require.Len(t, units, 3)

	require.NoError(t, reg.Seed(ctx, units))

	supplies, err := reg.Snapshot(ctx, models.ResourceKindSupply)
	require.NoError(t, err)
	require.Len(t, supplies, 1)
	assert.True(t, supplies[0].Attributes.UnitCost.Equal(decimal.RequireFromString("1.25")))
	assert.Equal(t, 100, supplies[0].Bounds.Max)

	nurse, err := reg.Unit(ctx, models.ResourceKindStaff, "nurse-1")
	require.NoError(t, err)
	require.NotNil(t, nurse.Attributes.ShiftEnd)
	assert.Equal(t, 19, nurse.Attributes.ShiftEnd.Hour())
}

func TestApply_RejectsInvalidUnits(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)

	tests := []struct {
		name string
		unit models.ResourceUnit
	}{
		{"missing id", models.ResourceUnit{Kind: models.ResourceKindSupply, Status: models.UnitStatusActive}},
		{"bed status on supply", models.ResourceUnit{ID: "s", Kind: models.ResourceKindSupply, Status: models.UnitStatusOccupied}},
		{"negative stock", models.ResourceUnit{ID: "s", Kind: models.ResourceKindSupply, Status: models.UnitStatusActive, CurrentValue: -1}},
		{"inverted bounds", models.ResourceUnit{ID: "s", Kind: models.ResourceKindSupply, Status: models.UnitStatusActive, Bounds: models.Bounds{Min: 5, Max: 1}}},
		{"score above 100", models.ResourceUnit{ID: "n", Kind: models.ResourceKindStaff, Status: models.UnitStatusActive, CurrentValue: 101}},
		{"bed without type", models.ResourceUnit{ID: "b", Kind: models.ResourceKindBed, Status: models.UnitStatusAvailable}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := reg.Apply(ctx, tt.unit)
			assert.True(t, registry.IsInvalidUnit(err), "%v", err)
		})
	}
}

func TestApply_AllOrNothingValidation(t *testing.T) {
	ctx := context.Background()
	reg := newRegistry(t)

	good := models.ResourceUnit{ID: "ok", Kind: models.ResourceKindSupply, Status: models.UnitStatusActive, CurrentValue: 3}
	bad := models.ResourceUnit{ID: "bad", Kind: models.ResourceKindSupply, Status: models.UnitStatusActive, CurrentValue: -3}

	require.Error(t, reg.Apply(ctx, good, bad))

	units, err := reg.Snapshot(ctx, models.ResourceKindSupply)
	require.NoError(t, err)
	assert.Empty(t, units)
}
