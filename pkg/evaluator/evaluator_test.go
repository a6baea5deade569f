package evaluator

import (
	"testing"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func supplyUnit(current, reorderPoint int) models.ResourceUnit {
	return models.ResourceUnit{
		ID:           "gauze-ward-a",
		Kind:         models.ResourceKindSupply,
		Name:         "Gauze",
		CurrentValue: current,
		Bounds:       models.Bounds{Min: 10, Max: 100},
		Status:       models.UnitStatusActive,
		Attributes:   models.UnitAttributes{ReorderPoint: reorderPoint},
	}
}

func TestEvaluate_Supply(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name         string
		current      int
		reorderPoint int
		wantBreached bool
		wantPriority models.Priority
	}{
		{"out of stock is critical", 0, 20, true, models.PriorityCritical},
		{"far below reorder point is high", 5, 20, true, models.PriorityHigh},
		{"half way is high", 10, 20, true, models.PriorityHigh},
		{"slightly below reorder point is medium", 15, 20, true, models.PriorityMedium},
		{"at reorder point is medium", 20, 20, true, models.PriorityMedium},
		{"above reorder point is fine", 21, 20, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Evaluate(supplyUnit(tt.current, tt.reorderPoint), th)

			assert.Equal(t, tt.wantBreached, result.Breached)
			assert.Equal(t, tt.wantPriority, result.Priority)
			assert.NotEmpty(t, result.Rationale)
		})
	}
}

func TestEvaluate_SupplyDiscontinuedNeverBreaches(t *testing.T) {
	unit := supplyUnit(0, 20)
	unit.Status = models.UnitStatusDiscontinued

	assert.False(t, Evaluate(unit, DefaultThresholds()).Breached)
}

func TestEvaluate_IsDeterministic(t *testing.T) {
	unit := supplyUnit(7, 20)
	th := DefaultThresholds()

	assert.Equal(t, Evaluate(unit, th), Evaluate(unit, th))
}

func TestWorkloadScore(t *testing.T) {
	th := DefaultThresholds()

	nurse := models.ResourceUnit{
		Kind:       models.ResourceKindStaff,
		Attributes: models.UnitAttributes{Role: "nurse", CurrentPatients: 5, MaxPatients: 6},
	}
	assert.Equal(t, 83, WorkloadScore(nurse, th))

	physician := nurse
	physician.Attributes.Role = "physician"
	assert.Equal(t, 100, WorkloadScore(physician, th))

	scored := models.ResourceUnit{Kind: models.ResourceKindStaff, CurrentValue: 92}
	assert.Equal(t, 92, WorkloadScore(scored, th))
}

func TestEvaluate_Staff(t *testing.T) {
	th := DefaultThresholds()

	tests := []struct {
		name         string
		score        int
		status       models.UnitStatus
		wantRole     Role
		wantBreached bool
		wantPriority models.Priority
	}{
		{"overloaded", 92, models.UnitStatusActive, RoleOverloaded, true, models.PriorityHigh},
		{"critically overloaded", 97, models.UnitStatusActive, RoleOverloaded, true, models.PriorityCritical},
		{"threshold is overloaded", 85, models.UnitStatusActive, RoleOverloaded, true, models.PriorityHigh},
		{"available", 30, models.UnitStatusActive, RoleAvailable, false, ""},
		{"off duty is never available", 10, models.UnitStatusOffDuty, RoleNone, false, ""},
		{"in range", 60, models.UnitStatusActive, RoleNone, false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			unit := models.ResourceUnit{
				ID:           "staff-a",
				Kind:         models.ResourceKindStaff,
				CurrentValue: tt.score,
				Status:       tt.status,
			}

			result := Evaluate(unit, th)

			assert.Equal(t, tt.wantRole, result.Role)
			assert.Equal(t, tt.wantBreached, result.Breached)
			assert.Equal(t, tt.wantPriority, result.Priority)
			assert.Equal(t, tt.score, result.Score)
		})
	}
}

func TestEvaluateAsset(t *testing.T) {
	th := DefaultThresholds()
	bed := models.ResourceUnit{
		ID:         "bed-icu-1",
		Kind:       models.ResourceKindBed,
		Status:     models.UnitStatusOccupied,
		Attributes: models.UnitAttributes{UnitType: "icu_bed"},
	}

	assert.False(t, EvaluateAsset(bed, AssetDemand{}, th).Breached)

	result := EvaluateAsset(bed, AssetDemand{Requests: 1, Available: 1}, th)
	assert.True(t, result.Breached)
	assert.Equal(t, models.PriorityHigh, result.Priority)
	assert.Equal(t, RoleBlocked, result.Role)

	result = EvaluateAsset(bed, AssetDemand{Requests: 2, Available: 0}, th)
	assert.Equal(t, models.PriorityCritical, result.Priority)

	bed.Status = models.UnitStatusAvailable
	assert.False(t, EvaluateAsset(bed, AssetDemand{Requests: 2}, th).Breached)

	assert.False(t, Evaluate(bed, th).Breached)
}
