// Package testutil provides test data builders for resource units and workflow items.
package testutil

import (
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Now is the fixed clock used by builders.
var Now = time.Date(2024, 3, 4, 9, 0, 0, 0, time.UTC)

// CreateSupplyUnit creates an active supply unit at location with the given stock.
func CreateSupplyUnit(id, itemCode string, current int, overrides ...func(*models.ResourceUnit)) models.ResourceUnit {
	unit := models.ResourceUnit{
		ID:           id,
		Kind:         models.ResourceKindSupply,
		Name:         "Supply " + id,
		DepartmentID: "pharmacy",
		LocationID:   "loc-" + id,
		CurrentValue: current,
		Bounds:       models.Bounds{Min: 20, Max: 100},
		Status:       models.UnitStatusActive,
		Attributes: models.UnitAttributes{
			ItemCode:            itemCode,
			ReorderPoint:        20,
			UnitCost:            decimal.RequireFromString("2.50"),
			PreferredSupplierID: "supplier-1",
		},
		UpdatedAt: Now,
	}

	for _, override := range overrides {
		override(&unit)
	}

	return unit
}

// CreateStaffUnit creates an active nurse tracking patients.
func CreateStaffUnit(id, department string, patients, maxPatients int, overrides ...func(*models.ResourceUnit)) models.ResourceUnit {
	unit := models.ResourceUnit{
		ID:           id,
		Kind:         models.ResourceKindStaff,
		Name:         "Staff " + id,
		DepartmentID: department,
		Bounds:       models.Bounds{Min: 0, Max: 100},
		Status:       models.UnitStatusActive,
		Attributes: models.UnitAttributes{
			Role:            "nurse",
			Specialty:       "general",
			CurrentPatients: patients,
			MaxPatients:     maxPatients,
		},
		UpdatedAt: Now,
	}

	for _, override := range overrides {
		override(&unit)
	}

	return unit
}

// CreateAssetUnit creates an available bed or equipment unit of unitType.
func CreateAssetUnit(kind models.ResourceKind, id, unitType, department string, overrides ...func(*models.ResourceUnit)) models.ResourceUnit {
	unit := models.ResourceUnit{
		ID:           id,
		Kind:         kind,
		Name:         unitType + " " + id,
		DepartmentID: department,
		Bounds:       models.Bounds{Min: 0, Max: 1},
		Status:       models.UnitStatusAvailable,
		Attributes:   models.UnitAttributes{UnitType: unitType},
		UpdatedAt:    Now,
	}

	for _, override := range overrides {
		override(&unit)
	}

	return unit
}

// WithStatus sets the unit status.
func WithStatus(status models.UnitStatus) func(*models.ResourceUnit) {
	return func(u *models.ResourceUnit) {
		u.Status = status
	}
}

// WithWorkload sets a staff workload score without patient tracking.
func WithWorkload(score int) func(*models.ResourceUnit) {
	return func(u *models.ResourceUnit) {
		u.CurrentValue = score
		u.Attributes.CurrentPatients = 0
		u.Attributes.MaxPatients = 0
	}
}

// WithShift sets a staff shift window.
func WithShift(start, end time.Time) func(*models.ResourceUnit) {
	return func(u *models.ResourceUnit) {
		u.Attributes.ShiftStart = &start
		u.Attributes.ShiftEnd = &end
	}
}

// CreateTestItem creates a pending item of kind with payload.
func CreateTestItem(kind models.ItemKind, payload models.Payload, overrides ...func(*models.WorkflowItem)) *models.WorkflowItem {
	item := &models.WorkflowItem{
		ID:        uuid.NewString(),
		Kind:      kind,
		Priority:  models.PriorityMedium,
		Payload:   payload,
		Status:    models.ItemStatusPending,
		Reason:    "test",
		Origin:    models.OriginManual,
		CreatedAt: Now,
		UpdatedAt: Now,
	}

	for _, override := range overrides {
		override(item)
	}

	return item
}

// CreateReorderItem creates a pending reorder for unitID.
func CreateReorderItem(unitID string, quantity int, overrides ...func(*models.WorkflowItem)) *models.WorkflowItem {
	cost := decimal.RequireFromString("2.50")

	return CreateTestItem(models.ItemKindReorder, models.Payload{Reorder: &models.ReorderPayload{
		UnitID:             unitID,
		SuggestedQuantity:  quantity,
		UnitCost:           cost,
		EstimatedCost:      cost.Mul(decimal.NewFromInt(int64(quantity))),
		ProposedSupplierID: "supplier-1",
	}}, overrides...)
}

// CreateTransferItem creates a pending supply transfer.
func CreateTransferItem(from, to string, quantity int, overrides ...func(*models.WorkflowItem)) *models.WorkflowItem {
	return CreateTestItem(models.ItemKindTransfer, models.Payload{Transfer: &models.TransferPayload{
		ResourceKind:      models.ResourceKindSupply,
		FromUnitID:        from,
		ToUnitID:          to,
		SuggestedQuantity: quantity,
	}}, overrides...)
}

// CreateReallocationItem creates a pending reallocation moving load from one staff member to another.
func CreateReallocationItem(from, to string, load int, overrides ...func(*models.WorkflowItem)) *models.WorkflowItem {
	return CreateTestItem(models.ItemKindReallocation, models.Payload{Reallocation: &models.ReallocationPayload{
		FromStaffID:      from,
		ToStaffID:        to,
		FromDepartment:   "icu",
		TargetDepartment: "icu",
		LoadToMove:       load,
	}}, overrides...)
}

// CreateAssetRequest creates an unmatched bed or equipment request.
func CreateAssetRequest(kind models.ResourceKind, unitType, department string, overrides ...func(*models.WorkflowItem)) *models.WorkflowItem {
	return CreateTestItem(models.ItemKindTransfer, models.Payload{Transfer: &models.TransferPayload{
		ResourceKind:     kind,
		UnitType:         unitType,
		TargetDepartment: department,
	}}, overrides...)
}

// WithPriority sets the item priority.
func WithPriority(priority models.Priority) func(*models.WorkflowItem) {
	return func(i *models.WorkflowItem) {
		i.Priority = priority
	}
}

// WithExpiry sets expires_at.
func WithExpiry(at time.Time) func(*models.WorkflowItem) {
	return func(i *models.WorkflowItem) {
		i.ExpiresAt = &at
	}
}

// WithID sets the item id.
func WithID(id string) func(*models.WorkflowItem) {
	return func(i *models.WorkflowItem) {
		i.ID = id
	}
}
