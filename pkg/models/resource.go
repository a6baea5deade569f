package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ResourceKind identifies the class of a ResourceUnit.
type ResourceKind string

const (
	ResourceKindSupply    ResourceKind = "supply"
	ResourceKindStaff     ResourceKind = "staff"
	ResourceKindBed       ResourceKind = "bed"
	ResourceKindEquipment ResourceKind = "equipment"
)

// ResourceKinds lists every kind in a stable order.
var ResourceKinds = []ResourceKind{
	ResourceKindSupply,
	ResourceKindStaff,
	ResourceKindBed,
	ResourceKindEquipment,
}

// Valid reports whether k is a known resource kind.
func (k ResourceKind) Valid() bool {
	switch k {
	case ResourceKindSupply, ResourceKindStaff, ResourceKindBed, ResourceKindEquipment:
		return true
	default:
		return false
	}
}

// IsAsset reports whether units of this kind are dispatched whole (beds and equipment).
func (k ResourceKind) IsAsset() bool {
	return k == ResourceKindBed || k == ResourceKindEquipment
}

// UnitStatus is the per-kind operational status of a ResourceUnit.
type UnitStatus string

const (
	// Supply statuses.
	UnitStatusActive       UnitStatus = "active"
	UnitStatusDiscontinued UnitStatus = "discontinued"

	// Staff statuses. Staff also use UnitStatusActive.
	UnitStatusOffDuty UnitStatus = "off_duty"
	UnitStatusOnLeave UnitStatus = "on_leave"

	// Bed and equipment statuses.
	UnitStatusAvailable   UnitStatus = "available"
	UnitStatusOccupied    UnitStatus = "occupied"
	UnitStatusMaintenance UnitStatus = "maintenance"
	UnitStatusReserved    UnitStatus = "reserved"
)

var statusesByKind = map[ResourceKind][]UnitStatus{
	ResourceKindSupply:    {UnitStatusActive, UnitStatusDiscontinued},
	ResourceKindStaff:     {UnitStatusActive, UnitStatusOffDuty, UnitStatusOnLeave},
	ResourceKindBed:       {UnitStatusAvailable, UnitStatusOccupied, UnitStatusMaintenance, UnitStatusReserved},
	ResourceKindEquipment: {UnitStatusAvailable, UnitStatusOccupied, UnitStatusMaintenance, UnitStatusReserved},
}

// ValidStatus reports whether s is a legal status for units of kind k.
func (k ResourceKind) ValidStatus(s UnitStatus) bool {
	for _, candidate := range statusesByKind[k] {
		if candidate == s {
			return true
		}
	}

	return false
}

// Bounds is the allowed range of a unit's current value.
type Bounds struct {
	Min int `json:"min"`
	Max int `json:"max"`
}

// UnitAttributes holds the kind-specific fields of a ResourceUnit.
type UnitAttributes struct {
	// Supply
	ItemCode            string          `json:"item_code,omitempty"            yaml:"item_code"`
	ReorderPoint        int             `json:"reorder_point,omitempty"        yaml:"reorder_point"`
	UnitCost            decimal.Decimal `json:"unit_cost"                      yaml:"unit_cost"`
	PreferredSupplierID string          `json:"preferred_supplier_id,omitempty" yaml:"preferred_supplier_id"`

	// Staff
	Role            string     `json:"role,omitempty"             yaml:"role"`
	Specialty       string     `json:"specialty,omitempty"        yaml:"specialty"`
	CurrentPatients int        `json:"current_patients,omitempty" yaml:"current_patients"`
	MaxPatients     int        `json:"max_patients,omitempty"     yaml:"max_patients"`
	ShiftStart      *time.Time `json:"shift_start,omitempty"      yaml:"shift_start"`
	ShiftEnd        *time.Time `json:"shift_end,omitempty"        yaml:"shift_end"`

	// Bed and equipment
	UnitType string `json:"unit_type,omitempty" yaml:"unit_type"`
}

// ResourceUnit is a supply item at a location, a staff member, a bed or a piece of equipment.
type ResourceUnit struct {
	ID           string         `json:"id"                    yaml:"id"            validate:"required"`
	Kind         ResourceKind   `json:"kind"                  yaml:"kind"          validate:"required"`
	Name         string         `json:"name"                  yaml:"name"`
	DepartmentID string         `json:"department_id"         yaml:"department_id"`
	LocationID   string         `json:"location_id,omitempty" yaml:"location_id"`
	CurrentValue int            `json:"current_value"         yaml:"current_value"`
	Bounds       Bounds         `json:"capacity_bounds"       yaml:"capacity_bounds"`
	Status       UnitStatus     `json:"status"                yaml:"status"`
	Attributes   UnitAttributes `json:"attributes"            yaml:"attributes"`
	UpdatedAt    time.Time      `json:"updated_at"            yaml:"-"`
}

// Clone returns a deep copy so executors can mutate without aliasing registry state.
func (u ResourceUnit) Clone() ResourceUnit {
	clone := u

	if u.Attributes.ShiftStart != nil {
		start := *u.Attributes.ShiftStart
		clone.Attributes.ShiftStart = &start
	}

	if u.Attributes.ShiftEnd != nil {
		end := *u.Attributes.ShiftEnd
		clone.Attributes.ShiftEnd = &end
	}

	return clone
}

// Surplus is how far the current value sits above the minimum bound (never negative).
func (u ResourceUnit) Surplus() int {
	if u.CurrentValue <= u.Bounds.Min {
		return 0
	}

	return u.CurrentValue - u.Bounds.Min
}

// Deficit is how far the current value sits below the minimum bound (never negative).
func (u ResourceUnit) Deficit() int {
	if u.CurrentValue >= u.Bounds.Min {
		return 0
	}

	return u.Bounds.Min - u.CurrentValue
}

// OnShift reports whether a staff unit's shift window contains at.
// Units without a shift window are considered on shift.
func (u ResourceUnit) OnShift(at time.Time) bool {
	if u.Attributes.ShiftStart == nil || u.Attributes.ShiftEnd == nil {
		return true
	}

	return !at.Before(*u.Attributes.ShiftStart) && at.Before(*u.Attributes.ShiftEnd)
}

// SameShiftWindow reports whether two staff units share the same shift window.
func (u ResourceUnit) SameShiftWindow(other ResourceUnit) bool {
	a, b := u.Attributes, other.Attributes
	if a.ShiftStart == nil || b.ShiftStart == nil || a.ShiftEnd == nil || b.ShiftEnd == nil {
		return a.ShiftStart == nil && b.ShiftStart == nil
	}

	return a.ShiftStart.Equal(*b.ShiftStart) && a.ShiftEnd.Equal(*b.ShiftEnd)
}
