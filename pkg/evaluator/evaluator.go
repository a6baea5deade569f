// Package evaluator computes breach, priority and rationale from resource state
// against configured thresholds. Every function here is pure.
package evaluator

import (
	"fmt"
	"math"

	"github.com/dukex/wardflow/pkg/models"
)

// Role classifies a unit for the suggestion generator.
type Role string

const (
	RoleNone       Role = ""
	RoleLowStock   Role = "low_stock"
	RoleOverloaded Role = "overloaded"
	RoleAvailable  Role = "available"
	RoleBlocked    Role = "blocked"
)

// Thresholds configures the evaluator.
type Thresholds struct {
	// SupplyHighRatio is the (reorder_point-current)/reorder_point ratio at
	// and above which a low-stock breach is high instead of medium.
	SupplyHighRatio float64 `mapstructure:"supply_high_ratio"`

	// Overloaded is the workload score at and above which staff are overloaded.
	Overloaded int `mapstructure:"overloaded"`

	// CriticalOverload is the workload score at and above which an overload is critical.
	CriticalOverload int `mapstructure:"critical_overload"`

	// Available is the workload score below which active staff can take load.
	Available int `mapstructure:"available"`

	// RoleWeights scales the patient ratio per staff role. Missing roles weigh 1.
	RoleWeights map[string]float64 `mapstructure:"role_weights"`
}

// DefaultThresholds returns the thresholds used when nothing is configured.
func DefaultThresholds() Thresholds {
	return Thresholds{
		SupplyHighRatio:  0.5,
		Overloaded:       85,
		CriticalOverload: 95,
		Available:        50,
		RoleWeights: map[string]float64{
			"nurse":     1.0,
			"physician": 1.2,
			"assistant": 0.8,
		},
	}
}

// Result is the outcome of evaluating one unit.
type Result struct {
	UnitID    string
	Kind      models.ResourceKind
	Breached  bool
	Priority  models.Priority
	Rationale string
	Role      Role
	Score     int
}

// Evaluate assesses supply and staff units. Bed and equipment units are
// evaluated without demand and therefore never breach here; use EvaluateAsset.
func Evaluate(unit models.ResourceUnit, th Thresholds) Result {
	switch unit.Kind {
	case models.ResourceKindSupply:
		return evaluateSupply(unit, th)
	case models.ResourceKindStaff:
		return evaluateStaff(unit, th)
	case models.ResourceKindBed, models.ResourceKindEquipment:
		return EvaluateAsset(unit, AssetDemand{}, th)
	default:
		return Result{UnitID: unit.ID, Kind: unit.Kind, Rationale: "unknown resource kind"}
	}
}

func evaluateSupply(unit models.ResourceUnit, th Thresholds) Result {
	result := Result{UnitID: unit.ID, Kind: unit.Kind, Score: unit.CurrentValue}

	if unit.Status == models.UnitStatusDiscontinued {
		result.Rationale = "item discontinued"

		return result
	}

	reorderPoint := unit.Attributes.ReorderPoint

	switch {
	case unit.CurrentValue <= 0:
		result.Breached = true
		result.Priority = models.PriorityCritical
		result.Role = RoleLowStock
		result.Rationale = fmt.Sprintf("%s is out of stock (reorder point %d)", unit.Name, reorderPoint)
	case unit.CurrentValue <= reorderPoint:
		ratio := float64(reorderPoint-unit.CurrentValue) / float64(reorderPoint)

		result.Breached = true
		result.Role = RoleLowStock
		result.Priority = models.PriorityMedium

		if ratio >= th.SupplyHighRatio {
			result.Priority = models.PriorityHigh
		}

		result.Rationale = fmt.Sprintf("%s stock %d at or below reorder point %d (%.0f%% short)",
			unit.Name, unit.CurrentValue, reorderPoint, ratio*100)
	default:
		result.Rationale = "stock above reorder point"
	}

	return result
}

// WorkloadScore is the role-weighted patient ratio on a 0..100 scale. Staff
// without a patient capacity report their stored score.
func WorkloadScore(unit models.ResourceUnit, th Thresholds) int {
	maxPatients := unit.Attributes.MaxPatients
	if maxPatients <= 0 {
		return clampScore(unit.CurrentValue)
	}

	weight := 1.0
	if w, ok := th.RoleWeights[unit.Attributes.Role]; ok && w > 0 {
		weight = w
	}

	raw := float64(unit.Attributes.CurrentPatients) / float64(maxPatients) * 100 * weight

	return clampScore(int(math.Round(raw)))
}

func clampScore(score int) int {
	switch {
	case score < 0:
		return 0
	case score > 100:
		return 100
	default:
		return score
	}
}

func evaluateStaff(unit models.ResourceUnit, th Thresholds) Result {
	score := WorkloadScore(unit, th)
	result := Result{UnitID: unit.ID, Kind: unit.Kind, Score: score}

	switch {
	case unit.Status != models.UnitStatusActive:
		result.Rationale = fmt.Sprintf("staff is %s", unit.Status)
	case score >= th.Overloaded:
		result.Breached = true
		result.Role = RoleOverloaded
		result.Priority = models.PriorityHigh

		if score >= th.CriticalOverload {
			result.Priority = models.PriorityCritical
		}

		result.Rationale = fmt.Sprintf("%s workload %d at or above %d", unit.Name, score, th.Overloaded)
	case score < th.Available:
		result.Role = RoleAvailable
		result.Rationale = fmt.Sprintf("%s workload %d below %d", unit.Name, score, th.Available)
	default:
		result.Rationale = "workload within range"
	}

	return result
}

// AssetDemand is the pending request load matched to a unit's type and department.
type AssetDemand struct {
	// Requests is the number of pending requests for the unit type in the department.
	Requests int
	// Available is the number of units of that type currently available to them.
	Available int
}

// EvaluateAsset assesses a bed or equipment unit against pending demand for its
// type and department. A unit whose occupancy or maintenance blocks demand breaches.
func EvaluateAsset(unit models.ResourceUnit, demand AssetDemand, _ Thresholds) Result {
	result := Result{UnitID: unit.ID, Kind: unit.Kind, Score: unit.CurrentValue}

	blocking := unit.Status == models.UnitStatusOccupied || unit.Status == models.UnitStatusMaintenance

	switch {
	case demand.Requests == 0:
		result.Rationale = "no pending demand"
	case !blocking:
		result.Rationale = fmt.Sprintf("%s is %s", unit.Name, unit.Status)
	default:
		result.Breached = true
		result.Role = RoleBlocked
		result.Priority = models.PriorityHigh

		if demand.Requests > demand.Available {
			result.Priority = models.PriorityCritical
		}

		result.Rationale = fmt.Sprintf("%s %s is %s while %d request(s) wait with %d available",
			unit.Attributes.UnitType, unit.Name, unit.Status, demand.Requests, demand.Available)
	}

	return result
}
