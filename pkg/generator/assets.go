package generator

import (
	"fmt"
	"sort"

	"github.com/dukex/wardflow/pkg/evaluator"
	"github.com/dukex/wardflow/pkg/models"
)

// assetRequests matches pending bed and equipment requests to available
// units, preferring the requesting department. Requests left unmatched are
// escalated when the units that could serve them are blocked.
func (g *Generator) assetRequests(in Input, open []*models.WorkflowItem, opts Options, plan *Plan) {
	kind := in.Domain.ResourceKind()

	var requests []*models.WorkflowItem

	claimed := make(map[string]bool)

	for _, item := range open {
		if item.Kind != models.ItemKindTransfer || !item.Status.Active() || item.Payload.Transfer == nil {
			continue
		}

		transfer := item.Payload.Transfer
		if transfer.ResourceKind != kind {
			continue
		}

		for _, ref := range item.SubjectRefs {
			claimed[ref] = true
		}

		if item.Status == models.ItemStatusPending && transfer.MatchedUnitID == "" {
			requests = append(requests, item)
		}
	}

	models.SortByPriority(requests)

	units := sortedUnits(in.Units)
	unmatched := make(map[string][]*models.WorkflowItem)

	for _, request := range requests {
		transfer := request.Payload.Transfer

		unit, ok := matchAsset(units, transfer, claimed)
		if !ok {
			unmatched[transfer.UnitType] = append(unmatched[transfer.UnitType], request)

			continue
		}

		claimed[unit.ID] = true

		updated := request.Clone()
		updated.SubjectRefs = []string{unit.ID}
		updated.Payload.Transfer.MatchedUnitID = unit.ID
		updated.Payload.Transfer.FromUnitID = unit.ID
		updated.Reason = fmt.Sprintf("%s; matched %s %s in %s", request.Reason, transfer.UnitType, unit.ID, unit.DepartmentID)

		plan.Update = append(plan.Update, updated)
	}

	unitTypes := make([]string, 0, len(unmatched))
	for unitType := range unmatched {
		unitTypes = append(unitTypes, unitType)
	}

	sort.Strings(unitTypes)

	for _, unitType := range unitTypes {
		waiting := unmatched[unitType]
		priority, blockedBy := g.blockedPriority(units, unitType, len(waiting))

		for _, request := range waiting {
			target := priority
			if opts.Forced {
				target = target.Elevate()
			}

			if target.Rank() > request.Priority.Rank() {
				updated := request.Clone()
				updated.Priority = target
				plan.Update = append(plan.Update, updated)
			}
		}

		plan.Alerts = append(plan.Alerts, Alert{
			Kind:         AlertCoverageGap,
			Domain:       in.Domain,
			UnitID:       blockedBy,
			DepartmentID: waiting[0].Payload.Transfer.TargetDepartment,
			Priority:     priority,
			Reason:       fmt.Sprintf("%d %s request(s) waiting with no available unit", len(waiting), unitType),
		})
	}
}

func matchAsset(
	units []models.ResourceUnit,
	transfer *models.TransferPayload,
	claimed map[string]bool,
) (models.ResourceUnit, bool) {
	var (
		fallback models.ResourceUnit
		found    bool
	)

	for _, unit := range units {
		if unit.Status != models.UnitStatusAvailable || claimed[unit.ID] {
			continue
		}

		if unit.Attributes.UnitType != transfer.UnitType {
			continue
		}

		if unit.DepartmentID == transfer.TargetDepartment {
			return unit, true
		}

		if !found {
			fallback = unit
			found = true
		}
	}

	return fallback, found
}

// blockedPriority evaluates the units of unitType against the waiting demand
// and returns the most urgent breach, critical when no such unit exists.
// Available units already spoken for by matched requests still count as
// available, so demand that only queues behind them stays high.
func (g *Generator) blockedPriority(units []models.ResourceUnit, unitType string, waiting int) (models.Priority, string) {
	demand := evaluator.AssetDemand{Requests: waiting}
	seen := false

	for _, unit := range units {
		if unit.Attributes.UnitType != unitType {
			continue
		}

		seen = true

		if unit.Status == models.UnitStatusAvailable {
			demand.Available++
		}
	}

	if !seen {
		return models.PriorityCritical, ""
	}

	priority := models.PriorityMedium
	blockedBy := ""

	for _, unit := range units {
		if unit.Attributes.UnitType != unitType {
			continue
		}

		result := evaluator.EvaluateAsset(unit, demand, g.thresholds)
		if result.Breached && result.Priority.Rank() > priority.Rank() {
			priority = result.Priority
			blockedBy = unit.ID
		}
	}

	return priority, blockedBy
}
