package generator

import (
	"fmt"
	"sort"

	"github.com/dukex/wardflow/pkg/evaluator"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/shopspring/decimal"
)

func (g *Generator) reorders(in Input, index *openIndex, opts Options, plan *Plan) {
	results := resultsByUnit(in.Results)

	for _, unit := range sortedUnits(in.Units) {
		result, ok := results[unit.ID]
		if !ok || !result.Breached || result.Role != evaluator.RoleLowStock {
			continue
		}

		if existing := index.active(unit.ID, models.ItemKindReorder); existing != nil {
			if updated := reprioritize(existing, result.Priority, opts); updated != nil {
				plan.Update = append(plan.Update, updated)
			}

			continue
		}

		// stock already on an open purchase order
		if index.onOrder[unit.ID] {
			continue
		}

		quantity := g.reorderQuantity(unit)
		if quantity <= 0 {
			continue
		}

		cost := unit.Attributes.UnitCost.Mul(decimal.NewFromInt(int64(quantity)))

		payload := models.Payload{Reorder: &models.ReorderPayload{
			UnitID:             unit.ID,
			ItemCode:           unit.Attributes.ItemCode,
			CurrentValue:       unit.CurrentValue,
			ReorderPoint:       unit.Attributes.ReorderPoint,
			SuggestedQuantity:  quantity,
			UnitCost:           unit.Attributes.UnitCost,
			EstimatedCost:      cost,
			ProposedSupplierID: unit.Attributes.PreferredSupplierID,
		}}

		reason := fmt.Sprintf("%s; reorder %d to reach %d", result.Rationale, quantity, unit.Bounds.Max)

		plan.Create = append(plan.Create, g.newItem(
			models.ItemKindReorder, []string{unit.ID}, unit.DepartmentID, result.Priority, reason, payload, opts,
		))
	}
}

// reorderQuantity fills the unit up to its max bound, clamped to MaxOrderSize.
func (g *Generator) reorderQuantity(unit models.ResourceUnit) int {
	quantity := unit.Bounds.Max - unit.CurrentValue
	if quantity < 0 {
		return 0
	}

	if g.config.MaxOrderSize > 0 && quantity > g.config.MaxOrderSize {
		quantity = g.config.MaxOrderSize
	}

	return quantity
}

// transfers pairs units below their min bound with a sibling location holding
// the same item code whose surplus covers the whole deficit.
func (g *Generator) transfers(in Input, index *openIndex, opts Options, plan *Plan) {
	byCode := make(map[string][]models.ResourceUnit)

	for _, unit := range in.Units {
		if unit.Attributes.ItemCode == "" || unit.Status == models.UnitStatusDiscontinued {
			continue
		}

		byCode[unit.Attributes.ItemCode] = append(byCode[unit.Attributes.ItemCode], unit)
	}

	codes := make([]string, 0, len(byCode))
	for code := range byCode {
		codes = append(codes, code)
	}

	sort.Strings(codes)

	used := make(map[string]bool)

	for _, code := range codes {
		siblings := byCode[code]

		short := make([]models.ResourceUnit, 0, len(siblings))
		for _, unit := range siblings {
			if unit.Deficit() > 0 {
				short = append(short, unit)
			}
		}

		sort.Slice(short, func(i, j int) bool {
			if short[i].Deficit() != short[j].Deficit() {
				return short[i].Deficit() > short[j].Deficit()
			}

			return short[i].ID < short[j].ID
		})

		for _, receiver := range short {
			if used[receiver.ID] || index.active(receiver.ID, models.ItemKindTransfer) != nil {
				continue
			}

			donor, ok := pickDonor(receiver, siblings, index, used)
			if !ok {
				continue
			}

			used[receiver.ID] = true
			used[donor.ID] = true

			deficit := receiver.Deficit()
			quantity := min(deficit, donor.Surplus())

			payload := models.Payload{Transfer: &models.TransferPayload{
				ResourceKind:      models.ResourceKindSupply,
				FromUnitID:        donor.ID,
				ToUnitID:          receiver.ID,
				ItemCode:          code,
				SuggestedQuantity: quantity,
				TargetDepartment:  receiver.DepartmentID,
			}}

			reason := fmt.Sprintf("%s at %d is %d below minimum %d; %s holds %d surplus",
				receiver.Name, receiver.CurrentValue, deficit, receiver.Bounds.Min, donor.ID, donor.Surplus())

			plan.Create = append(plan.Create, g.newItem(
				models.ItemKindTransfer, []string{donor.ID, receiver.ID}, receiver.DepartmentID,
				transferPriority(receiver), reason, payload, opts,
			))
		}
	}
}

func pickDonor(
	receiver models.ResourceUnit,
	siblings []models.ResourceUnit,
	index *openIndex,
	used map[string]bool,
) (models.ResourceUnit, bool) {
	var (
		best  models.ResourceUnit
		found bool
	)

	for _, candidate := range siblings {
		if candidate.ID == receiver.ID || used[candidate.ID] {
			continue
		}

		if index.active(candidate.ID, models.ItemKindTransfer) != nil {
			continue
		}

		if candidate.Surplus() < receiver.Deficit() {
			continue
		}

		if !found || candidate.Surplus() > best.Surplus() ||
			(candidate.Surplus() == best.Surplus() && candidate.ID < best.ID) {
			best = candidate
			found = true
		}
	}

	return best, found
}

func transferPriority(receiver models.ResourceUnit) models.Priority {
	switch {
	case receiver.CurrentValue <= 0:
		return models.PriorityCritical
	case receiver.Deficit()*2 >= receiver.Bounds.Min:
		return models.PriorityHigh
	default:
		return models.PriorityMedium
	}
}
