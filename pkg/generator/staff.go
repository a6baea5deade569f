package generator

import (
	"fmt"
	"sort"
	"time"

	"github.com/dukex/wardflow/pkg/evaluator"
	"github.com/dukex/wardflow/pkg/models"
)

type staffCandidate struct {
	unit  models.ResourceUnit
	score int
}

func (g *Generator) reallocations(in Input, index *openIndex, opts Options, plan *Plan) {
	units := make(map[string]models.ResourceUnit, len(in.Units))
	for _, unit := range in.Units {
		units[unit.ID] = unit
	}

	var overloaded, available []staffCandidate

	priorities := make(map[string]models.Priority)

	for _, result := range in.Results {
		unit, ok := units[result.UnitID]
		if !ok {
			continue
		}

		switch result.Role {
		case evaluator.RoleOverloaded:
			overloaded = append(overloaded, staffCandidate{unit: unit, score: result.Score})
			priorities[unit.ID] = result.Priority
		case evaluator.RoleAvailable:
			available = append(available, staffCandidate{unit: unit, score: result.Score})
		}
	}

	sort.Slice(overloaded, func(i, j int) bool {
		if overloaded[i].score != overloaded[j].score {
			return overloaded[i].score > overloaded[j].score
		}

		return overloaded[i].unit.ID < overloaded[j].unit.ID
	})

	used := make(map[string]bool)

	for _, from := range overloaded {
		priority := priorities[from.unit.ID]

		if existing := index.active(from.unit.ID, models.ItemKindReallocation); existing != nil {
			if updated := reprioritize(existing, priority, opts); updated != nil {
				plan.Update = append(plan.Update, updated)
			}

			continue
		}

		to, ok := g.pickCover(from.unit, available, index, used)
		if !ok {
			plan.Alerts = append(plan.Alerts, Alert{
				Kind:         AlertCoverageGap,
				Domain:       DomainStaff,
				UnitID:       from.unit.ID,
				DepartmentID: from.unit.DepartmentID,
				Priority:     priority,
				Reason: fmt.Sprintf("%s workload %d and no available staff in %s or a compatible department",
					from.unit.Name, from.score, from.unit.DepartmentID),
			})

			continue
		}

		used[to.unit.ID] = true

		load := g.loadToMove(from, to)
		sameSpecialty := from.unit.Attributes.Specialty == to.unit.Attributes.Specialty

		payload := models.Payload{Reallocation: &models.ReallocationPayload{
			FromStaffID:      from.unit.ID,
			ToStaffID:        to.unit.ID,
			FromDepartment:   to.unit.DepartmentID,
			TargetDepartment: from.unit.DepartmentID,
			FromWorkload:     from.score,
			ToWorkload:       to.score,
			LoadToMove:       load,
			SameSpecialty:    sameSpecialty,
		}}

		reason := fmt.Sprintf("%s workload %d, %s workload %d; move %d", from.unit.Name, from.score,
			to.unit.Name, to.score, load)

		plan.Create = append(plan.Create, g.newItem(
			models.ItemKindReallocation, []string{from.unit.ID, to.unit.ID}, from.unit.DepartmentID,
			priority, reason, payload, opts,
		))
	}
}

// pickCover orders candidates by specialty match, lowest workload, same shift
// window and id.
func (g *Generator) pickCover(
	from models.ResourceUnit,
	available []staffCandidate,
	index *openIndex,
	used map[string]bool,
) (staffCandidate, bool) {
	candidates := make([]staffCandidate, 0, len(available))

	for _, candidate := range available {
		if candidate.unit.ID == from.ID || used[candidate.unit.ID] {
			continue
		}

		if index.active(candidate.unit.ID, models.ItemKindReallocation) != nil {
			continue
		}

		if !g.canCover(from.DepartmentID, candidate.unit.DepartmentID) {
			continue
		}

		candidates = append(candidates, candidate)
	}

	if len(candidates) == 0 {
		return staffCandidate{}, false
	}

	specialty := from.Attributes.Specialty

	sort.Slice(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		aSpec := a.unit.Attributes.Specialty == specialty
		bSpec := b.unit.Attributes.Specialty == specialty

		if aSpec != bSpec {
			return aSpec
		}

		if a.score != b.score {
			return a.score < b.score
		}

		aShift := a.unit.SameShiftWindow(from)
		bShift := b.unit.SameShiftWindow(from)

		if aShift != bShift {
			return aShift
		}

		return a.unit.ID < b.unit.ID
	})

	return candidates[0], true
}

func (g *Generator) canCover(department, candidate string) bool {
	if department == candidate {
		return true
	}

	for _, compatible := range g.config.CompatibleDepartments[department] {
		if compatible == candidate {
			return true
		}
	}

	return false
}

// loadToMove is the smallest load that brings from below the overload
// threshold without pushing to over it. Staff with patient capacities move
// patients; otherwise the move is expressed in score points.
func (g *Generator) loadToMove(from, to staffCandidate) int {
	limit := g.thresholds.Overloaded

	if from.unit.Attributes.MaxPatients > 0 && to.unit.Attributes.MaxPatients > 0 {
		needed := 0
		for needed < from.unit.Attributes.CurrentPatients && g.scoreWithPatients(from.unit, -needed) >= limit {
			needed++
		}

		room := 0
		for room < needed && g.scoreWithPatients(to.unit, room+1) < limit {
			room++
		}

		return max(room, 1)
	}

	needed := from.score - (limit - 1)
	room := (limit - 1) - to.score

	return max(min(needed, room), 1)
}

func (g *Generator) scoreWithPatients(unit models.ResourceUnit, delta int) int {
	unit.Attributes.CurrentPatients += delta

	return evaluator.WorkloadScore(unit, g.thresholds)
}

// shiftAdjustments proposes one shift change per missing staff member in a
// department whose active staff is below the minimum for its bed occupancy.
func (g *Generator) shiftAdjustments(in Input, index *openIndex, opts Options, plan *Plan) {
	departments := make([]string, 0, len(g.config.StaffingRules))
	for department := range g.config.StaffingRules {
		departments = append(departments, department)
	}

	sort.Strings(departments)

	staff := sortedUnits(in.Units)
	used := make(map[string]bool)

	for _, department := range departments {
		occupancy := occupancyRate(in.Beds, department)
		required := requiredStaff(g.config.StaffingRules[department], occupancy)

		active := 0

		for _, unit := range staff {
			if unit.DepartmentID == department && unit.Status == models.UnitStatusActive && unit.OnShift(opts.Now) {
				active++
			}
		}

		missing := required - active - index.shifts[department]
		if missing <= 0 {
			continue
		}

		priority := staffingPriority(active, required)

		for range missing {
			item := g.proposeShift(department, staff, index, used, opts, priority, active, required, occupancy)
			if item == nil {
				plan.Alerts = append(plan.Alerts, Alert{
					Kind:         AlertCoverageGap,
					Domain:       DomainStaff,
					DepartmentID: department,
					Priority:     priority,
					Reason: fmt.Sprintf("%s has %d active staff, %d required at %.0f%% occupancy and no shift to adjust",
						department, active, required, occupancy*100),
				})

				break
			}

			plan.Create = append(plan.Create, item)
		}
	}
}

func (g *Generator) proposeShift(
	department string,
	staff []models.ResourceUnit,
	index *openIndex,
	used map[string]bool,
	opts Options,
	priority models.Priority,
	active, required int,
	occupancy float64,
) *models.WorkflowItem {
	now := opts.Now

	eligible := func(unit models.ResourceUnit) bool {
		return unit.DepartmentID == department && !used[unit.ID] &&
			unit.Status != models.UnitStatusOnLeave &&
			index.active(unit.ID, models.ItemKindShiftAdjustment) == nil
	}

	var (
		chosen *models.ResourceUnit
		mode   models.ShiftMode
	)

	// Most recently ended shift within the lookahead.
	for i := range staff {
		unit := staff[i]
		end := unit.Attributes.ShiftEnd

		if !eligible(unit) || end == nil || end.After(now) || now.Sub(*end) > g.config.ShiftLookahead {
			continue
		}

		if chosen == nil || end.After(*chosen.Attributes.ShiftEnd) {
			chosen = &staff[i]
			mode = models.ShiftModeExtend
		}
	}

	if chosen == nil {
		// Soonest upcoming shift within the lookahead.
		for i := range staff {
			unit := staff[i]
			start := unit.Attributes.ShiftStart

			if !eligible(unit) || start == nil || !start.After(now) || start.Sub(now) > g.config.ShiftLookahead {
				continue
			}

			if chosen == nil || start.Before(*chosen.Attributes.ShiftStart) {
				chosen = &staff[i]
				mode = models.ShiftModePullForward
			}
		}
	}

	if chosen == nil {
		return nil
	}

	used[chosen.ID] = true

	payload := &models.ShiftAdjustmentPayload{
		StaffID:           chosen.ID,
		DepartmentID:      department,
		Mode:              mode,
		CurrentShiftStart: chosen.Attributes.ShiftStart,
		CurrentShiftEnd:   chosen.Attributes.ShiftEnd,
		ActiveStaff:       active,
		RequiredStaff:     required,
		OccupancyRate:     occupancy,
	}

	var reason string

	switch mode {
	case models.ShiftModeExtend:
		end := now.Add(g.config.ShiftExtension)
		payload.ProposedShiftEnd = &end
		reason = fmt.Sprintf("extend %s shift until %s", chosen.Name, end.Format(time.Kitchen))
	case models.ShiftModePullForward:
		start := now
		payload.ProposedShiftStart = &start
		reason = fmt.Sprintf("pull %s shift forward from %s", chosen.Name, chosen.Attributes.ShiftStart.Format(time.Kitchen))
	}

	reason = fmt.Sprintf("%s has %d of %d required staff at %.0f%% occupancy; %s",
		department, active, required, occupancy*100, reason)

	return g.newItem(
		models.ItemKindShiftAdjustment, []string{chosen.ID}, department, priority, reason,
		models.Payload{ShiftAdjustment: payload}, opts,
	)
}

func occupancyRate(beds []models.ResourceUnit, department string) float64 {
	var total, occupied int

	for _, bed := range beds {
		if bed.DepartmentID != department {
			continue
		}

		total++

		if bed.Status == models.UnitStatusOccupied {
			occupied++
		}
	}

	if total == 0 {
		return 0
	}

	return float64(occupied) / float64(total)
}

// requiredStaff takes the highest minimum among rules whose occupancy threshold is met.
func requiredStaff(rules []StaffingRule, occupancy float64) int {
	required := 0

	for _, rule := range rules {
		if occupancy >= rule.MinOccupancyRate && rule.MinActiveStaff > required {
			required = rule.MinActiveStaff
		}
	}

	return required
}

func staffingPriority(active, required int) models.Priority {
	switch {
	case active == 0:
		return models.PriorityCritical
	case (required-active)*2 >= required:
		return models.PriorityHigh
	default:
		return models.PriorityMedium
	}
}
