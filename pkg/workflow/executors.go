package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/models"
)

// run applies an approved item to the registry. It returns the status the item
// settles in: completed, or executing for a purchase order awaiting delivery.
func (m *Machine) run(ctx context.Context, item *models.WorkflowItem, now time.Time) (models.ItemStatus, error) {
	var err error

	switch item.Kind {
	case models.ItemKindReorder:
		err = m.attachToPurchaseOrder(ctx, item, now)
	case models.ItemKindPurchaseOrder:
		err = sendPurchaseOrder(item, now)
		if err == nil {
			return models.ItemStatusExecuting, nil
		}
	case models.ItemKindReallocation:
		err = m.reallocate(ctx, item, now)
	case models.ItemKindShiftAdjustment:
		err = m.adjustShift(ctx, item, now)
	case models.ItemKindTransfer:
		if item.Payload.Transfer.IsAssetRequest() {
			err = m.dispatchAsset(ctx, item, now)
		} else {
			err = m.transferStock(ctx, item, now)
		}
	default:
		err = fmt.Errorf("no executor for kind %q", item.Kind)
	}

	if err != nil {
		return models.ItemStatusFailed, fmt.Errorf("%w: %w", ErrExecutorFailure, err)
	}

	return models.ItemStatusCompleted, nil
}

// attachToPurchaseOrder adds the reorder as a line of the selected supplier's
// draft order, creating the draft when the supplier has none. Quantities for
// the same unit are summed. The caller holds the supplier key.
func (m *Machine) attachToPurchaseOrder(ctx context.Context, reorder *models.WorkflowItem, now time.Time) error {
	line := reorder.Payload.Reorder

	supplier := reorder.SelectionRef
	if supplier == "" {
		supplier = line.ProposedSupplierID
	}

	if supplier == "" {
		return fmt.Errorf("no supplier selected for unit %s", line.UnitID)
	}

	orders, err := m.items.List(ctx, models.ItemFilter{Kind: models.ItemKindPurchaseOrder, ActiveOnly: true})
	if err != nil {
		return err
	}

	var draft *models.WorkflowItem

	for _, order := range orders {
		payload := order.Payload.PurchaseOrder
		if payload == nil {
			continue
		}

		if order.Status == models.ItemStatusPending && payload.Stage == models.PurchaseOrderDraft &&
			payload.SupplierID == supplier {
			draft = order

			continue
		}

		if order.HasSubject(line.UnitID) {
			return fmt.Errorf("unit %s is already on order in %s", line.UnitID, order.ID)
		}
	}

	if draft == nil {
		order := &models.WorkflowItem{
			ID:           m.newID(),
			Kind:         models.ItemKindPurchaseOrder,
			DepartmentID: reorder.DepartmentID,
			Priority:     reorder.Priority,
			Payload: models.Payload{PurchaseOrder: &models.PurchaseOrderPayload{
				SupplierID: supplier,
				Stage:      models.PurchaseOrderDraft,
			}},
			Status:    models.ItemStatusPending,
			Reason:    "purchase order for supplier " + supplier,
			Origin:    models.OriginExecutor,
			CreatedAt: now,
			UpdatedAt: now,
		}

		order.Payload.PurchaseOrder.AddLine(line.UnitID, line.ItemCode, line.SuggestedQuantity, line.UnitCost, reorder.ID)
		order.SubjectRefs = order.Payload.PurchaseOrder.UnitIDs()

		err = m.items.Create(ctx, order)
		if err != nil {
			return err
		}

		metrics.ItemCreated(string(order.Kind), string(order.Origin))
		m.record(ctx, events.ItemCreated(order))

		line.PurchaseOrderID = order.ID

		return nil
	}

	previous := draft.Priority

	draft.Payload.PurchaseOrder.AddLine(line.UnitID, line.ItemCode, line.SuggestedQuantity, line.UnitCost, reorder.ID)
	draft.SubjectRefs = draft.Payload.PurchaseOrder.UnitIDs()
	draft.Priority = models.MaxPriority(draft.Priority, reorder.Priority)
	draft.UpdatedAt = now

	err = m.items.Update(ctx, draft)
	if err != nil {
		return conflict("attach to "+draft.ID, err)
	}

	if draft.Priority != previous {
		m.record(ctx, events.Reprioritized(draft))
	}

	line.PurchaseOrderID = draft.ID

	return nil
}

func sendPurchaseOrder(item *models.WorkflowItem, now time.Time) error {
	order := item.Payload.PurchaseOrder
	if len(order.Lines) == 0 {
		return fmt.Errorf("purchase order %s has no lines", item.ID)
	}

	order.Stage = models.PurchaseOrderSent
	order.SentAt = &now

	return nil
}

// receiveStock increments every ordered unit in one atomic registry write.
func (m *Machine) receiveStock(ctx context.Context, order *models.PurchaseOrderPayload, now time.Time) error {
	units := make([]models.ResourceUnit, 0, len(order.Lines))

	for _, line := range order.Lines {
		unit, err := m.registry.Unit(ctx, models.ResourceKindSupply, line.UnitID)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrExecutorFailure, err)
		}

		unit.CurrentValue += line.Quantity
		unit.UpdatedAt = now

		if unit.Bounds.Max > 0 && unit.CurrentValue > unit.Bounds.Max {
			m.logger.WarnContext(ctx, "Delivery stocks unit above capacity",
				"unit_id", unit.ID, "stock", unit.CurrentValue, "max", unit.Bounds.Max)
		}
		units = append(units, unit)
	}

	err := m.registry.Apply(ctx, units...)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrExecutorFailure, err)
	}

	return nil
}

// reallocate moves patients between staff members that track patient counts,
// and workload points otherwise. A cover from another department is assigned
// to the target department in the same write.
func (m *Machine) reallocate(ctx context.Context, item *models.WorkflowItem, now time.Time) error {
	p := item.Payload.Reallocation

	from, err := m.registry.Unit(ctx, models.ResourceKindStaff, p.FromStaffID)
	if err != nil {
		return err
	}

	to, err := m.registry.Unit(ctx, models.ResourceKindStaff, p.ToStaffID)
	if err != nil {
		return err
	}

	if to.Status != models.UnitStatusActive {
		return fmt.Errorf("%s is %s", to.ID, to.Status)
	}

	if from.Attributes.MaxPatients > 0 && to.Attributes.MaxPatients > 0 {
		load := min(p.LoadToMove, from.Attributes.CurrentPatients)
		if load <= 0 {
			return fmt.Errorf("%s has no patients to move", from.ID)
		}

		from.Attributes.CurrentPatients -= load
		to.Attributes.CurrentPatients += load
	} else {
		load := min(p.LoadToMove, from.CurrentValue)
		if load <= 0 {
			return fmt.Errorf("%s has no workload to move", from.ID)
		}

		from.CurrentValue -= load
		to.CurrentValue = min(to.CurrentValue+load, 100)
	}

	if p.TargetDepartment != "" && to.DepartmentID != p.TargetDepartment {
		to.DepartmentID = p.TargetDepartment
	}

	from.UpdatedAt = now
	to.UpdatedAt = now

	return m.registry.Apply(ctx, from, to)
}

func (m *Machine) adjustShift(ctx context.Context, item *models.WorkflowItem, now time.Time) error {
	p := item.Payload.ShiftAdjustment

	unit, err := m.registry.Unit(ctx, models.ResourceKindStaff, p.StaffID)
	if err != nil {
		return err
	}

	if unit.Status == models.UnitStatusOnLeave {
		return fmt.Errorf("%s is on leave", unit.ID)
	}

	if p.ProposedShiftStart != nil {
		start := *p.ProposedShiftStart
		unit.Attributes.ShiftStart = &start
	}

	if p.ProposedShiftEnd != nil {
		end := *p.ProposedShiftEnd
		unit.Attributes.ShiftEnd = &end
	}

	unit.Status = models.UnitStatusActive
	unit.UpdatedAt = now

	return m.registry.Apply(ctx, unit)
}

// transferStock decrements the donor, then increments the receiver. When the
// second write fails the donor is restored.
func (m *Machine) transferStock(ctx context.Context, item *models.WorkflowItem, now time.Time) error {
	p := item.Payload.Transfer

	from, err := m.registry.Unit(ctx, models.ResourceKindSupply, p.FromUnitID)
	if err != nil {
		return err
	}

	to, err := m.registry.Unit(ctx, models.ResourceKindSupply, p.ToUnitID)
	if err != nil {
		return err
	}

	if from.CurrentValue < p.SuggestedQuantity {
		return fmt.Errorf("%s holds %d, transfer needs %d", from.ID, from.CurrentValue, p.SuggestedQuantity)
	}

	if to.Bounds.Max > 0 && to.CurrentValue+p.SuggestedQuantity > to.Bounds.Max {
		return fmt.Errorf("%w: %s holds %d of %d, transfer brings %d",
			ErrInsufficientCapacity, to.ID, to.CurrentValue, to.Bounds.Max, p.SuggestedQuantity)
	}

	original := from.Clone()

	from.CurrentValue -= p.SuggestedQuantity
	from.UpdatedAt = now

	err = m.registry.Apply(ctx, from)
	if err != nil {
		return err
	}

	to.CurrentValue += p.SuggestedQuantity
	to.UpdatedAt = now

	err = m.registry.Apply(ctx, to)
	if err == nil {
		return nil
	}

	restoreErr := m.registry.Apply(ctx, original)
	if restoreErr != nil {
		m.logger.ErrorContext(ctx, "Failed to restore transfer source",
			"item_id", item.ID, "unit_id", original.ID, "error", restoreErr)

		return fmt.Errorf("increment %s: %w; restore %s: %w", to.ID, err, original.ID, restoreErr)
	}

	return fmt.Errorf("increment %s: %w (source restored)", to.ID, err)
}

// dispatchAsset reserves the matched bed or equipment unit for the requesting department.
func (m *Machine) dispatchAsset(ctx context.Context, item *models.WorkflowItem, now time.Time) error {
	p := item.Payload.Transfer

	unit, err := m.registry.Unit(ctx, p.ResourceKind, p.MatchedUnitID)
	if err != nil {
		return err
	}

	if unit.Status != models.UnitStatusAvailable {
		return fmt.Errorf("%s %s is %s", unit.Attributes.UnitType, unit.ID, unit.Status)
	}

	unit.DepartmentID = p.TargetDepartment
	unit.Status = models.UnitStatusReserved
	unit.UpdatedAt = now

	return m.registry.Apply(ctx, unit)
}
