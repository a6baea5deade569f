package workflow

import (
	"fmt"
	"time"

	"github.com/dukex/wardflow/pkg/models"
)

// prepare fills defaults of a new item and validates its payload.
func (m *Machine) prepare(item *models.WorkflowItem) error {
	if !item.Kind.Valid() {
		return fmt.Errorf("%w: unknown kind %q", ErrInvalidItem, item.Kind)
	}

	err := item.Payload.Validate(item.Kind)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidItem, err)
	}

	err = validatePayload(item.Payload)
	if err != nil {
		return err
	}

	if item.Status != "" && item.Status != models.ItemStatusPending {
		return fmt.Errorf("%w: new items start pending, got %q", ErrInvalidItem, item.Status)
	}

	now := m.now()

	if item.ExpiresAt != nil {
		if !item.Kind.Expires() {
			return fmt.Errorf("%w: %s items do not expire", ErrInvalidItem, item.Kind)
		}

		if !item.ExpiresAt.After(now) {
			return fmt.Errorf("%w: expires_at %s is not in the future", ErrInvalidItem, item.ExpiresAt.Format(time.RFC3339))
		}
	}

	if item.Priority == "" {
		item.Priority = models.PriorityMedium
	}

	if !item.Priority.Valid() {
		return fmt.Errorf("%w: unknown priority %q", ErrInvalidItem, item.Priority)
	}

	if item.ID == "" {
		item.ID = m.newID()
	}

	if item.Origin == "" {
		item.Origin = models.OriginManual
	}

	if len(item.SubjectRefs) == 0 {
		item.SubjectRefs = subjectsOf(item.Payload)
	}

	if item.DepartmentID == "" {
		item.DepartmentID = departmentOf(item.Payload)
	}

	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}

	item.UpdatedAt = item.CreatedAt
	item.Status = models.ItemStatusPending
	item.Version = 0

	if item.Kind.Expires() && item.ExpiresAt == nil && m.config.ManualTTL > 0 {
		expires := item.CreatedAt.Add(m.config.ManualTTL)
		item.ExpiresAt = &expires
	}

	return nil
}

func validatePayload(payload models.Payload) error {
	switch {
	case payload.Reorder != nil:
		p := payload.Reorder
		if p.UnitID == "" || p.SuggestedQuantity <= 0 {
			return fmt.Errorf("%w: reorder needs unit_id and a positive suggested_quantity", ErrInvalidItem)
		}
	case payload.Reallocation != nil:
		p := payload.Reallocation
		if p.FromStaffID == "" || p.ToStaffID == "" || p.FromStaffID == p.ToStaffID {
			return fmt.Errorf("%w: reallocation needs two distinct staff members", ErrInvalidItem)
		}

		if p.LoadToMove <= 0 {
			return fmt.Errorf("%w: reallocation needs a positive load_to_move", ErrInvalidItem)
		}
	case payload.ShiftAdjustment != nil:
		p := payload.ShiftAdjustment
		if p.StaffID == "" {
			return fmt.Errorf("%w: shift adjustment needs staff_id", ErrInvalidItem)
		}

		switch p.Mode {
		case models.ShiftModeExtend:
			if p.ProposedShiftEnd == nil || p.ProposedShiftStart != nil {
				return fmt.Errorf("%w: extend proposes a new shift end only", ErrInvalidItem)
			}
		case models.ShiftModePullForward:
			if p.ProposedShiftStart == nil || p.ProposedShiftEnd != nil {
				return fmt.Errorf("%w: pull_forward proposes a new shift start only", ErrInvalidItem)
			}
		default:
			return fmt.Errorf("%w: unknown shift mode %q", ErrInvalidItem, p.Mode)
		}
	case payload.Transfer != nil:
		return validateTransfer(payload.Transfer)
	case payload.PurchaseOrder != nil:
		p := payload.PurchaseOrder
		if p.SupplierID == "" || len(p.Lines) == 0 {
			return fmt.Errorf("%w: purchase order needs supplier_id and lines", ErrInvalidItem)
		}

		if p.Stage == "" {
			p.Stage = models.PurchaseOrderDraft
		}

		if p.Stage != models.PurchaseOrderDraft {
			return fmt.Errorf("%w: new purchase orders start as drafts", ErrInvalidItem)
		}
	}

	return nil
}

func validateTransfer(p *models.TransferPayload) error {
	switch {
	case p.ResourceKind == models.ResourceKindSupply:
		if p.FromUnitID == "" || p.ToUnitID == "" || p.FromUnitID == p.ToUnitID {
			return fmt.Errorf("%w: supply transfer needs distinct from_unit_id and to_unit_id", ErrInvalidItem)
		}

		if p.SuggestedQuantity <= 0 {
			return fmt.Errorf("%w: supply transfer needs a positive suggested_quantity", ErrInvalidItem)
		}
	case p.ResourceKind.IsAsset():
		if p.UnitType == "" || p.TargetDepartment == "" {
			return fmt.Errorf("%w: %s request needs unit_type and target_department", ErrInvalidItem, p.ResourceKind)
		}
	default:
		return fmt.Errorf("%w: transfers move supply, bed or equipment, not %q", ErrInvalidItem, p.ResourceKind)
	}

	return nil
}

func subjectsOf(payload models.Payload) []string {
	switch {
	case payload.Reorder != nil:
		return []string{payload.Reorder.UnitID}
	case payload.Reallocation != nil:
		return []string{payload.Reallocation.FromStaffID, payload.Reallocation.ToStaffID}
	case payload.ShiftAdjustment != nil:
		return []string{payload.ShiftAdjustment.StaffID}
	case payload.Transfer != nil:
		t := payload.Transfer
		if t.IsAssetRequest() {
			if t.MatchedUnitID != "" {
				return []string{t.MatchedUnitID}
			}

			return []string{}
		}

		return []string{t.FromUnitID, t.ToUnitID}
	case payload.PurchaseOrder != nil:
		return payload.PurchaseOrder.UnitIDs()
	default:
		return []string{}
	}
}

func departmentOf(payload models.Payload) string {
	switch {
	case payload.Reallocation != nil:
		return payload.Reallocation.TargetDepartment
	case payload.ShiftAdjustment != nil:
		return payload.ShiftAdjustment.DepartmentID
	case payload.Transfer != nil:
		return payload.Transfer.TargetDepartment
	default:
		return ""
	}
}
