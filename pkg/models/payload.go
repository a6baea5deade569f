package models

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ErrPayloadMismatch is returned when a payload variant does not match the item kind.
var ErrPayloadMismatch = errors.New("payload does not match item kind")

// Payload is the kind-discriminated parameter set of a WorkflowItem.
// Exactly one variant is set and it matches WorkflowItem.Kind.
type Payload struct {
	Reorder         *ReorderPayload         `json:"reorder,omitempty"`
	Reallocation    *ReallocationPayload    `json:"reallocation,omitempty"`
	ShiftAdjustment *ShiftAdjustmentPayload `json:"shift_adjustment,omitempty"`
	Transfer        *TransferPayload        `json:"transfer,omitempty"`
	PurchaseOrder   *PurchaseOrderPayload   `json:"purchase_order,omitempty"`
}

// ReorderPayload proposes restocking one supply unit.
type ReorderPayload struct {
	UnitID             string          `json:"unit_id"`
	ItemCode           string          `json:"item_code,omitempty"`
	CurrentValue       int             `json:"current_value"`
	ReorderPoint       int             `json:"reorder_point"`
	SuggestedQuantity  int             `json:"suggested_quantity"`
	UnitCost           decimal.Decimal `json:"unit_cost"`
	EstimatedCost      decimal.Decimal `json:"estimated_cost"`
	ProposedSupplierID string          `json:"proposed_supplier_id,omitempty"`
	PurchaseOrderID    string          `json:"purchase_order_id,omitempty"`
}

// ReallocationPayload moves excess load from an overloaded staff member to an available one.
// FromDepartment is the covering member's department before the move and
// TargetDepartment the overloaded member's, where the cover is assigned.
type ReallocationPayload struct {
	FromStaffID      string `json:"from_staff_id"`
	ToStaffID        string `json:"to_staff_id"`
	FromDepartment   string `json:"from_department"`
	TargetDepartment string `json:"target_department"`
	FromWorkload     int    `json:"from_workload"`
	ToWorkload       int    `json:"to_workload"`
	LoadToMove       int    `json:"load_to_move"`
	SameSpecialty    bool   `json:"same_specialty"`
}

// ShiftMode is the single kind of change a shift adjustment proposes.
type ShiftMode string

const (
	ShiftModeExtend      ShiftMode = "extend"
	ShiftModePullForward ShiftMode = "pull_forward"
)

// ShiftAdjustmentPayload proposes one shift change for one staff member.
type ShiftAdjustmentPayload struct {
	StaffID            string     `json:"staff_id"`
	DepartmentID       string     `json:"department_id"`
	Mode               ShiftMode  `json:"mode"`
	CurrentShiftStart  *time.Time `json:"current_shift_start,omitempty"`
	CurrentShiftEnd    *time.Time `json:"current_shift_end,omitempty"`
	ProposedShiftStart *time.Time `json:"proposed_shift_start,omitempty"`
	ProposedShiftEnd   *time.Time `json:"proposed_shift_end,omitempty"`
	ActiveStaff        int        `json:"active_staff"`
	RequiredStaff      int        `json:"required_staff"`
	OccupancyRate      float64    `json:"occupancy_rate"`
}

// TransferPayload moves supply stock between sibling locations, or dispatches
// a bed or piece of equipment to a department.
type TransferPayload struct {
	ResourceKind      ResourceKind `json:"resource_kind"`
	FromUnitID        string       `json:"from_unit_id,omitempty"`
	ToUnitID          string       `json:"to_unit_id,omitempty"`
	ItemCode          string       `json:"item_code,omitempty"`
	SuggestedQuantity int          `json:"suggested_quantity,omitempty"`
	UnitType          string       `json:"unit_type,omitempty"`
	TargetDepartment  string       `json:"target_department,omitempty"`
	MatchedUnitID     string       `json:"matched_unit_id,omitempty"`
	RequestedBy       string       `json:"requested_by,omitempty"`
}

// IsAssetRequest reports whether the transfer dispatches a whole bed or equipment unit.
func (t *TransferPayload) IsAssetRequest() bool {
	return t.ResourceKind.IsAsset()
}

// PurchaseOrderStage is the sub-state of a purchase order inside the item lifecycle.
type PurchaseOrderStage string

const (
	PurchaseOrderDraft     PurchaseOrderStage = "draft"
	PurchaseOrderSent      PurchaseOrderStage = "sent"
	PurchaseOrderDelivered PurchaseOrderStage = "delivered"
)

// PurchaseOrderLine is the summed quantity ordered for one supply unit.
type PurchaseOrderLine struct {
	UnitID     string          `json:"unit_id"`
	ItemCode   string          `json:"item_code,omitempty"`
	Quantity   int             `json:"quantity"`
	UnitCost   decimal.Decimal `json:"unit_cost"`
	ReorderIDs []string        `json:"reorder_ids"`
}

// PurchaseOrderPayload groups reorder lines for a single supplier.
type PurchaseOrderPayload struct {
	SupplierID  string              `json:"supplier_id"`
	Stage       PurchaseOrderStage  `json:"stage"`
	Lines       []PurchaseOrderLine `json:"lines"`
	TotalCost   decimal.Decimal     `json:"total_cost"`
	SentAt      *time.Time          `json:"sent_at,omitempty"`
	DeliveredAt *time.Time          `json:"delivered_at,omitempty"`
}

// AddLine sums quantity into the line for unitID, creating it when absent.
func (p *PurchaseOrderPayload) AddLine(unitID, itemCode string, quantity int, unitCost decimal.Decimal, reorderID string) {
	for i := range p.Lines {
		if p.Lines[i].UnitID == unitID {
			p.Lines[i].Quantity += quantity
			p.Lines[i].ReorderIDs = append(p.Lines[i].ReorderIDs, reorderID)
			p.recalculate()

			return
		}
	}

	p.Lines = append(p.Lines, PurchaseOrderLine{
		UnitID:     unitID,
		ItemCode:   itemCode,
		Quantity:   quantity,
		UnitCost:   unitCost,
		ReorderIDs: []string{reorderID},
	})
	p.recalculate()
}

// UnitIDs returns the unit ids covered by the order's lines.
func (p *PurchaseOrderPayload) UnitIDs() []string {
	ids := make([]string, 0, len(p.Lines))
	for _, line := range p.Lines {
		ids = append(ids, line.UnitID)
	}

	return ids
}

func (p *PurchaseOrderPayload) recalculate() {
	total := decimal.Zero
	for _, line := range p.Lines {
		total = total.Add(line.UnitCost.Mul(decimal.NewFromInt(int64(line.Quantity))))
	}

	p.TotalCost = total
}

// Kind returns the item kind of the variant that is set, or "" when none or several are.
func (p Payload) Kind() ItemKind {
	var (
		kind ItemKind
		set  int
	)

	if p.Reorder != nil {
		kind, set = ItemKindReorder, set+1
	}

	if p.Reallocation != nil {
		kind, set = ItemKindReallocation, set+1
	}

	if p.ShiftAdjustment != nil {
		kind, set = ItemKindShiftAdjustment, set+1
	}

	if p.Transfer != nil {
		kind, set = ItemKindTransfer, set+1
	}

	if p.PurchaseOrder != nil {
		kind, set = ItemKindPurchaseOrder, set+1
	}

	if set != 1 {
		return ""
	}

	return kind
}

// Validate checks that exactly the variant for kind is set.
func (p Payload) Validate(kind ItemKind) error {
	if got := p.Kind(); got != kind {
		return fmt.Errorf("%w: kind %q, payload %q", ErrPayloadMismatch, kind, got)
	}

	return nil
}

// EstimatedCost returns the monetary estimate of the payload, zero when not applicable.
func (p Payload) EstimatedCost() decimal.Decimal {
	switch {
	case p.Reorder != nil:
		return p.Reorder.EstimatedCost
	case p.PurchaseOrder != nil:
		return p.PurchaseOrder.TotalCost
	default:
		return decimal.Zero
	}
}

// Clone deep-copies the set variant.
func (p Payload) Clone() Payload {
	var clone Payload

	if p.Reorder != nil {
		reorder := *p.Reorder
		clone.Reorder = &reorder
	}

	if p.Reallocation != nil {
		reallocation := *p.Reallocation
		clone.Reallocation = &reallocation
	}

	if p.ShiftAdjustment != nil {
		shift := *p.ShiftAdjustment
		clone.ShiftAdjustment = &shift
	}

	if p.Transfer != nil {
		transfer := *p.Transfer
		clone.Transfer = &transfer
	}

	if p.PurchaseOrder != nil {
		order := *p.PurchaseOrder
		order.Lines = make([]PurchaseOrderLine, len(p.PurchaseOrder.Lines))

		for i, line := range p.PurchaseOrder.Lines {
			line.ReorderIDs = append([]string(nil), line.ReorderIDs...)
			order.Lines[i] = line
		}

		clone.PurchaseOrder = &order
	}

	return clone
}
