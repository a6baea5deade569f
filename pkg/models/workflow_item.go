package models

import (
	"time"
)

// ItemKind discriminates WorkflowItems and their payload variant.
type ItemKind string

const (
	ItemKindReorder         ItemKind = "reorder"
	ItemKindReallocation    ItemKind = "reallocation"
	ItemKindShiftAdjustment ItemKind = "shift_adjustment"
	ItemKindTransfer        ItemKind = "transfer"
	ItemKindPurchaseOrder   ItemKind = "purchase_order"
)

// ItemKinds lists every item kind.
var ItemKinds = []ItemKind{
	ItemKindReorder,
	ItemKindReallocation,
	ItemKindShiftAdjustment,
	ItemKindTransfer,
	ItemKindPurchaseOrder,
}

// Valid reports whether k is a known item kind.
func (k ItemKind) Valid() bool {
	for _, candidate := range ItemKinds {
		if candidate == k {
			return true
		}
	}

	return false
}

// Expires reports whether items of this kind carry a time-to-live.
func (k ItemKind) Expires() bool {
	return k == ItemKindReallocation || k == ItemKindShiftAdjustment
}

// ItemStatus is a WorkflowItem lifecycle state.
type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "pending"
	ItemStatusApproved  ItemStatus = "approved"
	ItemStatusRejected  ItemStatus = "rejected"
	ItemStatusExecuting ItemStatus = "executing"
	ItemStatusCompleted ItemStatus = "completed"
	ItemStatusFailed    ItemStatus = "failed"
	ItemStatusExpired   ItemStatus = "expired"
)

// Valid reports whether s is a known status.
func (s ItemStatus) Valid() bool {
	switch s {
	case ItemStatusPending, ItemStatusApproved, ItemStatusRejected, ItemStatusExecuting,
		ItemStatusCompleted, ItemStatusFailed, ItemStatusExpired:
		return true
	default:
		return false
	}
}

// Active reports whether the status still holds a claim on its subjects.
func (s ItemStatus) Active() bool {
	return s == ItemStatusPending || s == ItemStatusApproved || s == ItemStatusExecuting
}

// Terminal reports whether no further transition is possible.
func (s ItemStatus) Terminal() bool {
	return s == ItemStatusRejected || s == ItemStatusCompleted || s == ItemStatusFailed || s == ItemStatusExpired
}

// ItemOrigin records what produced a WorkflowItem.
type ItemOrigin string

const (
	OriginCycle       ItemOrigin = "cycle"
	OriginForcedCycle ItemOrigin = "forced_cycle"
	OriginManual      ItemOrigin = "manual"
	OriginExecutor    ItemOrigin = "executor"
)

// WorkflowItem is the unified approval-governed request: reorder, reallocation,
// shift adjustment, transfer or purchase order.
type WorkflowItem struct {
	ID            string     `json:"id"`
	Kind          ItemKind   `json:"kind"`
	SubjectRefs   []string   `json:"subject_refs"`
	DepartmentID  string     `json:"department_id,omitempty"`
	Priority      Priority   `json:"priority"`
	Payload       Payload    `json:"payload"`
	Status        ItemStatus `json:"status"`
	Reason        string     `json:"reason"`
	Origin        ItemOrigin `json:"origin"`
	SelectionRef  string     `json:"selection_ref,omitempty"`
	FailureReason string     `json:"failure_reason,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	UpdatedAt     time.Time  `json:"updated_at"`
	ExpiresAt     *time.Time `json:"expires_at,omitempty"`
	ResolvedBy    string     `json:"resolved_by,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	Version       int        `json:"version"`
}

// IsExpired reports whether a pending item has outlived its TTL at now.
func (w *WorkflowItem) IsExpired(now time.Time) bool {
	return w.Status == ItemStatusPending && w.ExpiresAt != nil && !now.Before(*w.ExpiresAt)
}

// HasSubject reports whether unitID is one of the item's subjects.
func (w *WorkflowItem) HasSubject(unitID string) bool {
	for _, ref := range w.SubjectRefs {
		if ref == unitID {
			return true
		}
	}

	return false
}

// Clone returns a deep copy of the item.
func (w *WorkflowItem) Clone() *WorkflowItem {
	clone := *w
	clone.SubjectRefs = append([]string(nil), w.SubjectRefs...)
	clone.Payload = w.Payload.Clone()

	if w.ExpiresAt != nil {
		expires := *w.ExpiresAt
		clone.ExpiresAt = &expires
	}

	if w.ResolvedAt != nil {
		resolved := *w.ResolvedAt
		clone.ResolvedAt = &resolved
	}

	return &clone
}

// ItemFilter narrows item listings. Zero values match everything.
type ItemFilter struct {
	Kind         ItemKind
	Status       ItemStatus
	DepartmentID string
	SubjectRef   string
	ActiveOnly   bool
}

// Matches reports whether item satisfies the filter.
func (f ItemFilter) Matches(item *WorkflowItem) bool {
	if f.Kind != "" && item.Kind != f.Kind {
		return false
	}

	if f.Status != "" && item.Status != f.Status {
		return false
	}

	if f.DepartmentID != "" && item.DepartmentID != f.DepartmentID {
		return false
	}

	if f.SubjectRef != "" && !item.HasSubject(f.SubjectRef) {
		return false
	}

	if f.ActiveOnly && !item.Status.Active() {
		return false
	}

	return true
}
