package models

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortByPriority(t *testing.T) {
	base := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	items := []*WorkflowItem{
		{ID: "a", Priority: PriorityLow, CreatedAt: base},
		{ID: "b", Priority: PriorityCritical, CreatedAt: base.Add(2 * time.Minute)},
		{ID: "c", Priority: PriorityHigh, CreatedAt: base},
		{ID: "d", Priority: PriorityCritical, CreatedAt: base.Add(time.Minute)},
		{ID: "e", Priority: PriorityMedium, CreatedAt: base},
	}

	SortByPriority(items)

	ids := make([]string, 0, len(items))
	for _, item := range items {
		ids = append(ids, item.ID)
	}

	assert.Equal(t, []string{"d", "b", "c", "e", "a"}, ids)

	for i := 1; i < len(items); i++ {
		assert.GreaterOrEqual(t, items[i-1].Priority.Rank(), items[i].Priority.Rank())
	}
}

func TestPriority_Elevate(t *testing.T) {
	tests := []struct {
		in   Priority
		want Priority
	}{
		{PriorityLow, PriorityMedium},
		{PriorityMedium, PriorityHigh},
		{PriorityHigh, PriorityCritical},
		{PriorityCritical, PriorityCritical},
	}

	for _, tt := range tests {
		t.Run(string(tt.in), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.in.Elevate())
		})
	}
}

func TestItemStatus_Active(t *testing.T) {
	assert.True(t, ItemStatusPending.Active())
	assert.True(t, ItemStatusApproved.Active())
	assert.True(t, ItemStatusExecuting.Active())
	assert.False(t, ItemStatusCompleted.Active())
	assert.False(t, ItemStatusExpired.Active())
	assert.True(t, ItemStatusRejected.Terminal())
}

func TestPayload_Validate(t *testing.T) {
	payload := Payload{Reorder: &ReorderPayload{UnitID: "gauze-ward-a"}}

	require.NoError(t, payload.Validate(ItemKindReorder))
	require.ErrorIs(t, payload.Validate(ItemKindTransfer), ErrPayloadMismatch)

	both := Payload{Reorder: &ReorderPayload{}, Transfer: &TransferPayload{}}
	assert.Equal(t, ItemKind(""), both.Kind())
	require.ErrorIs(t, both.Validate(ItemKindReorder), ErrPayloadMismatch)
}

func TestPurchaseOrderPayload_AddLine(t *testing.T) {
	order := &PurchaseOrderPayload{SupplierID: "medline", Stage: PurchaseOrderDraft}

	order.AddLine("gauze-ward-a", "GZ-10", 40, decimal.RequireFromString("1.25"), "r1")
	order.AddLine("saline-ward-a", "NS-500", 10, decimal.RequireFromString("3.00"), "r2")
	order.AddLine("gauze-ward-a", "GZ-10", 20, decimal.RequireFromString("1.25"), "r3")

	require.Len(t, order.Lines, 2)
	assert.Equal(t, 60, order.Lines[0].Quantity)
	assert.Equal(t, []string{"r1", "r3"}, order.Lines[0].ReorderIDs)
	assert.True(t, order.TotalCost.Equal(decimal.RequireFromString("105")), order.TotalCost.String())
	assert.Equal(t, []string{"gauze-ward-a", "saline-ward-a"}, order.UnitIDs())
}

func TestWorkflowItem_IsExpired(t *testing.T) {
	now := time.Now().UTC()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	assert.True(t, (&WorkflowItem{Status: ItemStatusPending, ExpiresAt: &past}).IsExpired(now))
	assert.False(t, (&WorkflowItem{Status: ItemStatusPending, ExpiresAt: &future}).IsExpired(now))
	assert.False(t, (&WorkflowItem{Status: ItemStatusPending}).IsExpired(now))
	assert.False(t, (&WorkflowItem{Status: ItemStatusApproved, ExpiresAt: &past}).IsExpired(now))
}

func TestWorkflowItem_CloneIsDeep(t *testing.T) {
	item := &WorkflowItem{
		ID:          "po-1",
		Kind:        ItemKindPurchaseOrder,
		SubjectRefs: []string{"u1"},
		Payload: Payload{PurchaseOrder: &PurchaseOrderPayload{
			Lines: []PurchaseOrderLine{{UnitID: "u1", Quantity: 5, ReorderIDs: []string{"r1"}}},
		}},
	}

	clone := item.Clone()
	clone.SubjectRefs[0] = "u2"
	clone.Payload.PurchaseOrder.Lines[0].Quantity = 9
	clone.Payload.PurchaseOrder.Lines[0].ReorderIDs[0] = "r9"

	assert.Equal(t, "u1", item.SubjectRefs[0])
	assert.Equal(t, 5, item.Payload.PurchaseOrder.Lines[0].Quantity)
	assert.Equal(t, "r1", item.Payload.PurchaseOrder.Lines[0].ReorderIDs[0])
}
