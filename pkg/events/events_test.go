package events

import (
	"testing"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/stretchr/testify/assert"
)

func testItem(status models.ItemStatus) *models.WorkflowItem {
	now := time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC)

	return &models.WorkflowItem{
		ID:           "item-1",
		Kind:         models.ItemKindReorder,
		DepartmentID: "icu",
		Priority:     models.PriorityHigh,
		Status:       status,
		Reason:       "stock low",
		CreatedAt:    now,
		UpdatedAt:    now.Add(time.Minute),
		Version:      2,
	}
}

func TestItemCreated(t *testing.T) {
	event := ItemCreated(testItem(models.ItemStatusPending))

	assert.Equal(t, "item-1:pending", event.ID)
	assert.Equal(t, models.EventItemCreated, event.Type)
	assert.Equal(t, models.ItemKindReorder, event.Kind)
	assert.Equal(t, "stock low", event.Reason)
	assert.Equal(t, time.Date(2024, 3, 1, 8, 0, 0, 0, time.UTC), event.Timestamp)
}

func TestItemTransitioned_StableID(t *testing.T) {
	item := testItem(models.ItemStatusApproved)

	first := ItemTransitioned(item, models.ItemStatusPending, "nurse-1")
	second := ItemTransitioned(item, models.ItemStatusPending, "nurse-1")

	assert.Equal(t, "item-1:approved", first.ID)
	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, models.ItemStatusPending, first.FromStatus)
	assert.Equal(t, "nurse-1", first.Actor)
}

func TestReprioritized_IDIncludesVersion(t *testing.T) {
	event := Reprioritized(testItem(models.ItemStatusPending))

	assert.Equal(t, "item-1:high:v2", event.ID)
	assert.Equal(t, models.EventItemReprioritized, event.Type)
}

func TestCycleCompleted(t *testing.T) {
	at := time.Now()

	event := CycleCompleted("supply", true, 2, 1, 0, at)

	assert.Equal(t, models.EventCycleCompleted, event.Type)
	assert.Equal(t, "supply", event.Domain)
	assert.Equal(t, "forced; created 2, updated 1, alerts 0", event.Reason)
	assert.NotEmpty(t, event.ID)
}

func TestCoverageGapAndForceRequested(t *testing.T) {
	at := time.Now()

	gap := CoverageGap("staff", "s-1", "icu", models.PriorityCritical, "nobody free", at)
	assert.Equal(t, models.EventCoverageGap, gap.Type)
	assert.Equal(t, "s-1", gap.UnitID)

	force := ForceRequested("bed", "charge-nurse", "mass casualty", at)
	assert.Equal(t, models.EventForceRequested, force.Type)
	assert.Equal(t, "mass casualty", force.Reason)
	assert.NotEqual(t, gap.ID, force.ID)
}
