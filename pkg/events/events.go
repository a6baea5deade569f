// Package events defines the workflow notifications announced on the event bus
// and the stable ids consumers dedupe on.
package events

import (
	"fmt"
	"time"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/google/uuid"
)

// Topic carries workflow item and alert events.
const Topic = "wardflow.events"

// ControlTopic carries cross-process cycle requests.
const ControlTopic = "wardflow.cycle.control"

const EventMetadataKey = "key"
const EventTypeMetadataKey = "event_type"
const EventIDMetadataKey = "event_id"

// ItemCreated announces a new pending item.
func ItemCreated(item *models.WorkflowItem) models.WorkflowEvent {
	event := itemEvent(models.EventItemCreated, item)
	event.ID = fmt.Sprintf("%s:%s", item.ID, item.Status)
	event.Reason = item.Reason
	event.Timestamp = item.CreatedAt

	return event
}

// ItemTransitioned announces an item reaching a new status. The id is stable
// per (item, status) so redelivered notifications dedupe.
func ItemTransitioned(item *models.WorkflowItem, from models.ItemStatus, actor string) models.WorkflowEvent {
	event := itemEvent(models.EventItemTransitioned, item)
	event.ID = fmt.Sprintf("%s:%s", item.ID, item.Status)
	event.FromStatus = from
	event.Actor = actor
	event.Reason = item.FailureReason

	return event
}

// Reprioritized announces a pending item whose priority changed.
func Reprioritized(item *models.WorkflowItem) models.WorkflowEvent {
	event := itemEvent(models.EventItemReprioritized, item)
	event.ID = fmt.Sprintf("%s:%s:v%d", item.ID, item.Priority, item.Version)

	return event
}

// CoverageGap announces a breach that produced no item.
func CoverageGap(domain, unitID, departmentID string, priority models.Priority, reason string, at time.Time) models.WorkflowEvent {
	return models.WorkflowEvent{
		ID:           uuid.NewString(),
		Type:         models.EventCoverageGap,
		Priority:     priority,
		Domain:       domain,
		DepartmentID: departmentID,
		UnitID:       unitID,
		Reason:       reason,
		Timestamp:    at,
	}
}

// CycleCompleted reports the outcome of one domain cycle.
func CycleCompleted(domain string, forced bool, created, updated, alerts int, at time.Time) models.WorkflowEvent {
	reason := fmt.Sprintf("created %d, updated %d, alerts %d", created, updated, alerts)
	if forced {
		reason = "forced; " + reason
	}

	return models.WorkflowEvent{
		ID:        uuid.NewString(),
		Type:      models.EventCycleCompleted,
		Domain:    domain,
		Reason:    reason,
		Timestamp: at,
	}
}

// ForceRequested asks whichever process runs the scheduler to force a cycle.
func ForceRequested(domain, actor, reason string, at time.Time) models.WorkflowEvent {
	return models.WorkflowEvent{
		ID:        uuid.NewString(),
		Type:      models.EventForceRequested,
		Domain:    domain,
		Actor:     actor,
		Reason:    reason,
		Timestamp: at,
	}
}

func itemEvent(eventType models.EventType, item *models.WorkflowItem) models.WorkflowEvent {
	return models.WorkflowEvent{
		Type:         eventType,
		ItemID:       item.ID,
		Kind:         item.Kind,
		Status:       item.Status,
		Priority:     item.Priority,
		DepartmentID: item.DepartmentID,
		Timestamp:    item.UpdatedAt,
	}
}
