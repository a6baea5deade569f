package models

import (
	"time"
)

// EventType names a notification announced on the event bus.
type EventType string

const (
	EventItemCreated       EventType = "item.created"
	EventItemTransitioned  EventType = "item.transitioned"
	EventItemReprioritized EventType = "item.reprioritized"
	EventCoverageGap       EventType = "alert.coverage_gap"
	EventCycleCompleted    EventType = "cycle.completed"
	EventForceRequested    EventType = "cycle.force_requested"
)

// WorkflowEvent is one entry of the append-only audit log and the message
// carried by the event bus. ID is stable per state so consumers can dedupe.
type WorkflowEvent struct {
	ID           string     `json:"id"`
	Type         EventType  `json:"event"`
	ItemID       string     `json:"item_id,omitempty"`
	Kind         ItemKind   `json:"kind,omitempty"`
	Status       ItemStatus `json:"status,omitempty"`
	FromStatus   ItemStatus `json:"from_status,omitempty"`
	Priority     Priority   `json:"priority,omitempty"`
	Domain       string     `json:"domain,omitempty"`
	DepartmentID string     `json:"department_id,omitempty"`
	UnitID       string     `json:"unit_id,omitempty"`
	Actor        string     `json:"actor,omitempty"`
	Reason       string     `json:"reason,omitempty"`
	Timestamp    time.Time  `json:"timestamp"`
}
