// Package web provides HTTP request and response types for the workflow item API.
package web

import (
	"encoding/json"
	"time"
)

// CreateWorkflowItemRequest represents the request body for submitting a manual item.
// Payload holds the single variant matching Kind, e.g. {"transfer": {...}}.
type CreateWorkflowItemRequest struct {
	Kind         string          `json:"kind"                    validate:"required,oneof=reorder reallocation shift_adjustment transfer purchase_order"`
	Priority     string          `json:"priority,omitempty"      validate:"omitempty,oneof=low medium high critical"`
	DepartmentID string          `json:"department_id,omitempty"`
	Reason       string          `json:"reason"                  validate:"required,min=3"`
	ExpiresAt    *time.Time      `json:"expires_at,omitempty"`
	Payload      json.RawMessage `json:"payload"                 validate:"required"`
}

// ApproveRequest represents the request body for approving a pending item.
type ApproveRequest struct {
	Actor        string `json:"actor"                   validate:"required"`
	SelectionRef string `json:"selection_ref,omitempty"`
	Reason       string `json:"reason,omitempty"`
}

// RejectRequest represents the request body for rejecting a pending item.
type RejectRequest struct {
	Actor  string `json:"actor"            validate:"required"`
	Reason string `json:"reason,omitempty"`
}

// DeliverRequest represents the request body for recording a purchase order delivery.
type DeliverRequest struct {
	Actor string `json:"actor" validate:"required"`
}

// ForceCycleRequest represents the optional request body of a forced cycle.
type ForceCycleRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ForceCycleResponse reports whether the forced cycle was scheduled or skipped.
type ForceCycleResponse struct {
	Domain string `json:"domain"`
	Status string `json:"status"`
}

const (
	ForceCycleScheduled = "scheduled"
	ForceCycleSkipped   = "skipped"
)
