package services

import (
	"context"
	"fmt"

	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/workflow"
)

type WorkflowItems struct {
	persistence persistence.Persistence
	machine     *workflow.Machine
}

// NewWorkflowItems creates a new workflow item service.
func NewWorkflowItems(persistence persistence.Persistence, machine *workflow.Machine) *WorkflowItems {
	return &WorkflowItems{
		persistence: persistence,
		machine:     machine,
	}
}

// HealthCheck checks the health of the persistence layer.
func (w *WorkflowItems) HealthCheck(ctx context.Context) (string, bool) {
	if w.persistence == nil {
		return "Persistence layer not initialized", false
	}

	err := w.persistence.HealthCheck(ctx)
	if err != nil {
		return "Persistence layer is unhealthy: " + err.Error(), false
	}

	return "Persistence layer is healthy", true
}

// ListItemsRequest contains the filters of an item listing.
type ListItemsRequest struct {
	Kind       string
	Status     string
	Department string
	Subject    string
	ActiveOnly bool
}

// ApproveRequest carries the human decision on a pending item.
type ApproveRequest struct {
	Actor        string
	SelectionRef string
	Reason       string
}

// Create submits a manual item. It starts pending.
func (w *WorkflowItems) Create(ctx context.Context, item *models.WorkflowItem) (*models.WorkflowItem, error) {
	if item == nil {
		return nil, NewValidationError("create", "item is required", ErrInvalidRequest)
	}

	item.Origin = models.OriginManual

	return w.machine.Create(ctx, item)
}

// List returns matching items, highest priority first.
func (w *WorkflowItems) List(ctx context.Context, req ListItemsRequest) ([]*models.WorkflowItem, error) {
	filter := models.ItemFilter{
		Kind:         models.ItemKind(req.Kind),
		Status:       models.ItemStatus(req.Status),
		DepartmentID: req.Department,
		SubjectRef:   req.Subject,
		ActiveOnly:   req.ActiveOnly,
	}

	if filter.Kind != "" && !filter.Kind.Valid() {
		return nil, NewValidationError("list", fmt.Sprintf("unknown kind %q", req.Kind), ErrInvalidKind)
	}

	if filter.Status != "" && !filter.Status.Valid() {
		return nil, NewValidationError("list", fmt.Sprintf("unknown status %q", req.Status), ErrInvalidStatus)
	}

	return w.machine.List(ctx, filter)
}

func (w *WorkflowItems) Get(ctx context.Context, id string) (*models.WorkflowItem, error) {
	return w.machine.Get(ctx, id)
}

// Approve approves a pending item and runs its executor. An executor failure
// is reported on the returned item, not as an error.
func (w *WorkflowItems) Approve(ctx context.Context, id string, req ApproveRequest) (*models.WorkflowItem, error) {
	return w.machine.Transition(ctx, id, models.ItemStatusApproved, req.Actor, workflow.TransitionOptions{
		SelectionRef: req.SelectionRef,
		Reason:       req.Reason,
	})
}

func (w *WorkflowItems) Reject(ctx context.Context, id, actor, reason string) (*models.WorkflowItem, error) {
	return w.machine.Transition(ctx, id, models.ItemStatusRejected, actor, workflow.TransitionOptions{Reason: reason})
}

// Deliver records the delivery of a sent purchase order.
func (w *WorkflowItems) Deliver(ctx context.Context, id, actor string) (*models.WorkflowItem, error) {
	return w.machine.Deliver(ctx, id, actor)
}
