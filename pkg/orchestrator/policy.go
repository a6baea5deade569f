package orchestrator

import (
	"github.com/dukex/wardflow/pkg/models"
	"github.com/shopspring/decimal"
)

// AutoApprovalRule approves items of Kind at or above MinPriority whose
// estimated cost does not exceed MaxEstimatedCost (zero means no cost cap).
type AutoApprovalRule struct {
	Kind             models.ItemKind `mapstructure:"kind"`
	MinPriority      models.Priority `mapstructure:"min_priority"`
	MaxEstimatedCost float64         `mapstructure:"max_estimated_cost"`
}

// AutoApprovalPolicy approves freshly generated items without a human actor.
// It is disabled unless configured.
type AutoApprovalPolicy struct {
	Enabled bool               `mapstructure:"enabled"`
	Actor   string             `mapstructure:"actor"`
	Rules   []AutoApprovalRule `mapstructure:"rules"`
}

// DefaultAutoApprovalActor is recorded as resolved_by for auto-approved items.
const DefaultAutoApprovalActor = "auto-approval"

// Decide reports whether item is auto-approved and the selection to approve with.
// Reorders use the unit's preferred supplier and are skipped when it has none.
func (p AutoApprovalPolicy) Decide(item *models.WorkflowItem) (string, bool) {
	if !p.Enabled || item.Status != models.ItemStatusPending {
		return "", false
	}

	for _, rule := range p.Rules {
		if !rule.matches(item) {
			continue
		}

		if item.Kind != models.ItemKindReorder {
			return "", true
		}

		supplier := item.Payload.Reorder.ProposedSupplierID

		return supplier, supplier != ""
	}

	return "", false
}

func (p AutoApprovalPolicy) actor() string {
	if p.Actor == "" {
		return DefaultAutoApprovalActor
	}

	return p.Actor
}

func (r AutoApprovalRule) matches(item *models.WorkflowItem) bool {
	if r.Kind != item.Kind {
		return false
	}

	if r.MinPriority != "" && item.Priority.Rank() < r.MinPriority.Rank() {
		return false
	}

	if r.MaxEstimatedCost > 0 && item.Payload.EstimatedCost().GreaterThan(decimal.NewFromFloat(r.MaxEstimatedCost)) {
		return false
	}

	return true
}
