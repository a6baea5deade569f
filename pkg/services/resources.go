package services

import (
	"context"
	"fmt"

	"github.com/dukex/wardflow/pkg/generator"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/registry"
)

// Resources exposes read-only registry snapshots.
type Resources struct {
	registry *registry.Registry
}

func NewResources(registry *registry.Registry) *Resources {
	return &Resources{registry: registry}
}

func (r *Resources) Snapshot(ctx context.Context, kind string) ([]models.ResourceUnit, error) {
	resourceKind := models.ResourceKind(kind)
	if !resourceKind.Valid() {
		return nil, NewValidationError("snapshot", fmt.Sprintf("unknown resource kind %q", kind), ErrInvalidKind)
	}

	return r.registry.Snapshot(ctx, resourceKind)
}

// CycleTrigger starts a forced cycle, in process or through the event bus.
type CycleTrigger interface {
	ForceCycle(ctx context.Context, domain generator.Domain, reason string) (bool, error)
}

// Cycles accepts force-cycle requests.
type Cycles struct {
	trigger CycleTrigger
}

func NewCycles(trigger CycleTrigger) *Cycles {
	return &Cycles{trigger: trigger}
}

// Force reports whether the cycle was scheduled; false means one was already running.
func (c *Cycles) Force(ctx context.Context, domain, reason string) (bool, error) {
	d := generator.Domain(domain)
	if !d.Valid() {
		return false, NewValidationError("force cycle", fmt.Sprintf("unknown domain %q", domain), ErrInvalidDomain)
	}

	return c.trigger.ForceCycle(ctx, d, reason)
}
