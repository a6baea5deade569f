// Package orchestrator runs one evaluation cycle of a resource domain: read the
// registry, evaluate thresholds, generate suggestions and commit them through
// the workflow state machine.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dukex/wardflow/pkg/evaluator"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/generator"
	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/otelhelper"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/registry"
	"github.com/dukex/wardflow/pkg/workflow"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// ErrUnknownDomain is returned for a domain outside supply, staff, equipment and bed.
var ErrUnknownDomain = errors.New("unknown domain")

// CycleOptions mark a forced cycle.
type CycleOptions struct {
	Forced bool
	Reason string
}

// CycleReport summarizes a committed cycle.
type CycleReport struct {
	Domain       generator.Domain
	Forced       bool
	Created      int
	Updated      int
	Alerts       int
	AutoApproved int
	Duration     time.Duration
}

type Orchestrator struct {
	logger     *slog.Logger
	registry   *registry.Registry
	machine    *workflow.Machine
	generator  *generator.Generator
	thresholds evaluator.Thresholds
	eventLog   persistence.EventLogRepository
	publisher  eventbus.EventPublisher
	policy     AutoApprovalPolicy
	tracer     trace.Tracer
	now        func() time.Time
}

type Option func(*Orchestrator)

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		o.now = now
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(o *Orchestrator) {
		o.tracer = tracer
	}
}

func WithAutoApproval(policy AutoApprovalPolicy) Option {
	return func(o *Orchestrator) {
		o.policy = policy
	}
}

func New(
	logger *slog.Logger,
	reg *registry.Registry,
	machine *workflow.Machine,
	gen *generator.Generator,
	thresholds evaluator.Thresholds,
	eventLog persistence.EventLogRepository,
	publisher eventbus.EventPublisher,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		logger:     logger,
		registry:   reg,
		machine:    machine,
		generator:  gen,
		thresholds: thresholds,
		eventLog:   eventLog,
		publisher:  publisher,
		tracer:     otelhelper.NoopTracer(),
		now:        func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		opt(o)
	}

	return o
}

// RunCycle evaluates domain and commits the resulting plan. Items are created
// under their subjects' resolution locks; a subject that gained an active item
// since the snapshot is skipped.
func (o *Orchestrator) RunCycle(ctx context.Context, domain generator.Domain, opts CycleOptions) (CycleReport, error) {
	ctx, span := otelhelper.StartSpan(ctx, o.tracer, "orchestrator.cycle",
		attribute.String(otelhelper.DomainKey, string(domain)),
		attribute.Bool(otelhelper.ForcedKey, opts.Forced),
	)
	defer span.End()

	report, err := o.runCycle(ctx, domain, opts)
	if err != nil {
		otelhelper.SetError(span, err)

		return report, err
	}

	span.SetAttributes(
		attribute.Int(otelhelper.CreatedKey, report.Created),
		attribute.Int(otelhelper.UpdatedKey, report.Updated),
		attribute.Int(otelhelper.AlertCountKey, report.Alerts),
	)

	return report, nil
}

func (o *Orchestrator) runCycle(ctx context.Context, domain generator.Domain, opts CycleOptions) (CycleReport, error) {
	started := o.now()
	report := CycleReport{Domain: domain, Forced: opts.Forced}

	if !domain.Valid() {
		return report, fmt.Errorf("%w: %q", ErrUnknownDomain, domain)
	}

	input, err := o.evaluate(ctx, domain)
	if err != nil {
		return report, err
	}

	open, err := o.machine.List(ctx, models.ItemFilter{ActiveOnly: true})
	if err != nil {
		return report, fmt.Errorf("failed to list open items: %w", err)
	}

	plan := o.generator.Generate(input, open, generator.Options{
		Now:         started,
		Forced:      opts.Forced,
		ForceReason: opts.Reason,
	})

	created, err := o.commitCreates(ctx, plan.Create)
	if err != nil {
		return report, err
	}

	report.Created = len(created)

	report.Updated, err = o.commitUpdates(ctx, plan.Update)
	if err != nil {
		return report, err
	}

	for _, alert := range plan.Alerts {
		metrics.CoverageGap(string(alert.Domain))
		o.announce(ctx, events.CoverageGap(string(alert.Domain), alert.UnitID, alert.DepartmentID,
			alert.Priority, alert.Reason, started))
	}

	report.Alerts = len(plan.Alerts)
	report.AutoApproved = o.autoApprove(ctx, created)
	report.Duration = o.now().Sub(started)

	o.announce(ctx, events.CycleCompleted(string(domain), opts.Forced,
		report.Created, report.Updated, report.Alerts, o.now()))

	o.logger.InfoContext(ctx, "Cycle completed",
		"domain", domain,
		"forced", opts.Forced,
		"created", report.Created,
		"updated", report.Updated,
		"alerts", report.Alerts,
		"auto_approved", report.AutoApproved,
		"duration", report.Duration,
	)

	return report, nil
}

// evaluate snapshots the domain's units and runs the threshold evaluator.
// Bed and equipment demand is evaluated by the generator against open requests.
func (o *Orchestrator) evaluate(ctx context.Context, domain generator.Domain) (generator.Input, error) {
	input := generator.Input{Domain: domain}

	units, err := o.registry.Snapshot(ctx, domain.ResourceKind())
	if err != nil {
		return input, err
	}

	input.Units = units

	switch domain {
	case generator.DomainSupply, generator.DomainStaff:
		input.Results = make([]evaluator.Result, 0, len(units))
		for _, unit := range units {
			input.Results = append(input.Results, evaluator.Evaluate(unit, o.thresholds))
		}
	}

	if domain == generator.DomainStaff {
		input.Beds, err = o.registry.Snapshot(ctx, models.ResourceKindBed)
		if err != nil {
			return input, err
		}
	}

	return input, nil
}

func (o *Orchestrator) commitCreates(ctx context.Context, items []*models.WorkflowItem) ([]*models.WorkflowItem, error) {
	created := make([]*models.WorkflowItem, 0, len(items))

	for _, item := range items {
		stored, err := o.machine.Create(ctx, item)
		if err == nil {
			created = append(created, stored)

			continue
		}

		if skippable(err) {
			o.logger.DebugContext(ctx, "Skipped suggestion", "kind", item.Kind, "subjects", item.SubjectRefs, "error", err)

			continue
		}

		if persistence.IsTransient(err) {
			return created, err
		}

		o.logger.ErrorContext(ctx, "Failed to create suggestion", "kind", item.Kind, "subjects", item.SubjectRefs, "error", err)
	}

	return created, nil
}

func (o *Orchestrator) commitUpdates(ctx context.Context, items []*models.WorkflowItem) (int, error) {
	updated := 0

	for _, item := range items {
		_, err := o.machine.Revise(ctx, item)
		if err == nil {
			updated++

			continue
		}

		if skippable(err) {
			o.logger.DebugContext(ctx, "Skipped revision", "item_id", item.ID, "error", err)

			continue
		}

		if persistence.IsTransient(err) {
			return updated, err
		}

		o.logger.ErrorContext(ctx, "Failed to revise item", "item_id", item.ID, "error", err)
	}

	return updated, nil
}

// skippable errors mean another writer got there first.
func skippable(err error) bool {
	return errors.Is(err, workflow.ErrDuplicateActive) ||
		workflow.IsInvalidTransition(err) ||
		workflow.IsConcurrencyConflict(err)
}

func (o *Orchestrator) autoApprove(ctx context.Context, items []*models.WorkflowItem) int {
	approved := 0

	for _, item := range items {
		selection, ok := o.policy.Decide(item)
		if !ok {
			continue
		}

		_, err := o.machine.Transition(ctx, item.ID, models.ItemStatusApproved, o.policy.actor(),
			workflow.TransitionOptions{SelectionRef: selection, Reason: "auto-approval policy"})
		if err != nil {
			o.logger.WarnContext(ctx, "Auto-approval failed", "item_id", item.ID, "error", err)

			continue
		}

		approved++
	}

	return approved
}

// announce records an engine event in the audit log and publishes it.
func (o *Orchestrator) announce(ctx context.Context, event models.WorkflowEvent) {
	err := o.eventLog.Append(ctx, event)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to append event", "event_id", event.ID, "error", err)
	}

	if o.publisher == nil {
		return
	}

	err = o.publisher.Publish(ctx, event)
	if err != nil {
		o.logger.ErrorContext(ctx, "Failed to publish event", "event_id", event.ID, "error", err)
	}
}
