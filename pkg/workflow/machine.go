// Package workflow implements the approval state machine of workflow items and
// the executors that apply approved items to the resource registry.
package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/dukex/wardflow/pkg/eventbus"
	"github.com/dukex/wardflow/pkg/events"
	"github.com/dukex/wardflow/pkg/locks"
	"github.com/dukex/wardflow/pkg/metrics"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/otelhelper"
	"github.com/dukex/wardflow/pkg/persistence"
	"github.com/dukex/wardflow/pkg/registry"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// SystemActor resolves items on behalf of the engine (expiry sweeps).
const SystemActor = "system"

const (
	lockAttempts  = 3
	settleRetries = 5
)

// Config tunes the state machine.
type Config struct {
	// RequireSelection lists the kinds whose approval must carry a selection_ref.
	RequireSelection []models.ItemKind `mapstructure:"require_selection"`

	// ManualTTL is the lifetime of expiring items created through the API.
	ManualTTL time.Duration `mapstructure:"manual_ttl"`
}

func DefaultConfig() Config {
	return Config{
		RequireSelection: []models.ItemKind{models.ItemKindReorder},
		ManualTTL:        30 * time.Minute,
	}
}

// TransitionOptions carry the optional inputs of a resolution.
type TransitionOptions struct {
	SelectionRef string
	Reason       string
}

type Machine struct {
	logger    *slog.Logger
	items     persistence.WorkflowItemRepository
	eventLog  persistence.EventLogRepository
	registry  *registry.Registry
	locker    locks.Locker
	publisher eventbus.EventPublisher
	tracer    trace.Tracer
	config    Config
	now       func() time.Time
	newID     func() string

	settleInterval time.Duration
}

type Option func(*Machine)

func WithClock(now func() time.Time) Option {
	return func(m *Machine) {
		m.now = now
	}
}

func WithIDGenerator(newID func() string) Option {
	return func(m *Machine) {
		m.newID = newID
	}
}

func WithTracer(tracer trace.Tracer) Option {
	return func(m *Machine) {
		m.tracer = tracer
	}
}

// NewMachine wires the state machine. publisher may be nil when nothing listens.
func NewMachine(
	logger *slog.Logger,
	store persistence.Persistence,
	reg *registry.Registry,
	locker locks.Locker,
	publisher eventbus.EventPublisher,
	config Config,
	opts ...Option,
) *Machine {
	m := &Machine{
		logger:    logger,
		items:     store.WorkflowItemRepository(),
		eventLog:  store.EventLogRepository(),
		registry:  reg,
		locker:    locker,
		publisher: publisher,
		tracer:    otelhelper.NoopTracer(),
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		newID:     uuid.NewString,

		settleInterval: 100 * time.Millisecond,
	}

	for _, opt := range opts {
		opt(m)
	}

	return m
}

// Create validates and stores a new pending item. The active-item check runs
// under the subjects' resolution locks, so two creators cannot both win.
func (m *Machine) Create(ctx context.Context, item *models.WorkflowItem) (*models.WorkflowItem, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.create",
		attribute.String(otelhelper.ItemKindKey, string(item.Kind)))
	defer span.End()

	err := m.prepare(item)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	span.SetAttributes(attribute.String(otelhelper.ItemIDKey, item.ID))

	release, err := m.locker.Lock(ctx, lockKeys(item, "")...)
	if err != nil {
		metrics.LockConflict("create")
		err = conflict("create "+item.ID, err)
		otelhelper.SetError(span, err)

		return nil, err
	}
	defer release()

	err = m.checkActive(ctx, item)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	err = m.items.Create(ctx, item)
	if err != nil {
		otelhelper.SetError(span, err)

		return nil, err
	}

	metrics.ItemCreated(string(item.Kind), string(item.Origin))
	m.record(ctx, events.ItemCreated(item))

	m.logger.InfoContext(ctx, "Created workflow item",
		"item_id", item.ID, "kind", item.Kind, "priority", item.Priority, "origin", item.Origin)

	return item, nil
}

// Transition resolves a pending item: approve, reject or expire. Approval runs
// the kind executor synchronously. Completing an executing purchase order is
// its delivery.
func (m *Machine) Transition(
	ctx context.Context,
	itemID string,
	target models.ItemStatus,
	actor string,
	opts TransitionOptions,
) (*models.WorkflowItem, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.transition",
		attribute.String(otelhelper.ItemIDKey, itemID),
		attribute.String(otelhelper.TargetKey, string(target)),
		attribute.String(otelhelper.ActorKey, actor),
	)
	defer span.End()

	item, err := m.transition(ctx, itemID, target, actor, opts)
	otelhelper.SetError(span, err)

	return item, err
}

func (m *Machine) transition(
	ctx context.Context,
	itemID string,
	target models.ItemStatus,
	actor string,
	opts TransitionOptions,
) (*models.WorkflowItem, error) {
	if actor == "" {
		return nil, ErrMissingActor
	}

	switch target {
	case models.ItemStatusApproved, models.ItemStatusRejected, models.ItemStatusExpired:
	case models.ItemStatusCompleted:
		return m.deliver(ctx, itemID, actor)
	default:
		return nil, &TransitionError{
			ItemID: itemID,
			To:     target,
			Err:    fmt.Errorf("%w: %s is only reached by execution", ErrInvalidTransition, target),
		}
	}

	supplierKey := ""
	if target == models.ItemStatusApproved && opts.SelectionRef != "" {
		supplierKey = locks.SupplierKey(opts.SelectionRef)
	}

	var result *models.WorkflowItem

	err := m.withItemLock(ctx, itemID, []string{supplierKey}, func(item *models.WorkflowItem) error {
		now := m.now()

		if item.IsExpired(now) {
			err := m.expire(ctx, item, now, actor)
			if err != nil {
				return err
			}

			if target == models.ItemStatusExpired {
				result = item

				return nil
			}

			return &TransitionError{ItemID: item.ID, From: models.ItemStatusPending, To: target, Err: ErrExpired}
		}

		if !CanTransition(item.Status, target) {
			return &TransitionError{ItemID: item.ID, From: item.Status, To: target, Err: ErrInvalidTransition}
		}

		var err error

		switch target {
		case models.ItemStatusApproved:
			err = m.approve(ctx, item, actor, opts, now)
		case models.ItemStatusRejected:
			err = m.reject(ctx, item, actor, opts.Reason, now)
		default:
			err = &TransitionError{
				ItemID: item.ID,
				From:   item.Status,
				To:     target,
				Err:    fmt.Errorf("%w: not due until %s", ErrInvalidTransition, expiresAt(item)),
			}
		}

		if err != nil {
			return err
		}

		result = item

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Deliver receives an executing purchase order: stock is incremented for every
// line and the order completes.
func (m *Machine) Deliver(ctx context.Context, itemID, actor string) (*models.WorkflowItem, error) {
	ctx, span := otelhelper.StartSpan(ctx, m.tracer, "workflow.deliver",
		attribute.String(otelhelper.ItemIDKey, itemID),
		attribute.String(otelhelper.ActorKey, actor),
	)
	defer span.End()

	if actor == "" {
		otelhelper.SetError(span, ErrMissingActor)

		return nil, ErrMissingActor
	}

	item, err := m.deliver(ctx, itemID, actor)
	otelhelper.SetError(span, err)

	return item, err
}

func (m *Machine) deliver(ctx context.Context, itemID, actor string) (*models.WorkflowItem, error) {
	var result *models.WorkflowItem

	err := m.withItemLock(ctx, itemID, nil, func(item *models.WorkflowItem) error {
		order := item.Payload.PurchaseOrder
		if item.Kind != models.ItemKindPurchaseOrder || order == nil ||
			item.Status != models.ItemStatusExecuting || order.Stage != models.PurchaseOrderSent {
			return &TransitionError{
				ItemID: item.ID,
				From:   item.Status,
				To:     models.ItemStatusCompleted,
				Err:    fmt.Errorf("%w: only a sent purchase order can be delivered", ErrInvalidTransition),
			}
		}

		now := m.now()

		err := m.receiveStock(ctx, order, now)
		if err != nil {
			result = item

			return m.fail(ctx, item, actor, err, now)
		}

		order.Stage = models.PurchaseOrderDelivered
		order.DeliveredAt = &now
		item.Status = models.ItemStatusCompleted
		item.UpdatedAt = now

		err = m.settle(ctx, item, func() error {
			return m.save(ctx, item, models.ItemStatusExecuting, actor, "")
		})
		if err != nil {
			return err
		}

		result = item

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Revise applies a generator update to a pending item: a new priority or a
// matched unit for an equipment or bed request.
func (m *Machine) Revise(ctx context.Context, revised *models.WorkflowItem) (*models.WorkflowItem, error) {
	extra := make([]string, 0, len(revised.SubjectRefs))
	for _, ref := range revised.SubjectRefs {
		extra = append(extra, locks.UnitKey(ref))
	}

	var result *models.WorkflowItem

	err := m.withItemLock(ctx, revised.ID, extra, func(item *models.WorkflowItem) error {
		now := m.now()

		if item.IsExpired(now) {
			err := m.expire(ctx, item, now, SystemActor)
			if err != nil {
				return err
			}

			return &TransitionError{ItemID: item.ID, From: models.ItemStatusPending, To: models.ItemStatusPending, Err: ErrExpired}
		}

		if item.Status != models.ItemStatusPending {
			return &TransitionError{
				ItemID: item.ID,
				From:   item.Status,
				To:     item.Status,
				Err:    fmt.Errorf("%w: only pending items can be revised", ErrInvalidTransition),
			}
		}

		priorityChanged := item.Priority != revised.Priority
		subjectsChanged := !slices.Equal(item.SubjectRefs, revised.SubjectRefs)

		next := item.Clone()
		next.Priority = revised.Priority
		next.SubjectRefs = append([]string(nil), revised.SubjectRefs...)
		next.Payload = revised.Payload.Clone()
		next.Reason = revised.Reason
		next.UpdatedAt = now

		if subjectsChanged {
			err := m.checkActive(ctx, next)
			if err != nil {
				return err
			}
		}

		err := m.items.Update(ctx, next)
		if err != nil {
			return conflict("revise "+item.ID, err)
		}

		if priorityChanged {
			m.record(ctx, events.Reprioritized(next))
		}

		m.logger.InfoContext(ctx, "Revised workflow item",
			"item_id", next.ID, "priority", next.Priority, "subjects", next.SubjectRefs)

		result = next

		return nil
	})
	if err != nil {
		return nil, err
	}

	return result, nil
}

// Get returns an item, expiring it first when its TTL has passed.
func (m *Machine) Get(ctx context.Context, itemID string) (*models.WorkflowItem, error) {
	item, err := m.items.Get(ctx, itemID)
	if err != nil {
		return nil, err
	}

	return m.expireIfDue(ctx, item)
}

// List returns matching items sorted by priority, expiring overdue ones on the way.
func (m *Machine) List(ctx context.Context, filter models.ItemFilter) ([]*models.WorkflowItem, error) {
	items, err := m.items.List(ctx, filter)
	if err != nil {
		return nil, err
	}

	now := m.now()
	result := make([]*models.WorkflowItem, 0, len(items))

	for _, item := range items {
		if item.IsExpired(now) {
			item, err = m.expireIfDue(ctx, item)
			if err != nil {
				return nil, err
			}
		}

		if filter.Matches(item) {
			result = append(result, item)
		}
	}

	models.SortByPriority(result)

	return result, nil
}

// ExpireDue expires every pending item past its TTL and returns how many it expired.
func (m *Machine) ExpireDue(ctx context.Context) (int, error) {
	pending, err := m.items.List(ctx, models.ItemFilter{Status: models.ItemStatusPending})
	if err != nil {
		return 0, err
	}

	now := m.now()
	expired := 0

	for _, item := range pending {
		if !item.IsExpired(now) {
			continue
		}

		_, err := m.Transition(ctx, item.ID, models.ItemStatusExpired, SystemActor, TransitionOptions{})
		if err != nil {
			if IsInvalidTransition(err) {
				continue
			}

			return expired, err
		}

		expired++
	}

	return expired, nil
}

func (m *Machine) expireIfDue(ctx context.Context, item *models.WorkflowItem) (*models.WorkflowItem, error) {
	if !item.IsExpired(m.now()) {
		return item, nil
	}

	expired, err := m.Transition(ctx, item.ID, models.ItemStatusExpired, SystemActor, TransitionOptions{})
	if err == nil {
		return expired, nil
	}

	if IsInvalidTransition(err) {
		return m.items.Get(ctx, item.ID)
	}

	return nil, err
}

func (m *Machine) approve(
	ctx context.Context,
	item *models.WorkflowItem,
	actor string,
	opts TransitionOptions,
	now time.Time,
) error {
	if slices.Contains(m.config.RequireSelection, item.Kind) && opts.SelectionRef == "" {
		return &TransitionError{ItemID: item.ID, From: item.Status, To: models.ItemStatusApproved, Err: ErrMissingSelection}
	}

	if transfer := item.Payload.Transfer; transfer != nil && transfer.IsAssetRequest() && transfer.MatchedUnitID == "" {
		return &TransitionError{ItemID: item.ID, From: item.Status, To: models.ItemStatusApproved, Err: ErrUnmatchedRequest}
	}

	if opts.SelectionRef != "" {
		item.SelectionRef = opts.SelectionRef
	}

	item.Status = models.ItemStatusApproved
	item.ResolvedBy = actor
	item.ResolvedAt = &now
	item.UpdatedAt = now

	err := m.save(ctx, item, models.ItemStatusPending, actor, opts.Reason)
	if err != nil {
		return err
	}

	return m.execute(ctx, item, actor)
}

// execute moves an approved item through executing and runs its executor once.
// Executor failures end the item failed; only storage errors are returned.
func (m *Machine) execute(ctx context.Context, item *models.WorkflowItem, actor string) error {
	item.Status = models.ItemStatusExecuting
	item.UpdatedAt = m.now()

	err := m.save(ctx, item, models.ItemStatusApproved, actor, "")
	if err != nil {
		return err
	}

	now := m.now()

	status, err := m.run(ctx, item, now)
	if err != nil {
		return m.fail(ctx, item, actor, err, now)
	}

	item.UpdatedAt = m.now()

	if status == models.ItemStatusExecuting {
		return m.settle(ctx, item, func() error {
			err := m.items.Update(ctx, item)
			if err != nil {
				return conflict("execute "+item.ID, err)
			}

			return nil
		})
	}

	item.Status = models.ItemStatusCompleted

	return m.settle(ctx, item, func() error {
		return m.save(ctx, item, models.ItemStatusExecuting, actor, "")
	})
}

func (m *Machine) fail(ctx context.Context, item *models.WorkflowItem, actor string, cause error, now time.Time) error {
	m.logger.WarnContext(ctx, "Workflow item execution failed", "item_id", item.ID, "kind", item.Kind, "error", cause)

	from := item.Status
	item.Status = models.ItemStatusFailed
	item.FailureReason = cause.Error()
	item.UpdatedAt = now

	return m.settle(ctx, item, func() error {
		return m.save(ctx, item, from, actor, "")
	})
}

// settle writes the state an item reaches once its executor has run. The
// registry has already changed, so failed writes are retried; an item still
// stuck in executing is logged for manual reconciliation.
func (m *Machine) settle(ctx context.Context, item *models.WorkflowItem, write func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = m.settleInterval
	policy.MaxInterval = 20 * m.settleInterval

	err := backoff.Retry(func() error {
		err := write()
		if err != nil && (persistence.IsVersionConflict(err) || persistence.IsItemNotFound(err)) {
			return backoff.Permanent(err)
		}

		return err
	}, backoff.WithContext(backoff.WithMaxRetries(policy, settleRetries), ctx))
	if err != nil {
		m.logger.ErrorContext(ctx, "Workflow item needs manual reconciliation",
			"item_id", item.ID, "kind", item.Kind, "status", item.Status, "error", err)
	}

	return err
}

func (m *Machine) reject(ctx context.Context, item *models.WorkflowItem, actor, reason string, now time.Time) error {
	item.Status = models.ItemStatusRejected
	item.ResolvedBy = actor
	item.ResolvedAt = &now
	item.UpdatedAt = now

	return m.save(ctx, item, models.ItemStatusPending, actor, reason)
}

func (m *Machine) expire(ctx context.Context, item *models.WorkflowItem, now time.Time, actor string) error {
	item.Status = models.ItemStatusExpired
	item.ResolvedBy = actor
	item.ResolvedAt = &now
	item.UpdatedAt = now

	return m.save(ctx, item, models.ItemStatusPending, actor, "ttl elapsed")
}

// save persists a status change and announces it.
func (m *Machine) save(ctx context.Context, item *models.WorkflowItem, from models.ItemStatus, actor, note string) error {
	err := m.items.Update(ctx, item)
	if err != nil {
		return conflict(fmt.Sprintf("transition %s to %s", item.ID, item.Status), err)
	}

	metrics.Transition(string(item.Kind), string(item.Status))

	event := events.ItemTransitioned(item, from, actor)
	if note != "" {
		event.Reason = note
	}

	m.record(ctx, event)

	m.logger.InfoContext(ctx, "Workflow item transitioned",
		"item_id", item.ID, "kind", item.Kind, "from", from, "to", item.Status, "actor", actor)

	return nil
}

// record appends event to the audit log and publishes it. The item write has
// already happened, so failures here are logged; replay-events republishes.
func (m *Machine) record(ctx context.Context, event models.WorkflowEvent) {
	err := m.eventLog.Append(ctx, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to append workflow event", "event_id", event.ID, "error", err)
	}

	if m.publisher == nil {
		return
	}

	err = m.publisher.Publish(ctx, event)
	if err != nil {
		m.logger.ErrorContext(ctx, "Failed to publish workflow event", "event_id", event.ID, "error", err)
	}
}

// withItemLock runs fn on a fresh read of the item while holding the item key,
// its subjects' unit keys and extra. It retries when the subjects changed
// between the unlocked read and acquiring the lock.
func (m *Machine) withItemLock(
	ctx context.Context,
	itemID string,
	extra []string,
	fn func(item *models.WorkflowItem) error,
) error {
	for range lockAttempts {
		item, err := m.items.Get(ctx, itemID)
		if err != nil {
			return err
		}

		keys := append(lockKeys(item, ""), extra...)

		release, err := m.locker.Lock(ctx, keys...)
		if err != nil {
			metrics.LockConflict("transition")

			return conflict("lock "+itemID, err)
		}

		current, err := m.items.Get(ctx, itemID)
		if err != nil {
			release()

			return err
		}

		if !slices.Equal(current.SubjectRefs, item.SubjectRefs) {
			release()

			continue
		}

		err = fn(current)

		release()

		return err
	}

	metrics.LockConflict("transition")

	return fmt.Errorf("lock %s: %w: subjects kept changing", itemID, ErrConcurrencyConflict)
}

// lockKeys are the item key, its subjects' unit keys and, for purchase
// orders and reorders, the supplier key guarding the supplier's draft order.
// Shift adjustments also hold their department's key, so a manual request and
// a staff cycle settle a department's coverage one at a time.
func lockKeys(item *models.WorkflowItem, supplierID string) []string {
	keys := []string{locks.ItemKey(item.ID)}

	for _, ref := range item.SubjectRefs {
		keys = append(keys, locks.UnitKey(ref))
	}

	if item.Kind == models.ItemKindShiftAdjustment && item.DepartmentID != "" {
		keys = append(keys, locks.DepartmentKey(item.DepartmentID))
	}

	if order := item.Payload.PurchaseOrder; order != nil && supplierID == "" {
		supplierID = order.SupplierID
	}

	if supplierID != "" {
		keys = append(keys, locks.SupplierKey(supplierID))
	}

	return keys
}

// checkActive enforces one active item per subject and kind. Overdue pending
// items found on the way are expired; the caller holds their subjects' locks.
func (m *Machine) checkActive(ctx context.Context, item *models.WorkflowItem) error {
	now := m.now()

	for _, ref := range item.SubjectRefs {
		existing, err := m.items.List(ctx, models.ItemFilter{SubjectRef: ref, ActiveOnly: true})
		if err != nil {
			return err
		}

		for _, other := range existing {
			if other.ID == item.ID {
				continue
			}

			blocks := other.Kind == item.Kind ||
				(item.Kind == models.ItemKindReorder && other.Kind == models.ItemKindPurchaseOrder)
			if !blocks {
				continue
			}

			if other.IsExpired(now) {
				err = m.expire(ctx, other, now, SystemActor)
				if err != nil {
					return err
				}

				continue
			}

			return fmt.Errorf("%w: unit %s is subject of %s %s (%s)", ErrDuplicateActive, ref, other.Kind, other.ID, other.Status)
		}
	}

	return nil
}

func expiresAt(item *models.WorkflowItem) string {
	if item.ExpiresAt == nil {
		return "never"
	}

	return item.ExpiresAt.Format(time.RFC3339)
}
