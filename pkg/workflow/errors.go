package workflow

import (
	"errors"
	"fmt"

	"github.com/dukex/wardflow/pkg/locks"
	"github.com/dukex/wardflow/pkg/models"
	"github.com/dukex/wardflow/pkg/persistence"
)

var (
	// ErrInvalidTransition is returned for any transition outside the lifecycle table.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrExpired is returned when the item passed its TTL before the request was applied.
	ErrExpired = fmt.Errorf("%w: item expired", ErrInvalidTransition)

	// ErrMissingSelection is returned when approving a kind that requires a selection without one.
	ErrMissingSelection = errors.New("approval requires a selection")

	// ErrMissingActor is returned when a resolution carries no actor.
	ErrMissingActor = errors.New("actor is required")

	// ErrUnmatchedRequest is returned when approving an equipment or bed request with no unit matched yet.
	ErrUnmatchedRequest = errors.New("request has no matched unit")

	// ErrInvalidItem is returned when a new item is malformed.
	ErrInvalidItem = errors.New("invalid workflow item")

	// ErrDuplicateActive is returned when a subject already has an active item of the same kind.
	ErrDuplicateActive = errors.New("subject already has an active item of this kind")

	// ErrConcurrencyConflict is returned when the resolution lock or an optimistic write was lost.
	ErrConcurrencyConflict = errors.New("concurrent modification")

	// ErrExecutorFailure marks the reason an approved item ended failed.
	ErrExecutorFailure = errors.New("executor failed")

	// ErrInsufficientCapacity is the executor failure of a transfer that would overfill its destination.
	ErrInsufficientCapacity = errors.New("insufficient destination capacity")
)

// TransitionError carries the item and states of a rejected transition.
type TransitionError struct {
	ItemID string
	From   models.ItemStatus
	To     models.ItemStatus
	Err    error
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("item %s: %s -> %s: %v", e.ItemID, e.From, e.To, e.Err)
}

func (e *TransitionError) Unwrap() error {
	return e.Err
}

func (e *TransitionError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// conflict normalizes lock timeouts and lost optimistic writes.
func conflict(op string, err error) error {
	if errors.Is(err, locks.ErrTimeout) || persistence.IsVersionConflict(err) {
		return fmt.Errorf("%s: %w: %w", op, ErrConcurrencyConflict, err)
	}

	return err
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsExpired(err error) bool {
	return errors.Is(err, ErrExpired)
}

func IsMissingSelection(err error) bool {
	return errors.Is(err, ErrMissingSelection)
}

func IsConcurrencyConflict(err error) bool {
	return errors.Is(err, ErrConcurrencyConflict)
}
