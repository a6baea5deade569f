package persistence

import (
	"errors"
	"fmt"
)

var (
	// ErrUnitNotFound indicates a resource unit was not found.
	ErrUnitNotFound = errors.New("resource unit not found")

	// ErrItemNotFound indicates a workflow item was not found.
	ErrItemNotFound = errors.New("workflow item not found")

	// ErrItemAlreadyExists indicates a workflow item with the same id already exists.
	ErrItemAlreadyExists = errors.New("workflow item already exists")

	// ErrVersionConflict indicates the item changed since it was read.
	ErrVersionConflict = errors.New("workflow item version conflict")

	// ErrUnavailable indicates the store could not be reached or failed transiently.
	ErrUnavailable = errors.New("persistence unavailable")
)

// ItemError wraps workflow item errors with context.
type ItemError struct {
	Op     string // Operation being performed (e.g., "Get", "Update")
	ItemID string
	Err    error
}

func (e *ItemError) Error() string {
	return fmt.Sprintf("%s operation failed for workflow item %s: %v", e.Op, e.ItemID, e.Err)
}

func (e *ItemError) Unwrap() error {
	return e.Err
}

func (e *ItemError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewItemError creates a new workflow item error with context.
func NewItemError(op, itemID string, err error) *ItemError {
	return &ItemError{Op: op, ItemID: itemID, Err: err}
}

// UnitError wraps resource unit errors with context.
type UnitError struct {
	Op     string
	Kind   string
	UnitID string
	Err    error
}

func (e *UnitError) Error() string {
	return fmt.Sprintf("%s operation failed for %s unit %s: %v", e.Op, e.Kind, e.UnitID, e.Err)
}

func (e *UnitError) Unwrap() error {
	return e.Err
}

func (e *UnitError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// NewUnitError creates a new resource unit error with context.
func NewUnitError(op, kind, unitID string, err error) *UnitError {
	return &UnitError{Op: op, Kind: kind, UnitID: unitID, Err: err}
}

// Unavailable marks err as a transient storage failure.
func Unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}

func IsUnitNotFound(err error) bool {
	return errors.Is(err, ErrUnitNotFound)
}

func IsItemNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound)
}

func IsVersionConflict(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsTransient reports whether retrying the operation may succeed.
func IsTransient(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
