// Package locks provides the per-unit resolution locks that serialize
// generation commits and workflow transitions.
package locks

import (
	"context"
	"errors"
	"sort"
)

// ErrTimeout is returned when a lock could not be acquired within the configured wait.
var ErrTimeout = errors.New("lock wait timed out")

// Locker acquires resolution locks.
type Locker interface {
	// Lock acquires every key in ascending order and returns the release function.
	// Either all keys are held on return or none are.
	Lock(ctx context.Context, keys ...string) (func(), error)
}

// UnitKey is the lock key of a resource unit.
func UnitKey(unitID string) string {
	return "unit:" + unitID
}

// ItemKey is the lock key of a workflow item.
func ItemKey(itemID string) string {
	return "item:" + itemID
}

// SupplierKey is the lock key of a supplier's draft purchase order.
func SupplierKey(supplierID string) string {
	return "supplier:" + supplierID
}

// DepartmentKey is the lock key of a department's staffing.
func DepartmentKey(departmentID string) string {
	return "department:" + departmentID
}

// normalize sorts and dedupes keys so concurrent callers acquire in the same order.
func normalize(keys []string) []string {
	unique := make([]string, 0, len(keys))
	seen := make(map[string]bool, len(keys))

	for _, key := range keys {
		if key == "" || seen[key] {
			continue
		}

		seen[key] = true
		unique = append(unique, key)
	}

	sort.Strings(unique)

	return unique
}
