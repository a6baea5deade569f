package workflow

import (
	"slices"

	"github.com/dukex/wardflow/pkg/models"
)

var transitions = map[models.ItemStatus][]models.ItemStatus{
	models.ItemStatusPending:   {models.ItemStatusApproved, models.ItemStatusRejected, models.ItemStatusExpired},
	models.ItemStatusApproved:  {models.ItemStatusExecuting},
	models.ItemStatusExecuting: {models.ItemStatusCompleted, models.ItemStatusFailed},
}

// CanTransition reports whether the lifecycle allows from -> to.
func CanTransition(from, to models.ItemStatus) bool {
	return slices.Contains(transitions[from], to)
}
