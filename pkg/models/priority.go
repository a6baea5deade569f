package models

import (
	"sort"
)

// Priority is the urgency of a WorkflowItem.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

var priorityRank = map[Priority]int{
	PriorityLow:      1,
	PriorityMedium:   2,
	PriorityHigh:     3,
	PriorityCritical: 4,
}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	_, ok := priorityRank[p]

	return ok
}

// Rank orders priorities: critical > high > medium > low. Unknown priorities rank 0.
func (p Priority) Rank() int {
	return priorityRank[p]
}

// Elevate returns the next higher priority, saturating at critical.
func (p Priority) Elevate() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	default:
		return PriorityCritical
	}
}

// MaxPriority returns the more urgent of a and b.
func MaxPriority(a, b Priority) Priority {
	if b.Rank() > a.Rank() {
		return b
	}

	return a
}

// Less reports whether a sorts before b: higher priority first, then oldest, then id.
func Less(a, b *WorkflowItem) bool {
	if a.Priority.Rank() != b.Priority.Rank() {
		return a.Priority.Rank() > b.Priority.Rank()
	}

	if !a.CreatedAt.Equal(b.CreatedAt) {
		return a.CreatedAt.Before(b.CreatedAt)
	}

	return a.ID < b.ID
}

// SortByPriority sorts items in place by priority, then created_at ascending.
func SortByPriority(items []*WorkflowItem) {
	sort.SliceStable(items, func(i, j int) bool {
		return Less(items[i], items[j])
	})
}
