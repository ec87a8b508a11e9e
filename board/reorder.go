package board

import (
	"sort"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// SortByPosition orders tasks ascending by position in place. Missing positions
// count as 0 and ties keep their current relative order.
func SortByPosition(tasks []domain.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		return tasks[i].EffectivePosition() < tasks[j].EffectivePosition()
	})
}

// ArrayMove returns a copy of items with the element at from reinserted at to.
// Elements between the two indices shift by one; out of range indices return an
// unchanged copy.
func ArrayMove[T any](items []T, from, to int) []T {
	out := make([]T, len(items))
	copy(out, items)
	if from < 0 || from >= len(out) || to < 0 || to >= len(out) || from == to {
		return out
	}
	moved := out[from]
	if from < to {
		copy(out[from:to], out[from+1:to+1])
	} else {
		copy(out[to+1:from+1], out[to:from])
	}
	out[to] = moved
	return out
}

// Renumber assigns dense positions 0..n-1 following slice order.
func Renumber(tasks []domain.Task) []domain.PositionUpdate {
	updates := make([]domain.PositionUpdate, len(tasks))
	for i, t := range tasks {
		updates[i] = domain.PositionUpdate{ID: t.ID, Position: i}
	}
	return updates
}

func indexOf(tasks []domain.Task, id int64) int {
	for i, t := range tasks {
		if t.ID == id {
			return i
		}
	}
	return -1
}
