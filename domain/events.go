package domain

import (
	"strconv"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

const (
	TaskCreated     = "task-created"
	TaskUpdated     = "task-updated"
	TaskMoved       = "task-moved"
	TaskDeleted     = "task-deleted"
	TasksReordered  = "tasks-reordered"
	CategoryCreated = "category-created"
	CategoryUpdated = "category-updated"
	CategoryDeleted = "category-deleted"
)

const (
	EntityTypeTask     = "task"
	EntityTypeCategory = "category"
)

// BoardEvent notifies listeners that the board changed. Listeners are expected
// to refetch instead of applying the event as a delta.
type BoardEvent struct {
	ID         string `json:"id"`
	EntityID   string `json:"entityId"`
	EntityType string `json:"entityType"`
	Type       string `json:"type"`
	CategoryID int64  `json:"categoryId,omitempty"`
	Time       int64  `json:"time"`
}

var lastEventTime int64

// nextEventTime returns a strictly increasing unix-nano timestamp.
func nextEventTime() int64 {
	for {
		now := time.Now().UnixNano()
		last := atomic.LoadInt64(&lastEventTime)
		if now <= last {
			now = last + 1
		}
		if atomic.CompareAndSwapInt64(&lastEventTime, last, now) {
			return now
		}
	}
}

// NewTaskEvent builds an event for a task change.
func NewTaskEvent(typ string, taskID, categoryID int64) BoardEvent {
	return BoardEvent{
		ID:         uuid.NewString(),
		EntityID:   strconv.FormatInt(taskID, 10),
		EntityType: EntityTypeTask,
		Type:       typ,
		CategoryID: categoryID,
		Time:       nextEventTime(),
	}
}

// NewCategoryEvent builds an event for a category change.
func NewCategoryEvent(typ string, categoryID int64) BoardEvent {
	return BoardEvent{
		ID:         uuid.NewString(),
		EntityID:   strconv.FormatInt(categoryID, 10),
		EntityType: EntityTypeCategory,
		Type:       typ,
		CategoryID: categoryID,
		Time:       nextEventTime(),
	}
}
