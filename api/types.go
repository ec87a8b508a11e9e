package api

import (
	"context"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// Storage abstracts persistence for handlers.
type Storage interface {
	Ping(ctx context.Context) error
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) (int, error)
	ListTasks(ctx context.Context) ([]domain.Task, error)
	GetTask(ctx context.Context, id int64) (domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error)
	UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error
	DeleteTask(ctx context.Context, id int64) error
}

// Deduper prevents processing of duplicate create requests.
type Deduper interface {
	// Add records the idempotency key and returns true if it was newly added.
	Add(ctx context.Context, key string) (bool, error)
	// Remove deletes a previously added key, used when the create fails.
	Remove(ctx context.Context, key string) error
}

// Publisher delivers board change notifications.
type Publisher interface {
	Publish(ctx context.Context, events []domain.BoardEvent) error
}

// Options carries the optional collaborators of the API.
type Options struct {
	Deduper Deduper
	Outbox  *EventOutbox
	Broker  *Broker
}
