package board

import (
	"context"

	"github.com/mabroukmoatez/formly-saas-sub017/client"
	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// API is the REST surface the controller depends on.
type API interface {
	ListCategories(ctx context.Context) ([]domain.Category, error)
	CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error)
	UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (domain.Category, error)
	DeleteCategory(ctx context.Context, id int64) error
	ListTasks(ctx context.Context) ([]domain.Task, error)
	CreateTask(ctx context.Context, t domain.Task) (domain.Task, error)
	UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error)
	UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error
	DeleteTask(ctx context.Context, id int64) error
}

var _ API = (*client.Client)(nil)
