package board

import (
	"context"
	"strconv"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

// Controller owns the fetched categories and tasks. Readers get copies and all
// changes go through its methods, each of which ends with a refetch.
type Controller struct {
	api    API
	notify Notifier

	mu         sync.RWMutex
	categories []domain.Category
	tasks      []domain.Task

	busyMu sync.Mutex
	busy   map[string]int

	locks keyedMutex
}

// NewController wires a controller to the REST collaborator. A nil notifier
// discards messages.
func NewController(api API, notify Notifier) *Controller {
	if api == nil {
		panic("board.NewController: api is nil")
	}
	if notify == nil {
		notify = discardNotifier{}
	}
	return &Controller{api: api, notify: notify, busy: make(map[string]int)}
}

// TaskKey and CategoryKey name the busy flags of an entity.
func TaskKey(id int64) string     { return "task:" + strconv.FormatInt(id, 10) }
func CategoryKey(id int64) string { return "category:" + strconv.FormatInt(id, 10) }

// Refresh replaces the local state with the server's lists.
func (c *Controller) Refresh(ctx context.Context) error {
	var (
		cats  []domain.Category
		tasks []domain.Task
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		cats, err = c.api.ListCategories(gctx)
		return err
	})
	g.Go(func() (err error) {
		tasks, err = c.api.ListTasks(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}
	if cats == nil {
		cats = []domain.Category{}
	}
	if tasks == nil {
		tasks = []domain.Task{}
	}

	c.mu.Lock()
	c.categories = cats
	c.tasks = tasks
	c.mu.Unlock()
	return nil
}

func (c *Controller) refetch(ctx context.Context) {
	if err := c.Refresh(ctx); err != nil {
		c.notify.Error(describe("Failed to load the board", err))
	}
}

// Categories returns the columns in fetch order.
func (c *Controller) Categories() []domain.Category {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Category, len(c.categories))
	copy(out, c.categories)
	return out
}

// Tasks returns every task in fetch order.
func (c *Controller) Tasks() []domain.Task {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Task, len(c.tasks))
	copy(out, c.tasks)
	return out
}

// Task looks up a task in the last fetched state.
func (c *Controller) Task(id int64) (domain.Task, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, t := range c.tasks {
		if t.ID == id {
			return t, true
		}
	}
	return domain.Task{}, false
}

// Category looks up a column in the last fetched state.
func (c *Controller) Category(id int64) (domain.Category, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, cat := range c.categories {
		if cat.ID == id {
			return cat, true
		}
	}
	return domain.Category{}, false
}

// CategoryTasks returns the tasks of a column in display order.
func (c *Controller) CategoryTasks(categoryID int64) []domain.Task {
	c.mu.RLock()
	out := make([]domain.Task, 0, len(c.tasks))
	for _, t := range c.tasks {
		if t.EffectiveCategoryID() == categoryID {
			out = append(out, t)
		}
	}
	c.mu.RUnlock()
	SortByPosition(out)
	return out
}

// Filter narrows the board locally. The zero value matches everything.
type Filter struct {
	Query      string
	CategoryID int64
}

// Match reports whether t passes the category filter and the search query.
func (f Filter) Match(t domain.Task) bool {
	if f.CategoryID != 0 && t.EffectiveCategoryID() != f.CategoryID {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), q) ||
		strings.Contains(strings.ToLower(t.Description), q)
}

// VisibleCategories returns the columns shown under f.
func (c *Controller) VisibleCategories(f Filter) []domain.Category {
	cats := c.Categories()
	if f.CategoryID == 0 {
		return cats
	}
	out := cats[:0]
	for _, cat := range cats {
		if cat.ID == f.CategoryID {
			out = append(out, cat)
		}
	}
	return out
}

// Visible returns the tasks of a column that match f, in display order.
func (c *Controller) Visible(categoryID int64, f Filter) []domain.Task {
	tasks := c.CategoryTasks(categoryID)
	out := tasks[:0]
	for _, t := range tasks {
		if f.Match(t) {
			out = append(out, t)
		}
	}
	return out
}

// Busy reports whether a mutation for key is in flight.
func (c *Controller) Busy(key string) bool {
	c.busyMu.Lock()
	defer c.busyMu.Unlock()
	return c.busy[key] > 0
}

func (c *Controller) markBusy(keys ...string) func() {
	c.busyMu.Lock()
	for _, k := range keys {
		c.busy[k]++
	}
	c.busyMu.Unlock()
	return func() {
		c.busyMu.Lock()
		defer c.busyMu.Unlock()
		for _, k := range keys {
			if c.busy[k]--; c.busy[k] <= 0 {
				delete(c.busy, k)
			}
		}
	}
}

// CreateTask adds a card. The server assigns the id and, without an explicit
// position, appends it to its column.
func (c *Controller) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	return c.createTask(ctx, t, "Task created", "Failed to create the task")
}

// DuplicateTask creates a copy of a card in the same column.
func (c *Controller) DuplicateTask(ctx context.Context, id int64) (domain.Task, error) {
	src, ok := c.Task(id)
	if !ok {
		c.notify.Error("Failed to duplicate the task: task not found")
		return domain.Task{}, domain.ErrNotFound
	}
	defer c.markBusy(TaskKey(id))()
	return c.createTask(ctx, src.Duplicate(), "Task duplicated", "Failed to duplicate the task")
}

func (c *Controller) createTask(ctx context.Context, t domain.Task, okMsg, failMsg string) (domain.Task, error) {
	categoryID := t.EffectiveCategoryID()
	defer c.locks.Lock(categoryID)()
	defer c.markBusy(CategoryKey(categoryID))()

	created, err := c.api.CreateTask(ctx, t)
	if err != nil {
		c.notify.Error(describe(failMsg, err))
		return domain.Task{}, err
	}
	c.notify.Success(okMsg)
	c.refetch(ctx)
	return created, nil
}

// UpdateTask applies a field update such as a status change.
func (c *Controller) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	current, ok := c.Task(id)
	if !ok {
		c.notify.Error("Failed to update the task: task not found")
		return domain.Task{}, domain.ErrNotFound
	}
	ids := []int64{current.EffectiveCategoryID()}
	if patch.CategoryID != nil {
		ids = append(ids, *patch.CategoryID)
	}
	defer c.locks.Lock(ids...)()
	defer c.markBusy(TaskKey(id))()

	updated, err := c.api.UpdateTask(ctx, id, patch)
	if err != nil {
		c.notify.Error(describe("Failed to update the task", err))
		return domain.Task{}, err
	}
	c.notify.Success("Task updated")
	c.refetch(ctx)
	return updated, nil
}

// DeleteTask removes a card and refetches on success.
func (c *Controller) DeleteTask(ctx context.Context, id int64) error {
	current, ok := c.Task(id)
	if !ok {
		c.notify.Error("Failed to delete the task: task not found")
		return domain.ErrNotFound
	}
	defer c.locks.Lock(current.EffectiveCategoryID())()
	defer c.markBusy(TaskKey(id))()

	if err := c.api.DeleteTask(ctx, id); err != nil {
		c.notify.Error(describe("Failed to delete the task", err))
		return err
	}
	c.notify.Success("Task deleted")
	c.refetch(ctx)
	return nil
}

// CreateCategory adds a column with a trimmed name.
func (c *Controller) CreateCategory(ctx context.Context, name, color string) (domain.Category, error) {
	created, err := c.api.CreateCategory(ctx, domain.Category{Name: strings.TrimSpace(name), Color: color})
	if err != nil {
		c.notify.Error(describe("Failed to create the column", err))
		return domain.Category{}, err
	}
	c.notify.Success("Column created")
	c.refetch(ctx)
	return created, nil
}

// RenameCategory changes a column name, trimmed.
func (c *Controller) RenameCategory(ctx context.Context, id int64, name string) (domain.Category, error) {
	defer c.locks.Lock(id)()
	defer c.markBusy(CategoryKey(id))()

	name = strings.TrimSpace(name)
	updated, err := c.api.UpdateCategory(ctx, id, domain.CategoryPatch{Name: &name})
	if err != nil {
		c.notify.Error(describe("Failed to rename the column", err))
		return domain.Category{}, err
	}
	c.notify.Success("Column renamed")
	c.refetch(ctx)
	return updated, nil
}

// DeleteCategory removes a column together with all of its tasks.
func (c *Controller) DeleteCategory(ctx context.Context, id int64) error {
	defer c.locks.Lock(id)()
	defer c.markBusy(CategoryKey(id))()

	if err := c.api.DeleteCategory(ctx, id); err != nil {
		c.notify.Error(describe("Failed to delete the column", err))
		return err
	}
	c.notify.Success("Column deleted")
	c.refetch(ctx)
	return nil
}

// applyPositions writes positions into local state ahead of the server.
func (c *Controller) applyPositions(updates []domain.PositionUpdate) {
	byID := make(map[int64]int, len(updates))
	for _, u := range updates {
		byID[u.ID] = u.Position
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.tasks {
		if pos, ok := byID[c.tasks[i].ID]; ok {
			c.tasks[i].Position = domain.IntPtr(pos)
		}
	}
}

// applyMove re-parents a task locally and places it after the target's cards.
func (c *Controller) applyMove(id, categoryID int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := 0
	for _, t := range c.tasks {
		if t.EffectiveCategoryID() == categoryID && t.ID != id && t.EffectivePosition() >= next {
			next = t.EffectivePosition() + 1
		}
	}
	for i := range c.tasks {
		if c.tasks[i].ID == id {
			c.tasks[i].CategoryID = categoryID
			c.tasks[i].Category = nil
			c.tasks[i].Position = domain.IntPtr(next)
			return
		}
	}
}
