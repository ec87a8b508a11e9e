package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
)

type apiCall struct {
	Method  string
	Path    string
	Patch   domain.TaskPatch
	Batch   []domain.PositionUpdate
	Payload domain.Task
}

// fakeAPI is an in-memory board server that records every call.
type fakeAPI struct {
	mu         sync.Mutex
	categories []domain.Category
	tasks      []domain.Task
	nextID     int64
	calls      []apiCall

	failPositions error
	failUpdate    error
	gate          chan struct{}
	entered       chan struct{}
}

func newFakeAPI(cats []domain.Category, tasks []domain.Task) *fakeAPI {
	f := &fakeAPI{nextID: 100}
	f.categories = append(f.categories, cats...)
	for _, t := range tasks {
		t.Normalize()
		f.tasks = append(f.tasks, t)
	}
	return f
}

func (f *fakeAPI) record(c apiCall) {
	f.calls = append(f.calls, c)
}

func (f *fakeAPI) wait() {
	if f.entered != nil {
		f.entered <- struct{}{}
	}
	if f.gate != nil {
		<-f.gate
	}
}

func (f *fakeAPI) Calls() []apiCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]apiCall(nil), f.calls...)
}

// mutations filters out the list refetches.
func (f *fakeAPI) mutations() []apiCall {
	var out []apiCall
	for _, c := range f.Calls() {
		if c.Method != "GET" {
			out = append(out, c)
		}
	}
	return out
}

func (f *fakeAPI) ListCategories(ctx context.Context) ([]domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(apiCall{Method: "GET", Path: "/quality-task-categories"})
	return append([]domain.Category(nil), f.categories...), nil
}

func (f *fakeAPI) ListTasks(ctx context.Context) ([]domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(apiCall{Method: "GET", Path: "/quality-tasks"})
	return append([]domain.Task(nil), f.tasks...), nil
}

func (f *fakeAPI) CreateCategory(ctx context.Context, c domain.Category) (domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(apiCall{Method: "POST", Path: "/quality-task-categories"})
	f.nextID++
	c.ID = f.nextID
	f.categories = append(f.categories, c)
	return c, nil
}

func (f *fakeAPI) UpdateCategory(ctx context.Context, id int64, patch domain.CategoryPatch) (domain.Category, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(apiCall{Method: "PATCH", Path: fmt.Sprintf("/quality-task-categories/%d", id)})
	for i := range f.categories {
		if f.categories[i].ID == id {
			patch.Apply(&f.categories[i])
			return f.categories[i], nil
		}
	}
	return domain.Category{}, domain.ErrNotFound
}

func (f *fakeAPI) DeleteCategory(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(apiCall{Method: "DELETE", Path: fmt.Sprintf("/quality-task-categories/%d", id)})
	found := false
	cats := f.categories[:0]
	for _, c := range f.categories {
		if c.ID == id {
			found = true
			continue
		}
		cats = append(cats, c)
	}
	if !found {
		return domain.ErrNotFound
	}
	f.categories = cats
	tasks := f.tasks[:0]
	for _, t := range f.tasks {
		if t.EffectiveCategoryID() != id {
			tasks = append(tasks, t)
		}
	}
	f.tasks = tasks
	return nil
}

func (f *fakeAPI) maxPosition(categoryID, except int64) int {
	next := 0
	for _, t := range f.tasks {
		if t.EffectiveCategoryID() == categoryID && t.ID != except && t.EffectivePosition() >= next {
			next = t.EffectivePosition() + 1
		}
	}
	return next
}

func (f *fakeAPI) CreateTask(ctx context.Context, t domain.Task) (domain.Task, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(apiCall{Method: "POST", Path: "/quality-tasks", Payload: t})
	f.nextID++
	t.ID = f.nextID
	if t.Position == nil {
		t.Position = domain.IntPtr(f.maxPosition(t.EffectiveCategoryID(), 0))
	}
	t.Normalize()
	f.tasks = append(f.tasks, t)
	return t, nil
}

func (f *fakeAPI) UpdateTask(ctx context.Context, id int64, patch domain.TaskPatch) (domain.Task, error) {
	f.mu.Lock()
	f.record(apiCall{Method: "PATCH", Path: fmt.Sprintf("/quality-tasks/%d", id), Patch: patch})
	f.mu.Unlock()
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failUpdate != nil {
		return domain.Task{}, f.failUpdate
	}
	for i := range f.tasks {
		if f.tasks[i].ID != id {
			continue
		}
		moving := patch.CategoryID != nil && *patch.CategoryID != f.tasks[i].EffectiveCategoryID()
		patch.Apply(&f.tasks[i])
		if moving && patch.Position == nil {
			f.tasks[i].Position = domain.IntPtr(f.maxPosition(*patch.CategoryID, id))
		}
		return f.tasks[i], nil
	}
	return domain.Task{}, domain.ErrNotFound
}

func (f *fakeAPI) UpdatePositions(ctx context.Context, updates []domain.PositionUpdate) error {
	f.mu.Lock()
	f.record(apiCall{Method: "POST", Path: "/quality-task-positions", Batch: append([]domain.PositionUpdate(nil), updates...)})
	f.mu.Unlock()
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPositions != nil {
		return f.failPositions
	}
	for _, u := range updates {
		for i := range f.tasks {
			if f.tasks[i].ID == u.ID {
				f.tasks[i].Position = domain.IntPtr(u.Position)
			}
		}
	}
	return nil
}

func (f *fakeAPI) DeleteTask(ctx context.Context, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record(apiCall{Method: "DELETE", Path: fmt.Sprintf("/quality-tasks/%d", id)})
	for i, t := range f.tasks {
		if t.ID == id {
			f.tasks = append(f.tasks[:i], f.tasks[i+1:]...)
			return nil
		}
	}
	return domain.ErrNotFound
}

type recordingNotifier struct {
	mu      sync.Mutex
	errors  []string
	success []string
}

func (n *recordingNotifier) Error(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.errors = append(n.errors, msg)
}

func (n *recordingNotifier) Success(msg string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.success = append(n.success, msg)
}

func (n *recordingNotifier) Errors() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.errors...)
}

var errBoom = errors.New("boom")

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}
