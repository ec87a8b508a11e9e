package client

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mabroukmoatez/formly-saas-sub017/api"
	"github.com/mabroukmoatez/formly-saas-sub017/domain"
	"github.com/mabroukmoatez/formly-saas-sub017/storage"
)

func newBoardServer(t *testing.T, opts api.Options) *httptest.Server {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "board.db"), false)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	logger, _ := test.NewNullLogger()
	e := api.NewServer(logger, nil)
	api.Register(e, store, logger, opts)
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)
	return srv
}

func TestClientAgainstServer(t *testing.T) {
	srv := newBoardServer(t, api.Options{})
	c := New(srv.URL, time.Second)
	ctx := context.Background()

	if err := c.Health(ctx); err != nil {
		t.Fatalf("health: %v", err)
	}
	cats, err := c.ListCategories(ctx)
	if err != nil || cats == nil || len(cats) != 0 {
		t.Fatalf("expected empty non-nil categories, got %#v (%v)", cats, err)
	}

	todo, err := c.CreateCategory(ctx, domain.Category{Name: "À faire"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	doing, err := c.CreateCategory(ctx, domain.Category{Name: "En cours"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}

	var ids []int64
	for _, title := range []string{"a", "b", "c"} {
		task, err := c.CreateTask(ctx, domain.Task{Title: title, CategoryID: todo.ID})
		if err != nil {
			t.Fatalf("create task: %v", err)
		}
		ids = append(ids, task.ID)
	}

	err = c.UpdatePositions(ctx, []domain.PositionUpdate{
		{ID: ids[1], Position: 0},
		{ID: ids[2], Position: 1},
		{ID: ids[0], Position: 2},
	})
	if err != nil {
		t.Fatalf("positions: %v", err)
	}

	target := doing.ID
	moved, err := c.UpdateTask(ctx, ids[0], domain.TaskPatch{CategoryID: &target})
	if err != nil {
		t.Fatalf("move: %v", err)
	}
	if moved.ID != ids[0] || moved.CategoryID != doing.ID {
		t.Fatalf("unexpected moved task %#v", moved)
	}

	got, err := c.GetTask(ctx, ids[0])
	if err != nil || got.CategoryID != doing.ID {
		t.Fatalf("get task: %#v (%v)", got, err)
	}

	if err := c.DeleteTask(ctx, ids[1]); err != nil {
		t.Fatalf("delete task: %v", err)
	}
	if err := c.DeleteCategory(ctx, todo.ID); err != nil {
		t.Fatalf("delete category: %v", err)
	}
	tasks, err := c.ListTasks(ctx)
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != ids[0] {
		t.Fatalf("unexpected tasks after cascade: %#v", tasks)
	}

	_, err = c.GetTask(ctx, 9999)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusNotFound {
		t.Fatalf("expected not found APIError, got %v", err)
	}
	_, err = c.CreateTask(ctx, domain.Task{Title: "", CategoryID: doing.ID})
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusBadRequest || apiErr.Fields["title"] == "" {
		t.Fatalf("expected validation APIError, got %#v", err)
	}
}

func TestCreateTaskSendsIdempotencyKey(t *testing.T) {
	var keys []string
	var mu sync.Mutex
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get(idempotencyKeyHeader))
		mu.Unlock()
		body, _ := io.ReadAll(r.Body)
		var in domain.Task
		_ = sonic.Unmarshal(body, &in)
		in.ID = 42
		data, _ := sonic.Marshal(map[string]any{"success": true, "data": in})
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write(data)
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	for i := 0; i < 2; i++ {
		task, err := c.CreateTask(context.Background(), domain.Task{Title: "x", CategoryID: 1})
		if err != nil || task.ID != 42 {
			t.Fatalf("create: %#v %v", task, err)
		}
	}
	if _, err := c.CreateTaskWithKey(context.Background(), domain.Task{Title: "x", CategoryID: 1}, "fixed"); err != nil {
		t.Fatalf("create with key: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 3 || keys[0] == "" || keys[0] == keys[1] || keys[2] != "fixed" {
		t.Fatalf("unexpected idempotency keys: %v", keys)
	}
}

func TestListTolerantOfLegacyPayloads(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/quality-tasks":
			_, _ = w.Write([]byte(`{"data":[{"id":5,"title":"legacy","category":{"id":9}}]}`))
		case "/quality-task-categories":
			_, _ = w.Write([]byte(`{"success":true,"data":null}`))
		}
	}))
	defer srv.Close()

	c := New(srv.URL, time.Second)
	tasks, err := c.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("list tasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].EffectiveCategoryID() != 9 {
		t.Fatalf("unexpected tasks: %#v", tasks)
	}
	cats, err := c.ListCategories(context.Background())
	if err != nil || cats == nil || len(cats) != 0 {
		t.Fatalf("expected empty categories, got %#v (%v)", cats, err)
	}
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := srv.URL
	srv.Close()

	_, err := New(url, 200*time.Millisecond).ListTasks(context.Background())
	var tErr *TransportError
	if !errors.As(err, &tErr) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestWatchReceivesEvents(t *testing.T) {
	logger, _ := test.NewNullLogger()
	broker := api.NewBroker(time.Hour)
	outbox := api.NewEventOutbox(api.OutboxConfig{Workers: 1}, logger, broker)
	t.Cleanup(outbox.Close)
	srv := newBoardServer(t, api.Options{Broker: broker, Outbox: outbox})
	c := New(srv.URL, time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	events := make(chan domain.BoardEvent, 4)
	done := make(chan error, 1)
	go func() { done <- c.Watch(ctx, func(ev domain.BoardEvent) { events <- ev }) }()

	deadline := time.Now().Add(time.Second)
	for broker.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cat, err := c.CreateCategory(context.Background(), domain.Category{Name: "live"})
	if err != nil {
		t.Fatalf("create category: %v", err)
	}
	select {
	case ev := <-events:
		if ev.Type != domain.CategoryCreated || ev.CategoryID != cat.ID {
			t.Fatalf("unexpected event %#v", ev)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context cancellation, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("watch did not return")
	}
}

func TestReadEvents(t *testing.T) {
	stream := ": connected\n\n" +
		"event: task-moved\ndata: {\"id\":\"a\",\"type\":\"task-moved\",\"entityId\":\"20\",\"categoryId\":2}\n\n" +
		": ping\n\n" +
		"data: not json\n\n" +
		"data: {\"id\":\"b\",\"type\":\"task-deleted\"}\n"
	var got []domain.BoardEvent
	if err := readEvents(strings.NewReader(stream), func(ev domain.BoardEvent) { got = append(got, ev) }); err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(got) != 2 || got[0].EntityID != "20" || got[0].CategoryID != 2 || got[1].ID != "b" {
		t.Fatalf("unexpected events: %#v", got)
	}
}
