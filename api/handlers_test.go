package api

import (
	"bytes"
	"compress/gzip"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"

	"github.com/mabroukmoatez/formly-saas-sub017/domain"
	"github.com/mabroukmoatez/formly-saas-sub017/storage"
)

type testEnvelope[T any] struct {
	Success bool       `json:"success"`
	Data    T          `json:"data"`
	Error   *errorBody `json:"error"`
}

func newTestLogger() *log.Logger {
	logger, _ := test.NewNullLogger()
	return logger
}

func newSQLStore(t *testing.T) *storage.SQLStore {
	t.Helper()
	store, err := storage.OpenSQLite(filepath.Join(t.TempDir(), "board.db"), false)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestServer(t *testing.T, store Storage, opts Options) *echo.Echo {
	t.Helper()
	logger := newTestLogger()
	e := NewServer(logger, nil)
	Register(e, store, logger, opts)
	return e
}

func doRequest(e *echo.Echo, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decodeEnvelope[T any](t *testing.T, rec *httptest.ResponseRecorder) testEnvelope[T] {
	t.Helper()
	var env testEnvelope[T]
	if err := sonic.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode envelope %q: %v", rec.Body.String(), err)
	}
	return env
}

func createCategoryViaAPI(t *testing.T, e *echo.Echo, name string) domain.Category {
	t.Helper()
	rec := doRequest(e, http.MethodPost, "/quality-task-categories", `{"name":"`+name+`","color":"#00ff00"}`, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create category: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeEnvelope[domain.Category](t, rec).Data
}

func createTaskViaAPI(t *testing.T, e *echo.Echo, title string, categoryID int64) domain.Task {
	t.Helper()
	body := `{"title":"` + title + `","category_id":` + strconv.FormatInt(categoryID, 10) + `}`
	rec := doRequest(e, http.MethodPost, "/quality-tasks", body, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create task: status %d body %s", rec.Code, rec.Body.String())
	}
	return decodeEnvelope[domain.Task](t, rec).Data
}

func listTasksViaAPI(t *testing.T, e *echo.Echo) []domain.Task {
	t.Helper()
	rec := doRequest(e, http.MethodGet, "/quality-tasks", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list tasks: status %d", rec.Code)
	}
	env := decodeEnvelope[[]domain.Task](t, rec)
	if !env.Success {
		t.Fatalf("expected success envelope: %s", rec.Body.String())
	}
	return env.Data
}

func TestBoardLifecycle(t *testing.T) {
	e := newTestServer(t, newSQLStore(t), Options{})

	todo := createCategoryViaAPI(t, e, "todo")
	doing := createCategoryViaAPI(t, e, "doing")

	t10 := createTaskViaAPI(t, e, "ten", todo.ID)
	t11 := createTaskViaAPI(t, e, "eleven", todo.ID)
	t12 := createTaskViaAPI(t, e, "twelve", todo.ID)
	if t10.EffectivePosition() != 0 || t11.EffectivePosition() != 1 || t12.EffectivePosition() != 2 {
		t.Fatalf("expected appended positions, got %d %d %d", t10.EffectivePosition(), t11.EffectivePosition(), t12.EffectivePosition())
	}

	body := `[{"id":` + strconv.FormatInt(t11.ID, 10) + `,"position":0},` +
		`{"id":` + strconv.FormatInt(t12.ID, 10) + `,"position":1},` +
		`{"id":` + strconv.FormatInt(t10.ID, 10) + `,"position":2}]`
	rec := doRequest(e, http.MethodPost, "/quality-task-positions", body, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("positions: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeEnvelope[positionsResponse](t, rec).Data.Updated; got != 3 {
		t.Fatalf("expected 3 updated, got %d", got)
	}

	tasks := listTasksViaAPI(t, e)
	order := make([]int64, 0, len(tasks))
	for _, task := range tasks {
		order = append(order, task.ID)
	}
	if len(order) != 3 || order[0] != t11.ID || order[1] != t12.ID || order[2] != t10.ID {
		t.Fatalf("unexpected order after reorder: %v", order)
	}

	rec = doRequest(e, http.MethodPatch, "/quality-tasks/"+strconv.FormatInt(t10.ID, 10), `{"category_id":`+strconv.FormatInt(doing.ID, 10)+`}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: status %d body %s", rec.Code, rec.Body.String())
	}
	moved := decodeEnvelope[domain.Task](t, rec).Data
	if moved.ID != t10.ID || moved.CategoryID != doing.ID {
		t.Fatalf("unexpected moved task: %#v", moved)
	}

	rec = doRequest(e, http.MethodGet, "/quality-tasks/"+strconv.FormatInt(t10.ID, 10), "", nil)
	if rec.Code != http.StatusOK || decodeEnvelope[domain.Task](t, rec).Data.CategoryID != doing.ID {
		t.Fatalf("get moved task: status %d body %s", rec.Code, rec.Body.String())
	}

	rec = doRequest(e, http.MethodDelete, "/quality-task-categories/"+strconv.FormatInt(todo.ID, 10), "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete category: status %d body %s", rec.Code, rec.Body.String())
	}
	deleted := decodeEnvelope[deleteResponse](t, rec).Data
	if deleted.DeletedTasks == nil || *deleted.DeletedTasks != 2 {
		t.Fatalf("expected 2 cascaded tasks, got %#v", deleted.DeletedTasks)
	}

	tasks = listTasksViaAPI(t, e)
	if len(tasks) != 1 || tasks[0].ID != t10.ID {
		t.Fatalf("expected only the moved task to survive, got %#v", tasks)
	}
}

func TestCategoryRename(t *testing.T) {
	e := newTestServer(t, newSQLStore(t), Options{})
	cat := createCategoryViaAPI(t, e, "old")

	rec := doRequest(e, http.MethodPatch, "/quality-task-categories/"+strconv.FormatInt(cat.ID, 10), `{"name":"new"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: status %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeEnvelope[domain.Category](t, rec).Data; got.Name != "new" || got.Color != "#00ff00" {
		t.Fatalf("unexpected category: %#v", got)
	}

	rec = doRequest(e, http.MethodGet, "/quality-task-categories", "", nil)
	cats := decodeEnvelope[[]domain.Category](t, rec).Data
	if len(cats) != 1 || cats[0].Name != "new" {
		t.Fatalf("unexpected categories: %#v", cats)
	}
}

func TestCreateTaskValidation(t *testing.T) {
	e := newTestServer(t, newSQLStore(t), Options{})
	cat := createCategoryViaAPI(t, e, "col")
	catID := strconv.FormatInt(cat.ID, 10)

	tests := []struct {
		name  string
		body  string
		field string
	}{
		{name: "missing title", body: `{"category_id":` + catID + `}`, field: "title"},
		{name: "blank title", body: `{"title":"   ","category_id":` + catID + `}`, field: "title"},
		{name: "bad status", body: `{"title":"x","status":"blocked","category_id":` + catID + `}`, field: "status"},
		{name: "bad priority", body: `{"title":"x","priority":"someday","category_id":` + catID + `}`, field: "priority"},
		{name: "bad date", body: `{"title":"x","due_date":"31/12/2024","category_id":` + catID + `}`, field: "due_date"},
		{name: "missing category", body: `{"title":"x"}`, field: "category_id"},
		{name: "unknown category", body: `{"title":"x","category_id":9999}`, field: "category_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(e, http.MethodPost, "/quality-tasks", tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Fatalf("expected 400, got %d body %s", rec.Code, rec.Body.String())
			}
			env := decodeEnvelope[any](t, rec)
			if env.Success || env.Error == nil {
				t.Fatalf("expected failure envelope, got %s", rec.Body.String())
			}
			if _, ok := env.Error.Fields[tt.field]; !ok {
				t.Fatalf("expected field error for %s, got %#v", tt.field, env.Error.Fields)
			}
		})
	}

	rec := doRequest(e, http.MethodPost, "/quality-tasks", `{"title":"x","category_id":`+catID+`,"bogus":1}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected unknown field to be rejected, got %d", rec.Code)
	}
	if env := decodeEnvelope[any](t, rec); env.Error == nil || env.Error.Message != "invalid body" {
		t.Fatalf("unexpected error body: %s", rec.Body.String())
	}
}

func TestNotFoundAndBadRequests(t *testing.T) {
	e := newTestServer(t, newSQLStore(t), Options{})

	rec := doRequest(e, http.MethodGet, "/quality-tasks/999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	env := decodeEnvelope[any](t, rec)
	if env.Success || env.Error == nil || env.Error.Message != "not found" {
		t.Fatalf("unexpected envelope: %s", rec.Body.String())
	}

	rec = doRequest(e, http.MethodDelete, "/quality-tasks/999", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 on delete, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPatch, "/quality-tasks/abc", `{"status":"done"}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid id, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPatch, "/quality-tasks/1", `{}`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty patch, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPost, "/quality-task-positions", `[]`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty batch, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPost, "/quality-task-positions", `[{"id":1,"position":0},{"id":1,"position":1}]`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for duplicated id, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPost, "/quality-task-positions", `[{"id":1,"position":-1}]`, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for negative position, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodPost, "/quality-task-positions", `[{"id":4242,"position":0}]`, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown task in batch, got %d", rec.Code)
	}

	rec = doRequest(e, http.MethodGet, "/nowhere", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected router 404, got %d", rec.Code)
	}
	if env := decodeEnvelope[any](t, rec); env.Success || env.Error == nil {
		t.Fatalf("expected envelope on router errors, got %s", rec.Body.String())
	}
}

type failingStore struct {
	Storage
	err error
}

func (f failingStore) Ping(context.Context) error { return f.err }

func (f failingStore) ListTasks(context.Context) ([]domain.Task, error) { return nil, f.err }

func TestStorageFailureIsGeneric(t *testing.T) {
	boom := errors.New("disk on fire at /var/lib/board.db")
	e := newTestServer(t, failingStore{err: boom}, Options{})

	rec := doRequest(e, http.MethodGet, "/quality-tasks", "", nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), "disk on fire") {
		t.Fatalf("internal error leaked: %s", rec.Body.String())
	}
	env := decodeEnvelope[any](t, rec)
	if env.Success || env.Error == nil || env.Error.Message != http.StatusText(http.StatusInternalServerError) {
		t.Fatalf("unexpected envelope: %s", rec.Body.String())
	}

	rec = doRequest(e, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 from healthz, got %d", rec.Code)
	}
}

func TestHealthz(t *testing.T) {
	e := newTestServer(t, newSQLStore(t), Options{})
	rec := doRequest(e, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env := decodeEnvelope[map[string]string](t, rec); !env.Success || env.Data["status"] != "ok" {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestCreateTaskIdempotencyKey(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	e := newTestServer(t, newSQLStore(t), Options{Deduper: NewRedisDeduper(client, time.Minute)})
	cat := createCategoryViaAPI(t, e, "col")
	body := `{"title":"once","category_id":` + strconv.FormatInt(cat.ID, 10) + `}`
	headers := map[string]string{idempotencyKeyHeader: "key-1"}

	rec := doRequest(e, http.MethodPost, "/quality-tasks", body, headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("first create: status %d body %s", rec.Code, rec.Body.String())
	}
	rec = doRequest(e, http.MethodPost, "/quality-tasks", body, headers)
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409 on replay, got %d", rec.Code)
	}
	if tasks := listTasksViaAPI(t, e); len(tasks) != 1 {
		t.Fatalf("expected a single task, got %d", len(tasks))
	}

	rec = doRequest(e, http.MethodPost, "/quality-tasks", `{"title":"orphan","category_id":777}`, map[string]string{idempotencyKeyHeader: "key-2"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
	if mr.Exists(idempotencyKeyPrefix + "key-2") {
		t.Fatalf("expected key to be released after failed create")
	}
}

func TestGzipEncodedBody(t *testing.T) {
	e := newTestServer(t, newSQLStore(t), Options{})

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write([]byte(`{"name":"zipped"}`)); err != nil {
		t.Fatalf("gzip write: %v", err)
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, "/quality-task-categories", &buf)
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	req.Header.Set(echo.HeaderContentEncoding, "gzip")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d body %s", rec.Code, rec.Body.String())
	}
	if got := decodeEnvelope[domain.Category](t, rec).Data.Name; got != "zipped" {
		t.Fatalf("unexpected name %q", got)
	}

	rec = doRequest(e, http.MethodPost, "/quality-task-categories", "not gzip", map[string]string{echo.HeaderContentEncoding: "gzip"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid gzip, got %d", rec.Code)
	}
}

type recordingPublisher struct {
	ch chan domain.BoardEvent
}

func (r *recordingPublisher) Publish(_ context.Context, events []domain.BoardEvent) error {
	for _, ev := range events {
		r.ch <- ev
	}
	return nil
}

func TestMutationsDispatchEvents(t *testing.T) {
	pub := &recordingPublisher{ch: make(chan domain.BoardEvent, 16)}
	outbox := NewEventOutbox(OutboxConfig{Workers: 1, Buffer: 8}, newTestLogger(), pub)
	t.Cleanup(outbox.Close)

	e := newTestServer(t, newSQLStore(t), Options{Outbox: outbox})
	cat := createCategoryViaAPI(t, e, "col")
	other := createCategoryViaAPI(t, e, "other")
	task := createTaskViaAPI(t, e, "evented", cat.ID)
	rec := doRequest(e, http.MethodPatch, "/quality-tasks/"+strconv.FormatInt(task.ID, 10), `{"category_id":`+strconv.FormatInt(other.ID, 10)+`}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("move: status %d", rec.Code)
	}

	want := []string{domain.CategoryCreated, domain.CategoryCreated, domain.TaskCreated, domain.TaskMoved}
	for i, typ := range want {
		select {
		case ev := <-pub.ch:
			if ev.Type != typ {
				t.Fatalf("event %d: expected %s, got %s", i, typ, ev.Type)
			}
			if typ == domain.TaskMoved && (ev.EntityID != strconv.FormatInt(task.ID, 10) || ev.CategoryID != other.ID) {
				t.Fatalf("unexpected move event: %#v", ev)
			}
		case <-time.After(time.Second):
			t.Fatalf("timed out waiting for event %d (%s)", i, typ)
		}
	}
}
